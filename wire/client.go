package wire

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pwang200/xbridge-witness/log"
)

const (
	initialReconnectDelay = time.Second
	maxReconnectDelay     = 30 * time.Second
	defaultReplyTimeout   = 30 * time.Second
	writeWait             = 10 * time.Second
	sweepInterval         = 5 * time.Second
)

var ErrClosed = errors.New("wire client closed")

// PushHandler receives frames that are not replies to an outstanding
// request.
type PushHandler func(msg json.RawMessage)

// ReplyHandler receives the result object of a reply, exactly once.
type ReplyHandler func(result json.RawMessage)

type pendingReply struct {
	cb       ReplyHandler
	deadline time.Time
}

// Client keeps a persistent duplex JSON channel to one chain endpoint over a
// websocket. Outbound requests get a locally allocated monotone id; inbound
// frames carrying a matching id are routed to the registered reply handler,
// everything else goes to the push handler.
//
// On transport loss the client redials with exponential backoff and invokes
// the onConnect hook so the owner can replay its subscriptions. Pending
// reply handlers are dropped on disconnect; callers that care must
// re-submit.
type Client struct {
	url          string
	onPush       PushHandler
	onConnect    func()
	replyTimeout time.Duration
	logger       *log.Logger

	nextID atomic.Uint32

	mtx     sync.Mutex
	conn    *websocket.Conn
	pending map[uint32]pendingReply

	closed atomic.Bool
	done   chan struct{}
	wg     sync.WaitGroup
}

// NewClient builds a client for the given endpoint. onConnect may be nil;
// onPush must not be.
func NewClient(url string, onPush PushHandler, onConnect func(), logger *log.Logger) *Client {
	return &Client{
		url:          url,
		onPush:       onPush,
		onConnect:    onConnect,
		replyTimeout: defaultReplyTimeout,
		logger:       logger,
		pending:      make(map[uint32]pendingReply),
		done:         make(chan struct{}),
	}
}

// Start spawns the connect/read loop and the reply expiry sweeper.
func (c *Client) Start() {
	c.wg.Add(2)
	go func() {
		defer c.wg.Done()
		c.run()
	}()
	go func() {
		defer c.wg.Done()
		c.sweepLoop()
	}()
}

// Shutdown closes the transport and stops the loops. Safe to call more than
// once.
func (c *Client) Shutdown() {
	if c.closed.Swap(true) {
		return
	}
	close(c.done)
	c.mtx.Lock()
	if c.conn != nil {
		c.conn.Close()
	}
	c.mtx.Unlock()
	c.wg.Wait()
}

// Send writes a fire-and-forget command frame and returns its request id.
func (c *Client) Send(cmd string, params map[string]interface{}) (uint32, error) {
	return c.send(cmd, params, nil)
}

// SendExpectReply writes a command frame and registers onReply for its id.
// The handler fires exactly once, or is dropped with a warning if no reply
// arrives within the reply timeout.
func (c *Client) SendExpectReply(cmd string, params map[string]interface{}, onReply ReplyHandler) (uint32, error) {
	return c.send(cmd, params, onReply)
}

func (c *Client) send(cmd string, params map[string]interface{}, onReply ReplyHandler) (uint32, error) {
	if c.closed.Load() {
		return 0, ErrClosed
	}
	id := c.nextID.Add(1)
	frame := make(map[string]interface{}, len(params)+2)
	for k, v := range params {
		frame[k] = v
	}
	frame["command"] = cmd
	frame["id"] = id

	payload, err := json.Marshal(frame)
	if err != nil {
		return 0, fmt.Errorf("marshaling %s frame: %w", cmd, err)
	}

	c.mtx.Lock()
	defer c.mtx.Unlock()
	if c.conn == nil {
		return 0, fmt.Errorf("sending %s: not connected", cmd)
	}
	// register before writing, so a fast reply cannot miss its handler
	if onReply != nil {
		c.pending[id] = pendingReply{cb: onReply, deadline: time.Now().Add(c.replyTimeout)}
	}
	c.conn.SetWriteDeadline(time.Now().Add(writeWait)) //nolint:errcheck
	if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		delete(c.pending, id)
		return 0, fmt.Errorf("sending %s: %w", cmd, err)
	}
	return id, nil
}

func (c *Client) run() {
	delay := initialReconnectDelay
	for {
		if c.closed.Load() {
			return
		}
		conn, _, err := websocket.DefaultDialer.Dial(c.url, nil)
		if err != nil {
			c.logger.Warnf("connect to %s failed: %v, retrying in %s", c.url, err, delay)
			select {
			case <-c.done:
				return
			case <-time.After(delay):
			}
			delay *= 2
			if delay > maxReconnectDelay {
				delay = maxReconnectDelay
			}
			continue
		}
		delay = initialReconnectDelay
		c.mtx.Lock()
		c.conn = conn
		c.mtx.Unlock()
		c.logger.Infof("connected to %s", c.url)
		if c.onConnect != nil {
			c.onConnect()
		}

		c.readLoop(conn)

		c.mtx.Lock()
		c.conn = nil
		dropped := len(c.pending)
		c.pending = make(map[uint32]pendingReply)
		c.mtx.Unlock()
		if dropped > 0 {
			c.logger.Warnf("connection to %s lost, dropped %d pending replies", c.url, dropped)
		}
	}
}

func (c *Client) readLoop(conn *websocket.Conn) {
	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			if !c.closed.Load() {
				c.logger.Warnf("read from %s: %v", c.url, err)
			}
			conn.Close()
			return
		}
		c.dispatch(payload)
	}
}

func (c *Client) dispatch(payload []byte) {
	var frame struct {
		ID     *uint32         `json:"id"`
		Result json.RawMessage `json:"result"`
	}
	if err := json.Unmarshal(payload, &frame); err != nil {
		c.logger.Warnf("malformed frame from %s: %v", c.url, err)
		return
	}
	if frame.ID != nil {
		c.mtx.Lock()
		entry, ok := c.pending[*frame.ID]
		if ok {
			delete(c.pending, *frame.ID)
		}
		c.mtx.Unlock()
		if ok {
			entry.cb(frame.Result)
			return
		}
	}
	c.onPush(json.RawMessage(payload))
}

func (c *Client) sweepLoop() {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case now := <-ticker.C:
			c.mtx.Lock()
			for id, entry := range c.pending {
				if now.After(entry.deadline) {
					delete(c.pending, id)
					c.logger.Warnf("request %d to %s timed out waiting for a reply", id, c.url)
				}
			}
			c.mtx.Unlock()
		}
	}
}
