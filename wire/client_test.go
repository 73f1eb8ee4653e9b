package wire

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pwang200/xbridge-witness/log"
	"github.com/stretchr/testify/require"
)

var upgrader = websocket.Upgrader{}

type testServer struct {
	srv *httptest.Server

	mtx   sync.Mutex
	conns []*websocket.Conn
	// onFrame decides what the server does with each inbound frame
	onFrame func(conn *websocket.Conn, frame map[string]interface{})
}

func newTestServer(t *testing.T, onFrame func(conn *websocket.Conn, frame map[string]interface{})) *testServer {
	t.Helper()
	ts := &testServer{onFrame: onFrame}
	ts.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		ts.mtx.Lock()
		ts.conns = append(ts.conns, conn)
		ts.mtx.Unlock()
		for {
			var frame map[string]interface{}
			if err := conn.ReadJSON(&frame); err != nil {
				return
			}
			if ts.onFrame != nil {
				ts.onFrame(conn, frame)
			}
		}
	}))
	t.Cleanup(ts.srv.Close)
	return ts
}

func (ts *testServer) url() string {
	return "ws" + strings.TrimPrefix(ts.srv.URL, "http")
}

func (ts *testServer) pushToAll(t *testing.T, msg map[string]interface{}) {
	t.Helper()
	ts.mtx.Lock()
	defer ts.mtx.Unlock()
	for _, conn := range ts.conns {
		require.NoError(t, conn.WriteJSON(msg))
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	require.Eventually(t, cond, 5*time.Second, 10*time.Millisecond)
}

func TestSendAllocatesMonotoneIDs(t *testing.T) {
	var (
		mtx sync.Mutex
		ids []uint32
	)
	ts := newTestServer(t, func(_ *websocket.Conn, frame map[string]interface{}) {
		mtx.Lock()
		defer mtx.Unlock()
		ids = append(ids, uint32(frame["id"].(float64)))
	})

	client := NewClient(ts.url(), func(json.RawMessage) {}, nil, log.WithFields("module", "wire-test"))
	client.Start()
	defer client.Shutdown()

	waitFor(t, func() bool {
		_, err := client.Send("ping", nil)
		return err == nil
	})
	id2, err := client.Send("ping", map[string]interface{}{"x": 1})
	require.NoError(t, err)
	id3, err := client.Send("ping", nil)
	require.NoError(t, err)
	require.Equal(t, id2+1, id3)

	waitFor(t, func() bool {
		mtx.Lock()
		defer mtx.Unlock()
		return len(ids) == 3
	})
}

func TestReplyRouting(t *testing.T) {
	ts := newTestServer(t, func(conn *websocket.Conn, frame map[string]interface{}) {
		if frame["command"] == "subscribe" {
			conn.WriteJSON(map[string]interface{}{ //nolint:errcheck
				"id":     frame["id"],
				"result": map[string]interface{}{"status": "success"},
			})
		}
	})

	var (
		mtx     sync.Mutex
		pushes  int
		replies []json.RawMessage
	)
	client := NewClient(ts.url(), func(json.RawMessage) {
		mtx.Lock()
		pushes++
		mtx.Unlock()
	}, nil, log.WithFields("module", "wire-test"))
	client.Start()
	defer client.Shutdown()

	waitFor(t, func() bool {
		_, err := client.SendExpectReply("subscribe", nil, func(result json.RawMessage) {
			mtx.Lock()
			replies = append(replies, result)
			mtx.Unlock()
		})
		return err == nil
	})

	waitFor(t, func() bool {
		mtx.Lock()
		defer mtx.Unlock()
		return len(replies) == 1
	})
	mtx.Lock()
	defer mtx.Unlock()
	require.JSONEq(t, `{"status":"success"}`, string(replies[0]))
	// the reply was consumed by the callback, not pushed
	require.Zero(t, pushes)
}

func TestPushRouting(t *testing.T) {
	ts := newTestServer(t, nil)

	var (
		mtx    sync.Mutex
		pushed []json.RawMessage
	)
	client := NewClient(ts.url(), func(msg json.RawMessage) {
		mtx.Lock()
		pushed = append(pushed, msg)
		mtx.Unlock()
	}, nil, log.WithFields("module", "wire-test"))
	client.Start()
	defer client.Shutdown()

	waitFor(t, func() bool {
		ts.mtx.Lock()
		defer ts.mtx.Unlock()
		return len(ts.conns) == 1
	})

	ts.pushToAll(t, map[string]interface{}{
		"type":      "transaction",
		"validated": true,
	})
	waitFor(t, func() bool {
		mtx.Lock()
		defer mtx.Unlock()
		return len(pushed) == 1
	})
	var frame struct {
		Type string `json:"type"`
	}
	mtx.Lock()
	defer mtx.Unlock()
	require.NoError(t, json.Unmarshal(pushed[0], &frame))
	require.Equal(t, "transaction", frame.Type)
}

func TestOnConnectReplayedAfterReconnect(t *testing.T) {
	ts := newTestServer(t, nil)

	var (
		mtx   sync.Mutex
		count int
	)
	client := NewClient(ts.url(), func(json.RawMessage) {}, func() {
		mtx.Lock()
		count++
		mtx.Unlock()
	}, log.WithFields("module", "wire-test"))
	client.Start()
	defer client.Shutdown()

	waitFor(t, func() bool {
		mtx.Lock()
		defer mtx.Unlock()
		return count == 1
	})

	// kill the server side; the client must redial and replay onConnect
	ts.mtx.Lock()
	for _, conn := range ts.conns {
		conn.Close()
	}
	ts.mtx.Unlock()

	waitFor(t, func() bool {
		mtx.Lock()
		defer mtx.Unlock()
		return count >= 2
	})
}

func TestSendAfterShutdown(t *testing.T) {
	ts := newTestServer(t, nil)
	client := NewClient(ts.url(), func(json.RawMessage) {}, nil, log.WithFields("module", "wire-test"))
	client.Start()
	client.Shutdown()

	_, err := client.Send("ping", nil)
	require.ErrorIs(t, err, ErrClosed)
}
