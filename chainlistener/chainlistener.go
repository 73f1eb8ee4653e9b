package chainlistener

import (
	"encoding/json"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pwang200/xbridge-witness/federator"
	"github.com/pwang200/xbridge-witness/log"
	"github.com/pwang200/xbridge-witness/wire"
	"github.com/pwang200/xbridge-witness/xchain"
)

// ChainType names the side of the bridge a listener watches.
type ChainType int

const (
	LockingChain ChainType = iota
	IssuingChain
)

// String names the chain side for logs.
func (c ChainType) String() string {
	if c == LockingChain {
		return "locking"
	}
	return "issuing"
}

// EventSink receives the normalized bridge events. The federator satisfies
// it; the listener only holds this narrow handle, never the federator
// itself.
type EventSink interface {
	Push(e federator.Event)
}

// Listener subscribes to the account-history transaction stream of its
// side's door account, filters and parses the pushed transactions, and
// emits typed bridge events.
type Listener struct {
	chainType ChainType
	bridge    xchain.BridgeSpec
	sink      EventSink
	logger    *log.Logger

	client *wire.Client

	// serializes processMessage; transport callbacks may overlap
	mtx sync.Mutex
}

// New builds a listener. Init must be called before any traffic flows;
// two-phase construction gives the listener a stable self-reference before
// the transport can call back into it.
func New(chainType ChainType, bridge xchain.BridgeSpec, sink EventSink, logger *log.Logger) *Listener {
	return &Listener{
		chainType: chainType,
		bridge:    bridge,
		sink:      sink,
		logger:    logger,
	}
}

// Init opens the wire client and subscribes to the door account stream. The
// subscription is replayed on every reconnect.
func (l *Listener) Init(endpoint string) {
	l.client = wire.NewClient(endpoint, l.onMessage, l.subscribe, l.logger)
	l.client.Start()
}

// Shutdown closes the transport.
func (l *Listener) Shutdown() {
	if l.client != nil {
		l.client.Shutdown()
	}
}

func (l *Listener) door() xchain.AccountID {
	if l.chainType == LockingChain {
		return l.bridge.LockingChainDoor
	}
	return l.bridge.IssuingChainDoor
}

func (l *Listener) subscribe() {
	params := map[string]interface{}{
		"account_history_tx_stream": map[string]interface{}{
			"account": l.door().String(),
		},
	}
	if _, err := l.client.Send("subscribe", params); err != nil {
		l.logger.Errorf("subscribing to %s door stream: %v", l.chainType, err)
	}
}

// StopHistoricalTxns tells the endpoint to stop replaying backfill
// transactions, once the bootstrap has what it needs.
func (l *Listener) StopHistoricalTxns() {
	params := map[string]interface{}{
		"account_history_tx_stream": map[string]interface{}{
			"account":              l.door().String(),
			"stop_history_tx_only": true,
		},
	}
	if _, err := l.client.Send("unsubscribe", params); err != nil {
		l.logger.Errorf("stopping %s door history stream: %v", l.chainType, err)
	}
}

// Send forwards a command frame on this chain's wire client. The federator
// uses it for attestation batch submission.
func (l *Listener) Send(cmd string, params map[string]interface{}) (uint32, error) {
	return l.client.Send(cmd, params)
}

// SendExpectReply forwards a command and registers a one-shot reply
// handler.
func (l *Listener) SendExpectReply(
	cmd string, params map[string]interface{}, onReply wire.ReplyHandler,
) (uint32, error) {
	return l.client.SendExpectReply(cmd, params, onReply)
}

// transaction types the bridge cares about
const (
	txTypeCommit        = "XChainCommit"
	txTypeClaim         = "XChainClaim"
	txTypeCreateAccount = "SidechainXChainAccountCreate"
)

type pushMessage struct {
	Validated              *bool           `json:"validated"`
	EngineResultCode       *int32          `json:"engine_result_code"`
	AccountHistoryTxIndex  *int32          `json:"account_history_tx_index"`
	AccountHistoryBoundary bool            `json:"account_history_boundary"`
	Meta                   json.RawMessage `json:"meta"`
	Type                   string          `json:"type"`
	LedgerIndex            *uint32         `json:"ledger_index"`
	Hash                   string          `json:"hash"`
	Transaction            json.RawMessage `json:"transaction"`
}

type pushTransaction struct {
	TransactionType          string          `json:"TransactionType"`
	XChainBridge             json.RawMessage `json:"XChainBridge"`
	Account                  string          `json:"Account"`
	Destination              string          `json:"Destination"`
	OtherChainAccount        string          `json:"OtherChainAccount"`
	Amount                   json.RawMessage `json:"Amount"`
	XChainClaimID            json.RawMessage `json:"XChainClaimID"`
	XChainAccountCreateCount json.RawMessage `json:"XChainAccountCreateCount"`
	SignatureReward          json.RawMessage `json:"SignatureReward"`
	Hash                     string          `json:"hash"`
	Sequence                 uint32          `json:"Sequence"`
}

type pushMeta struct {
	DeliveredAmount json.RawMessage   `json:"delivered_amount"`
	AffectedNodes   []json.RawMessage `json:"AffectedNodes"`
}

func (l *Listener) onMessage(raw json.RawMessage) {
	l.mtx.Lock()
	defer l.mtx.Unlock()
	l.processMessage(raw)
}

// processMessage runs the filter chain and, for surviving transactions,
// emits exactly one event. Filter rejections are uninteresting traffic, not
// errors.
func (l *Listener) processMessage(raw json.RawMessage) {
	var msg pushMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		l.logger.Warnf("%s: malformed push message: %v", l.chainType, err)
		return
	}

	if msg.Validated == nil || !*msg.Validated {
		l.logger.Debugf("%s: ignoring message: not validated", l.chainType)
		return
	}
	if msg.EngineResultCode == nil {
		l.logger.Debugf("%s: ignoring message: no engine result code", l.chainType)
		return
	}
	if msg.AccountHistoryTxIndex == nil {
		l.logger.Debugf("%s: ignoring message: no account history tx index", l.chainType)
		return
	}
	if len(msg.Meta) == 0 {
		l.logger.Debugf("%s: ignoring message: no tx meta", l.chainType)
		return
	}
	if msg.Type != "transaction" {
		l.logger.Debugf("%s: ignoring message: type %q", l.chainType, msg.Type)
		return
	}
	if len(msg.Transaction) == 0 {
		l.logger.Debugf("%s: ignoring message: no transaction", l.chainType)
		return
	}

	var txn pushTransaction
	if err := json.Unmarshal(msg.Transaction, &txn); err != nil {
		l.logger.Warnf("%s: malformed transaction: %v", l.chainType, err)
		return
	}
	switch txn.TransactionType {
	case txTypeCommit, txTypeClaim, txTypeCreateAccount:
	default:
		l.logger.Debugf("%s: ignoring message: transaction type %q", l.chainType, txn.TransactionType)
		return
	}

	if len(txn.XChainBridge) == 0 {
		l.logger.Debugf("%s: ignoring message: missing bridge", l.chainType)
		return
	}
	txnBridge, err := xchain.ParseBridgeJSON(txn.XChainBridge)
	if err != nil {
		l.logger.Debugf("%s: ignoring message: %v", l.chainType, err)
		return
	}
	if txnBridge != l.bridge {
		l.logger.Debugf("%s: ignoring message: bridge mismatch", l.chainType)
		return
	}

	txResult := xchain.TxResult(*msg.EngineResultCode)
	rpcOrder := *msg.AccountHistoryTxIndex

	hashStr := txn.Hash
	if hashStr == "" {
		hashStr = msg.Hash
	}
	if len(hashStr) != 64 {
		l.logger.Warnf("%s: ignoring message: no tx hash", l.chainType)
		return
	}
	txHash := common.HexToHash(hashStr)

	if msg.LedgerIndex == nil {
		l.logger.Warnf("%s: ignoring message: no ledger index", l.chainType)
		return
	}
	ledgerSeq := *msg.LedgerIndex

	var meta pushMeta
	if err := json.Unmarshal(msg.Meta, &meta); err != nil {
		l.logger.Warnf("%s: malformed meta: %v", l.chainType, err)
		return
	}

	// prefer the metadata delivered amount, fall back to the Amount field
	var deliveredAmt *xchain.Amount
	if amtRaw := meta.DeliveredAmount; len(amtRaw) > 0 {
		if amt, err := xchain.ParseAmountJSON(amtRaw); err == nil {
			deliveredAmt = &amt
		}
	}
	if deliveredAmt == nil && len(txn.Amount) > 0 {
		if amt, err := xchain.ParseAmountJSON(txn.Amount); err == nil {
			deliveredAmt = &amt
		}
	}

	src, err := xchain.ParseAccountID(txn.Account)
	if err != nil {
		l.logger.Warnf("%s: ignoring message: no source account: %v", l.chainType, err)
		return
	}

	// the destination field differs per transaction type
	var dst *xchain.AccountID
	dstField := txn.Destination
	if txn.TransactionType == txTypeCommit {
		dstField = txn.OtherChainAccount
	}
	if dstField != "" {
		if acct, err := xchain.ParseAccountID(dstField); err == nil {
			dst = &acct
		}
	}

	switch txn.TransactionType {
	case txTypeClaim:
		claimID, ok := parseUint64(txn.XChainClaimID)
		if !ok {
			l.logger.Warnf("%s: ignoring claim: no claim id", l.chainType)
			return
		}
		if dst == nil {
			l.logger.Warnf("%s: ignoring claim: no destination", l.chainType)
			return
		}
		// the triggering transfer came from the other chain
		dir := xchain.LockingToIssuing
		if l.chainType == LockingChain {
			dir = xchain.IssuingToLocking
		}
		l.pushEvent(federator.XChainTransferResult{
			Direction:       dir,
			Destination:     *dst,
			DeliveredAmount: deliveredAmt,
			ClaimID:         claimID,
			LedgerSeq:       ledgerSeq,
			TxHash:          txHash,
			TxResult:        txResult,
			RPCOrder:        rpcOrder,
		})

	case txTypeCommit:
		claimID, ok := parseUint64(txn.XChainClaimID)
		if !ok {
			l.logger.Warnf("%s: ignoring commit: no claim id", l.chainType)
			return
		}
		l.pushEvent(federator.XChainCommitDetected{
			Direction:         l.sourceDirection(),
			SendingAccount:    src,
			Bridge:            txnBridge,
			DeliveredAmount:   deliveredAmt,
			ClaimID:           claimID,
			OtherChainAccount: dst,
			LedgerSeq:         ledgerSeq,
			TxHash:            txHash,
			TxResult:          txResult,
			RPCOrder:          rpcOrder,
			LedgerBoundary:    msg.AccountHistoryBoundary,
		})

	case txTypeCreateAccount:
		createCount, ok := l.createCount(&txn, &meta)
		if !ok {
			l.logger.Warnf("%s: ignoring account create: no create count", l.chainType)
			return
		}
		if len(txn.SignatureReward) == 0 {
			l.logger.Warnf("%s: ignoring account create: no signature reward", l.chainType)
			return
		}
		rewardAmt, err := xchain.ParseAmountJSON(txn.SignatureReward)
		if err != nil {
			l.logger.Warnf("%s: ignoring account create: bad signature reward: %v", l.chainType, err)
			return
		}
		if dst == nil {
			l.logger.Warnf("%s: ignoring account create: no destination", l.chainType)
			return
		}
		l.pushEvent(federator.XChainAccountCreateCommitDetected{
			Direction:       l.sourceDirection(),
			SendingAccount:  src,
			Bridge:          txnBridge,
			DeliveredAmount: deliveredAmt,
			RewardAmount:    rewardAmt,
			CreateCount:     createCount,
			Destination:     *dst,
			LedgerSeq:       ledgerSeq,
			TxHash:          txHash,
			TxResult:        txResult,
			RPCOrder:        rpcOrder,
			LedgerBoundary:  msg.AccountHistoryBoundary,
		})
	}
}

// sourceDirection is the direction of a transfer whose source chain is the
// observed one.
func (l *Listener) sourceDirection() xchain.Direction {
	if l.chainType == LockingChain {
		return xchain.LockingToIssuing
	}
	return xchain.IssuingToLocking
}

func (l *Listener) pushEvent(e federator.Event) {
	l.sink.Push(e)
}

// createCount comes from the bridge ledger object in the transaction
// metadata; the transaction field is a fallback for endpoints that surface
// it there.
func (l *Listener) createCount(txn *pushTransaction, meta *pushMeta) (uint64, bool) {
	type nodeFields struct {
		LedgerEntryType          string          `json:"LedgerEntryType"`
		XChainAccountCreateCount json.RawMessage `json:"XChainAccountCreateCount"`
	}
	type affectedNode struct {
		CreatedNode *struct {
			nodeFields
			NewFields *nodeFields `json:"NewFields"`
		} `json:"CreatedNode"`
		ModifiedNode *struct {
			nodeFields
			FinalFields *nodeFields `json:"FinalFields"`
		} `json:"ModifiedNode"`
	}
	for _, rawNode := range meta.AffectedNodes {
		var node affectedNode
		if err := json.Unmarshal(rawNode, &node); err != nil {
			continue
		}
		var fields *nodeFields
		switch {
		case node.CreatedNode != nil && node.CreatedNode.NewFields != nil:
			fields = node.CreatedNode.NewFields
			fields.LedgerEntryType = node.CreatedNode.LedgerEntryType
		case node.ModifiedNode != nil && node.ModifiedNode.FinalFields != nil:
			fields = node.ModifiedNode.FinalFields
			fields.LedgerEntryType = node.ModifiedNode.LedgerEntryType
		default:
			continue
		}
		if fields.LedgerEntryType != "Bridge" {
			continue
		}
		if count, ok := parseUint64(fields.XChainAccountCreateCount); ok {
			return count, true
		}
	}
	return parseUint64(txn.XChainAccountCreateCount)
}

func parseUint64(raw json.RawMessage) (uint64, bool) {
	return xchain.ParseUint64JSON(raw)
}
