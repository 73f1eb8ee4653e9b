package chainlistener

import (
	"encoding/json"
	"fmt"
	"sync"
	"testing"

	"github.com/pwang200/xbridge-witness/federator"
	"github.com/pwang200/xbridge-witness/log"
	"github.com/pwang200/xbridge-witness/xchain"
	"github.com/stretchr/testify/require"
)

type captureSink struct {
	mtx    sync.Mutex
	events []federator.Event
}

func (c *captureSink) Push(e federator.Event) {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	c.events = append(c.events, e)
}

func (c *captureSink) all() []federator.Event {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	return append([]federator.Event(nil), c.events...)
}

func testBridge() xchain.BridgeSpec {
	var lockingDoor, issuingDoor xchain.AccountID
	lockingDoor[0] = 0x01
	issuingDoor[0] = 0x02
	return xchain.BridgeSpec{
		LockingChainDoor:  lockingDoor,
		LockingChainIssue: xchain.Issue{Currency: "XRP"},
		IssuingChainDoor:  issuingDoor,
		IssuingChainIssue: xchain.Issue{Currency: "XRP"},
	}
}

func testAccount(n byte) xchain.AccountID {
	var a xchain.AccountID
	a[1] = n
	return a
}

func newTestListener(t *testing.T, chainType ChainType) (*Listener, *captureSink) {
	t.Helper()
	sink := &captureSink{}
	l := New(chainType, testBridge(), sink, log.WithFields("module", "listener-test"))
	return l, sink
}

func bridgeJSON(b xchain.BridgeSpec) map[string]interface{} {
	return map[string]interface{}{
		"LockingChainDoor":  b.LockingChainDoor.String(),
		"LockingChainIssue": map[string]string{"currency": "XRP"},
		"IssuingChainDoor":  b.IssuingChainDoor.String(),
		"IssuingChainIssue": map[string]string{"currency": "XRP"},
	}
}

func commitMessage(t *testing.T) map[string]interface{} {
	t.Helper()
	return map[string]interface{}{
		"validated":                true,
		"engine_result_code":       0,
		"account_history_tx_index": 5,
		"ledger_index":             1000,
		"type":                     "transaction",
		"meta": map[string]interface{}{
			"delivered_amount": "10000000",
		},
		"transaction": map[string]interface{}{
			"TransactionType":   "XChainCommit",
			"XChainBridge":      bridgeJSON(testBridge()),
			"Account":           testAccount(0x51).String(),
			"OtherChainAccount": testAccount(0xD1).String(),
			"Amount":            "10000000",
			"XChainClaimID":     "7",
			"hash":              "00112233445566778899AABBCCDDEEFF00112233445566778899AABBCCDDEEFF",
			"Sequence":          1,
		},
	}
}

func push(t *testing.T, l *Listener, msg map[string]interface{}) {
	t.Helper()
	raw, err := json.Marshal(msg)
	require.NoError(t, err)
	l.onMessage(raw)
}

// S1: a commit on the locking chain becomes a lockingToIssuing commit event.
func TestProcessCommit(t *testing.T) {
	l, sink := newTestListener(t, LockingChain)
	push(t, l, commitMessage(t))

	events := sink.all()
	require.Len(t, events, 1)
	e, ok := events[0].(federator.XChainCommitDetected)
	require.True(t, ok)
	require.Equal(t, xchain.LockingToIssuing, e.Direction)
	require.Equal(t, uint64(7), e.ClaimID)
	require.Equal(t, testAccount(0x51), e.SendingAccount)
	require.NotNil(t, e.OtherChainAccount)
	require.Equal(t, testAccount(0xD1), *e.OtherChainAccount)
	require.NotNil(t, e.DeliveredAmount)
	require.Equal(t, uint64(10000000), e.DeliveredAmount.Drops)
	require.Equal(t, uint32(1000), e.LedgerSeq)
	require.Equal(t, int32(5), e.RPCOrder)
	require.True(t, e.TxResult.IsSuccess())
}

// The same commit observed on the issuing chain flows the other way.
func TestProcessCommitIssuingSide(t *testing.T) {
	l, sink := newTestListener(t, IssuingChain)
	push(t, l, commitMessage(t))

	events := sink.all()
	require.Len(t, events, 1)
	e, ok := events[0].(federator.XChainCommitDetected)
	require.True(t, ok)
	require.Equal(t, xchain.IssuingToLocking, e.Direction)
}

func TestFilterChainDrops(t *testing.T) {
	mutations := map[string]func(msg map[string]interface{}){
		"not validated":     func(m map[string]interface{}) { m["validated"] = false },
		"missing validated": func(m map[string]interface{}) { delete(m, "validated") },
		"missing ter":       func(m map[string]interface{}) { delete(m, "engine_result_code") },
		"missing history":   func(m map[string]interface{}) { delete(m, "account_history_tx_index") },
		"missing meta":      func(m map[string]interface{}) { delete(m, "meta") },
		"wrong type":        func(m map[string]interface{}) { m["type"] = "ledgerClosed" },
		"missing txn":       func(m map[string]interface{}) { delete(m, "transaction") },
		"unrelated txn type": func(m map[string]interface{}) {
			m["transaction"].(map[string]interface{})["TransactionType"] = "Payment"
		},
		"missing bridge": func(m map[string]interface{}) {
			delete(m["transaction"].(map[string]interface{}), "XChainBridge")
		},
		"bridge mismatch": func(m map[string]interface{}) {
			other := testBridge()
			other.LockingChainDoor = testAccount(0x99)
			m["transaction"].(map[string]interface{})["XChainBridge"] = bridgeJSON(other)
		},
	}
	for name, mutate := range mutations {
		t.Run(name, func(t *testing.T) {
			l, sink := newTestListener(t, LockingChain)
			msg := commitMessage(t)
			mutate(msg)
			push(t, l, msg)
			require.Empty(t, sink.all())
		})
	}
}

// A claim transaction reconciles a transfer from the other chain.
func TestProcessClaim(t *testing.T) {
	l, sink := newTestListener(t, IssuingChain)
	msg := commitMessage(t)
	txn := msg["transaction"].(map[string]interface{})
	txn["TransactionType"] = "XChainClaim"
	txn["Destination"] = testAccount(0xD1).String()
	delete(txn, "OtherChainAccount")
	push(t, l, msg)

	events := sink.all()
	require.Len(t, events, 1)
	e, ok := events[0].(federator.XChainTransferResult)
	require.True(t, ok)
	// the triggering transfer came from the locking chain
	require.Equal(t, xchain.LockingToIssuing, e.Direction)
	require.Equal(t, uint64(7), e.ClaimID)
	require.Equal(t, testAccount(0xD1), e.Destination)
}

// S4: an account create carries the reward amount, the mandatory
// destination and the create count mined out of the metadata.
func TestProcessAccountCreate(t *testing.T) {
	l, sink := newTestListener(t, LockingChain)
	msg := commitMessage(t)
	txn := msg["transaction"].(map[string]interface{})
	txn["TransactionType"] = "SidechainXChainAccountCreate"
	txn["Destination"] = testAccount(0xE1).String()
	txn["SignatureReward"] = "1000"
	delete(txn, "OtherChainAccount")
	delete(txn, "XChainClaimID")
	msg["meta"].(map[string]interface{})["AffectedNodes"] = []interface{}{
		map[string]interface{}{
			"ModifiedNode": map[string]interface{}{
				"LedgerEntryType": "Bridge",
				"FinalFields": map[string]interface{}{
					"XChainAccountCreateCount": "3",
				},
			},
		},
	}
	push(t, l, msg)

	events := sink.all()
	require.Len(t, events, 1)
	e, ok := events[0].(federator.XChainAccountCreateCommitDetected)
	require.True(t, ok)
	require.Equal(t, xchain.LockingToIssuing, e.Direction)
	require.Equal(t, uint64(3), e.CreateCount)
	require.Equal(t, testAccount(0xE1), e.Destination)
	require.Equal(t, uint64(1000), e.RewardAmount.Drops)
}

// Without a create count anywhere, the account create is dropped.
func TestProcessAccountCreateNoCount(t *testing.T) {
	l, sink := newTestListener(t, LockingChain)
	msg := commitMessage(t)
	txn := msg["transaction"].(map[string]interface{})
	txn["TransactionType"] = "SidechainXChainAccountCreate"
	txn["Destination"] = testAccount(0xE1).String()
	txn["SignatureReward"] = "1000"
	delete(txn, "XChainClaimID")
	push(t, l, msg)
	require.Empty(t, sink.all())
}

// Backfill messages (negative history index) still parse; ordering is the
// federator's concern.
func TestProcessBackfillCommit(t *testing.T) {
	l, sink := newTestListener(t, LockingChain)
	msg := commitMessage(t)
	msg["account_history_tx_index"] = -3
	push(t, l, msg)

	events := sink.all()
	require.Len(t, events, 1)
	e := events[0].(federator.XChainCommitDetected)
	require.Equal(t, int32(-3), e.RPCOrder)
}

// The delivered amount prefers the metadata over the Amount field.
func TestDeliveredAmountPreference(t *testing.T) {
	l, sink := newTestListener(t, LockingChain)
	msg := commitMessage(t)
	msg["meta"].(map[string]interface{})["delivered_amount"] = "9999999"
	push(t, l, msg)

	events := sink.all()
	require.Len(t, events, 1)
	e := events[0].(federator.XChainCommitDetected)
	require.Equal(t, uint64(9999999), e.DeliveredAmount.Drops)
}

func TestParseUint64Forms(t *testing.T) {
	for _, tc := range []struct {
		raw  string
		want uint64
		ok   bool
	}{
		{`"7"`, 7, true},
		{`7`, 7, true},
		{`"0A"`, 10, true},
		{`"x"`, 0, false},
		{``, 0, false},
	} {
		got, ok := parseUint64(json.RawMessage(tc.raw))
		require.Equal(t, tc.ok, ok, fmt.Sprintf("raw %q", tc.raw))
		if ok {
			require.Equal(t, tc.want, got)
		}
	}
}
