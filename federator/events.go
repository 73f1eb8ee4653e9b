package federator

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/pwang200/xbridge-witness/xchain"
)

// Event is the closed union of everything the federator loop consumes.
// Dispatch is a type switch in onEvent; listeners construct exactly one of
// the concrete shapes per observed transaction.
type Event interface {
	isEvent()
}

// XChainCommitDetected is a user-initiated cross-chain deposit observed on
// the source side of a transfer.
type XChainCommitDetected struct {
	Direction       xchain.Direction
	SendingAccount  xchain.AccountID
	Bridge          xchain.BridgeSpec
	DeliveredAmount *xchain.Amount
	ClaimID         uint64
	// Destination on the other chain, if the sender pinned one.
	OtherChainAccount *xchain.AccountID

	LedgerSeq      uint32
	TxHash         common.Hash
	TxResult       xchain.TxResult
	RPCOrder       int32
	LedgerBoundary bool
}

// XChainAccountCreateCommitDetected is a commit that also creates the
// destination account, carrying the signature reward.
type XChainAccountCreateCommitDetected struct {
	Direction       xchain.Direction
	SendingAccount  xchain.AccountID
	Bridge          xchain.BridgeSpec
	DeliveredAmount *xchain.Amount
	RewardAmount    xchain.Amount
	CreateCount     uint64
	Destination     xchain.AccountID

	LedgerSeq      uint32
	TxHash         common.Hash
	TxResult       xchain.TxResult
	RPCOrder       int32
	LedgerBoundary bool
}

// XChainTransferResult is the door account's own claim transaction on the
// destination chain; it reconciles whether a previously attested transfer
// completed. Direction is the direction of the triggering transfer, i.e. it
// points from the other chain to the observing one.
type XChainTransferResult struct {
	Direction       xchain.Direction
	Destination     xchain.AccountID
	DeliveredAmount *xchain.Amount
	ClaimID         uint64

	LedgerSeq uint32
	TxHash    common.Hash
	TxResult  xchain.TxResult
	RPCOrder  int32
}

// HeartbeatTimer is injected by the external scheduler; it flushes pending
// submission batches.
type HeartbeatTimer struct{}

func (XChainCommitDetected) isEvent()              {}
func (XChainAccountCreateCommitDetected) isEvent() {}
func (XChainTransferResult) isEvent()              {}
func (HeartbeatTimer) isEvent()                    {}
