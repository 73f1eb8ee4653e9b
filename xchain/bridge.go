package xchain

import (
	"encoding/json"
	"errors"
	"fmt"
)

// BridgeSpec is the immutable 4-tuple defining one cross-chain corridor: a
// door account and an issued asset on each side. A daemon instance is bound
// to exactly one bridge.
type BridgeSpec struct {
	LockingChainDoor  AccountID `json:"LockingChainDoor" mapstructure:"LockingChainDoor"`
	LockingChainIssue Issue     `json:"LockingChainIssue" mapstructure:"LockingChainIssue"`
	IssuingChainDoor  AccountID `json:"IssuingChainDoor" mapstructure:"IssuingChainDoor"`
	IssuingChainIssue Issue     `json:"IssuingChainIssue" mapstructure:"IssuingChainIssue"`
}

var ErrBadBridge = errors.New("malformed bridge")

// ParseBridgeJSON decodes the wire form of a bridge, as carried in the
// XChainBridge transaction field and in RPC requests.
func ParseBridgeJSON(data json.RawMessage) (BridgeSpec, error) {
	var raw struct {
		LockingChainDoor  string          `json:"LockingChainDoor"`
		LockingChainIssue json.RawMessage `json:"LockingChainIssue"`
		IssuingChainDoor  string          `json:"IssuingChainDoor"`
		IssuingChainIssue json.RawMessage `json:"IssuingChainIssue"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return BridgeSpec{}, fmt.Errorf("%w: %v", ErrBadBridge, err)
	}
	var (
		b   BridgeSpec
		err error
	)
	if b.LockingChainDoor, err = ParseAccountID(raw.LockingChainDoor); err != nil {
		return BridgeSpec{}, fmt.Errorf("%w: locking door: %v", ErrBadBridge, err)
	}
	if b.IssuingChainDoor, err = ParseAccountID(raw.IssuingChainDoor); err != nil {
		return BridgeSpec{}, fmt.Errorf("%w: issuing door: %v", ErrBadBridge, err)
	}
	if err = json.Unmarshal(raw.LockingChainIssue, &b.LockingChainIssue); err != nil {
		return BridgeSpec{}, fmt.Errorf("%w: locking issue: %v", ErrBadBridge, err)
	}
	if err = json.Unmarshal(raw.IssuingChainIssue, &b.IssuingChainIssue); err != nil {
		return BridgeSpec{}, fmt.Errorf("%w: issuing issue: %v", ErrBadBridge, err)
	}
	return b, nil
}

// Serialize returns the canonical binary form, used both for signing and for
// the bridge blob column.
func (b BridgeSpec) Serialize() []byte {
	var s Serializer
	s.WriteBridge(b)
	return s.Bytes()
}

// ToJSON renders the wire object form.
func (b BridgeSpec) ToJSON() map[string]interface{} {
	return map[string]interface{}{
		"LockingChainDoor":  b.LockingChainDoor.String(),
		"LockingChainIssue": b.LockingChainIssue,
		"IssuingChainDoor":  b.IssuingChainDoor.String(),
		"IssuingChainIssue": b.IssuingChainIssue,
	}
}
