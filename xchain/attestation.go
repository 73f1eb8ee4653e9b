package xchain

import (
	"encoding/hex"
	"strconv"
	"strings"
)

// AttestationClaim is one witness's signed statement that a cross-chain
// value transfer was observed and validated on its source chain.
type AttestationClaim struct {
	PublicKey           []byte
	Signature           []byte
	SendingAccount      AccountID
	SendingAmount       Amount
	RewardAccount       AccountID
	WasLockingChainSend bool
	ClaimID             uint64
	Destination         *AccountID
}

// ClaimMessage is the canonical byte string signed for a claim attestation.
// Field order is fixed by the chains' attestation definition.
func ClaimMessage(
	bridge BridgeSpec,
	sendingAccount AccountID,
	sendingAmount Amount,
	rewardAccount AccountID,
	wasLockingChainSend bool,
	claimID uint64,
	destination *AccountID,
) []byte {
	var s Serializer
	s.WriteBridge(bridge)
	s.WriteAccount(sendingAccount)
	s.WriteAmount(sendingAmount)
	s.WriteAccount(rewardAccount)
	s.WriteBool(wasLockingChainSend)
	s.WriteUint64(claimID)
	if destination != nil {
		s.WriteAccount(*destination)
	}
	return s.Bytes()
}

// Message rebuilds the canonical signed bytes from the attestation fields.
func (c *AttestationClaim) Message(bridge BridgeSpec) []byte {
	return ClaimMessage(
		bridge,
		c.SendingAccount,
		c.SendingAmount,
		c.RewardAccount,
		c.WasLockingChainSend,
		c.ClaimID,
		c.Destination,
	)
}

// Verify checks the stored signature against the canonical message.
func (c *AttestationClaim) Verify(bridge BridgeSpec) bool {
	return Verify(c.PublicKey, c.Message(bridge), c.Signature)
}

// ToJSON renders the batch-element wire form.
func (c *AttestationClaim) ToJSON() map[string]interface{} {
	elem := map[string]interface{}{
		"Account":                  c.SendingAccount.String(),
		"Amount":                   c.SendingAmount,
		"AttestationRewardAccount": c.RewardAccount.String(),
		"PublicKey":                strings.ToUpper(hex.EncodeToString(c.PublicKey)),
		"Signature":                strings.ToUpper(hex.EncodeToString(c.Signature)),
		"WasLockingChainSend":      boolInt(c.WasLockingChainSend),
		"XChainClaimID":            strconv.FormatUint(c.ClaimID, 10),
	}
	if c.Destination != nil {
		elem["Destination"] = c.Destination.String()
	}
	return map[string]interface{}{"XChainClaimAttestationBatchElement": elem}
}

// AttestationCreateAccount attests a first-time destination account creation
// with its signature reward.
type AttestationCreateAccount struct {
	PublicKey           []byte
	Signature           []byte
	SendingAccount      AccountID
	SendingAmount       Amount
	RewardAmount        Amount
	RewardAccount       AccountID
	WasLockingChainSend bool
	CreateCount         uint64
	Destination         AccountID
}

// CreateAccountMessage is the canonical byte string signed for an
// account-create attestation.
func CreateAccountMessage(
	bridge BridgeSpec,
	sendingAccount AccountID,
	sendingAmount Amount,
	rewardAmount Amount,
	rewardAccount AccountID,
	wasLockingChainSend bool,
	createCount uint64,
	destination AccountID,
) []byte {
	var s Serializer
	s.WriteBridge(bridge)
	s.WriteAccount(sendingAccount)
	s.WriteAmount(sendingAmount)
	s.WriteAmount(rewardAmount)
	s.WriteAccount(rewardAccount)
	s.WriteBool(wasLockingChainSend)
	s.WriteUint64(createCount)
	s.WriteAccount(destination)
	return s.Bytes()
}

// Message rebuilds the canonical signed bytes from the attestation fields.
func (c *AttestationCreateAccount) Message(bridge BridgeSpec) []byte {
	return CreateAccountMessage(
		bridge,
		c.SendingAccount,
		c.SendingAmount,
		c.RewardAmount,
		c.RewardAccount,
		c.WasLockingChainSend,
		c.CreateCount,
		c.Destination,
	)
}

// Verify checks the stored signature against the canonical message.
func (c *AttestationCreateAccount) Verify(bridge BridgeSpec) bool {
	return Verify(c.PublicKey, c.Message(bridge), c.Signature)
}

// ToJSON renders the batch-element wire form.
func (c *AttestationCreateAccount) ToJSON() map[string]interface{} {
	elem := map[string]interface{}{
		"Account":                  c.SendingAccount.String(),
		"Amount":                   c.SendingAmount,
		"AttestationRewardAccount": c.RewardAccount.String(),
		"Destination":              c.Destination.String(),
		"PublicKey":                strings.ToUpper(hex.EncodeToString(c.PublicKey)),
		"Signature":                strings.ToUpper(hex.EncodeToString(c.Signature)),
		"SignatureReward":          c.RewardAmount,
		"WasLockingChainSend":      boolInt(c.WasLockingChainSend),
		"XChainAccountCreateCount": strconv.FormatUint(c.CreateCount, 10),
	}
	return map[string]interface{}{"XChainCreateAccountAttestationBatchElement": elem}
}

// AttestationBatch is the per-submission accumulator: all elements reference
// the same bridge.
type AttestationBatch struct {
	Bridge         BridgeSpec
	Claims         []AttestationClaim
	CreateAccounts []AttestationCreateAccount
}

// Size is the number of elements in the batch.
func (b *AttestationBatch) Size() int {
	return len(b.Claims) + len(b.CreateAccounts)
}

// ToJSON renders the XChainAttestationBatch wire object, as carried in a
// submission transaction or an RPC reply.
func (b *AttestationBatch) ToJSON() map[string]interface{} {
	claims := make([]interface{}, 0, len(b.Claims))
	for i := range b.Claims {
		claims = append(claims, b.Claims[i].ToJSON())
	}
	creates := make([]interface{}, 0, len(b.CreateAccounts))
	for i := range b.CreateAccounts {
		creates = append(creates, b.CreateAccounts[i].ToJSON())
	}
	return map[string]interface{}{
		"XChainBridge":                        b.Bridge.ToJSON(),
		"XChainClaimAttestationBatch":         claims,
		"XChainCreateAccountAttestationBatch": creates,
	}
}

func boolInt(v bool) int {
	if v {
		return 1
	}
	return 0
}
