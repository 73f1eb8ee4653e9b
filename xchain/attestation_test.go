package xchain

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func testBridge(t *testing.T) BridgeSpec {
	t.Helper()
	var lockingDoor, issuingDoor AccountID
	lockingDoor[0] = 0x01
	issuingDoor[0] = 0x02
	return BridgeSpec{
		LockingChainDoor:  lockingDoor,
		LockingChainIssue: Issue{Currency: "XRP"},
		IssuingChainDoor:  issuingDoor,
		IssuingChainIssue: Issue{Currency: "XRP"},
	}
}

func testKey(t *testing.T, keyType KeyType) *SigningKey {
	t.Helper()
	key, err := NewSigningKey(keyType, "deadbeefdeadbeefdeadbeefdeadbeef")
	require.NoError(t, err)
	return key
}

func TestClaimMessageDeterministic(t *testing.T) {
	bridge := testBridge(t)
	var sender, reward AccountID
	sender[1] = 0x11
	reward[1] = 0x22
	amt := NewNativeAmount(10000000)

	m1 := ClaimMessage(bridge, sender, amt, reward, true, 7, nil)
	m2 := ClaimMessage(bridge, sender, amt, reward, true, 7, nil)
	require.Equal(t, m1, m2)

	// any field change must change the message
	m3 := ClaimMessage(bridge, sender, amt, reward, true, 8, nil)
	require.NotEqual(t, m1, m3)
	m4 := ClaimMessage(bridge, sender, amt, reward, false, 7, nil)
	require.NotEqual(t, m1, m4)
	var dst AccountID
	dst[2] = 0x33
	m5 := ClaimMessage(bridge, sender, amt, reward, true, 7, &dst)
	require.NotEqual(t, m1, m5)
}

func TestClaimAttestationSignVerify(t *testing.T) {
	for _, keyType := range []KeyType{KeyTypeSecp256k1, KeyTypeEd25519} {
		t.Run(string(keyType), func(t *testing.T) {
			bridge := testBridge(t)
			key := testKey(t, keyType)
			var sender, reward AccountID
			sender[1] = 0x11
			reward[1] = 0x22
			amt := NewNativeAmount(10000000)

			msg := ClaimMessage(bridge, sender, amt, reward, true, 7, nil)
			sig, err := key.Sign(msg)
			require.NoError(t, err)

			claim := AttestationClaim{
				PublicKey:           key.Public(),
				Signature:           sig,
				SendingAccount:      sender,
				SendingAmount:       amt,
				RewardAccount:       reward,
				WasLockingChainSend: true,
				ClaimID:             7,
			}
			require.True(t, claim.Verify(bridge))

			// verification binds the claim id
			claim.ClaimID = 8
			require.False(t, claim.Verify(bridge))
		})
	}
}

func TestCreateAccountAttestationSignVerify(t *testing.T) {
	bridge := testBridge(t)
	key := testKey(t, KeyTypeSecp256k1)
	var sender, reward, dst AccountID
	sender[1] = 0x11
	reward[1] = 0x22
	dst[1] = 0x33
	amt := NewNativeAmount(20000000)
	rewardAmt := NewNativeAmount(1000)

	msg := CreateAccountMessage(bridge, sender, amt, rewardAmt, reward, false, 3, dst)
	sig, err := key.Sign(msg)
	require.NoError(t, err)

	create := AttestationCreateAccount{
		PublicKey:           key.Public(),
		Signature:           sig,
		SendingAccount:      sender,
		SendingAmount:       amt,
		RewardAmount:        rewardAmt,
		RewardAccount:       reward,
		WasLockingChainSend: false,
		CreateCount:         3,
		Destination:         dst,
	}
	require.True(t, create.Verify(bridge))

	create.RewardAmount = NewNativeAmount(2000)
	require.False(t, create.Verify(bridge))
}

func TestAttestationBatchToJSON(t *testing.T) {
	bridge := testBridge(t)
	key := testKey(t, KeyTypeSecp256k1)
	var sender, reward AccountID
	sender[1] = 0x11
	reward[1] = 0x22
	amt := NewNativeAmount(10000000)
	sig, err := key.Sign(ClaimMessage(bridge, sender, amt, reward, true, 7, nil))
	require.NoError(t, err)

	batch := AttestationBatch{
		Bridge: bridge,
		Claims: []AttestationClaim{{
			PublicKey:           key.Public(),
			Signature:           sig,
			SendingAccount:      sender,
			SendingAmount:       amt,
			RewardAccount:       reward,
			WasLockingChainSend: true,
			ClaimID:             7,
		}},
	}
	require.Equal(t, 1, batch.Size())

	obj := batch.ToJSON()
	require.Contains(t, obj, "XChainBridge")
	claims, ok := obj["XChainClaimAttestationBatch"].([]interface{})
	require.True(t, ok)
	require.Len(t, claims, 1)
	creates, ok := obj["XChainCreateAccountAttestationBatch"].([]interface{})
	require.True(t, ok)
	require.Empty(t, creates)
}

func TestSigningKeyAccount(t *testing.T) {
	key := testKey(t, KeyTypeSecp256k1)
	acct := key.Account()
	require.False(t, acct.IsZero())

	// stable derivation
	again := testKey(t, KeyTypeSecp256k1)
	require.Equal(t, acct, again.Account())
}
