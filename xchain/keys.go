package xchain

import (
	"crypto/ed25519"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/crypto"
	"golang.org/x/crypto/ripemd160" //nolint:staticcheck
)

// KeyType selects the signature scheme of the witness signing key.
type KeyType string

const (
	KeyTypeSecp256k1 KeyType = "secp256k1"
	KeyTypeEd25519   KeyType = "ed25519"
)

// ed25519 public key blobs carry this prefix byte on the chain.
const ed25519Prefix = 0xED

var (
	ErrBadKeyType = errors.New("unknown key type")
	ErrBadSeed    = errors.New("malformed signing key seed")
	ErrSign       = errors.New("signing failed")
)

// ParseKeyType accepts the config names; empty defaults to secp256k1 like
// the chains do.
func ParseKeyType(s string) (KeyType, error) {
	switch s {
	case "", string(KeyTypeSecp256k1):
		return KeyTypeSecp256k1, nil
	case string(KeyTypeEd25519):
		return KeyTypeEd25519, nil
	}
	return "", fmt.Errorf("%w: %q", ErrBadKeyType, s)
}

// Sha512Half is the chain's message digest: the first 256 bits of SHA-512.
func Sha512Half(data ...[]byte) [32]byte {
	h := sha512.New()
	for _, d := range data {
		h.Write(d)
	}
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

// SigningKey holds the witness signing key pair for one of the supported
// schemes.
type SigningKey struct {
	keyType KeyType
	ed      ed25519.PrivateKey
	secpRaw []byte
	public  []byte
}

// NewSigningKey derives a key pair from the configured hex seed. The seed is
// stretched with the chain's digest so short seeds still produce full-width
// scalars.
func NewSigningKey(keyType KeyType, seedHex string) (*SigningKey, error) {
	seed, err := hex.DecodeString(seedHex)
	if err != nil || len(seed) == 0 {
		return nil, fmt.Errorf("%w: want hex bytes", ErrBadSeed)
	}
	material := Sha512Half(seed)
	k := &SigningKey{keyType: keyType}
	switch keyType {
	case KeyTypeEd25519:
		k.ed = ed25519.NewKeyFromSeed(material[:])
		pub := k.ed.Public().(ed25519.PublicKey)
		k.public = append([]byte{ed25519Prefix}, pub...)
	case KeyTypeSecp256k1:
		priv, err := crypto.ToECDSA(material[:])
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrBadSeed, err)
		}
		k.secpRaw = crypto.FromECDSA(priv)
		k.public = crypto.CompressPubkey(&priv.PublicKey)
	default:
		return nil, fmt.Errorf("%w: %q", ErrBadKeyType, keyType)
	}
	return k, nil
}

// Public returns the public key blob embedded in attestations.
func (k *SigningKey) Public() []byte {
	return k.public
}

// Account returns the account id derived from the signing public key.
// Attestation batch submissions do not use it; they are paid from the
// configured submit account.
func (k *SigningKey) Account() AccountID {
	var a AccountID
	first := sha256.Sum256(k.public)
	h := ripemd160.New()
	h.Write(first[:])
	copy(a[:], h.Sum(nil))
	return a
}

// Sign signs the canonical message bytes and returns the signature blob.
func (k *SigningKey) Sign(message []byte) ([]byte, error) {
	switch k.keyType {
	case KeyTypeEd25519:
		return ed25519.Sign(k.ed, message), nil
	case KeyTypeSecp256k1:
		digest := Sha512Half(message)
		priv, err := crypto.ToECDSA(k.secpRaw)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrSign, err)
		}
		sig, err := crypto.Sign(digest[:], priv)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrSign, err)
		}
		return sig, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrBadKeyType, k.keyType)
}

// Verify checks a signature blob produced by Sign against a public key blob.
func Verify(publicKey, message, sig []byte) bool {
	if len(publicKey) == ed25519.PublicKeySize+1 && publicKey[0] == ed25519Prefix {
		return ed25519.Verify(ed25519.PublicKey(publicKey[1:]), message, sig)
	}
	if len(sig) != crypto.SignatureLength {
		return false
	}
	digest := Sha512Half(message)
	// VerifySignature wants the signature without the recovery id
	return crypto.VerifySignature(publicKey, digest[:], sig[:crypto.SignatureLength-1])
}
