package xchain

import (
	"bytes"
	"crypto/sha256"
	"errors"
	"fmt"
	"math/big"
)

// AccountID is the 160-bit account identifier used on both chains.
type AccountID [20]byte

const accountIDPrefix = 0x00

// alphabet is the base58 dictionary of the observed chains. It differs from
// the bitcoin dictionary, so generic base58 encoders don't apply.
const alphabet = "rpshnaf39wBUDNEGHJKLM4PQRST7VWXYZ2bcdeCg65jkm8oFqi1tuvAxyz"

var (
	ErrBadChecksum  = errors.New("bad account checksum")
	ErrBadAccountID = errors.New("malformed account id")

	base58Index = func() [256]int8 {
		var idx [256]int8
		for i := range idx {
			idx[i] = -1
		}
		for i := 0; i < len(alphabet); i++ {
			idx[alphabet[i]] = int8(i)
		}
		return idx
	}()
)

func checksum(payload []byte) []byte {
	h1 := sha256.Sum256(payload)
	h2 := sha256.Sum256(h1[:])
	return h2[:4]
}

func base58Encode(payload []byte) string {
	n := new(big.Int).SetBytes(payload)
	radix := big.NewInt(int64(len(alphabet)))
	mod := new(big.Int)
	var out []byte
	for n.Sign() > 0 {
		n.DivMod(n, radix, mod)
		out = append(out, alphabet[mod.Int64()])
	}
	for _, b := range payload {
		if b != 0 {
			break
		}
		out = append(out, alphabet[0])
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return string(out)
}

func base58Decode(s string) ([]byte, error) {
	n := new(big.Int)
	radix := big.NewInt(int64(len(alphabet)))
	for i := 0; i < len(s); i++ {
		v := base58Index[s[i]]
		if v < 0 {
			return nil, fmt.Errorf("%w: invalid character %q", ErrBadAccountID, s[i])
		}
		n.Mul(n, radix)
		n.Add(n, big.NewInt(int64(v)))
	}
	out := n.Bytes()
	for i := 0; i < len(s) && s[i] == alphabet[0]; i++ {
		out = append([]byte{0}, out...)
	}
	return out, nil
}

// ParseAccountID decodes the chain's base58 check form of an account.
func ParseAccountID(s string) (AccountID, error) {
	var a AccountID
	raw, err := base58Decode(s)
	if err != nil {
		return a, err
	}
	if len(raw) != 1+len(a)+4 || raw[0] != accountIDPrefix {
		return a, fmt.Errorf("%w: %q", ErrBadAccountID, s)
	}
	payload, sum := raw[:1+len(a)], raw[1+len(a):]
	if !bytes.Equal(checksum(payload), sum) {
		return a, ErrBadChecksum
	}
	copy(a[:], payload[1:])
	return a, nil
}

// AccountIDFromBytes rebuilds an AccountID from its raw 20-byte form, as
// stored in the attestation tables.
func AccountIDFromBytes(b []byte) (AccountID, error) {
	var a AccountID
	if len(b) != len(a) {
		return a, fmt.Errorf("%w: %d bytes", ErrBadAccountID, len(b))
	}
	copy(a[:], b)
	return a, nil
}

// String returns the base58 check form.
func (a AccountID) String() string {
	payload := make([]byte, 0, 1+len(a)+4)
	payload = append(payload, accountIDPrefix)
	payload = append(payload, a[:]...)
	payload = append(payload, checksum(payload)...)
	return base58Encode(payload)
}

// IsZero reports whether the account is the zero account.
func (a AccountID) IsZero() bool {
	return a == AccountID{}
}

// Bytes returns the raw 20-byte form.
func (a AccountID) Bytes() []byte {
	return a[:]
}

// UnmarshalText lets account ids be decoded straight from config values.
func (a *AccountID) UnmarshalText(text []byte) error {
	parsed, err := ParseAccountID(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// MarshalText renders the base58 check form.
func (a AccountID) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}
