package xchain

import (
	"bytes"

	"github.com/pwang200/xbridge-witness/common"
)

// Serializer accumulates the chain's canonical binary encoding. Attestation
// signatures are computed over these bytes, so the bit layout must match the
// chain's serializer exactly.
type Serializer struct {
	buf bytes.Buffer
}

const (
	nativeAmountMask   = uint64(0x4000000000000000)
	issuedAmountMask   = uint64(0x8000000000000000)
	positiveAmountMask = uint64(0x4000000000000000)
)

func (s *Serializer) WriteUint8(v uint8) {
	s.buf.WriteByte(v)
}

func (s *Serializer) WriteUint32(v uint32) {
	s.buf.Write(common.Uint32ToBytes(v))
}

func (s *Serializer) WriteUint64(v uint64) {
	s.buf.Write(common.Uint64ToBytes(v))
}

// WriteVL writes a variable-length blob with the chain's length prefix.
func (s *Serializer) WriteVL(b []byte) {
	n := len(b)
	switch {
	case n <= 192:
		s.buf.WriteByte(byte(n))
	case n <= 12480:
		n -= 193
		s.buf.WriteByte(byte(193 + n>>8))
		s.buf.WriteByte(byte(n & 0xff))
	default:
		n -= 12481
		s.buf.WriteByte(byte(241 + n>>16))
		s.buf.WriteByte(byte(n >> 8 & 0xff))
		s.buf.WriteByte(byte(n & 0xff))
	}
	s.buf.Write(b)
}

// WriteAccount writes a length-prefixed 160-bit account id.
func (s *Serializer) WriteAccount(a AccountID) {
	s.WriteVL(a[:])
}

// WriteCurrency writes the 160-bit currency field. Three-letter codes sit in
// bytes 12..14; the native currency is all zeroes.
func (s *Serializer) WriteCurrency(i Issue) {
	var c [20]byte
	if !i.IsNative() {
		copy(c[12:], i.Currency)
	}
	s.buf.Write(c[:])
}

// WriteIssue writes a currency followed, for issued assets, by the issuer.
func (s *Serializer) WriteIssue(i Issue) {
	s.WriteCurrency(i)
	if !i.IsNative() {
		s.buf.Write(i.Issuer[:])
	}
}

// WriteAmount writes the 64-bit packed value, and currency plus issuer for
// issued assets.
func (s *Serializer) WriteAmount(a Amount) {
	if a.IsNative() {
		s.WriteUint64(a.Drops&^issuedAmountMask | nativeAmountMask)
		return
	}
	v := issuedAmountMask
	if !a.Negative && a.Mantissa != 0 {
		v |= positiveAmountMask
	}
	if a.Mantissa != 0 {
		v |= uint64(a.Exponent+97) << 54
		v |= a.Mantissa
	}
	s.WriteUint64(v)
	s.WriteCurrency(a.Issue)
	s.buf.Write(a.Issue.Issuer[:])
}

// WriteBridge writes the 4-tuple bridge definition: both doors and both
// issues, locking side first.
func (s *Serializer) WriteBridge(b BridgeSpec) {
	s.WriteAccount(b.LockingChainDoor)
	s.WriteIssue(b.LockingChainIssue)
	s.WriteAccount(b.IssuingChainDoor)
	s.WriteIssue(b.IssuingChainIssue)
}

// WriteBool writes a one-byte flag.
func (s *Serializer) WriteBool(v bool) {
	if v {
		s.buf.WriteByte(1)
	} else {
		s.buf.WriteByte(0)
	}
}

// Bytes returns the accumulated encoding.
func (s *Serializer) Bytes() []byte {
	return s.buf.Bytes()
}
