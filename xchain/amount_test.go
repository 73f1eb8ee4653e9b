package xchain

import (
	"encoding/binary"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func testIssuer(t *testing.T) AccountID {
	t.Helper()
	var a AccountID
	a[0] = 0x42
	return a
}

func TestParseAmountJSONNative(t *testing.T) {
	amt, err := ParseAmountJSON(json.RawMessage(`"10000000"`))
	require.NoError(t, err)
	require.True(t, amt.IsNative())
	require.Equal(t, uint64(10000000), amt.Drops)
}

func TestParseAmountJSONIssued(t *testing.T) {
	issuer := testIssuer(t)
	raw, err := json.Marshal(map[string]string{
		"currency": "USD",
		"issuer":   issuer.String(),
		"value":    "10.5",
	})
	require.NoError(t, err)

	amt, err := ParseAmountJSON(raw)
	require.NoError(t, err)
	require.False(t, amt.IsNative())
	require.Equal(t, "USD", amt.Issue.Currency)
	require.Equal(t, issuer, amt.Issue.Issuer)
	// 10.5 normalizes to 1050000000000000e-14
	require.Equal(t, uint64(1050000000000000), amt.Mantissa)
	require.Equal(t, -14, amt.Exponent)
	require.False(t, amt.Negative)
}

func TestParseAmountJSONRejectsGarbage(t *testing.T) {
	_, err := ParseAmountJSON(json.RawMessage(`"12drops"`))
	require.ErrorIs(t, err, ErrBadAmount)

	_, err = ParseAmountJSON(json.RawMessage(`{"currency":"USDT"}`))
	require.ErrorIs(t, err, ErrBadAmount)
}

func TestAmountSerializeNative(t *testing.T) {
	amt := NewNativeAmount(10000000)
	var s Serializer
	s.WriteAmount(amt)
	encoded := s.Bytes()
	require.Len(t, encoded, 8)
	require.Equal(t, uint64(10000000)|nativeAmountMask, binary.BigEndian.Uint64(encoded))
}

func TestAmountSerializeIssued(t *testing.T) {
	issuer := testIssuer(t)
	amt := Amount{
		Issue:    Issue{Currency: "USD", Issuer: issuer},
		Mantissa: 1050000000000000,
		Exponent: -14,
	}
	var s Serializer
	s.WriteAmount(amt)
	encoded := s.Bytes()
	// 8 bytes value + 20 currency + 20 issuer
	require.Len(t, encoded, 48)
	packed := binary.BigEndian.Uint64(encoded[:8])
	require.NotZero(t, packed&issuedAmountMask)
	require.NotZero(t, packed&positiveAmountMask)
	require.Equal(t, amt.Mantissa, packed&((uint64(1)<<54)-1))
	require.Equal(t, []byte("USD"), encoded[8+12:8+15])
	require.Equal(t, issuer.Bytes(), encoded[28:48])
}

func TestAmountEqual(t *testing.T) {
	a := NewNativeAmount(5)
	b := NewNativeAmount(5)
	require.True(t, a.Equal(b))
	require.False(t, a.Equal(NewNativeAmount(6)))

	issuer := testIssuer(t)
	c := Amount{Issue: Issue{Currency: "USD", Issuer: issuer}, Mantissa: minMantissa, Exponent: -15}
	require.False(t, a.Equal(c))
	require.True(t, c.Equal(c))
}

func TestAmountJSONRoundTrip(t *testing.T) {
	issuer := testIssuer(t)
	orig := Amount{
		Issue:    Issue{Currency: "EUR", Issuer: issuer},
		Mantissa: 1234500000000000,
		Exponent: -13,
	}
	data, err := json.Marshal(orig)
	require.NoError(t, err)

	parsed, err := ParseAmountJSON(data)
	require.NoError(t, err)
	require.True(t, orig.Equal(parsed), "got %s want %s", parsed, orig)
}

func TestDecimalString(t *testing.T) {
	require.Equal(t, "10.5", decimalString(1050000000000000, -14, false))
	require.Equal(t, "-3", decimalString(3000000000000000, -15, true))
	require.Equal(t, "0.001", decimalString(1000000000000000, -18, false))
	require.Equal(t, "12000", decimalString(1200000000000000, -11, false))
}

func TestParseIssue(t *testing.T) {
	native, err := ParseIssue("XRP")
	require.NoError(t, err)
	require.True(t, native.IsNative())

	issuer := testIssuer(t)
	issued, err := ParseIssue("USD/" + issuer.String())
	require.NoError(t, err)
	require.Equal(t, "USD", issued.Currency)
	require.Equal(t, issuer, issued.Issuer)

	_, err = ParseIssue("USD")
	require.ErrorIs(t, err, ErrBadIssue)
}
