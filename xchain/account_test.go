package xchain

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAccountIDRoundTrip(t *testing.T) {
	var a AccountID
	for i := range a {
		a[i] = byte(i * 7)
	}
	encoded := a.String()
	require.Equal(t, byte('r'), encoded[0])

	decoded, err := ParseAccountID(encoded)
	require.NoError(t, err)
	require.Equal(t, a, decoded)
}

func TestAccountIDZeroRoundTrip(t *testing.T) {
	var zero AccountID
	decoded, err := ParseAccountID(zero.String())
	require.NoError(t, err)
	require.Equal(t, zero, decoded)
	require.True(t, decoded.IsZero())
}

func TestParseAccountIDRejectsBadChecksum(t *testing.T) {
	var a AccountID
	a[0] = 1
	encoded := a.String()
	// corrupt the last character, keeping it in the dictionary
	last := encoded[len(encoded)-1]
	replacement := byte('r')
	if last == replacement {
		replacement = 'p'
	}
	_, err := ParseAccountID(encoded[:len(encoded)-1] + string(replacement))
	require.Error(t, err)
}

func TestParseAccountIDRejectsGarbage(t *testing.T) {
	_, err := ParseAccountID("not an account")
	require.ErrorIs(t, err, ErrBadAccountID)

	_, err = ParseAccountID("")
	require.Error(t, err)
}

func TestAccountIDFromBytes(t *testing.T) {
	raw := make([]byte, 20)
	raw[19] = 0xff
	a, err := AccountIDFromBytes(raw)
	require.NoError(t, err)
	require.Equal(t, raw, a.Bytes())

	_, err = AccountIDFromBytes(raw[:19])
	require.Error(t, err)
}
