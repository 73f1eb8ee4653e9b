package xbridgewitness

import (
	"bytes"
	"runtime"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGetVersion(t *testing.T) {
	v := GetVersion()
	require.Equal(t, Version, v.Version)
	require.Equal(t, runtime.Version(), v.GoVersion)
	require.Equal(t, runtime.GOOS, v.OS)

	var buf bytes.Buffer
	PrintVersion(&buf)
	require.Contains(t, buf.String(), Version)
}
