package xchain

import (
	"encoding/json"
	"strconv"
)

// ParseUint64JSON accepts the wire's 64-bit fields as decimal strings, hex
// strings, or plain numbers.
func ParseUint64JSON(raw json.RawMessage) (uint64, bool) {
	if len(raw) == 0 {
		return 0, false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if v, err := strconv.ParseUint(s, 10, 64); err == nil {
			return v, true
		}
		if v, err := strconv.ParseUint(s, 16, 64); err == nil {
			return v, true
		}
		return 0, false
	}
	var n uint64
	if err := json.Unmarshal(raw, &n); err == nil {
		return n, true
	}
	return 0, false
}
