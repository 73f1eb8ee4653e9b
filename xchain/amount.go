package xchain

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Issue identifies an asset: the native one, or a currency code plus its
// issuing account.
type Issue struct {
	Currency string
	Issuer   AccountID
}

var (
	ErrBadIssue  = errors.New("malformed issue")
	ErrBadAmount = errors.New("malformed amount")
)

const nativeCurrency = "XRP"

// IsNative reports whether the issue is the chains' native asset.
func (i Issue) IsNative() bool {
	return i.Currency == nativeCurrency
}

// ParseIssue accepts the config notation: "XRP" for the native asset or
// "CUR/rIssuer..." for an issued one.
func ParseIssue(s string) (Issue, error) {
	if s == nativeCurrency {
		return Issue{Currency: nativeCurrency}, nil
	}
	cur, issuer, found := strings.Cut(s, "/")
	if !found || len(cur) != 3 {
		return Issue{}, fmt.Errorf("%w: %q", ErrBadIssue, s)
	}
	acct, err := ParseAccountID(issuer)
	if err != nil {
		return Issue{}, fmt.Errorf("%w: %q: %v", ErrBadIssue, s, err)
	}
	return Issue{Currency: cur, Issuer: acct}, nil
}

// UnmarshalJSON accepts both the wire object form {"currency": ...,
// "issuer": ...} and the compact string form used by the config.
func (i *Issue) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		parsed, perr := ParseIssue(s)
		if perr != nil {
			return perr
		}
		*i = parsed
		return nil
	}
	var obj struct {
		Currency string `json:"currency"`
		Issuer   string `json:"issuer"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("%w: %v", ErrBadIssue, err)
	}
	if obj.Currency == nativeCurrency {
		if obj.Issuer != "" {
			return fmt.Errorf("%w: native issue with issuer", ErrBadIssue)
		}
		*i = Issue{Currency: nativeCurrency}
		return nil
	}
	if len(obj.Currency) != 3 {
		return fmt.Errorf("%w: currency %q", ErrBadIssue, obj.Currency)
	}
	issuer, err := ParseAccountID(obj.Issuer)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBadIssue, err)
	}
	*i = Issue{Currency: obj.Currency, Issuer: issuer}
	return nil
}

// MarshalJSON renders the wire object form.
func (i Issue) MarshalJSON() ([]byte, error) {
	if i.IsNative() {
		return json.Marshal(map[string]string{"currency": nativeCurrency})
	}
	return json.Marshal(map[string]string{
		"currency": i.Currency,
		"issuer":   i.Issuer.String(),
	})
}

// UnmarshalText supports the config string notation.
func (i *Issue) UnmarshalText(text []byte) error {
	parsed, err := ParseIssue(string(text))
	if err != nil {
		return err
	}
	*i = parsed
	return nil
}

// Amount is a value of some issue. Native amounts are integral drops; issued
// amounts carry the chain's decimal floating representation (a 16-digit
// mantissa and a decimal exponent).
type Amount struct {
	Issue    Issue
	Drops    uint64
	Mantissa uint64
	Exponent int
	Negative bool
}

// Issued-amount mantissa and exponent bounds, fixed by the chains' binary
// amount format.
const (
	minMantissa = uint64(1000000000000000)
	maxMantissa = uint64(9999999999999999)
	minExponent = -96
	maxExponent = 80
)

// NewNativeAmount builds a native amount from drops.
func NewNativeAmount(drops uint64) Amount {
	return Amount{Issue: Issue{Currency: nativeCurrency}, Drops: drops}
}

// IsNative reports whether the amount is in the native asset.
func (a Amount) IsNative() bool {
	return a.Issue.IsNative()
}

// IsZero reports whether the amount has zero value.
func (a Amount) IsZero() bool {
	if a.IsNative() {
		return a.Drops == 0
	}
	return a.Mantissa == 0
}

// ParseAmountJSON decodes the wire forms: a decimal string of drops for the
// native asset, or an object {"currency", "issuer", "value"} for an issued
// one.
func ParseAmountJSON(data json.RawMessage) (Amount, error) {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		drops, perr := strconv.ParseUint(s, 10, 64)
		if perr != nil {
			return Amount{}, fmt.Errorf("%w: drops %q", ErrBadAmount, s)
		}
		return NewNativeAmount(drops), nil
	}
	var obj struct {
		Currency string `json:"currency"`
		Issuer   string `json:"issuer"`
		Value    string `json:"value"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return Amount{}, fmt.Errorf("%w: %v", ErrBadAmount, err)
	}
	if obj.Currency == nativeCurrency {
		drops, perr := strconv.ParseUint(obj.Value, 10, 64)
		if perr != nil {
			return Amount{}, fmt.Errorf("%w: drops %q", ErrBadAmount, obj.Value)
		}
		return NewNativeAmount(drops), nil
	}
	if len(obj.Currency) != 3 {
		return Amount{}, fmt.Errorf("%w: currency %q", ErrBadAmount, obj.Currency)
	}
	issuer, err := ParseAccountID(obj.Issuer)
	if err != nil {
		return Amount{}, fmt.Errorf("%w: issuer: %v", ErrBadAmount, err)
	}
	issue := Issue{Currency: obj.Currency, Issuer: issuer}
	mantissa, exponent, negative, err := parseDecimal(obj.Value)
	if err != nil {
		return Amount{}, err
	}
	return Amount{
		Issue:    issue,
		Mantissa: mantissa,
		Exponent: exponent,
		Negative: negative,
	}, nil
}

// parseDecimal normalizes a decimal string into the chain's mantissa and
// exponent ranges.
func parseDecimal(s string) (mantissa uint64, exponent int, negative bool, err error) {
	orig := s
	if s == "" {
		return 0, 0, false, fmt.Errorf("%w: empty value", ErrBadAmount)
	}
	if s[0] == '-' {
		negative = true
		s = s[1:]
	} else if s[0] == '+' {
		s = s[1:]
	}
	intPart, fracPart, _ := strings.Cut(s, ".")
	digits := intPart + fracPart
	if digits == "" || len(digits) > 32 {
		return 0, 0, false, fmt.Errorf("%w: %q", ErrBadAmount, orig)
	}
	exponent = -len(fracPart)
	mantissa = 0
	for i := 0; i < len(digits); i++ {
		c := digits[i]
		if c < '0' || c > '9' {
			return 0, 0, false, fmt.Errorf("%w: %q", ErrBadAmount, orig)
		}
		d := uint64(c - '0')
		if mantissa > (maxMantissa*10+9-d)/10 {
			return 0, 0, false, fmt.Errorf("%w: too many digits in %q", ErrBadAmount, orig)
		}
		mantissa = mantissa*10 + d
	}
	if mantissa == 0 {
		return 0, 0, false, nil
	}
	for mantissa < minMantissa {
		mantissa *= 10
		exponent--
	}
	for mantissa > maxMantissa {
		mantissa /= 10
		exponent++
	}
	if exponent < minExponent || exponent > maxExponent {
		return 0, 0, false, fmt.Errorf("%w: exponent out of range in %q", ErrBadAmount, orig)
	}
	return mantissa, exponent, negative, nil
}

// Equal reports exact equality of issue and value.
func (a Amount) Equal(b Amount) bool {
	if a.Issue != b.Issue {
		return false
	}
	if a.IsNative() {
		return a.Drops == b.Drops
	}
	if a.IsZero() && b.IsZero() {
		return true
	}
	return a.Mantissa == b.Mantissa && a.Exponent == b.Exponent && a.Negative == b.Negative
}

// String renders the wire value form, for logs and JSON.
func (a Amount) String() string {
	if a.IsNative() {
		return strconv.FormatUint(a.Drops, 10)
	}
	sign := ""
	if a.Negative {
		sign = "-"
	}
	return fmt.Sprintf("%s%de%d/%s", sign, a.Mantissa, a.Exponent, a.Issue.Currency)
}

// MarshalJSON renders the wire amount form.
func (a Amount) MarshalJSON() ([]byte, error) {
	if a.IsNative() {
		return json.Marshal(strconv.FormatUint(a.Drops, 10))
	}
	value := decimalString(a.Mantissa, a.Exponent, a.Negative)
	return json.Marshal(map[string]string{
		"currency": a.Issue.Currency,
		"issuer":   a.Issue.Issuer.String(),
		"value":    value,
	})
}

func decimalString(mantissa uint64, exponent int, negative bool) string {
	if mantissa == 0 {
		return "0"
	}
	digits := strconv.FormatUint(mantissa, 10)
	digits = strings.TrimRight(digits, "0")
	trimmed := 16 - len(digits)
	exponent += trimmed
	var b strings.Builder
	if negative {
		b.WriteByte('-')
	}
	switch {
	case exponent >= 0:
		b.WriteString(digits)
		b.WriteString(strings.Repeat("0", exponent))
	case -exponent < len(digits):
		split := len(digits) + exponent
		b.WriteString(digits[:split])
		b.WriteByte('.')
		b.WriteString(digits[split:])
	default:
		b.WriteString("0.")
		b.WriteString(strings.Repeat("0", -exponent-len(digits)))
		b.WriteString(digits)
	}
	return b.String()
}
