package phone

import (
	"errors"
	"strings"
)

var (
	ErrEmpty   = errors.New("phone: number is empty")
	ErrInvalid = errors.New("phone: number has no digits")
)

// Normalizer turns free-text phone input into a dialable "+<digits>" string.
//
// It never mutates the stored lead value; callers keep the raw input and dial the result.
type Normalizer struct {
	// CountryCode is the domestic calling code without "+", e.g. "46".
	CountryCode string
	// TrunkPrefix is dropped from domestic numbers before the country code is prepended.
	// Empty disables trunk stripping.
	TrunkPrefix string
	// MinNationalDigits is how many digits must follow CountryCode for a bare
	// number to be treated as already international.
	MinNationalDigits int
}

const defaultMinNationalDigits = 7

// Normalize applies the dialing rules:
//   - whitespace is stripped
//   - a leading "+" is kept and everything else that is not a digit is dropped
//   - otherwise non-digits are dropped and, unless the digits already start with
//     CountryCode at sufficient length, CountryCode is prepended
//
// Normalizing an already normalized value returns it unchanged.
func (n Normalizer) Normalize(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", ErrEmpty
	}

	if strings.HasPrefix(s, "+") {
		d := digitsOnly(s[1:])
		if d == "" {
			return "", ErrInvalid
		}
		return "+" + d, nil
	}

	d := digitsOnly(s)
	if d == "" {
		return "", ErrInvalid
	}
	// "00" is the international access prefix.
	if strings.HasPrefix(d, "00") && len(d) > 2 {
		return "+" + d[2:], nil
	}
	if n.CountryCode == "" {
		return "+" + d, nil
	}
	if n.hasCountryCode(d) {
		return "+" + d, nil
	}
	if n.TrunkPrefix != "" && strings.HasPrefix(d, n.TrunkPrefix) && len(d) > len(n.TrunkPrefix) {
		d = d[len(n.TrunkPrefix):]
	}
	return "+" + n.CountryCode + d, nil
}

// CountryPrefix splits a dialable number into the domestic "+<cc>" prefix and the
// remaining national digits. Numbers outside the domestic plan keep an empty prefix.
func (n Normalizer) CountryPrefix(dialable string) (prefix, national string) {
	if n.CountryCode == "" || !strings.HasPrefix(dialable, "+"+n.CountryCode) {
		return "", dialable
	}
	return "+" + n.CountryCode, strings.TrimPrefix(dialable, "+"+n.CountryCode)
}

func (n Normalizer) hasCountryCode(d string) bool {
	min := n.MinNationalDigits
	if min <= 0 {
		min = defaultMinNationalDigits
	}
	return strings.HasPrefix(d, n.CountryCode) && len(d)-len(n.CountryCode) >= min
}

func digitsOnly(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
