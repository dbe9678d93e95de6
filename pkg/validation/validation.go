package validation

import (
	"errors"
	"fmt"
	"strings"
)

const (
	DefaultMinPhoneDigits = 6
	// E.164 caps a full international number at 15 digits.
	MaxPhoneDigits = 15
)

var ErrPhoneEmpty = errors.New("phone number cannot be empty")

// NormalizePhone strips every non-digit character and checks the remaining length.
// "+1 (415) 555-0100" becomes "14155550100".
func NormalizePhone(raw string, minDigits int) (string, error) {
	if minDigits <= 0 {
		minDigits = DefaultMinPhoneDigits
	}
	if strings.TrimSpace(raw) == "" {
		return "", ErrPhoneEmpty
	}

	var b strings.Builder
	b.Grow(len(raw))
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()

	switch {
	case len(digits) < minDigits:
		return "", fmt.Errorf("phone number must have at least %d digits", minDigits)
	case len(digits) > MaxPhoneDigits:
		return "", fmt.Errorf("phone number must have at most %d digits", MaxPhoneDigits)
	}
	return digits, nil
}
