package pricing

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// MinorUnits is the number of minor units per major currency unit.
const MinorUnits = 100

// MaxAmount is the largest amount ParseMoney accepts (10,000,000.00).
const MaxAmount Money = 1_000_000_000

// ErrInvalidAmount is returned when a decimal amount cannot be represented as Money.
var ErrInvalidAmount = errors.New("pricing: invalid amount")

// ParseMoney converts a non-negative decimal string with at most two fraction
// digits ("4.5", "13.50", "7", "+2") into minor units. Only ASCII digits are
// allowed around the point; a single leading '+' is the only sign accepted.
func ParseMoney(value string) (Money, error) {
	s := strings.TrimSpace(value)
	if s == "" {
		return 0, fmt.Errorf("%w: empty", ErrInvalidAmount)
	}
	if s[0] == '-' {
		return 0, fmt.Errorf("%w: negative %q", ErrInvalidAmount, value)
	}
	s = strings.TrimPrefix(s, "+")
	whole, frac, hasFrac := strings.Cut(s, ".")
	if whole != "" && !digits(whole) {
		return 0, fmt.Errorf("%w: %q", ErrInvalidAmount, value)
	}
	if whole == "" && !hasFrac {
		return 0, fmt.Errorf("%w: %q", ErrInvalidAmount, value)
	}
	if hasFrac && (len(frac) == 0 || len(frac) > 2 || !digits(frac)) {
		return 0, fmt.Errorf("%w: %q", ErrInvalidAmount, value)
	}
	whole = strings.TrimLeft(whole, "0")
	if len(whole) > 8 {
		return 0, fmt.Errorf("%w: exceeds maximum %q", ErrInvalidAmount, value)
	}
	var major, minor int64
	if whole != "" {
		major, _ = strconv.ParseInt(whole, 10, 64)
	}
	if hasFrac {
		if len(frac) == 1 {
			frac += "0"
		}
		minor, _ = strconv.ParseInt(frac, 10, 64)
	}
	amount := major*MinorUnits + minor
	if amount > MaxAmount {
		return 0, fmt.Errorf("%w: exceeds maximum %q", ErrInvalidAmount, value)
	}
	return amount, nil
}

func digits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// FormatMoney renders minor units as a decimal string with two fraction digits.
func FormatMoney(m Money) string {
	sign := ""
	if m < 0 {
		sign = "-"
		m = -m
	}
	return fmt.Sprintf("%s%d.%02d", sign, m/MinorUnits, m%MinorUnits)
}
