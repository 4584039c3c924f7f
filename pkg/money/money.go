// Package money represents monetary amounts as integer minor units.
// All arithmetic is exact; rounding only happens at explicitly named
// call sites such as DivRound.
package money

import (
	"fmt"
	"strconv"
	"strings"
)

// Cents is an amount in minor currency units (e.g. cents for USD/EUR).
type Cents int64

// FromDecimalString parses a decimal amount such as "1234.56" into Cents.
// At most two fractional digits are accepted.
func FromDecimalString(s string) (Cents, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("money: empty amount")
	}

	neg := false
	if strings.HasPrefix(s, "-") {
		neg = true
		s = s[1:]
	}

	whole, frac, _ := strings.Cut(s, ".")
	if whole == "" {
		whole = "0"
	}
	if len(frac) > 2 {
		return 0, fmt.Errorf("money: too many fractional digits in %q", s)
	}
	for len(frac) < 2 {
		frac += "0"
	}

	// ParseInt alone would accept embedded signs, turning "1.-5" into 0.95.
	if !allDigits(whole) || !allDigits(frac) {
		return 0, fmt.Errorf("money: invalid amount %q", s)
	}

	w, err := strconv.ParseInt(whole, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("money: invalid amount %q", s)
	}
	f, err := strconv.ParseInt(frac, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("money: invalid amount %q", s)
	}

	v := w*100 + f
	if neg {
		v = -v
	}
	return Cents(v), nil
}

func allDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// MustFromDecimalString is FromDecimalString that panics on malformed input.
// Intended for constants in tests and seed data.
func MustFromDecimalString(s string) Cents {
	c, err := FromDecimalString(s)
	if err != nil {
		panic(err)
	}
	return c
}

// DecimalString renders the amount with exactly two fractional digits.
func (c Cents) DecimalString() string {
	v := int64(c)
	sign := ""
	if v < 0 {
		sign = "-"
		v = -v
	}
	return fmt.Sprintf("%s%d.%02d", sign, v/100, v%100)
}

// MarshalJSON renders the amount as a JSON string with two decimals,
// matching what external tools and the Shopify Admin API expect.
func (c Cents) MarshalJSON() ([]byte, error) {
	return []byte(`"` + c.DecimalString() + `"`), nil
}

// UnmarshalJSON accepts either a quoted decimal string or a bare number.
func (c *Cents) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	v, err := FromDecimalString(s)
	if err != nil {
		return err
	}
	*c = v
	return nil
}

// DivRound divides the amount by n, rounding half away from zero.
func (c Cents) DivRound(n int64) Cents {
	if n == 0 {
		panic("money: division by zero")
	}
	v := int64(c)
	half := n / 2
	if (v < 0) != (n < 0) {
		return Cents((v - half) / n)
	}
	return Cents((v + half) / n)
}

// Mul multiplies the amount by an integer quantity.
func (c Cents) Mul(n int64) Cents {
	return Cents(int64(c) * n)
}
