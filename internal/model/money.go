package model

import (
	"errors"
	"strconv"
	"strings"
)

// Cents is a monetary amount in minor units.  JSON encodes it as a
// decimal number with two fractional digits (12345 -> 123.45).
type Cents int64

// Percent returns c scaled by pct/100, rounded half away from zero to the
// nearest cent.
func (c Cents) Percent(pct int64) Cents {
	v := int64(c) * pct
	if v >= 0 {
		return Cents((v + 50) / 100)
	}
	return Cents((v - 50) / 100)
}

// Times multiplies a unit amount by a quantity.
func (c Cents) Times(n int) Cents { return c * Cents(n) }

func (c Cents) String() string {
	sign := ""
	v := int64(c)
	if v < 0 {
		sign = "-"
		v = -v
	}
	frac := strconv.FormatInt(v%100, 10)
	if len(frac) == 1 {
		frac = "0" + frac
	}
	return sign + strconv.FormatInt(v/100, 10) + "." + frac
}

func (c Cents) MarshalJSON() ([]byte, error) { return []byte(c.String()), nil }

func (c *Cents) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	v, err := ParseCents(s)
	if err != nil {
		return err
	}
	*c = v
	return nil
}

var errBadAmount = errors.New("invalid monetary amount")

// ParseCents parses "150", "150.5" or "150.50" into cents.  More than two
// fractional digits is rejected.
func ParseCents(s string) (Cents, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, errBadAmount
	}
	neg := strings.HasPrefix(s, "-")
	s = strings.TrimPrefix(s, "-")
	whole, frac, _ := strings.Cut(s, ".")
	if whole == "" || len(frac) > 2 {
		return 0, errBadAmount
	}
	w, err := strconv.ParseInt(whole, 10, 64)
	if err != nil {
		return 0, errBadAmount
	}
	for len(frac) < 2 {
		frac += "0"
	}
	f, err := strconv.ParseInt(frac, 10, 64)
	if err != nil {
		return 0, errBadAmount
	}
	v := w*100 + f
	if neg {
		v = -v
	}
	return Cents(v), nil
}
