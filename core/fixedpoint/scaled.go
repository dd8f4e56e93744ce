package fixedpoint

import (
	"errors"
	"strings"

	"github.com/holiman/uint256"
)

// ErrInvalidDecimal is returned by ParseScaled for malformed input.
var ErrInvalidDecimal = errors.New("fixedpoint: invalid decimal")

// Scaled is a non-negative fixed-point number with PrecisionDecimals implied
// decimals. The zero value is 0.
type Scaled struct {
	raw uint256.Int
}

// NewScaled wraps an already-scaled raw integer.
func NewScaled(raw *uint256.Int) Scaled {
	var s Scaled
	if raw != nil {
		s.raw.Set(raw)
	}
	return s
}

// ScaledFromInt returns v expressed as a Scaled value (v * 1e18).
func ScaledFromInt(v uint64) (Scaled, error) {
	raw, err := Mul(uint256.NewInt(v), precision)
	if err != nil {
		return Scaled{}, err
	}
	return NewScaled(raw), nil
}

// Ratio returns floor(num * 1e18 / den).
func Ratio(num, den *uint256.Int) (Scaled, error) {
	raw, err := MulDiv(num, precision, den)
	if err != nil {
		return Scaled{}, err
	}
	return NewScaled(raw), nil
}

// Raw returns a copy of the underlying scaled integer.
func (s Scaled) Raw() *uint256.Int { return new(uint256.Int).Set(&s.raw) }

func (s Scaled) IsZero() bool { return s.raw.IsZero() }

func (s Scaled) Cmp(o Scaled) int { return s.raw.Cmp(&o.raw) }

// Add returns s+o.
func (s Scaled) Add(o Scaled) (Scaled, error) {
	raw, err := Add(&s.raw, &o.raw)
	if err != nil {
		return Scaled{}, err
	}
	return NewScaled(raw), nil
}

// MulInt returns floor(v * s / 1e18).
func (s Scaled) MulInt(v *uint256.Int) (*uint256.Int, error) {
	return MulDiv(v, &s.raw, precision)
}

// MulIntRaw returns v * s without removing the scale. Used for reward debt,
// which is kept scaled so it never loses precision.
func (s Scaled) MulIntRaw(v *uint256.Int) (*uint256.Int, error) {
	return Mul(v, &s.raw)
}

// String renders the raw integer.
func (s Scaled) String() string { return s.raw.Dec() }

// ParseScaled parses a non-negative decimal string such as "0.985" into a
// Scaled value. More than PrecisionDecimals fractional digits is rejected.
func ParseScaled(s string) (Scaled, error) {
	s = strings.TrimSpace(s)
	whole, frac, _ := strings.Cut(s, ".")
	if whole == "" && frac == "" {
		return Scaled{}, ErrInvalidDecimal
	}
	if len(frac) > PrecisionDecimals || strings.ContainsAny(whole+frac, "+-") {
		return Scaled{}, ErrInvalidDecimal
	}
	if whole == "" {
		whole = "0"
	}
	digits := strings.TrimLeft(whole+frac+strings.Repeat("0", PrecisionDecimals-len(frac)), "0")
	if digits == "" {
		return Scaled{}, nil
	}
	raw, err := uint256.FromDecimal(digits)
	if err != nil {
		return Scaled{}, ErrInvalidDecimal
	}
	return NewScaled(raw), nil
}
