// Package fixedpoint provides checked unsigned 256-bit arithmetic and a
// PRECISION-scaled value type used for reward indices and prices.
package fixedpoint

import (
	"errors"

	"github.com/holiman/uint256"
)

const (
	// PrecisionDecimals is the number of implied decimals carried by Scaled.
	PrecisionDecimals = 18
	// BasisPoints is the denominator for bps fractions.
	BasisPoints = 10_000
)

var (
	ErrOverflow       = errors.New("fixedpoint: overflow")
	ErrUnderflow      = errors.New("fixedpoint: underflow")
	ErrDivisionByZero = errors.New("fixedpoint: division by zero")
)

var precision = uint256.NewInt(1_000_000_000_000_000_000)

// Precision returns a copy of the 1e18 scaling factor.
func Precision() *uint256.Int {
	return new(uint256.Int).Set(precision)
}

// Zero returns a fresh zero value.
func Zero() *uint256.Int { return new(uint256.Int) }

// Copy returns a deep copy of v, treating nil as zero.
func Copy(v *uint256.Int) *uint256.Int {
	if v == nil {
		return new(uint256.Int)
	}
	return new(uint256.Int).Set(v)
}

// Add returns a+b.
func Add(a, b *uint256.Int) (*uint256.Int, error) {
	out, overflow := new(uint256.Int).AddOverflow(Copy(a), Copy(b))
	if overflow {
		return nil, ErrOverflow
	}
	return out, nil
}

// Sub returns a-b and fails instead of wrapping.
func Sub(a, b *uint256.Int) (*uint256.Int, error) {
	out, underflow := new(uint256.Int).SubOverflow(Copy(a), Copy(b))
	if underflow {
		return nil, ErrUnderflow
	}
	return out, nil
}

// SubFloor returns max(0, a-b).
func SubFloor(a, b *uint256.Int) *uint256.Int {
	if Copy(a).Cmp(Copy(b)) <= 0 {
		return new(uint256.Int)
	}
	return new(uint256.Int).Sub(a, b)
}

// Mul returns a*b.
func Mul(a, b *uint256.Int) (*uint256.Int, error) {
	out, overflow := new(uint256.Int).MulOverflow(Copy(a), Copy(b))
	if overflow {
		return nil, ErrOverflow
	}
	return out, nil
}

// MulDiv returns floor(a*b/d) with a 512-bit intermediate product.
func MulDiv(a, b, d *uint256.Int) (*uint256.Int, error) {
	if d == nil || d.IsZero() {
		return nil, ErrDivisionByZero
	}
	out, overflow := new(uint256.Int).MulDivOverflow(Copy(a), Copy(b), d)
	if overflow {
		return nil, ErrOverflow
	}
	return out, nil
}

// Bps returns floor(amount*bps/10000).
func Bps(amount *uint256.Int, bps uint64) (*uint256.Int, error) {
	return MulDiv(amount, uint256.NewInt(bps), uint256.NewInt(BasisPoints))
}

// Min returns the smaller of a and b.
func Min(a, b *uint256.Int) *uint256.Int {
	if Copy(a).Cmp(Copy(b)) <= 0 {
		return Copy(a)
	}
	return Copy(b)
}

// FromBytes decodes a big-endian byte slice, treating empty input as zero.
func FromBytes(b []byte) (*uint256.Int, error) {
	if len(b) > 32 {
		return nil, ErrOverflow
	}
	return new(uint256.Int).SetBytes(b), nil
}

// Bytes returns the minimal big-endian encoding of v.
func Bytes(v *uint256.Int) []byte {
	if v == nil || v.IsZero() {
		return nil
	}
	return v.Bytes()
}
