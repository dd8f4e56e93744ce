package fixedpoint

import (
	"errors"
	"testing"

	"github.com/holiman/uint256"
)

func TestCheckedOperationsReportOverflow(t *testing.T) {
	max := new(uint256.Int).SetAllOne()
	if _, err := Add(max, uint256.NewInt(1)); !errors.Is(err, ErrOverflow) {
		t.Fatalf("expected overflow on add, got %v", err)
	}
	if _, err := Mul(max, uint256.NewInt(2)); !errors.Is(err, ErrOverflow) {
		t.Fatalf("expected overflow on mul, got %v", err)
	}
	if _, err := Sub(uint256.NewInt(1), uint256.NewInt(2)); !errors.Is(err, ErrUnderflow) {
		t.Fatalf("expected underflow, got %v", err)
	}
	if _, err := MulDiv(uint256.NewInt(1), uint256.NewInt(1), new(uint256.Int)); !errors.Is(err, ErrDivisionByZero) {
		t.Fatalf("expected division by zero, got %v", err)
	}
}

func TestMulDivUsesWideIntermediate(t *testing.T) {
	max := new(uint256.Int).SetAllOne()
	got, err := MulDiv(max, uint256.NewInt(6), uint256.NewInt(6))
	if err != nil {
		t.Fatalf("muldiv: %v", err)
	}
	if got.Cmp(max) != 0 {
		t.Fatalf("expected max back, got %s", got.Dec())
	}
}

func TestScaledRatioFloors(t *testing.T) {
	s, err := Ratio(uint256.NewInt(1), uint256.NewInt(3))
	if err != nil {
		t.Fatalf("ratio: %v", err)
	}
	if s.String() != "333333333333333333" {
		t.Fatalf("unexpected ratio %s", s)
	}
	units, err := s.MulInt(uint256.NewInt(3))
	if err != nil {
		t.Fatalf("mul: %v", err)
	}
	if !units.IsZero() {
		t.Fatalf("floor(3 * 0.333..) should be zero, got %s", units.Dec())
	}
}

func TestBps(t *testing.T) {
	got, err := Bps(uint256.NewInt(1_000), 250)
	if err != nil {
		t.Fatalf("bps: %v", err)
	}
	if got.Uint64() != 25 {
		t.Fatalf("expected 25, got %d", got.Uint64())
	}
	if SubFloor(uint256.NewInt(1), uint256.NewInt(5)).Sign() != 0 {
		t.Fatalf("subfloor should clamp at zero")
	}
}

func TestParseScaled(t *testing.T) {
	cases := map[string]string{
		"1":                    "1000000000000000000",
		"0.985":                "985000000000000000",
		".5":                   "500000000000000000",
		"2.":                   "2000000000000000000",
		"0":                    "0",
		"0.000000000000000001": "1",
	}
	for in, want := range cases {
		got, err := ParseScaled(in)
		if err != nil {
			t.Fatalf("parse %q: %v", in, err)
		}
		if got.String() != want {
			t.Fatalf("parse %q: got %s want %s", in, got, want)
		}
	}
	for _, bad := range []string{"", ".", "-1", "1.2.3", "abc", "0.0000000000000000001"} {
		if _, err := ParseScaled(bad); !errors.Is(err, ErrInvalidDecimal) {
			t.Fatalf("parse %q: expected ErrInvalidDecimal, got %v", bad, err)
		}
	}
}
