package solvency

import (
	"errors"
	"testing"
	"time"

	"github.com/holiman/uint256"
)

func TestPolicyCheck(t *testing.T) {
	now := time.Unix(1_000, 0)
	p := Policy{MinCollateralRatioBps: 10_000, MaxAge: time.Minute}
	snap := Snapshot{CollateralRatioBps: 12_000, Outstanding: uint256.NewInt(1_000), ObservedAt: now.Add(-time.Second)}

	if err := p.Check(snap, uint256.NewInt(200), now); err != nil {
		t.Fatalf("expected mint within headroom: %v", err)
	}
	if err := p.Check(snap, uint256.NewInt(201), now); !errors.Is(err, ErrHeadroom) {
		t.Fatalf("expected headroom error, got %v", err)
	}
	snap.ObservedAt = now.Add(-2 * time.Minute)
	if err := p.Check(snap, uint256.NewInt(1), now); !errors.Is(err, ErrStale) {
		t.Fatalf("expected stale error, got %v", err)
	}
	if err := (Policy{}).Check(snap, uint256.NewInt(1_000_000), now); err != nil {
		t.Fatalf("disabled policy should pass: %v", err)
	}
}
