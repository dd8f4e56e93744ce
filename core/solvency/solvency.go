// Package solvency evaluates whether minting more reward tokens keeps the
// reward token adequately collateralised.
package solvency

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/holiman/uint256"

	"couponledger/core/fixedpoint"
)

var (
	ErrStale    = errors.New("solvency: snapshot stale")
	ErrHeadroom = errors.New("solvency: mint exceeds collateral headroom")
)

// Snapshot is the collateral state reported by a Source.
type Snapshot struct {
	// CollateralRatioBps is backing / outstanding supply in basis points.
	CollateralRatioBps uint64
	// Outstanding is the reward-token supply the ratio was measured against.
	Outstanding *uint256.Int
	ObservedAt  time.Time
}

// Source yields the current collateral snapshot.
type Source interface {
	Snapshot(ctx context.Context) (Snapshot, error)
}

// Policy configures the headroom check.
type Policy struct {
	MinCollateralRatioBps uint64
	MaxAge                time.Duration
}

// Enabled reports whether claims should consult a solvency source.
func (p Policy) Enabled() bool { return p.MinCollateralRatioBps > 0 }

// Headroom returns the largest outstanding supply that keeps the ratio at or
// above minRatioBps: outstanding * ratio / minRatio.
func Headroom(s Snapshot, minRatioBps uint64) (*uint256.Int, error) {
	if minRatioBps == 0 {
		return nil, fixedpoint.ErrDivisionByZero
	}
	return fixedpoint.MulDiv(s.Outstanding, uint256.NewInt(s.CollateralRatioBps), uint256.NewInt(minRatioBps))
}

// Check rejects stale snapshots and mints that would exceed headroom.
func (p Policy) Check(s Snapshot, mint *uint256.Int, now time.Time) error {
	if !p.Enabled() {
		return nil
	}
	if s.ObservedAt.IsZero() || (p.MaxAge > 0 && now.Sub(s.ObservedAt) > p.MaxAge) {
		return fmt.Errorf("%w: observed %s", ErrStale, s.ObservedAt.UTC().Format(time.RFC3339))
	}
	limit, err := Headroom(s, p.MinCollateralRatioBps)
	if err != nil {
		return err
	}
	after, err := fixedpoint.Add(s.Outstanding, mint)
	if err != nil {
		return err
	}
	if after.Cmp(limit) > 0 {
		return fmt.Errorf("%w: supply after mint %s > %s", ErrHeadroom, after.Dec(), limit.Dec())
	}
	return nil
}

// StaticSource returns a fixed snapshot.
type StaticSource struct {
	Snap Snapshot
	Err  error
}

func (s StaticSource) Snapshot(context.Context) (Snapshot, error) {
	if s.Err != nil {
		return Snapshot{}, s.Err
	}
	out := s.Snap
	out.Outstanding = fixedpoint.Copy(s.Snap.Outstanding)
	return out, nil
}
