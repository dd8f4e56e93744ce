package rewards

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"couponledger/core/epoch"
	"couponledger/core/events"
	"couponledger/core/fixedpoint"
	"couponledger/core/solvency"
)

// ConfigureEpoch registers the next epoch. The previous epoch must have been
// distributed.
func (l *Ledger) ConfigureEpoch(ctx context.Context, w epoch.Window) (epoch.Epoch, error) {
	var out epoch.Epoch
	err := l.apply(ctx, "configure_epoch", func(t *txn) error {
		var err error
		out, err = t.configureEpoch(w)
		return err
	})
	return out, err
}

func (t *txn) configureEpoch(w epoch.Window) (epoch.Epoch, error) {
	// Balances before now were never integrated for this window.
	if w.StartTime < t.now {
		return epoch.Epoch{}, fmt.Errorf("%w: start %d, now %d", ErrEpochStarted, w.StartTime, t.now)
	}
	if err := t.advance(); err != nil {
		return epoch.Epoch{}, err
	}
	e, err := t.registry.Configure(w)
	if err != nil {
		return epoch.Epoch{}, err
	}
	if err := t.global.startEpoch(e); err != nil {
		return epoch.Epoch{}, err
	}
	t.newEpochs = append(t.newEpochs, e.ID)
	t.emit(events.RewardsEpochConfigured{
		Epoch:           e.ID,
		StartTime:       e.StartTime,
		EndTime:         e.EndTime,
		CheckpointStart: e.CheckpointStart,
		CheckpointEnd:   e.CheckpointEnd,
		EligibleSupply:  fixedpoint.Copy(t.global.EligibleSupply),
	}.Event())
	t.after = append(t.after, func() {
		t.l.logger.Info("rewards: epoch configured", "epoch", e.ID, "start", e.StartTime, "end", e.EndTime)
	})
	return e, nil
}

// SetExcluded excludes an account from earning or re-includes it. Rewards
// finalized before exclusion stay claimable. An account re-included inside
// the checkpoint window earns nothing further in that epoch.
func (l *Ledger) SetExcluded(ctx context.Context, addr common.Address, excluded bool) error {
	return l.apply(ctx, "set_excluded", func(t *txn) error { return t.setExcluded(addr, excluded) })
}

func (t *txn) setExcluded(addr common.Address, excluded bool) error {
	if addr == (common.Address{}) {
		return ErrZeroAddress
	}
	if err := t.advance(); err != nil {
		return err
	}
	acc := t.account(addr)
	if err := t.settle(acc); err != nil {
		return err
	}
	if acc.Excluded() == excluded {
		return nil
	}
	current, ok := t.current()
	var err error
	if excluded {
		earning := acc.EarningBalance(current.ID)
		if t.global.EligibleSupply, err = fixedpoint.Sub(t.global.EligibleSupply, earning); err != nil {
			return err
		}
		if t.global.ExcludedSupply, err = fixedpoint.Add(t.global.ExcludedSupply, acc.Balance); err != nil {
			return err
		}
		acc.clearLate()
		acc.Status = StatusExcluded
	} else {
		if t.global.ExcludedSupply, err = fixedpoint.Sub(t.global.ExcludedSupply, acc.Balance); err != nil {
			return err
		}
		acc.Status = StatusActive
		if ok && current.InCheckpoint(t.now) && !acc.Balance.IsZero() {
			if err := acc.addLate(current.ID, acc.Balance); err != nil {
				return err
			}
		} else if t.global.EligibleSupply, err = fixedpoint.Add(t.global.EligibleSupply, acc.Balance); err != nil {
			return err
		}
	}
	t.emit(events.RewardsExclusion{Account: addr, Excluded: excluded}.Event())
	return nil
}

// SetBreakageSink updates the address receiving breakage rewards.
func (l *Ledger) SetBreakageSink(ctx context.Context, sink common.Address) error {
	return l.updateParams(ctx, func(p *Params) error {
		if sink == (common.Address{}) {
			return ErrZeroAddress
		}
		p.BreakageSink = sink
		return nil
	})
}

// SetTreasury updates the address receiving the coupon skim.
func (l *Ledger) SetTreasury(ctx context.Context, treasury common.Address) error {
	return l.updateParams(ctx, func(p *Params) error {
		if treasury == (common.Address{}) {
			return ErrZeroAddress
		}
		p.Treasury = treasury
		return nil
	})
}

// SetClaimLimits updates the per-claim minimum and maximum. A zero maximum
// disables the ceiling.
func (l *Ledger) SetClaimLimits(ctx context.Context, minClaim, maxClaim *uint256.Int) error {
	return l.updateParams(ctx, func(p *Params) error {
		p.MinClaim = fixedpoint.Copy(minClaim)
		p.MaxClaim = fixedpoint.Copy(maxClaim)
		return nil
	})
}

// SetMintCeiling bounds the tokens one distribution may allocate.
func (l *Ledger) SetMintCeiling(ctx context.Context, ceiling *uint256.Int) error {
	return l.updateParams(ctx, func(p *Params) error {
		p.MintCeiling = fixedpoint.Copy(ceiling)
		return nil
	})
}

// SetDepegGuard toggles the deviant-price distribution block.
func (l *Ledger) SetDepegGuard(ctx context.Context, enabled bool) error {
	return l.updateParams(ctx, func(p *Params) error {
		p.DepegGuard = enabled
		return nil
	})
}

// SetSolvencyPolicy replaces the claim headroom policy.
func (l *Ledger) SetSolvencyPolicy(ctx context.Context, policy solvency.Policy) error {
	return l.updateParams(ctx, func(p *Params) error {
		p.Solvency = policy
		return nil
	})
}

func (l *Ledger) updateParams(ctx context.Context, fn func(*Params) error) error {
	return l.apply(ctx, "update_params", func(t *txn) error { return t.updateParams(fn) })
}

func (t *txn) updateParams(fn func(*Params) error) error {
	next := t.params.Clone()
	if err := fn(&next); err != nil {
		return err
	}
	if err := next.Validate(); err != nil {
		return err
	}
	t.params = next
	t.paramsChanged = true
	return nil
}

// Batch groups administrative steps into one all-or-nothing transaction.
type Batch struct {
	t *txn
}

func (b *Batch) ConfigureEpoch(w epoch.Window) (epoch.Epoch, error) { return b.t.configureEpoch(w) }

func (b *Batch) Distribute(distributor common.Address, coupon *uint256.Int) (epoch.Report, error) {
	return b.t.distribute(distributor, coupon)
}

func (b *Batch) SetExcluded(addr common.Address, excluded bool) error {
	return b.t.setExcluded(addr, excluded)
}

func (b *Batch) UpdateParams(fn func(*Params) error) error { return b.t.updateParams(fn) }

// Batch runs fn atomically. If fn or any resulting external effect fails the
// ledger is left exactly as it was.
func (l *Ledger) Batch(ctx context.Context, fn func(*Batch) error) error {
	return l.apply(ctx, "batch", func(t *txn) error {
		if err := fn(&Batch{t: t}); err != nil {
			return fmt.Errorf("rewards: batch: %w", err)
		}
		return nil
	})
}

// DistributeAndConfigure distributes the current epoch and registers the
// next one in a single transaction.
func (l *Ledger) DistributeAndConfigure(ctx context.Context, distributor common.Address, coupon *uint256.Int, next epoch.Window) (epoch.Report, epoch.Epoch, error) {
	var (
		report epoch.Report
		e      epoch.Epoch
	)
	err := l.Batch(ctx, func(b *Batch) error {
		var err error
		if report, err = b.Distribute(distributor, coupon); err != nil {
			return err
		}
		e, err = b.ConfigureEpoch(next)
		return err
	})
	if err != nil {
		return epoch.Report{}, epoch.Epoch{}, err
	}
	return report, e, nil
}
