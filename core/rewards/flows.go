package rewards

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"couponledger/core/events"
	"couponledger/core/fixedpoint"
)

// OnBalanceChange applies a base-asset transfer notification. The zero
// address stands for mint (from) or burn (to). Self-transfers, zero amounts
// and transfers touching the ledger's own address are ignored.
func (l *Ledger) OnBalanceChange(ctx context.Context, from, to common.Address, amount *uint256.Int) error {
	if amount == nil || amount.IsZero() || from == to {
		return nil
	}
	return l.apply(ctx, "balance_change", func(t *txn) error {
		self := t.params.SelfAddress
		if self != (common.Address{}) && (from == self || to == self) {
			return nil
		}
		if err := t.advance(); err != nil {
			return err
		}
		if from != (common.Address{}) {
			if err := t.outflow(from, amount); err != nil {
				return err
			}
		}
		if to != (common.Address{}) {
			if err := t.inflow(to, amount); err != nil {
				return err
			}
		}
		supply := t.global.EligibleSupply.ToBig()
		t.after = append(t.after, func() { t.l.metrics.SetEligibleSupply(supply) })
		return nil
	})
}

func (t *txn) outflow(addr common.Address, amount *uint256.Int) error {
	acc := t.account(addr)
	if err := t.settle(acc); err != nil {
		return err
	}
	if acc.Balance.Cmp(amount) < 0 {
		return fmt.Errorf("%w: %s has %s, outflow %s", ErrInsufficientBalance, addr.Hex(), acc.Balance.Dec(), amount.Dec())
	}
	var err error
	if t.global.TrackedSupply, err = fixedpoint.Sub(t.global.TrackedSupply, amount); err != nil {
		return err
	}
	if acc.Excluded() {
		acc.Balance = new(uint256.Int).Sub(acc.Balance, amount)
		t.global.ExcludedSupply, err = fixedpoint.Sub(t.global.ExcludedSupply, amount)
		return err
	}

	current, ok := t.current()
	var epochID uint64
	if ok {
		epochID = current.ID
	}
	earningBefore := acc.EarningBalance(epochID)
	fromLate := acc.consumeLate(epochID, amount)
	earningSold := new(uint256.Int).Sub(amount, fromLate)
	acc.Balance = new(uint256.Int).Sub(acc.Balance, amount)
	if earningSold.IsZero() {
		return nil
	}
	if t.global.EligibleSupply, err = fixedpoint.Sub(t.global.EligibleSupply, earningSold); err != nil {
		return err
	}
	if !ok {
		return nil
	}

	switch {
	case current.BeforeCheckpointEnd(t.now):
		if acc.UnitsAccrued.IsZero() || earningBefore.IsZero() {
			return nil
		}
		forfeit, err := fixedpoint.MulDiv(acc.UnitsAccrued, earningSold, earningBefore)
		if err != nil {
			return err
		}
		debtSlice, err := fixedpoint.MulDiv(acc.RewardDebt, earningSold, earningBefore)
		if err != nil {
			return err
		}
		acc.UnitsAccrued = new(uint256.Int).Sub(acc.UnitsAccrued, forfeit)
		acc.RewardDebt = new(uint256.Int).Sub(acc.RewardDebt, debtSlice)
		if t.global.TreasuryUnits, err = fixedpoint.Add(t.global.TreasuryUnits, forfeit); err != nil {
			return err
		}
		return t.recordBreakage(addr, current.ID, events.BreakageTreasury, forfeit, earningSold)
	case current.AfterCheckpointEnd(t.now):
		future, err := fixedpoint.Mul(earningSold, uint256.NewInt(current.EndTime-t.now))
		if err != nil {
			return err
		}
		if t.global.FutureBreakageUnits, err = fixedpoint.Add(t.global.FutureBreakageUnits, future); err != nil {
			return err
		}
		return t.recordBreakage(addr, current.ID, events.BreakageFuture, future, earningSold)
	}
	return nil
}

func (t *txn) recordBreakage(addr common.Address, epochID uint64, kind events.BreakageKind, units, sold *uint256.Int) error {
	if units.IsZero() {
		return nil
	}
	var err error
	if t.global.LifetimeBreakageUnits, err = fixedpoint.Add(t.global.LifetimeBreakageUnits, units); err != nil {
		return err
	}
	t.emit(events.RewardsBreakage{Account: addr, Epoch: epochID, Kind: kind, Units: units, Sold: sold}.Event())
	observed := units.ToBig()
	t.after = append(t.after, func() { t.l.metrics.ObserveBreakage(string(kind), observed) })
	return nil
}

func (t *txn) inflow(addr common.Address, amount *uint256.Int) error {
	acc := t.account(addr)
	if err := t.settle(acc); err != nil {
		return err
	}
	var err error
	if acc.Balance, err = fixedpoint.Add(acc.Balance, amount); err != nil {
		return err
	}
	if t.global.TrackedSupply, err = fixedpoint.Add(t.global.TrackedSupply, amount); err != nil {
		return err
	}
	acc.LastInflowTime = t.now
	if acc.Excluded() {
		t.global.ExcludedSupply, err = fixedpoint.Add(t.global.ExcludedSupply, amount)
		return err
	}
	if current, ok := t.current(); ok && current.InCheckpoint(t.now) {
		if err := acc.addLate(current.ID, amount); err != nil {
			return err
		}
		t.emit(events.RewardsLateInflow{Account: addr, Epoch: current.ID, Amount: fixedpoint.Copy(amount)}.Event())
		return nil
	}
	t.global.EligibleSupply, err = fixedpoint.Add(t.global.EligibleSupply, amount)
	return err
}
