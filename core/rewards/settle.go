package rewards

import (
	"fmt"

	"github.com/holiman/uint256"

	"couponledger/core/epoch"
	"couponledger/core/fixedpoint"
)

// settle brings acc up to t.now: it finalizes every epoch the account has
// not yet closed and accrues units for the current one. Settling twice at
// the same timestamp is a no-op.
func (t *txn) settle(acc *Account) error {
	current, ok := t.current()
	if !ok {
		if t.now > acc.LastAccrualTime {
			acc.LastAccrualTime = t.now
		}
		return nil
	}

	if acc.LastAccruedEpoch == 0 {
		t.enroll(acc, current)
	}

	for acc.LastAccruedEpoch < current.ID {
		if err := t.finalizeEpoch(acc); err != nil {
			return err
		}
	}

	capped := current.Cap(t.now)
	if capped <= acc.LastAccrualTime {
		return nil
	}
	if acc.Excluded() {
		acc.LastAccrualTime = capped
		return nil
	}
	if err := t.accrueCurrent(acc, current, capped); err != nil {
		return err
	}
	acc.LastAccrualTime = capped
	return nil
}

// enroll initialises an account on its first settlement under an epoch.
// Accounts that already hold a balance were counted in eligible supply from
// the first epoch onward and accrue from there.
func (t *txn) enroll(acc *Account, current epoch.Epoch) {
	if acc.Status == StatusPending {
		acc.Status = StatusActive
	}
	if acc.Balance.IsZero() {
		acc.LastAccruedEpoch = current.ID
		acc.LastAccrualTime = current.StartTime
		return
	}
	first, _ := t.registry.Get(1)
	acc.LastAccruedEpoch = first.ID
	acc.LastAccrualTime = first.StartTime
}

// finalizeEpoch closes acc.LastAccruedEpoch, which must already be
// distributed, and moves the account to the following epoch.
func (t *txn) finalizeEpoch(acc *Account) error {
	id := acc.LastAccruedEpoch
	e, ok := t.registry.Get(id)
	if !ok {
		return fmt.Errorf("rewards: settle: %w: %d", epoch.ErrUnknownEpoch, id)
	}
	rep, ok := t.registry.Report(id)
	if !ok {
		return fmt.Errorf("rewards: settle: epoch %d closed without report", id)
	}
	if !acc.Excluded() {
		start := acc.LastAccrualTime
		if start < e.StartTime {
			start = e.StartTime
		}
		if end := rep.AccrualEnd(); end > start {
			du, err := fixedpoint.Mul(acc.EarningBalance(id), uint256.NewInt(end-start))
			if err != nil {
				return err
			}
			if acc.UnitsAccrued, err = fixedpoint.Add(acc.UnitsAccrued, du); err != nil {
				return err
			}
		}
	}
	if !acc.UnitsAccrued.IsZero() {
		reward, err := rep.DeltaIndex.MulInt(acc.UnitsAccrued)
		if err != nil {
			return err
		}
		if acc.PendingRewards, err = fixedpoint.Add(acc.PendingRewards, reward); err != nil {
			return err
		}
	}
	acc.UnitsAccrued = new(uint256.Int)
	acc.RewardDebt = new(uint256.Int)
	if acc.Status == StatusLateEntry && acc.LateEpoch <= id {
		acc.clearLate()
	}
	next, ok := t.registry.Get(id + 1)
	if !ok {
		return fmt.Errorf("rewards: settle: %w: %d", epoch.ErrUnknownEpoch, id+1)
	}
	acc.LastAccruedEpoch = next.ID
	acc.LastAccrualTime = next.StartTime
	return nil
}

// accrueCurrent adds units for [LastAccrualTime, capped). When the epoch has
// already been distributed the slice before the distribution is paid out
// directly at the epoch's delta index.
func (t *txn) accrueCurrent(acc *Account, current epoch.Epoch, capped uint64) error {
	earning := acc.EarningBalance(current.ID)
	if earning.IsZero() {
		return nil
	}
	from := acc.LastAccrualTime
	if from < current.StartTime {
		from = current.StartTime
	}
	if capped <= from {
		return nil
	}
	postFrom := from
	if rep, distributed := t.registry.Report(current.ID); distributed {
		preEnd := rep.AccrualEnd()
		if preEnd > capped {
			preEnd = capped
		}
		if preEnd > from {
			pre, err := fixedpoint.Mul(earning, uint256.NewInt(preEnd-from))
			if err != nil {
				return err
			}
			reward, err := rep.DeltaIndex.MulInt(pre)
			if err != nil {
				return err
			}
			if acc.PendingRewards, err = fixedpoint.Add(acc.PendingRewards, reward); err != nil {
				return err
			}
			postFrom = preEnd
		}
	}
	if capped <= postFrom {
		return nil
	}
	du, err := fixedpoint.Mul(earning, uint256.NewInt(capped-postFrom))
	if err != nil {
		return err
	}
	debt, err := t.global.CumulativeIndex.MulIntRaw(du)
	if err != nil {
		return err
	}
	if acc.UnitsAccrued, err = fixedpoint.Add(acc.UnitsAccrued, du); err != nil {
		return err
	}
	if acc.RewardDebt, err = fixedpoint.Add(acc.RewardDebt, debt); err != nil {
		return err
	}
	return nil
}

// claimable returns pending + max(0, units*index - debt) / 1e18.
func (t *txn) claimable(acc *Account) (*uint256.Int, error) {
	raw, err := t.global.CumulativeIndex.MulIntRaw(acc.UnitsAccrued)
	if err != nil {
		return nil, err
	}
	current, err := fixedpoint.MulDiv(fixedpoint.SubFloor(raw, acc.RewardDebt), uint256.NewInt(1), fixedpoint.Precision())
	if err != nil {
		return nil, err
	}
	return fixedpoint.Add(acc.PendingRewards, current)
}
