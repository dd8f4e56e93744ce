package rewards

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"couponledger/core/events"
	"couponledger/core/fixedpoint"
	"couponledger/core/solvency"
	nativecommon "couponledger/native/common"
)

// Claim settles account and mints everything it has earned to recipient.
func (l *Ledger) Claim(ctx context.Context, account, recipient common.Address) (*uint256.Int, error) {
	var claimed *uint256.Int
	err := l.apply(ctx, "claim", func(t *txn) error {
		var err error
		claimed, err = t.claim(account, recipient)
		return err
	})
	if err != nil {
		l.metrics.ObserveClaim(claimOutcome(err), nil)
		return nil, err
	}
	l.metrics.ObserveClaim("ok", claimed.ToBig())
	return claimed, nil
}

func (t *txn) claim(addr, recipient common.Address) (*uint256.Int, error) {
	if err := nativecommon.Guard(t.l.pauses, ModuleName); err != nil {
		return nil, err
	}
	if addr == (common.Address{}) || recipient == (common.Address{}) {
		return nil, ErrZeroAddress
	}
	if err := t.advance(); err != nil {
		return nil, err
	}
	acc := t.account(addr)
	if err := t.settle(acc); err != nil {
		return nil, err
	}
	amount, err := t.claimable(acc)
	if err != nil {
		return nil, err
	}
	if amount.IsZero() {
		return nil, ErrNothingToClaim
	}
	if minClaim := fixedpoint.Copy(t.params.MinClaim); amount.Cmp(minClaim) < 0 {
		return nil, fmt.Errorf("%w: %s < %s", ErrClaimBelowMinimum, amount.Dec(), minClaim.Dec())
	}
	if maxClaim := fixedpoint.Copy(t.params.MaxClaim); !maxClaim.IsZero() && amount.Cmp(maxClaim) > 0 {
		return nil, fmt.Errorf("%w: %s > %s", ErrClaimAboveMaximum, amount.Dec(), maxClaim.Dec())
	}
	if err := t.checkSolvency(amount); err != nil {
		return nil, err
	}

	acc.PendingRewards = new(uint256.Int)
	current, _ := t.current()
	if t.registry.Distributed(current.ID) {
		acc.UnitsAccrued = new(uint256.Int)
		acc.RewardDebt = new(uint256.Int)
	}
	acc.LastClaimedEpoch = t.registry.LatestDistributed()
	if t.global.TotalClaimed, err = fixedpoint.Add(t.global.TotalClaimed, amount); err != nil {
		return nil, err
	}

	t.effects = append(t.effects, effect{kind: effectMint, epoch: acc.LastClaimedEpoch, account: recipient, amount: fixedpoint.Copy(amount), reason: MintReasonClaim})
	t.emit(events.RewardsClaimed{Account: addr, Recipient: recipient, Amount: fixedpoint.Copy(amount), Epoch: acc.LastClaimedEpoch}.Event())
	t.after = append(t.after, func() {
		t.l.logger.Info("rewards: claimed", "account", addr.Hex(), "recipient", recipient.Hex(), "amount", amount.Dec())
	})
	return amount, nil
}

func (t *txn) checkSolvency(amount *uint256.Int) error {
	policy := t.params.Solvency
	if !policy.Enabled() {
		return nil
	}
	if t.l.solvency == nil {
		return fmt.Errorf("%w: no solvency source", ErrSolvencyStale)
	}
	snap, err := t.l.solvency.Snapshot(t.ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSolvencyStale, err)
	}
	switch err := policy.Check(snap, amount, t.l.clock.Now()); {
	case err == nil:
		return nil
	case errors.Is(err, solvency.ErrStale):
		return fmt.Errorf("%w: %v", ErrSolvencyStale, err)
	case errors.Is(err, solvency.ErrHeadroom):
		return fmt.Errorf("%w: %v", ErrSolvencyHeadroom, err)
	default:
		return err
	}
}

func claimOutcome(err error) string {
	switch {
	case errors.Is(err, ErrNothingToClaim):
		return "nothing"
	case errors.Is(err, ErrClaimBelowMinimum):
		return "below_minimum"
	case errors.Is(err, ErrClaimAboveMaximum):
		return "above_maximum"
	case errors.Is(err, ErrSolvencyStale):
		return "solvency_stale"
	case errors.Is(err, ErrSolvencyHeadroom):
		return "solvency_headroom"
	case errors.Is(err, nativecommon.ErrModulePaused):
		return "paused"
	case errors.Is(err, ErrMintFailed):
		return "mint_failed"
	default:
		return "error"
	}
}
