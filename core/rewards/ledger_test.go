package rewards

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"couponledger/core/events"
	"couponledger/core/fixedpoint"
)

func TestLateDepositorEarnsNothingForEpoch(t *testing.T) {
	h := newHarness(t, testParams())
	h.configure(t0)
	h.mint(addrA, 1_000)

	h.at(t0 + 29*day)
	h.mint(addrB, 1_000)
	require.Equal(t, "late_entry", h.view(addrB).Status)

	h.at(t0 + 30*day)
	rep := h.distribute(30_000)
	requireEq(t, 1_000*30*day, rep.DenominatorUnits, "only A's balance-time counts")
	requireEq(t, 29_999, rep.TokensAllocated, "allocation")
	requireEq(t, 1, rep.DustCarry, "rounding dust")

	claimedA := h.claim(addrA)
	requireEq(t, 29_999, claimedA, "A takes the whole allocation")
	_, err := h.ledger.Claim(h.ctx, addrB, addrB)
	require.ErrorIs(t, err, ErrNothingToClaim)

	// Late inflow earns from the next epoch onward.
	h.configure(t0 + 30*day)
	h.at(t0 + 60*day)
	h.distribute(60_000)
	a := h.claim(addrA)
	b := h.claim(addrB)
	require.Equal(t, a.Dec(), b.Dec(), "equal balances for the full epoch earn equally")
}

func TestPreCheckpointSaleForfeitsProportionalUnits(t *testing.T) {
	h := newHarness(t, testParams())
	h.configure(t0)
	h.mint(addrC, 1_000)
	h.mint(addrD, 1_000)

	h.at(t0 + 5*day)
	before := h.view(addrC).UnitsAccrued
	requireEq(t, 1_000*5*day, before, "C units before sale")

	h.transfer(addrC, addrD, 500)
	requireEq(t, 500*5*day, h.view(addrC).UnitsAccrued, "C keeps half")
	requireEq(t, 500*5*day, h.global().TreasuryUnits, "treasury gets the other half")
	require.Len(t, h.events.OfType(events.TypeRewardsBreakage), 1)
	require.Equal(t, "active", h.view(addrD).Status, "pre-checkpoint inflow is not late")
}

func TestZeroEligibleUnitsCarryCouponAsDust(t *testing.T) {
	h := newHarness(t, testParams())
	h.configure(t0)
	h.at(t0 + 30*day)
	rep := h.distribute(1_000)
	require.True(t, rep.DeltaIndex.IsZero())
	requireEq(t, 0, rep.TokensAllocated, "nothing allocated")
	requireEq(t, 1_000, rep.DustCarry, "everything carried")
	requireEq(t, 1_000, h.global().Dust, "dust kept in integrator")
	require.Len(t, h.custody.pulls, 1, "coupon is still pulled into custody")

	h.configure(t0 + 30*day)
	h.mint(addrA, 10)
	h.at(t0 + 60*day)
	rep = h.distribute(0)
	requireEq(t, 1_000, rep.TotalReward, "carried dust funds the next epoch")
	require.Equal(t, rep.TokensAllocated.Dec(), h.claim(addrA).Dec(), "sole holder receives carried dust")
	total := new(uint256.Int).Add(rep.TokensAllocated, rep.DustCarry)
	requireEq(t, 1_000, total, "allocation plus new dust")
	require.Len(t, h.custody.pulls, 1, "zero coupon is not pulled")
}

func TestEligibleUnitsNeverDecreaseWithinEpoch(t *testing.T) {
	h := newHarness(t, testParams())
	h.configure(t0)
	h.mint(addrA, 1_000)
	h.mint(addrB, 1_000)

	last := new(uint256.Int)
	step := func(ts uint64, action func()) {
		h.at(ts)
		if action != nil {
			action()
		}
		units := h.global().EligibleUnits
		require.True(t, units.Cmp(last) >= 0, "eligible units decreased at %d", ts)
		last = units
	}
	step(t0+day, nil)
	step(t0+3*day, func() { h.transfer(addrA, addrB, 400) })
	step(t0+4*day, func() {
		require.NoError(t, h.ledger.OnBalanceChange(h.ctx, addrB, common.Address{}, u(900)))
	})
	step(t0+13*day, func() { h.transfer(addrB, addrC, 100) })
	step(t0+17*day, func() { h.transfer(addrA, addrD, 100) })
	step(t0+40*day, nil)
	require.Equal(t, t0+30*day, h.global().LastUpdate, "integration stops at epoch end")
}

func TestSettleIsIdempotent(t *testing.T) {
	h := newHarness(t, testParams())
	h.configure(t0)
	h.mint(addrA, 1_000)
	h.at(t0 + 13*day)
	h.mint(addrA, 50)
	h.at(t0 + 20*day)

	l := h.ledger
	l.mu.Lock()
	defer l.mu.Unlock()
	tx := l.begin(h.ctx)
	require.NoError(t, tx.advance())
	acc := tx.account(addrA)
	require.NoError(t, tx.settle(acc))
	first := acc.Clone()
	require.NoError(t, tx.settle(acc))
	require.Equal(t, first.stored(), acc.stored())
	requireEq(t, 1_000*20*day, acc.UnitsAccrued, "late inflow does not earn")
}

func TestLateInflowEarnsNothingMore(t *testing.T) {
	h := newHarness(t, testParams())
	h.configure(t0)
	h.mint(addrA, 1_000)
	h.mint(addrB, 1_000)
	h.at(t0 + 12*day)
	h.mint(addrA, 5_000)
	h.at(t0 + 30*day)
	h.distribute(20_000)
	require.Equal(t, h.claim(addrB).Dec(), h.claim(addrA).Dec())
}

func TestBreakageUnitsAreConserved(t *testing.T) {
	h := newHarness(t, testParams())
	h.configure(t0)
	h.mint(addrA, 1_000)
	h.mint(addrB, 2_000)
	h.at(t0 + 5*day)
	h.transfer(addrA, addrC, 300)
	h.at(t0 + 13*day)
	h.transfer(addrB, addrD, 700)
	h.at(t0 + 20*day)
	h.transfer(addrB, addrA, 500)
	h.at(t0 + 30*day)

	l := h.ledger
	l.mu.Lock()
	tx := l.begin(h.ctx)
	require.NoError(t, tx.advance())
	sum := new(uint256.Int)
	for _, addr := range []common.Address{addrA, addrB, addrC, addrD} {
		acc := tx.account(addr)
		require.NoError(t, tx.settle(acc))
		sum.Add(sum, acc.UnitsAccrued)
	}
	g := tx.global
	held := new(uint256.Int).Add(sum, g.TreasuryUnits)
	require.Equal(t, g.EligibleUnits.Dec(), held.Dec(), "account units plus forfeits equal the integral")
	requireEq(t, 500*10*day, g.FutureBreakageUnits, "sale after checkpoint end grants remaining time")
	denominator, err := g.Denominator()
	require.NoError(t, err)
	expected := new(uint256.Int).Add(sum, g.TreasuryUnits)
	expected.Add(expected, g.FutureBreakageUnits)
	require.Equal(t, expected.Dec(), denominator.Dec())
	l.mu.Unlock()

	rep := h.distribute(100_000)
	require.False(t, rep.SinkMinted.IsZero())
	require.Equal(t, rep.SinkMinted.Dec(), h.minter.total(MintReasonBreakage).Dec())
}

func TestConservationAcrossEpochs(t *testing.T) {
	params := testParams()
	h := newHarness(t, params)
	h.feed.Q.SkimBps = 100
	h.configure(t0)
	h.mint(addrA, 1_000)
	h.at(t0 + 3*day)
	h.mint(addrB, 500)
	h.at(t0 + 5*day)
	h.transfer(addrA, addrB, 200)
	h.at(t0 + 13*day)
	h.mint(addrC, 300)
	h.at(t0 + 20*day)
	h.transfer(addrB, addrC, 100)
	h.transfer(addrA, selfAddr, 100)
	h.at(t0 + 30*day)
	rep1 := h.distribute(9_999)
	requireEq(t, 99, rep1.Skim, "1% skim")
	require.Len(t, h.custody.skims, 1)
	require.Equal(t, treasury, h.custody.skims[0].addr)

	h.configure(t0 + 30*day)
	h.at(t0 + 35*day)
	h.transfer(addrC, addrA, 50)
	h.at(t0 + 41*day)
	h.transfer(addrB, addrD, 25)
	h.at(t0 + 60*day)
	rep2 := h.distribute(12_345)

	claimed := new(uint256.Int)
	for _, addr := range []common.Address{addrA, addrB, addrC, addrD} {
		amount, err := h.ledger.Claim(h.ctx, addr, addr)
		if err != nil {
			require.ErrorIs(t, err, ErrNothingToClaim)
			continue
		}
		claimed.Add(claimed, amount)
	}

	g := h.global()
	for _, rep := range []struct{ alloc, dust, total *uint256.Int }{
		{rep1.TokensAllocated, rep1.DustCarry, rep1.TotalReward},
		{rep2.TokensAllocated, rep2.DustCarry, rep2.TotalReward},
	} {
		require.Equal(t, rep.total.Dec(), new(uint256.Int).Add(rep.alloc, rep.dust).Dec())
	}
	paid := new(uint256.Int).Add(claimed, g.TotalSinkMinted)
	require.True(t, paid.Cmp(g.TotalDeclared) <= 0, "paid %s > declared %s", paid.Dec(), g.TotalDeclared.Dec())
	slack := new(uint256.Int).Sub(g.TotalDeclared, paid)
	require.True(t, slack.Cmp(u(20)) <= 0, "rounding slack too large: %s", slack.Dec())
	require.Equal(t, claimed.Dec(), h.minter.total(MintReasonClaim).Dec())

	sum := new(uint256.Int)
	for addr, bal := range h.ledger.Balances() {
		require.NotEqual(t, selfAddr, addr, "transfers to the ledger address are ignored")
		sum.Add(sum, bal)
	}
	require.Equal(t, g.TrackedSupply.Dec(), sum.Dec())
}

func TestSkippedEpochsFinalizeOnNextTouch(t *testing.T) {
	h := newHarness(t, testParams())
	start := t0
	h.configure(start)
	h.mint(addrA, 1_000)
	allocated := new(uint256.Int)
	for i := 0; i < 3; i++ {
		if i > 0 {
			h.configure(start)
		}
		h.at(start + 30*day)
		rep := h.distribute(3_000 + uint64(i))
		allocated.Add(allocated, rep.TokensAllocated)
		start += 30 * day
	}
	require.Equal(t, uint64(3), h.view(addrA).LastAccruedEpoch)
	require.Equal(t, allocated.Dec(), h.claim(addrA).Dec())
	require.Equal(t, uint64(3), h.view(addrA).LastClaimedEpoch)
}

func TestExclusionKeepsPriorRewards(t *testing.T) {
	h := newHarness(t, testParams())
	h.configure(t0)
	h.mint(addrA, 1_000)
	h.mint(addrB, 1_000)
	h.at(t0 + 10*day)
	require.NoError(t, h.ledger.SetExcluded(h.ctx, addrB, true))
	require.Equal(t, "excluded", h.view(addrB).Status)
	requireEq(t, 1_000, h.global().ExcludedSupply, "excluded supply")
	h.at(t0 + 30*day)
	h.distribute(40_000)
	requireEq(t, 29_999, h.claim(addrA), "A earns the full epoch")
	requireEq(t, 9_999, h.claim(addrB), "B keeps the ten days before exclusion")

	h.configure(t0 + 30*day)
	h.at(t0 + 60*day)
	h.distribute(1_000)
	_, err := h.ledger.Claim(h.ctx, addrB, addrB)
	require.ErrorIs(t, err, ErrNothingToClaim, "excluded accounts accrue nothing")

	h.configure(t0 + 60*day)
	h.at(t0 + 61*day)
	require.NoError(t, h.ledger.SetExcluded(h.ctx, addrB, false))
	requireEq(t, 0, h.global().ExcludedSupply, "re-included")
	requireEq(t, 2_000, h.global().EligibleSupply, "B earns again")
}

func TestReincludedInsideCheckpointIsLate(t *testing.T) {
	h := newHarness(t, testParams())
	h.configure(t0)
	h.mint(addrB, 1_000)
	require.NoError(t, h.ledger.SetExcluded(h.ctx, addrB, true))
	h.at(t0 + 13*day)
	require.NoError(t, h.ledger.SetExcluded(h.ctx, addrB, false))
	v := h.view(addrB)
	require.Equal(t, "late_entry", v.Status)
	requireEq(t, 1_000, v.LateInflow, "whole balance late")
	requireEq(t, 0, h.global().EligibleSupply, "not earning this epoch")
}

func TestOutflowBeyondBalanceFails(t *testing.T) {
	h := newHarness(t, testParams())
	h.mint(addrA, 10)
	err := h.ledger.OnBalanceChange(h.ctx, addrA, addrB, u(11))
	require.ErrorIs(t, err, ErrInsufficientBalance)
	requireEq(t, 10, h.view(addrA).Balance, "balance unchanged")
	requireEq(t, 0, h.view(addrB).Balance, "no partial inflow")
	require.NoError(t, h.ledger.OnBalanceChange(h.ctx, addrA, addrA, u(11)), "self transfers ignored")
	require.NoError(t, h.ledger.OnBalanceChange(h.ctx, addrA, addrB, nil))
}

func TestInflowBeforeFirstEpochEarnsFromStart(t *testing.T) {
	h := newHarness(t, testParams())
	h.mint(addrA, 1_000)
	require.Equal(t, "pending", h.view(addrA).Status)
	h.at(t0 + day)
	h.configure(t0 + day)
	requireEq(t, 1_000, h.global().EligibleSupply, "pre-epoch balances are eligible")
	h.at(t0 + 31*day)
	rep := h.distribute(1_000)
	require.Equal(t, rep.TokensAllocated.Dec(), h.claim(addrA).Dec())
}

func TestScaledIndexMatchesReport(t *testing.T) {
	h := newHarness(t, testParams())
	h.configure(t0)
	h.mint(addrA, 7)
	h.at(t0 + 30*day)
	rep := h.distribute(1_000_000)
	expected, err := fixedpoint.Ratio(rep.TotalReward, rep.DenominatorUnits)
	require.NoError(t, err)
	require.Equal(t, expected.String(), rep.DeltaIndex.String())
	require.Equal(t, rep.DeltaIndex.String(), h.global().CumulativeIndex)
	digest, err := rep.Digest()
	require.NoError(t, err)
	require.Len(t, digest, 64)
}
