package rewards

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"couponledger/core/epoch"
	"couponledger/core/events"
	"couponledger/core/fixedpoint"
	"couponledger/core/pricing"
	nativecommon "couponledger/native/common"
)

// Distribute converts coupon into reward tokens for the current epoch and
// freezes its report. It may run once per epoch, at or after the epoch end.
func (l *Ledger) Distribute(ctx context.Context, distributor common.Address, coupon *uint256.Int) (epoch.Report, error) {
	var report epoch.Report
	err := l.apply(ctx, "distribute", func(t *txn) error {
		var err error
		report, err = t.distribute(distributor, coupon)
		return err
	})
	if err != nil {
		return epoch.Report{}, err
	}
	return report, nil
}

func (t *txn) quote() (pricing.Quote, error) {
	feed := t.l.feed
	if feed == nil {
		return pricing.Quote{}, fmt.Errorf("%w: not configured", ErrPriceFeed)
	}
	if err := feed.Refresh(t.ctx); err != nil {
		return pricing.Quote{}, fmt.Errorf("%w: refresh: %v", ErrPriceFeed, err)
	}
	q, err := feed.Quote(t.ctx)
	if err != nil {
		return pricing.Quote{}, fmt.Errorf("%w: %v", ErrPriceFeed, err)
	}
	return q, nil
}

func (t *txn) distribute(distributor common.Address, coupon *uint256.Int) (epoch.Report, error) {
	if err := nativecommon.Guard(t.l.pauses, ModuleName); err != nil {
		return epoch.Report{}, err
	}
	if coupon == nil {
		coupon = new(uint256.Int)
	}
	current, ok := t.current()
	if !ok {
		return epoch.Report{}, ErrEpochNotConfigured
	}
	if t.registry.Distributed(current.ID) {
		return epoch.Report{}, fmt.Errorf("%w: epoch %d", ErrAlreadyDistributed, current.ID)
	}
	if t.now < current.EndTime {
		return epoch.Report{}, fmt.Errorf("%w: epoch %d ends at %d, now %d", ErrDistributionTooEarly, current.ID, current.EndTime, t.now)
	}
	if !coupon.IsZero() && distributor == (common.Address{}) {
		return epoch.Report{}, fmt.Errorf("%w: distributor", ErrZeroAddress)
	}

	q, err := t.quote()
	if err != nil {
		return epoch.Report{}, err
	}
	if t.params.DepegGuard && q.Status == pricing.PriceStatusDeviant {
		return epoch.Report{}, ErrDepegGuard
	}
	if q.Stale || q.Status == pricing.PriceStatusStale {
		return epoch.Report{}, fmt.Errorf("%w: observation age %ds", ErrPriceStale, q.AgeSeconds)
	}
	if q.SkimBps > fixedpoint.BasisPoints {
		return epoch.Report{}, pricing.ErrInvalidSkim
	}
	skim, err := fixedpoint.Bps(coupon, q.SkimBps)
	if err != nil {
		return epoch.Report{}, err
	}
	if !skim.IsZero() && t.params.Treasury == (common.Address{}) {
		return epoch.Report{}, ErrTreasuryUnset
	}
	net := new(uint256.Int).Sub(coupon, skim)
	if q.ConversionPrice.IsZero() {
		return epoch.Report{}, ErrZeroPrice
	}
	converted, err := q.ConversionPrice.MulInt(net)
	if err != nil {
		return epoch.Report{}, err
	}
	total, err := fixedpoint.Add(converted, t.global.Dust)
	if err != nil {
		return epoch.Report{}, err
	}
	if total.IsZero() {
		return epoch.Report{}, ErrZeroReward
	}

	if err := t.advance(); err != nil {
		return epoch.Report{}, err
	}
	denominator, err := t.global.Denominator()
	if err != nil {
		return epoch.Report{}, err
	}
	sinkUnits, err := t.global.SinkUnits()
	if err != nil {
		return epoch.Report{}, err
	}

	var (
		delta     fixedpoint.Scaled
		allocated = new(uint256.Int)
		dust      = fixedpoint.Copy(total)
		sinkMint  = new(uint256.Int)
	)
	if !denominator.IsZero() {
		if delta, err = fixedpoint.Ratio(total, denominator); err != nil {
			return epoch.Report{}, err
		}
		if allocated, err = delta.MulInt(denominator); err != nil {
			return epoch.Report{}, err
		}
		dust = new(uint256.Int).Sub(total, allocated)
		if sinkMint, err = delta.MulInt(sinkUnits); err != nil {
			return epoch.Report{}, err
		}
	}
	if ceiling := t.params.MintCeiling; ceiling != nil && !ceiling.IsZero() && allocated.Cmp(ceiling) > 0 {
		return epoch.Report{}, fmt.Errorf("%w: allocated %s > ceiling %s", ErrMintCeilingExceeded, allocated.Dec(), ceiling.Dec())
	}
	if !sinkMint.IsZero() && t.params.BreakageSink == (common.Address{}) {
		return epoch.Report{}, ErrBreakageSinkUnset
	}

	cumulative, err := t.global.CumulativeIndex.Add(delta)
	if err != nil {
		return epoch.Report{}, err
	}
	report := epoch.Report{
		EpochID:          current.ID,
		StartTime:        current.StartTime,
		EndTime:          current.EndTime,
		DistributionTime: t.now,
		Coupon:           fixedpoint.Copy(coupon),
		Skim:             skim,
		ConversionPrice:  q.ConversionPrice,
		TotalReward:      total,
		DenominatorUnits: denominator,
		SinkUnits:        sinkUnits,
		DeltaIndex:       delta,
		CumulativeIndex:  cumulative,
		TokensAllocated:  allocated,
		SinkMinted:       sinkMint,
		DustCarry:        dust,
	}
	if err := t.registry.Record(report); err != nil {
		return epoch.Report{}, err
	}
	t.newReports = append(t.newReports, current.ID)

	t.global.CumulativeIndex = cumulative
	t.global.Dust = dust
	if t.global.TotalDeclared, err = fixedpoint.Add(t.global.TotalDeclared, allocated); err != nil {
		return epoch.Report{}, err
	}
	if t.global.TotalSinkMinted, err = fixedpoint.Add(t.global.TotalSinkMinted, sinkMint); err != nil {
		return epoch.Report{}, err
	}
	t.global.closeEpoch()

	if !coupon.IsZero() {
		t.effects = append(t.effects, effect{kind: effectPullCoupon, epoch: current.ID, account: distributor, amount: fixedpoint.Copy(coupon)})
	}
	if !skim.IsZero() {
		t.effects = append(t.effects, effect{kind: effectWithdrawSkim, epoch: current.ID, account: t.params.Treasury, amount: fixedpoint.Copy(skim)})
	}
	if !sinkMint.IsZero() {
		t.effects = append(t.effects, effect{kind: effectMint, epoch: current.ID, account: t.params.BreakageSink, amount: fixedpoint.Copy(sinkMint), reason: MintReasonBreakage})
	}

	digest, err := report.Digest()
	if err != nil {
		return epoch.Report{}, err
	}
	t.emit(events.RewardsDistributed{
		Epoch:            current.ID,
		Coupon:           report.Coupon,
		Skim:             skim,
		TotalReward:      total,
		DenominatorUnits: denominator,
		DeltaIndex:       delta.String(),
		TokensAllocated:  allocated,
		SinkMinted:       sinkMint,
		Dust:             dust,
		Digest:           digest,
	}.Event())
	index, carried := cumulative.Raw().ToBig(), dust.ToBig()
	t.after = append(t.after, func() {
		t.l.metrics.ObserveDistribution(index, carried)
		t.l.logger.Info("rewards: epoch distributed",
			"epoch", current.ID,
			"coupon", coupon.Dec(),
			"totalReward", total.Dec(),
			"allocated", allocated.Dec(),
			"dust", dust.Dec(),
			"digest", digest)
	})
	return report.Clone(), nil
}
