package pricing

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/big"
	"time"

	"github.com/jonboulle/clockwork"

	"couponledger/core/fixedpoint"
)

// PriceStatus captures the health classification assigned to an oracle quote.
type PriceStatus string

const (
	// PriceStatusOK indicates the quote passed all configured guardrails.
	PriceStatusOK PriceStatus = "ok"
	// PriceStatusStale signals the quote exceeded the configured freshness window.
	PriceStatusStale PriceStatus = "stale"
	// PriceStatusDeviant indicates the quote deviated from its TWAP beyond the
	// configured threshold. The ledger treats this as a depeg signal.
	PriceStatusDeviant PriceStatus = "deviant"
)

var (
	ErrNoObservation = errors.New("pricing: no observation")
	ErrInvalidRate   = errors.New("pricing: invalid oracle rate")
	ErrInvalidSkim   = errors.New("pricing: skim exceeds 10000 bps")
)

// Quote is the policy input consumed by a distribution.
type Quote struct {
	// ConversionPrice is reward tokens per income unit, scaled by 1e18.
	ConversionPrice fixedpoint.Scaled
	// SkimBps is the fraction of the coupon withheld for the treasury.
	SkimBps uint64
	// AgeSeconds reports how old the underlying observation is.
	AgeSeconds uint32
	// Status classifies the reference price. Deviant wins over stale.
	Status PriceStatus
	// Stale is set whenever the observation is older than the freshness
	// window, including when Status reports a deviation.
	Stale bool
}

// PolicyFeed exposes the price and fee inputs used by distributions.
type PolicyFeed interface {
	Refresh(ctx context.Context) error
	Quote(ctx context.Context) (Quote, error)
}

// Observation is a single rate sample.
type Observation struct {
	Rate      fixedpoint.Scaled
	Timestamp time.Time
}

// RateSource yields the latest rate and a time-weighted average over a window.
type RateSource interface {
	Latest(ctx context.Context) (Observation, error)
	TWAP(ctx context.Context, window time.Duration) (fixedpoint.Scaled, error)
}

// Refresher is implemented by sources that can pull a new observation on demand.
type Refresher interface {
	Refresh(ctx context.Context) error
}

// GuardConfig bounds acceptable quotes.
type GuardConfig struct {
	MaxAge          time.Duration
	TwapWindow      time.Duration
	MaxDeviationBps uint32
	SkimBps         uint64
}

// Validate ensures the guard is self-consistent.
func (g GuardConfig) Validate() error {
	if g.SkimBps > fixedpoint.BasisPoints {
		return ErrInvalidSkim
	}
	if g.MaxDeviationBps > 0 && g.TwapWindow <= 0 {
		return fmt.Errorf("pricing: twap window required when deviation guard enabled")
	}
	return nil
}

// OracleFeed classifies quotes from a RateSource using GuardConfig.
type OracleFeed struct {
	source RateSource
	guard  GuardConfig
	clock  clockwork.Clock
}

// NewOracleFeed constructs a guarded feed.
func NewOracleFeed(source RateSource, guard GuardConfig, clock clockwork.Clock) (*OracleFeed, error) {
	if source == nil {
		return nil, fmt.Errorf("pricing: source required")
	}
	if err := guard.Validate(); err != nil {
		return nil, err
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &OracleFeed{source: source, guard: guard, clock: clock}, nil
}

// Refresh asks the underlying source for a new observation when supported.
func (f *OracleFeed) Refresh(ctx context.Context) error {
	if r, ok := f.source.(Refresher); ok {
		return r.Refresh(ctx)
	}
	return nil
}

// Quote resolves the guarded conversion quote.
func (f *OracleFeed) Quote(ctx context.Context) (Quote, error) {
	obs, err := f.source.Latest(ctx)
	if err != nil {
		return Quote{}, err
	}
	if obs.Rate.IsZero() {
		return Quote{}, ErrInvalidRate
	}
	now := f.clock.Now().UTC()
	status := PriceStatusOK
	age := computeAgeSeconds(obs.Timestamp, now)
	if f.guard.MaxAge > 0 {
		if obs.Timestamp.IsZero() || time.Duration(age)*time.Second > f.guard.MaxAge {
			status = PriceStatusStale
		}
	}
	stale := status == PriceStatusStale
	if f.guard.MaxDeviationBps > 0 {
		twap, err := f.source.TWAP(ctx, f.guard.TwapWindow)
		if err == nil && !twap.IsZero() && deviatesBeyondThreshold(obs.Rate, twap, f.guard.MaxDeviationBps) {
			status = PriceStatusDeviant
		}
	}
	return Quote{ConversionPrice: obs.Rate, SkimBps: f.guard.SkimBps, AgeSeconds: age, Status: status, Stale: stale}, nil
}

// StaticFeed returns a fixed quote. Used for fixed-price deployments and tests.
type StaticFeed struct {
	Q          Quote
	Err        error
	RefreshErr error
	Refreshes  int
}

func (s *StaticFeed) Refresh(context.Context) error {
	s.Refreshes++
	return s.RefreshErr
}

func (s *StaticFeed) Quote(context.Context) (Quote, error) {
	if s.Err != nil {
		return Quote{}, s.Err
	}
	return s.Q, nil
}

func computeAgeSeconds(observed, now time.Time) uint32 {
	if observed.IsZero() || now.IsZero() {
		return math.MaxUint32
	}
	if observed.After(now) {
		return 0
	}
	seconds := now.Sub(observed) / time.Second
	if seconds > math.MaxUint32 {
		return math.MaxUint32
	}
	return uint32(seconds)
}

func deviatesBeyondThreshold(spot, average fixedpoint.Scaled, thresholdBps uint32) bool {
	avg := new(big.Rat).SetInt(average.Raw().ToBig())
	if avg.Sign() <= 0 {
		return false
	}
	diff := new(big.Rat).Sub(new(big.Rat).SetInt(spot.Raw().ToBig()), avg)
	if diff.Sign() < 0 {
		diff.Neg(diff)
	}
	if diff.Sign() == 0 {
		return false
	}
	ratio := new(big.Rat).Quo(diff, avg)
	ratio.Mul(ratio, big.NewRat(fixedpoint.BasisPoints, 1))
	return ratio.Cmp(big.NewRat(int64(thresholdBps), 1)) == 1
}
