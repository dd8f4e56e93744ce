// Package rewards implements the time-weighted coupon rewards ledger: lazy
// per-account accrual of balance-time units, once-per-epoch distribution into
// a cumulative reward index, and O(1) claims.
package rewards

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jonboulle/clockwork"

	"couponledger/core/epoch"
	"couponledger/core/events"
	"couponledger/core/pricing"
	"couponledger/core/solvency"
	"couponledger/core/types"
	nativecommon "couponledger/native/common"
	"couponledger/observability/metrics"
)

// ModuleName is the pause key guarding distributions and claims.
const ModuleName = "rewards"

// Ledger is the single-writer rewards state machine. Every operation runs as
// a transaction over copies of the touched state, commits, and only then
// performs external effects. A failed effect reverts the commit.
type Ledger struct {
	mu sync.Mutex

	clock   clockwork.Clock
	logger  *slog.Logger
	metrics *metrics.LedgerMetrics
	events  types.EventSink
	store   *Store
	pauses  *nativecommon.PauseSet

	feed     pricing.PolicyFeed
	custody  Custody
	minter   Minter
	solvency solvency.Source

	params   Params
	global   *Integrator
	registry *epoch.Registry
	accounts map[common.Address]*Account
}

// Option configures a Ledger.
type Option func(*Ledger)

func WithClock(clock clockwork.Clock) Option { return func(l *Ledger) { l.clock = clock } }

func WithLogger(logger *slog.Logger) Option { return func(l *Ledger) { l.logger = logger } }

func WithMetrics(m *metrics.LedgerMetrics) Option { return func(l *Ledger) { l.metrics = m } }

func WithEventSink(sink types.EventSink) Option { return func(l *Ledger) { l.events = sink } }

// WithStore persists every committed transition and restores existing state
// on construction.
func WithStore(store *Store) Option { return func(l *Ledger) { l.store = store } }

func WithPolicyFeed(feed pricing.PolicyFeed) Option { return func(l *Ledger) { l.feed = feed } }

func WithCustody(c Custody) Option { return func(l *Ledger) { l.custody = c } }

func WithMinter(m Minter) Option { return func(l *Ledger) { l.minter = m } }

func WithSolvency(s solvency.Source) Option { return func(l *Ledger) { l.solvency = s } }

// New constructs a ledger. When a store holding prior state is supplied the
// persisted state, including persisted params, takes precedence over params.
func New(params Params, opts ...Option) (*Ledger, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	l := &Ledger{
		params:   params.Clone(),
		global:   NewIntegrator(),
		registry: epoch.NewRegistry(),
		accounts: make(map[common.Address]*Account),
		pauses:   nativecommon.NewPauseSet(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(l)
		}
	}
	if l.clock == nil {
		l.clock = clockwork.NewRealClock()
	}
	if l.logger == nil {
		l.logger = slog.Default()
	}
	if l.store != nil {
		snap, found, err := l.store.Load()
		if err != nil {
			return nil, fmt.Errorf("load ledger state: %w", err)
		}
		if found {
			l.params = snap.Params
			l.global = snap.Global
			l.registry = snap.Registry
			l.accounts = snap.Accounts
			if snap.Paused {
				l.pauses.Set(ModuleName, true)
			}
		} else if err := l.store.Save(changeset{params: &l.params, global: l.global}); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrPersist, err)
		}
	}
	return l, nil
}

// SetCollaborators replaces the external collaborators. Nil arguments keep
// the existing value.
func (l *Ledger) SetCollaborators(feed pricing.PolicyFeed, custody Custody, minter Minter, source solvency.Source) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if feed != nil {
		l.feed = feed
	}
	if custody != nil {
		l.custody = custody
	}
	if minter != nil {
		l.minter = minter
	}
	if source != nil {
		l.solvency = source
	}
}

func (l *Ledger) now() uint64 {
	ts := l.clock.Now().Unix()
	if ts < 0 {
		return 0
	}
	return uint64(ts)
}

// apply runs fn as one transaction.
func (l *Ledger) apply(ctx context.Context, op string, fn func(*txn) error) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.applyLocked(ctx, op, fn)
}

func (l *Ledger) applyLocked(ctx context.Context, op string, fn func(*txn) error) error {
	t := l.begin(ctx)
	if err := fn(t); err != nil {
		return err
	}
	undo := l.commit(t)
	if l.store != nil {
		if err := l.store.Save(t.changes()); err != nil {
			l.restore(undo)
			return fmt.Errorf("%w: %v", ErrPersist, err)
		}
	}
	if err := l.perform(ctx, t.effects); err != nil {
		l.restore(undo)
		if l.store != nil {
			if perr := l.store.Save(undo.changes()); perr != nil {
				l.logger.Error("rewards: persist rollback failed", "operation", op, "error", perr)
			}
		}
		l.metrics.ObserveRollback(op)
		l.logger.Warn("rewards: transition rolled back", "operation", op, "error", err)
		return err
	}
	for _, evt := range t.events {
		if l.events != nil {
			l.events.AppendEvent(evt)
		}
	}
	for _, fn := range t.after {
		fn()
	}
	return nil
}

func (l *Ledger) perform(ctx context.Context, effects []effect) error {
	for _, e := range effects {
		switch e.kind {
		case effectPullCoupon:
			if l.custody == nil {
				return fmt.Errorf("%w: custody not configured", ErrCustodyTransfer)
			}
			if err := l.custody.PullCoupon(ctx, e.epoch, e.account, e.amount); err != nil {
				return fmt.Errorf("%w: pull coupon: %v", ErrCustodyTransfer, err)
			}
		case effectWithdrawSkim:
			if l.custody == nil {
				return fmt.Errorf("%w: custody not configured", ErrCustodyTransfer)
			}
			if err := l.custody.WithdrawSkim(ctx, e.epoch, e.account, e.amount); err != nil {
				return fmt.Errorf("%w: withdraw skim: %v", ErrCustodyTransfer, err)
			}
		case effectMint:
			if l.minter == nil {
				return fmt.Errorf("%w: minter not configured", ErrMintFailed)
			}
			if err := l.minter.Mint(ctx, e.epoch, e.account, e.amount, e.reason); err != nil {
				return fmt.Errorf("%w: %v", ErrMintFailed, err)
			}
		}
	}
	return nil
}

// Pause blocks distributions and claims. Balance notifications still apply.
func (l *Ledger) Pause() error { return l.setPaused(true) }

// Unpause resumes distributions and claims.
func (l *Ledger) Unpause() error { return l.setPaused(false) }

// Paused reports whether distributions and claims are blocked.
func (l *Ledger) Paused() bool { return l.pauses.IsPaused(ModuleName) }

func (l *Ledger) setPaused(paused bool) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.pauses.Set(ModuleName, paused) {
		return nil
	}
	if l.store != nil {
		if err := l.store.SavePaused(paused); err != nil {
			l.pauses.Set(ModuleName, !paused)
			return fmt.Errorf("%w: %v", ErrPersist, err)
		}
	}
	if l.events != nil {
		l.events.AppendEvent(events.RewardsPaused{Paused: paused}.Event())
	}
	l.logger.Info("rewards: pause toggled", "paused", paused)
	return nil
}
