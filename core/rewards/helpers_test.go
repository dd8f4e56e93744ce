package rewards

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"couponledger/core/epoch"
	"couponledger/core/fixedpoint"
	"couponledger/core/pricing"
	"couponledger/core/types"
)

const day = uint64(24 * 60 * 60)

var (
	t0          = uint64(1_700_000_000)
	addrA       = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	addrB       = common.HexToAddress("0x00000000000000000000000000000000000000b2")
	addrC       = common.HexToAddress("0x00000000000000000000000000000000000000c3")
	addrD       = common.HexToAddress("0x00000000000000000000000000000000000000d4")
	distributor = common.HexToAddress("0x00000000000000000000000000000000000000f0")
	sinkAddr    = common.HexToAddress("0x0000000000000000000000000000000000005111")
	treasury    = common.HexToAddress("0x0000000000000000000000000000000000007e45")
	selfAddr    = common.HexToAddress("0x000000000000000000000000000000000000001f")
)

func u(v uint64) *uint256.Int { return uint256.NewInt(v) }

type transfer struct {
	epoch  uint64
	addr   common.Address
	amount *uint256.Int
}

type recordingCustody struct {
	mu       sync.Mutex
	pulls    []transfer
	skims    []transfer
	failPull error
	failSkim error
}

func (c *recordingCustody) PullCoupon(_ context.Context, e uint64, from common.Address, amount *uint256.Int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failPull != nil {
		return c.failPull
	}
	c.pulls = append(c.pulls, transfer{epoch: e, addr: from, amount: amount})
	return nil
}

func (c *recordingCustody) WithdrawSkim(_ context.Context, e uint64, to common.Address, amount *uint256.Int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failSkim != nil {
		return c.failSkim
	}
	c.skims = append(c.skims, transfer{epoch: e, addr: to, amount: amount})
	return nil
}

type mintRecord struct {
	to     common.Address
	amount *uint256.Int
	reason MintReason
}

type recordingMinter struct {
	mu    sync.Mutex
	mints []mintRecord
	fail  error
}

func (m *recordingMinter) Mint(_ context.Context, _ uint64, to common.Address, amount *uint256.Int, reason MintReason) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return m.fail
	}
	m.mints = append(m.mints, mintRecord{to: to, amount: amount, reason: reason})
	return nil
}

func (m *recordingMinter) total(reason MintReason) *uint256.Int {
	m.mu.Lock()
	defer m.mu.Unlock()
	sum := new(uint256.Int)
	for _, rec := range m.mints {
		if rec.reason == reason {
			sum.Add(sum, rec.amount)
		}
	}
	return sum
}

type harness struct {
	t       *testing.T
	ctx     context.Context
	ledger  *Ledger
	clock   *clockwork.FakeClock
	custody *recordingCustody
	minter  *recordingMinter
	feed    *pricing.StaticFeed
	events  *types.EventLog
}

func onePrice(t *testing.T) fixedpoint.Scaled {
	t.Helper()
	p, err := fixedpoint.ScaledFromInt(1)
	require.NoError(t, err)
	return p
}

func testParams() Params {
	p := DefaultParams()
	p.SelfAddress = selfAddr
	p.BreakageSink = sinkAddr
	p.Treasury = treasury
	return p
}

func newHarness(t *testing.T, params Params, opts ...Option) *harness {
	t.Helper()
	h := &harness{
		t:       t,
		ctx:     context.Background(),
		clock:   clockwork.NewFakeClockAt(time.Unix(int64(t0), 0)),
		custody: &recordingCustody{},
		minter:  &recordingMinter{},
		feed:    &pricing.StaticFeed{Q: pricing.Quote{ConversionPrice: onePrice(t), Status: pricing.PriceStatusOK}},
		events:  &types.EventLog{},
	}
	base := []Option{
		WithClock(h.clock),
		WithPolicyFeed(h.feed),
		WithCustody(h.custody),
		WithMinter(h.minter),
		WithEventSink(h.events),
	}
	l, err := New(params, append(base, opts...)...)
	require.NoError(t, err)
	h.ledger = l
	return h
}

func monthWindow(start uint64) epoch.Window {
	return epoch.Window{
		StartTime:       start,
		CheckpointStart: start + 12*day,
		CheckpointEnd:   start + 16*day,
		EndTime:         start + 30*day,
	}
}

// at moves the fake clock to the absolute unix time ts.
func (h *harness) at(ts uint64) {
	h.t.Helper()
	now := uint64(h.clock.Now().Unix())
	require.GreaterOrEqual(h.t, ts, now, "clock cannot move backwards")
	h.clock.Advance(time.Duration(ts-now) * time.Second)
}

func (h *harness) configure(start uint64) epoch.Epoch {
	h.t.Helper()
	e, err := h.ledger.ConfigureEpoch(h.ctx, monthWindow(start))
	require.NoError(h.t, err)
	return e
}

func (h *harness) mint(addr common.Address, amount uint64) {
	h.t.Helper()
	require.NoError(h.t, h.ledger.OnBalanceChange(h.ctx, common.Address{}, addr, u(amount)))
}

func (h *harness) transfer(from, to common.Address, amount uint64) {
	h.t.Helper()
	require.NoError(h.t, h.ledger.OnBalanceChange(h.ctx, from, to, u(amount)))
}

func (h *harness) distribute(coupon uint64) epoch.Report {
	h.t.Helper()
	rep, err := h.ledger.Distribute(h.ctx, distributor, u(coupon))
	require.NoError(h.t, err)
	return rep
}

func (h *harness) claim(addr common.Address) *uint256.Int {
	h.t.Helper()
	amount, err := h.ledger.Claim(h.ctx, addr, addr)
	require.NoError(h.t, err)
	return amount
}

func (h *harness) view(addr common.Address) AccountView {
	h.t.Helper()
	v, err := h.ledger.Account(addr)
	require.NoError(h.t, err)
	return v
}

func (h *harness) global() GlobalView {
	h.t.Helper()
	g, err := h.ledger.Global()
	require.NoError(h.t, err)
	return g
}

func requireEq(t *testing.T, want uint64, got *uint256.Int, msg string) {
	t.Helper()
	require.NotNil(t, got, msg)
	require.Equal(t, uint256.NewInt(want).Dec(), got.Dec(), msg)
}

var errBoom = errors.New("boom")
