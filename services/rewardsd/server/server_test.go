package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/holiman/uint256"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"couponledger/core/epoch"
	"couponledger/core/fixedpoint"
	"couponledger/core/pricing"
	"couponledger/core/rewards"
)

const (
	day        = uint64(24 * 60 * 60)
	t0         = uint64(1_700_000_000)
	testSecret = "rewardsd-test-secret"
)

var (
	holder      = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	other       = common.HexToAddress("0x00000000000000000000000000000000000000b2")
	distributor = common.HexToAddress("0x00000000000000000000000000000000000000f0")
	sink        = common.HexToAddress("0x0000000000000000000000000000000000005111")
	treasury    = common.HexToAddress("0x0000000000000000000000000000000000007e45")
)

type nopCustody struct{}

func (nopCustody) PullCoupon(context.Context, uint64, common.Address, *uint256.Int) error { return nil }

func (nopCustody) WithdrawSkim(context.Context, uint64, common.Address, *uint256.Int) error {
	return nil
}

type countingMinter struct {
	mu     sync.Mutex
	minted map[common.Address]uint64
}

func (m *countingMinter) Mint(_ context.Context, _ uint64, to common.Address, amount *uint256.Int, _ rewards.MintReason) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.minted == nil {
		m.minted = make(map[common.Address]uint64)
	}
	m.minted[to] += amount.Uint64()
	return nil
}

type mirrorLog struct {
	mu      sync.Mutex
	reports []uint64
}

func (m *mirrorLog) MirrorReport(_ context.Context, rep epoch.Report) error {
	m.mu.Lock()
	m.reports = append(m.reports, rep.EpochID)
	m.mu.Unlock()
	return nil
}

type fixture struct {
	t       *testing.T
	srv     *httptest.Server
	ledger  *rewards.Ledger
	clock   *clockwork.FakeClock
	minter  *countingMinter
	mirror  *mirrorLog
	prices  *pricing.ManualSource
	limiter *RateLimiter
}

func newFixture(t *testing.T, limits map[string]RateLimit) *fixture {
	t.Helper()
	clock := clockwork.NewFakeClockAt(time.Unix(int64(t0), 0))
	price, err := fixedpoint.ScaledFromInt(1)
	require.NoError(t, err)
	params := rewards.DefaultParams()
	params.BreakageSink = sink
	params.Treasury = treasury
	minter := &countingMinter{}
	ledger, err := rewards.New(params,
		rewards.WithClock(clock),
		rewards.WithPolicyFeed(&pricing.StaticFeed{Q: pricing.Quote{ConversionPrice: price, Status: pricing.PriceStatusOK}}),
		rewards.WithCustody(nopCustody{}),
		rewards.WithMinter(minter),
	)
	require.NoError(t, err)

	f := &fixture{
		t:       t,
		ledger:  ledger,
		clock:   clock,
		minter:  minter,
		mirror:  &mirrorLog{},
		prices:  pricing.NewManualSource(clock),
		limiter: NewRateLimiter(limits),
	}
	auth := NewAuthenticator(AuthConfig{Enabled: true, HMACSecret: testSecret, Issuer: "rewards-test", Audience: "rewardsd"}, nil)
	server, err := New(Config{}, ledger, Deps{Auth: auth, Limiter: f.limiter, Prices: f.prices, Mirror: f.mirror})
	require.NoError(t, err)
	f.srv = httptest.NewServer(server.Handler())
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fixture) token(subject string, scopes ...string) string {
	f.t.Helper()
	claims := jwt.MapClaims{
		"iss":   "rewards-test",
		"aud":   "rewardsd",
		"sub":   subject,
		"scope": strings.Join(scopes, " "),
		"exp":   time.Now().Add(time.Hour).Unix(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(f.t, err)
	return signed
}

func (f *fixture) do(method, path, token string, body any) *http.Response {
	f.t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(f.t, err)
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, f.srv.URL+path, reader)
	require.NoError(f.t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := f.srv.Client().Do(req)
	require.NoError(f.t, err)
	f.t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var out T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func (f *fixture) admin() string { return f.token("ops", ScopeAdmin) }

func (f *fixture) advanceTo(ts uint64) {
	now := uint64(f.clock.Now().Unix())
	f.clock.Advance(time.Duration(ts-now) * time.Second)
}

func monthWindow(start uint64) epoch.Window {
	return epoch.Window{
		StartTime:       start,
		CheckpointStart: start + 12*day,
		CheckpointEnd:   start + 16*day,
		EndTime:         start + 30*day,
	}
}

// runEpoch configures one epoch, funds holder and distributes a coupon.
func (f *fixture) runEpoch() {
	f.t.Helper()
	resp := f.do(http.MethodPost, "/v1/admin/epochs", f.admin(), monthWindow(t0))
	require.Equal(f.t, http.StatusCreated, resp.StatusCode)
	created := decode[epoch.Epoch](f.t, resp)
	require.Equal(f.t, uint64(1), created.ID)

	notify := f.token("indexer", ScopeNotify)
	resp = f.do(http.MethodPost, "/v1/balance-changes", notify, balanceChangeRequest{
		From:   common.Address{}.Hex(),
		To:     holder.Hex(),
		Amount: "1000",
	})
	require.Equal(f.t, http.StatusNoContent, resp.StatusCode)

	f.advanceTo(t0 + 30*day)
	resp = f.do(http.MethodPost, "/v1/distributions", f.token("treasury-bot", ScopeDistribute), distributeRequest{
		Distributor: distributor.Hex(),
		Coupon:      "30000",
	})
	require.Equal(f.t, http.StatusCreated, resp.StatusCode)
	rep := decode[reportResponse](f.t, resp)
	require.Equal(f.t, uint64(1), rep.EpochID)
	require.Equal(f.t, "30000", rep.TotalReward)
	require.Len(f.t, rep.Digest, 64)
}

func TestDistributeAndClaimOverHTTP(t *testing.T) {
	f := newFixture(t, nil)
	f.runEpoch()
	require.Equal(t, []uint64{1}, f.mirror.reports)

	read := f.token("dashboard", ScopeRead)
	resp := f.do(http.MethodGet, "/v1/epochs/1/report", read, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	rep := decode[reportResponse](t, resp)
	require.Equal(t, "30000", rep.Coupon)

	resp = f.do(http.MethodGet, "/v1/accounts/"+holder.Hex(), read, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	view := decode[map[string]any](t, resp)
	require.Equal(t, "29999", view["claimable"])

	resp = f.do(http.MethodPost, "/v1/claims", f.token(holder.Hex(), ScopeClaim), claimRequest{Account: holder.Hex()})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	claimed := decode[claimResponse](t, resp)
	require.Equal(t, "29999", claimed.Amount)
	require.Equal(t, holder, claimed.Recipient)
	require.Equal(t, uint64(29999), f.minter.minted[holder])

	resp = f.do(http.MethodPost, "/v1/claims", f.token(holder.Hex(), ScopeClaim), claimRequest{Account: holder.Hex()})
	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	resp = f.do(http.MethodGet, "/v1/epochs/current", read, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	current := decode[currentEpochResponse](t, resp)
	require.True(t, current.Distributed)

	resp = f.do(http.MethodGet, "/v1/global", read, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	global := decode[map[string]any](t, resp)
	require.Equal(t, "29999", global["totalClaimed"])
}

func TestAuthorization(t *testing.T) {
	f := newFixture(t, nil)

	resp := f.do(http.MethodGet, "/v1/global", "", nil)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = f.do(http.MethodGet, "/v1/global", "not-a-jwt", nil)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = f.do(http.MethodPost, "/v1/admin/pause", f.token("reader", ScopeRead), nil)
	require.Equal(t, http.StatusForbidden, resp.StatusCode)

	wrongIssuer, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"iss": "someone-else", "aud": "rewardsd", "scope": ScopeRead, "exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte(testSecret))
	require.NoError(t, err)
	resp = f.do(http.MethodGet, "/v1/global", wrongIssuer, nil)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	noExpiry, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"iss": "rewards-test", "aud": "rewardsd", "scope": ScopeRead,
	}).SignedString([]byte(testSecret))
	require.NoError(t, err)
	resp = f.do(http.MethodGet, "/v1/global", noExpiry, nil)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	// Admin implies every other scope.
	resp = f.do(http.MethodGet, "/v1/global", f.admin(), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = f.do(http.MethodGet, "/healthz", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestClaimRequiresOwnership(t *testing.T) {
	f := newFixture(t, nil)
	f.runEpoch()

	resp := f.do(http.MethodPost, "/v1/claims", f.token(other.Hex(), ScopeClaim), claimRequest{Account: holder.Hex()})
	require.Equal(t, http.StatusForbidden, resp.StatusCode)

	// Operators may claim on a holder's behalf to a chosen recipient.
	resp = f.do(http.MethodPost, "/v1/claims", f.admin(), claimRequest{Account: holder.Hex(), Recipient: other.Hex()})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, uint64(29999), f.minter.minted[other])
}

func TestLedgerErrorsMapToStatus(t *testing.T) {
	f := newFixture(t, nil)
	admin := f.admin()

	resp := f.do(http.MethodPost, "/v1/distributions", admin, distributeRequest{Distributor: distributor.Hex(), Coupon: "1"})
	require.Equal(t, http.StatusConflict, resp.StatusCode, "no epoch configured")

	resp = f.do(http.MethodPost, "/v1/admin/epochs", admin, epoch.Window{StartTime: t0, CheckpointStart: t0, CheckpointEnd: t0, EndTime: t0})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = f.do(http.MethodPost, "/v1/admin/epochs", admin, monthWindow(t0))
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = f.do(http.MethodPost, "/v1/distributions", admin, distributeRequest{Distributor: distributor.Hex(), Coupon: "1"})
	require.Equal(t, http.StatusConflict, resp.StatusCode, "epoch still running")

	resp = f.do(http.MethodPost, "/v1/balance-changes", admin, balanceChangeRequest{From: holder.Hex(), To: other.Hex(), Amount: "5"})
	require.Equal(t, http.StatusConflict, resp.StatusCode, "outflow beyond balance")

	resp = f.do(http.MethodPost, "/v1/balance-changes", admin, balanceChangeRequest{From: "0x12", To: other.Hex(), Amount: "5"})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = f.do(http.MethodPost, "/v1/balance-changes", admin, map[string]string{"from": holder.Hex(), "sender": "x"})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = f.do(http.MethodPut, "/v1/admin/claim-limits", admin, claimLimitsRequest{Min: "10", Max: "5"})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = f.do(http.MethodPost, "/v1/admin/pause", admin, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.True(t, f.ledger.Paused())
	resp = f.do(http.MethodPost, "/v1/claims", admin, claimRequest{Account: holder.Hex()})
	require.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	resp = f.do(http.MethodPost, "/v1/admin/unpause", admin, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.False(t, f.ledger.Paused())

	resp = f.do(http.MethodGet, "/v1/epochs/9/report", admin, nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestStalenessRefusalsAreUnavailable(t *testing.T) {
	for _, err := range []error{
		fmt.Errorf("%w: observation age 86400s", rewards.ErrPriceStale),
		fmt.Errorf("%w: observed 2023-11-14T22:13:20Z", rewards.ErrSolvencyStale),
	} {
		require.Equal(t, http.StatusServiceUnavailable, statusFor(err), err.Error())
	}
	require.Equal(t, http.StatusBadRequest, statusFor(fmt.Errorf("%w: start 1, now 2", rewards.ErrEpochStarted)))
}

func TestAdminParameterUpdates(t *testing.T) {
	f := newFixture(t, nil)
	admin := f.admin()
	newSink := common.HexToAddress("0x0000000000000000000000000000000000005222")

	resp := f.do(http.MethodPut, "/v1/admin/breakage-sink", admin, addressRequest{Address: newSink.Hex()})
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp = f.do(http.MethodPut, "/v1/admin/claim-limits", admin, claimLimitsRequest{Min: "5", Max: "500"})
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp = f.do(http.MethodPut, "/v1/admin/distribution-guards", admin, distributionGuardsRequest{MintCeiling: "1000000", DepegGuard: true})
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp = f.do(http.MethodPost, "/v1/admin/exclusions", admin, exclusionRequest{Address: other.Hex(), Excluded: true})
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	params := f.ledger.Params()
	require.Equal(t, newSink, params.BreakageSink)
	require.Equal(t, uint64(5), params.MinClaim.Uint64())
	require.Equal(t, uint64(500), params.MaxClaim.Uint64())
	require.Equal(t, uint64(1_000_000), params.MintCeiling.Uint64())
	require.True(t, params.DepegGuard)

	view, err := f.ledger.Account(other)
	require.NoError(t, err)
	require.Equal(t, "excluded", view.Status)

	resp = f.do(http.MethodPut, "/v1/admin/collateral", admin, collateralRequest{Collateral: "1"})
	require.Equal(t, http.StatusNotImplemented, resp.StatusCode)
}

func TestDistributeAndConfigureOverHTTP(t *testing.T) {
	f := newFixture(t, nil)
	admin := f.admin()
	require.Equal(t, http.StatusCreated, f.do(http.MethodPost, "/v1/admin/epochs", admin, monthWindow(t0)).StatusCode)
	require.Equal(t, http.StatusNoContent, f.do(http.MethodPost, "/v1/balance-changes", admin,
		balanceChangeRequest{From: common.Address{}.Hex(), To: holder.Hex(), Amount: "1000"}).StatusCode)
	f.advanceTo(t0 + 30*day)

	// An invalid next window rejects the whole batch.
	resp := f.do(http.MethodPost, "/v1/admin/distribute-and-configure", admin, distributeAndConfigureRequest{
		Distributor: distributor.Hex(),
		Coupon:      "30000",
		Next:        epoch.Window{StartTime: t0},
	})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	_, _, distributed := f.ledger.CurrentEpoch()
	require.False(t, distributed)

	resp = f.do(http.MethodPost, "/v1/admin/distribute-and-configure", admin, distributeAndConfigureRequest{
		Distributor: distributor.Hex(),
		Coupon:      "30000",
		Next:        monthWindow(t0 + 30*day),
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	out := decode[distributeAndConfigureResponse](t, resp)
	require.Equal(t, uint64(1), out.Report.EpochID)
	require.Equal(t, uint64(2), out.Next.ID)
	current, ok, distributed := f.ledger.CurrentEpoch()
	require.True(t, ok)
	require.Equal(t, uint64(2), current.ID)
	require.False(t, distributed)
}

func TestPostPrice(t *testing.T) {
	f := newFixture(t, nil)
	admin := f.admin()

	resp := f.do(http.MethodPost, "/v1/admin/price", admin, priceRequest{Rate: "0.985"})
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	obs, err := f.prices.Latest(context.Background())
	require.NoError(t, err)
	require.Equal(t, "985000000000000000", obs.Rate.String())

	resp = f.do(http.MethodPost, "/v1/admin/price", admin, priceRequest{Rate: "-1"})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp = f.do(http.MethodPost, "/v1/admin/price", admin, priceRequest{Rate: "0"})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestExportFormats(t *testing.T) {
	f := newFixture(t, nil)
	f.runEpoch()
	read := f.token("dashboard", ScopeRead)

	resp := f.do(http.MethodGet, "/v1/reports/export?format=csv", read, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NotEmpty(t, resp.Header.Get("X-Checksum-SHA256"))
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(body)), "\n")
	require.Len(t, lines, 2)

	resp = f.do(http.MethodGet, "/v1/reports/export?format=jsonl", read, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "application/x-ndjson", resp.Header.Get("Content-Type"))

	resp = f.do(http.MethodGet, "/v1/reports/export?format=parquet", read, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, err = io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.True(t, bytes.HasPrefix(body, []byte("PAR1")))

	resp = f.do(http.MethodGet, "/v1/reports/export?format=xml", read, nil)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestRateLimitPerGroup(t *testing.T) {
	f := newFixture(t, map[string]RateLimit{LimitClaim: {RequestsPerMinute: 1, Burst: 1}})
	token := f.token(holder.Hex(), ScopeClaim)

	resp := f.do(http.MethodPost, "/v1/claims", token, claimRequest{Account: holder.Hex()})
	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	resp = f.do(http.MethodPost, "/v1/claims", token, claimRequest{Account: holder.Hex()})
	require.Equal(t, http.StatusTooManyRequests, resp.StatusCode)

	// Other groups keep their own budget.
	resp = f.do(http.MethodGet, "/v1/global", f.token("dashboard", ScopeRead), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestMetricsEndpoint(t *testing.T) {
	f := newFixture(t, nil)
	resp := f.do(http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
}
