// Package server exposes the rewards ledger over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/holiman/uint256"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"couponledger/core/epoch"
	"couponledger/core/fixedpoint"
	"couponledger/core/rewards"
)

// Route groups used for rate limiting.
const (
	LimitNotify = "notify"
	LimitClaim  = "claim"
	LimitRead   = "read"
	LimitAdmin  = "admin"
)

// Config defines HTTP server parameters.
type Config struct {
	ListenAddress   string
	ShutdownTimeout time.Duration
}

// PricePoster accepts operator-posted conversion prices.
type PricePoster interface {
	Post(rate fixedpoint.Scaled, ts time.Time) error
}

// ReportMirror copies distribution reports to the audit store.
type ReportMirror interface {
	MirrorReport(ctx context.Context, rep epoch.Report) error
}

// CollateralSetter updates the collateral backing the reward token.
type CollateralSetter interface {
	SetCollateral(collateral *uint256.Int)
}

// Deps are the optional collaborators of the server.
type Deps struct {
	Auth       *Authenticator
	Limiter    *RateLimiter
	Logger     *slog.Logger
	Prices     PricePoster
	Mirror     ReportMirror
	Collateral CollateralSetter
}

// Server hosts the ledger, admin and ops endpoints for rewardsd.
type Server struct {
	cfg        Config
	ledger     *rewards.Ledger
	auth       *Authenticator
	limiter    *RateLimiter
	logger     *slog.Logger
	prices     PricePoster
	mirror     ReportMirror
	collateral CollateralSetter
}

// New constructs a new HTTP server.
func New(cfg Config, ledger *rewards.Ledger, deps Deps) (*Server, error) {
	if ledger == nil {
		return nil, fmt.Errorf("ledger required")
	}
	if deps.Auth == nil {
		return nil, fmt.Errorf("authenticator required")
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Limiter == nil {
		deps.Limiter = NewRateLimiter(nil)
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 5 * time.Second
	}
	return &Server{
		cfg:        cfg,
		ledger:     ledger,
		auth:       deps.Auth,
		limiter:    deps.Limiter,
		logger:     deps.Logger,
		prices:     deps.Prices,
		mirror:     deps.Mirror,
		collateral: deps.Collateral,
	}, nil
}

// Handler builds the routed handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.With(s.limiter.Middleware(LimitNotify), s.auth.Middleware(ScopeNotify)).
			Post("/balance-changes", s.handleBalanceChange)
		r.With(s.limiter.Middleware(LimitAdmin), s.auth.Middleware(ScopeDistribute)).
			Post("/distributions", s.handleDistribute)
		r.With(s.limiter.Middleware(LimitClaim), s.auth.Middleware(ScopeClaim)).
			Post("/claims", s.handleClaim)

		r.Group(func(r chi.Router) {
			r.Use(s.limiter.Middleware(LimitRead), s.auth.Middleware(ScopeRead))
			r.Get("/accounts/{address}", s.handleAccount)
			r.Get("/global", s.handleGlobal)
			r.Get("/epochs/current", s.handleCurrentEpoch)
			r.Get("/epochs/{id}/report", s.handleReport)
			r.Get("/reports/export", s.handleExport)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(s.limiter.Middleware(LimitAdmin), s.auth.Middleware(ScopeAdmin))
			r.Post("/epochs", s.handleConfigureEpoch)
			r.Post("/exclusions", s.handleExclusion)
			r.Post("/pause", s.handlePause(true))
			r.Post("/unpause", s.handlePause(false))
			r.Put("/claim-limits", s.handleClaimLimits)
			r.Put("/breakage-sink", s.handleBreakageSink)
			r.Put("/treasury", s.handleTreasury)
			r.Put("/distribution-guards", s.handleDistributionGuards)
			r.Put("/collateral", s.handleCollateral)
			r.Post("/price", s.handlePrice)
			r.Post("/distribute-and-configure", s.handleDistributeAndConfigure)
		})
	})
	return otelhttp.NewHandler(r, "rewardsd.http")
}

// Run starts the HTTP server and blocks until context cancellation.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.ListenAddress,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	s.logger.Info("http server listening", "addr", s.cfg.ListenAddress)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("listen and serve: %w", err)
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	current, ok, distributed := s.ledger.CurrentEpoch()
	resp := map[string]any{"status": "ok", "paused": s.ledger.Paused()}
	if ok {
		resp["epoch"] = current.ID
		resp["distributed"] = distributed
	}
	writeJSON(w, http.StatusOK, resp)
}

// mirrorReport copies rep to the audit store. Failures are logged only; the
// ledger state is authoritative.
func (s *Server) mirrorReport(ctx context.Context, rep epoch.Report) {
	if s.mirror == nil {
		return
	}
	if err := s.mirror.MirrorReport(ctx, rep); err != nil {
		s.logger.Warn("mirror report failed", "epoch", rep.EpochID, "error", err)
	}
}
