package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/holiman/uint256"
	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	paramsconfig "couponledger/config"
	"couponledger/core/fixedpoint"
	"couponledger/core/pricing"
	"couponledger/core/rewards"
	"couponledger/core/types"
	"couponledger/integrations/exports"
	"couponledger/integrations/webhooks"
	"couponledger/observability/logging"
	"couponledger/observability/metrics"
	telemetry "couponledger/observability/otel"
	"couponledger/services/rewardsd/config"
	"couponledger/services/rewardsd/custody"
	"couponledger/services/rewardsd/server"
	"couponledger/services/rewardsd/storage"
	kv "couponledger/storage"
)

const exportInterval = 6 * time.Hour

func main() {
	var cfgPath, envFile string
	pflag.StringVar(&cfgPath, "config", "services/rewardsd/config.yaml", "path to rewardsd configuration file")
	pflag.StringVar(&envFile, "env-file", ".env", "optional dotenv file loaded before the configuration")
	pflag.Parse()

	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "rewardsd: load env file: %v\n", err)
		os.Exit(1)
	}
	if err := run(cfgPath); err != nil {
		slog.Error("rewardsd exited", "error", err)
		os.Exit(1)
	}
}

func run(cfgPath string) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	env := strings.TrimSpace(os.Getenv("REWARDSD_ENV"))
	logger := logging.Setup("rewardsd", env, logging.Options{Level: cfg.Logging.Level, File: cfg.Logging.File})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName: "rewardsd",
		Environment: env,
		Endpoint:    cfg.Telemetry.Endpoint,
		Insecure:    cfg.Telemetry.Insecure,
		Metrics:     cfg.Telemetry.Metrics,
		Traces:      cfg.Telemetry.Traces,
		SampleRatio: cfg.Telemetry.SampleRatio,
	})
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() { _ = shutdownTelemetry(context.Background()) }()

	fileParams, err := paramsconfig.LoadParams(cfg.ParamsFile)
	if err != nil {
		return fmt.Errorf("load params: %w", err)
	}
	params, err := fileParams.RewardsParams()
	if err != nil {
		return fmt.Errorf("params: %w", err)
	}

	stateDB, err := kv.NewLevelDB(cfg.StateDir)
	if err != nil {
		return fmt.Errorf("open state: %w", err)
	}
	defer stateDB.Close()

	dsn := cfg.Database.DSN
	if cfg.Database.Driver == "sqlite" && dsn == "" {
		if dsn, err = storage.FileDSN(cfg.Database.Path); err != nil {
			return fmt.Errorf("resolve audit DSN: %w", err)
		}
	}
	audit, err := storage.Open(cfg.Database.Driver, dsn)
	if err != nil {
		return fmt.Errorf("open audit store: %w", err)
	}
	defer audit.Close()

	clock := clockwork.NewRealClock()
	prices := pricing.NewManualSource(clock)
	initial, err := fixedpoint.ParseScaled(cfg.Pricing.InitialPrice)
	if err != nil {
		return fmt.Errorf("pricing.initial_price: %w", err)
	}
	if err := prices.Post(initial, time.Time{}); err != nil {
		return fmt.Errorf("post initial price: %w", err)
	}
	feed, err := pricing.NewOracleFeed(prices, pricing.GuardConfig{
		MaxAge:          cfg.Pricing.MaxAge.Duration,
		TwapWindow:      cfg.Pricing.TwapWindow.Duration,
		MaxDeviationBps: cfg.Pricing.MaxDeviationBps,
		SkimBps:         cfg.Pricing.SkimBps,
	}, clock)
	if err != nil {
		return fmt.Errorf("price feed: %w", err)
	}

	collateral, err := optionalAmount(cfg.Solvency.Collateral)
	if err != nil {
		return fmt.Errorf("solvency.collateral: %w", err)
	}
	initialSupply, err := optionalAmount(cfg.Solvency.InitialSupply)
	if err != nil {
		return fmt.Errorf("solvency.initial_supply: %w", err)
	}
	vault := custody.NewVault(audit, collateral, initialSupply, clock, logger.With("component", "custody"))

	var sinks types.Fanout
	if cfg.Webhook.Endpoint != "" {
		opts := []webhooks.Option{webhooks.WithLogger(logger.With("component", "webhooks"))}
		if len(cfg.Webhook.Topics) > 0 {
			opts = append(opts, webhooks.WithTopics(cfg.Webhook.Topics...))
		}
		dispatcher, err := webhooks.NewDispatcher(cfg.Webhook.Endpoint, []byte(cfg.Webhook.Secret), opts...)
		if err != nil {
			return fmt.Errorf("webhooks: %w", err)
		}
		defer dispatcher.Close()
		sinks = append(sinks, dispatcher)
	}

	ledger, err := rewards.Open(stateDB, params,
		rewards.WithClock(clock),
		rewards.WithLogger(logger.With("component", "ledger")),
		rewards.WithMetrics(metrics.Ledger()),
		rewards.WithEventSink(sinks),
		rewards.WithPolicyFeed(feed),
		rewards.WithCustody(vault),
		rewards.WithMinter(vault),
		rewards.WithSolvency(vault),
	)
	if err != nil {
		return fmt.Errorf("open ledger: %w", err)
	}

	auth := server.NewAuthenticator(server.AuthConfig{
		Enabled:    !cfg.Auth.Disabled,
		HMACSecret: cfg.Auth.HMACSecret,
		Issuer:     cfg.Auth.Issuer,
		Audience:   cfg.Auth.Audience,
		ClockSkew:  cfg.Auth.ClockSkew.Duration,
	}, logger.With("component", "auth"))
	if cfg.Auth.Disabled {
		logger.Warn("bearer authentication disabled; every caller has admin scope")
	}
	limiter := server.NewRateLimiter(map[string]server.RateLimit{
		server.LimitNotify: server.RateLimit(cfg.RateLimits.Notify),
		server.LimitClaim:  server.RateLimit(cfg.RateLimits.Claim),
		server.LimitRead:   server.RateLimit(cfg.RateLimits.Read),
		server.LimitAdmin:  server.RateLimit(cfg.RateLimits.Admin),
	})
	srv, err := server.New(server.Config{ListenAddress: cfg.ListenAddress}, ledger, server.Deps{
		Auth:       auth,
		Limiter:    limiter,
		Logger:     logger.With("component", "http"),
		Prices:     prices,
		Mirror:     vault,
		Collateral: vault,
	})
	if err != nil {
		return fmt.Errorf("server: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.Run(gctx) })
	g.Go(func() error { return exportLoop(gctx, cfg.ExportsDir, ledger, logger) })
	return g.Wait()
}

// exportLoop writes a parquet snapshot of every report periodically and once
// more on shutdown.
func exportLoop(ctx context.Context, dir string, ledger *rewards.Ledger, logger *slog.Logger) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create exports dir: %w", err)
	}
	write := func() {
		path := filepath.Join(dir, "reports.parquet")
		if err := exports.WriteReportsParquet(path, ledger.Reports()); err != nil {
			logger.Warn("report export failed", "path", path, "error", err)
		}
	}
	ticker := time.NewTicker(exportInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			write()
			return nil
		case <-ticker.C:
			write()
		}
	}
}

func optionalAmount(raw string) (*uint256.Int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return new(uint256.Int), nil
	}
	return uint256.FromDecimal(raw)
}
