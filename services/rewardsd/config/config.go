package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration to support YAML unmarshalling.
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses human readable duration strings.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if value == nil {
		return nil
	}
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("duration must be string")
	}
	raw := value.Value
	if raw == "" {
		d.Duration = 0
		return nil
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", raw, err)
	}
	d.Duration = parsed
	return nil
}

// Config captures runtime configuration for rewardsd.
type Config struct {
	ListenAddress string          `yaml:"listen"`
	StateDir      string          `yaml:"state_dir"`
	ParamsFile    string          `yaml:"params_file"`
	ExportsDir    string          `yaml:"exports_dir"`
	Database      DatabaseConfig  `yaml:"database"`
	Auth          AuthConfig      `yaml:"auth"`
	RateLimits    RateLimits      `yaml:"rate_limits"`
	Pricing       PricingConfig   `yaml:"pricing"`
	Solvency      SolvencyConfig  `yaml:"solvency"`
	Webhook       WebhookConfig   `yaml:"webhook"`
	Logging       LoggingConfig   `yaml:"logging"`
	Telemetry     TelemetryConfig `yaml:"telemetry"`
}

// DatabaseConfig selects the audit store backend.
type DatabaseConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
	Path   string `yaml:"path"`
}

// AuthConfig configures bearer token verification.
type AuthConfig struct {
	Disabled   bool     `yaml:"disabled"`
	HMACSecret string   `yaml:"hmac_secret"`
	Issuer     string   `yaml:"issuer"`
	Audience   string   `yaml:"audience"`
	ClockSkew  Duration `yaml:"clock_skew"`
}

// RateLimit bounds requests per client for one route group.
type RateLimit struct {
	RequestsPerMinute float64 `yaml:"requests_per_minute"`
	Burst             int     `yaml:"burst"`
}

// RateLimits groups the per-route-group limits.
type RateLimits struct {
	Notify RateLimit `yaml:"notify"`
	Claim  RateLimit `yaml:"claim"`
	Read   RateLimit `yaml:"read"`
	Admin  RateLimit `yaml:"admin"`
}

// PricingConfig configures the guarded conversion price feed.
type PricingConfig struct {
	InitialPrice    string   `yaml:"initial_price"`
	MaxAge          Duration `yaml:"max_age"`
	TwapWindow      Duration `yaml:"twap_window"`
	MaxDeviationBps uint32   `yaml:"max_deviation_bps"`
	SkimBps         uint64   `yaml:"skim_bps"`
}

// SolvencyConfig describes the collateral backing the reward token.
type SolvencyConfig struct {
	// Collateral is the value backing outstanding reward tokens, in token
	// base units.
	Collateral string `yaml:"collateral"`
	// InitialSupply is the reward-token supply issued outside this ledger.
	InitialSupply string `yaml:"initial_supply"`
}

// WebhookConfig enables signed event delivery.
type WebhookConfig struct {
	Endpoint string   `yaml:"endpoint"`
	Secret   string   `yaml:"secret"`
	Topics   []string `yaml:"topics"`
}

// LoggingConfig controls log verbosity and destination.
type LoggingConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

// TelemetryConfig configures the OTLP exporters.
type TelemetryConfig struct {
	Endpoint    string  `yaml:"endpoint"`
	Insecure    bool    `yaml:"insecure"`
	Metrics     bool    `yaml:"metrics"`
	Traces      bool    `yaml:"traces"`
	SampleRatio float64 `yaml:"sample_ratio"`
}

// Load reads configuration from the supplied path and applies environment
// overrides.
func Load(path string) (Config, error) {
	cfg := Config{}
	file, err := os.Open(path)
	if err != nil {
		return cfg, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()
	dec := yaml.NewDecoder(file)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return cfg, fmt.Errorf("decode config: %w", err)
	}
	applyEnv(&cfg)
	applyDefaults(&cfg)
	if err := validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// applyEnv lets secrets come from the environment instead of the file.
func applyEnv(cfg *Config) {
	if v := strings.TrimSpace(os.Getenv("REWARDSD_HMAC_SECRET")); v != "" {
		cfg.Auth.HMACSecret = v
	}
	if v := strings.TrimSpace(os.Getenv("REWARDSD_DATABASE_DSN")); v != "" {
		cfg.Database.DSN = v
	}
	if v := strings.TrimSpace(os.Getenv("REWARDSD_WEBHOOK_SECRET")); v != "" {
		cfg.Webhook.Secret = v
	}
}

func applyDefaults(cfg *Config) {
	if cfg.ListenAddress == "" {
		cfg.ListenAddress = ":7081"
	}
	if cfg.StateDir == "" {
		cfg.StateDir = "./rewards-data/state"
	}
	if cfg.ParamsFile == "" {
		cfg.ParamsFile = "./rewards-data/params.toml"
	}
	if cfg.ExportsDir == "" {
		cfg.ExportsDir = "./rewards-data/exports"
	}
	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "sqlite"
	}
	if cfg.Database.Driver == "sqlite" && cfg.Database.DSN == "" && cfg.Database.Path == "" {
		cfg.Database.Path = "./rewards-data/audit.sqlite"
	}
	if cfg.Auth.ClockSkew.Duration == 0 {
		cfg.Auth.ClockSkew.Duration = 2 * time.Minute
	}
	if cfg.Pricing.InitialPrice == "" {
		cfg.Pricing.InitialPrice = "1"
	}
	if cfg.Pricing.MaxAge.Duration == 0 {
		cfg.Pricing.MaxAge.Duration = time.Hour
	}
	if cfg.Pricing.TwapWindow.Duration == 0 {
		cfg.Pricing.TwapWindow.Duration = 24 * time.Hour
	}
	if cfg.Pricing.MaxDeviationBps == 0 {
		cfg.Pricing.MaxDeviationBps = 500
	}
	defaultLimit := func(l *RateLimit, perMinute float64, burst int) {
		if l.RequestsPerMinute <= 0 {
			l.RequestsPerMinute = perMinute
		}
		if l.Burst <= 0 {
			l.Burst = burst
		}
	}
	defaultLimit(&cfg.RateLimits.Notify, 6000, 200)
	defaultLimit(&cfg.RateLimits.Claim, 60, 10)
	defaultLimit(&cfg.RateLimits.Read, 600, 60)
	defaultLimit(&cfg.RateLimits.Admin, 60, 10)
}

func validate(cfg Config) error {
	switch cfg.Database.Driver {
	case "sqlite":
	case "postgres":
		if strings.TrimSpace(cfg.Database.DSN) == "" {
			return fmt.Errorf("database.dsn required for postgres")
		}
	default:
		return fmt.Errorf("database.driver %q not supported", cfg.Database.Driver)
	}
	if !cfg.Auth.Disabled && strings.TrimSpace(cfg.Auth.HMACSecret) == "" {
		return fmt.Errorf("auth.hmac_secret required unless auth.disabled")
	}
	if cfg.Pricing.SkimBps > 10_000 {
		return fmt.Errorf("pricing.skim_bps must not exceed 10000")
	}
	if (cfg.Webhook.Endpoint == "") != (cfg.Webhook.Secret == "") {
		return fmt.Errorf("webhook.endpoint and webhook.secret must be set together")
	}
	return nil
}
