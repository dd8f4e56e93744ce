package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "rewardsd.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
auth:
  hmac_secret: topsecret
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, ":7081", cfg.ListenAddress)
	require.Equal(t, "sqlite", cfg.Database.Driver)
	require.Equal(t, "./rewards-data/audit.sqlite", cfg.Database.Path)
	require.Equal(t, 2*time.Minute, cfg.Auth.ClockSkew.Duration)
	require.Equal(t, "1", cfg.Pricing.InitialPrice)
	require.Equal(t, uint32(500), cfg.Pricing.MaxDeviationBps)
	require.Equal(t, 24*time.Hour, cfg.Pricing.TwapWindow.Duration)
	require.Equal(t, 10, cfg.RateLimits.Claim.Burst)
}

func TestLoadParsesFile(t *testing.T) {
	path := writeConfig(t, `
listen: 127.0.0.1:9000
state_dir: /var/lib/rewards/state
params_file: /etc/rewards/params.toml
database:
  driver: postgres
  dsn: postgres://rewards@db/rewards
auth:
  hmac_secret: topsecret
  issuer: rewards-admin
  audience: rewardsd
  clock_skew: 30s
rate_limits:
  claim:
    requests_per_minute: 12
    burst: 3
pricing:
  initial_price: "0.98"
  max_age: 10m
  twap_window: 1h
  max_deviation_bps: 200
  skim_bps: 100
solvency:
  collateral: "5000000"
webhook:
  endpoint: https://hooks.example/rewards
  secret: whsec
  topics: [rewards.distributed]
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "127.0.0.1:9000", cfg.ListenAddress)
	require.Equal(t, "postgres", cfg.Database.Driver)
	require.Equal(t, "rewards-admin", cfg.Auth.Issuer)
	require.Equal(t, 30*time.Second, cfg.Auth.ClockSkew.Duration)
	require.Equal(t, 12.0, cfg.RateLimits.Claim.RequestsPerMinute)
	require.Equal(t, 3, cfg.RateLimits.Claim.Burst)
	require.Equal(t, "0.98", cfg.Pricing.InitialPrice)
	require.Equal(t, 10*time.Minute, cfg.Pricing.MaxAge.Duration)
	require.Equal(t, uint64(100), cfg.Pricing.SkimBps)
	require.Equal(t, "5000000", cfg.Solvency.Collateral)
	require.Equal(t, []string{"rewards.distributed"}, cfg.Webhook.Topics)
}

func TestLoadEnvOverridesSecrets(t *testing.T) {
	t.Setenv("REWARDSD_HMAC_SECRET", "from-env")
	path := writeConfig(t, "listen: :1\n")
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "from-env", cfg.Auth.HMACSecret)
}

func TestLoadValidation(t *testing.T) {
	cases := map[string]string{
		"missing secret":   "listen: :1\n",
		"unknown driver":   "auth: {hmac_secret: x}\ndatabase: {driver: mysql}\n",
		"postgres dsn":     "auth: {hmac_secret: x}\ndatabase: {driver: postgres}\n",
		"skim too large":   "auth: {hmac_secret: x}\npricing: {skim_bps: 10001}\n",
		"webhook half set": "auth: {hmac_secret: x}\nwebhook: {endpoint: http://x}\n",
		"bad duration":     "auth: {hmac_secret: x, clock_skew: soon}\n",
		"unknown field":    "auth: {hmac_secret: x}\nlisten_addr: :1\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, body))
			require.Error(t, err)
		})
	}
}
