package metrics

import (
	"math/big"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

type LedgerMetrics struct {
	distributions  prometheus.Counter
	claims         *prometheus.CounterVec
	claimed        prometheus.Counter
	cumulative     prometheus.Gauge
	roundingDust   prometheus.Gauge
	breakageUnits  *prometheus.CounterVec
	eligibleSupply prometheus.Gauge
	rollbacks      *prometheus.CounterVec
}

var (
	ledgerOnce     sync.Once
	ledgerRegistry *LedgerMetrics
)

// Ledger returns the process-wide rewards ledger metrics.
func Ledger() *LedgerMetrics {
	ledgerOnce.Do(func() {
		ledgerRegistry = &LedgerMetrics{
			distributions: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "rewards_distributions_total",
				Help: "Count of completed epoch distributions.",
			}),
			claims: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "rewards_claims_total",
				Help: "Claim attempts by outcome.",
			}, []string{"outcome"}),
			claimed: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "rewards_claimed_tokens_total",
				Help: "Reward tokens minted to claimants.",
			}),
			cumulative: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "rewards_cumulative_index",
				Help: "Cumulative reward per unit, scaled by 1e18.",
			}),
			roundingDust: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "rewards_rounding_dust",
				Help: "Reward tokens carried forward to the next distribution.",
			}),
			breakageUnits: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "rewards_breakage_units_total",
				Help: "Balance-time units moved to the breakage sink by kind.",
			}, []string{"kind"}),
			eligibleSupply: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "rewards_eligible_supply",
				Help: "Base-asset supply currently earning units.",
			}),
			rollbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "rewards_rollbacks_total",
				Help: "Committed transitions reverted because an external effect failed.",
			}, []string{"operation"}),
		}
		prometheus.MustRegister(
			ledgerRegistry.distributions,
			ledgerRegistry.claims,
			ledgerRegistry.claimed,
			ledgerRegistry.cumulative,
			ledgerRegistry.roundingDust,
			ledgerRegistry.breakageUnits,
			ledgerRegistry.eligibleSupply,
			ledgerRegistry.rollbacks,
		)
	})
	return ledgerRegistry
}

func (m *LedgerMetrics) ObserveDistribution(cumulativeIndex, dust *big.Int) {
	if m == nil {
		return
	}
	m.distributions.Inc()
	m.cumulative.Set(toFloat(cumulativeIndex))
	m.roundingDust.Set(toFloat(dust))
}

func (m *LedgerMetrics) ObserveClaim(outcome string, amount *big.Int) {
	if m == nil {
		return
	}
	if outcome == "" {
		outcome = "unknown"
	}
	m.claims.WithLabelValues(outcome).Inc()
	if amount != nil && amount.Sign() > 0 {
		m.claimed.Add(toFloat(amount))
	}
}

func (m *LedgerMetrics) ObserveBreakage(kind string, units *big.Int) {
	if m == nil || units == nil || units.Sign() <= 0 {
		return
	}
	m.breakageUnits.WithLabelValues(kind).Add(toFloat(units))
}

func (m *LedgerMetrics) SetEligibleSupply(supply *big.Int) {
	if m == nil {
		return
	}
	m.eligibleSupply.Set(toFloat(supply))
}

func (m *LedgerMetrics) ObserveRollback(operation string) {
	if m == nil {
		return
	}
	m.rollbacks.WithLabelValues(operation).Inc()
}

func toFloat(v *big.Int) float64 {
	if v == nil {
		return 0
	}
	f, _ := new(big.Float).SetInt(v).Float64()
	return f
}
