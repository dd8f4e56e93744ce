package metrics

import (
	"math/big"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestLedgerMetricsObserve(t *testing.T) {
	m := Ledger()
	if m != Ledger() {
		t.Fatalf("expected singleton")
	}
	before := testutil.ToFloat64(m.claims.WithLabelValues("ok"))
	m.ObserveClaim("ok", big.NewInt(5))
	if got := testutil.ToFloat64(m.claims.WithLabelValues("ok")); got != before+1 {
		t.Fatalf("expected claim counter to increase, got %v", got)
	}
	m.ObserveDistribution(big.NewInt(7), big.NewInt(3))
	if got := testutil.ToFloat64(m.roundingDust); got != 3 {
		t.Fatalf("unexpected dust gauge %v", got)
	}
	m.ObserveBreakage("treasury", big.NewInt(10))
	if got := testutil.ToFloat64(m.breakageUnits.WithLabelValues("treasury")); got < 10 {
		t.Fatalf("unexpected breakage counter %v", got)
	}

	var nilMetrics *LedgerMetrics
	nilMetrics.ObserveClaim("ok", big.NewInt(1))
	nilMetrics.ObserveRollback("claim")
}
