package pricing

import (
	"context"
	"sync"
	"time"

	"github.com/holiman/uint256"
	"github.com/jonboulle/clockwork"

	"couponledger/core/fixedpoint"
)

const maxObservations = 256

// ManualSource keeps operator-posted observations in memory.
type ManualSource struct {
	mu    sync.RWMutex
	obs   []Observation
	clock clockwork.Clock
}

// NewManualSource constructs an empty source.
func NewManualSource(clock clockwork.Clock) *ManualSource {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &ManualSource{clock: clock}
}

// Post records a new rate observed at ts. A zero ts means now.
func (m *ManualSource) Post(rate fixedpoint.Scaled, ts time.Time) error {
	if rate.IsZero() {
		return ErrInvalidRate
	}
	if ts.IsZero() {
		ts = m.clock.Now()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.obs = append(m.obs, Observation{Rate: rate, Timestamp: ts.UTC()})
	if len(m.obs) > maxObservations {
		m.obs = append([]Observation(nil), m.obs[len(m.obs)-maxObservations:]...)
	}
	return nil
}

func (m *ManualSource) Latest(context.Context) (Observation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.obs) == 0 {
		return Observation{}, ErrNoObservation
	}
	return m.obs[len(m.obs)-1], nil
}

// TWAP weights every observation by how long it stayed the latest value
// inside the window ending now.
func (m *ManualSource) TWAP(_ context.Context, window time.Duration) (fixedpoint.Scaled, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.obs) == 0 {
		return fixedpoint.Scaled{}, ErrNoObservation
	}
	now := m.clock.Now().UTC()
	from := now.Add(-window)
	weighted := new(uint256.Int)
	var total uint64
	for i, o := range m.obs {
		start := o.Timestamp
		if start.Before(from) {
			start = from
		}
		end := now
		if i+1 < len(m.obs) {
			end = m.obs[i+1].Timestamp
		}
		if !end.After(start) {
			continue
		}
		secs := uint64(end.Sub(start) / time.Second)
		if secs == 0 {
			continue
		}
		part, err := fixedpoint.Mul(o.Rate.Raw(), uint256.NewInt(secs))
		if err != nil {
			return fixedpoint.Scaled{}, err
		}
		if weighted, err = fixedpoint.Add(weighted, part); err != nil {
			return fixedpoint.Scaled{}, err
		}
		total += secs
	}
	if total == 0 {
		return m.obs[len(m.obs)-1].Rate, nil
	}
	avg, err := fixedpoint.MulDiv(weighted, uint256.NewInt(1), uint256.NewInt(total))
	if err != nil {
		return fixedpoint.Scaled{}, err
	}
	return fixedpoint.NewScaled(avg), nil
}
