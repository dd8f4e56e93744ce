package rewards

import (
	"github.com/holiman/uint256"

	"couponledger/core/epoch"
	"couponledger/core/fixedpoint"
)

// Integrator tracks the network-wide balance-time integral for the current
// epoch along with the counters needed to distribute and audit it.
type Integrator struct {
	// EligibleUnits is the integral of EligibleSupply since epoch start. It
	// only grows with elapsed time and includes units later forfeited to the
	// treasury sink.
	EligibleUnits  *uint256.Int
	EligibleSupply *uint256.Int
	LastUpdate     uint64

	TreasuryUnits       *uint256.Int
	FutureBreakageUnits *uint256.Int

	ExcludedSupply *uint256.Int
	TrackedSupply  *uint256.Int

	CumulativeIndex fixedpoint.Scaled
	Dust            *uint256.Int

	LifetimeBreakageUnits *uint256.Int
	TotalDeclared         *uint256.Int
	TotalClaimed          *uint256.Int
	TotalSinkMinted       *uint256.Int
}

// NewIntegrator returns a zeroed integrator.
func NewIntegrator() *Integrator {
	return &Integrator{
		EligibleUnits:         new(uint256.Int),
		EligibleSupply:        new(uint256.Int),
		TreasuryUnits:         new(uint256.Int),
		FutureBreakageUnits:   new(uint256.Int),
		ExcludedSupply:        new(uint256.Int),
		TrackedSupply:         new(uint256.Int),
		Dust:                  new(uint256.Int),
		LifetimeBreakageUnits: new(uint256.Int),
		TotalDeclared:         new(uint256.Int),
		TotalClaimed:          new(uint256.Int),
		TotalSinkMinted:       new(uint256.Int),
	}
}

// Clone returns a deep copy.
func (g *Integrator) Clone() *Integrator {
	if g == nil {
		return NewIntegrator()
	}
	return &Integrator{
		EligibleUnits:         fixedpoint.Copy(g.EligibleUnits),
		EligibleSupply:        fixedpoint.Copy(g.EligibleSupply),
		LastUpdate:            g.LastUpdate,
		TreasuryUnits:         fixedpoint.Copy(g.TreasuryUnits),
		FutureBreakageUnits:   fixedpoint.Copy(g.FutureBreakageUnits),
		ExcludedSupply:        fixedpoint.Copy(g.ExcludedSupply),
		TrackedSupply:         fixedpoint.Copy(g.TrackedSupply),
		CumulativeIndex:       g.CumulativeIndex,
		Dust:                  fixedpoint.Copy(g.Dust),
		LifetimeBreakageUnits: fixedpoint.Copy(g.LifetimeBreakageUnits),
		TotalDeclared:         fixedpoint.Copy(g.TotalDeclared),
		TotalClaimed:          fixedpoint.Copy(g.TotalClaimed),
		TotalSinkMinted:       fixedpoint.Copy(g.TotalSinkMinted),
	}
}

// Advance integrates EligibleSupply up to now, capped to the epoch bounds.
// It must run before every change to EligibleSupply.
func (g *Integrator) Advance(now uint64, current epoch.Epoch, ok bool) error {
	if !ok {
		return nil
	}
	capped := current.Cap(now)
	if capped <= g.LastUpdate {
		return nil
	}
	units, err := fixedpoint.Mul(g.EligibleSupply, uint256.NewInt(capped-g.LastUpdate))
	if err != nil {
		return err
	}
	if g.EligibleUnits, err = fixedpoint.Add(g.EligibleUnits, units); err != nil {
		return err
	}
	g.LastUpdate = capped
	return nil
}

// NetEligibleUnits is the part of EligibleUnits still held by accounts.
func (g *Integrator) NetEligibleUnits() *uint256.Int {
	return fixedpoint.SubFloor(g.EligibleUnits, g.TreasuryUnits)
}

// SinkUnits returns the units whose reward goes to the breakage sink.
func (g *Integrator) SinkUnits() (*uint256.Int, error) {
	return fixedpoint.Add(g.TreasuryUnits, g.FutureBreakageUnits)
}

// Denominator returns net eligible + treasury sink + future breakage units.
func (g *Integrator) Denominator() (*uint256.Int, error) {
	sink, err := g.SinkUnits()
	if err != nil {
		return nil, err
	}
	return fixedpoint.Add(g.NetEligibleUnits(), sink)
}

// startEpoch resets the per-epoch integrals and recomputes eligible supply.
func (g *Integrator) startEpoch(e epoch.Epoch) error {
	supply, err := fixedpoint.Sub(g.TrackedSupply, g.ExcludedSupply)
	if err != nil {
		return err
	}
	g.EligibleSupply = supply
	g.EligibleUnits = new(uint256.Int)
	g.TreasuryUnits = new(uint256.Int)
	g.FutureBreakageUnits = new(uint256.Int)
	g.LastUpdate = e.StartTime
	return nil
}

// closeEpoch zeroes the per-epoch integrals once captured in a report.
func (g *Integrator) closeEpoch() {
	g.EligibleUnits = new(uint256.Int)
	g.TreasuryUnits = new(uint256.Int)
	g.FutureBreakageUnits = new(uint256.Int)
}
