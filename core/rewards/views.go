package rewards

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"couponledger/core/epoch"
	"couponledger/core/fixedpoint"
)

// AccountView is a read-only snapshot of an account settled to now.
type AccountView struct {
	Address          common.Address `json:"address"`
	Balance          *uint256.Int   `json:"balance"`
	Status           string         `json:"status"`
	LateEpoch        uint64         `json:"lateEpoch,omitempty"`
	LateInflow       *uint256.Int   `json:"lateInflow"`
	UnitsAccrued     *uint256.Int   `json:"unitsAccrued"`
	PendingRewards   *uint256.Int   `json:"pendingRewards"`
	Claimable        *uint256.Int   `json:"claimable"`
	LastAccrualTime  uint64         `json:"lastAccrualTime"`
	LastAccruedEpoch uint64         `json:"lastAccruedEpoch"`
	LastClaimedEpoch uint64         `json:"lastClaimedEpoch"`
	LastInflowTime   uint64         `json:"lastInflowTime"`
}

// GlobalView is a read-only snapshot of the integrator advanced to now.
type GlobalView struct {
	CurrentEpoch          uint64       `json:"currentEpoch"`
	Distributed           bool         `json:"distributed"`
	EligibleUnits         *uint256.Int `json:"eligibleUnits"`
	EligibleSupply        *uint256.Int `json:"eligibleSupply"`
	ExcludedSupply        *uint256.Int `json:"excludedSupply"`
	TrackedSupply         *uint256.Int `json:"trackedSupply"`
	TreasuryUnits         *uint256.Int `json:"treasuryUnits"`
	FutureBreakageUnits   *uint256.Int `json:"futureBreakageUnits"`
	CumulativeIndex       string       `json:"cumulativeIndex"`
	Dust                  *uint256.Int `json:"dust"`
	LifetimeBreakageUnits *uint256.Int `json:"lifetimeBreakageUnits"`
	TotalDeclared         *uint256.Int `json:"totalDeclared"`
	TotalClaimed          *uint256.Int `json:"totalClaimed"`
	TotalSinkMinted       *uint256.Int `json:"totalSinkMinted"`
	LastUpdate            uint64       `json:"lastUpdate"`
}

// Account returns addr's state as if it were settled now. Nothing is
// written.
func (l *Ledger) Account(addr common.Address) (AccountView, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	t := l.begin(context.Background())
	if err := t.advance(); err != nil {
		return AccountView{}, err
	}
	acc := t.account(addr)
	if err := t.settle(acc); err != nil {
		return AccountView{}, err
	}
	claimable, err := t.claimable(acc)
	if err != nil {
		return AccountView{}, err
	}
	return AccountView{
		Address:          addr,
		Balance:          fixedpoint.Copy(acc.Balance),
		Status:           acc.Status.String(),
		LateEpoch:        acc.LateEpoch,
		LateInflow:       fixedpoint.Copy(acc.LateAmount),
		UnitsAccrued:     fixedpoint.Copy(acc.UnitsAccrued),
		PendingRewards:   fixedpoint.Copy(acc.PendingRewards),
		Claimable:        claimable,
		LastAccrualTime:  acc.LastAccrualTime,
		LastAccruedEpoch: acc.LastAccruedEpoch,
		LastClaimedEpoch: acc.LastClaimedEpoch,
		LastInflowTime:   acc.LastInflowTime,
	}, nil
}

// Global returns the integrator advanced to now. Nothing is written.
func (l *Ledger) Global() (GlobalView, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	t := l.begin(context.Background())
	if err := t.advance(); err != nil {
		return GlobalView{}, err
	}
	g := t.global
	id := t.registry.CurrentID()
	return GlobalView{
		CurrentEpoch:          id,
		Distributed:           t.registry.Distributed(id),
		EligibleUnits:         fixedpoint.Copy(g.EligibleUnits),
		EligibleSupply:        fixedpoint.Copy(g.EligibleSupply),
		ExcludedSupply:        fixedpoint.Copy(g.ExcludedSupply),
		TrackedSupply:         fixedpoint.Copy(g.TrackedSupply),
		TreasuryUnits:         fixedpoint.Copy(g.TreasuryUnits),
		FutureBreakageUnits:   fixedpoint.Copy(g.FutureBreakageUnits),
		CumulativeIndex:       g.CumulativeIndex.String(),
		Dust:                  fixedpoint.Copy(g.Dust),
		LifetimeBreakageUnits: fixedpoint.Copy(g.LifetimeBreakageUnits),
		TotalDeclared:         fixedpoint.Copy(g.TotalDeclared),
		TotalClaimed:          fixedpoint.Copy(g.TotalClaimed),
		TotalSinkMinted:       fixedpoint.Copy(g.TotalSinkMinted),
		LastUpdate:            g.LastUpdate,
	}, nil
}

// CurrentEpoch returns the latest configured epoch and whether it has been
// distributed.
func (l *Ledger) CurrentEpoch() (epoch.Epoch, bool, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.registry.Current()
	return e, ok, ok && l.registry.Distributed(e.ID)
}

// Report returns the frozen report for id.
func (l *Ledger) Report(id uint64) (epoch.Report, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.registry.Report(id)
}

// Reports returns every frozen report in epoch order.
func (l *Ledger) Reports() []epoch.Report {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.registry.Reports()
}

// Params returns a copy of the active parameters.
func (l *Ledger) Params() Params {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.params.Clone()
}

// Balances returns every tracked account balance. Intended for audits and
// tests; it walks the whole account set.
func (l *Ledger) Balances() map[common.Address]*uint256.Int {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make(map[common.Address]*uint256.Int, len(l.accounts))
	for addr, acc := range l.accounts {
		out[addr] = fixedpoint.Copy(acc.Balance)
	}
	return out
}
