package rewards

import (
	"github.com/holiman/uint256"

	"couponledger/core/fixedpoint"
)

// Status is the eligibility state of an account.
type Status uint8

const (
	// StatusPending marks an account first seen before any epoch existed.
	StatusPending Status = iota
	// StatusActive accounts earn on their whole balance.
	StatusActive
	// StatusLateEntry accounts earn on their balance minus the inflow that
	// arrived inside the checkpoint window of LateEpoch.
	StatusLateEntry
	// StatusExcluded accounts earn nothing.
	StatusExcluded
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusActive:
		return "active"
	case StatusLateEntry:
		return "late_entry"
	case StatusExcluded:
		return "excluded"
	default:
		return "unknown"
	}
}

// Account is the per-holder accrual state.
type Account struct {
	Balance *uint256.Int
	Status  Status
	// LateEpoch and LateAmount are only meaningful in StatusLateEntry.
	LateEpoch  uint64
	LateAmount *uint256.Int

	LastAccrualTime  uint64
	LastAccruedEpoch uint64
	UnitsAccrued     *uint256.Int
	// RewardDebt is kept scaled by 1e18 (units * index).
	RewardDebt       *uint256.Int
	PendingRewards   *uint256.Int
	LastClaimedEpoch uint64
	LastInflowTime   uint64
}

func newAccount() *Account {
	return &Account{
		Balance:        new(uint256.Int),
		LateAmount:     new(uint256.Int),
		UnitsAccrued:   new(uint256.Int),
		RewardDebt:     new(uint256.Int),
		PendingRewards: new(uint256.Int),
	}
}

// Clone returns a deep copy.
func (a *Account) Clone() *Account {
	if a == nil {
		return newAccount()
	}
	out := *a
	out.Balance = fixedpoint.Copy(a.Balance)
	out.LateAmount = fixedpoint.Copy(a.LateAmount)
	out.UnitsAccrued = fixedpoint.Copy(a.UnitsAccrued)
	out.RewardDebt = fixedpoint.Copy(a.RewardDebt)
	out.PendingRewards = fixedpoint.Copy(a.PendingRewards)
	return &out
}

func (a *Account) Excluded() bool { return a.Status == StatusExcluded }

// Eligible reports whether the account earns on its non-late balance.
func (a *Account) Eligible() bool { return a.Status != StatusExcluded }

// Late returns the late inflow recorded for epochID.
func (a *Account) Late(epochID uint64) *uint256.Int {
	if a.Status != StatusLateEntry || a.LateEpoch != epochID {
		return new(uint256.Int)
	}
	return fixedpoint.Copy(a.LateAmount)
}

// EarningBalance is the balance that accrues units during epochID.
func (a *Account) EarningBalance(epochID uint64) *uint256.Int {
	if a.Excluded() {
		return new(uint256.Int)
	}
	return fixedpoint.SubFloor(a.Balance, a.Late(epochID))
}

func (a *Account) addLate(epochID uint64, amount *uint256.Int) error {
	late := a.Late(epochID)
	sum, err := fixedpoint.Add(late, amount)
	if err != nil {
		return err
	}
	a.Status = StatusLateEntry
	a.LateEpoch = epochID
	a.LateAmount = sum
	return nil
}

// consumeLate removes up to amount from the late inflow of epochID and
// returns how much was taken.
func (a *Account) consumeLate(epochID uint64, amount *uint256.Int) *uint256.Int {
	late := a.Late(epochID)
	taken := fixedpoint.Min(late, amount)
	if taken.IsZero() {
		return taken
	}
	a.LateAmount = new(uint256.Int).Sub(late, taken)
	if a.LateAmount.IsZero() {
		a.clearLate()
	}
	return taken
}

func (a *Account) clearLate() {
	if a.Status == StatusLateEntry {
		a.Status = StatusActive
	}
	a.LateEpoch = 0
	a.LateAmount = new(uint256.Int)
}

type storedAccount struct {
	Balance          []byte
	Status           uint8
	LateEpoch        uint64
	LateAmount       []byte
	LastAccrualTime  uint64
	LastAccruedEpoch uint64
	UnitsAccrued     []byte
	RewardDebt       []byte
	PendingRewards   []byte
	LastClaimedEpoch uint64
	LastInflowTime   uint64
}

func (a *Account) stored() storedAccount {
	return storedAccount{
		Balance:          fixedpoint.Bytes(a.Balance),
		Status:           uint8(a.Status),
		LateEpoch:        a.LateEpoch,
		LateAmount:       fixedpoint.Bytes(a.LateAmount),
		LastAccrualTime:  a.LastAccrualTime,
		LastAccruedEpoch: a.LastAccruedEpoch,
		UnitsAccrued:     fixedpoint.Bytes(a.UnitsAccrued),
		RewardDebt:       fixedpoint.Bytes(a.RewardDebt),
		PendingRewards:   fixedpoint.Bytes(a.PendingRewards),
		LastClaimedEpoch: a.LastClaimedEpoch,
		LastInflowTime:   a.LastInflowTime,
	}
}

func (s storedAccount) account() (*Account, error) {
	values := make([]*uint256.Int, 5)
	for i, raw := range [][]byte{s.Balance, s.LateAmount, s.UnitsAccrued, s.RewardDebt, s.PendingRewards} {
		v, err := fixedpoint.FromBytes(raw)
		if err != nil {
			return nil, err
		}
		values[i] = v
	}
	return &Account{
		Balance:          values[0],
		Status:           Status(s.Status),
		LateEpoch:        s.LateEpoch,
		LateAmount:       values[1],
		LastAccrualTime:  s.LastAccrualTime,
		LastAccruedEpoch: s.LastAccruedEpoch,
		UnitsAccrued:     values[2],
		RewardDebt:       values[3],
		PendingRewards:   values[4],
		LastClaimedEpoch: s.LastClaimedEpoch,
		LastInflowTime:   s.LastInflowTime,
	}, nil
}
