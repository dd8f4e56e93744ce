package events

import (
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"couponledger/core/types"
)

const (
	// TypeRewardsEpochConfigured is emitted when a new epoch is registered.
	TypeRewardsEpochConfigured = "rewards.epoch.configured"
	// TypeRewardsDistributed is emitted once per epoch when the coupon is
	// converted and the index advanced.
	TypeRewardsDistributed = "rewards.distributed"
	// TypeRewardsClaimed is emitted for every successful claim.
	TypeRewardsClaimed = "rewards.claimed"
	// TypeRewardsBreakage is emitted when an outflow forfeits units to the
	// breakage sink.
	TypeRewardsBreakage = "rewards.breakage"
	// TypeRewardsLateInflow is emitted when an inflow lands inside the
	// checkpoint window and does not earn for the current epoch.
	TypeRewardsLateInflow = "rewards.late_inflow"
	// TypeRewardsExclusion is emitted when an account is excluded or
	// re-included.
	TypeRewardsExclusion = "rewards.exclusion"
	// TypeRewardsPaused is emitted when claims and distribution are paused or
	// resumed.
	TypeRewardsPaused = "rewards.paused"
)

// BreakageKind distinguishes the two breakage sources.
type BreakageKind string

const (
	BreakageTreasury BreakageKind = "treasury"
	BreakageFuture   BreakageKind = "future"
)

func amount(v *uint256.Int) string {
	if v == nil {
		return "0"
	}
	return v.Dec()
}

func u64(v uint64) string { return strconv.FormatUint(v, 10) }

// RewardsEpochConfigured captures a newly registered epoch.
type RewardsEpochConfigured struct {
	Epoch           uint64
	StartTime       uint64
	EndTime         uint64
	CheckpointStart uint64
	CheckpointEnd   uint64
	EligibleSupply  *uint256.Int
}

func (e RewardsEpochConfigured) Event() *types.Event {
	return &types.Event{
		Type: TypeRewardsEpochConfigured,
		Attributes: map[string]string{
			"epoch":           u64(e.Epoch),
			"startTime":       u64(e.StartTime),
			"endTime":         u64(e.EndTime),
			"checkpointStart": u64(e.CheckpointStart),
			"checkpointEnd":   u64(e.CheckpointEnd),
			"eligibleSupply":  amount(e.EligibleSupply),
		},
	}
}

// RewardsDistributed summarises a frozen epoch report.
type RewardsDistributed struct {
	Epoch            uint64
	Coupon           *uint256.Int
	Skim             *uint256.Int
	TotalReward      *uint256.Int
	DenominatorUnits *uint256.Int
	DeltaIndex       string
	TokensAllocated  *uint256.Int
	SinkMinted       *uint256.Int
	Dust             *uint256.Int
	Digest           string
}

func (e RewardsDistributed) Event() *types.Event {
	return &types.Event{
		Type: TypeRewardsDistributed,
		Attributes: map[string]string{
			"epoch":            u64(e.Epoch),
			"coupon":           amount(e.Coupon),
			"skim":             amount(e.Skim),
			"totalReward":      amount(e.TotalReward),
			"denominatorUnits": amount(e.DenominatorUnits),
			"deltaIndex":       e.DeltaIndex,
			"tokensAllocated":  amount(e.TokensAllocated),
			"sinkMinted":       amount(e.SinkMinted),
			"dust":             amount(e.Dust),
			"digest":           e.Digest,
		},
	}
}

// RewardsClaimed records a claim payout.
type RewardsClaimed struct {
	Account   common.Address
	Recipient common.Address
	Amount    *uint256.Int
	Epoch     uint64
}

func (e RewardsClaimed) Event() *types.Event {
	return &types.Event{
		Type: TypeRewardsClaimed,
		Attributes: map[string]string{
			"account":   e.Account.Hex(),
			"recipient": e.Recipient.Hex(),
			"amount":    amount(e.Amount),
			"epoch":     u64(e.Epoch),
		},
	}
}

// RewardsBreakage records units moved to the breakage sink.
type RewardsBreakage struct {
	Account common.Address
	Epoch   uint64
	Kind    BreakageKind
	Units   *uint256.Int
	Sold    *uint256.Int
}

func (e RewardsBreakage) Event() *types.Event {
	return &types.Event{
		Type: TypeRewardsBreakage,
		Attributes: map[string]string{
			"account": e.Account.Hex(),
			"epoch":   u64(e.Epoch),
			"kind":    string(e.Kind),
			"units":   amount(e.Units),
			"sold":    amount(e.Sold),
		},
	}
}

// RewardsLateInflow records an inflow that does not earn this epoch.
type RewardsLateInflow struct {
	Account common.Address
	Epoch   uint64
	Amount  *uint256.Int
}

func (e RewardsLateInflow) Event() *types.Event {
	return &types.Event{
		Type: TypeRewardsLateInflow,
		Attributes: map[string]string{
			"account": e.Account.Hex(),
			"epoch":   u64(e.Epoch),
			"amount":  amount(e.Amount),
		},
	}
}

// RewardsExclusion records an exclusion toggle.
type RewardsExclusion struct {
	Account  common.Address
	Excluded bool
}

func (e RewardsExclusion) Event() *types.Event {
	return &types.Event{
		Type: TypeRewardsExclusion,
		Attributes: map[string]string{
			"account":  e.Account.Hex(),
			"excluded": strconv.FormatBool(e.Excluded),
		},
	}
}

// RewardsPaused records a pause toggle.
type RewardsPaused struct {
	Paused bool
}

func (e RewardsPaused) Event() *types.Event {
	return &types.Event{
		Type:       TypeRewardsPaused,
		Attributes: map[string]string{"paused": strconv.FormatBool(e.Paused)},
	}
}
