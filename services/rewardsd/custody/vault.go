// Package custody records the coupon transfers and reward mints the ledger
// requests. Settlement against the asset contracts happens out of band from
// the recorded instructions.
package custody

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/jonboulle/clockwork"

	"couponledger/core/epoch"
	"couponledger/core/fixedpoint"
	"couponledger/core/rewards"
	"couponledger/core/solvency"
	"couponledger/services/rewardsd/storage"
)

// ErrNoSupply is returned by Snapshot when no reward tokens are outstanding,
// leaving the collateral ratio undefined.
var ErrNoSupply = errors.New("custody: no outstanding reward supply")

// Recorder is the subset of the audit store the vault writes to.
type Recorder interface {
	RecordMint(ctx context.Context, epochID uint64, recipient string, amount *uint256.Int, reason string) (storage.MintInstruction, error)
	RecordTransfer(ctx context.Context, epochID uint64, kind, counterparty string, amount *uint256.Int) (storage.CustodyTransfer, error)
	RecordReport(ctx context.Context, rep epoch.Report) error
	MintedTotal(ctx context.Context) (*uint256.Int, error)
}

// Vault implements rewards.Custody, rewards.Minter and solvency.Source.
type Vault struct {
	rec    Recorder
	clock  clockwork.Clock
	logger *slog.Logger

	mu            sync.Mutex
	collateral    *uint256.Int
	collateralAt  time.Time
	initialSupply *uint256.Int
}

// NewVault constructs a vault backed by rec.
func NewVault(rec Recorder, collateral, initialSupply *uint256.Int, clock clockwork.Clock, logger *slog.Logger) *Vault {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Vault{
		rec:           rec,
		clock:         clock,
		logger:        logger,
		collateral:    fixedpoint.Copy(collateral),
		collateralAt:  clock.Now(),
		initialSupply: fixedpoint.Copy(initialSupply),
	}
}

var (
	_ rewards.Custody = (*Vault)(nil)
	_ rewards.Minter  = (*Vault)(nil)
	_ solvency.Source = (*Vault)(nil)
)

func (v *Vault) PullCoupon(ctx context.Context, epochID uint64, from common.Address, amount *uint256.Int) error {
	row, err := v.rec.RecordTransfer(ctx, epochID, storage.TransferPull, from.Hex(), amount)
	if err != nil {
		return err
	}
	v.logger.Info("custody pull recorded", "id", row.ID, "epoch", epochID, "from", from.Hex(), "amount", amount.Dec())
	return nil
}

func (v *Vault) WithdrawSkim(ctx context.Context, epochID uint64, treasury common.Address, amount *uint256.Int) error {
	row, err := v.rec.RecordTransfer(ctx, epochID, storage.TransferSkim, treasury.Hex(), amount)
	if err != nil {
		return err
	}
	v.logger.Info("custody skim recorded", "id", row.ID, "epoch", epochID, "treasury", treasury.Hex(), "amount", amount.Dec())
	return nil
}

func (v *Vault) Mint(ctx context.Context, epochID uint64, to common.Address, amount *uint256.Int, reason rewards.MintReason) error {
	row, err := v.rec.RecordMint(ctx, epochID, to.Hex(), amount, string(reason))
	if err != nil {
		return err
	}
	v.logger.Info("mint recorded", "id", row.ID, "epoch", epochID, "to", to.Hex(), "amount", amount.Dec(), "reason", string(reason))
	return nil
}

// MirrorReport stores a copy of a distribution report next to the
// instructions it produced.
func (v *Vault) MirrorReport(ctx context.Context, rep epoch.Report) error {
	return v.rec.RecordReport(ctx, rep)
}

// SetCollateral replaces the collateral value backing the reward token and
// restamps its observation time.
func (v *Vault) SetCollateral(collateral *uint256.Int) {
	v.mu.Lock()
	v.collateral = fixedpoint.Copy(collateral)
	v.collateralAt = v.clock.Now()
	v.mu.Unlock()
}

// Snapshot reports collateral / (initial supply + recorded mints), observed
// when the collateral was last set.
func (v *Vault) Snapshot(ctx context.Context) (solvency.Snapshot, error) {
	minted, err := v.rec.MintedTotal(ctx)
	if err != nil {
		return solvency.Snapshot{}, err
	}
	v.mu.Lock()
	collateral := fixedpoint.Copy(v.collateral)
	observedAt := v.collateralAt
	initial := fixedpoint.Copy(v.initialSupply)
	v.mu.Unlock()

	outstanding, err := fixedpoint.Add(initial, minted)
	if err != nil {
		return solvency.Snapshot{}, err
	}
	if outstanding.IsZero() {
		return solvency.Snapshot{}, ErrNoSupply
	}
	ratio, err := fixedpoint.MulDiv(collateral, uint256.NewInt(fixedpoint.BasisPoints), outstanding)
	if err != nil {
		return solvency.Snapshot{}, fmt.Errorf("collateral ratio: %w", err)
	}
	ratioBps := uint64(math.MaxUint64)
	if ratio.IsUint64() {
		ratioBps = ratio.Uint64()
	}
	return solvency.Snapshot{
		CollateralRatioBps: ratioBps,
		Outstanding:        outstanding,
		ObservedAt:         observedAt,
	}, nil
}
