package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/holiman/uint256"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"couponledger/core/epoch"
)

var (
	// ErrPathRequired is returned when the backing store path is missing.
	ErrPathRequired = errors.New("rewardsd storage path must be configured")
	// ErrUnsupportedDriver is returned for drivers other than sqlite and postgres.
	ErrUnsupportedDriver = errors.New("rewardsd storage driver not supported")
)

// Storage is the rewardsd audit store. It records every external instruction
// the ledger issues so operators can reconcile custody and mint activity.
type Storage struct {
	db *gorm.DB
}

// Open connects to the audit database and applies migrations.
func Open(driver, dsn string) (*Storage, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, ErrPathRequired
	}
	var dialector gorm.Dialector
	switch driver {
	case "sqlite":
		dialector = sqlite.Open(dsn)
	case "postgres":
		dialector = postgres.Open(dsn)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedDriver, driver)
	}
	db, err := gorm.Open(dialector, &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := AutoMigrate(db); err != nil {
		return nil, fmt.Errorf("migrate database: %w", err)
	}
	return &Storage{db: db}, nil
}

// Close releases database resources.
func (s *Storage) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// RecordMint persists a mint instruction.
func (s *Storage) RecordMint(ctx context.Context, epochID uint64, recipient string, amount *uint256.Int, reason string) (MintInstruction, error) {
	row := MintInstruction{
		ID:        uuid.New(),
		Epoch:     epochID,
		Recipient: strings.ToLower(recipient),
		Amount:    amount.Dec(),
		Reason:    reason,
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return MintInstruction{}, fmt.Errorf("insert mint: %w", err)
	}
	return row, nil
}

// RecordTransfer persists a custody transfer.
func (s *Storage) RecordTransfer(ctx context.Context, epochID uint64, kind, counterparty string, amount *uint256.Int) (CustodyTransfer, error) {
	row := CustodyTransfer{
		ID:           uuid.New(),
		Epoch:        epochID,
		Kind:         kind,
		Counterparty: strings.ToLower(counterparty),
		Amount:       amount.Dec(),
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return CustodyTransfer{}, fmt.Errorf("insert transfer: %w", err)
	}
	return row, nil
}

// RecordReport upserts the mirror of a distribution report.
func (s *Storage) RecordReport(ctx context.Context, rep epoch.Report) error {
	digest, err := rep.Digest()
	if err != nil {
		return fmt.Errorf("digest report: %w", err)
	}
	row := ReportRecord{
		EpochID:          rep.EpochID,
		Digest:           digest,
		DistributionTime: rep.DistributionTime,
		Coupon:           dec(rep.Coupon),
		Skim:             dec(rep.Skim),
		ConversionPrice:  rep.ConversionPrice.String(),
		TotalReward:      dec(rep.TotalReward),
		TokensAllocated:  dec(rep.TokensAllocated),
		SinkMinted:       dec(rep.SinkMinted),
		DustCarry:        dec(rep.DustCarry),
		CumulativeIndex:  rep.CumulativeIndex.String(),
	}
	err = s.db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("upsert report: %w", err)
	}
	return nil
}

// Report returns the stored mirror for epochID.
func (s *Storage) Report(ctx context.Context, epochID uint64) (ReportRecord, error) {
	var row ReportRecord
	if err := s.db.WithContext(ctx).First(&row, "epoch_id = ?", epochID).Error; err != nil {
		return ReportRecord{}, err
	}
	return row, nil
}

// Mints lists mint instructions for an epoch, oldest first.
func (s *Storage) Mints(ctx context.Context, epochID uint64) ([]MintInstruction, error) {
	var rows []MintInstruction
	err := s.db.WithContext(ctx).Where("epoch = ?", epochID).Order("created_at asc").Find(&rows).Error
	return rows, err
}

// Transfers lists custody transfers for an epoch, oldest first.
func (s *Storage) Transfers(ctx context.Context, epochID uint64) ([]CustodyTransfer, error) {
	var rows []CustodyTransfer
	err := s.db.WithContext(ctx).Where("epoch = ?", epochID).Order("created_at asc").Find(&rows).Error
	return rows, err
}

// MintedTotal sums every recorded mint.
func (s *Storage) MintedTotal(ctx context.Context) (*uint256.Int, error) {
	var amounts []string
	if err := s.db.WithContext(ctx).Model(&MintInstruction{}).Pluck("amount", &amounts).Error; err != nil {
		return nil, fmt.Errorf("load mints: %w", err)
	}
	total := new(uint256.Int)
	for _, raw := range amounts {
		v, err := uint256.FromDecimal(raw)
		if err != nil {
			return nil, fmt.Errorf("decode mint amount %q: %w", raw, err)
		}
		if _, overflow := total.AddOverflow(total, v); overflow {
			return nil, fmt.Errorf("mint total overflows")
		}
	}
	return total, nil
}

func dec(v *uint256.Int) string {
	if v == nil {
		return "0"
	}
	return v.Dec()
}
