package storage

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Transfer kinds recorded by the custody vault.
const (
	TransferPull = "pull"
	TransferSkim = "skim"
)

// MintInstruction is a reward-token issuance requested by the ledger.
// Amounts are decimal strings because they exceed 64 bits.
type MintInstruction struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	Epoch     uint64    `gorm:"index"`
	Recipient string    `gorm:"index;size:42"`
	Amount    string    `gorm:"not null"`
	Reason    string    `gorm:"index;size:16"`
	CreatedAt time.Time
}

// CustodyTransfer is a coupon movement requested by the ledger.
type CustodyTransfer struct {
	ID           uuid.UUID `gorm:"type:uuid;primaryKey"`
	Epoch        uint64    `gorm:"index"`
	Kind         string    `gorm:"index;size:8"`
	Counterparty string    `gorm:"size:42"`
	Amount       string    `gorm:"not null"`
	CreatedAt    time.Time
}

// ReportRecord mirrors a distribution report for off-chain reconciliation.
type ReportRecord struct {
	EpochID          uint64 `gorm:"primaryKey;autoIncrement:false"`
	Digest           string `gorm:"size:64;not null"`
	DistributionTime uint64
	Coupon           string
	Skim             string
	ConversionPrice  string
	TotalReward      string
	TokensAllocated  string
	SinkMinted       string
	DustCarry        string
	CumulativeIndex  string
	CreatedAt        time.Time
}

// AutoMigrate performs all schema migrations for the service.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&MintInstruction{},
		&CustodyTransfer{},
		&ReportRecord{},
	)
}
