package rewards

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// MintReason labels why reward tokens are minted.
type MintReason string

const (
	MintReasonClaim    MintReason = "claim"
	MintReasonBreakage MintReason = "breakage"
)

// Custody moves income-asset coupons on behalf of the ledger.
type Custody interface {
	// PullCoupon transfers amount from the distributor into custody.
	PullCoupon(ctx context.Context, epoch uint64, from common.Address, amount *uint256.Int) error
	// WithdrawSkim routes the skimmed portion of a coupon to the treasury.
	WithdrawSkim(ctx context.Context, epoch uint64, treasury common.Address, amount *uint256.Int) error
}

// Minter issues reward tokens.
type Minter interface {
	Mint(ctx context.Context, epoch uint64, to common.Address, amount *uint256.Int, reason MintReason) error
}

type effectKind uint8

const (
	effectPullCoupon effectKind = iota + 1
	effectWithdrawSkim
	effectMint
)

// effect is an external interaction produced by a transition. Effects run in
// order after the transition has been committed.
type effect struct {
	kind    effectKind
	epoch   uint64
	account common.Address
	amount  *uint256.Int
	reason  MintReason
}
