package rewards

import (
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"couponledger/core/fixedpoint"
	"couponledger/core/solvency"
)

// Params controls claim limits, distribution guards and the addresses the
// ledger routes value to.
type Params struct {
	// SelfAddress is the ledger's own holding address. Balance changes that
	// involve it are ignored.
	SelfAddress common.Address
	// BreakageSink receives the reward share of forfeited and future
	// breakage units at distribution.
	BreakageSink common.Address
	// Treasury receives the coupon skim.
	Treasury common.Address

	// MinClaim rejects claims smaller than this amount. Zero allows any
	// non-zero claim.
	MinClaim *uint256.Int
	// MaxClaim bounds a single claim. Zero disables the ceiling.
	MaxClaim *uint256.Int
	// MintCeiling bounds the tokens a single distribution may allocate. Zero
	// disables the ceiling.
	MintCeiling *uint256.Int

	// DepegGuard blocks distribution while the reference price is deviant.
	DepegGuard bool
	// Solvency configures the optional collateral headroom check on claims.
	Solvency solvency.Policy
}

// DefaultParams returns a permissive configuration with every optional guard
// disabled.
func DefaultParams() Params {
	return Params{
		MinClaim:    new(uint256.Int),
		MaxClaim:    new(uint256.Int),
		MintCeiling: new(uint256.Int),
	}
}

// Validate ensures the parameters are internally consistent.
func (p Params) Validate() error {
	minClaim := fixedpoint.Copy(p.MinClaim)
	maxClaim := fixedpoint.Copy(p.MaxClaim)
	if !maxClaim.IsZero() && minClaim.Cmp(maxClaim) > 0 {
		return fmt.Errorf("%w: min claim %s exceeds max claim %s", ErrInvalidParams, minClaim.Dec(), maxClaim.Dec())
	}
	if p.Solvency.MaxAge < 0 {
		return fmt.Errorf("%w: solvency max age must not be negative", ErrInvalidParams)
	}
	if p.Solvency.Enabled() && p.Solvency.MaxAge == 0 {
		return fmt.Errorf("%w: solvency max age required when headroom check enabled", ErrInvalidParams)
	}
	if p.SelfAddress != (common.Address{}) && (p.SelfAddress == p.BreakageSink || p.SelfAddress == p.Treasury) {
		return fmt.Errorf("%w: self address may not double as sink or treasury", ErrInvalidParams)
	}
	return nil
}

// Clone returns a deep copy of the parameters.
func (p Params) Clone() Params {
	out := p
	out.MinClaim = fixedpoint.Copy(p.MinClaim)
	out.MaxClaim = fixedpoint.Copy(p.MaxClaim)
	out.MintCeiling = fixedpoint.Copy(p.MintCeiling)
	return out
}

type storedParams struct {
	SelfAddress           common.Address
	BreakageSink          common.Address
	Treasury              common.Address
	MinClaim              []byte
	MaxClaim              []byte
	MintCeiling           []byte
	DepegGuard            bool
	MinCollateralRatioBps uint64
	SolvencyMaxAgeSeconds uint64
}

func (p Params) stored() storedParams {
	return storedParams{
		SelfAddress:           p.SelfAddress,
		BreakageSink:          p.BreakageSink,
		Treasury:              p.Treasury,
		MinClaim:              fixedpoint.Bytes(p.MinClaim),
		MaxClaim:              fixedpoint.Bytes(p.MaxClaim),
		MintCeiling:           fixedpoint.Bytes(p.MintCeiling),
		DepegGuard:            p.DepegGuard,
		MinCollateralRatioBps: p.Solvency.MinCollateralRatioBps,
		SolvencyMaxAgeSeconds: uint64(p.Solvency.MaxAge / time.Second),
	}
}

func (s storedParams) params() (Params, error) {
	minClaim, err := fixedpoint.FromBytes(s.MinClaim)
	if err != nil {
		return Params{}, err
	}
	maxClaim, err := fixedpoint.FromBytes(s.MaxClaim)
	if err != nil {
		return Params{}, err
	}
	ceiling, err := fixedpoint.FromBytes(s.MintCeiling)
	if err != nil {
		return Params{}, err
	}
	return Params{
		SelfAddress:  s.SelfAddress,
		BreakageSink: s.BreakageSink,
		Treasury:     s.Treasury,
		MinClaim:     minClaim,
		MaxClaim:     maxClaim,
		MintCeiling:  ceiling,
		DepegGuard:   s.DepegGuard,
		Solvency: solvency.Policy{
			MinCollateralRatioBps: s.MinCollateralRatioBps,
			MaxAge:                time.Duration(s.SolvencyMaxAgeSeconds) * time.Second,
		},
	}, nil
}
