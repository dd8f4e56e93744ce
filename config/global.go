package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"couponledger/core/rewards"
	"couponledger/core/solvency"
)

// RewardsParams parses the file values into runtime ledger parameters.
func (p Params) RewardsParams() (rewards.Params, error) {
	if err := ValidateParams(p); err != nil {
		return rewards.Params{}, err
	}
	out := rewards.DefaultParams()
	out.SelfAddress = parseAddress(p.Addresses.Self)
	out.BreakageSink = parseAddress(p.Addresses.BreakageSink)
	out.Treasury = parseAddress(p.Addresses.Treasury)

	var err error
	if out.MinClaim, err = parseUintAmount(p.Claims.Min); err != nil {
		return rewards.Params{}, fmt.Errorf("invalid claims.Min: %w", err)
	}
	if out.MaxClaim, err = parseUintAmount(p.Claims.Max); err != nil {
		return rewards.Params{}, fmt.Errorf("invalid claims.Max: %w", err)
	}
	if out.MintCeiling, err = parseUintAmount(p.Distribution.MintCeiling); err != nil {
		return rewards.Params{}, fmt.Errorf("invalid distribution.MintCeiling: %w", err)
	}
	out.DepegGuard = p.Distribution.DepegGuard
	out.Solvency = solvency.Policy{
		MinCollateralRatioBps: p.Solvency.MinCollateralRatioBps,
		MaxAge:                time.Duration(p.Solvency.MaxAgeSeconds) * time.Second,
	}
	if err := out.Validate(); err != nil {
		return rewards.Params{}, err
	}
	return out, nil
}

func parseAddress(value string) common.Address {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return common.Address{}
	}
	return common.HexToAddress(trimmed)
}

func parseUintAmount(value string) (*uint256.Int, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return new(uint256.Int), nil
	}
	amount, err := uint256.FromDecimal(trimmed)
	if err != nil {
		return nil, err
	}
	return amount, nil
}
