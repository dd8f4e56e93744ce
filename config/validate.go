package config

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

var (
	MaxCollateralRatioBps = uint64(1_000_000)
)

// ValidateParams checks the file-level invariants before conversion.
func ValidateParams(p Params) error {
	for name, value := range map[string]string{
		"addresses.Self":         p.Addresses.Self,
		"addresses.BreakageSink": p.Addresses.BreakageSink,
		"addresses.Treasury":     p.Addresses.Treasury,
	} {
		if trimmed := strings.TrimSpace(value); trimmed != "" && !common.IsHexAddress(trimmed) {
			return fmt.Errorf("%s: invalid address %q", name, value)
		}
	}
	if p.Solvency.MinCollateralRatioBps > MaxCollateralRatioBps {
		return fmt.Errorf("solvency: min_collateral_ratio_bps above %d", MaxCollateralRatioBps)
	}
	if p.Solvency.MinCollateralRatioBps > 0 && p.Solvency.MaxAgeSeconds == 0 {
		return fmt.Errorf("solvency: max_age_seconds required when ratio set")
	}
	return nil
}
