package config

// Addresses names the accounts the ledger routes value to. Values are
// 0x-prefixed hex.
type Addresses struct {
	Self         string `toml:"Self"`
	BreakageSink string `toml:"BreakageSink"`
	Treasury     string `toml:"Treasury"`
}

// Claims bounds individual claims. Amounts are base-10 integers; empty or
// "0" disables the bound.
type Claims struct {
	Min string `toml:"Min"`
	Max string `toml:"Max"`
}

// Distribution guards epoch distributions.
type Distribution struct {
	MintCeiling string `toml:"MintCeiling"`
	DepegGuard  bool   `toml:"DepegGuard"`
}

// Solvency configures the claim headroom check. A zero ratio disables it.
type Solvency struct {
	MinCollateralRatioBps uint64 `toml:"MinCollateralRatioBps"`
	MaxAgeSeconds         uint64 `toml:"MaxAgeSeconds"`
}

// Params is the on-disk form of the ledger's economic parameters.
type Params struct {
	Addresses    Addresses    `toml:"addresses"`
	Claims       Claims       `toml:"claims"`
	Distribution Distribution `toml:"distribution"`
	Solvency     Solvency     `toml:"solvency"`
}
