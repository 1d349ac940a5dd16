package config

// Schedule describes the sale timeline in ticks and the price curve.
type Schedule struct {
	StartTick          uint64 `toml:"StartTick"`
	AllocationTicks    uint64 `toml:"AllocationTicks"`
	AllocationPrice    string `toml:"AllocationPrice"`
	StageCount         uint8  `toml:"StageCount"`
	StageTicks         uint64 `toml:"StageTicks"`
	StagePriceIncrease string `toml:"StagePriceIncrease"`
}

// Caps bounds contributions. Empty or zero amounts disable a cap.
type Caps struct {
	TokenSupply         string `toml:"TokenSupply"`
	MinContribution     string `toml:"MinContribution"`
	ParticipantCap      string `toml:"ParticipantCap"`
	ParticipantStageCap string `toml:"ParticipantStageCap"`
	SaleCap             string `toml:"SaleCap"`
	MaxContributions    uint32 `toml:"MaxContributions"`
}

// Roles names the privileged addresses as 0x-prefixed hex.
type Roles struct {
	WhitelistController string `toml:"WhitelistController"`
	ProjectWallet       string `toml:"ProjectWallet"`
}

// Token describes the ERC777-style token the sale mints.
type Token struct {
	Symbol           string   `toml:"Symbol"`
	Name             string   `toml:"Name"`
	Decimals         uint8    `toml:"Decimals"`
	Granularity      string   `toml:"Granularity"`
	DefaultOperators []string `toml:"DefaultOperators"`
}

// Pauses sets the initial pause state of each module.
type Pauses struct {
	Sale  bool `toml:"Sale"`
	Bank  bool `toml:"Bank"`
	Token bool `toml:"Token"`
}

// Vault names the asset the sale accepts.
type Vault struct {
	Asset string `toml:"Asset"`
}
