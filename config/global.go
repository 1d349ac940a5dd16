package config

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"rico/native/sale"
	"rico/native/token"
)

// Settings converts the definition into engine settings.
func (c *SaleConfig) Settings() (sale.Settings, error) {
	var s sale.Settings
	if c == nil {
		return s, fmt.Errorf("config: nil sale definition")
	}
	s.StartTick = c.Schedule.StartTick
	s.AllocationTicks = c.Schedule.AllocationTicks
	s.StageCount = c.Schedule.StageCount
	s.StageTicks = c.Schedule.StageTicks
	s.MaxContributions = c.Caps.MaxContributions

	amounts := []struct {
		name  string
		value string
		dst   *uint256.Int
	}{
		{"schedule.AllocationPrice", c.Schedule.AllocationPrice, &s.AllocationPrice},
		{"schedule.StagePriceIncrease", c.Schedule.StagePriceIncrease, &s.StagePriceIncrease},
		{"caps.TokenSupply", c.Caps.TokenSupply, &s.TokenSupply},
		{"caps.MinContribution", c.Caps.MinContribution, &s.MinContribution},
		{"caps.ParticipantCap", c.Caps.ParticipantCap, &s.ParticipantCap},
		{"caps.ParticipantStageCap", c.Caps.ParticipantStageCap, &s.ParticipantStageCap},
		{"caps.SaleCap", c.Caps.SaleCap, &s.SaleCap},
	}
	for _, a := range amounts {
		v, err := parseUintAmount(a.value)
		if err != nil {
			return s, fmt.Errorf("invalid %s: %w", a.name, err)
		}
		*a.dst = v
	}

	var err error
	if s.WhitelistController, err = parseAddress(c.Roles.WhitelistController); err != nil {
		return s, fmt.Errorf("invalid roles.WhitelistController: %w", err)
	}
	if s.ProjectWallet, err = parseAddress(c.Roles.ProjectWallet); err != nil {
		return s, fmt.Errorf("invalid roles.ProjectWallet: %w", err)
	}
	return s, nil
}

// TokenConfig converts the token section into ledger configuration.
func (c *SaleConfig) TokenConfig() (token.Config, error) {
	cfg := token.Config{
		Symbol:   c.Token.Symbol,
		Name:     c.Token.Name,
		Decimals: c.Token.Decimals,
	}
	granularity, err := parseUintAmount(c.Token.Granularity)
	if err != nil {
		return cfg, fmt.Errorf("invalid token.Granularity: %w", err)
	}
	cfg.Granularity = granularity.ToBig()
	for i, raw := range c.Token.DefaultOperators {
		addr, err := parseAddress(raw)
		if err != nil {
			return cfg, fmt.Errorf("invalid token.DefaultOperators[%d]: %w", i, err)
		}
		cfg.DefaultOperators = append(cfg.DefaultOperators, addr)
	}
	return cfg, nil
}

// parseUintAmount reads a non-negative base-unit amount. Empty means zero.
// Underscores may group digits.
func parseUintAmount(raw string) (uint256.Int, error) {
	var out uint256.Int
	trimmed := strings.ReplaceAll(strings.TrimSpace(raw), "_", "")
	if trimmed == "" {
		return out, nil
	}
	v, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return out, fmt.Errorf("%q is not a decimal integer", raw)
	}
	if v.Sign() < 0 {
		return out, fmt.Errorf("%q is negative", raw)
	}
	if out.SetFromBig(v) {
		return out, fmt.Errorf("%q overflows 256 bits", raw)
	}
	return out, nil
}

func parseAddress(raw string) (common.Address, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return common.Address{}, fmt.Errorf("address required")
	}
	if !common.IsHexAddress(trimmed) {
		return common.Address{}, fmt.Errorf("%q is not a hex address", raw)
	}
	return common.HexToAddress(trimmed), nil
}
