package config

import (
	"fmt"
	"math/big"
	"strings"
)

// Validate checks the definition end to end, including the schedule it
// produces.
func Validate(cfg *SaleConfig) error {
	settings, err := cfg.Settings()
	if err != nil {
		return err
	}
	if err := settings.Validate(); err != nil {
		return err
	}
	if settings.WhitelistController == settings.ProjectWallet {
		return fmt.Errorf("roles: whitelist controller and project wallet must differ")
	}
	tokenCfg, err := cfg.TokenConfig()
	if err != nil {
		return err
	}
	// Awards are computed in single base units.
	if tokenCfg.Granularity.Cmp(big.NewInt(1)) != 0 {
		return fmt.Errorf("token: granularity must be 1, got %s", tokenCfg.Granularity)
	}
	if strings.TrimSpace(cfg.Vault.Asset) == "" {
		return fmt.Errorf("vault: asset required")
	}
	return nil
}
