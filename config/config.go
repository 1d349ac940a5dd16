package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// ErrDefaultWritten is returned by Load when no sale definition existed and a
// template was written in its place. The template has no roles and must be
// edited before the sale can run.
var ErrDefaultWritten = errors.New("config: default sale definition written")

// SaleConfig is the on-disk sale definition.
type SaleConfig struct {
	Schedule Schedule `toml:"schedule"`
	Caps     Caps     `toml:"caps"`
	Roles    Roles    `toml:"roles"`
	Token    Token    `toml:"token"`
	Vault    Vault    `toml:"vault"`
	Pauses   Pauses   `toml:"pauses"`
}

// Load loads the sale definition from the given path.
func Load(path string) (*SaleConfig, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if _, err := createDefault(path); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %s", ErrDefaultWritten, path)
	}

	cfg := &SaleConfig{}
	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, err
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("config file %s has unknown key %s", path, undecoded[0].String())
	}

	applyDefaults(cfg)
	return cfg, nil
}

func applyDefaults(cfg *SaleConfig) {
	if strings.TrimSpace(cfg.Token.Symbol) == "" {
		cfg.Token.Symbol = "RICO"
	}
	if strings.TrimSpace(cfg.Token.Name) == "" {
		cfg.Token.Name = cfg.Token.Symbol
	}
	if cfg.Token.Decimals == 0 {
		cfg.Token.Decimals = 18
	}
	if strings.TrimSpace(cfg.Token.Granularity) == "" {
		cfg.Token.Granularity = "1"
	}
	if cfg.Token.DefaultOperators == nil {
		cfg.Token.DefaultOperators = []string{}
	}
	if strings.TrimSpace(cfg.Vault.Asset) == "" {
		cfg.Vault.Asset = "ETH"
	}
}

// Default returns the template written for a missing sale definition.
func Default() *SaleConfig {
	cfg := &SaleConfig{
		Schedule: Schedule{
			StartTick:          1,
			AllocationTicks:    14 * 6450,
			AllocationPrice:    "2000000000000000",
			StageCount:         12,
			StageTicks:         30 * 6450,
			StagePriceIncrease: "100000000000000",
		},
		Caps: Caps{
			TokenSupply:      "100000000000000000000000000",
			MinContribution:  "10000000000000000",
			MaxContributions: 0,
		},
	}
	applyDefaults(cfg)
	return cfg
}

// createDefault creates and saves a default sale definition.
func createDefault(path string) (*SaleConfig, error) {
	cfg := Default()
	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func persist(path string, cfg *SaleConfig) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}
