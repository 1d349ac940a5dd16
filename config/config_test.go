package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

const saleDefinition = `
[schedule]
StartTick = 100
AllocationTicks = 100
AllocationPrice = "2_000_000_000_000_000"
StageCount = 2
StageTicks = 50
StagePriceIncrease = "100000000000000"

[caps]
TokenSupply = "1000000000000000000000000"
MinContribution = "1000"
ParticipantCap = "5000000000000000000"
MaxContributions = 64

[roles]
WhitelistController = "0x00000000000000000000000000000000000000c0"
ProjectWallet = "0x00000000000000000000000000000000000000f0"

[token]
Symbol = "TST"
DefaultOperators = ["0x00000000000000000000000000000000000000aa"]

[pauses]
Bank = true
`

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sale.toml")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadParsesSaleDefinition(t *testing.T) {
	cfg, err := Load(writeConfig(t, saleDefinition))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if err := Validate(cfg); err != nil {
		t.Fatalf("validate: %v", err)
	}
	settings, err := cfg.Settings()
	if err != nil {
		t.Fatalf("settings: %v", err)
	}
	if settings.StartTick != 100 || settings.AllocationTicks != 100 || settings.StageCount != 2 || settings.StageTicks != 50 {
		t.Fatalf("unexpected schedule: %+v", settings)
	}
	if !settings.AllocationPrice.Eq(uint256.NewInt(2e15)) {
		t.Fatalf("allocation price = %s", settings.AllocationPrice.Dec())
	}
	if !settings.ParticipantCap.Eq(uint256.NewInt(5e18)) {
		t.Fatalf("participant cap = %s", settings.ParticipantCap.Dec())
	}
	if !settings.SaleCap.IsZero() || !settings.ParticipantStageCap.IsZero() {
		t.Fatalf("expected unset caps to be zero")
	}
	if settings.MaxContributions != 64 {
		t.Fatalf("max contributions = %d", settings.MaxContributions)
	}
	if settings.WhitelistController != common.HexToAddress("0xc0") {
		t.Fatalf("controller = %s", settings.WhitelistController.Hex())
	}
	if !cfg.Pauses.Bank || cfg.Pauses.Sale {
		t.Fatalf("unexpected pauses: %+v", cfg.Pauses)
	}

	tokenCfg, err := cfg.TokenConfig()
	if err != nil {
		t.Fatalf("token config: %v", err)
	}
	if tokenCfg.Symbol != "TST" || tokenCfg.Name != "TST" || tokenCfg.Decimals != 18 {
		t.Fatalf("unexpected token defaults: %+v", tokenCfg)
	}
	if tokenCfg.Granularity.Int64() != 1 {
		t.Fatalf("granularity = %s", tokenCfg.Granularity)
	}
	if len(tokenCfg.DefaultOperators) != 1 || tokenCfg.DefaultOperators[0] != common.HexToAddress("0xaa") {
		t.Fatalf("default operators = %v", tokenCfg.DefaultOperators)
	}
	if cfg.Vault.Asset != "ETH" {
		t.Fatalf("vault asset = %q", cfg.Vault.Asset)
	}
}

func TestLoadWritesDefaultWhenMissing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "sale.toml")
	_, err := Load(path)
	if !errors.Is(err, ErrDefaultWritten) {
		t.Fatalf("expected ErrDefaultWritten, got %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if cfg.Schedule.StageCount != 12 {
		t.Fatalf("stage count = %d", cfg.Schedule.StageCount)
	}
	if err := Validate(cfg); err == nil || !strings.Contains(err.Error(), "roles.WhitelistController") {
		t.Fatalf("expected missing role error, got %v", err)
	}
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	_, err := Load(writeConfig(t, saleDefinition+"\n[extra]\nFoo = 1\n"))
	if err == nil || !strings.Contains(err.Error(), "unknown key") {
		t.Fatalf("expected unknown key error, got %v", err)
	}
}

func TestValidateRejectsBadAmounts(t *testing.T) {
	cases := map[string]string{
		"negative":    strings.Replace(saleDefinition, `MinContribution = "1000"`, `MinContribution = "-1"`, 1),
		"not decimal": strings.Replace(saleDefinition, `MinContribution = "1000"`, `MinContribution = "0x10"`, 1),
		"overflow":    strings.Replace(saleDefinition, `MinContribution = "1000"`, `MinContribution = "1`+strings.Repeat("0", 80)+`"`, 1),
		"bad role":    strings.Replace(saleDefinition, `ProjectWallet = "0x00000000000000000000000000000000000000f0"`, `ProjectWallet = "project"`, 1),
		"same roles":  strings.Replace(saleDefinition, `"0x00000000000000000000000000000000000000f0"`, `"0x00000000000000000000000000000000000000c0"`, 1),
		"zero price":  strings.Replace(saleDefinition, `AllocationPrice = "2_000_000_000_000_000"`, `AllocationPrice = "0"`, 1),
		"granularity": strings.Replace(saleDefinition, `Symbol = "TST"`, "Symbol = \"TST\"\nGranularity = \"1000\"", 1),
	}
	for name, contents := range cases {
		t.Run(name, func(t *testing.T) {
			cfg, err := Load(writeConfig(t, contents))
			if err != nil {
				t.Fatalf("load: %v", err)
			}
			if err := Validate(cfg); err == nil {
				t.Fatalf("expected validation failure")
			}
		})
	}
}
