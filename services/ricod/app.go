package ricod

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"rico/config"
	"rico/core/events"
	salestate "rico/core/state"
	"rico/gateway/middleware"
	"rico/native/bank"
	nativecommon "rico/native/common"
	"rico/native/sale"
	"rico/native/token"
	"rico/observability"
	"rico/storage"
)

// Assemble wires state, token, vault and engine over db and returns the HTTP
// server. A persisted snapshot takes precedence over the sale definition's
// settings; a mismatch is logged, never silently merged.
func Assemble(cfg Config, saleCfg *config.SaleConfig, db storage.Database, ticks sale.TickSource, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := config.Validate(saleCfg); err != nil {
		return nil, fmt.Errorf("sale definition: %w", err)
	}
	settings, err := saleCfg.Settings()
	if err != nil {
		return nil, err
	}
	tokenCfg, err := saleCfg.TokenConfig()
	if err != nil {
		return nil, err
	}

	manager := salestate.NewManager(db)
	ledger, err := token.NewLedger(manager, tokenCfg)
	if err != nil {
		return nil, fmt.Errorf("token ledger: %w", err)
	}
	vault, err := bank.NewVault(manager, saleCfg.Vault.Asset, common.HexToAddress(strings.TrimSpace(cfg.Vault)), settings.ProjectWallet)
	if err != nil {
		return nil, fmt.Errorf("vault: %w", err)
	}

	engine, restored, err := loadEngine(manager, settings, logger)
	if err != nil {
		return nil, err
	}

	pauses := nativecommon.NewPauses()
	hub := NewEventHub()
	emitter := events.Fanout{hub, observability.Events()}

	engine.SetTickSource(ticks)
	engine.SetTokenLedger(ledger)
	engine.SetFundSender(vault)
	engine.SetPauses(pauses)
	engine.SetEmitter(emitter)
	engine.SetLogger(logger.With("component", "sale"))
	ledger.SetEmitter(emitter)
	ledger.SetTickSource(ticks)
	vault.SetPauses(pauses)
	vault.SetEmitter(emitter)
	vault.SetTickSource(ticks)

	server, err := NewServer(ServerOptions{
		Engine: engine,
		State:  manager,
		Vault:  vault,
		Token:  ledger,
		Pauses: pauses,
		Ticks:  ticks,
		Hub:    hub,
		Logger: logger,
		Auth: middleware.AuthConfig{
			Enabled:    !cfg.Auth.Disabled,
			HMACSecret: cfg.Auth.HMACSecret,
			Issuer:     cfg.Auth.Issuer,
			Audience:   cfg.Auth.Audience,
			ClockSkew:  cfg.Auth.ClockSkew.Duration,
		},
		RateLimit: middleware.RateLimit{
			RequestsPerMinute: cfg.RateLimit.RequestsPerMinute,
			Burst:             cfg.RateLimit.Burst,
		},
		CORSOrigins: cfg.CORSOrigins,
		LogRequests: true,
	})
	if err != nil {
		return nil, err
	}

	initial := map[string]bool{
		"sale":          saleCfg.Pauses.Sale,
		bank.ModuleName: saleCfg.Pauses.Bank,
		"token":         saleCfg.Pauses.Token,
	}
	for module, paused := range initial {
		if err := server.setPaused(module, paused); err != nil {
			return nil, err
		}
	}

	logger.Info("sale engine ready",
		"restored", restored,
		"stages", engine.Schedule().Len(),
		"start_tick", engine.Schedule().Start(),
		"end_tick", engine.Schedule().End(),
		"participants", len(engine.Participants()),
	)
	return server, nil
}

func loadEngine(manager *salestate.Manager, settings sale.Settings, logger *slog.Logger) (*sale.Engine, bool, error) {
	snap, ok, err := manager.SaleSnapshot()
	if err != nil {
		return nil, false, fmt.Errorf("load sale snapshot: %w", err)
	}
	if !ok {
		engine, err := sale.NewEngine(settings)
		if err != nil {
			return nil, false, err
		}
		return engine, false, nil
	}
	if snap.Settings != settings {
		logger.Warn("sale definition differs from persisted settings; using persisted settings")
	}
	engine, err := sale.Restore(snap)
	if err != nil {
		return nil, false, fmt.Errorf("restore sale: %w", err)
	}
	return engine, true, nil
}
