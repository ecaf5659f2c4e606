package cmd

import (
	"fmt"

	"github.com/mezonai/custody/asset"
	"github.com/mezonai/custody/auth"
	"github.com/mezonai/custody/config"
	"github.com/mezonai/custody/db"
	"github.com/mezonai/custody/events"
	"github.com/mezonai/custody/host"
	"github.com/mezonai/custody/ledger"
	"github.com/mezonai/custody/logx"
	"github.com/mezonai/custody/store"
	"github.com/mezonai/custody/types"
	"github.com/mezonai/custody/vault"
)

// programs is everything a command needs, wired over one store
type programs struct {
	cfg      *config.Config
	provider db.IterableProvider
	bus      *events.EventBus
	engine   *host.Engine
	guard    *auth.Guard
	assets   *asset.Program
	vault    *vault.Vault
	ledger   *ledger.Ledger
}

func openPrograms(cfg *config.Config, ledgerID types.Identity) (*programs, error) {
	provider, err := store.CreateProvider(&cfg.Store)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s store: %w", cfg.Store.Type, err)
	}

	bus := events.NewEventBus()
	engine := host.NewEngine(provider,
		host.WithPublisher(bus),
		host.WithMaxDepth(cfg.Custody.MaxCallDepth),
	)
	guard := auth.NewGuard(cfg.Profile())
	assets := asset.NewProgram(engine)

	logx.Info("CMD", fmt.Sprintf("Programs ready | profile=%s | store=%s | ledger=%s", cfg.Profile(), cfg.Store.Type, ledgerID))
	return &programs{
		cfg:      cfg,
		provider: provider,
		bus:      bus,
		engine:   engine,
		guard:    guard,
		assets:   assets,
		vault:    vault.New(engine, assets, guard, vault.WithExecAllowList(cfg.ExecSelectors())),
		ledger:   ledger.New(engine, guard, ledgerID),
	}, nil
}

func (p *programs) Close() {
	if err := p.provider.Close(); err != nil {
		logx.Error("CMD", "Failed to close store:", err)
	}
}

// resolveLedgerID parses --ledger, falling back to the built-in ledger identity
func resolveLedgerID() (types.Identity, error) {
	if ledgerIDFlag == "" {
		return ledger.ProgramID, nil
	}
	return types.ParseIdentity(ledgerIDFlag)
}

// setup loads configuration and opens the programs for the read and serve commands
func setup() (*programs, error) {
	cfg, err := loadConfiguration()
	if err != nil {
		return nil, err
	}
	id, err := resolveLedgerID()
	if err != nil {
		return nil, err
	}
	return openPrograms(cfg, id)
}
