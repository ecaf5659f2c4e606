package cmd

import (
	"context"
	stderrors "errors"
	"fmt"

	"github.com/mezonai/custody/asset"
	"github.com/mezonai/custody/config"
	"github.com/mezonai/custody/errors"
	"github.com/mezonai/custody/ledger"
	"github.com/mezonai/custody/logx"
	"github.com/mezonai/custody/types"
	"github.com/mezonai/custody/vault"
	"github.com/spf13/cobra"
)

var initGenesisPath string

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Apply genesis.yml to the configured store",
	Long: `Initialize the store from a genesis file by:
- Creating the custodied mint and funding the listed asset accounts
- Initializing the vault for that mint
- Initializing the ledger with owner, admin and supply

Steps already applied are skipped, so the command can be run again safely.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfiguration()
		if err != nil {
			return err
		}
		genesis, err := config.LoadGenesisConfig(initGenesisPath)
		if err != nil {
			return err
		}
		p, err := openPrograms(cfg, genesis.LedgerID(ledger.ProgramID))
		if err != nil {
			return err
		}
		defer p.Close()

		if err := applyGenesis(cmd.Context(), p, genesis); err != nil {
			return err
		}
		logx.Info("INIT", "Genesis applied from:", initGenesisPath)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
	initCmd.Flags().StringVar(&initGenesisPath, "genesis", config.DefaultGenesisFile, "Path to genesis configuration file")
}

// applyGenesis runs the genesis steps as the identities named in the file. The operator
// applying genesis stands in for their signatures.
func applyGenesis(ctx context.Context, p *programs, g *config.GenesisConfig) error {
	if ctx == nil {
		ctx = context.Background()
	}
	mint := types.MustParseIdentity(g.Mint.Address)
	authority := types.MustParseIdentity(g.Mint.Authority)

	err := p.assets.CreateMint(ctx, types.NewCall(authority), mint, authority)
	switch {
	case err == nil:
	case stderrors.Is(err, asset.ErrAccountExists):
		logx.Info("INIT", "Mint already exists, skipping creation:", mint.String())
	default:
		return fmt.Errorf("failed to create mint: %w", err)
	}

	for _, acc := range g.Accounts {
		owner := types.MustParseIdentity(acc.Owner)
		addr := asset.AssociatedAddress(mint, owner)
		err := p.assets.CreateAccount(ctx, types.NewCall(owner), addr, mint, owner)
		if stderrors.Is(err, asset.ErrAccountExists) {
			logx.Info("INIT", "Asset account already exists, skipping funding:", addr.String())
			continue
		}
		if err != nil {
			return fmt.Errorf("failed to create account for %s: %w", owner, err)
		}
		if acc.Amount > 0 {
			if err := p.assets.MintTo(ctx, types.NewCall(authority), mint, addr, acc.Amount); err != nil {
				return fmt.Errorf("failed to fund account for %s: %w", owner, err)
			}
		}
		logx.Info("INIT", fmt.Sprintf("Funded asset account | owner=%s | account=%s | amount=%d", owner, addr, acc.Amount))
	}

	if _, err := p.vault.State(ctx, mint); stderrors.Is(err, errors.ErrNotInitialized) {
		bump := g.Vault.Bump
		if bump == 0 {
			bump = config.DefaultVaultBump
		}
		admin := types.MustParseIdentity(g.Vault.Admin)
		if err := p.vault.Initialize(ctx, types.NewCall(admin), mint, bump); err != nil {
			return fmt.Errorf("failed to initialize vault: %w", err)
		}
		logx.Info("INIT", "Vault custody account:", vault.CustodyAddress(mint).String())
	} else if err != nil {
		return err
	} else {
		logx.Info("INIT", "Vault already initialized, skipping:", mint.String())
	}

	if _, err := p.ledger.Owner(ctx); stderrors.Is(err, errors.ErrNotInitialized) {
		owner := types.MustParseIdentity(g.Ledger.Owner)
		admin := types.MustParseIdentity(g.Ledger.Admin)
		if err := p.ledger.Init(ctx, types.NewCall(owner), owner, admin, g.Ledger.Supply); err != nil {
			return fmt.Errorf("failed to initialize ledger: %w", err)
		}
	} else if err != nil {
		return err
	} else {
		logx.Info("INIT", "Ledger already initialized, skipping:", p.ledger.ID().String())
	}
	return nil
}
