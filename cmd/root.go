package cmd

import (
	"os"

	"github.com/mezonai/custody/config"
	"github.com/mezonai/custody/logx"
	"github.com/spf13/cobra"
)

var (
	configPath      string
	profileOverride string
	ledgerIDFlag    string
)

var rootCmd = &cobra.Command{
	Use:   "custody",
	Short: "Custodial vault and fungible ledger programs",
	Long: `Command line interface for the custodial vault and the fungible ledger programs.

The program profile (as-built or hardened) comes from config.ini and can be
overridden with --profile. File backed stores are locked by the process that
opened them, so read commands must not run next to serve on the same directory.`,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config.ini (defaults when empty)")
	rootCmd.PersistentFlags().StringVar(&profileOverride, "profile", "", "Override the program profile: as-built or hardened")
	rootCmd.PersistentFlags().StringVar(&ledgerIDFlag, "ledger", "", "Ledger instance identity (base58, built-in ledger when empty)")
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		logx.Error("CMD", "Command execution failed:", err)
		os.Exit(1)
	}
}

// loadConfiguration reads config.ini when given and applies the flag overrides
func loadConfiguration() (*config.Config, error) {
	cfg := config.DefaultConfig()
	if configPath != "" {
		loaded, err := config.LoadConfig(configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	if profileOverride != "" {
		p, err := config.ParseProfile(profileOverride)
		if err != nil {
			return nil, err
		}
		cfg.Custody.Profile = p.String()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.LogToFile {
		logx.InitFileLogger(cfg.Log)
	}
	return cfg, nil
}
