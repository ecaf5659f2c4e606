package cmd

import (
	"fmt"

	"github.com/mezonai/custody/jsonx"
	"github.com/mezonai/custody/types"
	"github.com/spf13/cobra"
)

var ledgerCmd = &cobra.Command{
	Use:   "ledger",
	Short: "Read ledger records from the local store",
}

var ledgerBalanceCmd = &cobra.Command{
	Use:   "balance <identity>",
	Short: "Print the balance of an identity",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		who, err := types.ParseIdentity(args[0])
		if err != nil {
			return err
		}
		p, err := setup()
		if err != nil {
			return err
		}
		defer p.Close()

		bal, err := p.ledger.BalanceOf(cmd.Context(), who)
		if err != nil {
			return err
		}
		return printJSON(cmd, map[string]interface{}{"who": who, "balance": bal})
	},
}

var ledgerAllowanceCmd = &cobra.Command{
	Use:   "allowance <owner> <spender>",
	Short: "Print how much spender may move out of owner's balance",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		owner, err := types.ParseIdentity(args[0])
		if err != nil {
			return err
		}
		spender, err := types.ParseIdentity(args[1])
		if err != nil {
			return err
		}
		p, err := setup()
		if err != nil {
			return err
		}
		defer p.Close()

		allowance, err := p.ledger.Allowance(cmd.Context(), owner, spender)
		if err != nil {
			return err
		}
		nonce, err := p.ledger.Nonce(cmd.Context(), owner)
		if err != nil {
			return err
		}
		return printJSON(cmd, map[string]interface{}{
			"owner":     owner,
			"spender":   spender,
			"allowance": allowance,
			"nonce":     nonce,
		})
	},
}

var ledgerAuditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Compare the sum of all balances with the total supply",
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := setup()
		if err != nil {
			return err
		}
		defer p.Close()

		report, err := p.ledger.Audit(cmd.Context())
		if err != nil {
			return err
		}
		return printJSON(cmd, report)
	},
}

var vaultCmd = &cobra.Command{
	Use:   "vault",
	Short: "Read vault records from the local store",
}

var vaultStateCmd = &cobra.Command{
	Use:   "state <mint>",
	Short: "Print the vault state and its reconciliation with the custody account",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		mint, err := types.ParseIdentity(args[0])
		if err != nil {
			return err
		}
		p, err := setup()
		if err != nil {
			return err
		}
		defer p.Close()

		st, err := p.vault.State(cmd.Context(), mint)
		if err != nil {
			return err
		}
		rec, err := p.vault.Reconcile(cmd.Context(), mint)
		if err != nil {
			return err
		}
		return printJSON(cmd, map[string]interface{}{"state": st, "reconciliation": rec})
	},
}

func init() {
	ledgerCmd.AddCommand(ledgerBalanceCmd, ledgerAllowanceCmd, ledgerAuditCmd)
	vaultCmd.AddCommand(vaultStateCmd)
	rootCmd.AddCommand(ledgerCmd, vaultCmd)
}

func printJSON(cmd *cobra.Command, v interface{}) error {
	out, err := jsonx.MarshalIndent(v)
	if err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(out))
	return nil
}
