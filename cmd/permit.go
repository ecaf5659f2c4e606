package cmd

import (
	"crypto/ed25519"
	"fmt"

	"github.com/mezonai/custody/common"
	"github.com/mezonai/custody/config"
	"github.com/mezonai/custody/host"
	"github.com/mezonai/custody/permit"
	"github.com/mezonai/custody/types"
	"github.com/spf13/cobra"
)

var (
	permitKeyPath string
	permitSpender string
	permitAmount  uint64
	permitNonce   uint64
	permitScoped  bool
)

var permitCmd = &cobra.Command{
	Use:   "permit",
	Short: "Work with off-call allowance permits",
}

var permitSignCmd = &cobra.Command{
	Use:   "sign",
	Short: "Sign a permit as the owner key and print the base58 signature",
	Long: `Sign a permit offline. The owner is the identity of --key.

Hardened ledgers bind permits to their instance: pass --scoped (with --ledger
when not the built-in ledger) and the owner's current nonce.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		priv, err := config.LoadEd25519PrivKey(permitKeyPath)
		if err != nil {
			return err
		}
		owner, err := types.IdentityFromPublicKey(priv.Public().(ed25519.PublicKey))
		if err != nil {
			return err
		}
		spender, err := types.ParseIdentity(permitSpender)
		if err != nil {
			return fmt.Errorf("invalid spender: %w", err)
		}

		m := permit.Message{Owner: owner, Spender: spender, Amount: permitAmount, Nonce: permitNonce}
		if permitScoped {
			id, err := resolveLedgerID()
			if err != nil {
				return err
			}
			m.Ledger = &id
		}
		sig := permit.Sign(priv, host.SHA256Hasher{}, m)
		return printJSON(cmd, map[string]interface{}{
			"owner":     owner,
			"spender":   spender,
			"amount":    permitAmount,
			"nonce":     permitNonce,
			"signature": common.EncodeBytesToBase58(sig),
		})
	},
}

func init() {
	permitSignCmd.Flags().StringVar(&permitKeyPath, "key", "privkey.txt", "Owner private key file")
	permitSignCmd.Flags().StringVar(&permitSpender, "spender", "", "Spender identity (base58)")
	permitSignCmd.Flags().Uint64Var(&permitAmount, "amount", 0, "Allowance to grant")
	permitSignCmd.Flags().Uint64Var(&permitNonce, "nonce", 0, "Owner's current permit nonce")
	permitSignCmd.Flags().BoolVar(&permitScoped, "scoped", false, "Bind the permit to the ledger instance")
	_ = permitSignCmd.MarkFlagRequired("spender")

	permitCmd.AddCommand(permitSignCmd)
	rootCmd.AddCommand(permitCmd)
}
