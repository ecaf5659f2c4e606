package cmd

import (
	"crypto/ed25519"
	"crypto/rand"
	"fmt"
	"os"

	"github.com/mezonai/custody/config"
	"github.com/mezonai/custody/logx"
	"github.com/mezonai/custody/types"
	"github.com/spf13/cobra"
)

var (
	keygenOut   string
	keygenForce bool
)

var keygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Generate an Ed25519 key and print its identity",
	RunE: func(cmd *cobra.Command, args []string) error {
		if !keygenForce {
			if _, err := os.Stat(keygenOut); err == nil {
				return fmt.Errorf("%s already exists, use --force to overwrite", keygenOut)
			}
		}
		pub, priv, err := ed25519.GenerateKey(rand.Reader)
		if err != nil {
			return fmt.Errorf("failed to generate key: %w", err)
		}
		if err := config.SaveEd25519PrivKey(keygenOut, priv); err != nil {
			return fmt.Errorf("failed to write key: %w", err)
		}
		id, err := types.IdentityFromPublicKey(pub)
		if err != nil {
			return err
		}
		logx.Info("KEYGEN", "Private key saved to:", keygenOut)
		fmt.Fprintln(cmd.OutOrStdout(), id.String())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(keygenCmd)
	keygenCmd.Flags().StringVar(&keygenOut, "out", "privkey.txt", "File to write the hex encoded seed to")
	keygenCmd.Flags().BoolVar(&keygenForce, "force", false, "Overwrite an existing key file")
}
