package main

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"ehrchain/core/wallet"
)

var keygenCmd = &cobra.Command{
	Use:   "keygen [id]",
	Short: "Generate a signing wallet",
	Example: `  ehrchain keygen
  ehrchain keygen dr-house --algorithm secp256k1 --output json
  ehrchain keygen dek`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		alg, _ := cmd.Flags().GetString("algorithm")
		id := ""
		if len(args) == 1 {
			id = args[0]
		}
		w, err := wallet.Generate(id, alg)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if output, _ := cmd.Flags().GetString("output"); output == "json" {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(w)
		}
		fmt.Fprintf(out, "Algorithm: %s\n", w.Algorithm)
		fmt.Fprintf(out, "Public Key (base64): %s\n", base64.StdEncoding.EncodeToString(w.PublicKey))
		fmt.Fprintf(out, "Private Key (base64): %s\n", base64.StdEncoding.EncodeToString(w.PrivateKey))
		return nil
	},
}

var dekCmd = &cobra.Command{
	Use:   "dek",
	Short: "Print a new random data encryption key for EHR_DEK",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		key := make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), base64.StdEncoding.EncodeToString(key))
		return nil
	},
}

func init() {
	keygenCmd.AddCommand(dekCmd)
	keygenCmd.Flags().StringP("algorithm", "a", wallet.AlgEd25519, "Ed25519 or Secp256k1")
	keygenCmd.Flags().StringP("output", "o", "plain", "Output format: plain|json")
	rootCmd.AddCommand(keygenCmd)
}
