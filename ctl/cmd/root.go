// Package cmd holds the ehrctl commands.
package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"ehrchain/ctl/api"
)

var (
	serverURL string
	token     string
	insecure  bool
	output    string
)

var rootCmd = &cobra.Command{
	Use:          "ehrctl",
	Short:        "ehrchain node CLI",
	Long:         "A command-line tool for querying and checking ehrchain ledger nodes.",
	SilenceUsage: true,
}

// Execute runs ehrctl.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", envOr("EHR_SERVER", "http://localhost:8080"), "node base URL")
	rootCmd.PersistentFlags().StringVar(&token, "token", os.Getenv("EHR_TOKEN"), "bearer token for authenticated endpoints")
	rootCmd.PersistentFlags().BoolVar(&insecure, "insecure", false, "skip TLS certificate verification (for local/dev)")
	rootCmd.PersistentFlags().StringVarP(&output, "output", "o", "plain", "Output format: plain|json")
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func client() *api.Client {
	return api.NewClient(serverURL, token, insecure)
}

// printJSON writes v as indented JSON when --output json was given and reports whether it did.
func printJSON(cmd *cobra.Command, v interface{}) (bool, error) {
	if output != "json" {
		return false, nil
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return true, enc.Encode(v)
}
