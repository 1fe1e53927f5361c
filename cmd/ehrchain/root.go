package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"ehrchain/config"
	"ehrchain/core/logging"
)

var envFile string

var rootCmd = &cobra.Command{
	Use:   "ehrchain",
	Short: "Tamper-evident EHR ledger node",
	Long: `ehrchain stores electronic health records in an append-only, hash-linked ledger.
Every write is signed by its author, and reads are gated by role and patient grants.

Settings come from a .env file, an optional YAML file named by EHR_CONFIG and EHR_*
environment variables, in increasing order of precedence.`,
	SilenceUsage: true,
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file to load before reading EHR_* variables")
}

// loadConfig reads the configuration and builds the logger it describes.
func loadConfig() (config.Config, zerolog.Logger, error) {
	cfg, err := config.Load(envFile)
	if err != nil {
		return config.Config{}, zerolog.Nop(), err
	}
	return cfg, logging.New(cfg.LogLevel, cfg.LogFormat, os.Stderr), nil
}
