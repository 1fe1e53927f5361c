package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Query node status",
	Example: `  ehrctl status
  ehrctl status --output json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		status, err := client().GetStatus(cmd.Context())
		if err != nil {
			return err
		}
		if done, err := printJSON(cmd, status); done || err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Status: %s\nHeight: %d\nVersion: %s (api %s)\nUptime: %ds\nLast Block Time: %s\n",
			status.Status, status.BlockHeight, status.Version, status.APIVersion, status.Uptime, status.LastBlock)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
