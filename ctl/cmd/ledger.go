package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var (
	rangeFrom  uint64
	rangeTo    uint64
	expectRoot string
)

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Ask the node to verify its chain",
	Example: `  ehrctl verify
  ehrctl verify --from 10 --to 20 -o json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		res, err := client().Verify(cmd.Context(), rangeFrom, rangeTo)
		if err != nil {
			return err
		}
		if done, err := printJSON(cmd, res); done || err != nil {
			if err == nil && !res.Valid {
				return fmt.Errorf("chain invalid: %s", res.Reason)
			}
			return err
		}
		out := cmd.OutOrStdout()
		if res.Valid {
			fmt.Fprintf(out, "Chain valid (%d blocks checked)\n", res.Checked)
			return nil
		}
		if res.FirstInvalidIndex != nil {
			fmt.Fprintf(out, "First invalid block: %d\n", *res.FirstInvalidIndex)
		}
		return fmt.Errorf("chain invalid: %s", res.Reason)
	},
}

var blocksCmd = &cobra.Command{
	Use:     "blocks",
	Short:   "List block headers (requires --token)",
	Example: `  ehrctl blocks --token $TOKEN --from 0 --to 10`,
	RunE: func(cmd *cobra.Command, args []string) error {
		headers, err := client().Blocks(cmd.Context(), rangeFrom, rangeTo)
		if err != nil {
			return err
		}
		if done, err := printJSON(cmd, headers); done || err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		for _, h := range headers {
			fmt.Fprintf(out, "%6d  %-8s %s  %s  %s\n", h.Index, h.Kind, h.Timestamp.Format("2006-01-02T15:04:05Z07:00"), h.BlockHash, h.Signer)
		}
		return nil
	},
}

var checkpointCmd = &cobra.Command{
	Use:   "checkpoint",
	Short: "Fetch a Merkle checkpoint, or check a published one with --expect (requires --token)",
	Example: `  ehrctl checkpoint --token $TOKEN
  ehrctl checkpoint --token $TOKEN --to 500 --expect 3f1c...`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cp, err := client().Checkpoint(cmd.Context(), rangeFrom, rangeTo)
		if err != nil {
			return err
		}
		done, err := printJSON(cmd, cp)
		if err != nil {
			return err
		}
		if !done {
			fmt.Fprintf(cmd.OutOrStdout(), "Blocks: [%d, %d)\nRoot: %s\nLast Hash: %s\n", cp.From, cp.To, cp.Root, cp.LastHash)
		}
		if expectRoot != "" && !strings.EqualFold(expectRoot, cp.Root) {
			return fmt.Errorf("checkpoint mismatch: expected %s", expectRoot)
		}
		return nil
	},
}

func init() {
	checkpointCmd.Flags().StringVar(&expectRoot, "expect", "", "previously published root to compare against")
	for _, c := range []*cobra.Command{verifyCmd, blocksCmd, checkpointCmd} {
		c.Flags().Uint64Var(&rangeFrom, "from", 0, "first block")
		c.Flags().Uint64Var(&rangeTo, "to", 0, "end of the range, exclusive; 0 means the tip")
		rootCmd.AddCommand(c)
	}
}
