package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

var loginCmd = &cobra.Command{
	Use:   "login <actor-id>",
	Short: "Log in and print a session token",
	Long: `Log in and print a session token for use with --token or EHR_TOKEN.
The password is read from EHR_PASSWORD or, failing that, the first line of stdin.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		pw := os.Getenv("EHR_PASSWORD")
		if pw == "" {
			fmt.Fprint(cmd.ErrOrStderr(), "Password: ")
			line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
			pw = strings.TrimRight(line, "\r\n")
			if pw == "" {
				if err != nil {
					return fmt.Errorf("read password: %w", err)
				}
				return errors.New("empty password")
			}
		}
		sess, err := client().Login(cmd.Context(), args[0], pw)
		if err != nil {
			return err
		}
		if done, err := printJSON(cmd, sess); done || err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), sess.Token)
		return nil
	},
}

var lineageCmd = &cobra.Command{
	Use:   "lineage <record-id>",
	Short: "Show a record's amendment chain (requires --token)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		chain, err := client().Lineage(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if done, err := printJSON(cmd, chain); done || err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintln(out, "Revision Lineage:")
		for i, r := range chain {
			fmt.Fprintf(out, "  %d. %v  %v by %v", i+1, r["id"], r["createdAt"], r["authorId"])
			if reason, ok := r["amendReason"]; ok {
				fmt.Fprintf(out, "  (%v)", reason)
			}
			fmt.Fprintln(out)
		}
		return nil
	},
}

var verifyHashCmd = &cobra.Command{
	Use:   "verify-hash <record-id> <fingerprint>",
	Short: "Check a record against a fingerprint you were given (requires --token)",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ok, err := client().VerifyHash(cmd.Context(), args[0], args[1])
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("record %s does not match the fingerprint", args[0])
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Record %s matches\n", args[0])
		return nil
	},
}

func init() {
	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(lineageCmd)
	rootCmd.AddCommand(verifyHashCmd)
}
