// Package commands implements the fixgatectl CLI.
package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/marmos91/fixgate/pkg/apiclient"
)

var (
	serverURL    string
	token        string
	outputFormat string
)

var rootCmd = &cobra.Command{
	Use:   "fixgatectl",
	Short: "Administer a running FIXGate server",
	Long: `fixgatectl talks to the FIXGate admin API: inspect sessions,
disconnect counterparties, query the audit trail and replay stored
messages.

Authenticate once with "fixgatectl login" and pass the returned token
via --token or the FIXGATE_TOKEN environment variable.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() error {
	err := rootCmd.Execute()
	if err != nil {
		rootCmd.PrintErrf("Error: %v\n", err)
	}
	return err
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:9879", "Admin API base URL")
	rootCmd.PersistentFlags().StringVar(&token, "token", "", "Bearer token (default: $FIXGATE_TOKEN)")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", "table", "Output format: table or json")

	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(sessionsCmd)
	rootCmd.AddCommand(disconnectCmd)
	rootCmd.AddCommand(replayCmd)
	rootCmd.AddCommand(auditCmd)
	rootCmd.AddCommand(hashPasswordCmd)

	rootCmd.CompletionOptions.DisableDefaultCmd = true
}

// client builds an authenticated API client from the global flags.
func client() *apiclient.Client {
	c := apiclient.New(serverURL)
	t := token
	if t == "" {
		t = os.Getenv("FIXGATE_TOKEN")
	}
	if t != "" {
		c.SetToken(t)
	}
	return c
}

// jsonOutput reports whether -o json was requested. Anything other
// than table or json is rejected up front.
func jsonOutput() (bool, error) {
	switch outputFormat {
	case "", "table":
		return false, nil
	case "json":
		return true, nil
	default:
		return false, fmt.Errorf("invalid output format %q (valid: table, json)", outputFormat)
	}
}
