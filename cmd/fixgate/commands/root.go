// Package commands implements the CLI commands for fixgate server
// management.
package commands

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	// Version information injected at build time.
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"

	// Global flags.
	cfgFile string
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "fixgate",
	Short: "FIXGate - FIX protocol server engine",
	Long: `FIXGate is a server-side engine for the FIX protocol (4.4 and 5.0).
It accepts long-lived counterparty sessions over TCP/TLS, validates and
sequences inbound messages, persists every message for replay and crash
recovery, and dispatches application payloads to registered handlers.

Use "fixgate [command] --help" for more information about a command.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command. Called once from main.
func Execute() error {
	err := rootCmd.Execute()
	if err != nil {
		rootCmd.PrintErrf("Error: %v\n", err)
	}
	return err
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $XDG_CONFIG_HOME/fixgate/config.yaml)")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(configCmd)

	rootCmd.CompletionOptions.DisableDefaultCmd = true
}

// Exit prints an error and exits with code 1.
func Exit(format string, args ...any) {
	rootCmd.PrintErrf(format+"\n", args...)
	os.Exit(1)
}
