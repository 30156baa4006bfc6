package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Inspect sessions",
}

var sessionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all sessions",
	RunE: func(cmd *cobra.Command, args []string) error {
		asJSON, err := jsonOutput()
		if err != nil {
			return err
		}

		sessions, err := client().ListSessions()
		if err != nil {
			return err
		}

		if asJSON {
			return renderJSON(os.Stdout, sessions)
		}
		renderSessions(os.Stdout, sessions)
		return nil
	},
}

var sessionsGetCmd = &cobra.Command{
	Use:   "get <session-id>",
	Short: "Show one session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		asJSON, err := jsonOutput()
		if err != nil {
			return err
		}

		info, err := client().GetSession(args[0])
		if err != nil {
			return err
		}

		if asJSON {
			return renderJSON(os.Stdout, info)
		}
		renderSessionDetail(os.Stdout, info)
		return nil
	},
}

var disconnectReason string

var disconnectCmd = &cobra.Command{
	Use:   "disconnect <session-id>",
	Short: "Log a session out gracefully",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := client().DisconnectSession(args[0], disconnectReason); err != nil {
			return err
		}
		fmt.Printf("Session %s disconnected\n", args[0])
		return nil
	},
}

func init() {
	sessionsCmd.AddCommand(sessionsListCmd)
	sessionsCmd.AddCommand(sessionsGetCmd)
	disconnectCmd.Flags().StringVar(&disconnectReason, "reason", "administrative disconnect", "Logout Text sent to the counterparty")
}
