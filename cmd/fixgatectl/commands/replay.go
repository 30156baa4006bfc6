package commands

import (
	"os"
	"time"

	"github.com/spf13/cobra"
)

var (
	replayFrom uint32
	replayTo   uint32
)

var replayCmd = &cobra.Command{
	Use:   "replay <session-id>",
	Short: "Show stored outbound messages in a sequence range",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		asJSON, err := jsonOutput()
		if err != nil {
			return err
		}

		msgs, err := client().Replay(args[0], replayFrom, replayTo)
		if err != nil {
			return err
		}

		if asJSON {
			return renderJSON(os.Stdout, msgs)
		}
		renderReplay(os.Stdout, msgs)
		return nil
	},
}

var auditSince time.Duration

var auditCmd = &cobra.Command{
	Use:   "audit <session-id>",
	Short: "Show a session's audit trail",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		asJSON, err := jsonOutput()
		if err != nil {
			return err
		}

		var from time.Time
		if auditSince > 0 {
			from = time.Now().Add(-auditSince)
		}

		recs, err := client().Audit(args[0], from, time.Time{})
		if err != nil {
			return err
		}

		if asJSON {
			return renderJSON(os.Stdout, recs)
		}
		renderAudit(os.Stdout, recs)
		return nil
	},
}

func init() {
	replayCmd.Flags().Uint32Var(&replayFrom, "from", 1, "First sequence number")
	replayCmd.Flags().Uint32Var(&replayTo, "to", 0, "Last sequence number (0 = latest)")
	auditCmd.Flags().DurationVar(&auditSince, "since", 0, "Only records newer than this (e.g. 1h)")
}
