package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/codegate-ai/codegate/internal/config"
	"github.com/codegate-ai/codegate/internal/storage"
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions [session-id]",
	Short: "List persisted sessions, or one session's turn history",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store := storage.New(config.GetPaths().State)
		out := cmd.OutOrStdout()

		if len(args) == 0 {
			ids, err := store.Sessions(cmd.Context())
			if err != nil {
				return err
			}
			for _, id := range ids {
				fmt.Fprintln(out, id)
			}
			return nil
		}

		turns, err := store.Turns(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		for _, turn := range turns {
			fmt.Fprintf(out, "%s  %s\n", turn.TurnID, turn.Time.Format("2006-01-02 15:04:05"))
			for _, call := range turn.Calls {
				line := fmt.Sprintf("  %-24s %s", call.ToolName, call.Outcome)
				if call.Message != "" {
					line += ": " + call.Message
				}
				fmt.Fprintln(out, line)
			}
			if turn.Continued {
				fmt.Fprintf(out, "  continued: %s\n", turn.Instruction)
			}
		}
		return nil
	},
}
