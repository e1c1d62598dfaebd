package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/me/ossim/pkg/model"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the live process table of a running simulation",
		Long:  "Queries a simulation started with --monitor for its latest snapshot.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var live struct {
				RunID     string          `json:"run_id"`
				Snapshot  *model.Snapshot `json:"snapshot"`
				LastEvent *model.Event    `json:"last_event"`
			}
			if _, err := client.GetInto(cmd.Context(), "/api/v1/live", nil, &live); err != nil {
				return fmt.Errorf("get live state: %w", err)
			}

			out := cmd.OutOrStdout()
			if live.RunID == "" {
				fmt.Fprintln(out, "No simulation has reported yet.")
				return nil
			}
			fmt.Fprintf(out, "Run: %s\n", live.RunID)
			if ev := live.LastEvent; ev != nil {
				fmt.Fprintf(out, "  Last event: #%d %s pid=%s at %s\n", ev.Seq, ev.Kind, formatPID(*ev), ev.Clock)
			}
			if live.Snapshot != nil {
				fmt.Fprintln(out)
				printSnapshot(out, live.Snapshot)
			}
			return nil
		},
	}
}
