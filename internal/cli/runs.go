package cli

import (
	"errors"
	"fmt"
	"io"
	"net/url"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/me/ossim/pkg/model"
)

func newRunsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Inspect runs recorded by a monitor server",
	}
	cmd.AddCommand(newRunsListCmd(), newRunsShowCmd(), newRunsEventsCmd())
	return cmd
}

func newRunsListCmd() *cobra.Command {
	var state string
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recorded runs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			q := url.Values{}
			if state != "" {
				q.Set("state", strings.ToUpper(state))
			}
			if limit > 0 {
				q.Set("limit", strconv.Itoa(limit))
			}

			var runs []model.Run
			resp, err := client.GetInto(cmd.Context(), "/api/v1/runs", q, &runs)
			if err != nil {
				return fmt.Errorf("list runs: %w", err)
			}

			out := cmd.OutOrStdout()
			if len(runs) == 0 {
				fmt.Fprintln(out, "No runs found.")
				return nil
			}

			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tSTATE\tJOBS\tDISPATCHES\tCLOCK\tSTARTED")
			for _, run := range runs {
				fmt.Fprintf(tw, "%s\t%s\t%d/%d\t%s\t%s\t%s\n",
					run.ID, run.State, run.Terminated, run.Admitted,
					humanize.Comma(int64(run.Dispatches)), run.FinalClock, humanize.Time(run.StartedAt))
			}
			tw.Flush()

			if resp.Pagination != nil && resp.Pagination.HasMore {
				fmt.Fprintf(out, "\n(%d of %d shown)\n", len(runs), resp.Pagination.Total)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&state, "state", "", "Only runs in this state (completed, timed_out, failed, running)")
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum runs to show")
	return cmd
}

func newRunsShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <run_id>",
		Short: "Show a run and its last process table",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]

			var run model.Run
			if _, err := client.GetInto(cmd.Context(), "/api/v1/runs/"+url.PathEscape(id), nil, &run); err != nil {
				return fmt.Errorf("get run: %w", err)
			}
			out := cmd.OutOrStdout()
			printRunSummary(out, &run)

			var snap model.Snapshot
			if _, err := client.GetInto(cmd.Context(), "/api/v1/runs/"+url.PathEscape(id)+"/snapshot", nil, &snap); err != nil {
				var apiErr *model.APIError
				if errors.As(err, &apiErr) && apiErr.Code == model.ErrNotFound {
					fmt.Fprintln(out, "\nNo snapshot recorded.")
					return nil
				}
				return fmt.Errorf("get snapshot: %w", err)
			}
			fmt.Fprintln(out)
			printSnapshot(out, &snap)
			return nil
		},
	}
}

func newRunsEventsCmd() *cobra.Command {
	var kind string
	var limit, offset int

	cmd := &cobra.Command{
		Use:   "events <run_id>",
		Short: "List the scheduler events of a run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			q := url.Values{}
			if kind != "" {
				q.Set("kind", strings.ToUpper(kind))
			}
			q.Set("limit", strconv.Itoa(limit))
			q.Set("offset", strconv.Itoa(offset))

			var events []model.Event
			resp, err := client.GetInto(cmd.Context(), "/api/v1/runs/"+url.PathEscape(args[0])+"/events", q, &events)
			if err != nil {
				return fmt.Errorf("list events: %w", err)
			}

			out := cmd.OutOrStdout()
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "SEQ\tCLOCK\tKIND\tPID\tLEVEL\tDETAIL")
			for _, ev := range events {
				detail := ev.Detail
				if ev.Outcome != "" {
					detail = strings.TrimSpace(string(ev.Outcome) + " " + detail)
				}
				fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%d\t%s\n", ev.Seq, ev.Clock, ev.Kind, formatPID(ev), ev.Level, detail)
			}
			tw.Flush()

			if resp.Pagination != nil && resp.Pagination.HasMore {
				fmt.Fprintf(out, "\n(%d-%d of %d shown)\n", offset+1, offset+len(events), resp.Pagination.Total)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&kind, "kind", "", "Only events of this kind (admitted, dispatched, blocked, ...)")
	cmd.Flags().IntVar(&limit, "limit", 100, "Maximum events to show")
	cmd.Flags().IntVar(&offset, "offset", 0, "Skip this many events")
	return cmd
}

func formatPID(ev model.Event) string {
	if ev.PID == 0 {
		return "-"
	}
	return ev.PID.String()
}

// printSnapshot renders the occupied process table slots followed by the
// queue contents.
func printSnapshot(w io.Writer, snap *model.Snapshot) {
	fmt.Fprintf(w, "Process table at %s\n", snap.Clock)

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SLOT\tPID\tSTATE\tLEVEL\tSTART\tSERVICE\tWAKE")
	for slot, pcb := range snap.Table {
		if !pcb.Occupied {
			continue
		}
		wake := "-"
		if pcb.Blocked {
			wake = pcb.Wake.String()
		}
		fmt.Fprintf(tw, "%d\t%d\t%s\t%d\t%s\t%s\t%s\n", slot, pcb.ID, pcb.State, pcb.Level, pcb.Start, pcb.Service, wake)
	}
	tw.Flush()

	for level, ids := range snap.Queues {
		fmt.Fprintf(w, "Ready[%d]: %s\n", level, joinIDs(ids))
	}
	fmt.Fprintf(w, "Blocked:  %s\n", joinIDs(snap.Blocked))
}

func joinIDs(ids []model.ProcessID) string {
	if len(ids) == 0 {
		return "-"
	}
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = id.String()
	}
	return strings.Join(parts, " ")
}
