package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"chevelle/internal/capacity"
	"chevelle/internal/plan"
	"chevelle/internal/queue"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the most recent burn session",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			store, err := queue.Open(cfg)
			if err != nil {
				return fmt.Errorf("open queue store: %w", err)
			}
			defer store.Close()

			session, err := store.LatestSession(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if session == nil {
				fmt.Fprintln(out, "No sessions recorded yet")
				return nil
			}

			jobs, err := store.JobsBySession(cmd.Context(), session.ID)
			if err != nil {
				return err
			}

			colorize := shouldColorize(out)
			fmt.Fprintf(out, "Session %s  %s\n", session.ID, colorStatus(session.Status, colorize))
			fmt.Fprintf(out, "  device %s, %s mode, %s capacity, %d tracks on %d discs\n",
				session.Device, session.Mode, capacity.MSF(session.CapacityFrames),
				session.TrackCount, session.DiscCount)
			fmt.Fprintf(out, "  started %s", session.StartedAt.Local().Format(time.DateTime))
			if session.FinishedAt != nil {
				fmt.Fprintf(out, ", finished %s", session.FinishedAt.Local().Format(time.DateTime))
			}
			fmt.Fprintln(out)

			rows := make([][]string, 0, len(jobs))
			for _, job := range jobs {
				detail := job.ProgressMessage
				if job.Status == queue.StatusFailed && job.ErrorMessage != "" {
					detail = job.ErrorMessage
				}
				rows = append(rows, []string{
					plan.DiscLabel(job.DiscIndex, session.DiscCount),
					colorStatus(string(job.Status), colorize),
					countCell(job.TrackCount),
					msfCell(job.TotalFrames),
					countCell(job.Attempt + 1),
					percentCell(job.ProgressPercent, 0),
					detail,
				})
			}
			fmt.Fprintln(out, renderTable(
				[]column{leftCol("Disc"), leftCol("Status"), rightCol("Tracks"), rightCol("Length"),
					rightCol("Attempt"), rightCol("Progress"), leftCol("Detail")},
				rows,
			))
			return nil
		},
	}
}

func colorStatus(status string, colorize bool) string {
	if !colorize {
		return status
	}
	var color string
	switch strings.ToLower(status) {
	case "completed":
		color = ansiGreen
	case "failed":
		color = ansiRed
	case "cancelled":
		color = ansiYellow
	case "burning", "verifying":
		color = ansiBlue
	}
	if color == "" {
		return status
	}
	return color + status + ansiReset
}
