package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"chevelle/internal/capacity"
	"chevelle/internal/logging"
	"chevelle/internal/media"
	"chevelle/internal/plan"
)

func newPlanCommand(ctx *commandContext) *cobra.Command {
	var showTracks bool

	cmd := &cobra.Command{
		Use:   "plan <file-or-dir> [file-or-dir...]",
		Short: "Show the disc layout without burning anything",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			capacityFrames, err := cfg.CapacityFrames()
			if err != nil {
				return err
			}

			loader := media.NewLoader(media.NewProber(cfg.FFprobeBinary()), logging.NewNop())
			tracks, err := loader.Load(cmd.Context(), args)
			if err != nil {
				return err
			}
			plans, err := plan.Build(tracks, capacityFrames, cfg.DiscMode())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(plans) == 0 {
				fmt.Fprintln(out, "No usable tracks found")
				return nil
			}

			rows := make([][]string, 0, len(plans))
			for _, discPlan := range plans {
				used := float64(discPlan.TotalFrames) / float64(capacityFrames) * 100
				rows = append(rows, []string{
					plan.DiscLabel(discPlan.Index, len(plans)),
					countCell(discPlan.TrackCount()),
					discPlan.Duration(),
					framesCell(discPlan.TotalFrames),
					percentCell(used, 1),
				})
			}
			fmt.Fprintln(out, renderTable(
				[]column{leftCol("Disc"), rightCol("Tracks"), rightCol("Length"), rightCol("Frames"), rightCol("Used")},
				rows,
			))
			fmt.Fprintf(out, "%d tracks across %d discs (%s mode, %s capacity)\n",
				len(tracks), len(plans), cfg.DiscMode(), capacity.MSF(capacityFrames))

			if !showTracks {
				return nil
			}
			for _, discPlan := range plans {
				fmt.Fprintf(out, "\n%s\n", plan.DiscLabel(discPlan.Index, len(plans)))
				trackRows := make([][]string, 0, len(discPlan.Tracks))
				for _, track := range discPlan.Tracks {
					trackRows = append(trackRows, []string{
						countCell(track.Index),
						track.Title,
						msfCell(track.Frames),
						track.SourcePath,
					})
				}
				fmt.Fprintln(out, renderTable(
					[]column{rightCol("#"), leftCol("Title"), rightCol("Length"), leftCol("Source")},
					trackRows,
				))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&showTracks, "tracks", false, "List the tracks assigned to each disc")
	return cmd
}
