package main

import (
	"fmt"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"chevelle/internal/deps"
	"chevelle/internal/logging"
	"chevelle/internal/queue"
	"chevelle/internal/workflow"
)

func newBurnCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "burn <file-or-dir> [file-or-dir...]",
		Short: "Master the given tracks and burn them to disc",
		Long: "Probes the given audio files, splits them across as few discs as " +
			"possible without reordering, stages each disc, and burns them one " +
			"at a time in disc order.",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			signalCtx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if err := deps.MissingRequired(deps.CheckBinaries(deps.Requirements(cfg))); err != nil {
				return err
			}

			runID := time.Now().UTC().Format("20060102T150405Z")
			logPath := filepath.Join(cfg.Paths.LogDir, fmt.Sprintf("chevelle-%s.log", runID))
			logger, err := logging.New(logging.Options{
				Level:            cfg.Logging.Level,
				Format:           cfg.Logging.Format,
				OutputPaths:      []string{logPath},
				ErrorOutputPaths: []string{logPath},
			})
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			logging.CleanupOldLogs(logger, cfg.Logging.RetentionDays, cfg.Paths.LogDir, "chevelle-*.log", logPath)

			store, err := queue.Open(cfg)
			if err != nil {
				return fmt.Errorf("open queue store: %w", err)
			}
			defer store.Close()

			out := cmd.OutOrStdout()
			printer := newProgressPrinter(out, shouldColorize(out))
			manager := workflow.NewManager(cfg, store, logger,
				workflow.WithEventSink(printer.handle))

			summary, err := manager.Run(signalCtx, args)
			if summary != nil {
				printer.summary(summary)
			}
			if err != nil {
				return err
			}
			if summary != nil && summary.Failed > 0 {
				return fmt.Errorf("%d of %d discs failed; see %s", summary.Failed, summary.DiscCount, logPath)
			}
			return nil
		},
	}
	return cmd
}
