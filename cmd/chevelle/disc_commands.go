package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"chevelle/internal/disc"
)

func newDrivesCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "drives",
		Short: "List optical drives and their media",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			scanner := disc.NewScanner(cfg.WodimBinary())
			devices := scanner.Discover(cmd.Context())

			rows := make([][]string, 0, len(devices))
			for _, device := range devices {
				state := "unknown"
				if status, err := disc.CheckDriveStatus(device); err == nil {
					state = status.String()
				}

				mediaType, blank := "-", "-"
				if media, err := scanner.CheckMedia(cmd.Context(), device); err == nil && media.Present {
					mediaType = media.Type
					blank = yesNo(media.Blank)
				}

				configured := ""
				if device == cfg.Disc.Device {
					configured = "*"
				}
				rows = append(rows, []string{device, configured, state, mediaType, blank})
			}

			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]column{leftCol("Device"), leftCol("Configured"), leftCol("Drive"), leftCol("Media"), leftCol("Blank")},
				rows,
			))
			return nil
		},
	}
}

func newEjectCommand(ctx *commandContext) *cobra.Command {
	var device string

	cmd := &cobra.Command{
		Use:   "eject",
		Short: "Eject the burner tray",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			target := strings.TrimSpace(device)
			if target == "" {
				target = cfg.Disc.Device
			}
			if err := disc.NewEjector().Eject(cmd.Context(), target); err != nil {
				return fmt.Errorf("eject %s: %w", target, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Ejected %s\n", target)
			return nil
		},
	}

	cmd.Flags().StringVarP(&device, "device", "d", "", "Device to eject (defaults to the configured burner)")
	return cmd
}
