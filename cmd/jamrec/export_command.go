package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/alxayo/go-jamrec/internal/recorder"
)

func newExportCommand(ctx *commandContext) *cobra.Command {
	var frameSize int
	cmd := &cobra.Command{
		Use:   "export <session-dir>",
		Short: "Write the REAPER project of a finished session from its WAV files",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			size, err := resolveFrameSize(ctx, cmd, frameSize)
			if err != nil {
				return err
			}
			path, err := recorder.SessionDirToReaper(args[0], size)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), path)
			return nil
		},
	}
	cmd.Flags().IntVar(&frameSize, "frame-size", 0, "Samples per channel per frame used while recording")
	return cmd
}

// resolveFrameSize prefers an explicit flag over recording.frame_size_samples.
func resolveFrameSize(ctx *commandContext, cmd *cobra.Command, flagValue int) (int, error) {
	if cmd.Flags().Changed("frame-size") {
		if flagValue <= 0 {
			return 0, fmt.Errorf("--frame-size must be positive, got %d", flagValue)
		}
		return flagValue, nil
	}
	cfg, err := ctx.ensureConfig()
	if err != nil {
		return 0, err
	}
	return cfg.Recording.FrameSizeSamples, nil
}
