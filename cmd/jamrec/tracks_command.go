package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/alxayo/go-jamrec/internal/export"
	"github.com/alxayo/go-jamrec/internal/recording"
)

func newTracksCommand(ctx *commandContext) *cobra.Command {
	var frameSize int
	cmd := &cobra.Command{
		Use:   "tracks <session-dir>",
		Short: "List the tracks and segments found in a session directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			size, err := resolveFrameSize(ctx, cmd, frameSize)
			if err != nil {
				return err
			}
			tracks, err := recording.TracksFromSessionDir(args[0], size)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if tracks.Len() == 0 {
				fmt.Fprintln(out, "No recordings found.")
				return nil
			}
			fmt.Fprintln(out, renderTracks(tracks, size))
			return nil
		},
	}
	cmd.Flags().IntVar(&frameSize, "frame-size", 0, "Samples per channel per frame used while recording")
	return cmd
}

func renderTracks(tracks recording.Tracks, frameSize int) string {
	headers := []string{"Track", "File", "Ch", "Offset", "Length", "Frames", "Size"}
	aligns := []columnAlignment{alignLeft, alignLeft, alignRight, alignRight, alignRight, alignRight, alignRight}

	var rows [][]string
	for _, name := range tracks.Names() {
		for _, item := range tracks[name] {
			size := "-"
			if info, err := os.Stat(item.Path); err == nil {
				size = humanize.IBytes(uint64(info.Size()))
			}
			rows = append(rows, []string{
				name,
				filepath.Base(item.Path),
				strconv.Itoa(item.Channels),
				formatSeconds(export.SecondsAt48K(item.StartFrame, frameSize)),
				formatSeconds(export.SecondsAt48K(item.Length, frameSize)),
				humanize.Comma(item.Length),
				size,
			})
		}
	}
	return renderTable(headers, rows, aligns)
}

func formatSeconds(s float64) string {
	return humanize.FtoaWithDigits(s, 3) + "s"
}
