package main

import (
	"fmt"
	"path/filepath"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/austinkregel/falplayer/internal/audio"
	"github.com/austinkregel/falplayer/internal/scanner"
)

func newInfoCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "info <file.ogg>...",
		Short: "Show the loop tags of Ogg Vorbis files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			t := newTable(out)
			t.AppendHeader(table.Row{"File", "Title", "Rate", "Ch", "Length", "Loop start", "Loop end"})

			failed := 0
			for _, path := range args {
				row, err := infoRow(path)
				if err != nil {
					fmt.Fprintf(cmd.ErrOrStderr(), "%s: %v\n", path, err)
					failed++
					continue
				}
				t.AppendRow(row)
			}
			t.Render()

			if failed > 0 {
				return fmt.Errorf("%d of %d files could not be read", failed, len(args))
			}
			return nil
		},
	}
}

func infoRow(path string) (table.Row, error) {
	stream, err := audio.OpenVorbis(path)
	if err != nil {
		return nil, err
	}
	format := stream.Format()
	stream.Close()

	loop, err := scanner.ReadLoopInfo(audio.OpenVorbis, path)
	if err != nil {
		return nil, err
	}

	// native frames are expanded units at factor 1
	pos := func(v int64) string { return formatPosition(v, 1, format.SampleRate) }
	start, end := "-", "-"
	if loop.HasLoop {
		start = fmt.Sprintf("%d (%s)", loop.LoopStart, pos(loop.LoopStart))
		end = fmt.Sprintf("%d (%s)", loop.LoopEnd, pos(loop.LoopEnd))
	}

	return table.Row{
		filepath.Base(path),
		loop.Title,
		format.SampleRate,
		format.Channels,
		pos(loop.Total),
		start,
		end,
	}, nil
}
