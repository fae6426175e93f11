package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/austinkregel/falplayer/internal/audio"
)

type exportOptions struct {
	Output string
	Loops  int
	Factor int
}

func newExportCmd(flags *globalFlags) *cobra.Command {
	opts := &exportOptions{}

	cmd := &cobra.Command{
		Use:   "export <file.ogg>",
		Short: "Render a track, looped a number of times, to a WAV file",
		Long: "Render a track through the playback engine into a 16-bit WAV file at the\n" +
			"decimated rate. The loop region is played --loops times and rendering stops\n" +
			"at the loop end. Tracks without loop tags are rendered once.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			if opts.Loops < 1 {
				return errors.New("--loops must be at least 1")
			}
			if opts.Factor == 0 {
				cfgMgr, err := flags.loadConfig()
				if err != nil {
					return err
				}
				opts.Factor = cfgMgr.Get().Audio.CompressionFactor
			}
			if opts.Output == "" {
				opts.Output = strings.TrimSuffix(args[0], ".ogg") + ".wav"
			}

			frames, loops, err := export(ctx.Done(), args[0], opts, flags)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s: %d frames, loop played %d times\n", opts.Output, frames, loops)
			return nil
		},
	}

	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "output WAV path (default: input with .wav)")
	cmd.Flags().IntVar(&opts.Loops, "loops", 1, "number of times to play the loop region")
	cmd.Flags().IntVar(&opts.Factor, "factor", 0, "compression factor (default: from config)")
	return cmd
}

// export runs one engine into a WavSink and returns the frames written and the
// number of times the loop region was played
func export(cancel <-chan struct{}, path string, opts *exportOptions, flags *globalFlags) (int64, int, error) {
	logger := flags.logger()

	stream, err := audio.OpenVorbis(path)
	if err != nil {
		return 0, 0, err
	}
	defer stream.Close()

	loop, err := audio.ParseLoop(stream)
	if err != nil {
		return 0, 0, err
	}

	var engine *audio.Engine
	var runErr error
	listener := audio.ListenerFuncs{
		Loop: func(int64) {
			// Loops counts completed wraps; this call is the next one
			if engine.Loops()+1 >= opts.Loops {
				engine.Stop()
			}
		},
		Error: func(err error) { runErr = err },
	}

	sink := audio.NewWavSink(opts.Output)
	engine = audio.NewEngine(stream, sink, audio.EngineConfig{
		Factor:     opts.Factor,
		BufferSize: 32768,
		Bounds:     loop.Scale(opts.Factor),
		Format:     stream.Format(),
	}, listener, logger)

	if err := engine.Start(); err != nil {
		return 0, 0, err
	}

	select {
	case <-engine.Done():
	case <-cancel:
		engine.Stop()
		engine.Wait()
		return sink.Frames(), engine.Loops(), errors.New("interrupted")
	}

	passes := engine.Loops()
	if !loop.HasLoop() {
		passes = 0
	}
	if runErr != nil {
		return sink.Frames(), passes, fmt.Errorf("export failed: %w", runErr)
	}
	return sink.Frames(), passes, nil
}
