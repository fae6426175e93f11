package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/austinkregel/falplayer/internal/audio"
	"github.com/austinkregel/falplayer/internal/ipc"
	"github.com/austinkregel/falplayer/internal/scanner"
)

const ctlTimeout = 10 * time.Second

func newCtlCmd(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ctl",
		Short: "Control a running daemon",
	}

	var noPlay bool
	selectCmd := &cobra.Command{
		Use:   "select <file.ogg>",
		Short: "Select a file, playing it unless --no-play is set",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := ipc.SelectRequest{Path: args[0]}
			if noPlay {
				play := false
				req.Play = &play
			}
			return callStatus(cmd, flags, ipc.CmdSelect, req)
		},
	}
	selectCmd.Flags().BoolVar(&noPlay, "no-play", false, "select without starting playback")

	cmd.AddCommand(
		selectCmd,
		simpleCtlCmd(flags, "status", "Show the daemon's playback status", ipc.CmdStatus),
		simpleCtlCmd(flags, "play", "Start or resume playback", ipc.CmdPlay),
		simpleCtlCmd(flags, "pause", "Pause playback", ipc.CmdPause),
		simpleCtlCmd(flags, "stop", "Stop playback", ipc.CmdStop),
		&cobra.Command{
			Use:   "seek <seconds>",
			Short: "Seek to a position in the current track",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				secs, err := strconv.ParseFloat(args[0], 64)
				if err != nil || secs < 0 {
					return fmt.Errorf("invalid position %q", args[0])
				}
				return withClient(cmd, flags, func(ctx context.Context, c *ipc.Client) error {
					var status audio.Status
					if err := c.Call(ctx, ipc.CmdStatus, nil, &status); err != nil {
						return err
					}
					if status.SampleRate == 0 {
						return audio.ErrNoTrack
					}
					pos := int64(secs*float64(status.SampleRate)) * int64(max(status.Factor, 1))
					if err := c.Call(ctx, ipc.CmdSeek, ipc.SeekRequest{Position: pos}, &status); err != nil {
						return err
					}
					renderStatus(cmd.OutOrStdout(), status)
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "volume <0-100>",
			Short: "Set the playback volume",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				v, err := strconv.Atoi(args[0])
				if err != nil || v < 0 || v > 100 {
					return fmt.Errorf("invalid volume %q", args[0])
				}
				return callStatus(cmd, flags, ipc.CmdVolume, ipc.VolumeRequest{Level: float64(v) / 100})
			},
		},
		&cobra.Command{
			Use:   "history",
			Short: "List recently played files",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return withClient(cmd, flags, func(ctx context.Context, c *ipc.Client) error {
					var resp ipc.HistoryResponse
					if err := c.Call(ctx, ipc.CmdHistory, nil, &resp); err != nil {
						return err
					}
					for i, path := range resp.Entries {
						fmt.Fprintf(cmd.OutOrStdout(), "%3d  %s\n", i+1, path)
					}
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "library",
			Short: "Scan the configured song directories",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return withClient(cmd, flags, func(ctx context.Context, c *ipc.Client) error {
					var results []scanner.ScanResult
					if err := c.Call(ctx, ipc.CmdLibrary, nil, &results); err != nil {
						return err
					}
					renderLibrary(cmd.OutOrStdout(), results)
					return nil
				})
			},
		},
		newWatchCmd(flags),
	)
	return cmd
}

// simpleCtlCmd sends a command without data and prints the returned status
func simpleCtlCmd(flags *globalFlags, use, short string, cmdType ipc.CommandType) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return callStatus(cmd, flags, cmdType, nil)
		},
	}
}

func callStatus(cmd *cobra.Command, flags *globalFlags, cmdType ipc.CommandType, data interface{}) error {
	return withClient(cmd, flags, func(ctx context.Context, c *ipc.Client) error {
		var status audio.Status
		if err := c.Call(ctx, cmdType, data, &status); err != nil {
			return err
		}
		renderStatus(cmd.OutOrStdout(), status)
		return nil
	})
}

func withClient(cmd *cobra.Command, flags *globalFlags, fn func(ctx context.Context, c *ipc.Client) error) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), ctlTimeout)
	defer cancel()

	c, err := ipc.Dial(ctx, flags.socket())
	if err != nil {
		return err
	}
	defer c.Close()
	return fn(ctx, c)
}

func renderLibrary(out io.Writer, results []scanner.ScanResult) {
	t := newTable(out)
	t.AppendHeader(table.Row{"File", "Title", "Loop", "Note"})
	for _, result := range results {
		t.AppendSeparator()
		if result.Error != "" {
			t.AppendRow(table.Row{result.LibraryPath, "", "", result.Error})
			continue
		}
		for _, f := range result.Files {
			title, loop := "", ""
			if f.Loop != nil {
				title = f.Loop.Title
				if f.Loop.HasLoop {
					loop = fmt.Sprintf("%d-%d", f.Loop.LoopStart, f.Loop.LoopEnd)
				}
			}
			t.AppendRow(table.Row{f.Path, title, loop, f.Error})
		}
	}
	t.AppendFooter(table.Row{"", "", "", fmt.Sprintf("%d files", len(scanner.Files(results)))})
	t.Render()
}

func newWatchCmd(flags *globalFlags) *cobra.Command {
	var levels bool
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Print playback events as the daemon pushes them",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			c, err := ipc.Dial(ctx, flags.socket())
			if err != nil {
				return err
			}
			defer c.Close()

			callCtx, callCancel := context.WithTimeout(ctx, ctlTimeout)
			err = c.Call(callCtx, ipc.CmdSubscribe, ipc.SubscribeRequest{Levels: levels}, nil)
			callCancel()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for {
				select {
				case <-ctx.Done():
					return nil
				case msg, ok := <-c.Pushes():
					if !ok {
						return fmt.Errorf("daemon closed the connection")
					}
					fmt.Fprintln(out, formatPush(msg))
				}
			}
		},
	}
	cmd.Flags().BoolVar(&levels, "levels", false, "also print analyzer levels")
	return cmd
}

// formatPush renders a push message as a single line
func formatPush(msg ipc.PushMessage) string {
	stamp := time.Now().Format(time.TimeOnly)
	switch msg.Type {
	case ipc.PushTrackLoaded:
		var info audio.TrackInfo
		if err := json.Unmarshal(msg.Data, &info); err == nil {
			return fmt.Sprintf("%s %-11s %s", stamp, msg.Type, info.Title)
		}
	case ipc.PushPlayState, ipc.PushPauseState:
		var ev ipc.StateEvent
		if err := json.Unmarshal(msg.Data, &ev); err == nil {
			return fmt.Sprintf("%s %-11s %s", stamp, msg.Type, ev.State)
		}
	case ipc.PushProgress, ipc.PushLoop:
		var ev ipc.PositionEvent
		if err := json.Unmarshal(msg.Data, &ev); err == nil {
			return fmt.Sprintf("%s %-11s %d", stamp, msg.Type, ev.Position)
		}
	case ipc.PushError:
		var ev ipc.ErrorEvent
		if err := json.Unmarshal(msg.Data, &ev); err == nil {
			return fmt.Sprintf("%s %-11s %s", stamp, msg.Type, ev.Message)
		}
	case ipc.PushLevels:
		var ev ipc.LevelsResponse
		if err := json.Unmarshal(msg.Data, &ev); err == nil {
			return fmt.Sprintf("%s %-11s %s", stamp, msg.Type, levelBar(ev.Bands))
		}
	}
	return fmt.Sprintf("%s %-11s %s", stamp, msg.Type, strings.TrimSpace(string(msg.Data)))
}

var levelGlyphs = []rune(" ▁▂▃▄▅▆▇█")

// levelBar draws 0-255 band levels as block characters
func levelBar(bands []int) string {
	var b strings.Builder
	for _, v := range bands {
		v = min(max(v, 0), 255)
		b.WriteRune(levelGlyphs[v*(len(levelGlyphs)-1)/255])
	}
	return b.String()
}
