package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"

	"github.com/austinkregel/falplayer/internal/audio"
	"github.com/austinkregel/falplayer/internal/ipc"
	"github.com/austinkregel/falplayer/internal/scanner"
)

var errQuit = errors.New("quit")

const consoleHelp = `commands:
  open <file>      select a file and start playing it
  play             start or resume playback
  pause            pause playback
  stop             stop playback
  seek <seconds>   jump to a position in the track
  vol <0-100>      set the volume
  status           show the current track and position
  history          list recently played files
  ls [dir]         list Ogg Vorbis files
  help             show this help
  quit             exit`

func newPlayCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "play [file.ogg]",
		Short: "Play files from an interactive console",
		Long: "The audio device is opened at the first played file's sample rate divided\n" +
			"by the compression factor and keeps that rate until the process exits. A file\n" +
			"at another sample rate fails to play until falplayer is restarted.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgMgr, err := flags.loadConfig()
			if err != nil {
				return err
			}

			sess := newSession(cfgMgr.Get(), cfgMgr.Dir(), false, flags.logger())
			defer sess.Close()

			rl, err := readline.NewEx(&readline.Config{
				Prompt:          "falplayer> ",
				HistoryFile:     filepath.Join(cfgMgr.Dir(), "console_history"),
				AutoComplete:    consoleCompleter(),
				InterruptPrompt: "^C",
				EOFPrompt:       "quit",
			})
			if err != nil {
				return fmt.Errorf("failed to start console: %w", err)
			}
			defer rl.Close()

			c := &console{ctrl: sess.player, history: sess.history, out: rl.Stdout()}
			sess.player.SetListener(c.listener())

			if len(args) == 1 {
				if err := c.run("open " + args[0]); err != nil {
					fmt.Fprintln(c.out, "error:", err)
				}
			}

			for {
				line, err := rl.Readline()
				if errors.Is(err, readline.ErrInterrupt) {
					if line == "" {
						return nil
					}
					continue
				}
				if errors.Is(err, io.EOF) {
					return nil
				}
				if err != nil {
					return err
				}

				if err := c.run(line); errors.Is(err, errQuit) {
					return nil
				} else if err != nil {
					fmt.Fprintln(c.out, "error:", err)
				}
			}
		},
	}
}

// console executes one command line at a time against a controller
type console struct {
	ctrl    ipc.Controller
	history ipc.HistorySource
	out     io.Writer
}

// listener prints the events that arrive between prompts
func (c *console) listener() audio.Listener {
	return audio.ListenerFuncs{
		TrackLoaded: func(info audio.TrackInfo) {
			fmt.Fprintf(c.out, "loaded %q\n", info.Title)
		},
		Loop: func(int64) {
			fmt.Fprintln(c.out, "looped")
		},
		Complete: func() {
			fmt.Fprintln(c.out, "playback finished")
		},
		Error: func(err error) {
			fmt.Fprintln(c.out, "playback error:", err)
		},
	}
}

// run executes a single line. It returns errQuit when the console should exit.
func (c *console) run(line string) error {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil
	}
	cmd, args := fields[0], fields[1:]

	switch cmd {
	case "open", "o":
		if len(args) == 0 {
			return errors.New("usage: open <file>")
		}
		path := strings.Join(args, " ")
		if err := c.ctrl.SelectFile(path); err != nil {
			return err
		}
		return c.ctrl.Play()
	case "play", "p":
		return c.ctrl.Play()
	case "pause":
		return c.ctrl.Pause()
	case "stop", "s":
		return c.ctrl.Stop()
	case "seek":
		if len(args) != 1 {
			return errors.New("usage: seek <seconds>")
		}
		secs, err := strconv.ParseFloat(args[0], 64)
		if err != nil || secs < 0 {
			return fmt.Errorf("invalid position %q", args[0])
		}
		status := c.ctrl.Status()
		if status.SampleRate == 0 {
			return audio.ErrNoTrack
		}
		return c.ctrl.Seek(int64(secs*float64(status.SampleRate)) * int64(max(status.Factor, 1)))
	case "vol", "volume":
		if len(args) != 1 {
			return errors.New("usage: vol <0-100>")
		}
		v, err := strconv.Atoi(args[0])
		if err != nil || v < 0 || v > 100 {
			return fmt.Errorf("invalid volume %q", args[0])
		}
		return c.ctrl.SetVolume(float64(v) / 100)
	case "status", "st":
		renderStatus(c.out, c.ctrl.Status())
	case "history", "h":
		if c.history == nil {
			return errors.New("history is disabled")
		}
		for i, path := range c.history.Entries() {
			fmt.Fprintf(c.out, "%3d  %s\n", i+1, path)
		}
	case "ls":
		dir := "."
		if len(args) > 0 {
			dir = strings.Join(args, " ")
		}
		for _, name := range listOggFiles(dir) {
			fmt.Fprintln(c.out, name)
		}
	case "help", "?":
		fmt.Fprintln(c.out, consoleHelp)
	case "quit", "exit", "q":
		return errQuit
	default:
		return fmt.Errorf("unknown command %q, try help", cmd)
	}
	return nil
}

func consoleCompleter() *readline.PrefixCompleter {
	files := readline.PcItemDynamic(func(line string) []string {
		return listOggFiles(".")
	})
	return readline.NewPrefixCompleter(
		readline.PcItem("open", files),
		readline.PcItem("play"),
		readline.PcItem("pause"),
		readline.PcItem("stop"),
		readline.PcItem("seek"),
		readline.PcItem("vol"),
		readline.PcItem("status"),
		readline.PcItem("history"),
		readline.PcItem("ls"),
		readline.PcItem("help"),
		readline.PcItem("quit"),
	)
}

// listOggFiles returns the supported files directly inside dir, with dir prefixed
// unless it is the working directory
func listOggFiles(dir string) []string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	var names []string
	for _, entry := range entries {
		if entry.IsDir() || !scanner.IsSupported(entry.Name()) {
			continue
		}
		if dir == "." {
			names = append(names, entry.Name())
		} else {
			names = append(names, filepath.Join(dir, entry.Name()))
		}
	}
	return names
}
