// Package main is the entry point for falplayer.
// falplayer plays Ogg Vorbis files that carry LOOPSTART/LOOPLENGTH comments, looping
// the tagged region forever. It runs as a daemon driven over IPC and OS media keys,
// or as an interactive console.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/austinkregel/falplayer/internal/config"
)

// Version is set at build time via ldflags
var Version = "dev"

// globalFlags are shared by every command
type globalFlags struct {
	ConfigDir  string
	SocketPath string
	Verbose    bool
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	flags := &globalFlags{}

	root := &cobra.Command{
		Use:          "falplayer",
		Short:        "Loop-aware Ogg Vorbis player",
		Version:      Version,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&flags.ConfigDir, "config", "", "configuration directory (default: ~/.config/falplayer)")
	root.PersistentFlags().StringVar(&flags.SocketPath, "socket", "", "IPC socket path (default: /tmp/falplayer-<uid>.sock)")
	root.PersistentFlags().BoolVarP(&flags.Verbose, "verbose", "v", false, "enable debug logging")

	root.AddCommand(
		newDaemonCmd(flags),
		newPlayCmd(flags),
		newInfoCmd(flags),
		newExportCmd(flags),
		newCtlCmd(flags),
	)
	return root
}

// logger returns a console logger on stderr
func (f *globalFlags) logger() zerolog.Logger {
	level := zerolog.InfoLevel
	if f.Verbose {
		level = zerolog.DebugLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.TimeOnly}).
		Level(level).
		With().
		Timestamp().
		Logger()
}

func (f *globalFlags) socket() string {
	if f.SocketPath != "" {
		return f.SocketPath
	}
	return fmt.Sprintf("/tmp/falplayer-%d.sock", os.Getuid())
}

// loadConfig creates the config directory if needed and loads config.json
func (f *globalFlags) loadConfig() (*config.Manager, error) {
	dir := f.ConfigDir
	if dir == "" {
		var err error
		if dir, err = config.DefaultDir(); err != nil {
			return nil, err
		}
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create config directory: %w", err)
	}

	mgr := config.NewManager(dir)
	if err := mgr.Load(); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return mgr, nil
}

// signalContext is cancelled on SIGINT or SIGTERM
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
}
