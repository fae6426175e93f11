package main

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/austinkregel/falplayer/internal/audio"
	"github.com/austinkregel/falplayer/internal/config"
	"github.com/austinkregel/falplayer/internal/history"
	"github.com/austinkregel/falplayer/internal/ipc"
	"github.com/austinkregel/falplayer/internal/media"
	"github.com/austinkregel/falplayer/internal/scanner"
)

func newDaemonCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "daemon",
		Short: "Run the playback daemon and serve the IPC socket",
		Long: "The audio device is opened at the first played file's sample rate divided\n" +
			"by the compression factor and keeps that rate until the process exits. A file\n" +
			"at another sample rate fails to play until falplayer is restarted.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext(cmd.Context())
			defer cancel()
			return runDaemon(ctx, flags)
		},
	}
}

// session bundles what the daemon and the console both build from the config
type session struct {
	player   *audio.Player
	history  *history.Store
	analyzer *audio.Analyzer
	media    media.Session
}

func (s *session) Close() {
	s.player.Close()
	s.media.Close()
}

func newSession(cfg config.Config, dir string, withMedia bool, logger zerolog.Logger) *session {
	hist := history.NewStore(dir)
	if err := hist.Load(); err != nil {
		logger.Warn().Err(err).Msg("failed to load history, starting empty")
	}

	mediaSession := media.Session(media.NewNoOpSession())
	if withMedia {
		if ms, err := media.NewSession(); err != nil {
			logger.Warn().Err(err).Msg("media session unavailable, continuing without OS integration")
		} else {
			mediaSession = ms
		}
	}

	analyzer := audio.NewAnalyzer()
	opts := audio.PlayerOptions{
		Opener:           audio.OpenVorbis,
		NewSink:          func() audio.Sink { return audio.NewOtoSink(analyzer) },
		Factor:           cfg.Audio.CompressionFactor,
		BufferSize:       cfg.Audio.BufferSize,
		ProgressInterval: cfg.Audio.ProgressInterval,
		Volume:           cfg.Audio.DefaultVolume,
		MediaSession:     mediaSession,
		Logger:           logger,
	}
	if cfg.Behavior.RememberHistory {
		opts.History = hist
	}

	player := audio.NewPlayer(opts)
	mediaSession.SetCommandHandler(mediaHandler(player, logger))

	return &session{
		player:   player,
		history:  hist,
		analyzer: analyzer,
		media:    mediaSession,
	}
}

func runDaemon(ctx context.Context, flags *globalFlags) error {
	logger := flags.logger()
	logger.Info().Str("version", Version).Msg("falplayer daemon starting")

	cfgMgr, err := flags.loadConfig()
	if err != nil {
		return err
	}
	cfg := cfgMgr.Get()

	sess := newSession(cfg, cfgMgr.Dir(), true, logger)
	defer sess.Close()

	libScanner := scanner.NewScanner(audio.OpenVorbis, logger)
	server, err := ipc.NewServer(ipc.Options{
		SocketPath:   flags.socket(),
		Player:       sess.player,
		History:      sess.history,
		Levels:       sess.analyzer,
		Scanner:      libScanner,
		LibraryPaths: func() []string { return cfgMgr.Get().LibraryPaths },
		AutoPlay:     cfg.Behavior.AutoPlayOnSelect,
		Logger:       logger,
	})
	if err != nil {
		return fmt.Errorf("failed to create IPC server: %w", err)
	}

	sess.player.SetListener(audio.MultiListener{server, logListener(logger)})
	sess.analyzer.SetCallback(server.PushLevels)

	if cfg.Behavior.WatchLibrary && len(cfg.LibraryPaths) > 0 {
		go func() {
			err := libScanner.Watch(ctx, cfg.LibraryPaths, func(paths []string) {
				logger.Info().Strs("paths", paths).Msg("library changed")
			})
			if err != nil {
				logger.Warn().Err(err).Msg("library watch stopped")
			}
		}()
	}

	return server.Start(ctx)
}

// mediaHandler forwards OS media commands to h and logs the ones that fail, since
// the desktop shell that sent them never shows the error
func mediaHandler(h media.CommandHandler, logger zerolog.Logger) media.CommandHandler {
	return media.CommandHandlerFunc(func(cmd media.Command, data interface{}) error {
		err := h.OnCommand(cmd, data)
		if err != nil {
			logger.Warn().Err(err).Stringer("command", cmd).Msg("media command failed")
		}
		return err
	})
}

// logListener logs playback events the other listeners do not
func logListener(logger zerolog.Logger) audio.Listener {
	return audio.ListenerFuncs{
		TrackLoaded: func(info audio.TrackInfo) {
			logger.Info().
				Str("title", info.Title).
				Int64("total", info.Total).
				Int64("loopStart", info.LoopStart).
				Int64("loopEnd", info.LoopEnd).
				Msg("selected")
		},
		Error: func(err error) {
			logger.Error().Err(err).Msg("playback error")
		},
	}
}
