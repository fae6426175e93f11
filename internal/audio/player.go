// Package audio implements loop-aware Ogg Vorbis playback: loop tag parsing, PCM
// decimation, the streaming engine and the session controller that drives it.
package audio

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/austinkregel/falplayer/internal/media"
)

// SinkFactory creates the sink for one engine run
type SinkFactory func() Sink

// HistoryRecorder records selected files
type HistoryRecorder interface {
	Add(path string) error
}

// volumeSetter is implemented by sinks that can scale their output
type volumeSetter interface {
	SetVolume(v float64)
}

// PlayerOptions configures a Player. Opener and NewSink are required.
type PlayerOptions struct {
	Opener  Opener
	NewSink SinkFactory

	Factor           int
	BufferSize       int
	ProgressInterval int
	Volume           float64 // zero means full volume

	Listener     Listener
	MediaSession media.Session
	History      HistoryRecorder
	Logger       zerolog.Logger
}

// Status represents the current playback status. Positions are in expanded units.
type Status struct {
	State      PlaybackState `json:"state"`
	Path       string        `json:"path,omitempty"`
	Title      string        `json:"title,omitempty"`
	Position   int64         `json:"position"`
	Total      int64         `json:"total"`
	LoopStart  int64         `json:"loopStart"`
	LoopEnd    int64         `json:"loopEnd"`
	HasLoop    bool          `json:"hasLoop"`
	Loops      int           `json:"loops"`
	Volume     float64       `json:"volume"` // 0.0 - 1.0
	Factor     int           `json:"factor"`
	SampleRate int           `json:"sampleRate,omitempty"`
	Channels   int           `json:"channels,omitempty"`
}

// Player is the session controller. It owns the selected stream and the engine
// currently playing it, and forwards engine events to its listener.
type Player struct {
	mu         sync.RWMutex
	playbackMu sync.Mutex // serializes control operations, one engine at a time

	opener   Opener
	newSink  SinkFactory
	factor   int
	bufSize  int
	interval int

	listener     Listener
	mediaSession media.Session
	history      HistoryRecorder
	logger       zerolog.Logger

	stream Stream
	path   string
	title  string
	loop   LoopMetadata // native units
	format Format
	engine *Engine
	sink   Sink
	volume float64

	// generation identifies the current engine; events from older engines are dropped
	generation atomic.Uint64
}

// NewPlayer creates a session controller with nothing selected
func NewPlayer(opts PlayerOptions) *Player {
	if opts.Factor < 1 {
		opts.Factor = 1
	}
	if opts.Listener == nil {
		opts.Listener = ListenerFuncs{}
	}
	if opts.MediaSession == nil {
		opts.MediaSession = media.NewNoOpSession()
	}

	return &Player{
		opener:       opts.Opener,
		newSink:      opts.NewSink,
		factor:       opts.Factor,
		bufSize:      opts.BufferSize,
		interval:     opts.ProgressInterval,
		listener:     opts.Listener,
		mediaSession: opts.MediaSession,
		history:      opts.History,
		logger:       opts.Logger.With().Str("component", "player").Logger(),
		volume:       clampVolume(opts.Volume, 1.0),
	}
}

// SelectFile stops any playback, opens path and reads its loop tags. A fresh engine
// is prepared but not started.
func (p *Player) SelectFile(path string) error {
	p.playbackMu.Lock()
	defer p.playbackMu.Unlock()

	p.stopAndWait()
	p.closeStream()

	stream, err := p.opener(path)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", path, err)
	}

	loop, err := ParseLoop(stream)
	if err != nil {
		stream.Close()
		return fmt.Errorf("failed to read loop tags of %s: %w", path, err)
	}

	var comments []string
	if c, err := stream.Comments(wholeStream); err == nil {
		comments = c
	}

	p.mu.Lock()
	p.stream = stream
	p.path = path
	p.title = Title(comments, path)
	p.loop = loop
	p.format = stream.Format()
	p.prepareEngineLocked()
	info := p.trackInfoLocked()
	p.mu.Unlock()

	p.logger.Info().
		Str("path", path).
		Int64("total", loop.Total).
		Int64("loopStart", loop.Start).
		Int64("loopEnd", loop.End).
		Msg("track loaded")

	if p.history != nil {
		if err := p.history.Add(path); err != nil {
			p.logger.Warn().Err(err).Msg("failed to record history")
		}
	}

	p.mediaSession.UpdateMetadata(media.Metadata{
		Title:    info.Title,
		Path:     path,
		Duration: p.toDuration(info.Total),
	})
	if loop.HasLoop() {
		p.mediaSession.UpdateLoopStatus(media.LoopTrack)
	} else {
		p.mediaSession.UpdateLoopStatus(media.LoopNone)
	}
	p.mediaSession.UpdatePlaybackState(media.StateStopped, 0)

	p.events().OnTrackLoaded(info)
	return nil
}

// Play resumes a paused engine, or starts a fresh engine from the beginning.
func (p *Player) Play() error {
	p.playbackMu.Lock()
	defer p.playbackMu.Unlock()

	p.mu.RLock()
	engine := p.engine
	hasTrack := p.stream != nil
	p.mu.RUnlock()

	if !hasTrack {
		return ErrNoTrack
	}

	if engine != nil {
		switch engine.State() {
		case StatePlaying:
			return nil
		case StatePaused:
			if err := engine.Resume(); err != nil {
				return err
			}
			p.logger.Info().Int64("position", engine.Position()).Msg("resumed")
			p.mediaSession.UpdatePlaybackState(media.StatePlaying, p.toDuration(engine.Position()))
			p.events().OnPlayStateChanged()
			return nil
		}
		if engine.Started() {
			engine.Stop()
			<-engine.Done()
			engine = nil
		}
	}

	p.mu.Lock()
	if engine == nil {
		p.prepareEngineLocked()
	}
	engine = p.engine
	p.mu.Unlock()

	if err := engine.Start(); err != nil {
		if errors.Is(err, ErrSinkRate) {
			p.logger.Warn().Err(err).Msg("output rate is fixed for the life of the process")
			return fmt.Errorf("%w; restart falplayer to play files at another sample rate", err)
		}
		return err
	}

	p.logger.Info().Str("path", p.Status().Path).Msg("playing")
	p.mediaSession.UpdatePlaybackState(media.StatePlaying, 0)
	p.events().OnPlayStateChanged()
	return nil
}

// Pause parks the engine worker
func (p *Player) Pause() error {
	p.playbackMu.Lock()
	defer p.playbackMu.Unlock()

	engine := p.currentEngine()
	if engine == nil {
		return ErrNoTrack
	}
	if engine.State() == StatePaused {
		return nil
	}
	if err := engine.Pause(); err != nil {
		return err
	}

	p.logger.Info().Int64("position", engine.Position()).Msg("paused")
	p.mediaSession.UpdatePlaybackState(media.StatePaused, p.toDuration(engine.Position()))
	p.events().OnPauseStateChanged()
	return nil
}

// Stop ends playback. The worker finishes asynchronously and reports OnComplete.
func (p *Player) Stop() error {
	p.playbackMu.Lock()
	defer p.playbackMu.Unlock()

	engine := p.currentEngine()
	if engine == nil || engine.State() == StateStopped {
		return nil
	}
	engine.Stop()

	p.logger.Info().Msg("stopped")
	p.mediaSession.UpdatePlaybackState(media.StateStopped, 0)
	p.events().OnPauseStateChanged()
	return nil
}

// Seek moves the running engine to pos, in expanded units
func (p *Player) Seek(pos int64) error {
	p.playbackMu.Lock()
	defer p.playbackMu.Unlock()

	engine := p.currentEngine()
	if engine == nil {
		return ErrNoTrack
	}
	if err := engine.Seek(pos); err != nil {
		return err
	}

	state := media.StatePlaying
	if engine.State() == StatePaused {
		state = media.StatePaused
	}
	p.mediaSession.UpdatePlaybackState(state, p.toDuration(pos))
	return nil
}

// IsPlaying reports whether an engine is running and not paused
func (p *Player) IsPlaying() bool {
	engine := p.currentEngine()
	return engine != nil && engine.State() == StatePlaying
}

// Position returns the playback position in expanded units without touching the
// engine's state lock, so it is safe to call from sink and analyzer callbacks
func (p *Player) Position() int64 {
	if engine := p.currentEngine(); engine != nil {
		return engine.Position()
	}
	return 0
}

// SetVolume sets the playback volume (0.0 - 1.0)
func (p *Player) SetVolume(volume float64) error {
	if volume < 0 || volume > 1 {
		return errors.New("volume must be between 0.0 and 1.0")
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.volume = volume
	if vs, ok := p.sink.(volumeSetter); ok {
		vs.SetVolume(volume)
	}
	return nil
}

// Status returns the current playback status
func (p *Player) Status() Status {
	p.mu.RLock()
	defer p.mu.RUnlock()

	s := Status{
		State:  StateStopped,
		Path:   p.path,
		Title:  p.title,
		Volume: p.volume,
		Factor: p.factor,
	}
	if p.stream == nil {
		return s
	}

	scaled := p.loop.Scale(p.factor)
	s.Total = scaled.Total
	s.LoopStart = scaled.Start
	s.LoopEnd = scaled.End
	s.HasLoop = scaled.HasLoop()
	s.SampleRate = p.format.SampleRate
	s.Channels = p.format.Channels
	if p.engine != nil {
		s.State = p.engine.State()
		s.Position = p.engine.Position()
		s.Loops = p.engine.Loops()
	}
	return s
}

// Close stops playback and releases the selected stream
func (p *Player) Close() error {
	p.playbackMu.Lock()
	defer p.playbackMu.Unlock()

	p.stopAndWait()
	return p.closeStream()
}

// OnCommand implements media.CommandHandler for MPRIS integration
func (p *Player) OnCommand(cmd media.Command, data interface{}) error {
	if cmd != media.CmdSeek {
		p.logger.Debug().Stringer("command", cmd).Msg("media command")
	}

	switch cmd {
	case media.CmdPlay:
		return p.Play()
	case media.CmdPause:
		return p.Pause()
	case media.CmdPlayPause:
		if p.IsPlaying() {
			return p.Pause()
		}
		return p.Play()
	case media.CmdStop:
		return p.Stop()
	case media.CmdSeek:
		if pos, ok := data.(time.Duration); ok {
			return p.Seek(p.fromDuration(pos))
		}
	}
	return nil
}

// SetListener replaces the listener that receives player events
func (p *Player) SetListener(l Listener) {
	if l == nil {
		l = ListenerFuncs{}
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.listener = l
}

func (p *Player) events() Listener {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.listener
}

func (p *Player) currentEngine() *Engine {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.engine
}

// prepareEngineLocked builds an unstarted engine for the selected stream
func (p *Player) prepareEngineLocked() {
	gen := p.generation.Add(1)

	sink := p.newSink()
	if vs, ok := sink.(volumeSetter); ok {
		vs.SetVolume(p.volume)
	}
	p.sink = sink

	cfg := EngineConfig{
		Factor:           p.factor,
		BufferSize:       p.bufSize,
		ProgressInterval: p.interval,
		Bounds:           p.loop.Scale(p.factor),
		Format:           p.format,
	}
	p.engine = NewEngine(p.stream, sink, cfg, &engineEvents{player: p, generation: gen}, p.logger)
}

// stopAndWait stops the current engine and blocks until its worker has exited.
// Callers hold playbackMu but not mu.
func (p *Player) stopAndWait() {
	engine := p.currentEngine()
	if engine == nil || !engine.Started() {
		return
	}
	engine.Stop()
	<-engine.Done()
}

func (p *Player) closeStream() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.generation.Add(1)
	p.engine = nil
	p.sink = nil
	if p.stream == nil {
		return nil
	}
	err := p.stream.Close()
	p.stream = nil
	p.path = ""
	p.title = ""
	p.loop = LoopMetadata{}
	return err
}

func (p *Player) trackInfoLocked() TrackInfo {
	scaled := p.loop.Scale(p.factor)
	return TrackInfo{
		Path:       p.path,
		Title:      p.title,
		Total:      scaled.Total,
		LoopStart:  scaled.Start,
		LoopLength: scaled.Length,
		LoopEnd:    scaled.End,
		HasLoop:    scaled.HasLoop(),
		SampleRate: p.format.SampleRate,
		Channels:   p.format.Channels,
	}
}

// toDuration converts expanded units to wall-clock time at the source rate
func (p *Player) toDuration(pos int64) time.Duration {
	p.mu.RLock()
	rate := p.format.SampleRate
	p.mu.RUnlock()

	if rate <= 0 || pos <= 0 || pos == Unbounded {
		return 0
	}
	frames := pos / int64(p.factor)
	return time.Duration(frames) * time.Second / time.Duration(rate)
}

func (p *Player) fromDuration(d time.Duration) int64 {
	p.mu.RLock()
	rate := p.format.SampleRate
	p.mu.RUnlock()

	frames := int64(d) * int64(rate) / int64(time.Second)
	return frames * int64(p.factor)
}

func clampVolume(v, fallback float64) float64 {
	if v == 0 {
		return fallback
	}
	return math.Max(0, math.Min(1, v))
}

// engineEvents forwards the events of one engine while it is still current
type engineEvents struct {
	player     *Player
	generation uint64
}

func (e *engineEvents) current() bool {
	return e.player.generation.Load() == e.generation
}

func (e *engineEvents) OnTrackLoaded(info TrackInfo) {}

func (e *engineEvents) OnPlayStateChanged() {}

func (e *engineEvents) OnPauseStateChanged() {}

func (e *engineEvents) OnProgress(position int64) {
	if e.current() {
		e.player.events().OnProgress(position)
	}
}

func (e *engineEvents) OnLoop(resetPosition int64) {
	if !e.current() {
		return
	}
	e.player.mediaSession.UpdatePlaybackState(media.StatePlaying, e.player.toDuration(resetPosition))
	e.player.events().OnLoop(resetPosition)
}

func (e *engineEvents) OnComplete() {
	if !e.current() {
		return
	}
	e.player.mediaSession.UpdatePlaybackState(media.StateStopped, 0)
	e.player.events().OnComplete()
}

func (e *engineEvents) OnError(err error) {
	if e.current() {
		e.player.events().OnError(err)
	}
}
