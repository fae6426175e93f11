package audio

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// PlaybackState represents the current state of an engine or player
type PlaybackState string

const (
	StateStopped PlaybackState = "stopped"
	StatePlaying PlaybackState = "playing"
	StatePaused  PlaybackState = "paused"
)

const defaultProgressInterval = 50

// Sink receives decimated PCM. Only the engine worker writes to it while playing.
type Sink interface {
	Open(format Format, bufferSize int) error
	Play() error
	Pause() error
	Write(p []byte) (int, error)
	Flush() error
	Stop() error
	Release() error
}

// EngineConfig holds the fixed parameters of one engine run.
// Bounds must already be scaled to expanded units.
type EngineConfig struct {
	Factor           int
	BufferSize       int
	ProgressInterval int
	Bounds           LoopMetadata
	Format           Format
}

// Engine streams one Stream into one Sink on a worker goroutine, looping the region
// [Bounds.Start, Bounds.End) until stopped. An engine can be started once.
type Engine struct {
	stream   Stream
	sink     Sink
	listener Listener
	logger   zerolog.Logger

	factor           int
	bufferSize       int
	progressInterval int
	bounds           LoopMetadata
	format           Format

	mu             sync.Mutex
	cond           *sync.Cond
	state          PlaybackState
	started        bool
	pauseRequested bool
	seeking        bool
	parked         bool
	finish         bool
	exited         bool
	done           chan struct{}

	position atomic.Int64
	loops    atomic.Int64
}

// NewEngine prepares an engine. Nothing is opened until Start.
func NewEngine(stream Stream, sink Sink, cfg EngineConfig, listener Listener, logger zerolog.Logger) *Engine {
	if cfg.Factor < 1 {
		cfg.Factor = 1
	}
	if cfg.ProgressInterval <= 0 {
		cfg.ProgressInterval = defaultProgressInterval
	}
	if cfg.Format.Channels < 1 {
		cfg.Format.Channels = 2
	}
	if listener == nil {
		listener = ListenerFuncs{}
	}

	e := &Engine{
		stream:           stream,
		sink:             sink,
		listener:         listener,
		factor:           cfg.Factor,
		bufferSize:       cfg.BufferSize,
		progressInterval: cfg.ProgressInterval,
		bounds:           cfg.Bounds,
		format:           cfg.Format,
		state:            StateStopped,
		done:             make(chan struct{}),
	}
	e.cond = sync.NewCond(&e.mu)
	e.logger = logger.With().
		Str("component", "engine").
		Str("run", uuid.NewString()).
		Logger()
	return e
}

// Start opens the sink at the reduced rate and launches the worker.
func (e *Engine) Start() error {
	e.mu.Lock()
	if e.started {
		e.mu.Unlock()
		return ErrEngineUsed
	}
	e.started = true
	e.mu.Unlock()

	if err := e.sink.Open(e.format.Reduced(e.factor), e.bufferSize); err != nil {
		e.markExited()
		close(e.done)
		return fmt.Errorf("failed to open sink: %w", err)
	}
	if err := e.sink.Play(); err != nil {
		e.sink.Release()
		e.markExited()
		close(e.done)
		return fmt.Errorf("failed to start sink: %w", err)
	}

	e.mu.Lock()
	e.state = StatePlaying
	e.mu.Unlock()

	e.logger.Info().
		Int("factor", e.factor).
		Int64("loopStart", e.bounds.Start).
		Int64("loopEnd", e.bounds.End).
		Msg("engine started")

	go e.run()
	return nil
}

// Pause asks the worker to park at the top of its next iteration
func (e *Engine) Pause() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	switch e.state {
	case StatePaused:
		return nil
	case StateStopped:
		return ErrNotActive
	}
	e.state = StatePaused
	e.pauseRequested = true
	return nil
}

// Resume wakes a paused worker. The decoder position is left untouched.
func (e *Engine) Resume() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	switch e.state {
	case StatePlaying:
		return nil
	case StateStopped:
		return ErrNotActive
	}
	e.state = StatePlaying
	e.pauseRequested = false
	e.cond.Broadcast()
	return nil
}

// Stop asks the worker to exit. It does not wait; use Wait or Done for that.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.started || e.exited {
		return
	}
	e.state = StateStopped
	e.finish = true
	e.pauseRequested = false
	e.cond.Broadcast()
}

// Seek moves playback to pos, in expanded units. The worker is parked for the
// duration of the move and continues in its previous state afterwards.
func (e *Engine) Seek(pos int64) error {
	limit := e.seekLimit()
	if pos < 0 || (limit != Unbounded && pos >= limit) {
		return ErrInvalidSeekTarget
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state == StateStopped || e.exited {
		return ErrNotActive
	}

	e.seeking = true
	defer func() {
		e.seeking = false
		e.cond.Broadcast()
	}()
	for !e.parked && !e.exited {
		e.cond.Wait()
	}
	if e.exited {
		return ErrNotActive
	}
	return e.reposition(pos)
}

// reposition runs with the worker parked and e.mu held
func (e *Engine) reposition(pos int64) error {
	if err := e.sink.Flush(); err != nil {
		e.logger.Warn().Err(err).Msg("failed to flush sink before seek")
	}
	if err := e.stream.SeekPCM(pos / int64(e.factor)); err != nil {
		return fmt.Errorf("failed to seek decoder: %w", err)
	}
	e.position.Store(pos)
	e.logger.Debug().Int64("position", pos).Msg("seeked")
	return nil
}

func (e *Engine) seekLimit() int64 {
	if e.bounds.HasLoop() {
		return e.bounds.End
	}
	if e.bounds.Total > 0 {
		return e.bounds.Total
	}
	return Unbounded
}

// State returns the engine state
func (e *Engine) State() PlaybackState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Started reports whether Start has been called
func (e *Engine) Started() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.started
}

// Position returns the playback position in expanded units
func (e *Engine) Position() int64 { return e.position.Load() }

// Loops returns how many times the loop region has wrapped
func (e *Engine) Loops() int { return int(e.loops.Load()) }

// Done is closed once the worker has exited and the sink is released
func (e *Engine) Done() <-chan struct{} { return e.done }

// Wait blocks until the worker has exited
func (e *Engine) Wait() { <-e.done }

func (e *Engine) markExited() {
	e.mu.Lock()
	e.state = StateStopped
	e.exited = true
	e.parked = false
	e.cond.Broadcast()
	e.mu.Unlock()
}

// readSize returns the native read size: BufferSize/factor rounded down to whole
// decimation groups, never less than one group.
func (e *Engine) readSize() int {
	group := e.format.FrameSize() * e.factor
	size := e.bufferSize / e.factor
	size -= size % group
	if size < group {
		size = group
	}
	return size
}

func (e *Engine) run() {
	defer func() {
		if err := e.sink.Flush(); err != nil {
			e.logger.Debug().Err(err).Msg("sink flush on exit")
		}
		if err := e.sink.Stop(); err != nil {
			e.logger.Debug().Err(err).Msg("sink stop on exit")
		}
		if err := e.sink.Release(); err != nil {
			e.logger.Warn().Err(err).Msg("failed to release sink")
		}
		e.markExited()
		e.logger.Info().Int64("position", e.position.Load()).Int64("loops", e.loops.Load()).Msg("engine stopped")
		e.listener.OnComplete()
		close(e.done)
	}()

	if err := e.stream.SeekPCM(0); err != nil {
		e.fail(&DecodeError{Err: err})
		return
	}

	frameSize := int64(e.format.FrameSize())
	factor := int64(e.factor)
	buf := make([]byte, e.readSize())

	for iteration := 1; ; iteration++ {
		if !e.waitWhilePaused() {
			return
		}

		n, _, err := e.stream.Read(buf)
		eof := errors.Is(err, io.EOF)
		switch {
		case n > len(buf):
			e.fail(&OverflowError{N: n, Capacity: len(buf)})
			return
		case err != nil && !eof:
			e.fail(&DecodeError{Err: err})
			return
		case n <= 0:
			e.logger.Debug().Msg("end of stream")
			return
		}

		frames := int64(n) / frameSize
		pos := e.position.Load()
		if e.bounds.HasLoop() {
			remaining := (e.bounds.End - pos + factor - 1) / factor
			if remaining < 0 {
				remaining = 0
			}
			if frames > remaining {
				frames = remaining
			}
		}
		n = int(frames * frameSize)

		if iteration%e.progressInterval == 0 {
			e.listener.OnProgress(pos)
		}

		out := Decimate(buf, n, e.factor, e.format.Channels)
		if out > 0 {
			if _, err := e.sink.Write(buf[:out]); err != nil {
				e.fail(fmt.Errorf("failed to write to sink: %w", err))
				return
			}
		}

		pos = e.position.Add(frames * factor)

		if e.bounds.HasLoop() && pos >= e.bounds.End {
			if err := e.wrap(); err != nil {
				e.fail(&DecodeError{Err: err})
				return
			}
			continue
		}
		if eof {
			e.logger.Debug().Msg("end of stream")
			return
		}
	}
}

// wrap jumps back to the loop start. Seek only repositions a parked worker, so the
// decoder is never shared here.
func (e *Engine) wrap() error {
	start := e.bounds.Start
	e.listener.OnLoop(start)

	if err := e.stream.SeekPCM(start / int64(e.factor)); err != nil {
		return err
	}
	e.position.Store(start)
	loops := e.loops.Add(1)
	e.logger.Info().Int64("loops", loops).Int64("position", start).Msg("looped")
	return nil
}

// waitWhilePaused is the worker's only suspension point. It returns false when the
// worker should exit.
func (e *Engine) waitWhilePaused() bool {
	e.mu.Lock()
	if e.finish {
		e.mu.Unlock()
		return false
	}
	if !e.pauseRequested && !e.seeking {
		e.mu.Unlock()
		return true
	}
	e.mu.Unlock()

	if err := e.sink.Pause(); err != nil {
		e.logger.Warn().Err(err).Msg("failed to pause sink")
	}

	e.mu.Lock()
	e.parked = true
	e.cond.Broadcast()
	for (e.pauseRequested || e.seeking) && !e.finish {
		e.cond.Wait()
	}
	e.parked = false
	finish := e.finish
	e.mu.Unlock()

	if finish {
		return false
	}
	if err := e.sink.Play(); err != nil {
		e.logger.Warn().Err(err).Msg("failed to resume sink")
	}
	return true
}

func (e *Engine) fail(err error) {
	e.logger.Error().Err(err).Msg("playback failed")
	e.listener.OnError(err)
}
