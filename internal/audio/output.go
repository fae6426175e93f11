package audio

import (
	"bytes"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/hajimehoshi/oto/v2"
)

const (
	// Cap on bytes queued ahead of the device when the engine asks for no limit.
	// 100ms at 44100Hz stereo 16-bit keeps the level meter in step with what is heard.
	defaultMaxBuffered = 17640

	writePollInterval = 10 * time.Millisecond
)

// Oto allows a single context per process, so every OtoSink shares one.
var (
	otoMu     sync.Mutex
	otoCtx    *oto.Context
	otoFormat Format
)

func sharedContext(format Format) (*oto.Context, error) {
	otoMu.Lock()
	defer otoMu.Unlock()

	if otoCtx != nil {
		if format != otoFormat {
			return nil, fmt.Errorf("%w: have %d Hz/%d ch, want %d Hz/%d ch",
				ErrSinkRate, otoFormat.SampleRate, otoFormat.Channels, format.SampleRate, format.Channels)
		}
		return otoCtx, nil
	}

	ctx, ready, err := oto.NewContext(format.SampleRate, format.Channels, oto.FormatSignedInt16LE)
	if err != nil {
		return nil, fmt.Errorf("failed to create oto context: %w", err)
	}
	<-ready

	otoCtx = ctx
	otoFormat = format
	return ctx, nil
}

// OtoSink plays decimated PCM on the default audio device. The oto player pulls
// from an internal buffer through Read.
type OtoSink struct {
	player      oto.Player
	format      Format
	mu          sync.Mutex
	cond        *sync.Cond
	buffer      *bytes.Buffer
	maxBuffered int
	volume      float64 // 0.0 - 1.0
	paused      bool    // explicit pause, Write must not restart the player
	closed      bool
	analyzer    *Analyzer
	scratch     []byte // pre-volume copy handed to the analyzer, owned by Read
}

// NewOtoSink creates a sink. The analyzer, if any, sees every sample before the
// volume is applied.
func NewOtoSink(analyzer *Analyzer) *OtoSink {
	o := &OtoSink{
		buffer:      &bytes.Buffer{},
		maxBuffered: defaultMaxBuffered,
		volume:      1.0,
		analyzer:    analyzer,
	}
	o.cond = sync.NewCond(&o.mu)
	return o
}

func (o *OtoSink) Open(format Format, bufferSize int) error {
	ctx, err := sharedContext(format)
	if err != nil {
		return err
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	o.format = format
	o.maxBuffered = bufferSize
	if o.maxBuffered <= 0 {
		o.maxBuffered = defaultMaxBuffered
	}
	o.closed = false
	o.paused = false
	o.buffer.Reset()
	if o.analyzer != nil {
		o.analyzer.Configure(format.SampleRate, format.Channels)
	}
	o.player = ctx.NewPlayer(o)
	return nil
}

// Read implements io.Reader for the oto player. The analyzer runs after o.mu is
// released: its callback may reach back into the player, which calls SetVolume and
// Flush on this sink while holding its own locks.
func (o *OtoSink) Read(p []byte) (int, error) {
	o.mu.Lock()

	for o.paused && !o.closed {
		o.cond.Wait()
	}
	if o.closed {
		o.mu.Unlock()
		return 0, io.EOF
	}

	// Keep the device fed with silence while the engine catches up
	if o.buffer.Len() == 0 {
		o.mu.Unlock()
		clear(p)
		return len(p), nil
	}

	n, err := o.buffer.Read(p)
	if err != nil {
		o.mu.Unlock()
		return n, err
	}

	var analyzed []byte
	if o.analyzer != nil && n > 0 {
		// oto calls Read from a single goroutine, so the scratch buffer is not shared
		o.scratch = append(o.scratch[:0], p[:n]...)
		analyzed = o.scratch
	}
	if o.volume < 1.0 && n > 0 {
		o.applyVolume(p[:n])
	}
	o.mu.Unlock()

	if analyzed != nil {
		o.analyzer.ProcessSamples(analyzed)
	}
	return n, nil
}

// applyVolume scales s16le samples in place by the current volume
func (o *OtoSink) applyVolume(data []byte) {
	vol := o.volume
	if vol >= 1.0 {
		return
	}
	for i := 0; i+1 < len(data); i += 2 {
		sample := int16(data[i]) | int16(data[i+1])<<8
		scaled := int16(float64(sample) * vol)
		data[i] = byte(scaled)
		data[i+1] = byte(scaled >> 8)
	}
}

// Write queues PCM, blocking while more than the buffer size is waiting
func (o *OtoSink) Write(data []byte) (int, error) {
	for {
		o.mu.Lock()
		if o.closed {
			o.mu.Unlock()
			return 0, io.ErrClosedPipe
		}
		if o.buffer.Len() < o.maxBuffered {
			break
		}
		o.mu.Unlock()
		time.Sleep(writePollInterval)
	}
	defer o.mu.Unlock()

	n, err := o.buffer.Write(data)
	if err != nil {
		return n, err
	}
	if o.player != nil && !o.player.IsPlaying() && !o.paused {
		o.player.Play()
	}
	return n, nil
}

func (o *OtoSink) Play() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.paused = false
	o.cond.Broadcast()
	if o.player != nil && !o.player.IsPlaying() {
		o.player.Play()
	}
	return nil
}

func (o *OtoSink) Pause() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.paused = true
	if o.player != nil && o.player.IsPlaying() {
		o.player.Pause()
	}
	return nil
}

// Flush drops queued PCM that has not reached the device yet
func (o *OtoSink) Flush() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.buffer.Reset()
	if o.analyzer != nil {
		o.analyzer.Reset()
	}
	return nil
}

func (o *OtoSink) Stop() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.paused = false
	if o.player != nil {
		o.player.Pause()
	}
	o.buffer.Reset()
	return nil
}

// Release closes the oto player. The shared context stays open for the next sink.
func (o *OtoSink) Release() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.closed = true
	o.cond.Broadcast()

	if o.player == nil {
		return nil
	}
	err := o.player.Close()
	o.player = nil
	if err != nil {
		return fmt.Errorf("failed to close oto player: %w", err)
	}
	return nil
}

// SetVolume sets the playback volume, clamped to 0.0 - 1.0
func (o *OtoSink) SetVolume(v float64) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if v < 0 {
		v = 0
	}
	if v > 1 {
		v = 1
	}
	o.volume = v
}

func (o *OtoSink) Volume() float64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.volume
}

var (
	_ Sink      = (*OtoSink)(nil)
	_ io.Reader = (*OtoSink)(nil)
)
