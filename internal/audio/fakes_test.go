package audio

import (
	"io"
	"sync"
	"testing"
	"time"
)

// fakeStream serves fixed-size chunks of PCM and records every seek
type fakeStream struct {
	mu       sync.Mutex
	format   Format
	total    int64
	comments []string
	chunk    int
	left     int64 // bytes until EOF, negative for an endless stream
	pos      int64
	reads    int
	seeks    []int64
	closed   bool

	failAfter int // return readErr once reads exceeds failAfter
	readErr   error
	overflow  bool
}

func newFakeStream(chunk int) *fakeStream {
	return &fakeStream{
		format: Format{SampleRate: 44100, Channels: 2},
		chunk:  chunk,
		left:   -1,
	}
}

func (s *fakeStream) Format() Format { return s.format }

func (s *fakeStream) TotalPCM(link int) (int64, error) { return s.total, nil }

func (s *fakeStream) Comments(link int) ([]string, error) { return s.comments, nil }

func (s *fakeStream) Read(p []byte) (int, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.reads++
	if s.readErr != nil && s.reads > s.failAfter {
		return 0, 0, s.readErr
	}
	if s.overflow {
		return len(p) + 1, 0, nil
	}

	n := min(s.chunk, len(p))
	if s.left >= 0 {
		if s.left == 0 {
			return 0, 0, io.EOF
		}
		n = int(min(int64(n), s.left))
		s.left -= int64(n)
	}
	for i := 0; i < n; i++ {
		p[i] = byte(i)
	}
	s.pos += int64(n / s.format.FrameSize())
	return n, 0, nil
}

func (s *fakeStream) SeekPCM(frame int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seeks = append(s.seeks, frame)
	s.pos = frame
	return nil
}

func (s *fakeStream) SeekRaw(offset int64) error { return s.SeekPCM(0) }

func (s *fakeStream) TellPCM() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pos
}

func (s *fakeStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *fakeStream) Reads() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reads
}

func (s *fakeStream) Seeks() []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int64(nil), s.seeks...)
}

func (s *fakeStream) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// sinkStats is a point-in-time copy of what a fakeSink has seen
type sinkStats struct {
	format   Format
	bufSize  int
	written  int
	writes   int
	playing  bool
	pauses   int
	flushes  int
	released bool
	volume   float64
}

// fakeSink counts bytes and records lifecycle calls
type fakeSink struct {
	mu       sync.Mutex
	format   Format
	bufSize  int
	written  int
	writes   int
	playing  bool
	pauses   int
	flushes  int
	released bool
	volume   float64
	openErr  error
}

func (s *fakeSink) Open(format Format, bufferSize int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.openErr != nil {
		return s.openErr
	}
	s.format = format
	s.bufSize = bufferSize
	return nil
}

func (s *fakeSink) Play() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.playing = true
	return nil
}

func (s *fakeSink) Pause() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.playing = false
	s.pauses++
	return nil
}

func (s *fakeSink) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.written += len(p)
	s.writes++
	return len(p), nil
}

func (s *fakeSink) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flushes++
	return nil
}

func (s *fakeSink) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.playing = false
	return nil
}

func (s *fakeSink) Release() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.released = true
	return nil
}

func (s *fakeSink) SetVolume(v float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.volume = v
}

func (s *fakeSink) snapshot() sinkStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return sinkStats{
		format:   s.format,
		bufSize:  s.bufSize,
		written:  s.written,
		writes:   s.writes,
		playing:  s.playing,
		pauses:   s.pauses,
		flushes:  s.flushes,
		released: s.released,
		volume:   s.volume,
	}
}

// recorder is a Listener that keeps every event in order
type recorder struct {
	mu       sync.Mutex
	events   []string
	progress []int64
	loops    []int64
	errs     []error
	tracks   []TrackInfo
	complete chan struct{}
	onLoop   func(reset int64)
}

func newRecorder() *recorder {
	return &recorder{complete: make(chan struct{}, 16)}
}

func (r *recorder) add(ev string) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

func (r *recorder) OnTrackLoaded(info TrackInfo) {
	r.mu.Lock()
	r.tracks = append(r.tracks, info)
	r.mu.Unlock()
	r.add("trackLoaded")
}

func (r *recorder) OnPlayStateChanged() { r.add("play") }

func (r *recorder) OnPauseStateChanged() { r.add("pause") }

func (r *recorder) OnProgress(position int64) {
	r.mu.Lock()
	r.progress = append(r.progress, position)
	r.mu.Unlock()
}

func (r *recorder) OnLoop(resetPosition int64) {
	r.mu.Lock()
	r.loops = append(r.loops, resetPosition)
	hook := r.onLoop
	r.mu.Unlock()
	r.add("loop")
	if hook != nil {
		hook(resetPosition)
	}
}

func (r *recorder) OnComplete() {
	r.add("complete")
	r.complete <- struct{}{}
}

func (r *recorder) OnError(err error) {
	r.mu.Lock()
	r.errs = append(r.errs, err)
	r.mu.Unlock()
	r.add("error")
}

func (r *recorder) count(ev string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e == ev {
			n++
		}
	}
	return n
}

func (r *recorder) snapshotEvents() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

func (r *recorder) waitComplete(t *testing.T) {
	t.Helper()
	select {
	case <-r.complete:
	case <-time.After(2 * time.Second):
		t.Fatal("Timed out waiting for OnComplete")
	}
}

// eventually polls cond until it holds or the deadline passes
func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("Timed out waiting for %s", what)
}
