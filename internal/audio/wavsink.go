package audio

import (
	"fmt"
	"os"
	"sync"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

const wavPCMFormat = 1

// WavSink renders the decimated stream into a 16-bit PCM WAV file instead of a device.
type WavSink struct {
	path string

	mu      sync.Mutex
	file    *os.File
	enc     *wav.Encoder
	buf     *audio.IntBuffer
	frames  int64
	playing bool
}

func NewWavSink(path string) *WavSink {
	return &WavSink{path: path}
}

func (w *WavSink) Open(format Format, bufferSize int) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.file != nil {
		return fmt.Errorf("wav sink %s is already open", w.path)
	}
	f, err := os.Create(w.path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", w.path, err)
	}
	w.file = f
	w.enc = wav.NewEncoder(f, format.SampleRate, 16, format.Channels, wavPCMFormat)
	w.buf = &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: format.Channels, SampleRate: format.SampleRate},
		SourceBitDepth: 16,
	}
	w.frames = 0
	return nil
}

func (w *WavSink) Play() error {
	w.mu.Lock()
	w.playing = true
	w.mu.Unlock()
	return nil
}

func (w *WavSink) Pause() error {
	w.mu.Lock()
	w.playing = false
	w.mu.Unlock()
	return nil
}

func (w *WavSink) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.enc == nil {
		return 0, fmt.Errorf("wav sink %s is not open", w.path)
	}

	samples := len(p) / bytesPerSample
	if cap(w.buf.Data) < samples {
		w.buf.Data = make([]int, samples)
	}
	w.buf.Data = w.buf.Data[:samples]
	for i := range w.buf.Data {
		w.buf.Data[i] = int(int16(p[2*i]) | int16(p[2*i+1])<<8)
	}
	if err := w.enc.Write(w.buf); err != nil {
		return 0, fmt.Errorf("failed to encode wav: %w", err)
	}
	w.frames += int64(samples / w.buf.Format.NumChannels)
	return samples * bytesPerSample, nil
}

// Flush is a no-op: written audio cannot be taken back out of the file
func (w *WavSink) Flush() error { return nil }

func (w *WavSink) Stop() error { return w.Pause() }

// Release finalizes the WAV header and closes the file
func (w *WavSink) Release() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.file == nil {
		return nil
	}
	encErr := w.enc.Close()
	fileErr := w.file.Close()
	w.enc = nil
	w.file = nil
	if encErr != nil {
		return fmt.Errorf("failed to finalize wav: %w", encErr)
	}
	return fileErr
}

// Frames returns how many frames have been written since Open
func (w *WavSink) Frames() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.frames
}

var _ Sink = (*WavSink)(nil)
