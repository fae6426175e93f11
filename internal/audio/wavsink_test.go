package audio

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/go-audio/wav"
	"github.com/rs/zerolog"
)

func TestWavSinkWritesPCM(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.wav")
	w := NewWavSink(path)

	if _, err := w.Write([]byte{0, 0}); err == nil {
		t.Error("Expected error writing before open")
	}

	if err := w.Open(Format{SampleRate: 22050, Channels: 2}, 4096); err != nil {
		t.Fatalf("Failed to open: %v", err)
	}
	if err := w.Open(Format{SampleRate: 22050, Channels: 2}, 4096); err == nil {
		t.Error("Expected error opening twice")
	}

	// 100 stereo frames counting up from -100
	pcm := make([]byte, 100*2*bytesPerSample)
	for i := 0; i < 200; i++ {
		v := int16(i - 100)
		pcm[2*i] = byte(v)
		pcm[2*i+1] = byte(v >> 8)
	}
	n, err := w.Write(pcm)
	if err != nil || n != len(pcm) {
		t.Fatalf("Expected %d bytes written, got %d (%v)", len(pcm), n, err)
	}
	if w.Frames() != 100 {
		t.Errorf("Expected 100 frames, got %d", w.Frames())
	}

	if err := w.Release(); err != nil {
		t.Fatalf("Failed to release: %v", err)
	}
	if err := w.Release(); err != nil {
		t.Errorf("Expected second release to be a no-op, got %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		t.Fatal("Expected a valid wav file")
	}
	if dec.SampleRate != 22050 || dec.NumChans != 2 || dec.BitDepth != 16 {
		t.Errorf("Expected 22050 Hz stereo 16-bit, got %d Hz %d ch %d-bit", dec.SampleRate, dec.NumChans, dec.BitDepth)
	}

	buf, err := dec.FullPCMBuffer()
	if err != nil {
		t.Fatalf("Failed to decode: %v", err)
	}
	if len(buf.Data) != 200 {
		t.Fatalf("Expected 200 samples, got %d", len(buf.Data))
	}
	for i, v := range buf.Data {
		if v != i-100 {
			t.Fatalf("Sample %d: expected %d, got %d", i, i-100, v)
		}
	}
}

func TestWavSinkFromEngine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "loop.wav")
	stream := newFakeStream(400)
	stream.left = 4000
	rec := newRecorder()

	e := NewEngine(stream, NewWavSink(path), EngineConfig{
		Factor:     2,
		BufferSize: 400,
		Bounds:     unbounded(2000),
		Format:     stream.Format(),
	}, rec, zerolog.Nop())
	if err := e.Start(); err != nil {
		t.Fatal(err)
	}
	rec.waitComplete(t)

	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	// 1000 stereo frames in, every second frame kept
	dec := wav.NewDecoder(f)
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		t.Fatalf("Failed to decode: %v", err)
	}
	if dec.SampleRate != 22050 {
		t.Errorf("Expected decimated rate 22050, got %d", dec.SampleRate)
	}
	if len(buf.Data) != 1000 {
		t.Errorf("Expected 500 frames, got %d samples", len(buf.Data))
	}
}
