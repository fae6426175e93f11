package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/austinkregel/falplayer/internal/audio"
	"github.com/austinkregel/falplayer/internal/ipc"
)

func TestFormatPosition(t *testing.T) {
	tests := []struct {
		name       string
		pos        int64
		factor     int
		sampleRate int
		want       string
	}{
		{"zero", 0, 1, 44100, "0:00.000"},
		{"half second", 22050, 1, 44100, "0:00.500"},
		{"expanded units", 44100 * 4, 4, 44100, "0:01.000"},
		{"minutes", 44100 * 65, 1, 44100, "1:05.000"},
		{"unbounded", audio.Unbounded, 1, 44100, "-"},
		{"negative", -1, 1, 44100, "-"},
		{"no rate", 100, 1, 0, "-"},
		{"no factor", 100, 0, 44100, "-"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := formatPosition(tt.pos, tt.factor, tt.sampleRate)
			if got != tt.want {
				t.Errorf("Expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestRenderStatus(t *testing.T) {
	var buf bytes.Buffer
	renderStatus(&buf, audio.Status{
		State:      audio.StatePlaying,
		Path:       "/music/field.ogg",
		Title:      "Field Theme",
		Position:   44100 * 2,
		Total:      44100 * 2 * 60,
		LoopStart:  44100 * 2,
		LoopEnd:    44100 * 2 * 50,
		HasLoop:    true,
		Loops:      3,
		Volume:     0.5,
		Factor:     2,
		SampleRate: 44100,
		Channels:   2,
	})

	out := buf.String()
	for _, want := range []string{"Field Theme", "0:01.000", "1:00.000", "22050 Hz", "50%"} {
		if !strings.Contains(out, want) {
			t.Errorf("Expected output to contain %q, got:\n%s", want, out)
		}
	}
}

type fakeController struct {
	calls  []string
	seekTo int64
	volume float64
	status audio.Status
	err    error
}

func (f *fakeController) SelectFile(path string) error {
	f.calls = append(f.calls, "select "+path)
	return f.err
}

func (f *fakeController) Play() error {
	f.calls = append(f.calls, "play")
	return nil
}

func (f *fakeController) Pause() error {
	f.calls = append(f.calls, "pause")
	return nil
}

func (f *fakeController) Stop() error {
	f.calls = append(f.calls, "stop")
	return nil
}

func (f *fakeController) Seek(pos int64) error {
	f.calls = append(f.calls, "seek")
	f.seekTo = pos
	return nil
}

func (f *fakeController) SetVolume(level float64) error {
	f.calls = append(f.calls, "volume")
	f.volume = level
	return nil
}

func (f *fakeController) Status() audio.Status { return f.status }

func (f *fakeController) Position() int64 { return f.status.Position }

type fakeHistory []string

func (h fakeHistory) Entries() []string { return h }

var _ ipc.Controller = (*fakeController)(nil)

func TestConsoleRun(t *testing.T) {
	ctrl := &fakeController{status: audio.Status{SampleRate: 44100, Factor: 2}}
	var out bytes.Buffer
	c := &console{ctrl: ctrl, history: fakeHistory{"/a.ogg", "/b.ogg"}, out: &out}

	for _, line := range []string{"open /music/my song.ogg", "pause", "play", "stop", "", "   "} {
		if err := c.run(line); err != nil {
			t.Fatalf("run(%q) failed: %v", line, err)
		}
	}
	want := []string{"select /music/my song.ogg", "play", "pause", "play", "stop"}
	if strings.Join(ctrl.calls, ",") != strings.Join(want, ",") {
		t.Errorf("Expected calls %v, got %v", want, ctrl.calls)
	}

	if err := c.run("seek 1.5"); err != nil {
		t.Fatalf("seek failed: %v", err)
	}
	if ctrl.seekTo != 66150*2 {
		t.Errorf("Expected seek to %d, got %d", 66150*2, ctrl.seekTo)
	}

	if err := c.run("vol 25"); err != nil {
		t.Fatalf("vol failed: %v", err)
	}
	if ctrl.volume != 0.25 {
		t.Errorf("Expected volume 0.25, got %v", ctrl.volume)
	}

	out.Reset()
	if err := c.run("history"); err != nil {
		t.Fatalf("history failed: %v", err)
	}
	if !strings.Contains(out.String(), "/b.ogg") {
		t.Errorf("Expected history output, got %q", out.String())
	}

	if err := c.run("quit"); !errors.Is(err, errQuit) {
		t.Errorf("Expected errQuit, got %v", err)
	}
}

func TestConsoleRunErrors(t *testing.T) {
	tests := []struct {
		name string
		line string
	}{
		{"open without path", "open"},
		{"seek without arg", "seek"},
		{"seek negative", "seek -1"},
		{"seek garbage", "seek abc"},
		{"volume out of range", "vol 101"},
		{"volume garbage", "vol loud"},
		{"unknown command", "dance"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &console{ctrl: &fakeController{status: audio.Status{SampleRate: 44100, Factor: 1}}, out: &bytes.Buffer{}}
			if err := c.run(tt.line); err == nil {
				t.Errorf("Expected error for %q", tt.line)
			}
		})
	}
}

func TestConsoleSeekWithoutTrack(t *testing.T) {
	c := &console{ctrl: &fakeController{}, out: &bytes.Buffer{}}
	if err := c.run("seek 1"); !errors.Is(err, audio.ErrNoTrack) {
		t.Errorf("Expected ErrNoTrack, got %v", err)
	}
}

func TestConsoleOpenFailure(t *testing.T) {
	ctrl := &fakeController{err: errors.New("boom")}
	c := &console{ctrl: ctrl, out: &bytes.Buffer{}}

	if err := c.run("open /missing.ogg"); err == nil {
		t.Fatal("Expected open to fail")
	}
	if len(ctrl.calls) != 1 {
		t.Errorf("Expected play not to be called after a failed select, got %v", ctrl.calls)
	}
}

func TestListOggFiles(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"a.ogg", "B.OGG", "c.mp3", "notes.txt"} {
		if err := os.WriteFile(filepath.Join(dir, name), nil, 0644); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.Mkdir(filepath.Join(dir, "sub.ogg"), 0755); err != nil {
		t.Fatal(err)
	}

	got := listOggFiles(dir)
	if len(got) != 2 {
		t.Fatalf("Expected 2 files, got %v", got)
	}
	if got[0] != filepath.Join(dir, "B.OGG") || got[1] != filepath.Join(dir, "a.ogg") {
		t.Errorf("Unexpected listing: %v", got)
	}

	if got := listOggFiles(filepath.Join(dir, "missing")); got != nil {
		t.Errorf("Expected nil for a missing directory, got %v", got)
	}
}

func TestLevelBar(t *testing.T) {
	got := levelBar([]int{0, 255, 300, -5})
	want := " █" + "█" + " "
	if got != want {
		t.Errorf("Expected %q, got %q", want, got)
	}
}

func TestFormatPush(t *testing.T) {
	data, _ := json.Marshal(ipc.PositionEvent{Position: 1234})
	line := formatPush(ipc.PushMessage{Type: ipc.PushLoop, Data: data})
	if !strings.Contains(line, "loop") || !strings.HasSuffix(line, "1234") {
		t.Errorf("Unexpected loop line %q", line)
	}

	line = formatPush(ipc.PushMessage{Type: ipc.PushComplete})
	if !strings.Contains(line, "complete") {
		t.Errorf("Unexpected complete line %q", line)
	}

	data, _ = json.Marshal(ipc.ErrorEvent{Message: "decode failed"})
	line = formatPush(ipc.PushMessage{Type: ipc.PushError, Data: data})
	if !strings.HasSuffix(line, "decode failed") {
		t.Errorf("Unexpected error line %q", line)
	}
}
