package scanner

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/austinkregel/falplayer/internal/audio"
)

// tagStream serves only headers; the scanner never decodes audio
type tagStream struct {
	total    int64
	comments []string
}

func (s *tagStream) Format() audio.Format { return audio.Format{SampleRate: 44100, Channels: 2} }
func (s *tagStream) TotalPCM(link int) (int64, error) { return s.total, nil }
func (s *tagStream) Comments(link int) ([]string, error) { return s.comments, nil }
func (s *tagStream) Read(p []byte) (int, int, error) { return 0, 0, errors.New("not implemented") }
func (s *tagStream) SeekPCM(frame int64) error { return nil }
func (s *tagStream) SeekRaw(offset int64) error { return nil }
func (s *tagStream) TellPCM() int64 { return 0 }
func (s *tagStream) Close() error { return nil }

// fileTagOpener reads the comments straight from the fake file's lines
func fileTagOpener(path string) (audio.Stream, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var comments []string
	if len(data) > 0 {
		comments = strings.Split(strings.TrimSpace(string(data)), "\n")
	}
	return &tagStream{total: 441000, comments: comments}, nil
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestScanPaths(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "b.ogg"), "TITLE=Town\nLOOPSTART=1000\nLOOPLENGTH=4000")
	writeFile(t, filepath.Join(dir, "a.OGG"), "")
	writeFile(t, filepath.Join(dir, "sub", "c.oga"), "LOOPSTART=oops")
	writeFile(t, filepath.Join(dir, "notes.txt"), "LOOPSTART=1")
	writeFile(t, filepath.Join(dir, ".hidden", "d.ogg"), "")

	s := NewScanner(fileTagOpener, zerolog.Nop())
	results := s.ScanPaths(context.Background(), []string{dir, "", dir})

	if len(results) != 1 {
		t.Fatalf("Expected 1 result, got %d", len(results))
	}
	r := results[0]
	if r.Error != "" {
		t.Fatalf("Unexpected error: %s", r.Error)
	}
	if r.TotalFiles != 3 {
		t.Fatalf("Expected 3 files, got %d: %+v", r.TotalFiles, r.Files)
	}

	a, b, c := r.Files[0], r.Files[1], r.Files[2]
	if a.Name != "a.OGG" || b.Name != "b.ogg" || c.Name != "c.oga" {
		t.Errorf("Expected files sorted by path, got %s %s %s", a.Name, b.Name, c.Name)
	}

	if a.Loop == nil || a.Loop.HasLoop || a.Loop.Title != "a" {
		t.Errorf("Expected untagged file with file name title, got %+v", a.Loop)
	}
	if b.Loop == nil || !b.Loop.HasLoop || b.Loop.LoopStart != 1000 || b.Loop.LoopEnd != 5000 || b.Loop.Title != "Town" {
		t.Errorf("Expected loop 1000-5000 titled Town, got %+v", b.Loop)
	}
	if c.Loop != nil || c.Error == "" {
		t.Errorf("Expected malformed tags to be reported, got %+v", c)
	}

	looping := Looping(results)
	if len(looping) != 1 || looping[0].Name != "b.ogg" {
		t.Errorf("Expected only b.ogg to loop, got %+v", looping)
	}
	if got := Files(results); len(got) != 3 {
		t.Errorf("Expected 3 paths, got %v", got)
	}
}

func TestScanPathsWithoutOpener(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.ogg"), "LOOPSTART=5")

	results := NewScanner(nil, zerolog.Nop()).ScanPaths(context.Background(), []string{dir})
	if results[0].TotalFiles != 1 || results[0].Files[0].Loop != nil {
		t.Errorf("Expected a bare listing, got %+v", results[0].Files)
	}
}

func TestScanPathsErrors(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "a.ogg")
	writeFile(t, file, "")

	s := NewScanner(nil, zerolog.Nop())
	results := s.ScanPaths(context.Background(), []string{filepath.Join(dir, "missing"), file})

	if len(results) != 2 {
		t.Fatalf("Expected 2 results, got %d", len(results))
	}
	if results[0].Error == "" {
		t.Error("Expected error for a missing directory")
	}
	if results[1].Error != "path is not a directory" {
		t.Errorf("Expected not-a-directory error, got %q", results[1].Error)
	}
	if results[0].Files == nil {
		t.Error("Expected an empty, non-nil file list")
	}
}

func TestIsSupported(t *testing.T) {
	tests := []struct {
		path string
		want bool
	}{
		{"/m/a.ogg", true},
		{"/m/a.OGG", true},
		{"/m/a.oga", true},
		{"/m/a.mp3", false},
		{"/m/ogg", false},
	}

	for _, tt := range tests {
		if got := IsSupported(tt.path); got != tt.want {
			t.Errorf("IsSupported(%q): expected %v, got %v", tt.path, tt.want, got)
		}
	}
}

func TestWatch(t *testing.T) {
	dir := t.TempDir()
	s := NewScanner(nil, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changes := make(chan []string, 8)
	done := make(chan error, 1)
	go func() {
		done <- s.Watch(ctx, []string{dir}, func(paths []string) { changes <- paths })
	}()

	target := filepath.Join(dir, "new.ogg")
	deadline := time.After(5 * time.Second)
	tick := time.NewTicker(2 * watchDebounce)
	defer tick.Stop()

	// the watcher may not be registered yet, so keep touching the file
	for got := false; !got; {
		select {
		case paths := <-changes:
			for _, p := range paths {
				if p == target {
					got = true
				}
			}
		case <-tick.C:
			writeFile(t, filepath.Join(dir, "ignored.txt"), "x")
			writeFile(t, target, "x")
		case <-deadline:
			t.Fatal("Timed out waiting for a change notification")
		}
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Expected clean shutdown, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Watch did not return after cancel")
	}
}

func TestWatchNoDirectories(t *testing.T) {
	s := NewScanner(nil, zerolog.Nop())
	err := s.Watch(context.Background(), []string{filepath.Join(t.TempDir(), "missing")}, func([]string) {})
	if err == nil {
		t.Error("Expected error when nothing can be watched")
	}
}
