// Package scanner lists the Ogg Vorbis files of the configured song directories.
// It walks each directory, reads loop tags in a small worker pool and can watch the
// directories for changes.
package scanner

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"github.com/austinkregel/falplayer/internal/audio"
)

// SupportedExtensions are the file extensions the player can decode
var SupportedExtensions = map[string]bool{
	".ogg": true,
	".oga": true,
}

const numWorkers = 4

// LoopInfo is what the scanner learned from a file's headers. Positions are in
// native PCM frames.
type LoopInfo struct {
	Title     string `json:"title"`
	Total     int64  `json:"total"`
	LoopStart int64  `json:"loopStart"`
	LoopEnd   int64  `json:"loopEnd"`
	HasLoop   bool   `json:"hasLoop"`
}

// FileInfo represents one playable file
type FileInfo struct {
	Path       string    `json:"path"`
	Name       string    `json:"name"`
	Size       int64     `json:"size"`
	ModifiedAt int64     `json:"modifiedAt"` // Unix timestamp
	Loop       *LoopInfo `json:"loop,omitempty"`
	Error      string    `json:"error,omitempty"`
}

// ScanResult is the listing of one song directory
type ScanResult struct {
	LibraryPath string     `json:"libraryPath"`
	Files       []FileInfo `json:"files"`
	TotalFiles  int        `json:"totalFiles"`
	ScanTimeMs  int64      `json:"scanTimeMs"`
	Error       string     `json:"error,omitempty"`
}

// Scanner lists song directories. Without an opener only file names are reported.
type Scanner struct {
	opener audio.Opener
	logger zerolog.Logger

	mu        sync.Mutex
	isRunning bool
}

// NewScanner creates a scanner that reads loop tags through opener, which may be nil
func NewScanner(opener audio.Opener, logger zerolog.Logger) *Scanner {
	return &Scanner{
		opener: opener,
		logger: logger.With().Str("component", "scanner").Logger(),
	}
}

// IsRunning returns whether a scan is in progress
func (s *Scanner) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isRunning
}

// ScanPaths lists every path in order. Duplicate and empty paths are skipped.
func (s *Scanner) ScanPaths(ctx context.Context, paths []string) []ScanResult {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return []ScanResult{{Error: "scan already in progress"}}
	}
	s.isRunning = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.isRunning = false
		s.mu.Unlock()
	}()

	paths = lo.Uniq(lo.Compact(paths))
	results := make([]ScanResult, 0, len(paths))
	for _, path := range paths {
		if ctx.Err() != nil {
			break
		}
		result := s.scanPath(ctx, path)
		s.logger.Debug().
			Str("path", path).
			Int("files", result.TotalFiles).
			Int64("ms", result.ScanTimeMs).
			Msg("scanned directory")
		results = append(results, result)
	}
	return results
}

// scanPath lists a single song directory
func (s *Scanner) scanPath(ctx context.Context, libraryPath string) ScanResult {
	start := time.Now()
	result := ScanResult{
		LibraryPath: libraryPath,
		Files:       []FileInfo{},
	}

	info, err := os.Stat(libraryPath)
	if err != nil {
		result.Error = err.Error()
		return result
	}
	if !info.IsDir() {
		result.Error = "path is not a directory"
		return result
	}

	var files []FileInfo
	err = filepath.WalkDir(libraryPath, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil // skip entries we can't access
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		if d.IsDir() {
			if strings.HasPrefix(d.Name(), ".") && path != libraryPath {
				return filepath.SkipDir
			}
			return nil
		}
		if !IsSupported(path) {
			return nil
		}

		fileInfo, err := d.Info()
		if err != nil {
			return nil
		}
		files = append(files, FileInfo{
			Path:       path,
			Name:       d.Name(),
			Size:       fileInfo.Size(),
			ModifiedAt: fileInfo.ModTime().Unix(),
		})
		return nil
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		result.Error = err.Error()
	}

	if s.opener != nil {
		s.readTags(ctx, files)
	}

	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	if files != nil {
		result.Files = files
	}
	result.TotalFiles = len(result.Files)
	result.ScanTimeMs = time.Since(start).Milliseconds()
	return result
}

// readTags fills in the loop info of every file using a fixed pool of workers
func (s *Scanner) readTags(ctx context.Context, files []FileInfo) {
	jobs := make(chan int, len(files))
	for i := range files {
		jobs <- i
	}
	close(jobs)

	var wg sync.WaitGroup
	for w := 0; w < min(numWorkers, len(files)); w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				if ctx.Err() != nil {
					return
				}
				// each worker owns distinct indices
				loop, err := ReadLoopInfo(s.opener, files[i].Path)
				if err != nil {
					files[i].Error = err.Error()
					continue
				}
				files[i].Loop = loop
			}
		}()
	}
	wg.Wait()
}

// ReadLoopInfo opens path just long enough to read its title and loop tags
func ReadLoopInfo(opener audio.Opener, path string) (*LoopInfo, error) {
	stream, err := opener(path)
	if err != nil {
		return nil, err
	}
	defer stream.Close()

	loop, err := audio.ParseLoop(stream)
	if err != nil {
		return nil, err
	}
	comments, _ := stream.Comments(-1)

	return &LoopInfo{
		Title:     audio.Title(comments, path),
		Total:     loop.Total,
		LoopStart: loop.Start,
		LoopEnd:   lo.Ternary(loop.HasLoop(), loop.End, 0),
		HasLoop:   loop.HasLoop(),
	}, nil
}

// IsSupported reports whether path has a playable extension
func IsSupported(path string) bool {
	return SupportedExtensions[strings.ToLower(filepath.Ext(path))]
}

// Files flattens scan results into the list of playable paths
func Files(results []ScanResult) []string {
	return lo.FlatMap(results, func(r ScanResult, _ int) []string {
		return lo.Map(r.Files, func(f FileInfo, _ int) string { return f.Path })
	})
}

// Looping returns the files whose loop tags describe a loop region
func Looping(results []ScanResult) []FileInfo {
	all := lo.FlatMap(results, func(r ScanResult, _ int) []FileInfo { return r.Files })
	return lo.Filter(all, func(f FileInfo, _ int) bool { return f.Loop != nil && f.Loop.HasLoop })
}
