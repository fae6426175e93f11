package audio

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/jfreymuth/oggvorbis"
)

// Stream is a seekable source of interleaved s16le PCM with Vorbis-style comments.
// Positions are in PCM frames per channel.
type Stream interface {
	LoopSource
	Format() Format

	// Read decodes into p and reports the logical bitstream the data came from
	Read(p []byte) (n int, link int, err error)
	SeekPCM(frame int64) error
	SeekRaw(offset int64) error
	TellPCM() int64
	Close() error
}

// Opener opens the stream for a file path
type Opener func(path string) (Stream, error)

// vorbisReader is the subset of *oggvorbis.Reader the stream uses
type vorbisReader interface {
	SampleRate() int
	Channels() int
	Length() int64
	Position() int64
	SetPosition(pos int64) error
	Read(p []float32) (int, error)
}

// VorbisStream decodes an Ogg Vorbis file through github.com/jfreymuth/oggvorbis.
type VorbisStream struct {
	file     io.Closer
	dec      vorbisReader
	comments []string
	size     int64
	floats   []float32
}

// OpenVorbis opens path and reads its headers. It is the production Opener.
func OpenVorbis(path string) (Stream, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to stat %s: %w", path, err)
	}

	dec, err := oggvorbis.NewReader(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to read vorbis headers: %w", err)
	}

	return &VorbisStream{
		file:     f,
		dec:      dec,
		comments: dec.CommentHeader().Comments,
		size:     info.Size(),
	}, nil
}

func (s *VorbisStream) Format() Format {
	return Format{SampleRate: s.dec.SampleRate(), Channels: s.dec.Channels()}
}

// TotalPCM returns the stream length in frames. Chained streams are reported as one
// link, so every link value describes the whole file.
func (s *VorbisStream) TotalPCM(link int) (int64, error) {
	return s.dec.Length(), nil
}

// Comments returns the raw "KEY=value" user comments of the first header
func (s *VorbisStream) Comments(link int) ([]string, error) {
	return s.comments, nil
}

// Read decodes up to len(p) bytes of s16le PCM. Only whole frames are produced.
func (s *VorbisStream) Read(p []byte) (int, int, error) {
	channels := s.dec.Channels()
	values := len(p) / bytesPerSample
	values -= values % channels
	if values == 0 {
		return 0, 0, nil
	}

	if cap(s.floats) < values {
		s.floats = make([]float32, values)
	}
	buf := s.floats[:values]

	n, err := s.dec.Read(buf)
	for i := 0; i < n; i++ {
		v := floatToInt16(buf[i])
		p[2*i] = byte(v)
		p[2*i+1] = byte(v >> 8)
	}
	if errors.Is(err, io.EOF) && n > 0 {
		err = nil
	}
	return n * bytesPerSample, 0, err
}

func (s *VorbisStream) SeekPCM(frame int64) error {
	if err := s.dec.SetPosition(frame); err != nil {
		return fmt.Errorf("failed to seek to frame %d: %w", frame, err)
	}
	return nil
}

// SeekRaw maps a byte offset in the file onto the PCM timeline proportionally
func (s *VorbisStream) SeekRaw(offset int64) error {
	if s.size <= 0 {
		return s.SeekPCM(0)
	}
	if offset < 0 {
		offset = 0
	}
	if offset > s.size {
		offset = s.size
	}
	frame := int64(float64(s.dec.Length()) * float64(offset) / float64(s.size))
	return s.SeekPCM(frame)
}

func (s *VorbisStream) TellPCM() int64 {
	return s.dec.Position()
}

func (s *VorbisStream) Close() error {
	if s.file == nil {
		return nil
	}
	return s.file.Close()
}

func floatToInt16(x float32) int16 {
	if x > 1 {
		x = 1
	} else if x < -1 {
		x = -1
	}
	return int16(x * 32767.0)
}

// Title returns the TITLE comment, or the file name without extension when the
// stream has none.
func Title(comments []string, path string) string {
	for _, c := range comments {
		key, value, ok := strings.Cut(c, "=")
		if ok && strings.EqualFold(key, "TITLE") && strings.TrimSpace(value) != "" {
			return strings.TrimSpace(value)
		}
	}
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
