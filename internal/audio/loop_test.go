package audio

import (
	"errors"
	"strconv"
	"testing"
)

type commentSource struct {
	total    int64
	comments []string
	err      error
}

func (c commentSource) TotalPCM(link int) (int64, error) { return c.total, c.err }

func (c commentSource) Comments(link int) ([]string, error) { return c.comments, nil }

func TestParseLoop(t *testing.T) {
	tests := []struct {
		name      string
		comments  []string
		wantStart int64
		wantLen   int64
		wantEnd   int64
	}{
		{
			name:      "no tags",
			comments:  []string{"TITLE=Field", "ARTIST=Someone"},
			wantStart: 0,
			wantLen:   Unbounded,
			wantEnd:   Unbounded,
		},
		{
			name:      "both tags",
			comments:  []string{"LOOPSTART=1000", "LOOPLENGTH=4000"},
			wantStart: 1000,
			wantLen:   4000,
			wantEnd:   5000,
		},
		{
			name:      "whitespace is stripped",
			comments:  []string{" LOOP START = 12 ", "LOOPLENGTH=\t30\n"},
			wantStart: 12,
			wantLen:   30,
			wantEnd:   42,
		},
		{
			name:      "last tag wins",
			comments:  []string{"LOOPSTART=1", "LOOPLENGTH=2", "LOOPSTART=10", "LOOPLENGTH=20"},
			wantStart: 10,
			wantLen:   20,
			wantEnd:   30,
		},
		{
			name:      "zero start leaves end unbounded",
			comments:  []string{"LOOPSTART=0", "LOOPLENGTH=500"},
			wantStart: 0,
			wantLen:   500,
			wantEnd:   Unbounded,
		},
		{
			name:      "start without length",
			comments:  []string{"LOOPSTART=100"},
			wantStart: 100,
			wantLen:   Unbounded,
			wantEnd:   Unbounded,
		},
		{
			name:      "zero length",
			comments:  []string{"LOOPSTART=100", "LOOPLENGTH=0"},
			wantStart: 100,
			wantLen:   0,
			wantEnd:   Unbounded,
		},
		{
			name:      "prefix match is case sensitive",
			comments:  []string{"loopstart=100", "LoopLength=100"},
			wantStart: 0,
			wantLen:   Unbounded,
			wantEnd:   Unbounded,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			meta, err := ParseLoop(commentSource{total: 88200, comments: tt.comments})
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if meta.Total != 88200 {
				t.Errorf("Expected total 88200, got %d", meta.Total)
			}
			if meta.Start != tt.wantStart {
				t.Errorf("Expected start %d, got %d", tt.wantStart, meta.Start)
			}
			if meta.Length != tt.wantLen {
				t.Errorf("Expected length %d, got %d", tt.wantLen, meta.Length)
			}
			if meta.End != tt.wantEnd {
				t.Errorf("Expected end %d, got %d", tt.wantEnd, meta.End)
			}
		})
	}
}

func TestParseLoopMalformed(t *testing.T) {
	for _, c := range []string{"LOOPSTART=abc", "LOOPLENGTH=12x", "LOOPSTART="} {
		t.Run(c, func(t *testing.T) {
			_, err := ParseLoop(commentSource{comments: []string{c}})
			if !errors.Is(err, ErrMetadataParse) {
				t.Fatalf("Expected ErrMetadataParse, got %v", err)
			}
			var perr *MetadataParseError
			if !errors.As(err, &perr) {
				t.Fatalf("Expected *MetadataParseError, got %T", err)
			}
			var numErr *strconv.NumError
			if !errors.As(err, &numErr) {
				t.Errorf("Expected the strconv error to be wrapped, got %v", err)
			}
		})
	}
}

func TestParseLoopSourceError(t *testing.T) {
	boom := errors.New("boom")
	_, err := ParseLoop(commentSource{err: boom})
	if !errors.Is(err, boom) {
		t.Errorf("Expected wrapped source error, got %v", err)
	}
}

func TestLoopMetadataScale(t *testing.T) {
	meta := LoopMetadata{Total: 10000, Start: 500, Length: 2000, End: 2500}
	scaled := meta.Scale(4)
	if scaled.Total != 40000 || scaled.Start != 2000 || scaled.Length != 8000 || scaled.End != 10000 {
		t.Errorf("Unexpected scaled bounds: %+v", scaled)
	}
	if !scaled.HasLoop() {
		t.Error("Expected scaled metadata to keep its loop")
	}

	open := LoopMetadata{Total: 100, Start: 0, Length: Unbounded, End: Unbounded}.Scale(2)
	if open.End != Unbounded || open.Length != Unbounded {
		t.Errorf("Expected sentinels to survive scaling, got %+v", open)
	}
	if open.HasLoop() {
		t.Error("Expected no loop")
	}
}
