package audio

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode"
)

const (
	loopStartTag  = "LOOPSTART="
	loopLengthTag = "LOOPLENGTH="

	// Unbounded marks a loop bound that was not set; playback runs to end of stream
	Unbounded int64 = math.MaxInt32

	// wholeStream asks the decoder for values covering every logical bitstream
	wholeStream = -1
)

// LoopSource is the part of a Stream the loop parser needs.
type LoopSource interface {
	TotalPCM(link int) (int64, error)
	Comments(link int) ([]string, error)
}

// LoopMetadata holds the loop region declared by a stream, in native PCM frames.
type LoopMetadata struct {
	Total  int64 `json:"total"`
	Start  int64 `json:"start"`
	Length int64 `json:"length"`
	End    int64 `json:"end"`
}

// HasLoop reports whether the stream declares a usable loop region
func (m LoopMetadata) HasLoop() bool {
	return m.End != Unbounded
}

// Scale converts the bounds to expanded units. Unbounded values stay unbounded.
func (m LoopMetadata) Scale(factor int) LoopMetadata {
	return LoopMetadata{
		Total:  scaleBound(m.Total, factor),
		Start:  scaleBound(m.Start, factor),
		Length: scaleBound(m.Length, factor),
		End:    scaleBound(m.End, factor),
	}
}

func scaleBound(v int64, factor int) int64 {
	if v == Unbounded {
		return Unbounded
	}
	return v * int64(factor)
}

// ParseLoop reads the total length and the LOOPSTART / LOOPLENGTH comments of src.
//
// Whitespace is stripped from each comment before the case-sensitive prefix match.
// When a tag appears more than once the last one wins. A tag whose value is not an
// integer fails the whole parse; a missing tag keeps its default.
func ParseLoop(src LoopSource) (LoopMetadata, error) {
	meta := LoopMetadata{
		Start:  0,
		Length: Unbounded,
		End:    Unbounded,
	}

	total, err := src.TotalPCM(wholeStream)
	if err != nil {
		return LoopMetadata{}, fmt.Errorf("failed to read stream length: %w", err)
	}
	meta.Total = total

	comments, err := src.Comments(wholeStream)
	if err != nil {
		return LoopMetadata{}, fmt.Errorf("failed to read comments: %w", err)
	}

	lengthSet := false
	for _, raw := range comments {
		comment := stripSpaces(raw)
		switch {
		case strings.HasPrefix(comment, loopStartTag):
			v, err := parseLoopValue("LOOPSTART", comment[len(loopStartTag):])
			if err != nil {
				return LoopMetadata{}, err
			}
			meta.Start = v
		case strings.HasPrefix(comment, loopLengthTag):
			v, err := parseLoopValue("LOOPLENGTH", comment[len(loopLengthTag):])
			if err != nil {
				return LoopMetadata{}, err
			}
			meta.Length = v
			lengthSet = true
		}
	}

	if lengthSet && meta.Start > 0 && meta.Length > 0 {
		meta.End = meta.Start + meta.Length
	}

	return meta, nil
}

func parseLoopValue(field, value string) (int64, error) {
	v, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, &MetadataParseError{Field: field, Value: value, Err: err}
	}
	return v, nil
}

func stripSpaces(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
}
