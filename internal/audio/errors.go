package audio

import (
	"errors"
	"fmt"
)

var (
	// ErrMetadataParse matches every *MetadataParseError
	ErrMetadataParse = errors.New("malformed loop metadata")

	// ErrInvalidSeekTarget is returned when a seek lands outside the playable region.
	// It is never reported to the listener.
	ErrInvalidSeekTarget = errors.New("seek target out of range")

	// ErrNotActive is returned by engine controls that need a running worker
	ErrNotActive = errors.New("engine is not active")

	// ErrEngineUsed is returned when Start is called on an engine that already ran
	ErrEngineUsed = errors.New("engine already started")

	// ErrNoTrack is returned by Player controls before a file has been selected
	ErrNoTrack = errors.New("no track selected")

	// ErrSinkRate is returned when the shared audio device runs at a different rate
	ErrSinkRate = errors.New("audio device already opened at a different sample rate")
)

// MetadataParseError describes a loop comment whose value is not a base-10 integer.
type MetadataParseError struct {
	Field string
	Value string
	Err   error
}

func (e *MetadataParseError) Error() string {
	return fmt.Sprintf("invalid %s value %q: %v", e.Field, e.Value, e.Err)
}

func (e *MetadataParseError) Unwrap() error { return e.Err }

func (e *MetadataParseError) Is(target error) bool { return target == ErrMetadataParse }

// DecodeError wraps a failure returned by the decoder while streaming.
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("vorbis error: %v", e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// OverflowError reports a decoder that returned more bytes than it was given room for.
type OverflowError struct {
	N        int
	Capacity int
}

func (e *OverflowError) Error() string {
	return fmt.Sprintf("buffering overflow: decoder returned %d bytes into a %d byte buffer", e.N, e.Capacity)
}
