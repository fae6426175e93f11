// Package ipc handles inter-process communication between the daemon and clients.
// Messages are newline-delimited JSON over a unix socket.
package ipc

import (
	"encoding/json"
	"fmt"

	"github.com/samber/lo"
)

// CommandType represents the type of command
type CommandType string

const (
	CmdSelect CommandType = "select"
	CmdPlay   CommandType = "play"
	CmdPause  CommandType = "pause"
	CmdStop   CommandType = "stop"
	CmdSeek   CommandType = "seek"
	CmdVolume CommandType = "volume"
	CmdStatus CommandType = "status"

	CmdHistory CommandType = "history"
	CmdLibrary CommandType = "library"

	// Event streaming
	CmdSubscribe   CommandType = "subscribe"
	CmdUnsubscribe CommandType = "unsubscribe"
	CmdLevels      CommandType = "levels"
)

// Push message types, one per listener event plus analyzer levels
const (
	PushTrackLoaded = "trackLoaded"
	PushPlayState   = "playState"
	PushPauseState  = "pauseState"
	PushProgress    = "progress"
	PushLoop        = "loop"
	PushComplete    = "complete"
	PushError       = "error"
	PushLevels      = "levels"
)

// PushMessage represents a server-initiated message (no request needed)
type PushMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Request represents a client request
type Request struct {
	Cmd  CommandType     `json:"cmd"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Response represents a server response
type Response struct {
	Success bool            `json:"success"`
	Error   string          `json:"error,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// SelectRequest is the data for a select command. Play overrides the daemon's
// auto-play setting when present.
type SelectRequest struct {
	Path string `json:"path"`
	Play *bool  `json:"play,omitempty"`
}

// SeekRequest is the data for a seek command
type SeekRequest struct {
	Position int64 `json:"position"` // expanded units
}

// VolumeRequest is the data for a volume command
type VolumeRequest struct {
	Level float64 `json:"level"` // 0.0 - 1.0
}

// SubscribeRequest is the data for a subscribe command. Playback events are always
// pushed to subscribers; analyzer levels only on request.
type SubscribeRequest struct {
	Levels bool `json:"levels"`
}

// SubscribeResponse reports what the connection now receives
type SubscribeResponse struct {
	Events bool `json:"events"`
	Levels bool `json:"levels"`
}

// HistoryResponse is the response to a history command, oldest first
type HistoryResponse struct {
	Entries []string `json:"entries"`
}

// LevelsResponse contains the analyzer band levels
type LevelsResponse struct {
	// Bands are 0-255. []int because encoding/json base64-encodes []uint8.
	Bands []int `json:"bands"`
	// Position is the playback position, in expanded units, when the levels were read
	Position int64 `json:"position"`
	// Timestamp is Unix milliseconds
	Timestamp int64 `json:"timestamp"`
}

// StateEvent is the payload of playState and pauseState pushes
type StateEvent struct {
	State string `json:"state"`
}

// PositionEvent is the payload of progress and loop pushes
type PositionEvent struct {
	Position int64 `json:"position"`
}

// ErrorEvent is the payload of error pushes
type ErrorEvent struct {
	Message string `json:"message"`
}

// EncodeRequest encodes a request to JSON
func EncodeRequest(req *Request) ([]byte, error) {
	return json.Marshal(req)
}

// DecodeRequest decodes a request from JSON
func DecodeRequest(data []byte) (*Request, error) {
	var req Request
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, fmt.Errorf("failed to decode request: %w", err)
	}
	return &req, nil
}

// NewRequest builds a request, marshalling data when it is not nil
func NewRequest(cmd CommandType, data interface{}) (*Request, error) {
	raw, err := marshalData(data)
	if err != nil {
		return nil, err
	}
	return &Request{Cmd: cmd, Data: raw}, nil
}

// EncodeResponse encodes a response to JSON
func EncodeResponse(resp *Response) ([]byte, error) {
	return json.Marshal(resp)
}

// DecodeResponse decodes a response from JSON
func DecodeResponse(data []byte) (*Response, error) {
	var resp Response
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return &resp, nil
}

// NewSuccessResponse creates a successful response
func NewSuccessResponse(data interface{}) (*Response, error) {
	raw, err := marshalData(data)
	if err != nil {
		return nil, err
	}
	return &Response{
		Success: true,
		Data:    raw,
	}, nil
}

// NewErrorResponse creates an error response
func NewErrorResponse(err string) *Response {
	return &Response{
		Success: false,
		Error:   err,
	}
}

// NewPushMessage encodes a push message
func NewPushMessage(msgType string, data interface{}) ([]byte, error) {
	raw, err := marshalData(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(PushMessage{
		Type: msgType,
		Data: raw,
	})
}

func marshalData(data interface{}) (json.RawMessage, error) {
	if data == nil {
		return nil, nil
	}
	return json.Marshal(data)
}

// bandsToInts converts analyzer levels for JSON
func bandsToInts(bands []uint8) []int {
	return lo.Map(bands, func(b uint8, _ int) int { return int(b) })
}
