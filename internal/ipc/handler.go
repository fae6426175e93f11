package ipc

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/austinkregel/falplayer/internal/audio"
	"github.com/austinkregel/falplayer/internal/scanner"
)

// isPollingCmd reports commands clients send on a timer; they are logged at trace level
func isPollingCmd(cmd CommandType) bool {
	return cmd == CmdStatus || cmd == CmdLevels
}

func logResponse(logger zerolog.Logger, req *Request, resp *Response, duration time.Duration) {
	level := zerolog.DebugLevel
	if isPollingCmd(req.Cmd) {
		level = zerolog.TraceLevel
	}
	ev := logger.WithLevel(level).Str("cmd", string(req.Cmd)).Dur("took", duration)
	if !resp.Success {
		ev = ev.Str("error", resp.Error)
	}
	ev.Bool("success", resp.Success).Msg("request")
}

func (s *Server) handleRequest(ctx context.Context, c *client, req *Request) *Response {
	switch req.Cmd {
	case CmdSelect:
		return s.handleSelect(req)
	case CmdPlay:
		return s.control(s.opts.Player.Play)
	case CmdPause:
		return s.control(s.opts.Player.Pause)
	case CmdStop:
		return s.control(s.opts.Player.Stop)
	case CmdSeek:
		return s.handleSeek(req)
	case CmdVolume:
		return s.handleVolume(req)
	case CmdStatus:
		return s.handleStatus()
	case CmdHistory:
		return s.handleHistory()
	case CmdLibrary:
		return s.handleLibrary(ctx)
	case CmdSubscribe:
		return s.handleSubscribe(c, req)
	case CmdUnsubscribe:
		s.setSubscription(c, false, false)
		return success(SubscribeResponse{})
	case CmdLevels:
		return s.handleLevels()
	default:
		return NewErrorResponse("unknown command")
	}
}

func success(data interface{}) *Response {
	resp, err := NewSuccessResponse(data)
	if err != nil {
		return NewErrorResponse("internal error")
	}
	return resp
}

// control runs a player operation and answers with the resulting status
func (s *Server) control(op func() error) *Response {
	if err := op(); err != nil {
		return NewErrorResponse(err.Error())
	}
	return s.handleStatus()
}

func (s *Server) handleSelect(req *Request) *Response {
	var selReq SelectRequest
	if err := json.Unmarshal(req.Data, &selReq); err != nil {
		return NewErrorResponse("invalid select request")
	}
	if selReq.Path == "" {
		return NewErrorResponse("path is required")
	}

	if err := s.opts.Player.SelectFile(selReq.Path); err != nil {
		s.logger.Warn().Err(err).Str("path", selReq.Path).Msg("select failed")
		return NewErrorResponse(err.Error())
	}

	play := s.opts.AutoPlay
	if selReq.Play != nil {
		play = *selReq.Play
	}
	if play {
		return s.control(s.opts.Player.Play)
	}
	return s.handleStatus()
}

func (s *Server) handleSeek(req *Request) *Response {
	var seekReq SeekRequest
	if err := json.Unmarshal(req.Data, &seekReq); err != nil {
		return NewErrorResponse("invalid seek request")
	}
	// an out-of-range target is ignored; the client sees the unchanged status
	err := s.opts.Player.Seek(seekReq.Position)
	if errors.Is(err, audio.ErrInvalidSeekTarget) {
		s.logger.Debug().Int64("position", seekReq.Position).Msg("seek target out of range, ignored")
		return s.handleStatus()
	}
	if err != nil {
		return NewErrorResponse(err.Error())
	}
	return s.handleStatus()
}

func (s *Server) handleVolume(req *Request) *Response {
	var volReq VolumeRequest
	if err := json.Unmarshal(req.Data, &volReq); err != nil {
		return NewErrorResponse("invalid volume request")
	}
	return s.control(func() error { return s.opts.Player.SetVolume(volReq.Level) })
}

func (s *Server) handleStatus() *Response {
	return success(s.opts.Player.Status())
}

func (s *Server) handleHistory() *Response {
	if s.opts.History == nil {
		return NewErrorResponse("history is disabled")
	}
	entries := s.opts.History.Entries()
	if entries == nil {
		entries = []string{}
	}
	return success(HistoryResponse{Entries: entries})
}

func (s *Server) handleLibrary(ctx context.Context) *Response {
	if s.opts.Scanner == nil || s.opts.LibraryPaths == nil {
		return NewErrorResponse("library is not available")
	}
	paths := s.opts.LibraryPaths()
	if len(paths) == 0 {
		return NewErrorResponse("no library paths configured")
	}
	if s.opts.Scanner.IsRunning() {
		return NewErrorResponse("scan already in progress")
	}

	results := s.opts.Scanner.ScanPaths(ctx, paths)
	s.logger.Info().Int("dirs", len(results)).Int("files", len(scanner.Files(results))).Msg("library scanned")
	return success(results)
}

func (s *Server) handleSubscribe(c *client, req *Request) *Response {
	var subReq SubscribeRequest
	if len(req.Data) > 0 {
		if err := json.Unmarshal(req.Data, &subReq); err != nil {
			return NewErrorResponse("invalid subscribe request")
		}
	}
	levels := subReq.Levels && s.opts.Levels != nil
	s.setSubscription(c, true, levels)
	return success(SubscribeResponse{Events: true, Levels: levels})
}

func (s *Server) handleLevels() *Response {
	if s.opts.Levels == nil {
		return NewErrorResponse("levels are not available")
	}
	return success(LevelsResponse{
		Bands:     bandsToInts(s.opts.Levels.Bands()),
		Position:  s.opts.Player.Position(),
		Timestamp: time.Now().UnixMilli(),
	})
}
