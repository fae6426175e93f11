package ipc

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/austinkregel/falplayer/internal/audio"
	"github.com/austinkregel/falplayer/internal/scanner"
)

// Controller is the part of the session controller the server drives
type Controller interface {
	SelectFile(path string) error
	Play() error
	Pause() error
	Stop() error
	Seek(pos int64) error
	SetVolume(level float64) error
	Status() audio.Status
	Position() int64
}

// HistorySource lists previously selected files
type HistorySource interface {
	Entries() []string
}

// LevelsSource provides the latest analyzer levels
type LevelsSource interface {
	Bands() []uint8
}

// Options configures a Server. Player is required; the other sources are optional
// and their commands fail when missing.
type Options struct {
	SocketPath string
	Player     Controller
	History    HistorySource
	Levels     LevelsSource
	Scanner    *scanner.Scanner

	// LibraryPaths returns the configured song directories at request time
	LibraryPaths func() []string
	// AutoPlay starts playback after select unless the request says otherwise
	AutoPlay bool

	Logger zerolog.Logger
}

const (
	// pushQueueSize bounds the pushes waiting for one client; further pushes are dropped
	pushQueueSize = 64

	// writeTimeout disconnects a client that stops reading its socket
	writeTimeout = 5 * time.Second
)

// client is one accepted connection. Responses and pushes share the connection, so
// every write goes through writeMu. Pushes are queued and written by writeLoop so
// that playback callbacks never wait on a socket.
type client struct {
	id      string
	conn    net.Conn
	writeMu sync.Mutex

	pushes    chan []byte
	done      chan struct{}
	closeOnce sync.Once

	events bool
	levels bool
}

func newClient(conn net.Conn) *client {
	return &client{
		id:     uuid.NewString(),
		conn:   conn,
		pushes: make(chan []byte, pushQueueSize),
		done:   make(chan struct{}),
	}
}

func (c *client) write(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return err
	}
	_, err := c.conn.Write(data)
	return err
}

// enqueue hands a push to the writer without blocking. It reports false when the
// queue is full or the client is gone.
func (c *client) enqueue(msg []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.pushes <- msg:
		return true
	default:
		return false
	}
}

func (c *client) writeLoop(logger zerolog.Logger) {
	for {
		select {
		case <-c.done:
			return
		case msg := <-c.pushes:
			if err := c.write(msg); err != nil {
				logger.Debug().Err(err).Str("client", c.id).Msg("push write failed, disconnecting")
				c.close()
				return
			}
		}
	}
}

func (c *client) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.conn.Close()
	})
}

// Server handles IPC communication with clients. It also implements audio.Listener
// and pushes every playback event to subscribed clients.
type Server struct {
	opts   Options
	logger zerolog.Logger

	listener net.Listener
	mu       sync.RWMutex
	clients  map[*client]struct{}
}

// NewServer creates a new IPC server
func NewServer(opts Options) (*Server, error) {
	if opts.Player == nil {
		return nil, errors.New("ipc server requires a player")
	}
	if opts.SocketPath == "" {
		return nil, errors.New("ipc server requires a socket path")
	}
	return &Server{
		opts:    opts,
		logger:  opts.Logger.With().Str("component", "ipc").Logger(),
		clients: make(map[*client]struct{}),
	}, nil
}

// Listen creates the socket. It is separate from Serve so callers know the socket
// exists before clients dial it.
func (s *Server) Listen() error {
	if err := os.RemoveAll(s.opts.SocketPath); err != nil {
		return fmt.Errorf("failed to remove existing socket: %w", err)
	}

	listener, err := net.Listen("unix", s.opts.SocketPath)
	if err != nil {
		return fmt.Errorf("failed to listen on socket: %w", err)
	}

	// user-only
	if err := os.Chmod(s.opts.SocketPath, 0600); err != nil {
		listener.Close()
		return fmt.Errorf("failed to set socket permissions: %w", err)
	}

	s.mu.Lock()
	s.listener = listener
	s.mu.Unlock()

	s.logger.Info().Str("socket", s.opts.SocketPath).Msg("listening")
	return nil
}

// Serve accepts connections until ctx is cancelled, then closes every client and
// removes the socket.
func (s *Server) Serve(ctx context.Context) error {
	s.mu.RLock()
	listener := s.listener
	s.mu.RUnlock()
	if listener == nil {
		return errors.New("server is not listening")
	}

	go s.acceptLoop(ctx, listener)

	<-ctx.Done()
	s.logger.Info().Msg("shutting down")

	s.mu.Lock()
	count := len(s.clients)
	for c := range s.clients {
		c.close()
	}
	s.mu.Unlock()

	listener.Close()
	os.RemoveAll(s.opts.SocketPath)

	s.logger.Info().Int("clients", count).Msg("server stopped")
	return nil
}

// Start listens and serves until ctx is cancelled
func (s *Server) Start(ctx context.Context) error {
	if err := s.Listen(); err != nil {
		return err
	}
	return s.Serve(ctx)
}

func (s *Server) acceptLoop(ctx context.Context, listener net.Listener) {
	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return
			}
			s.logger.Warn().Err(err).Msg("accept error")
			continue
		}

		c := newClient(conn)
		s.mu.Lock()
		s.clients[c] = struct{}{}
		count := len(s.clients)
		s.mu.Unlock()

		s.logger.Debug().Str("client", c.id).Int("clients", count).Msg("client connected")
		go c.writeLoop(s.logger)
		go s.handleConnection(ctx, c)
	}
}

func (s *Server) handleConnection(ctx context.Context, c *client) {
	logger := s.logger.With().Str("client", c.id).Logger()

	defer func() {
		c.close()
		s.mu.Lock()
		delete(s.clients, c)
		count := len(s.clients)
		s.mu.Unlock()
		logger.Debug().Int("clients", count).Msg("client disconnected")
	}()

	reader := bufio.NewReader(c.conn)
	for {
		if ctx.Err() != nil {
			return
		}

		line, err := reader.ReadBytes('\n')
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				logger.Warn().Err(err).Msg("read error")
			}
			return
		}

		req, err := DecodeRequest(line)
		if err != nil {
			logger.Warn().Err(err).Msg("invalid request")
			if err := s.sendResponse(c, NewErrorResponse("invalid request format")); err != nil {
				return
			}
			continue
		}

		start := time.Now()
		resp := s.handleRequest(ctx, c, req)
		logResponse(logger, req, resp, time.Since(start))

		if err := s.sendResponse(c, resp); err != nil {
			logger.Warn().Err(err).Msg("send error")
			return
		}
	}
}

func (s *Server) sendResponse(c *client, resp *Response) error {
	data, err := EncodeResponse(resp)
	if err != nil {
		return err
	}
	return c.write(append(data, '\n'))
}

// ClientCount returns the number of connected clients
func (s *Server) ClientCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}

func (s *Server) setSubscription(c *client, events, levels bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c.events = events
	c.levels = levels
}

// subscribers returns the clients that want the given push type
func (s *Server) subscribers(levels bool) []*client {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var subs []*client
	for c := range s.clients {
		if (levels && c.levels) || (!levels && c.events) {
			subs = append(subs, c)
		}
	}
	return subs
}

// push queues a message for every matching subscriber. It never blocks: a client
// whose queue is full misses the message.
func (s *Server) push(msgType string, data interface{}) {
	levels := msgType == PushLevels
	subs := s.subscribers(levels)
	if len(subs) == 0 {
		return
	}

	msg, err := NewPushMessage(msgType, data)
	if err != nil {
		s.logger.Error().Err(err).Str("type", msgType).Msg("failed to encode push")
		return
	}
	msg = append(msg, '\n')

	for _, c := range subs {
		if !c.enqueue(msg) {
			s.logger.Trace().Str("client", c.id).Str("type", msgType).Msg("push dropped")
		}
	}
}

// PushLevels forwards analyzer levels to level subscribers. It is meant to be the
// analyzer callback.
func (s *Server) PushLevels(bands []uint8) {
	s.push(PushLevels, LevelsResponse{
		Bands:     bandsToInts(bands),
		Position:  s.opts.Player.Position(),
		Timestamp: time.Now().UnixMilli(),
	})
}

func (s *Server) OnTrackLoaded(info audio.TrackInfo) {
	s.push(PushTrackLoaded, info)
}

func (s *Server) OnPlayStateChanged() {
	s.push(PushPlayState, StateEvent{State: string(s.opts.Player.Status().State)})
}

func (s *Server) OnPauseStateChanged() {
	s.push(PushPauseState, StateEvent{State: string(s.opts.Player.Status().State)})
}

func (s *Server) OnProgress(position int64) {
	s.push(PushProgress, PositionEvent{Position: position})
}

func (s *Server) OnLoop(resetPosition int64) {
	s.push(PushLoop, PositionEvent{Position: resetPosition})
}

func (s *Server) OnComplete() {
	s.push(PushComplete, nil)
}

func (s *Server) OnError(err error) {
	s.push(PushError, ErrorEvent{Message: err.Error()})
}

var _ audio.Listener = (*Server)(nil)
