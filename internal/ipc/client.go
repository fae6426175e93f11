package ipc

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"sync"
)

// ErrClientClosed is returned by calls on a closed client
var ErrClientClosed = errors.New("ipc client closed")

// Client talks to a running daemon. Responses are matched to calls in order; pushes
// are delivered on Pushes.
type Client struct {
	conn net.Conn

	callMu    sync.Mutex // one request in flight
	responses chan *Response
	pushes    chan PushMessage
	done      chan struct{}

	closeOnce sync.Once
	errMu     sync.Mutex
	err       error
}

// Dial connects to the daemon socket
func Dial(ctx context.Context, socketPath string) (*Client, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "unix", socketPath)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", socketPath, err)
	}

	c := &Client{
		conn:      conn,
		responses: make(chan *Response, 1),
		pushes:    make(chan PushMessage, 64),
		done:      make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

// envelope tells pushes and responses apart
type envelope struct {
	Type string `json:"type"`
}

func (c *Client) readLoop() {
	defer close(c.pushes)
	defer c.Close()

	reader := bufio.NewReader(c.conn)
	for {
		line, err := reader.ReadBytes('\n')
		if err != nil {
			c.setErr(err)
			return
		}

		var env envelope
		if err := json.Unmarshal(line, &env); err != nil {
			c.setErr(fmt.Errorf("invalid message from server: %w", err))
			return
		}

		if env.Type != "" {
			var msg PushMessage
			if err := json.Unmarshal(line, &msg); err != nil {
				continue
			}
			// a slow consumer loses pushes rather than stalling responses
			select {
			case c.pushes <- msg:
			default:
			}
			continue
		}

		resp, err := DecodeResponse(line)
		if err != nil {
			c.setErr(err)
			return
		}
		select {
		case c.responses <- resp:
		case <-c.done:
			return
		}
	}
}

func (c *Client) setErr(err error) {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	if c.err == nil {
		c.err = err
	}
}

func (c *Client) closedErr() error {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	if c.err != nil {
		return fmt.Errorf("%w: %v", ErrClientClosed, c.err)
	}
	return ErrClientClosed
}

// Call sends cmd with data and decodes the response data into out, which may be nil.
// A response with success=false is returned as an error.
func (c *Client) Call(ctx context.Context, cmd CommandType, data, out interface{}) error {
	req, err := NewRequest(cmd, data)
	if err != nil {
		return fmt.Errorf("failed to encode %s request: %w", cmd, err)
	}
	payload, err := EncodeRequest(req)
	if err != nil {
		return err
	}

	c.callMu.Lock()
	defer c.callMu.Unlock()

	if _, err := c.conn.Write(append(payload, '\n')); err != nil {
		return fmt.Errorf("failed to send %s: %w", cmd, err)
	}

	select {
	case resp := <-c.responses:
		if !resp.Success {
			return fmt.Errorf("%s: %s", cmd, resp.Error)
		}
		if out != nil && len(resp.Data) > 0 {
			if err := json.Unmarshal(resp.Data, out); err != nil {
				return fmt.Errorf("failed to decode %s response: %w", cmd, err)
			}
		}
		return nil
	case <-c.done:
		return c.closedErr()
	case <-ctx.Done():
		// the late response would be taken by the next call
		c.Close()
		return ctx.Err()
	}
}

// Pushes returns the channel of server pushes. It is closed when the connection ends.
func (c *Client) Pushes() <-chan PushMessage {
	return c.pushes
}

// Close closes the connection
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		err = c.conn.Close()
	})
	return err
}
