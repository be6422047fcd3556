package bridgeclient

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hostbridge/scene-bridge-go/wire"
)

// maxLineBytes matches the server-side frame cap.
const maxLineBytes = 4 << 20

// ErrClosed is returned by calls made on or interrupted by a closed client.
var ErrClosed = errors.New("bridgeclient: connection closed")

// CommandError is a command that reached the host and came back with an
// error response. The kind preserves the server's taxonomy so callers can
// tell a busy rejection from a handler failure.
type CommandError struct {
	Kind    wire.ErrorKind
	Message string
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// IsBusy reports whether err is a queue-full rejection, the one error kind
// that is always worth retrying after a short wait.
func IsBusy(err error) bool {
	var ce *CommandError
	return errors.As(err, &ce) && ce.Kind == wire.ErrKindBusy
}

// Option customizes a Client.
type Option func(*Client)

// WithLogger overrides the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.log = l
		}
	}
}

// Client is a connection to a bridge. Safe for concurrent use; calls from
// multiple goroutines pipeline over the single connection.
type Client struct {
	nc  net.Conn
	log *slog.Logger

	writeMu sync.Mutex // serializes frame writes

	mu      sync.Mutex
	pending map[string]chan *wire.Response
	closed  bool
	readErr error

	done chan struct{}
}

// Dial connects to a bridge at addr.
func Dial(ctx context.Context, addr string, opts ...Option) (*Client, error) {
	var d net.Dialer
	nc, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial bridge at %s: %w", addr, err)
	}

	c := &Client{
		nc:      nc,
		log:     slog.Default(),
		pending: make(map[string]chan *wire.Response),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	go c.readLoop()
	return c, nil
}

// Call sends a command and waits for its response. params may be nil, a
// json.RawMessage, or any marshalable value. The returned raw message is the
// result payload of a successful response; error responses surface as
// *CommandError.
func (c *Client) Call(ctx context.Context, command string, params any) (json.RawMessage, error) {
	var rawParams json.RawMessage
	switch p := params.(type) {
	case nil:
	case json.RawMessage:
		rawParams = p
	default:
		b, err := json.Marshal(p)
		if err != nil {
			return nil, fmt.Errorf("marshal params: %w", err)
		}
		rawParams = b
	}

	id := uuid.NewString()
	cmd := wire.Command{
		ID:      wire.NewRequestID(id),
		Command: command,
		Params:  rawParams,
	}
	frame, err := json.Marshal(&cmd)
	if err != nil {
		return nil, fmt.Errorf("marshal command: %w", err)
	}
	frame = append(frame, '\n')

	ch := make(chan *wire.Response, 1)
	c.mu.Lock()
	if c.closed {
		err := c.readErr
		c.mu.Unlock()
		if err == nil {
			err = ErrClosed
		}
		return nil, err
	}
	c.pending[id] = ch
	c.mu.Unlock()
	defer c.unregister(id)

	if deadline, ok := ctx.Deadline(); ok {
		_ = c.nc.SetWriteDeadline(deadline)
	} else {
		_ = c.nc.SetWriteDeadline(time.Time{})
	}
	c.writeMu.Lock()
	_, err = c.nc.Write(frame)
	c.writeMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("send command: %w", err)
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-c.done:
		c.mu.Lock()
		err := c.readErr
		c.mu.Unlock()
		if err == nil {
			err = ErrClosed
		}
		return nil, err
	case res := <-ch:
		if res.Status == wire.StatusError {
			return nil, &CommandError{Kind: res.Error.Kind, Message: res.Error.Message}
		}
		return res.Result, nil
	}
}

// Ping round-trips the builtin liveness command, proving the host loop is
// ticking.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.Call(ctx, "ping", nil)
	return err
}

// ListCommands fetches the host's registered command descriptors.
func (c *Client) ListCommands(ctx context.Context) (json.RawMessage, error) {
	return c.Call(ctx, "list_commands", nil)
}

// Close tears down the connection. In-flight calls fail with ErrClosed.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	err := c.nc.Close()
	<-c.done // wait for the read loop to fail pending calls
	return err
}

func (c *Client) unregister(id string) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

func (c *Client) readLoop() {
	defer func() {
		c.mu.Lock()
		c.closed = true
		c.mu.Unlock()
		close(c.done)
	}()

	r := bufio.NewReaderSize(c.nc, 64<<10)
	for {
		line, err := readLine(r)
		if err != nil {
			c.mu.Lock()
			c.readErr = ErrClosed
			c.mu.Unlock()
			return
		}

		var res wire.Response
		if err := json.Unmarshal(line, &res); err != nil {
			c.log.Warn("bridgeclient.read.malformed", slog.String("err", err.Error()))
			continue
		}

		key := res.ID.String()
		c.mu.Lock()
		ch, ok := c.pending[key]
		c.mu.Unlock()
		if !ok {
			// Unsolicited or late response (e.g. idle-timeout notice).
			c.log.Debug("bridgeclient.read.unmatched", slog.String("id", key))
			continue
		}
		ch <- &res
	}
}

// readLine reads one newline-terminated frame, enforcing maxLineBytes so a
// misbehaving server cannot balloon client memory.
func readLine(r *bufio.Reader) ([]byte, error) {
	var buf []byte
	for {
		chunk, err := r.ReadSlice('\n')
		buf = append(buf, chunk...)
		if err == nil {
			return buf, nil
		}
		if errors.Is(err, bufio.ErrBufferFull) {
			if len(buf) > maxLineBytes {
				return nil, errors.New("message exceeds maximum frame size")
			}
			continue
		}
		return nil, err
	}
}
