package tcpserver

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hostbridge/scene-bridge-go/internal/queue"
	"github.com/hostbridge/scene-bridge-go/wire"
)

const writeTimeout = 10 * time.Second

// maxLineBytes bounds a single framed message so a client cannot balloon the
// read buffer indefinitely.
const maxLineBytes = 4 << 20

// conn is one client session. The read loop parses newline-delimited JSON
// commands and enqueues them; the write loop serializes responses from the
// outbound buffer. conn implements queue.Origin so the executor can route
// responses back without owning the connection lifetime.
type conn struct {
	id  string
	nc  net.Conn
	srv *Server
	log *slog.Logger

	idleTimeout time.Duration
	out         chan *wire.Response

	alive     atomic.Bool
	closeOnce sync.Once
	done      chan struct{}
}

// --- queue.Origin ---

func (c *conn) ID() string         { return c.id }
func (c *conn) RemoteAddr() string { return c.nc.RemoteAddr().String() }
func (c *conn) Alive() bool        { return c.alive.Load() }

// Deliver appends a response to the outbound buffer without blocking. It is
// called from the executor on the host loop; a saturated or closing
// connection fails the delivery rather than stalling a host tick.
func (c *conn) Deliver(res *wire.Response) error {
	if !c.alive.Load() {
		return errors.New("connection closed")
	}
	select {
	case c.out <- res:
		return nil
	case <-c.done:
		return errors.New("connection closed")
	default:
		return errors.New("outbound buffer full")
	}
}

// --- read path (listener-owned goroutine) ---

func (c *conn) readLoop() {
	defer c.close("read loop exit")

	r := bufio.NewReaderSize(c.nc, 64<<10)
	for {
		if c.idleTimeout > 0 {
			_ = c.nc.SetReadDeadline(time.Now().Add(c.idleTimeout))
		}

		line, err := readLine(r)
		if err != nil {
			var ne net.Error
			switch {
			case errors.As(err, &ne) && ne.Timeout():
				c.log.Info("tcp.conn.idle_timeout")
				// Best-effort courtesy notice; the id cannot be correlated.
				c.writeDirect(wire.NewErrorResponse(nil, wire.ErrKindIdleTimeout, "connection idle, closing"))
			case errors.Is(err, io.EOF), errors.Is(err, net.ErrClosed):
				c.log.Info("tcp.conn.eof")
			default:
				c.log.Warn("tcp.conn.read_fail", slog.String("err", err.Error()))
			}
			return
		}

		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}
		if !c.handleLine(line) {
			return
		}
	}
}

// handleLine parses one framed message and resolves it to an enqueue or an
// immediate error response. When the message is hopeless it returns false,
// which closes the connection.
func (c *conn) handleLine(line []byte) bool {
	var cmd wire.Command
	if err := json.Unmarshal(line, &cmd); err != nil {
		// Recoverable if we can still extract a correlation id; the client
		// gets a ProtocolError and the connection survives.
		if id := extractID(line); !id.IsNil() {
			c.log.Info("tcp.conn.protocol_error", slog.String("err", err.Error()))
			c.enqueueOutbound(wire.NewErrorResponse(id, wire.ErrKindProtocol, err.Error()))
			return true
		}
		c.log.Warn("tcp.conn.protocol_error_unrecoverable", slog.String("err", err.Error()))
		return false
	}

	if _, err := c.srv.q.Enqueue(&cmd, c); err != nil {
		if errors.Is(err, queue.ErrBusy) {
			// Deliberate backpressure: reject synchronously, never block the
			// network goroutine on host-loop progress.
			c.log.Info("tcp.conn.busy", slog.String("command", cmd.Command))
			c.enqueueOutbound(wire.NewErrorResponse(cmd.ID, wire.ErrKindBusy, "command queue at capacity, retry later"))
			return true
		}
		c.log.Error("tcp.conn.enqueue_fail", slog.String("err", err.Error()))
		c.enqueueOutbound(wire.NewErrorResponse(cmd.ID, wire.ErrKindInternal, "internal error"))
	}
	return true
}

// enqueueOutbound queues a locally generated response (protocol/busy errors)
// on the same outbound path the executor uses, preserving write ordering.
func (c *conn) enqueueOutbound(res *wire.Response) {
	if err := c.Deliver(res); err != nil {
		c.log.Warn("tcp.conn.outbound_drop", slog.String("err", err.Error()))
	}
}

// --- write path (listener-owned goroutine) ---

func (c *conn) writeLoop() {
	for {
		select {
		case res := <-c.out:
			if !c.writeDirect(res) {
				c.close("write failure")
				return
			}
		case <-c.done:
			return
		}
	}
}

func (c *conn) writeDirect(res *wire.Response) bool {
	b, err := json.Marshal(res)
	if err != nil {
		c.log.Error("tcp.conn.encode_fail", slog.String("err", err.Error()))
		return true // drop this response, keep the connection
	}
	b = append(b, '\n')
	_ = c.nc.SetWriteDeadline(time.Now().Add(writeTimeout))
	if _, err := c.nc.Write(b); err != nil {
		c.log.Warn("tcp.conn.write_fail", slog.String("err", err.Error()))
		return false
	}
	return true
}

// --- lifecycle ---

func (c *conn) close(reason string) {
	c.closeOnce.Do(func() {
		c.alive.Store(false)
		close(c.done)
		_ = c.nc.Close()
		c.srv.removeConn(c)
		c.log.Info("tcp.conn.closed", slog.String("reason", reason))
	})
}

// readLine reads one newline-terminated frame, enforcing maxLineBytes.
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
		if len(buf) > 0 && errors.Is(err, io.EOF) {
			// Trailing unterminated data at EOF is not a frame.
			return nil, io.EOF
		}
		return nil, err
	}
}

// extractID attempts to salvage the correlation id from a malformed message
// so the error response can still be routed.
func extractID(line []byte) *wire.RequestID {
	var probe struct {
		ID *wire.RequestID `json:"id"`
	}
	if err := json.Unmarshal(line, &probe); err != nil {
		return nil
	}
	return probe.ID
}
