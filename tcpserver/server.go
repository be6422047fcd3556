package tcpserver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/hostbridge/scene-bridge-go/internal/queue"
	"github.com/hostbridge/scene-bridge-go/wire"
)

const (
	defaultOutboundBuffer = 256
	defaultIdleTimeout    = 5 * time.Minute
)

// Server accepts bridge connections and feeds well-formed commands into the
// shared queue. It never touches host state; its goroutines interact with
// the executor only through the queue and each connection's outbound buffer.
type Server struct {
	addr string
	q    *queue.Queue
	log  *slog.Logger

	idleTimeout    time.Duration
	outboundBuffer int

	ln     net.Listener
	mu     sync.Mutex
	conns  map[string]*conn
	wg     sync.WaitGroup
	closed atomic.Bool
}

// New constructs a Server listening on addr once Listen is called.
func New(addr string, q *queue.Queue, opts ...Option) *Server {
	s := &Server{
		addr:           addr,
		q:              q,
		log:            slog.Default(),
		idleTimeout:    defaultIdleTimeout,
		outboundBuffer: defaultOutboundBuffer,
		conns:          make(map[string]*conn),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Listen binds the TCP listener. It is separate from Serve so callers can
// learn the bound address (port 0 in tests) before accepting traffic.
func (s *Server) Listen() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.addr, err)
	}
	s.ln = ln
	s.log.Info("tcp.listen", slog.String("addr", ln.Addr().String()))
	return nil
}

// Addr returns the bound listener address. Empty before Listen.
func (s *Server) Addr() string {
	if s.ln == nil {
		return ""
	}
	return s.ln.Addr().String()
}

// Serve runs the accept loop until the context is canceled or the listener
// closes. Call after Listen, typically on a dedicated goroutine.
func (s *Server) Serve(ctx context.Context) error {
	if s.ln == nil {
		return errors.New("tcpserver: Serve called before Listen")
	}

	serveDone := make(chan struct{})
	defer close(serveDone)
	go func() {
		select {
		case <-ctx.Done():
			_ = s.Close()
		case <-serveDone:
		}
	}()

	for {
		nc, err := s.ln.Accept()
		if err != nil {
			if s.closed.Load() || errors.Is(err, net.ErrClosed) || ctx.Err() != nil {
				s.wg.Wait()
				return nil
			}
			// Transient accept failures must not kill the accept loop.
			s.log.Warn("tcp.accept.fail", slog.String("err", err.Error()))
			continue
		}
		s.startConn(nc)
	}
}

// Close shuts the listener and every live connection, then waits for the
// connection goroutines to wind down.
func (s *Server) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	var err error
	if s.ln != nil {
		err = s.ln.Close()
	}

	s.mu.Lock()
	conns := make([]*conn, 0, len(s.conns))
	for _, c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()
	for _, c := range conns {
		c.close("server shutdown")
	}

	s.wg.Wait()
	return err
}

// ConnCount reports the number of live connections.
func (s *Server) ConnCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

func (s *Server) startConn(nc net.Conn) {
	c := &conn{
		id:          uuid.NewString(),
		nc:          nc,
		srv:         s,
		idleTimeout: s.idleTimeout,
		out:         make(chan *wire.Response, s.outboundBuffer),
		done:        make(chan struct{}),
	}
	c.log = s.log.With(
		slog.String("conn_id", c.id),
		slog.String("remote_addr", nc.RemoteAddr().String()),
	)
	c.alive.Store(true)

	s.mu.Lock()
	s.conns[c.id] = c
	s.mu.Unlock()

	c.log.Info("tcp.conn.accepted")

	s.wg.Add(2)
	go func() {
		defer s.wg.Done()
		c.readLoop()
	}()
	go func() {
		defer s.wg.Done()
		c.writeLoop()
	}()
}

func (s *Server) removeConn(c *conn) {
	s.mu.Lock()
	delete(s.conns, c.id)
	s.mu.Unlock()
}
