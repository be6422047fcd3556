package scenebridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hostbridge/scene-bridge-go/capability"
	"github.com/hostbridge/scene-bridge-go/internal/executor"
	"github.com/hostbridge/scene-bridge-go/internal/logctx"
	"github.com/hostbridge/scene-bridge-go/internal/queue"
	"github.com/hostbridge/scene-bridge-go/tcpserver"
)

// Server is the embedded bridge: a TCP listener feeding a bounded queue that
// the host drains by calling Tick from its main loop.
type Server struct {
	cfg Config
	log *slog.Logger

	reg  *capability.Registry
	q    *queue.Queue
	exec *executor.Executor
	tcp  *tcpserver.Server

	mu      sync.Mutex
	started bool
	closed  bool
}

// NewServer builds a bridge over the given capability registry. The builtin
// commands (ping, list_commands) are registered on top of whatever the host
// already installed; host registrations win on name collision.
func NewServer(reg *capability.Registry, opts ...Option) (*Server, error) {
	if reg == nil {
		reg = capability.NewRegistry()
	}

	s := &Server{
		cfg: defaultConfig(),
		log: slog.Default(),
		reg: reg,
	}
	for _, opt := range opts {
		opt(s)
	}
	if err := s.cfg.validate(); err != nil {
		return nil, err
	}
	// Fold per-connection and per-command context into every record.
	s.log = slog.New(logctx.Handler{Handler: s.log.Handler()})

	for _, def := range capability.Builtins(reg) {
		reg.Register(def)
	}

	s.q = queue.New(s.cfg.QueueCapacity)
	s.exec = executor.New(reg, s.q,
		executor.WithLogger(s.log),
		executor.WithMaxBatch(s.cfg.MaxBatch),
		executor.WithWarnAfter(s.cfg.SlowCommandThreshold),
	)
	s.tcp = tcpserver.New(s.cfg.Addr, s.q,
		tcpserver.WithLogger(s.log),
		tcpserver.WithIdleTimeout(s.cfg.IdleTimeout),
	)
	return s, nil
}

// Start binds the listener and begins accepting connections. Accepted
// commands pile up in the queue until the host calls Tick; Start never
// executes anything on its own.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errors.New("bridge is closed")
	}
	if s.started {
		return errors.New("bridge already started")
	}

	if err := s.tcp.Listen(); err != nil {
		return fmt.Errorf("bind listener: %w", err)
	}
	s.started = true

	go func() {
		if err := s.tcp.Serve(ctx); err != nil {
			s.log.Error("bridge.serve.fail", slog.String("err", err.Error()))
		}
	}()

	s.log.Info("bridge.started", slog.String("addr", s.tcp.Addr()))
	return nil
}

// Tick resolves up to MaxBatch queued commands. Call it from the host main
// loop and from nowhere else; all capability handlers run inside it.
func (s *Server) Tick(ctx context.Context) int {
	return s.exec.Tick(ctx)
}

// RunStandalone drives Tick on the configured interval until ctx is
// cancelled, for hosts that have no main loop of their own. It owns the
// goroutine it is called on.
func (s *Server) RunStandalone(ctx context.Context) error {
	if err := s.Start(ctx); err != nil {
		return err
	}
	defer s.Close()

	tick := time.NewTicker(s.cfg.TickInterval)
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-tick.C:
			s.Tick(ctx)
		}
	}
}

// Addr reports the bound listen address, which differs from the configured
// one when the port was 0. Empty before Start.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return ""
	}
	return s.tcp.Addr()
}

// Registry exposes the capability registry so hosts can register and remove
// commands after construction. Live: changes apply to the next Tick.
func (s *Server) Registry() *capability.Registry { return s.reg }

// QueueLen reports the number of commands awaiting execution.
func (s *Server) QueueLen() int { return s.q.Len() }

// Close stops accepting, disconnects clients and discards queued commands.
// It does not wait for an in-flight Tick; the host loop owns that.
func (s *Server) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	started := s.started
	s.mu.Unlock()

	if !started {
		return nil
	}
	err := s.tcp.Close()
	s.log.Info("bridge.closed")
	return err
}
