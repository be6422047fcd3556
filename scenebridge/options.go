package scenebridge

import (
	"log/slog"
	"time"
)

// Option customizes a Server.
type Option func(*Server)

// WithConfig replaces the default configuration wholesale. Combine with
// ConfigFromEnv for environment-driven deployments.
func WithConfig(cfg Config) Option {
	return func(s *Server) {
		s.cfg = cfg
	}
}

// WithLogger overrides the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.log = l
		}
	}
}

// WithAddr overrides the listen address.
func WithAddr(addr string) Option {
	return func(s *Server) {
		if addr != "" {
			s.cfg.Addr = addr
		}
	}
}

// WithQueueCapacity overrides the command queue bound.
func WithQueueCapacity(n int) Option {
	return func(s *Server) {
		if n > 0 {
			s.cfg.QueueCapacity = n
		}
	}
}

// WithMaxBatch overrides the per-tick command budget.
func WithMaxBatch(n int) Option {
	return func(s *Server) {
		if n > 0 {
			s.cfg.MaxBatch = n
		}
	}
}

// WithIdleTimeout overrides the connection idle timeout. Zero disables it.
func WithIdleTimeout(d time.Duration) Option {
	return func(s *Server) {
		if d >= 0 {
			s.cfg.IdleTimeout = d
		}
	}
}

// WithSlowCommandThreshold overrides the advisory watchdog threshold.
func WithSlowCommandThreshold(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.cfg.SlowCommandThreshold = d
		}
	}
}

// WithTickInterval overrides the RunStandalone cadence.
func WithTickInterval(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.cfg.TickInterval = d
		}
	}
}
