package tcpserver

import (
	"log/slog"
	"time"
)

// Option customizes a Server.
type Option func(*Server)

// WithLogger overrides the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.log = l
		}
	}
}

// WithIdleTimeout closes connections that produce no traffic for the given
// duration. Zero disables the idle check.
func WithIdleTimeout(d time.Duration) Option {
	return func(s *Server) { s.idleTimeout = d }
}

// WithOutboundBuffer sets the per-connection outbound response buffer.
// Deliveries to a full buffer fail rather than block the host loop.
func WithOutboundBuffer(n int) Option {
	return func(s *Server) {
		if n > 0 {
			s.outboundBuffer = n
		}
	}
}
