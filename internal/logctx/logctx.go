// Package logctx enriches slog records with bridge context carried in a
// context.Context: the originating connection and the command being
// executed. Wrap any slog.Handler with Handler to get the extra attribute
// groups on every record logged through that context.
package logctx

import (
	"context"
	"log/slog"
)

type Handler struct {
	slog.Handler
}

func (h Handler) Handle(ctx context.Context, r slog.Record) error {
	if cd, ok := ctx.Value(connDataKey{}).(*ConnData); ok {
		r.AddAttrs(slog.Group("conn",
			slog.String("id", cd.ConnID),
			slog.String("remote_addr", cd.RemoteAddr),
		))
	}

	if cmd, ok := ctx.Value(commandDataKey{}).(*CommandData); ok {
		r.AddAttrs(slog.Group("cmd",
			slog.String("id", cmd.RequestID),
			slog.String("command", cmd.Command),
			slog.Uint64("seq", cmd.Seq),
		))
	}

	return h.Handler.Handle(ctx, r)
}

type connDataKey struct{}

type ConnData struct {
	ConnID     string
	RemoteAddr string
}

func WithConnData(ctx context.Context, data *ConnData) context.Context {
	return context.WithValue(ctx, connDataKey{}, data)
}

type commandDataKey struct{}

type CommandData struct {
	RequestID string
	Command   string
	Seq       uint64
}

func WithCommandData(ctx context.Context, data *CommandData) context.Context {
	return context.WithValue(ctx, commandDataKey{}, data)
}
