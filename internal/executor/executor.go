// Package executor runs queued commands on the host main-loop tick. It is
// the only component permitted to invoke capability handlers, and therefore
// the only component that ever touches host scene state.
package executor

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/hostbridge/scene-bridge-go/capability"
	"github.com/hostbridge/scene-bridge-go/internal/logctx"
	"github.com/hostbridge/scene-bridge-go/internal/queue"
	"github.com/hostbridge/scene-bridge-go/wire"
)

const (
	defaultMaxBatch  = 16
	defaultWarnAfter = 1 * time.Second
)

// Executor drains the command queue once per host tick and dispatches each
// task to its registered handler inside a failure-isolating boundary. A
// failing handler degrades to an error Response; nothing a handler does can
// propagate out of Tick into the host loop.
type Executor struct {
	reg    *capability.Registry
	q      *queue.Queue
	router *Router
	log    *slog.Logger

	maxBatch  int
	warnAfter time.Duration // advisory watchdog threshold; 0 disables
}

// Option configures an Executor.
type Option func(*Executor)

// WithMaxBatch caps how many commands a single tick may process. Remaining
// commands stay queued for the next tick.
func WithMaxBatch(n int) Option {
	return func(e *Executor) {
		if n > 0 {
			e.maxBatch = n
		}
	}
}

// WithWarnAfter sets the advisory watchdog threshold: a single command
// exceeding this wall-clock duration is logged as slow. The command is never
// interrupted; forcibly unwinding host-API execution is unsafe.
func WithWarnAfter(d time.Duration) Option {
	return func(e *Executor) { e.warnAfter = d }
}

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Executor) {
		if l != nil {
			e.log = l
		}
	}
}

// New constructs an Executor over the given registry and queue.
func New(reg *capability.Registry, q *queue.Queue, opts ...Option) *Executor {
	e := &Executor{
		reg:       reg,
		q:         q,
		log:       slog.Default(),
		maxBatch:  defaultMaxBatch,
		warnAfter: defaultWarnAfter,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	e.router = NewRouter(e.log)
	return e
}

// Tick processes up to the configured batch of queued commands in global
// arrival order and returns how many were resolved. It is the host
// integration's per-frame entry point: call it from the main loop and from
// nowhere else. Tick never blocks on network I/O and never panics.
func (e *Executor) Tick(ctx context.Context) int {
	batch := e.q.Drain(e.maxBatch)
	for _, task := range batch {
		taskCtx := logctx.WithConnData(ctx, &logctx.ConnData{
			ConnID:     task.Origin.ID(),
			RemoteAddr: task.Origin.RemoteAddr(),
		})
		taskCtx = logctx.WithCommandData(taskCtx, &logctx.CommandData{
			RequestID: task.Cmd.ID.String(),
			Command:   task.Cmd.Command,
			Seq:       task.Seq,
		})

		res := e.resolve(taskCtx, task)
		e.router.Deliver(taskCtx, task, res)
	}
	return len(batch)
}

// resolve runs a single task to completion and always produces a Response,
// even when the handler fails or panics.
func (e *Executor) resolve(ctx context.Context, task *queue.Task) (res *wire.Response) {
	start := time.Now()
	log := e.log.With(slog.String("command", task.Cmd.Command))

	// Failure boundary: a panicking handler must not unwind into the host
	// loop. The command resolves to an InternalError response and the next
	// queued command still runs.
	defer func() {
		if r := recover(); r != nil {
			log.ErrorContext(ctx, "executor.dispatch.panic",
				slog.Any("panic", r),
				slog.Int64("dur_ms", time.Since(start).Milliseconds()))
			res = wire.NewErrorResponse(task.Cmd.ID, wire.ErrKindInternal, "internal error")
		}
	}()

	handler, ok := e.reg.Lookup(task.Cmd.Command)
	if !ok {
		log.InfoContext(ctx, "executor.dispatch.unknown_command",
			slog.Int64("dur_ms", time.Since(start).Milliseconds()))
		return wire.NewErrorResponse(task.Cmd.ID, wire.ErrKindUnknownCommand,
			"unknown command: "+task.Cmd.Command)
	}

	result, err := handler(ctx, task.Cmd.Params)
	dur := time.Since(start)

	if e.warnAfter > 0 && dur > e.warnAfter {
		log.WarnContext(ctx, "executor.dispatch.slow",
			slog.Int64("dur_ms", dur.Milliseconds()),
			slog.Int64("threshold_ms", e.warnAfter.Milliseconds()))
	}

	if err != nil {
		kind, msg := capability.KindOf(err)
		log.InfoContext(ctx, "executor.dispatch.fail",
			slog.String("kind", string(kind)),
			slog.String("err", msg),
			slog.Int64("dur_ms", dur.Milliseconds()))
		return wire.NewErrorResponse(task.Cmd.ID, kind, msg)
	}

	out, err := wire.NewResultResponse(task.Cmd.ID, orEmpty(result))
	if err != nil {
		// The handler returned a value we cannot marshal. This is a bridge
		// bug, not a client error; log the detail, keep the response generic.
		log.ErrorContext(ctx, "executor.dispatch.encode_fail",
			slog.String("err", err.Error()),
			slog.Int64("dur_ms", dur.Milliseconds()))
		return wire.NewErrorResponse(task.Cmd.ID, wire.ErrKindInternal, "internal error")
	}

	log.InfoContext(ctx, "executor.dispatch.ok",
		slog.Int64("dur_ms", dur.Milliseconds()))
	return out
}

// orEmpty normalizes a nil handler result into an empty object so clients
// always receive a result mapping on success.
func orEmpty(v any) any {
	if v == nil {
		return json.RawMessage(`{}`)
	}
	return v
}
