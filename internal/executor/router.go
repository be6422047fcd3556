package executor

import (
	"context"
	"log/slog"

	"github.com/hostbridge/scene-bridge-go/internal/queue"
	"github.com/hostbridge/scene-bridge-go/wire"
)

// Router delivers completed responses back to the connection that originated
// the command. Delivery is best-effort: execution already happened and is
// not undone, so a response for a dead or saturated connection is dropped
// and logged, never retried and never surfaced to the executor as a failure.
type Router struct {
	log *slog.Logger
}

// NewRouter constructs a Router.
func NewRouter(log *slog.Logger) *Router {
	if log == nil {
		log = slog.Default()
	}
	return &Router{log: log}
}

// Deliver routes res to the task's origin connection.
func (rt *Router) Deliver(ctx context.Context, task *queue.Task, res *wire.Response) {
	if !task.Origin.Alive() {
		rt.log.InfoContext(ctx, "router.deliver.dropped_dead_origin")
		return
	}
	if err := task.Origin.Deliver(res); err != nil {
		rt.log.WarnContext(ctx, "router.deliver.fail", slog.String("err", err.Error()))
	}
}
