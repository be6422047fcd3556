// Package queue implements the bounded global FIFO shared by all network
// connections. Enqueue happens on network goroutines; Drain is called only
// by the executor on the host main-loop tick. Both are constant-time,
// lock-protected and never block, so a slow host loop cannot stall the
// network path and vice versa.
package queue

import (
	"errors"
	"sync"
	"time"

	"github.com/hostbridge/scene-bridge-go/wire"
)

// ErrBusy is returned by Enqueue when the queue is at capacity. The caller
// reports it to the client immediately instead of blocking; this is the
// bridge's backpressure mechanism.
var ErrBusy = errors.New("command queue at capacity")

// Origin is the weak back-reference from a queued command to the connection
// that produced it. The queue and executor never own the connection
// lifetime: a dead origin just means the eventual response is dropped.
type Origin interface {
	// ID identifies the connection for logging and routing.
	ID() string
	// RemoteAddr is the peer address, for logging.
	RemoteAddr() string
	// Alive reports whether the connection can still accept a response.
	Alive() bool
	// Deliver hands a completed response to the connection's outbound
	// buffer. It must not block; delivery to a full or closing connection
	// fails with an error.
	Deliver(res *wire.Response) error
}

// Task is a command admitted to the queue, stamped with its global arrival
// sequence number.
type Task struct {
	Seq        uint64
	Cmd        *wire.Command
	Origin     Origin
	EnqueuedAt time.Time
}

// Queue is the bounded FIFO. The zero value is not usable; use New.
type Queue struct {
	mu       sync.Mutex
	items    []*Task
	capacity int
	seq      uint64
}

// New constructs a Queue with the given capacity. Capacity must be positive.
func New(capacity int) *Queue {
	if capacity <= 0 {
		capacity = 1
	}
	return &Queue{
		items:    make([]*Task, 0, capacity),
		capacity: capacity,
	}
}

// Enqueue admits a command in global arrival order. It fails immediately
// with ErrBusy when the queue is full. The returned Task is owned by the
// queue until the executor drains it.
func (q *Queue) Enqueue(cmd *wire.Command, origin Origin) (*Task, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) >= q.capacity {
		return nil, ErrBusy
	}

	q.seq++
	t := &Task{
		Seq:        q.seq,
		Cmd:        cmd,
		Origin:     origin,
		EnqueuedAt: time.Now(),
	}
	q.items = append(q.items, t)
	return t, nil
}

// Drain removes and returns up to max tasks in arrival order. It is called
// once per host tick by the executor and never blocks. Remaining tasks stay
// queued for the next tick.
func (q *Queue) Drain(max int) []*Task {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 || max <= 0 {
		return nil
	}
	n := max
	if n > len(q.items) {
		n = len(q.items)
	}

	batch := make([]*Task, n)
	copy(batch, q.items[:n])
	rest := copy(q.items, q.items[n:])
	for i := rest; i < len(q.items); i++ {
		q.items[i] = nil
	}
	q.items = q.items[:rest]
	return batch
}

// Len reports the number of queued tasks.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Cap reports the configured capacity.
func (q *Queue) Cap() int { return q.capacity }
