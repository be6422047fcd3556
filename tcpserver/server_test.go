package tcpserver

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"runtime"
	"testing"
	"time"

	"github.com/hostbridge/scene-bridge-go/capability"
	"github.com/hostbridge/scene-bridge-go/internal/executor"
	"github.com/hostbridge/scene-bridge-go/internal/queue"
	"github.com/hostbridge/scene-bridge-go/wire"
)

type testHarness struct {
	t    *testing.T
	srv  *Server
	q    *queue.Queue
	addr string
	stop context.CancelFunc
}

type harnessOpts struct {
	queueCap   int
	serverOpts []Option
	tick       bool
}

// newHarness stands up a real listener on a loopback port with an echo
// capability behind it. When tick is set, a background goroutine pumps the
// executor the way a host main loop would.
func newHarness(t *testing.T, o harnessOpts) *testHarness {
	t.Helper()

	if o.queueCap == 0 {
		o.queueCap = 64
	}

	reg := capability.NewRegistry()
	reg.Register(capability.Capability{
		Descriptor: capability.Descriptor{Name: "echo"},
		Handler: func(ctx context.Context, params json.RawMessage) (any, error) {
			return map[string]json.RawMessage{"echo": params}, nil
		},
	})

	q := queue.New(o.queueCap)
	srv := New("127.0.0.1:0", q, o.serverOpts...)
	if err := srv.Listen(); err != nil {
		t.Fatalf("Listen: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		if err := srv.Serve(ctx); err != nil {
			t.Errorf("Serve: %v", err)
		}
	}()

	if o.tick {
		exec := executor.New(reg, q)
		go func() {
			tick := time.NewTicker(2 * time.Millisecond)
			defer tick.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-tick.C:
					exec.Tick(ctx)
				}
			}
		}()
	}

	h := &testHarness{t: t, srv: srv, q: q, addr: srv.Addr(), stop: cancel}
	t.Cleanup(func() {
		cancel()
		_ = srv.Close()
	})
	return h
}

func (h *testHarness) dial() (net.Conn, *bufio.Reader) {
	h.t.Helper()
	nc, err := net.Dial("tcp", h.addr)
	if err != nil {
		h.t.Fatalf("dial %s: %v", h.addr, err)
	}
	h.t.Cleanup(func() { _ = nc.Close() })
	return nc, bufio.NewReader(nc)
}

func sendLine(t *testing.T, nc net.Conn, line string) {
	t.Helper()
	if _, err := io.WriteString(nc, line+"\n"); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func readResponse(t *testing.T, r *bufio.Reader) *wire.Response {
	t.Helper()
	line, err := r.ReadBytes('\n')
	if err != nil {
		t.Fatalf("read response: %v", err)
	}
	var res wire.Response
	if err := json.Unmarshal(line, &res); err != nil {
		t.Fatalf("unmarshal response %q: %v", line, err)
	}
	return &res
}

func TestServerRoundTrip(t *testing.T) {
	h := newHarness(t, harnessOpts{tick: true})
	nc, r := h.dial()

	sendLine(t, nc, `{"id": "r1", "command": "echo", "params": {"msg": "hi"}}`)
	res := readResponse(t, r)

	if res.Status != wire.StatusOK {
		t.Fatalf("status = %q, want ok (error: %+v)", res.Status, res.Error)
	}
	if got := res.ID.String(); got != "r1" {
		t.Errorf("id = %q, want r1", got)
	}
	var result struct {
		Echo struct {
			Msg string `json:"msg"`
		} `json:"echo"`
	}
	if err := json.Unmarshal(res.Result, &result); err != nil {
		t.Fatalf("unmarshal result: %v", err)
	}
	if result.Echo.Msg != "hi" {
		t.Errorf("echoed msg = %q, want hi", result.Echo.Msg)
	}
}

func TestServerPipelining(t *testing.T) {
	h := newHarness(t, harnessOpts{tick: true})
	nc, r := h.dial()

	const n = 10
	for i := 0; i < n; i++ {
		sendLine(t, nc, fmt.Sprintf(`{"id": %d, "command": "echo", "params": {"n": %d}}`, i, i))
	}
	for i := 0; i < n; i++ {
		res := readResponse(t, r)
		if res.Status != wire.StatusOK {
			t.Fatalf("response %d: status = %q", i, res.Status)
		}
		if got := res.ID.String(); got != fmt.Sprintf("%d", i) {
			t.Errorf("response %d: id = %q, want %d", i, got, i)
		}
	}
}

func TestServerProtocolErrorWithRecoverableID(t *testing.T) {
	h := newHarness(t, harnessOpts{tick: true})
	nc, r := h.dial()

	// Valid JSON, invalid message shape: command is not a string. The id is
	// still recoverable so the client gets a correlated error and the
	// connection survives.
	sendLine(t, nc, `{"id": "bad1", "command": 42}`)
	res := readResponse(t, r)
	if res.Status != wire.StatusError {
		t.Fatalf("status = %q, want error", res.Status)
	}
	if res.Error.Kind != wire.ErrKindProtocol {
		t.Errorf("kind = %q, want %q", res.Error.Kind, wire.ErrKindProtocol)
	}
	if got := res.ID.String(); got != "bad1" {
		t.Errorf("id = %q, want bad1", got)
	}

	// Connection still usable.
	sendLine(t, nc, `{"id": "after", "command": "echo", "params": {}}`)
	res = readResponse(t, r)
	if res.Status != wire.StatusOK {
		t.Fatalf("post-error status = %q, want ok", res.Status)
	}
}

func TestServerUnparseableInputClosesConnection(t *testing.T) {
	h := newHarness(t, harnessOpts{tick: true})
	nc, r := h.dial()

	sendLine(t, nc, `this is not json`)

	_ = nc.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, err := r.ReadBytes('\n'); err == nil {
		t.Fatal("expected connection close after unparseable input, got a response")
	}
}

func TestServerBlankLinesIgnored(t *testing.T) {
	h := newHarness(t, harnessOpts{tick: true})
	nc, r := h.dial()

	sendLine(t, nc, "")
	sendLine(t, nc, "   ")
	sendLine(t, nc, `{"id": "x", "command": "echo", "params": {}}`)

	res := readResponse(t, r)
	if got := res.ID.String(); got != "x" {
		t.Errorf("id = %q, want x", got)
	}
}

func TestServerBusyRejection(t *testing.T) {
	// No ticker: nothing drains the queue, so overflow is deterministic.
	h := newHarness(t, harnessOpts{queueCap: 3})
	nc, r := h.dial()

	for i := 0; i < 3; i++ {
		sendLine(t, nc, fmt.Sprintf(`{"id": "q%d", "command": "echo", "params": {}}`, i))
	}
	// The reads race the enqueues; poll until the queue is provably full.
	waitFor(t, func() bool { return h.q.Len() == 3 })

	sendLine(t, nc, `{"id": "overflow", "command": "echo", "params": {}}`)
	res := readResponse(t, r)
	if res.Status != wire.StatusError {
		t.Fatalf("status = %q, want error", res.Status)
	}
	if res.Error.Kind != wire.ErrKindBusy {
		t.Errorf("kind = %q, want %q", res.Error.Kind, wire.ErrKindBusy)
	}
	if got := res.ID.String(); got != "overflow" {
		t.Errorf("id = %q, want overflow", got)
	}
	if h.q.Len() != 3 {
		t.Errorf("queue len = %d after rejection, want 3", h.q.Len())
	}
}

func TestServerIdleTimeout(t *testing.T) {
	h := newHarness(t, harnessOpts{
		tick:       true,
		serverOpts: []Option{WithIdleTimeout(100 * time.Millisecond)},
	})
	nc, r := h.dial()

	_ = nc.SetReadDeadline(time.Now().Add(5 * time.Second))
	res := readResponse(t, r)
	if res.Error == nil || res.Error.Kind != wire.ErrKindIdleTimeout {
		t.Fatalf("expected idle timeout notice, got %+v", res)
	}
	if _, err := r.ReadBytes('\n'); err == nil {
		t.Fatal("expected connection close after idle timeout")
	}
}

func TestServerCloseDisconnectsClients(t *testing.T) {
	h := newHarness(t, harnessOpts{tick: true})
	nc, r := h.dial()

	sendLine(t, nc, `{"id": "1", "command": "echo", "params": {}}`)
	readResponse(t, r)

	if err := h.srv.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	_ = nc.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, err := r.ReadBytes('\n'); err == nil {
		t.Fatal("expected connection close after server shutdown")
	}
	if n := h.srv.ConnCount(); n != 0 {
		t.Errorf("ConnCount = %d after Close, want 0", n)
	}
}

func TestServerAddrString(t *testing.T) {
	q := queue.New(8)
	srv := New("127.0.0.1:0", q)
	if got := srv.Addr(); got != "" {
		t.Fatalf("Addr before Listen = %q, want empty", got)
	}
	if err := srv.Listen(); err != nil {
		t.Fatalf("Listen: %v", err)
	}
	t.Cleanup(func() { _ = srv.Close() })

	addr := srv.Addr()
	if _, _, err := net.SplitHostPort(addr); err != nil {
		t.Fatalf("Addr = %q, want host:port: %v", addr, err)
	}
	nc, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("dial %s: %v", addr, err)
	}
	_ = nc.Close()
}

func TestServerCloseStopsContextWatcher(t *testing.T) {
	// Serve exits via Close while its context stays live. Repeated cycles
	// must not accumulate watcher goroutines.
	before := runtime.NumGoroutine()

	for i := 0; i < 10; i++ {
		q := queue.New(8)
		srv := New("127.0.0.1:0", q)
		if err := srv.Listen(); err != nil {
			t.Fatalf("Listen: %v", err)
		}
		done := make(chan error, 1)
		go func() { done <- srv.Serve(context.Background()) }()
		if err := srv.Close(); err != nil {
			t.Fatalf("Close: %v", err)
		}
		if err := <-done; err != nil {
			t.Fatalf("Serve: %v", err)
		}
	}

	waitFor(t, func() bool { return runtime.NumGoroutine() <= before+2 })
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("condition not reached within deadline")
}
