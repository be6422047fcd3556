package tests

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/hostbridge/scene-bridge-go/bridgeclient"
	"github.com/hostbridge/scene-bridge-go/capability"
	"github.com/hostbridge/scene-bridge-go/scene"
	"github.com/hostbridge/scene-bridge-go/scenebridge"
	"github.com/hostbridge/scene-bridge-go/wire"
)

// newBridge stands up a full bridge on a loopback port. Ticking stays under
// test control unless autoTick is set.
func newBridge(t *testing.T, reg *capability.Registry, autoTick bool, opts ...scenebridge.Option) *scenebridge.Server {
	t.Helper()

	opts = append([]scenebridge.Option{scenebridge.WithAddr("127.0.0.1:0")}, opts...)
	br, err := scenebridge.NewServer(reg, opts...)
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	if err := br.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() {
		cancel()
		_ = br.Close()
	})

	if autoTick {
		go func() {
			for {
				select {
				case <-ctx.Done():
					return
				default:
					br.Tick(ctx)
					time.Sleep(2 * time.Millisecond)
				}
			}
		}()
	}
	return br
}

func dialRaw(t *testing.T, addr string) (net.Conn, *bufio.Reader) {
	t.Helper()
	nc, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = nc.Close() })
	return nc, bufio.NewReader(nc)
}

func send(t *testing.T, nc net.Conn, msg string) {
	t.Helper()
	if _, err := nc.Write([]byte(msg + "\n")); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func recv(t *testing.T, r *bufio.Reader) *wire.Response {
	t.Helper()
	line, err := r.ReadBytes('\n')
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var res wire.Response
	if err := json.Unmarshal(line, &res); err != nil {
		t.Fatalf("unmarshal %q: %v", line, err)
	}
	return &res
}

func waitQueueLen(t *testing.T, br *scenebridge.Server, want int) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if br.QueueLen() == want {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("queue len = %d, want %d", br.QueueLen(), want)
}

func TestEndToEndSceneInfo(t *testing.T) {
	reg := capability.NewRegistry()
	scene.Register(reg, scene.NewScene("Scene"))
	br := newBridge(t, reg, true)

	nc, r := dialRaw(t, br.Addr())
	send(t, nc, `{"id": 1, "command": "get_scene_info", "params": {}}`)
	res := recv(t, r)

	if res.Status != wire.StatusOK {
		t.Fatalf("status = %q, want ok (error: %+v)", res.Status, res.Error)
	}
	if res.ID.String() != "1" {
		t.Errorf("id = %q, want 1", res.ID.String())
	}
	var result struct {
		Objects []json.RawMessage `json:"objects"`
	}
	if err := json.Unmarshal(res.Result, &result); err != nil {
		t.Fatalf("unmarshal result: %v", err)
	}
	if len(result.Objects) != 0 {
		t.Errorf("objects = %v, want empty", result.Objects)
	}
}

func TestEndToEndUnknownCommand(t *testing.T) {
	reg := capability.NewRegistry()
	scene.Register(reg, scene.NewScene("Scene"))
	br := newBridge(t, reg, true)

	nc, r := dialRaw(t, br.Addr())
	send(t, nc, `{"id": 2, "command": "levitate", "params": {}}`)
	res := recv(t, r)

	if res.Status != wire.StatusError {
		t.Fatalf("status = %q, want error", res.Status)
	}
	if res.ID.String() != "2" {
		t.Errorf("id = %q, want 2", res.ID.String())
	}
	if res.Error.Kind != wire.ErrKindUnknownCommand {
		t.Errorf("kind = %q, want %q", res.Error.Kind, wire.ErrKindUnknownCommand)
	}
}

func TestEndToEndExecutionError(t *testing.T) {
	reg := capability.NewRegistry()
	scene.Register(reg, scene.NewScene("Scene"))
	br := newBridge(t, reg, true)

	nc, r := dialRaw(t, br.Addr())
	send(t, nc, `{"id": 3, "command": "delete_object", "params": {"name": "Cube2"}}`)
	res := recv(t, r)

	if res.Status != wire.StatusError {
		t.Fatalf("status = %q, want error", res.Status)
	}
	if res.Error.Kind != wire.ErrKindExecution {
		t.Errorf("kind = %q, want %q", res.Error.Kind, wire.ErrKindExecution)
	}
	if res.Error.Message != "Object 'Cube2' not found" {
		t.Errorf("message = %q, want %q", res.Error.Message, "Object 'Cube2' not found")
	}
}

func TestGlobalArrivalOrderAcrossConnections(t *testing.T) {
	var mu sync.Mutex
	var executed []string

	reg := capability.NewRegistry()
	reg.Register(capability.NewHandler("mark", func(ctx context.Context, p struct {
		Label string `json:"label"`
	}) (any, error) {
		mu.Lock()
		executed = append(executed, p.Label)
		mu.Unlock()
		return map[string]string{"marked": p.Label}, nil
	}))
	br := newBridge(t, reg, false)

	connA, _ := dialRaw(t, br.Addr())
	connB, _ := dialRaw(t, br.Addr())

	// Interleave across the two connections, gating on queue depth so the
	// arrival order is deterministic.
	conns := []net.Conn{connA, connB, connB, connA, connB, connA}
	var want []string
	for i, nc := range conns {
		label := fmt.Sprintf("cmd%d", i)
		want = append(want, label)
		send(t, nc, fmt.Sprintf(`{"id": %d, "command": "mark", "params": {"label": %q}}`, i, label))
		waitQueueLen(t, br, i+1)
	}

	for br.Tick(context.Background()) > 0 {
	}

	mu.Lock()
	defer mu.Unlock()
	if len(executed) != len(want) {
		t.Fatalf("executed %d commands, want %d", len(executed), len(want))
	}
	for i := range want {
		if executed[i] != want[i] {
			t.Errorf("executed[%d] = %q, want %q", i, executed[i], want[i])
		}
	}
}

func TestBusyRejectionAtCapacity(t *testing.T) {
	var invocations int
	reg := capability.NewRegistry()
	reg.Register(capability.Capability{
		Descriptor: capability.Descriptor{Name: "work"},
		Handler: func(ctx context.Context, params json.RawMessage) (any, error) {
			invocations++
			return nil, nil
		},
	})
	br := newBridge(t, reg, false, scenebridge.WithQueueCapacity(100))

	nc, r := dialRaw(t, br.Addr())
	for i := 1; i <= 100; i++ {
		send(t, nc, fmt.Sprintf(`{"id": %d, "command": "work"}`, i))
	}
	waitQueueLen(t, br, 100)

	send(t, nc, `{"id": 101, "command": "work"}`)
	res := recv(t, r)

	if res.Status != wire.StatusError {
		t.Fatalf("status = %q, want error", res.Status)
	}
	if res.Error.Kind != wire.ErrKindBusy {
		t.Errorf("kind = %q, want %q", res.Error.Kind, wire.ErrKindBusy)
	}
	if res.ID.String() != "101" {
		t.Errorf("id = %q, want 101", res.ID.String())
	}
	if n := br.QueueLen(); n != 100 {
		t.Errorf("queue len = %d after rejection, want 100", n)
	}
	if invocations != 0 {
		t.Errorf("handler ran %d times before any tick", invocations)
	}
}

func TestHandlerFailureDoesNotStallQueue(t *testing.T) {
	reg := capability.NewRegistry()
	scene.Register(reg, scene.NewScene("Scene"))
	br := newBridge(t, reg, true)

	nc, r := dialRaw(t, br.Addr())
	send(t, nc, `{"id": "fail", "command": "delete_object", "params": {"name": "Nope"}}`)
	send(t, nc, `{"id": "ok", "command": "create_object", "params": {"type": "CUBE"}}`)

	first := recv(t, r)
	second := recv(t, r)

	if first.ID.String() != "fail" || first.Status != wire.StatusError {
		t.Errorf("first response = %+v, want failed delete", first)
	}
	if second.ID.String() != "ok" || second.Status != wire.StatusOK {
		t.Errorf("second response = %+v, want successful create", second)
	}
}

func TestDisconnectBeforeCompletion(t *testing.T) {
	var mu sync.Mutex
	var executed []string

	reg := capability.NewRegistry()
	reg.Register(capability.NewHandler("mark", func(ctx context.Context, p struct {
		Label string `json:"label"`
	}) (any, error) {
		mu.Lock()
		executed = append(executed, p.Label)
		mu.Unlock()
		return map[string]string{"marked": p.Label}, nil
	}))
	br := newBridge(t, reg, false)

	doomed, _ := dialRaw(t, br.Addr())
	survivor, survivorR := dialRaw(t, br.Addr())

	send(t, doomed, `{"id": 1, "command": "mark", "params": {"label": "from_doomed"}}`)
	waitQueueLen(t, br, 1)
	send(t, survivor, `{"id": 2, "command": "mark", "params": {"label": "from_survivor"}}`)
	waitQueueLen(t, br, 2)

	_ = doomed.Close()
	// Give the server a moment to notice the disconnect before executing.
	time.Sleep(20 * time.Millisecond)

	if n := br.Tick(context.Background()); n != 2 {
		t.Fatalf("Tick resolved %d commands, want 2", n)
	}

	// Both commands executed despite the disconnect.
	mu.Lock()
	got := append([]string(nil), executed...)
	mu.Unlock()
	if len(got) != 2 || got[0] != "from_doomed" || got[1] != "from_survivor" {
		t.Fatalf("executed = %v, want both commands in order", got)
	}

	// The survivor still gets its response; the doomed connection's is
	// dropped silently.
	res := recv(t, survivorR)
	if res.ID.String() != "2" || res.Status != wire.StatusOK {
		t.Errorf("survivor response = %+v", res)
	}
}

func TestClientAgainstBridge(t *testing.T) {
	reg := capability.NewRegistry()
	scene.Register(reg, scene.NewScene("Scene"))
	br := newBridge(t, reg, true)

	ctx := context.Background()
	client, err := bridgeclient.Dial(ctx, br.Addr())
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer client.Close()

	if err := client.Ping(ctx); err != nil {
		t.Fatalf("Ping: %v", err)
	}

	result, err := client.Call(ctx, "create_object", map[string]any{"type": "SPHERE", "name": "Ball"})
	if err != nil {
		t.Fatalf("create_object: %v", err)
	}
	var created struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(result, &created); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if created.Name != "Ball" {
		t.Errorf("created name = %q", created.Name)
	}

	_, err = client.Call(ctx, "get_object_info", map[string]string{"name": "Cube2"})
	var ce *bridgeclient.CommandError
	if !errors.As(err, &ce) {
		t.Fatalf("err = %v, want *CommandError", err)
	}
	if ce.Message != "Object 'Cube2' not found" {
		t.Errorf("message = %q", ce.Message)
	}

	listing, err := client.ListCommands(ctx)
	if err != nil {
		t.Fatalf("ListCommands: %v", err)
	}
	var commands struct {
		Commands []struct {
			Name string `json:"name"`
		} `json:"commands"`
	}
	if err := json.Unmarshal(listing, &commands); err != nil {
		t.Fatalf("unmarshal listing: %v", err)
	}
	names := map[string]bool{}
	for _, c := range commands.Commands {
		names[c.Name] = true
	}
	for _, want := range []string{"ping", "list_commands", "create_object", "render_scene"} {
		if !names[want] {
			t.Errorf("list_commands missing %q", want)
		}
	}
}
