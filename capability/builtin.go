package capability

import (
	"context"
	"encoding/json"
)

// Builtins returns the bridge's built-in capabilities, closed over the given
// registry:
//
//   - ping: liveness no-op. A successful ping proves the whole path from
//     socket to queue to host tick is moving.
//   - list_commands: introspection; returns the descriptor of every
//     registered capability, including the built-ins.
//
// The facade registers these at startup; a host integration that registers
// its own handler under either name wins.
func Builtins(r *Registry) []Capability {
	return []Capability{
		{
			Descriptor: Descriptor{
				Name:        "ping",
				Description: "No-op liveness probe resolved on the host main loop",
			},
			Handler: func(ctx context.Context, _ json.RawMessage) (any, error) {
				return map[string]any{"pong": true}, nil
			},
		},
		{
			Descriptor: Descriptor{
				Name:        "list_commands",
				Description: "List every registered command with its params schema",
			},
			Handler: func(ctx context.Context, _ json.RawMessage) (any, error) {
				return map[string]any{"commands": r.Snapshot()}, nil
			},
		},
	}
}
