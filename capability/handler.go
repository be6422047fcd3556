package capability

import (
	"bytes"
	"context"
	"encoding/json"
	"reflect"

	"github.com/invopop/jsonschema"
)

// HandlerOption configures NewHandler behavior.
type HandlerOption func(*handlerConfig)

type handlerConfig struct {
	description        string
	allowUnknownFields bool // default false (strict)
}

// WithDescription sets the capability description used in listings.
func WithDescription(desc string) HandlerOption {
	return func(c *handlerConfig) { c.description = desc }
}

// WithAllowUnknownFields controls whether unrecognized parameter fields are
// tolerated. When false (default), the reflected schema sets
// additionalProperties=false and runtime decoding rejects unknown fields
// with a ValidationError.
func WithAllowUnknownFields(allow bool) HandlerOption {
	return func(c *handlerConfig) { c.allowUnknownFields = allow }
}

// NewHandler constructs a Capability from a typed params struct A. It:
//   - Reflects a JSON Schema from A using invopop/jsonschema
//   - Builds the descriptor with the provided name and options
//   - Wraps the handler with runtime JSON decoding (rejecting unknown fields
//     by default)
//
// Decode failures surface as ValidationError; the wrapped function is only
// invoked with well-formed arguments.
func NewHandler[A any](name string, fn func(ctx context.Context, args A) (any, error), opts ...HandlerOption) Capability {
	cfg := handlerConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}

	desc := Descriptor{
		Name:         name,
		Description:  cfg.description,
		ParamsSchema: reflectParamsSchema[A](cfg.allowUnknownFields),
	}

	handler := func(ctx context.Context, params json.RawMessage) (any, error) {
		var a A
		if len(params) > 0 && !bytes.Equal(params, []byte("null")) {
			if cfg.allowUnknownFields {
				if err := json.Unmarshal(params, &a); err != nil {
					return nil, ValidationErrorf("invalid params: %v", err)
				}
			} else {
				dec := json.NewDecoder(bytes.NewReader(params))
				dec.DisallowUnknownFields()
				if err := dec.Decode(&a); err != nil {
					return nil, ValidationErrorf("invalid params: %v", err)
				}
			}
		}
		return fn(ctx, a)
	}

	return Capability{Descriptor: desc, Handler: handler}
}

// reflectParamsSchema reflects a Go type A into a JSON Schema document for
// the descriptor. The unknown-field policy is surfaced via
// additionalProperties so clients can see it.
func reflectParamsSchema[A any](allowUnknown bool) json.RawMessage {
	// ExpandedStruct reflection needs a named struct type to hoist to the
	// root. Anonymous and empty param types get a bare object schema.
	if t := reflect.TypeFor[A](); t.Kind() != reflect.Struct || t.Name() == "" || t.NumField() == 0 {
		if allowUnknown {
			return json.RawMessage(`{"type":"object"}`)
		}
		return json.RawMessage(`{"type":"object","additionalProperties":false}`)
	}

	r := &jsonschema.Reflector{
		DoNotReference:            true, // inline defs
		ExpandedStruct:            true, // put struct at root
		AllowAdditionalProperties: allowUnknown,
	}
	s := r.Reflect(new(A))
	if s == nil {
		return nil
	}
	b, err := json.Marshal(s)
	if err != nil {
		return nil
	}
	return b
}
