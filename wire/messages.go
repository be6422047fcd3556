package wire

import (
	"encoding/json"
	"fmt"
)

// Status is the outcome field of a Response.
type Status string

const (
	StatusOK    Status = "ok"
	StatusError Status = "error"
)

// Command is a single client-to-server instruction: invoke the named
// capability with the given parameters.
type Command struct {
	ID      *RequestID      `json:"id"`
	Command string          `json:"command"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// UnmarshalJSON enforces message shape: a command name is mandatory and the
// correlation id must be present so the eventual Response can be routed.
func (c *Command) UnmarshalJSON(data []byte) error {
	type rawCommand struct {
		ID      *RequestID      `json:"id"`
		Command string          `json:"command"`
		Params  json.RawMessage `json:"params,omitempty"`
	}

	var raw rawCommand
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	if raw.Command == "" {
		return fmt.Errorf("message missing command field")
	}
	if raw.ID.IsNil() {
		return fmt.Errorf("message missing id field")
	}

	c.ID = raw.ID
	c.Command = raw.Command
	c.Params = raw.Params
	return nil
}

// Response is the server-to-client answer to a Command. Exactly one of
// Result (status "ok") or Error (status "error") is populated.
type Response struct {
	ID     *RequestID      `json:"id"`
	Status Status          `json:"status"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *Error          `json:"error,omitempty"`
}

// Error is the structured error descriptor carried by a failed Response.
type Error struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
}

// NewResultResponse builds a successful Response for the given id.
func NewResultResponse(id *RequestID, result any) (*Response, error) {
	resultBytes, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal result: %w", err)
	}

	return &Response{
		ID:     id,
		Status: StatusOK,
		Result: resultBytes,
	}, nil
}

// NewErrorResponse builds an error Response with the given kind and message.
func NewErrorResponse(id *RequestID, kind ErrorKind, message string) *Response {
	return &Response{
		ID:     id,
		Status: StatusError,
		Error: &Error{
			Kind:    kind,
			Message: message,
		},
	}
}
