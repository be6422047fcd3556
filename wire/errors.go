package wire

// ErrorKind classifies a failed Command. Kinds are part of the wire
// protocol: clients dispatch on them, so the strings are stable.
type ErrorKind string

const (
	// ErrKindProtocol indicates a malformed or unparseable message. Resolved
	// on the network goroutine; the command never reaches the queue.
	ErrKindProtocol ErrorKind = "ProtocolError"
	// ErrKindUnknownCommand indicates no handler is registered for the
	// command name.
	ErrKindUnknownCommand ErrorKind = "UnknownCommand"
	// ErrKindValidation indicates a recognized command with malformed
	// parameters.
	ErrKindValidation ErrorKind = "ValidationError"
	// ErrKindExecution indicates the handler ran and failed.
	ErrKindExecution ErrorKind = "ExecutionError"
	// ErrKindBusy indicates the command queue was at capacity. Resolved on
	// the network goroutine without blocking.
	ErrKindBusy ErrorKind = "BusyError"
	// ErrKindIdleTimeout indicates the connection was closed for inactivity.
	ErrKindIdleTimeout ErrorKind = "IdleTimeout"
	// ErrKindInternal indicates an unexpected failure inside the bridge
	// itself. Detail is logged server-side; the client sees a generic
	// message.
	ErrKindInternal ErrorKind = "InternalError"
)
