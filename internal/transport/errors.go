// Package transport implements the "send one command, receive one
// response" turn abstraction (§4.B) and its subprocess-backed
// implementation (§4.C): a supervised engine child process with
// serialized request/response turns over its standard streams.
package transport

import "errors"

// Sentinel errors for the transport error taxonomy. Concrete errors wrap
// one of these via fmt.Errorf("...: %w", ...).
var (
	// ErrInvalidArgument marks an empty (or whitespace-only) command.
	ErrInvalidArgument = errors.New("transport: invalid argument")

	// ErrTransportBroken marks an unusable channel: a write failed (broken
	// pipe) or the transport was closed underneath an in-flight caller.
	ErrTransportBroken = errors.New("transport: broken")

	// ErrEngineExited marks a subprocess that terminated during a turn
	// (or that is already known dead from a prior turn). It is terminal:
	// the caller must recreate the transport to try again.
	ErrEngineExited = errors.New("transport: engine exited")
)
