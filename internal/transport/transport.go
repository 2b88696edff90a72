package transport

import "context"

// Transport is the capability set a GTP command channel must provide:
// send one command line, get back the complete raw response frame. It
// replaces duck-typed "has a send method" objects with an explicit
// interface; the subprocess variant (SubprocessTransport) is the
// production implementation, and Scripted is an in-memory test double.
//
// Implementations must serialize concurrent callers in FIFO order: a
// later caller's turn starts only after an earlier caller's turn (command
// written, response fully read) has completed.
type Transport interface {
	// SendCommand sends command (a single GTP command line, no
	// terminating newline, non-empty after trimming) and returns the
	// complete raw response frame including its terminating blank line,
	// suitable for gtp.ParseResponse. Returns ErrInvalidArgument for
	// empty/whitespace-only input, ErrEngineExited if the engine
	// terminated during the turn, or ErrTransportBroken if the channel is
	// otherwise unusable.
	SendCommand(ctx context.Context, command string) (string, error)

	// Close tears down the transport. It is idempotent and safe to call
	// concurrently with in-flight SendCommand calls: it waits for any
	// turn in progress to finish before releasing the underlying
	// process/channel.
	Close() error
}

// Factory constructs a fresh Transport instance. The session manager
// holds one Factory and calls it once per opened session so that every
// session owns an exclusive, independently-lived transport.
type Factory func() (Transport, error)
