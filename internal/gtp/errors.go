// Package gtp implements the Go Text Protocol wire codec: parsing and
// serializing command lines and multi-line responses. It performs no I/O.
package gtp

import "errors"

// Sentinel errors for the codec's error taxonomy. Callers should use
// errors.Is against these, since the concrete errors returned always wrap
// one of them with additional context via fmt.Errorf("...: %w", ...).
var (
	// ErrInvalidArgument marks a contract violation in caller-supplied bytes:
	// an empty command name, a malformed identifier, whitespace inside an
	// argument, or empty/whitespace-only input to a parser.
	ErrInvalidArgument = errors.New("gtp: invalid argument")

	// ErrMalformedResponse marks an engine reply that could not be parsed
	// per the framing rules in §4.A: no status line found before input ran out.
	ErrMalformedResponse = errors.New("gtp: malformed response")

	// ErrIdentifierMismatch marks a response whose echoed identifier
	// disagrees with the identifier the caller expected (including a
	// presence/absence mismatch).
	ErrIdentifierMismatch = errors.New("gtp: identifier mismatch")
)
