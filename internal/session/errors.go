// Package session implements the concurrent session registry (§4.D): a
// map from opaque session IDs to exclusively-owned transports, with safe
// creation, lookup, termination, and bulk shutdown.
package session

import "errors"

// ErrNotFound marks lookup/close of a session ID that is not (or is no
// longer) in the registry.
var ErrNotFound = errors.New("session: not found")
