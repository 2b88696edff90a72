package session

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/basket/fastgtp/internal/transport"
)

// EventKind identifies a session lifecycle event, published to an
// optional observer for the audit store (§4.H) and nowhere else — the
// registry's own correctness never depends on the observer running.
type EventKind string

const (
	EventOpened     EventKind = "opened"
	EventClosed     EventKind = "closed"
	EventIdleClosed EventKind = "idle_closed"
)

// Event describes one session lifecycle transition.
type Event struct {
	SessionID string
	Kind      EventKind
	At        time.Time
	Detail    string
}

type entry struct {
	transport  transport.Transport
	lastActive atomic.Int64 // UnixNano, updated on every GetTransport
}

func (e *entry) touch() {
	e.lastActive.Store(time.Now().UnixNano())
}

func (e *entry) idleSince() time.Time {
	return time.Unix(0, e.lastActive.Load())
}

// Manager maps session IDs to exclusively-owned transports. All
// operations are safe for concurrent use; insertions, lookups, and
// deletions are linearizable against the internal map lock, but
// transport teardown always happens outside that lock so one session's
// slow close can never block another session's lookup (§4.D).
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*entry

	factory transport.Factory
	onEvent func(Event)
}

// New creates a Manager. factory is called once per OpenSession to
// construct that session's exclusively-owned transport. onEvent, if
// non-nil, is invoked (synchronously, from the calling goroutine) for
// every lifecycle transition; callers that want it off the hot path
// should make it non-blocking themselves (see internal/audit).
func New(factory transport.Factory, onEvent func(Event)) *Manager {
	return &Manager{
		sessions: make(map[string]*entry),
		factory:  factory,
		onEvent:  onEvent,
	}
}

// OpenSession constructs a fresh transport via the injected factory,
// allocates a new never-before-seen session ID (a UUIDv4, ≥122 bits of
// randomness, already URL-safe), inserts it atomically, and returns the
// ID. Collisions (astronomically unlikely) are retried.
func (m *Manager) OpenSession(ctx context.Context) (string, error) {
	const maxAttempts = 8
	for attempt := 0; attempt < maxAttempts; attempt++ {
		tr, err := m.factory()
		if err != nil {
			return "", fmt.Errorf("session: open: %w", err)
		}

		id := uuid.NewString()

		m.mu.Lock()
		if _, exists := m.sessions[id]; exists {
			m.mu.Unlock()
			_ = tr.Close()
			continue
		}
		e := &entry{transport: tr}
		e.touch()
		m.sessions[id] = e
		m.mu.Unlock()

		m.publish(Event{SessionID: id, Kind: EventOpened, At: time.Now()})
		return id, nil
	}
	return "", fmt.Errorf("session: open: exhausted %d attempts generating a unique id", maxAttempts)
}

// GetTransport returns the session's transport, or ErrNotFound if the ID
// is unknown (never seen, or already closed — closed IDs never resolve
// again). Lookup is O(1) and wait-free relative to other lookups (an
// RLock, not a channel or exclusive lock).
func (m *Manager) GetTransport(sessionID string) (transport.Transport, error) {
	m.mu.RLock()
	e, ok := m.sessions[sessionID]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("session %q: %w", sessionID, ErrNotFound)
	}
	e.touch()
	return e.transport, nil
}

// CloseSession removes sessionID from the registry atomically and, if it
// was present, tears down its transport (waiting for completion) before
// returning true. A second close (or a close of an unknown/already-closed
// ID) returns false without error — idempotent per §4.D.
func (m *Manager) CloseSession(sessionID string) (bool, error) {
	return m.closeSession(sessionID, EventClosed, "")
}

// CloseIdleSince closes sessionID tagging the audit event as an idle
// timeout rather than an explicit client close. Used by the reaper (§4.J).
func (m *Manager) CloseIdleSince(sessionID string) (bool, error) {
	return m.closeSession(sessionID, EventIdleClosed, "reason=idle_timeout")
}

func (m *Manager) closeSession(sessionID string, kind EventKind, detail string) (bool, error) {
	m.mu.Lock()
	e, ok := m.sessions[sessionID]
	if ok {
		delete(m.sessions, sessionID)
	}
	m.mu.Unlock()

	if !ok {
		return false, nil
	}

	err := e.transport.Close()
	m.publish(Event{SessionID: sessionID, Kind: kind, At: time.Now(), Detail: detail})
	if err != nil {
		return true, fmt.Errorf("session %q: close transport: %w", sessionID, err)
	}
	return true, nil
}

// CloseAll removes every session from the registry and closes every
// transport, in parallel, awaiting all of them. After CloseAll returns,
// OpenSession still works: the manager itself is not shut down.
func (m *Manager) CloseAll() error {
	m.mu.Lock()
	drained := m.sessions
	m.sessions = make(map[string]*entry)
	m.mu.Unlock()

	var wg sync.WaitGroup
	errs := make([]error, len(drained))
	ids := make([]string, 0, len(drained))
	i := 0
	for id, e := range drained {
		ids = append(ids, id)
		wg.Add(1)
		go func(i int, id string, e *entry) {
			defer wg.Done()
			errs[i] = e.transport.Close()
			m.publish(Event{SessionID: id, Kind: EventClosed, At: time.Now(), Detail: "reason=close_all"})
		}(i, id, e)
		i++
	}
	wg.Wait()

	var firstErr error
	for _, err := range errs {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if firstErr != nil {
		return fmt.Errorf("session: close_all: %w", firstErr)
	}
	return nil
}

// Count returns the number of active sessions, for the health endpoint.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// IdleSessionIDs returns the IDs of sessions whose last access is older
// than ttl, for the reaper (§4.J). ttl <= 0 disables idle detection.
func (m *Manager) IdleSessionIDs(ttl time.Duration) []string {
	if ttl <= 0 {
		return nil
	}
	cutoff := time.Now().Add(-ttl)

	m.mu.RLock()
	defer m.mu.RUnlock()
	var idle []string
	for id, e := range m.sessions {
		if e.idleSince().Before(cutoff) {
			idle = append(idle, id)
		}
	}
	return idle
}

func (m *Manager) publish(ev Event) {
	if m.onEvent != nil {
		m.onEvent(ev)
	}
}
