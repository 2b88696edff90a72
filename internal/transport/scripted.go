package transport

import (
	"context"
	"fmt"
	"sync"
)

// Scripted is an in-memory Transport test double. It hands each received
// command to Handler and serializes calls exactly like SubprocessTransport
// does, so tests can exercise the session manager and REST adapter
// without spawning a real engine process.
type Scripted struct {
	// Handler computes the raw response frame for a command. It is called
	// with the turn lock held, so it may safely mutate test-local state
	// without additional synchronization.
	Handler func(command string) (string, error)

	mu       sync.Mutex
	sem      chan struct{}
	closed   bool
	commands []string
}

// NewScripted creates a Scripted transport around handler.
func NewScripted(handler func(command string) (string, error)) *Scripted {
	return &Scripted{
		Handler: handler,
		sem:     make(chan struct{}, 1),
	}
}

// Commands returns, in receipt order, every command passed to SendCommand
// so far. Useful for asserting interleaving/no-crossover invariants (§8).
func (s *Scripted) Commands() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.commands...)
}

func (s *Scripted) SendCommand(ctx context.Context, command string) (string, error) {
	select {
	case s.sem <- struct{}{}:
	case <-ctx.Done():
		return "", fmt.Errorf("transport: %w waiting for turn slot", ctx.Err())
	}
	defer func() { <-s.sem }()

	s.mu.Lock()
	closed := s.closed
	if !closed {
		s.commands = append(s.commands, command)
	}
	s.mu.Unlock()

	if closed {
		return "", fmt.Errorf("%w: transport closed", ErrTransportBroken)
	}
	return s.Handler(command)
}

func (s *Scripted) Close() error {
	s.sem <- struct{}{}
	defer func() { <-s.sem }()

	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}
