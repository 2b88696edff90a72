// Package audit persists session lifecycle and turn events to a
// WAL-mode SQLite database for offline inspection. It never feeds back
// into the live session registry: the audit store records history, it
// does not reconstruct state (§4.H).
package audit

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Store is a single-writer SQLite sink for session_events and turn_log
// rows. All writes go through a buffered channel and are applied by one
// background goroutine, so a slow or busy disk never blocks a session's
// hot path.
type Store struct {
	db     *sql.DB
	logger *slog.Logger

	writes chan write
	done   chan struct{}
}

type write struct {
	query string
	args  []any
}

// DefaultDBPath returns ~/.fastgtp/audit.db, falling back to the current
// directory if the home directory cannot be determined.
func DefaultDBPath() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		home = "."
	}
	return filepath.Join(home, ".fastgtp", "audit.db")
}

// Open opens (creating if necessary) the audit database at path, or the
// default path if path is empty. path == ":memory:" is honored verbatim
// for tests.
func Open(path string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if path == "" {
		path = DefaultDBPath()
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("audit: create db directory: %w", err)
		}
	}

	dsn := fmt.Sprintf("%s?_busy_timeout=5000&_foreign_keys=on", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("audit: open sqlite3: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &Store{
		db:     db,
		logger: logger,
		writes: make(chan write, 256),
		done:   make(chan struct{}),
	}
	if err := s.configurePragmas(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := s.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}

	go s.writeLoop()
	return s, nil
}

func (s *Store) configurePragmas(ctx context.Context) error {
	for _, q := range []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
	} {
		if _, err := s.db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("audit: set pragma %q: %w", q, err)
		}
	}
	return nil
}

func (s *Store) initSchema(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("audit: begin schema tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS session_events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id TEXT NOT NULL,
			event TEXT NOT NULL,
			detail TEXT NOT NULL DEFAULT '',
			at DATETIME NOT NULL
		);
	`); err != nil {
		return fmt.Errorf("audit: create session_events: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS turn_log (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id TEXT NOT NULL,
			command TEXT NOT NULL,
			success INTEGER NOT NULL,
			at DATETIME NOT NULL
		);
	`); err != nil {
		return fmt.Errorf("audit: create turn_log: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		CREATE INDEX IF NOT EXISTS idx_session_events_session ON session_events(session_id);
	`); err != nil {
		return fmt.Errorf("audit: create session_events index: %w", err)
	}

	return tx.Commit()
}

// RecordSessionEvent enqueues a session lifecycle row. It never blocks
// the caller on disk I/O; if the write queue is full the event is
// dropped and logged, since the audit trail is a best-effort record,
// not a source of truth (§4.H).
func (s *Store) RecordSessionEvent(sessionID, event, detail string) {
	s.enqueue(write{
		query: `INSERT INTO session_events (session_id, event, detail, at) VALUES (?, ?, ?, ?);`,
		args:  []any{sessionID, event, detail, time.Now().UTC()},
	})
}

// RecordTurn enqueues a turn_log row. command is the GTP command name
// only, never its arguments (§4.I keeps argument payloads out of
// telemetry and the audit trail alike).
func (s *Store) RecordTurn(sessionID, command string, success bool) {
	successInt := 0
	if success {
		successInt = 1
	}
	s.enqueue(write{
		query: `INSERT INTO turn_log (session_id, command, success, at) VALUES (?, ?, ?, ?);`,
		args:  []any{sessionID, command, successInt, time.Now().UTC()},
	})
}

func (s *Store) enqueue(w write) {
	select {
	case s.writes <- w:
	default:
		s.logger.Warn("audit: write queue full, dropping event", "query", w.query)
	}
}

func (s *Store) writeLoop() {
	defer close(s.done)
	for w := range s.writes {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := retryOnBusy(ctx, 5, func() error {
			_, err := s.db.ExecContext(ctx, w.query, w.args...)
			return err
		})
		cancel()
		if err != nil {
			s.logger.Error("audit: write failed", "error", err)
		}
	}
}

// DB exposes the underlying *sql.DB for tests and diagnostics.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Close stops accepting writes, drains the pending queue, and closes
// the database.
func (s *Store) Close() error {
	close(s.writes)
	<-s.done
	return s.db.Close()
}

// retryOnBusy retries f when SQLite reports BUSY or LOCKED, with
// exponential backoff and jitter bounded by ctx.
func retryOnBusy(ctx context.Context, maxRetries int, f func() error) error {
	const baseDelay = 50 * time.Millisecond
	const maxDelay = 500 * time.Millisecond

	var err error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		err = f()
		if err == nil {
			return nil
		}
		if !isSQLiteBusy(err) {
			return err
		}
		if attempt == maxRetries {
			return err
		}
		delay := baseDelay << uint(attempt)
		if delay > maxDelay {
			delay = maxDelay
		}
		jitter := time.Duration(rand.IntN(int(delay / 2)))
		delay = delay - delay/4 + jitter

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "database table is locked") ||
		strings.Contains(msg, "(5)") ||
		strings.Contains(msg, "(6)")
}
