// Package reaper periodically closes sessions that have been idle past
// a configured TTL (§4.J). It ticks on a plain interval rather than a
// cron expression — the reaper has no calendar schedule to honor, just
// an idle deadline to re-check — but keeps the same background-loop
// shape a calendar-driven scheduler would use.
package reaper

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/basket/fastgtp/internal/session"
)

// Config holds the dependencies for the reaper.
type Config struct {
	Manager *session.Manager
	Logger  *slog.Logger

	// IdleTTL is how long a session may sit unused before it is closed.
	// IdleTTL <= 0 disables the reaper entirely.
	IdleTTL time.Duration

	// Interval is the tick rate. If zero, it defaults to IdleTTL/4,
	// floored at 30 seconds, per §4.J.
	Interval time.Duration
}

// Reaper owns the background goroutine that closes idle sessions.
type Reaper struct {
	manager *session.Manager
	logger  *slog.Logger
	idleTTL time.Duration
	interval time.Duration

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a Reaper with the given config. It does not start the
// loop; call Start for that.
func New(cfg Config) *Reaper {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	interval := cfg.Interval
	if interval <= 0 {
		interval = cfg.IdleTTL / 4
		if interval < 30*time.Second {
			interval = 30 * time.Second
		}
	}
	return &Reaper{
		manager:  cfg.Manager,
		logger:   logger,
		idleTTL:  cfg.IdleTTL,
		interval: interval,
	}
}

// Start begins the reaper loop in the background. If the configured
// IdleTTL is <= 0, Start is a no-op: the reaper is disabled.
func (r *Reaper) Start(ctx context.Context) {
	if r.idleTTL <= 0 {
		r.logger.Info("reaper disabled (idle ttl <= 0)")
		return
	}
	ctx, r.cancel = context.WithCancel(ctx)
	r.wg.Add(1)
	go r.loop(ctx)
	r.logger.Info("reaper started", "idle_ttl", r.idleTTL, "interval", r.interval)
}

// Stop cancels the reaper loop and waits for it to exit. Safe to call
// even if Start was a no-op.
func (r *Reaper) Stop() {
	if r.cancel != nil {
		r.cancel()
	}
	r.wg.Wait()
}

func (r *Reaper) loop(ctx context.Context) {
	defer r.wg.Done()

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.tick()
		}
	}
}

func (r *Reaper) tick() {
	idle := r.manager.IdleSessionIDs(r.idleTTL)
	for _, id := range idle {
		closed, err := r.manager.CloseIdleSince(id)
		if err != nil {
			r.logger.Error("reaper: closing idle session failed", "session_id", id, "error", err)
			continue
		}
		if closed {
			r.logger.Info("reaper: closed idle session", "session_id", id)
		}
	}
}
