// Package reaper provides the background sweep that cleans up after
// careless callers: a transaction abandoned without Rollback leaks its
// pending versions until something reaps it.
//
// What: a cron-scheduled sweep that rolls back transactions Active
// longer than a configured age, prunes chain history behind the
// registry's GC watermark, and forgets terminal transaction records the
// pruned chain can no longer reference.
// How: wraps a *cron.Cron with a Start/Stop lifecycle and a single
// registered sweep job.
// Why: scheduling this as a capability the Store wires in, rather than
// a goroutine the registry or chain starts for itself, keeps those
// packages free of any internal timers.
package reaper

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/SimonWaldherr/tinymvcc/internal/chain"
	"github.com/SimonWaldherr/tinymvcc/internal/row"
	"github.com/SimonWaldherr/tinymvcc/internal/txn"
)

// RollbackFunc rolls back an abandoned transaction by ID, matching the
// Store's own Rollback entry point so the reaper never has to touch
// registry/chain internals directly.
type RollbackFunc func(id row.TxID) error

// Reaper periodically rolls back transactions that have been Active
// for longer than MaxAge, and prunes superseded chain history behind
// the oldest remaining active snapshot.
type Reaper struct {
	registry *txn.Registry
	chain    *chain.Index
	rollback RollbackFunc
	logger   *slog.Logger

	maxAge   time.Duration
	schedule string
	cron     *cron.Cron
}

// Config controls the reaper's sweep schedule.
type Config struct {
	// Schedule is a standard 5-field cron expression or a descriptor such
	// as "@every 30s" (robfig/cron syntax). Defaults to once a minute if
	// empty.
	Schedule string

	// MaxAge is how long a transaction may stay Active before the
	// reaper rolls it back. Zero disables abandoned-transaction
	// rollback (pruning still runs).
	MaxAge time.Duration

	Logger *slog.Logger
}

// New builds a Reaper. Call Start to begin sweeping; Stop to halt it.
func New(registry *txn.Registry, idx *chain.Index, rollback RollbackFunc, cfg Config) *Reaper {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	schedule := cfg.Schedule
	if schedule == "" {
		schedule = "@every 1m"
	}

	return &Reaper{
		registry: registry,
		chain:    idx,
		rollback: rollback,
		logger:   cfg.Logger,
		maxAge:   cfg.MaxAge,
		schedule: schedule,
		cron:     cron.New(),
	}
}

// Start registers the sweep and begins the cron scheduler's own
// goroutine. Returns an error only if the schedule expression this
// Reaper was built with cannot be parsed.
func (r *Reaper) Start() error {
	if _, err := r.cron.AddFunc(r.schedule, r.sweep); err != nil {
		return err
	}
	r.cron.Start()
	return nil
}

// Stop halts the cron scheduler and blocks until its goroutine exits.
func (r *Reaper) Stop() {
	ctx := r.cron.Stop()
	<-ctx.Done()
}

// Sweep runs one reaping pass synchronously; Start schedules this to
// run automatically, but tests and callers that want deterministic
// timing can call it directly.
func (r *Reaper) Sweep(_ context.Context) {
	r.sweep()
}

func (r *Reaper) sweep() {
	if r.maxAge > 0 {
		stale := r.registry.ActiveOlderThan(r.maxAge)
		for _, id := range stale {
			if err := r.rollback(id); err != nil {
				r.logger.Warn("reaper: failed to roll back abandoned transaction", "tx", id, "error", err)
				continue
			}
			r.logger.Info("reaper: rolled back abandoned transaction", "tx", id)
		}
	}

	watermark := r.registry.OldestActiveBeginTS()
	collected := r.chain.Prune(watermark)
	if collected > 0 {
		r.logger.Debug("reaper: pruned superseded row versions", "count", collected, "watermark", watermark)
	}

	forgotten := r.registry.TerminalBefore(watermark)
	for _, id := range forgotten {
		r.registry.Forget(id)
	}
	if len(forgotten) > 0 {
		r.logger.Debug("reaper: forgot terminal transaction records", "count", len(forgotten), "watermark", watermark)
	}
}
