// Package sweeper runs the periodic idle-expiry pass over conversations.
package sweeper

import (
	"context"
	"time"

	"leadqual_backend/platform/config"
	"leadqual_backend/platform/logger"
)

// Sweeper closes conversations idle past the cutoff. Satisfied by
// conversations/service.Service.
type Sweeper interface {
	SweepExpired(ctx context.Context, cutoff time.Time) (int, error)
}

// Runner invokes the sweep on a fixed interval until its context is
// cancelled. Sweep errors are logged and the next tick proceeds; a transient
// store outage must not stop the loop.
type Runner struct {
	sweeper    Sweeper
	interval   time.Duration
	idleExpiry time.Duration
	log        *logger.Logger
	now        func() time.Time
}

func NewRunner(sweeper Sweeper, cfg config.SweepConfig, log *logger.Logger) *Runner {
	return &Runner{
		sweeper:    sweeper,
		interval:   cfg.GetSweepInterval(),
		idleExpiry: cfg.GetIdleExpiry(),
		log:        log,
		now:        time.Now,
	}
}

// Run blocks until ctx is cancelled. One sweep runs immediately on start so
// a restart never leaves expired records waiting a full interval.
func (r *Runner) Run(ctx context.Context) {
	r.log.Info("sweeper started", "interval", r.interval.String(), "idle_expiry", r.idleExpiry.String())

	r.sweep(ctx)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.log.Info("sweeper stopped")
			return
		case <-ticker.C:
			r.sweep(ctx)
		}
	}
}

func (r *Runner) sweep(ctx context.Context) {
	cutoff := r.now().Add(-r.idleExpiry)
	closed, err := r.sweeper.SweepExpired(ctx, cutoff)
	if err != nil {
		r.log.Error("sweep pass failed", "error", err.Error())
		return
	}
	if closed > 0 {
		r.log.Info("sweep pass completed", "closed", closed)
	}
}
