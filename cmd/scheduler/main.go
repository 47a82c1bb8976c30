// The scheduler binary runs the background side of the pipeline: the
// periodic idle-expiry sweep and the asynq worker for follow-up tasks.
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"leadqual_backend/internal/conversations"
	"leadqual_backend/internal/conversations/scoring"
	"leadqual_backend/internal/conversations/service"
	"leadqual_backend/internal/crm"
	"leadqual_backend/internal/notify"
	"leadqual_backend/internal/scheduler"
	"leadqual_backend/internal/sweeper"
	"leadqual_backend/platform/config"
	"leadqual_backend/platform/db"
	"leadqual_backend/platform/events"
	"leadqual_backend/platform/logger"
	"leadqual_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log := logger.New(cfg.Env)
	log.Info("starting scheduler", "env", cfg.Env)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var pool *pgxpool.Pool
	if err := withRetry(ctx, log, "database connection", 5, 2*time.Second, func() error {
		p, err := db.NewPool(ctx, cfg)
		if err != nil {
			return err
		}
		pool = p
		return nil
	}); err != nil {
		log.Error("failed to connect to database", "error", err)
		panic("failed to connect to database: " + err.Error())
	}
	defer pool.Close()

	eventBus := events.NewInMemoryBus(log)

	var rdb *redis.Client
	if cfg.GetRedisAddr() != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.GetRedisAddr(),
			Password: cfg.GetRedisPassword(),
			DB:       cfg.GetRedisDB(),
		})
		defer func() { _ = rdb.Close() }()
	}

	var scoringModel *scoring.Model
	if path := cfg.GetScoringConfigPath(); path != "" {
		sc, err := scoring.Load(path)
		if err != nil {
			log.Error("failed to load scoring config", "path", path, "error", err)
			panic("failed to load scoring config: " + err.Error())
		}
		scoringModel = scoring.NewModel(sc)
	} else {
		scoringModel = scoring.NewModel(scoring.Default())
	}

	val := validator.New()

	// Sweep closes publish the same events as live turns, so the CRM sync
	// and sales notifications must be wired here too.
	crmClient := crm.NewClient(cfg, log)
	crm.NewSync(crmClient, log).Register(eventBus)
	notify.NewModule(cfg, log).Register(eventBus)

	conversationsModule := conversations.NewModule(pool, rdb, scoringModel, eventBus, conversations.Options{
		Retry: service.RetryPolicy{
			MaxAttempts: cfg.GetMaxWriteAttempts(),
			BackoffBase: cfg.GetWriteBackoffBase(),
		},
		DedupWindow: cfg.GetDedupWindow(),
	}, val, log)
	svc := conversationsModule.Service()

	worker := scheduler.NewWorker(cfg, svc, svc, crmClient, log)
	if worker == nil {
		// No Redis: sweep inline on the periodic loop.
		log.Warn("REDIS_ADDR not configured; running in-process sweep loop only")
		go sweeper.NewRunner(svc, cfg, log).Run(ctx)
		<-ctx.Done()
	} else {
		// With a worker available, the periodic loop enqueues the sweep
		// task so the pass runs with asynq's retry semantics.
		tasks := scheduler.NewClient(cfg)
		defer func() { _ = tasks.Close() }()
		go sweeper.NewRunner(taskSweeper{tasks: tasks}, cfg, log).Run(ctx)
		worker.Run(ctx)
	}

	eventBus.Wait()
	log.Info("scheduler stopped")
}

// taskSweeper routes periodic sweep passes through the asynq queue; the
// worker computes the cutoff when it executes the task.
type taskSweeper struct {
	tasks *scheduler.Client
}

func (t taskSweeper) SweepExpired(ctx context.Context, _ time.Time) (int, error) {
	return 0, t.tasks.EnqueueSweep(ctx)
}

func withRetry(ctx context.Context, log *logger.Logger, name string, attempts int, baseDelay time.Duration, fn func() error) error {
	if attempts < 1 {
		return errors.New(name + ": invalid retry attempts")
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := fn(); err == nil {
			return nil
		} else {
			lastErr = err
			log.Warn("retryable operation failed", "operation", name, "attempt", attempt, "error", err)
		}

		if attempt < attempts {
			delay := time.Duration(attempt*attempt) * baseDelay
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
	}

	return errors.New(name + ": " + lastErr.Error())
}
