package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"leadqual_backend/internal/conversations"
	"leadqual_backend/internal/conversations/agent"
	"leadqual_backend/internal/conversations/scoring"
	"leadqual_backend/internal/conversations/service"
	"leadqual_backend/internal/crm"
	apphttp "leadqual_backend/internal/http"
	"leadqual_backend/internal/http/router"
	"leadqual_backend/internal/notify"
	"leadqual_backend/internal/scheduler"
	"leadqual_backend/internal/webhook"
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

	// Initialize structured logger
	log := logger.New(cfg.Env)
	log.Info("starting server", "env", cfg.Env, "addr", cfg.HTTPAddr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ========================================================================
	// Infrastructure Layer
	// ========================================================================

	if err := withRetry(ctx, log, "database migrations", 5, 2*time.Second, func() error {
		return db.RunMigrations(ctx, cfg, "migrations")
	}); err != nil {
		log.Error("failed to run database migrations", "error", err)
		panic("failed to run database migrations: " + err.Error())
	}
	log.Info("database migrations complete")

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
	log.Info("database connection established")

	// Event bus for decoupled communication between modules
	eventBus := events.NewInMemoryBus(log)

	rdb := newRedisClient(cfg, log)
	if rdb != nil {
		defer func() { _ = rdb.Close() }()
	}

	scoringModel := loadScoringModel(cfg, log)

	// Shared validator instance for dependency injection
	val := validator.New()

	// ========================================================================
	// Domain Modules (Composition Root)
	// ========================================================================

	conversationsModule := conversations.NewModule(pool, rdb, scoringModel, eventBus, conversations.Options{
		Retry: service.RetryPolicy{
			MaxAttempts: cfg.GetMaxWriteAttempts(),
			BackoffBase: cfg.GetWriteBackoffBase(),
		},
		DedupWindow: cfg.GetDedupWindow(),
	}, val, log)

	crmClient := crm.NewClient(cfg, log)
	crmSync := crm.NewSync(crmClient, log)
	crmSync.Register(eventBus)

	notifyModule := notify.NewModule(cfg, log)
	notifyModule.Register(eventBus)

	responder := agent.NewResponder(cfg, conversationsModule.Service())

	webhookModule := webhook.NewModule(
		conversationsModule.Service(), responder, crmClient, pool, eventBus, cfg, val, log)

	taskClient := scheduler.NewClient(cfg)
	if taskClient != nil {
		defer func() { _ = taskClient.Close() }()
		webhookModule.SetFollowUpScheduler(taskClient)
	} else {
		log.Warn("REDIS_ADDR not configured; follow-up scheduling disabled")
	}

	// ========================================================================
	// HTTP Layer
	// ========================================================================

	app := &apphttp.App{
		Config:   cfg,
		Logger:   log,
		Health:   db.NewPoolAdapter(pool),
		EventBus: eventBus,
		Modules: []apphttp.Module{
			conversationsModule,
			webhookModule,
		},
	}

	engine := router.New(app)

	srvErr := make(chan error, 1)
	go func() {
		log.Info("server listening", "addr", cfg.HTTPAddr)
		srvErr <- engine.Run(cfg.HTTPAddr)
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received, gracefully shutting down")
		eventBus.Wait()
	case err := <-srvErr:
		if err != nil {
			log.Error("server error", "error", err)
			panic("server error: " + err.Error())
		}
	}
}

func newRedisClient(cfg config.RedisConfig, log *logger.Logger) *redis.Client {
	if cfg.GetRedisAddr() == "" {
		log.Warn("REDIS_ADDR not configured; message dedup disabled")
		return nil
	}
	return redis.NewClient(&redis.Options{
		Addr:     cfg.GetRedisAddr(),
		Password: cfg.GetRedisPassword(),
		DB:       cfg.GetRedisDB(),
	})
}

func loadScoringModel(cfg config.ConversationConfig, log *logger.Logger) *scoring.Model {
	path := cfg.GetScoringConfigPath()
	if path == "" {
		log.Info("using built-in scoring config")
		return scoring.NewModel(scoring.Default())
	}

	sc, err := scoring.Load(path)
	if err != nil {
		log.Error("failed to load scoring config", "path", path, "error", err)
		panic("failed to load scoring config: " + err.Error())
	}
	log.Info("scoring config loaded", "path", path)
	return scoring.NewModel(sc)
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
