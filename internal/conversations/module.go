// Package conversations is the lead qualification bounded context: the stage
// machine, scoring, the conversation store, and the diagnostics API.
package conversations

import (
	"time"

	"leadqual_backend/internal/conversations/repository"
	"leadqual_backend/internal/conversations/scoring"
	"leadqual_backend/internal/conversations/service"
	apphttp "leadqual_backend/internal/http"
	"leadqual_backend/platform/events"
	"leadqual_backend/platform/logger"
	"leadqual_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

// Module is the conversations bounded context module implementing
// http.Module.
type Module struct {
	service *service.Service
	handler *Handler
}

// Options carries the tunables the composition root resolves from config.
type Options struct {
	Retry       service.RetryPolicy
	DedupWindow time.Duration
}

// NewModule creates and initializes the conversations module with its
// dependencies. The redis client may be nil; dedup is then disabled.
func NewModule(pool *pgxpool.Pool, rdb *redis.Client, model *scoring.Model, bus events.Bus, opts Options, val *validator.Validator, log *logger.Logger) *Module {
	store := repository.New(pool)

	var dedup service.DedupStore
	if rdb != nil {
		dedup = service.NewRedisDedup(rdb, opts.DedupWindow)
	}

	svc := service.New(store, dedup, model, bus, log, opts.Retry)
	handler := NewHandler(svc, val, log)

	return &Module{service: svc, handler: handler}
}

// Service exposes the orchestrator for wiring into other modules.
func (m *Module) Service() *service.Service {
	return m.service
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "conversations"
}

// RegisterRoutes mounts the diagnostics routes. Reads and resets require
// authentication; signal injection and purges require the admin role.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	group := ctx.Protected.Group("/conversations")
	group.GET("", m.handler.HandleList)
	group.GET("/funnel", m.handler.HandleFunnel)
	group.GET("/:id", m.handler.HandleGet)
	group.POST("/:id/reset", m.handler.HandleReset)

	admin := ctx.Admin.Group("/conversations")
	admin.POST("/:id/signals", m.handler.HandleInjectSignal)
	admin.DELETE("/:id", m.handler.HandlePurge)
}

// Compile-time check that Module implements http.Module
var _ apphttp.Module = (*Module)(nil)
