// Package webhook provides the inbound traffic bounded context module.
// This file defines the module that encapsulates webhook setup and route
// registration.
package webhook

import (
	"leadqual_backend/internal/events"
	apphttp "leadqual_backend/internal/http"
	"leadqual_backend/internal/scheduler"
	"leadqual_backend/platform/config"
	"leadqual_backend/platform/logger"
	"leadqual_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Module is the webhook bounded context module implementing http.Module.
type Module struct {
	handler *Handler
	service *Service
	cfg     config.MetaWebhookConfig
	log     *logger.Logger
}

// NewModule creates and initializes the webhook module with its dependencies.
func NewModule(orchestrator Orchestrator, composer ReplyComposer, sender MessageSender, pool *pgxpool.Pool, bus events.Bus, cfg config.MetaWebhookConfig, val *validator.Validator, log *logger.Logger) *Module {
	graph := NewGraphClient(cfg)
	var recorder EventRecorder
	if pool != nil {
		recorder = NewRepository(pool)
	}
	service := NewService(orchestrator, composer, sender, graph, recorder, bus, cfg, log)
	handler := NewHandler(service, val)

	return &Module{handler: handler, service: service, cfg: cfg, log: log}
}

// SetFollowUpScheduler wires the optional follow-up scheduler.
func (m *Module) SetFollowUpScheduler(f scheduler.FollowUpScheduler) {
	m.service.SetFollowUpScheduler(f)
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "webhook"
}

// RegisterRoutes mounts webhook routes on the provided router context.
// All webhook routes are public but rate limited; the POST routes are
// additionally signature verified.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	group := ctx.V1.Group("/webhook")
	group.Use(ctx.WebhookRateLimiter.RateLimit())

	group.GET("/meta", m.handler.HandleVerify)

	signed := group.Group("")
	signed.Use(SignatureMiddleware(m.cfg, m.log))
	signed.POST("/meta", m.handler.HandleLeadgen)
	signed.POST("/crm", m.handler.HandleMessage)
}

// Compile-time check that Module implements http.Module
var _ apphttp.Module = (*Module)(nil)
