package conversations

import (
	"net/http"
	"strconv"

	"leadqual_backend/internal/conversations/domain"
	"leadqual_backend/internal/conversations/service"
	"leadqual_backend/internal/conversations/transport"
	"leadqual_backend/platform/httpkit"
	"leadqual_backend/platform/logger"
	"leadqual_backend/platform/validator"

	"github.com/gin-gonic/gin"
)

const (
	defaultPageSize = 50
	maxPageSize     = 200
)

// Handler exposes the diagnostics API over the conversation store.
type Handler struct {
	service *service.Service
	val     *validator.Validator
	log     *logger.Logger
}

func NewHandler(svc *service.Service, val *validator.Validator, log *logger.Logger) *Handler {
	return &Handler{service: svc, val: val, log: log}
}

// HandleList returns a keyset page of active conversations.
// GET /api/v1/conversations?after=<id>&limit=<n>
func (h *Handler) HandleList(c *gin.Context) {
	limit := defaultPageSize
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			httpkit.Error(c, http.StatusBadRequest, "invalid limit", nil)
			return
		}
		limit = min(parsed, maxPageSize)
	}

	records, err := h.service.ListActive(c.Request.Context(), c.Query("after"), limit)
	if httpkit.HandleError(c, err) {
		return
	}

	resp := transport.ListConversationsResponse{
		Conversations: make([]transport.ConversationResponse, 0, len(records)),
	}
	for _, rec := range records {
		resp.Conversations = append(resp.Conversations, transport.FromRecord(rec))
	}
	if len(records) == limit {
		resp.NextAfter = records[len(records)-1].ConversationID
	}
	httpkit.OK(c, resp)
}

// HandleGet returns one conversation.
// GET /api/v1/conversations/:id
func (h *Handler) HandleGet(c *gin.Context) {
	rec, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.FromRecord(rec))
}

// HandleFunnel reports conversation counts per stage.
// GET /api/v1/conversations/funnel
func (h *Handler) HandleFunnel(c *gin.Context) {
	counts, err := h.service.FunnelSummary(c.Request.Context())
	if httpkit.HandleError(c, err) {
		return
	}

	resp := transport.FunnelSummaryResponse{Stages: make(map[string]int, len(counts))}
	for stage, n := range counts {
		resp.Stages[string(stage)] = n
		resp.Total += n
	}
	httpkit.OK(c, resp)
}

// HandleReset returns a conversation to the initial stage with evidence
// cleared.
// POST /api/v1/conversations/:id/reset
func (h *Handler) HandleReset(c *gin.Context) {
	res, err := h.service.Reset(c.Request.Context(), c.Param("id"))
	if httpkit.HandleError(c, err) {
		return
	}
	h.log.Info("conversation reset",
		"conversation_id", c.Param("id"), "actor", httpkit.GetIdentity(c).UserID().String())
	httpkit.OK(c, res)
}

// HandleInjectSignal applies a signal manually, bypassing the webhook path.
// Used for testing scoring changes and unsticking conversations.
// POST /api/v1/admin/conversations/:id/signals
func (h *Handler) HandleInjectSignal(c *gin.Context) {
	var req transport.InjectSignalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid request body", nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "validation error", err.Error())
		return
	}

	sig := domain.Signal{
		Kind:     domain.SignalKind(req.Kind),
		Payload:  req.Payload,
		DedupKey: req.DedupKey,
	}
	res, err := h.service.HandleInbound(c.Request.Context(), c.Param("id"), sig)
	if httpkit.HandleError(c, err) {
		return
	}
	h.log.Info("signal injected",
		"conversation_id", c.Param("id"), "kind", req.Kind,
		"actor", httpkit.GetIdentity(c).UserID().String())
	httpkit.OK(c, res)
}

// HandlePurge permanently deletes a conversation record.
// DELETE /api/v1/admin/conversations/:id
func (h *Handler) HandlePurge(c *gin.Context) {
	if err := h.service.Purge(c.Request.Context(), c.Param("id")); httpkit.HandleError(c, err) {
		return
	}
	h.log.Info("conversation purged",
		"conversation_id", c.Param("id"), "actor", httpkit.GetIdentity(c).UserID().String())
	c.Status(http.StatusNoContent)
}
