package webhook

import (
	"net/http"

	"leadqual_backend/platform/httpkit"
	"leadqual_backend/platform/validator"

	"github.com/gin-gonic/gin"
)

// Handler handles webhook HTTP requests.
type Handler struct {
	service *Service
	val     *validator.Validator
}

func NewHandler(service *Service, val *validator.Validator) *Handler {
	return &Handler{service: service, val: val}
}

// HandleVerify answers the subscription handshake.
// GET /api/v1/webhook/meta
func (h *Handler) HandleVerify(c *gin.Context) {
	challenge, err := h.service.VerifyChallenge(
		c.Query("hub.mode"),
		c.Query("hub.verify_token"),
		c.Query("hub.challenge"),
	)
	if httpkit.HandleError(c, err) {
		return
	}
	c.String(http.StatusOK, challenge)
}

// HandleLeadgen processes a signed leadgen notification.
// POST /api/v1/webhook/meta
func (h *Handler) HandleLeadgen(c *gin.Context) {
	var payload LeadgenNotification
	if err := c.ShouldBindJSON(&payload); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid request body", nil)
		return
	}

	accepted, err := h.service.ProcessLeadgen(c.Request.Context(), payload, RawBody(c))
	if httpkit.HandleError(c, err) {
		return
	}
	c.JSON(http.StatusOK, gin.H{"accepted": accepted})
}

// HandleMessage processes an inbound CRM conversation message.
// POST /api/v1/webhook/crm
func (h *Handler) HandleMessage(c *gin.Context) {
	var msg InboundMessage
	if err := c.ShouldBindJSON(&msg); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid request body", nil)
		return
	}
	if err := h.val.Struct(msg); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "validation error", err.Error())
		return
	}

	res, err := h.service.ProcessMessage(c.Request.Context(), msg)
	if httpkit.HandleError(c, err) {
		return
	}
	c.JSON(http.StatusOK, res)
}
