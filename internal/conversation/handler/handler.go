// Package handler exposes the conversation routing state over HTTP for
// the admin panel.
package handler

import (
	"net/http"

	"conversa_backend/internal/conversation/service"
	"conversa_backend/internal/conversation/transport"
	"conversa_backend/platform/httpkit"
	"conversa_backend/platform/phone"
	"conversa_backend/platform/validator"

	"github.com/gin-gonic/gin"
)

const (
	msgInvalidRequest   = "invalid request"
	msgValidationFailed = "validation failed"
	msgInvalidPhone     = "invalid phone number"
)

// Handler handles HTTP requests for conversation state.
type Handler struct {
	svc  *service.Service
	norm *phone.Normalizer
	val  *validator.Validator
}

// New creates a new conversation handler.
func New(svc *service.Service, norm *phone.Normalizer, val *validator.Validator) *Handler {
	return &Handler{svc: svc, norm: norm, val: val}
}

// RegisterRoutes mounts the conversation routes on the given group.
func (h *Handler) RegisterRoutes(group *gin.RouterGroup) {
	group.GET("/:phone", h.GetStatus)
	group.POST("/:phone/handoff", h.TriggerHandoff)
	group.POST("/:phone/close", h.Close)
	group.POST("/:phone/messages", h.SendMessage)
}

func (h *Handler) normalizedPhone(c *gin.Context) (string, bool) {
	normalized, err := h.norm.Normalize(c.Param("phone"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidPhone, err.Error())
		return "", false
	}
	return normalized, true
}

// GetStatus returns the current status and window state for a phone.
// GET /api/v1/conversations/:phone
func (h *Handler) GetStatus(c *gin.Context) {
	normalized, ok := h.normalizedPhone(c)
	if !ok {
		return
	}

	snap, err := h.svc.Snapshot(c.Request.Context(), normalized)
	if httpkit.HandleError(c, err) {
		return
	}

	resp := transport.StatusResponse{
		Phone:          snap.Phone,
		Status:         string(snap.Status),
		WindowOpen:     snap.WindowOpen,
		WindowDegraded: snap.WindowFailedOpen,
	}
	if snap.RemainingTTL > 0 {
		secs := int64(snap.RemainingTTL.Seconds())
		resp.ExpiresInSeconds = &secs
	}
	if snap.LastInboundAt != nil {
		resp.LastInboundAt = snap.LastInboundAt.UTC().Format("2006-01-02T15:04:05Z07:00")
	}

	httpkit.OK(c, resp)
}

// TriggerHandoff escalates a conversation to a human from the panel.
// POST /api/v1/conversations/:phone/handoff
func (h *Handler) TriggerHandoff(c *gin.Context) {
	normalized, ok := h.normalizedPhone(c)
	if !ok {
		return
	}

	var req transport.HandoffRequest
	if err := c.ShouldBindJSON(&req); err != nil && err.Error() != "EOF" {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	ctx := c.Request.Context()
	if err := h.svc.RequestHandoff(ctx, normalized, service.TriggerManual); httpkit.HandleError(c, err) {
		return
	}
	if err := h.svc.ConfirmHandoff(ctx, normalized); httpkit.HandleError(c, err) {
		return
	}

	snap, err := h.svc.Snapshot(ctx, normalized)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.StatusResponse{
		Phone:      snap.Phone,
		Status:     string(snap.Status),
		WindowOpen: snap.WindowOpen,
	})
}

// Close explicitly ends a conversation, returning it to the bot.
// POST /api/v1/conversations/:phone/close
func (h *Handler) Close(c *gin.Context) {
	normalized, ok := h.normalizedPhone(c)
	if !ok {
		return
	}

	resp, err := h.svc.Close(c.Request.Context(), normalized)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, resp)
}

// SendMessage performs an operator-initiated outbound send.
// POST /api/v1/conversations/:phone/messages
func (h *Handler) SendMessage(c *gin.Context) {
	normalized, ok := h.normalizedPhone(c)
	if !ok {
		return
	}

	var req transport.SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	resp, err := h.svc.SendOperatorMessage(c.Request.Context(), normalized, req)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, resp)
}
