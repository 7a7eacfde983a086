// Package handler receives provider webhook callbacks.
package handler

import (
	"net/http"
	"time"

	"conversa_backend/internal/conversation/domain"
	"conversa_backend/internal/webhook/service"
	"conversa_backend/internal/webhook/transport"
	"conversa_backend/platform/httpkit"
	"conversa_backend/platform/phone"

	"github.com/gin-gonic/gin"
)

const msgInvalidRequest = "invalid request"

type Handler struct {
	svc  *service.Service
	norm *phone.Normalizer
}

func New(svc *service.Service, norm *phone.Normalizer) *Handler {
	return &Handler{svc: svc, norm: norm}
}

func (h *Handler) RegisterRoutes(group *gin.RouterGroup) {
	group.POST("/whatsapp", h.Inbound)
	group.POST("/whatsapp/status", h.DeliveryStatus)
}

// Inbound routes one client message from the provider.
// POST /api/v1/webhooks/whatsapp
func (h *Handler) Inbound(c *gin.Context) {
	var req transport.WebhookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, err.Error())
		return
	}

	normalized, err := h.norm.Normalize(req.From)
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid phone number", err.Error())
		return
	}

	resp, err := h.svc.ProcessInbound(c.Request.Context(), domain.InboundMessage{
		Phone:         normalized,
		Body:          req.Body,
		ProfileName:   req.ProfileName,
		ChannelOrigin: req.Channel,
		ReceivedAt:    time.Now(),
	})
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, resp)
}

// DeliveryStatus acknowledges a provider delivery status callback.
// POST /api/v1/webhooks/whatsapp/status
func (h *Handler) DeliveryStatus(c *gin.Context) {
	var req transport.StatusCallbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, err.Error())
		return
	}

	h.svc.RecordDeliveryStatus(req)
	c.Status(http.StatusNoContent)
}
