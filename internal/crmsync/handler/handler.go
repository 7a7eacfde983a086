// Package handler exposes the lead sync engine over HTTP for the admin
// panel.
package handler

import (
	"net/http"

	"conversa_backend/internal/crmsync/service"
	"conversa_backend/internal/crmsync/transport"
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

// RegisterRoutes mounts the lead routes. The activity route lives under the
// conversations tree because the admin panel reads it next to the status.
func (h *Handler) RegisterRoutes(leads, conversations *gin.RouterGroup) {
	leads.POST("", h.UpsertLead)
	conversations.GET("/:phone/history", h.History)
}

// UpsertLead synchronizes one lead into the CRM immediately.
// POST /api/v1/leads
func (h *Handler) UpsertLead(c *gin.Context) {
	var req transport.UpsertLeadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, err.Error())
		return
	}

	result, err := h.svc.UpsertLead(c.Request.Context(), req.Input())
	if httpkit.HandleError(c, err) {
		return
	}

	normalized, _ := h.norm.Normalize(req.Phone)
	httpkit.OK(c, transport.UpsertLeadResponse{
		Phone:     normalized,
		ContactID: result.ContactID,
		DealID:    result.DealID,
		Created:   result.Created,
		Score:     result.Score,
	})
}

// History returns the classified CRM activity timeline for a conversation.
// GET /api/v1/conversations/:phone/history
func (h *Handler) History(c *gin.Context) {
	entries, err := h.svc.Activity(c.Request.Context(), c.Param("phone"))
	if httpkit.HandleError(c, err) {
		return
	}

	normalized, _ := h.norm.Normalize(c.Param("phone"))
	httpkit.OK(c, transport.ActivityResponse{
		Phone: normalized,
		Items: entries,
		Total: len(entries),
	})
}
