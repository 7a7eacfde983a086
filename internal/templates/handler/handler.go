// Package handler exposes template authoring and rendering over HTTP.
package handler

import (
	"net/http"

	"conversa_backend/internal/templates/service"
	"conversa_backend/internal/templates/transport"
	"conversa_backend/platform/httpkit"
	"conversa_backend/platform/validator"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	msgInvalidRequest   = "invalid request"
	msgValidationFailed = "validation failed"
	msgInvalidID        = "invalid template ID"
)

// Handler handles HTTP requests for message templates.
type Handler struct {
	svc *service.Service
	val *validator.Validator
}

// New creates a new templates handler.
func New(svc *service.Service, val *validator.Validator) *Handler {
	return &Handler{svc: svc, val: val}
}

// RegisterRoutes mounts the template routes on the given group.
func (h *Handler) RegisterRoutes(group *gin.RouterGroup) {
	group.GET("", h.List)
	group.POST("", h.Create)
	group.GET("/:id", h.Get)
	group.PUT("/:id", h.Update)
	group.DELETE("/:id", h.Delete)
	group.POST("/:id/render", h.Render)
}

// List enumerates templates, optionally filtered by category.
// GET /api/v1/templates?category=saludo
func (h *Handler) List(c *gin.Context) {
	items, err := h.svc.List(c.Request.Context(), c.Query("category"))
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.TemplateListResponse{Items: items, Total: len(items)})
}

// Get retrieves a template by ID.
// GET /api/v1/templates/:id
func (h *Handler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidID, nil)
		return
	}

	resp, err := h.svc.Get(c.Request.Context(), id)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, resp)
}

// Create authors a new template.
// POST /api/v1/templates
func (h *Handler) Create(c *gin.Context) {
	var req transport.CreateTemplateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	resp, err := h.svc.Create(c.Request.Context(), req)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.JSON(c, http.StatusCreated, resp)
}

// Update overwrites an existing template.
// PUT /api/v1/templates/:id
func (h *Handler) Update(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidID, nil)
		return
	}

	var req transport.UpdateTemplateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	resp, err := h.svc.Update(c.Request.Context(), id, req)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, resp)
}

// Delete removes a template.
// DELETE /api/v1/templates/:id
func (h *Handler) Delete(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidID, nil)
		return
	}

	if err := h.svc.Delete(c.Request.Context(), id); httpkit.HandleError(c, err) {
		return
	}
	c.Status(http.StatusNoContent)
}

// Render substitutes variables into a template for preview or send.
// POST /api/v1/templates/:id/render
func (h *Handler) Render(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidID, nil)
		return
	}

	var req transport.RenderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}

	rendered, err := h.svc.RenderByID(c.Request.Context(), id.String(), req.Variables)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.RenderResponse{ID: id, Name: rendered.Name, Text: rendered.Text})
}
