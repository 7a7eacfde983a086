// Package conversation provides the conversation routing bounded context.
// This file defines the module that encapsulates setup and route registration.
package conversation

import (
	"conversa_backend/internal/conversation/handler"
	"conversa_backend/internal/conversation/ports"
	"conversa_backend/internal/conversation/service"
	"conversa_backend/internal/conversation/store"
	"conversa_backend/internal/conversation/window"
	"conversa_backend/internal/events"
	apphttp "conversa_backend/internal/http"
	"conversa_backend/platform/config"
	"conversa_backend/platform/logger"
	"conversa_backend/platform/phone"
	"conversa_backend/platform/validator"

	goredis "github.com/redis/go-redis/v9"
)

// Module is the conversation bounded context module implementing http.Module.
type Module struct {
	handler *handler.Handler
	service *service.Service
	store   *store.Store
	window  *window.Tracker
}

// NewModule creates and initializes the conversation module.
func NewModule(rdb *goredis.Client, bus events.Bus, norm *phone.Normalizer, val *validator.Validator, cfg *config.Config, log *logger.Logger) *Module {
	st := store.New(rdb, log)
	win := window.New(rdb, cfg, log)
	svc := service.New(st, win, bus, cfg, log)

	return &Module{
		handler: handler.New(svc, norm, val),
		service: svc,
		store:   st,
		window:  win,
	}
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "conversation"
}

// Service returns the conversation service for external use.
func (m *Module) Service() *service.Service {
	return m.service
}

// Window returns the window tracker for external use.
func (m *Module) Window() *window.Tracker {
	return m.window
}

// SetMessageSender injects the provider client at the composition root.
func (m *Module) SetMessageSender(sender ports.MessageSender) {
	m.service.SetMessageSender(sender)
}

// SetTemplateRenderer injects the template engine at the composition root.
func (m *Module) SetTemplateRenderer(renderer ports.TemplateRenderer) {
	m.service.SetTemplateRenderer(renderer)
}

// RegisterRoutes mounts conversation routes on the provided router context.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	group := ctx.Protected.Group("/conversations")
	m.handler.RegisterRoutes(group)
}

// Compile-time check that Module implements http.Module
var _ apphttp.Module = (*Module)(nil)
