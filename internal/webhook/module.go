// Package webhook provides the inbound provider webhook bounded context.
package webhook

import (
	"conversa_backend/internal/botreply"
	"conversa_backend/internal/conversation/ports"
	conversationsvc "conversa_backend/internal/conversation/service"
	"conversa_backend/internal/events"
	apphttp "conversa_backend/internal/http"
	"conversa_backend/internal/webhook/handler"
	"conversa_backend/internal/webhook/service"
	"conversa_backend/platform/config"
	"conversa_backend/platform/logger"
	"conversa_backend/platform/phone"
)

// Module is the webhook bounded context module implementing http.Module.
type Module struct {
	handler *handler.Handler
	service *service.Service
}

// NewModule creates and initializes the webhook module.
func NewModule(convo *conversationsvc.Service, bot botreply.Generator, bus events.Bus, norm *phone.Normalizer, cfg *config.Config, log *logger.Logger) *Module {
	svc := service.New(convo, bot, bus, cfg, log)

	return &Module{
		handler: handler.New(svc, norm),
		service: svc,
	}
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "webhook"
}

// SetMessageSender injects the provider client at the composition root.
func (m *Module) SetMessageSender(sender ports.MessageSender) {
	m.service.SetMessageSender(sender)
}

// SetLeadSyncer injects the CRM sync scheduler at the composition root.
func (m *Module) SetLeadSyncer(leads ports.LeadSyncer) {
	m.service.SetLeadSyncer(leads)
}

// RegisterRoutes mounts the webhook routes on the rate-limited public group.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	m.handler.RegisterRoutes(ctx.Webhook)
}

// Compile-time check that Module implements http.Module
var _ apphttp.Module = (*Module)(nil)
