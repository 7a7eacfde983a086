// Package crmsync provides the lead/contact sync bounded context.
// This file defines the module that encapsulates setup and route registration.
package crmsync

import (
	"context"

	"conversa_backend/internal/conversation/domain"
	"conversa_backend/internal/crmsync/client"
	"conversa_backend/internal/crmsync/handler"
	"conversa_backend/internal/crmsync/service"
	"conversa_backend/internal/events"
	apphttp "conversa_backend/internal/http"
	"conversa_backend/platform/config"
	"conversa_backend/platform/logger"
	"conversa_backend/platform/phone"

	goredis "github.com/redis/go-redis/v9"
)

// Module is the lead sync bounded context module implementing http.Module.
type Module struct {
	handler *handler.Handler
	service *service.Service
}

// NewModule creates and initializes the lead sync module. When no CRM API
// key is configured the service runs in no-op mode so the rest of the
// pipeline keeps working.
func NewModule(rdb *goredis.Client, bus events.Bus, norm *phone.Normalizer, cfg *config.Config, log *logger.Logger) *Module {
	crm := client.New(cfg, log)

	var svc *service.Service
	if crm != nil {
		svc = service.New(crm, rdb, bus, norm, log)
	} else {
		svc = service.New(nil, rdb, bus, norm, log)
		log.Warn("crm sync disabled, CRM_API_KEY not set")
	}

	subscribe(bus, svc)

	return &Module{
		handler: handler.New(svc, norm),
		service: svc,
	}
}

// subscribe mirrors conversation lifecycle events onto the CRM timeline.
// While a human owns a conversation the bot stays silent, so the event bus
// is the only path that records what the client wrote.
func subscribe(bus events.Bus, svc *service.Service) {
	bus.Subscribe(events.ClientMessageReceived{}.EventName(), events.HandlerFunc(func(ctx context.Context, e events.Event) error {
		msg, ok := e.(events.ClientMessageReceived)
		if !ok {
			return nil
		}
		if domain.Status(msg.Status).OwnedByHuman() {
			svc.LogInbound(ctx, msg.Phone, msg.Body)
		}
		return nil
	}))

	bus.Subscribe(events.ConversationClosed{}.EventName(), events.HandlerFunc(func(ctx context.Context, e events.Event) error {
		if closed, ok := e.(events.ConversationClosed); ok {
			svc.LogClosure(ctx, closed.Phone, "")
		}
		return nil
	}))
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "crmsync"
}

// Service returns the lead sync service for external use.
func (m *Module) Service() *service.Service {
	return m.service
}

// RegisterRoutes mounts lead sync routes on the provided router context.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	leads := ctx.Protected.Group("/leads")
	conversations := ctx.Protected.Group("/conversations")
	m.handler.RegisterRoutes(leads, conversations)
}

// Compile-time check that Module implements http.Module
var _ apphttp.Module = (*Module)(nil)
