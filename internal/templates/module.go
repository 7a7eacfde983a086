// Package templates provides the message template bounded context.
package templates

import (
	"conversa_backend/internal/templates/handler"
	"conversa_backend/internal/templates/repository"
	"conversa_backend/internal/templates/service"
	apphttp "conversa_backend/internal/http"
	"conversa_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Module is the templates bounded context module implementing http.Module.
type Module struct {
	handler *handler.Handler
	service *service.Service
}

// NewModule creates and initializes the templates module.
func NewModule(pool *pgxpool.Pool, val *validator.Validator) *Module {
	repo := repository.New(pool)
	svc := service.New(repo)

	return &Module{
		handler: handler.New(svc, val),
		service: svc,
	}
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "templates"
}

// Service returns the templates service for external use (the renderer
// port of the conversation context and the follow-up scanner).
func (m *Module) Service() *service.Service {
	return m.service
}

// RegisterRoutes mounts template routes on the provided router context.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	group := ctx.Protected.Group("/templates")
	m.handler.RegisterRoutes(group)
}

// Compile-time check that Module implements http.Module
var _ apphttp.Module = (*Module)(nil)
