// Package service implements template authoring and rendering. Rendering
// is strict: an unresolved placeholder is a hard error, never a partially
// substituted body sent to a customer.
package service

import (
	"context"
	"regexp"
	"sort"
	"strings"

	"conversa_backend/internal/conversation/ports"
	"conversa_backend/internal/templates/repository"
	"conversa_backend/internal/templates/transport"
	"conversa_backend/platform/apperr"

	"github.com/google/uuid"
)

// placeholderPattern matches {variable} tokens in a template body.
var placeholderPattern = regexp.MustCompile(`\{([a-zA-Z0-9_]+)\}`)

// Service provides template operations over a Repository.
type Service struct {
	repo repository.Repository
}

// New creates a new templates service.
func New(repo repository.Repository) *Service {
	return &Service{repo: repo}
}

// Compile-time check that Service satisfies the renderer port.
var _ ports.TemplateRenderer = (*Service)(nil)

// Placeholders extracts the distinct variable names referenced in a body,
// in order of first appearance.
func Placeholders(body string) []string {
	seen := make(map[string]struct{})
	var names []string
	for _, match := range placeholderPattern.FindAllStringSubmatch(body, -1) {
		name := match[1]
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		names = append(names, name)
	}
	return names
}

// validateAuthoring checks the declared variables against the body both
// ways: every placeholder must be declared, and every declared variable
// must appear in the body.
func validateAuthoring(body string, declared []string) error {
	referenced := Placeholders(body)

	refSet := make(map[string]struct{}, len(referenced))
	for _, name := range referenced {
		refSet[name] = struct{}{}
	}
	declSet := make(map[string]struct{}, len(declared))
	for _, name := range declared {
		declSet[name] = struct{}{}
	}

	var undeclared, unused []string
	for _, name := range referenced {
		if _, ok := declSet[name]; !ok {
			undeclared = append(undeclared, name)
		}
	}
	for _, name := range declared {
		if _, ok := refSet[name]; !ok {
			unused = append(unused, name)
		}
	}

	if len(undeclared) > 0 {
		return apperr.Validation("placeholders missing from variable list: " + strings.Join(undeclared, ", ")).
			WithDetails(map[string][]string{"undeclared": undeclared})
	}
	if len(unused) > 0 {
		return apperr.Validation("declared variables unused in body: " + strings.Join(unused, ", ")).
			WithDetails(map[string][]string{"unused": unused})
	}
	return nil
}

// Render substitutes variables into a template body. Every placeholder in
// the body must have a supplied value; missing ones fail with an error
// naming them.
func Render(tpl repository.Template, variables map[string]string) (string, error) {
	var missing []string
	for _, name := range Placeholders(tpl.Body) {
		if _, ok := variables[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return "", apperr.Validation("missing template variables: " + strings.Join(missing, ", ")).
			WithDetails(map[string][]string{"missing": missing})
	}

	rendered := placeholderPattern.ReplaceAllStringFunc(tpl.Body, func(token string) string {
		name := token[1 : len(token)-1]
		return variables[name]
	})
	return rendered, nil
}

// RenderByID resolves a template and renders it. Implements the
// conversation context's TemplateRenderer port.
func (s *Service) RenderByID(ctx context.Context, id string, variables map[string]string) (ports.RenderedTemplate, error) {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return ports.RenderedTemplate{}, apperr.Validation("invalid template id")
	}

	tpl, err := s.repo.GetByID(ctx, parsed)
	if err != nil {
		return ports.RenderedTemplate{}, err
	}

	text, err := Render(tpl, variables)
	if err != nil {
		return ports.RenderedTemplate{}, err
	}

	return ports.RenderedTemplate{ID: tpl.ID.String(), Name: tpl.Name, Text: text}, nil
}

// RenderByName resolves a template by name and renders it. Used by the
// follow-up scanner, which is configured with a template name.
func (s *Service) RenderByName(ctx context.Context, name string, variables map[string]string) (ports.RenderedTemplate, error) {
	tpl, err := s.repo.GetByName(ctx, name)
	if err != nil {
		return ports.RenderedTemplate{}, err
	}

	text, err := Render(tpl, variables)
	if err != nil {
		return ports.RenderedTemplate{}, err
	}

	return ports.RenderedTemplate{ID: tpl.ID.String(), Name: tpl.Name, Text: text}, nil
}

// List returns all templates, optionally filtered by category.
func (s *Service) List(ctx context.Context, category string) ([]transport.TemplateResponse, error) {
	var (
		templates []repository.Template
		err       error
	)
	if category != "" {
		templates, err = s.repo.ListByCategory(ctx, category)
	} else {
		templates, err = s.repo.List(ctx)
	}
	if err != nil {
		return nil, err
	}

	out := make([]transport.TemplateResponse, 0, len(templates))
	for _, tpl := range templates {
		out = append(out, toResponse(tpl))
	}
	return out, nil
}

// Get returns a single template.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (transport.TemplateResponse, error) {
	tpl, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return transport.TemplateResponse{}, err
	}
	return toResponse(tpl), nil
}

// Create validates authoring invariants and stores a new template. When
// no variable list is supplied it is auto-detected from the body.
func (s *Service) Create(ctx context.Context, req transport.CreateTemplateRequest) (transport.TemplateResponse, error) {
	variables := req.Variables
	if len(variables) == 0 {
		variables = Placeholders(req.Body)
	}
	if err := validateAuthoring(req.Body, variables); err != nil {
		return transport.TemplateResponse{}, err
	}

	created, err := s.repo.Create(ctx, repository.Template{
		Name:      req.Name,
		Category:  req.Category,
		Body:      req.Body,
		Variables: variables,
		IsDefault: req.IsDefault,
	})
	if err != nil {
		return transport.TemplateResponse{}, err
	}
	return toResponse(created), nil
}

// Update validates authoring invariants and overwrites a template.
func (s *Service) Update(ctx context.Context, id uuid.UUID, req transport.UpdateTemplateRequest) (transport.TemplateResponse, error) {
	existing, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return transport.TemplateResponse{}, err
	}

	if req.Name != nil {
		existing.Name = *req.Name
	}
	if req.Category != nil {
		existing.Category = *req.Category
	}
	if req.Body != nil {
		existing.Body = *req.Body
	}
	if req.Variables != nil {
		existing.Variables = req.Variables
	} else if req.Body != nil {
		existing.Variables = Placeholders(existing.Body)
	}
	if req.IsDefault != nil {
		existing.IsDefault = *req.IsDefault
	}

	if err := validateAuthoring(existing.Body, existing.Variables); err != nil {
		return transport.TemplateResponse{}, err
	}

	updated, err := s.repo.Update(ctx, existing)
	if err != nil {
		return transport.TemplateResponse{}, err
	}
	return toResponse(updated), nil
}

// Delete removes a template.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	return s.repo.Delete(ctx, id)
}

func toResponse(tpl repository.Template) transport.TemplateResponse {
	return transport.TemplateResponse{
		ID:        tpl.ID,
		Name:      tpl.Name,
		Category:  tpl.Category,
		Body:      tpl.Body,
		Variables: tpl.Variables,
		IsDefault: tpl.IsDefault,
		CreatedAt: tpl.CreatedAt,
		UpdatedAt: tpl.UpdatedAt,
	}
}
