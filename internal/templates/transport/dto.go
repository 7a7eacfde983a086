package transport

import "github.com/google/uuid"

// CreateTemplateRequest contains data for authoring a new template.
// When Variables is omitted, the list is auto-detected from the body.
type CreateTemplateRequest struct {
	Name      string   `json:"name" validate:"required,min=1,max=100"`
	Category  string   `json:"category" validate:"required,min=1,max=50"`
	Body      string   `json:"body" validate:"required,min=1,max=4096"`
	Variables []string `json:"variables,omitempty" validate:"omitempty,dive,min=1,max=50"`
	IsDefault bool     `json:"isDefault"`
}

// UpdateTemplateRequest contains data for updating an existing template.
type UpdateTemplateRequest struct {
	Name      *string  `json:"name,omitempty" validate:"omitempty,min=1,max=100"`
	Category  *string  `json:"category,omitempty" validate:"omitempty,min=1,max=50"`
	Body      *string  `json:"body,omitempty" validate:"omitempty,min=1,max=4096"`
	Variables []string `json:"variables,omitempty" validate:"omitempty,dive,min=1,max=50"`
	IsDefault *bool    `json:"isDefault,omitempty"`
}

// RenderRequest supplies the variable values for a render.
type RenderRequest struct {
	Variables map[string]string `json:"variables"`
}

// RenderResponse carries the fully substituted body.
type RenderResponse struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
	Text string    `json:"text"`
}

// TemplateResponse represents a template in API responses.
type TemplateResponse struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Category  string    `json:"category"`
	Body      string    `json:"body"`
	Variables []string  `json:"variables"`
	IsDefault bool      `json:"isDefault"`
	CreatedAt string    `json:"createdAt"`
	UpdatedAt string    `json:"updatedAt"`
}

// TemplateListResponse wraps a list of templates.
type TemplateListResponse struct {
	Items []TemplateResponse `json:"items"`
	Total int                `json:"total"`
}
