// Package ports declares the interfaces the conversation context needs
// from its collaborators. Implementations live in their own modules and
// are injected at the composition root, keeping this context free of
// outward dependencies.
package ports

import "context"

// MessageSender sends outbound WhatsApp messages through the provider.
type MessageSender interface {
	// SendFreeform sends arbitrary text. Only permitted while the
	// messaging window is open.
	SendFreeform(ctx context.Context, phone, text string) error
	// SendTemplate sends a pre-approved template with substituted
	// parameters. Permitted regardless of window state.
	SendTemplate(ctx context.Context, phone, templateName string, params map[string]string) error
}

// RenderedTemplate is a template resolved and substituted for sending.
type RenderedTemplate struct {
	ID   string
	Name string
	Text string
}

// TemplateRenderer resolves and renders a stored message template.
// Rendering fails with a variable-identifying error when any placeholder
// is left unresolved; a partially substituted body is never returned.
type TemplateRenderer interface {
	RenderByID(ctx context.Context, id string, variables map[string]string) (RenderedTemplate, error)
}

// LeadSyncer schedules a dedup-safe CRM upsert for a conversation,
// decoupled from the send path.
type LeadSyncer interface {
	EnqueueUpsert(ctx context.Context, phone, name, channelOrigin, transcript string) error
}
