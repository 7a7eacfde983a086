package transport

// StatusResponse is the admin-facing view of a conversation's routing state.
type StatusResponse struct {
	Phone            string `json:"phone"`
	Status           string `json:"status"`
	ExpiresInSeconds *int64 `json:"expiresInSeconds,omitempty"`
	WindowOpen       bool   `json:"windowOpen"`
	WindowDegraded   bool   `json:"windowDegraded,omitempty"`
	LastInboundAt    string `json:"lastInboundAt,omitempty"`
}

// HandoffRequest triggers a manual escalation from the admin panel.
type HandoffRequest struct {
	Reason string `json:"reason,omitempty" validate:"omitempty,max=200"`
}

// CloseResponse reports the result of an explicit close.
type CloseResponse struct {
	Phone          string `json:"phone"`
	PreviousStatus string `json:"previousStatus"`
	Closed         bool   `json:"closed"`
}

// SendMessageRequest is an operator-initiated outbound send. Either a
// free-form body or a template reference must be provided; a free-form
// body is rejected while the messaging window is closed.
type SendMessageRequest struct {
	Body       string            `json:"body,omitempty" validate:"omitempty,max=4096"`
	TemplateID string            `json:"templateId,omitempty" validate:"omitempty,uuid"`
	Variables  map[string]string `json:"variables,omitempty"`
}

// SendMessageResponse echoes what was sent and through which path.
type SendMessageResponse struct {
	Phone    string `json:"phone"`
	Path     string `json:"path"` // "freeform" or "template"
	Body     string `json:"body"`
	Status   string `json:"status"`
	Template string `json:"template,omitempty"`
}
