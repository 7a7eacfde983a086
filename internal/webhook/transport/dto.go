// Package transport defines the provider webhook payloads.
package transport

// WebhookRequest is the inbound message notification from the provider.
type WebhookRequest struct {
	From        string `json:"from" binding:"required"`
	Body        string `json:"body" binding:"required"`
	ProfileName string `json:"profileName"`
	Channel     string `json:"channel"`
}

// StatusCallbackRequest is the delivery status notification from the
// provider (queued, sent, delivered, read, failed).
type StatusCallbackRequest struct {
	MessageID    string `json:"messageId" binding:"required"`
	To           string `json:"to"`
	Status       string `json:"status" binding:"required"`
	ErrorCode    string `json:"errorCode"`
	ErrorMessage string `json:"errorMessage"`
}

// WebhookResponse reports how the message was routed. The provider ignores
// it; it exists for webhook replay tooling and tests.
type WebhookResponse struct {
	Phone      string `json:"phone"`
	Status     string `json:"status"`
	Action     string `json:"action"`
	Reply      string `json:"reply,omitempty"`
	ReceivedAt string `json:"receivedAt"`
}
