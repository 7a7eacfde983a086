// Package messaging implements the WhatsApp provider client. It satisfies
// the conversation context's MessageSender port so the routing logic never
// sees provider specifics.
package messaging

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"conversa_backend/internal/conversation/ports"
	"conversa_backend/platform/config"
	"conversa_backend/platform/logger"
	"conversa_backend/platform/phone"
)

type Client struct {
	baseURL string
	apiKey  string
	from    string
	http    *http.Client
	log     *logger.Logger
}

var _ ports.MessageSender = (*Client)(nil)

type sendRequest struct {
	From     string            `json:"from"`
	To       string            `json:"to"`
	Body     string            `json:"body,omitempty"`
	Template string            `json:"template,omitempty"`
	Params   map[string]string `json:"params,omitempty"`
}

// NewClient builds a provider client, or returns nil when no base URL is
// configured. A nil client accepts sends as no-ops so local development
// works without a provider account.
func NewClient(cfg config.ProviderConfig, log *logger.Logger) *Client {
	if !cfg.IsProviderEnabled() {
		return nil
	}

	return &Client{
		baseURL: strings.TrimRight(cfg.GetProviderBaseURL(), "/"),
		apiKey:  cfg.GetProviderAPIKey(),
		from:    cfg.GetProviderFromNumber(),
		http:    &http.Client{Timeout: cfg.GetProviderTimeout()},
		log:     log,
	}
}

// SendFreeform delivers a plain text message. Callers must have verified
// the messaging window first; the provider rejects late freeform sends.
func (c *Client) SendFreeform(ctx context.Context, phoneNumber, body string) error {
	if c == nil {
		return nil
	}

	normalized := phone.Clean(phoneNumber)
	return c.post(ctx, "/v1/messages", sendRequest{
		From: c.from,
		To:   normalized,
		Body: body,
	})
}

// SendTemplate delivers a pre-approved template with its parameters.
// Templates are deliverable regardless of the messaging window.
func (c *Client) SendTemplate(ctx context.Context, phoneNumber, templateName string, params map[string]string) error {
	if c == nil {
		return nil
	}

	normalized := phone.Clean(phoneNumber)
	return c.post(ctx, "/v1/messages/template", sendRequest{
		From:     c.from,
		To:       normalized,
		Template: templateName,
		Params:   params,
	})
}

func (c *Client) post(ctx context.Context, path string, payload sendRequest) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal provider payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewBuffer(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("provider request failed: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode >= http.StatusBadRequest {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("provider returned %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}

	c.log.Info("message dispatched", "to", payload.To, "template", payload.Template != "")
	return nil
}
