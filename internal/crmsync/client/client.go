// Package client implements the HTTP client for the HubSpot v3 CRM API.
// All calls ride a shared rate limiter and bounded retries so a slow or
// throttling CRM degrades sync latency instead of dropping leads.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"conversa_backend/internal/crmsync/domain"
	"conversa_backend/internal/crmsync/service"
	"conversa_backend/platform/apperr"
	"conversa_backend/platform/config"
	"conversa_backend/platform/logger"
)

const maxAttempts = 3

// searchProperties lists the contact fields a phone number may live in,
// in lookup priority order.
var searchProperties = []string{"phone", "mobilephone", "hs_whatsapp_phone_number"}

// contactProperties are the fields requested back on every contact read.
var contactProperties = []string{
	"firstname", "lastname", "email", "phone",
	"canal_origen", "tipo_propiedad", "ubicacion", "presupuesto",
	"caracteristicas", "codigo_propiedad", "lead_score",
}

type Client struct {
	baseURL   string
	apiKey    string
	pipeline  string
	dealStage string
	http      *http.Client
	limiter   *rate.Limiter
	log       *logger.Logger
}

var _ service.CRM = (*Client)(nil)

// New builds a CRM client from configuration, or returns nil when no API
// key is configured. A nil client is a valid no-op sender target upstream.
func New(cfg config.CRMConfig, log *logger.Logger) *Client {
	if !cfg.IsCRMEnabled() {
		return nil
	}

	rps := cfg.GetCRMRequestsPerSecond()
	if rps <= 0 {
		rps = 4
	}

	return &Client{
		baseURL:   strings.TrimRight(cfg.GetCRMBaseURL(), "/"),
		apiKey:    cfg.GetCRMAPIKey(),
		pipeline:  cfg.GetCRMDealPipeline(),
		dealStage: cfg.GetCRMDealStage(),
		http:      &http.Client{Timeout: cfg.GetCRMTimeout()},
		limiter:   rate.NewLimiter(rate.Limit(rps), int(rps)+1),
		log:       log,
	}
}

type objectPayload struct {
	ID         string            `json:"id"`
	Properties map[string]string `json:"properties"`
}

type searchFilter struct {
	PropertyName string `json:"propertyName"`
	Operator     string `json:"operator"`
	Value        string `json:"value"`
}

type searchFilterGroup struct {
	Filters []searchFilter `json:"filters"`
}

type searchRequest struct {
	FilterGroups []searchFilterGroup `json:"filterGroups"`
	Properties   []string            `json:"properties"`
	Limit        int                 `json:"limit"`
}

type searchResponse struct {
	Total   int             `json:"total"`
	Results []objectPayload `json:"results"`
}

// SearchContactByPhone looks a contact up under every phone field and every
// number variant, highest-priority field first. A nil contact with a nil
// error means no match.
func (c *Client) SearchContactByPhone(ctx context.Context, variants []string) (*domain.Contact, error) {
	if len(variants) == 0 {
		return nil, apperr.Validation("no phone variants to search")
	}

	for _, property := range searchProperties {
		groups := make([]searchFilterGroup, 0, len(variants))
		for _, variant := range variants {
			groups = append(groups, searchFilterGroup{Filters: []searchFilter{{
				PropertyName: property,
				Operator:     "EQ",
				Value:        variant,
			}}})
		}

		var resp searchResponse
		err := c.do(ctx, http.MethodPost, "/crm/v3/objects/contacts/search", searchRequest{
			FilterGroups: groups,
			Properties:   contactProperties,
			Limit:        1,
		}, &resp)
		if err != nil {
			return nil, err
		}

		if len(resp.Results) > 0 {
			found := resp.Results[0]
			return &domain.Contact{ID: found.ID, Properties: found.Properties}, nil
		}
	}

	return nil, nil
}

// GetContact reads one contact by ID with the standard property set. A
// deleted contact surfaces as a not-found error.
func (c *Client) GetContact(ctx context.Context, contactID string) (*domain.Contact, error) {
	var resp objectPayload
	path := fmt.Sprintf("/crm/v3/objects/contacts/%s?properties=%s", contactID, strings.Join(contactProperties, ","))
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return &domain.Contact{ID: resp.ID, Properties: resp.Properties}, nil
}

type mutateRequest struct {
	Properties   map[string]string `json:"properties"`
	Associations []association     `json:"associations,omitempty"`
}

type association struct {
	To    associationTarget `json:"to"`
	Types []associationType `json:"types"`
}

type associationTarget struct {
	ID string `json:"id"`
}

type associationType struct {
	AssociationCategory string `json:"associationCategory"`
	AssociationTypeID   int    `json:"associationTypeId"`
}

func contactAssociation(contactID string, typeID int) []association {
	return []association{{
		To: associationTarget{ID: contactID},
		Types: []associationType{{
			AssociationCategory: "HUBSPOT_DEFINED",
			AssociationTypeID:   typeID,
		}},
	}}
}

// CreateContact creates a contact and returns its ID. A duplicate raises a
// conflict error so the caller can re-search and patch instead.
func (c *Client) CreateContact(ctx context.Context, properties map[string]string) (string, error) {
	var resp objectPayload
	err := c.do(ctx, http.MethodPost, "/crm/v3/objects/contacts", mutateRequest{Properties: properties}, &resp)
	if err != nil {
		return "", err
	}
	return resp.ID, nil
}

// PatchContact updates only the given properties on an existing contact.
func (c *Client) PatchContact(ctx context.Context, contactID string, properties map[string]string) error {
	if len(properties) == 0 {
		return nil
	}
	path := fmt.Sprintf("/crm/v3/objects/contacts/%s", contactID)
	return c.do(ctx, http.MethodPatch, path, mutateRequest{Properties: properties}, nil)
}

// CreateDeal opens a new deal in the configured pipeline and associates it
// with the contact (contact-to-deal association type 3).
func (c *Client) CreateDeal(ctx context.Context, contactID, name string, properties map[string]string) (string, error) {
	props := map[string]string{
		"dealname":  name,
		"pipeline":  c.pipeline,
		"dealstage": c.dealStage,
	}
	for key, value := range properties {
		props[key] = value
	}

	var resp objectPayload
	err := c.do(ctx, http.MethodPost, "/crm/v3/objects/deals", mutateRequest{
		Properties:   props,
		Associations: contactAssociation(contactID, 3),
	}, &resp)
	if err != nil {
		return "", err
	}
	return resp.ID, nil
}

// CreateNote writes a timeline note on the contact (note-to-contact
// association type 202).
func (c *Client) CreateNote(ctx context.Context, contactID, body string, at time.Time) (string, error) {
	var resp objectPayload
	err := c.do(ctx, http.MethodPost, "/crm/v3/objects/notes", mutateRequest{
		Properties: map[string]string{
			"hs_note_body": body,
			"hs_timestamp": at.UTC().Format(time.RFC3339),
		},
		Associations: contactAssociation(contactID, 202),
	}, &resp)
	if err != nil {
		return "", err
	}
	return resp.ID, nil
}

type associationsResponse struct {
	Results []struct {
		ID string `json:"id"`
	} `json:"results"`
}

type batchReadRequest struct {
	Properties []string       `json:"properties"`
	Inputs     []batchReadRef `json:"inputs"`
}

type batchReadRef struct {
	ID string `json:"id"`
}

type batchReadResponse struct {
	Results []objectPayload `json:"results"`
}

// ListNotes fetches the note timeline of a contact, up to limit entries.
func (c *Client) ListNotes(ctx context.Context, contactID string, limit int) ([]domain.Note, error) {
	if limit <= 0 {
		limit = 100
	}

	var assoc associationsResponse
	path := fmt.Sprintf("/crm/v3/objects/contacts/%s/associations/notes?limit=%d", contactID, limit)
	if err := c.do(ctx, http.MethodGet, path, nil, &assoc); err != nil {
		return nil, err
	}
	if len(assoc.Results) == 0 {
		return nil, nil
	}

	refs := make([]batchReadRef, 0, len(assoc.Results))
	for _, result := range assoc.Results {
		refs = append(refs, batchReadRef{ID: result.ID})
	}

	var batch batchReadResponse
	err := c.do(ctx, http.MethodPost, "/crm/v3/objects/notes/batch/read", batchReadRequest{
		Properties: []string{"hs_note_body", "hs_timestamp"},
		Inputs:     refs,
	}, &batch)
	if err != nil {
		return nil, err
	}

	notes := make([]domain.Note, 0, len(batch.Results))
	for _, result := range batch.Results {
		note := domain.Note{ID: result.ID, Body: result.Properties["hs_note_body"]}
		if raw := result.Properties["hs_timestamp"]; raw != "" {
			if ts, err := time.Parse(time.RFC3339, raw); err == nil {
				note.Timestamp = ts
			}
		}
		notes = append(notes, note)
	}
	return notes, nil
}

// do executes one CRM call with rate limiting and bounded retries. Timeouts,
// 429s and 5xx responses are retried with linear backoff; other statuses map
// to typed errors immediately.
func (c *Client) do(ctx context.Context, method, path string, payload, out any) error {
	var body []byte
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal crm payload: %w", err)
		}
		body = encoded
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}

		status, err := c.once(ctx, method, path, body, out)
		if err == nil {
			return nil
		}
		lastErr = err

		if !retryableStatus(status) {
			return err
		}
		if attempt < maxAttempts {
			c.log.Warn("crm request retry",
				"method", method, "path", path,
				"attempt", attempt, "status", status, "error", err)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(attempt) * 500 * time.Millisecond):
			}
		}
	}

	return apperr.Unavailable("crm unreachable after retries", lastErr)
}

// once performs a single request and returns the HTTP status for retry
// classification. Status 0 means the request never got a response.
func (c *Client) once(ctx context.Context, method, path string, body []byte, out any) (int, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("crm request failed: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode >= http.StatusBadRequest {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		message := strings.TrimSpace(string(data))

		switch {
		case resp.StatusCode == http.StatusConflict:
			return resp.StatusCode, apperr.Conflict("crm object already exists").WithDetails(message)
		case resp.StatusCode == http.StatusNotFound:
			return resp.StatusCode, apperr.NotFound("crm object not found")
		case retryableStatus(resp.StatusCode):
			return resp.StatusCode, fmt.Errorf("crm returned %d: %s", resp.StatusCode, message)
		default:
			return resp.StatusCode, apperr.Internal(fmt.Sprintf("crm returned %d: %s", resp.StatusCode, message))
		}
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return resp.StatusCode, nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return resp.StatusCode, fmt.Errorf("decode crm response: %w", err)
	}
	return resp.StatusCode, nil
}

// retryableStatus treats throttling, server faults and transport failures
// (status 0) as retryable.
func retryableStatus(status int) bool {
	return status == 0 || status == http.StatusTooManyRequests || status >= http.StatusInternalServerError
}
