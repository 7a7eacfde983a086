// Package domain holds the CRM-facing lead model. The dedup key for every
// operation in this context is the E.164 phone number.
package domain

import "time"

// Contact is a CRM contact as the remote system stores it. Properties uses
// the CRM's own field names so a patch can be assembled without a second
// mapping layer.
type Contact struct {
	ID         string
	Properties map[string]string
}

// Note is a raw CRM timeline note attached to a contact.
type Note struct {
	ID        string
	Body      string
	Timestamp time.Time
}

// Sender identifies who authored a conversation activity row.
type Sender string

const (
	SenderClient     Sender = "client"
	SenderBot        Sender = "bot"
	SenderAdvisor    Sender = "advisor"
	SenderManualNote Sender = "manual_note"
	SenderSystem     Sender = "system"
)

// ActivityEntry is one classified row of a conversation history, derived
// from a CRM note.
type ActivityEntry struct {
	ID        string    `json:"id"`
	Sender    Sender    `json:"sender"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// UpsertInput carries everything the sync engine knows about a lead at the
// moment of an upsert. Blank fields are unknown, not empty values, and must
// never overwrite existing CRM data.
type UpsertInput struct {
	Phone         string
	FullName      string
	Email         string
	ChannelOrigin string
	PropertyType  string
	Location      string
	Budget        string
	Features      string
	PropertyCode  string
	Transcript    string
}

// UpsertResult reports what the engine did for one upsert.
type UpsertResult struct {
	ContactID string
	DealID    string
	Created   bool
	Score     int
}
