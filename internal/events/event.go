// Package events provides domain event definitions for decoupled,
// event-driven communication between modules.
// Infrastructure (Bus, Handler) is in platform/events.
package events

import (
	"conversa_backend/platform/events"
)

// Re-export platform types for convenience
type (
	Event       = events.Event
	Bus         = events.Bus
	Handler     = events.Handler
	HandlerFunc = events.HandlerFunc
	BaseEvent   = events.BaseEvent
)

// Re-export platform functions
var NewBaseEvent = events.NewBaseEvent

// =============================================================================
// Conversation Domain Events
// =============================================================================

// ClientMessageReceived is published when an inbound client message has been
// routed. It drives the messaging window refresh and CRM activity logging.
type ClientMessageReceived struct {
	BaseEvent
	Phone       string `json:"phone"`
	Body        string `json:"body"`
	ProfileName string `json:"profileName,omitempty"`
	Status      string `json:"status"`
}

func (e ClientMessageReceived) EventName() string { return "conversation.message.received" }

// HandoffRequested is published when a handoff to a human has been initiated,
// either by keyword detection or by an explicit panel action.
type HandoffRequested struct {
	BaseEvent
	Phone   string `json:"phone"`
	Trigger string `json:"trigger"` // "keyword" or "manual"
}

func (e HandoffRequested) EventName() string { return "conversation.handoff.requested" }

// HandoffStateChanged is published on every persisted state transition.
type HandoffStateChanged struct {
	BaseEvent
	Phone string `json:"phone"`
	From  string `json:"from"`
	To    string `json:"to"`
}

func (e HandoffStateChanged) EventName() string { return "conversation.handoff.changed" }

// ConversationClosed is published when an operator closes a conversation,
// returning it to the bot.
type ConversationClosed struct {
	BaseEvent
	Phone string `json:"phone"`
}

func (e ConversationClosed) EventName() string { return "conversation.closed" }

// =============================================================================
// CRM Domain Events
// =============================================================================

// LeadUpserted is published after a contact has been created or updated in
// the CRM.
type LeadUpserted struct {
	BaseEvent
	Phone     string `json:"phone"`
	ContactID string `json:"contactId"`
	Created   bool   `json:"created"`
}

func (e LeadUpserted) EventName() string { return "crm.lead.upserted" }

// =============================================================================
// Follow-Up Domain Events
// =============================================================================

// FollowUpSent is published when the scanner dispatches a re-engagement
// template to a conversation whose window closed.
type FollowUpSent struct {
	BaseEvent
	Phone    string `json:"phone"`
	Template string `json:"template"`
}

func (e FollowUpSent) EventName() string { return "followup.sent" }
