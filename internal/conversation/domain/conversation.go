// Package domain holds the conversation bounded context's core types.
package domain

import (
	"fmt"
	"time"
)

// Status is the ownership state of a conversation. Exactly one status is
// observable per conversation key at any instant.
type Status string

const (
	// StatusBotActive means the automated agent owns the conversation.
	// This is the default: an absent status key resolves to BOT_ACTIVE.
	StatusBotActive Status = "BOT_ACTIVE"
	// StatusPendingHandoff means escalation has been flagged but a human
	// has not yet been confirmed.
	StatusPendingHandoff Status = "PENDING_HANDOFF"
	// StatusHumanActive means a human owns the conversation but has not
	// sent a message yet. Carries the arrival timer.
	StatusHumanActive Status = "HUMAN_ACTIVE"
	// StatusInConversation means a human has sent at least one message.
	// Carries a sliding activity timer renewed on every operator message.
	StatusInConversation Status = "IN_CONVERSATION"
	// StatusClosed is reported when an operator explicitly ends a
	// conversation. It is never persisted: closing removes the status key,
	// so the next inbound message resolves to BOT_ACTIVE.
	StatusClosed Status = "CLOSED"
)

// ParseStatus validates a raw status string.
func ParseStatus(raw string) (Status, error) {
	switch Status(raw) {
	case StatusBotActive, StatusPendingHandoff, StatusHumanActive, StatusInConversation, StatusClosed:
		return Status(raw), nil
	}
	return "", fmt.Errorf("unknown conversation status %q", raw)
}

// OwnedByHuman reports whether a human operator currently owns the
// conversation and the bot must stay silent.
func (s Status) OwnedByHuman() bool {
	return s == StatusHumanActive || s == StatusInConversation
}

// Expires reports whether the status carries a TTL when persisted.
// BOT_ACTIVE carries none; CLOSED is never persisted at all.
func (s Status) Expires() bool {
	return s == StatusPendingHandoff || s == StatusHumanActive || s == StatusInConversation
}

// Snapshot is a point-in-time view of a conversation's routing state.
type Snapshot struct {
	Phone        string
	Status       Status
	RemainingTTL time.Duration
	WindowOpen   bool
	// WindowFailedOpen marks that the window tracker was unreachable and
	// the permissive default applied.
	WindowFailedOpen bool
	LastInboundAt    *time.Time
}

// InboundMessage is a client message delivered by the provider webhook,
// already validated and phone-normalized.
type InboundMessage struct {
	Phone         string
	Body          string
	ProfileName   string
	ChannelOrigin string
	ReceivedAt    time.Time
}
