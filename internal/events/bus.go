// Package events re-exports the platform event bus so modules depend on a
// single import path; the implementation lives in platform/events.
package events

import (
	platformevents "conversa_backend/platform/events"
	"conversa_backend/platform/logger"
)

// InMemoryBus aliases the platform bus implementation.
type InMemoryBus = platformevents.InMemoryBus

// NewInMemoryBus creates the in-process event bus used by both binaries.
func NewInMemoryBus(log *logger.Logger) *InMemoryBus {
	return platformevents.NewInMemoryBus(log)
}
