// Package botreply generates the automated replies the bot sends while it
// owns a conversation.
package botreply

import (
	"context"

	"conversa_backend/platform/config"
	"conversa_backend/platform/logger"
)

// Generator produces a reply to an inbound client message. history carries
// prior turns oldest first so the model keeps context.
type Generator interface {
	Reply(ctx context.Context, message string, history []Turn) (string, error)
}

// Turn is one prior exchange in the conversation.
type Turn struct {
	Role    string // "user" or "assistant"
	Content string
}

// New returns the configured generator, or a static fallback when no model
// API key is set. The webhook pipeline works either way.
func New(cfg config.BotConfig, log *logger.Logger) Generator {
	if !cfg.IsBotEnabled() {
		log.Warn("bot replies disabled, BOT_API_KEY not set; using static responder")
		return staticResponder{}
	}
	return newKimiGenerator(cfg, log)
}

// staticResponder answers every message with a holding line. It keeps the
// pipeline alive in environments without model credentials.
type staticResponder struct{}

func (staticResponder) Reply(_ context.Context, _ string, _ []Turn) (string, error) {
	return "¡Hola! Gracias por escribirnos. Un asesor puede ayudarte, escribe \"asesor\" para hablar con una persona.", nil
}
