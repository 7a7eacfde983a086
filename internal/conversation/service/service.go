// Package service implements the handoff state machine. All transitions
// are single atomic writes on the status store: concurrent triggers
// resolve last-write-wins per conversation key, and a failed write leaves
// the previously persisted status untouched.
package service

import (
	"context"
	"time"

	"conversa_backend/internal/conversation/domain"
	"conversa_backend/internal/conversation/ports"
	"conversa_backend/internal/conversation/store"
	"conversa_backend/internal/conversation/transport"
	"conversa_backend/internal/conversation/window"
	"conversa_backend/internal/events"
	"conversa_backend/platform/apperr"
	"conversa_backend/platform/config"
	"conversa_backend/platform/logger"
)

const (
	pathFreeform = "freeform"
	pathTemplate = "template"

	// TriggerKeyword marks a handoff escalated by keyword detection.
	TriggerKeyword = "keyword"
	// TriggerManual marks a handoff initiated from the admin panel.
	TriggerManual = "manual"
)

// Service coordinates status transitions, window checks and outbound
// sends for a single conversation key.
type Service struct {
	store  *store.Store
	window *window.Tracker
	bus    events.Bus
	log    *logger.Logger

	arrivalTTL  time.Duration
	activityTTL time.Duration

	sender   ports.MessageSender
	renderer ports.TemplateRenderer
}

// New creates the conversation service.
func New(st *store.Store, win *window.Tracker, bus events.Bus, cfg config.HandoffConfig, log *logger.Logger) *Service {
	return &Service{
		store:       st,
		window:      win,
		bus:         bus,
		log:         log,
		arrivalTTL:  cfg.GetArrivalTTL(),
		activityTTL: cfg.GetActivityTTL(),
	}
}

// SetMessageSender injects the provider client. Wired at the composition
// root to avoid a module cycle.
func (s *Service) SetMessageSender(sender ports.MessageSender) {
	s.sender = sender
}

// SetTemplateRenderer injects the template engine.
func (s *Service) SetTemplateRenderer(renderer ports.TemplateRenderer) {
	s.renderer = renderer
}

// Window returns the window tracker for collaborators that only need
// window state.
func (s *Service) Window() *window.Tracker {
	return s.window
}

// Snapshot returns the current status, remaining TTL and window state.
func (s *Service) Snapshot(ctx context.Context, phone string) (domain.Snapshot, error) {
	status, remaining, err := s.store.Get(ctx, phone)
	if err != nil {
		return domain.Snapshot{}, err
	}

	open, failedOpen := s.window.IsOpen(ctx, phone)

	snap := domain.Snapshot{
		Phone:            phone,
		Status:           status,
		RemainingTTL:     remaining,
		WindowOpen:       open,
		WindowFailedOpen: failedOpen,
	}

	if last, found, err := s.window.LastInbound(ctx, phone); err == nil && found {
		snap.LastInboundAt = &last
	}

	return snap, nil
}

// RequestHandoff flags escalation: the conversation enters
// PENDING_HANDOFF under the arrival timer. The human side is notified via
// the event bus; ConfirmHandoff completes the transfer.
func (s *Service) RequestHandoff(ctx context.Context, phone, trigger string) error {
	current, _, err := s.store.Get(ctx, phone)
	if err != nil {
		return err
	}
	if current.OwnedByHuman() || current == domain.StatusPendingHandoff {
		// Already escalated; keep the existing timer.
		return nil
	}

	if err := s.store.Set(ctx, phone, domain.StatusPendingHandoff, s.arrivalTTL); err != nil {
		return err
	}

	s.log.HandoffEvent(phone, string(current), string(domain.StatusPendingHandoff), trigger)
	s.bus.Publish(ctx, events.HandoffRequested{
		BaseEvent: events.NewBaseEvent(),
		Phone:     phone,
		Trigger:   trigger,
	})
	s.publishChange(ctx, phone, current, domain.StatusPendingHandoff)
	return nil
}

// ConfirmHandoff moves a pending conversation to HUMAN_ACTIVE with the
// arrival timer armed. If no operator message arrives before it elapses,
// the key expires and the conversation reverts to the bot.
func (s *Service) ConfirmHandoff(ctx context.Context, phone string) error {
	current, _, err := s.store.Get(ctx, phone)
	if err != nil {
		return err
	}
	if current.OwnedByHuman() {
		return nil
	}

	if err := s.store.Set(ctx, phone, domain.StatusHumanActive, s.arrivalTTL); err != nil {
		return err
	}

	s.log.HandoffEvent(phone, string(current), string(domain.StatusHumanActive), "confirm")
	s.publishChange(ctx, phone, current, domain.StatusHumanActive)
	return nil
}

// RecordOperatorMessage registers that a human sent an outbound message:
// the conversation becomes (or stays) IN_CONVERSATION and the activity
// timer restarts, giving the sliding expiry.
func (s *Service) RecordOperatorMessage(ctx context.Context, phone string) error {
	current, _, err := s.store.Get(ctx, phone)
	if err != nil {
		return err
	}

	if err := s.store.Set(ctx, phone, domain.StatusInConversation, s.activityTTL); err != nil {
		return err
	}

	if current != domain.StatusInConversation {
		s.log.HandoffEvent(phone, string(current), string(domain.StatusInConversation), "operator_message")
		s.publishChange(ctx, phone, current, domain.StatusInConversation)
	}
	return nil
}

// Close explicitly ends human ownership. The status key is removed, so
// the conversation resolves to BOT_ACTIVE on the next inbound message.
// Closing an already-closed (absent) conversation is a no-op.
func (s *Service) Close(ctx context.Context, phone string) (transport.CloseResponse, error) {
	current, _, err := s.store.Get(ctx, phone)
	if err != nil {
		return transport.CloseResponse{}, err
	}

	if current == domain.StatusBotActive {
		return transport.CloseResponse{Phone: phone, PreviousStatus: string(current), Closed: false}, nil
	}

	if err := s.store.Delete(ctx, phone); err != nil {
		return transport.CloseResponse{}, err
	}

	s.log.HandoffEvent(phone, string(current), string(domain.StatusClosed), "close")
	s.bus.Publish(ctx, events.ConversationClosed{
		BaseEvent: events.NewBaseEvent(),
		Phone:     phone,
	})
	s.publishChange(ctx, phone, current, domain.StatusClosed)

	return transport.CloseResponse{Phone: phone, PreviousStatus: string(current), Closed: true}, nil
}

// SendOperatorMessage performs an operator-initiated outbound send. A
// template reference always goes through the template path; a free-form
// body requires an open window. After a successful send the operator
// transition is recorded.
func (s *Service) SendOperatorMessage(ctx context.Context, phone string, req transport.SendMessageRequest) (transport.SendMessageResponse, error) {
	if s.sender == nil {
		return transport.SendMessageResponse{}, apperr.Internal("messaging provider not configured")
	}

	var resp transport.SendMessageResponse
	resp.Phone = phone

	switch {
	case req.TemplateID != "":
		if s.renderer == nil {
			return transport.SendMessageResponse{}, apperr.Internal("template engine not configured")
		}
		rendered, err := s.renderer.RenderByID(ctx, req.TemplateID, req.Variables)
		if err != nil {
			return transport.SendMessageResponse{}, err
		}
		if err := s.sender.SendTemplate(ctx, phone, rendered.Name, req.Variables); err != nil {
			return transport.SendMessageResponse{}, err
		}
		resp.Path = pathTemplate
		resp.Template = rendered.Name
		resp.Body = rendered.Text

	case req.Body != "":
		open, failedOpen := s.window.IsOpen(ctx, phone)
		if !open && !failedOpen {
			return transport.SendMessageResponse{}, apperr.Validation(
				"messaging window closed; a template is required")
		}
		if err := s.sender.SendFreeform(ctx, phone, req.Body); err != nil {
			return transport.SendMessageResponse{}, err
		}
		resp.Path = pathFreeform
		resp.Body = req.Body

	default:
		return transport.SendMessageResponse{}, apperr.Validation("either body or templateId is required")
	}

	if err := s.RecordOperatorMessage(ctx, phone); err != nil {
		// The customer already received the message; surface the state
		// fault without pretending the send failed.
		s.log.Warn("operator transition failed after send", "phone", phone, "error", err)
	}

	resp.Status = string(domain.StatusInConversation)
	return resp, nil
}

func (s *Service) publishChange(ctx context.Context, phone string, from, to domain.Status) {
	s.bus.Publish(ctx, events.HandoffStateChanged{
		BaseEvent: events.NewBaseEvent(),
		Phone:     phone,
		From:      string(from),
		To:        string(to),
	})
}
