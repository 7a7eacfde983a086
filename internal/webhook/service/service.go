// Package service routes inbound provider messages. It is the only place
// that decides whether the bot or a human answers a client.
package service

import (
	"context"
	"strings"
	"time"

	"conversa_backend/internal/botreply"
	"conversa_backend/internal/conversation/domain"
	"conversa_backend/internal/conversation/ports"
	conversationsvc "conversa_backend/internal/conversation/service"
	"conversa_backend/internal/events"
	"conversa_backend/internal/webhook/transport"
	"conversa_backend/platform/config"
	"conversa_backend/platform/logger"
)

const (
	actionBotReply      = "bot_reply"
	actionPendingNotice = "pending_notice"
	actionMirrored      = "mirrored"
	actionHandoff       = "handoff_initiated"
)

type Service struct {
	convo       *conversationsvc.Service
	bot         botreply.Generator
	bus         events.Bus
	log         *logger.Logger
	keywords    []string
	waitMessage string

	sender ports.MessageSender
	leads  ports.LeadSyncer
}

func New(convo *conversationsvc.Service, bot botreply.Generator, bus events.Bus, cfg config.HandoffConfig, log *logger.Logger) *Service {
	keywords := make([]string, 0, len(cfg.GetHandoffKeywords()))
	for _, keyword := range cfg.GetHandoffKeywords() {
		if trimmed := strings.ToLower(strings.TrimSpace(keyword)); trimmed != "" {
			keywords = append(keywords, trimmed)
		}
	}

	return &Service{
		convo:       convo,
		bot:         bot,
		bus:         bus,
		log:         log,
		keywords:    keywords,
		waitMessage: cfg.GetPendingWaitMessage(),
	}
}

// SetMessageSender injects the provider client at the composition root.
func (s *Service) SetMessageSender(sender ports.MessageSender) {
	s.sender = sender
}

// SetLeadSyncer injects the CRM sync scheduler at the composition root.
func (s *Service) SetLeadSyncer(leads ports.LeadSyncer) {
	s.leads = leads
}

// ProcessInbound routes one client message. The window refresh happens
// before anything else so even a failed routing decision records that the
// client wrote.
func (s *Service) ProcessInbound(ctx context.Context, msg domain.InboundMessage) (transport.WebhookResponse, error) {
	log := s.log.WithConversation(msg.Phone)

	if err := s.convo.Window().Touch(ctx, msg.Phone); err != nil {
		log.StoreError("touch_window", msg.Phone, err)
	}

	snap, err := s.convo.Snapshot(ctx, msg.Phone)
	if err != nil {
		return transport.WebhookResponse{}, err
	}

	defer s.bus.Publish(ctx, events.ClientMessageReceived{
		BaseEvent:   events.NewBaseEvent(),
		Phone:       msg.Phone,
		Body:        msg.Body,
		ProfileName: msg.ProfileName,
		Status:      string(snap.Status),
	})

	switch {
	case snap.Status.OwnedByHuman():
		// A human owns the conversation; the message is mirrored through
		// the event bus and the bot stays silent.
		log.Info("inbound mirrored to operator", "status", snap.Status)
		return s.response(msg, snap.Status, actionMirrored, ""), nil

	case snap.Status == domain.StatusPendingHandoff:
		s.send(ctx, log, msg.Phone, s.waitMessage)
		return s.response(msg, snap.Status, actionPendingNotice, s.waitMessage), nil

	case s.matchesHandoffKeyword(msg.Body):
		if err := s.convo.RequestHandoff(ctx, msg.Phone, conversationsvc.TriggerKeyword); err != nil {
			return transport.WebhookResponse{}, err
		}
		s.send(ctx, log, msg.Phone, s.waitMessage)
		s.enqueueLeadSync(ctx, log, msg)
		return s.response(msg, domain.StatusPendingHandoff, actionHandoff, s.waitMessage), nil

	default:
		reply, err := s.bot.Reply(ctx, msg.Body, nil)
		if err != nil {
			// A broken model must not leave the client without an answer.
			log.Error("bot reply generation failed", "error", err)
			reply = s.waitMessage
		}
		s.send(ctx, log, msg.Phone, reply)
		return s.response(msg, snap.Status, actionBotReply, reply), nil
	}
}

// RecordDeliveryStatus logs a provider delivery status callback. Failed
// deliveries are surfaced at error level so operators notice them.
func (s *Service) RecordDeliveryStatus(req transport.StatusCallbackRequest) {
	fields := []any{
		"message_id", req.MessageID,
		"to", req.To,
		"status", req.Status,
	}
	if req.Status == "failed" || req.ErrorCode != "" {
		fields = append(fields, "error_code", req.ErrorCode, "error_message", req.ErrorMessage)
		s.log.Error("message delivery failed", fields...)
		return
	}
	s.log.Info("delivery status received", fields...)
}

func (s *Service) matchesHandoffKeyword(body string) bool {
	lowered := strings.ToLower(body)
	for _, keyword := range s.keywords {
		if strings.Contains(lowered, keyword) {
			return true
		}
	}
	return false
}

func (s *Service) send(ctx context.Context, log *logger.Logger, phone, body string) {
	if s.sender == nil || body == "" {
		return
	}
	if err := s.sender.SendFreeform(ctx, phone, body); err != nil {
		log.Error("provider send failed", "error", err)
	}
}

// enqueueLeadSync schedules the CRM upsert off the hot path. The client
// response never waits on the CRM.
func (s *Service) enqueueLeadSync(ctx context.Context, log *logger.Logger, msg domain.InboundMessage) {
	if s.leads == nil {
		return
	}

	transcript := "📱 [Cliente - WhatsApp]\n" + msg.Body
	if err := s.leads.EnqueueUpsert(ctx, msg.Phone, msg.ProfileName, msg.ChannelOrigin, transcript); err != nil {
		log.CRMSyncError("enqueue_upsert", msg.Phone, err)
	}
}

func (s *Service) response(msg domain.InboundMessage, status domain.Status, action, reply string) transport.WebhookResponse {
	return transport.WebhookResponse{
		Phone:      msg.Phone,
		Status:     string(status),
		Action:     action,
		Reply:      reply,
		ReceivedAt: msg.ReceivedAt.UTC().Format(time.RFC3339),
	}
}
