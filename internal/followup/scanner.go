// Package followup re-engages conversations whose messaging window closed
// without a resolution. Because the window is closed, the only deliverable
// message is a pre-approved template.
package followup

import (
	"context"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"conversa_backend/internal/conversation/ports"
	"conversa_backend/internal/conversation/store"
	"conversa_backend/internal/conversation/window"
	"conversa_backend/internal/events"
	"conversa_backend/platform/config"
	"conversa_backend/platform/logger"
)

const markerPrefix = "followup_sent:"

// TemplateRenderer resolves the re-engagement template by its stable name.
type TemplateRenderer interface {
	RenderByName(ctx context.Context, name string, variables map[string]string) (ports.RenderedTemplate, error)
}

// Enqueuer hands a follow-up off to the task queue so the sweep never
// blocks on provider sends. FollowUp runs later inside the worker.
type Enqueuer interface {
	EnqueueFollowUp(ctx context.Context, phone string) error
}

// Scanner periodically sweeps closed windows and sends one follow-up
// template per conversation. The sent marker is written before the send, so
// overlapping runs and worker restarts never double-message a client.
type Scanner struct {
	win      *window.Tracker
	st       *store.Store
	rdb      *goredis.Client
	sender   ports.MessageSender
	renderer TemplateRenderer
	bus      events.Bus
	queue    Enqueuer
	log      *logger.Logger

	interval     time.Duration
	markerTTL    time.Duration
	templateName string
	windowAge    time.Duration
}

// Config is the configuration slice the scanner consumes.
type Config interface {
	config.FollowUpConfig
	config.WindowConfig
}

func NewScanner(win *window.Tracker, st *store.Store, rdb *goredis.Client, sender ports.MessageSender, renderer TemplateRenderer, bus events.Bus, cfg Config, log *logger.Logger) *Scanner {
	return &Scanner{
		win:          win,
		st:           st,
		rdb:          rdb,
		sender:       sender,
		renderer:     renderer,
		bus:          bus,
		log:          log,
		interval:     cfg.GetFollowUpInterval(),
		markerTTL:    cfg.GetFollowUpMarkerTTL(),
		templateName: cfg.GetFollowUpTemplateName(),
		windowAge:    cfg.GetWindowDuration(),
	}
}

// SetEnqueuer injects the task queue at the composition root. Without one
// the sweep sends inline, which keeps queue-less setups working.
func (s *Scanner) SetEnqueuer(queue Enqueuer) {
	s.queue = queue
}

// Run sweeps immediately and then on every tick until the context ends.
func (s *Scanner) Run(ctx context.Context) {
	if s == nil {
		return
	}

	s.sweep(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Scanner) sweep(ctx context.Context) {
	phones, err := s.win.ExpiredSince(ctx, s.windowAge)
	if err != nil {
		s.log.Warn("follow-up sweep failed", "error", err)
		return
	}

	sent := 0
	for _, phone := range phones {
		if s.queue != nil {
			if err := s.queue.EnqueueFollowUp(ctx, phone); err != nil {
				s.log.Warn("follow-up enqueue failed", "phone", phone, "error", err)
				continue
			}
			sent++
			continue
		}

		dispatched, err := s.FollowUp(ctx, phone)
		if err != nil {
			s.log.Warn("follow-up send failed", "phone", phone, "error", err)
			continue
		}
		if dispatched {
			sent++
		}
	}

	if sent > 0 {
		s.log.Info("follow-up sweep dispatched", "candidates", len(phones), "sent", sent)
	}
}

// FollowUp sends the re-engagement template to one conversation, at most
// once per marker TTL. It reports whether a message went out.
func (s *Scanner) FollowUp(ctx context.Context, phone string) (bool, error) {
	status, _, err := s.st.Get(ctx, phone)
	if err != nil {
		return false, err
	}
	if status.OwnedByHuman() {
		// An operator owns this conversation; automated nudges would talk
		// over them.
		return false, nil
	}

	marked, err := s.rdb.SetNX(ctx, markerPrefix+phone, time.Now().UTC().Format(time.RFC3339), s.markerTTL).Result()
	if err != nil {
		return false, err
	}
	if !marked {
		return false, nil
	}

	rendered, err := s.renderer.RenderByName(ctx, s.templateName, nil)
	if err != nil {
		// Undo the marker so a fixed template config retries on the next
		// sweep instead of waiting out the TTL.
		s.rdb.Del(ctx, markerPrefix+phone)
		return false, err
	}

	if err := s.sender.SendTemplate(ctx, phone, rendered.Name, nil); err != nil {
		// The marker stays: the send may have reached the provider, and a
		// duplicate follow-up is worse than a missed one.
		return false, err
	}

	s.bus.Publish(ctx, events.FollowUpSent{
		BaseEvent: events.NewBaseEvent(),
		Phone:     phone,
		Template:  rendered.Name,
	})
	return true, nil
}
