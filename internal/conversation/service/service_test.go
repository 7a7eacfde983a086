package service

import (
	"context"
	"testing"
	"time"

	"conversa_backend/internal/conversation/domain"
	"conversa_backend/internal/conversation/ports"
	"conversa_backend/internal/conversation/store"
	"conversa_backend/internal/conversation/transport"
	"conversa_backend/internal/conversation/window"
	"conversa_backend/internal/events"
	"conversa_backend/platform/apperr"
	"conversa_backend/platform/logger"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

type handoffConfig struct{}

func (handoffConfig) GetArrivalTTL() time.Duration  { return 2 * time.Hour }
func (handoffConfig) GetActivityTTL() time.Duration { return 4 * time.Hour }
func (handoffConfig) GetPendingWaitMessage() string {
	return "Un asesor se pondrá en contacto contigo en breve."
}
func (handoffConfig) GetHandoffKeywords() []string { return []string{"asesor"} }

type windowConfig struct{}

func (windowConfig) GetWindowDuration() time.Duration { return 24 * time.Hour }
func (windowConfig) GetWindowKeyTTL() time.Duration   { return 25 * time.Hour }

type fakeSender struct {
	freeform  []string
	templates []string
	err       error
}

func (f *fakeSender) SendFreeform(_ context.Context, _, text string) error {
	if f.err != nil {
		return f.err
	}
	f.freeform = append(f.freeform, text)
	return nil
}

func (f *fakeSender) SendTemplate(_ context.Context, _, templateName string, _ map[string]string) error {
	if f.err != nil {
		return f.err
	}
	f.templates = append(f.templates, templateName)
	return nil
}

type fakeRenderer struct {
	rendered ports.RenderedTemplate
	err      error
}

func (f *fakeRenderer) RenderByID(_ context.Context, _ string, _ map[string]string) (ports.RenderedTemplate, error) {
	if f.err != nil {
		return ports.RenderedTemplate{}, f.err
	}
	return f.rendered, nil
}

func newTestService(t *testing.T) (*Service, *miniredis.Miniredis, *fakeSender) {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	log := logger.New("development")

	st := store.New(rdb, log)
	win := window.New(rdb, windowConfig{}, log)
	bus := events.NewInMemoryBus(log)

	svc := New(st, win, bus, handoffConfig{}, log)
	sender := &fakeSender{}
	svc.SetMessageSender(sender)
	svc.SetTemplateRenderer(&fakeRenderer{rendered: ports.RenderedTemplate{
		ID:   "b6f2a1e0-0000-0000-0000-000000000001",
		Name: "followup_reengage",
		Text: "Hola Ana, seguimos aquí.",
	}})

	return svc, mr, sender
}

const testPhone = "+5492901234567"

func TestHandoffLifecycle(t *testing.T) {
	svc, mr, _ := newTestService(t)
	ctx := context.Background()

	// Brand-new phone: default status, no window recorded.
	snap, err := svc.Snapshot(ctx, testPhone)
	if err != nil {
		t.Fatalf("snapshot failed: %v", err)
	}
	if snap.Status != domain.StatusBotActive {
		t.Fatalf("expected default %q, got %q", domain.StatusBotActive, snap.Status)
	}
	if snap.WindowOpen {
		t.Fatalf("expected closed window before any inbound")
	}

	// Inbound arrives: window opens.
	if err := svc.Window().Touch(ctx, testPhone); err != nil {
		t.Fatalf("touch failed: %v", err)
	}
	snap, err = svc.Snapshot(ctx, testPhone)
	if err != nil {
		t.Fatalf("snapshot failed: %v", err)
	}
	if !snap.WindowOpen {
		t.Fatalf("expected open window after inbound")
	}

	// Escalation: pending, then confirmed with the arrival timer.
	if err := svc.RequestHandoff(ctx, testPhone, TriggerKeyword); err != nil {
		t.Fatalf("request handoff failed: %v", err)
	}
	snap, _ = svc.Snapshot(ctx, testPhone)
	if snap.Status != domain.StatusPendingHandoff {
		t.Fatalf("expected %q, got %q", domain.StatusPendingHandoff, snap.Status)
	}

	if err := svc.ConfirmHandoff(ctx, testPhone); err != nil {
		t.Fatalf("confirm handoff failed: %v", err)
	}
	snap, _ = svc.Snapshot(ctx, testPhone)
	if snap.Status != domain.StatusHumanActive {
		t.Fatalf("expected %q, got %q", domain.StatusHumanActive, snap.Status)
	}
	if snap.RemainingTTL <= 0 || snap.RemainingTTL > 2*time.Hour {
		t.Fatalf("expected arrival TTL in (0, 2h], got %v", snap.RemainingTTL)
	}

	// Operator replies: sliding activity timer.
	if err := svc.RecordOperatorMessage(ctx, testPhone); err != nil {
		t.Fatalf("operator transition failed: %v", err)
	}
	snap, _ = svc.Snapshot(ctx, testPhone)
	if snap.Status != domain.StatusInConversation {
		t.Fatalf("expected %q, got %q", domain.StatusInConversation, snap.Status)
	}

	// Explicit close removes the key.
	closed, err := svc.Close(ctx, testPhone)
	if err != nil {
		t.Fatalf("close failed: %v", err)
	}
	if !closed.Closed || closed.PreviousStatus != string(domain.StatusInConversation) {
		t.Fatalf("unexpected close response: %+v", closed)
	}

	// New inbound after close resolves to the default.
	snap, err = svc.Snapshot(ctx, testPhone)
	if err != nil {
		t.Fatalf("snapshot failed: %v", err)
	}
	if snap.Status != domain.StatusBotActive {
		t.Fatalf("expected %q after close, got %q", domain.StatusBotActive, snap.Status)
	}

	_ = mr
}

func TestArrivalTimerRevertsToBot(t *testing.T) {
	svc, mr, _ := newTestService(t)
	ctx := context.Background()

	if err := svc.RequestHandoff(ctx, testPhone, TriggerManual); err != nil {
		t.Fatalf("request handoff failed: %v", err)
	}
	if err := svc.ConfirmHandoff(ctx, testPhone); err != nil {
		t.Fatalf("confirm handoff failed: %v", err)
	}

	mr.FastForward(2*time.Hour + time.Second)

	snap, err := svc.Snapshot(ctx, testPhone)
	if err != nil {
		t.Fatalf("snapshot failed: %v", err)
	}
	if snap.Status != domain.StatusBotActive {
		t.Fatalf("expected revert to %q after arrival timer, got %q", domain.StatusBotActive, snap.Status)
	}
}

func TestRequestHandoffIsIdempotentWhileEscalated(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	if err := svc.RequestHandoff(ctx, testPhone, TriggerKeyword); err != nil {
		t.Fatalf("request handoff failed: %v", err)
	}
	if err := svc.ConfirmHandoff(ctx, testPhone); err != nil {
		t.Fatalf("confirm handoff failed: %v", err)
	}
	if err := svc.RecordOperatorMessage(ctx, testPhone); err != nil {
		t.Fatalf("operator transition failed: %v", err)
	}

	// A second keyword hit must not demote the conversation.
	if err := svc.RequestHandoff(ctx, testPhone, TriggerKeyword); err != nil {
		t.Fatalf("request handoff failed: %v", err)
	}
	snap, _ := svc.Snapshot(ctx, testPhone)
	if snap.Status != domain.StatusInConversation {
		t.Fatalf("expected %q preserved, got %q", domain.StatusInConversation, snap.Status)
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	closed, err := svc.Close(ctx, testPhone)
	if err != nil {
		t.Fatalf("close failed: %v", err)
	}
	if closed.Closed {
		t.Fatalf("closing an absent conversation must be a no-op")
	}
}

func TestSendFreeformRejectedWhenWindowClosed(t *testing.T) {
	svc, _, sender := newTestService(t)
	ctx := context.Background()

	_, err := svc.SendOperatorMessage(ctx, testPhone, transport.SendMessageRequest{Body: "hola"})
	if err == nil {
		t.Fatalf("expected rejection with closed window")
	}
	if !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("expected validation kind, got %v", err)
	}
	if len(sender.freeform) != 0 {
		t.Fatalf("no message should have been sent")
	}
}

func TestSendFreeformAllowedWhenWindowOpen(t *testing.T) {
	svc, _, sender := newTestService(t)
	ctx := context.Background()

	if err := svc.Window().Touch(ctx, testPhone); err != nil {
		t.Fatalf("touch failed: %v", err)
	}

	resp, err := svc.SendOperatorMessage(ctx, testPhone, transport.SendMessageRequest{Body: "hola"})
	if err != nil {
		t.Fatalf("send failed: %v", err)
	}
	if resp.Path != "freeform" {
		t.Fatalf("expected freeform path, got %q", resp.Path)
	}
	if len(sender.freeform) != 1 {
		t.Fatalf("expected one freeform send, got %d", len(sender.freeform))
	}

	// The send records the operator transition.
	snap, _ := svc.Snapshot(ctx, testPhone)
	if snap.Status != domain.StatusInConversation {
		t.Fatalf("expected %q after send, got %q", domain.StatusInConversation, snap.Status)
	}
}

func TestSendTemplateAllowedWhenWindowClosed(t *testing.T) {
	svc, _, sender := newTestService(t)
	ctx := context.Background()

	resp, err := svc.SendOperatorMessage(ctx, testPhone, transport.SendMessageRequest{
		TemplateID: "b6f2a1e0-0000-0000-0000-000000000001",
		Variables:  map[string]string{"nombre": "Ana"},
	})
	if err != nil {
		t.Fatalf("template send failed: %v", err)
	}
	if resp.Path != "template" {
		t.Fatalf("expected template path, got %q", resp.Path)
	}
	if len(sender.templates) != 1 {
		t.Fatalf("expected one template send, got %d", len(sender.templates))
	}
}

func TestSendFreeformFailsOpenWhenTrackerDown(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	brokenRdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1"})
	log := logger.New("development")

	st := store.New(rdb, log)
	win := window.New(brokenRdb, windowConfig{}, log)
	bus := events.NewInMemoryBus(log)
	svc := New(st, win, bus, handoffConfig{}, log)
	sender := &fakeSender{}
	svc.SetMessageSender(sender)

	_, err := svc.SendOperatorMessage(context.Background(), testPhone, transport.SendMessageRequest{Body: "hola"})
	if err != nil {
		t.Fatalf("expected permissive send under tracker failure, got %v", err)
	}
	if len(sender.freeform) != 1 {
		t.Fatalf("expected the send to go through")
	}
}
