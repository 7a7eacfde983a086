package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"

	"conversa_backend/internal/crmsync/domain"
	"conversa_backend/internal/events"
	"conversa_backend/platform/apperr"
	"conversa_backend/platform/logger"
	"conversa_backend/platform/phone"
)

// fakeCRM is an in-memory stand-in for the remote CRM. It stores contacts
// keyed by ID and indexes every phone variant it has seen.
type fakeCRM struct {
	contacts map[string]*domain.Contact
	byPhone  map[string]string
	deals    []string
	notes    map[string][]domain.Note
	nextID   int
	// conflictWith simulates a create race: the next CreateContact fails
	// with a conflict and the named contact becomes searchable.
	conflictWith string
	searchCalls  int
}

func newFakeCRM() *fakeCRM {
	return &fakeCRM{
		contacts: make(map[string]*domain.Contact),
		byPhone:  make(map[string]string),
		notes:    make(map[string][]domain.Note),
	}
}

func (f *fakeCRM) SearchContactByPhone(_ context.Context, variants []string) (*domain.Contact, error) {
	f.searchCalls++
	for _, variant := range variants {
		if id, ok := f.byPhone[variant]; ok {
			return f.contacts[id], nil
		}
	}
	return nil, nil
}

func (f *fakeCRM) GetContact(_ context.Context, contactID string) (*domain.Contact, error) {
	contact, ok := f.contacts[contactID]
	if !ok {
		return nil, apperr.NotFound("crm object not found")
	}
	return contact, nil
}

func (f *fakeCRM) CreateContact(_ context.Context, properties map[string]string) (string, error) {
	if f.conflictWith != "" {
		winner := f.conflictWith
		f.conflictWith = ""
		if phoneValue := properties["phone"]; phoneValue != "" {
			f.byPhone[phoneValue] = winner
		}
		return "", apperr.Conflict("crm object already exists")
	}

	f.nextID++
	id := fmt.Sprintf("contact-%d", f.nextID)
	props := make(map[string]string, len(properties))
	for key, value := range properties {
		props[key] = value
	}
	f.contacts[id] = &domain.Contact{ID: id, Properties: props}
	if phoneValue := properties["phone"]; phoneValue != "" {
		f.byPhone[phoneValue] = id
	}
	return id, nil
}

func (f *fakeCRM) PatchContact(_ context.Context, contactID string, properties map[string]string) error {
	contact, ok := f.contacts[contactID]
	if !ok {
		return apperr.NotFound("crm object not found")
	}
	for key, value := range properties {
		contact.Properties[key] = value
	}
	return nil
}

func (f *fakeCRM) CreateDeal(_ context.Context, contactID, name string, _ map[string]string) (string, error) {
	if _, ok := f.contacts[contactID]; !ok {
		return "", apperr.NotFound("crm object not found")
	}
	id := fmt.Sprintf("deal-%d", len(f.deals)+1)
	f.deals = append(f.deals, contactID+":"+name)
	return id, nil
}

func (f *fakeCRM) CreateNote(_ context.Context, contactID, body string, at time.Time) (string, error) {
	id := fmt.Sprintf("note-%d", len(f.notes[contactID])+1)
	f.notes[contactID] = append(f.notes[contactID], domain.Note{ID: id, Body: body, Timestamp: at})
	return id, nil
}

func (f *fakeCRM) ListNotes(_ context.Context, contactID string, _ int) ([]domain.Note, error) {
	return f.notes[contactID], nil
}

func newTestService(t *testing.T, crm CRM) (*Service, *goredis.Client) {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	log := logger.New("test")
	bus := events.NewInMemoryBus(log)
	norm := phone.NewNormalizer("AR", "549")

	return New(crm, rdb, bus, norm, log), rdb
}

func TestUpsertCreatesContactAndDeal(t *testing.T) {
	crm := newFakeCRM()
	svc, _ := newTestService(t, crm)

	result, err := svc.UpsertLead(context.Background(), domain.UpsertInput{
		Phone:         "+54 9 2901 234567",
		FullName:      "Laura Gómez",
		ChannelOrigin: "instagram",
		Transcript:    "📱 [Cliente - WhatsApp]\nHola, busco un apartamento",
	})
	if err != nil {
		t.Fatalf("UpsertLead() error = %v", err)
	}

	if !result.Created {
		t.Error("expected a created contact on first upsert")
	}
	if len(crm.contacts) != 1 {
		t.Fatalf("expected 1 contact, got %d", len(crm.contacts))
	}

	contact := crm.contacts[result.ContactID]
	if contact.Properties["phone"] != "+5492901234567" {
		t.Errorf("contact stored with phone %q, want normalized E.164", contact.Properties["phone"])
	}
	if contact.Properties["firstname"] != "Laura" || contact.Properties["lastname"] != "Gómez" {
		t.Errorf("name not split: %q %q", contact.Properties["firstname"], contact.Properties["lastname"])
	}

	if len(crm.deals) != 1 {
		t.Fatalf("expected 1 deal, got %d", len(crm.deals))
	}
	if len(crm.notes[result.ContactID]) != 1 {
		t.Errorf("expected transcript note, got %d notes", len(crm.notes[result.ContactID]))
	}
}

func TestUpsertDeduplicatesByPhone(t *testing.T) {
	crm := newFakeCRM()
	svc, _ := newTestService(t, crm)
	ctx := context.Background()

	first, err := svc.UpsertLead(ctx, domain.UpsertInput{
		Phone:    "+5492901234567",
		FullName: "Laura Gómez",
		Location: "Ushuaia",
	})
	if err != nil {
		t.Fatalf("first UpsertLead() error = %v", err)
	}

	// Same person again, different formatting, more data, no name.
	second, err := svc.UpsertLead(ctx, domain.UpsertInput{
		Phone:        "54 9 2901 234567",
		PropertyType: "apartamento",
	})
	if err != nil {
		t.Fatalf("second UpsertLead() error = %v", err)
	}

	if second.Created {
		t.Error("second upsert must patch, not create")
	}
	if second.ContactID != first.ContactID {
		t.Errorf("got two contacts %s and %s for one phone", first.ContactID, second.ContactID)
	}
	if len(crm.contacts) != 1 {
		t.Fatalf("expected 1 contact, got %d", len(crm.contacts))
	}

	// Fields accumulate and blanks never erase.
	contact := crm.contacts[first.ContactID]
	if contact.Properties["firstname"] != "Laura" {
		t.Errorf("blank name overwrote existing value: %q", contact.Properties["firstname"])
	}
	if contact.Properties["ubicacion"] != "Ushuaia" {
		t.Errorf("location lost on patch: %q", contact.Properties["ubicacion"])
	}
	if contact.Properties["tipo_propiedad"] != "apartamento" {
		t.Errorf("new field not patched in: %q", contact.Properties["tipo_propiedad"])
	}

	// Every interaction opens its own deal.
	if len(crm.deals) != 2 {
		t.Errorf("expected 2 deals, got %d", len(crm.deals))
	}
}

func TestUpsertScoreNeverDowngrades(t *testing.T) {
	crm := newFakeCRM()
	svc, rdb := newTestService(t, crm)
	ctx := context.Background()

	first, err := svc.UpsertLead(ctx, domain.UpsertInput{
		Phone:         "+5492901234567",
		FullName:      "Laura Gómez",
		ChannelOrigin: "finca_raiz",
		PropertyCode:  "APT-114",
	})
	if err != nil {
		t.Fatalf("first UpsertLead() error = %v", err)
	}

	// Drop the cache so the second upsert goes through search and can
	// compare against the stored score.
	rdb.Del(ctx, contactCachePrefix+"+5492901234567")

	if _, err := svc.UpsertLead(ctx, domain.UpsertInput{Phone: "+5492901234567"}); err != nil {
		t.Fatalf("second UpsertLead() error = %v", err)
	}

	got := crm.contacts[first.ContactID].Properties["lead_score"]
	want := fmt.Sprintf("%d", first.Score)
	if got != want {
		t.Errorf("lead_score downgraded to %s, want %s", got, want)
	}
}

func TestUpsertScoreNeverDowngradesOnCachedContact(t *testing.T) {
	crm := newFakeCRM()
	svc, _ := newTestService(t, crm)
	ctx := context.Background()

	first, err := svc.UpsertLead(ctx, domain.UpsertInput{
		Phone:         "+5492901234567",
		FullName:      "Laura Gómez",
		ChannelOrigin: "finca_raiz",
		PropertyCode:  "APT-114",
	})
	if err != nil {
		t.Fatalf("first UpsertLead() error = %v", err)
	}
	searchesAfterFirst := crm.searchCalls

	// The cache stays warm, so this sparse upsert takes the cached-ID
	// path and must still merge against the stored score.
	if _, err := svc.UpsertLead(ctx, domain.UpsertInput{Phone: "+5492901234567"}); err != nil {
		t.Fatalf("second UpsertLead() error = %v", err)
	}

	got := crm.contacts[first.ContactID].Properties["lead_score"]
	want := fmt.Sprintf("%d", first.Score)
	if got != want {
		t.Errorf("lead_score downgraded to %s via cached contact, want %s", got, want)
	}
	if crm.searchCalls != searchesAfterFirst {
		t.Errorf("cached contact still triggered %d extra searches", crm.searchCalls-searchesAfterFirst)
	}
}

func TestUpsertRecoversFromCreateConflict(t *testing.T) {
	crm := newFakeCRM()
	svc, _ := newTestService(t, crm)
	ctx := context.Background()

	// The winner exists but is not yet searchable, so our search misses
	// and the create collides with it.
	winnerID := "contact-race"
	crm.contacts[winnerID] = &domain.Contact{
		ID:         winnerID,
		Properties: map[string]string{"phone": "+5492901234567"},
	}
	crm.conflictWith = winnerID

	result, err := svc.UpsertLead(ctx, domain.UpsertInput{
		Phone:    "+5492901234567",
		FullName: "Laura Gómez",
	})
	if err != nil {
		t.Fatalf("UpsertLead() error = %v", err)
	}

	if result.Created {
		t.Error("conflict recovery must adopt the existing contact")
	}
	if result.ContactID != winnerID {
		t.Errorf("adopted contact %s, want %s", result.ContactID, winnerID)
	}
	if crm.contacts[winnerID].Properties["firstname"] != "Laura" {
		t.Error("winner contact was not patched with our data")
	}
}

func TestUpsertUsesContactCache(t *testing.T) {
	crm := newFakeCRM()
	svc, _ := newTestService(t, crm)
	ctx := context.Background()

	if _, err := svc.UpsertLead(ctx, domain.UpsertInput{Phone: "+5492901234567"}); err != nil {
		t.Fatalf("first UpsertLead() error = %v", err)
	}
	searchesAfterFirst := crm.searchCalls

	if _, err := svc.UpsertLead(ctx, domain.UpsertInput{Phone: "+5492901234567"}); err != nil {
		t.Fatalf("second UpsertLead() error = %v", err)
	}

	if crm.searchCalls != searchesAfterFirst {
		t.Errorf("cached contact still triggered %d extra searches", crm.searchCalls-searchesAfterFirst)
	}
}

func TestUpsertDisabledIsNoOp(t *testing.T) {
	svc, _ := newTestService(t, nil)

	result, err := svc.UpsertLead(context.Background(), domain.UpsertInput{Phone: "+5492901234567"})
	if err != nil {
		t.Fatalf("disabled UpsertLead() error = %v", err)
	}
	if result.ContactID != "" {
		t.Errorf("disabled service returned contact %q", result.ContactID)
	}
}

func TestActivityClassifiesTimeline(t *testing.T) {
	crm := newFakeCRM()
	svc, _ := newTestService(t, crm)
	ctx := context.Background()

	contactID, err := crm.CreateContact(ctx, map[string]string{"phone": "+5492901234567"})
	if err != nil {
		t.Fatalf("seed contact: %v", err)
	}

	base := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)
	crm.notes[contactID] = []domain.Note{
		{ID: "n2", Body: "🤖 ¿Qué zona te interesa?", Timestamp: base.Add(time.Minute)},
		{ID: "n1", Body: "📱 Hola, busco un apartamento en Ushuaia", Timestamp: base},
	}

	entries, err := svc.Activity(ctx, "+5492901234567")
	if err != nil {
		t.Fatalf("Activity() error = %v", err)
	}

	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].ID != "n1" || entries[0].Sender != domain.SenderClient {
		t.Errorf("first entry = %+v, want client note n1", entries[0])
	}
	if entries[1].Sender != domain.SenderBot {
		t.Errorf("second entry sender = %s, want bot", entries[1].Sender)
	}
}

func TestActivityUnknownPhone(t *testing.T) {
	svc, _ := newTestService(t, newFakeCRM())

	_, err := svc.Activity(context.Background(), "+5492901999999")
	if !apperr.Is(err, apperr.KindNotFound) {
		t.Errorf("expected not found, got %v", err)
	}
}

func TestLogInboundMirrorsClientMessage(t *testing.T) {
	crm := newFakeCRM()
	svc, _ := newTestService(t, crm)
	ctx := context.Background()

	contactID, err := crm.CreateContact(ctx, map[string]string{"phone": "+5492901234567"})
	if err != nil {
		t.Fatalf("seed contact: %v", err)
	}

	svc.LogInbound(ctx, "+5492901234567", "¿Podemos agendar la visita mañana?")

	notes := crm.notes[contactID]
	if len(notes) != 1 {
		t.Fatalf("expected 1 mirrored note, got %d", len(notes))
	}
	if ClassifySender(notes[0].Body) != domain.SenderClient {
		t.Errorf("mirrored note classifies as %s, want client", ClassifySender(notes[0].Body))
	}
	if got := CleanNoteBody(notes[0].Body); got != "¿Podemos agendar la visita mañana?" {
		t.Errorf("cleaned body = %q", got)
	}
}

func TestLogInboundUnknownContactIsSilent(t *testing.T) {
	crm := newFakeCRM()
	svc, _ := newTestService(t, crm)

	svc.LogInbound(context.Background(), "+5492901999999", "Hola")

	for contactID, notes := range crm.notes {
		if len(notes) != 0 {
			t.Errorf("unexpected notes for %s: %d", contactID, len(notes))
		}
	}
}

func TestLogClosureWritesNote(t *testing.T) {
	crm := newFakeCRM()
	svc, _ := newTestService(t, crm)
	ctx := context.Background()

	contactID, err := crm.CreateContact(ctx, map[string]string{"phone": "+5492901234567"})
	if err != nil {
		t.Fatalf("seed contact: %v", err)
	}

	svc.LogClosure(ctx, "+5492901234567", "resuelto por asesor")

	notes := crm.notes[contactID]
	if len(notes) != 1 {
		t.Fatalf("expected 1 closure note, got %d", len(notes))
	}
	if notes[0].Body != "Conversación cerrada: resuelto por asesor" {
		t.Errorf("closure note body = %q", notes[0].Body)
	}
}
