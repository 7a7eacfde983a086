// Package service implements the lead sync engine. The invariant it
// protects is one CRM contact per phone number: every upsert searches
// before creating, merges without blanking existing data, and reconciles
// concurrent creates through the CRM's own conflict signal.
package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"conversa_backend/internal/crmsync/domain"
	"conversa_backend/internal/events"
	"conversa_backend/platform/apperr"
	"conversa_backend/platform/logger"
	"conversa_backend/platform/phone"
)

const (
	contactCachePrefix = "crm:contact:"
	contactCacheTTL    = time.Hour
)

// CRM is the remote system the engine syncs into. The HTTP client under
// crmsync/client implements it; tests substitute a fake.
type CRM interface {
	SearchContactByPhone(ctx context.Context, variants []string) (*domain.Contact, error)
	GetContact(ctx context.Context, contactID string) (*domain.Contact, error)
	CreateContact(ctx context.Context, properties map[string]string) (string, error)
	PatchContact(ctx context.Context, contactID string, properties map[string]string) error
	CreateDeal(ctx context.Context, contactID, name string, properties map[string]string) (string, error)
	CreateNote(ctx context.Context, contactID, body string, at time.Time) (string, error)
	ListNotes(ctx context.Context, contactID string, limit int) ([]domain.Note, error)
}

type Service struct {
	crm   CRM
	rdb   *goredis.Client
	bus   events.Bus
	norm  *phone.Normalizer
	log   *logger.Logger
	group singleflight.Group
	now   func() time.Time
}

func New(crm CRM, rdb *goredis.Client, bus events.Bus, norm *phone.Normalizer, log *logger.Logger) *Service {
	return &Service{
		crm:  crm,
		rdb:  rdb,
		bus:  bus,
		norm: norm,
		log:  log,
		now:  time.Now,
	}
}

// Enabled reports whether a CRM backend is configured.
func (s *Service) Enabled() bool {
	return s != nil && s.crm != nil
}

// UpsertLead synchronizes one lead into the CRM and always opens a new
// deal for the interaction. Concurrent upserts for the same phone collapse
// into a single in-flight call.
func (s *Service) UpsertLead(ctx context.Context, in domain.UpsertInput) (domain.UpsertResult, error) {
	if !s.Enabled() {
		s.log.Warn("crm sync skipped, no crm configured", "phone", in.Phone)
		return domain.UpsertResult{}, nil
	}

	normalized, err := s.norm.Normalize(in.Phone)
	if err != nil {
		return domain.UpsertResult{}, err
	}
	in.Phone = normalized

	value, err, _ := s.group.Do(normalized, func() (interface{}, error) {
		return s.upsert(ctx, in)
	})
	if err != nil {
		return domain.UpsertResult{}, err
	}
	return value.(domain.UpsertResult), nil
}

func (s *Service) upsert(ctx context.Context, in domain.UpsertInput) (domain.UpsertResult, error) {
	score := ComputeScore(in)
	props := s.contactProperties(in, score)

	contactID, created, err := s.resolveContact(ctx, in, props)
	if err != nil {
		s.log.CRMSyncError("upsert_contact", in.Phone, err)
		return domain.UpsertResult{}, err
	}
	s.cacheContactID(ctx, in.Phone, contactID)

	dealID, err := s.crm.CreateDeal(ctx, contactID, dealName(in), map[string]string{
		"canal_origen": in.ChannelOrigin,
	})
	if err != nil {
		s.log.CRMSyncError("create_deal", in.Phone, err)
		return domain.UpsertResult{}, err
	}

	if in.Transcript != "" {
		if _, err := s.crm.CreateNote(ctx, contactID, in.Transcript, s.now()); err != nil {
			// The contact and deal already exist; a lost note is not worth
			// failing the upsert over.
			s.log.CRMSyncError("create_note", in.Phone, err)
		}
	}

	s.bus.Publish(ctx, events.LeadUpserted{
		BaseEvent: events.NewBaseEvent(),
		Phone:     in.Phone,
		ContactID: contactID,
		Created:   created,
	})

	s.log.Info("lead upserted",
		"phone", in.Phone, "contact_id", contactID,
		"deal_id", dealID, "created", created, "score", score)

	return domain.UpsertResult{
		ContactID: contactID,
		DealID:    dealID,
		Created:   created,
		Score:     score,
	}, nil
}

// resolveContact finds or creates the contact for the lead. A create that
// loses a race surfaces as a conflict, which resolves by re-searching and
// patching the winner.
func (s *Service) resolveContact(ctx context.Context, in domain.UpsertInput, props map[string]string) (string, bool, error) {
	variants := s.norm.SearchVariants(in.Phone)

	if cached := s.cachedContactID(ctx, in.Phone); cached != "" {
		contact, err := s.crm.GetContact(ctx, cached)
		if err != nil && !apperr.Is(err, apperr.KindNotFound) {
			return "", false, err
		}
		if contact != nil {
			// The merge rules apply here exactly as on the search path; a
			// raw patch would let a sparse upsert shrink the stored score.
			if err := s.crm.PatchContact(ctx, cached, patchProperties(contact, props)); err == nil {
				return cached, false, nil
			} else if !apperr.Is(err, apperr.KindNotFound) {
				return "", false, err
			}
		}
		// Cached contact was deleted remotely; fall through to a search.
	}

	existing, err := s.crm.SearchContactByPhone(ctx, variants)
	if err != nil {
		return "", false, err
	}
	if existing != nil {
		patch := patchProperties(existing, props)
		if err := s.crm.PatchContact(ctx, existing.ID, patch); err != nil {
			return "", false, err
		}
		return existing.ID, false, nil
	}

	contactID, err := s.crm.CreateContact(ctx, props)
	if err == nil {
		return contactID, true, nil
	}
	if !apperr.Is(err, apperr.KindConflict) {
		return "", false, err
	}

	// Someone created the contact between our search and create. Adopt
	// theirs and merge our data in.
	winner, searchErr := s.crm.SearchContactByPhone(ctx, variants)
	if searchErr != nil {
		return "", false, searchErr
	}
	if winner == nil {
		return "", false, apperr.Wrap(apperr.KindUnavailable, "contact create conflicted but re-search found nothing", err)
	}
	s.log.DedupConflict(in.Phone, winner.ID)

	if err := s.crm.PatchContact(ctx, winner.ID, patchProperties(winner, props)); err != nil {
		return "", false, err
	}
	return winner.ID, false, nil
}

// contactProperties maps the input to CRM field names, omitting blanks so
// they can never overwrite data already in the CRM.
func (s *Service) contactProperties(in domain.UpsertInput, score int) map[string]string {
	first, last := SplitFullName(in.FullName)

	props := map[string]string{"phone": in.Phone}
	setNonBlank(props, "firstname", first)
	setNonBlank(props, "lastname", last)
	setNonBlank(props, "email", in.Email)
	setNonBlank(props, "canal_origen", in.ChannelOrigin)
	setNonBlank(props, "tipo_propiedad", in.PropertyType)
	setNonBlank(props, "ubicacion", in.Location)
	setNonBlank(props, "presupuesto", in.Budget)
	setNonBlank(props, "caracteristicas", in.Features)
	setNonBlank(props, "codigo_propiedad", in.PropertyCode)
	if score > 0 {
		props["lead_score"] = strconv.Itoa(score)
	}
	return props
}

// patchProperties drops fields whose stored value should win: a score is
// never downgraded, and an already populated field is only replaced by a
// non-blank value (which contactProperties already guarantees).
func patchProperties(existing *domain.Contact, props map[string]string) map[string]string {
	patch := make(map[string]string, len(props))
	for key, value := range props {
		patch[key] = value
	}

	if raw, ok := existing.Properties["lead_score"]; ok {
		// An unparsable stored score counts as zero and gets replaced.
		stored, _ := strconv.Atoi(raw)
		if incoming, _ := strconv.Atoi(patch["lead_score"]); incoming <= stored {
			delete(patch, "lead_score")
		}
	}
	return patch
}

func setNonBlank(props map[string]string, key, value string) {
	if value != "" {
		props[key] = value
	}
}

func dealName(in domain.UpsertInput) string {
	if in.FullName != "" {
		return fmt.Sprintf("%s - WhatsApp", in.FullName)
	}
	return fmt.Sprintf("%s - WhatsApp", in.Phone)
}

// Activity returns the classified conversation timeline for a phone number.
func (s *Service) Activity(ctx context.Context, rawPhone string) ([]domain.ActivityEntry, error) {
	if !s.Enabled() {
		return nil, apperr.Unavailable("no crm configured", nil)
	}

	normalized, err := s.norm.Normalize(rawPhone)
	if err != nil {
		return nil, err
	}

	contactID := s.cachedContactID(ctx, normalized)
	if contactID == "" {
		contact, err := s.crm.SearchContactByPhone(ctx, s.norm.SearchVariants(normalized))
		if err != nil {
			return nil, err
		}
		if contact == nil {
			return nil, apperr.NotFound("no crm contact for " + normalized)
		}
		contactID = contact.ID
		s.cacheContactID(ctx, normalized, contactID)
	}

	notes, err := s.crm.ListNotes(ctx, contactID, 100)
	if err != nil {
		return nil, err
	}
	return buildTimeline(notes), nil
}

// LogClosure writes a closure note so the CRM timeline records that the
// conversation ended. Best effort.
func (s *Service) LogClosure(ctx context.Context, rawPhone, reason string) {
	if !s.Enabled() {
		return
	}

	normalized, err := s.norm.Normalize(rawPhone)
	if err != nil {
		return
	}

	contactID := s.cachedContactID(ctx, normalized)
	if contactID == "" {
		contact, err := s.crm.SearchContactByPhone(ctx, s.norm.SearchVariants(normalized))
		if err != nil || contact == nil {
			return
		}
		contactID = contact.ID
	}

	body := "Conversación cerrada"
	if reason != "" {
		body += ": " + reason
	}
	if _, err := s.crm.CreateNote(ctx, contactID, body, s.now()); err != nil {
		s.log.CRMSyncError("closure_note", normalized, err)
	}
}

// LogInbound mirrors a client message onto the CRM timeline. Used while a
// human owns the conversation and the bot stays silent. Best effort; a
// client without a CRM contact is skipped silently.
func (s *Service) LogInbound(ctx context.Context, rawPhone, body string) {
	if !s.Enabled() || body == "" {
		return
	}

	normalized, err := s.norm.Normalize(rawPhone)
	if err != nil {
		return
	}

	contactID := s.cachedContactID(ctx, normalized)
	if contactID == "" {
		contact, err := s.crm.SearchContactByPhone(ctx, s.norm.SearchVariants(normalized))
		if err != nil || contact == nil {
			return
		}
		contactID = contact.ID
		s.cacheContactID(ctx, normalized, contactID)
	}

	note := prefixClient + " " + labelClient + "\n" + body
	if _, err := s.crm.CreateNote(ctx, contactID, note, s.now()); err != nil {
		s.log.CRMSyncError("mirror_note", normalized, err)
	}
}

// The contact ID cache only exists to skip a search round trip; cache
// faults are logged and ignored.
func (s *Service) cachedContactID(ctx context.Context, normalized string) string {
	if s.rdb == nil {
		return ""
	}
	value, err := s.rdb.Get(ctx, contactCachePrefix+normalized).Result()
	if err != nil {
		if !errors.Is(err, goredis.Nil) {
			s.log.StoreError("get", contactCachePrefix+normalized, err)
		}
		return ""
	}
	return value
}

func (s *Service) cacheContactID(ctx context.Context, normalized, contactID string) {
	if s.rdb == nil || contactID == "" {
		return
	}
	if err := s.rdb.Set(ctx, contactCachePrefix+normalized, contactID, contactCacheTTL).Err(); err != nil {
		s.log.StoreError("set", contactCachePrefix+normalized, err)
	}
}
