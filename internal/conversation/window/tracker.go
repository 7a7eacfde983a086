// Package window tracks the provider's 24-hour customer-initiated
// messaging window. The tracker predicts whether a free-form send would be
// accepted; actual enforcement happens at the provider boundary. It is
// advisory state, not a lock.
package window

import (
	"context"
	"errors"
	"strconv"
	"time"

	"conversa_backend/platform/config"
	"conversa_backend/platform/logger"

	"github.com/redis/go-redis/v9"
)

const windowKeyPrefix = "window:"

// Tracker records the last inbound client message timestamp per
// conversation key and computes window state from it.
type Tracker struct {
	rdb      *redis.Client
	duration time.Duration
	keyTTL   time.Duration
	log      *logger.Logger
	now      func() time.Time
}

// New creates a window tracker. The key TTL exceeds the window duration so
// recently closed windows remain observable to the follow-up scanner.
func New(rdb *redis.Client, cfg config.WindowConfig, log *logger.Logger) *Tracker {
	return &Tracker{
		rdb:      rdb,
		duration: cfg.GetWindowDuration(),
		keyTTL:   cfg.GetWindowKeyTTL(),
		log:      log,
		now:      time.Now,
	}
}

// SetClock overrides the tracker's clock. Tests only.
func (t *Tracker) SetClock(now func() time.Time) {
	t.now = now
}

func windowKey(phone string) string {
	return windowKeyPrefix + phone
}

// Touch records an inbound client message, reopening the window.
func (t *Tracker) Touch(ctx context.Context, phone string) error {
	key := windowKey(phone)
	ts := strconv.FormatInt(t.now().Unix(), 10)
	if err := t.rdb.Set(ctx, key, ts, t.keyTTL).Err(); err != nil {
		t.log.StoreError("touch", key, err)
		return err
	}
	return nil
}

// IsOpen reports whether a free-form send is currently permitted.
// No recorded inbound means closed (a contact never heard from requires a
// template). A tracker fault fails open: availability is preferred over
// strict provider-policy compliance, and the decision is logged for audit.
func (t *Tracker) IsOpen(ctx context.Context, phone string) (open bool, failedOpen bool) {
	last, found, err := t.LastInbound(ctx, phone)
	if err != nil {
		t.log.WindowDecision(phone, true, true)
		return true, true
	}
	if !found {
		t.log.WindowDecision(phone, false, false)
		return false, false
	}

	open = t.now().Sub(last) < t.duration
	t.log.WindowDecision(phone, open, false)
	return open, false
}

// LastInbound returns the last recorded inbound timestamp for a phone.
func (t *Tracker) LastInbound(ctx context.Context, phone string) (time.Time, bool, error) {
	raw, err := t.rdb.Get(ctx, windowKey(phone)).Result()
	if errors.Is(err, redis.Nil) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}

	unix, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}, false, nil
	}
	return time.Unix(unix, 0), true, nil
}

// ExpiredSince enumerates phones whose window closed at least once the
// given age ago but whose key has not yet expired. Used by the follow-up
// scanner; safe to run concurrently with live traffic.
func (t *Tracker) ExpiredSince(ctx context.Context, age time.Duration) ([]string, error) {
	var phones []string
	now := t.now()

	iter := t.rdb.Scan(ctx, 0, windowKeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		phone := key[len(windowKeyPrefix):]

		last, found, err := t.LastInbound(ctx, phone)
		if err != nil {
			return nil, err
		}
		if found && now.Sub(last) >= age {
			phones = append(phones, phone)
		}
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}

	return phones, nil
}
