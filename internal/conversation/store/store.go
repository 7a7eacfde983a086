// Package store implements the TTL-bearing conversation status store on
// top of Redis. Absence of a key is semantically BOT_ACTIVE; a key set
// with a TTL auto-reverts to absent when the TTL elapses, which is how an
// inactive human-assigned conversation returns to bot control without any
// polling.
package store

import (
	"context"
	"errors"
	"time"

	"conversa_backend/internal/conversation/domain"
	"conversa_backend/platform/apperr"
	"conversa_backend/platform/logger"

	"github.com/redis/go-redis/v9"
)

const statusKeyPrefix = "status:"

// Store persists per-conversation status keyed by normalized phone number.
type Store struct {
	rdb *redis.Client
	log *logger.Logger
}

// New creates a status store backed by the given Redis client.
func New(rdb *redis.Client, log *logger.Logger) *Store {
	return &Store{rdb: rdb, log: log}
}

func statusKey(phone string) string {
	return statusKeyPrefix + phone
}

// Get returns the current status and its remaining TTL. An absent or
// expired key resolves to BOT_ACTIVE with zero TTL. Store unavailability
// is returned as a retryable fault; the caller must not guess a status.
func (s *Store) Get(ctx context.Context, phone string) (domain.Status, time.Duration, error) {
	key := statusKey(phone)

	pipe := s.rdb.Pipeline()
	getCmd := pipe.Get(ctx, key)
	ttlCmd := pipe.TTL(ctx, key)
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		s.log.StoreError("get", key, err)
		return "", 0, apperr.Unavailable("conversation state store unreachable", err)
	}

	raw, err := getCmd.Result()
	if errors.Is(err, redis.Nil) {
		return domain.StatusBotActive, 0, nil
	}
	if err != nil {
		s.log.StoreError("get", key, err)
		return "", 0, apperr.Unavailable("conversation state store unreachable", err)
	}

	status, err := domain.ParseStatus(raw)
	if err != nil {
		// A corrupt value must not strand the conversation; treat it as
		// absent and let the next transition overwrite it.
		s.log.Warn("corrupt status value, defaulting", "key", key, "value", raw)
		return domain.StatusBotActive, 0, nil
	}

	remaining, err := ttlCmd.Result()
	if err != nil || remaining < 0 {
		remaining = 0
	}

	return status, remaining, nil
}

// Set writes the status. A zero ttl persists the key until overwritten or
// deleted; a positive ttl arms the auto-revert. The write is a single
// atomic SET, so concurrent transitions resolve last-write-wins per key.
func (s *Store) Set(ctx context.Context, phone string, status domain.Status, ttl time.Duration) error {
	key := statusKey(phone)
	if err := s.rdb.Set(ctx, key, string(status), ttl).Err(); err != nil {
		s.log.StoreError("set", key, err)
		return apperr.Unavailable("conversation state store unreachable", err)
	}
	return nil
}

// Delete removes the status key, resolving the conversation back to
// BOT_ACTIVE. Deleting an absent key is a no-op.
func (s *Store) Delete(ctx context.Context, phone string) error {
	key := statusKey(phone)
	if err := s.rdb.Del(ctx, key).Err(); err != nil {
		s.log.StoreError("delete", key, err)
		return apperr.Unavailable("conversation state store unreachable", err)
	}
	return nil
}
