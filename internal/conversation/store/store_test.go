package store

import (
	"context"
	"testing"
	"time"

	"conversa_backend/internal/conversation/domain"
	"conversa_backend/platform/apperr"
	"conversa_backend/platform/logger"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return New(rdb, logger.New("development")), mr
}

func TestGetAbsentKeyDefaultsToBotActive(t *testing.T) {
	st, _ := newTestStore(t)

	status, remaining, err := st.Get(context.Background(), "+5492901234567")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if status != domain.StatusBotActive {
		t.Fatalf("expected status=%q, got %q", domain.StatusBotActive, status)
	}
	if remaining != 0 {
		t.Fatalf("expected zero TTL, got %v", remaining)
	}
}

func TestSetWithTTLRevertsToBotActiveAfterExpiry(t *testing.T) {
	st, mr := newTestStore(t)
	ctx := context.Background()
	phone := "+5492901234567"

	if err := st.Set(ctx, phone, domain.StatusHumanActive, 2*time.Hour); err != nil {
		t.Fatalf("set failed: %v", err)
	}

	status, remaining, err := st.Get(ctx, phone)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if status != domain.StatusHumanActive {
		t.Fatalf("expected status=%q, got %q", domain.StatusHumanActive, status)
	}
	if remaining <= 0 || remaining > 2*time.Hour {
		t.Fatalf("expected remaining TTL in (0, 2h], got %v", remaining)
	}

	// Just before expiry the status must still be observable.
	mr.FastForward(2*time.Hour - time.Second)
	status, _, err = st.Get(ctx, phone)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if status != domain.StatusHumanActive {
		t.Fatalf("expected status=%q before expiry, got %q", domain.StatusHumanActive, status)
	}

	// After expiry the key is gone and the default applies.
	mr.FastForward(2 * time.Second)
	status, remaining, err = st.Get(ctx, phone)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if status != domain.StatusBotActive {
		t.Fatalf("expected revert to %q, got %q", domain.StatusBotActive, status)
	}
	if remaining != 0 {
		t.Fatalf("expected zero TTL after revert, got %v", remaining)
	}
}

func TestSetWithoutTTLPersists(t *testing.T) {
	st, mr := newTestStore(t)
	ctx := context.Background()
	phone := "+5492901234567"

	if err := st.Set(ctx, phone, domain.StatusPendingHandoff, 0); err != nil {
		t.Fatalf("set failed: %v", err)
	}

	mr.FastForward(100 * time.Hour)

	status, _, err := st.Get(ctx, phone)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if status != domain.StatusPendingHandoff {
		t.Fatalf("expected status=%q, got %q", domain.StatusPendingHandoff, status)
	}
}

func TestSlidingExpiryRenewsOnOverwrite(t *testing.T) {
	st, mr := newTestStore(t)
	ctx := context.Background()
	phone := "+5492901234567"

	if err := st.Set(ctx, phone, domain.StatusInConversation, 4*time.Hour); err != nil {
		t.Fatalf("set failed: %v", err)
	}

	mr.FastForward(3 * time.Hour)
	if err := st.Set(ctx, phone, domain.StatusInConversation, 4*time.Hour); err != nil {
		t.Fatalf("renew failed: %v", err)
	}

	// The original timer would have elapsed here; the renewed one has not.
	mr.FastForward(2 * time.Hour)
	status, _, err := st.Get(ctx, phone)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if status != domain.StatusInConversation {
		t.Fatalf("expected status=%q after renewal, got %q", domain.StatusInConversation, status)
	}
}

func TestDeleteIsIdempotent(t *testing.T) {
	st, _ := newTestStore(t)
	ctx := context.Background()
	phone := "+5492901234567"

	if err := st.Set(ctx, phone, domain.StatusHumanActive, time.Hour); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	if err := st.Delete(ctx, phone); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if err := st.Delete(ctx, phone); err != nil {
		t.Fatalf("second delete failed: %v", err)
	}

	status, _, err := st.Get(ctx, phone)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if status != domain.StatusBotActive {
		t.Fatalf("expected status=%q after delete, got %q", domain.StatusBotActive, status)
	}
}

func TestCorruptValueDefaultsToBotActive(t *testing.T) {
	st, mr := newTestStore(t)

	mr.Set("status:+5492901234567", "WAT")

	status, _, err := st.Get(context.Background(), "+5492901234567")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if status != domain.StatusBotActive {
		t.Fatalf("expected corrupt value to default to %q, got %q", domain.StatusBotActive, status)
	}
}

func TestStoreUnreachableIsRetryableFault(t *testing.T) {
	st, mr := newTestStore(t)
	mr.Close()

	_, _, err := st.Get(context.Background(), "+5492901234567")
	if err == nil {
		t.Fatalf("expected error when store is down")
	}
	if !apperr.Is(err, apperr.KindUnavailable) {
		t.Fatalf("expected unavailable kind, got %v", err)
	}
	if !apperr.IsRetryable(err) {
		t.Fatalf("expected store fault to be retryable")
	}
}
