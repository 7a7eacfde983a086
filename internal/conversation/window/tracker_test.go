package window

import (
	"context"
	"testing"
	"time"

	"conversa_backend/platform/logger"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

type windowConfig struct {
	duration time.Duration
	keyTTL   time.Duration
}

func (c windowConfig) GetWindowDuration() time.Duration { return c.duration }
func (c windowConfig) GetWindowKeyTTL() time.Duration   { return c.keyTTL }

func newTestTracker(t *testing.T) (*Tracker, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	cfg := windowConfig{duration: 24 * time.Hour, keyTTL: 25 * time.Hour}
	return New(rdb, cfg, logger.New("development")), mr
}

func TestIsOpenClosedWithoutAnyInbound(t *testing.T) {
	tr, _ := newTestTracker(t)

	open, failedOpen := tr.IsOpen(context.Background(), "+5492901234567")
	if open {
		t.Fatalf("expected closed window for a contact never heard from")
	}
	if failedOpen {
		t.Fatalf("expected a clean decision, not a degraded one")
	}
}

func TestIsOpenBoundary(t *testing.T) {
	tr, _ := newTestTracker(t)
	ctx := context.Background()
	phone := "+5492901234567"

	base := time.Now()
	tr.SetClock(func() time.Time { return base })
	if err := tr.Touch(ctx, phone); err != nil {
		t.Fatalf("touch failed: %v", err)
	}

	tr.SetClock(func() time.Time { return base.Add(23*time.Hour + 59*time.Minute + 59*time.Second) })
	if open, _ := tr.IsOpen(ctx, phone); !open {
		t.Fatalf("expected open window at 23h59m59s")
	}

	tr.SetClock(func() time.Time { return base.Add(24*time.Hour + time.Second) })
	if open, _ := tr.IsOpen(ctx, phone); open {
		t.Fatalf("expected closed window at 24h00m01s")
	}
}

func TestTouchReopensWindow(t *testing.T) {
	tr, _ := newTestTracker(t)
	ctx := context.Background()
	phone := "+5492901234567"

	base := time.Now()
	tr.SetClock(func() time.Time { return base })
	if err := tr.Touch(ctx, phone); err != nil {
		t.Fatalf("touch failed: %v", err)
	}

	// A day and a half later the window has closed; a new inbound reopens it.
	later := base.Add(36 * time.Hour)
	tr.SetClock(func() time.Time { return later })
	if open, _ := tr.IsOpen(ctx, phone); open {
		t.Fatalf("expected closed window before second inbound")
	}
	if err := tr.Touch(ctx, phone); err != nil {
		t.Fatalf("touch failed: %v", err)
	}
	if open, _ := tr.IsOpen(ctx, phone); !open {
		t.Fatalf("expected reopened window after second inbound")
	}
}

func TestIsOpenFailsOpenWhenTrackerUnreachable(t *testing.T) {
	tr, mr := newTestTracker(t)
	mr.Close()

	open, failedOpen := tr.IsOpen(context.Background(), "+5492901234567")
	if !open {
		t.Fatalf("expected permissive default when tracker is unreachable")
	}
	if !failedOpen {
		t.Fatalf("expected the degraded decision to be flagged")
	}
}

func TestExpiredSinceEnumeratesClosedWindows(t *testing.T) {
	tr, _ := newTestTracker(t)
	ctx := context.Background()

	base := time.Now()
	tr.SetClock(func() time.Time { return base })
	if err := tr.Touch(ctx, "+5492901111111"); err != nil {
		t.Fatalf("touch failed: %v", err)
	}

	tr.SetClock(func() time.Time { return base.Add(12 * time.Hour) })
	if err := tr.Touch(ctx, "+5492902222222"); err != nil {
		t.Fatalf("touch failed: %v", err)
	}

	// At base+24h30m the first window has been closed for 30m, the second
	// is still open.
	tr.SetClock(func() time.Time { return base.Add(24*time.Hour + 30*time.Minute) })
	phones, err := tr.ExpiredSince(ctx, 24*time.Hour)
	if err != nil {
		t.Fatalf("scan failed: %v", err)
	}
	if len(phones) != 1 || phones[0] != "+5492901111111" {
		t.Fatalf("expected only the stale phone, got %v", phones)
	}
}
