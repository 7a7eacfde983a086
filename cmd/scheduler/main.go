package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"conversa_backend/internal/conversation/store"
	"conversa_backend/internal/conversation/window"
	"conversa_backend/internal/crmsync/client"
	crmservice "conversa_backend/internal/crmsync/service"
	"conversa_backend/internal/events"
	"conversa_backend/internal/followup"
	"conversa_backend/internal/messaging"
	"conversa_backend/internal/scheduler"
	templatesrepo "conversa_backend/internal/templates/repository"
	templatesservice "conversa_backend/internal/templates/service"
	"conversa_backend/platform/config"
	"conversa_backend/platform/db"
	"conversa_backend/platform/logger"
	"conversa_backend/platform/phone"
	platformredis "conversa_backend/platform/redis"

	"github.com/jackc/pgx/v5/pgxpool"
	goredis "github.com/redis/go-redis/v9"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log := logger.New(cfg.Env)
	log.Info("starting scheduler", "env", cfg.Env)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var pool *pgxpool.Pool
	if err := withRetry(ctx, log, "database connection", 5, 2*time.Second, func() error {
		p, err := db.NewPool(ctx, cfg)
		if err != nil {
			return err
		}
		pool = p
		return nil
	}); err != nil {
		log.Error("failed to connect to database", "error", err)
		panic("failed to connect to database: " + err.Error())
	}
	defer pool.Close()

	var rdb *goredis.Client
	if err := withRetry(ctx, log, "redis connection", 5, 2*time.Second, func() error {
		c, err := platformredis.NewClient(ctx, cfg)
		if err != nil {
			return err
		}
		rdb = c
		return nil
	}); err != nil {
		log.Error("failed to connect to redis", "error", err)
		panic("failed to connect to redis: " + err.Error())
	}
	defer func() {
		_ = rdb.Close()
	}()

	eventBus := events.NewInMemoryBus(log)
	norm := phone.NewNormalizer(cfg.GetPhoneDefaultRegion(), cfg.GetPhoneDefaultPrefix())

	// Worker-side wiring (no HTTP handlers required).
	crmClient := client.New(cfg, log)
	var crmSvc *crmservice.Service
	if crmClient != nil {
		crmSvc = crmservice.New(crmClient, rdb, eventBus, norm, log)
	} else {
		crmSvc = crmservice.New(nil, rdb, eventBus, norm, log)
		log.Warn("crm sync disabled, CRM_API_KEY not set")
	}

	st := store.New(rdb, log)
	win := window.New(rdb, cfg, log)
	sender := messaging.NewClient(cfg, log)
	renderer := templatesservice.New(templatesrepo.New(pool))

	scanner := followup.NewScanner(win, st, rdb, sender, renderer, eventBus, cfg, log)

	// The sweep only selects candidates; the actual sends run as queued
	// tasks handled by this same worker.
	if queueClient, err := scheduler.NewClient(cfg); err != nil {
		log.Warn("follow-up queue unavailable, sweep sends inline", "error", err)
	} else {
		scanner.SetEnqueuer(queueClient)
		defer func() {
			_ = queueClient.Close()
		}()
	}

	go scanner.Run(ctx)

	worker, err := scheduler.NewWorker(cfg, crmSvc, scanner, log)
	if err != nil {
		log.Error("failed to initialize scheduler worker", "error", err)
		panic("failed to initialize scheduler worker: " + err.Error())
	}

	log.Info("scheduler worker running", "queue", cfg.GetAsynqQueueName())
	worker.Run(ctx)
	log.Info("scheduler stopped")
}

func withRetry(ctx context.Context, log *logger.Logger, name string, attempts int, baseDelay time.Duration, fn func() error) error {
	if attempts < 1 {
		return fmt.Errorf("%s: invalid retry attempts", name)
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := fn(); err == nil {
			return nil
		} else {
			lastErr = err
			log.Warn("retryable operation failed", "operation", name, "attempt", attempt, "error", err)
		}

		if attempt < attempts {
			delay := time.Duration(attempt*attempt) * baseDelay
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
	}

	return errors.New(name + ": " + lastErr.Error())
}
