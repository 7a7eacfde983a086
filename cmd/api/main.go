package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"conversa_backend/internal/botreply"
	"conversa_backend/internal/conversation"
	"conversa_backend/internal/crmsync"
	"conversa_backend/internal/events"
	apphttp "conversa_backend/internal/http"
	"conversa_backend/internal/http/router"
	"conversa_backend/internal/messaging"
	"conversa_backend/internal/scheduler"
	"conversa_backend/internal/templates"
	"conversa_backend/internal/webhook"
	"conversa_backend/platform/config"
	"conversa_backend/platform/db"
	"conversa_backend/platform/logger"
	"conversa_backend/platform/phone"
	platformredis "conversa_backend/platform/redis"
	"conversa_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
	goredis "github.com/redis/go-redis/v9"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	// Initialize structured logger
	log := logger.New(cfg.Env)
	log.Info("starting server", "env", cfg.Env, "addr", cfg.HTTPAddr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ========================================================================
	// Infrastructure Layer
	// ========================================================================

	if err := withRetry(ctx, log, "database migrations", 5, 2*time.Second, func() error {
		return db.RunMigrations(ctx, cfg, "migrations")
	}); err != nil {
		log.Error("failed to run database migrations", "error", err)
		panic("failed to run database migrations: " + err.Error())
	}
	log.Info("database migrations complete")

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
	log.Info("database connection established")

	var rdb *goredis.Client
	if err := withRetry(ctx, log, "redis connection", 5, 2*time.Second, func() error {
		client, err := platformredis.NewClient(ctx, cfg)
		if err != nil {
			return err
		}
		rdb = client
		return nil
	}); err != nil {
		log.Error("failed to connect to redis", "error", err)
		panic("failed to connect to redis: " + err.Error())
	}
	defer func() {
		_ = rdb.Close()
	}()
	log.Info("redis connection established")

	// Event bus for decoupled communication between modules
	eventBus := events.NewInMemoryBus(log)

	// Shared validator and phone normalizer for dependency injection
	val := validator.New()
	norm := phone.NewNormalizer(cfg.GetPhoneDefaultRegion(), cfg.GetPhoneDefaultPrefix())

	// ========================================================================
	// Domain Modules (Composition Root)
	// ========================================================================

	conversationModule := conversation.NewModule(rdb, eventBus, norm, val, cfg, log)
	templatesModule := templates.NewModule(pool, val)
	crmModule := crmsync.NewModule(rdb, eventBus, norm, cfg, log)
	botGenerator := botreply.New(cfg, log)
	webhookModule := webhook.NewModule(conversationModule.Service(), botGenerator, eventBus, norm, cfg, log)

	// Provider client; nil when no provider is configured (sends become
	// no-ops, which keeps local development possible).
	providerClient := messaging.NewClient(cfg, log)
	conversationModule.SetMessageSender(providerClient)
	webhookModule.SetMessageSender(providerClient)

	// Template rendering for operator and follow-up sends
	conversationModule.SetTemplateRenderer(templatesModule.Service())

	// Asynchronous CRM sync rides the task queue so the webhook path never
	// waits on the CRM.
	leadSyncer, closeSyncer := initLeadSyncer(cfg, log)
	if closeSyncer != nil {
		defer closeSyncer()
	}
	if leadSyncer != nil {
		webhookModule.SetLeadSyncer(leadSyncer)
	}

	// ========================================================================
	// HTTP Layer
	// ========================================================================

	app := &apphttp.App{
		Config:   cfg,
		Logger:   log,
		Health:   health{rdb: rdb, pool: db.NewPoolAdapter(pool)},
		EventBus: eventBus,
		Modules: []apphttp.Module{
			conversationModule,
			templatesModule,
			crmModule,
			webhookModule,
		},
	}

	engine := router.New(app)

	srvErr := make(chan error, 1)
	go func() {
		log.Info("server listening", "addr", cfg.HTTPAddr)
		srvErr <- engine.Run(cfg.HTTPAddr)
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received, gracefully shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = shutdownCtx
	case err := <-srvErr:
		if err != nil {
			log.Error("server error", "error", err)
			panic("server error: " + err.Error())
		}
	}
}

// health pings both stores; the conversation state lives in Redis and the
// template catalog in Postgres, and the service is degraded without either.
type health struct {
	rdb  *goredis.Client
	pool *db.PoolAdapter
}

func (h health) Ping(ctx context.Context) error {
	if err := h.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis: %w", err)
	}
	if err := h.pool.Ping(ctx); err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	return nil
}

func initLeadSyncer(cfg config.SchedulerConfig, log *logger.Logger) (*scheduler.Client, func()) {
	if cfg.GetRedisURL() == "" {
		log.Warn("REDIS_URL not configured; asynchronous crm sync disabled")
		return nil, nil
	}

	client, err := scheduler.NewClient(cfg)
	if err != nil {
		log.Error("failed to initialize scheduler client", "error", err)
		return nil, nil
	}

	return client, func() {
		_ = client.Close()
	}
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
