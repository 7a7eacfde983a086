// Package config provides application configuration loading.
// This is part of the platform layer and contains no business logic.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// =============================================================================
// Module-Specific Config Interfaces (Principle of Least Privilege)
// =============================================================================

// HTTPConfig provides settings for the HTTP server.
type HTTPConfig interface {
	GetHTTPAddr() string
	GetCORSAllowAll() bool
	GetCORSOrigins() []string
}

// AdminConfig provides settings for the admin panel surface.
type AdminConfig interface {
	GetAdminAPIKey() string
}

// RedisConfig provides Redis connection settings for the keyed state store.
type RedisConfig interface {
	GetRedisURL() string
	GetRedisTLSInsecure() bool
}

// DatabaseConfig provides database connection settings for the template store.
type DatabaseConfig interface {
	GetDatabaseURL() string
}

// PhoneConfig provides phone normalization settings.
type PhoneConfig interface {
	GetPhoneDefaultRegion() string
	GetPhoneDefaultPrefix() string
}

// HandoffConfig provides the handoff state machine timers.
type HandoffConfig interface {
	// GetArrivalTTL is how long a conversation waits in HUMAN_ACTIVE for an
	// operator's first message before reverting to the bot.
	GetArrivalTTL() time.Duration
	// GetActivityTTL is the sliding expiry renewed on every operator message
	// while IN_CONVERSATION.
	GetActivityTTL() time.Duration
	// GetPendingWaitMessage is sent to the client while a handoff is pending.
	GetPendingWaitMessage() string
	// GetHandoffKeywords are the lowercase phrases that escalate a
	// conversation to a human when found in an inbound message.
	GetHandoffKeywords() []string
}

// WindowConfig provides the messaging-window settings.
type WindowConfig interface {
	GetWindowDuration() time.Duration
	GetWindowKeyTTL() time.Duration
}

// CRMConfig provides settings for the external CRM client.
type CRMConfig interface {
	GetCRMBaseURL() string
	GetCRMAPIKey() string
	GetCRMDealPipeline() string
	GetCRMDealStage() string
	GetCRMTimeout() time.Duration
	GetCRMRequestsPerSecond() float64
	IsCRMEnabled() bool
}

// ProviderConfig provides settings for the messaging provider client.
type ProviderConfig interface {
	GetProviderBaseURL() string
	GetProviderAPIKey() string
	GetProviderFromNumber() string
	GetProviderTimeout() time.Duration
	IsProviderEnabled() bool
}

// BotConfig provides settings for the reply generator.
type BotConfig interface {
	GetBotAPIKey() string
	GetBotBaseURL() string
	GetBotModel() string
	GetBotSystemPrompt() string
	IsBotEnabled() bool
}

// SchedulerConfig provides settings for the asynq worker.
type SchedulerConfig interface {
	RedisConfig
	GetAsynqQueueName() string
	GetAsynqConcurrency() int
}

// FollowUpConfig provides settings for the follow-up scanner.
type FollowUpConfig interface {
	GetFollowUpInterval() time.Duration
	GetFollowUpMarkerTTL() time.Duration
	GetFollowUpTemplateName() string
}

const defaultBotSystemPrompt = "Eres un asistente comercial para una agencia de turismo. " +
	"Responde en español, de forma breve y amable. Si el cliente pide hablar con una persona, " +
	"indícale que un asesor lo atenderá en breve."

// =============================================================================
// Config Struct
// =============================================================================

// Config holds all application configuration. It implements every
// module-specific interface above; consumers should accept the narrowest
// interface they need.
type Config struct {
	Env          string
	HTTPAddr     string
	CORSAllowAll bool
	CORSOrigins  []string

	AdminAPIKey string

	RedisURL         string
	RedisTLSInsecure bool
	DatabaseURL      string

	PhoneDefaultRegion string
	PhoneDefaultPrefix string

	ArrivalTTL         time.Duration
	ActivityTTL        time.Duration
	PendingWaitMessage string
	HandoffKeywords    []string

	WindowDuration time.Duration
	WindowKeyTTL   time.Duration

	CRMBaseURL           string
	CRMAPIKey            string
	CRMDealPipeline      string
	CRMDealStage         string
	CRMTimeout           time.Duration
	CRMRequestsPerSecond float64

	ProviderBaseURL    string
	ProviderAPIKey     string
	ProviderFromNumber string
	ProviderTimeout    time.Duration

	BotAPIKey       string
	BotBaseURL      string
	BotModel        string
	BotSystemPrompt string

	AsynqQueueName   string
	AsynqConcurrency int

	FollowUpInterval     time.Duration
	FollowUpMarkerTTL    time.Duration
	FollowUpTemplateName string
}

// Load reads configuration from the environment (and .env, if present).
func Load() (*Config, error) {
	_ = godotenv.Load()

	corsOrigins := splitCSV(getEnv("CORS_ORIGINS", "http://localhost:4200"))
	corsAllowAll := strings.EqualFold(getEnv("CORS_ALLOW_ALL", "false"), "true")
	if containsWildcard(corsOrigins) {
		corsAllowAll = true
	}

	windowDuration := mustDuration(getEnv("WINDOW_DURATION", "24h"))

	cfg := &Config{
		Env:          getEnv("APP_ENV", "development"),
		HTTPAddr:     getEnv("HTTP_ADDR", ":8080"),
		CORSAllowAll: corsAllowAll,
		CORSOrigins:  corsOrigins,

		AdminAPIKey: getEnv("ADMIN_API_KEY", ""),

		RedisURL:         getEnv("REDIS_PUBLIC_URL", getEnv("REDIS_URL", "redis://localhost:6379")),
		RedisTLSInsecure: strings.EqualFold(getEnv("REDIS_TLS_INSECURE", "false"), "true"),
		DatabaseURL:      getEnv("DATABASE_URL", ""),

		PhoneDefaultRegion: getEnv("PHONE_DEFAULT_REGION", "AR"),
		PhoneDefaultPrefix: getEnv("PHONE_DEFAULT_PREFIX", "549"),

		ArrivalTTL:         mustDuration(getEnv("HANDOFF_ARRIVAL_TTL", "2h")),
		ActivityTTL:        mustDuration(getEnv("HANDOFF_ACTIVITY_TTL", "4h")),
		PendingWaitMessage: getEnv("HANDOFF_WAIT_MESSAGE", "Un asesor se pondrá en contacto contigo en breve."),
		HandoffKeywords:    splitCSV(getEnv("HANDOFF_KEYWORDS", "asesor,humano,persona real,agente,hablar con alguien")),

		WindowDuration: windowDuration,
		// The window key outlives the window itself so the follow-up scanner
		// can observe recently closed windows before the key disappears.
		WindowKeyTTL: mustDuration(getEnv("WINDOW_KEY_TTL", "25h")),

		CRMBaseURL:           getEnv("CRM_BASE_URL", "https://api.hubapi.com"),
		CRMAPIKey:            getEnv("CRM_API_KEY", ""),
		CRMDealPipeline:      getEnv("CRM_DEAL_PIPELINE", "default"),
		CRMDealStage:         getEnv("CRM_DEAL_STAGE", "appointmentscheduled"),
		CRMTimeout:           mustDuration(getEnv("CRM_TIMEOUT", "15s")),
		CRMRequestsPerSecond: mustFloat(getEnv("CRM_REQUESTS_PER_SECOND", "4")),

		ProviderBaseURL:    getEnv("PROVIDER_BASE_URL", ""),
		ProviderAPIKey:     getEnv("PROVIDER_API_KEY", ""),
		ProviderFromNumber: getEnv("PROVIDER_FROM_NUMBER", ""),
		ProviderTimeout:    mustDuration(getEnv("PROVIDER_TIMEOUT", "10s")),

		BotAPIKey:       getEnv("BOT_API_KEY", ""),
		BotBaseURL:      getEnv("BOT_BASE_URL", "https://api.moonshot.ai/v1"),
		BotModel:        getEnv("BOT_MODEL", "kimi-k2-turbo-preview"),
		BotSystemPrompt: getEnv("BOT_SYSTEM_PROMPT", defaultBotSystemPrompt),

		AsynqQueueName:   getEnv("ASYNQ_QUEUE", "default"),
		AsynqConcurrency: mustInt(getEnv("ASYNQ_CONCURRENCY", "10")),

		FollowUpInterval:     mustDuration(getEnv("FOLLOWUP_INTERVAL", "15m")),
		FollowUpMarkerTTL:    mustDuration(getEnv("FOLLOWUP_MARKER_TTL", "72h")),
		FollowUpTemplateName: getEnv("FOLLOWUP_TEMPLATE_NAME", "followup_reengage"),
	}

	if cfg.WindowKeyTTL <= windowDuration {
		return nil, fmt.Errorf("WINDOW_KEY_TTL (%s) must exceed WINDOW_DURATION (%s)", cfg.WindowKeyTTL, windowDuration)
	}

	return cfg, nil
}

// =============================================================================
// Interface Implementations
// =============================================================================

func (c *Config) GetHTTPAddr() string      { return c.HTTPAddr }
func (c *Config) GetCORSAllowAll() bool    { return c.CORSAllowAll }
func (c *Config) GetCORSOrigins() []string { return c.CORSOrigins }

func (c *Config) GetAdminAPIKey() string { return c.AdminAPIKey }

func (c *Config) GetRedisURL() string      { return c.RedisURL }
func (c *Config) GetRedisTLSInsecure() bool { return c.RedisTLSInsecure }
func (c *Config) GetDatabaseURL() string { return c.DatabaseURL }

func (c *Config) GetPhoneDefaultRegion() string { return c.PhoneDefaultRegion }
func (c *Config) GetPhoneDefaultPrefix() string { return c.PhoneDefaultPrefix }

func (c *Config) GetArrivalTTL() time.Duration  { return c.ArrivalTTL }
func (c *Config) GetActivityTTL() time.Duration { return c.ActivityTTL }
func (c *Config) GetPendingWaitMessage() string  { return c.PendingWaitMessage }
func (c *Config) GetHandoffKeywords() []string   { return c.HandoffKeywords }

func (c *Config) GetWindowDuration() time.Duration { return c.WindowDuration }
func (c *Config) GetWindowKeyTTL() time.Duration   { return c.WindowKeyTTL }

func (c *Config) GetCRMBaseURL() string            { return c.CRMBaseURL }
func (c *Config) GetCRMAPIKey() string             { return c.CRMAPIKey }
func (c *Config) GetCRMDealPipeline() string       { return c.CRMDealPipeline }
func (c *Config) GetCRMDealStage() string          { return c.CRMDealStage }
func (c *Config) GetCRMTimeout() time.Duration     { return c.CRMTimeout }
func (c *Config) GetCRMRequestsPerSecond() float64 { return c.CRMRequestsPerSecond }
func (c *Config) IsCRMEnabled() bool               { return c.CRMAPIKey != "" }

func (c *Config) GetProviderBaseURL() string        { return c.ProviderBaseURL }
func (c *Config) GetProviderAPIKey() string         { return c.ProviderAPIKey }
func (c *Config) GetProviderFromNumber() string     { return c.ProviderFromNumber }
func (c *Config) GetProviderTimeout() time.Duration { return c.ProviderTimeout }
func (c *Config) IsProviderEnabled() bool           { return c.ProviderBaseURL != "" }

func (c *Config) GetBotAPIKey() string       { return c.BotAPIKey }
func (c *Config) GetBotBaseURL() string      { return c.BotBaseURL }
func (c *Config) GetBotModel() string        { return c.BotModel }
func (c *Config) GetBotSystemPrompt() string { return c.BotSystemPrompt }
func (c *Config) IsBotEnabled() bool         { return c.BotAPIKey != "" }

func (c *Config) GetAsynqQueueName() string { return c.AsynqQueueName }
func (c *Config) GetAsynqConcurrency() int  { return c.AsynqConcurrency }

func (c *Config) GetFollowUpInterval() time.Duration  { return c.FollowUpInterval }
func (c *Config) GetFollowUpMarkerTTL() time.Duration { return c.FollowUpMarkerTTL }
func (c *Config) GetFollowUpTemplateName() string     { return c.FollowUpTemplateName }

// =============================================================================
// Helpers
// =============================================================================

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && strings.TrimSpace(value) != "" {
		return value
	}
	return fallback
}

func splitCSV(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func containsWildcard(origins []string) bool {
	for _, origin := range origins {
		if origin == "*" {
			return true
		}
	}
	return false
}

func mustDuration(raw string) time.Duration {
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		panic(fmt.Sprintf("invalid duration %q: %v", raw, err))
	}
	return parsed
}

func mustInt(raw string) int {
	parsed, err := strconv.Atoi(raw)
	if err != nil {
		panic(fmt.Sprintf("invalid integer %q: %v", raw, err))
	}
	return parsed
}

func mustFloat(raw string) float64 {
	parsed, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		panic(fmt.Sprintf("invalid float %q: %v", raw, err))
	}
	return parsed
}
