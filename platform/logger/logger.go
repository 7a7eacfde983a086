// Package logger provides structured logging infrastructure for the application.
// This is part of the platform layer and contains no business logic.
package logger

import (
	"context"
	"log/slog"
	"os"
	"strings"
)

// Context key types for storing values in context
type contextKey string

const (
	// RequestIDKey is the context key for request ID
	RequestIDKey contextKey = "request_id"
	// ConversationKey is the context key for the conversation (phone) key
	ConversationKey contextKey = "conversation"
)

// Logger wraps slog.Logger for structured logging
type Logger struct {
	*slog.Logger
}

// New creates a new logger based on environment
func New(env string) *Logger {
	var handler slog.Handler

	opts := &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}

	if strings.EqualFold(env, "development") {
		opts.Level = slog.LevelDebug
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	return &Logger{
		Logger: slog.New(handler),
	}
}

// WithContext returns a logger with context values extracted.
// Supports request_id and conversation from context.
func (l *Logger) WithContext(ctx context.Context) *Logger {
	if ctx == nil {
		return l
	}

	newLogger := l

	if requestID, ok := ctx.Value(RequestIDKey).(string); ok && requestID != "" {
		newLogger = &Logger{Logger: newLogger.With(slog.String("request_id", requestID))}
	}

	if conversation, ok := ctx.Value(ConversationKey).(string); ok && conversation != "" {
		newLogger = &Logger{Logger: newLogger.With(slog.String("conversation", conversation))}
	}

	return newLogger
}

// WithConversation returns a logger scoped to a conversation key.
func (l *Logger) WithConversation(phone string) *Logger {
	return &Logger{
		Logger: l.With(slog.String("conversation", phone)),
	}
}

// HTTPRequest logs an HTTP request
func (l *Logger) HTTPRequest(method, path string, status int, latencyMs float64, clientIP string) {
	l.Info("http_request",
		slog.String("method", method),
		slog.String("path", path),
		slog.Int("status", status),
		slog.Float64("latency_ms", latencyMs),
		slog.String("client_ip", clientIP),
	)
}

// HandoffEvent logs a handoff state transition.
func (l *Logger) HandoffEvent(phone, from, to, trigger string) {
	l.Info("handoff_event",
		slog.String("conversation", phone),
		slog.String("from", from),
		slog.String("to", to),
		slog.String("trigger", trigger),
	)
}

// WindowDecision logs the outcome of a messaging-window check. failedOpen is
// true when the tracker was unreachable and the permissive default applied.
func (l *Logger) WindowDecision(phone string, open, failedOpen bool) {
	if failedOpen {
		l.Warn("window_check_failed",
			slog.String("conversation", phone),
			slog.Bool("window_open", open),
			slog.String("policy", "fail_open"),
		)
		return
	}
	l.Debug("window_check",
		slog.String("conversation", phone),
		slog.Bool("window_open", open),
	)
}

// StoreError logs a state store failure.
func (l *Logger) StoreError(operation, key string, err error) {
	l.Error("state_store_error",
		slog.String("operation", operation),
		slog.String("key", key),
		slog.String("error", err.Error()),
	)
}

// CRMSyncError logs a CRM synchronization failure.
func (l *Logger) CRMSyncError(operation, phone string, err error) {
	l.Error("crm_sync_error",
		slog.String("operation", operation),
		slog.String("conversation", phone),
		slog.String("error", err.Error()),
	)
}

// DedupConflict logs a CRM uniqueness-violation reconciliation event.
func (l *Logger) DedupConflict(phone, contactID string) {
	l.Warn("crm_dedup_conflict",
		slog.String("conversation", phone),
		slog.String("contact_id", contactID),
		slog.String("resolution", "re-search and patch"),
	)
}

// RateLimitExceeded logs rate limit events
func (l *Logger) RateLimitExceeded(clientIP, path string) {
	l.Warn("rate_limit_exceeded",
		slog.String("client_ip", clientIP),
		slog.String("path", path),
	)
}
