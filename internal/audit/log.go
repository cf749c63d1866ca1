// Package audit emits append-style structured events for session
// lifecycle actions: logins, logouts, impersonation swaps and permission
// syncs.
package audit

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"nusalink.id/internal/ids"
	"nusalink.id/internal/obs"
)

type ctxKey string

const (
	requestIDKey ctxKey = "audit_request_id"
	actorKey     ctxKey = "audit_actor"
)

// WithRequestID attaches the request identifier for audit enrichment.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, requestID)
}

// WithActor attaches the acting user ID for audit enrichment.
func WithActor(ctx context.Context, userID string) context.Context {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return ctx
	}
	return context.WithValue(ctx, actorKey, userID)
}

// RequestIDFromContext returns the audit request ID if present.
func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(requestIDKey).(string); ok {
		return v
	}
	return ""
}

func actorFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(actorKey).(string); ok {
		return v
	}
	return ""
}

// LogEvent writes one audit entry enriched with request and actor context.
func LogEvent(ctx context.Context, event string, fields map[string]any) error {
	event = strings.TrimSpace(event)
	if event == "" {
		return errors.New("audit: event name is required")
	}

	zapFields := []zap.Field{
		zap.String("type", "audit"),
		zap.String("audit_id", ids.New()),
		zap.String("event", event),
		zap.Time("occurred_at", time.Now().UTC()),
	}
	if rid := RequestIDFromContext(ctx); rid != "" {
		zapFields = append(zapFields, zap.String("request_id", rid))
	}
	if actor := actorFromContext(ctx); actor != "" {
		zapFields = append(zapFields, zap.String("actor_id", actor))
	}
	if len(fields) > 0 {
		zapFields = append(zapFields, zap.Any("fields", fields))
	}

	obs.Logger().Info(event, zapFields...)
	return nil
}
