// Package audit emits the gate's security event log: one JSON line per event,
// carrying a severity, a ULID event id and, when known, the request id and the
// identity the event concerns.
package audit

import (
	"context"
	"strings"

	"utem.cl/canvas-gate/internal/ids"
	"utem.cl/canvas-gate/internal/obs"
)

type ctxKey string

const requestIDKey ctxKey = "audit_request_id"

// WithRequestID attaches the request identifier to the context for audit
// logging.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, requestID)
}

// RequestIDFromContext extracts the audit request id from context if present.
func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(requestIDKey).(string); ok {
		return v
	}
	return ""
}

// Info records a normal-operation event: login, logout, session expiry,
// directory CRUD.
func Info(ctx context.Context, event, identity, msg string) {
	logEvent(ctx, "info", event, identity, msg)
}

// Warn records a security-relevant rejection: lockout, unauthorized domain,
// unregistered or inactive identity.
func Warn(ctx context.Context, event, identity, msg string) {
	logEvent(ctx, "warning", event, identity, msg)
}

// Error records store failures and unexpected faults.
func Error(ctx context.Context, event, identity, msg string) {
	logEvent(ctx, "error", event, identity, msg)
}

func logEvent(ctx context.Context, level, event, identity, msg string) {
	event = strings.TrimSpace(event)
	if event == "" {
		return
	}
	entry := map[string]any{
		"type":  "audit",
		"id":    ids.New(),
		"level": level,
		"event": event,
		"msg":   msg,
	}
	if identity = strings.TrimSpace(identity); identity != "" {
		entry["identity"] = identity
	}
	if rid := RequestIDFromContext(ctx); rid != "" {
		entry["request_id"] = rid
	}
	obs.Emit(entry)
}
