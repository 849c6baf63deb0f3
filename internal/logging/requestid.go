// Package logging carries the request id and the zerolog logger through
// context so API calls made on behalf of one page load can be correlated.
package logging

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type contextKey string

const requestIDKey contextKey = "requestId"

// GenerateRequestID creates a request id in the "pulse-{uuid}" form.
func GenerateRequestID() string {
	return "pulse-" + uuid.New().String()
}

// WithRequestID injects a request ID into the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

// GetRequestID retrieves the request ID from the context.
// Returns empty string if not found.
func GetRequestID(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey).(string); ok {
		return id
	}
	return ""
}

// WithLogger attaches logger to ctx.
func WithLogger(ctx context.Context, logger zerolog.Logger) context.Context {
	return logger.WithContext(ctx)
}

// FromContext returns the logger attached to ctx, tagged with the request id
// when one is present. Falls back to the global logger.
func FromContext(ctx context.Context) *zerolog.Logger {
	logger := zerolog.Ctx(ctx)
	if logger.GetLevel() == zerolog.Disabled {
		logger = &globalLogger
	}
	if id := GetRequestID(ctx); id != "" {
		tagged := logger.With().Str("request_id", id).Logger()
		return &tagged
	}
	return logger
}
