// Package trace carries a per-request correlation id through contexts so
// that access logs, service logs and embedding-provider warnings for the
// same request can be joined.
package trace

import (
	"context"
	"strings"

	"github.com/google/uuid"
)

// Header is the HTTP header used to accept and echo trace ids.
const Header = "X-Request-ID"

type traceKey struct{}

// GenerateID returns a new random trace id.
func GenerateID() string {
	return "t_" + strings.ReplaceAll(uuid.NewString(), "-", "")
}

// WithTraceID returns a child context carrying id.
func WithTraceID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, traceKey{}, id)
}

// FromContext extracts the trace id from ctx, returning "" if absent.
func FromContext(ctx context.Context) string {
	if v, ok := ctx.Value(traceKey{}).(string); ok {
		return v
	}
	return ""
}
