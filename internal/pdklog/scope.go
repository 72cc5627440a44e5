package pdklog

import "context"

type contextKey string

const correlationIDKey contextKey = "pdk-correlation-id"

// WithCorrelationID returns a derived context carrying id.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationIDKey, id)
}

// CorrelationIDFromContext returns the correlation id pushed by
// WithCorrelationID, or "" if none was set.
func CorrelationIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(correlationIDKey).(string)
	return id
}

// FromContext returns l scoped with the context's correlation id attached as
// a "correlationId" field, or l unchanged if the context carries none.
func (l *Logger) FromContext(ctx context.Context) *Logger {
	id := CorrelationIDFromContext(ctx)
	if id == "" {
		return l
	}
	return l.With(map[string]interface{}{"correlationId": id})
}
