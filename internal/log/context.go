package log

import "context"

// ContextKey is a custom type for context keys to avoid collisions.
type ContextKey string

const (
	// TraceIDKey is the context key for trace IDs.
	TraceIDKey ContextKey = "trace_id"
	// FieldsKey is the context key for additional log fields.
	FieldsKey ContextKey = "log_fields"
)

// Fields is a collection of structured log fields carried in a context.
type Fields map[string]any

// WithFields merges fields into the context; new values overwrite existing
// ones with the same key.
func WithFields(ctx context.Context, fields Fields) context.Context {
	merged := make(Fields)
	for k, v := range ContextFields(ctx) {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}
	return context.WithValue(ctx, FieldsKey, merged)
}

// ContextFields retrieves the log fields stored in the context, if any.
func ContextFields(ctx context.Context) Fields {
	if fields, ok := ctx.Value(FieldsKey).(Fields); ok {
		return fields
	}
	return make(Fields)
}
