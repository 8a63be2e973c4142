package log

import "context"

type contextKey struct{}

// NewContext returns a copy of ctx carrying l.
func NewContext(ctx context.Context, l Logger) context.Context {
	return context.WithValue(ctx, contextKey{}, l)
}

// FromContext returns the logger stored in ctx, or the global logger.
func FromContext(ctx context.Context) Logger {
	if ctx != nil {
		if l, ok := ctx.Value(contextKey{}).(Logger); ok {
			return l
		}
	}
	return Std()
}

// IntoContext stores a logger carrying keysAndValues in ctx, derived from
// the one already there.
func IntoContext(ctx context.Context, keysAndValues ...any) context.Context {
	return NewContext(ctx, FromContext(ctx).WithValues(keysAndValues...))
}
