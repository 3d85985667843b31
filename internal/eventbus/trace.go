package eventbus

import "context"

type traceKey struct{}
type depthKey struct{}

type trace struct {
	TraceID  string
	ParentID string
}

// WithTrace returns a context carrying an ambient trace. Emissions made with
// this context inherit the trace unless the input overrides it explicitly.
func WithTrace(ctx context.Context, traceID, parentID string) context.Context {
	return context.WithValue(ctx, traceKey{}, trace{TraceID: traceID, ParentID: parentID})
}

func traceFromContext(ctx context.Context) (trace, bool) {
	if ctx == nil {
		return trace{}, false
	}
	t, ok := ctx.Value(traceKey{}).(trace)
	return t, ok
}

func withDepth(ctx context.Context, depth int) context.Context {
	return context.WithValue(ctx, depthKey{}, depth)
}

func depthFromContext(ctx context.Context) int {
	if ctx == nil {
		return 0
	}
	if d, ok := ctx.Value(depthKey{}).(int); ok {
		return d
	}
	return 0
}
