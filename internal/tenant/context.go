package tenant

import "context"

type handleContextKey struct{}

// ContextWithHandle attaches the resolved tenant handle to the request context.
func ContextWithHandle(ctx context.Context, h *Handle) context.Context {
	if h == nil {
		return ctx
	}
	return context.WithValue(ctx, handleContextKey{}, h)
}

// HandleFromContext extracts the resolved tenant handle from the context.
func HandleFromContext(ctx context.Context) (*Handle, bool) {
	if ctx == nil {
		return nil, false
	}
	h, ok := ctx.Value(handleContextKey{}).(*Handle)
	if !ok || h == nil {
		return nil, false
	}
	return h, true
}
