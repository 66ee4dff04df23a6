package goMFA

import "context"

type requestContextKey struct{}

// RequestContext is the request metadata the engine reads from ctx. IP is
// recorded on audit events; both fields are visible to a FingerprintSource.
type RequestContext struct {
	IP        string
	UserAgent string
}

// WithRequestContext attaches rc to ctx.
func WithRequestContext(ctx context.Context, rc RequestContext) context.Context {
	return context.WithValue(ctx, requestContextKey{}, rc)
}

// RequestContextFrom returns the metadata attached by WithRequestContext.
func RequestContextFrom(ctx context.Context) (RequestContext, bool) {
	if ctx == nil {
		return RequestContext{}, false
	}
	rc, ok := ctx.Value(requestContextKey{}).(RequestContext)
	return rc, ok
}

func clientIPFromContext(ctx context.Context) string {
	rc, _ := RequestContextFrom(ctx)
	return rc.IP
}

func userAgentFromContext(ctx context.Context) string {
	rc, _ := RequestContextFrom(ctx)
	return rc.UserAgent
}
