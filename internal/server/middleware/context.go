// Package middleware holds the HTTP middleware chain and the helpers handlers use to read
// request-scoped values.
package middleware

import "context"

type contextKey struct{ name string }

var (
	clientIPKey  = contextKey{"client_ip"}
	userAgentKey = contextKey{"user_agent"}
)

// WithClient returns a context carrying the caller's IP and user agent.
func WithClient(ctx context.Context, ip, userAgent string) context.Context {
	ctx = context.WithValue(ctx, clientIPKey, ip)
	return context.WithValue(ctx, userAgentKey, userAgent)
}

// ClientIP returns the IP stored by ClientInfo, or "unknown". It matches audit.IPExtractor.
func ClientIP(ctx context.Context) string {
	if v, ok := ctx.Value(clientIPKey).(string); ok && v != "" {
		return v
	}
	return "unknown"
}

// UserAgent returns the user agent stored by ClientInfo, or "".
func UserAgent(ctx context.Context) string {
	v, _ := ctx.Value(userAgentKey).(string)
	return v
}
