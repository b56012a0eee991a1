package mcp

import (
	"context"
	"crypto/rand"
	"encoding/hex"
)

type contextKey string

const (
	contextKeyRequestID  contextKey = "jive-request-id"
	contextKeyRemoteAddr contextKey = "jive-remote-addr"
)

// generateRequestID creates a unique request identifier
func generateRequestID() string {
	b := make([]byte, 8)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

// WithRequestID adds the request id to context.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, contextKeyRequestID, id)
}

// RequestIDFrom extracts the request id from context.
func RequestIDFrom(ctx context.Context) string {
	return stringFromContext(ctx, contextKeyRequestID)
}

// WithRemoteAddr adds the remote address to context.
func WithRemoteAddr(ctx context.Context, addr string) context.Context {
	return context.WithValue(ctx, contextKeyRemoteAddr, addr)
}

// RemoteAddrFrom extracts the remote address from context.
func RemoteAddrFrom(ctx context.Context) string {
	return stringFromContext(ctx, contextKeyRemoteAddr)
}

func stringFromContext(ctx context.Context, key contextKey) string {
	if val, ok := ctx.Value(key).(string); ok {
		return val
	}
	return ""
}
