// Package context carries request-scoped identifiers from the API edge into the pipeline.
package context

import "context"

type key int

const (
	requestIDKey key = iota
	sessionIDKey
	userIDKey
)

func value(ctx context.Context, k key) string {
	v, _ := ctx.Value(k).(string)
	return v
}

func SetRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

func GetRequestID(ctx context.Context) string {
	return value(ctx, requestIDKey)
}

// SetSessionID records the search session a request operates on.
func SetSessionID(ctx context.Context, sessionID string) context.Context {
	return context.WithValue(ctx, sessionIDKey, sessionID)
}

func GetSessionID(ctx context.Context) string {
	return value(ctx, sessionIDKey)
}

// SetUserID records the authenticated subject.
func SetUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

func GetUserID(ctx context.Context) string {
	return value(ctx, userIDKey)
}
