package middlewares

import "context"

type ctxKey string

const (
	ctxUserIDKey    ctxKey = "user_id"
	ctxUserEmailKey ctxKey = "user_email"
	ctxRequestIDKey ctxKey = "request_id"
)

// WithUserID injects the authenticated user id into the context.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, ctxUserIDKey, userID)
}

// GetUserID returns the authenticated user id, or "" outside RequireAuth.
func GetUserID(ctx context.Context) string {
	if s, ok := ctx.Value(ctxUserIDKey).(string); ok {
		return s
	}
	return ""
}

// WithUserEmail injects the authenticated user's email into the context.
func WithUserEmail(ctx context.Context, email string) context.Context {
	return context.WithValue(ctx, ctxUserEmailKey, email)
}

// GetUserEmail returns the authenticated user's email, or "".
func GetUserEmail(ctx context.Context) string {
	if s, ok := ctx.Value(ctxUserEmailKey).(string); ok {
		return s
	}
	return ""
}

func setRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, ctxRequestIDKey, requestID)
}

// GetRequestID returns the request id set by WithRequestID, or "".
func GetRequestID(ctx context.Context) string {
	if s, ok := ctx.Value(ctxRequestIDKey).(string); ok {
		return s
	}
	return ""
}
