package utils

import "context"

type contextKey string

const (
	SessionIDKey     contextKey = "session_id"
	SessionIssuedKey contextKey = "session_issued"
)

// SetSessionContext stores the browser session id (called by middleware).
func SetSessionContext(ctx context.Context, sessionID string) context.Context {
	return context.WithValue(ctx, SessionIDKey, sessionID)
}

// GetSessionIDFromContext retrieves the session id safely.
func GetSessionIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(SessionIDKey).(string)
	return id, ok && id != ""
}

// MarkSessionIssued flags that the session id was minted for this request.
func MarkSessionIssued(ctx context.Context) context.Context {
	return context.WithValue(ctx, SessionIssuedKey, true)
}

func IsSessionIssued(ctx context.Context) bool {
	issued, _ := ctx.Value(SessionIssuedKey).(bool)
	return issued
}
