package auth

import "context"

type contextKey string

const sessionContextKey contextKey = "session"

// ContextWithSession adds the session to ctx.
func ContextWithSession(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, sessionContextKey, s)
}

// SessionFromContext returns the session, or nil when unauthenticated.
func SessionFromContext(ctx context.Context) *Session {
	s, _ := ctx.Value(sessionContextKey).(*Session)
	return s
}

// UserIDFromContext returns the signed-in admin's id, or "".
func UserIDFromContext(ctx context.Context) string {
	if s := SessionFromContext(ctx); s != nil {
		return s.UserID
	}
	return ""
}
