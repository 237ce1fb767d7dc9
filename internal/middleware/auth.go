package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/tellus/tellus/internal/auth"
	"github.com/tellus/tellus/internal/service"
)

// Authenticator resolves a bearer token to a live session.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*auth.Session, error)
}

// RequireSession returns a middleware that admits requests carrying a valid,
// unrevoked session in "Authorization: Bearer <token>" and stores the
// session in the request context.
func RequireSession(authn Authenticator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				logAuthFailure(logger, r, "missing_token")
				writeAuthError(w)
				return
			}

			session, err := authn.Authenticate(r.Context(), token)
			if err != nil {
				if !errors.Is(err, service.ErrUnauthorized) {
					logger.Error("session check failed",
						slog.String("error", err.Error()),
						slog.String("request_id", GetRequestID(r.Context())),
					)
					writeError(w, http.StatusServiceUnavailable, "UNAVAILABLE", "Session store unavailable")
					return
				}
				logAuthFailure(logger, r, "invalid_session")
				writeAuthError(w)
				return
			}

			ctx := auth.ContextWithSession(r.Context(), session)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// BearerToken extracts the token from "Authorization: Bearer <token>".
func BearerToken(r *http.Request) string {
	return bearerToken(r)
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

func logAuthFailure(logger *slog.Logger, r *http.Request, reason string) {
	logger.Warn("authentication failed",
		slog.String("reason", reason),
		slog.String("ip", ClientIP(r)),
		slog.String("request_id", GetRequestID(r.Context())),
	)
}

// writeAuthError writes a 401 with one message for every failure.
func writeAuthError(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="tellus"`)
	writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Invalid or missing session")
}
