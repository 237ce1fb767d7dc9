package middleware

import (
	"mime"
	"net/http"
	"slices"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/oklog/ulid/v2"
)

// Accepted request media types.
const (
	MediaJSON      = "application/json"
	MediaMultipart = "multipart/form-data"
)

// RequireContentType rejects bodies whose media type is not one of allowed
// with 415. Requests without a body pass through.
func RequireContentType(allowed ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.ContentLength == 0 || r.Method == http.MethodGet || r.Method == http.MethodDelete {
				next.ServeHTTP(w, r)
				return
			}
			mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
			if err != nil || !slices.Contains(allowed, mediaType) {
				writeError(w, http.StatusUnsupportedMediaType, "UNSUPPORTED_MEDIA_TYPE",
					"Content-Type must be one of: "+strings.Join(allowed, ", "))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ValidID reports whether s is a well-formed resource id (a ULID).
func ValidID(s string) bool {
	_, err := ulid.ParseStrict(s)
	return err == nil
}

// RequireIDParams answers 404 when any named chi URL parameter is not a
// well-formed id, so malformed ids never reach the database.
func RequireIDParams(names ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			for _, name := range names {
				if !ValidID(chi.URLParam(r, name)) {
					writeError(w, http.StatusNotFound, "NOT_FOUND", "Resource not found")
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}
