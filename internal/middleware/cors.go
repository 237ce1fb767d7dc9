package middleware

import (
	"net/http"

	"github.com/go-chi/cors"

	"github.com/tellus/tellus/internal/gate"
)

// CORS returns a middleware allowing browser clients from origins.
// An empty list denies every cross-origin request. Entries may use one
// wildcard, as in "https://*.example.com".
func CORS(origins []string) func(http.Handler) http.Handler {
	opts := cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{
			http.MethodGet, http.MethodPost, http.MethodPut,
			http.MethodPatch, http.MethodDelete, http.MethodOptions,
		},
		AllowedHeaders: []string{
			"Accept",
			"Authorization",
			"Content-Type",
			RequestIDHeader,
			gate.GrantHeader,
		},
		ExposedHeaders: []string{
			RequestIDHeader,
			"Retry-After",
			"X-RateLimit-Remaining",
			"X-RateLimit-Reset",
		},
		AllowCredentials: false,
		MaxAge:           86400,
	}
	if len(origins) == 0 {
		// An empty list would otherwise mean "allow all".
		opts.AllowOriginFunc = func(*http.Request, string) bool { return false }
	}
	return cors.Handler(opts)
}
