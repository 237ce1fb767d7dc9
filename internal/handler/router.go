package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/tellus/tellus/internal/cache"
	"github.com/tellus/tellus/internal/metrics"
	"github.com/tellus/tellus/internal/middleware"
	"github.com/tellus/tellus/internal/storage"
)

// RateLimits carries the per-scope budgets for the HTTP rate limiter.
type RateLimits struct {
	Enabled     bool
	SubmitRPM   int
	SubmitBurst int
	AdminRPM    int
	AdminBurst  int
}

// RouterConfig wires handlers and middleware into the API router.
type RouterConfig struct {
	Logger        *slog.Logger
	Metrics       metrics.Recorder
	IsDevelopment bool
	CORSOrigins   []string
	MaxBodySize   int64

	Limiter       middleware.Limiter
	RateLimits    RateLimits
	Authenticator middleware.Authenticator

	Health   *HealthHandler
	Metric   *MetricsHandler
	Public   *PublicHandler
	Admin    *AdminHandler
	Account  *AccountHandler
	Webhooks *WebhookHandler
	// Files serves stored attachments under storage.URLPrefix.
	Files http.Handler
}

// NewRouter configures the chi router with all routes and middleware.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(cfg.Logger, cfg.Metrics))
	r.Use(middleware.Recoverer(cfg.Logger))
	r.Use(middleware.Security(middleware.SecurityConfig{
		IsDevelopment:     cfg.IsDevelopment,
		CacheablePrefixes: []string{storage.URLPrefix},
	}))
	r.Use(middleware.CORS(cfg.CORSOrigins))
	r.Use(middleware.MaxBodySize(cfg.MaxBodySize))

	r.NotFound(NotFound)
	r.MethodNotAllowed(MethodNotAllowed)

	r.Get("/healthz", cfg.Health.Healthz)
	r.Get("/readyz", cfg.Health.Readyz)
	if cfg.Metric != nil {
		r.Get("/metrics", cfg.Metric.Metrics)
	}
	if cfg.Files != nil {
		r.Handle(storage.URLPrefix+"*", cfg.Files)
	}

	perIP := middleware.RateLimitIP(middleware.RateLimitConfig{
		Logger:    cfg.Logger,
		Limiter:   cfg.Limiter,
		Enabled:   cfg.RateLimits.Enabled,
		Scope:     cache.ScopeSubmit,
		PerMinute: cfg.RateLimits.SubmitRPM,
		Burst:     cfg.RateLimits.SubmitBurst,
	})
	perAdmin := middleware.RateLimitUser(middleware.RateLimitConfig{
		Logger:    cfg.Logger,
		Limiter:   cfg.Limiter,
		Enabled:   cfg.RateLimits.Enabled,
		Scope:     cache.ScopeAdmin,
		PerMinute: cfg.RateLimits.AdminRPM,
		Burst:     cfg.RateLimits.AdminBurst,
	})
	requireSession := middleware.RequireSession(cfg.Authenticator, cfg.Logger)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.RequireContentType(middleware.MediaJSON, middleware.MediaMultipart))

		r.Get("/categories", cfg.Public.Categories)
		r.Get("/track/{complaintToken}", cfg.Public.Track)

		r.Route("/boxes/{token}", func(r chi.Router) {
			r.Get("/", cfg.Public.View)
			r.Get("/complaints", cfg.Public.Mine)
			r.Get("/feedback", cfg.Public.ListFeedback)
			// Unlock attempts are limited per box and client in the service.
			r.Post("/unlock", cfg.Public.Unlock)
			r.With(perIP).Post("/complaints", cfg.Public.Submit)
			r.With(perIP).Post("/feedback", cfg.Public.SubmitFeedback)
		})

		r.Route("/auth", func(r chi.Router) {
			r.With(perIP).Post("/signup", cfg.Account.SignUp)
			r.With(perIP).Post("/login", cfg.Account.Login)
			r.With(requireSession).Post("/logout", cfg.Account.Logout)
		})

		r.Route("/profile", func(r chi.Router) {
			r.Use(requireSession)
			r.Get("/", cfg.Account.Profile)
			r.Patch("/", cfg.Account.UpdateProfile)
			r.Delete("/", cfg.Account.DeleteAccount)
			r.Put("/password", cfg.Account.ChangePassword)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(requireSession)
			r.Use(perAdmin)

			r.Get("/boxes", cfg.Admin.ListBoxes)
			r.Post("/boxes", cfg.Admin.CreateBox)
			r.Route("/boxes/{id}", func(r chi.Router) {
				r.Use(middleware.RequireIDParams("id"))
				r.Get("/", cfg.Admin.GetBox)
				r.Patch("/", cfg.Admin.UpdateBox)
				r.Delete("/", cfg.Admin.DeleteBox)
				r.Get("/complaints", cfg.Admin.ListComplaints)
				r.Get("/feedback", cfg.Admin.ListFeedback)
				r.Get("/analytics", cfg.Admin.Analytics)
			})
			r.Route("/complaints/{id}", func(r chi.Router) {
				r.Use(middleware.RequireIDParams("id"))
				r.Delete("/", cfg.Admin.DeleteComplaint)
				r.Patch("/status", cfg.Admin.SetStatus)
				r.Put("/reply", cfg.Admin.Reply)
			})

			r.Get("/webhooks", cfg.Webhooks.List)
			r.Post("/webhooks", cfg.Webhooks.Create)
			r.Route("/webhooks/{id}", func(r chi.Router) {
				r.Use(middleware.RequireIDParams("id"))
				r.Delete("/", cfg.Webhooks.Delete)
				r.Get("/deliveries", cfg.Webhooks.Deliveries)
			})
		})
	})

	return r
}
