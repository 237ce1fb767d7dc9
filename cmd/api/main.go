// Package main is the entrypoint for the TellUs API server.
package main

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"log/slog"
	"net/url"
	"os"
	"regexp"
	"strings"

	"github.com/tellus/tellus/internal/analytics"
	"github.com/tellus/tellus/internal/auth"
	"github.com/tellus/tellus/internal/cache"
	"github.com/tellus/tellus/internal/category"
	"github.com/tellus/tellus/internal/config"
	"github.com/tellus/tellus/internal/gate"
	"github.com/tellus/tellus/internal/handler"
	"github.com/tellus/tellus/internal/metrics"
	"github.com/tellus/tellus/internal/repository"
	"github.com/tellus/tellus/internal/server"
	"github.com/tellus/tellus/internal/service"
	"github.com/tellus/tellus/internal/storage"
	"github.com/tellus/tellus/internal/webhook"
)

var errConnect = errors.New("dependency unavailable")

func main() {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := initLogger(cfg)
	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	repo, err := repository.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error(
			"failed to connect to database",
			slog.String("error", sanitizeError(err, cfg.DatabaseURL)),
			slog.String("database_url", redactURL(cfg.DatabaseURL)),
		)
		return errConnect
	}
	logger.Info("connected to database")
	closers := []func(){repo.Close}
	fail := func(err error) error {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
		return err
	}

	cacheClient, err := cache.New(ctx, cfg.RedisURL)
	if err != nil {
		logger.Error(
			"failed to connect to Redis",
			slog.String("error", sanitizeError(err, cfg.RedisURL)),
			slog.String("redis_url", redactURL(cfg.RedisURL)),
		)
		return fail(errConnect)
	}
	logger.Info("connected to Redis")
	closers = append(closers, func() { _ = cacheClient.Close() })

	categories := category.NewRegistry(category.Default())
	if cfg.CategoriesFile != "" {
		table, err := category.LoadFile(cfg.CategoriesFile)
		if err != nil {
			return fail(err)
		}
		categories.Replace(table)
	}

	objects, err := storage.NewLocalStore(cfg.StorageDir, cfg.BaseURL)
	if err != nil {
		return fail(err)
	}

	sessions, err := auth.NewSessionIssuer(deriveKey(cfg.SessionSecret, "session"), cfg.SessionTTL)
	if err != nil {
		return fail(err)
	}
	boxGate, err := gate.New(deriveKey(cfg.SessionSecret, "box-access"), cfg.BoxAccessTTL)
	if err != nil {
		return fail(err)
	}

	recorder := metrics.NewInMemory()
	events := analytics.NewPublisher(cacheClient.Client(), logger, recorder)
	analyticsRepo := repository.NewAnalyticsRepository(repo)
	webhookRepo := webhook.NewRepository(repo.SQLDB())

	boxes := service.NewBoxService(repo, cacheClient, objects, categories, logger, recorder)
	complaints := service.NewComplaintService(repo, repo, repo, objects, events, analyticsRepo, logger, recorder)
	publicDeps := service.PublicDeps{
		Boxes:      boxes,
		Complaints: repo,
		Feedback:   repo,
		Gate:       boxGate,
		Objects:    objects,
		Categories: categories,
		Events:     events,
		Logger:     logger,
		Metrics:    recorder,
	}
	if cfg.RateLimitEnabled {
		publicDeps.Limiter = cacheClient
		publicDeps.Limit = service.GateLimit{PerMinute: cfg.RateLimitGateRPM, Burst: cfg.RateLimitGateBurst}
	}
	public := service.NewPublicService(publicDeps)
	accounts := service.NewAccountService(repo, sessions, cacheClient, cacheClient, objects, logger)
	stats := service.NewAnalyticsService(repo, analyticsRepo)
	webhooks := service.NewWebhookService(webhookRepo, repo, webhook.NewValidator(cfg.WebhookAllowInsecure), logger)

	router := handler.NewRouter(handler.RouterConfig{
		Logger:        logger,
		Metrics:       recorder,
		IsDevelopment: cfg.IsDevelopment(),
		CORSOrigins:   cfg.GetCORSAllowedOrigins(),
		MaxBodySize:   cfg.MaxRequestBodySize,
		Limiter:       cacheClient,
		RateLimits: handler.RateLimits{
			Enabled:     cfg.RateLimitEnabled,
			SubmitRPM:   cfg.RateLimitSubmitRPM,
			SubmitBurst: cfg.RateLimitSubmitBurst,
			AdminRPM:    cfg.RateLimitAdminRPM,
			AdminBurst:  cfg.RateLimitAdminBurst,
		},
		Authenticator: accounts,
		Health: handler.NewHealthHandler(
			handler.Dependency{Name: "postgres", Checker: repo},
			handler.Dependency{Name: "redis", Checker: cacheClient},
		),
		Metric:   handler.NewMetricsHandler(recorder, logger),
		Public:   handler.NewPublicHandler(public, categories, logger),
		Admin:    handler.NewAdminHandler(boxes, complaints, stats, logger),
		Account:  handler.NewAccountHandler(accounts, logger),
		Webhooks: handler.NewWebhookHandler(webhooks, logger),
		Files:    objects.Handler(),
	})

	srv := server.New(router, cfg.AppPort, cfg.ReadTimeout, cfg.WriteTimeout, cfg.ShutdownTimeout, logger)

	// Hooks run LIFO: Redis closes before the database pool.
	srv.OnShutdown("postgres", func(context.Context) error {
		repo.Close()
		return nil
	})
	srv.OnShutdown("redis", func(context.Context) error {
		return cacheClient.Close()
	})

	if cfg.AnalyticsWorkerEnabled {
		fanout := webhook.NewPublisher(webhookRepo, logger)
		worker := analytics.NewWorker(cacheClient.Client(), analyticsRepo, fanout, logger, analytics.NewConsumerID(), recorder, analytics.WorkerConfig{})
		srv.Go("analytics", worker.Run)
	}
	if cfg.WebhookWorkerEnabled {
		worker := webhook.NewWorker(webhookRepo, webhook.NewHTTPClient(cfg.WebhookAllowInsecure), logger, recorder)
		srv.Go("webhooks", worker.Run)
	}
	if cfg.CategoriesFile != "" {
		srv.Go("categories", func(ctx context.Context) error {
			return categories.Watch(ctx, cfg.CategoriesFile, logger)
		})
	}

	logger.Info("starting server",
		"port", cfg.AppPort,
		"base_url", cfg.BaseURL,
		"env", cfg.AppEnv,
	)
	return srv.Run(ctx)
}

// deriveKey separates the session and box-access signing keys so a token
// of one kind never verifies as the other.
func deriveKey(secret, label string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(label))
	return hex.EncodeToString(mac.Sum(nil))
}

// initLogger initializes the slog logger based on configuration.
func initLogger(cfg *config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: parseLogLevel(cfg.LogLevel),
	}

	var h slog.Handler
	if cfg.LogFormat == "text" {
		h = slog.NewTextHandler(os.Stdout, opts)
	} else {
		h = slog.NewJSONHandler(os.Stdout, opts)
	}

	logger := slog.New(h).With("service", "tellus")
	slog.SetDefault(logger)
	return logger
}

// parseLogLevel converts string log level to slog.Level.
func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

var passwordPattern = regexp.MustCompile(`(?i)password=[^\s]+`)

func redactURL(raw string) string {
	if raw == "" {
		return ""
	}

	parsed, err := url.Parse(raw)
	if err != nil {
		return "[redacted]"
	}

	if parsed.User != nil {
		if username := parsed.User.Username(); username == "" {
			parsed.User = url.User("redacted")
		} else {
			parsed.User = url.User(username)
		}
	}

	return parsed.String()
}

func sanitizeError(err error, secrets ...string) string {
	if err == nil {
		return ""
	}

	msg := err.Error()
	for _, secret := range secrets {
		if secret == "" {
			continue
		}
		redacted := redactURL(secret)
		if redacted == "" {
			redacted = "[redacted]"
		}
		msg = strings.ReplaceAll(msg, secret, redacted)
	}

	return passwordPattern.ReplaceAllString(msg, "password=redacted")
}
