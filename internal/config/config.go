// Package config provides application configuration management.
// Configuration is loaded from environment variables following 12-factor
// principles; a local .env file, when present, seeds variables that are not
// already set.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

// minBodySize leaves room for a 5MB attachment plus multipart overhead.
const minBodySize = 5<<20 + 64<<10

// Config holds all application configuration.
type Config struct {
	// Application settings
	AppEnv  string `env:"APP_ENV" envDefault:"development"`
	AppPort int    `env:"APP_PORT" envDefault:"8080"`

	// Database (PostgreSQL)
	DatabaseURL string `env:"DATABASE_URL,required"`

	// Cache, rate limits, sessions and event stream (Redis)
	RedisURL string `env:"REDIS_URL,required"`

	// Public base URL, used for share links and attachment URLs
	BaseURL string `env:"BASE_URL" envDefault:"http://localhost:8080"`

	// Logging
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`

	// Server timeouts
	ReadTimeout     time.Duration `env:"READ_TIMEOUT" envDefault:"15s"`
	WriteTimeout    time.Duration `env:"WRITE_TIMEOUT" envDefault:"30s"`
	IdleTimeout     time.Duration `env:"IDLE_TIMEOUT" envDefault:"60s"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"30s"`

	// Sessions and box access grants
	SessionSecret string        `env:"SESSION_SECRET,required"`
	SessionTTL    time.Duration `env:"SESSION_TTL" envDefault:"24h"`
	BoxAccessTTL  time.Duration `env:"BOX_ACCESS_TTL" envDefault:"12h"`

	// Rate limiting
	RateLimitEnabled     bool `env:"RATE_LIMIT_ENABLED" envDefault:"true"`
	RateLimitSubmitRPM   int  `env:"RATE_LIMIT_SUBMIT_RPM" envDefault:"20"`
	RateLimitSubmitBurst int  `env:"RATE_LIMIT_SUBMIT_BURST" envDefault:"5"`
	RateLimitGateRPM     int  `env:"RATE_LIMIT_GATE_RPM" envDefault:"10"`
	RateLimitGateBurst   int  `env:"RATE_LIMIT_GATE_BURST" envDefault:"5"`
	RateLimitAdminRPM    int  `env:"RATE_LIMIT_ADMIN_RPM" envDefault:"300"`
	RateLimitAdminBurst  int  `env:"RATE_LIMIT_ADMIN_BURST" envDefault:"50"`

	// CORS: comma-separated list of allowed origins
	CORSAllowedOrigins string `env:"CORS_ALLOWED_ORIGINS" envDefault:""`

	// Request body size limit in bytes (default 6MB, enough for attachments)
	MaxRequestBodySize int64 `env:"MAX_REQUEST_BODY_SIZE" envDefault:"6291456"`

	// Attachments and category overrides
	StorageDir     string `env:"STORAGE_DIR" envDefault:"./data/attachments"`
	CategoriesFile string `env:"CATEGORIES_FILE" envDefault:""`

	// Background workers
	AnalyticsWorkerEnabled bool `env:"ANALYTICS_WORKER_ENABLED" envDefault:"true"`
	WebhookWorkerEnabled   bool `env:"WEBHOOK_WORKER_ENABLED" envDefault:"true"`
	WebhookAllowInsecure   bool `env:"WEBHOOK_ALLOW_INSECURE" envDefault:"false"`
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.AppEnv == "development"
}

// IsProduction returns true if running in production mode.
func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

// GetCORSAllowedOrigins parses the comma-separated origins string into a slice.
func (c *Config) GetCORSAllowedOrigins() []string {
	if c.CORSAllowedOrigins == "" {
		return nil
	}

	var result []string
	for _, origin := range strings.Split(c.CORSAllowedOrigins, ",") {
		if trimmed := strings.TrimSpace(origin); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

// Validate checks cross-field constraints env tags cannot express.
func (c *Config) Validate() error {
	if len(c.SessionSecret) < 32 {
		return errors.New("SESSION_SECRET must be at least 32 bytes")
	}
	if c.MaxRequestBodySize < minBodySize {
		return fmt.Errorf("MAX_REQUEST_BODY_SIZE must be at least %d to accept attachments", minBodySize)
	}
	if c.WebhookAllowInsecure && c.IsProduction() {
		return errors.New("WEBHOOK_ALLOW_INSECURE cannot be enabled in production")
	}
	return nil
}

// Load reads .env (if present), parses environment variables and validates
// the result.
func Load() (*Config, error) {
	return LoadFiles(".env")
}

// LoadFiles is Load with explicit dotenv files. Missing files are skipped;
// variables already set in the environment win.
func LoadFiles(files ...string) (*Config, error) {
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to load %s: %w", f, err)
		}
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}
