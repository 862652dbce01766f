// README: Config loader: optional .env file, then PLOW_* environment variables with defaults.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	HTTP struct {
		Addr            string        `envconfig:"PLOW_HTTP_ADDR" default:":8080"`
		ShutdownTimeout time.Duration `envconfig:"PLOW_HTTP_SHUTDOWN_TIMEOUT" default:"10s"`
	}
	DB struct {
		// DSN empty runs on the in-memory stores.
		DSN      string `envconfig:"PLOW_DB_DSN"`
		MaxConns int32  `envconfig:"PLOW_DB_MAX_CONNS" default:"10"`
	}
	Redis struct {
		// Addr empty keeps profiles and the job board in memory.
		Addr     string `envconfig:"PLOW_REDIS_ADDR"`
		Password string `envconfig:"PLOW_REDIS_PASSWORD"`
		DB       int    `envconfig:"PLOW_REDIS_DB" default:"0"`
	}
	Payment  PaymentConfig
	Dispatch struct {
		ConflictRetries uint          `envconfig:"PLOW_CONFLICT_RETRIES" default:"5"`
		ConflictBackoff time.Duration `envconfig:"PLOW_CONFLICT_BACKOFF" default:"20ms"`
		Admins          []string      `envconfig:"PLOW_ADMIN_IDS"`
		QueuePolicy     string        `envconfig:"PLOW_QUEUE_POLICY" default:"fcfs"`
	}
	Firebase struct {
		ProjectID       string `envconfig:"PLOW_FIREBASE_PROJECT_ID"`
		CredentialsFile string `envconfig:"PLOW_FIREBASE_CREDENTIALS"`
		CheckRevoked    bool   `envconfig:"PLOW_FIREBASE_CHECK_REVOKED" default:"false"`
	}
	Maps struct {
		APIKey string `envconfig:"PLOW_MAPS_API_KEY"`
		Region string `envconfig:"PLOW_MAPS_REGION" default:"ca"`
	}
	Review struct {
		Mode      string  `envconfig:"PLOW_EVIDENCE_REVIEW" default:"auto"`
		GeminiKey string  `envconfig:"PLOW_GEMINI_API_KEY"`
		MinScore  float64 `envconfig:"PLOW_GEMINI_MIN_CONFIDENCE" default:"0.7"`
		// Evidence is only read from these gs:// buckets and https hosts.
		Buckets []string `envconfig:"PLOW_EVIDENCE_BUCKETS"`
		Hosts   []string `envconfig:"PLOW_EVIDENCE_HOSTS"`
	}
	Notify struct {
		Channel string        `envconfig:"PLOW_NOTIFY_CHANNEL" default:"plow:job-events"`
		Buffer  int           `envconfig:"PLOW_NOTIFY_BUFFER" default:"256"`
		Timeout time.Duration `envconfig:"PLOW_NOTIFY_TIMEOUT" default:"5s"`
	}
	Log struct {
		Level  string `envconfig:"PLOW_LOG_LEVEL" default:"info"`
		Format string `envconfig:"PLOW_LOG_FORMAT" default:"json"`
	}
	Telemetry struct {
		Endpoint string `envconfig:"PLOW_OTLP_ENDPOINT"`
		Insecure bool   `envconfig:"PLOW_OTLP_INSECURE" default:"true"`
	}
}

type PaymentConfig struct {
	Provider        string        `envconfig:"PLOW_PAYMENT_PROVIDER" default:"sandbox"`
	StripeKey       string        `envconfig:"PLOW_STRIPE_SECRET_KEY"`
	Currency        string        `envconfig:"PLOW_CURRENCY" default:"CAD"`
	FeeBps          int           `envconfig:"PLOW_PLATFORM_FEE_BPS" default:"1000"`
	Timeout         time.Duration `envconfig:"PLOW_GATEWAY_TIMEOUT" default:"10s"`
	MaxAttempts     uint          `envconfig:"PLOW_GATEWAY_MAX_ATTEMPTS" default:"3"`
	BreakerFailures uint32        `envconfig:"PLOW_BREAKER_FAILURES" default:"5"`
	BreakerCooldown time.Duration `envconfig:"PLOW_BREAKER_COOLDOWN" default:"30s"`
}

// Load reads .env when present and then the process environment, which wins.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to process config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	switch c.Payment.Provider {
	case "sandbox":
	case "stripe":
		if c.Payment.StripeKey == "" {
			return errors.New("PLOW_STRIPE_SECRET_KEY is required for the stripe provider")
		}
	default:
		return fmt.Errorf("unknown payment provider %q", c.Payment.Provider)
	}
	switch c.Review.Mode {
	case "auto":
	case "gemini":
		if c.Review.GeminiKey == "" {
			return errors.New("PLOW_GEMINI_API_KEY is required for gemini review")
		}
		if len(c.Review.Buckets) == 0 && len(c.Review.Hosts) == 0 {
			return errors.New("PLOW_EVIDENCE_BUCKETS or PLOW_EVIDENCE_HOSTS is required for gemini review")
		}
	default:
		return fmt.Errorf("unknown evidence review mode %q", c.Review.Mode)
	}
	if c.Payment.FeeBps < 0 || c.Payment.FeeBps > 10000 {
		return fmt.Errorf("platform fee %d bps out of range", c.Payment.FeeBps)
	}
	return nil
}

// AdminIDs returns the configured administrator IDs without blanks.
func (c Config) AdminIDs() []string {
	out := make([]string, 0, len(c.Dispatch.Admins))
	for _, id := range c.Dispatch.Admins {
		if id = strings.TrimSpace(id); id != "" {
			out = append(out, id)
		}
	}
	return out
}
