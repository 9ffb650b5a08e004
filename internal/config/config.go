package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// EnvDevelopment marks a non-production deployment. It is the only
// environment in which the field-encryption key may be absent.
const EnvDevelopment = "development"

// Config holds all runtime configuration, loaded from the environment.
type Config struct {
	// Environment selects deployment mode: "development" or "production".
	Environment string `env:"ENVIRONMENT" envDefault:"production"`

	// Google OAuth
	GoogleClientID     string `env:"GOOGLE_CLIENT_ID,required"`
	GoogleClientSecret string `env:"GOOGLE_CLIENT_SECRET,required"`
	GoogleRedirectURL  string `env:"GOOGLE_REDIRECT_URL,required"`

	// Persistence
	DatabasePath string `env:"DATABASE_PATH" envDefault:"./data/mailwatch.db"`

	// Gmail push notifications
	PubSubProject     string `env:"PUBSUB_PROJECT,required"`
	PubSubTopicPrefix string `env:"PUBSUB_TOPIC_PREFIX" envDefault:"mailwatch"`

	// Downstream webhooks (each independently optional; absence disables
	// that channel without failing startup)
	RegistrationWebhookURL string `env:"REGISTRATION_WEBHOOK_URL"`
	RenewalWebhookURL      string `env:"RENEWAL_WEBHOOK_URL"`

	// Security
	SessionSecret      string `env:"SESSION_SECRET,required"`
	FieldEncryptionKey string `env:"FIELD_ENCRYPTION_KEY"`

	// Renewal scheduling
	RenewalHorizonHours int `env:"RENEWAL_HORIZON_HOURS" envDefault:"48"`

	// Notifier delivery policy
	NotifyMaxAttempts int           `env:"NOTIFY_MAX_ATTEMPTS" envDefault:"3"`
	NotifyBaseDelay   time.Duration `env:"NOTIFY_BASE_DELAY" envDefault:"1s"`
	NotifyTimeout     time.Duration `env:"NOTIFY_TIMEOUT" envDefault:"10s"`

	// Outbound provider calls
	ProviderTimeout time.Duration `env:"PROVIDER_TIMEOUT" envDefault:"10s"`

	// HTTP
	HTTPAddr string `env:"HTTP_ADDR" envDefault:":8080"`

	// Metrics server
	MetricsEnabled bool   `env:"METRICS_ENABLED" envDefault:"true"`
	MetricsAddr    string `env:"METRICS_ADDR" envDefault:":9090"`

	// Logging
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"text"` // "json" or "text"
}

// IsDevelopment reports whether the service runs in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Environment == EnvDevelopment
}

// Load reads configuration from the environment, with an optional .env file
// for local development.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	// Storing token material unencrypted is a misconfiguration; only
	// development may run without a key (the vault then operates in a
	// loud pass-through mode).
	if c.FieldEncryptionKey == "" && !c.IsDevelopment() {
		return fmt.Errorf("FIELD_ENCRYPTION_KEY is required outside development")
	}
	if c.FieldEncryptionKey != "" && len(c.FieldEncryptionKey) != 32 {
		return fmt.Errorf("FIELD_ENCRYPTION_KEY must be exactly 32 bytes, got %d", len(c.FieldEncryptionKey))
	}
	if len(c.SessionSecret) < 16 {
		return fmt.Errorf("SESSION_SECRET must be at least 16 bytes")
	}
	if c.RenewalHorizonHours <= 0 {
		return fmt.Errorf("RENEWAL_HORIZON_HOURS must be positive, got %d", c.RenewalHorizonHours)
	}
	if c.NotifyMaxAttempts < 1 {
		return fmt.Errorf("NOTIFY_MAX_ATTEMPTS must be at least 1, got %d", c.NotifyMaxAttempts)
	}
	return nil
}

// Topic returns the fully qualified Pub/Sub topic for Gmail watch requests.
func (c *Config) Topic() string {
	return fmt.Sprintf("projects/%s/topics/%s", c.PubSubProject, c.PubSubTopicPrefix)
}
