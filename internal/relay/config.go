package relay

import (
	"errors"
	"time"

	"github.com/UUKEvents/uuk-exhibitor-scan/internal/config"
)

// Config is read from the environment only.
type Config struct {
	AuthWebhookURL    string        `env:"N8N_AUTH_WEBHOOK_URL"`
	SessionWebhookURL string        `env:"N8N_SESSION_WEBHOOK_URL"`
	ScanWebhookURL    string        `env:"N8N_SCAN_WEBHOOK_URL"`
	Addr              string        `env:"UUK_RELAY_ADDR" envDefault:":8080"`
	AllowedOrigins    []string      `env:"UUK_RELAY_ALLOWED_ORIGINS" envSeparator:","`
	WebhookTimeout    time.Duration `env:"UUK_RELAY_WEBHOOK_TIMEOUT" envDefault:"5s"`
	LogFormat         string        `env:"UUK_RELAY_LOG_FORMAT" envDefault:"json"`
	LogLevel          string        `env:"UUK_RELAY_LOG_LEVEL" envDefault:"info"`
	OTelEndpoint      string        `env:"UUK_RELAY_OTEL_ENDPOINT"`
	OTelEnabled       bool          `env:"UUK_RELAY_OTEL_ENABLED" envDefault:"true"`
}

// LoadConfig parses the relay environment.
func LoadConfig() (Config, error) {
	var cfg Config
	if err := config.ParseEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects values the server cannot run with. Missing webhooks are
// allowed; the affected routes answer 500 until they are set.
func (c Config) Validate() error {
	if c.Addr == "" {
		return errors.New("UUK_RELAY_ADDR must not be empty")
	}
	if c.WebhookTimeout <= 0 {
		return errors.New("UUK_RELAY_WEBHOOK_TIMEOUT must be positive")
	}
	return nil
}
