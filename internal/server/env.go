package server

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// EnvConfig holds the server settings read from the environment.
type EnvConfig struct {
	Addr                   string        `env:"TURNLINE_ADDR" envDefault:"127.0.0.1:8787"`
	BasePath               string        `env:"TURNLINE_BASE_PATH" envDefault:"/v0"`
	JWTSecret              string        `env:"TURNLINE_JWT_SECRET"`
	AllowLegacyActorHeader bool          `env:"TURNLINE_ALLOW_LEGACY_ACTOR_HEADER"`
	WebhookURLs            []string      `env:"TURNLINE_WEBHOOK_URLS" envSeparator:","`
	WebhookEvents          []string      `env:"TURNLINE_WEBHOOK_EVENTS" envSeparator:","`
	WebhookSecret          string        `env:"TURNLINE_WEBHOOK_SECRET"`
	WebhookInterval        time.Duration `env:"TURNLINE_WEBHOOK_INTERVAL" envDefault:"2s"`
	ShutdownTimeout        time.Duration `env:"TURNLINE_SHUTDOWN_TIMEOUT" envDefault:"5s"`
}

// LoadEnv parses EnvConfig from the process environment.
func LoadEnv() (EnvConfig, error) {
	var cfg EnvConfig
	if err := env.Parse(&cfg); err != nil {
		return EnvConfig{}, fmt.Errorf("parse server env: %w", err)
	}
	return cfg, nil
}

// Webhooks turns the webhook settings into one hook per URL.
func (c EnvConfig) Webhooks() []WebhookConfig {
	hooks := make([]WebhookConfig, 0, len(c.WebhookURLs))
	for _, url := range c.WebhookURLs {
		hooks = append(hooks, WebhookConfig{URL: url, Events: c.WebhookEvents, Secret: c.WebhookSecret})
	}
	return hooks
}
