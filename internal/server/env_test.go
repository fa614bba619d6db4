package server

import (
	"testing"
	"time"
)

func TestLoadEnvDefaults(t *testing.T) {
	t.Setenv("TURNLINE_JWT_SECRET", "s3cret")
	cfg, err := LoadEnv()
	if err != nil {
		t.Fatalf("load env: %v", err)
	}
	if cfg.Addr != "127.0.0.1:8787" || cfg.BasePath != "/v0" || cfg.JWTSecret != "s3cret" {
		t.Fatalf("defaults = %+v", cfg)
	}
	if cfg.WebhookInterval != 2*time.Second || len(cfg.Webhooks()) != 0 {
		t.Fatalf("webhook defaults = %v %v", cfg.WebhookInterval, cfg.Webhooks())
	}
}

func TestLoadEnvWebhooks(t *testing.T) {
	t.Setenv("TURNLINE_WEBHOOK_URLS", "http://a.test/hook,http://b.test/hook")
	t.Setenv("TURNLINE_WEBHOOK_EVENTS", "payout.settled")
	t.Setenv("TURNLINE_WEBHOOK_SECRET", "shh")
	t.Setenv("TURNLINE_WEBHOOK_INTERVAL", "250ms")
	cfg, err := LoadEnv()
	if err != nil {
		t.Fatalf("load env: %v", err)
	}
	hooks := cfg.Webhooks()
	if len(hooks) != 2 || hooks[1].URL != "http://b.test/hook" || hooks[0].Secret != "shh" {
		t.Fatalf("hooks = %+v", hooks)
	}
	if len(hooks[0].Events) != 1 || hooks[0].Events[0] != "payout.settled" {
		t.Fatalf("events = %v", hooks[0].Events)
	}
	if cfg.WebhookInterval != 250*time.Millisecond {
		t.Fatalf("interval = %v", cfg.WebhookInterval)
	}
}

func TestLoadEnvRejectsBadDuration(t *testing.T) {
	t.Setenv("TURNLINE_SHUTDOWN_TIMEOUT", "soon")
	if _, err := LoadEnv(); err == nil {
		t.Fatalf("expected error for bad duration")
	}
}
