package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadFullConfig(t *testing.T) {
	path := writeConfig(t, `
gateway:
  url: wss://gw.example.test/connection/websocket
  token: tok-123
  channel_prefix: audit
  subscriptions:
    - handle: app
      channel: app
    - handle: api
      channel: api-prod
store:
  driver: postgres
  dsn: postgres://tailfeed@localhost/tailfeed
  prune_max_age: 72h
  prune_schedule: "0 3 * * *"
status:
  listen: 127.0.0.1:9911
notify:
  webhook_url: https://hooks.example.test/T/B/x
telemetry:
  otlp_endpoint: otel-collector:4317
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}

	if cfg.Gateway.URL != "wss://gw.example.test/connection/websocket" {
		t.Fatalf("unexpected gateway url %q", cfg.Gateway.URL)
	}
	if cfg.Gateway.ChannelPrefix != "audit" {
		t.Fatalf("unexpected channel prefix %q", cfg.Gateway.ChannelPrefix)
	}
	if len(cfg.Gateway.Subscriptions) != 2 || cfg.Gateway.Subscriptions[1].Channel != "api-prod" {
		t.Fatalf("unexpected subscriptions: %+v", cfg.Gateway.Subscriptions)
	}
	if cfg.Store.MaxAge() != 72*time.Hour {
		t.Fatalf("expected 72h prune max age, got %s", cfg.Store.MaxAge())
	}
	if cfg.Status.Listen != "127.0.0.1:9911" {
		t.Fatalf("unexpected status listen %q", cfg.Status.Listen)
	}
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
gateway:
  url: wss://gw.example.test/ws
  token: tok
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Gateway.ChannelPrefix != "logs" {
		t.Fatalf("expected default prefix logs, got %q", cfg.Gateway.ChannelPrefix)
	}
	if cfg.Status.Listen != "127.0.0.1:7333" {
		t.Fatalf("expected default status listen, got %q", cfg.Status.Listen)
	}
	if cfg.Store.MaxAge() != 7*24*time.Hour {
		t.Fatalf("expected default prune max age, got %s", cfg.Store.MaxAge())
	}
}

func TestLoadRejectsMissingURL(t *testing.T) {
	path := writeConfig(t, `
gateway:
  token: tok
`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for missing gateway.url")
	}
}

func TestLoadRejectsUnknownDriver(t *testing.T) {
	path := writeConfig(t, `
gateway:
  url: wss://gw.example.test/ws
store:
  driver: sqlite
  dsn: file.db
`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for unsupported driver")
	}
}

func TestLoadRejectsDuplicateHandles(t *testing.T) {
	path := writeConfig(t, `
gateway:
  url: wss://gw.example.test/ws
  subscriptions:
    - handle: app
      channel: app
    - handle: app
      channel: other
`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for duplicate handles")
	}
}

func TestLoadRejectsBadDuration(t *testing.T) {
	path := writeConfig(t, `
gateway:
  url: wss://gw.example.test/ws
store:
  driver: mysql
  dsn: tailfeed@tcp(localhost:3306)/tailfeed
  prune_max_age: yesterday
`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for invalid prune_max_age")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
