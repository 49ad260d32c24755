package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

const minimalSlack = `
slack:
  bot_token: xoxb-test
  app_token: xapp-test
  approvals_channel: C123
`

func TestLoadAppliesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "warden.yaml")
	writeFile(t, path, minimalSlack)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if !cfg.Pollers.Elevation.Enabled {
		t.Error("elevation poller should default to enabled")
	}
	if cfg.Pollers.Elevation.IntervalSeconds != 60 {
		t.Errorf("elevation interval = %d, want 60", cfg.Pollers.Elevation.IntervalSeconds)
	}
	if cfg.Pollers.Device.MaxConsecutiveErrors != 3 {
		t.Errorf("device max errors = %d, want 3", cfg.Pollers.Device.MaxConsecutiveErrors)
	}
	if cfg.Service.URL != "http://localhost:8080" {
		t.Errorf("service url = %q, want localhost default", cfg.Service.URL)
	}
	if cfg.Metrics.Addr != ":9090" {
		t.Errorf("metrics addr = %q, want :9090", cfg.Metrics.Addr)
	}
	if cfg.Logging.Format != "json" {
		t.Errorf("logging format = %q, want json", cfg.Logging.Format)
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "warden.yaml")
	writeFile(t, path, minimalSlack+`
pollers:
  elevation:
    enabled: false
    interval_seconds: 15
service:
  url: https://bridge.internal:8080
  max_wait_seconds: 30
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Pollers.Elevation.Enabled {
		t.Error("explicit enabled: false was ignored")
	}
	if cfg.Pollers.Elevation.IntervalSeconds != 15 {
		t.Errorf("elevation interval = %d, want 15", cfg.Pollers.Elevation.IntervalSeconds)
	}
	// Unset sibling keys keep their defaults.
	if !cfg.Pollers.Device.Enabled {
		t.Error("device poller should keep its default")
	}
	if cfg.Service.URL != "https://bridge.internal:8080" {
		t.Errorf("service url = %q", cfg.Service.URL)
	}
	if cfg.Service.MaxWait().Seconds() != 30 {
		t.Errorf("max wait = %v, want 30s", cfg.Service.MaxWait())
	}
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "warden.yaml")
	writeFile(t, path, minimalSlack+`
pollers:
  elevation:
    intreval_seconds: 15
`)

	if _, err := Load(path); err == nil {
		t.Fatal("Load accepted a misspelled key")
	}
}

func TestLoadResolvesIncludes(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "slack.yaml"), minimalSlack)
	path := filepath.Join(dir, "warden.yaml")
	writeFile(t, path, `
include: slack.yaml
pollers:
  device:
    interval_seconds: 600
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Slack.BotToken != "xoxb-test" {
		t.Errorf("included bot token = %q", cfg.Slack.BotToken)
	}
	if cfg.Pollers.Device.IntervalSeconds != 600 {
		t.Errorf("device interval = %d, want 600", cfg.Pollers.Device.IntervalSeconds)
	}
}

func TestLoadDetectsIncludeCycle(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.yaml"), "include: b.yaml\n")
	writeFile(t, filepath.Join(dir, "b.yaml"), "include: a.yaml\n")

	_, err := Load(filepath.Join(dir, "a.yaml"))
	if err == nil || !strings.Contains(err.Error(), "cycle") {
		t.Fatalf("err = %v, want include cycle error", err)
	}
}

func TestLoadJSON5(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "warden.json5")
	writeFile(t, path, `{
  // comments are allowed here
  slack: {
    bot_token: "xoxb-test",
    app_token: "xapp-test",
    approvals_channel: "C123",
  },
}`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Slack.ApprovalsChannel != "C123" {
		t.Errorf("approvals channel = %q", cfg.Slack.ApprovalsChannel)
	}
}

func TestEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "warden.yaml")
	writeFile(t, path, minimalSlack)

	t.Setenv(EnvSlackBotToken, "xoxb-from-env")
	t.Setenv(EnvServiceURL, "https://env.example.com")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Slack.BotToken != "xoxb-from-env" {
		t.Errorf("bot token = %q, want env override", cfg.Slack.BotToken)
	}
	if cfg.Service.URL != "https://env.example.com" {
		t.Errorf("service url = %q, want env override", cfg.Service.URL)
	}
}

func TestValidateMissingSlack(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "warden.yaml")
	writeFile(t, path, "logging:\n  level: debug\n")

	_, err := Load(path)
	if err == nil || !strings.Contains(err.Error(), "slack.bot_token") {
		t.Fatalf("err = %v, want bot token validation error", err)
	}
}
