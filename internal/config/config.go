// Package config loads and validates the warden configuration. Files
// may be YAML or JSON5, can pull in shared fragments via include, and
// have ${VAR} environment references expanded before parsing. A small
// set of environment variables override the file so secrets can stay
// out of it entirely.
package config

import (
	"fmt"
	"os"
	"time"
)

// Config is the main configuration structure.
type Config struct {
	Service ServiceConfig `yaml:"service"`
	Slack   SlackConfig   `yaml:"slack"`
	Pollers PollersConfig `yaml:"pollers"`
	Metrics MetricsConfig `yaml:"metrics"`
	Logging LoggingConfig `yaml:"logging"`
}

// ServiceConfig points at the vault's service mode HTTP endpoint.
// URL and APIKey may be left empty here and supplied by the settings
// store instead.
type ServiceConfig struct {
	URL            string `yaml:"url"`
	APIKey         string `yaml:"api_key"`
	MaxWaitSeconds int    `yaml:"max_wait_seconds"`
}

// MaxWait returns the command result wait bound as a duration.
func (s ServiceConfig) MaxWait() time.Duration {
	return time.Duration(s.MaxWaitSeconds) * time.Second
}

type SlackConfig struct {
	BotToken         string `yaml:"bot_token"`
	AppToken         string `yaml:"app_token"`
	SigningSecret    string `yaml:"signing_secret"`
	ApprovalsChannel string `yaml:"approvals_channel"`
}

// PollerConfig configures one reconciliation feed.
type PollerConfig struct {
	Enabled              bool `yaml:"enabled"`
	IntervalSeconds      int  `yaml:"interval_seconds"`
	MaxConsecutiveErrors int  `yaml:"max_consecutive_errors"`
}

// Interval returns the poll interval as a duration.
func (p PollerConfig) Interval() time.Duration {
	return time.Duration(p.IntervalSeconds) * time.Second
}

type PollersConfig struct {
	Elevation PollerConfig `yaml:"elevation"`
	Device    PollerConfig `yaml:"device"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the configuration used when a key is absent from the
// file. Both feeds are on by default; a missing license surfaces as the
// poller disabling itself rather than a config error.
func Default() Config {
	return Config{
		Service: ServiceConfig{
			URL:            "http://localhost:8080",
			MaxWaitSeconds: 15,
		},
		Pollers: PollersConfig{
			Elevation: PollerConfig{
				Enabled:              true,
				IntervalSeconds:      60,
				MaxConsecutiveErrors: 3,
			},
			Device: PollerConfig{
				Enabled:              true,
				IntervalSeconds:      300,
				MaxConsecutiveErrors: 3,
			},
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Addr:    ":9090",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load reads, merges, and validates the configuration file at path.
func Load(path string) (*Config, error) {
	raw, err := LoadRaw(path)
	if err != nil {
		return nil, err
	}
	cfg, err := decodeRawConfig(raw)
	if err != nil {
		return nil, err
	}
	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Environment variables that override file values.
const (
	EnvSlackBotToken      = "SLACK_BOT_TOKEN"
	EnvSlackAppToken      = "SLACK_APP_TOKEN"
	EnvSlackSigningSecret = "SLACK_SIGNING_SECRET"
	EnvApprovalsChannel   = "APPROVALS_CHANNEL_ID"
	EnvServiceURL         = "WARDEN_SERVICE_URL"
	EnvServiceAPIKey      = "WARDEN_API_KEY"
)

func applyEnvOverrides(cfg *Config) {
	overrideString(&cfg.Slack.BotToken, EnvSlackBotToken)
	overrideString(&cfg.Slack.AppToken, EnvSlackAppToken)
	overrideString(&cfg.Slack.SigningSecret, EnvSlackSigningSecret)
	overrideString(&cfg.Slack.ApprovalsChannel, EnvApprovalsChannel)
	overrideString(&cfg.Service.URL, EnvServiceURL)
	overrideString(&cfg.Service.APIKey, EnvServiceAPIKey)
}

func overrideString(dst *string, key string) {
	if value := os.Getenv(key); value != "" {
		*dst = value
	}
}

// Validate checks the parts of the configuration that cannot be
// supplied later by the settings store.
func (c *Config) Validate() error {
	if c.Slack.BotToken == "" {
		return fmt.Errorf("slack.bot_token is required (or set %s)", EnvSlackBotToken)
	}
	if c.Slack.AppToken == "" {
		return fmt.Errorf("slack.app_token is required (or set %s)", EnvSlackAppToken)
	}
	if c.Slack.ApprovalsChannel == "" {
		return fmt.Errorf("slack.approvals_channel is required (or set %s)", EnvApprovalsChannel)
	}
	if c.Pollers.Elevation.IntervalSeconds <= 0 {
		return fmt.Errorf("pollers.elevation.interval_seconds must be positive")
	}
	if c.Pollers.Device.IntervalSeconds <= 0 {
		return fmt.Errorf("pollers.device.interval_seconds must be positive")
	}
	return nil
}
