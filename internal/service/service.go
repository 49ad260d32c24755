// Package service wires the warden components together: the async
// command client talking to the vault's service mode, one
// reconciliation poller per approval feed, and the Slack app that
// posts cards and handles button clicks. It also knows how to install
// itself as a user-level systemd or launchd service.
package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vaultops/warden/internal/commander"
	"github.com/vaultops/warden/internal/config"
	"github.com/vaultops/warden/internal/observability"
	"github.com/vaultops/warden/internal/reconcile"
	"github.com/vaultops/warden/internal/slack"
)

const shutdownGrace = 10 * time.Second

// Service owns the full process lifecycle.
type Service struct {
	cfg      *config.Config
	logger   *observability.Logger
	metrics  *observability.Metrics
	settings *config.SettingsStore
	client   *commander.Client
	app      *slack.App
	pollers  []*reconcile.Poller

	metricsServer *http.Server
}

// New builds a service from configuration. Vault credentials come from
// the settings store when present, falling back to the config file.
func New(cfg *config.Config, logger *observability.Logger) (*Service, error) {
	if logger == nil {
		logger = observability.NewLogger(observability.LogConfig{
			Level:  cfg.Logging.Level,
			Format: cfg.Logging.Format,
		})
	}
	metrics := observability.NewMetrics()

	settingsPath, err := config.DefaultSettingsPath()
	if err != nil {
		return nil, err
	}
	settings := config.NewSettingsStore(settingsPath, logger)
	stored, err := settings.Load()
	if err != nil {
		return nil, err
	}

	serviceURL := cfg.Service.URL
	apiKey := cfg.Service.APIKey
	if stored.ServiceURL != "" {
		serviceURL = stored.ServiceURL
	}
	if stored.APIKey != "" {
		apiKey = stored.APIKey
	}
	if serviceURL == "" {
		return nil, fmt.Errorf("no service URL configured: set service.url, %s, or run warden setup", config.EnvServiceURL)
	}
	if apiKey == "" {
		return nil, fmt.Errorf("no API key configured: set service.api_key, %s, or run warden setup", config.EnvServiceAPIKey)
	}

	client := commander.NewClient(commander.Config{
		ServiceURL: serviceURL,
		APIKey:     apiKey,
		MaxWait:    cfg.Service.MaxWait(),
		Logger:     logger,
		Metrics:    metrics,
	})

	app := slack.NewApp(slack.Config{
		BotToken: cfg.Slack.BotToken,
		AppToken: cfg.Slack.AppToken,
		Logger:   logger,
	}, client)

	s := &Service{
		cfg:      cfg,
		logger:   logger,
		metrics:  metrics,
		settings: settings,
		client:   client,
		app:      app,
	}
	s.buildPollers()
	return s, nil
}

// buildPollers creates one poller per enabled feed.
func (s *Service) buildPollers() {
	channel := s.cfg.Slack.ApprovalsChannel

	if s.cfg.Pollers.Elevation.Enabled {
		feed := &elevationFeed{client: s.client, logger: s.logger}
		notifier := slack.NewNotifier(s.app.API(), channel, slack.FeedElevation, s.logger)
		s.pollers = append(s.pollers, reconcile.NewPoller(feed, notifier, reconcile.Config{
			Interval:             s.cfg.Pollers.Elevation.Interval(),
			MaxConsecutiveErrors: s.cfg.Pollers.Elevation.MaxConsecutiveErrors,
			Logger:               s.logger,
			Metrics:              s.metrics,
		}))
	}

	if s.cfg.Pollers.Device.Enabled {
		feed := &deviceFeed{client: s.client, logger: s.logger}
		notifier := slack.NewNotifier(s.app.API(), channel, slack.FeedDevice, s.logger)
		s.pollers = append(s.pollers, reconcile.NewPoller(feed, notifier, reconcile.Config{
			Interval:             s.cfg.Pollers.Device.Interval(),
			MaxConsecutiveErrors: s.cfg.Pollers.Device.MaxConsecutiveErrors,
			Logger:               s.logger,
			Metrics:              s.metrics,
		}))
	}
}

// Client exposes the vault client for status commands.
func (s *Service) Client() *commander.Client {
	return s.client
}

// Run starts everything and blocks until ctx is cancelled, then shuts
// down in reverse order.
func (s *Service) Run(ctx context.Context) error {
	if !s.client.HealthCheck(ctx) {
		// The service may come up later; the pollers will find it.
		s.logger.Warn(ctx, "vault service mode is not reachable yet",
			"service_url", s.client.ServiceURL())
	}

	err := s.settings.Watch(ctx, func(settings config.Settings) {
		if settings.ServiceURL == "" || settings.APIKey == "" {
			s.logger.Warn(ctx, "ignoring incomplete settings update")
			return
		}
		s.client.UpdateCredentials(settings.ServiceURL, settings.APIKey)
	})
	if err != nil {
		s.logger.Warn(ctx, "settings watch unavailable", "error", err)
	}

	if err := s.app.Start(ctx); err != nil {
		return fmt.Errorf("failed to start slack app: %w", err)
	}

	for _, poller := range s.pollers {
		poller.Start(ctx)
	}
	if len(s.pollers) == 0 {
		s.logger.Warn(ctx, "no approval feeds enabled")
	}

	if s.cfg.Metrics.Enabled {
		s.startMetricsServer(ctx)
	}

	s.logger.Info(ctx, "warden running",
		"feeds", len(s.pollers),
		"approvals_channel", s.cfg.Slack.ApprovalsChannel)

	<-ctx.Done()
	return s.shutdown()
}

// startMetricsServer exposes /metrics and /healthz.
func (s *Service) startMetricsServer(ctx context.Context) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if !s.client.HealthCheck(r.Context()) {
			http.Error(w, "vault service unreachable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "ok")
	})

	s.metricsServer = &http.Server{
		Addr:              s.cfg.Metrics.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		s.logger.Info(ctx, "metrics server listening", "addr", s.cfg.Metrics.Addr)
		if err := s.metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error(ctx, "metrics server failed", "error", err)
		}
	}()
}

func (s *Service) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()

	s.logger.Info(ctx, "shutting down")

	for _, poller := range s.pollers {
		poller.Stop()
	}

	if err := s.settings.Close(); err != nil {
		s.logger.Warn(ctx, "settings store close failed", "error", err)
	}

	if s.metricsServer != nil {
		if err := s.metricsServer.Shutdown(ctx); err != nil {
			s.logger.Warn(ctx, "metrics server shutdown failed", "error", err)
		}
	}

	if err := s.app.Stop(ctx); err != nil {
		return fmt.Errorf("slack app did not stop cleanly: %w", err)
	}
	return nil
}
