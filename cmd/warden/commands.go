package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/vaultops/warden/internal/commander"
	"github.com/vaultops/warden/internal/config"
	"github.com/vaultops/warden/internal/observability"
	"github.com/vaultops/warden/internal/service"
)

const defaultConfigPath = "warden.yaml"

// buildServeCmd creates the serve command that runs the bridge.
func buildServeCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the approvals bridge",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath,
		"Path to YAML or JSON5 configuration file")
	return cmd
}

func runServe(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger := observability.NewLogger(observability.LogConfig{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})

	svc, err := service.New(cfg, logger)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return svc.Run(ctx)
}

func contextWithTimeout(cmd *cobra.Command, d time.Duration) (context.Context, context.CancelFunc) {
	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	return context.WithTimeout(parent, d)
}

// buildStatusCmd creates the status command.
func buildStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Check vault service connectivity",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(cmd)
		},
	}
	return cmd
}

func runStatus(cmd *cobra.Command) error {
	out := cmd.OutOrStdout()

	client, settingsPath, err := statusClient()
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "Settings file: %s\n", settingsPath)
	fmt.Fprintf(out, "Service URL:   %s\n", client.ServiceURL())

	ctx, cancel := contextWithTimeout(cmd, 15*time.Second)
	defer cancel()

	if !client.HealthCheck(ctx) {
		fmt.Fprintln(out, "Service:       unreachable")
		return fmt.Errorf("vault service mode is not reachable")
	}
	fmt.Fprintln(out, "Service:       ok")
	fmt.Fprintf(out, "Server domain: %s\n", client.ServerDomain(ctx))
	return nil
}

// statusClient builds a commander client from stored settings with env
// overrides, without requiring the full config file.
func statusClient() (*commander.Client, string, error) {
	logger := observability.NewLogger(observability.LogConfig{Format: "text", Output: os.Stderr})

	settingsPath, err := config.DefaultSettingsPath()
	if err != nil {
		return nil, "", err
	}
	store := config.NewSettingsStore(settingsPath, logger)
	settings, err := store.Load()
	if err != nil {
		return nil, "", err
	}

	serviceURL := settings.ServiceURL
	apiKey := settings.APIKey
	if env := os.Getenv(config.EnvServiceURL); env != "" {
		serviceURL = env
	}
	if env := os.Getenv(config.EnvServiceAPIKey); env != "" {
		apiKey = env
	}
	if serviceURL == "" || apiKey == "" {
		return nil, "", fmt.Errorf("no vault credentials found: run warden setup or set %s and %s",
			config.EnvServiceURL, config.EnvServiceAPIKey)
	}

	client := commander.NewClient(commander.Config{
		ServiceURL: serviceURL,
		APIKey:     apiKey,
		Logger:     logger,
	})
	return client, settingsPath, nil
}

// buildSetupCmd creates the setup command that stores vault
// credentials in the settings file.
func buildSetupCmd() *cobra.Command {
	var (
		serviceURL string
		apiKey     string
	)

	cmd := &cobra.Command{
		Use:   "setup",
		Short: "Store vault service credentials",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSetup(cmd, serviceURL, apiKey)
		},
	}

	cmd.Flags().StringVar(&serviceURL, "service-url", "", "Vault service mode URL")
	cmd.Flags().StringVar(&apiKey, "api-key", "", "Vault service mode API key")
	return cmd
}

func runSetup(cmd *cobra.Command, serviceURL, apiKey string) error {
	out := cmd.OutOrStdout()
	reader := bufio.NewReader(cmd.InOrStdin())

	if strings.TrimSpace(serviceURL) == "" {
		fmt.Fprint(out, "Service URL: ")
		line, err := reader.ReadString('\n')
		if err != nil {
			return fmt.Errorf("failed to read service URL: %w", err)
		}
		serviceURL = strings.TrimSpace(line)
	}
	if strings.TrimSpace(apiKey) == "" {
		fmt.Fprint(out, "API key: ")
		line, err := reader.ReadString('\n')
		if err != nil {
			return fmt.Errorf("failed to read API key: %w", err)
		}
		apiKey = strings.TrimSpace(line)
	}
	if serviceURL == "" || apiKey == "" {
		return fmt.Errorf("both service URL and API key are required")
	}

	logger := observability.NewLogger(observability.LogConfig{Format: "text", Output: os.Stderr})
	settingsPath, err := config.DefaultSettingsPath()
	if err != nil {
		return err
	}
	store := config.NewSettingsStore(settingsPath, logger)
	if err := store.Save(config.Settings{ServiceURL: serviceURL, APIKey: apiKey}); err != nil {
		return err
	}

	fmt.Fprintf(out, "Credentials written to %s\n", settingsPath)

	client := commander.NewClient(commander.Config{
		ServiceURL: serviceURL,
		APIKey:     apiKey,
		Logger:     logger,
	})
	ctx, cancel := contextWithTimeout(cmd, 15*time.Second)
	defer cancel()
	if client.HealthCheck(ctx) {
		fmt.Fprintln(out, "Service reachable.")
	} else {
		fmt.Fprintln(out, "Warning: service is not reachable with these credentials.")
	}
	return nil
}
