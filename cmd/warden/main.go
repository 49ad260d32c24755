// Package main provides the CLI entry point for warden, a bridge
// between a vault's service mode HTTP API and a Slack approvals
// channel.
//
// Warden polls the vault for pending privilege elevation requests and
// device approvals, posts each new one to Slack as a card with
// approve/deny buttons, and applies button clicks back to the vault.
//
// # Basic Usage
//
// Start the bridge:
//
//	warden serve --config warden.yaml
//
// Store vault credentials:
//
//	warden setup
//
// Check connectivity:
//
//	warden status
//
// # Environment Variables
//
//   - SLACK_BOT_TOKEN: Slack bot OAuth token
//   - SLACK_APP_TOKEN: Slack app-level token for Socket Mode
//   - APPROVALS_CHANNEL_ID: Slack channel for approval cards
//   - WARDEN_SERVICE_URL: vault service mode URL
//   - WARDEN_API_KEY: vault service mode API key
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

// Build information - populated by ldflags during build.
//
// Example build command:
//
//	go build -ldflags "-X main.version=v1.0.0 -X main.commit=$(git rev-parse HEAD) -X main.date=$(date -u +%Y-%m-%dT%H:%M:%SZ)"
var (
	version = "dev"     // Semantic version (e.g., "v1.0.0")
	commit  = "none"    // Git commit SHA
	date    = "unknown" // Build timestamp
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	rootCmd := buildRootCmd()
	if err := rootCmd.Execute(); err != nil {
		slog.Error("command execution failed", "error", err)
		os.Exit(1)
	}
}

// buildRootCmd creates the root command with all subcommands attached.
// This is separated from main() to facilitate testing.
func buildRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "warden",
		Short: "Warden - vault approvals bridge for Slack",
		Long: `Warden bridges a vault's service mode API and a Slack channel.

It watches for pending privilege elevation requests and device
approvals, posts each new one to Slack with approve/deny buttons,
and applies decisions back to the vault.`,
		Version:      fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage: true,
	}

	rootCmd.AddCommand(
		buildServeCmd(),
		buildStatusCmd(),
		buildSetupCmd(),
		buildServiceCmd(),
	)

	return rootCmd
}
