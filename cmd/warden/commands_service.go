package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vaultops/warden/internal/service"
)

// buildServiceCmd creates the service command group for managing the
// user-level systemd or launchd service.
func buildServiceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "service",
		Short: "Manage the user-level background service",
	}
	cmd.AddCommand(
		buildServiceInstallCmd(),
		buildServiceRepairCmd(),
		buildServiceRestartCmd(),
	)
	return cmd
}

func buildServiceInstallCmd() *cobra.Command {
	var (
		configPath string
		restart    bool
	)
	cmd := &cobra.Command{
		Use:   "install",
		Short: "Write the user-level service file",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServiceInstall(cmd, configPath, restart, false)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "Configuration file path the service will use")
	cmd.Flags().BoolVar(&restart, "restart", false, "Restart the service after writing the file")
	return cmd
}

func buildServiceRepairCmd() *cobra.Command {
	var (
		configPath string
		restart    bool
	)
	cmd := &cobra.Command{
		Use:   "repair",
		Short: "Rewrite the service file even if it exists",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServiceInstall(cmd, configPath, restart, true)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "Configuration file path the service will use")
	cmd.Flags().BoolVar(&restart, "restart", false, "Restart the service after writing the file")
	return cmd
}

func buildServiceRestartCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "restart",
		Short: "Restart the user-level service",
		RunE: func(cmd *cobra.Command, args []string) error {
			steps, err := service.RestartUserService(cmd.Context())
			if err != nil {
				printManualSteps(cmd, steps)
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Service restarted.")
			return nil
		},
	}
}

func runServiceInstall(cmd *cobra.Command, configPath string, restart, overwrite bool) error {
	result, err := service.InstallUserService(configPath, overwrite)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Service file written: %s\n", result.Path)

	if restart {
		steps, err := service.RestartUserService(cmd.Context())
		if err != nil {
			fmt.Fprintf(out, "Service restart failed: %v\n", err)
			printManualSteps(cmd, steps)
			return err
		}
		fmt.Fprintln(out, "Service restarted.")
	}

	if len(result.Instructions) > 0 {
		label := "Next steps:"
		if restart {
			label = "Next steps (if needed):"
		}
		fmt.Fprintln(out, label)
		for _, step := range result.Instructions {
			fmt.Fprintf(out, "  - %s\n", step)
		}
	}
	return nil
}

func printManualSteps(cmd *cobra.Command, steps []string) {
	if len(steps) == 0 {
		return
	}
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "Manual restart steps:")
	for _, step := range steps {
		fmt.Fprintf(out, "  - %s\n", step)
	}
}
