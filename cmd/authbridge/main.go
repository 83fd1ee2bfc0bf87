// Package main implements the authbridge CLI.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/authbridge/authbridge/internal/app"
	"github.com/authbridge/authbridge/pkg/config"
)

var (
	// Version is set at build time
	version = "0.3.0"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "authbridge",
		Short: "AuthBridge - authenticated access to a multi-tenant identity backend",
		Long: `AuthBridge is a command-line client for a multi-tenant identity and
access-management backend.

It manages authentication contexts (a global context and per-tenant
contexts), keeps tokens fresh transparently, and answers permission
checks from a local cache.`,
		Version:      version,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config file")

	cmd.AddCommand(newLoginCmd(&configPath))
	cmd.AddCommand(newLogoutCmd(&configPath))
	cmd.AddCommand(newSwitchCmd(&configPath))
	cmd.AddCommand(newWhoamiCmd(&configPath))
	cmd.AddCommand(newPermissionsCmd(&configPath))

	return cmd
}

// loadApp builds the application from the config file.
func loadApp(configPath string) (*app.App, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	return app.New(cfg)
}
