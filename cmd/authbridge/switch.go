package main

import (
	"context"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

func newSwitchCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "switch",
		Short: "Switch the active authentication context",
	}

	cmd.AddCommand(newSwitchTenantCmd(configPath))
	cmd.AddCommand(newSwitchGlobalCmd(configPath))

	return cmd
}

func newSwitchTenantCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "tenant <tenant-id>",
		Short: "Switch to a tenant context",
		Long: `Switch to a tenant context.

Switching to the tenant that is already established reuses its state
without a network call; switching to a different tenant authenticates
against the backend. The global context is untouched either way.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(*configPath)
			if err != nil {
				return err
			}

			st, err := a.Client.SwitchToTenant(context.Background(), args[0])
			if err != nil {
				return err
			}

			pterm.Success.Printf("Active context: tenant %s\n", st.TenantID)
			return nil
		},
	}
}

func newSwitchGlobalCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "global",
		Short: "Switch to the global context",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(*configPath)
			if err != nil {
				return err
			}

			if _, err := a.Client.SwitchToGlobal(context.Background()); err != nil {
				return err
			}

			pterm.Success.Println("Active context: global")
			return nil
		},
	}
}
