package main

import (
	"context"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/authbridge/authbridge/pkg/session"
)

func newLogoutCmd(configPath *string) *cobra.Command {
	var preserveGlobal bool

	cmd := &cobra.Command{
		Use:   "logout",
		Short: "End the active context",
		Long: `End the active authentication context.

Logout always succeeds locally: the backend is notified best-effort, and
stored tokens are cleared regardless. With --preserve-global a tenant
logout keeps the global context alive and switches back to it.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(*configPath)
			if err != nil {
				return err
			}

			mode := a.Sessions.CurrentMode()
			if err := a.Client.Logout(context.Background(), preserveGlobal); err != nil {
				return err
			}

			if mode == session.ModeTenant && preserveGlobal {
				pterm.Success.Println("Logged out of tenant context, global context is active")
				return nil
			}
			pterm.Success.Println("Logged out")
			return nil
		},
	}

	cmd.Flags().BoolVar(&preserveGlobal, "preserve-global", false, "Keep the global context when logging out of a tenant")

	return cmd
}
