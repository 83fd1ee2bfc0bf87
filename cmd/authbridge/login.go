package main

import (
	"context"
	"time"

	"github.com/briandowns/spinner"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/authbridge/authbridge/pkg/session"
)

func newLoginCmd(configPath *string) *cobra.Command {
	var (
		username   string
		password   string
		useBrowser bool
	)

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Authenticate against the global context",
		Long: `Authenticate against the backend's global context.

By default credentials are prompted for and sent to the backend's login
endpoint. With --browser the OAuth2 authorization code flow runs through
your system browser instead.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(*configPath)
			if err != nil {
				return err
			}

			ctx := context.Background()

			var st *session.State
			if useBrowser {
				s := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
				s.Suffix = " Waiting for browser authorization..."
				s.Start()
				st, err = a.Client.LoginWithBrowser(ctx, &a.Config.OAuth2)
				s.Stop()
			} else {
				if username == "" {
					username, err = pterm.DefaultInteractiveTextInput.Show("Username")
					if err != nil {
						return err
					}
				}
				if password == "" {
					password, err = pterm.DefaultInteractiveTextInput.WithMask("*").Show("Password")
					if err != nil {
						return err
					}
				}
				st, err = a.Client.Login(ctx, username, password)
			}
			if err != nil {
				return err
			}

			name := "unknown"
			if st.User != nil {
				name = st.User.Username
				if name == "" {
					name = st.User.Subject
				}
			}
			pterm.Success.Printf("Logged in as %s (global context)\n", name)
			return nil
		},
	}

	cmd.Flags().StringVarP(&username, "username", "u", "", "Username (prompted when omitted)")
	cmd.Flags().StringVarP(&password, "password", "p", "", "Password (prompted when omitted)")
	cmd.Flags().BoolVar(&useBrowser, "browser", false, "Use the OAuth2 browser flow")

	return cmd
}
