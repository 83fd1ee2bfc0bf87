package main

import (
	"os"
	"strings"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/authbridge/authbridge/pkg/output"
	"github.com/authbridge/authbridge/pkg/redact"
	"github.com/authbridge/authbridge/pkg/session"
)

func newWhoamiCmd(configPath *string) *cobra.Command {
	var outputFormat string

	cmd := &cobra.Command{
		Use:   "whoami",
		Short: "Show the active context and identity",
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := output.ParseFormat(outputFormat)
			if err != nil {
				return err
			}

			a, err := loadApp(*configPath)
			if err != nil {
				return err
			}

			mode := a.Sessions.CurrentMode()
			st, ok := a.Sessions.State(mode)
			if !ok {
				pterm.Warning.Printf("No active session for the %s context. Run 'authbridge login'.\n", mode)
				return nil
			}

			type identity struct {
				Context  string   `json:"context" yaml:"context"`
				Tenant   string   `json:"tenant,omitempty" yaml:"tenant,omitempty"`
				Subject  string   `json:"subject,omitempty" yaml:"subject,omitempty"`
				Username string   `json:"username,omitempty" yaml:"username,omitempty"`
				Email    string   `json:"email,omitempty" yaml:"email,omitempty"`
				Roles    []string `json:"roles,omitempty" yaml:"roles,omitempty"`
				Token    string   `json:"token,omitempty" yaml:"token,omitempty"`
				Expires  string   `json:"expires,omitempty" yaml:"expires,omitempty"`
			}

			id := identity{Context: string(mode)}
			if mode == session.ModeTenant {
				id.Tenant = st.TenantID
			}
			if st.User != nil {
				id.Subject = st.User.Subject
				id.Username = st.User.Username
				id.Email = st.User.Email
			}
			id.Roles = st.Roles
			if st.Tokens != nil {
				id.Token = redact.Token(st.Tokens.AccessToken)
				if !st.Tokens.ExpiresAt.IsZero() {
					id.Expires = st.Tokens.ExpiresAt.Format(time.RFC3339)
				}
			}

			rows := pterm.TableData{{"Field", "Value"}}
			rows = append(rows, []string{"Context", id.Context})
			if id.Tenant != "" {
				rows = append(rows, []string{"Tenant", id.Tenant})
			}
			if id.Subject != "" {
				rows = append(rows, []string{"Subject", id.Subject})
			}
			if id.Username != "" {
				rows = append(rows, []string{"Username", id.Username})
			}
			if id.Email != "" {
				rows = append(rows, []string{"Email", id.Email})
			}
			if len(id.Roles) > 0 {
				rows = append(rows, []string{"Roles", strings.Join(id.Roles, ", ")})
			}
			if id.Token != "" {
				rows = append(rows, []string{"Token", id.Token})
			}
			if id.Expires != "" {
				rows = append(rows, []string{"Expires", id.Expires})
			}

			return output.NewPrinter(os.Stdout, format).Print(id, rows)
		},
	}

	cmd.Flags().StringVarP(&outputFormat, "output", "o", "table", "Output format (table, json, yaml)")

	return cmd
}
