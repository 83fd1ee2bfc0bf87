package main

import (
	"context"
	"os"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/authbridge/authbridge/pkg/output"
)

func newPermissionsCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "permissions",
		Aliases: []string{"perms"},
		Short:   "Inspect permissions of the active context",
	}

	cmd.AddCommand(newPermissionsCheckCmd(configPath))
	cmd.AddCommand(newPermissionsListCmd(configPath))

	return cmd
}

func newPermissionsCheckCmd(configPath *string) *cobra.Command {
	var forceRefresh bool

	cmd := &cobra.Command{
		Use:   "check <object> <action>",
		Short: "Check whether the active context grants an object/action pair",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(*configPath)
			if err != nil {
				return err
			}

			allowed, err := a.Permissions.Check(context.Background(), args[0], args[1], forceRefresh)
			if err != nil {
				return err
			}

			if allowed {
				pterm.Success.Printf("%s %s: allowed\n", args[0], args[1])
			} else {
				pterm.Error.Printf("%s %s: denied\n", args[0], args[1])
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&forceRefresh, "force-refresh", false, "Bypass the cache and refetch from the backend")

	return cmd
}

func newPermissionsListCmd(configPath *string) *cobra.Command {
	var (
		forceRefresh bool
		outputFormat string
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the permissions granted to the active context",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := output.ParseFormat(outputFormat)
			if err != nil {
				return err
			}

			a, err := loadApp(*configPath)
			if err != nil {
				return err
			}

			set, err := a.Permissions.Permissions(context.Background(), forceRefresh)
			if err != nil {
				return err
			}

			if set.Len() == 0 && format == output.FormatTable {
				pterm.Info.Println("No permissions granted")
				return nil
			}

			perms := set.List()
			rows := pterm.TableData{{"Object", "Action"}}
			for _, p := range perms {
				rows = append(rows, []string{p.Object, p.Action})
			}
			return output.NewPrinter(os.Stdout, format).Print(perms, rows)
		},
	}

	cmd.Flags().BoolVar(&forceRefresh, "force-refresh", false, "Bypass the cache and refetch from the backend")
	cmd.Flags().StringVarP(&outputFormat, "output", "o", "table", "Output format (table, json, yaml)")

	return cmd
}
