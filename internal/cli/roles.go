package cli

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"correction-workflow/internal/config"
	"correction-workflow/internal/workflow"
)

// rolesOptions holds options for the roles command.
type rolesOptions struct {
	file       string
	userRole   string
	outputJSON bool
}

func (a *App) newRolesCmd() *cobra.Command {
	opts := &rolesOptions{}

	cmd := &cobra.Command{
		Use:   "roles",
		Short: "Show the role mapping used to match approvers",
		Long: `Print every workflow role with the user-role spellings that satisfy it.

With --user-role, print only the workflow roles that spelling satisfies.

Examples:
  approvalctl roles
  approvalctl roles --file roles.yaml --user-role "หัวหน้าแผนก"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.showRoles(opts)
		},
	}

	cmd.Flags().StringVarP(&opts.file, "file", "f", "", "Role mapping YAML file (defaults to the built-in mapping)")
	cmd.Flags().StringVar(&opts.userRole, "user-role", "", "Only show roles satisfied by this user role")
	cmd.Flags().BoolVar(&opts.outputJSON, "json", false, "Output as JSON")

	return cmd
}

func (a *App) showRoles(opts *rolesOptions) error {
	mapping, err := config.LoadRoleMapping(opts.file)
	if err != nil {
		return fmt.Errorf("failed to load role mapping: %w", err)
	}

	if opts.userRole != "" {
		roles := workflow.NewRoleResolver(mapping).WorkflowRolesFor(opts.userRole)
		if opts.outputJSON {
			return a.printJSON(roles)
		}
		for _, role := range roles {
			fmt.Fprintln(a.stdout, role)
		}
		return nil
	}

	if opts.outputJSON {
		return a.printJSON(mapping)
	}

	names := make([]string, 0, len(mapping))
	for name := range mapping {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(a.stdout, "%s: %s\n", name, strings.Join(mapping[name], ", "))
	}
	return nil
}
