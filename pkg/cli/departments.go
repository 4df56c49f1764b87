package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/platinummonkey/docket/pkg/audit"
	"github.com/platinummonkey/docket/pkg/departments"
	"github.com/platinummonkey/docket/pkg/rbac"
)

func newDepartmentCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "department",
		Aliases: []string{"departments", "dept"},
		Short:   "Manage departments",
	}
	cmd.AddCommand(newDepartmentCreateCommand(opts))
	cmd.AddCommand(newDepartmentListCommand(opts))
	return cmd
}

func newDepartmentCreateCommand(opts *RootOptions) *cobra.Command {
	var name, code string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a department",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd, opts, func(ctx context.Context, e *env) error {
				d, err := createDepartment(ctx, e, name, code)
				if err != nil {
					return err
				}
				return e.out.message(d, "Created department %s (%s)", d.Code, d.ID)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "department name (required)")
	cmd.Flags().StringVar(&code, "code", "", "department code used in case numbers (required)")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("code")
	return cmd
}

func createDepartment(ctx context.Context, e *env, name, code string) (*departments.Department, error) {
	d := &departments.Department{Name: name, Code: code}
	if err := departments.NewStore(e.conns.Primary()).Create(ctx, d); err != nil {
		return nil, WrapExitError(ExitFailure, "failed to create department", err)
	}
	e.record(ctx, audit.Event{
		Action:       rbac.OpDepartmentManage.String(),
		EntityType:   audit.EntityDepartment,
		EntityID:     d.ID,
		DepartmentID: d.ID,
		Description:  "created department " + d.Code,
		Metadata:     map[string]interface{}{"code": d.Code},
	})
	return d, nil
}

func newDepartmentListCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List departments",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd, opts, func(ctx context.Context, e *env) error {
				list, err := departments.NewStore(e.conns.Primary()).List(ctx)
				if err != nil {
					return WrapExitError(ExitFailure, "failed to list departments", err)
				}
				rows := make([][]string, 0, len(list))
				for _, d := range list {
					rows = append(rows, []string{d.Code, d.Name, d.ID})
				}
				return e.out.table(list, []string{"CODE", "NAME", "ID"}, rows)
			})
		},
	}
}
