package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/platinummonkey/docket/pkg/auth"
	"github.com/platinummonkey/docket/pkg/departments"
)

// SeedResult reports what seed created
type SeedResult struct {
	Seeded     bool                    `json:"seeded"`
	Department *departments.Department `json:"department,omitempty"`
	Admin      *auth.User              `json:"admin,omitempty"`
}

func newSeedCommand(opts *RootOptions) *cobra.Command {
	var deptCode, deptName string
	var in userInput
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Create the first department and administrator",
		Long: `Create the first department and an ADMIN account in it.

Seed does nothing when any user already exists, so it is safe to run on
every deployment.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			in.role = string(auth.RoleAdmin)
			in.department = deptCode
			in.password = orEnv(in.password, passwordEnv)
			if err := in.validate(); err != nil {
				return WrapExitError(ExitCommandError, "invalid administrator", err)
			}
			return withEnv(cmd, opts, func(ctx context.Context, e *env) error {
				result, err := seed(ctx, e, deptName, in)
				if err != nil {
					return err
				}
				if !result.Seeded {
					return e.out.message(result, "Users already exist; nothing to seed")
				}
				return e.out.message(result, "Created department %s and administrator %s",
					result.Department.Code, result.Admin.Email)
			})
		},
	}
	cmd.Flags().StringVar(&deptCode, "department-code", "", "code of the first department (required)")
	cmd.Flags().StringVar(&deptName, "department-name", "", "name of the first department (required)")
	cmd.Flags().StringVar(&in.email, "email", "", "administrator email (required)")
	cmd.Flags().StringVar(&in.name, "name", "Administrator", "administrator display name")
	cmd.Flags().StringVar(&in.password, "password", "", "administrator password (default $"+passwordEnv+")")
	_ = cmd.MarkFlagRequired("department-code")
	_ = cmd.MarkFlagRequired("department-name")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func seed(ctx context.Context, e *env, deptName string, in userInput) (*SeedResult, error) {
	existing, err := auth.NewStore(e.conns.Primary()).ListUsers(ctx, "")
	if err != nil {
		return nil, WrapExitError(ExitFailure, "failed to check for users", err)
	}
	if len(existing) > 0 {
		return &SeedResult{}, nil
	}

	d, err := departments.NewStore(e.conns.Primary()).GetByCode(ctx, in.department)
	switch {
	case errors.Is(err, departments.ErrNotFound):
		if d, err = createDepartment(ctx, e, deptName, in.department); err != nil {
			return nil, err
		}
	case err != nil:
		return nil, WrapExitError(ExitFailure, fmt.Sprintf("failed to look up department %s", in.department), err)
	}

	admin, err := createUser(ctx, e, in)
	if err != nil {
		return nil, err
	}
	return &SeedResult{Seeded: true, Department: d, Admin: admin}, nil
}
