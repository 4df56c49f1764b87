package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/platinummonkey/docket/pkg/audit"
	"github.com/platinummonkey/docket/pkg/auth"
	"github.com/platinummonkey/docket/pkg/departments"
	"github.com/platinummonkey/docket/pkg/rbac"
)

const passwordEnv = "DOCKET_ADMIN_PASSWORD"

func newUserCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "user",
		Aliases: []string{"users"},
		Short:   "Manage user accounts",
	}
	cmd.AddCommand(newUserCreateCommand(opts))
	cmd.AddCommand(newUserListCommand(opts))
	cmd.AddCommand(newUserDeactivateCommand(opts))
	cmd.AddCommand(newUserPasswordCommand(opts))
	return cmd
}

type userInput struct {
	email      string
	name       string
	role       string
	department string // code
	password   string
}

func (in userInput) validate() error {
	if !auth.Role(strings.ToUpper(in.role)).Valid() {
		return fmt.Errorf("invalid role %q", in.role)
	}
	if in.password == "" {
		return fmt.Errorf("a password is required: pass --password or set %s", passwordEnv)
	}
	return nil
}

func newUserCreateCommand(opts *RootOptions) *cobra.Command {
	var in userInput
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an active user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			in.password = orEnv(in.password, passwordEnv)
			if err := in.validate(); err != nil {
				return WrapExitError(ExitCommandError, "invalid user", err)
			}
			return withEnv(cmd, opts, func(ctx context.Context, e *env) error {
				u, err := createUser(ctx, e, in)
				if err != nil {
					return err
				}
				return e.out.message(u, "Created %s %s (%s)", u.Role, u.Email, u.ID)
			})
		},
	}
	cmd.Flags().StringVar(&in.email, "email", "", "login email (required)")
	cmd.Flags().StringVar(&in.name, "name", "", "display name")
	cmd.Flags().StringVar(&in.role, "role", string(auth.RoleUser), "role: ADMIN, ATTORNEY, PARALEGAL, CLIENT_DEPT or USER")
	cmd.Flags().StringVar(&in.department, "department", "", "department code")
	cmd.Flags().StringVar(&in.password, "password", "", "initial password (default $"+passwordEnv+")")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func createUser(ctx context.Context, e *env, in userInput) (*auth.User, error) {
	u := &auth.User{
		Email:  in.email,
		Name:   in.name,
		Role:   auth.Role(strings.ToUpper(in.role)),
		Active: true,
	}
	if u.Name == "" {
		u.Name = in.email
	}
	if in.department != "" {
		d, err := departments.NewStore(e.conns.Primary()).GetByCode(ctx, in.department)
		if err != nil {
			return nil, WrapExitError(ExitFailure, "unknown department "+in.department, err)
		}
		u.DepartmentID = d.ID
	}

	hash, err := auth.HashPassword(in.password)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid password", err)
	}
	u.PasswordHash = hash

	if err := auth.NewStore(e.conns.Primary()).CreateUser(ctx, u); err != nil {
		return nil, WrapExitError(ExitFailure, "failed to create user", err)
	}
	e.record(ctx, audit.Event{
		Action:       rbac.OpUserManage.String(),
		EntityType:   audit.EntityUser,
		EntityID:     u.ID,
		DepartmentID: u.DepartmentID,
		Description:  "created user " + u.Email,
		Metadata:     map[string]interface{}{"role": string(u.Role)},
	})
	return u, nil
}

func newUserListCommand(opts *RootOptions) *cobra.Command {
	var department string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List users",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd, opts, func(ctx context.Context, e *env) error {
				var departmentID string
				if department != "" {
					d, err := departments.NewStore(e.conns.Primary()).GetByCode(ctx, department)
					if err != nil {
						return WrapExitError(ExitFailure, "unknown department "+department, err)
					}
					departmentID = d.ID
				}
				users, err := auth.NewStore(e.conns.Primary()).ListUsers(ctx, departmentID)
				if err != nil {
					return WrapExitError(ExitFailure, "failed to list users", err)
				}
				rows := make([][]string, 0, len(users))
				for _, u := range users {
					state := "active"
					if !u.Active {
						state = "inactive"
					}
					rows = append(rows, []string{u.Email, string(u.Role), u.DepartmentID, state, u.ID})
				}
				return e.out.table(users, []string{"EMAIL", "ROLE", "DEPARTMENT", "STATE", "ID"}, rows)
			})
		},
	}
	cmd.Flags().StringVar(&department, "department", "", "only users in this department code")
	return cmd
}

func newUserDeactivateCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "deactivate <user-id>",
		Short: "Deactivate a user and revoke their sessions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd, opts, func(ctx context.Context, e *env) error {
				inactive := false
				u, err := auth.NewStore(e.conns.Primary()).UpdateUser(ctx, args[0], auth.UserUpdate{Active: &inactive})
				if err != nil {
					return WrapExitError(ExitFailure, "failed to deactivate user", err)
				}
				e.record(ctx, audit.Event{
					Action:       rbac.OpUserManage.String(),
					EntityType:   audit.EntityUser,
					EntityID:     u.ID,
					DepartmentID: u.DepartmentID,
					Description:  "deactivated user " + u.Email,
					Metadata:     map[string]interface{}{"active": false},
				})
				return e.out.message(u, "Deactivated %s", u.Email)
			})
		},
	}
}

func newUserPasswordCommand(opts *RootOptions) *cobra.Command {
	var password string
	cmd := &cobra.Command{
		Use:   "set-password <user-id>",
		Short: "Replace a user's password",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			password = orEnv(password, passwordEnv)
			hash, err := auth.HashPassword(password)
			if err != nil {
				return WrapExitError(ExitCommandError, "invalid password", err)
			}
			return withEnv(cmd, opts, func(ctx context.Context, e *env) error {
				users := auth.NewStore(e.conns.Primary())
				if err := users.SetPassword(ctx, args[0], hash); err != nil {
					return WrapExitError(ExitFailure, "failed to set password", err)
				}
				revoked, err := users.RevokeUserSessions(ctx, args[0])
				if err != nil {
					return WrapExitError(ExitFailure, "failed to revoke sessions", err)
				}
				e.record(ctx, audit.Event{
					Action:      rbac.OpUserManage.String(),
					EntityType:  audit.EntityUser,
					EntityID:    args[0],
					Description: "reset password",
					Metadata:    map[string]interface{}{"revokedSessions": revoked},
				})
				return e.out.message(map[string]interface{}{"id": args[0], "revokedSessions": revoked},
					"Password replaced; %d sessions revoked", revoked)
			})
		},
	}
	cmd.Flags().StringVar(&password, "password", "", "new password (default $"+passwordEnv+")")
	return cmd
}
