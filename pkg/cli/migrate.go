package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/platinummonkey/docket/pkg/storage"
)

func newMigrateCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv(cmd, opts)
			if err != nil {
				return err
			}
			defer e.close()

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			if err := storage.Migrate(ctx, e.conns.Primary()); err != nil {
				return WrapExitError(ExitFailure, "failed to migrate database", err)
			}

			migrations := storage.GetMigrations()
			version := migrations[len(migrations)-1].Version
			return e.out.message(map[string]int{"version": version}, "Schema is at version %d", version)
		},
	}
}
