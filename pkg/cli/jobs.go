package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/platinummonkey/docket/pkg/audit"
	"github.com/platinummonkey/docket/pkg/auth"
	"github.com/platinummonkey/docket/pkg/foil"
	"github.com/platinummonkey/docket/pkg/jobs"
	"github.com/platinummonkey/docket/pkg/numbering"
	"github.com/platinummonkey/docket/pkg/rbac"
)

func newJobsCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Run maintenance jobs",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List the maintenance jobs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd, opts, func(ctx context.Context, e *env) error {
				s, err := scheduler(e)
				if err != nil {
					return err
				}
				names := s.Names()
				rows := make([][]string, 0, len(names))
				for _, name := range names {
					rows = append(rows, []string{name})
				}
				return e.out.table(names, []string{"JOB"}, rows)
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "run <job>",
		Short: "Run one maintenance job now",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd, opts, func(ctx context.Context, e *env) error {
				s, err := scheduler(e)
				if err != nil {
					return err
				}
				if err := s.RunNow(ctx, args[0]); err != nil {
					if errors.Is(err, jobs.ErrUnknownJob) {
						return WrapExitError(ExitCommandError, "unknown job", fmt.Errorf("%s (see jobs list)", args[0]))
					}
					return WrapExitError(ExitFailure, "job failed", err)
				}
				return e.out.message(map[string]string{"job": args[0], "result": "success"}, "Job %s completed", args[0])
			})
		},
	})
	return cmd
}

// scheduler registers the daemon's jobs without schedules
func scheduler(e *env) (*jobs.Scheduler, error) {
	db := e.conns.Primary()
	s := jobs.NewScheduler(e.log, nil, 0)
	err := jobs.RegisterBuiltins(s, jobs.Deps{
		AuditStore: audit.NewDBStore(e.conns.Replica(), db),
		Recorder:   e.recorder,
		FOIL:       foil.NewService(db, numbering.NewSequencer(), foil.NewCalendar(e.cfg.FOIL.Holidays)),
		Users:      auth.NewStore(db),
		Grants:     rbac.NewStore(db),
		Log:        e.log,
		Retention:  e.cfg.Audit.Retention,
	}, jobs.Schedules{})
	if err != nil {
		return nil, WrapExitError(ExitFailure, "failed to register jobs", err)
	}
	return s, nil
}
