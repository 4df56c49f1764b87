package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/platinummonkey/docket/pkg/audit"
)

// RootOptions holds global flags for all commands
type RootOptions struct {
	ConfigPath string
	DBURL      string
	SQLitePath string
	Format     string // "text" | "json"
	Verbose    bool

	// AuditSink replaces the database audit sink, for tests
	AuditSink audit.Logger
}

// ValidFormats defines the allowed output formats
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the docket-admin command tree
func NewRootCommand() *cobra.Command {
	return newRootCommand(&RootOptions{})
}

func newRootCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "docket-admin",
		Short: "Administer a docket database",
		Long:  "Operator tool for docket: schema migrations, bootstrap, departments, users and maintenance jobs.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			if opts.DBURL != "" && opts.SQLitePath != "" {
				return fmt.Errorf("--db-url and --sqlite are mutually exclusive")
			}
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "", "path to docketd YAML config")
	cmd.PersistentFlags().StringVar(&opts.DBURL, "db-url", "", "PostgreSQL URL (default $DOCKET_POSTGRES_URL)")
	cmd.PersistentFlags().StringVar(&opts.SQLitePath, "sqlite", "", "path to an embedded SQLite database")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")

	cmd.AddCommand(newMigrateCommand(opts))
	cmd.AddCommand(newSeedCommand(opts))
	cmd.AddCommand(newDepartmentCommand(opts))
	cmd.AddCommand(newUserCommand(opts))
	cmd.AddCommand(newJobsCommand(opts))

	return cmd
}

func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}
