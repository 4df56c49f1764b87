package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/platinummonkey/docket/pkg/audit"
	"github.com/platinummonkey/docket/pkg/config"
	"github.com/platinummonkey/docket/pkg/storage"
)

const auditSource = "docket-admin"

// env is what a command needs once flags are parsed
type env struct {
	opts     *RootOptions
	cfg      *config.Config
	conns    *storage.ConnectionManager
	log      *logrus.Logger
	recorder *audit.Recorder
	out      printer
	sink     audit.Logger
}

func loadConfig(opts *RootOptions) (*config.Config, error) {
	var cfg *config.Config
	if opts.ConfigPath != "" {
		loaded, err := config.LoadConfig(opts.ConfigPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	} else {
		cfg = config.FromEnv()
	}
	if opts.DBURL != "" {
		cfg.Storage.PostgresURL = opts.DBURL
	}
	return cfg, nil
}

func connectionConfig(opts *RootOptions, cfg *config.Config) (storage.ConnectionConfig, error) {
	if opts.SQLitePath != "" {
		return storage.ConnectionConfig{
			Driver:     "sqlite3",
			PrimaryURL: opts.SQLitePath,
			MaxConns:   1,
			MinConns:   1,
		}, nil
	}
	if cfg.Storage.PostgresURL == "" {
		return storage.ConnectionConfig{}, fmt.Errorf("no database: set --db-url, DOCKET_POSTGRES_URL or --sqlite")
	}
	conn := storage.ConnectionConfigFrom(cfg.Storage)
	// replicas are never needed for administration
	conn.ReplicaURLs = nil
	return conn, nil
}

// openEnv loads configuration and connects to the database
func openEnv(cmd *cobra.Command, opts *RootOptions) (*env, error) {
	log := logrus.New()
	log.SetOutput(cmd.ErrOrStderr())
	log.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true})
	log.SetLevel(logrus.WarnLevel)
	if opts.Verbose {
		log.SetLevel(logrus.DebugLevel)
	}

	cfg, err := loadConfig(opts)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load configuration", err)
	}
	connCfg, err := connectionConfig(opts, cfg)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid connection settings", err)
	}
	conns, err := storage.NewConnectionManager(connCfg, log)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to connect to database", err)
	}

	e := &env{
		opts:  opts,
		cfg:   cfg,
		conns: conns,
		log:   log,
		out:   printer{format: opts.Format, w: cmd.OutOrStdout()},
		sink:  opts.AuditSink,
	}
	return e, nil
}

// startAudit opens the audit sink: the audit_logs table for PostgreSQL, or
// a JSON lines directory beside an embedded database
func (e *env) startAudit(ctx context.Context) error {
	if e.sink == nil {
		sink, err := e.openSink()
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to open audit log", err)
		}
		e.sink = sink
	}
	e.recorder = audit.NewRecorder(ctx, e.sink, e.log, audit.RecorderConfig{Workers: 1, QueueSize: 16})
	return nil
}

func (e *env) openSink() (audit.Logger, error) {
	if e.opts.SQLitePath != "" {
		fileCfg := audit.DefaultFileLoggerConfig()
		fileCfg.BasePath = e.opts.SQLitePath + ".audit"
		return audit.NewFileLogger(fileCfg, e.log)
	}
	return audit.NewDBLogger(e.conns.Primary())
}

// record writes a granted audit record for an administrative change before
// the command returns
func (e *env) record(ctx context.Context, ev audit.Event) {
	if e.recorder == nil {
		return
	}
	if ev.Metadata == nil {
		ev.Metadata = map[string]interface{}{}
	}
	ev.Metadata["source"] = auditSource
	e.recorder.Granted(ctx, nil, ev)
	e.recorder.Flush(5 * time.Second)
}

func (e *env) close() {
	if e.recorder != nil {
		if err := e.recorder.Close(5 * time.Second); err != nil {
			e.log.WithError(err).Warn("Audit records may have been dropped")
		}
	}
	if err := e.conns.Close(); err != nil {
		e.log.WithError(err).Warn("Failed to close database")
	}
}

// withEnv opens the environment, makes sure the schema is current and runs fn
func withEnv(cmd *cobra.Command, opts *RootOptions, fn func(ctx context.Context, e *env) error) error {
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
	if err := e.startAudit(ctx); err != nil {
		return err
	}
	return fn(ctx, e)
}

// orEnv returns value, or the environment variable key when value is empty
func orEnv(value, key string) string {
	if value != "" {
		return value
	}
	return os.Getenv(key)
}
