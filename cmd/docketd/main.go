package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/sync/errgroup"

	"github.com/platinummonkey/docket/pkg/api"
	"github.com/platinummonkey/docket/pkg/async"
	"github.com/platinummonkey/docket/pkg/audit"
	"github.com/platinummonkey/docket/pkg/auth"
	"github.com/platinummonkey/docket/pkg/cases"
	"github.com/platinummonkey/docket/pkg/config"
	"github.com/platinummonkey/docket/pkg/departments"
	"github.com/platinummonkey/docket/pkg/documents"
	"github.com/platinummonkey/docket/pkg/foil"
	"github.com/platinummonkey/docket/pkg/jobs"
	"github.com/platinummonkey/docket/pkg/messages"
	"github.com/platinummonkey/docket/pkg/middleware"
	"github.com/platinummonkey/docket/pkg/numbering"
	"github.com/platinummonkey/docket/pkg/observability"
	"github.com/platinummonkey/docket/pkg/rbac"
	"github.com/platinummonkey/docket/pkg/storage"
	"github.com/platinummonkey/docket/pkg/tasks"
	"github.com/platinummonkey/docket/pkg/tenant"
)

// version is set at build time with -ldflags "-X main.version=..."
var version = "dev"

const dbStatsInterval = 15 * time.Second

func main() {
	configPath := flag.String("config", os.Getenv("DOCKET_CONFIG"), "Path to YAML config file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := observability.NewLogger(cfg.Observability.Level(), os.Stdout)
	if err := run(cfg, *configPath, logger); err != nil {
		logger.WithError(err).Error("docketd stopped with an error")
		os.Exit(1)
	}
}

func newOpLog(level string) *logrus.Logger {
	opLog := logrus.New()
	opLog.SetFormatter(&logrus.JSONFormatter{})
	opLog.SetOutput(os.Stderr)
	if lvl, err := logrus.ParseLevel(level); err == nil {
		opLog.SetLevel(lvl)
	}
	return opLog
}

func run(cfg *config.Config, configPath string, logger *observability.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	opLog := newOpLog(cfg.Observability.LogLevel)
	async.SetLogger(opLog)

	otelProviders, err := observability.InitOTel(ctx, observability.OTelConfig{
		Enabled:        cfg.Observability.OTelEnabled,
		Endpoint:       cfg.Observability.OTelEndpoint,
		ServiceName:    cfg.Observability.OTelServiceName,
		ServiceVersion: cfg.Observability.OTelServiceVersion,
		Insecure:       cfg.Observability.OTelInsecure,
		SampleRatio:    cfg.Observability.OTelSampleRatio,
	}, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize OpenTelemetry: %w", err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	var (
		metrics    *observability.Metrics
		registerer prometheus.Registerer
	)
	if cfg.Observability.MetricsEnabled {
		metrics = observability.NewMetrics(registry)
		registerer = registry
	}

	// Storage
	conns, err := storage.NewConnectionManager(storage.ConnectionConfigFrom(cfg.Storage), opLog)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	db := conns.Primary()
	if err := storage.Migrate(ctx, db); err != nil {
		conns.Close()
		return fmt.Errorf("failed to migrate database: %w", err)
	}

	var redisClient *storage.RedisClient
	if cfg.Storage.RedisURL != "" {
		redisClient, err = storage.NewRedisClient(cfg.Storage)
		if err != nil {
			// Counters and caches fall back to this process
			logger.WithError(err).Warn("Redis unavailable, continuing without it")
			redisClient = nil
		}
	}

	rawBlobs, err := storage.NewBlobStore(ctx, cfg.Storage)
	if err != nil {
		conns.Close()
		return fmt.Errorf("failed to initialize blob storage: %w", err)
	}
	blobs := storage.WithMetrics(rawBlobs, cfg.Storage.BlobBackend, metrics)

	// Audit pipeline
	dbSink, err := audit.NewDBLogger(db)
	if err != nil {
		conns.Close()
		return fmt.Errorf("failed to initialize audit log: %w", err)
	}
	sinks := []audit.Logger{dbSink}
	if cfg.Audit.FilePath != "" {
		fileCfg := audit.DefaultFileLoggerConfig()
		fileCfg.BasePath = cfg.Audit.FilePath
		fileSink, err := audit.NewFileLogger(fileCfg, opLog)
		if err != nil {
			conns.Close()
			return fmt.Errorf("failed to open audit file: %w", err)
		}
		sinks = append(sinks, fileSink)
	}
	recorder := audit.NewRecorder(ctx, audit.NewMultiLogger(sinks...), opLog, audit.RecorderConfig{
		Workers:      cfg.Audit.Workers,
		QueueSize:    cfg.Audit.QueueSize,
		WriteTimeout: cfg.Audit.WriteTimeout,
		SyncTimeout:  cfg.Audit.SyncTimeout,
		Registerer:   registerer,
	})
	auditStore := audit.NewDBStore(conns.Replica(), db)

	// Services
	tokens, err := auth.NewTokenManager(cfg.Auth.TokenSecret, cfg.Auth.SessionTTL)
	if err != nil {
		conns.Close()
		return fmt.Errorf("failed to initialize tokens: %w", err)
	}
	users := auth.NewStore(db)
	grants := rbac.NewStore(db)
	checkerCfg := rbac.DefaultCheckerConfig()
	checkerCfg.Registerer = registerer
	seq := numbering.NewSequencer()
	foilSvc := foil.NewService(db, seq, foil.NewCalendar(cfg.FOIL.Holidays))

	throttleCfg := middleware.LoginThrottleConfig{
		PerMinute:    cfg.Auth.LoginRate,
		Burst:        cfg.Auth.LoginBurst,
		FailureAlert: cfg.Auth.LoginFailureAlert,
	}
	if redisClient != nil {
		throttleCfg.Redis = redisClient.Client()
	}

	throttle := middleware.NewLoginThrottle(throttleCfg)
	throttle.StartCleanup(ctx)

	apiServer := api.NewServer(api.Deps{
		DB:          db,
		Auth:        auth.NewAuthenticator(users, tokens),
		Throttle:    throttle,
		Checker:     rbac.NewChecker(grants, checkerCfg),
		Grants:      grants,
		Recorder:    recorder,
		AuditStore:  auditStore,
		Departments: departments.NewStore(db),
		Cases:       cases.NewStore(db),
		Tasks:       tasks.NewStore(db),
		Documents:   documents.NewService(db, blobs, opLog),
		FOIL:        foilSvc,
		Messages:    messages.NewService(db),
		Sequencer:   seq,
		Resolver: tenant.NewResolver(db, cfg.Storage, tenant.ResolverOptions{
			Redis:   redisClient,
			Metrics: metrics,
			Logger:  opLog,
		}),
		Blobs:          blobs,
		Metrics:        metrics,
		Logger:         logger,
		OpLog:          opLog,
		MaxUploadBytes: cfg.Server.MaxUploadBytes,
	})

	// Background jobs
	scheduler := jobs.NewScheduler(opLog, metrics, 0)
	err = jobs.RegisterBuiltins(scheduler, jobs.Deps{
		AuditStore: auditStore,
		Recorder:   recorder,
		FOIL:       foilSvc,
		Users:      users,
		Grants:     grants,
		Metrics:    metrics,
		Log:        opLog,
		Retention:  cfg.Audit.Retention,
	}, jobs.Schedules{
		AuditRetention: cfg.Jobs.AuditRetention,
		FOILOverdue:    cfg.Jobs.FOILOverdue,
		SessionCleanup: cfg.Jobs.SessionCleanup,
	})
	if err != nil {
		conns.Close()
		return fmt.Errorf("failed to register jobs: %w", err)
	}
	scheduler.Start()
	async.SafeGo(ctx, time.Minute, "startup session cleanup", func(ctx context.Context) error {
		return scheduler.RunNow(ctx, jobs.SessionCleanupJob)
	})

	if metrics != nil {
		go recordDBStats(ctx, conns, metrics, logger)
	}

	if configPath != "" {
		applyLevel := config.ApplyLogLevel(logger)
		err := config.Watch(ctx, configPath, logger, func(c *config.Config) {
			applyLevel(c)
			if lvl, err := logrus.ParseLevel(c.Observability.LogLevel); err == nil {
				opLog.SetLevel(lvl)
			}
		})
		if err != nil {
			logger.WithError(err).Warn("Configuration reload is disabled")
		}
	}

	// HTTP servers
	server := &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
		Handler:      otelhttp.NewHandler(apiServer.Handler(), "docketd"),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	health := observability.NewHealthChecker(db, throttleCfg.Redis, version)
	if checker, ok := rawBlobs.(interface{ HealthCheck(context.Context) error }); ok {
		health.AddCheck("blob_storage", checker.HealthCheck, true)
	}
	if len(cfg.Storage.PostgresReplicaURLs) > 0 {
		health.AddCheck("postgres_replicas", conns.HealthCheck, false)
	}
	opsMux := http.NewServeMux()
	observability.RegisterHealthRoutes(opsMux, health)
	if metrics != nil {
		observability.RegisterMetricsEndpoint(opsMux, registry)
	}
	opsServer := &http.Server{
		Addr:              net.JoinHostPort(cfg.Server.Host, cfg.Server.HealthPort),
		Handler:           opsMux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	shutdown := observability.NewShutdownManager(logger, cfg.Server.ShutdownTimeout, server, opsServer)
	shutdown.RegisterShutdownFunc("scheduler", scheduler.Stop)
	shutdown.RegisterShutdownFunc("audit", func(ctx context.Context) error {
		return recorder.Close(remaining(ctx))
	})
	shutdown.RegisterShutdownFunc("otel", func(ctx context.Context) error {
		return observability.ShutdownOTel(ctx, otelProviders, logger)
	})
	if redisClient != nil {
		shutdown.RegisterShutdownFunc("redis", func(context.Context) error {
			return redisClient.Close()
		})
	}
	shutdown.RegisterShutdownFunc("database", func(context.Context) error {
		return conns.Close()
	})

	g, gctx := errgroup.WithContext(ctx)
	for _, srv := range []*http.Server{server, opsServer} {
		g.Go(func() error {
			logger.WithField("addr", srv.Addr).Info("Listening")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("server %s failed: %w", srv.Addr, err)
			}
			return nil
		})
	}
	g.Go(func() error {
		return shutdown.WaitForShutdown(gctx)
	})

	logger.WithFields(map[string]interface{}{
		"version": version,
		"jobs":    scheduler.Names(),
	}).Info("docketd started")
	return g.Wait()
}

// remaining is the time left before ctx's deadline
func remaining(ctx context.Context) time.Duration {
	if deadline, ok := ctx.Deadline(); ok {
		return time.Until(deadline)
	}
	return 5 * time.Second
}

func recordDBStats(ctx context.Context, conns *storage.ConnectionManager, metrics *observability.Metrics, logger *observability.Logger) {
	defer observability.RecoverPanic(logger, "db stats")
	ticker := time.NewTicker(dbStatsInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			metrics.RecordDBStats(conns.Stats())
		}
	}
}
