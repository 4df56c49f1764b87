package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/platinummonkey/docket/pkg/observability"
	"github.com/platinummonkey/docket/pkg/storage"
)

// Config holds all application configuration
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Storage       storage.Config      `yaml:"storage"`
	Auth          AuthConfig          `yaml:"auth"`
	Audit         AuditConfig         `yaml:"audit"`
	FOIL          FOILConfig          `yaml:"foil"`
	Jobs          JobsConfig          `yaml:"jobs"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            string        `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	MaxUploadBytes  int64         `yaml:"max_upload_bytes"`

	// Health/metrics server (separate port for k8s probes)
	HealthPort string `yaml:"health_port"`
}

// AuthConfig holds session and login settings
type AuthConfig struct {
	TokenSecret string        `yaml:"token_secret"`
	SessionTTL  time.Duration `yaml:"session_ttl"`
	// LoginRate is the sustained login attempts per minute allowed per IP
	// and per email
	LoginRate  int `yaml:"login_rate"`
	LoginBurst int `yaml:"login_burst"`
	// LoginFailureAlert is the failure count per email inside the rate window
	// after which failures are recorded as CRITICAL
	LoginFailureAlert int `yaml:"login_failure_alert"`
}

// AuditConfig holds audit pipeline settings
type AuditConfig struct {
	FilePath     string        `yaml:"file_path"`
	Workers      int           `yaml:"workers"`
	QueueSize    int           `yaml:"queue_size"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	SyncTimeout  time.Duration `yaml:"sync_timeout"`
	// Retention is how long records are kept; zero keeps them forever
	Retention time.Duration `yaml:"retention"`
}

// FOILConfig holds FOIL deadline settings
type FOILConfig struct {
	// Holidays are skipped when counting business days, as YYYY-MM-DD
	Holidays []string `yaml:"holidays"`
}

// JobsConfig holds cron schedules for background jobs. An empty schedule
// disables the job.
type JobsConfig struct {
	AuditRetention string `yaml:"audit_retention"`
	FOILOverdue    string `yaml:"foil_overdue"`
	SessionCleanup string `yaml:"session_cleanup"`
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	// Logging
	LogLevel string `yaml:"log_level"`

	// Metrics
	MetricsEnabled bool `yaml:"metrics_enabled"`

	// OpenTelemetry
	OTelEnabled        bool    `yaml:"otel_enabled"`
	OTelEndpoint       string  `yaml:"otel_endpoint"`
	OTelServiceName    string  `yaml:"otel_service_name"`
	OTelServiceVersion string  `yaml:"otel_service_version"`
	OTelInsecure       bool    `yaml:"otel_insecure"` // Use insecure gRPC connection
	OTelSampleRatio    float64 `yaml:"otel_sample_ratio"`
}

// Level returns the parsed log level
func (o ObservabilityConfig) Level() observability.LogLevel {
	return observability.ParseLogLevel(o.LogLevel)
}

// Default returns the configuration used when neither a file nor the
// environment sets a value
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            "8080",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    60 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
			MaxUploadBytes:  100 << 20,
			HealthPort:      "9090",
		},
		Storage: storage.DefaultConfig(),
		Auth: AuthConfig{
			SessionTTL:        12 * time.Hour,
			LoginRate:         10,
			LoginBurst:        5,
			LoginFailureAlert: 5,
		},
		Audit: AuditConfig{
			Workers:      4,
			QueueSize:    1024,
			WriteTimeout: 5 * time.Second,
			SyncTimeout:  2 * time.Second,
			Retention:    7 * 365 * 24 * time.Hour,
		},
		Jobs: JobsConfig{
			AuditRetention: "0 3 * * *",
			FOILOverdue:    "0 7 * * 1-5",
			SessionCleanup: "*/30 * * * *",
		},
		Observability: ObservabilityConfig{
			LogLevel:           "info",
			MetricsEnabled:     true,
			OTelEndpoint:       "localhost:4317",
			OTelServiceName:    "docketd",
			OTelServiceVersion: "1.0.0",
			OTelInsecure:       true,
			OTelSampleRatio:    1,
		},
	}
}

// LoadConfig loads defaults, then the YAML file at path when path is not
// empty, then DOCKET_* environment overrides, and validates the result
func LoadConfig(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// FromEnv returns the defaults with DOCKET_* overrides applied. The result is
// not validated; docket-admin uses it when it only needs part of the
// configuration.
func FromEnv() *Config {
	cfg := Default()
	cfg.applyEnv()
	return cfg
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	s := &c.Server
	s.Host = getEnv("DOCKET_HOST", s.Host)
	s.Port = getEnv("DOCKET_PORT", s.Port)
	s.ReadTimeout = getEnvDuration("DOCKET_READ_TIMEOUT", s.ReadTimeout)
	s.WriteTimeout = getEnvDuration("DOCKET_WRITE_TIMEOUT", s.WriteTimeout)
	s.IdleTimeout = getEnvDuration("DOCKET_IDLE_TIMEOUT", s.IdleTimeout)
	s.ShutdownTimeout = getEnvDuration("DOCKET_SHUTDOWN_TIMEOUT", s.ShutdownTimeout)
	s.MaxUploadBytes = getEnvInt64("DOCKET_MAX_UPLOAD_BYTES", s.MaxUploadBytes)
	s.HealthPort = getEnv("DOCKET_HEALTH_PORT", s.HealthPort)

	st := &c.Storage
	st.PostgresURL = getEnv("DOCKET_POSTGRES_URL", st.PostgresURL)
	if replicas := getEnv("DOCKET_POSTGRES_REPLICA_URLS", ""); replicas != "" {
		st.PostgresReplicaURLs = splitList(replicas)
	}
	st.PostgresMaxConns = getEnvInt("DOCKET_POSTGRES_MAX_CONNS", st.PostgresMaxConns)
	st.PostgresMinConns = getEnvInt("DOCKET_POSTGRES_MIN_CONNS", st.PostgresMinConns)
	st.PostgresTimeout = getEnvDuration("DOCKET_POSTGRES_TIMEOUT", st.PostgresTimeout)
	st.BlobBackend = getEnv("DOCKET_BLOB_BACKEND", st.BlobBackend)
	st.FilesystemRoot = getEnv("DOCKET_FILESYSTEM_ROOT", st.FilesystemRoot)
	st.S3Endpoint = getEnv("DOCKET_S3_ENDPOINT", st.S3Endpoint)
	st.S3Region = getEnv("DOCKET_S3_REGION", st.S3Region)
	st.S3Bucket = getEnv("DOCKET_S3_BUCKET", st.S3Bucket)
	st.S3AccessKey = getEnv("DOCKET_S3_ACCESS_KEY", st.S3AccessKey)
	st.S3SecretKey = getEnv("DOCKET_S3_SECRET_KEY", st.S3SecretKey)
	st.S3UsePathStyle = getEnvBool("DOCKET_S3_USE_PATH_STYLE", st.S3UsePathStyle)
	st.RedisURL = getEnv("DOCKET_REDIS_URL", st.RedisURL)
	st.RedisPassword = getEnv("DOCKET_REDIS_PASSWORD", st.RedisPassword)
	st.RedisDB = getEnvInt("DOCKET_REDIS_DB", st.RedisDB)
	st.RedisMaxRetries = getEnvInt("DOCKET_REDIS_MAX_RETRIES", st.RedisMaxRetries)
	st.RedisPoolSize = getEnvInt("DOCKET_REDIS_POOL_SIZE", st.RedisPoolSize)
	st.CacheEnabled = getEnvBool("DOCKET_CACHE_ENABLED", st.CacheEnabled)
	st.L1CacheSize = getEnvInt("DOCKET_L1_CACHE_SIZE", st.L1CacheSize)

	a := &c.Auth
	a.TokenSecret = getEnv("DOCKET_TOKEN_SECRET", a.TokenSecret)
	a.SessionTTL = getEnvDuration("DOCKET_SESSION_TTL", a.SessionTTL)
	a.LoginRate = getEnvInt("DOCKET_LOGIN_RATE", a.LoginRate)
	a.LoginBurst = getEnvInt("DOCKET_LOGIN_BURST", a.LoginBurst)

	au := &c.Audit
	au.FilePath = getEnv("DOCKET_AUDIT_FILE_PATH", au.FilePath)
	au.Workers = getEnvInt("DOCKET_AUDIT_WORKERS", au.Workers)
	au.Retention = getEnvDuration("DOCKET_AUDIT_RETENTION", au.Retention)

	if holidays := getEnv("DOCKET_FOIL_HOLIDAYS", ""); holidays != "" {
		c.FOIL.Holidays = splitList(holidays)
	}

	o := &c.Observability
	o.LogLevel = getEnv("DOCKET_LOG_LEVEL", o.LogLevel)
	o.MetricsEnabled = getEnvBool("DOCKET_METRICS_ENABLED", o.MetricsEnabled)
	o.OTelEnabled = getEnvBool("DOCKET_OTEL_ENABLED", o.OTelEnabled)
	o.OTelEndpoint = getEnv("DOCKET_OTEL_ENDPOINT", o.OTelEndpoint)
	o.OTelServiceName = getEnv("DOCKET_OTEL_SERVICE_NAME", o.OTelServiceName)
	o.OTelServiceVersion = getEnv("DOCKET_OTEL_SERVICE_VERSION", o.OTelServiceVersion)
	o.OTelInsecure = getEnvBool("DOCKET_OTEL_INSECURE", o.OTelInsecure)
	o.OTelSampleRatio = getEnvFloat("DOCKET_OTEL_SAMPLE_RATIO", o.OTelSampleRatio)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port == "" {
		errs = append(errs, errors.New("server port is required"))
	}
	if c.Server.HealthPort == "" {
		errs = append(errs, errors.New("health port is required"))
	}
	if c.Server.Port != "" && c.Server.Port == c.Server.HealthPort {
		errs = append(errs, errors.New("server port and health port must be different"))
	}

	if c.Storage.PostgresURL == "" {
		errs = append(errs, errors.New("postgres URL is required"))
	}
	switch c.Storage.BlobBackend {
	case "filesystem":
		if c.Storage.FilesystemRoot == "" {
			errs = append(errs, errors.New("filesystem root is required for filesystem blob storage"))
		}
	case "s3":
		if c.Storage.S3Bucket == "" {
			errs = append(errs, errors.New("S3 bucket is required for s3 blob storage"))
		}
	default:
		errs = append(errs, fmt.Errorf("invalid blob backend: %s (must be filesystem or s3)", c.Storage.BlobBackend))
	}

	if len(c.Auth.TokenSecret) < 32 {
		errs = append(errs, errors.New("token secret must be at least 32 bytes"))
	}
	if c.Auth.SessionTTL <= 0 {
		errs = append(errs, errors.New("session TTL must be positive"))
	}
	if c.Auth.LoginRate <= 0 || c.Auth.LoginBurst <= 0 {
		errs = append(errs, errors.New("login rate and burst must be positive"))
	}

	for _, day := range c.FOIL.Holidays {
		if _, err := time.Parse("2006-01-02", day); err != nil {
			errs = append(errs, fmt.Errorf("invalid FOIL holiday %q: expected YYYY-MM-DD", day))
		}
	}

	if c.Observability.OTelEnabled {
		if c.Observability.OTelEndpoint == "" {
			errs = append(errs, errors.New("OpenTelemetry endpoint is required when OTel is enabled"))
		}
		if c.Observability.OTelServiceName == "" {
			errs = append(errs, errors.New("OpenTelemetry service name is required when OTel is enabled"))
		}
	}

	return errors.Join(errs...)
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvInt64 returns an int64 environment variable or a default
func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
