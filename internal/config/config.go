// Package config provides configuration management for the PDSNO controller.
//
// Configuration is loaded from:
// 1. config.yaml file (optional)
// 2. Environment variables (standard names like DATABASE_URL, SERVER_PORT)
// 3. Default values
//
// Import Path: pdsno.io/controller/internal/config
package config

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// Config is the root configuration structure.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Controller ControllerConfig `mapstructure:"controller"`
	Transport TransportConfig `mapstructure:"transport"`
	Admission AdmissionConfig `mapstructure:"admission"`
	Discovery DiscoveryConfig `mapstructure:"discovery"`
	Approval  ApprovalConfig  `mapstructure:"approval"`
	Log       LogConfig       `mapstructure:"log"`
	River     RiverConfig     `mapstructure:"river"`
	Security  SecurityConfig  `mapstructure:"security"`
	Worker    WorkerConfig    `mapstructure:"worker"`
	Operators []OperatorConfig `mapstructure:"operators"`
}

// OperatorConfig is one named human operator allowed to log into the
// dashboard surface. PDSNO has no self-service account creation: operators
// are provisioned out-of-band and listed here, each with a bcrypt password
// hash rather than a plaintext secret.
type OperatorConfig struct {
	OperatorID   string   `mapstructure:"operator_id"`
	Username     string   `mapstructure:"username"`
	PasswordHash string   `mapstructure:"password_hash"`
	Roles        []string `mapstructure:"roles"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`

	AllowedOrigins        []string `mapstructure:"allowed_origins"`
	AllowCredentials      bool     `mapstructure:"allow_credentials"`
	UnsafeAllowAllOrigins bool     `mapstructure:"unsafe_allow_all_origins"`
}

// DatabaseConfig contains PostgreSQL connection settings.
// The same pool backs the NIB repository and River.
type DatabaseConfig struct {
	URL string `mapstructure:"url"`

	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
	SSLMode  string `mapstructure:"sslmode"`

	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime time.Duration `mapstructure:"max_conn_idle_time"`

	AutoMigrate bool `mapstructure:"auto_migrate"`
}

// DSN returns the PostgreSQL connection string.
// Priority: DATABASE_URL > constructed from individual fields.
func (c DatabaseConfig) DSN() string {
	if c.URL != "" {
		return c.URL
	}
	sslmode := c.SSLMode
	if sslmode == "" {
		sslmode = "disable"
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Database, sslmode,
	)
}

// ControllerConfig identifies this process within the hierarchy:
// which tier it runs as, which region it is scoped to (regional/local tiers
// only), and where its parent lives for the admission handshake.
type ControllerConfig struct {
	Role             string `mapstructure:"role"` // global | regional | local
	Region           string `mapstructure:"region"`
	ParentEndpoint   string `mapstructure:"parent_endpoint"`
	ControllerID     string `mapstructure:"controller_id"`
	NIBBackend       string `mapstructure:"nib_backend"` // postgres | badger
	BadgerPath       string `mapstructure:"badger_path"`
}

// TransportConfig contains shared transport-fabric settings.
type TransportConfig struct {
	RequestTimeout   time.Duration `mapstructure:"request_timeout"`
	RetryMaxAttempts int           `mapstructure:"retry_max_attempts"`
	RetryBaseDelay   time.Duration `mapstructure:"retry_base_delay"`
	RedisAddr        string        `mapstructure:"redis_addr"`
	WebsocketPath    string        `mapstructure:"websocket_path"`
}

// AdmissionConfig contains bootstrap/admission protocol settings.
type AdmissionConfig struct {
	BootstrapSecret string        `mapstructure:"bootstrap_secret"`
	ChallengeTTL    time.Duration `mapstructure:"challenge_ttl"`
	CertificateTTL  time.Duration `mapstructure:"certificate_ttl"`
	FreshnessWindow time.Duration `mapstructure:"freshness_window"`
}

// DiscoveryConfig contains discovery-framework settings.
type DiscoveryConfig struct {
	CycleInterval     time.Duration `mapstructure:"cycle_interval"`
	ProbeTimeout      time.Duration `mapstructure:"probe_timeout"`
	FlakinessWindow   int           `mapstructure:"flakiness_window"` // k consecutive misses before inactive
	Targets           []string      `mapstructure:"targets"`
}

// ApprovalConfig contains approval-engine settings.
type ApprovalConfig struct {
	ExecutionTokenTTL     time.Duration `mapstructure:"execution_token_ttl"`
	RateLimitPerMinute    int           `mapstructure:"rate_limit_per_minute"`
	HighSensitivityForwardsToGlobal bool `mapstructure:"high_forwards_to_global"`
}

// LogConfig contains logging settings.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json or console

	// File, when set, additionally writes logs to a rotated file on disk
	// (the audit/event sink) instead of only stdout. Empty disables file
	// logging.
	File          string `mapstructure:"file"`
	FileMaxSizeMB int    `mapstructure:"file_max_size_mb"`
	FileMaxAgeDay int    `mapstructure:"file_max_age_days"`
	FileMaxBackup int    `mapstructure:"file_max_backups"`
}

// RiverConfig contains River Queue settings.
type RiverConfig struct {
	MaxWorkers                  int           `mapstructure:"max_workers"`
	CompletedJobRetentionPeriod time.Duration `mapstructure:"completed_job_retention_period"`
}

// SecurityConfig contains security-related settings.
// Missing secrets are auto-generated on first boot.
type SecurityConfig struct {
	EncryptionKey       string         `mapstructure:"encryption_key"`
	SessionSecret       string         `mapstructure:"session_secret"`
	JWTVerificationKeys []string       `mapstructure:"jwt_verification_keys"`
	PasswordPolicy      PasswordPolicy `mapstructure:"password_policy"`
}

// PasswordPolicy defines password validation rules for the operator account
// used by the governance HTTP surface.
type PasswordPolicy struct {
	Mode             string `mapstructure:"mode"` // "nist" (default) or "legacy"
	RequireUppercase bool   `mapstructure:"require_uppercase"`
	RequireLowercase bool   `mapstructure:"require_lowercase"`
	RequireDigit     bool   `mapstructure:"require_digit"`
	RequireSpecial   bool   `mapstructure:"require_special"`
}

// WorkerConfig contains worker pool settings.
type WorkerConfig struct {
	GeneralPoolSize   int `mapstructure:"general_pool_size"`
	DiscoveryPoolSize int `mapstructure:"discovery_pool_size"`
}

var (
	bootstrapLoggerOnce sync.Once
	bootstrapLogger     *zap.Logger
)

// Load reads configuration from file and environment variables.
// No prefix: uses standard names like DATABASE_URL, SERVER_PORT, LOG_LEVEL.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/pdsno")

	// Maps nested config: database.max_conns → DATABASE_MAX_CONNS
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config: %w", err)
		}
		// Config file is optional, use defaults and env vars
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.ensureSecrets(); err != nil {
		return nil, fmt.Errorf("ensure secrets: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

// Validate checks for critical configuration errors.
func (c *Config) Validate() error {
	if c.Security.SessionSecret == "" {
		return fmt.Errorf("security.session_secret must not be empty")
	}
	if len(c.Security.SessionSecret) < 32 {
		return fmt.Errorf("security.session_secret must be at least 32 characters")
	}
	switch c.Controller.Role {
	case "global", "regional", "local":
	default:
		return fmt.Errorf("controller.role must be one of global, regional, local, got %q", c.Controller.Role)
	}
	if c.Controller.Role != "global" && c.Controller.Region == "" {
		return fmt.Errorf("controller.region is required for role %q", c.Controller.Role)
	}
	if c.Controller.Role != "global" && c.Controller.ParentEndpoint == "" {
		return fmt.Errorf("controller.parent_endpoint is required for role %q", c.Controller.Role)
	}
	if c.Admission.BootstrapSecret == "" {
		return fmt.Errorf("admission.bootstrap_secret must not be empty")
	}
	return nil
}

// ensureSecrets auto-generates missing secrets on first boot.
func (c *Config) ensureSecrets() error {
	if c.Security.SessionSecret == "" {
		secret, err := generateSecureRandomHex(32)
		if err != nil {
			return fmt.Errorf("auto-generate session secret: %w", err)
		}
		c.Security.SessionSecret = secret
		logBootstrapWarn(
			"auto-generated session_secret; set SECURITY_SESSION_SECRET env var for persistence",
			zap.Int("length", len(secret)),
		)
	}
	if c.Security.EncryptionKey == "" {
		key, err := generateSecureRandomHex(32)
		if err != nil {
			return fmt.Errorf("auto-generate encryption key: %w", err)
		}
		c.Security.EncryptionKey = key
		logBootstrapWarn(
			"auto-generated encryption_key; set SECURITY_ENCRYPTION_KEY env var for persistence",
			zap.Int("length", len(key)),
		)
	}
	return nil
}

func logBootstrapWarn(msg string, fields ...zap.Field) {
	bootstrapLoggerOnce.Do(func() {
		cfg := zap.NewProductionConfig()
		cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)

		l, err := cfg.Build()
		if err != nil {
			bootstrapLogger = zap.NewNop()
			return
		}
		bootstrapLogger = l
	})

	bootstrapLogger.Warn(msg, fields...)
}

// generateSecureRandomHex produces a hex-encoded string of n random bytes.
func generateSecureRandomHex(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("crypto/rand: %w", err)
	}
	return hex.EncodeToString(b), nil
}

func setDefaults(v *viper.Viper) {
	// Server
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.shutdown_timeout", "30s")
	v.SetDefault("server.allowed_origins", []string{})
	v.SetDefault("server.allow_credentials", true)
	v.SetDefault("server.unsafe_allow_all_origins", false)

	// Database
	v.SetDefault("database.url", "")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "pdsno")
	v.SetDefault("database.password", "")
	v.SetDefault("database.database", "pdsno")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_conns", 50)
	v.SetDefault("database.min_conns", 5)
	v.SetDefault("database.max_conn_lifetime", "1h")
	v.SetDefault("database.max_conn_idle_time", "10m")
	v.SetDefault("database.auto_migrate", false)

	// Controller
	v.SetDefault("controller.role", "local")
	v.SetDefault("controller.region", "")
	v.SetDefault("controller.parent_endpoint", "")
	v.SetDefault("controller.nib_backend", "postgres")
	v.SetDefault("controller.badger_path", "./data/nib")

	// Transport
	v.SetDefault("transport.request_timeout", "10s")
	v.SetDefault("transport.retry_max_attempts", 5)
	v.SetDefault("transport.retry_base_delay", "250ms")
	v.SetDefault("transport.redis_addr", "localhost:6379")
	v.SetDefault("transport.websocket_path", "/ws/operator")

	// Admission
	v.SetDefault("admission.bootstrap_secret", "")
	v.SetDefault("admission.challenge_ttl", "30s")
	v.SetDefault("admission.certificate_ttl", "720h")
	v.SetDefault("admission.freshness_window", "30s")

	// Discovery
	v.SetDefault("discovery.cycle_interval", "5m")
	v.SetDefault("discovery.probe_timeout", "5s")
	v.SetDefault("discovery.flakiness_window", 2)

	// Approval
	v.SetDefault("approval.execution_token_ttl", "15m")
	v.SetDefault("approval.rate_limit_per_minute", 30)
	v.SetDefault("approval.high_forwards_to_global", true)

	// Log
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.file_max_size_mb", 100)
	v.SetDefault("log.file_max_age_days", 28)
	v.SetDefault("log.file_max_backups", 7)

	// River
	v.SetDefault("river.max_workers", 10)
	v.SetDefault("river.completed_job_retention_period", "24h")

	// Security
	v.SetDefault("security.session_secret", "")
	v.SetDefault("security.encryption_key", "")
	v.SetDefault("security.password_policy.mode", "nist")
	v.SetDefault("security.jwt_verification_keys", []string{})

	// Worker Pool
	v.SetDefault("worker.general_pool_size", 100)
	v.SetDefault("worker.discovery_pool_size", 50)
}
