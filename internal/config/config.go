// Package config loads runtime settings from the environment, with an
// optional YAML overlay for local development.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Host         string        `env:"SERVER_HOST,default=0.0.0.0" yaml:"host"`
	Port         int           `env:"SERVER_PORT,default=8000" yaml:"port"`
	ReadTimeout  time.Duration `env:"SERVER_READ_TIMEOUT,default=15s" yaml:"read_timeout"`
	WriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT,default=30s" yaml:"write_timeout"`
	IdleTimeout  time.Duration `env:"SERVER_IDLE_TIMEOUT,default=60s" yaml:"idle_timeout"`
}

// Addr returns the listen address.
func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// DatabaseConfig controls Postgres connectivity. An empty DSN selects the
// in-memory store.
type DatabaseConfig struct {
	DSN             string        `env:"DATABASE_URL" yaml:"dsn"`
	MaxOpenConns    int           `env:"DATABASE_MAX_OPEN_CONNS,default=25" yaml:"max_open_conns"`
	MaxIdleConns    int           `env:"DATABASE_MAX_IDLE_CONNS,default=5" yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `env:"DATABASE_CONN_MAX_LIFETIME,default=30m" yaml:"conn_max_lifetime"`
	ConnectTimeout  time.Duration `env:"DATABASE_CONNECT_TIMEOUT,default=60s" yaml:"connect_timeout"`
	MigrationsPath  string        `env:"DATABASE_MIGRATIONS_PATH,default=migrations" yaml:"migrations_path"`
}

// RedisConfig controls the reports cache. An empty address disables caching.
type RedisConfig struct {
	Addr     string        `env:"REDIS_ADDR" yaml:"addr"`
	Password string        `env:"REDIS_PASSWORD" yaml:"password"`
	DB       int           `env:"REDIS_DB,default=0" yaml:"db"`
	CacheTTL time.Duration `env:"REDIS_CACHE_TTL,default=1h" yaml:"cache_ttl"`
}

// AuthConfig controls token issuance.
type AuthConfig struct {
	Secret   string        `env:"AUTH_SECRET,default=change-me" yaml:"secret"`
	TokenTTL time.Duration `env:"AUTH_TOKEN_TTL,default=24h" yaml:"token_ttl"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	Level      string `env:"LOG_LEVEL,default=info" yaml:"level"`
	Format     string `env:"LOG_FORMAT,default=json" yaml:"format"`
	Output     string `env:"LOG_OUTPUT,default=stdout" yaml:"output"`
	FilePrefix string `env:"LOG_FILE_PREFIX" yaml:"file_prefix"`
}

// LibraryConfig carries circulation policy.
type LibraryConfig struct {
	LoanPeriodDays     int           `env:"LIBRARY_LOAN_PERIOD_DAYS,default=14" yaml:"loan_period_days"`
	DailyFineRate      float64       `env:"LIBRARY_DAILY_FINE_RATE,default=1.0" yaml:"daily_fine_rate"`
	ReservationDays    int           `env:"LIBRARY_RESERVATION_DAYS,default=7" yaml:"reservation_days"`
	SweepInterval      time.Duration `env:"LIBRARY_SWEEP_INTERVAL,default=15m" yaml:"sweep_interval"`
	ExpiryInterval     time.Duration `env:"LIBRARY_EXPIRY_INTERVAL,default=30m" yaml:"expiry_interval"`
	DueSoonLeadDays    int           `env:"LIBRARY_DUE_SOON_LEAD_DAYS,default=3" yaml:"due_soon_lead_days"`
	ExpiryWarnLeadDays int           `env:"LIBRARY_EXPIRY_WARN_LEAD_DAYS,default=1" yaml:"expiry_warn_lead_days"`
	DailyNotifySpec    string        `env:"LIBRARY_DAILY_NOTIFY_SPEC,default=0 8 * * *" yaml:"daily_notify_spec"`
	WeeklyReportSpec   string        `env:"LIBRARY_WEEKLY_REPORT_SPEC,default=0 9 * * 1" yaml:"weekly_report_spec"`
	FixturesPath       string        `env:"LIBRARY_FIXTURES_PATH,default=fixtures" yaml:"fixtures_path"`
	AuditLogPath       string        `env:"LIBRARY_AUDIT_LOG_PATH" yaml:"audit_log_path"`
	RateLimitPerSec    int           `env:"LIBRARY_RATE_LIMIT_PER_SEC,default=20" yaml:"rate_limit_per_sec"`
	RateLimitBurst     int           `env:"LIBRARY_RATE_LIMIT_BURST,default=40" yaml:"rate_limit_burst"`
}

// SMTPConfig controls notification email. An empty host logs mail instead of
// sending it.
type SMTPConfig struct {
	Host     string `env:"SMTP_HOST" yaml:"host"`
	Port     int    `env:"SMTP_PORT,default=587" yaml:"port"`
	Username string `env:"SMTP_USERNAME" yaml:"username"`
	Password string `env:"SMTP_PASSWORD" yaml:"password"`
	From     string `env:"SMTP_FROM,default=library@localhost" yaml:"from"`
}

// BootstrapConfig seeds the initial administrator account.
type BootstrapConfig struct {
	AdminUsername string `env:"BOOTSTRAP_ADMIN_USERNAME,default=admin" yaml:"admin_username"`
	AdminEmail    string `env:"BOOTSTRAP_ADMIN_EMAIL,default=admin@library.com" yaml:"admin_email"`
	AdminPassword string `env:"BOOTSTRAP_ADMIN_PASSWORD,default=admin123" yaml:"admin_password"`
}

// Config is the root runtime configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Auth      AuthConfig      `yaml:"auth"`
	Logging   LoggingConfig   `yaml:"logging"`
	Library   LibraryConfig   `yaml:"library"`
	SMTP      SMTPConfig      `yaml:"smtp"`
	Bootstrap BootstrapConfig `yaml:"bootstrap"`
}

// Load reads configuration from the environment. A .env file is applied
// first when present, then an optional YAML file named by CONFIG_FILE.
func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode environment: %w", err)
	}

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.applyYAML(path); err != nil {
			return nil, err
		}
	}
	return &cfg, nil
}

// applyYAML overlays values from a YAML file on top of the environment.
func (c *Config) applyYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}
	return nil
}
