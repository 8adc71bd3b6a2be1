// Package config loads process configuration once at start-up. There is no
// hot reload.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Supported DATABASE_DRIVER values.
const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
	DriverPgx      = "pgx"
	DriverSQLite   = "sqlite3"
)

// Config is the full process configuration.
type Config struct {
	Server   Server
	Database Database
	Redis    RedisConfig
	Kafka    Kafka
	SMTP     SMTP
	Dispatch Dispatch
	Log      Log
}

// Server captures HTTP server level configuration.
type Server struct {
	Addr            string
	ShutdownTimeout time.Duration
}

type Database struct {
	Driver string
	URL    string
}

// RedisConfig configures the optional dispatcher lease backend.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Kafka configures the audit event publisher. No brokers means audit events
// are only logged.
type Kafka struct {
	Brokers    []string
	AuditTopic string
}

// SMTP configures the mail relay. An empty Host selects the log sender.
type SMTP struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// Dispatch configures the notification dispatcher.
type Dispatch struct {
	PollInterval  time.Duration
	ActionBaseURL string
	Workers       int
	BatchSize     int
	StoreTimeout  time.Duration
	RenderTimeout time.Duration
	SendTimeout   time.Duration
	LeaseTTL      time.Duration
	KindsFile     string
	Kinds         []KindDescriptor
}

type Log struct {
	Level  string
	Format string
}

// FromEnv builds a Config from environment variables and the optional kinds
// file, then validates it.
func FromEnv() (Config, error) {
	return fromLookup(os.LookupEnv)
}

func fromLookup(lookup func(string) (string, bool)) (Config, error) {
	env := envReader{lookup: lookup}

	cfg := Config{
		Server: Server{
			Addr:            env.str("APPROVALS_ADDR", ":8080"),
			ShutdownTimeout: env.duration("SHUTDOWN_TIMEOUT", 15*time.Second),
		},
		Database: Database{
			Driver: env.str("DATABASE_DRIVER", DriverMemory),
			URL:    env.str("DATABASE_URL", ""),
		},
		Redis: RedisConfig{
			URL:          env.str("REDIS_URL", ""),
			PoolSize:     env.int("REDIS_POOL_SIZE", 10),
			MinIdleConns: env.int("REDIS_MIN_IDLE_CONNS", 1),
			DialTimeout:  env.duration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  env.duration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: env.duration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Kafka: Kafka{
			Brokers:    env.list("KAFKA_BROKERS"),
			AuditTopic: env.str("KAFKA_AUDIT_TOPIC", "approvals.audit"),
		},
		SMTP: SMTP{
			Host:     env.str("SMTP_HOST", ""),
			Port:     env.int("SMTP_PORT", 587),
			Username: env.str("SMTP_USER", ""),
			Password: env.str("SMTP_PASSWORD", ""),
			From:     env.str("SMTP_FROM", "approvals@localhost"),
		},
		Dispatch: Dispatch{
			PollInterval:  env.duration("POLL_INTERVAL", 60*time.Second),
			ActionBaseURL: strings.TrimRight(env.str("ACTION_BASE_URL", "http://localhost:8080"), "/"),
			Workers:       env.int("DISPATCH_WORKERS", 4),
			BatchSize:     env.int("DISPATCH_BATCH", 200),
			StoreTimeout:  env.duration("STORE_TIMEOUT", 5*time.Second),
			RenderTimeout: env.duration("RENDER_TIMEOUT", 10*time.Second),
			SendTimeout:   env.duration("SEND_TIMEOUT", 30*time.Second),
			LeaseTTL:      env.duration("DISPATCH_LEASE_TTL", 0),
			KindsFile:     env.str("KINDS_FILE", ""),
		},
		Log: Log{
			Level:  env.str("LOG_LEVEL", "info"),
			Format: env.str("LOG_FORMAT", "json"),
		},
	}
	if err := env.err(); err != nil {
		return Config{}, err
	}

	kinds := DefaultKinds()
	if cfg.Dispatch.KindsFile != "" {
		loaded, err := LoadKinds(cfg.Dispatch.KindsFile)
		if err != nil {
			return Config{}, err
		}
		kinds = loaded
	}
	cfg.Dispatch.Kinds = kinds

	if cfg.Dispatch.LeaseTTL == 0 {
		// A lease outliving one poll period would starve the other instances.
		cfg.Dispatch.LeaseTTL = cfg.Dispatch.PollInterval
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints.
func (c Config) Validate() error {
	var errs []error

	switch c.Database.Driver {
	case DriverMemory:
	case DriverPostgres, DriverPgx, DriverSQLite:
		if c.Database.URL == "" {
			errs = append(errs, fmt.Errorf("DATABASE_URL is required for driver %q", c.Database.Driver))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported DATABASE_DRIVER %q", c.Database.Driver))
	}

	if c.Dispatch.PollInterval <= 0 {
		errs = append(errs, errors.New("POLL_INTERVAL must be positive"))
	}
	if c.Dispatch.Workers < 1 {
		errs = append(errs, errors.New("DISPATCH_WORKERS must be at least 1"))
	}
	if c.Dispatch.BatchSize < 1 {
		errs = append(errs, errors.New("DISPATCH_BATCH must be at least 1"))
	}
	for name, d := range map[string]time.Duration{
		"STORE_TIMEOUT":  c.Dispatch.StoreTimeout,
		"RENDER_TIMEOUT": c.Dispatch.RenderTimeout,
		"SEND_TIMEOUT":   c.Dispatch.SendTimeout,
	} {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive", name))
		}
	}
	if u, err := url.Parse(c.Dispatch.ActionBaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Errorf("ACTION_BASE_URL %q must be an absolute URL", c.Dispatch.ActionBaseURL))
	}
	if c.SMTP.Host != "" && (c.SMTP.Port < 1 || c.SMTP.Port > 65535) {
		errs = append(errs, fmt.Errorf("SMTP_PORT %d out of range", c.SMTP.Port))
	}
	if err := validateKinds(c.Dispatch.Kinds); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

type envReader struct {
	lookup func(string) (string, bool)
	errs   []error
}

func (e *envReader) str(key, def string) string {
	if v, ok := e.lookup(key); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return def
}

func (e *envReader) int(key string, def int) int {
	raw := e.str(key, "")
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return n
}

func (e *envReader) duration(key string, def time.Duration) time.Duration {
	raw := e.str(key, "")
	if raw == "" {
		return def
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return d
}

func (e *envReader) list(key string) []string {
	raw := e.str(key, "")
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func (e *envReader) err() error {
	return errors.Join(e.errs...)
}
