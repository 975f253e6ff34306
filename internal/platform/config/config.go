// Package config loads the gateway configuration from environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	pstrings "alloggiati/pkg/platform/strings"
)

// Config holds every setting the gateway reads at startup.
type Config struct {
	Server   Server
	Portal   Portal
	Retry    Retry
	Circuit  Circuit
	Redis    RedisConfig
	Postgres PostgresConfig
	Kafka    KafkaConfig
	Tables   Tables
}

// Server captures HTTP server level configuration.
type Server struct {
	Addr            string
	LogLevel        string
	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration
}

// Portal describes the remote registration service and the account used
// to talk to it.
type Portal struct {
	Endpoint     string
	Username     string
	Password     string
	WSKey        string
	Timeout      time.Duration
	SafetyMargin time.Duration
	MaxBatchSize int
}

type Retry struct {
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
	RetrySubmit     bool
}

type Circuit struct {
	FailureThreshold int
	SuccessThreshold int
	Cooldown         time.Duration
}

// RedisConfig is optional. An empty URL keeps the table cache in memory.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// PostgresConfig is optional. An empty DSN disables the durable audit sink.
type PostgresConfig struct {
	DSN string
}

// KafkaConfig is optional. No brokers disables audit publishing to Kafka.
type KafkaConfig struct {
	Brokers []string
	Topic   string
}

type Tables struct {
	CacheTTL time.Duration
}

// FromEnv builds the configuration from the process environment.
func FromEnv() (Config, error) {
	return Load(os.Getenv)
}

// Load builds the configuration from getenv, applying defaults to unset
// variables. Missing credentials and unparseable values are reported together.
func Load(getenv func(string) string) (Config, error) {
	e := env{get: getenv}
	cfg := Config{
		Server: Server{
			Addr:            e.getString("ALLOGGIATI_ADDR", ":8080"),
			LogLevel:        e.getString("LOG_LEVEL", "info"),
			RequestTimeout:  e.getDuration("ALLOGGIATI_REQUEST_TIMEOUT", 2*time.Minute),
			ShutdownTimeout: e.getDuration("ALLOGGIATI_SHUTDOWN_TIMEOUT", 10*time.Second),
		},
		Portal: Portal{
			Endpoint:     e.getString("ALLOGGIATI_ENDPOINT", "https://alloggiatiweb.poliziadistato.it/service/service.asmx"),
			Username:     e.getString("ALLOGGIATI_USERNAME", ""),
			Password:     e.getString("ALLOGGIATI_PASSWORD", ""),
			WSKey:        e.getString("ALLOGGIATI_WSKEY", ""),
			Timeout:      e.getDuration("ALLOGGIATI_TIMEOUT", 30*time.Second),
			SafetyMargin: e.getDuration("ALLOGGIATI_TOKEN_MARGIN", 2*time.Minute),
			MaxBatchSize: e.getInt("ALLOGGIATI_MAX_BATCH", 1000),
		},
		Retry: Retry{
			MaxAttempts:     e.getInt("ALLOGGIATI_RETRY_ATTEMPTS", 3),
			InitialInterval: e.getDuration("ALLOGGIATI_RETRY_INITIAL", 500*time.Millisecond),
			MaxInterval:     e.getDuration("ALLOGGIATI_RETRY_MAX", 5*time.Second),
			RetrySubmit:     e.getBool("ALLOGGIATI_RETRY_SUBMIT", false),
		},
		Circuit: Circuit{
			FailureThreshold: e.getInt("ALLOGGIATI_CIRCUIT_FAILURES", 5),
			SuccessThreshold: e.getInt("ALLOGGIATI_CIRCUIT_SUCCESSES", 2),
			Cooldown:         e.getDuration("ALLOGGIATI_CIRCUIT_COOLDOWN", 30*time.Second),
		},
		Redis: RedisConfig{
			URL:          e.getString("REDIS_URL", ""),
			PoolSize:     e.getInt("REDIS_POOL_SIZE", 10),
			MinIdleConns: e.getInt("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  e.getDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  e.getDuration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: e.getDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Postgres: PostgresConfig{
			DSN: e.getString("DATABASE_URL", ""),
		},
		Kafka: KafkaConfig{
			Brokers: pstrings.SplitList(e.getString("KAFKA_BROKERS", ""), ","),
			Topic:   e.getString("KAFKA_AUDIT_TOPIC", "alloggiati.audit"),
		},
		Tables: Tables{
			CacheTTL: e.getDuration("ALLOGGIATI_TABLE_TTL", 24*time.Hour),
		},
	}

	var missing []string
	for key, v := range map[string]string{
		"ALLOGGIATI_USERNAME": cfg.Portal.Username,
		"ALLOGGIATI_PASSWORD": cfg.Portal.Password,
		"ALLOGGIATI_WSKEY":    cfg.Portal.WSKey,
	} {
		if v == "" {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		slices.Sort(missing)
		e.errs = append(e.errs, fmt.Errorf("required environment variables not set: %s", strings.Join(missing, ", ")))
	}
	if cfg.Portal.MaxBatchSize <= 0 {
		e.errs = append(e.errs, errors.New("ALLOGGIATI_MAX_BATCH must be positive"))
	}
	if cfg.Retry.MaxAttempts <= 0 {
		e.errs = append(e.errs, errors.New("ALLOGGIATI_RETRY_ATTEMPTS must be positive"))
	}

	if err := errors.Join(e.errs...); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

type env struct {
	get  func(string) string
	errs []error
}

func (e *env) getString(key, fallback string) string {
	if v := strings.TrimSpace(e.get(key)); v != "" {
		return v
	}
	return fallback
}

func (e *env) getDuration(key string, fallback time.Duration) time.Duration {
	v := e.getString(key, "")
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s: %w", key, err))
		return fallback
	}
	return d
}

func (e *env) getInt(key string, fallback int) int {
	v := e.getString(key, "")
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s: %w", key, err))
		return fallback
	}
	return n
}

func (e *env) getBool(key string, fallback bool) bool {
	v := e.getString(key, "")
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s: %w", key, err))
		return fallback
	}
	return b
}
