// Package config builds the process configuration: defaults, overlaid by an
// optional YAML file, overlaid by environment variables, so main stays lean.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server   Server   `yaml:"server"`
	Auth     Auth     `yaml:"auth"`
	Postgres Postgres `yaml:"postgres"`
	Redis    Redis    `yaml:"redis"`
	Kafka    Kafka    `yaml:"kafka"`
	Kernel   Kernel   `yaml:"kernel"`
	Sink     Sink     `yaml:"sink"`
}

// Server captures HTTP server level configuration.
type Server struct {
	Addr            string        `yaml:"addr"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	// RateLimitRPS throttles the whole API surface; 0 disables the limiter.
	RateLimitRPS   float64 `yaml:"rate_limit_rps"`
	RateLimitBurst int     `yaml:"rate_limit_burst"`
}

type Auth struct {
	JWTSigningKey string `yaml:"jwt_signing_key"`
	Issuer        string `yaml:"issuer"`
	Audience      string `yaml:"audience"`
}

// Postgres holds the transaction store connection. Empty URL selects the
// in-memory store.
type Postgres struct {
	URL string `yaml:"url"`
}

// Redis holds the shared withdrawal-ledger connection. Empty URL selects
// the in-memory ledger store.
type Redis struct {
	URL          string        `yaml:"url"`
	PoolSize     int           `yaml:"pool_size"`
	MinIdleConns int           `yaml:"min_idle_conns"`
	DialTimeout  time.Duration `yaml:"dial_timeout"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// Kafka holds the audit stream. No brokers means audit events stay on the
// in-process store only.
type Kafka struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

// Kernel seeds the protocol roles for this deployment.
type Kernel struct {
	Authority  string `yaml:"authority"`
	Pauser     string `yaml:"pauser"`
	FeeRateBps uint16 `yaml:"fee_rate_bps"`
}

// Sink configures the fee sink instance.
type Sink struct {
	Operator string `yaml:"operator"`
	// DailyCap bounds total withdrawals per UTC calendar day.
	DailyCap int64 `yaml:"daily_cap"`
}

func defaults() Config {
	return Config{
		Server: Server{
			Addr:            ":8080",
			ShutdownTimeout: 10 * time.Second,
			RateLimitRPS:    50,
			RateLimitBurst:  100,
		},
		Auth: Auth{
			// Development fallback, must be overridden in production.
			JWTSigningKey: "dev-secret-key-change-in-production",
			Issuer:        "actp-kernel",
			Audience:      "actp-api",
		},
		Redis: Redis{
			PoolSize:     10,
			MinIdleConns: 2,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		},
		Kafka: Kafka{
			Topic: "actp.audit",
		},
		Kernel: Kernel{
			FeeRateBps: 250,
		},
		Sink: Sink{
			DailyCap: 1_000_000,
		},
	}
}

// Load builds the configuration: defaults, then the YAML file at path when
// it exists, then environment variables.
func Load(path string) (Config, error) {
	cfg := defaults()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return Config{}, fmt.Errorf("read config file: %w", err)
			}
		} else if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file: %w", err)
		}
	}

	overlayEnv(&cfg)
	return cfg, nil
}

func overlayEnv(cfg *Config) {
	setString(&cfg.Server.Addr, "ACTP_ADDR")
	setString(&cfg.Auth.JWTSigningKey, "ACTP_JWT_SIGNING_KEY")
	setString(&cfg.Postgres.URL, "ACTP_POSTGRES_URL")
	setString(&cfg.Redis.URL, "ACTP_REDIS_URL")
	setString(&cfg.Kafka.Topic, "ACTP_KAFKA_TOPIC")
	setString(&cfg.Kernel.Authority, "ACTP_AUTHORITY")
	setString(&cfg.Kernel.Pauser, "ACTP_PAUSER")
	setString(&cfg.Sink.Operator, "ACTP_SINK_OPERATOR")
	setInt64(&cfg.Sink.DailyCap, "ACTP_SINK_DAILY_CAP")

	if v := os.Getenv("ACTP_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = splitList(v)
	}
	if v := os.Getenv("ACTP_FEE_RATE_BPS"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 16); err == nil {
			cfg.Kernel.FeeRateBps = uint16(n)
		}
	}
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
