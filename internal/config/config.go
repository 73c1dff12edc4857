// Package config loads and validates app config from env and an optional .env file using Viper.
package config

import (
	"errors"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Access policy engines accepted by ACCESS_POLICY_ENGINE.
const (
	PolicyEngineBuiltin = "builtin"
	PolicyEngineOPA     = "opa"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	// HTTPAddr is the address the HTTP API listens on (e.g. :8080).
	HTTPAddr string `mapstructure:"HTTP_ADDR"`
	// GRPCAddr is the address of the gRPC health endpoint (e.g. :9090). Empty disables it.
	GRPCAddr string `mapstructure:"GRPC_ADDR"`
	// DatabaseURL is the Postgres DSN.
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	// Env is the application environment (e.g. "development", "production").
	Env string `mapstructure:"APP_ENV"`
	// LogLevel is the zap level name (debug, info, warn, error).
	LogLevel string `mapstructure:"LOG_LEVEL"`

	// SessionTTL is the session lifetime (e.g. "168h").
	SessionTTL string `mapstructure:"SESSION_TTL"`
	// BcryptCost is the bcrypt cost factor (4–31); default 12.
	BcryptCost int `mapstructure:"BCRYPT_COST"`
	// DirectoryTimeout bounds each membership directory read made by the resolver and the guard.
	DirectoryTimeout string `mapstructure:"DIRECTORY_TIMEOUT"`

	// AccessPolicyEngine selects the organization access decider: "builtin" or "opa".
	AccessPolicyEngine string `mapstructure:"ACCESS_POLICY_ENGINE"`
	// AccessPolicyFile is an optional Rego file replacing the default access policy (opa engine only).
	AccessPolicyFile string `mapstructure:"ACCESS_POLICY_FILE"`
	// AdminOverridesOwner lets global admins pass owner-only organization checks.
	AdminOverridesOwner bool `mapstructure:"ACCESS_ADMIN_OVERRIDES_OWNER"`

	// CacheClientSize bounds the number of entries held by each client view cache.
	CacheClientSize int `mapstructure:"CACHE_CLIENT_SIZE"`
	// KafkaBrokers is a comma-separated list of Kafka brokers. When set, cache invalidations are
	// relayed through Kafka so every API instance delivers them to its subscribers.
	KafkaBrokers string `mapstructure:"KAFKA_BROKERS"`
	// CacheKafkaTopic is the Kafka topic for cache invalidation events.
	CacheKafkaTopic string `mapstructure:"CACHE_KAFKA_TOPIC"`
	// KafkaGroupID is the consumer group prefix; each instance appends its own id.
	KafkaGroupID string `mapstructure:"KAFKA_GROUP_ID"`

	// OTLPEndpoint is the OpenTelemetry collector endpoint; empty disables export.
	OTLPEndpoint string `mapstructure:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	// OTLPInsecure forces a plaintext connection to the collector.
	OTLPInsecure bool `mapstructure:"OTEL_EXPORTER_OTLP_INSECURE"`
	// ServiceName is reported as service.name.
	ServiceName string `mapstructure:"OTEL_SERVICE_NAME"`
}

// Load reads .env (if present), then builds and validates Config from the environment via Viper.
// Missing .env is ignored (e.g. in CI). Env vars override .env. Returns an error if required fields are invalid.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // ignore ErrConfigFileNotFound

	v.AutomaticEnv()

	v.SetDefault("HTTP_ADDR", ":8080")
	v.SetDefault("GRPC_ADDR", ":9090")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("APP_ENV", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("SESSION_TTL", "168h")
	v.SetDefault("BCRYPT_COST", 12)
	v.SetDefault("DIRECTORY_TIMEOUT", "2s")
	v.SetDefault("ACCESS_POLICY_ENGINE", PolicyEngineBuiltin)
	v.SetDefault("ACCESS_POLICY_FILE", "")
	v.SetDefault("ACCESS_ADMIN_OVERRIDES_OWNER", true)
	v.SetDefault("CACHE_CLIENT_SIZE", 512)
	v.SetDefault("KAFKA_BROKERS", "")
	v.SetDefault("CACHE_KAFKA_TOPIC", "org-access-invalidations")
	v.SetDefault("KAFKA_GROUP_ID", "org-access-core")
	v.SetDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	v.SetDefault("OTEL_EXPORTER_OTLP_INSECURE", false)
	v.SetDefault("OTEL_SERVICE_NAME", "org-access-core")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if cfg.HTTPAddr == "" {
		return nil, errors.New("config: HTTP_ADDR must be set")
	}
	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = 12
	}
	if cfg.BcryptCost < 4 || cfg.BcryptCost > 31 {
		return nil, errors.New("config: BCRYPT_COST must be between 4 and 31")
	}
	cfg.AccessPolicyEngine = strings.ToLower(strings.TrimSpace(cfg.AccessPolicyEngine))
	if cfg.AccessPolicyEngine != PolicyEngineBuiltin && cfg.AccessPolicyEngine != PolicyEngineOPA {
		return nil, errors.New("config: ACCESS_POLICY_ENGINE must be builtin or opa")
	}
	if cfg.AccessPolicyFile != "" && cfg.AccessPolicyEngine != PolicyEngineOPA {
		return nil, errors.New("config: ACCESS_POLICY_FILE requires ACCESS_POLICY_ENGINE=opa")
	}
	if cfg.CacheClientSize <= 0 {
		return nil, errors.New("config: CACHE_CLIENT_SIZE must be positive")
	}
	if len(cfg.KafkaBrokersList()) > 0 && cfg.CacheKafkaTopic == "" {
		return nil, errors.New("config: CACHE_KAFKA_TOPIC must be set when KAFKA_BROKERS is set")
	}

	return &cfg, nil
}

// SessionLifetime parses SessionTTL as a time.Duration. Returns 168h if unset or invalid.
func (c *Config) SessionLifetime() time.Duration {
	return parseDuration(c.SessionTTL, 168*time.Hour)
}

// DirectoryReadTimeout parses DirectoryTimeout. Returns 2s if unset or invalid.
func (c *Config) DirectoryReadTimeout() time.Duration {
	return parseDuration(c.DirectoryTimeout, 2*time.Second)
}

// KafkaBrokersList returns Kafka broker addresses from the comma-separated config.
// Used to decide if the Kafka relay is enabled (non-empty list).
func (c *Config) KafkaBrokersList() []string {
	if c == nil || c.KafkaBrokers == "" {
		return nil
	}
	parts := strings.Split(c.KafkaBrokers, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
