// Package config loads and validates client session config from env and an optional .env file using Viper.
package config

import (
	"errors"
	"runtime"
	"strings"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

// Store backends recognized by STORE_BACKEND.
const (
	StoreBackendMemory   = "memory"
	StoreBackendFile     = "file"
	StoreBackendRedis    = "redis"
	StoreBackendPostgres = "postgres"
)

// Config holds client configuration loaded from the environment.
type Config struct {
	// SessionTimeoutSeconds is the inactivity period after which the session is logged out.
	SessionTimeoutSeconds int `mapstructure:"SESSION_TIMEOUT_SECONDS"`
	// TokenExpiryLeewaySeconds is the "expiring soon" window; tokens with less lifetime left are refreshed proactively.
	TokenExpiryLeewaySeconds int `mapstructure:"TOKEN_EXPIRY_LEEWAY_SECONDS"`
	// RefreshTimeoutMs bounds every login, signup, refresh and logout call to the auth API.
	RefreshTimeoutMs int `mapstructure:"REFRESH_TIMEOUT_MS"`

	// GatewayURL is the base URL of the remote authentication API (e.g. https://api.example.com).
	GatewayURL string `mapstructure:"GATEWAY_URL"`
	// GatewayInsecureSkipVerify disables TLS verification for the auth API. Development only.
	GatewayInsecureSkipVerify bool `mapstructure:"GATEWAY_INSECURE_SKIP_VERIFY"`

	// StoreBackend selects the secure token store: memory, file, redis or postgres.
	StoreBackend string `mapstructure:"STORE_BACKEND"`
	// StorePath is the encrypted store file used by the file backend; "~" is expanded.
	StorePath string `mapstructure:"STORE_PATH"`
	// StoreKey is the hex-encoded 32-byte master key, or a path to a file holding it. Required unless backend is memory.
	StoreKey string `mapstructure:"STORE_KEY"`
	// StoreNamespace partitions redis and postgres stores (one namespace per installation).
	StoreNamespace string `mapstructure:"STORE_NAMESPACE"`

	// RedisAddr, RedisPassword and RedisDB configure the redis backend.
	RedisAddr     string `mapstructure:"REDIS_ADDR"`
	RedisPassword string `mapstructure:"REDIS_PASSWORD"`
	RedisDB       int    `mapstructure:"REDIS_DB"`

	// DatabaseURL is the Postgres DSN for the postgres backend and cmd/migrate.
	DatabaseURL string `mapstructure:"DATABASE_URL"`

	// DevicePlatform and AppVersion are reported with login and signup.
	DevicePlatform string `mapstructure:"DEVICE_PLATFORM"`
	AppVersion     string `mapstructure:"APP_VERSION"`

	// OTLPEndpoint is the OTLP gRPC collector (e.g. localhost:4317). Empty disables export.
	OTLPEndpoint string `mapstructure:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	// OTLPInsecure forces plaintext to the collector even for https endpoints.
	OTLPInsecure bool `mapstructure:"OTEL_EXPORTER_OTLP_INSECURE"`
	// ServiceName is the OTel service.name resource attribute.
	ServiceName string `mapstructure:"OTEL_SERVICE_NAME"`

	// KafkaBrokers is a comma-separated list of brokers for session lifecycle events. Empty disables the sink.
	KafkaBrokers string `mapstructure:"KAFKA_BROKERS"`
	// SessionEventsTopic is the Kafka topic for session lifecycle events.
	SessionEventsTopic string `mapstructure:"SESSION_EVENTS_KAFKA_TOPIC"`

	// Env is the application environment (e.g. "development", "production").
	Env string `mapstructure:"APP_ENV"`
}

// Load reads .env (if present), then builds and validates Config from the environment via Viper.
// Missing .env is ignored. Env vars override .env. Returns an error if required fields are invalid.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // ignore ErrConfigFileNotFound

	v.AutomaticEnv()

	v.SetDefault("SESSION_TIMEOUT_SECONDS", 900)
	v.SetDefault("TOKEN_EXPIRY_LEEWAY_SECONDS", 300)
	v.SetDefault("REFRESH_TIMEOUT_MS", 30000)
	v.SetDefault("GATEWAY_URL", "http://localhost:8080")
	v.SetDefault("GATEWAY_INSECURE_SKIP_VERIFY", false)
	v.SetDefault("STORE_BACKEND", StoreBackendFile)
	v.SetDefault("STORE_PATH", "~/.authsession/store.json")
	v.SetDefault("STORE_KEY", "")
	v.SetDefault("STORE_NAMESPACE", "default")
	v.SetDefault("REDIS_ADDR", "localhost:6379")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("DEVICE_PLATFORM", runtime.GOOS)
	v.SetDefault("APP_VERSION", "dev")
	v.SetDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	v.SetDefault("OTEL_EXPORTER_OTLP_INSECURE", false)
	v.SetDefault("OTEL_SERVICE_NAME", "authsession")
	v.SetDefault("KAFKA_BROKERS", "")
	v.SetDefault("SESSION_EVENTS_KAFKA_TOPIC", "session-events")
	v.SetDefault("APP_ENV", "")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks ranges and cross-field rules.
func (c *Config) Validate() error {
	if c.SessionTimeoutSeconds <= 0 {
		return errors.New("config: SESSION_TIMEOUT_SECONDS must be positive")
	}
	if c.TokenExpiryLeewaySeconds <= 0 {
		return errors.New("config: TOKEN_EXPIRY_LEEWAY_SECONDS must be positive")
	}
	if c.RefreshTimeoutMs <= 0 {
		return errors.New("config: REFRESH_TIMEOUT_MS must be positive")
	}
	if strings.TrimSpace(c.GatewayURL) == "" {
		return errors.New("config: GATEWAY_URL must be set")
	}
	c.StoreBackend = strings.ToLower(strings.TrimSpace(c.StoreBackend))
	switch c.StoreBackend {
	case StoreBackendMemory:
	case StoreBackendFile:
		if strings.TrimSpace(c.StorePath) == "" {
			return errors.New("config: STORE_PATH must be set for the file backend")
		}
	case StoreBackendRedis:
		if strings.TrimSpace(c.RedisAddr) == "" {
			return errors.New("config: REDIS_ADDR must be set for the redis backend")
		}
	case StoreBackendPostgres:
		if strings.TrimSpace(c.DatabaseURL) == "" {
			return errors.New("config: DATABASE_URL must be set for the postgres backend")
		}
	default:
		return errors.New("config: STORE_BACKEND must be one of memory, file, redis, postgres")
	}
	if c.StoreBackend != StoreBackendMemory && strings.TrimSpace(c.StoreKey) == "" {
		return errors.New("config: STORE_KEY must be set unless STORE_BACKEND=memory")
	}
	if c.Env == "production" {
		if c.StoreBackend == StoreBackendMemory {
			return errors.New("config: STORE_BACKEND=memory is not allowed when APP_ENV=production")
		}
		if c.GatewayInsecureSkipVerify {
			return errors.New("config: GATEWAY_INSECURE_SKIP_VERIFY must not be true when APP_ENV=production")
		}
	}
	return nil
}

// SessionTimeout returns SessionTimeoutSeconds as a time.Duration.
func (c *Config) SessionTimeout() time.Duration {
	return time.Duration(c.SessionTimeoutSeconds) * time.Second
}

// ExpiryLeeway returns TokenExpiryLeewaySeconds as a time.Duration.
func (c *Config) ExpiryLeeway() time.Duration {
	return time.Duration(c.TokenExpiryLeewaySeconds) * time.Second
}

// RefreshTimeout returns RefreshTimeoutMs as a time.Duration.
func (c *Config) RefreshTimeout() time.Duration {
	return time.Duration(c.RefreshTimeoutMs) * time.Millisecond
}

// ResolvedStorePath expands a leading "~" in StorePath to the user's home directory.
func (c *Config) ResolvedStorePath() (string, error) {
	return homedir.Expand(strings.TrimSpace(c.StorePath))
}

// KafkaBrokersList returns Kafka broker addresses from the comma-separated config.
// An empty list disables the session event sink.
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
