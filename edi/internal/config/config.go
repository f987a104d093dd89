// Package config provides configuration loading for the EDI service.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/telhawk-systems/edi-stack/common/database"
)

// Config holds all configuration for the EDI service
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Cache      CacheConfig      `mapstructure:"cache"`
	RateLimit  RateLimitConfig  `mapstructure:"ratelimit"`
	Stats      StatsConfig      `mapstructure:"stats"`
	NATS       NATSConfig       `mapstructure:"nats"`
	OpenSearch OpenSearchConfig `mapstructure:"opensearch"`
	Bundling   BundlingConfig   `mapstructure:"bundling"`
	Auth       AuthConfig       `mapstructure:"auth"`
	CodeLists  CodeListsConfig  `mapstructure:"codelists"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
	MaxBodyBytes int64         `mapstructure:"max_body_bytes"`
}

// DatabaseConfig selects the repository. Type is "memory" or "postgres".
type DatabaseConfig struct {
	Type           string         `mapstructure:"type"`
	MigrationsPath string         `mapstructure:"migrations_path"`
	Postgres       PostgresConfig `mapstructure:"postgres"`
}

// PostgresConfig holds PostgreSQL connection settings
type PostgresConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
	SSLMode  string `mapstructure:"sslmode"`
}

// ConnString returns the postgres:// URL of the database.
func (p PostgresConfig) ConnString() string {
	return database.ConnString(p.User, p.Password, p.Host, p.Port, p.Database, p.SSLMode)
}

// RedisConfig holds the Redis connection shared by the cache and the rate
// limiter.
type RedisConfig struct {
	URL     string `mapstructure:"url"`
	Enabled bool   `mapstructure:"enabled"`
}

// CacheConfig holds rendered-document cache settings
type CacheConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	TTL     time.Duration `mapstructure:"ttl"`
}

// RateLimitConfig bounds incoming submissions per actor
type RateLimitConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Requests int           `mapstructure:"requests"`
	Window   time.Duration `mapstructure:"window"`
}

// StatsConfig controls per-actor activity statistics kept in Redis
type StatsConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	FlushInterval time.Duration `mapstructure:"flush_interval"`
}

// NATSConfig holds NATS message broker configuration
type NATSConfig struct {
	URL           string        `mapstructure:"url"`
	Enabled       bool          `mapstructure:"enabled"`
	MaxReconnects int           `mapstructure:"max_reconnects"`
	ReconnectWait time.Duration `mapstructure:"reconnect_wait"`
}

// OpenSearchConfig holds the message archive connection
type OpenSearchConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	URL      string `mapstructure:"url"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	Insecure bool   `mapstructure:"insecure"`
	Index    string `mapstructure:"index"`
	// SigningKey enables HMAC signatures on archived documents.
	SigningKey string `mapstructure:"signing_key"`
}

// BundlingConfig holds bundler and scheduler settings
type BundlingConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	Interval      time.Duration `mapstructure:"interval"`
	MaxBundleSize int           `mapstructure:"max_bundle_size"`
	MinBundleSize int           `mapstructure:"min_bundle_size"`
	FlushTimeout  time.Duration `mapstructure:"flush_timeout"`
	ScanLimit     int           `mapstructure:"scan_limit"`
}

// AuthConfig holds actor token settings
type AuthConfig struct {
	JWTSecret string        `mapstructure:"jwt_secret"`
	TokenTTL  time.Duration `mapstructure:"token_ttl"`
}

// CodeListsConfig points at an optional YAML override of the compiled-in
// code lists.
type CodeListsConfig struct {
	Path string `mapstructure:"path"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8090)
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.idle_timeout", "60s")
	v.SetDefault("server.max_body_bytes", 50<<20)

	v.SetDefault("database.type", "memory")
	v.SetDefault("database.migrations_path", "file://edi/migrations")
	v.SetDefault("database.postgres.host", "localhost")
	v.SetDefault("database.postgres.port", 5432)
	v.SetDefault("database.postgres.user", "edi")
	v.SetDefault("database.postgres.password", "")
	v.SetDefault("database.postgres.database", "edi")
	v.SetDefault("database.postgres.sslmode", "disable")

	v.SetDefault("redis.url", "redis://localhost:6379/0")
	v.SetDefault("redis.enabled", false)

	v.SetDefault("cache.enabled", true)
	v.SetDefault("cache.ttl", "1h")

	v.SetDefault("ratelimit.enabled", true)
	v.SetDefault("ratelimit.requests", 100)
	v.SetDefault("ratelimit.window", "1m")

	v.SetDefault("stats.enabled", true)
	v.SetDefault("stats.flush_interval", "30s")

	v.SetDefault("nats.url", "nats://nats:4222")
	v.SetDefault("nats.enabled", false)
	v.SetDefault("nats.max_reconnects", -1)
	v.SetDefault("nats.reconnect_wait", "2s")

	v.SetDefault("opensearch.enabled", false)
	v.SetDefault("opensearch.url", "https://localhost:9200")
	v.SetDefault("opensearch.username", "admin")
	v.SetDefault("opensearch.password", "")
	v.SetDefault("opensearch.insecure", true)
	v.SetDefault("opensearch.index", "edi-archived-messages")
	v.SetDefault("opensearch.signing_key", "")

	v.SetDefault("bundling.enabled", true)
	v.SetDefault("bundling.interval", "30s")
	v.SetDefault("bundling.max_bundle_size", 500)
	v.SetDefault("bundling.min_bundle_size", 1)
	v.SetDefault("bundling.flush_timeout", "1m")
	v.SetDefault("bundling.scan_limit", 10000)

	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.token_ttl", "1h")

	v.SetDefault("codelists.path", "")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

// Load reads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/edi")
	}

	// Environment variables override (EDI_SERVER_PORT, etc.)
	v.SetEnvPrefix("EDI")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		// Only fail if a specific config path was given
		if configPath != "" {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.Database.Type {
	case "memory", "postgres":
	default:
		return fmt.Errorf("database.type must be memory or postgres, got %q", c.Database.Type)
	}
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret is required")
	}
	if c.Bundling.Enabled && c.Bundling.Interval <= 0 {
		return fmt.Errorf("bundling.interval must be positive")
	}
	if c.Bundling.ScanLimit <= 0 {
		return fmt.Errorf("bundling.scan_limit must be positive")
	}
	if c.RateLimit.Enabled && (c.RateLimit.Requests <= 0 || c.RateLimit.Window <= 0) {
		return fmt.Errorf("ratelimit.requests and ratelimit.window must be positive")
	}
	return nil
}
