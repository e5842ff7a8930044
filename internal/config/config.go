// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Auth    AuthConfig    `mapstructure:"auth"`
	Scan    ScanConfig    `mapstructure:"scan"`
	Fetch   FetchConfig   `mapstructure:"fetch"`
	DB      DBConfig      `mapstructure:"db"`
	PubSub  PubSubConfig  `mapstructure:"pubsub"`
	Redis   RedisConfig   `mapstructure:"redis"`
	Storage StorageConfig `mapstructure:"storage"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	AdminAPIKey string `mapstructure:"admin_api_key"`
}

// ScanConfig governs admission and read-path behavior.
type ScanConfig struct {
	ChunkSize       int `mapstructure:"chunk_size"`
	MaxURLs         int `mapstructure:"max_urls"`
	ResultPageLimit int `mapstructure:"result_page_limit"`
	CacheTTLSeconds int `mapstructure:"cache_ttl_seconds"`
	Concurrency     int `mapstructure:"concurrency"`
}

// FetchConfig bounds the single-URL fetch.
type FetchConfig struct {
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
	MaxRedirects   int    `mapstructure:"max_redirects"`
	MaxBodyBytes   int    `mapstructure:"max_body_bytes"`
	UserAgent      string `mapstructure:"user_agent"`
	ContentType    string `mapstructure:"content_type"`
}

// DBConfig controls access to the relational database.
type DBConfig struct {
	DSN      string `mapstructure:"dsn"`
	MaxConns int32  `mapstructure:"max_conns"`
	MinConns int32  `mapstructure:"min_conns"`
}

// PubSubConfig holds the chunk queue wiring.
type PubSubConfig struct {
	ProjectID      string `mapstructure:"project_id"`
	TopicID        string `mapstructure:"topic_id"`
	SubscriptionID string `mapstructure:"subscription_id"`
}

// RedisConfig controls the result-page cache connection.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// StorageConfig sets the blob bucket for page content.
type StorageConfig struct {
	GCSBucket string `mapstructure:"gcs_bucket"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("FETCHSVC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("scan.chunk_size", 50)
	v.SetDefault("scan.max_urls", 1000)
	v.SetDefault("scan.result_page_limit", 100)
	v.SetDefault("scan.cache_ttl_seconds", 3600)
	v.SetDefault("scan.concurrency", 4)
	v.SetDefault("fetch.timeout_seconds", 5)
	v.SetDefault("fetch.max_redirects", 5)
	v.SetDefault("fetch.max_body_bytes", 10*1024*1024)
	v.SetDefault("fetch.user_agent", "guardz-fetch-bot/0.1")
	v.SetDefault("fetch.content_type", "text/html; charset=utf-8")
	v.SetDefault("db.max_conns", 10)
	v.SetDefault("db.min_conns", 2)
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Scan.ChunkSize <= 0 {
		return fmt.Errorf("scan.chunk_size must be > 0")
	}
	if c.Scan.MaxURLs <= 0 {
		return fmt.Errorf("scan.max_urls must be > 0")
	}
	if c.Scan.ResultPageLimit <= 0 || c.Scan.ResultPageLimit > 1000 {
		return fmt.Errorf("scan.result_page_limit must be in (0, 1000]")
	}
	if c.Scan.Concurrency <= 0 {
		return fmt.Errorf("scan.concurrency must be > 0")
	}
	if c.Fetch.TimeoutSeconds <= 0 {
		return fmt.Errorf("fetch.timeout_seconds must be > 0")
	}
	if c.Auth.Enabled && c.Auth.AdminAPIKey == "" {
		return fmt.Errorf("auth.admin_api_key must be set when auth is enabled")
	}
	return nil
}
