package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all application configuration.
type Config struct {
	Server  ServerConfig
	Auth    AuthConfig
	Cache   CacheConfig
	Storage StorageConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port            int           `envconfig:"SERVER_PORT" default:"8080"`
	ShutdownTimeout time.Duration `envconfig:"SERVER_SHUTDOWN_TIMEOUT" default:"10s"`
	RequestTimeout  time.Duration `envconfig:"SERVER_REQUEST_TIMEOUT" default:"15s"`
}

// AuthConfig holds token issuance configuration.
type AuthConfig struct {
	JWTSecret string        `envconfig:"JWT_SECRET" default:"dev-secret-change-me"`
	JWTIssuer string        `envconfig:"JWT_ISSUER" default:"nekostream"`
	TokenTTL  time.Duration `envconfig:"JWT_TTL" default:"720h"` // 30 days
}

// CacheConfig selects the response-cache backend.
type CacheConfig struct {
	Backend   string `envconfig:"CACHE_BACKEND" default:"memory"` // "memory" or "redis"
	RedisAddr string `envconfig:"CACHE_REDIS_ADDR" default:"localhost:6379"`
	RedisDB   int    `envconfig:"CACHE_REDIS_DB" default:"0"`
}

// StorageConfig holds the S3-compatible object storage credentials.
// All fields empty means uploads are disabled and admins must supply
// image URLs directly.
type StorageConfig struct {
	Endpoint     string `envconfig:"R2_ENDPOINT"`
	AccessKey    string `envconfig:"R2_ACCESS_KEY"`
	SecretKey    string `envconfig:"R2_SECRET_KEY"`
	Bucket       string `envconfig:"R2_BUCKET" default:"nekostream"`
	PublicDomain string `envconfig:"R2_PUBLIC_DOMAIN"`
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config

	if err := envconfig.Process("", &cfg.Server); err != nil {
		return nil, fmt.Errorf("load server config: %w", err)
	}
	if err := envconfig.Process("", &cfg.Auth); err != nil {
		return nil, fmt.Errorf("load auth config: %w", err)
	}
	if err := envconfig.Process("", &cfg.Cache); err != nil {
		return nil, fmt.Errorf("load cache config: %w", err)
	}
	if err := envconfig.Process("", &cfg.Storage); err != nil {
		return nil, fmt.Errorf("load storage config: %w", err)
	}

	return &cfg, nil
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("SERVER_PORT must be between 1 and 65535")
	}
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET must not be empty")
	}
	if c.Auth.TokenTTL <= 0 {
		return fmt.Errorf("JWT_TTL must be positive")
	}
	switch c.Cache.Backend {
	case "memory", "redis":
	default:
		return fmt.Errorf("CACHE_BACKEND must be \"memory\" or \"redis\"")
	}
	if c.Cache.Backend == "redis" && c.Cache.RedisAddr == "" {
		return fmt.Errorf("CACHE_REDIS_ADDR is required for the redis backend")
	}
	return nil
}
