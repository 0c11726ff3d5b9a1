package config

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig
	Identity  IdentityConfig
	Storage   StorageConfig
	Registry  RegistryConfig
	Logging   LogConfig
	RateLimit RateLimitConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port string `envconfig:"PORT" default:"8090"`
	Host string `envconfig:"HOST" default:"0.0.0.0"`
}

// IdentityConfig holds identity provider configuration.
type IdentityConfig struct {
	// ProxyURL is the backend OAuth-secret proxy base URL.
	ProxyURL string `envconfig:"OAUTH_PROXY_URL" default:"http://localhost:8091"`
	// DebounceMS is the restoration-check debounce window.
	DebounceMS int `envconfig:"AUTH_DEBOUNCE_MS" default:"2000"`
}

// StorageConfig holds storage adapter configuration.
type StorageConfig struct {
	Mode     string `envconfig:"STORAGE_MODE" default:"filesystem"`
	Path     string `envconfig:"STORAGE_PATH" default:"/var/lib/chatlab"`
	VaultURL string `envconfig:"VAULT_URL" default:"http://localhost:4000"`
	DriveURL string `envconfig:"DRIVE_GATEWAY_URL" default:"http://localhost:8092"`
}

// RegistryConfig holds workspace registry configuration.
type RegistryConfig struct {
	URL string `envconfig:"WORKSPACE_REGISTRY_URL" default:"http://localhost:8093"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" default:"info"`
	Development bool   `envconfig:"LOG_DEV" default:"false"`
}

// RateLimitConfig holds rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerSecond int  `envconfig:"RATE_LIMIT_RPS" default:"100"`
	Burst             int  `envconfig:"RATE_LIMIT_BURST" default:"200"`
	Enabled           bool `envconfig:"RATE_LIMIT_ENABLED" default:"true"`
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}

// LoadOrDefault loads configuration from environment or returns default.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port: "8090",
			Host: "0.0.0.0",
		},
		Identity: IdentityConfig{
			ProxyURL:   "http://localhost:8091",
			DebounceMS: 2000,
		},
		Storage: StorageConfig{
			Mode:     "filesystem",
			Path:     "/var/lib/chatlab",
			VaultURL: "http://localhost:4000",
			DriveURL: "http://localhost:8092",
		},
		Registry: RegistryConfig{
			URL: "http://localhost:8093",
		},
		Logging: LogConfig{
			Level:       "info",
			Development: false,
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 100,
			Burst:             200,
			Enabled:           true,
		},
	}
}
