package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

const (
	EnvDevelopment = "development"
	EnvPreview     = "preview"
	EnvProduction  = "production"
)

// Config is resolved once at process start and injected into
// constructors. The deployment environment decides which legacy
// verification key and plan ID table apply; payload content never does.
type Config struct {
	Environment string `env:"APP_ENV" envDefault:"development"`
	Port        int    `env:"PORT" envDefault:"8080"`

	DatabaseURL string `env:"DATABASE_URL,required"`

	RedisAddr     string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPassword string `env:"REDIS_PASSWORD" envDefault:""`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`

	// PEM-encoded RSA public key of the legacy billing provider for this
	// deployment environment.
	LegacyPublicKeyPEM string `env:"LEGACY_PUBLIC_KEY_PEM,required"`

	FanoutBatchSize int `env:"FANOUT_BATCH_SIZE" envDefault:"100"`
}

// Load parses configuration from the process environment.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse configuration: %v", err)
	}
	switch cfg.Environment {
	case EnvDevelopment, EnvPreview, EnvProduction:
	default:
		return nil, fmt.Errorf("unknown APP_ENV %q", cfg.Environment)
	}
	return cfg, nil
}

// IsProduction reports whether this deployment serves production traffic.
// Development and preview share the sandbox plan tables and keys.
func (c *Config) IsProduction() bool {
	return c.Environment == EnvProduction
}
