// Package config loads leadhooks settings from a YAML file, defaults and
// LEADHOOKS_* environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Config is the full service configuration.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Webhooks WebhookConfig  `mapstructure:"webhooks"`
	Auth     AuthConfig     `mapstructure:"auth"`
}

type ServerConfig struct {
	Port         int      `mapstructure:"port"           validate:"min=1,max=65535"`
	CORSOrigins  []string `mapstructure:"cors_origins"`
	RateLimitRPS int      `mapstructure:"rate_limit_rps" validate:"min=0"`
}

// DatabaseConfig selects Postgres. An empty URL keeps everything in memory.
type DatabaseConfig struct {
	URL string `mapstructure:"url" validate:"omitempty,url"`
}

// RedisConfig selects Redis for dedup markers. Empty falls back to the database.
type RedisConfig struct {
	URL string `mapstructure:"url" validate:"omitempty,url"`
}

type WebhookConfig struct {
	Timeout       time.Duration   `mapstructure:"timeout"        validate:"gt=0"`
	RetryDelays   []time.Duration `mapstructure:"retry_delays"   validate:"len=3,dive,min=0"`
	Retention     time.Duration   `mapstructure:"retention"      validate:"gt=0"`
	UserAgent     string          `mapstructure:"user_agent"     validate:"required"`
	SweepInterval time.Duration   `mapstructure:"sweep_interval" validate:"gt=0"`
}

type AuthConfig struct {
	TokenSecret string        `mapstructure:"token_secret" validate:"required,min=32"`
	Issuer      string        `mapstructure:"issuer"       validate:"required"`
	TokenTTL    time.Duration `mapstructure:"token_ttl"    validate:"gt=0"`
}

// Validate checks field constraints.
func (c *Config) Validate() error {
	return validator.New().Struct(c)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.cors_origins", []string{"http://localhost:3000"})
	v.SetDefault("server.rate_limit_rps", 20)
	v.SetDefault("database.url", "")
	v.SetDefault("redis.url", "")
	v.SetDefault("webhooks.timeout", "5s")
	v.SetDefault("webhooks.retry_delays", []string{"0s", "30s", "5m"})
	v.SetDefault("webhooks.retention", "720h")
	v.SetDefault("webhooks.user_agent", "leadhooks-webhooks/1.0")
	v.SetDefault("webhooks.sweep_interval", "1h")
	v.SetDefault("auth.token_secret", "")
	v.SetDefault("auth.issuer", "leadhooks")
	v.SetDefault("auth.token_ttl", "24h")
}

// Load reads leadhooks.yaml from dir (or the working directory), applies
// defaults and environment overrides, and validates the result. A missing
// config file is not an error.
func Load(dir string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("leadhooks")
	v.SetConfigType("yaml")
	if dir != "" {
		v.AddConfigPath(dir)
	}
	v.AddConfigPath("configs")
	v.AddConfigPath(".")
	v.SetEnvPrefix("LEADHOOKS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}
