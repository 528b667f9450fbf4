// Package config provides application configuration loading and management.
package config

import (
	"errors"
	"fmt"
	"log"
	"net/url"
	"time"

	"github.com/spf13/viper"
)

// Config holds application configuration values loaded from file or environment variables.
type Config struct {
	Port              string        `mapstructure:"PORT"`
	APIBaseURL        string        `mapstructure:"API_BASE_URL"`
	RedisURL          string        `mapstructure:"REDIS_URL"`
	SessionStore      string        `mapstructure:"SESSION_STORE"`
	SessionTTL        time.Duration `mapstructure:"SESSION_TTL"`
	CookieName        string        `mapstructure:"COOKIE_NAME"`
	CookieSecure      bool          `mapstructure:"COOKIE_SECURE"`
	Env               string        `mapstructure:"APP_ENV"`
	UpstreamTimeout   time.Duration `mapstructure:"UPSTREAM_TIMEOUT"`
	TracingEnabled    bool          `mapstructure:"TRACING_ENABLED"`
	TraceExporter     string        `mapstructure:"TRACE_EXPORTER"`
	OTLPEndpoint      string        `mapstructure:"OTLP_ENDPOINT"`
	TraceSamplerRatio float64       `mapstructure:"TRACE_SAMPLER_RATIO"`
}

// LoadConfig loads application configuration from file and environment variables.
func LoadConfig() (*Config, error) {
	viper.AddConfigPath(".")
	viper.AddConfigPath("..")
	viper.SetConfigName("config")
	viper.SetConfigType("yml")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		var notFoundErr viper.ConfigFileNotFoundError
		if errors.As(err, &notFoundErr) {
			log.Println("Config file not found; using environment variables and defaults")
		} else {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	// Set default values for development
	viper.SetDefault("PORT", "3000")
	viper.SetDefault("API_BASE_URL", "http://localhost:8000")
	viper.SetDefault("REDIS_URL", "localhost:6379")
	viper.SetDefault("SESSION_STORE", "memory")
	viper.SetDefault("SESSION_TTL", "720h")
	viper.SetDefault("COOKIE_NAME", "radar_session")
	viper.SetDefault("COOKIE_SECURE", false)
	viper.SetDefault("APP_ENV", "development")
	viper.SetDefault("UPSTREAM_TIMEOUT", "15s")
	viper.SetDefault("TRACING_ENABLED", false)
	viper.SetDefault("TRACE_EXPORTER", "stdout")
	viper.SetDefault("OTLP_ENDPOINT", "localhost:4318")
	viper.SetDefault("TRACE_SAMPLER_RATIO", 1.0)

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// Validate ensures that required configuration values are present and meet security standards.
func (c *Config) Validate() error {
	if c.Port == "" {
		return errors.New("PORT is required")
	}
	if c.APIBaseURL == "" {
		return errors.New("API_BASE_URL is required")
	}

	u, err := url.Parse(c.APIBaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("API_BASE_URL must be an absolute URL, got %q", c.APIBaseURL)
	}

	switch c.SessionStore {
	case "memory", "redis":
	default:
		return fmt.Errorf("SESSION_STORE must be 'memory' or 'redis', got %q", c.SessionStore)
	}

	if c.SessionTTL <= 0 {
		return errors.New("SESSION_TTL must be positive")
	}
	if c.CookieName == "" {
		return errors.New("COOKIE_NAME is required")
	}

	isProduction := c.Env == "production" || c.Env == "prod"

	// Strict checks for production
	if isProduction {
		if !c.CookieSecure {
			return errors.New("COOKIE_SECURE must be enabled in production")
		}
		if c.SessionStore == "memory" {
			log.Println("WARNING: SESSION_STORE is 'memory' in production. Sessions will not survive restarts; use 'redis'.")
		}
		if u.Scheme != "https" {
			log.Printf("WARNING: API_BASE_URL %q is not https in production.", c.APIBaseURL)
		}
	}

	return nil
}
