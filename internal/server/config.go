// Package server provides configuration helpers that define runtime defaults,
// validation, and rate-limiting parameters for the chat service.
package server

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment variable read by LoadConfig.
const EnvPrefix = "CHAT"

// RateLimitConfig defines the parameters for per-session line rate limiting.
type RateLimitConfig struct {
	Burst          int           `yaml:"burst" envconfig:"BURST" validate:"gt=0"`
	RefillInterval time.Duration `yaml:"refill_interval" envconfig:"REFILL_INTERVAL" validate:"gt=0"`
}

// Config holds the server configuration settings.
type Config struct {
	Addr            string          `yaml:"addr" envconfig:"ADDR" validate:"required"`
	WebSocketAddr   string          `yaml:"websocket_addr" envconfig:"WS_ADDR"`
	AllowedOrigins  []string        `yaml:"allowed_origins" envconfig:"ALLOWED_ORIGINS"`
	MaxLineLength   int             `yaml:"max_line_length" envconfig:"MAX_LINE_LENGTH" validate:"gte=64"`
	MaxHandleLength int             `yaml:"max_handle_length" envconfig:"MAX_HANDLE_LENGTH" validate:"gt=0"`
	QueueSize       int             `yaml:"queue_size" envconfig:"QUEUE_SIZE" validate:"gt=0"`
	WriteTimeout    time.Duration   `yaml:"write_timeout" envconfig:"WRITE_TIMEOUT" validate:"gte=0"`
	PingInterval    time.Duration   `yaml:"ping_interval" envconfig:"PING_INTERVAL" validate:"gte=0"`
	ShutdownTimeout time.Duration   `yaml:"shutdown_timeout" envconfig:"SHUTDOWN_TIMEOUT" validate:"gt=0"`
	LogLevel        string          `yaml:"log_level" envconfig:"LOG_LEVEL" validate:"oneof=debug info warn error"`
	LogFormat       string          `yaml:"log_format" envconfig:"LOG_FORMAT" validate:"oneof=text json"`
	RateLimit       RateLimitConfig `yaml:"rate_limit" envconfig:"RATE_LIMIT"`
}

var validate = validator.New()

func defaultConfig() Config {
	return Config{
		Addr:          ":9001",
		WebSocketAddr: ":8080",
		AllowedOrigins: []string{
			"http://localhost:8080",
		},
		MaxLineLength:   4096,
		MaxHandleLength: 32,
		QueueSize:       256,
		WriteTimeout:    10 * time.Second,
		PingInterval:    54 * time.Second,
		ShutdownTimeout: 5 * time.Second,
		LogLevel:        "info",
		LogFormat:       "text",
		RateLimit: RateLimitConfig{
			Burst:          5,
			RefillInterval: time.Second,
		},
	}
}

// NewConfig creates a Config instance populated with default values for all settings.
func NewConfig() *Config {
	cfg := defaultConfig()
	return &cfg
}

// Sanitize replaces zero or negative values with their defaults and
// normalizes free-form fields. It never fails; Validate reports what
// Sanitize cannot repair.
func (c *Config) Sanitize() {
	def := defaultConfig()

	if c.Addr == "" {
		c.Addr = def.Addr
	}
	if c.MaxLineLength <= 0 {
		c.MaxLineLength = def.MaxLineLength
	}
	if c.MaxHandleLength <= 0 {
		c.MaxHandleLength = def.MaxHandleLength
	}
	if c.QueueSize <= 0 {
		c.QueueSize = def.QueueSize
	}
	if c.WriteTimeout < 0 {
		c.WriteTimeout = 0
	}
	if c.PingInterval < 0 {
		c.PingInterval = 0
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = def.ShutdownTimeout
	}
	if c.RateLimit.Burst <= 0 {
		c.RateLimit.Burst = def.RateLimit.Burst
	}
	if c.RateLimit.RefillInterval <= 0 {
		c.RateLimit.RefillInterval = def.RateLimit.RefillInterval
	}

	c.LogLevel = strings.ToLower(strings.TrimSpace(c.LogLevel))
	if c.LogLevel == "" {
		c.LogLevel = def.LogLevel
	}
	c.LogFormat = strings.ToLower(strings.TrimSpace(c.LogFormat))
	if c.LogFormat == "" {
		c.LogFormat = def.LogFormat
	}

	origins := make([]string, 0, len(c.AllowedOrigins))
	for _, origin := range c.AllowedOrigins {
		if trimmed := strings.TrimSpace(origin); trimmed != "" {
			origins = append(origins, trimmed)
		}
	}
	c.AllowedOrigins = origins
}

// Validate checks the configuration against its field constraints.
func (c *Config) Validate() error {
	return validate.Struct(c)
}

// LoadConfig builds the effective configuration. Defaults are overlaid by
// the YAML file at path (skipped when path is empty), then by a .env file in
// the working directory if one exists, then by CHAT_* environment variables.
func LoadConfig(path string) (*Config, error) {
	cfg := defaultConfig()

	if path != "" {
		if err := loadFromFile(path, &cfg); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("failed to read environment: %w", err)
	}

	cfg.Sanitize()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

func loadFromFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), cfg)
}
