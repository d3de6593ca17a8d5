// Package server provides configuration helpers that define runtime defaults,
// environment loading and sanitizing for the live chat service.
package server

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/Tyrowin/roomcast/internal/chat"
)

const (
	defaultPort              = ":8080"
	defaultPingInterval      = 30 * time.Second
	defaultSendBuffer        = 64
	defaultWriteTimeout      = 10 * time.Second
	defaultMaxMessageSize    = 4096
	defaultRateLimitBurst    = 5
	defaultRateLimitInterval = time.Second
	defaultWebhookAuthor     = "Webhook Bot"
	defaultLogLevel          = "info"
	defaultEnv               = "development"
)

// RateLimitConfig defines the per-connection limit on messages posted over
// a WebSocket stream.
type RateLimitConfig struct {
	Burst          int           `envconfig:"BURST" default:"5"`
	RefillInterval time.Duration `envconfig:"REFILL_INTERVAL" default:"1s"`
}

// Config holds the server configuration settings.
type Config struct {
	Port             string          `envconfig:"SERVER_PORT" default:":8080"`
	AllowedOrigins   []string        `envconfig:"ALLOWED_ORIGINS" default:"http://localhost:8080,http://localhost:3000"`
	PingInterval     time.Duration   `envconfig:"PING_INTERVAL" default:"30s"`
	SendBuffer       int             `envconfig:"SEND_BUFFER" default:"64"`
	WriteTimeout     time.Duration   `envconfig:"WRITE_TIMEOUT" default:"10s"`
	BroadcastScope   Scope           `envconfig:"BROADCAST_SCOPE" default:"room"`
	RetentionPerRoom int             `envconfig:"RETENTION_PER_ROOM" default:"100"`
	MaxMessageSize   int64           `envconfig:"MAX_MESSAGE_SIZE" default:"4096"`
	RateLimit        RateLimitConfig `envconfig:"RATE_LIMIT"`
	WebhookAuthor    string          `envconfig:"WEBHOOK_AUTHOR" default:"Webhook Bot"`
	LogLevel         string          `envconfig:"LOG_LEVEL" default:"info"`
	Env              string          `envconfig:"APP_ENV" default:"development"`
}

func defaultConfig() Config {
	return Config{
		Port: defaultPort,
		AllowedOrigins: []string{
			"http://localhost:8080",
			"http://localhost:3000",
		},
		PingInterval:     defaultPingInterval,
		SendBuffer:       defaultSendBuffer,
		WriteTimeout:     defaultWriteTimeout,
		BroadcastScope:   ScopeRoom,
		RetentionPerRoom: chat.DefaultRetention,
		MaxMessageSize:   defaultMaxMessageSize,
		RateLimit: RateLimitConfig{
			Burst:          defaultRateLimitBurst,
			RefillInterval: defaultRateLimitInterval,
		},
		WebhookAuthor: defaultWebhookAuthor,
		LogLevel:      defaultLogLevel,
		Env:           defaultEnv,
	}
}

func sanitizeConfig(cfg Config) Config {
	if cfg.Port == "" {
		cfg.Port = defaultPort
	}

	if cfg.PingInterval <= 0 {
		cfg.PingInterval = defaultPingInterval
	}

	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = defaultSendBuffer
	}

	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = defaultWriteTimeout
	}

	if cfg.BroadcastScope != ScopeGlobal {
		cfg.BroadcastScope = ScopeRoom
	}

	if cfg.RetentionPerRoom <= 0 {
		cfg.RetentionPerRoom = chat.DefaultRetention
	}

	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = defaultMaxMessageSize
	}

	if cfg.RateLimit.Burst <= 0 {
		cfg.RateLimit.Burst = defaultRateLimitBurst
	}

	if cfg.RateLimit.RefillInterval <= 0 {
		cfg.RateLimit.RefillInterval = defaultRateLimitInterval
	}

	if cfg.WebhookAuthor == "" {
		cfg.WebhookAuthor = defaultWebhookAuthor
	}

	if cfg.LogLevel == "" {
		cfg.LogLevel = defaultLogLevel
	}

	if cfg.Env == "" {
		cfg.Env = defaultEnv
	}

	cfg.AllowedOrigins = append([]string(nil), cfg.AllowedOrigins...)
	return cfg
}

// NewConfig creates a Config instance populated with default values for all settings.
func NewConfig() *Config {
	cfg := defaultConfig()
	return &cfg
}

// LoadConfig reads the configuration from the environment. A .env file in
// the working directory is loaded first when present. Unset or non-positive
// values fall back to defaults.
func LoadConfig() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	cfg = sanitizeConfig(cfg)
	return &cfg, nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}
