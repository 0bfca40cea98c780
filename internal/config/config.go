package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"go-simpler.org/env"
)

// Config holds every runtime setting of the notification hub.
type Config struct {
	Port         string `env:"PORT" default:"8008"`
	LogLevel     string `env:"LOG_LEVEL" default:"info"`
	LogFormat    string `env:"LOG_FORMAT" default:"json"`
	DatabasePath string `env:"DATABASE_PATH" default:"notification-hub.db"`

	JWTSecret   string        `env:"JWT_SECRET" default:"development-insecure-secret-change-me"`
	JWTIssuer   string        `env:"JWT_ISSUER" default:"notification-hub"`
	JWTAudience string        `env:"JWT_AUDIENCE" default:"notification-hub-clients"`
	JWTTTL      time.Duration `env:"JWT_TTL" default:"24h"`

	AdminUsername string `env:"ADMIN_USERNAME" default:"admin"`
	AdminPassword string `env:"ADMIN_PASSWORD"`

	HeartbeatInterval     time.Duration `env:"HEARTBEAT_INTERVAL" default:"60s"`
	DeliveryTimeout       time.Duration `env:"DELIVERY_TIMEOUT" default:"5s"`
	MaxParallelDeliveries int           `env:"MAX_PARALLEL_DELIVERIES" default:"64"`

	WSReadLimit    int64         `env:"WS_READ_LIMIT" default:"4096"`
	WSPongWait     time.Duration `env:"WS_PONG_WAIT" default:"60s"`
	WSPingInterval time.Duration `env:"WS_PING_INTERVAL" default:"30s"`
	WSRequireToken bool          `env:"WS_REQUIRE_TOKEN" default:"false"`

	DataCacheTTL    time.Duration `env:"DATA_CACHE_TTL" default:"2s"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" default:"10s"`
}

// Load reads an optional .env file, then the process environment.
func Load() (*Config, error) {
	// A missing .env file is normal outside local development.
	_ = godotenv.Load()

	var cfg Config
	if err := env.Load(&cfg, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func validate(cfg *Config) error {
	if cfg.Port == "" {
		return errors.New("PORT is required")
	}
	if len(cfg.JWTSecret) < 16 {
		return errors.New("JWT_SECRET must be at least 16 characters")
	}
	if cfg.HeartbeatInterval <= 0 {
		return errors.New("HEARTBEAT_INTERVAL must be positive")
	}
	if cfg.DeliveryTimeout <= 0 {
		return errors.New("DELIVERY_TIMEOUT must be positive")
	}
	if cfg.MaxParallelDeliveries < 0 {
		return errors.New("MAX_PARALLEL_DELIVERIES must not be negative")
	}
	if cfg.WSPingInterval >= cfg.WSPongWait {
		return fmt.Errorf("WS_PING_INTERVAL (%s) must be shorter than WS_PONG_WAIT (%s)", cfg.WSPingInterval, cfg.WSPongWait)
	}
	if cfg.WSReadLimit <= 0 {
		return errors.New("WS_READ_LIMIT must be positive")
	}
	return nil
}
