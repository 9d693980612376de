// Package config loads process configuration from the environment, with an
// optional .env file for local development.
package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	Addr string `env:"ADDR" envDefault:":8080"`

	// Postgres connection string. Empty selects the in-memory store (dev
	// mode): all messages are lost on restart.
	DBConnStr string `env:"DB_CONN_STR"`

	// RabbitMQ URL for the offline-push pipeline. Empty disables it.
	AMQPURL string `env:"AMQP_URL"`

	JWTSecret string `env:"JWT_SECRET" envDefault:"dev-secret"`

	BlobDir     string `env:"BLOB_DIR" envDefault:"data/uploads"`
	BlobBaseURL string `env:"BLOB_BASE_URL" envDefault:"/uploads"`

	// Per-user inbound websocket event budget.
	EventRPS   float64 `env:"EVENT_RPS" envDefault:"20"`
	EventBurst int     `env:"EVENT_BURST" envDefault:"40"`
}

func Load() (*Config, error) {
	// Best-effort; absent .env is the normal case outside dev.
	_ = godotenv.Load()

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}
	return &cfg, nil
}
