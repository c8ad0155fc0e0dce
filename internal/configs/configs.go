/*
Package configs is responsible for loading and parsing the application's configuration settings.

It configures server parameters by reading operating system environment variables,
including the running environment, port, CORS allowed origins, and the timers that
drive session and room expiry.
*/
package configs

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// AppConfig contains all configuration parameters required for the application to run.
// All configuration values are loaded from environment variables.
type AppConfig struct {
	// General Server Settings
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	Port        int    `env:"PORT" envDefault:"8080"`

	// Security Settings
	AllowedOrigins []string `env:"ALLOWED_ORIGINS" envSeparator:","`

	// Expiry Settings
	// SessionTimeout is how long a disconnected session survives before the reaper deletes it.
	SessionTimeout time.Duration `env:"SESSION_TIMEOUT" envDefault:"24h"`

	// RoomTimeout is how long an empty room survives without activity before deletion.
	RoomTimeout time.Duration `env:"ROOM_TIMEOUT" envDefault:"168h"`

	// ReapInterval is how often the background reaper sweeps sessions and rooms.
	ReapInterval time.Duration `env:"REAP_INTERVAL" envDefault:"1h"`

	// HistoryLimit is the maximum number of messages retained per room.
	HistoryLimit int `env:"HISTORY_LIMIT" envDefault:"100"`
}

// LoadConfig reads and parses the application configuration from environment variables,
// applying defaults and validating the result. It returns a pointer to the AppConfig
// struct and any error encountered.
func LoadConfig() (*AppConfig, error) {
	cfg := &AppConfig{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment configuration: %w", err)
	}

	if cfg.Port < 1024 || cfg.Port > 65535 {
		return nil, fmt.Errorf("port number %d is outside the recommended range (%d-%d) to avoid privileged ports", cfg.Port, 1024, 65535)
	}

	if cfg.SessionTimeout <= 0 {
		return nil, fmt.Errorf("SESSION_TIMEOUT must be positive, got %s", cfg.SessionTimeout)
	}

	if cfg.RoomTimeout <= 0 {
		return nil, fmt.Errorf("ROOM_TIMEOUT must be positive, got %s", cfg.RoomTimeout)
	}

	if cfg.ReapInterval <= 0 {
		return nil, fmt.Errorf("REAP_INTERVAL must be positive, got %s", cfg.ReapInterval)
	}

	if cfg.HistoryLimit <= 0 {
		return nil, fmt.Errorf("HISTORY_LIMIT must be positive, got %d", cfg.HistoryLimit)
	}

	return cfg, nil
}
