package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	DBPath    string `env:"N1_DB_PATH" envDefault:"./n1.db"`
	Port      int    `env:"N1_PORT" envDefault:"8080"`
	UserID    string `env:"N1_USER_ID"`
	Env       string `env:"ENV" envDefault:"development"`
	LogLevel  string `env:"N1_LOG_LEVEL" envDefault:"info"`
	Timezone  string `env:"N1_TZ" envDefault:"Local"`
	ServerURL string `env:"N1_SERVER_URL"`
}

// Load reads configuration from environment variables.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

func (c Config) Production() bool {
	return c.Env == "production"
}

// Location resolves Timezone. It decides which calendar day "today" is.
func (c Config) Location() (*time.Location, error) {
	if c.Timezone == "" || c.Timezone == "Local" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}
