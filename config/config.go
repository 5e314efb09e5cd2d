package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// AppConfig is loaded from environment variables. A local .env file is
// applied first when present.
type AppConfig struct {
	Debug bool `env:"DEBUG" envDefault:"false"`

	// Azure storage holding the list and task tables plus the purge queue.
	StorageConnectionString string `env:"STORAGE_CONNECTION_STRING"`
	ListsTable              string `env:"LISTS_TABLE" envDefault:"lists"`
	TasksTable              string `env:"TASKS_TABLE" envDefault:"tasks"`
	PurgeQueue              string `env:"PURGE_QUEUE" envDefault:"list-purge"`

	// Redis backing the snapshot cache and the change-event channel.
	RedisConnectionString string        `env:"REDIS_CONNECTION_STRING"`
	SnapshotCacheTTL      time.Duration `env:"SNAPSHOT_CACHE_TTL" envDefault:"5m"`
	ChangeChannel         string        `env:"CHANGE_CHANNEL" envDefault:"colist-changes"`

	// Auth0 verification. AUTH_TEST_MODE=1 switches to the HMAC test
	// verifier instead.
	Auth0Audience string `env:"AUTH0_AUDIENCE"`
	Auth0Domain   string `env:"AUTH0_DOMAIN"`
	AuthTestMode  bool   `env:"AUTH_TEST_MODE"`

	HTTPAddr string `env:"HTTP_ADDR" envDefault:":8080"`
}

// Load reads the configuration from the environment.
func Load() (AppConfig, error) {
	if err := godotenv.Load(); err != nil {
		var pathErr *os.PathError
		if !errors.As(err, &pathErr) {
			return AppConfig{}, fmt.Errorf("load .env file: %w", err)
		}
	}

	var cfg AppConfig
	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	cfg.Sanitize()
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Sanitize applies guardrails to values loaded from env.
func (c *AppConfig) Sanitize() {
	if c.SnapshotCacheTTL < 0 {
		c.SnapshotCacheTTL = 0
	}
	if c.HTTPAddr == "" {
		c.HTTPAddr = ":8080"
	}
	// Azure Functions custom handlers dictate the port.
	if port, ok := os.LookupEnv("FUNCTIONS_CUSTOMHANDLER_PORT"); ok {
		c.HTTPAddr = ":" + port
	}
}

// Validate reports missing required settings.
func (c *AppConfig) Validate() error {
	if c.StorageConnectionString == "" {
		return errors.New("STORAGE_CONNECTION_STRING is required")
	}
	if c.RedisConnectionString == "" {
		return errors.New("REDIS_CONNECTION_STRING is required")
	}
	if !c.AuthTestMode && (c.Auth0Audience == "" || c.Auth0Domain == "") {
		return errors.New("AUTH0_AUDIENCE and AUTH0_DOMAIN are required outside test mode")
	}
	return nil
}
