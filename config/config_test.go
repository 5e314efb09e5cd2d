package config

import (
	"testing"
	"time"

	"github.com/caarlos0/env/v11"
)

func parseEnv(t *testing.T) AppConfig {
	t.Helper()
	var cfg AppConfig
	if err := env.Parse(&cfg); err != nil {
		t.Fatalf("parse config: %v", err)
	}
	cfg.Sanitize()
	return cfg
}

func TestDefaults(t *testing.T) {
	cfg := parseEnv(t)
	if cfg.ListsTable != "lists" || cfg.TasksTable != "tasks" {
		t.Fatalf("unexpected table defaults: %q %q", cfg.ListsTable, cfg.TasksTable)
	}
	if cfg.PurgeQueue != "list-purge" {
		t.Fatalf("unexpected purge queue default: %q", cfg.PurgeQueue)
	}
	if cfg.SnapshotCacheTTL != 5*time.Minute {
		t.Fatalf("unexpected cache ttl default: %v", cfg.SnapshotCacheTTL)
	}
	if cfg.ChangeChannel != "colist-changes" {
		t.Fatalf("unexpected change channel default: %q", cfg.ChangeChannel)
	}
	if cfg.HTTPAddr != ":8080" {
		t.Fatalf("unexpected http addr default: %q", cfg.HTTPAddr)
	}
	if cfg.Debug {
		t.Fatal("debug must default off")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("DEBUG", "true")
	t.Setenv("LISTS_TABLE", "mylists")
	t.Setenv("SNAPSHOT_CACHE_TTL", "30s")
	t.Setenv("HTTP_ADDR", ":9999")

	cfg := parseEnv(t)
	if !cfg.Debug {
		t.Fatal("expected debug on")
	}
	if cfg.ListsTable != "mylists" {
		t.Fatalf("unexpected lists table: %q", cfg.ListsTable)
	}
	if cfg.SnapshotCacheTTL != 30*time.Second {
		t.Fatalf("unexpected cache ttl: %v", cfg.SnapshotCacheTTL)
	}
	if cfg.HTTPAddr != ":9999" {
		t.Fatalf("unexpected http addr: %q", cfg.HTTPAddr)
	}
}

func TestFunctionsPortOverridesAddr(t *testing.T) {
	t.Setenv("HTTP_ADDR", ":9999")
	t.Setenv("FUNCTIONS_CUSTOMHANDLER_PORT", "7071")

	cfg := parseEnv(t)
	if cfg.HTTPAddr != ":7071" {
		t.Fatalf("expected functions port to win, got %q", cfg.HTTPAddr)
	}
}

func TestValidate(t *testing.T) {
	cfg := AppConfig{}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected missing storage error")
	}
	cfg.StorageConnectionString = "UseDevelopmentStorage=true"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected missing redis error")
	}
	cfg.RedisConnectionString = "redis://localhost:6379"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected missing auth error")
	}
	cfg.AuthTestMode = true
	if err := cfg.Validate(); err != nil {
		t.Fatalf("test mode must not require auth0 settings: %v", err)
	}
	cfg.AuthTestMode = false
	cfg.Auth0Audience = "aud"
	cfg.Auth0Domain = "tenant.auth0.com"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected validation error: %v", err)
	}
}
