package config

import (
	"log/slog"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("API_ADDR", "")
	t.Setenv("AGENCYHUB_CURRENCY", "")
	t.Setenv("AGENCYHUB_LANE_VALUE_TTL_SECONDS", "")
	t.Setenv("REDIS_URL", "")

	cfg := Load()
	if cfg.Addr != ":8787" {
		t.Fatalf("expected default addr, got %q", cfg.Addr)
	}
	if cfg.Currency != "USD" {
		t.Fatalf("expected USD, got %q", cfg.Currency)
	}
	if cfg.LaneValueTTL != 5*time.Minute {
		t.Fatalf("expected 5m ttl, got %v", cfg.LaneValueTTL)
	}
	if cfg.RedisURL != "" {
		t.Fatalf("expected redis disabled by default, got %q", cfg.RedisURL)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("AGENCYHUB_CURRENCY", "eur")
	t.Setenv("AGENCYHUB_LANE_VALUE_TTL_SECONDS", "30")
	t.Setenv("AGENCYHUB_LOG_LEVEL", "debug")

	cfg := Load()
	if cfg.Currency != "EUR" {
		t.Fatalf("expected EUR, got %q", cfg.Currency)
	}
	if cfg.LaneValueTTL != 30*time.Second {
		t.Fatalf("expected 30s ttl, got %v", cfg.LaneValueTTL)
	}
	if cfg.LogLevel != slog.LevelDebug {
		t.Fatalf("expected debug level, got %v", cfg.LogLevel)
	}
}

func TestLoadIgnoresMalformedValues(t *testing.T) {
	t.Setenv("AGENCYHUB_LANE_VALUE_TTL_SECONDS", "soon")
	t.Setenv("AGENCYHUB_LOG_LEVEL", "loud")

	cfg := Load()
	if cfg.LaneValueTTL != 5*time.Minute {
		t.Fatalf("expected fallback ttl, got %v", cfg.LaneValueTTL)
	}
	if cfg.LogLevel != slog.LevelInfo {
		t.Fatalf("expected fallback level, got %v", cfg.LogLevel)
	}
}
