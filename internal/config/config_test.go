package config

import (
	"errors"
	"testing"
	"time"
)

func TestLoad_RequiresJWTSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "")

	_, err := Load()
	if !errors.Is(err, ErrMissingJWTSecret) {
		t.Fatalf("expected ErrMissingJWTSecret, got %v", err)
	}
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("PORT", "")
	t.Setenv("STORE", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Port != 8080 {
		t.Fatalf("port = %d, want 8080", cfg.Port)
	}
	if cfg.Store != "postgres" {
		t.Fatalf("store = %q, want postgres", cfg.Store)
	}
	if cfg.AccessTTL() != 30*time.Minute {
		t.Fatalf("access ttl = %v", cfg.AccessTTL())
	}
	if cfg.RefreshTTL() != 30*24*time.Hour {
		t.Fatalf("refresh ttl = %v", cfg.RefreshTTL())
	}
}

func TestLoad_InvalidIntFallsBack(t *testing.T) {
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("PORT", "not-a-number")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Port != 8080 {
		t.Fatalf("port = %d, want fallback 8080", cfg.Port)
	}
}

func TestLoad_CORSList(t *testing.T) {
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("CORS_ALLOWED_ORIGINS", "http://a.test, ,http://b.test")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cfg.CORSAllowedOrigins) != 2 || cfg.CORSAllowedOrigins[1] != "http://b.test" {
		t.Fatalf("unexpected origins: %v", cfg.CORSAllowedOrigins)
	}
}

func TestValidate_UnknownStore(t *testing.T) {
	cfg := Config{JWTSecret: "x", Store: "mongo", JWTAccessTTLMinutes: 1, JWTRefreshTTLDays: 1}
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected error for unknown store")
	}
}
