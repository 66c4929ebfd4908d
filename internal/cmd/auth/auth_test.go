package auth

import (
	"context"
	"flag"
	"testing"
	"time"
)

func TestParseConfigDefaults(t *testing.T) {
	fs := flag.NewFlagSet("auth", flag.ContinueOnError)
	cfg, err := ParseConfig(fs, nil)
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	if cfg.HTTPAddr != ":8090" {
		t.Fatalf("expected default http addr, got %q", cfg.HTTPAddr)
	}
	if cfg.SQLitePath != "data/phantom.db" {
		t.Fatalf("expected default sqlite path, got %q", cfg.SQLitePath)
	}
	if cfg.JWTTTL != 24*time.Hour {
		t.Fatalf("expected default ttl, got %s", cfg.JWTTTL)
	}
}

func TestParseConfigOverrides(t *testing.T) {
	t.Setenv("PHANTOM_AUTH_HTTP_ADDR", "env-http")
	t.Setenv("PHANTOM_JWT_SECRET", "env-secret")

	fs := flag.NewFlagSet("auth", flag.ContinueOnError)
	args := []string{"-http-addr", "flag-http", "-jwt-ttl", "1h"}
	cfg, err := ParseConfig(fs, args)
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	if cfg.HTTPAddr != "flag-http" {
		t.Fatalf("expected flag http addr, got %q", cfg.HTTPAddr)
	}
	if cfg.JWTSecret != "env-secret" {
		t.Fatalf("expected env secret, got %q", cfg.JWTSecret)
	}
	if cfg.JWTTTL != time.Hour {
		t.Fatalf("expected flag ttl, got %s", cfg.JWTTTL)
	}
}

func TestRunRequiresSecret(t *testing.T) {
	t.Setenv("PHANTOM_OTEL_ENDPOINT", "")
	err := Run(context.Background(), Config{HTTPAddr: "127.0.0.1:0"})
	if err == nil {
		t.Fatal("expected missing secret error")
	}
}
