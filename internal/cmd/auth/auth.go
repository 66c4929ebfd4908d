// Package auth parses auth command flags and composes the identity API.
package auth

import (
	"context"
	"flag"
	"fmt"
	"time"

	entrypoint "github.com/phantom-chat/phantom/internal/platform/cmd"
	server "github.com/phantom-chat/phantom/internal/services/auth/app"
)

// Config holds auth command configuration.
type Config struct {
	HTTPAddr   string        `env:"PHANTOM_AUTH_HTTP_ADDR" envDefault:":8090"`
	SQLitePath string        `env:"PHANTOM_SQLITE_PATH"    envDefault:"data/phantom.db"`
	JWTSecret  string        `env:"PHANTOM_JWT_SECRET"`
	JWTTTL     time.Duration `env:"PHANTOM_JWT_TTL"        envDefault:"24h"`
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}

	fs.StringVar(&cfg.HTTPAddr, "http-addr", cfg.HTTPAddr, "auth HTTP listen address")
	fs.StringVar(&cfg.SQLitePath, "sqlite-path", cfg.SQLitePath, "SQLite path for identities and invites (empty keeps them in memory)")
	fs.StringVar(&cfg.JWTSecret, "jwt-secret", cfg.JWTSecret, "HS256 secret used to sign bearer tokens")
	fs.DurationVar(&cfg.JWTTTL, "jwt-ttl", cfg.JWTTTL, "bearer token lifetime")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run starts the auth server.
func Run(ctx context.Context, cfg Config) error {
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceAuth, func(ctx context.Context) error {
		if err := server.Run(ctx, server.Config{
			HTTPAddr:   cfg.HTTPAddr,
			SQLitePath: cfg.SQLitePath,
			JWTSecret:  cfg.JWTSecret,
			JWTTTL:     cfg.JWTTTL,
		}); err != nil {
			return fmt.Errorf("serve auth: %w", err)
		}
		return nil
	})
}
