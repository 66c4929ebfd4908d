// Package chat parses chat command flags and composes transport entrypoints.
package chat

import (
	"context"
	"flag"
	"fmt"
	"time"

	entrypoint "github.com/phantom-chat/phantom/internal/platform/cmd"
	server "github.com/phantom-chat/phantom/internal/services/chat/app"
)

// Config holds chat command configuration.
type Config struct {
	HTTPAddr     string        `env:"PHANTOM_CHAT_HTTP_ADDR"     envDefault:":8091"`
	SQLitePath   string        `env:"PHANTOM_SQLITE_PATH"        envDefault:"data/phantom.db"`
	PresencePath string        `env:"PHANTOM_PRESENCE_PATH"      envDefault:"data/presence.bolt"`
	JWTSecret    string        `env:"PHANTOM_JWT_SECRET"`
	StrictSender bool          `env:"PHANTOM_CHAT_STRICT_SENDER" envDefault:"true"`
	StoreTimeout time.Duration `env:"PHANTOM_STORE_TIMEOUT"      envDefault:"2s"`
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}

	fs.StringVar(&cfg.HTTPAddr, "http-addr", cfg.HTTPAddr, "chat HTTP listen address")
	fs.StringVar(&cfg.SQLitePath, "sqlite-path", cfg.SQLitePath, "SQLite path for invites and identities (empty keeps them in memory)")
	fs.StringVar(&cfg.PresencePath, "presence-path", cfg.PresencePath, "bbolt path for presence markers (empty keeps them in memory)")
	fs.StringVar(&cfg.JWTSecret, "jwt-secret", cfg.JWTSecret, "HS256 secret; when set the websocket requires a bearer token")
	fs.BoolVar(&cfg.StrictSender, "strict-sender", cfg.StrictSender, "reject messages whose room or sender differs from the connection binding")
	fs.DurationVar(&cfg.StoreTimeout, "store-timeout", cfg.StoreTimeout, "timeout for a single store call")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run builds the chat app and starts realtime transport behavior.
func Run(ctx context.Context, cfg Config) error {
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceChat, func(ctx context.Context) error {
		if err := server.Run(ctx, server.Config{
			HTTPAddr:     cfg.HTTPAddr,
			SQLitePath:   cfg.SQLitePath,
			PresencePath: cfg.PresencePath,
			JWTSecret:    cfg.JWTSecret,
			StrictSender: cfg.StrictSender,
			StoreTimeout: cfg.StoreTimeout,
		}); err != nil {
			return fmt.Errorf("serve chat: %w", err)
		}
		return nil
	})
}
