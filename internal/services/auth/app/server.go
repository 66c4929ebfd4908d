package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/phantom-chat/phantom/internal/platform/timeouts"
	"github.com/phantom-chat/phantom/internal/services/auth/identity"
	"github.com/phantom-chat/phantom/internal/services/auth/token"
	"github.com/phantom-chat/phantom/internal/storage"
	"github.com/phantom-chat/phantom/internal/storage/memory"
	storagesqlite "github.com/phantom-chat/phantom/internal/storage/sqlite"
)

// Config defines the inputs for the auth process.
type Config struct {
	HTTPAddr          string
	SQLitePath        string
	JWTSecret         string
	JWTTTL            time.Duration
	ReadHeaderTimeout time.Duration
	ShutdownTimeout   time.Duration
}

// Server hosts the auth HTTP API.
type Server struct {
	httpAddr        string
	shutdownTimeout time.Duration
	httpServer      *http.Server
	closers         []func() error
}

// NewServer creates a configured auth server.
func NewServer(config Config) (*Server, error) {
	return NewServerWithContext(context.Background(), config)
}

// NewServerWithContext opens the identity store and builds the HTTP surface.
func NewServerWithContext(ctx context.Context, config Config) (*Server, error) {
	if ctx == nil {
		return nil, errors.New("context is required")
	}
	httpAddr := strings.TrimSpace(config.HTTPAddr)
	if httpAddr == "" {
		return nil, errors.New("http address is required")
	}
	if config.ReadHeaderTimeout <= 0 {
		config.ReadHeaderTimeout = timeouts.ReadHeader
	}
	if config.ShutdownTimeout <= 0 {
		config.ShutdownTimeout = timeouts.Shutdown
	}

	issuer, err := token.NewIssuer(token.Config{Secret: config.JWTSecret, TTL: config.JWTTTL})
	if err != nil {
		return nil, fmt.Errorf("init token issuer: %w", err)
	}

	server := &Server{httpAddr: httpAddr, shutdownTimeout: config.ShutdownTimeout}

	var identities storage.IdentityStore = memory.NewIdentityStore()
	var invites storage.InviteStore = memory.NewInviteStore()
	if path := strings.TrimSpace(config.SQLitePath); path != "" {
		store, err := openAuthStore(path)
		if err != nil {
			return nil, err
		}
		server.closers = append(server.closers, store.Close)
		identities = store
		invites = store
	} else {
		log.Printf("auth: no sqlite path configured, identities are kept in memory")
	}

	server.httpServer = &http.Server{
		Addr: httpAddr,
		Handler: NewHandler(Deps{
			Identities: identities,
			Invites:    invites,
			Issuer:     issuer,
			Engine:     identity.NewEngine(),
		}),
		ReadHeaderTimeout: config.ReadHeaderTimeout,
	}
	return server, nil
}

// Run creates and serves an auth server until the context ends.
func Run(ctx context.Context, config Config) error {
	server, err := NewServerWithContext(ctx, config)
	if err != nil {
		return fmt.Errorf("init auth server: %w", err)
	}
	defer server.Close()

	if err := server.ListenAndServe(ctx); err != nil {
		return fmt.Errorf("serve auth: %w", err)
	}
	return nil
}

// ListenAndServe runs the HTTP server until the context ends.
func (s *Server) ListenAndServe(ctx context.Context) error {
	if s == nil {
		return errors.New("auth server is nil")
	}
	if ctx == nil {
		return errors.New("context is required")
	}

	serveErr := make(chan error, 1)
	log.Printf("auth HTTP server listening on %s", s.httpAddr)
	go func() {
		serveErr <- s.httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
		err := s.httpServer.Shutdown(shutdownCtx)
		cancel()
		if err != nil {
			return fmt.Errorf("shutdown http server: %w", err)
		}
		return nil
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve http: %w", err)
	}
}

// Close releases server resources.
func (s *Server) Close() {
	if s == nil {
		return
	}
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			log.Printf("close auth store: %v", err)
		}
	}
	s.closers = nil
}

func openAuthStore(path string) (*storagesqlite.Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create storage dir: %w", err)
		}
	}

	store, err := storagesqlite.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open auth sqlite store: %w", err)
	}
	return store, nil
}
