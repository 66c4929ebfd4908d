package server

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestNewServerRequiresHTTPAddr(t *testing.T) {
	if _, err := NewServer(Config{JWTSecret: "secret"}); err == nil {
		t.Fatal("expected error for empty HTTP address")
	}
}

func TestNewServerRequiresSecret(t *testing.T) {
	if _, err := NewServer(Config{HTTPAddr: "127.0.0.1:0"}); err == nil {
		t.Fatal("expected error for empty JWT secret")
	}
}

func TestNewServerOpensSQLiteStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "phantom.db")
	server, err := NewServer(Config{HTTPAddr: "127.0.0.1:0", JWTSecret: "secret", SQLitePath: path})
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	defer server.Close()
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected sqlite file: %v", err)
	}
}

func TestOpenAuthStoreInvalidDir(t *testing.T) {
	file := filepath.Join(t.TempDir(), "file")
	if err := os.WriteFile(file, []byte("data"), 0o600); err != nil {
		t.Fatalf("write file: %v", err)
	}

	if _, err := openAuthStore(filepath.Join(file, "auth.db")); err == nil {
		t.Fatal("expected error for invalid storage dir")
	}
}

func TestListenAndServeNilServer(t *testing.T) {
	var s *Server
	if err := s.ListenAndServe(context.Background()); err == nil {
		t.Fatal("expected error for nil server")
	}
}

func TestListenAndServeStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	server, err := NewServer(Config{HTTPAddr: "127.0.0.1:0", JWTSecret: "secret"})
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	defer server.Close()

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- server.ListenAndServe(ctx)
	}()

	time.Sleep(25 * time.Millisecond)
	cancel()

	select {
	case err := <-serveErr:
		if err != nil {
			t.Fatalf("serve returned error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("server did not stop on cancel")
	}
}
