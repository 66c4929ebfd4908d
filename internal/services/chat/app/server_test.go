package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/phantom-chat/phantom/internal/storage"
	"github.com/phantom-chat/phantom/internal/storage/memory"
)

func TestNewServerRequiresHTTPAddr(t *testing.T) {
	if _, err := NewServer(Config{}); err == nil {
		t.Fatal("expected error for empty HTTP address")
	}
}

func TestNewServerOpensFileStores(t *testing.T) {
	dir := t.TempDir()
	server, err := NewServer(Config{
		HTTPAddr:     "127.0.0.1:0",
		SQLitePath:   filepath.Join(dir, "phantom.db"),
		PresencePath: filepath.Join(dir, "presence.db"),
		JWTSecret:    "test-secret",
	})
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	if len(server.closers) != 2 {
		t.Fatalf("closers = %d, want 2", len(server.closers))
	}
	server.Close()
	if server.closers != nil {
		t.Fatal("expected closers to be released")
	}
}

func TestListenAndServeNilServer(t *testing.T) {
	var s *Server
	if err := s.ListenAndServe(context.Background()); err == nil {
		t.Fatal("expected error for nil server")
	}
}

func TestNewHandlerUpEndpoint(t *testing.T) {
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/up", nil)

	NewHandler(nil).ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status code = %d, want %d", rr.Code, http.StatusOK)
	}
	if strings.TrimSpace(rr.Body.String()) != "OK" {
		t.Fatalf("body = %q, want OK", rr.Body.String())
	}
}

func TestNewHandlerWSEndpoint(t *testing.T) {
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/ws", nil)

	NewHandler(nil).ServeHTTP(rr, req)

	if rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status code = %d, want %d", rr.Code, http.StatusMethodNotAllowed)
	}
}

func TestListenAndServeStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	server, err := NewServer(Config{HTTPAddr: "127.0.0.1:0"})
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

func TestAccessTokenFromRequestPrecedence(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/ws?token=query-token", nil)
	req.Header.Set("Authorization", "Bearer header-token")
	req.AddCookie(&http.Cookie{Name: tokenCookieName, Value: "cookie-token"})
	if got := accessTokenFromRequest(req); got != "header-token" {
		t.Fatalf("token = %q, want header-token", got)
	}

	req.Header.Del("Authorization")
	if got := accessTokenFromRequest(req); got != "query-token" {
		t.Fatalf("token = %q, want query-token", got)
	}

	req = httptest.NewRequest(http.MethodGet, "/ws", nil)
	req.AddCookie(&http.Cookie{Name: tokenCookieName, Value: "cookie-token"})
	if got := accessTokenFromRequest(req); got != "cookie-token" {
		t.Fatalf("token = %q, want cookie-token", got)
	}

	if got := accessTokenFromRequest(httptest.NewRequest(http.MethodGet, "/ws", nil)); got != "" {
		t.Fatalf("token = %q, want empty", got)
	}
}

func decodeStatus(t *testing.T, rr *httptest.ResponseRecorder) statusResponse {
	t.Helper()
	var response statusResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &response); err != nil {
		t.Fatalf("decode status response %q: %v", rr.Body.String(), err)
	}
	return response
}

func TestStatusHandlerUpdateThenRead(t *testing.T) {
	handler := newStatusHandler(memory.NewPresenceStore(), nil)

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/v1/status", strings.NewReader(`{"phantomId":"phantom-a","status":"online"}`)))
	if rr.Code != http.StatusOK {
		t.Fatalf("update status code = %d, body %s", rr.Code, rr.Body.String())
	}

	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/status?phantomId=phantom-a", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("get status code = %d", rr.Code)
	}
	response := decodeStatus(t, rr)
	if response.Status == nil || *response.Status != string(storage.StatusOnline) {
		t.Fatalf("status = %v, want Online", response.Status)
	}
}

func TestStatusHandlerUnknownStatusIsNull(t *testing.T) {
	handler := newStatusHandler(memory.NewPresenceStore(), nil)

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/status?phantomId=phantom-x", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("status code = %d, want 200", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), `"status":null`) {
		t.Fatalf("body = %s, expected null status", rr.Body.String())
	}
}

func TestStatusHandlerRejectsInvalidRequests(t *testing.T) {
	handler := newStatusHandler(memory.NewPresenceStore(), nil)

	tests := []struct {
		name   string
		req    *http.Request
		status int
	}{
		{name: "missing phantom id", req: httptest.NewRequest(http.MethodGet, "/v1/status", nil), status: http.StatusBadRequest},
		{name: "bad json", req: httptest.NewRequest(http.MethodPost, "/v1/status", strings.NewReader("{")), status: http.StatusBadRequest},
		{name: "bad status", req: httptest.NewRequest(http.MethodPost, "/v1/status", strings.NewReader(`{"phantomId":"a","status":"away"}`)), status: http.StatusBadRequest},
		{name: "method", req: httptest.NewRequest(http.MethodDelete, "/v1/status", nil), status: http.StatusMethodNotAllowed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, tt.req)
			if rr.Code != tt.status {
				t.Fatalf("status code = %d, want %d", rr.Code, tt.status)
			}
		})
	}
}

func TestStatusHandlerRequiresKnownIdentity(t *testing.T) {
	identities := memory.NewIdentityStore()
	if err := identities.PutIdentity(context.Background(), storage.IdentityRecord{
		PhantomID: "phantom-a",
		PublicKey: strings.Repeat("ab", 32),
		Origin:    "generated",
		CreatedAt: time.Now().UTC(),
	}); err != nil {
		t.Fatalf("put identity: %v", err)
	}
	handler := newStatusHandler(memory.NewPresenceStore(), identities)

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/status?phantomId=phantom-missing", nil))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("status code = %d, want 404", rr.Code)
	}

	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/status?phantomId=phantom-a", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status code = %d, want 200", rr.Code)
	}
}
