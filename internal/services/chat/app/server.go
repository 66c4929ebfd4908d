package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/phantom-chat/phantom/internal/platform/timeouts"
	"github.com/phantom-chat/phantom/internal/services/auth/token"
	"github.com/phantom-chat/phantom/internal/storage"
	storagebbolt "github.com/phantom-chat/phantom/internal/storage/bbolt"
	"github.com/phantom-chat/phantom/internal/storage/memory"
	storagesqlite "github.com/phantom-chat/phantom/internal/storage/sqlite"
)

const (
	tokenCookieName = "phantom_token"

	maxFramePayloadBytes   = 16 * 1024
	maxFramesPerSecond     = 40
	maxDecodeErrorsPerConn = 3

	maxMessageContentRunes = 4000
)

// Client frame types.
const (
	frameCreateRoom  = "create-room"
	frameJoinRoom    = "join-room"
	frameSendMessage = "send-message"
	frameLeaveRoom   = "leave-room"
)

// Server frame types.
const (
	frameRoomCreated = "room-created"
	frameJoinedRoom  = "joined-room"
	frameUserJoined  = "user-joined"
	frameUserLeft    = "user-left"
	frameNewMessage  = "new-message"
	frameError       = "error"
)

// Config defines the inputs for the chat process.
type Config struct {
	HTTPAddr          string
	SQLitePath        string
	PresencePath      string
	JWTSecret         string
	StrictSender      bool
	StoreTimeout      time.Duration
	ReadHeaderTimeout time.Duration
	ShutdownTimeout   time.Duration
}

// Server hosts the chat HTTP/WebSocket process.
type Server struct {
	httpAddr        string
	shutdownTimeout time.Duration
	httpServer      *http.Server
	coordinator     *Coordinator
	closers         []func() error
}

type wsFrame struct {
	Type      string          `json:"type"`
	RequestID string          `json:"request_id,omitempty"`
	Payload   json.RawMessage `json:"payload"`
}

type wsErrorEnvelope struct {
	Error wsError `json:"error"`
}

type wsError struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
}

type createRoomPayload struct {
	RoomID            string `json:"roomId"`
	SenderPhantomID   string `json:"senderPhantomId"`
	ReceiverPhantomID string `json:"receiverPhantomId"`
}

type roomCreatedPayload struct {
	RoomID  string `json:"roomId"`
	Creator string `json:"creator"`
}

// membershipRequestPayload is the body of join-room and leave-room.
type membershipRequestPayload struct {
	RoomID    string `json:"roomId"`
	PhantomID string `json:"phantomId"`
}

type membershipPayload struct {
	RoomID      string   `json:"roomId"`
	PhantomID   string   `json:"phantomId"`
	UsersInRoom []string `json:"usersInRoom"`
}

type sendMessagePayload struct {
	RoomID     string          `json:"roomId"`
	SenderID   string          `json:"senderId"`
	ReceiverID string          `json:"receiverId"`
	Content    string          `json:"content"`
	Timestamp  json.RawMessage `json:"timestamp,omitempty"`
	MessageID  string          `json:"messageId"`
}

type newMessagePayload struct {
	ID         string          `json:"id"`
	SenderID   string          `json:"senderId"`
	ReceiverID string          `json:"receiverId"`
	Content    string          `json:"content"`
	Timestamp  json.RawMessage `json:"timestamp"`
	RoomID     string          `json:"roomId"`
}

// NewServer creates a configured chat server.
func NewServer(config Config) (*Server, error) {
	return NewServerWithContext(context.Background(), config)
}

// NewServerWithContext opens the stores and builds the HTTP surface.
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
	if config.StoreTimeout <= 0 {
		config.StoreTimeout = timeouts.StoreCall
	}

	server := &Server{httpAddr: httpAddr, shutdownTimeout: config.ShutdownTimeout}

	var invites storage.InviteStore = memory.NewInviteStore()
	var identities storage.IdentityStore
	if path := strings.TrimSpace(config.SQLitePath); path != "" {
		if err := ensureParentDir(path); err != nil {
			return nil, err
		}
		store, err := storagesqlite.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open sqlite store: %w", err)
		}
		server.closers = append(server.closers, store.Close)
		invites = store
		identities = store
	} else {
		log.Printf("chat: no sqlite path configured, invites are kept in memory")
	}

	var presence storage.PresenceStore = memory.NewPresenceStore()
	if path := strings.TrimSpace(config.PresencePath); path != "" {
		if err := ensureParentDir(path); err != nil {
			server.Close()
			return nil, err
		}
		store, err := storagebbolt.Open(path)
		if err != nil {
			server.Close()
			return nil, fmt.Errorf("open presence store: %w", err)
		}
		server.closers = append(server.closers, store.Close)
		presence = store
	}

	var authorizer wsAuthorizer
	if secret := strings.TrimSpace(config.JWTSecret); secret != "" {
		issuer, err := token.NewIssuer(token.Config{Secret: secret})
		if err != nil {
			server.Close()
			return nil, fmt.Errorf("init token verifier: %w", err)
		}
		authorizer = newTokenAuthorizer(issuer)
	}

	server.coordinator = NewCoordinator(CoordinatorConfig{
		Invites:      invites,
		Presence:     presence,
		StrictSender: config.StrictSender,
		StoreTimeout: config.StoreTimeout,
	})
	server.httpServer = &http.Server{
		Addr: httpAddr,
		Handler: newHandler(handlerDeps{
			coordinator: server.coordinator,
			authorizer:  authorizer,
			requireAuth: authorizer != nil,
			presence:    presence,
			identities:  identities,
		}),
		ReadHeaderTimeout: config.ReadHeaderTimeout,
	}
	return server, nil
}

// Run creates and serves a chat server until the context ends.
func Run(ctx context.Context, config Config) error {
	server, err := NewServerWithContext(ctx, config)
	if err != nil {
		return fmt.Errorf("init chat server: %w", err)
	}
	defer server.Close()

	if err := server.ListenAndServe(ctx); err != nil {
		return fmt.Errorf("serve chat: %w", err)
	}
	return nil
}

// ListenAndServe runs the HTTP server until the context ends.
func (s *Server) ListenAndServe(ctx context.Context) error {
	if s == nil {
		return errors.New("chat server is nil")
	}
	if ctx == nil {
		return errors.New("context is required")
	}

	serveErr := make(chan error, 1)
	log.Printf("chat server listening on %s", s.httpAddr)
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
	if s.coordinator != nil {
		s.coordinator.Close()
	}
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			log.Printf("chat: close store: %v", err)
		}
	}
	s.closers = nil
}

func ensureParentDir(path string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create storage dir: %w", err)
		}
	}
	return nil
}
