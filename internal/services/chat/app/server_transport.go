package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"golang.org/x/net/websocket"

	apperrors "github.com/phantom-chat/phantom/internal/platform/errors"
	"github.com/phantom-chat/phantom/internal/platform/requestctx"
	"github.com/phantom-chat/phantom/internal/services/auth/token"
	"github.com/phantom-chat/phantom/internal/storage"
)

const peerDrainTimeout = time.Second

type handlerDeps struct {
	coordinator *Coordinator
	authorizer  wsAuthorizer
	requireAuth bool
	presence    storage.PresenceStore
	identities  storage.IdentityStore
}

// NewHandler creates chat routes for tests and offline paths.
// WebSocket auth is disabled and every store lives in memory.
func NewHandler(coordinator *Coordinator) http.Handler {
	if coordinator == nil {
		coordinator = NewCoordinator(CoordinatorConfig{StrictSender: true})
	}
	return newHandler(handlerDeps{coordinator: coordinator})
}

// NewHandlerWithAuthorizer creates chat routes with enforced websocket identity checks.
func NewHandlerWithAuthorizer(coordinator *Coordinator, verifier token.Verifier) http.Handler {
	if coordinator == nil {
		coordinator = NewCoordinator(CoordinatorConfig{StrictSender: true})
	}
	return newHandler(handlerDeps{
		coordinator: coordinator,
		authorizer:  newTokenAuthorizer(verifier),
		requireAuth: true,
	})
}

func newHandler(deps handlerDeps) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/up", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	status := newStatusHandler(deps.presence, deps.identities)
	mux.Handle("/v1/status", status)

	wsHandler := websocket.Handler(func(conn *websocket.Conn) {
		handleWSConn(conn, deps.coordinator)
	})

	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.Header().Set("Allow", http.MethodGet)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		if deps.requireAuth {
			if deps.authorizer == nil {
				http.Error(w, "websocket auth is not configured", http.StatusServiceUnavailable)
				return
			}

			accessToken := accessTokenFromRequest(r)
			if accessToken == "" {
				log.Printf("chat: websocket unauthorized: missing token for host=%q remote=%s path=%q", r.Host, r.RemoteAddr, r.URL.Path)
				http.Error(w, "authentication required", http.StatusUnauthorized)
				return
			}

			phantomID, err := deps.authorizer.Authenticate(r.Context(), accessToken)
			if err != nil || strings.TrimSpace(phantomID) == "" {
				if err != nil {
					log.Printf("chat: websocket unauthorized: token rejected for host=%q remote=%s code=%s", r.Host, r.RemoteAddr, apperrors.CodeOf(err))
				} else {
					log.Printf("chat: websocket unauthorized: empty phantom id for host=%q remote=%s", r.Host, r.RemoteAddr)
				}
				http.Error(w, "authentication required", http.StatusUnauthorized)
				return
			}

			r = r.WithContext(requestctx.WithPhantomID(r.Context(), phantomID))
		}

		wsHandler.ServeHTTP(w, r)
	})

	return mux
}

func handleWSConn(conn *websocket.Conn, coordinator *Coordinator) {
	defer func() {
		_ = conn.Close()
	}()

	ctx := context.Background()
	authPhantomID := ""
	if request := conn.Request(); request != nil {
		ctx = request.Context()
		authPhantomID = requestctx.PhantomIDFromContext(ctx)
	}

	decoder := json.NewDecoder(conn)
	peer := newWSPeer(conn, outboundQueueSize)
	defer peer.Drain(peerDrainTimeout)
	session := coordinator.Connect(peer, authPhantomID)
	defer coordinator.Disconnect(context.WithoutCancel(ctx), session)

	windowStart := time.Now()
	framesInWindow := 0
	decodeErrors := 0

	for {
		var frame wsFrame
		if err := decoder.Decode(&frame); err != nil {
			if errors.Is(err, io.EOF) || peer.closed() {
				return
			}
			decodeErrors++
			writeWSError(peer, "", apperrors.New(apperrors.CodeValidationFailed, "invalid frame payload"))
			if decodeErrors >= maxDecodeErrorsPerConn {
				return
			}
			continue
		}
		decodeErrors = 0

		if len(frame.Payload) > maxFramePayloadBytes {
			writeWSError(peer, frame.RequestID, apperrors.New(apperrors.CodeValidationFailed, "payload too large"))
			continue
		}

		now := time.Now()
		if now.Sub(windowStart) >= time.Second {
			windowStart = now
			framesInWindow = 0
		}
		framesInWindow++
		if framesInWindow > maxFramesPerSecond {
			writeWSError(peer, frame.RequestID, apperrors.New(apperrors.CodeRateLimited, "rate limit exceeded"))
			return
		}

		coordinator.Handle(ctx, session, frame)
	}
}

func writeWSError(p peer, requestID string, err error) {
	code := apperrors.CodeOf(err)
	_ = p.Send(wsFrame{
		Type:      frameError,
		RequestID: requestID,
		Payload: mustJSON(wsErrorEnvelope{
			Error: wsError{
				Code:      code.FrameCode(),
				Message:   apperrors.MessageOf(err, "internal error"),
				Retryable: code == apperrors.CodeStoreUnavailable,
			},
		}),
	})
}

func mustJSON(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		log.Printf("failed to marshal websocket frame payload: %v", err)
		return nil
	}
	return b
}
