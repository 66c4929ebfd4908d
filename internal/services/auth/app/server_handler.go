package server

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	apperrors "github.com/phantom-chat/phantom/internal/platform/errors"
	"github.com/phantom-chat/phantom/internal/platform/timeouts"
	"github.com/phantom-chat/phantom/internal/services/auth/identity"
	"github.com/phantom-chat/phantom/internal/services/auth/token"
	"github.com/phantom-chat/phantom/internal/storage"
	"github.com/phantom-chat/phantom/internal/storage/memory"
)

const (
	tracerName      = "github.com/phantom-chat/phantom/internal/services/auth/app"
	maxRequestBytes = 8 * 1024
)

// Deps wires the auth handler to its collaborators.
type Deps struct {
	Identities storage.IdentityStore
	Invites    storage.InviteStore
	Issuer     *token.Issuer
	Engine     *identity.Engine
}

type handler struct {
	identities storage.IdentityStore
	invites    storage.InviteStore
	issuer     *token.Issuer
	engine     *identity.Engine
	enroller   *identity.Enroller
	tracer     trace.Tracer
}

type mnemonicRequest struct {
	Mnemonic []string `json:"mnemonic"`
}

type generateIdentityResponse struct {
	Mnemonic  []string `json:"mnemonic"`
	PhantomID string   `json:"phantomId"`
}

type authResponse struct {
	PhantomID string `json:"phantomId"`
	JWTToken  string `json:"jwtToken"`
}

type identityResponse struct {
	Identity identityPayload `json:"identity"`
}

type identityPayload struct {
	PrivateKey string `json:"privateKey"`
	PublicKey  string `json:"publicKey"`
	PhantomID  string `json:"phantomId"`
}

type phantomResponse struct {
	PhantomID string `json:"phantomId"`
}

type inviteResponse struct {
	Invite storage.Invite `json:"invite"`
}

type errorResponse struct {
	Error errorBody `json:"error"`
}

type errorBody struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
}

// NewHandler builds the auth routes.
func NewHandler(deps Deps) http.Handler {
	if deps.Engine == nil {
		deps.Engine = identity.NewEngine()
	}
	if deps.Identities == nil {
		deps.Identities = memory.NewIdentityStore()
	}
	if deps.Invites == nil {
		deps.Invites = memory.NewInviteStore()
	}
	h := &handler{
		identities: deps.Identities,
		invites:    deps.Invites,
		issuer:     deps.Issuer,
		engine:     deps.Engine,
		enroller:   identity.NewEnroller(deps.Identities),
		tracer:     otel.Tracer(tracerName),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /up", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	mux.Handle("POST /v1/generate-identity", h.traced("auth.generate_identity", h.generateIdentity))
	mux.Handle("POST /v1/auth", h.traced("auth.authenticate", h.authenticate))
	mux.Handle("POST /v1/identity", h.traced("auth.identity", h.restoreIdentity))
	mux.Handle("GET /v1/me", h.traced("auth.me", h.me))
	mux.Handle("GET /v1/users/verify", h.traced("auth.verify_user", h.verifyUser))
	mux.Handle("GET /v1/recipient", h.traced("auth.recipient", h.recipient))
	mux.Handle("GET /v1/invite", h.traced("auth.invite", h.invite))
	return mux
}

// traced runs fn inside a span and renders its error.
func (h *handler) traced(name string, fn func(http.ResponseWriter, *http.Request) error) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, span := h.tracer.Start(r.Context(), name)
		defer span.End()

		if err := fn(w, r.WithContext(ctx)); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, apperrors.MessageOf(err, "request failed"))
			writeError(w, err)
		}
	})
}

func (h *handler) generateIdentity(w http.ResponseWriter, r *http.Request) error {
	ctx, cancel := context.WithTimeout(r.Context(), timeouts.StoreCall)
	defer cancel()

	var phrase string
	enrolled, err := h.enroller.Enroll(ctx, func() (identity.Identity, error) {
		minted, mintedPhrase, err := h.engine.GenerateWithRecoveryPhrase()
		if err != nil {
			return identity.Identity{}, err
		}
		phrase = mintedPhrase
		return minted, nil
	})
	if err != nil {
		log.Printf("auth: generate identity failed: %v", err)
		return err
	}
	log.Printf("auth: enrolled identity phantom=%q", enrolled.PhantomID)
	writeJSON(w, http.StatusOK, generateIdentityResponse{
		Mnemonic:  strings.Fields(phrase),
		PhantomID: enrolled.PhantomID,
	})
	return nil
}

func (h *handler) authenticate(w http.ResponseWriter, r *http.Request) error {
	restored, record, err := h.lookupByPhrase(w, r)
	if err != nil {
		return err
	}
	if h.issuer == nil {
		return apperrors.New(apperrors.CodeFailedPrecondition, "token issuer is not configured")
	}
	signed, err := h.issuer.Issue(record.PhantomID)
	if err != nil {
		return apperrors.Wrap(apperrors.CodeUnknown, "token could not be issued", err)
	}
	log.Printf("auth: issued token phantom=%q origin=%q", record.PhantomID, restored.Origin)
	writeJSON(w, http.StatusOK, authResponse{PhantomID: record.PhantomID, JWTToken: signed})
	return nil
}

func (h *handler) restoreIdentity(w http.ResponseWriter, r *http.Request) error {
	restored, record, err := h.lookupByPhrase(w, r)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, identityResponse{Identity: identityPayload{
		PrivateKey: restored.SecretHex(),
		PublicKey:  restored.PublicKeyHex(),
		PhantomID:  record.PhantomID,
	}})
	return nil
}

// lookupByPhrase restores the identity in the request body and finds the
// enrolled record for its public key.
func (h *handler) lookupByPhrase(w http.ResponseWriter, r *http.Request) (identity.Identity, storage.IdentityRecord, error) {
	var request mnemonicRequest
	if err := decodeJSON(w, r, &request); err != nil {
		return identity.Identity{}, storage.IdentityRecord{}, err
	}
	restored, err := identity.Restore(strings.Join(request.Mnemonic, " "))
	if err != nil {
		return identity.Identity{}, storage.IdentityRecord{}, err
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.StoreCall)
	defer cancel()
	record, err := h.identities.GetIdentityByPublicKey(ctx, restored.PublicKeyHex())
	if err != nil {
		return identity.Identity{}, storage.IdentityRecord{}, identityLookupError(err)
	}
	return restored, record, nil
}

func (h *handler) me(w http.ResponseWriter, r *http.Request) error {
	phantomID, err := h.authenticated(r)
	if err != nil {
		return err
	}
	if err := h.requireIdentity(r.Context(), phantomID); err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, phantomResponse{PhantomID: phantomID})
	return nil
}

func (h *handler) verifyUser(w http.ResponseWriter, r *http.Request) error {
	phantomID := strings.TrimSpace(r.URL.Query().Get("phantomId"))
	if phantomID == "" {
		return apperrors.New(apperrors.CodeValidationFailed, "phantomId is required")
	}
	if err := h.requireIdentity(r.Context(), phantomID); err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, phantomResponse{PhantomID: phantomID})
	return nil
}

func (h *handler) recipient(w http.ResponseWriter, r *http.Request) error {
	phantomID, err := h.authenticated(r)
	if err != nil {
		return err
	}
	target := strings.TrimSpace(r.URL.Query().Get("targetPhantomId"))
	if target == "" {
		return apperrors.New(apperrors.CodeValidationFailed, "targetPhantomId is required")
	}
	if target == phantomID {
		return apperrors.New(apperrors.CodeValidationFailed, "you cannot invite yourself")
	}
	if err := h.requireIdentity(r.Context(), target); err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, phantomResponse{PhantomID: target})
	return nil
}

func (h *handler) invite(w http.ResponseWriter, r *http.Request) error {
	query := r.URL.Query()
	receiver := strings.TrimSpace(query.Get("receiver"))
	roomID := strings.TrimSpace(query.Get("chatId"))
	if receiver == "" || roomID == "" {
		return apperrors.New(apperrors.CodeValidationFailed, "receiver and chatId are required")
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.StoreCall)
	defer cancel()
	found, err := h.invites.FindInvite(ctx, roomID, receiver)
	switch {
	case err == nil:
	case errors.Is(err, storage.ErrNotFound):
		return apperrors.New(apperrors.CodeNotFound, "invite not found")
	default:
		log.Printf("auth: find invite failed room=%q err=%v", roomID, err)
		return apperrors.Wrap(apperrors.CodeStoreUnavailable, "invite store unavailable", err)
	}
	writeJSON(w, http.StatusOK, inviteResponse{Invite: found})
	return nil
}

// authenticated returns the Phantom ID carried by the request's bearer token.
func (h *handler) authenticated(r *http.Request) (string, error) {
	if h.issuer == nil {
		return "", apperrors.New(apperrors.CodeFailedPrecondition, "token issuer is not configured")
	}
	raw := bearerToken(r)
	if raw == "" {
		return "", token.ErrUnauthorized
	}
	return h.issuer.Verify(raw)
}

func (h *handler) requireIdentity(ctx context.Context, phantomID string) error {
	ctx, cancel := context.WithTimeout(ctx, timeouts.StoreCall)
	defer cancel()
	if _, err := h.identities.GetIdentityByPhantomID(ctx, phantomID); err != nil {
		return identityLookupError(err)
	}
	return nil
}

func identityLookupError(err error) error {
	if errors.Is(err, storage.ErrNotFound) {
		return apperrors.New(apperrors.CodeNotFound, "phantom id not found")
	}
	log.Printf("auth: identity lookup failed: %v", err)
	return apperrors.Wrap(apperrors.CodeStoreUnavailable, "identity store unavailable", err)
}

// bearerToken reads the Authorization header, falling back to the token
// query parameter.
func bearerToken(r *http.Request) string {
	if header := strings.TrimSpace(r.Header.Get("Authorization")); header != "" {
		scheme, value, ok := strings.Cut(header, " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(value)
		}
	}
	return strings.TrimSpace(r.URL.Query().Get("token"))
}

func decodeJSON(w http.ResponseWriter, r *http.Request, target any) error {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes)).Decode(target); err != nil {
		return apperrors.Wrap(apperrors.CodeValidationFailed, "invalid request body", err)
	}
	return nil
}

func writeError(w http.ResponseWriter, err error) {
	code := apperrors.CodeOf(err)
	writeJSON(w, code.HTTPStatus(), errorResponse{Error: errorBody{
		Code:      string(code),
		Message:   apperrors.MessageOf(err, "internal error"),
		Retryable: code == apperrors.CodeStoreUnavailable,
	}})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("auth: write response: %v", err)
	}
}

