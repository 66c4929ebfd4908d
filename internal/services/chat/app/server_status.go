package server

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"

	apperrors "github.com/phantom-chat/phantom/internal/platform/errors"
	"github.com/phantom-chat/phantom/internal/platform/timeouts"
	"github.com/phantom-chat/phantom/internal/storage"
	"github.com/phantom-chat/phantom/internal/storage/memory"
)

const maxStatusBodyBytes = 4 * 1024

// statusHandler serves advisory presence reads and writes.
type statusHandler struct {
	presence   storage.PresenceStore
	identities storage.IdentityStore
}

type statusResponse struct {
	PhantomID string  `json:"phantomId"`
	Status    *string `json:"status"`
}

type updateStatusRequest struct {
	PhantomID string `json:"phantomId"`
	Status    string `json:"status"`
}

type httpErrorResponse struct {
	Error wsError `json:"error"`
}

// newStatusHandler builds the handler. A nil identity store skips the
// known-identity check.
func newStatusHandler(presence storage.PresenceStore, identities storage.IdentityStore) http.Handler {
	if presence == nil {
		presence = memory.NewPresenceStore()
	}
	return &statusHandler{presence: presence, identities: identities}
}

func (h *statusHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.getStatus(w, r)
	case http.MethodPost:
		h.updateStatus(w, r)
	default:
		w.Header().Set("Allow", http.MethodGet+", "+http.MethodPost)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *statusHandler) getStatus(w http.ResponseWriter, r *http.Request) {
	phantomID := strings.TrimSpace(r.URL.Query().Get("phantomId"))
	if phantomID == "" {
		writeHTTPError(w, apperrors.New(apperrors.CodeValidationFailed, "phantomId is required"))
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), timeouts.StoreCall)
	defer cancel()

	if err := h.requireIdentity(ctx, phantomID); err != nil {
		writeHTTPError(w, err)
		return
	}

	response := statusResponse{PhantomID: phantomID}
	status, err := h.presence.GetStatus(ctx, phantomID)
	switch {
	case err == nil:
		value := string(status)
		response.Status = &value
	case errors.Is(err, storage.ErrNotFound):
	default:
		log.Printf("chat: get presence failed phantom=%q err=%v", phantomID, err)
		writeHTTPError(w, apperrors.Wrap(apperrors.CodeStoreUnavailable, "presence store unavailable", err))
		return
	}
	writeJSON(w, http.StatusOK, response)
}

func (h *statusHandler) updateStatus(w http.ResponseWriter, r *http.Request) {
	var request updateStatusRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxStatusBodyBytes)).Decode(&request); err != nil {
		writeHTTPError(w, apperrors.New(apperrors.CodeValidationFailed, "invalid status payload"))
		return
	}
	phantomID := strings.TrimSpace(request.PhantomID)
	status, ok := storage.ParseStatus(request.Status)
	if phantomID == "" || !ok {
		writeHTTPError(w, apperrors.New(apperrors.CodeValidationFailed, "phantomId and a status of Online or Offline are required"))
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), timeouts.StoreCall)
	defer cancel()

	if err := h.requireIdentity(ctx, phantomID); err != nil {
		writeHTTPError(w, err)
		return
	}
	if err := h.presence.SetStatus(ctx, phantomID, status); err != nil {
		log.Printf("chat: set presence failed phantom=%q err=%v", phantomID, err)
		writeHTTPError(w, apperrors.Wrap(apperrors.CodeStoreUnavailable, "presence store unavailable", err))
		return
	}
	value := string(status)
	writeJSON(w, http.StatusOK, statusResponse{PhantomID: phantomID, Status: &value})
}

func (h *statusHandler) requireIdentity(ctx context.Context, phantomID string) error {
	if h.identities == nil {
		return nil
	}
	_, err := h.identities.GetIdentityByPhantomID(ctx, phantomID)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, storage.ErrNotFound):
		return apperrors.New(apperrors.CodeNotFound, "phantom id not found")
	default:
		log.Printf("chat: identity lookup failed phantom=%q err=%v", phantomID, err)
		return apperrors.Wrap(apperrors.CodeStoreUnavailable, "identity store unavailable", err)
	}
}

func writeHTTPError(w http.ResponseWriter, err error) {
	code := apperrors.CodeOf(err)
	writeJSON(w, code.HTTPStatus(), httpErrorResponse{Error: wsError{
		Code:      string(code),
		Message:   apperrors.MessageOf(err, "internal error"),
		Retryable: code == apperrors.CodeStoreUnavailable,
	}})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("chat: write response: %v", err)
	}
}
