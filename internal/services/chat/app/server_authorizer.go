package server

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/phantom-chat/phantom/internal/services/auth/token"
)

// wsAuthorizer resolves an access token to the Phantom ID it was issued for.
type wsAuthorizer interface {
	Authenticate(ctx context.Context, accessToken string) (string, error)
}

type tokenAuthorizer struct {
	verifier token.Verifier
}

func newTokenAuthorizer(verifier token.Verifier) wsAuthorizer {
	if verifier == nil {
		return nil
	}
	return &tokenAuthorizer{verifier: verifier}
}

func (a *tokenAuthorizer) Authenticate(ctx context.Context, accessToken string) (string, error) {
	if a == nil || a.verifier == nil {
		return "", errors.New("auth is not configured")
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return a.verifier.Verify(accessToken)
}

// accessTokenFromRequest reads a bearer token from the Authorization header,
// the token query parameter, or the phantom_token cookie, in that order.
func accessTokenFromRequest(r *http.Request) string {
	if r == nil {
		return ""
	}
	if header := strings.TrimSpace(r.Header.Get("Authorization")); header != "" {
		scheme, value, ok := strings.Cut(header, " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			if value = strings.TrimSpace(value); value != "" {
				return value
			}
		}
	}
	if value := strings.TrimSpace(r.URL.Query().Get("token")); value != "" {
		return value
	}
	cookie, err := r.Cookie(tokenCookieName)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(cookie.Value)
}
