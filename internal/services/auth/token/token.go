// Package token issues and verifies the bearer tokens that bind a client to a
// Phantom ID.
package token

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	apperrors "github.com/phantom-chat/phantom/internal/platform/errors"
)

// DefaultTTL is how long an issued token stays valid.
const DefaultTTL = 24 * time.Hour

const issuerName = "phantom-auth"

var (
	// ErrUnauthorized indicates a missing, malformed, or forged token.
	ErrUnauthorized = apperrors.New(apperrors.CodeUnauthorized, "unauthorized")
	// ErrTokenExpired indicates a well-formed token past its expiry.
	ErrTokenExpired = apperrors.New(apperrors.CodeTokenExpired, "token is expired")
)

// Config controls token signing.
type Config struct {
	Secret string
	TTL    time.Duration
	Now    func() time.Time
}

// Issuer signs and verifies HS256 tokens.
type Issuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// Verifier resolves a bearer token to a Phantom ID.
type Verifier interface {
	Verify(token string) (string, error)
}

type claims struct {
	jwt.RegisteredClaims
	PhantomID string `json:"phantomId"`
}

// NewIssuer validates cfg and builds an Issuer.
func NewIssuer(cfg Config) (*Issuer, error) {
	secret := strings.TrimSpace(cfg.Secret)
	if secret == "" {
		return nil, errors.New("token secret is required")
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Issuer{secret: []byte(secret), ttl: ttl, now: now}, nil
}

// Issue signs a token for phantomID.
func (i *Issuer) Issue(phantomID string) (string, error) {
	phantomID = strings.TrimSpace(phantomID)
	if phantomID == "" {
		return "", apperrors.New(apperrors.CodeValidationFailed, "phantom id is required")
	}
	issuedAt := i.now().UTC()
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuerName,
			Subject:   phantomID,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(issuedAt.Add(i.ttl)),
		},
		PhantomID: phantomID,
	}).SignedString(i.secret)
	if err != nil {
		return "", err
	}
	return signed, nil
}

// Verify returns the Phantom ID bound to raw.
func (i *Issuer) Verify(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", ErrUnauthorized
	}

	var parsed claims
	_, err := jwt.ParseWithClaims(raw, &parsed, func(token *jwt.Token) (any, error) {
		return i.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuerName),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil {
		return "", mapJWTError(err)
	}

	phantomID := strings.TrimSpace(parsed.PhantomID)
	if phantomID == "" || phantomID != parsed.Subject {
		return "", ErrUnauthorized
	}
	return phantomID, nil
}

// mapJWTError translates jwt library errors to application errors.
func mapJWTError(err error) error {
	if errors.Is(err, jwt.ErrTokenExpired) {
		return ErrTokenExpired
	}
	return apperrors.Wrap(apperrors.CodeUnauthorized, "unauthorized", err)
}
