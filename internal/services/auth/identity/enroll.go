package identity

import (
	"context"
	"errors"
	"log"
	"time"

	apperrors "github.com/phantom-chat/phantom/internal/platform/errors"
	"github.com/phantom-chat/phantom/internal/storage"
)

// MaxEnrollAttempts bounds how many identities Enroll mints before giving up.
const MaxEnrollAttempts = 10

var (
	// ErrIdentityCollision indicates a minted identity is already enrolled.
	ErrIdentityCollision = apperrors.New(apperrors.CodeIdentityCollision, "identity already enrolled")
	// ErrGenerationExhausted indicates every enrollment attempt collided.
	ErrGenerationExhausted = apperrors.New(apperrors.CodeIdentityGenerationExhausted, "unable to generate a unique identity")
)

// Minter produces one candidate identity per call.
type Minter func() (Identity, error)

// Enroller records freshly minted identities, retrying on collisions.
type Enroller struct {
	store       storage.IdentityStore
	now         func() time.Time
	maxAttempts int
}

// NewEnroller returns an enroller writing to store.
func NewEnroller(store storage.IdentityStore) *Enroller {
	return &Enroller{
		store:       store,
		now:         time.Now,
		maxAttempts: MaxEnrollAttempts,
	}
}

// Enroll mints identities until one is accepted by the store.
func (e *Enroller) Enroll(ctx context.Context, mint Minter) (Identity, error) {
	if e == nil || e.store == nil {
		return Identity{}, errors.New("identity store is not configured")
	}
	if mint == nil {
		return Identity{}, errors.New("identity minter is required")
	}

	for attempt := 1; attempt <= e.maxAttempts; attempt++ {
		candidate, err := mint()
		if err != nil {
			return Identity{}, err
		}
		err = e.put(ctx, candidate)
		if err == nil {
			return candidate, nil
		}
		if !errors.Is(err, ErrIdentityCollision) {
			return Identity{}, err
		}
		log.Printf("identity: enrollment collision attempt=%d origin=%q", attempt, candidate.Origin)
	}
	return Identity{}, ErrGenerationExhausted
}

func (e *Enroller) put(ctx context.Context, candidate Identity) error {
	err := e.store.PutIdentity(ctx, storage.IdentityRecord{
		PhantomID: candidate.PhantomID,
		PublicKey: candidate.PublicKeyHex(),
		Origin:    string(candidate.Origin),
		CreatedAt: e.now().UTC(),
	})
	switch {
	case err == nil:
		return nil
	case errors.Is(err, storage.ErrAlreadyExists):
		return ErrIdentityCollision
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	default:
		return apperrors.Wrap(apperrors.CodeStoreUnavailable, "identity store unavailable", err)
	}
}
