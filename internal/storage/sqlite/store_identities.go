package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/phantom-chat/phantom/internal/storage"
)

// PutIdentity enrolls an identity. Both the Phantom ID and the public key
// must be unused.
func (s *Store) PutIdentity(ctx context.Context, record storage.IdentityRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.ready(); err != nil {
		return err
	}
	phantomID := strings.TrimSpace(record.PhantomID)
	publicKey := strings.ToLower(strings.TrimSpace(record.PublicKey))
	if phantomID == "" || publicKey == "" {
		return fmt.Errorf("phantom id and public key are required")
	}
	createdAt := record.CreatedAt
	if createdAt.IsZero() {
		createdAt = s.now()
	}

	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO identities (phantom_id, public_key, origin, created_at)
VALUES (?, ?, ?, ?)`,
		phantomID, publicKey, record.Origin, toMillis(createdAt),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return storage.ErrAlreadyExists
		}
		return fmt.Errorf("insert identity: %w", err)
	}
	return nil
}

// GetIdentityByPhantomID fetches an enrolled identity.
func (s *Store) GetIdentityByPhantomID(ctx context.Context, phantomID string) (storage.IdentityRecord, error) {
	phantomID = strings.TrimSpace(phantomID)
	if phantomID == "" {
		return storage.IdentityRecord{}, fmt.Errorf("phantom id is required")
	}
	return s.getIdentity(ctx, "phantom_id", phantomID)
}

// GetIdentityByPublicKey fetches an enrolled identity by hex public key.
func (s *Store) GetIdentityByPublicKey(ctx context.Context, publicKey string) (storage.IdentityRecord, error) {
	publicKey = strings.ToLower(strings.TrimSpace(publicKey))
	if publicKey == "" {
		return storage.IdentityRecord{}, fmt.Errorf("public key is required")
	}
	return s.getIdentity(ctx, "public_key", publicKey)
}

func (s *Store) getIdentity(ctx context.Context, column string, value string) (storage.IdentityRecord, error) {
	if err := ctx.Err(); err != nil {
		return storage.IdentityRecord{}, err
	}
	if err := s.ready(); err != nil {
		return storage.IdentityRecord{}, err
	}

	// column is one of two fixed names chosen by the callers above.
	row := s.sqlDB.QueryRowContext(ctx, `
SELECT phantom_id, public_key, origin, created_at
FROM identities
WHERE `+column+` = ?`, value)

	var record storage.IdentityRecord
	var createdAt int64
	if err := row.Scan(&record.PhantomID, &record.PublicKey, &record.Origin, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.IdentityRecord{}, storage.ErrNotFound
		}
		return storage.IdentityRecord{}, fmt.Errorf("query identity: %w", err)
	}
	record.CreatedAt = fromMillis(createdAt)
	return record, nil
}
