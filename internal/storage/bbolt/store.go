// Package bbolt provides the BoltDB-backed presence store.
package bbolt

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/phantom-chat/phantom/internal/platform/timeouts"
	"github.com/phantom-chat/phantom/internal/storage"
	"go.etcd.io/bbolt"
)

const presenceBucket = "presence"

// Store provides a BoltDB-backed presence store.
type Store struct {
	db *bbolt.DB
}

var _ storage.PresenceStore = (*Store)(nil)

// Open opens a BoltDB-backed store at the provided path.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}

	cleanPath := filepath.Clean(path)
	db, err := bbolt.Open(cleanPath, 0o600, &bbolt.Options{Timeout: timeouts.StoreOpen})
	if err != nil {
		return nil, fmt.Errorf("open presence db: %w", err)
	}

	store := &Store{db: db}
	if err := store.ensureBuckets(); err != nil {
		_ = db.Close()
		return nil, err
	}

	return store, nil
}

// Close closes the underlying BoltDB database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// SetStatus overwrites the presence marker for a Phantom ID.
func (s *Store) SetStatus(ctx context.Context, phantomID string, status storage.Status) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.db == nil {
		return fmt.Errorf("storage is not configured")
	}
	phantomID = strings.TrimSpace(phantomID)
	if phantomID == "" {
		return fmt.Errorf("phantom id is required")
	}
	if status != storage.StatusOnline && status != storage.StatusOffline {
		return fmt.Errorf("invalid presence status %q", status)
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(presenceBucket))
		if bucket == nil {
			return fmt.Errorf("presence bucket is missing")
		}
		return bucket.Put([]byte(phantomID), []byte(status))
	})
}

// GetStatus fetches the presence marker for a Phantom ID.
func (s *Store) GetStatus(ctx context.Context, phantomID string) (storage.Status, error) {
	if err := ctx.Err(); err != nil {
		return storage.StatusUnknown, err
	}
	if s == nil || s.db == nil {
		return storage.StatusUnknown, fmt.Errorf("storage is not configured")
	}
	phantomID = strings.TrimSpace(phantomID)
	if phantomID == "" {
		return storage.StatusUnknown, fmt.Errorf("phantom id is required")
	}

	status := storage.StatusUnknown
	err := s.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(presenceBucket))
		if bucket == nil {
			return fmt.Errorf("presence bucket is missing")
		}
		value := bucket.Get([]byte(phantomID))
		if value == nil {
			return storage.ErrNotFound
		}
		parsed, ok := storage.ParseStatus(string(value))
		if !ok {
			return fmt.Errorf("corrupt presence value for %q", phantomID)
		}
		status = parsed
		return nil
	})
	if err != nil {
		return storage.StatusUnknown, err
	}
	return status, nil
}

func (s *Store) ensureBuckets() error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(presenceBucket))
		if err != nil {
			return fmt.Errorf("create presence bucket: %w", err)
		}
		return nil
	})
}
