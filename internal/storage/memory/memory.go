// Package memory provides in-process store implementations used when no
// database path is configured and in tests.
package memory

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/phantom-chat/phantom/internal/storage"
	"github.com/sasha-s/go-deadlock"
)

// InviteStore keeps invites in insertion order.
type InviteStore struct {
	mu      deadlock.RWMutex
	invites []storage.Invite
	now     func() time.Time
}

// NewInviteStore returns an empty invite store.
func NewInviteStore() *InviteStore {
	return &InviteStore{now: time.Now}
}

// RecordInvite appends an invite.
func (s *InviteStore) RecordInvite(ctx context.Context, invite storage.Invite) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if strings.TrimSpace(invite.RoomID) == "" || strings.TrimSpace(invite.SenderPhantomID) == "" || strings.TrimSpace(invite.ReceiverPhantomID) == "" {
		return fmt.Errorf("invite room, sender and receiver are required")
	}
	if invite.CreatedAt.IsZero() {
		invite.CreatedAt = s.now().UTC()
	}
	s.mu.Lock()
	s.invites = append(s.invites, invite)
	s.mu.Unlock()
	return nil
}

// FindInvite returns the newest matching invite.
func (s *InviteStore) FindInvite(ctx context.Context, roomID string, receiverPhantomID string) (storage.Invite, error) {
	if err := ctx.Err(); err != nil {
		return storage.Invite{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := len(s.invites) - 1; i >= 0; i-- {
		invite := s.invites[i]
		if invite.RoomID == roomID && invite.ReceiverPhantomID == receiverPhantomID {
			return invite, nil
		}
	}
	return storage.Invite{}, storage.ErrNotFound
}

// IdentityStore indexes identities by Phantom ID and public key.
type IdentityStore struct {
	mu          deadlock.RWMutex
	byPhantomID map[string]storage.IdentityRecord
	byPublicKey map[string]string
}

// NewIdentityStore returns an empty identity store.
func NewIdentityStore() *IdentityStore {
	return &IdentityStore{
		byPhantomID: make(map[string]storage.IdentityRecord),
		byPublicKey: make(map[string]string),
	}
}

// PutIdentity enrolls an identity or reports ErrAlreadyExists.
func (s *IdentityStore) PutIdentity(ctx context.Context, record storage.IdentityRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	record.PublicKey = strings.ToLower(strings.TrimSpace(record.PublicKey))
	if strings.TrimSpace(record.PhantomID) == "" || record.PublicKey == "" {
		return fmt.Errorf("phantom id and public key are required")
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byPhantomID[record.PhantomID]; ok {
		return storage.ErrAlreadyExists
	}
	if _, ok := s.byPublicKey[record.PublicKey]; ok {
		return storage.ErrAlreadyExists
	}
	s.byPhantomID[record.PhantomID] = record
	s.byPublicKey[record.PublicKey] = record.PhantomID
	return nil
}

// GetIdentityByPhantomID fetches an identity.
func (s *IdentityStore) GetIdentityByPhantomID(ctx context.Context, phantomID string) (storage.IdentityRecord, error) {
	if err := ctx.Err(); err != nil {
		return storage.IdentityRecord{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	record, ok := s.byPhantomID[phantomID]
	if !ok {
		return storage.IdentityRecord{}, storage.ErrNotFound
	}
	return record, nil
}

// GetIdentityByPublicKey fetches an identity by hex public key.
func (s *IdentityStore) GetIdentityByPublicKey(ctx context.Context, publicKey string) (storage.IdentityRecord, error) {
	if err := ctx.Err(); err != nil {
		return storage.IdentityRecord{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	phantomID, ok := s.byPublicKey[strings.ToLower(strings.TrimSpace(publicKey))]
	if !ok {
		return storage.IdentityRecord{}, storage.ErrNotFound
	}
	return s.byPhantomID[phantomID], nil
}

// PresenceStore keeps last-write-wins presence markers.
type PresenceStore struct {
	mu       deadlock.RWMutex
	statuses map[string]storage.Status
}

// NewPresenceStore returns an empty presence store.
func NewPresenceStore() *PresenceStore {
	return &PresenceStore{statuses: make(map[string]storage.Status)}
}

// SetStatus overwrites the marker for a Phantom ID.
func (s *PresenceStore) SetStatus(ctx context.Context, phantomID string, status storage.Status) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if strings.TrimSpace(phantomID) == "" {
		return fmt.Errorf("phantom id is required")
	}
	if status != storage.StatusOnline && status != storage.StatusOffline {
		return fmt.Errorf("invalid presence status %q", status)
	}
	s.mu.Lock()
	s.statuses[phantomID] = status
	s.mu.Unlock()
	return nil
}

// GetStatus fetches the marker for a Phantom ID.
func (s *PresenceStore) GetStatus(ctx context.Context, phantomID string) (storage.Status, error) {
	if err := ctx.Err(); err != nil {
		return storage.StatusUnknown, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	status, ok := s.statuses[phantomID]
	if !ok {
		return storage.StatusUnknown, storage.ErrNotFound
	}
	return status, nil
}

var (
	_ storage.InviteStore   = (*InviteStore)(nil)
	_ storage.IdentityStore = (*IdentityStore)(nil)
	_ storage.PresenceStore = (*PresenceStore)(nil)
)
