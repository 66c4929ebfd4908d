package storage

import (
	"context"
	"errors"
	"strings"
	"time"
)

// ErrNotFound indicates a requested record is missing.
var ErrNotFound = errors.New("record not found")

// ErrAlreadyExists indicates a uniqueness constraint rejected a write.
var ErrAlreadyExists = errors.New("record already exists")

// Invite records that a sender designated a receiver for a room.
// Invites are immutable once written.
type Invite struct {
	RoomID            string    `json:"roomId"`
	SenderPhantomID   string    `json:"senderPhantomId"`
	ReceiverPhantomID string    `json:"receiverPhantomId"`
	CreatedAt         time.Time `json:"createdAt"`
}

// IdentityRecord is the enrolled, public half of an identity.
type IdentityRecord struct {
	PhantomID string
	PublicKey string // hex
	Origin    string
	CreatedAt time.Time
}

// Status is an advisory presence marker.
type Status string

const (
	StatusUnknown Status = ""
	StatusOnline  Status = "Online"
	StatusOffline Status = "Offline"
)

// ParseStatus accepts a presence value case-insensitively.
func ParseStatus(value string) (Status, bool) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "online":
		return StatusOnline, true
	case "offline":
		return StatusOffline, true
	default:
		return StatusUnknown, false
	}
}

// InviteStore persists invites. It does not de-duplicate room IDs.
type InviteStore interface {
	RecordInvite(ctx context.Context, invite Invite) error
	// FindInvite returns the newest invite for roomID addressed to receiverPhantomID.
	FindInvite(ctx context.Context, roomID string, receiverPhantomID string) (Invite, error)
}

// IdentityStore enrolls identities and looks them up.
type IdentityStore interface {
	// PutIdentity returns ErrAlreadyExists when the Phantom ID or public key is taken.
	PutIdentity(ctx context.Context, record IdentityRecord) error
	GetIdentityByPhantomID(ctx context.Context, phantomID string) (IdentityRecord, error)
	GetIdentityByPublicKey(ctx context.Context, publicKey string) (IdentityRecord, error)
}

// PresenceStore holds last-write-wins presence markers.
type PresenceStore interface {
	SetStatus(ctx context.Context, phantomID string, status Status) error
	// GetStatus returns StatusUnknown and ErrNotFound when no marker exists.
	GetStatus(ctx context.Context, phantomID string) (Status, error)
}
