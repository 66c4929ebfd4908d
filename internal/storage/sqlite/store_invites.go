package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/phantom-chat/phantom/internal/storage"
)

// RecordInvite appends an invite. Room IDs are not de-duplicated.
func (s *Store) RecordInvite(ctx context.Context, invite storage.Invite) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.ready(); err != nil {
		return err
	}
	roomID := strings.TrimSpace(invite.RoomID)
	sender := strings.TrimSpace(invite.SenderPhantomID)
	receiver := strings.TrimSpace(invite.ReceiverPhantomID)
	if roomID == "" || sender == "" || receiver == "" {
		return fmt.Errorf("invite room, sender and receiver are required")
	}
	createdAt := invite.CreatedAt
	if createdAt.IsZero() {
		createdAt = s.now()
	}

	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO invites (room_id, sender_phantom_id, receiver_phantom_id, created_at)
VALUES (?, ?, ?, ?)`,
		roomID, sender, receiver, toMillis(createdAt),
	)
	if err != nil {
		return fmt.Errorf("insert invite: %w", err)
	}
	return nil
}

// FindInvite returns the newest invite for a room addressed to the receiver.
func (s *Store) FindInvite(ctx context.Context, roomID string, receiverPhantomID string) (storage.Invite, error) {
	if err := ctx.Err(); err != nil {
		return storage.Invite{}, err
	}
	if err := s.ready(); err != nil {
		return storage.Invite{}, err
	}
	roomID = strings.TrimSpace(roomID)
	receiverPhantomID = strings.TrimSpace(receiverPhantomID)
	if roomID == "" || receiverPhantomID == "" {
		return storage.Invite{}, fmt.Errorf("room id and receiver are required")
	}

	row := s.sqlDB.QueryRowContext(ctx, `
SELECT room_id, sender_phantom_id, receiver_phantom_id, created_at
FROM invites
WHERE room_id = ? AND receiver_phantom_id = ?
ORDER BY created_at DESC, id DESC
LIMIT 1`,
		roomID, receiverPhantomID,
	)

	var invite storage.Invite
	var createdAt int64
	if err := row.Scan(&invite.RoomID, &invite.SenderPhantomID, &invite.ReceiverPhantomID, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.Invite{}, storage.ErrNotFound
		}
		return storage.Invite{}, fmt.Errorf("query invite: %w", err)
	}
	invite.CreatedAt = fromMillis(createdAt)
	return invite, nil
}
