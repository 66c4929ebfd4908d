package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/sasha-s/go-deadlock"

	apperrors "github.com/phantom-chat/phantom/internal/platform/errors"
	"github.com/phantom-chat/phantom/internal/platform/timeouts"
	"github.com/phantom-chat/phantom/internal/storage"
	"github.com/phantom-chat/phantom/internal/storage/memory"
)

const tracerName = "github.com/phantom-chat/phantom/internal/services/chat/app"

// connState is the lifecycle of one connection.
type connState int

const (
	stateUnbound connState = iota
	stateBound
	stateLeft
	stateDisconnected
)

func (s connState) String() string {
	switch s {
	case stateUnbound:
		return "unbound"
	case stateBound:
		return "bound"
	case stateLeft:
		return "left"
	case stateDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// peer delivers outbound frames to one client. Send must not block.
type peer interface {
	Send(frame wsFrame) error
}

// Conn is one client connection as seen by the coordinator.
type Conn struct {
	mu            deadlock.Mutex
	peer          peer
	authPhantomID string

	state     connState
	room      *room
	phantomID string // guarded by room.mu while bound
}

func (c *Conn) send(frame wsFrame) {
	if err := c.peer.Send(frame); err != nil {
		log.Printf("chat: dropping peer frame=%q phantom=%q err=%v", frame.Type, c.phantomID, err)
	}
}

// CoordinatorConfig wires the coordinator to its stores.
type CoordinatorConfig struct {
	Invites      storage.InviteStore
	Presence     storage.PresenceStore
	StrictSender bool
	StoreTimeout time.Duration
	Now          func() time.Time
}

// Coordinator owns room membership and relays frames between connections.
type Coordinator struct {
	arena        *roomArena
	invites      storage.InviteStore
	presence     *presenceTracker
	strictSender bool
	storeTimeout time.Duration
	now          func() time.Time
	tracer       trace.Tracer

	// inflight tracks invite writes still running after room-created.
	inflight sync.WaitGroup
}

// NewCoordinator builds a coordinator. Missing stores fall back to memory.
func NewCoordinator(cfg CoordinatorConfig) *Coordinator {
	if cfg.Invites == nil {
		cfg.Invites = memory.NewInviteStore()
	}
	if cfg.Presence == nil {
		cfg.Presence = memory.NewPresenceStore()
	}
	if cfg.StoreTimeout <= 0 {
		cfg.StoreTimeout = timeouts.StoreCall
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	tracer := otel.Tracer(tracerName)
	return &Coordinator{
		arena:        newRoomArena(),
		invites:      cfg.Invites,
		presence:     newPresenceTracker(cfg.Presence, cfg.StoreTimeout, tracer),
		strictSender: cfg.StrictSender,
		storeTimeout: cfg.StoreTimeout,
		now:          cfg.Now,
		tracer:       tracer,
	}
}

// Close waits for in-flight invite writes and flushes pending presence writes.
func (c *Coordinator) Close() {
	if c == nil {
		return
	}
	c.inflight.Wait()
	c.presence.close()
}

// Connect registers a new Unbound connection. authPhantomID is empty for
// unauthenticated transports.
func (c *Coordinator) Connect(p peer, authPhantomID string) *Conn {
	return &Conn{peer: p, authPhantomID: strings.TrimSpace(authPhantomID)}
}

// Handle applies one client frame to conn. Errors go to conn only.
func (c *Coordinator) Handle(ctx context.Context, conn *Conn, frame wsFrame) {
	conn.mu.Lock()
	defer conn.mu.Unlock()

	ctx, span := c.tracer.Start(ctx, "chat."+frame.Type, trace.WithAttributes(
		attribute.String("chat.state", conn.state.String()),
	))
	defer span.End()

	var err error
	switch frame.Type {
	case frameCreateRoom:
		err = c.handleCreateRoom(ctx, conn, frame)
	case frameJoinRoom:
		err = c.handleJoinRoom(conn, frame)
	case frameSendMessage:
		err = c.handleSendMessage(conn, frame)
	case frameLeaveRoom:
		err = c.handleLeaveRoom(conn, frame)
	default:
		err = apperrors.New(apperrors.CodeValidationFailed, "unsupported frame type")
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, apperrors.MessageOf(err, "request failed"))
		writeWSError(conn.peer, frame.RequestID, err)
	}
}

// Disconnect tears down conn after the transport closed.
func (c *Coordinator) Disconnect(ctx context.Context, conn *Conn) {
	conn.mu.Lock()
	defer conn.mu.Unlock()

	_, span := c.tracer.Start(ctx, "chat.disconnect", trace.WithAttributes(
		attribute.String("chat.state", conn.state.String()),
	))
	defer span.End()

	if conn.state == stateBound {
		c.unbind(conn)
	}
	conn.state = stateDisconnected
}

func (c *Coordinator) handleCreateRoom(ctx context.Context, conn *Conn, frame wsFrame) error {
	if conn.state != stateUnbound {
		return wrongState(conn, frameCreateRoom)
	}
	var payload createRoomPayload
	if err := decodePayload(frame, &payload); err != nil {
		return err
	}
	roomID := strings.TrimSpace(payload.RoomID)
	sender := strings.TrimSpace(payload.SenderPhantomID)
	receiver := strings.TrimSpace(payload.ReceiverPhantomID)
	if roomID == "" || sender == "" || receiver == "" {
		return apperrors.New(apperrors.CodeValidationFailed, "roomId, senderPhantomId and receiverPhantomId are required")
	}
	if err := checkClaim(conn, sender); err != nil {
		return err
	}

	c.bind(conn, roomID, sender, func(r *room) {
		conn.send(wsFrame{
			Type:      frameRoomCreated,
			RequestID: frame.RequestID,
			Payload:   mustJSON(roomCreatedPayload{RoomID: roomID, Creator: sender}),
		})
	})

	invite := storage.Invite{
		RoomID:            roomID,
		SenderPhantomID:   sender,
		ReceiverPhantomID: receiver,
		CreatedAt:         c.now().UTC(),
	}
	creator := conn.peer
	c.inflight.Add(1)
	go func() {
		defer c.inflight.Done()
		if err := c.recordInvite(context.WithoutCancel(ctx), invite); err != nil {
			log.Printf("chat: record invite failed room=%q sender=%q err=%v", roomID, sender, err)
			writeWSError(creator, frame.RequestID, apperrors.Wrap(apperrors.CodeStoreUnavailable, "invite could not be saved", err))
		}
	}()
	return nil
}

func (c *Coordinator) handleJoinRoom(conn *Conn, frame wsFrame) error {
	if conn.state != stateUnbound {
		return wrongState(conn, frameJoinRoom)
	}
	var payload membershipRequestPayload
	if err := decodePayload(frame, &payload); err != nil {
		return err
	}
	roomID := strings.TrimSpace(payload.RoomID)
	phantomID := strings.TrimSpace(payload.PhantomID)
	if roomID == "" || phantomID == "" {
		return apperrors.New(apperrors.CodeValidationFailed, "roomId and phantomId are required")
	}
	if err := checkClaim(conn, phantomID); err != nil {
		return err
	}

	c.bind(conn, roomID, phantomID, func(r *room) {
		update := membershipPayload{RoomID: roomID, PhantomID: phantomID, UsersInRoom: r.usersInRoom()}
		r.broadcast(wsFrame{Type: frameUserJoined, Payload: mustJSON(update)}, nil)
		conn.send(wsFrame{Type: frameJoinedRoom, RequestID: frame.RequestID, Payload: mustJSON(update)})
	})
	return nil
}

func (c *Coordinator) handleSendMessage(conn *Conn, frame wsFrame) error {
	if conn.state != stateBound {
		return wrongState(conn, frameSendMessage)
	}
	var payload sendMessagePayload
	if err := decodePayload(frame, &payload); err != nil {
		return err
	}
	roomID := strings.TrimSpace(payload.RoomID)
	senderID := strings.TrimSpace(payload.SenderID)
	if roomID == "" || senderID == "" || strings.TrimSpace(payload.Content) == "" {
		return apperrors.New(apperrors.CodeValidationFailed, "roomId, senderId and content are required")
	}
	if utf8.RuneCountInString(payload.Content) > maxMessageContentRunes {
		return apperrors.New(apperrors.CodeValidationFailed, fmt.Sprintf("content must be at most %d characters", maxMessageContentRunes))
	}

	target := conn.room
	if roomID != conn.room.id || senderID != conn.phantomID {
		if c.strictSender {
			return apperrors.New(apperrors.CodeForbidden, "roomId and senderId must match the joined room")
		}
		if roomID != conn.room.id {
			target = c.arena.lookup(roomID)
		}
	}
	if target == nil {
		return nil
	}

	now := c.now().UTC()
	messageID := payload.MessageID
	if strings.TrimSpace(messageID) == "" {
		messageID = fmt.Sprintf("msg_%d", now.UnixMilli())
	}
	timestamp := payload.Timestamp
	if isAbsentJSON(timestamp) {
		timestamp = mustJSON(now.Format(time.RFC3339))
	}
	relay := wsFrame{
		Type: frameNewMessage,
		Payload: mustJSON(newMessagePayload{
			ID:         messageID,
			SenderID:   senderID,
			ReceiverID: payload.ReceiverID,
			Content:    payload.Content,
			Timestamp:  timestamp,
			RoomID:     roomID,
		}),
	}

	target.mu.Lock()
	if !target.closed.Load() {
		target.broadcast(relay, conn)
	}
	target.mu.Unlock()
	return nil
}

func (c *Coordinator) handleLeaveRoom(conn *Conn, frame wsFrame) error {
	if conn.state != stateBound {
		return wrongState(conn, frameLeaveRoom)
	}
	var payload membershipRequestPayload
	if err := decodePayload(frame, &payload); err != nil {
		return err
	}
	roomID := strings.TrimSpace(payload.RoomID)
	phantomID := strings.TrimSpace(payload.PhantomID)
	if (roomID != "" && roomID != conn.room.id) || (phantomID != "" && phantomID != conn.phantomID) {
		return apperrors.New(apperrors.CodeValidationFailed, "roomId and phantomId must match the joined room")
	}

	c.unbind(conn)
	conn.state = stateLeft
	return nil
}

// bind attaches conn to roomID as phantomID and runs notify under the room
// lock so its frames are ordered with every other room event.
func (c *Coordinator) bind(conn *Conn, roomID string, phantomID string, notify func(*room)) {
	for {
		r := c.arena.acquire(roomID)
		r.mu.Lock()
		if r.closed.Load() {
			r.mu.Unlock()
			continue
		}
		conn.phantomID = phantomID
		conn.room = r
		conn.state = stateBound
		r.add(conn)
		notify(r)
		r.mu.Unlock()
		break
	}
	c.presence.bind(phantomID)
}

// unbind removes conn from its room and notifies the remaining members.
func (c *Coordinator) unbind(conn *Conn) {
	r := conn.room
	phantomID := conn.phantomID

	r.mu.Lock()
	empty := r.remove(conn)
	if !empty {
		update := membershipPayload{RoomID: r.id, PhantomID: phantomID, UsersInRoom: r.usersInRoom()}
		r.broadcast(wsFrame{Type: frameUserLeft, Payload: mustJSON(update)}, nil)
	}
	conn.room = nil
	r.mu.Unlock()

	if empty {
		c.arena.release(r)
	}
	c.presence.unbind(phantomID)
}

func (c *Coordinator) recordInvite(ctx context.Context, invite storage.Invite) error {
	ctx, cancel := context.WithTimeout(ctx, c.storeTimeout)
	defer cancel()
	ctx, span := c.tracer.Start(ctx, "invite.record", trace.WithAttributes(
		attribute.String("chat.room_id", invite.RoomID),
	))
	defer span.End()

	if err := c.invites.RecordInvite(ctx, invite); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "record invite failed")
		return err
	}
	return nil
}

// checkClaim rejects a claimed Phantom ID that differs from the token's.
func checkClaim(conn *Conn, claimed string) error {
	if conn.authPhantomID != "" && conn.authPhantomID != claimed {
		return apperrors.New(apperrors.CodeForbidden, "phantom id does not match the authenticated identity")
	}
	return nil
}

func wrongState(conn *Conn, frameType string) error {
	return apperrors.WithMetadata(
		apperrors.CodeValidationFailed,
		fmt.Sprintf("%s is not allowed while %s", frameType, conn.state),
		map[string]string{"State": conn.state.String()},
	)
}

func decodePayload(frame wsFrame, target any) error {
	if isAbsentJSON(frame.Payload) {
		return apperrors.New(apperrors.CodeValidationFailed, "payload is required")
	}
	if err := json.Unmarshal(frame.Payload, target); err != nil {
		return apperrors.Wrap(apperrors.CodeValidationFailed, "invalid "+frame.Type+" payload", err)
	}
	return nil
}

func isAbsentJSON(raw json.RawMessage) bool {
	trimmed := strings.TrimSpace(string(raw))
	return trimmed == "" || trimmed == "null"
}
