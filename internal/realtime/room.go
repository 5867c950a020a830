package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lalith-99/docstream/internal/access"
	"github.com/lalith-99/docstream/internal/apperr"
	"github.com/lalith-99/docstream/internal/document"
	"github.com/lalith-99/docstream/internal/models"
	"github.com/lalith-99/docstream/internal/observ"
	"go.uber.org/zap"
)

var errRoomClosed = errors.New("room closed")

type roomKey struct {
	tenantID   uuid.UUID
	documentID uuid.UUID
}

// room is the serialization domain of one document. Every command runs on
// the room's own goroutine, one at a time, so commits and the broadcasts
// they cause happen in the same order for every session.
type room struct {
	key    roomKey
	hub    *Hub
	logger *zap.Logger

	commands chan func()
	done     chan struct{}

	// sessions is only touched from inside a command.
	sessions map[*Session]struct{}

	// refs is guarded by hub.mu.
	refs int
}

func newRoom(h *Hub, key roomKey) *room {
	return &room{
		key:      key,
		hub:      h,
		logger:   h.logger.With(observ.DocumentFields(key.tenantID.String(), key.documentID.String())...),
		commands: make(chan func()),
		done:     make(chan struct{}),
		sessions: make(map[*Session]struct{}),
	}
}

func (r *room) run() {
	for {
		select {
		case cmd := <-r.commands:
			cmd()
		case <-r.done:
			return
		}
	}
}

// do runs fn inside the domain and waits for it to finish. Once fn has been
// accepted it always runs to completion, even if ctx ends meanwhile.
func (r *room) do(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	cmd := func() {
		defer close(finished)
		fn()
	}

	select {
	case r.commands <- cmd:
	case <-r.done:
		return errRoomClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	<-finished
	return nil
}

// join sends the snapshot and registers s. It reports false if s must not
// stay attached.
func (r *room) join(ctx context.Context, s *Session) bool {
	doc, err := r.hub.docs.Get(ctx, s.Principal, r.key.documentID)
	if err != nil {
		r.sendError(s, err)
		return false
	}

	snapshot := r.message(TypeSnapshot, s.Principal.ActorID())
	snapshot.Version = int64Ptr(doc.Version)
	snapshot.Content = stringPtr(doc.Content)
	if !s.enqueue(r.encode(snapshot)) || !s.markConnected(doc.Version) {
		return false
	}

	if s.Principal.Kind == access.KindUser {
		joined := r.message(TypePresence, s.Principal.UserID)
		joined.Message = PresenceJoined
		r.broadcast(joined, 0)
	}
	r.sessions[s] = struct{}{}

	r.logger.Debug("session joined",
		zap.String("session_id", s.ID),
		zap.Int64("version", doc.Version),
		zap.Int("sessions", len(r.sessions)))
	return true
}

func (r *room) leave(s *Session) {
	_, attached := r.sessions[s]
	delete(r.sessions, s)
	s.close()

	if attached && s.Principal.Kind == access.KindUser {
		left := r.message(TypePresence, s.Principal.UserID)
		left.Message = PresenceLeft
		r.broadcast(left, 0)
	}
	r.logger.Debug("session left", zap.String("session_id", s.ID), zap.Int("sessions", len(r.sessions)))
}

// handle processes one inbound frame. Failures only ever reach s.
func (r *room) handle(ctx context.Context, s *Session, data []byte) {
	if _, attached := r.sessions[s]; !attached {
		return
	}

	msg, err := decodeClientMessage(data)
	if err != nil {
		r.sendError(s, err)
		return
	}

	switch msg.Type {
	case TypeOperation:
		r.applyOperation(ctx, s, msg)
	case TypePing:
		pong := r.message(TypeAck, s.Principal.ActorID())
		pong.Message = AckPong
		r.send(s, pong)
	default:
		r.sendError(s, fmt.Errorf("unsupported message type %q: %w", msg.Type, apperr.ErrInvalid))
	}
}

func (r *room) applyOperation(ctx context.Context, s *Session, msg ClientMessage) {
	if err := checkIdentity(msg, r.key.tenantID, r.key.documentID, s.Principal.ActorID()); err != nil {
		r.sendError(s, err)
		return
	}
	if msg.NewContent == nil {
		r.sendError(s, fmt.Errorf("operation requires newContent: %w", apperr.ErrInvalid))
		return
	}

	res, err := r.hub.docs.ApplyEdit(ctx, s.Principal, r.key.documentID, document.EditInput{
		Content:     *msg.NewContent,
		BaseVersion: msg.BaseVersion,
		Lamport:     msg.Lamport,
		Delta:       msg.Delta,
		Label:       msg.Label,
	})
	if err != nil {
		r.sendError(s, err)
		return
	}

	r.broadcastCommit(res.Document, res.Version)

	ack := r.message(TypeAck, s.Principal.ActorID())
	ack.Message = AckCommitted
	if res.Stale {
		ack.Message = AckStale
	}
	ack.Version = int64Ptr(res.Version.Sequence)
	ack.BaseVersion = int64Ptr(res.BaseVersion)
	ack.Lamport = msg.Lamport
	r.send(s, ack)
}

// broadcastCommit tells every session, including the author's, about a
// newly committed version.
func (r *room) broadcastCommit(doc *models.Document, v models.DocumentVersion) {
	update := r.message(TypeUpdate, v.AuthorID)
	update.Version = int64Ptr(doc.Version)
	update.Content = stringPtr(doc.Content)
	update.Message = v.Label
	r.broadcast(update, doc.Version)
}

// broadcast enqueues msg on every session. A session whose buffer is full
// is closed and dropped rather than allowed to miss a message and diverge.
// version is recorded as delivered when positive.
func (r *room) broadcast(msg ServerMessage, version int64) {
	payload := r.encode(msg)
	for s := range r.sessions {
		if !s.enqueue(payload) {
			r.logger.Warn("dropping slow session", zap.String("session_id", s.ID))
			delete(r.sessions, s)
			s.close()
			continue
		}
		if version > 0 {
			s.observe(version)
		}
	}
}

func (r *room) send(s *Session, msg ServerMessage) {
	if !s.enqueue(r.encode(msg)) {
		delete(r.sessions, s)
		s.close()
	}
}

func (r *room) sendError(s *Session, err error) {
	msg := r.message(TypeError, s.Principal.ActorID())
	msg.Code = apperr.Code(err)
	if apperr.IsClientError(err) {
		msg.Message = err.Error()
	} else {
		r.logger.Error("operation failed", zap.String("session_id", s.ID), zap.Error(err))
		msg.Message = "internal error"
	}
	r.send(s, msg)
}

func (r *room) message(typ string, userID uuid.UUID) ServerMessage {
	return ServerMessage{
		Type:       typ,
		TenantID:   r.key.tenantID.String(),
		DocumentID: r.key.documentID.String(),
		UserID:     userLabel(userID),
	}
}

func (r *room) encode(msg ServerMessage) []byte {
	b, err := json.Marshal(msg)
	if err != nil {
		r.logger.Error("marshal server message", zap.String("type", msg.Type), zap.Error(err))
		return []byte(`{}`)
	}
	return b
}

// closeAll disconnects every session. Their read pumps then leave and
// release the room as usual.
func (r *room) closeAll() {
	for s := range r.sessions {
		delete(r.sessions, s)
		s.close()
	}
}
