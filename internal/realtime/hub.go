// Package realtime fans document state out to live websocket sessions.
//
// Each (tenant, document) pair gets one room goroutine that owns the
// document's session set and runs every mutation for it in arrival order.
// Rooms start on first use and stop when the last session or REST call
// releases them.
package realtime

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/lalith-99/docstream/internal/access"
	"github.com/lalith-99/docstream/internal/document"
	"github.com/lalith-99/docstream/internal/models"
	"github.com/lalith-99/docstream/internal/repository"
	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"
)

// Documents is the part of document.Service the hub drives.
type Documents interface {
	Get(ctx context.Context, p access.Principal, documentID uuid.UUID) (*models.Document, error)
	ApplyEdit(ctx context.Context, p access.Principal, documentID uuid.UUID, in document.EditInput) (*document.EditResult, error)
	Revert(ctx context.Context, p access.Principal, documentID, versionID uuid.UUID) (*document.RevertResult, error)
}

type Options struct {
	SendBuffer      int
	WriteTimeout    time.Duration
	PongTimeout     time.Duration
	MaxMessageBytes int64
	// OpTimeout bounds each store round trip made inside a room.
	OpTimeout time.Duration
}

func (o Options) withDefaults() Options {
	if o.SendBuffer <= 0 {
		o.SendBuffer = 256
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = 10 * time.Second
	}
	if o.PongTimeout <= 0 {
		o.PongTimeout = 60 * time.Second
	}
	if o.MaxMessageBytes <= 0 {
		o.MaxMessageBytes = 1 << 20
	}
	if o.OpTimeout <= 0 {
		o.OpTimeout = 5 * time.Second
	}
	return o
}

type Hub struct {
	docs     Documents
	presence repository.PresenceRepository
	opts     Options
	logger   *zap.Logger
	upgrader websocket.Upgrader

	mu    sync.Mutex
	rooms map[roomKey]*room
}

// NewHub builds a hub. presence may be nil.
func NewHub(docs Documents, presence repository.PresenceRepository, opts Options, logger *zap.Logger) *Hub {
	return &Hub{
		docs:     docs,
		presence: presence,
		opts:     opts.withDefaults(),
		logger:   logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Browsers send their page origin; the credential, not the
			// origin, is what gates access.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		rooms: make(map[roomKey]*room),
	}
}

func (h *Hub) acquire(key roomKey) *room {
	h.mu.Lock()
	defer h.mu.Unlock()

	rm, ok := h.rooms[key]
	if !ok {
		rm = newRoom(h, key)
		h.rooms[key] = rm
		go rm.run()
	}
	rm.refs++
	return rm
}

func (h *Hub) release(rm *room) {
	h.mu.Lock()
	defer h.mu.Unlock()

	rm.refs--
	if rm.refs == 0 {
		delete(h.rooms, rm.key)
		close(rm.done)
	}
}

// ActiveRooms is the number of documents with a running room.
func (h *Hub) ActiveRooms() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.rooms)
}

func (h *Hub) opContext(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(parent), h.opts.OpTimeout)
}

// ServeWS upgrades the request and serves a session for documentID until
// the connection ends. A non-nil error means p may not view the document;
// nothing has been written to w and the caller must respond.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, p access.Principal, documentID uuid.UUID) error {
	ctx, cancel := h.opContext(r.Context())
	_, err := h.docs.Get(ctx, p, documentID)
	cancel()
	if err != nil {
		return err
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already answered with an HTTP error.
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return nil
	}

	s := newSession(ulid.Make().String(), p, conn, h.opts.SendBuffer, h.logger)
	go s.writePump(h.opts.WriteTimeout, h.opts.PongTimeout*9/10)
	h.serve(r.Context(), s, documentID)
	return nil
}

func (h *Hub) serve(parent context.Context, s *Session, documentID uuid.UUID) {
	rm := h.acquire(roomKey{tenantID: s.Principal.TenantID, documentID: documentID})
	defer h.release(rm)

	var joined bool
	h.inRoom(parent, rm, func(ctx context.Context) { joined = rm.join(ctx, s) })
	if !joined {
		s.close()
		return
	}

	h.trackPresence(parent, s, documentID, true)
	defer h.trackPresence(parent, s, documentID, false)

	s.readPump(h.opts.MaxMessageBytes, h.opts.PongTimeout, func(data []byte) {
		h.inRoom(parent, rm, func(ctx context.Context) { rm.handle(ctx, s, data) })
	})

	h.inRoom(parent, rm, func(context.Context) { rm.leave(s) })
}

// inRoom runs fn inside rm with a fresh operation deadline.
func (h *Hub) inRoom(parent context.Context, rm *room, fn func(ctx context.Context)) error {
	return rm.do(context.WithoutCancel(parent), func() {
		ctx, cancel := h.opContext(parent)
		defer cancel()
		fn(ctx)
	})
}

func (h *Hub) trackPresence(parent context.Context, s *Session, documentID uuid.UUID, joining bool) {
	if h.presence == nil || s.Principal.Kind != access.KindUser {
		return
	}
	ctx, cancel := h.opContext(parent)
	defer cancel()

	var err error
	if joining {
		err = h.presence.Join(ctx, s.Principal.TenantID, documentID, s.Principal.UserID)
	} else {
		err = h.presence.Leave(ctx, s.Principal.TenantID, documentID, s.Principal.UserID)
	}
	if err != nil {
		h.logger.Warn("presence update failed",
			zap.String("document_id", documentID.String()),
			zap.Bool("joining", joining),
			zap.Error(err))
	}
}

// ApplyEdit commits an edit that did not arrive over a session, in the same
// order as session operations, and broadcasts the result.
func (h *Hub) ApplyEdit(ctx context.Context, p access.Principal, documentID uuid.UUID, in document.EditInput) (*document.EditResult, error) {
	rm := h.acquire(roomKey{tenantID: p.TenantID, documentID: documentID})
	defer h.release(rm)

	var (
		res *document.EditResult
		err error
	)
	derr := h.inRoomCtx(ctx, rm, func(opCtx context.Context) {
		res, err = h.docs.ApplyEdit(opCtx, p, documentID, in)
		if err == nil {
			rm.broadcastCommit(res.Document, res.Version)
		}
	})
	if derr != nil {
		return nil, derr
	}
	return res, err
}

// Revert runs document.Service.Revert inside the document's room and
// broadcasts the new version.
func (h *Hub) Revert(ctx context.Context, p access.Principal, documentID, versionID uuid.UUID) (*document.RevertResult, error) {
	rm := h.acquire(roomKey{tenantID: p.TenantID, documentID: documentID})
	defer h.release(rm)

	var (
		res *document.RevertResult
		err error
	)
	derr := h.inRoomCtx(ctx, rm, func(opCtx context.Context) {
		res, err = h.docs.Revert(opCtx, p, documentID, versionID)
		if err == nil {
			rm.broadcastCommit(res.Document, res.Version)
		}
	})
	if derr != nil {
		return nil, derr
	}
	return res, err
}

// inRoomCtx is inRoom for request callers: giving up while still queued is
// allowed, but once started the mutation finishes regardless of ctx.
func (h *Hub) inRoomCtx(ctx context.Context, rm *room, fn func(ctx context.Context)) error {
	return rm.do(ctx, func() {
		opCtx, cancel := h.opContext(ctx)
		defer cancel()
		fn(opCtx)
	})
}

// Close disconnects every session. Rooms wind down as their sessions leave.
func (h *Hub) Close() {
	h.mu.Lock()
	rooms := make([]*room, 0, len(h.rooms))
	for _, rm := range h.rooms {
		rooms = append(rooms, rm)
	}
	h.mu.Unlock()

	for _, rm := range rooms {
		// A room that stopped in the meantime has nobody left to close.
		_ = rm.do(context.Background(), rm.closeAll)
	}
	h.logger.Info("realtime hub closed", zap.Int("rooms", len(rooms)))
}
