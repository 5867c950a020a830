package realtime

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/lalith-99/docstream/internal/access"
	"go.uber.org/zap"
)

// State is a session's position in connecting → connected → disconnected.
// Transitions only move forward; reconnecting means a new Session.
type State int32

const (
	StateConnecting State = iota
	StateConnected
	StateDisconnected
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// Session is one open channel. Only the owning room enqueues document
// state onto it, so everything in send is already in commit order.
type Session struct {
	ID        string
	Principal access.Principal

	conn   *websocket.Conn
	logger *zap.Logger

	mu     sync.Mutex
	send   chan []byte
	closed bool

	state atomic.Int32
	// lastVersion is the newest version enqueued to this session, -1 before
	// the snapshot.
	lastVersion atomic.Int64
}

func newSession(id string, p access.Principal, conn *websocket.Conn, buffer int, logger *zap.Logger) *Session {
	s := &Session{
		ID:        id,
		Principal: p,
		conn:      conn,
		logger:    logger,
		send:      make(chan []byte, buffer),
	}
	s.lastVersion.Store(-1)
	return s
}

func (s *Session) State() State {
	return State(s.state.Load())
}

// LastVersion is the newest document version delivered to the session.
func (s *Session) LastVersion() int64 {
	return s.lastVersion.Load()
}

func (s *Session) markConnected(version int64) bool {
	if !s.state.CompareAndSwap(int32(StateConnecting), int32(StateConnected)) {
		return false
	}
	s.observe(version)
	return true
}

// observe records that version was enqueued. Versions never go backward.
func (s *Session) observe(version int64) {
	for {
		cur := s.lastVersion.Load()
		if version <= cur || s.lastVersion.CompareAndSwap(cur, version) {
			return
		}
	}
}

// enqueue hands payload to the write pump without blocking. It returns
// false if the session is closed or its buffer is full.
func (s *Session) enqueue(payload []byte) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false
	}
	select {
	case s.send <- payload:
		return true
	default:
		return false
	}
}

// close is idempotent. Anything still buffered is flushed by the write pump
// on a best-effort basis.
func (s *Session) close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.closed = true
	s.state.Store(int32(StateDisconnected))
	close(s.send)
}

// writePump is the only goroutine writing to conn.
func (s *Session) writePump(writeTimeout, pingInterval time.Duration) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		s.conn.Close()
	}()

	for {
		select {
		case payload, ok := <-s.send:
			s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if !ok {
				s.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := s.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				s.logger.Debug("websocket write failed", zap.String("session_id", s.ID), zap.Error(err))
				return
			}
		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump delivers inbound frames to handle until the connection fails or
// the peer closes it.
func (s *Session) readPump(maxBytes int64, pongTimeout time.Duration, handle func([]byte)) {
	s.conn.SetReadLimit(maxBytes)
	s.conn.SetReadDeadline(time.Now().Add(pongTimeout))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongTimeout))
	})

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Debug("websocket closed unexpectedly", zap.String("session_id", s.ID), zap.Error(err))
			}
			return
		}
		s.conn.SetReadDeadline(time.Now().Add(pongTimeout))
		handle(data)
	}
}
