package realtime

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/lalith-99/docstream/internal/apperr"
)

// Message types on the per-document channel.
const (
	TypeSnapshot  = "snapshot"
	TypeUpdate    = "update"
	TypeOperation = "operation"
	TypePresence  = "presence"
	TypePing      = "ping"
	TypeAck       = "ack"
	TypeError     = "error"
)

// Ack messages.
const (
	AckCommitted = "committed"
	AckStale     = "stale"
	AckPong      = "pong"
)

// Presence messages.
const (
	PresenceJoined = "joined"
	PresenceLeft   = "left"
)

// ClientMessage is what a ClientSyncAgent sends. TenantID, DocumentID and
// UserID are optional echoes of the session's identity; when present they
// must match it.
type ClientMessage struct {
	Type       string  `json:"type"`
	TenantID   string  `json:"tenantId,omitempty"`
	DocumentID string  `json:"documentId,omitempty"`
	UserID     string  `json:"userId,omitempty"`
	NewContent *string `json:"newContent,omitempty"`
	Delta      string  `json:"delta,omitempty"`
	Label      string  `json:"label,omitempty"`
	Message    string  `json:"message,omitempty"`

	// Lamport is the client's own counter. It is recorded, never used for
	// ordering.
	Lamport int64 `json:"lamport,omitempty"`

	// BaseVersion is the version the edit was made against.
	BaseVersion *int64 `json:"baseVersion,omitempty"`
}

// ServerMessage is everything the hub sends.
type ServerMessage struct {
	Type        string  `json:"type"`
	TenantID    string  `json:"tenantId"`
	DocumentID  string  `json:"documentId"`
	UserID      string  `json:"userId,omitempty"`
	Version     *int64  `json:"version,omitempty"`
	Content     *string `json:"content,omitempty"`
	Message     string  `json:"message,omitempty"`
	Code        string  `json:"code,omitempty"`
	Lamport     int64   `json:"lamport,omitempty"`
	BaseVersion *int64  `json:"baseVersion,omitempty"`
}

func decodeClientMessage(data []byte) (ClientMessage, error) {
	var msg ClientMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return ClientMessage{}, fmt.Errorf("decode message: %v: %w", err, apperr.ErrInvalid)
	}
	if msg.Type == "" {
		return ClientMessage{}, fmt.Errorf("message type is required: %w", apperr.ErrInvalid)
	}
	return msg, nil
}

// checkIdentity rejects messages that claim a different tenant, document or
// user than the session was authenticated as.
func checkIdentity(msg ClientMessage, tenantID, documentID, userID uuid.UUID) error {
	if msg.TenantID != "" && msg.TenantID != tenantID.String() {
		return fmt.Errorf("message tenant does not match session: %w", apperr.ErrInvalid)
	}
	if msg.DocumentID != "" && msg.DocumentID != documentID.String() {
		return fmt.Errorf("message document does not match session: %w", apperr.ErrInvalid)
	}
	if msg.UserID != "" && userID != uuid.Nil && msg.UserID != userID.String() {
		return fmt.Errorf("message user does not match session: %w", apperr.ErrInvalid)
	}
	return nil
}

func int64Ptr(v int64) *int64 { return &v }

func stringPtr(s string) *string { return &s }

func userLabel(id uuid.UUID) string {
	if id == uuid.Nil {
		return ""
	}
	return id.String()
}
