package models

import (
	"time"

	"github.com/google/uuid"
)

// Tenant is the top-level isolation boundary. Every user, document and
// version belongs to exactly one tenant, and nothing crosses tenants.
type Tenant struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// User is a person within a tenant.
type User struct {
	ID           uuid.UUID `json:"id"`
	TenantID     uuid.UUID `json:"tenant_id"`
	Email        string    `json:"email"`
	DisplayName  string    `json:"display_name"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// AccessLevel is the ordered permission tier: view < comment < edit.
type AccessLevel string

const (
	AccessView    AccessLevel = "view"
	AccessComment AccessLevel = "comment"
	AccessEdit    AccessLevel = "edit"
)

// Rank orders levels. Unknown levels rank 0, below view.
func (l AccessLevel) Rank() int {
	switch l {
	case AccessView:
		return 1
	case AccessComment:
		return 2
	case AccessEdit:
		return 3
	default:
		return 0
	}
}

func (l AccessLevel) Valid() bool { return l.Rank() > 0 }

// AtLeast reports whether l grants everything min grants.
func (l AccessLevel) AtLeast(min AccessLevel) bool {
	return l.Valid() && l.Rank() >= min.Rank()
}

// ShareLink grants Level to any holder of Token for one document. Links are
// never mutated; expiry is checked when the token is resolved.
type ShareLink struct {
	ID         uuid.UUID   `json:"id"`
	DocumentID uuid.UUID   `json:"document_id"`
	TenantID   uuid.UUID   `json:"tenant_id"`
	Token      string      `json:"token"`
	Level      AccessLevel `json:"level"`
	CreatedBy  uuid.UUID   `json:"created_by"`
	CreatedAt  time.Time   `json:"created_at"`
	ExpiresAt  *time.Time  `json:"expires_at,omitempty"`
}

// Expired reports whether the link is past its expiry at now.
func (s ShareLink) Expired(now time.Time) bool {
	return s.ExpiresAt != nil && !now.Before(*s.ExpiresAt)
}

// Document is the canonical state of one co-edited text.
//
// Version starts at 0 and moves forward by exactly one per committed edit or
// revert. Content is an opaque blob that is always replaced whole.
type Document struct {
	ID          uuid.UUID                 `json:"id"`
	TenantID    uuid.UUID                 `json:"tenant_id"`
	Title       string                    `json:"title"`
	Content     string                    `json:"content"`
	OwnerID     uuid.UUID                 `json:"owner_id"`
	Version     int64                     `json:"version"`
	Permissions map[uuid.UUID]AccessLevel `json:"permissions"`
	ShareLinks  []ShareLink               `json:"share_links"`
	CreatedAt   time.Time                 `json:"created_at"`
	UpdatedAt   time.Time                 `json:"updated_at"`
}

// DocumentVersion is an immutable full snapshot. Sequence equals the
// document's Version right after the mutation that produced it.
type DocumentVersion struct {
	ID         uuid.UUID `json:"id"`
	DocumentID uuid.UUID `json:"document_id"`
	TenantID   uuid.UUID `json:"tenant_id"`
	AuthorID   uuid.UUID `json:"author_id"`
	Sequence   int64     `json:"sequence"`
	Content    string    `json:"content"`
	Label      string    `json:"label"`
	CreatedAt  time.Time `json:"created_at"`
}

// Operation is the audit record of one accepted edit. Lamport and Delta are
// whatever the client sent; they play no part in ordering.
type Operation struct {
	ID         string    `json:"id"`
	DocumentID uuid.UUID `json:"document_id"`
	TenantID   uuid.UUID `json:"tenant_id"`
	UserID     uuid.UUID `json:"user_id"`
	Version    int64     `json:"version"`
	Lamport    int64     `json:"lamport"`
	Delta      string    `json:"delta"`
	CreatedAt  time.Time `json:"created_at"`
}

// Participant is one live collaborator on a document.
type Participant struct {
	UserID   uuid.UUID `json:"user_id"`
	Sessions int64     `json:"sessions"`
}
