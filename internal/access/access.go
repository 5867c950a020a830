// Package access decides what a principal may do with a document.
//
// Every check is a pure function of the document's state and the principal.
// Tenant isolation is checked before anything else.
package access

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lalith-99/docstream/internal/apperr"
	"github.com/lalith-99/docstream/internal/models"
)

// Kind is how a principal authenticated.
type Kind int

const (
	KindUser Kind = iota + 1
	KindLink
)

func (k Kind) String() string {
	switch k {
	case KindUser:
		return "user"
	case KindLink:
		return "link"
	default:
		return "unknown"
	}
}

// Principal is the already-authenticated actor of a request. TenantID is
// the tenant context the request runs under: the JWT's tenant for users,
// the addressed tenant for link holders.
type Principal struct {
	Kind     Kind
	TenantID uuid.UUID
	UserID   uuid.UUID
	Token    string
}

// User is a signed-in member of tenantID.
func User(tenantID, userID uuid.UUID) Principal {
	return Principal{Kind: KindUser, TenantID: tenantID, UserID: userID}
}

// Link is the anonymous holder of a share link token, addressing tenantID.
func Link(tenantID uuid.UUID, token string) Principal {
	return Principal{Kind: KindLink, TenantID: tenantID, Token: token}
}

// Valid reports whether the principal carries a usable credential at all.
func (p Principal) Valid() bool {
	if p.TenantID == uuid.Nil {
		return false
	}
	switch p.Kind {
	case KindUser:
		return p.UserID != uuid.Nil
	case KindLink:
		return p.Token != ""
	default:
		return false
	}
}

// ActorID is the id recorded as author of mutations. Link holders are
// anonymous, so they record uuid.Nil.
func (p Principal) ActorID() uuid.UUID {
	if p.Kind == KindUser {
		return p.UserID
	}
	return uuid.Nil
}

// Checker resolves access levels. Now is the clock used for link expiry.
type Checker struct {
	Now func() time.Time
}

// NewChecker returns a Checker on the wall clock.
func NewChecker() *Checker {
	return &Checker{Now: time.Now}
}

// ResolveLevel returns the level p holds on doc. A denial is one of:
//   - apperr.ErrUnauthorized: no usable credential, or an unknown/expired link token
//   - apperr.ErrNotFound:     the document belongs to another tenant
//   - apperr.ErrForbidden:    a user with no grant who is not the owner
func (c *Checker) ResolveLevel(doc *models.Document, p Principal) (models.AccessLevel, error) {
	if !p.Valid() {
		return "", fmt.Errorf("resolve principal: %w", apperr.ErrUnauthorized)
	}
	if doc == nil || doc.TenantID != p.TenantID {
		return "", fmt.Errorf("resolve document: %w", apperr.ErrNotFound)
	}

	switch p.Kind {
	case KindUser:
		if p.UserID == doc.OwnerID {
			return models.AccessEdit, nil
		}
		level, ok := doc.Permissions[p.UserID]
		if !ok || !level.Valid() {
			return "", fmt.Errorf("user %s has no access: %w", p.UserID, apperr.ErrForbidden)
		}
		return level, nil
	case KindLink:
		link, ok := findLink(doc.ShareLinks, p.Token)
		if !ok {
			return "", fmt.Errorf("unknown share token: %w", apperr.ErrUnauthorized)
		}
		if link.Expired(c.now()) {
			return "", fmt.Errorf("share link %s expired: %w", link.ID, apperr.ErrUnauthorized)
		}
		return link.Level, nil
	}
	return "", fmt.Errorf("resolve principal: %w", apperr.ErrUnauthorized)
}

// RequireLevel fails with apperr.ErrForbidden when p resolves below min, and
// passes through any denial from ResolveLevel.
func (c *Checker) RequireLevel(doc *models.Document, p Principal, min models.AccessLevel) (models.AccessLevel, error) {
	level, err := c.ResolveLevel(doc, p)
	if err != nil {
		return "", err
	}
	if !level.AtLeast(min) {
		return level, fmt.Errorf("%s access required, have %s: %w", min, level, apperr.ErrForbidden)
	}
	return level, nil
}

func (c *Checker) now() time.Time {
	if c.Now == nil {
		return time.Now()
	}
	return c.Now()
}

func findLink(links []models.ShareLink, token string) (models.ShareLink, bool) {
	for _, link := range links {
		if subtle.ConstantTimeCompare([]byte(link.Token), []byte(token)) == 1 {
			return link, true
		}
	}
	return models.ShareLink{}, false
}

// NewShareToken returns 32 bytes from the OS CSPRNG, URL-safe encoded.
func NewShareToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate share token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
