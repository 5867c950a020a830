package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/lalith-99/docstream/internal/models"
)

// Every method takes ctx first and, where the entity is tenant-owned, the
// tenantID. Stores filter by tenant themselves; they never trust the caller
// to have done it.
//
// Lookups return nil, nil when the row does not exist. Translating that into
// a NotFound is the service's job.

// DocumentRepository persists canonical document state plus its grants.
type DocumentRepository interface {
	// Create stores a new document together with its permissions and its
	// sequence 0 history entry. Either all of it is stored or none is.
	Create(ctx context.Context, doc *models.Document, initial models.DocumentVersion) error

	// GetByID returns the document with permissions and share links loaded.
	GetByID(ctx context.Context, tenantID, documentID uuid.UUID) (*models.Document, error)

	// ListByTenant returns documents most recently updated first. Permissions
	// holds at most subjectID's own grant; share links are not loaded.
	ListByTenant(ctx context.Context, tenantID, subjectID uuid.UUID) ([]models.Document, error)

	// Commit moves the document from v.Sequence-1 to v.Sequence with
	// v.Content and appends v to its history, as one unit: on error neither
	// write is visible. It fails with apperr.ErrConflict if the stored
	// version is not v.Sequence-1.
	Commit(ctx context.Context, v models.DocumentVersion) error

	// UpsertPermission sets permissions[subjectID] = level.
	UpsertPermission(ctx context.Context, tenantID, documentID, subjectID uuid.UUID, level models.AccessLevel) error

	// AddShareLink appends a link. A reused token fails with apperr.ErrConflict.
	AddShareLink(ctx context.Context, link models.ShareLink) error

	// DeleteShareLink removes a link and reports whether it existed.
	DeleteShareLink(ctx context.Context, tenantID, documentID, linkID uuid.UUID) (bool, error)
}

// VersionRepository reads the append-only snapshot log. Entries are only
// written through DocumentRepository.Create and Commit, in the same unit as
// the document row, and sequences never collide or skip.
type VersionRepository interface {
	// List returns versions newest first. limit <= 0 means no cap.
	List(ctx context.Context, tenantID, documentID uuid.UUID, limit int) ([]models.DocumentVersion, error)

	// GetByID returns one version of one document.
	GetByID(ctx context.Context, tenantID, documentID, versionID uuid.UUID) (*models.DocumentVersion, error)
}

// OperationRepository keeps the audit trail of accepted edits.
type OperationRepository interface {
	Save(ctx context.Context, op models.Operation) error
	ListByDocument(ctx context.Context, tenantID, documentID uuid.UUID, limit int) ([]models.Operation, error)
}

// UserRepository handles user data.
type UserRepository interface {
	Create(ctx context.Context, tenantID uuid.UUID, email, displayName, passwordHash string) (*models.User, error)

	// GetByID returns a user by their ID, scoped to the tenant.
	GetByID(ctx context.Context, tenantID uuid.UUID, userID uuid.UUID) (*models.User, error)

	// GetByEmail looks a user up globally; used only by login.
	GetByEmail(ctx context.Context, email string) (*models.User, error)
}

// TenantRepository creates workspaces at signup.
type TenantRepository interface {
	Create(ctx context.Context, name string) (*models.Tenant, error)
}

// PresenceRepository tracks who is connected to which document. It is
// informational only; nothing in the consistency path reads it.
type PresenceRepository interface {
	Join(ctx context.Context, tenantID, documentID, userID uuid.UUID) error
	Leave(ctx context.Context, tenantID, documentID, userID uuid.UUID) error
	List(ctx context.Context, tenantID, documentID uuid.UUID) ([]models.Participant, error)
}
