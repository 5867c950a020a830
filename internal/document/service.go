// Package document owns canonical document state: content, the version
// counter, grants, share links and the version history.
//
// The service does not serialize writers itself. Callers that can race on the
// same document (the realtime hub and the REST edit/revert paths) funnel
// through the hub's per-document domain; the stores' compare-and-set on
// version catches anything that slips past.
package document

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lalith-99/docstream/internal/access"
	"github.com/lalith-99/docstream/internal/apperr"
	"github.com/lalith-99/docstream/internal/models"
	"github.com/lalith-99/docstream/internal/repository"
	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"
)

const (
	LabelInitial = "initial"
	LabelEdit    = "edit"

	defaultTitle = "Untitled"

	// shareTokenAttempts bounds regeneration when the store reports a token
	// collision.
	shareTokenAttempts = 3
)

// RevertLabel is the history label of a revert to sequence seq.
func RevertLabel(seq int64) string {
	return fmt.Sprintf("revert to #%d", seq)
}

type Service struct {
	docs     repository.DocumentRepository
	versions repository.VersionRepository
	ops      repository.OperationRepository
	access   *access.Checker
	logger   *zap.Logger

	now          func() time.Time
	historyLimit int
}

type Option func(*Service)

// WithClock replaces time.Now for timestamps and link expiry.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
		s.access.Now = now
	}
}

// WithHistoryLimit caps ListVersions. Zero means no cap.
func WithHistoryLimit(limit int) Option {
	return func(s *Service) { s.historyLimit = limit }
}

func NewService(
	docs repository.DocumentRepository,
	versions repository.VersionRepository,
	ops repository.OperationRepository,
	logger *zap.Logger,
	opts ...Option,
) *Service {
	s := &Service{
		docs:     docs,
		versions: versions,
		ops:      ops,
		access:   access.NewChecker(),
		logger:   logger,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// EditInput is one whole-content replacement.
type EditInput struct {
	Content string
	// BaseVersion is the version the caller edited from, if it knows it.
	BaseVersion *int64
	// Lamport and Delta are recorded in the operation log verbatim.
	Lamport int64
	Delta   string
	Label   string
}

// EditResult reports the committed state. Stale means BaseVersion was set and
// did not match: the edit was still applied, last writer wins.
type EditResult struct {
	Document *models.Document       `json:"document"`
	Version  models.DocumentVersion `json:"version"`
	Stale    bool                   `json:"stale"`
	// BaseVersion is the version the edit actually replaced.
	BaseVersion int64 `json:"base_version"`
}

type RevertResult struct {
	Document *models.Document       `json:"document"`
	Version  models.DocumentVersion `json:"version"`
}

// Create makes a new document at version 0 owned by p and records the
// "initial" history entry.
func (s *Service) Create(ctx context.Context, p access.Principal, title, content string) (*models.Document, error) {
	if !p.Valid() {
		return nil, fmt.Errorf("create document: %w", apperr.ErrUnauthorized)
	}
	if p.Kind != access.KindUser {
		return nil, fmt.Errorf("create document: share links cannot create documents: %w", apperr.ErrForbidden)
	}

	title = strings.TrimSpace(title)
	if title == "" {
		title = defaultTitle
	}

	now := s.now().UTC()
	doc := &models.Document{
		ID:          uuid.New(),
		TenantID:    p.TenantID,
		Title:       title,
		Content:     content,
		OwnerID:     p.UserID,
		Version:     0,
		Permissions: map[uuid.UUID]models.AccessLevel{},
		ShareLinks:  []models.ShareLink{},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	initial := models.DocumentVersion{
		ID:         uuid.New(),
		DocumentID: doc.ID,
		TenantID:   doc.TenantID,
		AuthorID:   p.UserID,
		Sequence:   0,
		Content:    content,
		Label:      LabelInitial,
		CreatedAt:  now,
	}
	if err := s.docs.Create(ctx, doc, initial); err != nil {
		return nil, fmt.Errorf("create document: %w", err)
	}
	return doc, nil
}

// List returns the tenant's documents that p can view.
func (s *Service) List(ctx context.Context, p access.Principal) ([]models.Document, error) {
	if !p.Valid() {
		return nil, fmt.Errorf("list documents: %w", apperr.ErrUnauthorized)
	}
	if p.Kind != access.KindUser {
		return nil, fmt.Errorf("list documents: %w", apperr.ErrForbidden)
	}

	// Each row carries only p's own grant, which is all a user principal's
	// level depends on.
	all, err := s.docs.ListByTenant(ctx, p.TenantID, p.UserID)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}

	visible := make([]models.Document, 0, len(all))
	for _, doc := range all {
		if _, err := s.access.RequireLevel(&doc, p, models.AccessView); err != nil {
			continue
		}
		doc.Permissions = nil
		doc.ShareLinks = nil
		visible = append(visible, doc)
	}
	return visible, nil
}

// Get returns the document if p can at least view it. Grants and share link
// tokens are only included for editors.
func (s *Service) Get(ctx context.Context, p access.Principal, documentID uuid.UUID) (*models.Document, error) {
	doc, level, err := s.Authorize(ctx, p, documentID, models.AccessView)
	if err != nil {
		return nil, err
	}
	return redact(doc, level), nil
}

// Authorize loads the document and checks that p holds at least min on it.
func (s *Service) Authorize(ctx context.Context, p access.Principal, documentID uuid.UUID, min models.AccessLevel) (*models.Document, models.AccessLevel, error) {
	if !p.Valid() {
		return nil, "", fmt.Errorf("authorize: %w", apperr.ErrUnauthorized)
	}

	doc, err := s.docs.GetByID(ctx, p.TenantID, documentID)
	if err != nil {
		return nil, "", fmt.Errorf("get document: %w", err)
	}
	if doc == nil {
		return nil, "", fmt.Errorf("document %s: %w", documentID, apperr.ErrNotFound)
	}

	level, err := s.access.RequireLevel(doc, p, min)
	if err != nil {
		return nil, level, err
	}
	return doc, level, nil
}

// ApplyEdit replaces the content and moves the version forward by one. A
// mismatched BaseVersion never rejects the edit; it only sets Stale.
func (s *Service) ApplyEdit(ctx context.Context, p access.Principal, documentID uuid.UUID, in EditInput) (*EditResult, error) {
	doc, _, err := s.Authorize(ctx, p, documentID, models.AccessEdit)
	if err != nil {
		return nil, err
	}

	base := doc.Version
	stale := in.BaseVersion != nil && *in.BaseVersion != base

	label := in.Label
	if label == "" {
		label = LabelEdit
	}

	v, err := s.commit(ctx, doc, p.ActorID(), in.Content, label)
	if err != nil {
		return nil, err
	}

	op := models.Operation{
		ID:         ulid.Make().String(),
		DocumentID: doc.ID,
		TenantID:   doc.TenantID,
		UserID:     p.ActorID(),
		Version:    v.Sequence,
		Lamport:    in.Lamport,
		Delta:      in.Delta,
		CreatedAt:  v.CreatedAt,
	}
	if err := s.ops.Save(ctx, op); err != nil {
		// The edit is committed; losing its audit row must not undo that.
		s.logger.Warn("operation log write failed",
			zap.String("document_id", doc.ID.String()),
			zap.Int64("version", v.Sequence),
			zap.Error(err))
	}

	return &EditResult{
		Document:    doc,
		Version:     v,
		Stale:       stale,
		BaseVersion: base,
	}, nil
}

// Revert commits the content of an earlier version as a new version. The
// target entry is left untouched; history only grows.
func (s *Service) Revert(ctx context.Context, p access.Principal, documentID, versionID uuid.UUID) (*RevertResult, error) {
	doc, _, err := s.Authorize(ctx, p, documentID, models.AccessEdit)
	if err != nil {
		return nil, err
	}

	target, err := s.versions.GetByID(ctx, doc.TenantID, doc.ID, versionID)
	if err != nil {
		return nil, fmt.Errorf("get version: %w", err)
	}
	if target == nil || target.DocumentID != doc.ID {
		return nil, fmt.Errorf("version %s: %w", versionID, apperr.ErrNotFound)
	}

	v, err := s.commit(ctx, doc, p.ActorID(), target.Content, RevertLabel(target.Sequence))
	if err != nil {
		return nil, err
	}
	return &RevertResult{Document: doc, Version: v}, nil
}

// commit advances doc to the next version and its history entry in one
// store call, and updates doc in place only once that succeeded.
func (s *Service) commit(ctx context.Context, doc *models.Document, authorID uuid.UUID, content, label string) (models.DocumentVersion, error) {
	now := s.now().UTC()
	v := models.DocumentVersion{
		ID:         uuid.New(),
		DocumentID: doc.ID,
		TenantID:   doc.TenantID,
		AuthorID:   authorID,
		Sequence:   doc.Version + 1,
		Content:    content,
		Label:      label,
		CreatedAt:  now,
	}
	if err := s.docs.Commit(ctx, v); err != nil {
		return models.DocumentVersion{}, fmt.Errorf("commit version %d: %w", v.Sequence, err)
	}

	doc.Content = content
	doc.Version = v.Sequence
	doc.UpdatedAt = now
	return v, nil
}

// CreateShareLink issues a new link granting level. Only editors may grant.
func (s *Service) CreateShareLink(ctx context.Context, p access.Principal, documentID uuid.UUID, level models.AccessLevel, expiresAt *time.Time) (*models.ShareLink, error) {
	if !level.Valid() {
		return nil, fmt.Errorf("share link level %q: %w", level, apperr.ErrInvalid)
	}
	doc, _, err := s.Authorize(ctx, p, documentID, models.AccessEdit)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	if expiresAt != nil {
		if !expiresAt.After(now) {
			return nil, fmt.Errorf("share link already expired: %w", apperr.ErrInvalid)
		}
		at := expiresAt.UTC()
		expiresAt = &at
	}

	for attempt := 0; ; attempt++ {
		token, err := access.NewShareToken()
		if err != nil {
			return nil, err
		}
		link := models.ShareLink{
			ID:         uuid.New(),
			DocumentID: doc.ID,
			TenantID:   doc.TenantID,
			Token:      token,
			Level:      level,
			CreatedBy:  p.ActorID(),
			CreatedAt:  now,
			ExpiresAt:  expiresAt,
		}
		err = s.docs.AddShareLink(ctx, link)
		if err == nil {
			return &link, nil
		}
		if !errors.Is(err, apperr.ErrConflict) || attempt+1 >= shareTokenAttempts {
			return nil, fmt.Errorf("create share link: %w", err)
		}
	}
}

// RevokeShareLink removes a link; holders of its token lose access at once.
func (s *Service) RevokeShareLink(ctx context.Context, p access.Principal, documentID, linkID uuid.UUID) error {
	doc, _, err := s.Authorize(ctx, p, documentID, models.AccessEdit)
	if err != nil {
		return err
	}
	removed, err := s.docs.DeleteShareLink(ctx, doc.TenantID, doc.ID, linkID)
	if err != nil {
		return fmt.Errorf("revoke share link: %w", err)
	}
	if !removed {
		return fmt.Errorf("share link %s: %w", linkID, apperr.ErrNotFound)
	}
	return nil
}

// SetPermission grants subjectID level on the document. The owner's access
// is implicit and cannot be changed this way.
func (s *Service) SetPermission(ctx context.Context, p access.Principal, documentID, subjectID uuid.UUID, level models.AccessLevel) (*models.Document, error) {
	if !level.Valid() {
		return nil, fmt.Errorf("permission level %q: %w", level, apperr.ErrInvalid)
	}
	if subjectID == uuid.Nil {
		return nil, fmt.Errorf("permission subject is empty: %w", apperr.ErrInvalid)
	}

	doc, _, err := s.Authorize(ctx, p, documentID, models.AccessEdit)
	if err != nil {
		return nil, err
	}
	if subjectID == doc.OwnerID {
		return nil, fmt.Errorf("owner access cannot be changed: %w", apperr.ErrInvalid)
	}

	if err := s.docs.UpsertPermission(ctx, doc.TenantID, doc.ID, subjectID, level); err != nil {
		return nil, fmt.Errorf("set permission: %w", err)
	}
	doc.Permissions[subjectID] = level
	return doc, nil
}

// ListVersions returns history newest first, capped by limit and the
// service's history limit.
func (s *Service) ListVersions(ctx context.Context, p access.Principal, documentID uuid.UUID, limit int) ([]models.DocumentVersion, error) {
	doc, _, err := s.Authorize(ctx, p, documentID, models.AccessView)
	if err != nil {
		return nil, err
	}

	if s.historyLimit > 0 && (limit <= 0 || limit > s.historyLimit) {
		limit = s.historyLimit
	}
	versions, err := s.versions.List(ctx, doc.TenantID, doc.ID, limit)
	if err != nil {
		return nil, fmt.Errorf("list versions: %w", err)
	}
	return versions, nil
}

// ListOperations returns the audit trail of accepted edits, newest first.
func (s *Service) ListOperations(ctx context.Context, p access.Principal, documentID uuid.UUID, limit int) ([]models.Operation, error) {
	doc, _, err := s.Authorize(ctx, p, documentID, models.AccessEdit)
	if err != nil {
		return nil, err
	}
	ops, err := s.ops.ListByDocument(ctx, doc.TenantID, doc.ID, limit)
	if err != nil {
		return nil, fmt.Errorf("list operations: %w", err)
	}
	return ops, nil
}

func redact(doc *models.Document, level models.AccessLevel) *models.Document {
	if level.AtLeast(models.AccessEdit) {
		return doc
	}
	out := *doc
	out.Permissions = nil
	out.ShareLinks = nil
	return &out
}
