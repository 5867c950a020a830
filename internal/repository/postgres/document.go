package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lalith-99/docstream/internal/apperr"
	"github.com/lalith-99/docstream/internal/models"
)

type DocumentStore struct {
	pool *pgxpool.Pool
}

func NewDocumentStore(pool *pgxpool.Pool) *DocumentStore {
	return &DocumentStore{pool: pool}
}

func (s *DocumentStore) Create(ctx context.Context, doc *models.Document, initial models.DocumentVersion) error {
	if initial.DocumentID != doc.ID || initial.TenantID != doc.TenantID || initial.Sequence != doc.Version {
		return fmt.Errorf("insert document %s: initial version does not match: %w", doc.ID, apperr.ErrInvalid)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin create document: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO documents (id, tenant_id, title, content, owner_id, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		doc.ID, doc.TenantID, doc.Title, doc.Content, doc.OwnerID, doc.Version, doc.CreatedAt, doc.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("insert document: %w", apperr.ErrConflict)
		}
		return fmt.Errorf("insert document: %w", err)
	}

	for subjectID, level := range doc.Permissions {
		_, err = tx.Exec(ctx, `
			INSERT INTO document_permissions (document_id, subject_id, level)
			VALUES ($1, $2, $3)`,
			doc.ID, subjectID, string(level),
		)
		if err != nil {
			return fmt.Errorf("insert permission: %w", err)
		}
	}

	if err := appendVersion(ctx, tx, initial); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit create document: %w", err)
	}
	return nil
}

func (s *DocumentStore) GetByID(ctx context.Context, tenantID, documentID uuid.UUID) (*models.Document, error) {
	query := `
		SELECT id, tenant_id, title, content, owner_id, version, created_at, updated_at
		FROM documents
		WHERE id = $1 AND tenant_id = $2`

	var doc models.Document
	err := s.pool.QueryRow(ctx, query, documentID, tenantID).Scan(
		&doc.ID,
		&doc.TenantID,
		&doc.Title,
		&doc.Content,
		&doc.OwnerID,
		&doc.Version,
		&doc.CreatedAt,
		&doc.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get document: %w", err)
	}

	if doc.Permissions, err = s.permissions(ctx, doc.ID); err != nil {
		return nil, err
	}
	if doc.ShareLinks, err = s.shareLinks(ctx, tenantID, doc.ID); err != nil {
		return nil, err
	}
	return &doc, nil
}

func (s *DocumentStore) permissions(ctx context.Context, documentID uuid.UUID) (map[uuid.UUID]models.AccessLevel, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT subject_id, level
		FROM document_permissions
		WHERE document_id = $1`, documentID)
	if err != nil {
		return nil, fmt.Errorf("list permissions: %w", err)
	}
	defer rows.Close()

	perms := make(map[uuid.UUID]models.AccessLevel)
	for rows.Next() {
		var subjectID uuid.UUID
		var level string
		if err := rows.Scan(&subjectID, &level); err != nil {
			return nil, fmt.Errorf("scan permission: %w", err)
		}
		perms[subjectID] = models.AccessLevel(level)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate permissions: %w", err)
	}
	return perms, nil
}

func (s *DocumentStore) shareLinks(ctx context.Context, tenantID, documentID uuid.UUID) ([]models.ShareLink, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, document_id, tenant_id, token, level, created_by, created_at, expires_at
		FROM share_links
		WHERE document_id = $1 AND tenant_id = $2
		ORDER BY created_at ASC`, documentID, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list share links: %w", err)
	}
	defer rows.Close()

	links := make([]models.ShareLink, 0)
	for rows.Next() {
		var link models.ShareLink
		var level string
		if err := rows.Scan(
			&link.ID,
			&link.DocumentID,
			&link.TenantID,
			&link.Token,
			&level,
			&link.CreatedBy,
			&link.CreatedAt,
			&link.ExpiresAt,
		); err != nil {
			return nil, fmt.Errorf("scan share link: %w", err)
		}
		link.Level = models.AccessLevel(level)
		links = append(links, link)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate share links: %w", err)
	}
	return links, nil
}

func (s *DocumentStore) ListByTenant(ctx context.Context, tenantID, subjectID uuid.UUID) ([]models.Document, error) {
	query := `
		SELECT d.id, d.tenant_id, d.title, d.content, d.owner_id, d.version, d.created_at, d.updated_at, p.level
		FROM documents d
		LEFT JOIN document_permissions p ON p.document_id = d.id AND p.subject_id = $2
		WHERE d.tenant_id = $1
		ORDER BY d.updated_at DESC`

	rows, err := s.pool.Query(ctx, query, tenantID, subjectID)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	docs := make([]models.Document, 0)
	for rows.Next() {
		var doc models.Document
		var level *string
		if err := rows.Scan(
			&doc.ID,
			&doc.TenantID,
			&doc.Title,
			&doc.Content,
			&doc.OwnerID,
			&doc.Version,
			&doc.CreatedAt,
			&doc.UpdatedAt,
			&level,
		); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		doc.Permissions = make(map[uuid.UUID]models.AccessLevel, 1)
		if level != nil {
			doc.Permissions[subjectID] = models.AccessLevel(*level)
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate documents: %w", err)
	}
	return docs, nil
}

// Commit is a compare-and-set on version plus the history insert in one
// transaction, so even two processes writing the same document cannot
// commit the same version twice or leave a version without its entry.
func (s *DocumentStore) Commit(ctx context.Context, v models.DocumentVersion) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin commit document: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		UPDATE documents
		SET content = $1, version = $2, updated_at = $3
		WHERE id = $4 AND tenant_id = $5 AND version = $2 - 1`,
		v.Content, v.Sequence, v.CreatedAt, v.DocumentID, v.TenantID,
	)
	if err != nil {
		return fmt.Errorf("update document: %w", err)
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		err = tx.QueryRow(ctx, `
			SELECT EXISTS (SELECT 1 FROM documents WHERE id = $1 AND tenant_id = $2)`,
			v.DocumentID, v.TenantID,
		).Scan(&exists)
		if err != nil {
			return fmt.Errorf("check document: %w", err)
		}
		if !exists {
			return fmt.Errorf("update document %s: %w", v.DocumentID, apperr.ErrNotFound)
		}
		return fmt.Errorf("update document %s to version %d: %w", v.DocumentID, v.Sequence, apperr.ErrConflict)
	}

	if err := appendVersion(ctx, tx, v); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit document %s version %d: %w", v.DocumentID, v.Sequence, err)
	}
	return nil
}

func (s *DocumentStore) UpsertPermission(ctx context.Context, tenantID, documentID, subjectID uuid.UUID, level models.AccessLevel) error {
	// The EXISTS guard keeps the write tenant scoped; the FK alone would
	// accept a document from any tenant.
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO document_permissions (document_id, subject_id, level)
		SELECT $1, $2, $3
		WHERE EXISTS (SELECT 1 FROM documents WHERE id = $1 AND tenant_id = $4)
		ON CONFLICT (document_id, subject_id) DO UPDATE SET level = EXCLUDED.level`,
		documentID, subjectID, string(level), tenantID,
	)
	if err != nil {
		return fmt.Errorf("upsert permission: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("upsert permission: %w", apperr.ErrNotFound)
	}
	return nil
}

func (s *DocumentStore) AddShareLink(ctx context.Context, link models.ShareLink) error {
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO share_links (id, document_id, tenant_id, token, level, created_by, created_at, expires_at)
		SELECT $1, $2, $3, $4, $5, $6, $7, $8
		WHERE EXISTS (SELECT 1 FROM documents WHERE id = $2 AND tenant_id = $3)`,
		link.ID, link.DocumentID, link.TenantID, link.Token, string(link.Level),
		link.CreatedBy, link.CreatedAt, link.ExpiresAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("insert share link: %w", apperr.ErrConflict)
		}
		return fmt.Errorf("insert share link: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("insert share link: %w", apperr.ErrNotFound)
	}
	return nil
}

func (s *DocumentStore) DeleteShareLink(ctx context.Context, tenantID, documentID, linkID uuid.UUID) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM share_links
		WHERE id = $1 AND document_id = $2 AND tenant_id = $3`,
		linkID, documentID, tenantID,
	)
	if err != nil {
		return false, fmt.Errorf("delete share link: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}
