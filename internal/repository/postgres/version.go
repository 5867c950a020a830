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

type VersionStore struct {
	pool *pgxpool.Pool
}

func NewVersionStore(pool *pgxpool.Pool) *VersionStore {
	return &VersionStore{pool: pool}
}

// appendVersion inserts v inside tx only if it directly follows the current
// head. Two racing appends for the same slot both pass the head check at
// worst, and then the UNIQUE (document_id, sequence) constraint rejects the
// loser.
func appendVersion(ctx context.Context, tx pgx.Tx, v models.DocumentVersion) error {
	tag, err := tx.Exec(ctx, `
		INSERT INTO document_versions (id, document_id, tenant_id, author_id, sequence, content, label, created_at)
		SELECT $1, $2, $3, $4, $5, $6, $7, $8
		WHERE (
			SELECT COALESCE(MAX(sequence), -1)
			FROM document_versions
			WHERE document_id = $2
		) = $5 - 1`,
		v.ID, v.DocumentID, v.TenantID, v.AuthorID, v.Sequence, v.Content, v.Label, v.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("append version %d: %w", v.Sequence, apperr.ErrConflict)
		}
		return fmt.Errorf("append version: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("append version %d: not next in sequence: %w", v.Sequence, apperr.ErrConflict)
	}
	return nil
}

func (s *VersionStore) List(ctx context.Context, tenantID, documentID uuid.UUID, limit int) ([]models.DocumentVersion, error) {
	// LIMIT NULL is no limit in Postgres.
	var lim *int
	if limit > 0 {
		lim = &limit
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, document_id, tenant_id, author_id, sequence, content, label, created_at
		FROM document_versions
		WHERE document_id = $1 AND tenant_id = $2
		ORDER BY sequence DESC
		LIMIT $3`, documentID, tenantID, lim)
	if err != nil {
		return nil, fmt.Errorf("list versions: %w", err)
	}
	defer rows.Close()

	versions := make([]models.DocumentVersion, 0)
	for rows.Next() {
		v, err := scanVersion(rows)
		if err != nil {
			return nil, err
		}
		versions = append(versions, *v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate versions: %w", err)
	}
	return versions, nil
}

func (s *VersionStore) GetByID(ctx context.Context, tenantID, documentID, versionID uuid.UUID) (*models.DocumentVersion, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, document_id, tenant_id, author_id, sequence, content, label, created_at
		FROM document_versions
		WHERE id = $1 AND document_id = $2 AND tenant_id = $3`, versionID, documentID, tenantID)

	v, err := scanVersion(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return v, nil
}

func scanVersion(row pgx.Row) (*models.DocumentVersion, error) {
	var v models.DocumentVersion
	if err := row.Scan(
		&v.ID,
		&v.DocumentID,
		&v.TenantID,
		&v.AuthorID,
		&v.Sequence,
		&v.Content,
		&v.Label,
		&v.CreatedAt,
	); err != nil {
		return nil, fmt.Errorf("scan version: %w", err)
	}
	return &v, nil
}
