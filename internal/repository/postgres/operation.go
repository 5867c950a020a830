package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lalith-99/docstream/internal/models"
)

type OperationStore struct {
	pool *pgxpool.Pool
}

func NewOperationStore(pool *pgxpool.Pool) *OperationStore {
	return &OperationStore{pool: pool}
}

func (s *OperationStore) Save(ctx context.Context, op models.Operation) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO document_operations (id, document_id, tenant_id, user_id, version, lamport, delta, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		op.ID, op.DocumentID, op.TenantID, op.UserID, op.Version, op.Lamport, op.Delta, op.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert operation: %w", err)
	}
	return nil
}

// ListByDocument orders by id: operation ids are ULIDs, so id order is
// arrival order.
func (s *OperationStore) ListByDocument(ctx context.Context, tenantID, documentID uuid.UUID, limit int) ([]models.Operation, error) {
	var lim *int
	if limit > 0 {
		lim = &limit
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, document_id, tenant_id, user_id, version, lamport, delta, created_at
		FROM document_operations
		WHERE document_id = $1 AND tenant_id = $2
		ORDER BY id DESC
		LIMIT $3`, documentID, tenantID, lim)
	if err != nil {
		return nil, fmt.Errorf("list operations: %w", err)
	}
	defer rows.Close()

	ops := make([]models.Operation, 0)
	for rows.Next() {
		var op models.Operation
		if err := rows.Scan(
			&op.ID,
			&op.DocumentID,
			&op.TenantID,
			&op.UserID,
			&op.Version,
			&op.Lamport,
			&op.Delta,
			&op.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan operation: %w", err)
		}
		ops = append(ops, op)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate operations: %w", err)
	}
	return ops, nil
}
