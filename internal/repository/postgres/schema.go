package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// schema is applied idempotently at startup.
var schema = []string{
	`CREATE EXTENSION IF NOT EXISTS "uuid-ossp"`,
	`CREATE TABLE IF NOT EXISTS tenants (
		id         uuid PRIMARY KEY DEFAULT uuid_generate_v4(),
		name       text NOT NULL,
		created_at timestamptz NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS users (
		id            uuid PRIMARY KEY DEFAULT uuid_generate_v4(),
		tenant_id     uuid NOT NULL REFERENCES tenants(id),
		email         text NOT NULL UNIQUE,
		display_name  text NOT NULL,
		password_hash text NOT NULL,
		created_at    timestamptz NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS documents (
		id         uuid PRIMARY KEY,
		tenant_id  uuid NOT NULL,
		title      text NOT NULL,
		content    text NOT NULL,
		owner_id   uuid NOT NULL,
		version    bigint NOT NULL CHECK (version >= 0),
		created_at timestamptz NOT NULL,
		updated_at timestamptz NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_documents_tenant_updated ON documents (tenant_id, updated_at DESC)`,
	`CREATE TABLE IF NOT EXISTS document_permissions (
		document_id uuid NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
		subject_id  uuid NOT NULL,
		level       text NOT NULL,
		PRIMARY KEY (document_id, subject_id)
	)`,
	`CREATE TABLE IF NOT EXISTS share_links (
		id          uuid PRIMARY KEY,
		document_id uuid NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
		tenant_id   uuid NOT NULL,
		token       text NOT NULL UNIQUE,
		level       text NOT NULL,
		created_by  uuid NOT NULL,
		created_at  timestamptz NOT NULL,
		expires_at  timestamptz
	)`,
	`CREATE TABLE IF NOT EXISTS document_versions (
		id          uuid PRIMARY KEY,
		document_id uuid NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
		tenant_id   uuid NOT NULL,
		author_id   uuid NOT NULL,
		sequence    bigint NOT NULL,
		content     text NOT NULL,
		label       text NOT NULL DEFAULT '',
		created_at  timestamptz NOT NULL,
		UNIQUE (document_id, sequence)
	)`,
	`CREATE TABLE IF NOT EXISTS document_operations (
		id          text PRIMARY KEY,
		document_id uuid NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
		tenant_id   uuid NOT NULL,
		user_id     uuid NOT NULL,
		version     bigint NOT NULL,
		lamport     bigint NOT NULL,
		delta       text NOT NULL DEFAULT '',
		created_at  timestamptz NOT NULL
	)`,
}

// EnsureSchema creates any missing tables and indexes.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	for _, q := range schema {
		if _, err := pool.Exec(ctx, q); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}

const uniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
