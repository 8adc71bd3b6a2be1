package store

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

//go:embed schema/postgres.sql
var postgresSchema string

const pgUniqueViolation = "23505"

// PostgresStore persists documents in PostgreSQL. The pool may come from
// either the lib/pq ("postgres") or the pgx ("pgx") driver.
type PostgresStore struct {
	sqlStore
}

// NewPostgres constructs a PostgreSQL-backed document store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{sqlStore{
		db: db,
		d: dialect{
			placeholder:       dollarPlaceholder,
			isUniqueViolation: isPostgresUniqueViolation,
		},
	}}
}

// Migrate applies the embedded schema. It is idempotent.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, postgresSchema); err != nil {
		return fmt.Errorf("apply postgres schema: %w", err)
	}
	return nil
}

func isPostgresUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code) == pgUniqueViolation
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolation
	}
	return false
}
