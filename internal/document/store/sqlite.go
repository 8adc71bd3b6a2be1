package store

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"

	"github.com/mattn/go-sqlite3"
)

//go:embed schema/sqlite.sql
var sqliteSchema string

// Schema version tracking:
// 1 - documents table
const sqliteSchemaVersion = 1

// SQLiteStore persists documents in a single SQLite file. Open the pool
// with database.OpenSQLite so writes are serialised on one connection.
type SQLiteStore struct {
	sqlStore
}

func NewSQLite(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{sqlStore{
		db: db,
		d: dialect{
			placeholder:       questionPlaceholder,
			isUniqueViolation: isSQLiteUniqueViolation,
		},
	}}
}

// Migrate applies the embedded schema and records the schema version in
// PRAGMA user_version. It is idempotent.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, sqliteSchema); err != nil {
		return fmt.Errorf("apply sqlite schema: %w", err)
	}
	var version int
	if err := s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}
	if version < sqliteSchemaVersion {
		if _, err := s.db.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", sqliteSchemaVersion)); err != nil {
			return fmt.Errorf("set user_version: %w", err)
		}
	}
	return nil
}

func isSQLiteUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}
