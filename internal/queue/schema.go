package queue

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
)

//go:embed schema.sql
var schemaSQL string

// schemaVersion is stored in PRAGMA user_version. Zero means a fresh file.
const schemaVersion = 1

// ErrSchemaMismatch rejects a database written by a different station release.
var ErrSchemaMismatch = errors.New("schema version mismatch")

// initSchema creates the tables on a fresh file and recreates any that went
// missing on a current one, so a damaged file still accepts new scans. Rows
// are never touched here.
func (s *Store) initSchema(ctx context.Context) error {
	var version int
	if err := s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("%w: read schema version: %w", ErrPersistenceDegraded, err)
	}
	if version != 0 && version != schemaVersion {
		return fmt.Errorf("%w: %s has version %d, this station expects %d (export pending scans, then move the file aside)",
			ErrSchemaMismatch, s.path, version, schemaVersion)
	}

	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, schemaSQL); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
		if version == schemaVersion {
			return nil
		}
		// PRAGMA takes no bound parameters.
		if _, err := tx.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", schemaVersion)); err != nil {
			return fmt.Errorf("record schema version: %w", err)
		}
		return nil
	})
}
