package store

import (
	"context"
	"database/sql"
	"errors"
)

func (s *Store) setMetadata(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO metadata (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		key, value,
	)
	return err
}

// Metadata returns the value stored under key and whether it exists.
func (s *Store) Metadata(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM metadata WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

// SchemaVersion reports the schema version written by the last migration.
func (s *Store) SchemaVersion(ctx context.Context) (string, error) {
	v, _, err := s.Metadata(ctx, "schema_version")
	return v, err
}
