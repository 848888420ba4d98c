package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/mehmetylmz/keygate"
)

// Get reads one settings value. Absent names read as an empty string.
func (s *Store) Get(ctx context.Context, name string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM settings WHERE name = $1`, name).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil
		}
		return "", fmt.Errorf("%w: %v", keygate.ErrStorageUnavailable, err)
	}
	return value, nil
}

// Set upserts one settings value. The single-statement upsert is the one
// serialized write path for process-wide configuration.
func (s *Store) Set(ctx context.Context, name, value string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO settings (name, value) VALUES ($1, $2)
		 ON CONFLICT (name) DO UPDATE SET value = EXCLUDED.value`,
		name, value)
	if err != nil {
		return fmt.Errorf("%w: %v", keygate.ErrStorageUnavailable, err)
	}
	return nil
}
