package postgres

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/mehmetylmz/keygate"
	"github.com/mehmetylmz/keygate/store/postgres/migrations"
)

// Store implements [keygate.AccountStore] and [keygate.SettingsStore].
type Store struct {
	db *sql.DB

	// twoFactorColumns is decided once at startup by DetectSchema; when
	// false, account writes use the reduced statement and second-factor
	// mutations are refused.
	twoFactorColumns bool
}

// New wraps an open database handle. The caller owns the handle's
// lifecycle. Migrate or DetectSchema should run before serving requests.
func New(db *sql.DB) *Store {
	return &Store{db: db, twoFactorColumns: true}
}

// Migrate applies the embedded goose migrations.
func (s *Store) Migrate(ctx context.Context) error {
	goose.SetBaseFS(migrations.FS)
	if err := goose.SetDialect("pgx"); err != nil {
		return err
	}
	if err := goose.UpContext(ctx, s.db, "."); err != nil {
		return fmt.Errorf("%w: %v", keygate.ErrStorageUnavailable, err)
	}
	s.twoFactorColumns = true
	return nil
}

// DetectSchema probes the accounts table for the two-factor columns and
// selects the reduced write path when they are absent. For migrated
// databases this is a no-op.
func (s *Store) DetectSchema(ctx context.Context) error {
	rows, err := s.db.QueryContext(ctx,
		`SELECT column_name FROM information_schema.columns WHERE table_name = 'accounts'`)
	if err != nil {
		return fmt.Errorf("%w: %v", keygate.ErrStorageUnavailable, err)
	}
	defer rows.Close()

	present := map[string]bool{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return fmt.Errorf("%w: %v", keygate.ErrStorageUnavailable, err)
		}
		present[name] = true
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("%w: %v", keygate.ErrStorageUnavailable, err)
	}

	s.twoFactorColumns = present["two_factor_secret"] && present["two_factor_enabled"]
	return nil
}
