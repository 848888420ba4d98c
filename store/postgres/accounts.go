package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/mehmetylmz/keygate"
)

const pgUniqueViolation = "23505"

const accountColumns = `key, user_id, is_admin, COALESCE(user_type, ''), expiry, created_at,
	daily_used, last_reset_date, two_factor_secret, two_factor_enabled`

const accountColumnsReduced = `key, user_id, is_admin, COALESCE(user_type, ''), expiry, created_at,
	daily_used, last_reset_date`

// GetByKey looks an account up by its credential key.
func (s *Store) GetByKey(ctx context.Context, key string) (*keygate.Account, error) {
	return s.getAccount(ctx, "key", key)
}

// GetByUserID looks an account up by its stable user identity.
func (s *Store) GetByUserID(ctx context.Context, userID string) (*keygate.Account, error) {
	return s.getAccount(ctx, "user_id", userID)
}

func (s *Store) getAccount(ctx context.Context, column, value string) (*keygate.Account, error) {
	cols := accountColumns
	if !s.twoFactorColumns {
		cols = accountColumnsReduced
	}
	query := fmt.Sprintf(`SELECT %s FROM accounts WHERE %s = $1`, cols, column)

	row := s.db.QueryRowContext(ctx, query, value)
	account, err := scanAccount(row, s.twoFactorColumns)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, keygate.ErrAccountNotFound
		}
		return nil, fmt.Errorf("%w: %v", keygate.ErrStorageUnavailable, err)
	}
	return account, nil
}

// Create inserts a new account row. A taken key or user id reports
// [keygate.ErrAccountExists].
func (s *Store) Create(ctx context.Context, a *keygate.Account) error {
	var err error
	if s.twoFactorColumns {
		_, err = s.db.ExecContext(ctx,
			`INSERT INTO accounts
			    (key, user_id, is_admin, user_type, expiry, created_at,
			     daily_used, last_reset_date, two_factor_secret, two_factor_enabled)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8::date, $9, $10)`,
			a.Key, a.UserID, a.IsAdmin, nullString(string(a.UserType)),
			nullTime(a.Expiry), a.CreatedAt, a.DailyUsed, nullString(a.LastResetDay),
			a.TwoFactorSecret, a.TwoFactorEnabled)
	} else {
		// Reduced write for databases that predate the two-factor columns.
		_, err = s.db.ExecContext(ctx,
			`INSERT INTO accounts
			    (key, user_id, is_admin, user_type, expiry, created_at,
			     daily_used, last_reset_date)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8::date)`,
			a.Key, a.UserID, a.IsAdmin, nullString(string(a.UserType)),
			nullTime(a.Expiry), a.CreatedAt, a.DailyUsed, nullString(a.LastResetDay))
	}
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return keygate.ErrAccountExists
		}
		return fmt.Errorf("%w: %v", keygate.ErrStorageUnavailable, err)
	}
	return nil
}

// Delete removes an account by key.
func (s *Store) Delete(ctx context.Context, key string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM accounts WHERE key = $1`, key)
	if err != nil {
		return fmt.Errorf("%w: %v", keygate.ErrStorageUnavailable, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: %v", keygate.ErrStorageUnavailable, err)
	}
	if affected == 0 {
		return keygate.ErrAccountNotFound
	}
	return nil
}

// List returns all accounts, newest first.
func (s *Store) List(ctx context.Context) ([]keygate.Account, error) {
	cols := accountColumns
	if !s.twoFactorColumns {
		cols = accountColumnsReduced
	}
	rows, err := s.db.QueryContext(ctx,
		fmt.Sprintf(`SELECT %s FROM accounts ORDER BY created_at DESC`, cols))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", keygate.ErrStorageUnavailable, err)
	}
	defer rows.Close()

	var accounts []keygate.Account
	for rows.Next() {
		account, err := scanAccount(rows, s.twoFactorColumns)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", keygate.ErrStorageUnavailable, err)
		}
		accounts = append(accounts, *account)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", keygate.ErrStorageUnavailable, err)
	}
	return accounts, nil
}

// ResetDailyUsage performs the lazy day-boundary reset in one statement:
// the counter is zeroed only when the stored reset day differs from day,
// and both fields advance together. Returns the usage on record for day.
func (s *Store) ResetDailyUsage(ctx context.Context, userID, day string) (int, error) {
	var used int
	err := s.db.QueryRowContext(ctx,
		`UPDATE accounts
		    SET daily_used = CASE WHEN last_reset_date IS DISTINCT FROM $2::date THEN 0 ELSE daily_used END,
		        last_reset_date = $2::date
		  WHERE user_id = $1
		  RETURNING daily_used`,
		userID, day).Scan(&used)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, keygate.ErrAccountNotFound
		}
		return 0, fmt.Errorf("%w: %v", keygate.ErrStorageUnavailable, err)
	}
	return used, nil
}

// ChargeDailyUsage folds the lazy reset and the increment-and-check into a
// single conditional update so concurrent callers cannot race past the
// limit. The WHERE clause admits the charge only when the post-reset total
// stays within limit.
func (s *Store) ChargeDailyUsage(ctx context.Context, userID, day string, delta, limit int) (int, error) {
	var used int
	err := s.db.QueryRowContext(ctx,
		`UPDATE accounts
		    SET daily_used = CASE WHEN last_reset_date IS DISTINCT FROM $2::date THEN 0 ELSE daily_used END + $3,
		        last_reset_date = $2::date
		  WHERE user_id = $1
		    AND (CASE WHEN last_reset_date IS DISTINCT FROM $2::date THEN 0 ELSE daily_used END) + $3 <= $4
		  RETURNING daily_used`,
		userID, day, delta, limit).Scan(&used)
	if err == nil {
		return used, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("%w: %v", keygate.ErrStorageUnavailable, err)
	}

	// No row updated: either the account is gone or the charge would
	// pass the limit.
	var exists bool
	probeErr := s.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM accounts WHERE user_id = $1)`, userID).Scan(&exists)
	if probeErr != nil {
		return 0, fmt.Errorf("%w: %v", keygate.ErrStorageUnavailable, probeErr)
	}
	if !exists {
		return 0, keygate.ErrAccountNotFound
	}
	return 0, keygate.ErrQuotaExceeded
}

// RefundDailyUsage credits back undelivered units, floored at zero and
// confined to the stored reset day; refunds against another day are
// no-ops.
func (s *Store) RefundDailyUsage(ctx context.Context, userID, day string, delta int) (int, error) {
	var used int
	err := s.db.QueryRowContext(ctx,
		`UPDATE accounts
		    SET daily_used = GREATEST(daily_used - $3, 0)
		  WHERE user_id = $1 AND last_reset_date = $2::date
		  RETURNING daily_used`,
		userID, day, delta).Scan(&used)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %v", keygate.ErrStorageUnavailable, err)
	}
	return used, nil
}

// SetTwoFactorSecret stores a freshly sealed secret and drops the account
// back to the pending-confirmation state.
func (s *Store) SetTwoFactorSecret(ctx context.Context, userID string, sealed []byte) error {
	if !s.twoFactorColumns {
		return fmt.Errorf("%w: two-factor columns missing", keygate.ErrStorageUnavailable)
	}
	return s.execOneRow(ctx,
		`UPDATE accounts SET two_factor_secret = $2, two_factor_enabled = FALSE WHERE user_id = $1`,
		userID, sealed)
}

// EnableTwoFactor marks the provisioned secret as confirmed.
func (s *Store) EnableTwoFactor(ctx context.Context, userID string) error {
	if !s.twoFactorColumns {
		return fmt.Errorf("%w: two-factor columns missing", keygate.ErrStorageUnavailable)
	}
	return s.execOneRow(ctx,
		`UPDATE accounts SET two_factor_enabled = TRUE WHERE user_id = $1 AND two_factor_secret IS NOT NULL`,
		userID)
}

// DisableTwoFactor clears the enabled flag and the secret together so a
// stale secret can never revalidate. Idempotent for configured accounts.
func (s *Store) DisableTwoFactor(ctx context.Context, userID string) error {
	if !s.twoFactorColumns {
		return fmt.Errorf("%w: two-factor columns missing", keygate.ErrStorageUnavailable)
	}
	return s.execOneRow(ctx,
		`UPDATE accounts SET two_factor_enabled = FALSE, two_factor_secret = NULL WHERE user_id = $1`,
		userID)
}

func (s *Store) execOneRow(ctx context.Context, query string, args ...any) error {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%w: %v", keygate.ErrStorageUnavailable, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: %v", keygate.ErrStorageUnavailable, err)
	}
	if affected == 0 {
		return keygate.ErrAccountNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner, twoFactorColumns bool) (*keygate.Account, error) {
	var (
		a         keygate.Account
		userType  string
		expiry    sql.NullTime
		lastReset sql.NullTime
		secret    []byte
		enabled   sql.NullBool
	)

	dest := []any{&a.Key, &a.UserID, &a.IsAdmin, &userType, &expiry, &a.CreatedAt,
		&a.DailyUsed, &lastReset}
	if twoFactorColumns {
		dest = append(dest, &secret, &enabled)
	}
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}

	a.UserType = keygate.UserType(userType)
	if expiry.Valid {
		t := expiry.Time
		a.Expiry = &t
	}
	if lastReset.Valid {
		a.LastResetDay = lastReset.Time.Format("2006-01-02")
	}
	a.TwoFactorSecret = secret
	a.TwoFactorEnabled = enabled.Valid && enabled.Bool
	return &a, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
