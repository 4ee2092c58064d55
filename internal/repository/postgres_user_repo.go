package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/outpost-labs/warden/internal/domain"
)

// PostgresUserRepo implements domain.UserRepository using PostgreSQL.
// Every mutation of contended state is a single conditional UPDATE so
// concurrent requests cannot interleave read-modify-write cycles.
type PostgresUserRepo struct {
	db *sql.DB
}

// NewPostgresUserRepo creates a new repository instance.
func NewPostgresUserRepo(db *sql.DB) *PostgresUserRepo {
	return &PostgresUserRepo{db: db}
}

const userColumns = `
	id, email, first_name, last_name, password_hash, roles, is_active,
	login_attempts, lock_until, mfa_enabled, COALESCE(mfa_secret, ''),
	backup_codes, COALESCE(password_reset_token, ''), password_reset_expires,
	password_changed_at, created_at, updated_at
`

func scanUser(row *sql.Row) (*domain.User, error) {
	user := &domain.User{}
	var lockUntil, resetExpires sql.NullTime

	err := row.Scan(
		&user.ID,
		&user.Email,
		&user.FirstName,
		&user.LastName,
		&user.PasswordHash,
		pq.Array(&user.Roles),
		&user.IsActive,
		&user.LoginAttempts,
		&lockUntil,
		&user.MFAEnabled,
		&user.MFASecret,
		pq.Array(&user.BackupCodes),
		&user.PasswordResetToken,
		&resetExpires,
		&user.PasswordChangedAt,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("database error: %w", err)
	}

	if lockUntil.Valid {
		user.LockUntil = &lockUntil.Time
	}
	if resetExpires.Valid {
		user.PasswordResetExpires = &resetExpires.Time
	}
	return user, nil
}

// GetByEmail retrieves a user by email. Lookup is case-insensitive; emails
// are stored normalized.
func (r *PostgresUserRepo) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email = $1`
	return scanUser(r.db.QueryRowContext(ctx, query, domain.NormalizeEmail(email)))
}

// GetByID retrieves a user by their UUID.
func (r *PostgresUserRepo) GetByID(ctx context.Context, id string) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return scanUser(r.db.QueryRowContext(ctx, query, id))
}

// Create inserts a new user. A duplicate email surfaces as
// domain.ErrDuplicate via the unique constraint.
func (r *PostgresUserRepo) Create(ctx context.Context, user *domain.User) error {
	query := `
		INSERT INTO users (id, email, first_name, last_name, password_hash, roles,
			is_active, mfa_enabled, backup_codes, password_changed_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`

	now := time.Now()
	user.CreatedAt = now
	user.UpdatedAt = now
	user.PasswordChangedAt = now

	_, err := r.db.ExecContext(ctx, query,
		user.ID,
		domain.NormalizeEmail(user.Email),
		user.FirstName,
		user.LastName,
		user.PasswordHash,
		pq.Array(user.Roles),
		user.IsActive,
		user.MFAEnabled,
		pq.Array([]string{}),
		user.PasswordChangedAt,
		user.CreatedAt,
		user.UpdatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return domain.ErrDuplicate
		}
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

// RecordLoginFailure applies one failed attempt in a single statement. An
// expired lock resets the counter to 1 and clears the lock; otherwise the
// counter increments, and reaching the threshold on an unlocked account
// sets the lock.
func (r *PostgresUserRepo) RecordLoginFailure(ctx context.Context, userID string, threshold int, lockDuration time.Duration) (int, *time.Time, error) {
	now := time.Now()
	query := `
		UPDATE users SET
			login_attempts = CASE
				WHEN lock_until IS NOT NULL AND lock_until <= $2 THEN 1
				ELSE login_attempts + 1
			END,
			lock_until = CASE
				WHEN lock_until IS NOT NULL AND lock_until <= $2 THEN NULL
				WHEN lock_until IS NULL AND login_attempts + 1 >= $3 THEN $4
				ELSE lock_until
			END,
			updated_at = $2
		WHERE id = $1
		RETURNING login_attempts, lock_until
	`

	var attempts int
	var lockUntil sql.NullTime
	err := r.db.QueryRowContext(ctx, query, userID, now, threshold, now.Add(lockDuration)).
		Scan(&attempts, &lockUntil)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil, domain.ErrNotFound
		}
		return 0, nil, fmt.Errorf("failed to record login failure: %w", err)
	}

	if lockUntil.Valid {
		return attempts, &lockUntil.Time, nil
	}
	return attempts, nil, nil
}

// RecordLoginSuccess clears the counter and lock unconditionally.
func (r *PostgresUserRepo) RecordLoginSuccess(ctx context.Context, userID string) error {
	query := `UPDATE users SET login_attempts = 0, lock_until = NULL, updated_at = now() WHERE id = $1`
	return r.exec(ctx, query, userID)
}

// UpdatePassword replaces the password hash and stamps passwordChangedAt.
func (r *PostgresUserRepo) UpdatePassword(ctx context.Context, userID, passwordHash string, changedAt time.Time) error {
	query := `
		UPDATE users SET password_hash = $2, password_changed_at = $3, updated_at = $3
		WHERE id = $1
	`
	return r.exec(ctx, query, userID, passwordHash, changedAt)
}

// SetMFAPending stores a pending secret. The enabled flag stays false so a
// half-finished setup never gates a login.
func (r *PostgresUserRepo) SetMFAPending(ctx context.Context, userID, secret string) error {
	query := `
		UPDATE users SET mfa_secret = $2, updated_at = now()
		WHERE id = $1 AND mfa_enabled = false
	`
	return r.exec(ctx, query, userID, secret)
}

// EnableMFA flips the flag and installs backup codes iff the same pending
// secret is still in place.
func (r *PostgresUserRepo) EnableMFA(ctx context.Context, userID, secret string, backupCodes []string) error {
	query := `
		UPDATE users SET mfa_enabled = true, backup_codes = $3, updated_at = now()
		WHERE id = $1 AND mfa_secret = $2 AND mfa_enabled = false
	`
	return r.exec(ctx, query, userID, secret, pq.Array(backupCodes))
}

// DisableMFA clears the secret, the flag and all backup codes together.
func (r *PostgresUserRepo) DisableMFA(ctx context.Context, userID string) error {
	query := `
		UPDATE users SET mfa_enabled = false, mfa_secret = NULL,
			backup_codes = '{}', updated_at = now()
		WHERE id = $1
	`
	return r.exec(ctx, query, userID)
}

// ReplaceBackupCodes swaps the entire backup code set.
func (r *PostgresUserRepo) ReplaceBackupCodes(ctx context.Context, userID string, backupCodes []string) error {
	query := `
		UPDATE users SET backup_codes = $2, updated_at = now()
		WHERE id = $1 AND mfa_enabled = true
	`
	return r.exec(ctx, query, userID, pq.Array(backupCodes))
}

// ConsumeBackupCode removes the digest iff present. The WHERE clause makes
// the consumption single-use under concurrency.
func (r *PostgresUserRepo) ConsumeBackupCode(ctx context.Context, userID, codeDigest string) (bool, error) {
	query := `
		UPDATE users SET backup_codes = array_remove(backup_codes, $2), updated_at = now()
		WHERE id = $1 AND $2 = ANY(backup_codes)
	`
	result, err := r.db.ExecContext(ctx, query, userID, codeDigest)
	if err != nil {
		return false, fmt.Errorf("failed to consume backup code: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows == 1, nil
}

// SetResetToken stores the digest and expiry as a pair.
func (r *PostgresUserRepo) SetResetToken(ctx context.Context, userID, tokenDigest string, expires time.Time) error {
	query := `
		UPDATE users SET password_reset_token = $2, password_reset_expires = $3, updated_at = now()
		WHERE id = $1
	`
	return r.exec(ctx, query, userID, tokenDigest, expires)
}

// ConsumeResetToken performs the whole reset in one conditional update:
// match an unexpired digest, install the new hash, clear the token pair and
// lockout state. A consumed or expired token matches no row.
func (r *PostgresUserRepo) ConsumeResetToken(ctx context.Context, tokenDigest, passwordHash string, now time.Time) (string, error) {
	query := `
		UPDATE users SET
			password_hash = $2,
			password_reset_token = NULL,
			password_reset_expires = NULL,
			login_attempts = 0,
			lock_until = NULL,
			password_changed_at = $3,
			updated_at = $3
		WHERE password_reset_token = $1 AND password_reset_expires > $3
		RETURNING id
	`

	var userID string
	err := r.db.QueryRowContext(ctx, query, tokenDigest, passwordHash, now).Scan(&userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", domain.ErrNotFound
		}
		return "", fmt.Errorf("failed to consume reset token: %w", err)
	}
	return userID, nil
}

// FindByResetToken is the non-consuming validity check.
func (r *PostgresUserRepo) FindByResetToken(ctx context.Context, tokenDigest string, now time.Time) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users
		WHERE password_reset_token = $1 AND password_reset_expires > $2`
	return scanUser(r.db.QueryRowContext(ctx, query, tokenDigest, now))
}

func (r *PostgresUserRepo) exec(ctx context.Context, query string, args ...interface{}) error {
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("database error: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return domain.ErrConflict
	}
	return nil
}
