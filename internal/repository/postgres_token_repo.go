package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/outpost-labs/warden/internal/domain"
)

// PostgresTokenRepo implements domain.TokenRepository using PostgreSQL.
type PostgresTokenRepo struct {
	db *sql.DB
}

// NewPostgresTokenRepo creates a new repository instance.
func NewPostgresTokenRepo(db *sql.DB) *PostgresTokenRepo {
	return &PostgresTokenRepo{db: db}
}

// Store persists a new refresh token record.
func (r *PostgresTokenRepo) Store(ctx context.Context, token *domain.RefreshToken) error {
	query := `
		INSERT INTO refresh_tokens (token_id, user_id, session_id, expires_at,
			is_revoked, ip_address, user_agent, created_at)
		VALUES ($1, $2, $3, $4, false, $5, $6, $7)
	`
	_, err := r.db.ExecContext(ctx, query,
		token.TokenID, token.UserID, token.SessionID, token.ExpiresAt,
		token.IPAddress, token.UserAgent, token.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to store refresh token: %w", err)
	}
	return nil
}

// Rotate claims a live record in a single conditional update. Of two
// concurrent rotations of the same token, exactly one matches the
// is_revoked=false predicate; the loser sees domain.ErrNotFound.
func (r *PostgresTokenRepo) Rotate(ctx context.Context, tokenID string, now time.Time) (*domain.RefreshToken, error) {
	query := `
		UPDATE refresh_tokens
		SET is_revoked = true, revoked_reason = $3, revoked_at = $2
		WHERE token_id = $1 AND is_revoked = false AND expires_at > $2
		RETURNING token_id, user_id, session_id, expires_at, ip_address, user_agent, created_at
	`

	token := &domain.RefreshToken{IsRevoked: true, RevokedReason: domain.RevokedRotated}
	err := r.db.QueryRowContext(ctx, query, tokenID, now, string(domain.RevokedRotated)).Scan(
		&token.TokenID,
		&token.UserID,
		&token.SessionID,
		&token.ExpiresAt,
		&token.IPAddress,
		&token.UserAgent,
		&token.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("failed to rotate refresh token: %w", err)
	}
	token.RevokedAt = &now
	return token, nil
}

// Revoke marks a single record revoked. Revoking an already-revoked record
// is a no-op, which keeps logout idempotent.
func (r *PostgresTokenRepo) Revoke(ctx context.Context, tokenID string, reason domain.RevocationReason) error {
	query := `
		UPDATE refresh_tokens SET is_revoked = true, revoked_reason = $2, revoked_at = now()
		WHERE token_id = $1 AND is_revoked = false
	`
	_, err := r.db.ExecContext(ctx, query, tokenID, string(reason))
	if err != nil {
		return fmt.Errorf("failed to revoke refresh token: %w", err)
	}
	return nil
}

// RevokeAllForUser terminates every live session of a user.
func (r *PostgresTokenRepo) RevokeAllForUser(ctx context.Context, userID string, reason domain.RevocationReason) error {
	query := `
		UPDATE refresh_tokens SET is_revoked = true, revoked_reason = $2, revoked_at = now()
		WHERE user_id = $1 AND is_revoked = false
	`
	_, err := r.db.ExecContext(ctx, query, userID, string(reason))
	if err != nil {
		return fmt.Errorf("failed to revoke refresh tokens for user: %w", err)
	}
	return nil
}

// ActiveSessions lists the user's live refresh token records.
func (r *PostgresTokenRepo) ActiveSessions(ctx context.Context, userID string, now time.Time) ([]domain.Session, error) {
	query := `
		SELECT token_id, session_id, ip_address, user_agent, created_at, expires_at
		FROM refresh_tokens
		WHERE user_id = $1 AND is_revoked = false AND expires_at > $2
		ORDER BY created_at DESC
	`

	rows, err := r.db.QueryContext(ctx, query, userID, now)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []domain.Session
	for rows.Next() {
		var s domain.Session
		if err := rows.Scan(&s.TokenID, &s.SessionID, &s.IPAddress, &s.UserAgent, &s.CreatedAt, &s.ExpiresAt); err != nil {
			return nil, err
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}
