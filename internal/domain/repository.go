package domain

import (
	"context"
	"time"
)

// UserRepository defines the contract for user data persistence. Mutations of
// contended state (lockout counters, MFA material, reset tokens) are single
// conditional updates so concurrent requests cannot corrupt counters or
// resurrect consumed tokens.
type UserRepository interface {
	GetByEmail(ctx context.Context, email string) (*User, error)
	GetByID(ctx context.Context, id string) (*User, error)
	Create(ctx context.Context, user *User) error

	// RecordLoginFailure applies one failed attempt in a single statement:
	// an expired lock resets the counter to 1 and clears the lock, otherwise
	// the counter increments; reaching threshold on a not-yet-locked account
	// sets lockUntil = now + lockDuration. Returns the post-update state.
	RecordLoginFailure(ctx context.Context, userID string, threshold int, lockDuration time.Duration) (attempts int, lockUntil *time.Time, err error)

	// RecordLoginSuccess clears the counter and lock unconditionally.
	RecordLoginSuccess(ctx context.Context, userID string) error

	UpdatePassword(ctx context.Context, userID, passwordHash string, changedAt time.Time) error

	// SetMFAPending stores a not-yet-authoritative secret (mfaEnabled stays
	// false). EnableMFA flips the flag and installs the backup code digests
	// only if that same pending secret is still in place.
	SetMFAPending(ctx context.Context, userID, secret string) error
	EnableMFA(ctx context.Context, userID, secret string, backupCodes []string) error
	DisableMFA(ctx context.Context, userID string) error
	ReplaceBackupCodes(ctx context.Context, userID string, backupCodes []string) error

	// ConsumeBackupCode removes the digest iff it is present; false means the
	// code was unknown or already used.
	ConsumeBackupCode(ctx context.Context, userID, codeDigest string) (bool, error)

	// SetResetToken stores the reset token digest and expiry as a pair.
	SetResetToken(ctx context.Context, userID, tokenDigest string, expires time.Time) error

	// ConsumeResetToken is the whole reset in one conditional update: match
	// an unexpired digest, install the new hash, clear the token pair and
	// lockout state, stamp passwordChangedAt. Returns the owning user id or
	// ErrNotFound when no row matched.
	ConsumeResetToken(ctx context.Context, tokenDigest, passwordHash string, now time.Time) (userID string, err error)

	// FindByResetToken is the non-consuming validity check.
	FindByResetToken(ctx context.Context, tokenDigest string, now time.Time) (*User, error)
}

// TokenRepository persists refresh token records.
type TokenRepository interface {
	Store(ctx context.Context, token *RefreshToken) error

	// Rotate atomically claims a live record: it marks the record revoked
	// (reason rotated) iff it is non-revoked and unexpired, returning the
	// claimed record. Exactly one of two concurrent rotations can win.
	Rotate(ctx context.Context, tokenID string, now time.Time) (*RefreshToken, error)

	Revoke(ctx context.Context, tokenID string, reason RevocationReason) error
	RevokeAllForUser(ctx context.Context, userID string, reason RevocationReason) error
	ActiveSessions(ctx context.Context, userID string, now time.Time) ([]Session, error)
}

// AuditLog is a write-only sink for security events.
type AuditLog interface {
	Record(ctx context.Context, entry *AuditEntry) error
	Purge(ctx context.Context, olderThan time.Time) (int64, error)
}

// EmailSender delivers out-of-band messages. Delivery is best-effort; a send
// failure must not fail the request that triggered it.
type EmailSender interface {
	SendPasswordReset(ctx context.Context, email, rawToken string) error
}

// RateLimiter bounds attempts per identity/IP key before the lockout policy
// ever sees a request.
type RateLimiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}
