package repository

import (
	"context"
	"sync"
	"time"

	"github.com/outpost-labs/warden/internal/domain"
)

// In-memory store implementations with the same conditional-update
// semantics as the Postgres repositories. They back the usecase and
// handler tests and the local development mode.

// MemoryUserRepo is a mutex-guarded domain.UserRepository.
type MemoryUserRepo struct {
	mu    sync.Mutex
	users map[string]*domain.User // by id
}

// NewMemoryUserRepo creates an empty in-memory user store.
func NewMemoryUserRepo() *MemoryUserRepo {
	return &MemoryUserRepo{users: make(map[string]*domain.User)}
}

func cloneUser(u *domain.User) *domain.User {
	c := *u
	c.Roles = append([]string(nil), u.Roles...)
	c.BackupCodes = append([]string(nil), u.BackupCodes...)
	if u.LockUntil != nil {
		t := *u.LockUntil
		c.LockUntil = &t
	}
	if u.PasswordResetExpires != nil {
		t := *u.PasswordResetExpires
		c.PasswordResetExpires = &t
	}
	return &c
}

func (r *MemoryUserRepo) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	email = domain.NormalizeEmail(email)
	for _, u := range r.users {
		if u.Email == email {
			return cloneUser(u), nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r *MemoryUserRepo) GetByID(ctx context.Context, id string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return cloneUser(u), nil
}

func (r *MemoryUserRepo) Create(ctx context.Context, user *domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	email := domain.NormalizeEmail(user.Email)
	for _, u := range r.users {
		if u.Email == email {
			return domain.ErrDuplicate
		}
	}

	now := time.Now()
	user.Email = email
	user.CreatedAt = now
	user.UpdatedAt = now
	user.PasswordChangedAt = now
	r.users[user.ID] = cloneUser(user)
	return nil
}

// SetActive toggles the deactivation flag. Deactivation happens out of
// band; the login and refresh paths only read the flag.
func (r *MemoryUserRepo) SetActive(ctx context.Context, userID string, active bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[userID]
	if !ok {
		return domain.ErrNotFound
	}
	u.IsActive = active
	u.UpdatedAt = time.Now()
	return nil
}

func (r *MemoryUserRepo) RecordLoginFailure(ctx context.Context, userID string, threshold int, lockDuration time.Duration) (int, *time.Time, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[userID]
	if !ok {
		return 0, nil, domain.ErrNotFound
	}

	now := time.Now()
	switch {
	case u.LockUntil != nil && !u.LockUntil.After(now):
		u.LoginAttempts = 1
		u.LockUntil = nil
	default:
		u.LoginAttempts++
		if u.LockUntil == nil && u.LoginAttempts >= threshold {
			t := now.Add(lockDuration)
			u.LockUntil = &t
		}
	}

	if u.LockUntil != nil {
		t := *u.LockUntil
		return u.LoginAttempts, &t, nil
	}
	return u.LoginAttempts, nil, nil
}

func (r *MemoryUserRepo) RecordLoginSuccess(ctx context.Context, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[userID]
	if !ok {
		return domain.ErrConflict
	}
	u.LoginAttempts = 0
	u.LockUntil = nil
	return nil
}

func (r *MemoryUserRepo) UpdatePassword(ctx context.Context, userID, passwordHash string, changedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[userID]
	if !ok {
		return domain.ErrConflict
	}
	u.PasswordHash = passwordHash
	u.PasswordChangedAt = changedAt
	return nil
}

func (r *MemoryUserRepo) SetMFAPending(ctx context.Context, userID, secret string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[userID]
	if !ok || u.MFAEnabled {
		return domain.ErrConflict
	}
	u.MFASecret = secret
	return nil
}

func (r *MemoryUserRepo) EnableMFA(ctx context.Context, userID, secret string, backupCodes []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[userID]
	if !ok || u.MFAEnabled || u.MFASecret != secret {
		return domain.ErrConflict
	}
	u.MFAEnabled = true
	u.BackupCodes = append([]string(nil), backupCodes...)
	return nil
}

func (r *MemoryUserRepo) DisableMFA(ctx context.Context, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[userID]
	if !ok {
		return domain.ErrConflict
	}
	u.MFAEnabled = false
	u.MFASecret = ""
	u.BackupCodes = nil
	return nil
}

func (r *MemoryUserRepo) ReplaceBackupCodes(ctx context.Context, userID string, backupCodes []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[userID]
	if !ok || !u.MFAEnabled {
		return domain.ErrConflict
	}
	u.BackupCodes = append([]string(nil), backupCodes...)
	return nil
}

func (r *MemoryUserRepo) ConsumeBackupCode(ctx context.Context, userID, codeDigest string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[userID]
	if !ok {
		return false, domain.ErrNotFound
	}
	for i, c := range u.BackupCodes {
		if c == codeDigest {
			u.BackupCodes = append(u.BackupCodes[:i], u.BackupCodes[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

func (r *MemoryUserRepo) SetResetToken(ctx context.Context, userID, tokenDigest string, expires time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[userID]
	if !ok {
		return domain.ErrConflict
	}
	u.PasswordResetToken = tokenDigest
	t := expires
	u.PasswordResetExpires = &t
	return nil
}

func (r *MemoryUserRepo) ConsumeResetToken(ctx context.Context, tokenDigest, passwordHash string, now time.Time) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.PasswordResetToken == tokenDigest && tokenDigest != "" &&
			u.PasswordResetExpires != nil && u.PasswordResetExpires.After(now) {
			u.PasswordHash = passwordHash
			u.PasswordResetToken = ""
			u.PasswordResetExpires = nil
			u.LoginAttempts = 0
			u.LockUntil = nil
			u.PasswordChangedAt = now
			return u.ID, nil
		}
	}
	return "", domain.ErrNotFound
}

func (r *MemoryUserRepo) FindByResetToken(ctx context.Context, tokenDigest string, now time.Time) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.PasswordResetToken == tokenDigest && tokenDigest != "" &&
			u.PasswordResetExpires != nil && u.PasswordResetExpires.After(now) {
			return cloneUser(u), nil
		}
	}
	return nil, domain.ErrNotFound
}

// MemoryTokenRepo is a mutex-guarded domain.TokenRepository.
type MemoryTokenRepo struct {
	mu     sync.Mutex
	tokens map[string]*domain.RefreshToken // by token id
}

// NewMemoryTokenRepo creates an empty in-memory token store.
func NewMemoryTokenRepo() *MemoryTokenRepo {
	return &MemoryTokenRepo{tokens: make(map[string]*domain.RefreshToken)}
}

func (r *MemoryTokenRepo) Store(ctx context.Context, token *domain.RefreshToken) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := *token
	r.tokens[token.TokenID] = &c
	return nil
}

func (r *MemoryTokenRepo) Rotate(ctx context.Context, tokenID string, now time.Time) (*domain.RefreshToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.tokens[tokenID]
	if !ok || t.IsRevoked || !t.ExpiresAt.After(now) {
		return nil, domain.ErrNotFound
	}
	t.IsRevoked = true
	t.RevokedReason = domain.RevokedRotated
	t.RevokedAt = &now

	c := *t
	return &c, nil
}

func (r *MemoryTokenRepo) Revoke(ctx context.Context, tokenID string, reason domain.RevocationReason) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok := r.tokens[tokenID]; ok && !t.IsRevoked {
		now := time.Now()
		t.IsRevoked = true
		t.RevokedReason = reason
		t.RevokedAt = &now
	}
	return nil
}

func (r *MemoryTokenRepo) RevokeAllForUser(ctx context.Context, userID string, reason domain.RevocationReason) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	for _, t := range r.tokens {
		if t.UserID == userID && !t.IsRevoked {
			t.IsRevoked = true
			t.RevokedReason = reason
			t.RevokedAt = &now
		}
	}
	return nil
}

func (r *MemoryTokenRepo) ActiveSessions(ctx context.Context, userID string, now time.Time) ([]domain.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var sessions []domain.Session
	for _, t := range r.tokens {
		if t.UserID == userID && !t.IsRevoked && t.ExpiresAt.After(now) {
			sessions = append(sessions, domain.Session{
				TokenID:   t.TokenID,
				SessionID: t.SessionID,
				IPAddress: t.IPAddress,
				UserAgent: t.UserAgent,
				CreatedAt: t.CreatedAt,
				ExpiresAt: t.ExpiresAt,
			})
		}
	}
	return sessions, nil
}

// MemoryAuditLog is a mutex-guarded domain.AuditLog keeping entries in
// insertion order.
type MemoryAuditLog struct {
	mu      sync.Mutex
	entries []domain.AuditEntry
}

// NewMemoryAuditLog creates an empty in-memory audit sink.
func NewMemoryAuditLog() *MemoryAuditLog {
	return &MemoryAuditLog{}
}

func (r *MemoryAuditLog) Record(ctx context.Context, entry *domain.AuditEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, *entry)
	return nil
}

func (r *MemoryAuditLog) Purge(ctx context.Context, olderThan time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	kept := r.entries[:0]
	var purged int64
	for _, e := range r.entries {
		if e.CreatedAt.Before(olderThan) {
			purged++
			continue
		}
		kept = append(kept, e)
	}
	r.entries = kept
	return purged, nil
}

// Entries returns a copy of everything recorded so far.
func (r *MemoryAuditLog) Entries() []domain.AuditEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.AuditEntry(nil), r.entries...)
}
