package usecase

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/outpost-labs/warden/internal/domain"
	"github.com/outpost-labs/warden/internal/lockout"
	"github.com/outpost-labs/warden/internal/repository"
)

// Shared test fixtures: in-memory stores with the same conditional-update
// semantics as the Postgres repositories.

type allowAllLimiter struct{}

func (allowAllLimiter) Allow(ctx context.Context, key string) (bool, error) { return true, nil }

type denyLimiter struct{}

func (denyLimiter) Allow(ctx context.Context, key string) (bool, error) { return false, nil }

type recordingMailer struct {
	mu     sync.Mutex
	emails []string
	tokens []string
}

func (m *recordingMailer) SendPasswordReset(ctx context.Context, email, rawToken string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.emails = append(m.emails, email)
	m.tokens = append(m.tokens, rawToken)
	return nil
}

func (m *recordingMailer) sentCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.emails)
}

func (m *recordingMailer) lastToken() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.tokens) == 0 {
		return ""
	}
	return m.tokens[len(m.tokens)-1]
}

type env struct {
	auth     *AuthUsecase
	password *PasswordUsecase
	mfa      *MFAUsecase
	tokens   *TokenService
	users    *repository.MemoryUserRepo
	store    *repository.MemoryTokenRepo
	audit    *repository.MemoryAuditLog
	mailer   *recordingMailer
	policy   lockout.Policy
}

func newEnv(t *testing.T) *env {
	t.Helper()

	users := repository.NewMemoryUserRepo()
	store := repository.NewMemoryTokenRepo()
	audit := repository.NewMemoryAuditLog()
	mailer := &recordingMailer{}
	logger := zap.NewNop()
	policy := lockout.Policy{Threshold: 5, LockDuration: 2 * time.Hour}

	tokens := NewTokenService(TokenConfig{
		Issuer:        "warden-test",
		AccessSecret:  "access-secret",
		RefreshSecret: "refresh-secret",
		AccessTTL:     15 * time.Minute,
		RefreshTTL:    time.Hour,
	}, users, store, logger)

	mfa := NewMFAUsecase(users, audit, "warden-test", 8, logger)

	auth := NewAuthUsecase(AuthConfig{
		BcryptCost:  bcrypt.MinCost,
		MFATokenTTL: 5 * time.Minute,
		Issuer:      "warden-test",
		MFASecret:   "access-secret",
	}, users, tokens, mfa, audit, allowAllLimiter{}, policy, logger)

	password := NewPasswordUsecase(users, tokens, audit, mailer, allowAllLimiter{},
		policy, bcrypt.MinCost, time.Hour, logger)

	return &env{
		auth:     auth,
		password: password,
		mfa:      mfa,
		tokens:   tokens,
		users:    users,
		store:    store,
		audit:    audit,
		mailer:   mailer,
		policy:   policy,
	}
}

func (e *env) register(t *testing.T, email, password string) *domain.User {
	t.Helper()
	user, _, err := e.auth.Register(context.Background(), email, password, "Alice", "Example", Meta{})
	require.NoError(t, err)
	return user
}
