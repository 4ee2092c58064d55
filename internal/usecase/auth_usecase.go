package usecase

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/outpost-labs/warden/internal/domain"
	"github.com/outpost-labs/warden/internal/lockout"
	"github.com/outpost-labs/warden/pkg/security"
)

// AuthConfig holds the auth flow tunables.
type AuthConfig struct {
	BcryptCost  int
	MFATokenTTL time.Duration
	Issuer      string
	// MFASecret signs the short-lived login challenge token.
	MFASecret string
}

// AuthUsecase orchestrates registration, login and session lifecycle.
// An inbound credential submission flows rate limiter → lockout policy →
// password check → MFA gate → token issuance → audit.
type AuthUsecase struct {
	cfg     AuthConfig
	users   domain.UserRepository
	tokens  *TokenService
	mfa     *MFAUsecase
	audit   domain.AuditLog
	limiter domain.RateLimiter
	policy  lockout.Policy
	logger  *zap.Logger
}

// NewAuthUsecase wires the auth flow.
func NewAuthUsecase(cfg AuthConfig, users domain.UserRepository, tokens *TokenService,
	mfa *MFAUsecase, audit domain.AuditLog, limiter domain.RateLimiter,
	policy lockout.Policy, logger *zap.Logger) *AuthUsecase {
	return &AuthUsecase{
		cfg:     cfg,
		users:   users,
		tokens:  tokens,
		mfa:     mfa,
		audit:   audit,
		limiter: limiter,
		policy:  policy,
		logger:  logger,
	}
}

// LoginResult carries either a completed token pair or a pending MFA
// challenge, never both.
type LoginResult struct {
	Tokens     *domain.AuthResponse
	RequireMFA bool
	MFAToken   string
}

// Register creates a user and issues the first token pair.
func (u *AuthUsecase) Register(ctx context.Context, email, password, firstName, lastName string, meta Meta) (*domain.User, *domain.AuthResponse, error) {
	email = domain.NormalizeEmail(email)
	if !strings.Contains(email, "@") || len(password) < 8 {
		return nil, nil, ErrValidation
	}

	hash, err := security.HashPassword(password, u.cfg.BcryptCost)
	if err != nil {
		return nil, nil, err
	}

	user := &domain.User{
		ID:           uuid.NewString(),
		Email:        email,
		FirstName:    firstName,
		LastName:     lastName,
		PasswordHash: hash,
		Roles:        []string{domain.RoleUser},
		IsActive:     true,
	}

	if err := u.users.Create(ctx, user); err != nil {
		if errors.Is(err, domain.ErrDuplicate) {
			return nil, nil, ErrDuplicateEmail
		}
		return nil, nil, err
	}

	tokens, err := u.tokens.IssuePair(ctx, user, "", meta)
	if err != nil {
		return nil, nil, err
	}

	recordAudit(ctx, u.audit, u.logger, user.ID, domain.AuditRegister, true, "", meta)
	return user, tokens, nil
}

// Login validates credentials and, when MFA is enabled, gates issuance
// behind a code. A missing code yields a RequireMFA result carrying a
// short-lived challenge token bound to the pre-MFA identity; the client
// never supplies a user id.
func (u *AuthUsecase) Login(ctx context.Context, email, password, mfaCode string, meta Meta) (*LoginResult, error) {
	allowed, err := u.limiter.Allow(ctx, "login:"+meta.IPAddress+":"+domain.NormalizeEmail(email))
	if err != nil {
		u.logger.Warn("rate limiter degraded", zap.Error(err))
	}
	if !allowed {
		return nil, ErrRateLimited
	}

	user, err := u.users.GetByEmail(ctx, email)
	if err != nil {
		// Unknown user and wrong password answer identically.
		u.logger.Info("login failed: unknown email", zap.String("ip", meta.IPAddress))
		recordAudit(ctx, u.audit, u.logger, "", domain.AuditLoginFailed, false, "unknown email", meta)
		return nil, ErrInvalidCredentials
	}

	now := time.Now()
	if u.policy.IsLocked(user, now) {
		recordAudit(ctx, u.audit, u.logger, user.ID, domain.AuditLoginLocked, false, "account locked", meta)
		return nil, ErrAccountLocked
	}
	if !user.IsActive {
		recordAudit(ctx, u.audit, u.logger, user.ID, domain.AuditLoginFailed, false, "account disabled", meta)
		return nil, ErrAccountDisabled
	}

	if !security.VerifyPassword(password, user.PasswordHash) {
		u.recordFailure(ctx, user, "wrong password", meta)
		return nil, ErrInvalidCredentials
	}

	if user.MFAEnabled {
		if mfaCode == "" {
			challenge, err := security.SignMFAToken(user.ID, u.cfg.Issuer, u.cfg.MFASecret, u.cfg.MFATokenTTL)
			if err != nil {
				return nil, err
			}
			return &LoginResult{RequireMFA: true, MFAToken: challenge}, nil
		}
		if err := u.mfa.VerifyLogin(ctx, user, mfaCode, meta); err != nil {
			u.recordFailure(ctx, user, "mfa code rejected", meta)
			return nil, ErrInvalidMFACode
		}
	}

	return u.completeLogin(ctx, user, meta)
}

// CompleteMFALogin finishes a login whose password step already passed.
// The challenge token carries the identity; the code is checked against
// the TOTP secret or an unused backup code.
func (u *AuthUsecase) CompleteMFALogin(ctx context.Context, challengeToken, code string, meta Meta) (*LoginResult, error) {
	claims, err := security.VerifyMFAToken(challengeToken, u.cfg.Issuer, u.cfg.MFASecret)
	if err != nil {
		return nil, ErrInvalidCredentials
	}

	user, err := u.users.GetByID(ctx, claims.UserID)
	if err != nil {
		return nil, ErrInvalidCredentials
	}
	if u.policy.IsLocked(user, time.Now()) {
		recordAudit(ctx, u.audit, u.logger, user.ID, domain.AuditLoginLocked, false, "account locked", meta)
		return nil, ErrAccountLocked
	}
	if !user.IsActive {
		recordAudit(ctx, u.audit, u.logger, user.ID, domain.AuditLoginFailed, false, "account disabled", meta)
		return nil, ErrAccountDisabled
	}

	if err := u.mfa.VerifyLogin(ctx, user, code, meta); err != nil {
		u.recordFailure(ctx, user, "mfa code rejected", meta)
		return nil, ErrInvalidMFACode
	}

	return u.completeLogin(ctx, user, meta)
}

// Refresh exchanges a refresh token for a new pair.
func (u *AuthUsecase) Refresh(ctx context.Context, refreshJWT string, meta Meta) (*domain.AuthResponse, error) {
	tokens, err := u.tokens.Rotate(ctx, refreshJWT, meta)
	if err != nil {
		return nil, err
	}
	recordAudit(ctx, u.audit, u.logger, "", domain.AuditTokenRefresh, true, "", meta)
	return tokens, nil
}

// Logout revokes the refresh token best-effort. It never fails: a logout
// with a stale token is still a logout.
func (u *AuthUsecase) Logout(ctx context.Context, refreshJWT string, meta Meta) {
	if refreshJWT != "" {
		u.tokens.RevokeByJWT(ctx, refreshJWT, domain.RevokedLogout)
	}
	recordAudit(ctx, u.audit, u.logger, "", domain.AuditLogout, true, "", meta)
}

// ForceLogout revokes every live session of a user. Admin action.
func (u *AuthUsecase) ForceLogout(ctx context.Context, userID string, meta Meta) error {
	if err := u.tokens.RevokeAllForUser(ctx, userID, domain.RevokedAdmin); err != nil {
		return err
	}
	recordAudit(ctx, u.audit, u.logger, userID, domain.AuditSessionRevokedAll, true, "", meta)
	return nil
}

// Sessions lists a user's live sessions. Admin action.
func (u *AuthUsecase) Sessions(ctx context.Context, userID string) ([]domain.Session, error) {
	return u.tokens.ActiveSessions(ctx, userID)
}

func (u *AuthUsecase) completeLogin(ctx context.Context, user *domain.User, meta Meta) (*LoginResult, error) {
	if err := u.users.RecordLoginSuccess(ctx, user.ID); err != nil {
		return nil, err
	}

	tokens, err := u.tokens.IssuePair(ctx, user, "", meta)
	if err != nil {
		return nil, err
	}

	recordAudit(ctx, u.audit, u.logger, user.ID, domain.AuditLogin, true, "", meta)
	return &LoginResult{Tokens: tokens}, nil
}

func (u *AuthUsecase) recordFailure(ctx context.Context, user *domain.User, reason string, meta Meta) {
	attempts, lockUntil, err := u.users.RecordLoginFailure(ctx, user.ID, u.policy.Threshold, u.policy.LockDuration)
	if err != nil {
		u.logger.Error("failed to record login failure", zap.String("user_id", user.ID), zap.Error(err))
	}

	u.logger.Info("login failed",
		zap.String("user_id", user.ID),
		zap.String("ip", meta.IPAddress),
		zap.String("reason", reason),
		zap.Int("attempts", attempts),
		zap.Bool("locked", lockUntil != nil),
	)
	recordAudit(ctx, u.audit, u.logger, user.ID, domain.AuditLoginFailed, false, reason, meta)
}
