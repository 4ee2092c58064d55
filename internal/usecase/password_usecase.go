package usecase

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/outpost-labs/warden/internal/domain"
	"github.com/outpost-labs/warden/internal/lockout"
	"github.com/outpost-labs/warden/pkg/security"
)

// PasswordUsecase drives the reset token lifecycle (none → pending →
// consumed) and the authenticated change-password path.
type PasswordUsecase struct {
	users      domain.UserRepository
	tokens     *TokenService
	audit      domain.AuditLog
	mailer     domain.EmailSender
	limiter    domain.RateLimiter
	policy     lockout.Policy
	bcryptCost int
	resetTTL   time.Duration
	logger     *zap.Logger
}

// NewPasswordUsecase wires the password flows.
func NewPasswordUsecase(users domain.UserRepository, tokens *TokenService,
	audit domain.AuditLog, mailer domain.EmailSender, limiter domain.RateLimiter,
	policy lockout.Policy, bcryptCost int, resetTTL time.Duration, logger *zap.Logger) *PasswordUsecase {
	return &PasswordUsecase{
		users:      users,
		tokens:     tokens,
		audit:      audit,
		mailer:     mailer,
		limiter:    limiter,
		policy:     policy,
		bcryptCost: bcryptCost,
		resetTTL:   resetTTL,
		logger:     logger,
	}
}

// RequestReset starts a reset for the email. The response is identical
// whether or not the account exists or is locked: no existence oracle, no
// state mutation and no email for the negative cases. The email send is
// fire-and-forget; the token is already persisted, so delivery failure
// must not fail the request.
func (u *PasswordUsecase) RequestReset(ctx context.Context, email string, meta Meta) error {
	allowed, err := u.limiter.Allow(ctx, "reset:"+meta.IPAddress)
	if err != nil {
		u.logger.Warn("rate limiter degraded", zap.Error(err))
	}
	if !allowed {
		return ErrRateLimited
	}

	user, err := u.users.GetByEmail(ctx, email)
	if err != nil || u.policy.IsLocked(user, time.Now()) || !user.IsActive {
		u.logger.Info("reset requested for ineligible account", zap.String("ip", meta.IPAddress))
		return nil
	}

	raw, err := security.RandomToken(32)
	if err != nil {
		return err
	}
	if err := u.users.SetResetToken(ctx, user.ID, security.DigestToken(raw), time.Now().Add(u.resetTTL)); err != nil {
		return err
	}

	go func() {
		sendCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := u.mailer.SendPasswordReset(sendCtx, user.Email, raw); err != nil {
			u.logger.Warn("reset email send failed", zap.String("user_id", user.ID), zap.Error(err))
		}
	}()

	recordAudit(ctx, u.audit, u.logger, user.ID, domain.AuditPasswordResetReq, true, "", meta)
	return nil
}

// ConsumeReset redeems a reset token. Matching, password replacement,
// token clearing and lockout reset happen as one conditional update, so a
// consumed token can never be replayed even under concurrency. All
// outstanding sessions are revoked: a reset terminates them.
func (u *PasswordUsecase) ConsumeReset(ctx context.Context, rawToken, newPassword string, meta Meta) error {
	if len(newPassword) < 8 {
		return ErrValidation
	}

	hash, err := security.HashPassword(newPassword, u.bcryptCost)
	if err != nil {
		return err
	}

	userID, err := u.users.ConsumeResetToken(ctx, security.DigestToken(rawToken), hash, time.Now())
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			recordAudit(ctx, u.audit, u.logger, "", domain.AuditPasswordReset, false, "invalid or expired token", meta)
			return ErrResetTokenInvalid
		}
		return err
	}

	if err := u.tokens.RevokeAllForUser(ctx, userID, domain.RevokedSecurity); err != nil {
		u.logger.Error("failed to revoke sessions after reset", zap.String("user_id", userID), zap.Error(err))
	}

	recordAudit(ctx, u.audit, u.logger, userID, domain.AuditPasswordReset, true, "", meta)
	return nil
}

// ValidateResetToken checks a token without consuming it.
func (u *PasswordUsecase) ValidateResetToken(ctx context.Context, rawToken string) error {
	_, err := u.users.FindByResetToken(ctx, security.DigestToken(rawToken), time.Now())
	if err != nil {
		return ErrResetTokenInvalid
	}
	return nil
}

// ChangePassword is the authenticated variant. It re-proves the current
// password and rejects a no-op change. Unlike the forced reset path it
// leaves other sessions alive.
func (u *PasswordUsecase) ChangePassword(ctx context.Context, userID, currentPassword, newPassword string, meta Meta) error {
	if len(newPassword) < 8 {
		return ErrValidation
	}

	user, err := u.users.GetByID(ctx, userID)
	if err != nil {
		return err
	}

	if !security.VerifyPassword(currentPassword, user.PasswordHash) {
		recordAudit(ctx, u.audit, u.logger, userID, domain.AuditPasswordChange, false, "current password rejected", meta)
		return ErrInvalidCredentials
	}
	if newPassword == currentPassword || security.VerifyPassword(newPassword, user.PasswordHash) {
		return ErrPasswordReuse
	}

	hash, err := security.HashPassword(newPassword, u.bcryptCost)
	if err != nil {
		return err
	}
	if err := u.users.UpdatePassword(ctx, userID, hash, time.Now()); err != nil {
		return err
	}

	recordAudit(ctx, u.audit, u.logger, userID, domain.AuditPasswordChange, true, "", meta)
	return nil
}
