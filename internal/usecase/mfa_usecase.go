package usecase

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/outpost-labs/warden/internal/domain"
	"github.com/outpost-labs/warden/pkg/security"
)

// MFAUsecase drives the per-user MFA state machine:
// disabled → setup_pending → enabled → disabled.
type MFAUsecase struct {
	users          domain.UserRepository
	audit          domain.AuditLog
	issuer         string
	backupCodeSize int
	logger         *zap.Logger
}

// NewMFAUsecase wires the MFA service. issuer labels provisioning URIs.
func NewMFAUsecase(users domain.UserRepository, audit domain.AuditLog, issuer string, backupCodeSize int, logger *zap.Logger) *MFAUsecase {
	return &MFAUsecase{
		users:          users,
		audit:          audit,
		issuer:         issuer,
		backupCodeSize: backupCodeSize,
		logger:         logger,
	}
}

// BeginSetup generates a pending secret and a provisioning URI. The secret
// is not authoritative until ConfirmSetup: mfaEnabled stays false and a
// pending secret never gates a login.
func (u *MFAUsecase) BeginSetup(ctx context.Context, userID string, meta Meta) (secret, uri string, err error) {
	user, err := u.users.GetByID(ctx, userID)
	if err != nil {
		return "", "", err
	}
	if user.MFAEnabled {
		return "", "", ErrMFAAlreadyEnabled
	}

	secret, err = security.GenerateMFASecret()
	if err != nil {
		return "", "", err
	}
	if err := u.users.SetMFAPending(ctx, userID, secret); err != nil {
		return "", "", err
	}

	recordAudit(ctx, u.audit, u.logger, userID, domain.AuditMFASetup, true, "", meta)
	return secret, security.ProvisioningURI(u.issuer, user.Email, secret), nil
}

// ConfirmSetup verifies the first code against the pending secret and, on
// success, enables MFA and returns the freshly generated backup codes (the
// only time they exist in the clear). On failure the state stays pending
// and the caller may retry.
func (u *MFAUsecase) ConfirmSetup(ctx context.Context, userID, code string, meta Meta) ([]string, error) {
	user, err := u.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user.MFAEnabled {
		return nil, ErrMFAAlreadyEnabled
	}
	if user.MFASecret == "" {
		return nil, ErrMFANotPending
	}

	if !security.VerifyTOTP(code, user.MFASecret, time.Now()) {
		recordAudit(ctx, u.audit, u.logger, userID, domain.AuditMFAFailed, false, "setup code rejected", meta)
		return nil, ErrInvalidMFACode
	}

	codes, err := security.GenerateBackupCodes(u.backupCodeSize)
	if err != nil {
		return nil, err
	}
	digests := make([]string, len(codes))
	for i, c := range codes {
		digests[i] = security.DigestToken(c)
	}

	if err := u.users.EnableMFA(ctx, userID, user.MFASecret, digests); err != nil {
		return nil, err
	}

	recordAudit(ctx, u.audit, u.logger, userID, domain.AuditMFAEnabled, true, "", meta)
	return codes, nil
}

// VerifyLogin checks a login-time code while MFA is enabled: TOTP first,
// then a case-insensitive match against the unused backup codes. A matching
// backup code is consumed; it can never succeed twice.
func (u *MFAUsecase) VerifyLogin(ctx context.Context, user *domain.User, code string, meta Meta) error {
	if !user.MFAEnabled {
		return ErrMFANotEnabled
	}

	if security.VerifyTOTP(code, user.MFASecret, time.Now()) {
		recordAudit(ctx, u.audit, u.logger, user.ID, domain.AuditMFAVerified, true, "", meta)
		return nil
	}

	digest := security.DigestToken(security.NormalizeBackupCode(code))
	consumed, err := u.users.ConsumeBackupCode(ctx, user.ID, digest)
	if err != nil {
		return err
	}
	if consumed {
		recordAudit(ctx, u.audit, u.logger, user.ID, domain.AuditMFABackupCodeUsed, true, "", meta)
		return nil
	}

	recordAudit(ctx, u.audit, u.logger, user.ID, domain.AuditMFAFailed, false, "code rejected", meta)
	return ErrInvalidMFACode
}

// Disable requires re-proof of both the password and a current code before
// clearing the secret, the flag and all backup codes.
func (u *MFAUsecase) Disable(ctx context.Context, userID, password, code string, meta Meta) error {
	user, err := u.users.GetByID(ctx, userID)
	if err != nil {
		return err
	}
	if !user.MFAEnabled {
		return ErrMFANotEnabled
	}

	if !security.VerifyPassword(password, user.PasswordHash) {
		recordAudit(ctx, u.audit, u.logger, userID, domain.AuditMFADisabled, false, "password re-proof failed", meta)
		return ErrInvalidCredentials
	}
	if !security.VerifyTOTP(code, user.MFASecret, time.Now()) {
		recordAudit(ctx, u.audit, u.logger, userID, domain.AuditMFADisabled, false, "code re-proof failed", meta)
		return ErrInvalidMFACode
	}

	if err := u.users.DisableMFA(ctx, userID); err != nil {
		return err
	}
	recordAudit(ctx, u.audit, u.logger, userID, domain.AuditMFADisabled, true, "", meta)
	return nil
}

// RegenerateBackupCodes replaces the entire backup-code set. Requires MFA
// to be enabled.
func (u *MFAUsecase) RegenerateBackupCodes(ctx context.Context, userID string, meta Meta) ([]string, error) {
	user, err := u.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !user.MFAEnabled {
		return nil, ErrMFANotEnabled
	}

	codes, err := security.GenerateBackupCodes(u.backupCodeSize)
	if err != nil {
		return nil, err
	}
	digests := make([]string, len(codes))
	for i, c := range codes {
		digests[i] = security.DigestToken(c)
	}

	if err := u.users.ReplaceBackupCodes(ctx, userID, digests); err != nil {
		return nil, err
	}

	recordAudit(ctx, u.audit, u.logger, userID, domain.AuditMFABackupCodesGen, true, "", meta)
	return codes, nil
}
