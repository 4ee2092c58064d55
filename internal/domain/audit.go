package domain

import "time"

// Audit action names, one per security-relevant operation.
const (
	AuditRegister          = "user.register"
	AuditLogin             = "user.login"
	AuditLoginFailed       = "user.login_failed"
	AuditLoginLocked       = "user.login_locked"
	AuditLogout            = "user.logout"
	AuditTokenRefresh      = "token.refresh"
	AuditSessionRevokedAll = "session.revoked_all"
	AuditPasswordChange    = "user.password_change"
	AuditPasswordResetReq  = "user.password_reset_request"
	AuditPasswordReset     = "user.password_reset"
	AuditMFASetup          = "mfa.setup"
	AuditMFAEnabled        = "mfa.enabled"
	AuditMFAVerified       = "mfa.verified"
	AuditMFAFailed         = "mfa.failed"
	AuditMFADisabled       = "mfa.disabled"
	AuditMFABackupCodesGen = "mfa.backup_codes_generated"
	AuditMFABackupCodeUsed = "mfa.backup_code_used"
)

// AuditEntry is an append-only fact. Entries are write-once and purged only
// by the retention sweep.
type AuditEntry struct {
	ID            string
	UserID        string // empty when the actor is unknown
	Action        string
	Success       bool
	ErrorMessage  string
	IPAddress     string
	UserAgent     string
	CorrelationID string
	CreatedAt     time.Time
}
