package usecase

import "errors"

// Caller-facing error taxonomy. Credential and token failures are
// deliberately generic: "user not found" vs "wrong password" and "token
// not found" vs "revoked" are never distinguishable from the outside.
// Internal logs keep the distinction.
var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrAccountLocked      = errors.New("account temporarily locked")
	ErrAccountDisabled    = errors.New("account disabled")
	ErrRateLimited        = errors.New("too many attempts, slow down")

	ErrInvalidMFACode    = errors.New("invalid mfa code")
	ErrMFAAlreadyEnabled = errors.New("mfa already enabled")
	ErrMFANotEnabled     = errors.New("mfa not enabled")
	ErrMFANotPending     = errors.New("mfa setup not started")

	ErrTokenExpired          = errors.New("token expired")
	ErrTokenInvalid          = errors.New("invalid token")
	ErrTokenRevokedOrUnknown = errors.New("invalid or expired refresh token")

	ErrDuplicateEmail = errors.New("email already in use")
	ErrValidation     = errors.New("validation failed")

	ErrResetTokenInvalid = errors.New("invalid or expired reset token")
	ErrPasswordReuse     = errors.New("new password must differ from the current password")
)
