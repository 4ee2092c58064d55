package domain

import (
	"strings"
	"time"
)

// Roles form a closed set. There is no hierarchy: holding RoleAdmin does not
// implicitly satisfy a check for another role.
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// ValidRole reports whether the given role belongs to the closed role set.
func ValidRole(role string) bool {
	return role == RoleUser || role == RoleAdmin
}

// User represents the central identity entity of the system.
type User struct {
	ID           string   `json:"id"`
	Email        string   `json:"email"`
	FirstName    string   `json:"first_name"`
	LastName     string   `json:"last_name"`
	PasswordHash string   `json:"-"` // Never expose the password hash in JSON
	Roles        []string `json:"roles"`
	IsActive     bool     `json:"is_active"`

	// Lockout state.
	LoginAttempts int        `json:"-"`
	LockUntil     *time.Time `json:"-"`

	// MFA state. A non-empty MFASecret with MFAEnabled=false means setup is
	// pending and must never gate a login.
	MFAEnabled  bool     `json:"mfa_enabled"`
	MFASecret   string   `json:"-"`
	BackupCodes []string `json:"-"` // sha256 digests, single-use

	// Password reset state. Token and Expires are set and cleared together.
	PasswordResetToken   string     `json:"-"` // sha256 digest of the raw token
	PasswordResetExpires *time.Time `json:"-"`
	PasswordChangedAt    time.Time  `json:"-"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NormalizeEmail lowercases and trims an email for case-insensitive lookup.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// HasRole reports whether the user holds the exact role. Case-sensitive.
func (u *User) HasRole(role string) bool {
	for _, r := range u.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// MFAPending reports whether MFA setup was started but never confirmed.
func (u *User) MFAPending() bool {
	return !u.MFAEnabled && u.MFASecret != ""
}

// AuthResponse defines the payload returned after a successful login.
type AuthResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
}
