package domain

import "time"

// RevocationReason records why a refresh token record was revoked.
type RevocationReason string

const (
	RevokedLogout   RevocationReason = "logout"
	RevokedSecurity RevocationReason = "security"
	RevokedExpired  RevocationReason = "expired"
	RevokedAdmin    RevocationReason = "admin"
	RevokedRotated  RevocationReason = "rotated"
)

// RefreshToken is the server-side session grant backing a signed refresh JWT.
// TokenID is the opaque identifier embedded in the JWT, never the JWT itself,
// so revocation needs no blacklist of full tokens.
type RefreshToken struct {
	TokenID       string
	UserID        string
	SessionID     string
	ExpiresAt     time.Time
	IsRevoked     bool
	RevokedReason RevocationReason
	RevokedAt     *time.Time
	IPAddress     string
	UserAgent     string
	CreatedAt     time.Time
}

// Session summarizes a live refresh token for admin listing.
type Session struct {
	TokenID   string    `json:"token_id"`
	SessionID string    `json:"session_id"`
	IPAddress string    `json:"ip_address"`
	UserAgent string    `json:"user_agent"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}
