package security

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Audiences distinguish the three token shapes this service signs.
const (
	AudienceAccess  = "access"
	AudienceRefresh = "refresh"
	AudienceMFA     = "mfa"
)

var (
	ErrTokenExpired = errors.New("token expired")
	ErrTokenInvalid = errors.New("token invalid")
)

// AccessClaims is the typed payload of an access token. Decoding fails
// closed: an unexpected shape is a typed error, never a bag of optional
// fields.
type AccessClaims struct {
	UserID    string   `json:"user_id"`
	Email     string   `json:"email"`
	Roles     []string `json:"roles"`
	SessionID string   `json:"session_id"`
	jwt.RegisteredClaims
}

// RefreshClaims is the typed payload of a refresh token. TokenID is the
// correlation key into the persisted refresh token record, never the JWT
// itself.
type RefreshClaims struct {
	UserID    string `json:"user_id"`
	SessionID string `json:"session_id"`
	TokenID   string `json:"token_id"`
	jwt.RegisteredClaims
}

// MFAClaims is the short-lived challenge issued between a successful
// password check and MFA completion. It carries only the pre-MFA identity.
type MFAClaims struct {
	UserID string `json:"user_id"`
	jwt.RegisteredClaims
}

func registered(issuer, audience string, now time.Time, ttl time.Duration) jwt.RegisteredClaims {
	return jwt.RegisteredClaims{
		Issuer:    issuer,
		Audience:  jwt.ClaimStrings{audience},
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
	}
}

// SignAccessToken creates a signed access token for the identity.
func SignAccessToken(userID, email string, roles []string, sessionID, issuer, secret string, ttl time.Duration) (string, error) {
	claims := AccessClaims{
		UserID:           userID,
		Email:            email,
		Roles:            roles,
		SessionID:        sessionID,
		RegisteredClaims: registered(issuer, AudienceAccess, time.Now(), ttl),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// SignRefreshToken creates a signed refresh token embedding the persisted
// record's identifier.
func SignRefreshToken(userID, sessionID, tokenID, issuer, secret string, ttl time.Duration) (string, error) {
	claims := RefreshClaims{
		UserID:           userID,
		SessionID:        sessionID,
		TokenID:          tokenID,
		RegisteredClaims: registered(issuer, AudienceRefresh, time.Now(), ttl),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// SignMFAToken creates the short-lived login MFA challenge token.
func SignMFAToken(userID, issuer, secret string, ttl time.Duration) (string, error) {
	claims := MFAClaims{
		UserID:           userID,
		RegisteredClaims: registered(issuer, AudienceMFA, time.Now(), ttl),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

func parse(tokenString, issuer, audience, secret string, claims jwt.Claims) error {
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(secret), nil
	}, jwt.WithIssuer(issuer), jwt.WithAudience(audience), jwt.WithExpirationRequired())

	switch {
	case err == nil && token.Valid:
		return nil
	case errors.Is(err, jwt.ErrTokenExpired):
		return ErrTokenExpired
	default:
		return ErrTokenInvalid
	}
}

// VerifyAccessToken parses and validates an access token. Stateless: no
// store lookup.
func VerifyAccessToken(tokenString, issuer, secret string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	if err := parse(tokenString, issuer, AudienceAccess, secret, claims); err != nil {
		return nil, err
	}
	return claims, nil
}

// VerifyRefreshToken parses and validates a refresh token's signature and
// expiry. The record lookup happens separately in the token service.
func VerifyRefreshToken(tokenString, issuer, secret string) (*RefreshClaims, error) {
	claims := &RefreshClaims{}
	if err := parse(tokenString, issuer, AudienceRefresh, secret, claims); err != nil {
		return nil, err
	}
	return claims, nil
}

// VerifyMFAToken parses and validates a login MFA challenge token.
func VerifyMFAToken(tokenString, issuer, secret string) (*MFAClaims, error) {
	claims := &MFAClaims{}
	if err := parse(tokenString, issuer, AudienceMFA, secret, claims); err != nil {
		return nil, err
	}
	return claims, nil
}
