package usecase

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/outpost-labs/warden/internal/domain"
	"github.com/outpost-labs/warden/pkg/security"
)

// TokenConfig holds the injected signing material and lifetimes.
type TokenConfig struct {
	Issuer        string
	AccessSecret  string
	RefreshSecret string
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
}

// TokenService issues, verifies, rotates and revokes token pairs. Access
// token verification is stateless; refresh operations go through the
// persisted record keyed by the token id embedded in the JWT.
type TokenService struct {
	cfg    TokenConfig
	users  domain.UserRepository
	tokens domain.TokenRepository
	logger *zap.Logger
}

// NewTokenService wires the token service.
func NewTokenService(cfg TokenConfig, users domain.UserRepository, tokens domain.TokenRepository, logger *zap.Logger) *TokenService {
	return &TokenService{cfg: cfg, users: users, tokens: tokens, logger: logger}
}

// IssuePair generates an access/refresh pair for the user. An empty
// sessionID starts a new session; passing one preserves it across rotation.
func (s *TokenService) IssuePair(ctx context.Context, user *domain.User, sessionID string, meta Meta) (*domain.AuthResponse, error) {
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	tokenID := uuid.NewString()
	now := time.Now()

	accessToken, err := security.SignAccessToken(user.ID, user.Email, user.Roles, sessionID,
		s.cfg.Issuer, s.cfg.AccessSecret, s.cfg.AccessTTL)
	if err != nil {
		return nil, err
	}

	refreshJWT, err := security.SignRefreshToken(user.ID, sessionID, tokenID,
		s.cfg.Issuer, s.cfg.RefreshSecret, s.cfg.RefreshTTL)
	if err != nil {
		return nil, err
	}

	record := &domain.RefreshToken{
		TokenID:   tokenID,
		UserID:    user.ID,
		SessionID: sessionID,
		ExpiresAt: now.Add(s.cfg.RefreshTTL),
		IPAddress: meta.IPAddress,
		UserAgent: meta.UserAgent,
		CreatedAt: now,
	}
	if err := s.tokens.Store(ctx, record); err != nil {
		return nil, err
	}

	return &domain.AuthResponse{
		AccessToken:  accessToken,
		RefreshToken: refreshJWT,
		ExpiresIn:    int64(s.cfg.AccessTTL.Seconds()),
	}, nil
}

// VerifyAccess validates an access token and returns its typed claims.
// No store lookup.
func (s *TokenService) VerifyAccess(tokenString string) (*security.AccessClaims, error) {
	claims, err := security.VerifyAccessToken(tokenString, s.cfg.Issuer, s.cfg.AccessSecret)
	switch {
	case err == nil:
		return claims, nil
	case errors.Is(err, security.ErrTokenExpired):
		return nil, ErrTokenExpired
	default:
		return nil, ErrTokenInvalid
	}
}

// Rotate exchanges a refresh JWT for a new pair. The persisted record is
// claimed by a single conditional update, so of two concurrent rotations of
// the same token exactly one succeeds; the other (and every later retry)
// fails with the same collapsed error. The session id survives rotation.
func (s *TokenService) Rotate(ctx context.Context, refreshJWT string, meta Meta) (*domain.AuthResponse, error) {
	claims, err := security.VerifyRefreshToken(refreshJWT, s.cfg.Issuer, s.cfg.RefreshSecret)
	if err != nil {
		s.logger.Info("refresh rejected: bad jwt",
			zap.String("ip", meta.IPAddress), zap.Error(err))
		return nil, ErrTokenRevokedOrUnknown
	}

	record, err := s.tokens.Rotate(ctx, claims.TokenID, time.Now())
	if err != nil {
		// Not-found and revoked are logged distinctly but collapse in the
		// caller-facing error to avoid an oracle.
		s.logger.Info("refresh rejected: no live record",
			zap.String("token_id", claims.TokenID),
			zap.String("user_id", claims.UserID),
			zap.String("ip", meta.IPAddress))
		return nil, ErrTokenRevokedOrUnknown
	}

	user, err := s.users.GetByID(ctx, record.UserID)
	if err != nil {
		return nil, ErrTokenRevokedOrUnknown
	}
	if !user.IsActive {
		return nil, ErrTokenRevokedOrUnknown
	}

	return s.IssuePair(ctx, user, record.SessionID, meta)
}

// RevokeByJWT revokes the record behind a refresh JWT. Used by logout;
// best-effort, so an unknown or malformed token is not an error.
func (s *TokenService) RevokeByJWT(ctx context.Context, refreshJWT string, reason domain.RevocationReason) {
	claims, err := security.VerifyRefreshToken(refreshJWT, s.cfg.Issuer, s.cfg.RefreshSecret)
	if err != nil {
		return
	}
	if err := s.tokens.Revoke(ctx, claims.TokenID, reason); err != nil {
		s.logger.Warn("revoke failed", zap.String("token_id", claims.TokenID), zap.Error(err))
	}
}

// RevokeAllForUser terminates every live session of the user.
func (s *TokenService) RevokeAllForUser(ctx context.Context, userID string, reason domain.RevocationReason) error {
	return s.tokens.RevokeAllForUser(ctx, userID, reason)
}

// ActiveSessions lists the user's live sessions.
func (s *TokenService) ActiveSessions(ctx context.Context, userID string) ([]domain.Session, error) {
	return s.tokens.ActiveSessions(ctx, userID, time.Now())
}
