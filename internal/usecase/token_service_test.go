package usecase

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/outpost-labs/warden/internal/domain"
	"github.com/outpost-labs/warden/internal/repository"
)

func TestIssuePair_RoundTrip(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	user := e.register(t, "alice@example.com", "str0ng-passw0rd")

	pair, err := e.tokens.IssuePair(ctx, user, "", Meta{IPAddress: "10.0.0.1", UserAgent: "cli"})
	require.NoError(t, err)
	assert.Equal(t, int64((15 * time.Minute).Seconds()), pair.ExpiresIn)

	claims, err := e.tokens.VerifyAccess(pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, user.ID, claims.UserID)
	assert.Equal(t, user.Email, claims.Email)
	assert.Equal(t, user.Roles, claims.Roles)
	assert.NotEmpty(t, claims.SessionID)
}

func TestVerifyAccess_Expired(t *testing.T) {
	users := repository.NewMemoryUserRepo()
	store := repository.NewMemoryTokenRepo()
	svc := NewTokenService(TokenConfig{
		Issuer:        "warden-test",
		AccessSecret:  "access-secret",
		RefreshSecret: "refresh-secret",
		AccessTTL:     -time.Minute, // already expired at issuance
		RefreshTTL:    time.Hour,
	}, users, store, zap.NewNop())

	user := &domain.User{ID: "u1", Email: "a@b.c", Roles: []string{domain.RoleUser}, IsActive: true}
	require.NoError(t, users.Create(context.Background(), user))

	pair, err := svc.IssuePair(context.Background(), user, "", Meta{})
	require.NoError(t, err)

	_, err = svc.VerifyAccess(pair.AccessToken)
	assert.ErrorIs(t, err, ErrTokenExpired)
}

func TestVerifyAccess_Garbage(t *testing.T) {
	e := newEnv(t)
	_, err := e.tokens.VerifyAccess("not-a-token")
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

func TestRotate_ConcurrentUseSingleWinner(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	user := e.register(t, "alice@example.com", "str0ng-passw0rd")

	pair, err := e.tokens.IssuePair(ctx, user, "", Meta{})
	require.NoError(t, err)

	const attempts = 8
	var wg sync.WaitGroup
	results := make([]error, attempts)

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, results[i] = e.tokens.Rotate(ctx, pair.RefreshToken, Meta{})
		}(i)
	}
	wg.Wait()

	var wins int
	for _, err := range results {
		if err == nil {
			wins++
		} else {
			assert.ErrorIs(t, err, ErrTokenRevokedOrUnknown)
		}
	}
	assert.Equal(t, 1, wins, "exactly one concurrent rotation may succeed")
}

func TestRotate_InactiveUserRejected(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	// Token minted while the account was active, account disabled afterwards.
	user := e.register(t, "d@example.com", "str0ng-passw0rd")
	pair, err := e.tokens.IssuePair(ctx, user, "", Meta{})
	require.NoError(t, err)

	require.NoError(t, e.users.SetActive(ctx, user.ID, false))

	_, err = e.tokens.Rotate(ctx, pair.RefreshToken, Meta{})
	assert.ErrorIs(t, err, ErrTokenRevokedOrUnknown)
}
