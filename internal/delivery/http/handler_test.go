package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/outpost-labs/warden/internal/authz"
	"github.com/outpost-labs/warden/internal/domain"
	"github.com/outpost-labs/warden/internal/lockout"
	"github.com/outpost-labs/warden/internal/repository"
	"github.com/outpost-labs/warden/internal/usecase"
	"github.com/outpost-labs/warden/pkg/security"
)

type allowAllLimiter struct{}

func (allowAllLimiter) Allow(ctx context.Context, key string) (bool, error) { return true, nil }

type nopMailer struct{}

func (nopMailer) SendPasswordReset(ctx context.Context, email, rawToken string) error { return nil }

type server struct {
	echo   *echo.Echo
	users  *repository.MemoryUserRepo
	tokens *usecase.TokenService
}

func newServer(t *testing.T) *server {
	t.Helper()

	users := repository.NewMemoryUserRepo()
	store := repository.NewMemoryTokenRepo()
	audit := repository.NewMemoryAuditLog()
	logger := zap.NewNop()
	policy := lockout.Policy{Threshold: 5, LockDuration: 2 * time.Hour}

	tokens := usecase.NewTokenService(usecase.TokenConfig{
		Issuer:        "warden-test",
		AccessSecret:  "access-secret",
		RefreshSecret: "refresh-secret",
		AccessTTL:     15 * time.Minute,
		RefreshTTL:    time.Hour,
	}, users, store, logger)

	mfa := usecase.NewMFAUsecase(users, audit, "warden-test", 8, logger)

	auth := usecase.NewAuthUsecase(usecase.AuthConfig{
		BcryptCost:  bcrypt.MinCost,
		MFATokenTTL: 5 * time.Minute,
		Issuer:      "warden-test",
		MFASecret:   "access-secret",
	}, users, tokens, mfa, audit, allowAllLimiter{}, policy, logger)

	password := usecase.NewPasswordUsecase(users, tokens, audit, nopMailer{}, allowAllLimiter{},
		policy, bcrypt.MinCost, time.Hour, logger)

	e := echo.New()
	public := e.Group("/v1/auth")
	authed := e.Group("/v1/auth", JWTMiddleware(tokens))
	admin := e.Group("/v1/admin", JWTMiddleware(tokens), RequireRole(domain.RoleAdmin, logger))

	NewAuthHandler(public, authed, auth)
	NewMFAHandler(authed, mfa)
	NewPasswordHandler(public, authed, password)
	NewAdminHandler(admin, auth)

	return &server{echo: e, users: users, tokens: tokens}
}

func (s *server) do(t *testing.T, method, path, bearer string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if bearer != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+bearer)
	}
	rec := httptest.NewRecorder()
	s.echo.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func (s *server) register(t *testing.T, email, password string) (access, refresh string) {
	t.Helper()
	rec := s.do(t, http.MethodPost, "/v1/auth/register", "", echo.Map{
		"email": email, "password": password, "first_name": "Alice", "last_name": "Example",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	body := decode(t, rec)
	tokens := body["tokens"].(map[string]any)
	return tokens["access_token"].(string), tokens["refresh_token"].(string)
}

func (s *server) createAdmin(t *testing.T, email, password string) {
	t.Helper()
	hash, err := security.HashPassword(password, bcrypt.MinCost)
	require.NoError(t, err)
	require.NoError(t, s.users.Create(context.Background(), &domain.User{
		ID:           "admin-1",
		Email:        email,
		PasswordHash: hash,
		Roles:        []string{domain.RoleUser, domain.RoleAdmin},
		IsActive:     true,
	}))
}

func TestRegisterEndpoint(t *testing.T) {
	s := newServer(t)

	rec := s.do(t, http.MethodPost, "/v1/auth/register", "", echo.Map{
		"email": "alice@example.com", "password": "str0ng-passw0rd",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	body := decode(t, rec)
	user := body["user"].(map[string]any)
	assert.Equal(t, "alice@example.com", user["email"])
	assert.NotContains(t, user, "password_hash")

	rec = s.do(t, http.MethodPost, "/v1/auth/register", "", echo.Map{
		"email": "Alice@Example.com", "password": "str0ng-passw0rd",
	})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = s.do(t, http.MethodPost, "/v1/auth/register", "", echo.Map{
		"email": "bob@example.com", "password": "short",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLoginEndpoint(t *testing.T) {
	s := newServer(t)
	s.register(t, "alice@example.com", "str0ng-passw0rd")

	rec := s.do(t, http.MethodPost, "/v1/auth/login", "", echo.Map{
		"email": "alice@example.com", "password": "str0ng-passw0rd",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.NotEmpty(t, body["access_token"])
	assert.NotEmpty(t, body["refresh_token"])

	rec = s.do(t, http.MethodPost, "/v1/auth/login", "", echo.Map{
		"email": "alice@example.com", "password": "wrong-password",
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// Unknown address answers exactly like a wrong password.
	rec = s.do(t, http.MethodPost, "/v1/auth/login", "", echo.Map{
		"email": "ghost@example.com", "password": "whatever-here",
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestLoginEndpoint_Lockout(t *testing.T) {
	s := newServer(t)
	s.register(t, "alice@example.com", "str0ng-passw0rd")

	for i := 0; i < 5; i++ {
		rec := s.do(t, http.MethodPost, "/v1/auth/login", "", echo.Map{
			"email": "alice@example.com", "password": "wrong-password",
		})
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	}

	rec := s.do(t, http.MethodPost, "/v1/auth/login", "", echo.Map{
		"email": "alice@example.com", "password": "str0ng-passw0rd",
	})
	assert.Equal(t, http.StatusLocked, rec.Code)
}

func TestRefreshAndLogoutEndpoints(t *testing.T) {
	s := newServer(t)
	_, refresh := s.register(t, "alice@example.com", "str0ng-passw0rd")

	rec := s.do(t, http.MethodPost, "/v1/auth/refresh", "", echo.Map{"refresh_token": refresh})
	require.Equal(t, http.StatusOK, rec.Code)
	rotated := decode(t, rec)["refresh_token"].(string)

	// The spent token is gone.
	rec = s.do(t, http.MethodPost, "/v1/auth/refresh", "", echo.Map{"refresh_token": refresh})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = s.do(t, http.MethodPost, "/v1/auth/logout", "", echo.Map{"refresh_token": rotated})
	assert.Equal(t, http.StatusOK, rec.Code)

	// Logout never errors, even on a dead token.
	rec = s.do(t, http.MethodPost, "/v1/auth/logout", "", echo.Map{"refresh_token": rotated})
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, http.MethodPost, "/v1/auth/refresh", "", echo.Map{"refresh_token": rotated})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestMFAEndpoints_FullLifecycle(t *testing.T) {
	s := newServer(t)
	access, _ := s.register(t, "alice@example.com", "str0ng-passw0rd")

	rec := s.do(t, http.MethodPost, "/v1/auth/mfa/setup", access, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	secret := decode(t, rec)["secret"].(string)
	require.NotEmpty(t, secret)

	code, err := totp.GenerateCode(secret, time.Now())
	require.NoError(t, err)

	rec = s.do(t, http.MethodPost, "/v1/auth/mfa/enable", access, echo.Map{"code": code})
	require.Equal(t, http.StatusOK, rec.Code)
	codes := decode(t, rec)["backup_codes"].([]any)
	assert.Len(t, codes, 8)

	// Login now yields a challenge instead of tokens.
	rec = s.do(t, http.MethodPost, "/v1/auth/login", "", echo.Map{
		"email": "alice@example.com", "password": "str0ng-passw0rd",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	require.Equal(t, true, body["mfa_required"])
	challenge := body["mfa_token"].(string)

	code, err = totp.GenerateCode(secret, time.Now())
	require.NoError(t, err)
	rec = s.do(t, http.MethodPost, "/v1/auth/mfa/verify", "", echo.Map{
		"mfa_token": challenge, "code": code,
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, decode(t, rec)["access_token"])

	rec = s.do(t, http.MethodPost, "/v1/auth/mfa/verify", "", echo.Map{
		"mfa_token": challenge, "code": "000000",
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestMFAEndpoints_RequireAuth(t *testing.T) {
	s := newServer(t)

	for _, path := range []string{"/v1/auth/mfa/setup", "/v1/auth/mfa/enable", "/v1/auth/mfa/disable", "/v1/auth/mfa/backup-codes"} {
		rec := s.do(t, http.MethodPost, path, "", nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, path)
	}

	rec := s.do(t, http.MethodPost, "/v1/auth/mfa/setup", "garbage-token", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestPasswordEndpoints(t *testing.T) {
	s := newServer(t)
	access, _ := s.register(t, "alice@example.com", "str0ng-passw0rd")

	// Forgot answers identically for known and unknown addresses.
	for _, email := range []string{"alice@example.com", "ghost@example.com"} {
		rec := s.do(t, http.MethodPost, "/v1/auth/password/forgot", "", echo.Map{"email": email})
		assert.Equal(t, http.StatusAccepted, rec.Code, email)
	}

	rec := s.do(t, http.MethodGet, "/v1/auth/password/reset/"+fmt.Sprintf("%064x", 0), "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodPost, "/v1/auth/password/reset", "", echo.Map{
		"token": "bogus", "new_password": "an0ther-passw0rd",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodPost, "/v1/auth/password/change", "", echo.Map{
		"current_password": "str0ng-passw0rd", "new_password": "an0ther-passw0rd",
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = s.do(t, http.MethodPost, "/v1/auth/password/change", access, echo.Map{
		"current_password": "wrong-password", "new_password": "an0ther-passw0rd",
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = s.do(t, http.MethodPost, "/v1/auth/password/change", access, echo.Map{
		"current_password": "str0ng-passw0rd", "new_password": "an0ther-passw0rd",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, http.MethodPost, "/v1/auth/login", "", echo.Map{
		"email": "alice@example.com", "password": "an0ther-passw0rd",
	})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestSessionsEndpoint(t *testing.T) {
	s := newServer(t)
	access, _ := s.register(t, "alice@example.com", "str0ng-passw0rd")

	rec := s.do(t, http.MethodGet, "/v1/auth/sessions", access, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	sessions := decode(t, rec)["sessions"].([]any)
	assert.Len(t, sessions, 1)

	rec = s.do(t, http.MethodGet, "/v1/auth/sessions", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRequireRole_DenyBranches(t *testing.T) {
	guarded := func(c echo.Context) error { return c.NoContent(http.StatusOK) }
	withIdentity := func(id authz.Identity) echo.MiddlewareFunc {
		return func(next echo.HandlerFunc) echo.HandlerFunc {
			return func(c echo.Context) error {
				c.Set(identityContextKey, id)
				return next(c)
			}
		}
	}

	t.Run("missing identity answers unauthorized", func(t *testing.T) {
		e := echo.New()
		e.GET("/guarded", guarded, RequireRole(domain.RoleAdmin, zap.NewNop()))

		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/guarded", nil))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("wrong role answers forbidden", func(t *testing.T) {
		e := echo.New()
		e.GET("/guarded", guarded,
			withIdentity(authz.Identity{UserID: "u1", Roles: []string{domain.RoleUser}}),
			RequireRole(domain.RoleAdmin, zap.NewNop()))

		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/guarded", nil))
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("matching role passes", func(t *testing.T) {
		e := echo.New()
		e.GET("/guarded", guarded,
			withIdentity(authz.Identity{UserID: "u1", Roles: []string{domain.RoleAdmin}}),
			RequireRole(domain.RoleAdmin, zap.NewNop()))

		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/guarded", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
	})
}

func TestAdminEndpoints(t *testing.T) {
	s := newServer(t)
	userAccess, userRefresh := s.register(t, "alice@example.com", "str0ng-passw0rd")
	s.createAdmin(t, "root@example.com", "adm1n-passw0rd")

	rec := s.do(t, http.MethodPost, "/v1/auth/login", "", echo.Map{
		"email": "root@example.com", "password": "adm1n-passw0rd",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	adminAccess := decode(t, rec)["access_token"].(string)

	// Plain users never reach the admin surface.
	rec = s.do(t, http.MethodGet, "/v1/admin/users/admin-1/sessions", userAccess, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	claims, err := s.tokens.VerifyAccess(userAccess)
	require.NoError(t, err)

	rec = s.do(t, http.MethodGet, "/v1/admin/users/"+claims.UserID+"/sessions", adminAccess, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode(t, rec)["sessions"].([]any), 1)

	rec = s.do(t, http.MethodPost, "/v1/admin/users/"+claims.UserID+"/logout", adminAccess, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, http.MethodPost, "/v1/auth/refresh", "", echo.Map{"refresh_token": userRefresh})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
