package http

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/outpost-labs/warden/internal/domain"
	"github.com/outpost-labs/warden/internal/usecase"
)

// AuthHandler represents the HTTP delivery layer for authentication.
type AuthHandler struct {
	usecase *usecase.AuthUsecase
}

// NewAuthHandler registers the authentication routes. Public routes go on the
// unauthenticated group, session listing on the authenticated one.
func NewAuthHandler(public, authed *echo.Group, u *usecase.AuthUsecase) {
	handler := &AuthHandler{usecase: u}

	public.POST("/register", handler.Register)
	public.POST("/login", handler.Login)
	public.POST("/mfa/verify", handler.VerifyMFA)
	public.POST("/refresh", handler.Refresh)
	public.POST("/logout", handler.Logout)

	authed.GET("/sessions", handler.Sessions)
}

type registerRequest struct {
	Email     string `json:"email" validate:"required,email"`
	Password  string `json:"password" validate:"required,min=8"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
	MFACode  string `json:"mfa_code"`
}

type mfaVerifyRequest struct {
	MFAToken string `json:"mfa_token" validate:"required"`
	Code     string `json:"code" validate:"required"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

// userSummary is the public projection of an account.
type userSummary struct {
	ID         string   `json:"id"`
	Email      string   `json:"email"`
	FirstName  string   `json:"first_name,omitempty"`
	LastName   string   `json:"last_name,omitempty"`
	Roles      []string `json:"roles"`
	MFAEnabled bool     `json:"mfa_enabled"`
}

func summarize(u *domain.User) userSummary {
	return userSummary{
		ID:         u.ID,
		Email:      u.Email,
		FirstName:  u.FirstName,
		LastName:   u.LastName,
		Roles:      u.Roles,
		MFAEnabled: u.MFAEnabled,
	}
}

// Register creates an account and signs the caller in.
func (h *AuthHandler) Register(c echo.Context) error {
	var req registerRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}

	user, tokens, err := h.usecase.Register(c.Request().Context(),
		req.Email, req.Password, req.FirstName, req.LastName, metaFrom(c))
	if err != nil {
		return writeError(c, err)
	}

	return c.JSON(http.StatusCreated, echo.Map{
		"user":   summarize(user),
		"tokens": tokens,
	})
}

// Login handles the initial authentication request. Accounts with MFA enabled
// receive a short-lived challenge token instead of a session.
func (h *AuthHandler) Login(c echo.Context) error {
	var req loginRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}

	result, err := h.usecase.Login(c.Request().Context(),
		req.Email, req.Password, req.MFACode, metaFrom(c))
	if err != nil {
		return writeError(c, err)
	}

	if result.RequireMFA {
		return c.JSON(http.StatusOK, echo.Map{
			"mfa_required": true,
			"mfa_token":    result.MFAToken,
		})
	}
	return c.JSON(http.StatusOK, result.Tokens)
}

// VerifyMFA completes a login that was gated behind a challenge token.
func (h *AuthHandler) VerifyMFA(c echo.Context) error {
	var req mfaVerifyRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}

	result, err := h.usecase.CompleteMFALogin(c.Request().Context(),
		req.MFAToken, req.Code, metaFrom(c))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, result.Tokens)
}

// Refresh rotates a refresh token and returns a fresh pair.
func (h *AuthHandler) Refresh(c echo.Context) error {
	var req refreshRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}

	tokens, err := h.usecase.Refresh(c.Request().Context(), req.RefreshToken, metaFrom(c))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, tokens)
}

// Logout revokes the presented refresh token. Always succeeds.
func (h *AuthHandler) Logout(c echo.Context) error {
	var req refreshRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}

	h.usecase.Logout(c.Request().Context(), req.RefreshToken, metaFrom(c))
	return c.JSON(http.StatusOK, echo.Map{"message": "logged out"})
}

// Sessions lists the caller's active sessions.
func (h *AuthHandler) Sessions(c echo.Context) error {
	id, ok := CurrentIdentity(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
	}

	sessions, err := h.usecase.Sessions(c.Request().Context(), id.UserID)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"sessions": sessions})
}
