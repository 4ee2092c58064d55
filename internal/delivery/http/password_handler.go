package http

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/outpost-labs/warden/internal/usecase"
)

// PasswordHandler covers the reset lifecycle and in-session password changes.
type PasswordHandler struct {
	usecase *usecase.PasswordUsecase
}

// NewPasswordHandler registers the password routes. The reset lifecycle is
// public, changing the current password requires authentication.
func NewPasswordHandler(public, authed *echo.Group, u *usecase.PasswordUsecase) {
	handler := &PasswordHandler{usecase: u}

	public.POST("/password/forgot", handler.Forgot)
	public.POST("/password/reset", handler.Reset)
	public.GET("/password/reset/:token", handler.Validate)

	authed.POST("/password/change", handler.Change)
}

type forgotRequest struct {
	Email string `json:"email" validate:"required,email"`
}

type resetRequest struct {
	Token       string `json:"token" validate:"required"`
	NewPassword string `json:"new_password" validate:"required,min=8"`
}

type changeRequest struct {
	CurrentPassword string `json:"current_password" validate:"required"`
	NewPassword     string `json:"new_password" validate:"required,min=8"`
}

// Forgot starts the reset flow. The response never discloses whether the
// address has an account.
func (h *PasswordHandler) Forgot(c echo.Context) error {
	var req forgotRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}

	if err := h.usecase.RequestReset(c.Request().Context(), req.Email, metaFrom(c)); err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusAccepted, echo.Map{
		"message": "if the address is registered, a reset link has been sent",
	})
}

// Reset consumes a reset token and sets the new password.
func (h *PasswordHandler) Reset(c echo.Context) error {
	var req resetRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}

	if err := h.usecase.ConsumeReset(c.Request().Context(), req.Token, req.NewPassword, metaFrom(c)); err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "password updated"})
}

// Validate reports whether a reset token is still usable without spending it.
func (h *PasswordHandler) Validate(c echo.Context) error {
	if err := h.usecase.ValidateResetToken(c.Request().Context(), c.Param("token")); err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"valid": true})
}

// Change replaces the password of the authenticated caller.
func (h *PasswordHandler) Change(c echo.Context) error {
	id, ok := CurrentIdentity(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
	}

	var req changeRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}

	if err := h.usecase.ChangePassword(c.Request().Context(), id.UserID, req.CurrentPassword, req.NewPassword, metaFrom(c)); err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "password changed"})
}
