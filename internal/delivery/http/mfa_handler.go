package http

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/outpost-labs/warden/internal/usecase"
)

// MFAHandler handles MFA enrollment and management. Every route requires an
// authenticated caller.
type MFAHandler struct {
	usecase *usecase.MFAUsecase
}

// NewMFAHandler registers the MFA management routes.
func NewMFAHandler(authed *echo.Group, u *usecase.MFAUsecase) {
	handler := &MFAHandler{usecase: u}

	authed.POST("/mfa/setup", handler.Setup)
	authed.POST("/mfa/enable", handler.Enable)
	authed.POST("/mfa/disable", handler.Disable)
	authed.POST("/mfa/backup-codes", handler.RegenerateBackupCodes)
}

type mfaEnableRequest struct {
	Code string `json:"code" validate:"required,len=6"`
}

type mfaDisableRequest struct {
	Password string `json:"password" validate:"required"`
	Code     string `json:"code" validate:"required"`
}

// Setup generates a pending TOTP secret and returns the provisioning URI for
// the authenticator app.
func (h *MFAHandler) Setup(c echo.Context) error {
	id, ok := CurrentIdentity(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
	}

	secret, uri, err := h.usecase.BeginSetup(c.Request().Context(), id.UserID, metaFrom(c))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"secret":      secret,
		"otpauth_url": uri,
	})
}

// Enable verifies the first code against the pending secret and turns MFA on.
// The backup codes appear in this response and nowhere else.
func (h *MFAHandler) Enable(c echo.Context) error {
	id, ok := CurrentIdentity(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
	}

	var req mfaEnableRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}

	codes, err := h.usecase.ConfirmSetup(c.Request().Context(), id.UserID, req.Code, metaFrom(c))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"backup_codes": codes})
}

// Disable turns MFA off after re-proving both password and a valid code.
func (h *MFAHandler) Disable(c echo.Context) error {
	id, ok := CurrentIdentity(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
	}

	var req mfaDisableRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}

	if err := h.usecase.Disable(c.Request().Context(), id.UserID, req.Password, req.Code, metaFrom(c)); err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "mfa disabled"})
}

// RegenerateBackupCodes replaces the remaining backup codes with a fresh set.
func (h *MFAHandler) RegenerateBackupCodes(c echo.Context) error {
	id, ok := CurrentIdentity(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
	}

	codes, err := h.usecase.RegenerateBackupCodes(c.Request().Context(), id.UserID, metaFrom(c))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"backup_codes": codes})
}
