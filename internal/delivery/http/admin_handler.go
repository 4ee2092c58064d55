package http

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/outpost-labs/warden/internal/usecase"
)

// AdminHandler exposes session administration for operators.
type AdminHandler struct {
	usecase *usecase.AuthUsecase
}

// NewAdminHandler registers the admin routes. The group is expected to carry
// the JWT and admin-role middlewares.
func NewAdminHandler(admin *echo.Group, u *usecase.AuthUsecase) {
	handler := &AdminHandler{usecase: u}

	admin.GET("/users/:id/sessions", handler.UserSessions)
	admin.POST("/users/:id/logout", handler.ForceLogout)
}

// UserSessions lists the active sessions of any account.
func (h *AdminHandler) UserSessions(c echo.Context) error {
	sessions, err := h.usecase.Sessions(c.Request().Context(), c.Param("id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"sessions": sessions})
}

// ForceLogout revokes every refresh token the account holds.
func (h *AdminHandler) ForceLogout(c echo.Context) error {
	if err := h.usecase.ForceLogout(c.Request().Context(), c.Param("id"), metaFrom(c)); err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "all sessions revoked"})
}
