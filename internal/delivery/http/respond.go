package http

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/outpost-labs/warden/internal/usecase"
)

// metaFrom collects the request attributes carried into the audit trail.
func metaFrom(c echo.Context) usecase.Meta {
	return usecase.Meta{
		IPAddress:     c.RealIP(),
		UserAgent:     c.Request().UserAgent(),
		CorrelationID: c.Response().Header().Get(echo.HeaderXRequestID),
	}
}

// writeError maps usecase errors to HTTP status codes with a uniform body.
func writeError(c echo.Context, err error) error {
	status := http.StatusInternalServerError
	message := "internal server error"

	switch {
	case errors.Is(err, usecase.ErrValidation),
		errors.Is(err, usecase.ErrResetTokenInvalid),
		errors.Is(err, usecase.ErrPasswordReuse):
		status, message = http.StatusBadRequest, err.Error()
	case errors.Is(err, usecase.ErrInvalidCredentials),
		errors.Is(err, usecase.ErrInvalidMFACode),
		errors.Is(err, usecase.ErrTokenExpired),
		errors.Is(err, usecase.ErrTokenInvalid),
		errors.Is(err, usecase.ErrTokenRevokedOrUnknown):
		status, message = http.StatusUnauthorized, err.Error()
	case errors.Is(err, usecase.ErrAccountDisabled):
		status, message = http.StatusForbidden, err.Error()
	case errors.Is(err, usecase.ErrDuplicateEmail),
		errors.Is(err, usecase.ErrMFAAlreadyEnabled),
		errors.Is(err, usecase.ErrMFANotEnabled),
		errors.Is(err, usecase.ErrMFANotPending):
		status, message = http.StatusConflict, err.Error()
	case errors.Is(err, usecase.ErrAccountLocked):
		status, message = http.StatusLocked, err.Error()
	case errors.Is(err, usecase.ErrRateLimited):
		status, message = http.StatusTooManyRequests, err.Error()
	}

	return c.JSON(status, echo.Map{"error": message})
}
