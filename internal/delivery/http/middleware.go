package http

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/outpost-labs/warden/internal/authz"
	"github.com/outpost-labs/warden/internal/domain"
	"github.com/outpost-labs/warden/internal/usecase"
)

const identityContextKey = "identity"

// JWTMiddleware intercepts the request to validate the access token in the
// Authorization header and injects the caller identity into the echo context.
func JWTMiddleware(tokens *usecase.TokenService) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			authHeader := c.Request().Header.Get(echo.HeaderAuthorization)
			if authHeader == "" {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "missing authorization header"})
			}

			// Expected format: "Bearer <token>"
			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid authorization format"})
			}

			claims, err := tokens.VerifyAccess(parts[1])
			if err != nil {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid or expired token"})
			}

			c.Set(identityContextKey, authz.Identity{
				UserID: claims.UserID,
				Email:  claims.Email,
				Roles:  claims.Roles,
			})
			return next(c)
		}
	}
}

// CurrentIdentity returns the identity injected by JWTMiddleware.
func CurrentIdentity(c echo.Context) (authz.Identity, bool) {
	id, ok := c.Get(identityContextKey).(authz.Identity)
	return id, ok
}

// RequireRole ensures only callers holding the given role can reach the route.
func RequireRole(role string, logger *zap.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			id, ok := CurrentIdentity(c)
			var principal *authz.Identity
			if ok {
				principal = &id
			}
			if err := authz.Authorize(principal, []string{role}); err != nil {
				switch err {
				case authz.ErrNoIdentity:
					return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
				default:
					logger.Warn("role check failed",
						zap.String("user_id", id.UserID),
						zap.String("required_role", role),
						zap.Error(err))
					return c.JSON(http.StatusForbidden, echo.Map{"error": "insufficient permissions"})
				}
			}
			return next(c)
		}
	}
}

// RateLimitMiddleware throttles requests per client IP under the given key
// prefix. Limiter failures let the request through.
func RateLimitMiddleware(limiter domain.RateLimiter, prefix string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			allowed, err := limiter.Allow(c.Request().Context(), prefix+":"+c.RealIP())
			if err == nil && !allowed {
				return c.JSON(http.StatusTooManyRequests, echo.Map{"error": "too many requests"})
			}
			return next(c)
		}
	}
}
