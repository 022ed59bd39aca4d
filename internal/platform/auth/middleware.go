package auth

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

// Error details returned by the bearer middleware.
const (
	DetailUnauthorized    = "UNAUTHORIZED"
	DetailUserNotVerified = "USER_NOT_VERIFIED"
)

// JWTMiddleware authenticates the bearer token and attaches the resolved
// Principal to the request context. Every request it sees must carry a
// token; public routes are registered outside the groups that mount it.
func JWTMiddleware(issuer *TokenIssuer, resolver PrincipalResolver) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			authHeader := c.Request().Header.Get("Authorization")
			if authHeader == "" {
				return unauthorized()
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") || strings.TrimSpace(parts[1]) == "" {
				return unauthorized()
			}

			claims, err := issuer.Parse(strings.TrimSpace(parts[1]))
			if err != nil {
				return unauthorized()
			}

			ctx := c.Request().Context()
			principal, err := resolver.ResolvePrincipal(ctx, claims.Subject)
			if err != nil || principal == nil {
				return unauthorized()
			}

			c.SetRequest(c.Request().WithContext(WithPrincipal(ctx, principal)))
			return next(c)
		}
	}
}

// RequireVerified rejects callers that are inactive (401) or have not
// confirmed their email address (403).
func RequireVerified() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			p := PrincipalFromContext(c.Request().Context())
			if p == nil || !p.IsActive {
				return unauthorized()
			}
			if !p.IsVerified {
				return echo.NewHTTPError(http.StatusForbidden, DetailUserNotVerified)
			}
			return next(c)
		}
	}
}

func unauthorized() *echo.HTTPError {
	return echo.NewHTTPError(http.StatusUnauthorized, DetailUnauthorized)
}
