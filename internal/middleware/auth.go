package middleware // declare the middleware package; contains reusable HTTP middleware functions

import (
	"net/http" // HTTP status codes for responses
	"strings"  // string utilities for prefix checking and trimming

	"github.com/labstack/echo/v4" // Echo framework used for defining middleware and handlers

	"github.com/luli-tech/task-manager/internal/service" // token validation
)

// AccessValidator validates a bearer access token into an identity.
// *service.TokenService implements it.
type AccessValidator interface {
	ValidateAccess(token string) (service.Identity, error)
}

// Authenticate returns an Echo middleware that validates a Bearer
// access token and injects the authenticated identity into the
// request context under the keys "user_id" (uint64) and "role"
// (string). Validation is purely signature-and-expiry through the
// token service: this middleware never consults the credential store,
// keeping the hot path of every request stateless.
//
// On any failure the request is short-circuited with 401 before any
// handler logic runs. The response body never distinguishes a missing
// header from a bad signature from an expired token.
func Authenticate(v AccessValidator) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			auth := c.Request().Header.Get("Authorization")
			if !strings.HasPrefix(auth, "Bearer ") {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid credential"})
			}
			raw := strings.TrimPrefix(auth, "Bearer ")

			id, err := v.ValidateAccess(raw)
			if err != nil {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid credential"})
			}

			// Handlers and downstream middleware read these via c.Get().
			c.Set("user_id", id.UserID)
			c.Set("role", id.Role)
			return next(c)
		}
	}
}
