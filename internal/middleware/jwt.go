package middleware // middleware provides shared request processing for handlers

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/arohealth/hospital-auth/internal/utils"
)

// Context keys populated by JWTAuth for downstream handlers.
const (
	CtxUserID = "user_id"
	CtxRole   = "role"
	CtxMobile = "mobile"
)

// JWTAuth returns an Echo middleware that validates a Bearer access token
// and injects the token's identity claims into the request context. This is
// the single authentication guard; combined with RequireRole it forms the
// per-endpoint authorization check for every protected route.
func JWTAuth(secret string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			auth := c.Request().Header.Get("Authorization")
			if !strings.HasPrefix(auth, "Bearer ") {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "missing bearer token", "code": "UNAUTHORIZED"})
			}
			raw := strings.TrimPrefix(auth, "Bearer ")

			p, err := utils.VerifyAccessToken(secret, raw)
			if err != nil {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid token", "code": "UNAUTHORIZED"})
			}

			c.Set(CtxUserID, p.UserID)
			c.Set(CtxRole, p.UserType)
			c.Set(CtxMobile, p.Mobile)
			return next(c)
		}
	}
}

// UserID extracts the authenticated user id placed by JWTAuth. Returns 0
// when the request is unauthenticated.
func UserID(c echo.Context) uint64 {
	if v, ok := c.Get(CtxUserID).(uint64); ok {
		return v
	}
	return 0
}

// Role extracts the authenticated role placed by JWTAuth.
func Role(c echo.Context) string {
	if v, ok := c.Get(CtxRole).(string); ok {
		return v
	}
	return ""
}
