package middleware

import (
	"fmt"

	"github.com/labstack/echo/v4"
)

// Context keys written by JWTAuth.
const (
	ctxUserID = "user_id"
	ctxRole   = "role"
)

// RoleAdmin is the role claim required on administrative routes.
const RoleAdmin = "ADMIN"

// UserID returns the authenticated subject, or "" for anonymous requests.
// Numeric subjects are rendered without a fractional part.
func UserID(c echo.Context) string {
	switch v := c.Get(ctxUserID).(type) {
	case string:
		return v
	case float64:
		return fmt.Sprintf("%.0f", v)
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

// Role returns the role claim of the authenticated user, or "".
func Role(c echo.Context) string {
	r, _ := c.Get(ctxRole).(string)
	return r
}
