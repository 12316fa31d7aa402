package middleware

import "github.com/labstack/echo/v4"

// Context keys set by JWTAuth.
const (
	ContextUserID = "user_id"
	ContextRole   = "role"
)

// AuthenticatedUserID returns the subject stored by JWTAuth, or "" when
// the request was not authenticated.
func AuthenticatedUserID(c echo.Context) string {
	if s, ok := c.Get(ContextUserID).(string); ok {
		return s
	}
	return ""
}

// currentUserID is the rate limit identity: the JWT subject or "anon".
func currentUserID(c echo.Context) string {
	if s := AuthenticatedUserID(c); s != "" {
		return s
	}
	return "anon"
}
