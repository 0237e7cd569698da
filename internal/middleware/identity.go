package middleware

import "github.com/labstack/echo/v4"

// ContextUserID is the echo context key JWTAuth stores the caller's id under.
const ContextUserID = "user_id"

// UserID returns the authenticated caller's id, or "" when the request did
// not pass through JWTAuth.
func UserID(c echo.Context) string {
	if v, ok := c.Get(ContextUserID).(string); ok {
		return v
	}
	return ""
}

// userKey is UserID for building cache and rate limit keys.
func userKey(c echo.Context) string {
	if id := UserID(c); id != "" {
		return id
	}
	return "guest"
}
