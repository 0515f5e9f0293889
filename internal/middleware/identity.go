package middleware

import "github.com/labstack/echo/v4"

// Username returns the authenticated username, or "" for anonymous requests.
func Username(c echo.Context) string {
	s, _ := c.Get(KeyUsername).(string)
	return s
}

// Role returns the authenticated role, or "".
func Role(c echo.Context) string {
	s, _ := c.Get(KeyRole).(string)
	return s
}

// userID keys per-user rate limits; anonymous callers share "anon".
func userID(c echo.Context) string {
	if s, ok := c.Get(KeyUserID).(string); ok && s != "" {
		return s
	}
	return "anon"
}
