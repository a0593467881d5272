package middleware

import (
	"github.com/labstack/echo/v4"
)

// CORS header values sent on every response.
const (
	AllowOrigin  = "*"
	AllowMethods = "GET, POST, OPTIONS"
	AllowHeaders = "Content-Type"
)

// CORSHeaders returns an Echo middleware that sets permissive CORS headers
// before the handler runs, so they are present whatever the handler writes,
// error pages included. Echo's own CORS middleware only answers requests that
// carry an Origin header.
func CORSHeaders() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			h := c.Response().Header()
			h.Set(echo.HeaderAccessControlAllowOrigin, AllowOrigin)
			h.Set(echo.HeaderAccessControlAllowMethods, AllowMethods)
			h.Set(echo.HeaderAccessControlAllowHeaders, AllowHeaders)
			return next(c)
		}
	}
}
