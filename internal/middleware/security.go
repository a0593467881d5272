package middleware

import (
	"github.com/labstack/echo/v4"
)

// hopByHopHeaders are request headers meaningful only for a single connection.
var hopByHopHeaders = []string{
	"Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"TE",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

// SecurityHeaders returns an Echo middleware that strips hop-by-hop headers
// from the request and marks responses nosniff.
func SecurityHeaders() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			for _, h := range hopByHopHeaders {
				c.Request().Header.Del(h)
			}

			// Set before next: file and image handlers commit headers themselves.
			c.Response().Header().Set(echo.HeaderXContentTypeOptions, "nosniff")

			return next(c)
		}
	}
}
