// Package middleware provides Echo middleware for logging, metrics and
// cross-origin headers.
package middleware

import (
	"github.com/labstack/echo/v4"
)

// CrossOrigin returns an Echo middleware that stamps
// Access-Control-Allow-Origin: * on every response. The header is added from a
// Before hook so it lands on responses written by any handler, by
// http.FileServer and by Echo's error handler alike.
func CrossOrigin() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			res := c.Response()
			res.Before(func() {
				res.Header().Set(echo.HeaderAccessControlAllowOrigin, "*")
			})

			return next(c)
		}
	}
}
