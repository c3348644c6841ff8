package middleware

import (
	"github.com/labstack/echo/v4"
)

// corsHeaders is the fixed policy attached to every response.
var corsHeaders = [][2]string{
	{echo.HeaderAccessControlAllowOrigin, "*"},
	{echo.HeaderAccessControlAllowMethods, "GET, HEAD, OPTIONS"},
	{echo.HeaderAccessControlAllowHeaders, "*"},
}

// CORS returns an Echo middleware that sets the static CORS policy before the
// handler runs, so the headers are present on streamed bodies and on responses
// produced by Echo's error handler or by later middleware (rate limit, body limit).
// Preflight requests are answered by the proxy handler.
func CORS() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			h := c.Response().Header()
			for _, kv := range corsHeaders {
				h.Set(kv[0], kv[1])
			}
			return next(c)
		}
	}
}
