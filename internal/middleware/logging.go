// Package middleware provides Echo middleware for logging, metrics, CORS and
// response hardening.
package middleware

import (
	"log/slog"
	"time"

	"github.com/labstack/echo/v4"

	"iptv-hls-proxy/internal/model"
)

// RequestLogger returns an Echo middleware that logs each request with slog.
// Query strings are not logged: resource URLs may carry upstream tokens.
func RequestLogger(logger *slog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()

			err := next(c)

			req := c.Request()
			res := c.Response()

			shape := "-"
			if s, ok := c.Get(model.ShapeContextKey).(model.Shape); ok {
				shape = s.String()
			}

			logger.Info("request",
				"method", req.Method,
				"path", req.URL.Path,
				"shape", shape,
				"status", res.Status,
				"duration_ms", time.Since(start).Milliseconds(),
				"request_id", res.Header().Get(echo.HeaderXRequestID),
				"remote_ip", c.RealIP(),
				"bytes_out", res.Size,
			)

			return err
		}
	}
}
