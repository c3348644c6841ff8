package middleware

import (
	"net/textproto"
	"strings"

	"github.com/labstack/echo/v4"
)

// hopByHopHeaders are connection-scoped and never describe the end-to-end request.
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

// hardeningHeaders are attached to every response.
var hardeningHeaders = [][2]string{
	{echo.HeaderXContentTypeOptions, "nosniff"},
	{echo.HeaderXFrameOptions, "DENY"},
	{echo.HeaderReferrerPolicy, "no-referrer"},
}

// SecurityHeaders returns an Echo middleware that adds hardening headers to
// the response and strips hop-by-hop headers, including any listed in
// Connection, from the incoming request.
// Response headers are set before the handler runs because relayed bodies
// commit the response while streaming.
func SecurityHeaders() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			stripHopByHop(c.Request().Header)

			h := c.Response().Header()
			for _, kv := range hardeningHeaders {
				h.Set(kv[0], kv[1])
			}

			return next(c)
		}
	}
}

func stripHopByHop(h map[string][]string) {
	for _, v := range h["Connection"] {
		for name := range strings.SplitSeq(v, ",") {
			if name = strings.TrimSpace(name); name != "" {
				delete(h, textproto.CanonicalMIMEHeaderKey(name))
			}
		}
	}
	for _, name := range hopByHopHeaders {
		delete(h, name)
	}
}
