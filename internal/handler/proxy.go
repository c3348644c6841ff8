package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"regexp"
	"strings"

	"github.com/labstack/echo/v4"

	"iptv-hls-proxy/internal/config"
	"iptv-hls-proxy/internal/metrics"
	"iptv-hls-proxy/internal/model"
	"iptv-hls-proxy/internal/playlist"
	"iptv-hls-proxy/internal/relay"
	"iptv-hls-proxy/internal/service"
)

// credentialPattern matches the /live/{user}/{pass}/ segment of upstream URLs
// embedded in error messages.
var credentialPattern = regexp.MustCompile(`(/live/)[^/\s"]+/[^/\s"]+/`)

const (
	msgNotFound      = "Not found"
	msgBadResource   = "Bad resource request"
	msgInternalError = "Internal proxy error"
)

// ProxyHandler serves the resource and playlist endpoints.
type ProxyHandler struct {
	service   *service.ProxyService
	logger    *slog.Logger
	metrics   *metrics.Metrics
	chunkSize int
}

// NewProxyHandler creates a ProxyHandler. The metrics parameter is optional.
func NewProxyHandler(svc *service.ProxyService, cfg *config.Config, logger *slog.Logger, m *metrics.Metrics) *ProxyHandler {
	return &ProxyHandler{
		service:   svc,
		logger:    logger.With("component", "proxy_handler"),
		metrics:   m,
		chunkSize: cfg.Upstream.ChunkSizeBytes,
	}
}

// Handle classifies the request and dispatches it to exactly one outcome:
// preflight, resource relay, playlist rewrite, bad request or not found.
func (h *ProxyHandler) Handle(c echo.Context) error {
	req := c.Request()

	pr := &model.ProxyRequestContext{
		PublicOrigin: publicOrigin(req),
		Method:       req.Method,
		Path:         req.URL.Path,
		Query:        req.URL.Query(),
	}

	shape := service.Classify(pr.Method, pr.Path, pr.Query)
	c.Set(model.ShapeContextKey, shape)

	switch shape {
	case model.ShapePreflight:
		return c.NoContent(http.StatusNoContent)
	case model.ShapeResourceAbsolute, model.ShapeResourceChannelRelative:
		return h.serveResource(c, pr)
	case model.ShapePlaylistByChannel:
		return h.servePlaylist(c, pr)
	case model.ShapeBadResource:
		return h.mapError(c, service.ErrBadResource)
	default:
		return plainText(c, http.StatusNotFound, msgNotFound)
	}
}

// serveResource relays an upstream segment or absolute URL to the client.
func (h *ProxyHandler) serveResource(c echo.Context, pr *model.ProxyRequestContext) error {
	ctx := c.Request().Context()

	target, err := h.service.ResolveResource(pr)
	if err != nil {
		return h.mapError(c, err)
	}

	resp, err := h.service.Fetch(ctx, target)
	if err != nil {
		return h.mapError(c, err)
	}
	defer func() { _ = resp.Body.Close() }()

	sink := &responseSink{res: c.Response(), status: resp.StatusCode, contentType: resp.ContentType}
	n, started, err := relay.Copy(ctx, sink, resp.Body, h.chunkSize)
	if h.metrics != nil {
		h.metrics.RelayedBytes.Add(float64(n))
	}
	if err == nil {
		return nil
	}
	if !started {
		return h.mapError(c, err)
	}

	// The status line is already on the wire; the client sees a truncated body.
	level := slog.LevelError
	if errors.Is(err, context.Canceled) || errors.Is(err, relay.ErrWrite) {
		level = slog.LevelInfo
	}
	h.logger.Log(ctx, level, "streaming response body",
		"err", sanitizeError(err),
		"kind", target.Kind.String(),
		"bytes", n,
	)
	return nil
}

// servePlaylist fetches the channel manifest and returns it rewritten.
func (h *ProxyHandler) servePlaylist(c echo.Context, pr *model.ProxyRequestContext) error {
	target, err := h.service.ResolvePlaylist(pr)
	if err != nil {
		return h.mapError(c, err)
	}

	pl, err := h.service.Playlist(c.Request().Context(), target, pr.Query.Get("channel"), pr.PublicOrigin)
	if err != nil {
		return h.mapError(c, err)
	}

	res := c.Response()
	res.Header().Set(echo.HeaderContentType, playlist.ContentType)
	res.WriteHeader(pl.StatusCode)
	_, err = res.Write([]byte(pl.Body))
	return err
}

// mapError writes the client-facing response for err. Upstream statuses are
// mirrored; every transport failure is a 500 regardless of cause.
func (h *ProxyHandler) mapError(c echo.Context, err error) error {
	path := c.Request().URL.Path

	if errors.Is(err, service.ErrBadResource) {
		h.logger.Warn("bad resource request", "err", sanitizeError(err), "path", path)
		return plainText(c, http.StatusBadRequest, msgBadResource)
	}

	var upErr *service.UpstreamError
	if errors.As(err, &upErr) {
		h.logger.Warn("upstream error", "status", upErr.StatusCode, "path", path)
		return plainText(c, upErr.StatusCode, upErr.Message())
	}

	if errors.Is(err, context.Canceled) {
		h.logger.Info("client disconnected", "err", sanitizeError(err), "path", path)
	} else {
		h.logger.Error("proxy error", "err", sanitizeError(err), "path", path)
	}
	return plainText(c, http.StatusInternalServerError, msgInternalError)
}

// plainText writes msg as a text/plain body with the given status.
func plainText(c echo.Context, code int, msg string) error {
	res := c.Response()
	res.Header().Set(echo.HeaderContentType, "text/plain")
	res.WriteHeader(code)
	_, err := res.Write([]byte(msg))
	return err
}

// publicOrigin returns scheme://host of the proxy as seen by the client.
// The scheme comes from X-Forwarded-Proto (first hop) and defaults to https.
func publicOrigin(req *http.Request) string {
	proto := "https"
	if fp := req.Header.Get(echo.HeaderXForwardedProto); fp != "" {
		if first, _, _ := strings.Cut(fp, ","); strings.TrimSpace(first) != "" {
			proto = strings.TrimSpace(first)
		}
	}
	return proto + "://" + req.Host
}

// sanitizeError redacts upstream credentials from error messages that may contain upstream URLs.
func sanitizeError(err error) string {
	return credentialPattern.ReplaceAllString(err.Error(), "${1}[REDACTED]/[REDACTED]/")
}

// responseSink adapts an echo.Response to relay.Sink. The status line and
// upstream Content-Type are written on Start. Without an upstream Content-Type
// the header is suppressed rather than sniffed by net/http.
type responseSink struct {
	res         *echo.Response
	status      int
	contentType string
}

func (s *responseSink) Start() {
	if s.contentType != "" {
		s.res.Header().Set(echo.HeaderContentType, s.contentType)
	} else {
		s.res.Header()[echo.HeaderContentType] = nil
	}
	s.res.WriteHeader(s.status)
}

func (s *responseSink) Write(p []byte) (int, error) {
	return s.res.Write(p)
}

func (s *responseSink) Flush() {
	_ = http.NewResponseController(s.res.Writer).Flush()
}
