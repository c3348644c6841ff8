// Package service implements request classification, upstream resolution and
// the fetch/rewrite logic behind the proxy endpoints.
package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"iptv-hls-proxy/internal/config"
	"iptv-hls-proxy/internal/metrics"
	"iptv-hls-proxy/internal/model"
	"iptv-hls-proxy/internal/playlist"
)

// upstreamErrorBodyLimit caps how much of a non-2xx upstream body is relayed as text.
const upstreamErrorBodyLimit = 64 * 1024

// ErrPlaylistTooLarge is returned when a manifest exceeds upstream.playlist_max_bytes.
var ErrPlaylistTooLarge = errors.New("playlist exceeds size limit")

// UpstreamError reports a non-2xx upstream response. Body holds the upstream
// response text, possibly empty.
type UpstreamError struct {
	StatusCode int
	Body       string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream returned status %d", e.StatusCode)
}

// Message is the text sent to the client: the upstream body, or a short
// fallback when upstream sent none.
func (e *UpstreamError) Message() string {
	if e.Body != "" {
		return e.Body
	}
	return fmt.Sprintf("Upstream %d", e.StatusCode)
}

// Upstream fetches a URL from the IPTV origin.
type Upstream interface {
	Get(ctx context.Context, target, kind string) (*model.ProxyResponse, error)
}

// ProxyService resolves inbound requests to upstream targets and fetches them.
type ProxyService struct {
	upstream Upstream
	cfg      config.UpstreamConfig
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

// NewProxyService creates a ProxyService. The metrics parameter is optional.
func NewProxyService(up Upstream, cfg *config.Config, logger *slog.Logger, m *metrics.Metrics) *ProxyService {
	return &ProxyService{
		upstream: up,
		cfg:      cfg.Upstream,
		logger:   logger.With("component", "proxy_service"),
		metrics:  m,
	}
}

// ResolveResource resolves a /resource request against the configured upstream.
func (s *ProxyService) ResolveResource(pr *model.ProxyRequestContext) (model.ResolvedTarget, error) {
	return ResolveResource(pr.Query, s.cfg)
}

// ResolvePlaylist resolves a playlist request against the configured upstream.
func (s *ProxyService) ResolvePlaylist(pr *model.ProxyRequestContext) (model.ResolvedTarget, error) {
	t, err := Resolve(pr.Query, s.cfg)
	if err != nil {
		return model.ResolvedTarget{}, err
	}
	if t.Kind != model.TargetChannelPlaylist {
		return model.ResolvedTarget{}, ErrBadResource
	}
	return t, nil
}

// Fetch performs the single upstream GET for target. On a 2xx response the
// caller owns the returned body and must close it. A non-2xx response is
// returned as *UpstreamError with its body already drained and closed.
func (s *ProxyService) Fetch(ctx context.Context, target model.ResolvedTarget) (*model.ProxyResponse, error) {
	resp, err := s.upstream.Get(ctx, target.URL, target.Kind.String())
	if err != nil {
		return nil, fmt.Errorf("fetch %s target: %w", target.Kind, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer func() { _ = resp.Body.Close() }()
		// Best effort: a failed read leaves the body empty.
		data, err := io.ReadAll(io.LimitReader(resp.Body, upstreamErrorBodyLimit))
		if err != nil {
			data = nil
		}
		s.logger.Debug("upstream non-success",
			"kind", target.Kind.String(),
			"status", resp.StatusCode,
		)
		return nil, &UpstreamError{StatusCode: resp.StatusCode, Body: string(data)}
	}

	return resp, nil
}

// Playlist fetches the channel manifest at target and rewrites it so every
// URI points back at origin's /resource endpoint. The manifest is read in
// full (up to the configured limit) before rewriting; nothing is returned on
// partial reads.
func (s *ProxyService) Playlist(ctx context.Context, target model.ResolvedTarget, channel, origin string) (*model.Playlist, error) {
	resp, err := s.Fetch(ctx, target)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	limit := s.cfg.PlaylistMaxBytes
	if limit <= 0 {
		limit = 4 * 1024 * 1024
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return nil, fmt.Errorf("read playlist: %w", err)
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("read playlist: %w (%d bytes)", ErrPlaylistTooLarge, limit)
	}

	if s.metrics != nil {
		s.metrics.PlaylistsRewritten.Inc()
	}

	return &model.Playlist{
		StatusCode: resp.StatusCode,
		Body:       playlist.Rewrite(string(data), channel, strings.TrimRight(origin, "/")),
	}, nil
}
