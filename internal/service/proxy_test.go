package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"testing/iotest"

	"iptv-hls-proxy/internal/client"
	"iptv-hls-proxy/internal/config"
	"iptv-hls-proxy/internal/metrics"
	"iptv-hls-proxy/internal/model"
)

// fakeUpstream returns a canned response or error and records the requested target.
type fakeUpstream struct {
	resp   *model.ProxyResponse
	err    error
	target string
	kind   string
}

func (f *fakeUpstream) Get(_ context.Context, target, kind string) (*model.ProxyResponse, error) {
	f.target, f.kind = target, kind
	return f.resp, f.err
}

func newTestService(up Upstream, cfg *config.Config) *ProxyService {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewProxyService(up, cfg, logger, nil)
}

func testConfig(host string) *config.Config {
	return &config.Config{
		Upstream: config.UpstreamConfig{
			Host:             host,
			Username:         "user",
			Password:         "pass",
			UserAgent:        "VLC/3.0.20 LibVLC/3.0.20",
			TimeoutSeconds:   10,
			IdleConnections:  10,
			PlaylistMaxBytes: 1024,
		},
	}
}

func TestFetch_Success(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/live/user/pass/39985/seg1.ts" {
			t.Errorf("path = %q", r.URL.Path)
		}
		w.Header().Set("Content-Type", "video/mp2t")
		_, _ = w.Write([]byte("ts-data"))
	}))
	defer upstream.Close()

	cfg := testConfig(upstream.URL)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := newTestService(client.NewUpstreamClient(cfg, logger, nil), cfg)

	target, err := Resolve(url.Values{"channel": {"39985"}, "uri": {"seg1.ts"}}, cfg.Upstream)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}

	resp, err := svc.Fetch(context.Background(), target)
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("StatusCode = %d, want %d", resp.StatusCode, http.StatusOK)
	}
	if resp.ContentType != "video/mp2t" {
		t.Errorf("ContentType = %q, want %q", resp.ContentType, "video/mp2t")
	}
	body, _ := io.ReadAll(resp.Body)
	if string(body) != "ts-data" {
		t.Errorf("body = %q, want %q", body, "ts-data")
	}
}

func TestFetch_UpstreamError(t *testing.T) {
	tests := []struct {
		name        string
		status      int
		body        io.Reader
		wantMessage string
	}{
		{"body relayed", http.StatusNotFound, strings.NewReader("missing"), "missing"},
		{"empty body fallback", http.StatusBadGateway, strings.NewReader(""), "Upstream 502"},
		{"read failure fallback", http.StatusForbidden, iotest.ErrReader(errors.New("reset")), "Upstream 403"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			up := &fakeUpstream{resp: &model.ProxyResponse{
				StatusCode: tt.status,
				Body:       io.NopCloser(tt.body),
			}}
			svc := newTestService(up, testConfig("http://iptv.example"))

			_, err := svc.Fetch(context.Background(), model.ResolvedTarget{URL: "http://cdn.example/a.ts", Kind: model.TargetAbsolute})

			var upErr *UpstreamError
			if !errors.As(err, &upErr) {
				t.Fatalf("Fetch() error = %v, want *UpstreamError", err)
			}
			if upErr.StatusCode != tt.status {
				t.Errorf("StatusCode = %d, want %d", upErr.StatusCode, tt.status)
			}
			if got := upErr.Message(); got != tt.wantMessage {
				t.Errorf("Message() = %q, want %q", got, tt.wantMessage)
			}
			if up.kind != "absolute" {
				t.Errorf("kind = %q, want %q", up.kind, "absolute")
			}
		})
	}
}

func TestFetch_TransportError(t *testing.T) {
	netErr := errors.New("dial tcp: connection refused")
	svc := newTestService(&fakeUpstream{err: netErr}, testConfig("http://iptv.example"))

	_, err := svc.Fetch(context.Background(), model.ResolvedTarget{URL: "http://example.com/seg.ts", Kind: model.TargetAbsolute})
	if !errors.Is(err, netErr) {
		t.Fatalf("Fetch() error = %v, want wrapped %v", err, netErr)
	}
	var upErr *UpstreamError
	if errors.As(err, &upErr) {
		t.Error("transport error must not be reported as *UpstreamError")
	}
}

func TestPlaylist_Rewrites(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/live/user/pass/39985.m3u8" {
			t.Errorf("path = %q", r.URL.Path)
		}
		_, _ = w.Write([]byte("#EXTM3U\nseg1.ts"))
	}))
	defer upstream.Close()

	cfg := testConfig(upstream.URL)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	m := metrics.New()
	svc := NewProxyService(client.NewUpstreamClient(cfg, logger, nil), cfg, logger, m)

	pr := &model.ProxyRequestContext{Query: url.Values{"channel": {"39985"}}}
	target, err := svc.ResolvePlaylist(pr)
	if err != nil {
		t.Fatalf("ResolvePlaylist() error = %v", err)
	}

	pl, err := svc.Playlist(context.Background(), target, "39985", "https://proxy.example/")
	if err != nil {
		t.Fatalf("Playlist() error = %v", err)
	}
	if pl.StatusCode != http.StatusOK {
		t.Errorf("StatusCode = %d, want %d", pl.StatusCode, http.StatusOK)
	}
	want := "#EXTM3U\nhttps://proxy.example/resource?channel=39985&uri=seg1.ts"
	if pl.Body != want {
		t.Errorf("Body = %q, want %q", pl.Body, want)
	}

	families, err := m.Registry.Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}
	for _, f := range families {
		if f.GetName() == "hls_proxy_playlists_rewritten_total" {
			if v := f.GetMetric()[0].GetCounter().GetValue(); v != 1 {
				t.Errorf("playlists rewritten = %v, want 1", v)
			}
			return
		}
	}
	t.Error("expected hls_proxy_playlists_rewritten_total")
}

func TestPlaylist_TooLarge(t *testing.T) {
	up := &fakeUpstream{resp: &model.ProxyResponse{
		StatusCode: http.StatusOK,
		Body:       io.NopCloser(strings.NewReader(strings.Repeat("a", 2048))),
	}}
	svc := newTestService(up, testConfig("http://iptv.example"))

	_, err := svc.Playlist(context.Background(), model.ResolvedTarget{Kind: model.TargetChannelPlaylist}, "1", "https://p")
	if !errors.Is(err, ErrPlaylistTooLarge) {
		t.Fatalf("Playlist() error = %v, want ErrPlaylistTooLarge", err)
	}
}

func TestPlaylist_ReadError(t *testing.T) {
	readErr := errors.New("connection reset")
	up := &fakeUpstream{resp: &model.ProxyResponse{
		StatusCode: http.StatusOK,
		Body:       io.NopCloser(io.MultiReader(strings.NewReader("#EXTM3U\n"), iotest.ErrReader(readErr))),
	}}
	svc := newTestService(up, testConfig("http://iptv.example"))

	pl, err := svc.Playlist(context.Background(), model.ResolvedTarget{Kind: model.TargetChannelPlaylist}, "1", "https://p")
	if !errors.Is(err, readErr) {
		t.Fatalf("Playlist() error = %v, want %v", err, readErr)
	}
	if pl != nil {
		t.Error("partial playlist returned on read error")
	}
}

func TestPlaylist_UpstreamError(t *testing.T) {
	up := &fakeUpstream{resp: &model.ProxyResponse{
		StatusCode: http.StatusNotFound,
		Body:       io.NopCloser(strings.NewReader("no such channel")),
	}}
	svc := newTestService(up, testConfig("http://iptv.example"))

	_, err := svc.Playlist(context.Background(), model.ResolvedTarget{Kind: model.TargetChannelPlaylist}, "1", "https://p")
	var upErr *UpstreamError
	if !errors.As(err, &upErr) || upErr.StatusCode != http.StatusNotFound {
		t.Fatalf("Playlist() error = %v, want *UpstreamError 404", err)
	}
}

func TestResolvePlaylist_RejectsResourceShapes(t *testing.T) {
	svc := newTestService(&fakeUpstream{}, testConfig("http://iptv.example"))

	pr := &model.ProxyRequestContext{Query: url.Values{"channel": {"1"}, "uri": {"a.ts"}}}
	if _, err := svc.ResolvePlaylist(pr); !errors.Is(err, ErrBadResource) {
		t.Errorf("ResolvePlaylist() error = %v, want ErrBadResource", err)
	}
}

func TestUpstreamError_Error(t *testing.T) {
	err := &UpstreamError{StatusCode: 404, Body: "missing"}
	if got := err.Error(); got != "upstream returned status 404" {
		t.Errorf("Error() = %q", got)
	}
}
