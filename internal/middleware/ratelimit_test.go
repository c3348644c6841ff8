package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"golang.org/x/time/rate"

	"iptv-hls-proxy/internal/middleware"
)

// newLimitedEcho mirrors the server's ordering: CORS ahead of the limiter.
func newLimitedEcho(rps float64) *echo.Echo {
	e := echo.New()
	e.Use(middleware.CORS())
	store := echomw.NewRateLimiterMemoryStore(rate.Limit(rps))
	e.Use(echomw.RateLimiter(store))
	e.Any("/*", func(c echo.Context) error {
		return c.String(http.StatusOK, "#EXTM3U\n")
	})
	return e
}

func TestRateLimiter_RejectsAfterBurst(t *testing.T) {
	e := newLimitedEcho(1)

	req := httptest.NewRequest(http.MethodGet, "/?channel=1", http.NoBody)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("first request: status = %d, want %d", rec.Code, http.StatusOK)
	}

	var limited *httptest.ResponseRecorder
	for range 10 {
		req = httptest.NewRequest(http.MethodGet, "/resource?channel=1&uri=a.ts", http.NoBody)
		rec = httptest.NewRecorder()
		e.ServeHTTP(rec, req)
		if rec.Code == http.StatusTooManyRequests {
			limited = rec
			break
		}
	}
	if limited == nil {
		t.Fatal("expected at least one 429 response after burst, got none")
	}
	if v := limited.Header().Get("Access-Control-Allow-Origin"); v != "*" {
		t.Errorf("429 Access-Control-Allow-Origin = %q, want %q", v, "*")
	}
}

func TestRateLimiter_PerClientIdentity(t *testing.T) {
	e := newLimitedEcho(1)

	for _, ip := range []string{"10.0.0.1:1234", "10.0.0.2:1234"} {
		req := httptest.NewRequest(http.MethodGet, "/?channel=1", http.NoBody)
		req.RemoteAddr = ip
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Errorf("first request from %s: status = %d, want %d", ip, rec.Code, http.StatusOK)
		}
	}
}
