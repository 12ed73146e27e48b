package http_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	httptransport "tripmerge/internal/http"
	"tripmerge/internal/modules/booking"
	"tripmerge/internal/modules/merge"
	"tripmerge/internal/modules/recommend"
	"tripmerge/internal/modules/routing"
	"tripmerge/internal/modules/settings"
)

func newRouter(origins ...string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	store := booking.NewMemoryStore()
	settingsSvc := settings.NewService(settings.NewMemoryStore(), 0)
	return httptransport.NewRouter(httptransport.RouterDeps{
		Merge:          merge.NewService(store, routing.NewSequencer(nil, time.Second), settingsSvc),
		Recommend:      recommend.NewService(store, settingsSvc),
		Settings:       settingsSvc,
		AllowedOrigins: origins,
	})
}

func TestHealth(t *testing.T) {
	w := httptest.NewRecorder()
	newRouter().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	if w.Code != http.StatusOK || w.Body.String() != "OK" {
		t.Fatalf("health: %d %q", w.Code, w.Body.String())
	}
}

func TestMetricsExposesRequestCounters(t *testing.T) {
	r := newRouter()
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health", nil))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("metrics status: %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "tripmerge_http_requests_total") {
		t.Fatalf("request counter missing from /metrics output")
	}
}

func TestCORSPreflight(t *testing.T) {
	req := httptest.NewRequest(http.MethodOptions, "/api/merge", nil)
	req.Header.Set("Origin", "https://ops.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	w := httptest.NewRecorder()
	newRouter().ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Fatalf("preflight status: want 204, got %d", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Fatalf("allow origin: want *, got %q", got)
	}
}

func TestCORSRejectsUnknownOrigin(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	w := httptest.NewRecorder()
	newRouter("https://ops.example.com").ServeHTTP(w, req)

	if w.Code != http.StatusForbidden {
		t.Fatalf("status: want 403, got %d", w.Code)
	}
}
