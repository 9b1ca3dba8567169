package handler

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"

	"devserver/internal/config"
	"devserver/internal/metrics"
	"devserver/internal/middleware"
)

func TestRegisterRoutes_Wiring(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/broken" {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer upstream.Close()

	root := newDocRoot(t)
	cfg := &config.Config{Server: config.ServerConfig{Root: root, StatusEndpoints: true}}

	e := echo.New()
	e.Use(middleware.CrossOrigin())
	RegisterRoutes(e, cfg,
		NewProxyHandler(newTestFetchService(3), discardLogger()),
		NewStaticHandler(cfg),
		NewHealthHandler(cfg, "test"),
	)

	tests := []struct {
		name       string
		method     string
		path       string
		wantStatus int
		wantBody   string
	}{
		{"GET /healthz", http.MethodGet, "/healthz", http.StatusOK, `"ok"`},
		{"GET /proxy/status", http.MethodGet, "/proxy/status", http.StatusOK, `"max_attempts"`},
		{"GET /proxy", http.MethodGet, "/proxy?url=" + url.QueryEscape(upstream.URL), http.StatusOK, `{"ok":true}`},
		{"GET /proxy without url", http.MethodGet, "/proxy", http.StatusBadRequest, "Missing url parameter"},
		{"GET /proxy upstream failing", http.MethodGet, "/proxy?url=" + url.QueryEscape(upstream.URL+"/broken"), http.StatusBadGateway, "Error fetching " + upstream.URL + "/broken:\n"},
		{"GET static file", http.MethodGet, "/hello.txt", http.StatusOK, "hello world"},
		{"HEAD static file", http.MethodHead, "/hello.txt", http.StatusOK, ""},
		{"GET root listing", http.MethodGet, "/", http.StatusOK, "hello.txt"},
		{"GET missing file", http.MethodGet, "/missing.txt", http.StatusNotFound, ""},
		{"GET /proxy/ is static", http.MethodGet, "/proxy/", http.StatusNotFound, ""},
		{"POST is not routed", http.MethodPost, "/hello.txt", http.StatusMethodNotAllowed, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, http.NoBody)
			rec := httptest.NewRecorder()
			e.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if tt.wantBody != "" && !strings.Contains(rec.Body.String(), tt.wantBody) {
				t.Errorf("body = %q, want it to contain %q", rec.Body.String(), tt.wantBody)
			}
			if v := rec.Header().Get("Access-Control-Allow-Origin"); v != "*" {
				t.Errorf("Access-Control-Allow-Origin = %q, want %q", v, "*")
			}
		})
	}
}

func TestRegisterMetrics(t *testing.T) {
	tests := []struct {
		name       string
		enabled    bool
		wantStatus int
	}{
		{"enabled", true, http.StatusOK},
		{"disabled falls through to static", false, http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &config.Config{
				Server:  config.ServerConfig{Root: t.TempDir()},
				Metrics: config.MetricsConfig{Enabled: tt.enabled, Path: "/metrics"},
			}
			m := metrics.New()
			m.FetchOutcomes.WithLabelValues("ok").Inc()

			e := echo.New()
			RegisterMetrics(e, cfg, m)
			RegisterRoutes(e, cfg,
				NewProxyHandler(newTestFetchService(1), discardLogger()),
				NewStaticHandler(cfg),
				NewHealthHandler(cfg, "test"),
			)

			req := httptest.NewRequest(http.MethodGet, "/metrics", http.NoBody)
			rec := httptest.NewRecorder()
			e.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if tt.enabled && !strings.Contains(rec.Body.String(), "devserver_fetch_outcomes_total") {
				t.Errorf("metrics output missing devserver_fetch_outcomes_total:\n%s", rec.Body.String())
			}
		})
	}
}

func TestRegisterRoutes_StatusEndpointsOffServeFiles(t *testing.T) {
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, "proxy"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	files := map[string]string{
		"healthz":      "my-file",
		"proxy/status": "status-file",
	}
	for name, data := range files {
		if err := os.WriteFile(filepath.Join(root, filepath.FromSlash(name)), []byte(data), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}

	cfg := &config.Config{Server: config.ServerConfig{Root: root}}
	e := echo.New()
	e.Use(middleware.CrossOrigin())
	RegisterRoutes(e, cfg,
		NewProxyHandler(newTestFetchService(1), discardLogger()),
		NewStaticHandler(cfg),
		NewHealthHandler(cfg, "test"),
	)

	tests := []struct {
		path     string
		wantBody string
	}{
		{"/healthz", "my-file"},
		{"/proxy/status", "status-file"},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, http.NoBody)
			rec := httptest.NewRecorder()
			e.ServeHTTP(rec, req)

			if rec.Code != http.StatusOK {
				t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
			}
			if body := rec.Body.String(); body != tt.wantBody {
				t.Errorf("body = %q, want %q", body, tt.wantBody)
			}
			if v := rec.Header().Get("Access-Control-Allow-Origin"); v != "*" {
				t.Errorf("Access-Control-Allow-Origin = %q, want %q", v, "*")
			}
		})
	}
}
