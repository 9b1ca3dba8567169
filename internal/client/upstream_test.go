package client

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"devserver/internal/config"
	"devserver/internal/metrics"
)

func newTestClient(timeoutSeconds int, m *metrics.Metrics) *Client {
	cfg := &config.Config{
		Upstream: config.UpstreamConfig{TimeoutSeconds: timeoutSeconds},
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewClient(cfg, logger, m)
}

func TestClient_Get(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Errorf("method = %q, want GET", r.Method)
		}
		if got := r.Header.Get("X-Test"); got != "yes" {
			t.Errorf("X-Test = %q, want %q", got, "yes")
		}
		w.Header().Set("Content-Type", "text/html")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("<p>hi</p>"))
	}))
	defer srv.Close()

	c := newTestClient(10, nil)

	resp, err := c.Get(context.Background(), srv.URL+"/page", http.Header{"X-Test": {"yes"}})
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("StatusCode = %d, want %d", resp.StatusCode, http.StatusOK)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "text/html" {
		t.Errorf("Content-Type = %q, want %q", ct, "text/html")
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if string(body) != "<p>hi</p>" {
		t.Errorf("body = %q, want %q", string(body), "<p>hi</p>")
	}
}

func TestClient_Get_ClosesConnection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !r.Close {
			t.Error("expected request to ask for connection close")
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c := newTestClient(10, nil)
	resp, err := c.Get(context.Background(), srv.URL, http.Header{})
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	_ = resp.Body.Close()
}

func TestClient_Get_Error(t *testing.T) {
	c := newTestClient(1, nil)

	_, err := c.Get(context.Background(), "http://127.0.0.1:1/nonexistent", http.Header{})
	if err == nil {
		t.Fatal("Get() expected error for unreachable host, got nil")
	}
}

func TestClient_Get_BadURL(t *testing.T) {
	c := newTestClient(1, nil)

	_, err := c.Get(context.Background(), "://missing-scheme", http.Header{})
	if err == nil {
		t.Fatal("Get() expected error for malformed URL, got nil")
	}
}

func TestClient_Get_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
		}
	}))
	defer srv.Close()

	c := newTestClient(1, nil)
	if c.Timeout() != time.Second {
		t.Fatalf("Timeout() = %v, want 1s", c.Timeout())
	}

	start := time.Now()
	_, err := c.Get(context.Background(), srv.URL, http.Header{})
	if err == nil {
		t.Fatal("Get() expected timeout error, got nil")
	}
	if elapsed := time.Since(start); elapsed > 4*time.Second {
		t.Errorf("Get() took %v, want it bounded by the 1s timeout", elapsed)
	}
}

func TestClient_Get_CanceledContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Simulate a slow upstream; the request should be canceled before this completes.
		select {
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := newTestClient(30, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel() // cancel immediately

	_, err := c.Get(ctx, srv.URL+"/slow", http.Header{})
	if err == nil {
		t.Fatal("Get() expected error for canceled context, got nil")
	}
}

func TestClient_Do_RecordsMetrics(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	m := metrics.New()
	c := newTestClient(10, m)

	resp, err := c.Get(context.Background(), srv.URL, http.Header{})
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	_ = resp.Body.Close()

	families, err := m.Registry.Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}

	for _, f := range families {
		if f.GetName() != "devserver_upstream_responses_total" {
			continue
		}
		for _, metric := range f.GetMetric() {
			for _, lp := range metric.GetLabel() {
				if lp.GetName() == "status_code" && lp.GetValue() == "404" {
					return
				}
			}
		}
	}
	t.Error("expected devserver_upstream_responses_total with status_code=404")
}

func TestNewClient_AttemptBoundedByClientTimeout(t *testing.T) {
	c := newTestClient(20, nil)

	if c.httpClient.Timeout != 20*time.Second {
		t.Errorf("client Timeout = %s, want %s", c.httpClient.Timeout, 20*time.Second)
	}
	tr, ok := c.httpClient.Transport.(*http.Transport)
	if !ok {
		t.Fatalf("Transport = %T, want *http.Transport", c.httpClient.Transport)
	}
	// A slow TLS handshake may use the whole attempt budget.
	if tr.TLSHandshakeTimeout != 0 {
		t.Errorf("TLSHandshakeTimeout = %s, want 0", tr.TLSHandshakeTimeout)
	}
	if !tr.DisableKeepAlives {
		t.Error("DisableKeepAlives = false, want true")
	}
}
