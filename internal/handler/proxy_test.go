package handler

import (
	"bytes"
	"compress/flate"
	"compress/gzip"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"dispatch-proxy-go/internal/client"
	"dispatch-proxy-go/internal/config"
	"dispatch-proxy-go/internal/service"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestHandler builds a ProxyHandler over cfg's route table.
func newTestHandler(cfg *config.Config) *ProxyHandler {
	if cfg.Upstream.TimeoutSeconds == 0 {
		cfg.Upstream.TimeoutSeconds = 5
	}
	if cfg.Upstream.IdleConnections == 0 {
		cfg.Upstream.IdleConnections = 10
	}
	logger := discardLogger()
	uc := client.NewUpstreamClient(cfg, logger, nil)
	d := service.NewDispatcher(cfg.RouteTable(), uc, cfg, nil, logger)
	return NewProxyHandler(d, logger)
}

func serve(t *testing.T, h *ProxyHandler, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	if err := h.Handle(c); err != nil {
		t.Fatalf("Handle() error = %v", err)
	}
	return rec
}

func TestProxyHandler_Handle_ForwardsRequest(t *testing.T) {
	var gotURI, gotMethod, gotBody, gotHost, gotFwd string
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotURI, gotMethod = r.URL.RequestURI(), r.Method
		gotHost, gotFwd = r.Host, r.Header.Get("X-Forwarded-Host")
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("X-Upstream", "1")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"result":"ok"}`))
	}))
	defer upstream.Close()

	h := newTestHandler(&config.Config{
		Routes: []config.RouteConfig{{Path: "/old", TargetURL: upstream.URL}},
	})

	req := httptest.NewRequest(http.MethodPost, "/old/items/?x=1&y=two", strings.NewReader(`{"a":1}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Forwarded-Host", "proxy.example.com")
	rec := serve(t, h, req)

	if gotMethod != http.MethodPost || gotURI != "/items?x=1&y=two" {
		t.Errorf("upstream saw %s %s, want POST /items?x=1&y=two", gotMethod, gotURI)
	}
	if gotBody != `{"a":1}` {
		t.Errorf("upstream body = %q", gotBody)
	}
	if gotFwd != "" {
		t.Errorf("X-Forwarded-Host leaked upstream: %q", gotFwd)
	}
	if !strings.HasPrefix(upstream.URL, "http://"+gotHost) {
		t.Errorf("upstream Host = %q, want the upstream's own host", gotHost)
	}
	if rec.Code != http.StatusCreated {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusCreated)
	}
	if rec.Header().Get("X-Upstream") != "1" {
		t.Error("upstream header not relayed")
	}
	if rec.Header().Get("Content-Length") != "15" {
		t.Errorf("Content-Length = %q, want %q", rec.Header().Get("Content-Length"), "15")
	}
	if rec.Body.String() != `{"result":"ok"}` {
		t.Errorf("body = %q", rec.Body.String())
	}
}

func TestProxyHandler_Handle_GetDropsBody(t *testing.T) {
	var gotLen int64 = -2
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotLen = r.ContentLength
		w.WriteHeader(http.StatusOK)
	}))
	defer upstream.Close()

	h := newTestHandler(&config.Config{Fallback: config.TargetConfig{TargetURL: upstream.URL}})

	req := httptest.NewRequest(http.MethodGet, "/anything", strings.NewReader("ignored"))
	serve(t, h, req)

	if gotLen != 0 {
		t.Errorf("upstream ContentLength = %d, want 0", gotLen)
	}
}

func TestProxyHandler_Handle_GzipUpstreamIsDecoded(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var buf bytes.Buffer
		zw := gzip.NewWriter(&buf)
		_, _ = zw.Write([]byte("plain text after decoding"))
		_ = zw.Close()
		w.Header().Set("Content-Encoding", "gzip")
		_, _ = w.Write(buf.Bytes())
	}))
	defer upstream.Close()

	h := newTestHandler(&config.Config{Fallback: config.TargetConfig{TargetURL: upstream.URL}})

	req := httptest.NewRequest(http.MethodGet, "/", http.NoBody)
	req.Header.Set("Accept-Encoding", "gzip, deflate, br")
	rec := serve(t, h, req)

	if rec.Header().Get("Content-Encoding") != "" {
		t.Errorf("Content-Encoding = %q, want none", rec.Header().Get("Content-Encoding"))
	}
	if rec.Body.String() != "plain text after decoding" {
		t.Errorf("body = %q", rec.Body.String())
	}
	if rec.Header().Get("Content-Length") != "25" {
		t.Errorf("Content-Length = %q, want %q", rec.Header().Get("Content-Length"), "25")
	}
}

func TestProxyHandler_Handle_DeflateUpstreamIsDecoded(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		var buf bytes.Buffer
		fw, _ := flate.NewWriter(&buf, flate.BestSpeed)
		_, _ = fw.Write([]byte("hello deflate"))
		_ = fw.Close()
		w.Header().Set("Content-Encoding", "deflate")
		_, _ = w.Write(buf.Bytes())
	}))
	defer upstream.Close()

	h := newTestHandler(&config.Config{Fallback: config.TargetConfig{TargetURL: upstream.URL}})

	rec := serve(t, h, httptest.NewRequest(http.MethodGet, "/", http.NoBody))

	if rec.Header().Get("Content-Encoding") != "" {
		t.Errorf("Content-Encoding = %q, want none", rec.Header().Get("Content-Encoding"))
	}
	if rec.Body.String() != "hello deflate" {
		t.Errorf("body = %q", rec.Body.String())
	}
}

func TestProxyHandler_Handle_NoContentTypeSniffing(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header()["Content-Type"] = nil
		_, _ = w.Write([]byte("<html><body>untyped</body></html>"))
	}))
	defer upstream.Close()

	h := newTestHandler(&config.Config{Fallback: config.TargetConfig{TargetURL: upstream.URL}})

	rec := serve(t, h, httptest.NewRequest(http.MethodGet, "/", http.NoBody))

	if ct, ok := rec.Result().Header["Content-Type"]; ok && len(ct) > 0 {
		t.Errorf("Content-Type = %v, want none", ct)
	}
	if rec.Body.String() != "<html><body>untyped</body></html>" {
		t.Errorf("body = %q", rec.Body.String())
	}
}

func TestProxyHandler_Handle_MalformedQueryKept(t *testing.T) {
	var gotQuery string
	upstream := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
	}))
	defer upstream.Close()

	h := newTestHandler(&config.Config{Fallback: config.TargetConfig{TargetURL: upstream.URL}})

	serve(t, h, httptest.NewRequest(http.MethodGet, "/x?discount=100%&a=1", http.NoBody))

	if gotQuery != "discount=100%25&a=1" {
		t.Errorf("upstream query = %q, want %q", gotQuery, "discount=100%25&a=1")
	}
}

func TestProxyHandler_Handle_Redirect(t *testing.T) {
	var calls atomic.Int32
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
	}))
	defer upstream.Close()

	h := newTestHandler(&config.Config{
		Routes: []config.RouteConfig{{Path: "/old", TargetURL: upstream.URL, Mode: "REDIRECT"}},
	})

	rec := serve(t, h, httptest.NewRequest(http.MethodGet, "/old/page?x=1", http.NoBody))

	if rec.Code != http.StatusFound {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusFound)
	}
	if loc := rec.Header().Get("Location"); loc != upstream.URL+"/page?x=1" {
		t.Errorf("Location = %q, want %q", loc, upstream.URL+"/page?x=1")
	}
	if calls.Load() != 0 {
		t.Error("redirect mode must not call upstream")
	}
}

func TestProxyHandler_Handle_MissingAPITarget(t *testing.T) {
	h := newTestHandler(&config.Config{Fallback: config.TargetConfig{TargetURL: "https://www.example.com"}})

	rec := serve(t, h, httptest.NewRequest(http.MethodGet, "/api/x", http.NoBody))

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusInternalServerError)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if body["error"] != service.MsgMissingTarget {
		t.Errorf("error = %q, want %q", body["error"], service.MsgMissingTarget)
	}
}

func TestProxyHandler_Handle_UnreachableUpstream(t *testing.T) {
	h := newTestHandler(&config.Config{Fallback: config.TargetConfig{TargetURL: "http://127.0.0.1:1"}})

	rec := serve(t, h, httptest.NewRequest(http.MethodGet, "/x", http.NoBody))

	if rec.Code != http.StatusBadGateway {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusBadGateway)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if body["error"] != service.MsgUpstreamError {
		t.Errorf("error = %q, want %q", body["error"], service.MsgUpstreamError)
	}
	if body["details"] == "" {
		t.Error("expected failure details")
	}
}

func TestProxyHandler_Handle_HeadOmitsBody(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("X-Upstream", "1")
		w.WriteHeader(http.StatusOK)
	}))
	defer upstream.Close()

	h := newTestHandler(&config.Config{Fallback: config.TargetConfig{TargetURL: upstream.URL}})

	rec := serve(t, h, httptest.NewRequest(http.MethodHead, "/", http.NoBody))

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if rec.Body.Len() != 0 {
		t.Errorf("body length = %d, want 0", rec.Body.Len())
	}
}

func TestProxyHandler_Handle_BodyLimit(t *testing.T) {
	h := newTestHandler(&config.Config{Fallback: config.TargetConfig{TargetURL: "http://127.0.0.1:1"}})

	e := echo.New()
	e.Use(echomw.BodyLimit("4B"))
	e.Any("/*", h.Handle)

	req := httptest.NewRequest(http.MethodPost, "/upload", strings.NewReader("far too long"))
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusRequestEntityTooLarge)
	}
}

func TestNormalizedPathFeedsResolver(t *testing.T) {
	var gotPath string
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.EscapedPath()
	}))
	defer upstream.Close()

	tests := []struct {
		name string
		path string
		want string
	}{
		{"trailing slash stripped", "/docs/guide/", "/guide"},
		{"exact match goes to root", "/docs/", "/"},
		{"escaped characters preserved", "/docs/a%20b", "/a%20b"},
	}

	h := newTestHandler(&config.Config{
		Routes: []config.RouteConfig{{Path: "/docs", TargetURL: upstream.URL}},
	})
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			serve(t, h, httptest.NewRequest(http.MethodGet, tt.path, http.NoBody))
			if gotPath != tt.want {
				t.Errorf("upstream path = %q, want %q", gotPath, tt.want)
			}
		})
	}
}
