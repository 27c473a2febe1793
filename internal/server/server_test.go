// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package server_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sigil-dev/glimpse/internal/server"
	sigilerr "github.com/sigil-dev/glimpse/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, cfg server.Config, searcher *fakeSearcher, ingester server.Ingester) *server.Server {
	t.Helper()
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = "127.0.0.1:0"
	}
	if searcher == nil {
		searcher = newFakeSearcher()
	}
	svc, err := server.NewServices(searcher, ingester)
	require.NoError(t, err)

	srv, err := server.New(cfg, svc)
	require.NoError(t, err)
	t.Cleanup(func() { _ = srv.Close() })
	return srv
}

func serve(srv *server.Server, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	return w
}

func TestNewServices_RequiresSearcher(t *testing.T) {
	_, err := server.NewServices(nil, nil)
	require.Error(t, err)
	assert.True(t, sigilerr.HasCode(err, sigilerr.CodeServerConfigInvalid))
}

func TestServer_New_RequiresServices(t *testing.T) {
	_, err := server.New(server.Config{ListenAddr: "127.0.0.1:0"}, nil)
	require.Error(t, err)
	assert.True(t, sigilerr.HasCode(err, sigilerr.CodeServerConfigInvalid))
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		cfg    server.Config
		errMsg string
	}{
		{name: "minimal", cfg: server.Config{ListenAddr: "127.0.0.1:18790"}},
		{name: "empty listen", cfg: server.Config{}, errMsg: "listen address is required"},
		{name: "listen without port", cfg: server.Config{ListenAddr: "localhost"}, errMsg: "listen address"},
		{name: "wildcard origin", cfg: server.Config{ListenAddr: ":1", CORSOrigins: []string{"*"}}, errMsg: "CORS origin"},
		{name: "negative timeout", cfg: server.Config{ListenAddr: ":1", ReadTimeout: -time.Second}, errMsg: "must not be negative"},
		{name: "rate without burst", cfg: server.Config{ListenAddr: ":1", RateLimit: server.RateLimitConfig{RequestsPerSecond: 1}}, errMsg: "burst"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.errMsg == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, sigilerr.HasCode(err, sigilerr.CodeServerConfigInvalid))
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestConfig_Validate_AppliesDefaults(t *testing.T) {
	cfg := server.Config{ListenAddr: "127.0.0.1:0", WriteTimeout: 5 * time.Second}
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 30*time.Second, cfg.ReadTimeout)
	assert.Equal(t, 5*time.Second, cfg.WriteTimeout, "explicit values are kept")
	assert.Equal(t, int64(64<<20), cfg.MaxUploadBytes)
	assert.Equal(t, 10000, cfg.RateLimit.MaxVisitors)
	assert.NotNil(t, cfg.Logger)
}

func TestServer_Health(t *testing.T) {
	searcher := newFakeSearcher()
	srv := newTestServer(t, server.Config{}, searcher, nil)

	w := serve(srv, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"degraded"`, "no index loaded yet")

	searcher.stats.IndexLoaded = true
	w = serve(srv, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Contains(t, w.Body.String(), `"status":"ok"`)
}

func TestServer_SecurityHeaders(t *testing.T) {
	srv := newTestServer(t, server.Config{}, nil, nil)

	w := serve(srv, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
	assert.Contains(t, w.Header().Get("Content-Security-Policy"), "frame-ancestors 'none'")
}

func TestServer_CORS(t *testing.T) {
	preflight := func(srv *server.Server, origin string) string {
		req := httptest.NewRequest(http.MethodOptions, "/api/v1/search", nil)
		req.Header.Set("Origin", origin)
		req.Header.Set("Access-Control-Request-Method", http.MethodPost)
		return serve(srv, req).Header().Get("Access-Control-Allow-Origin")
	}

	srv := newTestServer(t, server.Config{CORSOrigins: []string{"https://photos.example.com"}}, nil, nil)
	assert.Equal(t, "https://photos.example.com", preflight(srv, "https://photos.example.com"))
	assert.Empty(t, preflight(srv, "https://evil.example.com"))

	closed := newTestServer(t, server.Config{}, nil, nil)
	assert.Empty(t, preflight(closed, "http://localhost:5173"), "no origins configured means no cross-origin access")
}

func TestServer_OpenAPIListsEveryRoute(t *testing.T) {
	srv := newTestServer(t, server.Config{}, nil, nil)

	w := serve(srv, httptest.NewRequest(http.MethodGet, "/openapi.json", nil))
	require.Equal(t, http.StatusOK, w.Code)

	body := w.Body.String()
	for _, path := range []string{
		"/health",
		"/api/v1/search",
		"/api/v1/images/{hash}",
		"/api/v1/images/{hash}/preview",
		"/api/v1/images",
		"/api/v1/index/reload",
		"/api/v1/stats",
		"/api/v1/tags",
	} {
		assert.Contains(t, body, `"`+path+`"`)
	}
}

func TestServer_GracefulShutdown(t *testing.T) {
	srv := newTestServer(t, server.Config{}, nil, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start(ctx) }()

	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("server did not shut down within timeout")
	}
}

func TestServer_StartFailsOnBusyPort(t *testing.T) {
	ln := httptest.NewServer(http.NotFoundHandler())
	defer ln.Close()

	srv := newTestServer(t, server.Config{ListenAddr: ln.Listener.Addr().String()}, nil, nil)
	err := srv.Start(context.Background())
	require.Error(t, err)
	assert.True(t, sigilerr.HasCode(err, sigilerr.CodeServerStartFailure))
}
