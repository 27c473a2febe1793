// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

// Package server exposes search, image retrieval and optional ingestion
// over HTTP. Routes are registered with huma on a chi router so the
// OpenAPI document stays in step with the handlers.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	sigilerr "github.com/sigil-dev/glimpse/pkg/errors"
)

// Version is reported in the OpenAPI document.
var Version = "dev"

const (
	defaultReadTimeout    = 30 * time.Second
	defaultWriteTimeout   = 120 * time.Second
	defaultMaxUploadBytes = 64 << 20
	shutdownTimeout       = 10 * time.Second
)

// Config holds HTTP server configuration.
type Config struct {
	ListenAddr   string
	CORSOrigins  []string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	// AllowIngest enables POST /api/v1/images.
	AllowIngest bool
	// MaxUploadBytes bounds request bodies carrying images.
	MaxUploadBytes int64
	RateLimit      RateLimitConfig
	Logger         *slog.Logger
}

// Validate checks c and fills in defaults.
func (c *Config) Validate() error {
	if c.ListenAddr == "" {
		return sigilerr.New(sigilerr.CodeServerConfigInvalid, "listen address is required")
	}
	if _, _, err := net.SplitHostPort(c.ListenAddr); err != nil {
		return sigilerr.Errorf(sigilerr.CodeServerConfigInvalid, "listen address %q: %v", c.ListenAddr, err)
	}
	if slices.Contains(c.CORSOrigins, "*") {
		return sigilerr.New(sigilerr.CodeServerConfigInvalid, "wildcard CORS origin is not allowed; list origins explicitly")
	}
	if c.ReadTimeout < 0 || c.WriteTimeout < 0 || c.MaxUploadBytes < 0 {
		return sigilerr.New(sigilerr.CodeServerConfigInvalid, "timeouts and upload limit must not be negative")
	}
	if err := c.RateLimit.Validate(); err != nil {
		return err
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = defaultReadTimeout
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = defaultWriteTimeout
	}
	if c.MaxUploadBytes == 0 {
		c.MaxUploadBytes = defaultMaxUploadBytes
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return nil
}

// Server wraps a chi router with a huma API.
type Server struct {
	router   chi.Router
	api      huma.API
	cfg      Config
	services *Services
	logger   *slog.Logger
	ingestMu sync.Mutex

	done      chan struct{}
	closeOnce sync.Once
}

// New creates a Server and registers every route. svc must not be nil.
func New(cfg Config, svc *Services) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if svc == nil {
		return nil, sigilerr.New(sigilerr.CodeServerConfigInvalid, "services are required")
	}

	r := chi.NewRouter()
	done := make(chan struct{})

	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(securityHeaders)
	r.Use(corsMiddleware(cfg.CORSOrigins))
	r.Use(rateLimitMiddleware(cfg.RateLimit, cfg.Logger, done))

	humaConfig := huma.DefaultConfig("Glimpse", Version)
	humaConfig.Info.Description = "Content-addressable image store with tag and embedding search"
	api := humachi.New(r, humaConfig)

	s := &Server{
		router:   r,
		api:      api,
		cfg:      cfg,
		services: svc,
		logger:   cfg.Logger,
		done:     done,
	}
	s.registerRoutes()
	s.registerIngestRoute()
	return s, nil
}

// Handler returns the underlying http.Handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// API returns the huma API.
func (s *Server) API() huma.API {
	return s.api
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	defer func() { _ = s.Close() }()

	ln, err := net.Listen("tcp", s.cfg.ListenAddr)
	if err != nil {
		return sigilerr.Wrapf(err, sigilerr.CodeServerStartFailure, "listening on %s", s.cfg.ListenAddr)
	}

	srv := &http.Server{
		Handler:      s.router,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	s.logger.Info("http server listening", "addr", ln.Addr().String())

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return sigilerr.Wrap(err, sigilerr.CodeServerStartFailure, "serving http")
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	s.logger.Info("http server shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return sigilerr.Wrap(err, sigilerr.CodeServerShutdownFailure, "shutting down")
	}
	return <-errCh
}

// Close stops background work owned by the server. It is safe to call more
// than once.
func (s *Server) Close() error {
	s.closeOnce.Do(func() { close(s.done) })
	return nil
}

func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Referrer-Policy", "no-referrer")
		h.Set("Content-Security-Policy", "default-src 'none'; img-src 'self'; frame-ancestors 'none'")
		next.ServeHTTP(w, r)
	})
}

// corsMiddleware allows only the configured origins; none means no
// cross-origin access.
func corsMiddleware(origins []string) func(http.Handler) http.Handler {
	return cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		ExposedHeaders: []string{"ETag"},
		MaxAge:         300,
	})
}
