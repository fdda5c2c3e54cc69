/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package server assembles the skald process: database, caches, engine,
// refresh loop, and the HTTP router.
package server

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/friendsincode/skald/internal/api"
	"github.com/friendsincode/skald/internal/audit"
	"github.com/friendsincode/skald/internal/cache"
	"github.com/friendsincode/skald/internal/config"
	"github.com/friendsincode/skald/internal/db"
	"github.com/friendsincode/skald/internal/eventbus"
	"github.com/friendsincode/skald/internal/expr"
	"github.com/friendsincode/skald/internal/library"
	"github.com/friendsincode/skald/internal/logbuffer"
	"github.com/friendsincode/skald/internal/refresh"
	"github.com/friendsincode/skald/internal/rules"
	"github.com/friendsincode/skald/internal/telemetry"
	"github.com/friendsincode/skald/internal/version"
)

// Server bundles HTTP and supporting services.
type Server struct {
	cfg        *config.Config
	logger     zerolog.Logger
	router     chi.Router
	httpServer *http.Server
	closers    []func() error

	db      *gorm.DB
	cache   *cache.Cache
	bus     *eventbus.Bus
	library *library.Service
	engine  *rules.Engine
	refresh *refresh.Service
	audit   *audit.Service
	logs    *logbuffer.Buffer
	updates *version.Checker
	api     *api.API

	bgCancel context.CancelFunc
	bgWG     sync.WaitGroup
}

// New constructs the server and wires dependencies. logs may be nil when
// the process does not capture its own log stream.
func New(cfg *config.Config, logger zerolog.Logger, logs *logbuffer.Buffer) (*Server, error) {
	router := chi.NewRouter()

	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)
	router.Use(securityHeadersMiddleware)
	router.Use(telemetry.TracingMiddleware)
	router.Use(telemetry.MetricsMiddleware)
	router.Use(middleware.Timeout(60 * time.Second))

	s := &Server{
		cfg:    cfg,
		logger: logger,
		logs:   logs,
		router: router,
		httpServer: &http.Server{
			Addr:              fmt.Sprintf("%s:%d", cfg.HTTPBind, cfg.HTTPPort),
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}

	if err := s.initDependencies(); err != nil {
		return nil, err
	}

	s.configureRoutes()
	s.startBackgroundWorkers()

	return s, nil
}

func (s *Server) initDependencies() error {
	if err := telemetry.InitTracer(context.Background(), telemetry.TracerConfig{
		Enabled:     s.cfg.TracingEnabled,
		Endpoint:    s.cfg.OTLPEndpoint,
		ServiceName: "skald",
		Environment: s.cfg.Environment,
		SampleRate:  s.cfg.TracingSampleRate,
	}); err != nil {
		s.logger.Warn().Err(err).Msg("tracing init failed, continuing without traces")
	} else if s.cfg.TracingEnabled {
		s.DeferClose(func() error { return telemetry.Shutdown(context.Background()) })
	}

	database, err := db.Connect(s.cfg)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	s.db = database
	s.DeferClose(func() error { return db.Close(database) })

	if err := db.RegisterCallbacks(database); err != nil {
		return fmt.Errorf("register db callbacks: %w", err)
	}
	if err := db.Migrate(database); err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}

	cacheCfg := cache.DefaultConfig()
	cacheCfg.RedisAddr = s.cfg.RedisAddr
	cacheCfg.RedisPassword = s.cfg.RedisPassword
	cacheCfg.RedisDB = s.cfg.RedisDB
	if s.cfg.RedisAddr == "" {
		cacheCfg.RedisAddr = "localhost:6379"
	}
	redisCache, err := cache.New(cacheCfg, s.logger)
	if err != nil {
		return fmt.Errorf("init cache: %w", err)
	}
	s.cache = redisCache
	s.DeferClose(redisCache.Close)

	bus, err := eventbus.New(s.cfg.NATSURL, s.logger)
	if err != nil {
		return fmt.Errorf("init event bus: %w", err)
	}
	s.bus = bus
	s.DeferClose(func() error {
		bus.Close()
		return nil
	})

	s.library = library.NewService(database, redisCache, s.logger)

	compiler := expr.NewCompiler(s.logger)
	compileCache := rules.NewCompileCache(compiler, s.cfg.CompileCacheSize, 0, s.logger)

	s.engine = rules.NewEngine(
		compileCache,
		s.library,
		s.library,
		s.library,
		s.library,
		s.library,
		s.cfg.FilterBatchSize,
		s.logger,
	)

	s.refresh = refresh.NewService(database, s.engine, s.library, redisCache, bus, s.cfg.RefreshInterval, s.logger)
	s.audit = audit.NewService(database, s.logger)
	s.updates = version.NewChecker(s.logger)
	s.api = api.New(database, []byte(s.cfg.JWTSigningKey), s.refresh, s.bus, s.audit, s.logs, s.updates, s.logger)

	return nil
}

func securityHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("Content-Security-Policy", "default-src 'self'; frame-ancestors 'none'; base-uri 'self'")

		// Only advertise HSTS for requests served over HTTPS.
		if r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https" {
			w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) configureRoutes() {
	s.router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	s.router.Handle("/metrics", telemetry.Handler())

	s.api.Routes(s.router)
}

func (s *Server) startBackgroundWorkers() {
	ctx, cancel := context.WithCancel(context.Background())
	s.bgCancel = cancel

	s.bgWG.Add(1)
	go func() {
		defer s.bgWG.Done()
		s.refresh.Run(ctx)
	}()

	s.updates.Start(ctx)

	s.bgWG.Add(1)
	go func() {
		defer s.bgWG.Done()
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				db.UpdateConnectionMetrics(s.db)
			}
		}
	}()
}

func (s *Server) stopBackgroundWorkers() {
	if s.bgCancel != nil {
		s.bgCancel()
	}
	s.bgWG.Wait()
}

// HTTPServer exposes the underlying net/http server.
func (s *Server) HTTPServer() *http.Server {
	return s.httpServer
}

// Refresh exposes the refresh service, for operational commands.
func (s *Server) Refresh() *refresh.Service {
	return s.refresh
}

// Close releases owned resources in reverse order.
func (s *Server) Close() error {
	s.stopBackgroundWorkers()
	var firstErr error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// DeferClose registers a cleanup hook.
func (s *Server) DeferClose(fn func() error) {
	s.closers = append(s.closers, fn)
}
