/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

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

	"github.com/friendsincode/muninn_traffic/internal/analysis"
	"github.com/friendsincode/muninn_traffic/internal/analytics"
	"github.com/friendsincode/muninn_traffic/internal/api"
	"github.com/friendsincode/muninn_traffic/internal/audit"
	"github.com/friendsincode/muninn_traffic/internal/autogen"
	"github.com/friendsincode/muninn_traffic/internal/cache"
	"github.com/friendsincode/muninn_traffic/internal/catalog"
	"github.com/friendsincode/muninn_traffic/internal/clock"
	"github.com/friendsincode/muninn_traffic/internal/config"
	"github.com/friendsincode/muninn_traffic/internal/dailylog"
	"github.com/friendsincode/muninn_traffic/internal/db"
	"github.com/friendsincode/muninn_traffic/internal/eventbus"
	"github.com/friendsincode/muninn_traffic/internal/events"
	"github.com/friendsincode/muninn_traffic/internal/integrity"
	"github.com/friendsincode/muninn_traffic/internal/leadership"
	"github.com/friendsincode/muninn_traffic/internal/logbuffer"
	"github.com/friendsincode/muninn_traffic/internal/publish"
	"github.com/friendsincode/muninn_traffic/internal/selector"
	"github.com/friendsincode/muninn_traffic/internal/storage"
	"github.com/friendsincode/muninn_traffic/internal/telemetry"
	"github.com/friendsincode/muninn_traffic/internal/voicetrack"
	"github.com/friendsincode/muninn_traffic/internal/webhooks"
)

// Server bundles HTTP and supporting services.
type Server struct {
	cfg        *config.Config
	logger     zerolog.Logger
	router     chi.Router
	httpServer *http.Server
	closers    []func() error

	db         *gorm.DB
	cache      *cache.Cache
	logBuffer  *logbuffer.Buffer
	bus        *events.Bus
	api        *api.API
	auditSvc   *audit.Service
	webhookSvc *webhooks.Service

	election      *leadership.Election
	autogenWorker *autogen.Worker

	bgCancel context.CancelFunc
	bgWG     sync.WaitGroup
}

// New constructs the server and wires dependencies.
func New(cfg *config.Config, logBuf *logbuffer.Buffer, logger zerolog.Logger) (*Server, error) {
	for _, warn := range cfg.LegacyEnvWarnings {
		logger.Warn().Msg(warn)
	}

	router := chi.NewRouter()

	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)
	router.Use(securityHeadersMiddleware)
	router.Use(telemetry.TracingMiddleware)
	router.Use(telemetry.MetricsMiddleware)
	// Skip the request timeout for WebSocket upgrades; the event stream is
	// expected to outlive any sane deadline.
	router.Use(func(next http.Handler) http.Handler {
		timeout := middleware.Timeout(60 * time.Second)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Upgrade") == "websocket" {
				next.ServeHTTP(w, r)
				return
			}
			timeout(next).ServeHTTP(w, r)
		})
	})

	srv := &Server{
		cfg:       cfg,
		logger:    logger,
		router:    router,
		bus:       events.NewBus(),
		logBuffer: logBuf,
	}

	if err := srv.initDependencies(); err != nil {
		return nil, err
	}

	srv.configureRoutes()
	srv.startBackgroundWorkers()

	addr := fmt.Sprintf("%s:%d", cfg.HTTPBind, cfg.HTTPPort)
	srv.httpServer = &http.Server{
		Addr:    addr,
		Handler: srv.router,
		// Keep the header deadline to protect against slowloris, but no
		// full-body read deadline so large clock imports are not cut off
		// mid-request. The middleware timeout covers ordinary routes.
		ReadHeaderTimeout: 15 * time.Second,
		ReadTimeout:       0,
		WriteTimeout:      0,
		IdleTimeout:       60 * time.Second,
	}

	return srv, nil
}

func securityHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Content-Security-Policy", "default-src 'self'; frame-ancestors 'none'; base-uri 'self'")

		// Only advertise HSTS for requests served over HTTPS.
		if r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https" {
			w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) initDependencies() error {
	database, err := db.Connect(s.cfg)
	if err != nil {
		return err
	}
	if err := db.Migrate(database); err != nil {
		return err
	}
	s.db = database
	s.DeferClose(func() error { return db.Close(database) })

	cacheCfg := cache.DefaultConfig()
	cacheCfg.RedisAddr = s.cfg.RedisAddr
	cacheCfg.RedisPassword = s.cfg.RedisPassword
	cacheCfg.RedisDB = s.cfg.RedisDB
	c, err := cache.New(cacheCfg, s.logger)
	if err != nil {
		return fmt.Errorf("init cache: %w", err)
	}
	s.cache = c
	s.DeferClose(c.Close)

	store, err := storage.New(context.Background(), s.cfg, s.logger)
	if err != nil {
		return fmt.Errorf("init storage: %w", err)
	}

	// With NATS configured, cache and log events reach every instance;
	// without it the bus stays process-local.
	if s.cfg.NATSURL != "" {
		bridge, err := eventbus.NewNATSBridge(eventbus.DefaultNATSConfig(s.cfg.NATSURL), s.bus, s.logger)
		if err != nil {
			return fmt.Errorf("connect NATS: %w", err)
		}
		s.DeferClose(bridge.Close)
	}

	cat := catalog.New(database, c, s.logger)
	clocks := clock.NewService(database, c, s.logger)
	sel := selector.New(cat, time.Duration(s.cfg.GenArtistSepMin)*time.Minute, s.logger)
	resolver := clock.NewResolver(sel, s.cfg.GenPlaceholder, s.logger)
	estimator := analysis.New(cat, c, s.logger)
	vt := voicetrack.New(database, store, estimator, s.logger)
	logs := dailylog.New(database, s.cfg, clocks, resolver, cat, vt, s.bus, s.logger)

	var publisher *publish.Publisher
	if s.cfg.PlayoutBaseURL != "" {
		client, err := publish.NewHTTPPlayoutClient(s.cfg.PlayoutBaseURL, s.cfg.PlayoutAPIKey, s.cfg.PlayoutTimeout)
		if err != nil {
			return fmt.Errorf("init playout client: %w", err)
		}
		converter := publish.NewConverter(cat, vt, s.logger)
		publisher = publish.NewPublisher(database, converter, client, s.bus, s.logger)
	} else {
		s.logger.Warn().Msg("playout base URL not set, publish endpoints disabled")
	}

	stats := analytics.NewService(database, s.logger)
	s.auditSvc = audit.NewService(database, s.bus, s.logger)
	s.webhookSvc = webhooks.NewService(database, s.bus, s.logger)

	s.api = api.New(database, []byte(s.cfg.JWTSigningKey), logs, clocks, vt, publisher, stats, s.auditSvc, s.bus, s.logBuffer, s.logger)
	s.api.SetWebhookAPI(api.NewWebhookAPI(s.api, s.webhookSvc))
	s.api.SetIntegrity(integrity.NewService(database, s.logger))

	if s.cfg.AutogenEnabled {
		var gate autogen.LeaderGate = autogen.SoleInstance{}
		lcfg := leadership.DefaultConfig()
		lcfg.RedisAddr = s.cfg.RedisAddr
		lcfg.RedisPassword = s.cfg.RedisPassword
		lcfg.RedisDB = s.cfg.RedisDB
		if s.cfg.InstanceID != "" {
			lcfg.InstanceID = s.cfg.InstanceID
		}
		election, err := leadership.New(lcfg, s.logger)
		if err != nil {
			// A lone instance still gets its nightly run without Redis.
			// Multi-instance deployments need the election, otherwise every
			// node generates the same days.
			s.logger.Warn().Err(err).Msg("leader election unavailable, auto-generation runs ungated")
		} else {
			s.election = election
			s.DeferClose(election.Stop)
			gate = election
		}
		s.autogenWorker = autogen.New(database, logs, gate, s.cfg.AutogenHour, s.cfg.AutogenDaysAhead, s.logger)
	}

	return nil
}

// HTTPServer exposes the configured http.Server for lifecycle control.
func (s *Server) HTTPServer() *http.Server {
	return s.httpServer
}

// LogBuffer returns the server's log buffer for attaching to zerolog.
func (s *Server) LogBuffer() *logbuffer.Buffer {
	return s.logBuffer
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

func (s *Server) startBackgroundWorkers() {
	ctx, cancel := context.WithCancel(context.Background())
	s.bgCancel = cancel

	// Audit writer drains its queue off the request path.
	s.bgWG.Add(1)
	go func() {
		defer s.bgWG.Done()
		s.auditSvc.Start(ctx)
	}()

	// Webhook dispatcher delivers bus events to subscribed endpoints.
	s.bgWG.Add(1)
	go func() {
		defer s.bgWG.Done()
		s.webhookSvc.Start(ctx)
	}()

	// Database pool metrics sampler.
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

	s.bgWG.Add(1)
	go func() {
		defer s.bgWG.Done()
		s.runCacheInvalidationListener(ctx)
	}()

	// Nightly auto-generation keeps upcoming air dates filled. The election
	// keeps the lease renewed in the background; the worker asks it before
	// every pass.
	if s.election != nil {
		s.election.Start(ctx)
	}
	if s.autogenWorker != nil {
		s.bgWG.Add(1)
		go func() {
			defer s.bgWG.Done()
			_ = s.autogenWorker.Run(ctx)
		}()
	}
}

// runCacheInvalidationListener subscribes to cache events and drops the
// affected Redis keys. With the NATS bridge attached these events arrive
// from every instance, which is what keeps a multi-node cache coherent.
func (s *Server) runCacheInvalidationListener(ctx context.Context) {
	stationCreated := s.bus.Subscribe(events.EventStationCreated)
	stationUpdated := s.bus.Subscribe(events.EventStationUpdated)
	stationDeleted := s.bus.Subscribe(events.EventStationDeleted)
	contentUpdated := s.bus.Subscribe(events.EventContentUpdated)
	contentDeleted := s.bus.Subscribe(events.EventContentDeleted)
	campaignUpdated := s.bus.Subscribe(events.EventCampaignUpdated)
	clockUpdated := s.bus.Subscribe(events.EventClockUpdated)
	clockDeleted := s.bus.Subscribe(events.EventClockDeleted)

	defer func() {
		s.bus.Unsubscribe(events.EventStationCreated, stationCreated)
		s.bus.Unsubscribe(events.EventStationUpdated, stationUpdated)
		s.bus.Unsubscribe(events.EventStationDeleted, stationDeleted)
		s.bus.Unsubscribe(events.EventContentUpdated, contentUpdated)
		s.bus.Unsubscribe(events.EventContentDeleted, contentDeleted)
		s.bus.Unsubscribe(events.EventCampaignUpdated, campaignUpdated)
		s.bus.Unsubscribe(events.EventClockUpdated, clockUpdated)
		s.bus.Unsubscribe(events.EventClockDeleted, clockDeleted)
	}()

	s.logger.Info().Msg("cache invalidation listener started")

	stationID := func(p events.Payload) string {
		id, _ := p["station_id"].(string)
		return id
	}

	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("cache invalidation listener stopped")
			return

		case payload := <-stationCreated:
			s.cache.InvalidateStationList(ctx)
			if id := stationID(payload); id != "" {
				s.cache.InvalidateStation(ctx, id)
			}

		case payload := <-stationUpdated:
			s.cache.InvalidateStationList(ctx)
			if id := stationID(payload); id != "" {
				s.cache.InvalidateStation(ctx, id)
			}

		case payload := <-stationDeleted:
			s.cache.InvalidateStationList(ctx)
			if id := stationID(payload); id != "" {
				s.cache.InvalidateStation(ctx, id)
			}

		case payload := <-contentUpdated:
			if id := stationID(payload); id != "" {
				s.cache.InvalidateContent(ctx, id)
				// Duration or file changes shift the ramp estimates too.
				s.cache.InvalidateRamps(ctx, id)
			}

		case payload := <-contentDeleted:
			if id := stationID(payload); id != "" {
				s.cache.InvalidateContent(ctx, id)
				s.cache.InvalidateRamps(ctx, id)
			}

		case payload := <-campaignUpdated:
			if id := stationID(payload); id != "" {
				s.cache.InvalidateCampaigns(ctx, id)
			}

		case payload := <-clockUpdated:
			if id := stationID(payload); id != "" {
				s.cache.InvalidateClocks(ctx, id)
			}

		case payload := <-clockDeleted:
			if id := stationID(payload); id != "" {
				s.cache.InvalidateClocks(ctx, id)
			}
		}
	}
}

func (s *Server) stopBackgroundWorkers() {
	if s.bgCancel == nil {
		return
	}
	s.bgCancel()
	s.bgWG.Wait()
	s.bgCancel = nil
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
