package main

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/go-go-golems/wsbind/pkg/binder"
	"github.com/go-go-golems/wsbind/pkg/config"
	"github.com/go-go-golems/wsbind/pkg/metrics"
	"github.com/go-go-golems/wsbind/pkg/push"
	"github.com/go-go-golems/wsbind/pkg/redisstream"
	"github.com/go-go-golems/wsbind/pkg/session"
	"github.com/go-go-golems/wsbind/pkg/transport/wsgorilla"
)

type bindServer = binder.Server[*wsgorilla.Conn, *session.Session]

// Server wires the binder, the websocket transport, the session store and
// the optional push relay behind one HTTP listener.
type Server struct {
	cfg    *config.Config
	logger zerolog.Logger

	sessions *session.Sessions
	binder   *bindServer
	ws       *wsgorilla.Handler
	bus      *redisstream.Bus
	relay    *push.Relay[*wsgorilla.Conn]
	metrics  *prometheus.Registry

	router  http.Handler
	httpSrv *http.Server
}

func NewServer(cfg *config.Config, logger zerolog.Logger) (*Server, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid config")
	}
	policy, err := cfg.RebindPolicy()
	if err != nil {
		return nil, err
	}

	store, err := openStore(cfg)
	if err != nil {
		return nil, err
	}
	sessions := session.NewSessions(session.SessionsOptions{Store: store, Logger: logger})
	sessions.SetEvictionConfig(cfg.Sessions.IdleTimeout, cfg.Sessions.EvictInterval)

	s := &Server{
		cfg:      cfg,
		logger:   logger,
		sessions: sessions,
		metrics:  prometheus.NewRegistry(),
	}

	// gauges are only read on scrape, after construction is complete
	collector := metrics.NewCollector(s.metrics,
		func() int { return s.ws.Pool().Count() },
		func() int { return s.binder.Bound() },
	)
	s.metrics.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	s.binder, err = binder.New[*wsgorilla.Conn, *session.Session](
		newDeviceHandler[*wsgorilla.Conn](sessions, logger),
		sessions,
		binder.WithLogger[*wsgorilla.Conn, *session.Session](logger),
		binder.WithObserver[*wsgorilla.Conn, *session.Session](collector),
		binder.WithRebindPolicy[*wsgorilla.Conn, *session.Session](policy),
		binder.WithEvictHandler[*wsgorilla.Conn, *session.Session](func(c *wsgorilla.Conn, sess *session.Session) {
			if err := c.CloseWith(wsgorilla.CloseSessionEvicted, "session bound to another connection"); err != nil {
				logger.Debug().Err(err).Str("conn", c.String()).Msg("closing evicted connection")
			}
		}),
	)
	if err != nil {
		_ = sessions.Close()
		return nil, err
	}
	sessions.SetBusyFunc(func(sess *session.Session) bool {
		_, bound := s.binder.LookupConnection(sess)
		return bound
	})

	s.ws, err = wsgorilla.NewHandler(s.binder,
		wsgorilla.WithLogger(logger),
		wsgorilla.WithReadLimit(cfg.Server.ReadLimit),
		wsgorilla.WithCheckOrigin(cfg.Server.AllowedOrigins),
	)
	if err != nil {
		_ = sessions.Close()
		return nil, err
	}

	if cfg.Push.Enabled {
		s.bus, err = redisstream.BuildBus(cfg.Redis, nil, logger)
		if err != nil {
			_ = sessions.Close()
			return nil, errors.Wrap(err, "build push bus")
		}
		s.relay, err = push.NewRelay[*wsgorilla.Conn](s.bus.Subscriber, s.binder, cfg.Push.Topic, logger)
		if err != nil {
			_ = s.Close()
			return nil, err
		}
	}

	s.router = s.routes()
	s.httpSrv = &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s, nil
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok\n"))
	})
	if s.cfg.Server.MetricsPath != "" {
		r.Method(http.MethodGet, s.cfg.Server.MetricsPath, metrics.Handler(s.metrics))
	}
	r.Method(http.MethodGet, s.cfg.Server.WSPath, s.ws)
	return r
}

// Handler returns the HTTP routes, for tests and embedding.
func (s *Server) Handler() http.Handler { return s.router }

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	if ctx == nil {
		return errors.New("ctx is nil")
	}
	eg, egCtx := errgroup.WithContext(ctx)
	srvCtx, srvCancel := context.WithCancel(egCtx)
	defer srvCancel()

	s.sessions.StartEvictionLoop(srvCtx)

	if s.relay != nil {
		if s.bus.Client != nil {
			if err := redisstream.EnsureGroupAtTail(srvCtx, s.bus.Client, s.cfg.Push.Topic, s.cfg.Redis.Group, s.logger); err != nil {
				_ = s.Close()
				return err
			}
		}
		eg.Go(func() error { return s.relay.Run(srvCtx) })
	}

	eg.Go(func() error {
		<-srvCtx.Done()
		s.logger.Info().Msg("shutting down")
		s.ws.Pool().CloseAll(websocket.CloseGoingAway, "server shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := s.httpSrv.Shutdown(shutdownCtx); err != nil {
			s.logger.Error().Err(err).Msg("server shutdown error")
			return err
		}
		return nil
	})

	eg.Go(func() error {
		s.logger.Info().Str("addr", s.httpSrv.Addr).Str("ws_path", s.cfg.Server.WSPath).Msg("starting wsbind server")
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error().Err(err).Msg("server listen error")
			srvCancel()
			return err
		}
		return nil
	})

	err := eg.Wait()
	if cerr := s.Close(); cerr != nil && err == nil {
		err = cerr
	}
	s.logger.Info().Msg("server shutdown complete")
	return err
}

// Close releases the bus and the session store.
func (s *Server) Close() error {
	var first error
	if s.bus != nil {
		if err := s.bus.Close(); err != nil {
			s.logger.Error().Err(err).Msg("push bus close error")
			first = err
		}
		s.bus = nil
	}
	if s.sessions != nil {
		if err := s.sessions.Close(); err != nil {
			s.logger.Error().Err(err).Msg("session store close error")
			if first == nil {
				first = err
			}
		}
		s.sessions = nil
	}
	return first
}

func openStore(cfg *config.Config) (session.Store, error) {
	switch cfg.Sessions.Store {
	case config.StoreSQLite:
		dsn, err := session.SQLiteDSNForFile(cfg.Sessions.SQLitePath)
		if err != nil {
			return nil, err
		}
		return session.NewSQLiteStore(dsn)
	case config.StoreRedis:
		client := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr})
		return session.NewRedisStore(client, session.RedisStoreOptions{
			Prefix: cfg.Sessions.RedisPrefix,
			TTL:    cfg.Sessions.TTL,
		})
	default:
		return session.NewMemoryStore(), nil
	}
}
