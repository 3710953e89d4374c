package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/adfyer/apiserver/config"
	"github.com/adfyer/apiserver/internal/auth"
	"github.com/adfyer/apiserver/internal/db"
	"github.com/adfyer/apiserver/internal/handlers"
	"github.com/adfyer/apiserver/internal/logging"
	"github.com/adfyer/apiserver/internal/mq"
	"github.com/adfyer/apiserver/internal/notify"
	"github.com/adfyer/apiserver/internal/services"
	"github.com/adfyer/apiserver/internal/store"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/samber/oops"
)

type closer func(ctx context.Context) error

// Server wraps the HTTP server and router.
type Server struct {
	httpServer *http.Server
	router     *chi.Mux
	registry   *prometheus.Registry
	dispatcher *notify.Dispatcher
	logger     *slog.Logger
	closers    []closer
}

// New opens the configured store and notification backend and constructs a
// Server serving the account API.
func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, oops.Code("CONFIG_INVALID").Wrap(err)
	}
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		registry: prometheus.NewRegistry(),
		logger:   logger,
	}
	s.registry.MustRegister(collectors.NewGoCollector())
	s.registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	repo, err := s.openStore(ctx, cfg)
	if err != nil {
		s.close(ctx)
		return nil, err
	}

	sender, err := s.openSender(ctx, cfg)
	if err != nil {
		s.close(ctx)
		return nil, err
	}

	codec, err := auth.NewTokenCodec([]byte(cfg.JWTSecret), cfg.SessionTTL)
	if err != nil {
		s.close(ctx)
		return nil, err
	}

	s.dispatcher = notify.NewDispatcher(sender, notify.DispatcherOptions{
		Timeout: cfg.Notify.Timeout,
		Metrics: notify.NewMetrics(s.registry),
		OnFailure: func(msg notify.Message, err error) {
			logging.LogError(logger, "notification delivery failed", err, "to", msg.To, "subject", msg.Subject)
		},
	})

	accounts, err := services.NewAccountService(repo, auth.NewBcryptHasher(cfg.BcryptCost), codec, s.dispatcher, logger)
	if err != nil {
		s.close(ctx)
		return nil, err
	}

	s.router = s.routes(handlers.NewAccountHandler(accounts, codec, logger))

	port := cfg.ServerPort
	if port == 0 {
		port = 3000
	}

	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return s, nil
}

func (s *Server) routes(accounts *handlers.AccountHandler) *chi.Mux {
	router := chi.NewRouter()
	router.Use(
		middleware.RequestID,
		middleware.RealIP,
		requestLogger(s.logger, newHTTPMetrics(s.registry)),
		middleware.Recoverer,
		middleware.Timeout(60*time.Second),
	)
	router.Get("/healthz", handlers.Healthz)
	router.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	router.Route("/api", func(r chi.Router) {
		r.Get("/", handlers.Root)
		r.Route("/user", func(r chi.Router) {
			handlers.AccountRouter(r, accounts)
		})
	})
	return router
}

func (s *Server) openStore(ctx context.Context, cfg config.Config) (services.AccountRepository, error) {
	switch cfg.Store.Backend {
	case config.StorePostgres:
		conn, err := db.Open(ctx, cfg)
		if err != nil {
			return nil, err
		}
		s.closers = append(s.closers, func(context.Context) error { return conn.Close() })
		return store.NewPostgresAccountRepository(conn), nil
	case config.StoreMemory:
		s.logger.Warn("using in-memory account store; accounts are lost on restart")
		return store.NewMemoryAccountRepository(), nil
	default:
		client, coll, err := db.OpenMongo(ctx, cfg)
		if err != nil {
			return nil, err
		}
		s.closers = append(s.closers, client.Disconnect)
		repo := store.NewMongoAccountRepository(coll)
		if err := repo.EnsureIndexes(ctx); err != nil {
			return nil, err
		}
		return repo, nil
	}
}

func (s *Server) openSender(ctx context.Context, cfg config.Config) (notify.Sender, error) {
	switch cfg.Notify.Backend {
	case config.NotifyMailtrap:
		return notify.NewMailtrapSender(cfg.Mailtrap, nil), nil
	case config.NotifyRabbitMQ, config.NotifyPubSub:
		queue, err := mq.Open(ctx, cfg)
		if err != nil {
			return nil, err
		}
		s.closers = append(s.closers, func(context.Context) error { return queue.Close() })
		s.logger.Info("notifications are queued", "backend", cfg.Notify.Backend, "channel", queue.Channel())
		return notify.NewQueueSender(queue), nil
	default:
		return notify.NewLogSender(s.logger, cfg.Notify.LogBodies), nil
	}
}

// Router exposes the chi router for route registration.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Start runs the HTTP server. It returns nil after a graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("server listening", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests, waits for in-flight requests and
// notifications, and releases the store and queue connections.
func (s *Server) Shutdown(ctx context.Context) error {
	var errs []error
	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			errs = append(errs, oops.With("operation", "shutdown_http_server").Wrap(err))
		}
	}

	if s.dispatcher != nil {
		done := make(chan struct{})
		go func() {
			s.dispatcher.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-ctx.Done():
			errs = append(errs, oops.With("operation", "drain_notifications").Wrap(ctx.Err()))
		}
	}

	if err := s.close(ctx); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (s *Server) close(ctx context.Context) error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	s.closers = nil
	return errors.Join(errs...)
}
