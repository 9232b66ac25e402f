package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Maryam-Bagia/StudyNest/internal/core/port"
	"github.com/Maryam-Bagia/StudyNest/internal/infra/config"
	"github.com/Maryam-Bagia/StudyNest/internal/infra/database"
	"github.com/Maryam-Bagia/StudyNest/internal/infra/iam"
	kafkainfra "github.com/Maryam-Bagia/StudyNest/internal/infra/kafka"
	"github.com/Maryam-Bagia/StudyNest/internal/infra/logger"
	redisinfra "github.com/Maryam-Bagia/StudyNest/internal/infra/redis"
	"github.com/Maryam-Bagia/StudyNest/internal/infra/telemetry"
	memoryrepo "github.com/Maryam-Bagia/StudyNest/internal/repository/memory"
	postgresrepo "github.com/Maryam-Bagia/StudyNest/internal/repository/postgres"
	redisrepo "github.com/Maryam-Bagia/StudyNest/internal/repository/redis"
	"github.com/Maryam-Bagia/StudyNest/internal/transport/http/handlers"
	"github.com/Maryam-Bagia/StudyNest/internal/transport/http/middleware"
	"github.com/Maryam-Bagia/StudyNest/internal/transport/http/routes"
	"github.com/Maryam-Bagia/StudyNest/internal/usecase"
)

const shutdownTimeout = 10 * time.Second

type Application struct {
	cfg      *config.AppConfig
	engine   *gin.Engine
	logger   *zap.Logger
	tracing  *telemetry.TracerProvider
	closers  []func()
	deviceID string

	controller  *usecase.SessionController
	coordinator *usecase.RouteCoordinator
	journal     *usecase.BackStackJournal
	audit       *usecase.SessionAudit
	events      *handlers.EventsHandler
}

func New(ctx context.Context, cfg *config.AppConfig) (*Application, error) {
	deviceID := cfg.App.DeviceID
	generatedDeviceID := deviceID == ""
	if generatedDeviceID {
		deviceID = uuid.NewString()
	}

	log, err := logger.New(cfg.App.Env, cfg.App.Name, deviceID)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	if generatedDeviceID {
		log.Warn("app.device_id not set, remembered state will not survive a restart")
	}

	a := &Application{cfg: cfg, logger: log, deviceID: deviceID}

	tracer := telemetry.Noop()
	if cfg.Telemetry.TracingEnabled {
		tp, err := telemetry.NewTracerProvider(ctx, cfg.Telemetry, cfg.App.Env, log)
		if err != nil {
			log.Warn("tracing disabled", zap.Error(err))
		} else {
			a.tracing = tp
			tracer = tp.Tracer("studynest")
		}
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	sessionMetrics, err := telemetry.NewSessionMetrics(telemetry.MetricsOptions{Registerer: registry})
	if err != nil {
		return nil, fmt.Errorf("init session metrics: %w", err)
	}
	httpMetrics, err := middleware.NewHTTPMetrics(middleware.HTTPMetricsOptions{Registerer: registry})
	if err != nil {
		return nil, fmt.Errorf("init http metrics: %w", err)
	}

	store, err := a.openStore(ctx)
	if err != nil {
		a.close()
		return nil, err
	}

	publisher := a.openPublisher()

	backend := iam.NewClient(cfg.IAM, deviceID, store, log).WithTracer(tracer)

	a.controller = usecase.NewSessionController(backend, log).
		WithMetrics(sessionMetrics).
		WithTimeout(cfg.Session.BackendTimeout).
		WithTracer(tracer)
	a.coordinator = usecase.NewRouteCoordinator(log).WithMetrics(sessionMetrics)
	a.journal = usecase.NewBackStackJournal(store, log)
	a.audit = usecase.NewSessionAudit(publisher, deviceID, log)

	origins := middleware.NewOriginPolicy(cfg.App.AllowedOrigins)
	a.events = handlers.NewEventsHandler(a.controller, a.coordinator, origins.Allowed, log)

	a.engine = routes.Register(routes.Dependencies{
		Config:      cfg,
		Logger:      log,
		Session:     a.controller,
		Navigation:  a.coordinator,
		Events:      a.events,
		HTTPMetrics: httpMetrics,
		Gatherer:    registry,
		Store:       store,
	})

	return a, nil
}

func (a *Application) openStore(ctx context.Context) (port.DeviceStateStore, error) {
	cfg := a.cfg
	switch cfg.Store.Driver {
	case config.StoreDriverRedis:
		client, err := redisinfra.NewClient(ctx, cfg.Redis, a.logger)
		if err != nil {
			return nil, fmt.Errorf("init redis: %w", err)
		}
		a.closers = append(a.closers, func() { _ = client.Close() })
		return redisrepo.NewStateStore(client.Client(), cfg.Redis.KeyPrefix, a.deviceID, cfg.Redis.TTL), nil

	case config.StoreDriverPostgres:
		pool, err := database.NewPostgresPool(ctx, cfg.Postgres, a.logger)
		if err != nil {
			return nil, fmt.Errorf("init postgres: %w", err)
		}
		a.closers = append(a.closers, pool.Close)
		schema := database.SchemaName(cfg.Postgres)
		if err := database.EnsureSchema(ctx, pool, schema); err != nil {
			return nil, fmt.Errorf("init postgres schema: %w", err)
		}
		return postgresrepo.NewStateStore(pool, schema, a.deviceID), nil

	default:
		a.logger.Info("using in-memory device state store")
		return memoryrepo.NewStateStore(), nil
	}
}

func (a *Application) openPublisher() port.EventPublisher {
	cfg := a.cfg
	if !cfg.Kafka.Enabled || len(cfg.Kafka.Brokers) == 0 {
		a.logger.Info("kafka disabled, session events are only logged")
		return kafkainfra.NewStubPublisher(a.logger)
	}

	producer, err := kafkainfra.NewProducer(cfg.Kafka, a.logger)
	if err != nil {
		a.logger.Warn("failed to init kafka producer, using stub publisher", zap.Error(err))
		return kafkainfra.NewStubPublisher(a.logger)
	}
	a.closers = append(a.closers, func() { _ = producer.Close() })
	a.logger.Info("kafka event publisher initialized", zap.Strings("brokers", cfg.Kafka.Brokers))
	return kafkainfra.NewEventPublisher(producer, cfg.App, a.logger)
}

// start restores navigation, wires the observers and resumes the session.
func (a *Application) start(ctx context.Context) {
	if entries, err := a.journal.Load(ctx); err != nil {
		a.logger.Warn("could not load persisted back stack", zap.Error(err))
	} else if len(entries) > 0 {
		a.coordinator.Restore(entries)
	}

	a.coordinator.Subscribe(a.journal.Record)
	a.controller.Subscribe(a.audit.Observe)
	a.coordinator.Bind(a.controller)

	if !a.cfg.Session.RestoreOnStart {
		return
	}
	if err := a.controller.Resume(ctx); err != nil {
		a.logger.Warn("session resume failed", zap.Error(err))
	}
	a.logger.Info("session ready",
		zap.Stringer("state", a.controller.State().Kind()),
		zap.String("route", a.coordinator.Current().String()),
	)
}

func (a *Application) Run(ctx context.Context) error {
	defer func() {
		_ = a.logger.Sync()
	}()
	defer a.close()

	a.start(ctx)

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", a.cfg.App.Host, a.cfg.App.Port),
		Handler:           a.engine,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	workersCtx, stopWorkers := context.WithCancel(context.Background())
	defer stopWorkers()

	workers, workersCtx := errgroup.WithContext(workersCtx)
	workers.Go(func() error { return a.journal.Run(workersCtx) })
	workers.Go(func() error { return a.audit.Run(workersCtx) })

	a.logger.Info("starting StudyNest session service",
		zap.String("env", a.cfg.App.Env),
		zap.String("address", srv.Addr),
	)

	serverErrCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrCh <- fmt.Errorf("run server: %w", err)
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-serverErrCh:
	}

	a.events.Close()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil && runErr == nil {
		runErr = fmt.Errorf("shutdown server: %w", err)
	}

	a.controller.Shutdown()
	stopWorkers()
	if err := workers.Wait(); err != nil {
		a.logger.Warn("background worker stopped with error", zap.Error(err))
	}

	if a.tracing != nil {
		if err := a.tracing.Shutdown(shutdownCtx); err != nil {
			a.logger.Warn("tracer shutdown failed", zap.Error(err))
		}
	}

	return runErr
}

// close releases resources in reverse order of acquisition.
func (a *Application) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
