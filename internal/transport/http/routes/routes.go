package routes

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/Maryam-Bagia/StudyNest/internal/infra/config"
	"github.com/Maryam-Bagia/StudyNest/internal/transport/http/handlers"
	"github.com/Maryam-Bagia/StudyNest/internal/transport/http/middleware"
	"github.com/Maryam-Bagia/StudyNest/internal/usecase"
)

// Dependencies encapsulates the objects required to register routes.
type Dependencies struct {
	Config      *config.AppConfig
	Logger      *zap.Logger
	Session     *usecase.SessionController
	Navigation  *usecase.RouteCoordinator
	Events      *handlers.EventsHandler
	HTTPMetrics *middleware.HTTPMetrics
	Gatherer    prometheus.Gatherer
	Store       StoreChecker
}

// StoreChecker exposes readiness behaviour for the device state store.
type StoreChecker interface {
	HealthCheck(ctx context.Context) error
}

// Register configures the Gin engine with routes and middleware.
func Register(deps Dependencies) *gin.Engine {
	if deps.Config.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	origins := middleware.NewOriginPolicy(deps.Config.App.AllowedOrigins)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.EnrichContext())
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(deps.Logger))
	r.Use(deps.HTTPMetrics.Handler())
	r.Use(middleware.CORS(origins))

	healthOptions := make([]handlers.HealthOption, 0, 1)
	if deps.Store != nil {
		healthOptions = append(healthOptions, handlers.WithReadinessCheck("store", deps.Store.HealthCheck))
	}
	healthHandler := handlers.NewHealthHandler(healthOptions...)

	r.GET("/healthz", healthHandler.Status)
	r.GET("/readyz", healthHandler.Readiness)

	var metricsHandler http.Handler = promhttp.Handler()
	if deps.Gatherer != nil {
		metricsHandler = promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{})
	}
	r.GET("/metrics", gin.WrapH(metricsHandler))

	api := r.Group("/api/v1")
	{
		if deps.Session != nil {
			sessionHandler := handlers.NewSessionHandler(deps.Session)
			sessionHandler.RegisterRoutes(api.Group("/session"))
		}

		if deps.Navigation != nil {
			navigationHandler := handlers.NewNavigationHandler(deps.Navigation)
			navigationHandler.RegisterRoutes(api.Group("/navigation"))
		}

		events := deps.Events
		if events == nil && deps.Session != nil && deps.Navigation != nil {
			events = handlers.NewEventsHandler(deps.Session, deps.Navigation, origins.Allowed, deps.Logger)
		}
		if events != nil {
			api.GET("/events", events.Stream)
		}
	}

	return r
}
