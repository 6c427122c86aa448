package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/arklim/deadline-jail/internal/infra/config"
	"github.com/arklim/deadline-jail/internal/transport/http/handlers"
	"github.com/arklim/deadline-jail/internal/transport/http/middleware"
	"github.com/arklim/deadline-jail/internal/usecase"
)

// ServiceSet groups the services the HTTP layer depends on.
type ServiceSet struct {
	Credentials  *usecase.CredentialService
	Tasks        *usecase.TaskService
	Lifecycle    *usecase.LifecycleController
	Consequences *usecase.ConsequenceService
	History      *usecase.HistoryService
}

// Dependencies encapsulates the objects required to register routes.
type Dependencies struct {
	Config      *config.AppConfig
	Logger      *zap.Logger
	RateLimiter *middleware.RateLimiter
	HTTPMetrics *middleware.HTTPMetrics
	Gatherer    prometheus.Gatherer // backs /metrics; nil serves the default registry
	Services    ServiceSet
	KeySet      handlers.KeySetSource
	Database    DatabaseChecker
	Cache       CacheChecker
}

// DatabaseChecker exposes readiness behaviour for the task store.
type DatabaseChecker interface {
	Ping(ctx context.Context) error
}

// CacheChecker exposes readiness behaviour for cache backends.
type CacheChecker interface {
	HealthCheck(ctx context.Context) error
}

// Register configures the Gin engine with routes and middleware.
func Register(deps Dependencies) *gin.Engine {
	cfg := deps.Config
	if cfg == nil {
		cfg = &config.AppConfig{}
	}
	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.EnrichContext())
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(deps.Logger))
	r.Use(middleware.CORS(cfg.App.AllowedOrigins))
	r.Use(deps.HTTPMetrics.Handler())

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, handlers.NewErrorResponse(c, "route not found"))
	})

	healthOptions := make([]handlers.HealthOption, 0, 2)
	if deps.Database != nil {
		healthOptions = append(healthOptions, handlers.WithReadinessCheck("database", deps.Database.Ping))
	}
	if deps.Cache != nil {
		healthOptions = append(healthOptions, handlers.WithReadinessCheck("redis", deps.Cache.HealthCheck))
	}
	healthHandler := handlers.NewHealthHandler(healthOptions...)

	r.GET("/healthz", healthHandler.Status)
	r.GET("/readyz", healthHandler.Readiness)
	r.GET("/metrics", gin.WrapH(metricsHandler(deps.Gatherer)))
	r.GET("/.well-known/jwks.json", handlers.NewJWKSHandler(deps.KeySet).Keys)

	services := deps.Services
	if services.Credentials == nil {
		return r
	}

	api := r.Group("/api/v1")
	{
		authHandler := handlers.NewAuthHandler(services.Credentials)
		authHandler.RegisterRoutes(api.Group("/auth"), buildCredentialLimiters(deps))

		protected := api.Group("")
		protected.Use(middleware.RequireAuth(services.Credentials))

		authHandler.RegisterUserRoutes(protected.Group("/user"))

		if services.Tasks != nil && services.Lifecycle != nil {
			handlers.NewTaskHandler(services.Tasks, services.Lifecycle).RegisterRoutes(protected.Group("/tasks"))
		}
		if services.Consequences != nil {
			handlers.NewConsequenceHandler(services.Consequences).RegisterRoutes(protected.Group("/consequences"))
		}
		if services.History != nil && services.Consequences != nil {
			handlers.NewHistoryHandler(services.History, services.Consequences).RegisterRoutes(protected.Group("/history"))
		}
	}

	return r
}

func metricsHandler(gatherer prometheus.Gatherer) http.Handler {
	if gatherer == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// buildCredentialLimiters gives login and register separate per-IP budgets.
func buildCredentialLimiters(deps Dependencies) handlers.CredentialMiddlewares {
	var mw handlers.CredentialMiddlewares
	if deps.RateLimiter == nil || deps.Config == nil {
		return mw
	}

	window := deps.Config.RateLimit.WindowDuration
	if window <= 0 {
		window = time.Minute
	}

	if limit := deps.Config.RateLimit.LoginMaxAttempts; limit > 0 {
		mw.Login = append(mw.Login, deps.RateLimiter.RateLimit(middleware.RateLimitRule{
			Name:       "auth_login_ip",
			Limit:      limit,
			Window:     window,
			Identifier: middleware.ClientIPIdentifier(),
		}))
	}
	if limit := deps.Config.RateLimit.RegisterMaxAttempts; limit > 0 {
		mw.Register = append(mw.Register, deps.RateLimiter.RateLimit(middleware.RateLimitRule{
			Name:       "auth_register_ip",
			Limit:      limit,
			Window:     window,
			Identifier: middleware.ClientIPIdentifier(),
		}))
	}

	return mw
}
