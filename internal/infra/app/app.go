package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"

	"github.com/arklim/deadline-jail/internal/core/port"
	"github.com/arklim/deadline-jail/internal/infra/config"
	kafkainfra "github.com/arklim/deadline-jail/internal/infra/kafka"
	"github.com/arklim/deadline-jail/internal/infra/logger"
	redisinfra "github.com/arklim/deadline-jail/internal/infra/redis"
	"github.com/arklim/deadline-jail/internal/infra/security"
	"github.com/arklim/deadline-jail/internal/infra/telemetry"
	"github.com/arklim/deadline-jail/internal/repository/memory"
	redisrepo "github.com/arklim/deadline-jail/internal/repository/redis"
	transportgrpc "github.com/arklim/deadline-jail/internal/transport/grpc"
	grpcinterceptors "github.com/arklim/deadline-jail/internal/transport/grpc/interceptors"
	"github.com/arklim/deadline-jail/internal/transport/http/middleware"
	"github.com/arklim/deadline-jail/internal/transport/http/routes"
	"github.com/arklim/deadline-jail/internal/usecase"
)

const tracerName = "github.com/arklim/deadline-jail/internal/usecase"

type Application struct {
	cfg        *config.AppConfig
	engine     *gin.Engine
	logger     *zap.Logger
	store      *storage
	redis      *redisinfra.Client
	producer   *kafkainfra.Producer
	tracing    *telemetry.TracerProvider
	grpcServer *grpc.Server
	grpcAddr   string
	monitor    *transportgrpc.HealthMonitor
}

func New(ctx context.Context, cfg *config.AppConfig) (*Application, error) {
	log, err := logger.New(cfg.App.Env)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	a := &Application{cfg: cfg, logger: log}
	if err := a.init(ctx); err != nil {
		a.release(context.Background())
		return nil, err
	}
	return a, nil
}

func (a *Application) init(ctx context.Context) error {
	cfg, log := a.cfg, a.logger

	if cfg.Telemetry.TracingEnabled {
		tp, err := telemetry.NewTracerProvider(ctx, cfg.Telemetry, log)
		if err != nil {
			return fmt.Errorf("init telemetry: %w", err)
		}
		a.tracing = tp
	}

	store, err := openStorage(ctx, cfg, log)
	if err != nil {
		return err
	}
	a.store = store

	var rateLimitStore port.RateLimitStore
	if cfg.Redis.Enabled {
		redisClient, err := redisinfra.NewClient(ctx, cfg.Redis, log)
		if err != nil {
			return fmt.Errorf("init redis: %w", err)
		}
		a.redis = redisClient
		rateLimitStore = redisrepo.NewRateLimitRepository(redisClient.Client(), redisrepo.SlidingWindowConfig{
			KeyPrefix: redisClient.KeyPrefix() + ":rate-limit",
			TTL:       cfg.RateLimit.WindowDuration * 2,
		})
	} else {
		log.Info("redis disabled, rate limits are kept in process memory")
		rateLimitStore = memory.NewRateLimitStore()
	}

	var eventPublisher port.EventPublisher
	if len(cfg.Kafka.Brokers) > 0 {
		producer, err := kafkainfra.NewProducer(cfg.Kafka, log)
		if err != nil {
			log.Warn("failed to init kafka producer, using stub publisher", zap.Error(err))
			eventPublisher = kafkainfra.NewStubPublisher(log)
		} else {
			a.producer = producer
			eventPublisher = kafkainfra.NewEventPublisher(producer, cfg.App, log)
			log.Info("kafka event publisher initialized", zap.Strings("brokers", cfg.Kafka.Brokers))
		}
	} else {
		log.Info("kafka brokers not configured, using stub publisher")
		eventPublisher = kafkainfra.NewStubPublisher(log)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	domainMetrics, err := telemetry.NewDomainMetrics(telemetry.DomainMetricsOptions{Registerer: registry})
	if err != nil {
		return fmt.Errorf("init domain metrics: %w", err)
	}
	httpMetrics, err := middleware.NewHTTPMetrics(middleware.HTTPMetricsOptions{Registerer: registry})
	if err != nil {
		return fmt.Errorf("init http metrics: %w", err)
	}

	keyProvider, err := security.NewKeyProvider(cfg.App.Env, cfg.JWT.KeyDirectory)
	if err != nil {
		return fmt.Errorf("init key provider: %w", err)
	}
	tokens := security.NewJWTManager(keyProvider, cfg.App.Name, cfg.JWT.AccessTokenTTL)

	hasher, err := security.NewArgon2Hasher(port.Argon2Params{
		Memory:      cfg.Argon2.Memory,
		Iterations:  cfg.Argon2.Iterations,
		Parallelism: cfg.Argon2.Parallelism,
		SaltLength:  cfg.Argon2.SaltLength,
		KeyLength:   cfg.Argon2.KeyLength,
	})
	if err != nil {
		return fmt.Errorf("configure argon2: %w", err)
	}
	policy := security.NewPasswordPolicy(cfg.Password.MinLength, cfg.Password.MinZxcvbnScore)

	credentials := usecase.NewCredentialService(store.Users, hasher, policy, tokens, log).
		WithDefaultConsequences(store.Consequences).
		WithEventPublisher(eventPublisher)
	consequences := usecase.NewConsequenceService(store.Consequences, store.Executions, log).
		WithEventPublisher(eventPublisher)
	lifecycle := usecase.NewLifecycleController(store.Tasks, consequences, log).
		WithEventPublisher(eventPublisher).
		WithMetrics(domainMetrics).
		WithTracer(otel.Tracer(tracerName))
	tasks := usecase.NewTaskService(store.Tasks, consequences, lifecycle, log)
	history := usecase.NewHistoryService(store.Tasks, store.Executions)

	deps := routes.Dependencies{
		Config:      cfg,
		Logger:      log,
		RateLimiter: middleware.NewRateLimiter(rateLimitStore, log),
		HTTPMetrics: httpMetrics,
		Gatherer:    registry,
		KeySet:      tokens,
		Database:    store,
		Services: routes.ServiceSet{
			Credentials:  credentials,
			Tasks:        tasks,
			Lifecycle:    lifecycle,
			Consequences: consequences,
			History:      history,
		},
	}
	checks := []transportgrpc.DependencyCheck{{Name: "store", Probe: store.Ping}}
	if a.redis != nil {
		deps.Cache = a.redis
		checks = append(checks, transportgrpc.DependencyCheck{Name: "redis", Probe: a.redis.HealthCheck})
	}
	a.engine = routes.Register(deps)

	if cfg.GRPC.Enabled {
		grpcMetrics, err := grpcinterceptors.NewGRPCMetrics(grpcinterceptors.GRPCMetricsOptions{Registerer: registry})
		if err != nil {
			return fmt.Errorf("init grpc metrics: %w", err)
		}
		healthServer := health.NewServer()
		a.grpcServer = transportgrpc.NewServer(transportgrpc.ServerDependencies{
			Verifier: credentials,
			Health:   healthServer,
			Metrics:  grpcMetrics,
			Tracing:  grpcinterceptors.NewTracingInterceptor(grpcinterceptors.TracingOptions{SkipHealthChecks: true}),
			Logger:   log,
		})
		a.grpcAddr = net.JoinHostPort(cfg.GRPC.Host, fmt.Sprint(cfg.GRPC.Port))
		a.monitor = transportgrpc.NewHealthMonitor(healthServer, 0, log, checks...)
	}

	return nil
}

func (a *Application) Run(ctx context.Context) error {
	defer func() {
		_ = a.logger.Sync()
	}()
	defer a.release(context.Background())

	grpcErrCh := make(chan error, 1)
	if a.grpcServer != nil {
		lis, err := net.Listen("tcp", a.grpcAddr)
		if err != nil {
			return fmt.Errorf("listen grpc: %w", err)
		}
		a.logger.Info("starting gRPC server", zap.String("address", a.grpcAddr))

		monitorCtx, stopMonitor := context.WithCancel(ctx)
		defer stopMonitor()
		go a.monitor.Run(monitorCtx)

		go func() {
			if err := a.grpcServer.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
				a.logger.Error("gRPC server error", zap.Error(err))
				grpcErrCh <- fmt.Errorf("run grpc server: %w", err)
			}
		}()
		defer a.grpcServer.GracefulStop()
	}

	srv := &http.Server{
		Addr:              net.JoinHostPort(a.cfg.App.Host, fmt.Sprint(a.cfg.App.Port)),
		Handler:           a.engine,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	a.logger.Info("starting deadline jail API",
		zap.String("env", a.cfg.App.Env),
		zap.String("address", srv.Addr),
		zap.String("storage", a.cfg.Storage.Driver),
	)

	serverErrCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrCh <- fmt.Errorf("run server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown server: %w", err)
		}
		return nil
	case err := <-serverErrCh:
		return err
	case err := <-grpcErrCh:
		return err
	}
}

// release closes whatever init managed to open.
func (a *Application) release(ctx context.Context) {
	if a.producer != nil {
		if err := a.producer.Close(); err != nil {
			a.logger.Warn("close kafka producer", zap.Error(err))
		}
	}
	if a.redis != nil {
		_ = a.redis.Close()
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.logger.Warn("close storage", zap.Error(err))
		}
	}
	if a.tracing != nil {
		if err := a.tracing.Shutdown(ctx); err != nil {
			a.logger.Warn("shutdown tracing", zap.Error(err))
		}
	}
}
