package transportgrpc

import (
	"context"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

const (
	defaultHealthInterval = 10 * time.Second
	healthCheckTimeout    = 2 * time.Second
)

// DependencyCheck probes one backing dependency (store, redis).
type DependencyCheck struct {
	Name  string
	Probe func(ctx context.Context) error
}

// HealthMonitor keeps the overall ("") status of a health.Server in line with the
// dependency probes.
type HealthMonitor struct {
	server   *health.Server
	checks   []DependencyCheck
	interval time.Duration
	logger   *zap.Logger
	last     healthpb.HealthCheckResponse_ServingStatus
}

// NewHealthMonitor constructs a HealthMonitor. A non-positive interval uses the default.
func NewHealthMonitor(server *health.Server, interval time.Duration, logger *zap.Logger, checks ...DependencyCheck) *HealthMonitor {
	if interval <= 0 {
		interval = defaultHealthInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HealthMonitor{
		server:   server,
		checks:   checks,
		interval: interval,
		logger:   logger,
		last:     healthpb.HealthCheckResponse_UNKNOWN,
	}
}

// Evaluate runs every probe once and publishes the resulting status.
func (m *HealthMonitor) Evaluate(ctx context.Context) healthpb.HealthCheckResponse_ServingStatus {
	status := healthpb.HealthCheckResponse_SERVING
	for _, check := range m.checks {
		probeCtx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
		err := check.Probe(probeCtx)
		cancel()
		if err != nil {
			m.logger.Warn("health probe failed", zap.String("dependency", check.Name), zap.Error(err))
			status = healthpb.HealthCheckResponse_NOT_SERVING
		}
	}

	if status != m.last {
		m.logger.Info("serving status changed", zap.String("status", status.String()))
		m.last = status
	}
	m.server.SetServingStatus("", status)
	return status
}

// Run evaluates immediately and then on every tick until ctx is done, after which the health
// server reports NOT_SERVING for every service.
func (m *HealthMonitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.Evaluate(ctx)
	for {
		select {
		case <-ctx.Done():
			m.server.Shutdown()
			return
		case <-ticker.C:
			m.Evaluate(ctx)
		}
	}
}
