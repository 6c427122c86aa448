package interceptors

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/status"
)

// GRPCMetricsOptions controls construction of gRPC metrics collectors.
type GRPCMetricsOptions struct {
	Registerer prometheus.Registerer
	Namespace  string
	Subsystem  string
	Buckets    []float64
}

// GRPCMetrics wraps Prometheus collectors for gRPC instrumentation.
type GRPCMetrics struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
	inFlight *prometheus.GaugeVec
}

// NewGRPCMetrics constructs collectors and registers them with the supplied registerer.
func NewGRPCMetrics(opts GRPCMetricsOptions) (*GRPCMetrics, error) {
	namespace := opts.Namespace
	if namespace == "" {
		namespace = "deadline_jail"
	}

	subsystem := opts.Subsystem
	if subsystem == "" {
		subsystem = "grpc"
	}

	reg := opts.Registerer
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	buckets := opts.Buckets
	if len(buckets) == 0 {
		buckets = prometheus.DefBuckets
	}

	labels := []string{"service", "method", "code"}

	requests, err := register(reg, "requests", prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "requests_total",
		Help:      "Total number of gRPC requests partitioned by service, method, and status code.",
	}, labels))
	if err != nil {
		return nil, err
	}

	duration, err := register(reg, "duration", prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "request_duration_seconds",
		Help:      "Histogram of gRPC request latencies in seconds partitioned by service, method, and status code.",
		Buckets:   buckets,
	}, labels))
	if err != nil {
		return nil, err
	}

	inFlight, err := register(reg, "inflight", prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "in_flight_requests",
		Help:      "Current number of in-flight gRPC requests partitioned by service.",
	}, []string{"service"}))
	if err != nil {
		return nil, err
	}

	return &GRPCMetrics{requests: requests, duration: duration, inFlight: inFlight}, nil
}

func register[T prometheus.Collector](reg prometheus.Registerer, name string, collector T) (T, error) {
	err := reg.Register(collector)
	if err == nil {
		return collector, nil
	}

	var already prometheus.AlreadyRegisteredError
	if !errors.As(err, &already) {
		return collector, fmt.Errorf("register gRPC %s collector: %w", name, err)
	}
	existing, ok := already.ExistingCollector.(T)
	if !ok {
		return collector, fmt.Errorf("existing gRPC %s collector has wrong type %T", name, already.ExistingCollector)
	}
	return existing, nil
}

func (m *GRPCMetrics) observe(fullMethod string, call func() error) error {
	service, method := splitFullMethod(fullMethod)
	start := time.Now()

	inflightGauge := m.inFlight.WithLabelValues(service)
	inflightGauge.Inc()
	defer inflightGauge.Dec()

	err := call()

	labels := prometheus.Labels{
		"service": service,
		"method":  method,
		"code":    status.Code(err).String(),
	}
	m.requests.With(labels).Inc()
	m.duration.With(labels).Observe(time.Since(start).Seconds())

	return err
}

// UnaryServerInterceptor returns a gRPC unary interceptor that records metrics.
func (m *GRPCMetrics) UnaryServerInterceptor() grpc.UnaryServerInterceptor {
	if m == nil {
		return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
			return handler(ctx, req)
		}
	}

	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		var resp interface{}
		err := m.observe(info.FullMethod, func() error {
			var callErr error
			resp, callErr = handler(ctx, req)
			return callErr
		})
		return resp, err
	}
}

// StreamServerInterceptor records one observation per stream, taken when the stream ends.
func (m *GRPCMetrics) StreamServerInterceptor() grpc.StreamServerInterceptor {
	if m == nil {
		return func(srv interface{}, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
			return handler(srv, ss)
		}
	}

	return func(srv interface{}, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		return m.observe(info.FullMethod, func() error {
			return handler(srv, ss)
		})
	}
}

func splitFullMethod(full string) (string, string) {
	if full == "" {
		return "unknown", "unknown"
	}
	full = strings.TrimPrefix(full, "/")
	parts := strings.Split(full, "/")
	if len(parts) != 2 {
		return full, "unknown"
	}
	if parts[0] == "" {
		parts[0] = "unknown"
	}
	if parts[1] == "" {
		parts[1] = "unknown"
	}
	return parts[0], parts[1]
}
