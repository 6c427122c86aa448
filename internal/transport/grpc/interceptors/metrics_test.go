package interceptors

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestGRPCMetricsUnaryInterceptorRecordsMetrics(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics, err := NewGRPCMetrics(GRPCMetricsOptions{Registerer: registry})
	if err != nil {
		t.Fatalf("failed to create metrics: %v", err)
	}

	interceptor := metrics.UnaryServerInterceptor()

	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		time.Sleep(5 * time.Millisecond)
		return "ok", nil
	}

	info := &grpc.UnaryServerInfo{FullMethod: "/grpc.health.v1.Health/Check"}

	if _, err := interceptor(context.Background(), struct{}{}, info, handler); err != nil {
		t.Fatalf("unexpected handler error: %v", err)
	}

	labels := prometheus.Labels{"service": "grpc.health.v1.Health", "method": "Check", "code": codes.OK.String()}

	if got := testutil.ToFloat64(metrics.requests.With(labels)); got != 1 {
		t.Fatalf("expected request counter 1, got %f", got)
	}

	if inflight := testutil.ToFloat64(metrics.inFlight.WithLabelValues("grpc.health.v1.Health")); inflight != 0 {
		t.Fatalf("expected in-flight gauge 0, got %f", inflight)
	}

	if samples := testutil.CollectAndCount(metrics.duration); samples == 0 {
		t.Fatalf("expected histogram to record observations")
	}
}

func TestGRPCMetricsUnaryInterceptorPropagatesErrors(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics, err := NewGRPCMetrics(GRPCMetricsOptions{Registerer: registry})
	if err != nil {
		t.Fatalf("failed to create metrics: %v", err)
	}

	interceptor := metrics.UnaryServerInterceptor()

	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return nil, status.Error(codes.Unauthenticated, "authentication required")
	}

	info := &grpc.UnaryServerInfo{FullMethod: "/jail.v1.TaskService/FailTask"}

	if _, err := interceptor(context.Background(), struct{}{}, info, handler); status.Code(err) != codes.Unauthenticated {
		t.Fatalf("expected unauthenticated, got %v", err)
	}

	labels := prometheus.Labels{"service": "jail.v1.TaskService", "method": "FailTask", "code": codes.Unauthenticated.String()}
	if got := testutil.ToFloat64(metrics.requests.With(labels)); got != 1 {
		t.Fatalf("expected request counter 1 for rejected call, got %f", got)
	}
}

func TestGRPCMetricsStreamInterceptorRecordsOnEnd(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics, err := NewGRPCMetrics(GRPCMetricsOptions{Registerer: registry})
	if err != nil {
		t.Fatalf("failed to create metrics: %v", err)
	}

	interceptor := metrics.StreamServerInterceptor()
	info := &grpc.StreamServerInfo{FullMethod: "/grpc.health.v1.Health/Watch", IsServerStream: true}

	err = interceptor(nil, &mockServerStream{ctx: context.Background()}, info, func(srv interface{}, stream grpc.ServerStream) error {
		return status.Error(codes.Canceled, "client went away")
	})
	if status.Code(err) != codes.Canceled {
		t.Fatalf("expected canceled, got %v", err)
	}

	labels := prometheus.Labels{"service": "grpc.health.v1.Health", "method": "Watch", "code": codes.Canceled.String()}
	if got := testutil.ToFloat64(metrics.requests.With(labels)); got != 1 {
		t.Fatalf("expected stream counter 1, got %f", got)
	}
}

func TestSplitFullMethod(t *testing.T) {
	cases := []struct{ in, service, method string }{
		{"", "unknown", "unknown"},
		{"/grpc.health.v1.Health/Check", "grpc.health.v1.Health", "Check"},
		{"broken", "broken", "unknown"},
		{"/svc/", "svc", "unknown"},
	}
	for _, tc := range cases {
		service, method := splitFullMethod(tc.in)
		if service != tc.service || method != tc.method {
			t.Fatalf("splitFullMethod(%q) = %q, %q; want %q, %q", tc.in, service, method, tc.service, tc.method)
		}
	}
}
