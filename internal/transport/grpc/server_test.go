package transportgrpc

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap/zaptest"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	grpcinterceptors "github.com/arklim/deadline-jail/internal/transport/grpc/interceptors"
	"github.com/arklim/deadline-jail/internal/usecase"
)

type rejectingVerifier struct{}

func (rejectingVerifier) Verify(context.Context, string) (string, error) {
	return "", usecase.ErrUnauthenticated
}

func startServer(t *testing.T, healthServer *health.Server) healthpb.HealthClient {
	t.Helper()

	metrics, err := grpcinterceptors.NewGRPCMetrics(grpcinterceptors.GRPCMetricsOptions{Registerer: prometheus.NewRegistry()})
	if err != nil {
		t.Fatalf("NewGRPCMetrics returned error: %v", err)
	}

	server := NewServer(ServerDependencies{
		Verifier: rejectingVerifier{},
		Health:   healthServer,
		Metrics:  metrics,
		Logger:   zaptest.NewLogger(t),
	})

	listener := bufconn.Listen(1 << 20)
	go func() {
		_ = server.Serve(listener)
	}()
	t.Cleanup(server.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return listener.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })

	return healthpb.NewHealthClient(conn)
}

func TestHealthCheckIsPublicAndReflectsMonitor(t *testing.T) {
	healthServer := health.NewServer()
	client := startServer(t, healthServer)

	var storeErr error
	monitor := NewHealthMonitor(healthServer, time.Hour, zaptest.NewLogger(t), DependencyCheck{
		Name:  "store",
		Probe: func(context.Context) error { return storeErr },
	})

	ctx := context.Background()
	if got := monitor.Evaluate(ctx); got != healthpb.HealthCheckResponse_SERVING {
		t.Fatalf("expected SERVING, got %s", got)
	}
	resp, err := client.Check(ctx, &healthpb.HealthCheckRequest{})
	if err != nil {
		t.Fatalf("health check without token must succeed: %v", err)
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		t.Fatalf("expected SERVING, got %s", resp.GetStatus())
	}

	storeErr = errors.New("database is locked")
	monitor.Evaluate(ctx)
	resp, err = client.Check(ctx, &healthpb.HealthCheckRequest{})
	if err != nil {
		t.Fatalf("health check failed: %v", err)
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Fatalf("expected NOT_SERVING, got %s", resp.GetStatus())
	}
}

func TestHealthCheckUnknownServiceIsNotFound(t *testing.T) {
	client := startServer(t, nil)

	_, err := client.Check(context.Background(), &healthpb.HealthCheckRequest{Service: "jail.v1.Nope"})
	if status.Code(err) != codes.NotFound {
		t.Fatalf("expected NotFound, got %v", err)
	}
}

func TestHealthMonitorRunShutsDownOnCancel(t *testing.T) {
	healthServer := health.NewServer()
	monitor := NewHealthMonitor(healthServer, 10*time.Millisecond, zaptest.NewLogger(t))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		monitor.Run(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("monitor did not stop after cancel")
	}

	resp, err := healthServer.Check(context.Background(), &healthpb.HealthCheckRequest{})
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Fatalf("expected NOT_SERVING after shutdown, got %s", resp.GetStatus())
	}
}
