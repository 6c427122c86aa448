package transportgrpc

import (
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	grpcinterceptors "github.com/arklim/deadline-jail/internal/transport/grpc/interceptors"
)

// publicServices are reachable without a bearer token.
var publicServices = []string{
	healthpb.Health_ServiceDesc.ServiceName,
	"grpc.reflection.v1.ServerReflection",
	"grpc.reflection.v1alpha.ServerReflection",
}

// ServerDependencies encapsulates services required by the gRPC server layer.
type ServerDependencies struct {
	Verifier grpcinterceptors.TokenVerifier
	Health   *health.Server
	Metrics  *grpcinterceptors.GRPCMetrics
	Tracing  *grpcinterceptors.TracingInterceptor
	Logger   *zap.Logger
}

// NewServer builds the gRPC server: health and reflection, behind the tracing, metrics and
// bearer-auth interceptors. A nil Health gets a fresh health.Server.
func NewServer(deps ServerDependencies) *grpc.Server {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	auth := grpcinterceptors.NewAuthInterceptor(deps.Verifier, grpcinterceptors.AuthOptions{
		AllowServices: publicServices,
		Logger:        logger,
	})

	server := grpc.NewServer(
		grpc.ChainUnaryInterceptor(
			deps.Tracing.Unary(),
			deps.Metrics.UnaryServerInterceptor(),
			auth.UnaryServerInterceptor(),
		),
		grpc.ChainStreamInterceptor(
			deps.Tracing.Stream(),
			deps.Metrics.StreamServerInterceptor(),
			auth.StreamServerInterceptor(),
		),
	)

	healthServer := deps.Health
	if healthServer == nil {
		healthServer = health.NewServer()
	}
	healthpb.RegisterHealthServer(server, healthServer)

	// Register reflection service for tools like grpcurl.
	reflection.Register(server)

	return server
}
