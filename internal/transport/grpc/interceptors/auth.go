package interceptors

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/arklim/deadline-jail/internal/usecase"
)

const (
	authorizationKey = "authorization"
	bearerPrefix     = "bearer "
)

// TokenVerifier resolves a bearer token to the user it was issued for.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (string, error)
}

// AuthOptions fine-tunes interceptor behaviour.
type AuthOptions struct {
	// AllowMethods lists full method names served without a token.
	AllowMethods []string
	// AllowServices lists service names whose every method is served without a token.
	AllowServices []string
	Logger        *zap.Logger
}

// AuthInterceptor validates incoming requests using the same bearer tokens as the HTTP API.
type AuthInterceptor struct {
	verifier      TokenVerifier
	logger        *zap.Logger
	allow         map[string]struct{}
	allowServices map[string]struct{}
}

// NewAuthInterceptor constructs a new AuthInterceptor instance.
func NewAuthInterceptor(verifier TokenVerifier, opts AuthOptions) *AuthInterceptor {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &AuthInterceptor{
		verifier:      verifier,
		logger:        logger,
		allow:         toSet(opts.AllowMethods),
		allowServices: toSet(opts.AllowServices),
	}
}

func toSet(values []string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			set[v] = struct{}{}
		}
	}
	return set
}

func (ai *AuthInterceptor) isPublic(fullMethod string) bool {
	if _, ok := ai.allow[fullMethod]; ok {
		return true
	}
	service, _ := splitFullMethod(fullMethod)
	_, ok := ai.allowServices[service]
	return ok
}

func (ai *AuthInterceptor) authenticate(ctx context.Context, fullMethod string) (context.Context, error) {
	token, err := tokenFromMetadata(ctx)
	if err != nil {
		ai.logger.Debug("gRPC authentication failed", zap.String("method", fullMethod), zap.Error(err))
		return nil, status.Error(codes.Unauthenticated, "authentication required")
	}

	userID, err := ai.verifier.Verify(ctx, token)
	if err != nil {
		if errors.Is(err, usecase.ErrUnauthenticated) {
			ai.logger.Debug("gRPC token rejected", zap.String("method", fullMethod))
			return nil, status.Error(codes.Unauthenticated, "authentication required")
		}
		ai.logger.Error("gRPC token verification failed", zap.String("method", fullMethod), zap.Error(err))
		return nil, status.Error(codes.Internal, "authentication failed")
	}

	return WithUserID(ctx, userID), nil
}

// UnaryServerInterceptor returns a gRPC unary interceptor that enforces bearer authentication.
func (ai *AuthInterceptor) UnaryServerInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		if ai == nil || ai.verifier == nil || ai.isPublic(info.FullMethod) {
			return handler(ctx, req)
		}

		authed, err := ai.authenticate(ctx, info.FullMethod)
		if err != nil {
			return nil, err
		}
		return handler(authed, req)
	}
}

// StreamServerInterceptor is the streaming counterpart of UnaryServerInterceptor.
func (ai *AuthInterceptor) StreamServerInterceptor() grpc.StreamServerInterceptor {
	return func(srv interface{}, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		if ai == nil || ai.verifier == nil || ai.isPublic(info.FullMethod) {
			return handler(srv, ss)
		}

		authed, err := ai.authenticate(ss.Context(), info.FullMethod)
		if err != nil {
			return err
		}
		return handler(srv, &authedStream{ServerStream: ss, ctx: authed})
	}
}

type authedStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (s *authedStream) Context() context.Context {
	return s.ctx
}

type userIDContextKey struct{}

// WithUserID returns a derived context carrying the authenticated user id.
func WithUserID(ctx context.Context, userID string) context.Context {
	if userID == "" {
		return ctx
	}
	return context.WithValue(ctx, userIDContextKey{}, userID)
}

// UserIDFromContext extracts the authenticated user id when available.
func UserIDFromContext(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	userID, ok := ctx.Value(userIDContextKey{}).(string)
	return userID, ok && userID != ""
}

func tokenFromMetadata(ctx context.Context) (string, error) {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return "", errors.New("missing metadata")
	}

	values := md.Get(authorizationKey)
	if len(values) == 0 || strings.TrimSpace(values[0]) == "" {
		return "", errors.New("authorization token required")
	}

	value := strings.TrimSpace(values[0])
	if len(value) < len(bearerPrefix) || !strings.HasPrefix(strings.ToLower(value), bearerPrefix) {
		return "", errors.New("invalid authorization header")
	}

	token := strings.TrimSpace(value[len(bearerPrefix):])
	if token == "" {
		return "", errors.New("authorization token required")
	}

	return token, nil
}
