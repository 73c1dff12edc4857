package server

import (
	"context"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"
)

// NewGRPCServer returns the ops gRPC server with the standard health service registered on hs.
func NewGRPCServer(hs *health.Server, log *zap.Logger) *grpc.Server {
	s := grpc.NewServer(
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(LoggingUnary(log, map[string]bool{
			healthpb.Health_Check_FullMethodName: true,
		})),
	)
	healthpb.RegisterHealthServer(s, hs)
	return s
}

// LoggingUnary logs each unary RPC with its status code and duration. Methods in skip are not logged.
func LoggingUnary(log *zap.Logger, skip map[string]bool) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		if skip[info.FullMethod] {
			return resp, err
		}
		clientIP := "unknown"
		if p, ok := peer.FromContext(ctx); ok && p.Addr != nil {
			clientIP = p.Addr.String()
		}
		log.Info("grpc request",
			zap.String("method", info.FullMethod),
			zap.String("code", status.Code(err).String()),
			zap.Duration("duration", time.Since(start)),
			zap.String("client_ip", clientIP))
		return resp, err
	}
}
