// Package grpcserver exposes the gateway's readiness over the standard
// grpc.health.v1 protocol.
package grpcserver

import (
	"context"
	"net"
	"strings"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/example/face-gateway/internal/faceapi"
	"github.com/example/face-gateway/internal/logging"
)

// ServiceName is the health service name reported alongside the overall "" entry.
const ServiceName = "face-gateway"

const checkTimeout = 5 * time.Second

// HealthChecker reports the backend's health. Checks call the face API
// client itself, so they never reach the request audit.
type HealthChecker interface {
	Health(ctx context.Context) (*faceapi.HealthResponse, error)
}

// HealthServer serves grpc.health.v1.Health and keeps its status in line
// with the backend.
type HealthServer struct {
	server  *grpc.Server
	health  *health.Server
	checker HealthChecker
	logger  *zap.Logger
}

// NewHealthServer starts out NOT_SERVING until the first check succeeds.
func NewHealthServer(checker HealthChecker, logger *zap.Logger, opts ...grpc.ServerOption) *HealthServer {
	s := &HealthServer{
		server:  grpc.NewServer(opts...),
		health:  health.NewServer(),
		checker: checker,
		logger:  logger.Named("grpc_health"),
	}
	healthpb.RegisterHealthServer(s.server, s.health)
	s.setStatus(healthpb.HealthCheckResponse_NOT_SERVING)
	return s
}

// Refresh checks the backend once and publishes the result.
func (s *HealthServer) Refresh(ctx context.Context) healthpb.HealthCheckResponse_ServingStatus {
	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()

	status := healthpb.HealthCheckResponse_SERVING
	resp, err := s.checker.Health(ctx)
	switch {
	case err != nil:
		status = healthpb.HealthCheckResponse_NOT_SERVING
		fields := []zap.Field{zap.Error(err)}
		if op, ok := logging.OperationOf(err); ok {
			fields = append(fields, zap.String("failed_operation", op))
		}
		s.logger.Warn("backend health check failed", fields...)
	case resp == nil || strings.EqualFold(resp.Status, "unhealthy"):
		status = healthpb.HealthCheckResponse_NOT_SERVING
		s.logger.Warn("backend reports unhealthy", zap.String("status", healthStatus(resp)))
	}

	s.setStatus(status)
	return status
}

// Run checks immediately and then every interval until ctx is done.
func (s *HealthServer) Run(ctx context.Context, interval time.Duration) {
	s.Refresh(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Refresh(ctx)
		}
	}
}

// Serve blocks serving gRPC on lis until Stop is called.
func (s *HealthServer) Serve(lis net.Listener) error {
	s.logger.Info("gRPC health server listening", zap.String("addr", lis.Addr().String()))
	return s.server.Serve(lis)
}

// Stop flips every service to NOT_SERVING and drains in-flight calls.
func (s *HealthServer) Stop() {
	s.health.Shutdown()
	s.server.GracefulStop()
}

func (s *HealthServer) setStatus(status healthpb.HealthCheckResponse_ServingStatus) {
	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(ServiceName, status)
}

func healthStatus(resp *faceapi.HealthResponse) string {
	if resp == nil {
		return ""
	}
	return resp.Status
}
