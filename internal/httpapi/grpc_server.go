package httpapi

import (
	"context"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/Be1newinner/asaan-hai-coding/internal/obs"
)

type readinessChecker interface {
	Check(ctx context.Context) error
}

// GRPCServer serves the standard gRPC health protocol. Its status follows
// the database readiness probe.
type GRPCServer struct {
	Server *grpc.Server
	health *health.Server
	probe  readinessChecker
}

// NewGRPCServer registers the health service for the overall server and for
// serviceName.
func NewGRPCServer(probe readinessChecker) *GRPCServer {
	s := &GRPCServer{
		Server: grpc.NewServer(),
		health: health.NewServer(),
		probe:  probe,
	}
	healthpb.RegisterHealthServer(s.Server, s.health)
	return s
}

// Refresh runs the probe once and publishes the result.
func (s *GRPCServer) Refresh(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	status := healthpb.HealthCheckResponse_SERVING
	if err := s.probe.Check(ctx); err != nil {
		status = healthpb.HealthCheckResponse_NOT_SERVING
		obs.Warn("grpc readiness check failed", map[string]any{"error": err})
	}
	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(serviceName, status)
	ok := status == healthpb.HealthCheckResponse_SERVING
	obs.SetReady(ok)
	return ok
}

// Watch refreshes the status every interval until ctx is done.
func (s *GRPCServer) Watch(ctx context.Context, interval time.Duration) {
	s.Refresh(ctx)
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			s.Refresh(ctx)
		}
	}
}

// Stop marks every service as not serving and stops the server gracefully.
func (s *GRPCServer) Stop() {
	s.health.Shutdown()
	s.Server.GracefulStop()
}
