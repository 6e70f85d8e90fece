// Package grpcserver exposes the standard gRPC health service (plus reflection) so
// orchestrators can health-check the booking service over gRPC.
package grpcserver

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"time"

	"github.com/batdimoiprint/medicare-booking/libs/grpcx"
	"github.com/batdimoiprint/medicare-booking/libs/runtime"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// ServiceName is the health service name reported alongside the server-wide "" entry.
const ServiceName = "medicare.booking.v1.BookingService"

type Server struct {
	srv    *grpc.Server
	health *health.Server
	checks []runtime.ReadyCheck
	logger *slog.Logger
}

func New(logger *slog.Logger, checks ...runtime.ReadyCheck) *Server {
	srv := grpc.NewServer(grpcx.ServerOptions()...)
	hs := health.NewServer()
	healthpb.RegisterHealthServer(srv, hs)
	reflection.Register(srv)

	s := &Server{srv: srv, health: hs, checks: checks, logger: logger}
	s.Refresh(context.Background())
	return s
}

// Refresh runs the readiness checks and publishes SERVING or NOT_SERVING.
func (s *Server) Refresh(ctx context.Context) {
	status := healthpb.HealthCheckResponse_SERVING
	for _, c := range s.checks {
		if c.Check == nil {
			continue
		}
		cctx, cancel := context.WithTimeout(ctx, 2*time.Second)
		err := c.Check(cctx)
		cancel()
		if err != nil {
			s.logger.Warn("grpc health check failed", "check", c.Name, "err", err)
			status = healthpb.HealthCheckResponse_NOT_SERVING
			break
		}
	}
	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(ServiceName, status)
}

// Serve blocks until lis fails or ctx is cancelled, then stops gracefully. Health is
// refreshed every interval while serving.
func (s *Server) Serve(ctx context.Context, lis net.Listener, interval time.Duration) error {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	stop := make(chan struct{})
	defer close(stop)

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				s.health.Shutdown()
				s.srv.GracefulStop()
				return
			case <-stop:
				return
			case <-ticker.C:
				s.Refresh(ctx)
			}
		}
	}()

	s.logger.Info("grpc server starting", "addr", lis.Addr().String())
	err := s.srv.Serve(lis)
	if errors.Is(err, grpc.ErrServerStopped) {
		return nil
	}
	return err
}
