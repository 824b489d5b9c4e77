// Package admin serves the operator gRPC endpoint: standard health checking
// for the town service and server reflection.
package admin

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// ServiceName is the health service name reported for towns.
const ServiceName = "covey.Town"

// CheckFunc checks a dependency such as the store.
type CheckFunc func(ctx context.Context) error

// Server is the admin gRPC server.
type Server struct {
	addr   string
	logger *zap.Logger
	grpc   *grpc.Server
	health *health.Server

	mu       sync.Mutex
	draining bool
	stop     chan struct{}
	stopOnce sync.Once
}

// New creates an admin server listening on addr once started. The town
// service starts NOT_SERVING until SetServing is called.
//
// Precondition: logger must be non-nil.
func New(addr string, logger *zap.Logger) *Server {
	s := &Server{
		addr:   addr,
		logger: logger,
		grpc:   grpc.NewServer(),
		health: health.NewServer(),
		stop:   make(chan struct{}),
	}
	healthpb.RegisterHealthServer(s.grpc, s.health)
	reflection.Register(s.grpc)
	s.health.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)
	return s
}

// SetServing reports the town service as SERVING or NOT_SERVING. Once Drain
// has been called the service stays NOT_SERVING.
func (s *Server) SetServing(serving bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if serving && !s.draining {
		status = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus(ServiceName, status)
}

// Drain marks every service NOT_SERVING ahead of shutdown.
func (s *Server) Drain() {
	s.mu.Lock()
	s.draining = true
	s.mu.Unlock()
	s.health.Shutdown()
	s.logger.Info("admin health draining")
}

// Monitor runs check every interval and mirrors its result into the town
// service status until ctx is cancelled or Stop is called.
func (s *Server) Monitor(ctx context.Context, interval, timeout time.Duration, check CheckFunc) {
	poll := func() {
		cctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		if err := check(cctx); err != nil {
			s.logger.Warn("health check failed", zap.Error(err))
			s.SetServing(false)
			return
		}
		s.SetServing(true)
	}
	poll()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			poll()
		case <-ctx.Done():
			return
		case <-s.stop:
			return
		}
	}
}

// Serve serves on lis until Stop.
func (s *Server) Serve(lis net.Listener) error {
	s.logger.Info("admin gRPC listening", zap.String("addr", lis.Addr().String()))
	return s.grpc.Serve(lis)
}

// Start listens on the configured address and serves until Stop.
func (s *Server) Start() error {
	lis, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.addr, err)
	}
	return s.Serve(lis)
}

// Stop drains health and stops the gRPC server gracefully.
func (s *Server) Stop() {
	s.stopOnce.Do(func() { close(s.stop) })
	s.Drain()
	s.grpc.GracefulStop()
}
