package grpc

import (
	"context"
	"errors"
	"fmt"
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"gitlab.com/timkado/api/post-loader-service/internal/adapters/config"
	"gitlab.com/timkado/api/post-loader-service/internal/domain"
	"gitlab.com/timkado/api/post-loader-service/pkg/safego"
)

// ServiceName is the health-check service name reported next to the overall "" entry.
const ServiceName = "post_loader.v1.PostLoader"

// Server exposes the standard gRPC health and reflection services so orchestrators
// can probe the service without going through HTTP.
type Server struct {
	gsrv        *grpc.Server
	health      *health.Server
	logger      domain.Logger
	cfgProvider config.Provider
	appCtx      context.Context
	cancelCtx   context.CancelFunc
}

// NewServer builds the server. Both health entries start as NOT_SERVING until Start.
func NewServer(appCtx context.Context, logger domain.Logger, cfgProvider config.Provider) *Server {
	gsrv := grpc.NewServer()
	hs := health.NewServer()
	healthpb.RegisterHealthServer(gsrv, hs)
	reflection.Register(gsrv)

	hs.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)

	serverLifecycleCtx, serverLifecycleCancel := context.WithCancel(appCtx)
	return &Server{
		gsrv:        gsrv,
		health:      hs,
		logger:      logger,
		cfgProvider: cfgProvider,
		appCtx:      serverLifecycleCtx,
		cancelCtx:   serverLifecycleCancel,
	}
}

// Start listens on server.grpc_port and serves in the background.
func (s *Server) Start() error {
	grpcPort := s.cfgProvider.Get().Server.GRPCPort
	if grpcPort == 0 {
		s.logger.Warn(s.appCtx, "gRPC port is not configured or is 0. gRPC server will not start.")
		return fmt.Errorf("gRPC port not configured")
	}
	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", grpcPort))
	if err != nil {
		s.logger.Error(s.appCtx, "Failed to listen for gRPC", "port", grpcPort, "error", err)
		return fmt.Errorf("failed to listen for gRPC on port %d: %w", grpcPort, err)
	}
	return s.Serve(lis)
}

// Serve serves on an existing listener.
func (s *Server) Serve(lis net.Listener) error {
	s.logger.Info(s.appCtx, "gRPC server starting", "address", lis.Addr().String())
	s.SetServing(true)

	safego.Execute(s.appCtx, s.logger, "GRPCServerServe", func() {
		if err := s.gsrv.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			s.logger.Error(s.appCtx, "gRPC server failed to serve", "error", err)
		}
		s.cancelCtx()
	})

	safego.Execute(s.appCtx, s.logger, "GRPCServerContextWatcher", func() {
		<-s.appCtx.Done()
		s.health.Shutdown()
		s.gsrv.GracefulStop()
		s.logger.Info(context.Background(), "gRPC server gracefully stopped")
	})
	return nil
}

// SetServing flips both health entries. Readiness probes call it when a
// backing store goes away or comes back.
func (s *Server) SetServing(serving bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		status = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(ServiceName, status)
}

// GracefulStop cancels the lifecycle context; the watcher performs the stop.
func (s *Server) GracefulStop() {
	s.cancelCtx()
}
