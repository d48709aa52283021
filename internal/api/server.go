package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"

	grpc_prometheus "github.com/grpc-ecosystem/go-grpc-prometheus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/miradorstack/mirador-heal/internal/config"
)

// ErrServerClosed is returned by Serve after Shutdown.
var ErrServerClosed = errors.New("telemetry server closed")

// Server hosts the ErrorTelemetry service next to the standard health and
// reflection services. Handler panics are recovered and recorded through the
// PanicCapturer given to NewServer.
type Server struct {
	grpcServer *grpc.Server
	health     *health.Server
	listener   net.Listener
	logger     *slog.Logger
}

// NewServer listens on cfg.Address and registers service.
func NewServer(cfg config.ServerConfig, service TelemetryServer, panics PanicCapturer, logger *slog.Logger, opts ...grpc.ServerOption) (*Server, error) {
	lis, err := net.Listen("tcp", cfg.Address)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", cfg.Address, err)
	}
	return newServer(lis, service, panics, logger, opts...), nil
}

func newServer(lis net.Listener, service TelemetryServer, panics PanicCapturer, logger *slog.Logger, opts ...grpc.ServerOption) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	grpc_prometheus.EnableHandlingTimeHistogram()
	unary := []grpc.UnaryServerInterceptor{grpc_prometheus.UnaryServerInterceptor}
	if panics != nil {
		// Innermost, so a recovered panic is still counted as an Internal response.
		unary = append(unary, RecoveryUnaryInterceptor(panics, logger))
	}
	serverOpts := append([]grpc.ServerOption{
		grpc.ChainUnaryInterceptor(unary...),
		grpc.ChainStreamInterceptor(grpc_prometheus.StreamServerInterceptor),
	}, opts...)
	grpcServer := grpc.NewServer(serverOpts...)

	RegisterTelemetryServer(grpcServer, service)
	grpc_prometheus.Register(grpcServer)

	healthSrv := health.NewServer()
	healthSrv.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	healthSrv.SetServingStatus(TelemetryServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(grpcServer, healthSrv)
	reflection.Register(grpcServer)

	return &Server{
		grpcServer: grpcServer,
		health:     healthSrv,
		listener:   lis,
		logger:     logger,
	}
}

// Serve blocks handling requests until Shutdown, then returns ErrServerClosed.
func (s *Server) Serve() error {
	err := s.grpcServer.Serve(s.listener)
	if err == nil || errors.Is(err, grpc.ErrServerStopped) {
		return ErrServerClosed
	}
	return err
}

// Shutdown reports NOT_SERVING to health checks, then drains in-flight calls.
// Calls still running when ctx ends are cut off.
func (s *Server) Shutdown(ctx context.Context) {
	s.health.Shutdown()

	stopped := make(chan struct{})
	go func() {
		s.grpcServer.GracefulStop()
		close(stopped)
	}()
	select {
	case <-ctx.Done():
		s.logger.Warn("grpc drain timed out, closing open calls")
		s.grpcServer.Stop()
	case <-stopped:
	}
}

// Address returns the bound listener address.
func (s *Server) Address() string {
	return s.listener.Addr().String()
}
