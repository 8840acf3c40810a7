package server

import (
	"fmt"
	"net"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/erain9/crossmatch/pkg/logging"
	"github.com/erain9/crossmatch/pkg/otel"
)

// AdminServer is the operational gRPC surface of the engine. It serves the
// standard health protocol, one status per market code, and reflection for
// grpcurl.
type AdminServer struct {
	addr   string
	grpc   *grpc.Server
	health *health.Server
	logger zerolog.Logger
}

// NewAdminServer builds the server. Nothing listens until Start.
func NewAdminServer(addr string, logger zerolog.Logger) *AdminServer {
	s := grpc.NewServer(
		grpc.StatsHandler(otel.NewGRPCStatsHandler()),
		grpc.ChainUnaryInterceptor(logging.UnaryServerInterceptor()),
		grpc.ChainStreamInterceptor(logging.StreamServerInterceptor()),
	)

	h := health.NewServer()
	healthpb.RegisterHealthServer(s, h)
	reflection.Register(s)

	return &AdminServer{
		addr:   addr,
		grpc:   s,
		health: h,
		logger: logger,
	}
}

// Start listens and serves on a background goroutine.
func (s *AdminServer) Start() error {
	lis, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("admin listen on %s: %w", s.addr, err)
	}
	go func() {
		s.logger.Info().Str("addr", s.addr).Msg("Starting admin gRPC server")
		if err := s.grpc.Serve(lis); err != nil {
			s.logger.Error().Err(err).Msg("Admin gRPC server stopped")
		}
	}()
	return nil
}

// SetMarketServing flips the per-market health status. The empty service
// name, the overall process status, is managed separately via SetReady.
func (s *AdminServer) SetMarketServing(marketCode string, serving bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		status = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus(marketCode, status)
}

// SetReady flips the overall process health status. The engine stays not
// ready until journal recovery finished.
func (s *AdminServer) SetReady(ready bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if ready {
		status = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus("", status)
}

// Stop drains in-flight RPCs and shuts the server down.
func (s *AdminServer) Stop() {
	s.health.Shutdown()
	s.grpc.GracefulStop()
}
