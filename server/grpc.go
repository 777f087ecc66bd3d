package server

import (
	"fmt"
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/becomeliminal/nim-companion/internal/applog"
)

// ServiceName is the gRPC health service name reported for the companion.
const ServiceName = "companion"

// HealthServer serves the standard gRPC health protocol so orchestrators
// can probe the process without HTTP.
type HealthServer struct {
	grpc   *grpc.Server
	health *health.Server
}

// NewHealthServer creates a health server reporting SERVING.
func NewHealthServer() *HealthServer {
	hs := health.NewServer()
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)

	srv := grpc.NewServer()
	healthpb.RegisterHealthServer(srv, hs)
	return &HealthServer{grpc: srv, health: hs}
}

// Serve accepts connections on lis until Stop.
func (h *HealthServer) Serve(lis net.Listener) error {
	applog.Info("[SERVER] gRPC health listening", "addr", lis.Addr().String())
	return h.grpc.Serve(lis)
}

// ListenAndServe listens on host:port.
func (h *HealthServer) ListenAndServe(host string, port int) error {
	lis, err := net.Listen("tcp", fmt.Sprintf("%s:%d", host, port))
	if err != nil {
		return fmt.Errorf("listen grpc: %w", err)
	}
	return h.Serve(lis)
}

// Stop reports NOT_SERVING and drains in-flight probes.
func (h *HealthServer) Stop() {
	h.health.Shutdown()
	h.grpc.GracefulStop()
}
