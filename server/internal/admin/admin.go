package admin

import (
	"context"
	"log/slog"
	"net"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/livepaste/livepaste/server/internal/auth"
)

// ServiceName is the health service name reported alongside the overall status.
const ServiceName = "livepaste"

const (
	// DefaultProbeInterval is how often the store is pinged.
	DefaultProbeInterval = 15 * time.Second

	probeTimeout = 3 * time.Second
)

// Pinger is satisfied by *store.Store.
type Pinger interface {
	Ping(ctx context.Context) error
}

// AuthConfig carries the API-key settings for the interceptors.
type AuthConfig struct {
	Mode   string
	Header string
	Key    string
}

// Server is the admin gRPC server.
type Server struct {
	grpc     *grpc.Server
	health   *health.Server
	pinger   Pinger
	interval time.Duration
}

// New builds the server. Status starts as NOT_SERVING until the first probe.
func New(p Pinger, a AuthConfig, interval time.Duration) *Server {
	if interval <= 0 {
		interval = DefaultProbeInterval
	}
	gs := grpc.NewServer(
		grpc.UnaryInterceptor(auth.APIKeyInterceptor(a.Mode, a.Header, a.Key)),
		grpc.StreamInterceptor(auth.APIKeyStreamInterceptor(a.Mode, a.Header, a.Key)),
	)
	hs := health.NewServer()
	healthpb.RegisterHealthServer(gs, hs)

	s := &Server{grpc: gs, health: hs, pinger: p, interval: interval}
	s.set(healthpb.HealthCheckResponse_NOT_SERVING)
	return s
}

// Probe pings the store once, records the resulting status and returns it.
func (s *Server) Probe(ctx context.Context) healthpb.HealthCheckResponse_ServingStatus {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	status := healthpb.HealthCheckResponse_SERVING
	if err := s.pinger.Ping(ctx); err != nil {
		slog.Warn("admin: store ping failed", "err", err)
		status = healthpb.HealthCheckResponse_NOT_SERVING
	}
	s.set(status)
	return status
}

// Run probes immediately and then every interval until ctx is cancelled.
func (s *Server) Run(ctx context.Context) {
	s.Probe(ctx)

	t := time.NewTicker(s.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			s.Probe(ctx)
		}
	}
}

// Serve accepts connections on lis until Stop is called.
func (s *Server) Serve(lis net.Listener) error {
	return s.grpc.Serve(lis)
}

// Stop marks every service NOT_SERVING and drains in-flight calls.
func (s *Server) Stop() {
	s.health.Shutdown()
	s.grpc.GracefulStop()
}

func (s *Server) set(status healthpb.HealthCheckResponse_ServingStatus) {
	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(ServiceName, status)
}
