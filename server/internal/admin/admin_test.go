package admin

import (
	"context"
	"errors"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
)

type flakyPinger struct{ fail atomic.Bool }

func (p *flakyPinger) Ping(ctx context.Context) error {
	if p.fail.Load() {
		return errors.New("database is locked")
	}
	return nil
}

// start serves s over an in-memory listener and returns a connected client.
func start(t *testing.T, s *Server) healthpb.HealthClient {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	go s.Serve(lis) //nolint:errcheck
	t.Cleanup(s.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return healthpb.NewHealthClient(conn)
}

func check(t *testing.T, c healthpb.HealthClient, ctx context.Context) (healthpb.HealthCheckResponse_ServingStatus, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	resp, err := c.Check(ctx, &healthpb.HealthCheckRequest{Service: ServiceName})
	if err != nil {
		return healthpb.HealthCheckResponse_UNKNOWN, err
	}
	return resp.GetStatus(), nil
}

func TestProbe_FlipsStatus(t *testing.T) {
	p := &flakyPinger{}
	s := New(p, AuthConfig{Mode: "none"}, time.Hour)
	c := start(t, s)
	ctx := context.Background()

	if got, err := check(t, c, ctx); err != nil || got != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Fatalf("before probe: got %v, %v; want NOT_SERVING", got, err)
	}

	s.Probe(ctx)
	if got, _ := check(t, c, ctx); got != healthpb.HealthCheckResponse_SERVING {
		t.Errorf("healthy store: got %v, want SERVING", got)
	}

	p.fail.Store(true)
	if got := s.Probe(ctx); got != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Errorf("Probe return: got %v", got)
	}
	if got, _ := check(t, c, ctx); got != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Errorf("failing store: got %v, want NOT_SERVING", got)
	}
}

func TestRun_ProbesImmediately(t *testing.T) {
	s := New(&flakyPinger{}, AuthConfig{}, time.Hour)
	c := start(t, s)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)

	deadline := time.Now().Add(2 * time.Second)
	for {
		got, _ := check(t, c, context.Background())
		if got == healthpb.HealthCheckResponse_SERVING {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("status never became SERVING, last %v", got)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestAPIKey_Required(t *testing.T) {
	s := New(&flakyPinger{}, AuthConfig{Mode: "apikey", Header: "x-api-key", Key: "s3cret"}, time.Hour)
	c := start(t, s)
	s.Probe(context.Background())

	_, err := check(t, c, context.Background())
	if code := status.Code(err); code != codes.Unauthenticated {
		t.Errorf("no key: got %v, want Unauthenticated", code)
	}

	ctx := metadata.AppendToOutgoingContext(context.Background(), "x-api-key", "s3cret")
	if got, err := check(t, c, ctx); err != nil || got != healthpb.HealthCheckResponse_SERVING {
		t.Errorf("with key: got %v, %v", got, err)
	}
}
