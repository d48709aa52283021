package api

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

type panickingTelemetry struct {
	TelemetryServer
}

func (panickingTelemetry) GetStats(context.Context, *emptypb.Empty) (*structpb.Struct, error) {
	panic("stats map corrupted")
}

func (panickingTelemetry) GetPatterns(context.Context, *emptypb.Empty) (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]any{"count": 0})
}

func TestServerRecoversPanicsAndDrains(t *testing.T) {
	lis := bufconn.Listen(1 << 20)
	capturer := &capturerStub{enabled: true}
	server := newServer(lis, panickingTelemetry{}, capturer, nil)
	served := make(chan error, 1)
	go func() { served <- server.Serve() }()

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	health, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{Service: TelemetryServiceName})
	if err != nil || health.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		t.Fatalf("expected serving health, got %v %v", health, err)
	}

	client := NewTelemetryClient(conn)
	if _, err := client.GetStats(ctx); status.Code(err) != codes.Internal {
		t.Fatalf("expected internal status from panicking handler, got %v", err)
	}
	if len(capturer.values) != 1 || capturer.meta[0]["grpcMethod"] != fullMethod("GetStats") {
		t.Fatalf("panic not captured: %+v %+v", capturer.values, capturer.meta)
	}
	if _, err := client.GetPatterns(ctx); err != nil {
		t.Fatalf("server should keep serving after a panic: %v", err)
	}

	server.Shutdown(ctx)
	select {
	case err := <-served:
		if !errors.Is(err, ErrServerClosed) {
			t.Fatalf("expected ErrServerClosed, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("serve did not return after shutdown")
	}
}
