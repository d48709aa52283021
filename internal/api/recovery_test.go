package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/miradorstack/mirador-heal/internal/models"
)

type capturerStub struct {
	enabled bool
	values  []any
	meta    []map[string]any
}

func (c *capturerStub) CapturePanic(_ context.Context, recovered any, _ models.ErrorContext, metadata map[string]any) bool {
	if !c.enabled {
		return false
	}
	c.values = append(c.values, recovered)
	c.meta = append(c.meta, metadata)
	return true
}

func TestRecoveryUnaryInterceptorCapturesPanic(t *testing.T) {
	capturer := &capturerStub{enabled: true}
	interceptor := RecoveryUnaryInterceptor(capturer, nil)
	info := &grpc.UnaryServerInfo{FullMethod: fullMethod("Capture")}

	_, err := interceptor(context.Background(), nil, info, func(context.Context, any) (any, error) {
		panic("nil map write")
	})
	if status.Code(err) != codes.Internal {
		t.Fatalf("expected internal status, got %v", err)
	}
	if len(capturer.values) != 1 || capturer.meta[0]["grpcMethod"] != "/mirador.heal.v1.ErrorTelemetry/Capture" {
		t.Fatalf("panic not captured: %+v", capturer)
	}
}

func TestRecoveryUnaryInterceptorPropagatesWhenDisabled(t *testing.T) {
	interceptor := RecoveryUnaryInterceptor(&capturerStub{}, nil)
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic to propagate")
		}
	}()
	_, _ = interceptor(context.Background(), nil, &grpc.UnaryServerInfo{}, func(context.Context, any) (any, error) {
		panic("boom")
	})
}

func TestRecoveryMiddleware(t *testing.T) {
	capturer := &capturerStub{enabled: true}
	handler := RecoveryMiddleware(capturer, nil)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("handler exploded")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/stats", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	if len(capturer.values) != 1 || capturer.meta[0]["httpMethod"] != http.MethodGet {
		t.Fatalf("panic not captured: %+v", capturer)
	}
}
