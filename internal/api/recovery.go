package api

import (
	"context"
	"log/slog"
	"net/http"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/miradorstack/mirador-heal/internal/models"
)

// PanicCapturer records recovered panics. It reports false when capture is
// disabled, in which case the panic is propagated.
type PanicCapturer interface {
	CapturePanic(ctx context.Context, recovered any, ectx models.ErrorContext, metadata map[string]any) bool
}

// RecoveryUnaryInterceptor turns handler panics into captured runtime errors
// and an Internal status.
func RecoveryUnaryInterceptor(capturer PanicCapturer, logger *slog.Logger) grpc.UnaryServerInterceptor {
	if logger == nil {
		logger = slog.Default()
	}
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (resp any, err error) {
		defer func() {
			r := recover()
			if r == nil {
				return
			}
			if !capturer.CapturePanic(context.WithoutCancel(ctx), r, models.ErrorContext{}, map[string]any{"grpcMethod": info.FullMethod}) {
				panic(r)
			}
			logger.Warn("recovered grpc handler panic", slog.String("method", info.FullMethod), slog.Any("panic", r))
			resp, err = nil, status.Error(codes.Internal, "internal error")
		}()
		return handler(ctx, req)
	}
}

// RecoveryMiddleware is the HTTP counterpart of RecoveryUnaryInterceptor.
func RecoveryMiddleware(capturer PanicCapturer, logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				ectx := models.ErrorContext{OriginURL: r.URL.String()}
				if !capturer.CapturePanic(context.WithoutCancel(r.Context()), rec, ectx, map[string]any{"httpMethod": r.Method}) {
					panic(rec)
				}
				logger.Warn("recovered http handler panic", slog.String("path", r.URL.Path), slog.Any("panic", rec))
				http.Error(w, "internal error", http.StatusInternalServerError)
			}()
			next.ServeHTTP(w, r)
		})
	}
}
