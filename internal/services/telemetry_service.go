package services

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/miradorstack/mirador-heal/internal/api"
	"github.com/miradorstack/mirador-heal/internal/monitor"
	"github.com/miradorstack/mirador-heal/internal/storage"
	"github.com/miradorstack/mirador-heal/internal/utils"
)

// TelemetryService implements the gRPC ErrorTelemetry service.
type TelemetryService struct {
	logger    *slog.Logger
	pipeline  api.Pipeline
	latencies *utils.LatencyTracker
}

var _ api.TelemetryServer = (*TelemetryService)(nil)

// NewTelemetryService constructs the telemetry service facade.
func NewTelemetryService(logger *slog.Logger, pipeline api.Pipeline) *TelemetryService {
	if logger == nil {
		logger = slog.Default()
	}
	return &TelemetryService{
		logger:    logger,
		pipeline:  pipeline,
		latencies: utils.NewLatencyTracker(1024),
	}
}

// Capture validates and records one error signal.
func (s *TelemetryService) Capture(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if s.pipeline == nil {
		return nil, status.Error(codes.FailedPrecondition, "pipeline not configured")
	}
	in, err := api.FromProtoCaptureRequest(req)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	start := time.Now()
	rec, err := s.pipeline.Capture(ctx, in)
	if err != nil {
		return nil, s.toStatus("capture", err)
	}
	s.latencies.Observe(time.Since(start))
	if count := s.latencies.Count(); count >= 100 && count%100 == 0 {
		s.logger.Info("capture latency", slog.Duration("p95", s.latencies.Percentile(95)), slog.Int("samples", count))
	}
	if rec != nil {
		s.logger.Debug("captured via grpc", slog.String("id", rec.ID), slog.String("type", string(rec.Type)))
	}
	return encode(api.ToProtoCaptureResponse(rec))
}

// GetStats returns monitoring statistics.
func (s *TelemetryService) GetStats(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	if s.pipeline == nil {
		return nil, status.Error(codes.FailedPrecondition, "pipeline not configured")
	}
	stats := s.pipeline.Stats()
	stats.CaptureP95Ms = utils.Millis(s.latencies.Percentile(95))
	return encode(api.ToProtoStats(stats))
}

// Recent lists records from the last N minutes.
func (s *TelemetryService) Recent(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if s.pipeline == nil {
		return nil, status.Error(codes.FailedPrecondition, "pipeline not configured")
	}
	minutes, err := api.FromProtoRecentRequest(req)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	return encode(api.ToProtoRecords(s.pipeline.Recent(minutes)))
}

// GetPatterns returns the detected error patterns.
func (s *TelemetryService) GetPatterns(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	if s.pipeline == nil {
		return nil, status.Error(codes.FailedPrecondition, "pipeline not configured")
	}
	return encode(api.ToProtoPatterns(s.pipeline.Patterns()))
}

// GetCircuitBreakers returns per-resource breaker state and correction counters.
func (s *TelemetryService) GetCircuitBreakers(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	if s.pipeline == nil {
		return nil, status.Error(codes.FailedPrecondition, "pipeline not configured")
	}
	return encode(api.ToProtoBreakers(s.pipeline.CircuitBreakers(), s.pipeline.CorrectionStats()))
}

// GetAnalysis returns the derived views of the latest analysis pass.
func (s *TelemetryService) GetAnalysis(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	if s.pipeline == nil {
		return nil, status.Error(codes.FailedPrecondition, "pipeline not configured")
	}
	return encode(api.ToProtoAnalysis(s.pipeline.Analysis()))
}

func (s *TelemetryService) toStatus(op string, err error) error {
	switch {
	case errors.Is(err, monitor.ErrInvalidInput):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, storage.ErrNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return status.FromContextError(err).Err()
	default:
		s.logger.Error("telemetry call failed",
			slog.String("op", op),
			slog.String("origin", utils.OpOf(err)),
			slog.Any("error", err))
		return status.Error(codes.Internal, op+" failed")
	}
}

func encode(out *structpb.Struct, err error) (*structpb.Struct, error) {
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return out, nil
}
