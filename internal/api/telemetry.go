package api

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

// TelemetryServiceName is the fully qualified gRPC service name.
const TelemetryServiceName = "mirador.heal.v1.ErrorTelemetry"

// TelemetryServer is the server API for the ErrorTelemetry service. Payloads
// are protobuf Struct values carrying the JSON shape of the domain models.
type TelemetryServer interface {
	Capture(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetStats(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	Recent(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetPatterns(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	GetCircuitBreakers(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	GetAnalysis(context.Context, *emptypb.Empty) (*structpb.Struct, error)
}

// RegisterTelemetryServer attaches srv to the registrar.
func RegisterTelemetryServer(s grpc.ServiceRegistrar, srv TelemetryServer) {
	s.RegisterService(&telemetryServiceDesc, srv)
}

func fullMethod(name string) string {
	return "/" + TelemetryServiceName + "/" + name
}

func unaryHandler[Req any, PReq interface{ *Req }](name string, call func(TelemetryServer, context.Context, PReq) (*structpb.Struct, error)) func(any, context.Context, func(any) error, grpc.UnaryServerInterceptor) (any, error) {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := PReq(new(Req))
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(TelemetryServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod(name)}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(TelemetryServer), ctx, req.(PReq))
		}
		return interceptor(ctx, in, info, handler)
	}
}

var telemetryServiceDesc = grpc.ServiceDesc{
	ServiceName: TelemetryServiceName,
	HandlerType: (*TelemetryServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Capture",
			Handler: unaryHandler[structpb.Struct]("Capture", func(s TelemetryServer, ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
				return s.Capture(ctx, in)
			}),
		},
		{
			MethodName: "GetStats",
			Handler: unaryHandler[emptypb.Empty]("GetStats", func(s TelemetryServer, ctx context.Context, in *emptypb.Empty) (*structpb.Struct, error) {
				return s.GetStats(ctx, in)
			}),
		},
		{
			MethodName: "Recent",
			Handler: unaryHandler[structpb.Struct]("Recent", func(s TelemetryServer, ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
				return s.Recent(ctx, in)
			}),
		},
		{
			MethodName: "GetPatterns",
			Handler: unaryHandler[emptypb.Empty]("GetPatterns", func(s TelemetryServer, ctx context.Context, in *emptypb.Empty) (*structpb.Struct, error) {
				return s.GetPatterns(ctx, in)
			}),
		},
		{
			MethodName: "GetCircuitBreakers",
			Handler: unaryHandler[emptypb.Empty]("GetCircuitBreakers", func(s TelemetryServer, ctx context.Context, in *emptypb.Empty) (*structpb.Struct, error) {
				return s.GetCircuitBreakers(ctx, in)
			}),
		},
		{
			MethodName: "GetAnalysis",
			Handler: unaryHandler[emptypb.Empty]("GetAnalysis", func(s TelemetryServer, ctx context.Context, in *emptypb.Empty) (*structpb.Struct, error) {
				return s.GetAnalysis(ctx, in)
			}),
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "mirador/heal/v1/telemetry.proto",
}

// TelemetryClient is a thin client for the ErrorTelemetry service.
type TelemetryClient struct {
	cc grpc.ClientConnInterface
}

// NewTelemetryClient wraps an established connection.
func NewTelemetryClient(cc grpc.ClientConnInterface) *TelemetryClient {
	return &TelemetryClient{cc: cc}
}

func (c *TelemetryClient) invoke(ctx context.Context, method string, in any, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, fullMethod(method), in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// Capture submits an error signal.
func (c *TelemetryClient) Capture(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, "Capture", in, opts...)
}

// GetStats fetches monitoring statistics.
func (c *TelemetryClient) GetStats(ctx context.Context, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, "GetStats", &emptypb.Empty{}, opts...)
}

// Recent lists records captured within the last minutes.
func (c *TelemetryClient) Recent(ctx context.Context, minutes int, opts ...grpc.CallOption) (*structpb.Struct, error) {
	in, err := structpb.NewStruct(map[string]any{"minutes": minutes})
	if err != nil {
		return nil, err
	}
	return c.invoke(ctx, "Recent", in, opts...)
}

// GetPatterns fetches detected patterns.
func (c *TelemetryClient) GetPatterns(ctx context.Context, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, "GetPatterns", &emptypb.Empty{}, opts...)
}

// GetCircuitBreakers fetches correction breaker state.
func (c *TelemetryClient) GetCircuitBreakers(ctx context.Context, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, "GetCircuitBreakers", &emptypb.Empty{}, opts...)
}

// GetAnalysis fetches trending patterns, predictions and recommendations from
// the latest analysis pass.
func (c *TelemetryClient) GetAnalysis(ctx context.Context, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, "GetAnalysis", &emptypb.Empty{}, opts...)
}
