// Package rpc exposes the metrics worker over gRPC. The service has a single
// unary method whose request and response are the worker's JSON messages
// wrapped in google.protobuf.BytesValue, so no generated stubs are needed.
package rpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "tradedesk.metrics.v1.Metrics"

// ComputeMethod is the full method path of Metrics/Compute.
const ComputeMethod = "/" + ServiceName + "/Compute"

// MetricsServer is the server API for the Metrics service.
type MetricsServer interface {
	Compute(ctx context.Context, in *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error)
}

// MetricsServiceDesc describes the Metrics service for grpc.Server.
var MetricsServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*MetricsServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Compute",
			Handler:    computeHandler,
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "tradedesk/metrics/v1/metrics.proto",
}

// RegisterMetricsServer registers srv on s.
func RegisterMetricsServer(s grpc.ServiceRegistrar, srv MetricsServer) {
	s.RegisterService(&MetricsServiceDesc, srv)
}

func computeHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(wrapperspb.BytesValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(MetricsServer).Compute(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: ComputeMethod,
	}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(MetricsServer).Compute(ctx, req.(*wrapperspb.BytesValue))
	}
	return interceptor(ctx, in, info, handler)
}
