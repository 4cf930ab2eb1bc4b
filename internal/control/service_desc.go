package control

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully-qualified gRPC service name of the control plane.
const ServiceName = "interferometer.control.v1.SimulatorControl"

// Full method names, as seen by interceptors.
const (
	GenerateMethod = "/" + ServiceName + "/Generate"
	StartMethod    = "/" + ServiceName + "/Start"
	StopMethod     = "/" + ServiceName + "/Stop"
	StatusMethod   = "/" + ServiceName + "/Status"
)

// SimulatorControlServer is the server API of the control plane. Messages are
// protobuf well-known types so that no generated code is required.
type SimulatorControlServer interface {
	Generate(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Start(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	Stop(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	Status(context.Context, *emptypb.Empty) (*structpb.Struct, error)
}

// RegisterSimulatorControlServer registers srv on s.
func RegisterSimulatorControlServer(s grpc.ServiceRegistrar, srv SimulatorControlServer) {
	s.RegisterService(&ServiceDesc, srv)
}

// ServiceDesc describes the SimulatorControl service.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*SimulatorControlServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Generate", Handler: generateHandler},
		{MethodName: "Start", Handler: emptyHandler(StartMethod, SimulatorControlServer.Start)},
		{MethodName: "Stop", Handler: emptyHandler(StopMethod, SimulatorControlServer.Stop)},
		{MethodName: "Status", Handler: emptyHandler(StatusMethod, SimulatorControlServer.Status)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "interferometer/control/v1/control.proto",
}

func generateHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(SimulatorControlServer).Generate(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: GenerateMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(SimulatorControlServer).Generate(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

type emptyMethod func(SimulatorControlServer, context.Context, *emptypb.Empty) (*structpb.Struct, error)

func emptyHandler(fullMethod string, call emptyMethod) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(emptypb.Empty)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(SimulatorControlServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(SimulatorControlServer), ctx, req.(*emptypb.Empty))
		}
		return interceptor(ctx, in, info, handler)
	}
}
