package stream

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/durationpb"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "poseoverlay.PoseService"

const (
	methodResolve     = "/" + ServiceName + "/Resolve"
	methodStreamPoses = "/" + ServiceName + "/StreamPoses"
	methodSeek        = "/" + ServiceName + "/Seek"
	methodPlay        = "/" + ServiceName + "/Play"
	methodPause       = "/" + ServiceName + "/Pause"
	methodSetRate     = "/" + ServiceName + "/SetRate"
)

// PoseServiceServer is the server API for the pose service. Messages are
// protobuf well-known types so clients need no generated stubs: frames and
// playback status travel as Struct values mirroring the HTTP JSON bodies.
type PoseServiceServer interface {
	Resolve(context.Context, *durationpb.Duration) (*structpb.Struct, error)
	StreamPoses(*emptypb.Empty, grpc.ServerStreamingServer[structpb.Struct]) error
	Seek(context.Context, *durationpb.Duration) (*structpb.Struct, error)
	Play(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	Pause(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	SetRate(context.Context, *wrapperspb.DoubleValue) (*structpb.Struct, error)
}

// ServiceDesc describes PoseService for grpc.Server.RegisterService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*PoseServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Resolve", Handler: unaryHandler(methodResolve, PoseServiceServer.Resolve)},
		{MethodName: "Seek", Handler: unaryHandler(methodSeek, PoseServiceServer.Seek)},
		{MethodName: "Play", Handler: unaryHandler(methodPlay, PoseServiceServer.Play)},
		{MethodName: "Pause", Handler: unaryHandler(methodPause, PoseServiceServer.Pause)},
		{MethodName: "SetRate", Handler: unaryHandler(methodSetRate, PoseServiceServer.SetRate)},
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "StreamPoses",
			Handler:       streamPosesHandler,
			ServerStreams: true,
		},
	},
	Metadata: "poseoverlay/pose_service.proto",
}

// RegisterService registers srv with the gRPC server.
func RegisterService(s grpc.ServiceRegistrar, srv PoseServiceServer) {
	s.RegisterService(&ServiceDesc, srv)
}

func unaryHandler[Req any](fullMethod string, call func(PoseServiceServer, context.Context, *Req) (*structpb.Struct, error)) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(PoseServiceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(PoseServiceServer), ctx, req.(*Req))
		}
		return interceptor(ctx, in, info, handler)
	}
}

func streamPosesHandler(srv any, stream grpc.ServerStream) error {
	in := new(emptypb.Empty)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(PoseServiceServer).StreamPoses(in, &grpc.GenericServerStream[emptypb.Empty, structpb.Struct]{ServerStream: stream})
}

// Client calls a remote PoseService.
type Client struct {
	cc grpc.ClientConnInterface
}

// NewClient wraps an established connection.
func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

func (c *Client) Resolve(ctx context.Context, in *durationpb.Duration, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, methodResolve, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Seek(ctx context.Context, in *durationpb.Duration, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, methodSeek, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Play(ctx context.Context, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, methodPlay, &emptypb.Empty{}, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Pause(ctx context.Context, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, methodPause, &emptypb.Empty{}, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) SetRate(ctx context.Context, rate float64, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, methodSetRate, wrapperspb.Double(rate), out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// StreamPoses subscribes to frames; Recv blocks until the playback position
// moves.
func (c *Client) StreamPoses(ctx context.Context, opts ...grpc.CallOption) (grpc.ServerStreamingClient[structpb.Struct], error) {
	stream, err := c.cc.NewStream(ctx, &ServiceDesc.Streams[0], methodStreamPoses, opts...)
	if err != nil {
		return nil, err
	}
	x := &grpc.GenericClientStream[emptypb.Empty, structpb.Struct]{ClientStream: stream}
	if err := x.ClientStream.SendMsg(&emptypb.Empty{}); err != nil {
		return nil, err
	}
	if err := x.ClientStream.CloseSend(); err != nil {
		return nil, err
	}
	return x, nil
}
