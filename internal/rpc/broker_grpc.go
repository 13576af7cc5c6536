// ABOUTME: gRPC service descriptor, server interface and client for a11y.v1.Broker
// ABOUTME: Mirrors the layout of generated grpc-go bindings over the JSON codec

package rpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "a11y.v1.Broker"

// Full method names.
const (
	Broker_SendAccessibilityEvent_FullMethodName = "/" + ServiceName + "/SendAccessibilityEvent"
	Broker_Interrupt_FullMethodName              = "/" + ServiceName + "/Interrupt"
	Broker_ActiveWindowBounds_FullMethodName     = "/" + ServiceName + "/ActiveWindowBounds"
	Broker_AddClient_FullMethodName              = "/" + ServiceName + "/AddClient"
	Broker_WindowStream_FullMethodName           = "/" + ServiceName + "/WindowStream"
	Broker_ServiceStream_FullMethodName          = "/" + ServiceName + "/ServiceStream"
)

// Stream types seen by server implementations.
type (
	Broker_AddClientServer     = grpc.ServerStreamingServer[ClientStateUpdate]
	Broker_WindowStreamServer  = grpc.BidiStreamingServer[WindowMessage, WindowCommand]
	Broker_ServiceStreamServer = grpc.BidiStreamingServer[ServiceMessage, ServiceCommand]
)

// Stream types seen by clients.
type (
	Broker_AddClientClient     = grpc.ServerStreamingClient[ClientStateUpdate]
	Broker_WindowStreamClient  = grpc.BidiStreamingClient[WindowMessage, WindowCommand]
	Broker_ServiceStreamClient = grpc.BidiStreamingClient[ServiceMessage, ServiceCommand]
)

// BrokerServer is the server API for the broker service.
type BrokerServer interface {
	SendAccessibilityEvent(context.Context, *SendEventRequest) (*Empty, error)
	Interrupt(context.Context, *InterruptRequest) (*Empty, error)
	ActiveWindowBounds(context.Context, *Empty) (*BoundsResponse, error)
	AddClient(*AddClientRequest, Broker_AddClientServer) error
	WindowStream(Broker_WindowStreamServer) error
	ServiceStream(Broker_ServiceStreamServer) error
}

// UnimplementedBrokerServer answers every call with codes.Unimplemented.
type UnimplementedBrokerServer struct{}

func (UnimplementedBrokerServer) SendAccessibilityEvent(context.Context, *SendEventRequest) (*Empty, error) {
	return nil, status.Error(codes.Unimplemented, "method SendAccessibilityEvent not implemented")
}

func (UnimplementedBrokerServer) Interrupt(context.Context, *InterruptRequest) (*Empty, error) {
	return nil, status.Error(codes.Unimplemented, "method Interrupt not implemented")
}

func (UnimplementedBrokerServer) ActiveWindowBounds(context.Context, *Empty) (*BoundsResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method ActiveWindowBounds not implemented")
}

func (UnimplementedBrokerServer) AddClient(*AddClientRequest, Broker_AddClientServer) error {
	return status.Error(codes.Unimplemented, "method AddClient not implemented")
}

func (UnimplementedBrokerServer) WindowStream(Broker_WindowStreamServer) error {
	return status.Error(codes.Unimplemented, "method WindowStream not implemented")
}

func (UnimplementedBrokerServer) ServiceStream(Broker_ServiceStreamServer) error {
	return status.Error(codes.Unimplemented, "method ServiceStream not implemented")
}

// RegisterBrokerServer registers srv with s.
func RegisterBrokerServer(s grpc.ServiceRegistrar, srv BrokerServer) {
	s.RegisterService(&Broker_ServiceDesc, srv)
}

func _Broker_SendAccessibilityEvent_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(SendEventRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(BrokerServer).SendAccessibilityEvent(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: Broker_SendAccessibilityEvent_FullMethodName}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(BrokerServer).SendAccessibilityEvent(ctx, req.(*SendEventRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _Broker_Interrupt_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(InterruptRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(BrokerServer).Interrupt(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: Broker_Interrupt_FullMethodName}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(BrokerServer).Interrupt(ctx, req.(*InterruptRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _Broker_ActiveWindowBounds_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(BrokerServer).ActiveWindowBounds(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: Broker_ActiveWindowBounds_FullMethodName}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(BrokerServer).ActiveWindowBounds(ctx, req.(*Empty))
	}
	return interceptor(ctx, in, info, handler)
}

func _Broker_AddClient_Handler(srv any, stream grpc.ServerStream) error {
	m := new(AddClientRequest)
	if err := stream.RecvMsg(m); err != nil {
		return err
	}
	return srv.(BrokerServer).AddClient(m, &grpc.GenericServerStream[AddClientRequest, ClientStateUpdate]{ServerStream: stream})
}

func _Broker_WindowStream_Handler(srv any, stream grpc.ServerStream) error {
	return srv.(BrokerServer).WindowStream(&grpc.GenericServerStream[WindowMessage, WindowCommand]{ServerStream: stream})
}

func _Broker_ServiceStream_Handler(srv any, stream grpc.ServerStream) error {
	return srv.(BrokerServer).ServiceStream(&grpc.GenericServerStream[ServiceMessage, ServiceCommand]{ServerStream: stream})
}

// Broker_ServiceDesc describes the broker service to grpc.Server.
var Broker_ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*BrokerServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "SendAccessibilityEvent", Handler: _Broker_SendAccessibilityEvent_Handler},
		{MethodName: "Interrupt", Handler: _Broker_Interrupt_Handler},
		{MethodName: "ActiveWindowBounds", Handler: _Broker_ActiveWindowBounds_Handler},
	},
	Streams: []grpc.StreamDesc{
		{StreamName: "AddClient", Handler: _Broker_AddClient_Handler, ServerStreams: true},
		{StreamName: "WindowStream", Handler: _Broker_WindowStream_Handler, ServerStreams: true, ClientStreams: true},
		{StreamName: "ServiceStream", Handler: _Broker_ServiceStream_Handler, ServerStreams: true, ClientStreams: true},
	},
	Metadata: "a11y/v1/broker",
}

// BrokerClient is the client API for the broker service.
type BrokerClient interface {
	SendAccessibilityEvent(ctx context.Context, in *SendEventRequest, opts ...grpc.CallOption) (*Empty, error)
	Interrupt(ctx context.Context, in *InterruptRequest, opts ...grpc.CallOption) (*Empty, error)
	ActiveWindowBounds(ctx context.Context, in *Empty, opts ...grpc.CallOption) (*BoundsResponse, error)
	AddClient(ctx context.Context, in *AddClientRequest, opts ...grpc.CallOption) (Broker_AddClientClient, error)
	WindowStream(ctx context.Context, opts ...grpc.CallOption) (Broker_WindowStreamClient, error)
	ServiceStream(ctx context.Context, opts ...grpc.CallOption) (Broker_ServiceStreamClient, error)
}

type brokerClient struct {
	cc grpc.ClientConnInterface
}

// NewBrokerClient returns a client that always uses the JSON codec.
func NewBrokerClient(cc grpc.ClientConnInterface) BrokerClient {
	return &brokerClient{cc: cc}
}

func withCodec(opts []grpc.CallOption) []grpc.CallOption {
	return append([]grpc.CallOption{CallOption()}, opts...)
}

func (c *brokerClient) SendAccessibilityEvent(ctx context.Context, in *SendEventRequest, opts ...grpc.CallOption) (*Empty, error) {
	out := new(Empty)
	if err := c.cc.Invoke(ctx, Broker_SendAccessibilityEvent_FullMethodName, in, out, withCodec(opts)...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *brokerClient) Interrupt(ctx context.Context, in *InterruptRequest, opts ...grpc.CallOption) (*Empty, error) {
	out := new(Empty)
	if err := c.cc.Invoke(ctx, Broker_Interrupt_FullMethodName, in, out, withCodec(opts)...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *brokerClient) ActiveWindowBounds(ctx context.Context, in *Empty, opts ...grpc.CallOption) (*BoundsResponse, error) {
	out := new(BoundsResponse)
	if err := c.cc.Invoke(ctx, Broker_ActiveWindowBounds_FullMethodName, in, out, withCodec(opts)...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *brokerClient) AddClient(ctx context.Context, in *AddClientRequest, opts ...grpc.CallOption) (Broker_AddClientClient, error) {
	stream, err := c.cc.NewStream(ctx, &Broker_ServiceDesc.Streams[0], Broker_AddClient_FullMethodName, withCodec(opts)...)
	if err != nil {
		return nil, err
	}
	x := &grpc.GenericClientStream[AddClientRequest, ClientStateUpdate]{ClientStream: stream}
	if err := x.ClientStream.SendMsg(in); err != nil {
		return nil, err
	}
	if err := x.ClientStream.CloseSend(); err != nil {
		return nil, err
	}
	return x, nil
}

func (c *brokerClient) WindowStream(ctx context.Context, opts ...grpc.CallOption) (Broker_WindowStreamClient, error) {
	stream, err := c.cc.NewStream(ctx, &Broker_ServiceDesc.Streams[1], Broker_WindowStream_FullMethodName, withCodec(opts)...)
	if err != nil {
		return nil, err
	}
	return &grpc.GenericClientStream[WindowMessage, WindowCommand]{ClientStream: stream}, nil
}

func (c *brokerClient) ServiceStream(ctx context.Context, opts ...grpc.CallOption) (Broker_ServiceStreamClient, error) {
	stream, err := c.cc.NewStream(ctx, &Broker_ServiceDesc.Streams[2], Broker_ServiceStream_FullMethodName, withCodec(opts)...)
	if err != nil {
		return nil, err
	}
	return &grpc.GenericClientStream[ServiceMessage, ServiceCommand]{ClientStream: stream}, nil
}
