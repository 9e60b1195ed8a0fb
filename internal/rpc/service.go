package rpc

import (
	"context"

	"google.golang.org/grpc"
)

// ServiceName is the gRPC full method prefix.
const ServiceName = "simcore.ExchangeSimulator"

// ExchangeSimulatorServer is implemented by C1 and registered against a
// *grpc.Server with RegisterExchangeSimulatorServer.
type ExchangeSimulatorServer interface {
	Heartbeat(context.Context, *HeartbeatRequest) (*HeartbeatResponse, error)
	StreamExchangeData(*StreamExchangeDataRequest, ExchangeSimulator_StreamExchangeDataServer) error
	SubmitOrder(context.Context, *SubmitOrderRequest) (*SubmitOrderResponse, error)
	CancelOrder(context.Context, *CancelOrderRequest) (*CancelOrderResponse, error)
	SubmitConviction(context.Context, *SubmitConvictionRequest) (*SubmitConvictionResponse, error)
}

// ExchangeSimulator_StreamExchangeDataServer is the server-side handle for the
// single-subscriber market-data stream.
type ExchangeSimulator_StreamExchangeDataServer interface {
	Send(*ExchangeDataUpdate) error
	grpc.ServerStream
}

type streamExchangeDataServer struct {
	grpc.ServerStream
}

func (s *streamExchangeDataServer) Send(m *ExchangeDataUpdate) error {
	return s.ServerStream.SendMsg(m)
}

func handleStreamExchangeData(srv any, stream grpc.ServerStream) error {
	m := new(StreamExchangeDataRequest)
	if err := stream.RecvMsg(m); err != nil {
		return err
	}
	return srv.(ExchangeSimulatorServer).StreamExchangeData(m, &streamExchangeDataServer{stream})
}

func handleHeartbeat(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(HeartbeatRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ExchangeSimulatorServer).Heartbeat(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: ServiceName + "/Heartbeat"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(ExchangeSimulatorServer).Heartbeat(ctx, req.(*HeartbeatRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func handleSubmitOrder(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(SubmitOrderRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ExchangeSimulatorServer).SubmitOrder(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: ServiceName + "/SubmitOrder"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(ExchangeSimulatorServer).SubmitOrder(ctx, req.(*SubmitOrderRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func handleCancelOrder(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(CancelOrderRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ExchangeSimulatorServer).CancelOrder(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: ServiceName + "/CancelOrder"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(ExchangeSimulatorServer).CancelOrder(ctx, req.(*CancelOrderRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func handleSubmitConviction(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(SubmitConvictionRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ExchangeSimulatorServer).SubmitConviction(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: ServiceName + "/SubmitConviction"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(ExchangeSimulatorServer).SubmitConviction(ctx, req.(*SubmitConvictionRequest))
	}
	return interceptor(ctx, in, info, handler)
}

// ServiceDesc is the grpc.ServiceDesc for ExchangeSimulatorServer.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*ExchangeSimulatorServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Heartbeat", Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			return handleHeartbeat(srv, ctx, dec, interceptor)
		}},
		{MethodName: "SubmitOrder", Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			return handleSubmitOrder(srv, ctx, dec, interceptor)
		}},
		{MethodName: "CancelOrder", Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			return handleCancelOrder(srv, ctx, dec, interceptor)
		}},
		{MethodName: "SubmitConviction", Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			return handleSubmitConviction(srv, ctx, dec, interceptor)
		}},
	},
	Streams: []grpc.StreamDesc{
		{StreamName: "StreamExchangeData", Handler: handleStreamExchangeData, ServerStreams: true},
	},
	Metadata: "simcore/rpc/simulator.proto",
}

// RegisterExchangeSimulatorServer registers srv against s.
func RegisterExchangeSimulatorServer(s *grpc.Server, srv ExchangeSimulatorServer) {
	s.RegisterService(&ServiceDesc, srv)
}

// ExchangeSimulatorClient is implemented by the hand-written client stub
// below and used by C2 (session forwarding and heartbeat relay) and C4
// (order/conviction forwarding). C3 does not call it.
type ExchangeSimulatorClient interface {
	Heartbeat(ctx context.Context, in *HeartbeatRequest, opts ...grpc.CallOption) (*HeartbeatResponse, error)
	StreamExchangeData(ctx context.Context, in *StreamExchangeDataRequest, opts ...grpc.CallOption) (ExchangeSimulator_StreamExchangeDataClient, error)
	SubmitOrder(ctx context.Context, in *SubmitOrderRequest, opts ...grpc.CallOption) (*SubmitOrderResponse, error)
	CancelOrder(ctx context.Context, in *CancelOrderRequest, opts ...grpc.CallOption) (*CancelOrderResponse, error)
	SubmitConviction(ctx context.Context, in *SubmitConvictionRequest, opts ...grpc.CallOption) (*SubmitConvictionResponse, error)
}

type ExchangeSimulator_StreamExchangeDataClient interface {
	Recv() (*ExchangeDataUpdate, error)
	grpc.ClientStream
}

type exchangeSimulatorClient struct {
	cc *grpc.ClientConn
}

// NewExchangeSimulatorClient wraps a dialed connection. Every call is made
// with the "json" codec content-subtype (see codec.go).
func NewExchangeSimulatorClient(cc *grpc.ClientConn) ExchangeSimulatorClient {
	return &exchangeSimulatorClient{cc: cc}
}

func withJSONCodec(opts []grpc.CallOption) []grpc.CallOption {
	return append(opts, grpc.CallContentSubtype(codecName))
}

func (c *exchangeSimulatorClient) Heartbeat(ctx context.Context, in *HeartbeatRequest, opts ...grpc.CallOption) (*HeartbeatResponse, error) {
	out := new(HeartbeatResponse)
	err := c.cc.Invoke(ctx, ServiceName+"/Heartbeat", in, out, withJSONCodec(opts)...)
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (c *exchangeSimulatorClient) SubmitOrder(ctx context.Context, in *SubmitOrderRequest, opts ...grpc.CallOption) (*SubmitOrderResponse, error) {
	out := new(SubmitOrderResponse)
	err := c.cc.Invoke(ctx, ServiceName+"/SubmitOrder", in, out, withJSONCodec(opts)...)
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (c *exchangeSimulatorClient) CancelOrder(ctx context.Context, in *CancelOrderRequest, opts ...grpc.CallOption) (*CancelOrderResponse, error) {
	out := new(CancelOrderResponse)
	err := c.cc.Invoke(ctx, ServiceName+"/CancelOrder", in, out, withJSONCodec(opts)...)
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (c *exchangeSimulatorClient) SubmitConviction(ctx context.Context, in *SubmitConvictionRequest, opts ...grpc.CallOption) (*SubmitConvictionResponse, error) {
	out := new(SubmitConvictionResponse)
	err := c.cc.Invoke(ctx, ServiceName+"/SubmitConviction", in, out, withJSONCodec(opts)...)
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (c *exchangeSimulatorClient) StreamExchangeData(ctx context.Context, in *StreamExchangeDataRequest, opts ...grpc.CallOption) (ExchangeSimulator_StreamExchangeDataClient, error) {
	stream, err := c.cc.NewStream(ctx, &ServiceDesc.Streams[0], ServiceName+"/StreamExchangeData", withJSONCodec(opts)...)
	if err != nil {
		return nil, err
	}
	x := &exchangeSimulatorStreamClient{stream}
	if err := x.ClientStream.SendMsg(in); err != nil {
		return nil, err
	}
	if err := x.ClientStream.CloseSend(); err != nil {
		return nil, err
	}
	return x, nil
}

type exchangeSimulatorStreamClient struct {
	grpc.ClientStream
}

func (x *exchangeSimulatorStreamClient) Recv() (*ExchangeDataUpdate, error) {
	m := new(ExchangeDataUpdate)
	if err := x.ClientStream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}
