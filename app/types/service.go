package types

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const LockServiceName = "records.locks.v1.LockService"

const (
	LockService_Acquire_FullMethodName      = "/" + LockServiceName + "/Acquire"
	LockService_Renew_FullMethodName        = "/" + LockServiceName + "/Renew"
	LockService_Release_FullMethodName      = "/" + LockServiceName + "/Release"
	LockService_Status_FullMethodName       = "/" + LockServiceName + "/Status"
	LockService_ChangeStatus_FullMethodName = "/" + LockServiceName + "/ChangeStatus"
)

// LockServiceServer is the server API for the record lock service.
type LockServiceServer interface {
	Acquire(context.Context, *LockRequest) (*LockResponse, error)
	Renew(context.Context, *LockRequest) (*LockResponse, error)
	Release(context.Context, *LockRequest) (*ReleaseResponse, error)
	Status(context.Context, *LockRequest) (*StatusResponse, error)
	ChangeStatus(context.Context, *ChangeStatusRequest) (*ChangeStatusResponse, error)
}

// UnimplementedLockServiceServer can be embedded to stay forward compatible.
type UnimplementedLockServiceServer struct{}

func (UnimplementedLockServiceServer) Acquire(context.Context, *LockRequest) (*LockResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method Acquire not implemented")
}

func (UnimplementedLockServiceServer) Renew(context.Context, *LockRequest) (*LockResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method Renew not implemented")
}

func (UnimplementedLockServiceServer) Release(context.Context, *LockRequest) (*ReleaseResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method Release not implemented")
}

func (UnimplementedLockServiceServer) Status(context.Context, *LockRequest) (*StatusResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method Status not implemented")
}

func (UnimplementedLockServiceServer) ChangeStatus(context.Context, *ChangeStatusRequest) (*ChangeStatusResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method ChangeStatus not implemented")
}

// RegisterLockServiceServer attaches srv to a gRPC server.
func RegisterLockServiceServer(s grpc.ServiceRegistrar, srv LockServiceServer) {
	s.RegisterService(&LockService_ServiceDesc, srv)
}

func unaryHandler[Req any, Resp any](method string, call func(LockServiceServer, context.Context, *Req) (*Resp, error)) func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	return func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(LockServiceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: method}
		handler := func(ctx context.Context, req interface{}) (interface{}, error) {
			return call(srv.(LockServiceServer), ctx, req.(*Req))
		}
		return interceptor(ctx, in, info, handler)
	}
}

var LockService_ServiceDesc = grpc.ServiceDesc{
	ServiceName: LockServiceName,
	HandlerType: (*LockServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Acquire", Handler: unaryHandler(LockService_Acquire_FullMethodName, LockServiceServer.Acquire)},
		{MethodName: "Renew", Handler: unaryHandler(LockService_Renew_FullMethodName, LockServiceServer.Renew)},
		{MethodName: "Release", Handler: unaryHandler(LockService_Release_FullMethodName, LockServiceServer.Release)},
		{MethodName: "Status", Handler: unaryHandler(LockService_Status_FullMethodName, LockServiceServer.Status)},
		{MethodName: "ChangeStatus", Handler: unaryHandler(LockService_ChangeStatus_FullMethodName, LockServiceServer.ChangeStatus)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "records/locks/v1/locks.proto",
}

// LockServiceClient is the client API for the record lock service.
type LockServiceClient interface {
	Acquire(ctx context.Context, in *LockRequest, opts ...grpc.CallOption) (*LockResponse, error)
	Renew(ctx context.Context, in *LockRequest, opts ...grpc.CallOption) (*LockResponse, error)
	Release(ctx context.Context, in *LockRequest, opts ...grpc.CallOption) (*ReleaseResponse, error)
	Status(ctx context.Context, in *LockRequest, opts ...grpc.CallOption) (*StatusResponse, error)
	ChangeStatus(ctx context.Context, in *ChangeStatusRequest, opts ...grpc.CallOption) (*ChangeStatusResponse, error)
}

type lockServiceClient struct {
	cc grpc.ClientConnInterface
}

// NewLockServiceClient wraps a connection; calls use the JSON codec.
func NewLockServiceClient(cc grpc.ClientConnInterface) LockServiceClient {
	return &lockServiceClient{cc: cc}
}

func (c *lockServiceClient) invoke(ctx context.Context, method string, in, out interface{}, opts []grpc.CallOption) error {
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	return c.cc.Invoke(ctx, method, in, out, opts...)
}

func (c *lockServiceClient) Acquire(ctx context.Context, in *LockRequest, opts ...grpc.CallOption) (*LockResponse, error) {
	out := new(LockResponse)
	if err := c.invoke(ctx, LockService_Acquire_FullMethodName, in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *lockServiceClient) Renew(ctx context.Context, in *LockRequest, opts ...grpc.CallOption) (*LockResponse, error) {
	out := new(LockResponse)
	if err := c.invoke(ctx, LockService_Renew_FullMethodName, in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *lockServiceClient) Release(ctx context.Context, in *LockRequest, opts ...grpc.CallOption) (*ReleaseResponse, error) {
	out := new(ReleaseResponse)
	if err := c.invoke(ctx, LockService_Release_FullMethodName, in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *lockServiceClient) Status(ctx context.Context, in *LockRequest, opts ...grpc.CallOption) (*StatusResponse, error) {
	out := new(StatusResponse)
	if err := c.invoke(ctx, LockService_Status_FullMethodName, in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *lockServiceClient) ChangeStatus(ctx context.Context, in *ChangeStatusRequest, opts ...grpc.CallOption) (*ChangeStatusResponse, error) {
	out := new(ChangeStatusResponse)
	if err := c.invoke(ctx, LockService_ChangeStatus_FullMethodName, in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}
