package objstore

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const ServiceName = "srk.objstore.v1.Storage"

const (
	methodRead       = "/" + ServiceName + "/Read"
	methodWrite      = "/" + ServiceName + "/Write"
	methodDelete     = "/" + ServiceName + "/Delete"
	methodListBlobs  = "/" + ServiceName + "/ListBlobs"
	methodExists     = "/" + ServiceName + "/Exists"
	methodPreSignUrl = "/" + ServiceName + "/PreSignUrl"
)

// StorageClient is the client API for the Storage service. Implementations
// must be safe for concurrent use.
type StorageClient interface {
	Read(ctx context.Context, in *StorageReadRequest, opts ...grpc.CallOption) (*StorageReadResponse, error)
	Write(ctx context.Context, in *StorageWriteRequest, opts ...grpc.CallOption) (*StorageWriteResponse, error)
	Delete(ctx context.Context, in *StorageDeleteRequest, opts ...grpc.CallOption) (*StorageDeleteResponse, error)
	ListBlobs(ctx context.Context, in *StorageListBlobsRequest, opts ...grpc.CallOption) (*StorageListBlobsResponse, error)
	Exists(ctx context.Context, in *StorageExistsRequest, opts ...grpc.CallOption) (*StorageExistsResponse, error)
	PreSignUrl(ctx context.Context, in *StoragePreSignUrlRequest, opts ...grpc.CallOption) (*StoragePreSignUrlResponse, error)
}

type storageClient struct {
	cc grpc.ClientConnInterface
}

func NewStorageClient(cc grpc.ClientConnInterface) StorageClient {
	return &storageClient{cc}
}

func (c *storageClient) invoke(ctx context.Context, method string, in, out Message, opts []grpc.CallOption) error {
	opts = append([]grpc.CallOption{grpc.ForceCodec(codec{})}, opts...)
	return c.cc.Invoke(ctx, method, in, out, opts...)
}

func (c *storageClient) Read(ctx context.Context, in *StorageReadRequest, opts ...grpc.CallOption) (*StorageReadResponse, error) {
	out := new(StorageReadResponse)
	if err := c.invoke(ctx, methodRead, in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *storageClient) Write(ctx context.Context, in *StorageWriteRequest, opts ...grpc.CallOption) (*StorageWriteResponse, error) {
	out := new(StorageWriteResponse)
	if err := c.invoke(ctx, methodWrite, in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *storageClient) Delete(ctx context.Context, in *StorageDeleteRequest, opts ...grpc.CallOption) (*StorageDeleteResponse, error) {
	out := new(StorageDeleteResponse)
	if err := c.invoke(ctx, methodDelete, in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *storageClient) ListBlobs(ctx context.Context, in *StorageListBlobsRequest, opts ...grpc.CallOption) (*StorageListBlobsResponse, error) {
	out := new(StorageListBlobsResponse)
	if err := c.invoke(ctx, methodListBlobs, in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *storageClient) Exists(ctx context.Context, in *StorageExistsRequest, opts ...grpc.CallOption) (*StorageExistsResponse, error) {
	out := new(StorageExistsResponse)
	if err := c.invoke(ctx, methodExists, in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *storageClient) PreSignUrl(ctx context.Context, in *StoragePreSignUrlRequest, opts ...grpc.CallOption) (*StoragePreSignUrlResponse, error) {
	out := new(StoragePreSignUrlResponse)
	if err := c.invoke(ctx, methodPreSignUrl, in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

// StorageServer is the server API for the Storage service.
type StorageServer interface {
	Read(context.Context, *StorageReadRequest) (*StorageReadResponse, error)
	Write(context.Context, *StorageWriteRequest) (*StorageWriteResponse, error)
	Delete(context.Context, *StorageDeleteRequest) (*StorageDeleteResponse, error)
	ListBlobs(context.Context, *StorageListBlobsRequest) (*StorageListBlobsResponse, error)
	Exists(context.Context, *StorageExistsRequest) (*StorageExistsResponse, error)
	PreSignUrl(context.Context, *StoragePreSignUrlRequest) (*StoragePreSignUrlResponse, error)
}

// UnimplementedStorageServer can be embedded to have forward compatible implementations.
type UnimplementedStorageServer struct{}

func (UnimplementedStorageServer) Read(context.Context, *StorageReadRequest) (*StorageReadResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method Read not implemented")
}

func (UnimplementedStorageServer) Write(context.Context, *StorageWriteRequest) (*StorageWriteResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method Write not implemented")
}

func (UnimplementedStorageServer) Delete(context.Context, *StorageDeleteRequest) (*StorageDeleteResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method Delete not implemented")
}

func (UnimplementedStorageServer) ListBlobs(context.Context, *StorageListBlobsRequest) (*StorageListBlobsResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method ListBlobs not implemented")
}

func (UnimplementedStorageServer) Exists(context.Context, *StorageExistsRequest) (*StorageExistsResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method Exists not implemented")
}

func (UnimplementedStorageServer) PreSignUrl(context.Context, *StoragePreSignUrlRequest) (*StoragePreSignUrlResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method PreSignUrl not implemented")
}

// RegisterStorageServer registers srv on s. The server must have been created
// with ServerOptions.
func RegisterStorageServer(s grpc.ServiceRegistrar, srv StorageServer) {
	s.RegisterService(&storageServiceDesc, srv)
}

// unaryHandler adapts one StorageServer method to grpc.MethodDesc. newIn
// allocates the request, call invokes the server method.
func unaryHandler(fullMethod string, newIn func() Message, call func(StorageServer, context.Context, Message) (interface{}, error)) func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	return func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
		in := newIn()
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(StorageServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{
			Server:     srv,
			FullMethod: fullMethod,
		}
		handler := func(ctx context.Context, req interface{}) (interface{}, error) {
			return call(srv.(StorageServer), ctx, req.(Message))
		}
		return interceptor(ctx, in, info, handler)
	}
}

var storageServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*StorageServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Read",
			Handler: unaryHandler(methodRead,
				func() Message { return new(StorageReadRequest) },
				func(s StorageServer, ctx context.Context, in Message) (interface{}, error) {
					return s.Read(ctx, in.(*StorageReadRequest))
				}),
		},
		{
			MethodName: "Write",
			Handler: unaryHandler(methodWrite,
				func() Message { return new(StorageWriteRequest) },
				func(s StorageServer, ctx context.Context, in Message) (interface{}, error) {
					return s.Write(ctx, in.(*StorageWriteRequest))
				}),
		},
		{
			MethodName: "Delete",
			Handler: unaryHandler(methodDelete,
				func() Message { return new(StorageDeleteRequest) },
				func(s StorageServer, ctx context.Context, in Message) (interface{}, error) {
					return s.Delete(ctx, in.(*StorageDeleteRequest))
				}),
		},
		{
			MethodName: "ListBlobs",
			Handler: unaryHandler(methodListBlobs,
				func() Message { return new(StorageListBlobsRequest) },
				func(s StorageServer, ctx context.Context, in Message) (interface{}, error) {
					return s.ListBlobs(ctx, in.(*StorageListBlobsRequest))
				}),
		},
		{
			MethodName: "Exists",
			Handler: unaryHandler(methodExists,
				func() Message { return new(StorageExistsRequest) },
				func(s StorageServer, ctx context.Context, in Message) (interface{}, error) {
					return s.Exists(ctx, in.(*StorageExistsRequest))
				}),
		},
		{
			MethodName: "PreSignUrl",
			Handler: unaryHandler(methodPreSignUrl,
				func() Message { return new(StoragePreSignUrlRequest) },
				func(s StorageServer, ctx context.Context, in Message) (interface{}, error) {
					return s.PreSignUrl(ctx, in.(*StoragePreSignUrlRequest))
				}),
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "srk/objstore/v1/storage.proto",
}
