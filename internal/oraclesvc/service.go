// Package oraclesvc exposes an encryption oracle over gRPC and provides a
// client that attacks can use as a remote black box.
package oraclesvc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

const (
	// ServiceName is the fully qualified gRPC service name.
	ServiceName = "cipherlab.v1.Oracle"

	encryptMethod = "/" + ServiceName + "/Encrypt"
)

// OracleServer is the server API for the oracle service. Messages are
// wrapped byte strings so no generated code is needed.
type OracleServer interface {
	Encrypt(context.Context, *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error)
}

// RegisterOracleServer attaches srv to a gRPC server.
func RegisterOracleServer(s grpc.ServiceRegistrar, srv OracleServer) {
	s.RegisterService(&oracleServiceDesc, srv)
}

func encryptHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(wrapperspb.BytesValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(OracleServer).Encrypt(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: encryptMethod,
	}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(OracleServer).Encrypt(ctx, req.(*wrapperspb.BytesValue))
	}
	return interceptor(ctx, in, info, handler)
}

var oracleServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*OracleServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Encrypt",
			Handler:    encryptHandler,
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "cipherlab/v1/oracle.proto",
}
