package grpcx

import (
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// NewClient builds a lazily-connecting client with tracing and request id propagation.
// Transport credentials default to insecure (cluster-internal traffic, mTLS at the mesh layer).
func NewClient(addr string, creds grpc.DialOption, extra ...grpc.DialOption) (*grpc.ClientConn, error) {
	if creds == nil {
		creds = grpc.WithTransportCredentials(insecure.NewCredentials())
	}
	opts := []grpc.DialOption{
		creds,
		grpc.WithStatsHandler(otelgrpc.NewClientHandler()),
		grpc.WithChainUnaryInterceptor(UnaryClientRequestIDInterceptor()),
	}
	opts = append(opts, extra...)
	return grpc.NewClient(addr, opts...)
}

// ServerOptions are the options every gRPC server in the repo starts with.
func ServerOptions(extra ...grpc.ServerOption) []grpc.ServerOption {
	opts := []grpc.ServerOption{
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(UnaryServerRequestIDInterceptor()),
	}
	return append(opts, extra...)
}
