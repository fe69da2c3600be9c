// AngelaMos | 2026
// interceptor.go

package stream

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
)

// StreamInterceptor runs OnConnect against the stream's metadata. The bound
// context is fixed for the life of the stream.
func (b *Bridge) StreamInterceptor() grpc.StreamServerInterceptor {
	return func(
		srv any,
		ss grpc.ServerStream,
		_ *grpc.StreamServerInfo,
		handler grpc.StreamHandler,
	) error {
		md, _ := metadata.FromIncomingContext(ss.Context())
		attrs := NewAttributes()

		ctx := b.OnConnect(ss.Context(), Handshake{
			Headers:    Headers(md),
			Attributes: attrs,
		})
		ctx = withAttributes(ctx, attrs)

		return handler(srv, &boundStream{ServerStream: ss, ctx: ctx})
	}
}

type boundStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (s *boundStream) Context() context.Context {
	return s.ctx
}
