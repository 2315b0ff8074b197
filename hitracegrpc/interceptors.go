// Package hitracegrpc carries hitrace IDs across gRPC calls.
//
// Client interceptors derive a child span from the Chain in the call context
// and send it as binary metadata. Server interceptors decode it into a fresh
// Chain attached to the handler context:
//
//	srv := grpc.NewServer(
//		grpc.UnaryInterceptor(hitracegrpc.UnaryServerInterceptor(tracer)),
//	)
//	conn, err := grpc.NewClient(target,
//		grpc.WithUnaryInterceptor(hitracegrpc.UnaryClientInterceptor(tracer)),
//	)
package hitracegrpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"

	"github.com/zoobzio/hitrace"
)

// MetadataKey is the metadata key holding the 16-byte ID. The -bin suffix
// makes gRPC transmit the raw bytes.
const MetadataKey = "hitrace-id-bin"

// UnaryClientInterceptor propagates the caller's trace ID on unary calls.
func UnaryClientInterceptor(t *hitrace.Tracer) grpc.UnaryClientInterceptor {
	return func(ctx context.Context, method string, req, reply interface{}, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
		return invoker(inject(ctx, t, method), method, req, reply, cc, opts...)
	}
}

// StreamClientInterceptor propagates the caller's trace ID on streams.
func StreamClientInterceptor(t *hitrace.Tracer) grpc.StreamClientInterceptor {
	return func(ctx context.Context, desc *grpc.StreamDesc, cc *grpc.ClientConn, method string, streamer grpc.Streamer, opts ...grpc.CallOption) (grpc.ClientStream, error) {
		return streamer(inject(ctx, t, method), desc, cc, method, opts...)
	}
}

// UnaryServerInterceptor installs the received trace ID for the handler.
func UnaryServerInterceptor(t *hitrace.Tracer) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		ctx, c := extract(ctx, t, info.FullMethod)
		if c != nil {
			defer c.ClearID()
		}
		return handler(ctx, req)
	}
}

// StreamServerInterceptor installs the received trace ID for the handler.
func StreamServerInterceptor(t *hitrace.Tracer) grpc.StreamServerInterceptor {
	return func(srv interface{}, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		ctx, c := extract(ss.Context(), t, info.FullMethod)
		if c == nil {
			return handler(srv, ss)
		}
		defer c.ClearID()
		return handler(srv, &serverStream{ServerStream: ss, ctx: ctx})
	}
}

// serverStream overrides the stream context with one carrying the chain.
type serverStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (s *serverStream) Context() context.Context {
	return s.ctx
}

func inject(ctx context.Context, t *hitrace.Tracer, method string) context.Context {
	c := hitrace.FromContext(ctx)
	if c == nil {
		return ctx
	}
	id := c.CreateSpan()
	if !id.IsValid() {
		return ctx
	}
	c.Tracepoint(hitrace.CommProcess, hitrace.TpCS, id, "client send %s", method)
	t.Logger().Trace("propagating trace id", "method", method, "trace_id", id.String())
	return metadata.AppendToOutgoingContext(ctx, MetadataKey, string(id.Bytes()))
}

// extract returns ctx with a Chain holding the received ID, or ctx and nil
// when the call carries no usable ID.
func extract(ctx context.Context, t *hitrace.Tracer, method string) (context.Context, *hitrace.Chain) {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ctx, nil
	}
	vals := md.Get(MetadataKey)
	if len(vals) == 0 {
		return ctx, nil
	}
	id := hitrace.FromBytes([]byte(vals[0]))
	if !id.IsValid() {
		t.Logger().Debug("ignoring malformed trace id", "method", method, "len", len(vals[0]))
		return ctx, nil
	}

	c := t.NewChain()
	c.SetID(id)
	c.Tracepoint(hitrace.CommProcess, hitrace.TpSR, id, "server receive %s", method)
	return hitrace.NewContext(ctx, c), c
}
