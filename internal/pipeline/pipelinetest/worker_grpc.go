package pipelinetest

import (
	"context"
	"errors"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"

	"diffusiond/internal/pipeline"
)

// NewGRPCServer returns a server exposing w as the pipeline service plus the
// standard health service reporting it as serving.
func NewGRPCServer(w *Worker, opts ...grpc.ServerOption) *grpc.Server {
	s := grpc.NewServer(opts...)
	s.RegisterService(&serviceDesc, w)
	hs := health.NewServer()
	hs.SetServingStatus(pipeline.GRPCServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(s, hs)
	return s
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: pipeline.GRPCServiceName,
	HandlerType: (*any)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Load", Handler: unary("Load", func(ctx context.Context, w *Worker, in *pipeline.PretrainedOptions) (any, error) {
			return w.load(ctx, *in)
		})},
		{MethodName: "Place", Handler: unary("Place", func(ctx context.Context, w *Worker, in *placeArgs) (any, error) {
			return emptyReply{}, w.place(ctx, in.ID, in.Device)
		})},
		{MethodName: "LoadLoRA", Handler: unary("LoadLoRA", func(ctx context.Context, w *Worker, in *loraArgs) (any, error) {
			return emptyReply{}, w.lora(ctx, in.ID, in.Path)
		})},
		{MethodName: "Generate", Handler: unary("Generate", func(ctx context.Context, w *Worker, in *generateArgs) (any, error) {
			return w.generate(ctx, in.ID, in.Kwargs)
		})},
		{MethodName: "Release", Handler: unary("Release", func(ctx context.Context, w *Worker, in *releaseArgs) (any, error) {
			return emptyReply{}, w.release(in.ID)
		})},
	},
	Streams: []grpc.StreamDesc{},
}

func unary[T any](method string, fn func(context.Context, *Worker, *T) (any, error)) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(T)
		if err := dec(in); err != nil {
			return nil, status.Error(codes.InvalidArgument, err.Error())
		}
		call := func(ctx context.Context, req any) (any, error) {
			out, err := fn(ctx, srv.(*Worker), req.(*T))
			if err != nil {
				return nil, toStatus(err)
			}
			return out, nil
		}
		if interceptor == nil {
			return call(ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + pipeline.GRPCServiceName + "/" + method}
		return interceptor(ctx, in, info, call)
	}
}

func toStatus(err error) error {
	if errors.Is(err, errUnknownPipeline) {
		return status.Error(codes.NotFound, err.Error())
	}
	return status.Error(codes.Internal, err.Error())
}
