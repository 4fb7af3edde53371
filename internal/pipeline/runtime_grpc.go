package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"net/http"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/encoding"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"diffusiond/internal/payload"
)

// GRPCServiceName is the worker service; methods are Load, Place, LoadLoRA,
// Generate and Release, all unary and JSON encoded.
const GRPCServiceName = "diffusiond.runtime.v1.Pipeline"

func init() { encoding.RegisterCodec(jsonCodec{}) }

// jsonCodec carries the plain wire structs over gRPC under content-subtype "json".
type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error)      { return json.Marshal(v) }
func (jsonCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }
func (jsonCodec) Name() string                       { return "json" }

// GRPCRuntime implements Runtime against a gRPC worker.
type GRPCRuntime struct {
	addr   string
	apiKey string
	conn   *grpc.ClientConn
}

// NewGRPCRuntime creates a client; the connection is established lazily.
func NewGRPCRuntime(addr, apiKey string) (*GRPCRuntime, error) {
	conn, err := grpc.NewClient(addr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(jsonCodec{}.Name())),
	)
	if err != nil {
		return nil, fmt.Errorf("grpc runtime: %w", err)
	}
	return &GRPCRuntime{addr: addr, apiKey: apiKey, conn: conn}, nil
}

// Addr returns the worker target.
func (r *GRPCRuntime) Addr() string { return r.addr }

// Healthy asks the standard health service about the pipeline service.
func (r *GRPCRuntime) Healthy(ctx context.Context) error {
	res, err := healthpb.NewHealthClient(r.conn).Check(ctx,
		&healthpb.HealthCheckRequest{Service: GRPCServiceName},
		grpc.CallContentSubtype("proto"),
	)
	if err != nil {
		return r.translate(ctx, "health", err)
	}
	if res.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		return ErrDependencyUnavailable("runtime not serving: " + res.GetStatus().String())
	}
	return nil
}

func (r *GRPCRuntime) LoadPretrained(ctx context.Context, opts PretrainedOptions) (Pipeline, error) {
	var out loadResponse
	if err := r.invoke(ctx, "Load", opts, &out); err != nil {
		return nil, err
	}
	if out.ID == "" {
		return nil, errors.New("runtime load: empty pipeline id")
	}
	return &grpcPipeline{rt: r, id: out.ID}, nil
}

// Close tears down the client connection.
func (r *GRPCRuntime) Close() error { return r.conn.Close() }

func (r *GRPCRuntime) invoke(ctx context.Context, method string, in, out any) error {
	md := metadata.Pairs("x-request-id", requestID(ctx))
	if r.apiKey != "" {
		md.Set("authorization", "Bearer "+r.apiKey)
	}
	ctx = metadata.NewOutgoingContext(ctx, md)
	if out == nil {
		out = &empty{}
	}
	if err := r.conn.Invoke(ctx, "/"+GRPCServiceName+"/"+method, in, out); err != nil {
		return r.translate(ctx, method, err)
	}
	return nil
}

// translate maps gRPC status codes onto the errors the HTTP runtime returns.
func (r *GRPCRuntime) translate(ctx context.Context, op string, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	st, ok := status.FromError(err)
	if !ok {
		return err
	}
	switch st.Code() {
	case codes.Unavailable:
		return ErrDependencyUnavailable("runtime unreachable: " + st.Message())
	case codes.InvalidArgument, codes.FailedPrecondition, codes.NotFound:
		return &RuntimeError{Op: op, Status: http.StatusBadRequest, Body: st.Message()}
	default:
		return &RuntimeError{Op: op, Status: http.StatusInternalServerError, Body: st.Code().String() + ": " + st.Message()}
	}
}

type grpcPipeline struct {
	rt *GRPCRuntime
	id string
}

func (p *grpcPipeline) Place(ctx context.Context, d Device) error {
	return p.rt.invoke(ctx, "Place", placeRequest{ID: p.id, Device: d}, nil)
}

func (p *grpcPipeline) LoadLoRAWeights(ctx context.Context, path string) error {
	return p.rt.invoke(ctx, "LoadLoRA", loraRequest{ID: p.id, Path: path}, nil)
}

func (p *grpcPipeline) Generate(ctx context.Context, params payload.Params) ([]image.Image, error) {
	var out generateResponse
	if err := p.rt.invoke(ctx, "Generate", generateRequest{ID: p.id, Kwargs: params}, &out); err != nil {
		return nil, err
	}
	return decodeImages(out.Images)
}

func (p *grpcPipeline) Close() error {
	return p.rt.invoke(context.Background(), "Release", releaseRequest{ID: p.id}, nil)
}
