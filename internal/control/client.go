package control

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

// Client is a typed client for the SimulatorControl service.
type Client struct {
	cc grpc.ClientConnInterface
}

// NewClient wraps an established connection.
func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

// WithRequestID tags outgoing calls on ctx with id.
func WithRequestID(ctx context.Context, id string) context.Context {
	return metadata.AppendToOutgoingContext(ctx, RequestIDMetadataKey, id)
}

// Generate asks the server to synthesize a new series.
func (c *Client) Generate(ctx context.Context, req GenerateRequest, opts ...grpc.CallOption) (GenerateReply, error) {
	in, err := req.ToStruct()
	if err != nil {
		return GenerateReply{}, err
	}
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, GenerateMethod, in, out, opts...); err != nil {
		return GenerateReply{}, err
	}
	return GenerateReplyFromStruct(out)
}

// Start begins transmission of the published series.
func (c *Client) Start(ctx context.Context, opts ...grpc.CallOption) (StatusReply, error) {
	return c.invokeStatus(ctx, StartMethod, opts...)
}

// Stop halts transmission.
func (c *Client) Stop(ctx context.Context, opts ...grpc.CallOption) (StatusReply, error) {
	return c.invokeStatus(ctx, StopMethod, opts...)
}

// Status reports transmitter and series status.
func (c *Client) Status(ctx context.Context, opts ...grpc.CallOption) (StatusReply, error) {
	return c.invokeStatus(ctx, StatusMethod, opts...)
}

func (c *Client) invokeStatus(ctx context.Context, method string, opts ...grpc.CallOption) (StatusReply, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, method, &emptypb.Empty{}, out, opts...); err != nil {
		return StatusReply{}, err
	}
	return StatusReplyFromStruct(out)
}
