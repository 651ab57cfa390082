package stream

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/banshee-data/lidarview/internal/monitoring"
	"github.com/banshee-data/lidarview/internal/view"
	"github.com/banshee-data/lidarview/internal/view/wire"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "lidarview.VisualiserService"

// streamFramesMethod is the full method path for the frame stream RPC.
const streamFramesMethod = "/" + ServiceName + "/StreamFrames"

// maxMsgSize bounds a single frame message. Full-resolution frames from a
// Pandar40P run ~1MB; 16MB leaves room for dense backgrounds.
const maxMsgSize = 16 * 1024 * 1024

// Client is a gRPC client for the visualiser frame stream.
type Client struct {
	id   string
	addr string
	conn *grpc.ClientConn
}

// Dial creates a client for the given address. The connection is lazy; the
// first RPC establishes it.
func Dial(addr string) (*Client, error) {
	conn, err := grpc.NewClient(addr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(
			grpc.MaxCallRecvMsgSize(maxMsgSize),
			grpc.MaxCallSendMsgSize(maxMsgSize),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create client for %s: %w", addr, err)
	}
	return &Client{
		id:   "viewer-" + uuid.NewString()[:8],
		addr: addr,
		conn: conn,
	}, nil
}

// ID returns the client's viewer ID, sent as the sensor filter default.
func (c *Client) ID() string { return c.id }

// StreamFrames opens the server-streaming frame RPC. The returned stream is
// a FrameSource; it ends with io.EOF when the server closes the stream, or
// with the context error on cancellation.
func (c *Client) StreamFrames(ctx context.Context, req *wire.StreamRequest) (*FrameStream, error) {
	desc := &grpc.StreamDesc{
		StreamName:    "StreamFrames",
		ServerStreams: true,
	}
	cs, err := c.conn.NewStream(ctx, desc, streamFramesMethod, grpc.ForceCodec(rawCodec{}))
	if err != nil {
		return nil, fmt.Errorf("failed to open frame stream: %w", err)
	}

	payload := rawMessage(wire.MarshalStreamRequest(req))
	if err := cs.SendMsg(&payload); err != nil {
		return nil, fmt.Errorf("failed to send stream request: %w", err)
	}
	if err := cs.CloseSend(); err != nil {
		return nil, fmt.Errorf("failed to close send side: %w", err)
	}

	monitoring.Logf("[Stream] Connected to %s as %s", c.addr, c.id)
	return &FrameStream{cs: cs}, nil
}

// Close tears down the client connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// FrameStream is an open server-streaming frame RPC.
type FrameStream struct {
	cs grpc.ClientStream
}

// ReadFrame receives and decodes the next frame from the stream.
func (s *FrameStream) ReadFrame() (*view.FrameBundle, error) {
	var payload rawMessage
	if err := s.cs.RecvMsg(&payload); err != nil {
		return nil, err
	}
	frame, err := wire.UnmarshalFrameBundle(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to decode frame: %w", err)
	}
	return frame, nil
}
