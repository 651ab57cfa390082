package stream

import (
	"google.golang.org/grpc"

	"github.com/banshee-data/lidarview/internal/view"
	"github.com/banshee-data/lidarview/internal/view/wire"
)

// FrameService serves frames to connected viewers. Implemented by relay
// publishers and test harnesses; the production sensor server implements the
// same service from generated pb types.
type FrameService interface {
	// StreamFrames delivers frames matching the request through send until
	// the stream ends or send returns an error.
	StreamFrames(req *wire.StreamRequest, send func(*view.FrameBundle) error) error
}

// ServerOption returns the gRPC server option required to serve the raw
// codec this package's client speaks.
func ServerOption() grpc.ServerOption {
	return grpc.ForceServerCodec(rawCodec{})
}

// RegisterFrameService registers a FrameService on a gRPC server created
// with ServerOption().
func RegisterFrameService(s *grpc.Server, svc FrameService) {
	s.RegisterService(&grpc.ServiceDesc{
		ServiceName: ServiceName,
		HandlerType: (*FrameService)(nil),
		Methods:     []grpc.MethodDesc{},
		Streams: []grpc.StreamDesc{
			{
				StreamName:    "StreamFrames",
				Handler:       streamFramesHandler,
				ServerStreams: true,
			},
		},
	}, svc)
}

// streamFramesHandler adapts the raw gRPC stream to FrameService.
func streamFramesHandler(srv interface{}, ss grpc.ServerStream) error {
	var payload rawMessage
	if err := ss.RecvMsg(&payload); err != nil {
		return err
	}
	req, err := wire.UnmarshalStreamRequest(payload)
	if err != nil {
		return err
	}

	return srv.(FrameService).StreamFrames(req, func(frame *view.FrameBundle) error {
		out := rawMessage(wire.MarshalFrameBundle(frame))
		return ss.SendMsg(&out)
	})
}
