package transport

import "google.golang.org/grpc"

// Frames travel as wrapperspb.BytesValue on grpc's default proto codec, so
// the service needs no generated code.
const (
	serviceName   = "peermesh.Mesh"
	channelMethod = "/" + serviceName + "/Channel"

	peerIDHeader    = "x-peer-id"
	channelIDHeader = "x-channel-id"
)

type meshServer interface {
	OpenChannel(stream grpc.ServerStream) error
}

func channelHandler(srv any, stream grpc.ServerStream) error {
	return srv.(meshServer).OpenChannel(stream)
}

var meshServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*meshServer)(nil),
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "Channel",
			Handler:       channelHandler,
			ServerStreams: true,
			ClientStreams: true,
		},
	},
}
