package ports

// Transport creates local endpoints. Everything it reports after creation
// is delivered as events through the sink handed to CreateEndpoint.
type Transport interface {
	CreateEndpoint(preferredID string, sink EventSink) (Endpoint, error)
}

// Endpoint is the local side of the transport. Its identifier becomes the
// peer's identity in the mesh once EndpointOpened has been emitted.
type Endpoint interface {
	ID() string
	Connect(peerID string) (Channel, error)
	Reconnect() error
	Destroy() error
}

// Channel is a duplex, message-oriented connection to one remote peer.
// ID identifies the connection itself, so a re-dialed channel to the same
// peer carries a new ID.
type Channel interface {
	ID() string
	Peer() string
	Send(data []byte) error
	Close() error
}
