package memory

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/eleven-am/peermesh/internal/domain"
	"github.com/eleven-am/peermesh/internal/ports"
)

var (
	ErrIDTaken       = errors.New("peer id already taken")
	ErrChannelClosed = errors.New("channel closed")
)

var defaultNetwork = NewNetwork(nil)

// Default is the process-wide network shared by nodes built with the
// memory transport.
func Default() *Network {
	return defaultNetwork
}

// Network is an in-process transport. Endpoints created on the same
// Network can dial each other by identifier.
type Network struct {
	mu          sync.Mutex
	endpoints   map[string]*Endpoint
	failNext    error
	destroys    map[string]int
	reconnects  map[string]int
	connections int
	logger      *slog.Logger
}

func NewNetwork(logger *slog.Logger) *Network {
	if logger == nil {
		logger = slog.Default()
	}

	return &Network{
		endpoints:  make(map[string]*Endpoint),
		destroys:   make(map[string]int),
		reconnects: make(map[string]int),
		logger:     logger.With("component", "memory-transport"),
	}
}

// CreateEndpoint registers a new endpoint. Failures are reported through
// an EndpointFailed event, the way a remote signalling server would.
func (n *Network) CreateEndpoint(preferredID string, sink ports.EventSink) (ports.Endpoint, error) {
	if sink == nil {
		return nil, fmt.Errorf("create endpoint: %w", domain.ErrInvalidInput)
	}

	id := preferredID
	if id == "" {
		id = uuid.New().String()
	}

	endpoint := &Endpoint{
		id:       id,
		network:  n,
		sink:     sink,
		channels: make(map[string]*Channel),
	}

	n.mu.Lock()
	failure := n.failNext
	n.failNext = nil
	if failure == nil {
		if _, taken := n.endpoints[id]; taken {
			failure = ErrIDTaken
		}
	}
	if failure == nil {
		n.endpoints[id] = endpoint
	}
	n.mu.Unlock()

	if failure != nil {
		endpoint.destroyed = true
		n.logger.Debug("endpoint open failed", "peer_id", id, "error", failure)
		sink(ports.EndpointFailed{Err: domain.NewEndpointError(domain.ErrEndpointCreation, "open", failure)})
		return endpoint, nil
	}

	n.logger.Debug("endpoint opened", "peer_id", id)
	sink(ports.EndpointOpened{ID: id})
	return endpoint, nil
}

// FailNextOpen makes the next CreateEndpoint call fail with err.
func (n *Network) FailNextOpen(err error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.failNext = err
}

// Disconnect simulates losing the signalling session of an endpoint. Its
// channels stay up.
func (n *Network) Disconnect(peerID string) bool {
	endpoint := n.lookup(peerID)
	if endpoint == nil {
		return false
	}
	endpoint.sink(ports.EndpointDisconnected{})
	return true
}

// Kill destroys an endpoint from the network side, as a signalling server
// dropping the registration would.
func (n *Network) Kill(peerID string) bool {
	endpoint := n.lookup(peerID)
	if endpoint == nil {
		return false
	}
	return endpoint.Destroy() == nil
}

// Sever closes every channel between a and b.
func (n *Network) Sever(a, b string) int {
	endpoint := n.lookup(a)
	if endpoint == nil {
		return 0
	}

	closed := 0
	for _, ch := range endpoint.channelsTo(b) {
		if ch.isClosed() {
			continue
		}
		ch.Close()
		closed++
	}
	return closed
}

func (n *Network) DestroyCount(peerID string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.destroys[peerID]
}

func (n *Network) ReconnectCount(peerID string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.reconnects[peerID]
}

// Connections counts channel pairs ever opened on this network.
func (n *Network) Connections() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.connections
}

func (n *Network) Has(peerID string) bool {
	return n.lookup(peerID) != nil
}

func (n *Network) lookup(peerID string) *Endpoint {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.endpoints[peerID]
}

func (n *Network) remove(endpoint *Endpoint) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.endpoints[endpoint.id] == endpoint {
		delete(n.endpoints, endpoint.id)
	}
	n.destroys[endpoint.id]++
}

type Endpoint struct {
	id      string
	network *Network
	sink    ports.EventSink

	mu        sync.Mutex
	channels  map[string]*Channel
	destroyed bool
}

func (e *Endpoint) ID() string {
	return e.id
}

func (e *Endpoint) Connect(peerID string) (ports.Channel, error) {
	if peerID == "" {
		return nil, domain.ErrMissingIdentifier
	}

	e.mu.Lock()
	destroyed := e.destroyed
	e.mu.Unlock()
	if destroyed {
		return nil, domain.NewEndpointError(domain.ErrEndpointClosed, "connect", nil)
	}

	connectionID := uuid.New().String()
	local := &Channel{id: connectionID, peer: peerID, owner: e}

	remote := e.network.lookup(peerID)
	if remote == nil || remote == e {
		local.markClosed()
		e.sink(ports.ChannelFailed{
			Channel: local,
			Err:     domain.NewChannelError(peerID, connectionID, domain.ErrPeerUnavailable),
		})
		return local, nil
	}

	far := &Channel{id: connectionID, peer: e.id, owner: remote}
	local.remote = far
	far.remote = local

	if !remote.attach(far) {
		local.markClosed()
		e.sink(ports.ChannelFailed{
			Channel: local,
			Err:     domain.NewChannelError(peerID, connectionID, domain.ErrPeerUnavailable),
		})
		return local, nil
	}
	e.attach(local)

	e.network.mu.Lock()
	e.network.connections++
	e.network.mu.Unlock()

	e.sink(ports.ChannelOpened{Channel: local})
	remote.sink(ports.ChannelIncoming{Channel: far})
	remote.sink(ports.ChannelOpened{Channel: far})
	return local, nil
}

// Reconnect re-establishes the signalling session after a disconnect and
// reports the endpoint as open again.
func (e *Endpoint) Reconnect() error {
	e.mu.Lock()
	destroyed := e.destroyed
	e.mu.Unlock()
	if destroyed {
		return domain.NewEndpointError(domain.ErrEndpointClosed, "reconnect", nil)
	}

	e.network.mu.Lock()
	e.network.reconnects[e.id]++
	e.network.mu.Unlock()

	e.sink(ports.EndpointOpened{ID: e.id})
	return nil
}

func (e *Endpoint) Destroy() error {
	e.mu.Lock()
	if e.destroyed {
		e.mu.Unlock()
		return nil
	}
	e.destroyed = true
	channels := make([]*Channel, 0, len(e.channels))
	for _, ch := range e.channels {
		channels = append(channels, ch)
	}
	e.mu.Unlock()

	for _, ch := range channels {
		ch.Close()
	}
	e.network.remove(e)
	e.sink(ports.EndpointClosed{})
	return nil
}

func (e *Endpoint) attach(ch *Channel) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.destroyed {
		return false
	}
	e.channels[ch.id] = ch
	return true
}

func (e *Endpoint) detach(ch *Channel) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.channels, ch.id)
}

func (e *Endpoint) channelsTo(peerID string) []*Channel {
	e.mu.Lock()
	defer e.mu.Unlock()

	var channels []*Channel
	for _, ch := range e.channels {
		if ch.peer == peerID {
			channels = append(channels, ch)
		}
	}
	return channels
}

// Channel is one half of an in-process connection. Both halves share the
// connection ID.
type Channel struct {
	id     string
	peer   string
	owner  *Endpoint
	remote *Channel

	mu     sync.Mutex
	closed bool
}

func (c *Channel) ID() string {
	return c.id
}

func (c *Channel) Peer() string {
	return c.peer
}

func (c *Channel) Send(data []byte) error {
	if c.isClosed() || c.remote == nil {
		return domain.NewChannelError(c.peer, c.id, ErrChannelClosed)
	}

	payload := make([]byte, len(data))
	copy(payload, data)
	c.remote.owner.sink(ports.ChannelData{Channel: c.remote, Data: payload})
	return nil
}

// Close shuts both halves and reports ChannelClosed on each side. Closing
// an already closed channel is a no-op.
func (c *Channel) Close() error {
	if !c.markClosed() {
		return nil
	}

	c.owner.detach(c)
	c.owner.sink(ports.ChannelClosed{Channel: c})

	if c.remote != nil && c.remote.markClosed() {
		c.remote.owner.detach(c.remote)
		c.remote.owner.sink(ports.ChannelClosed{Channel: c.remote})
	}
	return nil
}

func (c *Channel) markClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return false
	}
	c.closed = true
	return true
}

func (c *Channel) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}
