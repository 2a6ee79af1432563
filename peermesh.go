// Package peermesh coordinates a small full-mesh peer-to-peer network.
//
// A peer joins through one bootstrap peer, learns every other member from
// new-participant gossip, and holds one direct channel to each of them.
// Membership changes are published to subscribers as a MeshView and
// mirrored into a session store so a restarted process can rejoin with the
// same identity. It provides:
//   - A single-owner coordinator with a debounced teardown window
//   - In-process and gRPC stream transports
//   - Static and mDNS address resolution for the gRPC transport
//   - Badger-backed session persistence
//   - Prometheus metrics and health endpoints
//
// Basic usage:
//
//	config := peermesh.DefaultConfig().WithGRPC("0.0.0.0:7946", "10.0.0.5:7946").WithProfile("alice")
//	node, err := peermesh.New(config)
//	if err != nil {
//	    return err
//	}
//	defer node.Close()
//
//	cancel := node.SubscribeFunc(func(view peermesh.MeshView) {
//	    log.Printf("%d peers connected", view.ConnectedCount())
//	})
//	defer cancel()
//
//	view, err := node.JoinConfigured(ctx, "10.0.0.4:7946")
package peermesh

import (
	"log/slog"

	"github.com/eleven-am/peermesh/internal/adapters/transport/memory"
	"github.com/eleven-am/peermesh/internal/core"
	"github.com/eleven-am/peermesh/internal/domain"
	"github.com/eleven-am/peermesh/internal/notifier"
	"github.com/eleven-am/peermesh/internal/ports"
)

// Node is a coordinator together with the transport, session store and
// observability server built for it from a Config.
type Node = core.Node

// NodeOption customises how New assembles a Node.
type NodeOption = core.NodeOption

// Coordinator owns one mesh membership. Use NewCoordinator to run it over a
// custom transport.
type Coordinator = core.Coordinator

// Options configures a Coordinator built directly with NewCoordinator.
type Options = core.Options

// State is the coordinator lifecycle state.
type State = core.State

const (
	// StateIdle means no endpoint is open.
	StateIdle = core.StateIdle
	// StateOpening means the endpoint was requested and Join is waiting.
	StateOpening = core.StateOpening
	// StateReady means the endpoint is open and the mesh is live.
	StateReady = core.StateReady
	// StateClosing means a debounced teardown is pending.
	StateClosing = core.StateClosing
)

// MeshView is the read-only membership picture handed to callers and
// subscribers.
type MeshView = domain.MeshView

// PeerStatus is one peer in a MeshView.
type PeerStatus = domain.PeerStatus

// PeerProfile is the self-description exchanged in introductions.
type PeerProfile = domain.PeerProfile

// SessionEntry is one persisted peer.
type SessionEntry = domain.SessionEntry

// Subscriber observes mesh changes on the coordinator's event loop.
type Subscriber = notifier.Subscriber

// SubscriberFunc adapts a function to Subscriber.
type SubscriberFunc = notifier.SubscriberFunc

// Transport ports, for plugging in a custom transport.

type Transport = ports.Transport
type Endpoint = ports.Endpoint
type Channel = ports.Channel
type EventSink = ports.EventSink
type Event = ports.Event

type EndpointOpened = ports.EndpointOpened
type EndpointFailed = ports.EndpointFailed
type EndpointDisconnected = ports.EndpointDisconnected
type EndpointClosed = ports.EndpointClosed
type ChannelIncoming = ports.ChannelIncoming
type ChannelOpened = ports.ChannelOpened
type ChannelData = ports.ChannelData
type ChannelClosed = ports.ChannelClosed
type ChannelFailed = ports.ChannelFailed

// SessionStore persists the local identity and the trimmed peer list.
type SessionStore = ports.SessionStore

// MemoryNetwork is an in-process transport. Nodes that share one network
// can reach each other by peer id.
type MemoryNetwork = memory.Network

var (
	ErrEndpointCreation  = domain.ErrEndpointCreation
	ErrEndpointClosed    = domain.ErrEndpointClosed
	ErrCoordinatorClosed = domain.ErrCoordinatorClosed
	ErrMissingIdentifier = domain.ErrMissingIdentifier
	ErrInvalidConfig     = domain.ErrInvalidConfig
)

// New builds a Node from config. A nil config uses DefaultConfig.
func New(config *Config, opts ...NodeOption) (*Node, error) {
	return core.NewNode(config, opts...)
}

// NewCoordinator builds a bare coordinator over opts.Transport.
func NewCoordinator(opts Options) (*Coordinator, error) {
	return core.New(opts)
}

// NewMemoryNetwork returns an isolated in-process network.
func NewMemoryNetwork(logger *slog.Logger) *MemoryNetwork {
	return memory.NewNetwork(logger)
}

// WithNetwork places a memory-transport node on network instead of the
// process-wide default.
func WithNetwork(network *MemoryNetwork) NodeOption {
	return core.WithNetwork(network)
}

func IsEndpointCreation(err error) bool {
	return domain.IsEndpointCreation(err)
}

func IsEndpointClosed(err error) bool {
	return domain.IsEndpointClosed(err)
}

func IsChannelError(err error) bool {
	return domain.IsChannelError(err)
}
