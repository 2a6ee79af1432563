package core

import (
	"context"
	"log/slog"

	"github.com/benbjohnson/clock"
	"go.uber.org/multierr"

	"github.com/eleven-am/peermesh/internal/adapters/discovery"
	"github.com/eleven-am/peermesh/internal/adapters/observability"
	"github.com/eleven-am/peermesh/internal/adapters/storage"
	"github.com/eleven-am/peermesh/internal/adapters/transport"
	"github.com/eleven-am/peermesh/internal/adapters/transport/memory"
	"github.com/eleven-am/peermesh/internal/domain"
	"github.com/eleven-am/peermesh/internal/ports"
)

type nodeOptions struct {
	network *memory.Network
	clock   clock.Clock
}

type NodeOption func(*nodeOptions)

// WithNetwork attaches a memory-transport node to a private network instead
// of the process-wide one.
func WithNetwork(network *memory.Network) NodeOption {
	return func(o *nodeOptions) {
		o.network = network
	}
}

func WithClock(clk clock.Clock) NodeOption {
	return func(o *nodeOptions) {
		o.clock = clk
	}
}

// Node is a Coordinator assembled from a Config together with the
// transport, session store and optional observability server it owns.
type Node struct {
	*Coordinator

	config *domain.Config
	store  ports.SessionStore
	logger *slog.Logger

	stopServer context.CancelFunc
	serverDone chan error
}

func NewNode(config *domain.Config, opts ...NodeOption) (*Node, error) {
	if config == nil {
		config = domain.DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	options := nodeOptions{}
	for _, opt := range opts {
		opt(&options)
	}

	logger := config.EnsureLogger()
	tr := buildTransport(config, options, logger)

	store, err := openSessionStore(config, logger)
	if err != nil {
		return nil, err
	}

	coordinator, err := New(Options{
		Transport:   tr,
		Store:       store,
		PreferredID: config.PeerID,
		Mesh:        config.Mesh,
		Reconnect:   config.Reconnect,
		Clock:       options.clock,
		Logger:      logger,
	})
	if err != nil {
		store.Close()
		return nil, err
	}

	node := &Node{
		Coordinator: coordinator,
		config:      config,
		store:       store,
		logger:      logger.With("component", "node"),
	}

	if config.Metrics.Enabled {
		node.startServer()
	}

	node.logger.Info("node created",
		"transport", config.Transport.Type,
		"session", config.Session.Type,
		"metrics", config.Metrics.Enabled)
	return node, nil
}

func (n *Node) Config() *domain.Config {
	return n.config
}

// JoinConfigured joins using the profile from the configuration.
func (n *Node) JoinConfigured(ctx context.Context, target string) (domain.MeshView, error) {
	return n.Join(ctx, target, n.config.Profile.Clone())
}

// Close shuts down the coordinator, the observability server and the
// session store, in that order.
func (n *Node) Close() error {
	err := n.Coordinator.Close()

	if n.stopServer != nil {
		n.stopServer()
		err = multierr.Append(err, <-n.serverDone)
		n.stopServer = nil
	}

	if n.store != nil {
		err = multierr.Append(err, n.store.Close())
		n.store = nil
	}
	return err
}

func (n *Node) startServer() {
	ctx, cancel := context.WithCancel(context.Background())
	serverConfig := observability.DefaultConfig()
	serverConfig.Addr = n.config.Metrics.Addr

	server := observability.NewServer(serverConfig, n.Coordinator, n.config.Logger)
	n.stopServer = cancel
	n.serverDone = make(chan error, 1)
	go func() {
		n.serverDone <- server.Start(ctx)
	}()
}

func buildTransport(config *domain.Config, options nodeOptions, logger *slog.Logger) ports.Transport {
	if config.Transport.Type == domain.TransportMemory {
		if options.network != nil {
			return options.network
		}
		return memory.Default()
	}

	resolver, advertiser := discovery.New(config.Discovery, logger)
	return transport.NewGRPCTransport(transport.ConfigFrom(config.Transport), resolver, advertiser, logger)
}

func openSessionStore(config *domain.Config, logger *slog.Logger) (ports.SessionStore, error) {
	if config.Session.Type == domain.SessionMemory {
		return storage.NewInMemorySessionStore(logger)
	}
	return storage.NewBadgerSessionStore(config.SessionDir(), logger)
}
