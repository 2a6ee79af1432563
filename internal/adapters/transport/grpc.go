package transport

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/eleven-am/peermesh/internal/domain"
	"github.com/eleven-am/peermesh/internal/ports"
)

type Config struct {
	ListenAddr        string
	AdvertiseAddr     string
	ConnectionTimeout time.Duration
	KeepAliveTime     time.Duration
	MaxMessageSizeMB  int
}

func ConfigFrom(cfg domain.TransportConfig) Config {
	return Config{
		ListenAddr:        cfg.ListenAddr,
		AdvertiseAddr:     cfg.AdvertiseAddr,
		ConnectionTimeout: cfg.ConnectionTimeout,
		KeepAliveTime:     cfg.KeepAliveTime,
		MaxMessageSizeMB:  cfg.MaxMessageSizeMB,
	}
}

// GRPCTransport carries mesh channels as bidirectional gRPC streams. Every
// endpoint runs its own server; dialing a peer resolves its identifier to
// an address through the resolver.
type GRPCTransport struct {
	config     Config
	resolver   ports.Resolver
	advertiser ports.Advertiser
	logger     *slog.Logger
}

// NewGRPCTransport builds the transport. A nil resolver treats peer
// identifiers as dialable addresses; a nil advertiser skips advertising.
func NewGRPCTransport(config Config, resolver ports.Resolver, advertiser ports.Advertiser, logger *slog.Logger) *GRPCTransport {
	if logger == nil {
		logger = slog.Default()
	}
	if config.ConnectionTimeout <= 0 {
		config.ConnectionTimeout = 10 * time.Second
	}

	return &GRPCTransport{
		config:     config,
		resolver:   resolver,
		advertiser: advertiser,
		logger:     logger.With("component", "transport", "adapter", "grpc"),
	}
}

func (t *GRPCTransport) CreateEndpoint(preferredID string, sink ports.EventSink) (ports.Endpoint, error) {
	if sink == nil {
		return nil, fmt.Errorf("create endpoint: %w", domain.ErrInvalidInput)
	}

	listener, err := net.Listen("tcp", t.config.ListenAddr)
	if err != nil {
		return nil, newEndpointCreationError(err)
	}

	id := t.endpointID(preferredID, listener)

	ctx, cancel := context.WithCancel(context.Background())
	endpoint := &Endpoint{
		id:        id,
		transport: t,
		sink:      sink,
		listener:  listener,
		channels:  make(map[string]*Channel),
		ctx:       ctx,
		cancel:    cancel,
		logger:    t.logger.With("peer_id", id),
	}

	endpoint.server = grpc.NewServer(t.serverOptions()...)
	endpoint.server.RegisterService(&meshServiceDesc, endpoint)

	go endpoint.serve()

	if err := endpoint.advertise(); err != nil {
		endpoint.logger.Warn("failed to advertise endpoint", "error", err)
	}

	endpoint.logger.Info("gRPC endpoint listening", "address", listener.Addr().String())
	sink(ports.EndpointOpened{ID: id})
	return endpoint, nil
}

// endpointID names a new endpoint. Without a requested id it takes the
// advertise address, then the bound listen address, so peers dialing it by
// id reach it through the passthrough resolver. Only a wildcard listener
// with nothing to advertise falls back to a random id, which needs discovery.
func (t *GRPCTransport) endpointID(preferredID string, listener net.Listener) string {
	if preferredID != "" {
		return preferredID
	}
	if t.config.AdvertiseAddr != "" {
		return t.config.AdvertiseAddr
	}
	if address := listener.Addr().String(); domain.IsDialableAddr(address) {
		return address
	}
	return uuid.New().String()
}

func (t *GRPCTransport) serverOptions() []grpc.ServerOption {
	opts := []grpc.ServerOption{
		grpc.ChainStreamInterceptor(streamLoggingInterceptor(t.logger)),
	}
	if t.config.MaxMessageSizeMB > 0 {
		bytes := t.config.MaxMessageSizeMB * 1024 * 1024
		opts = append(opts, grpc.MaxRecvMsgSize(bytes), grpc.MaxSendMsgSize(bytes))
	}
	if t.config.KeepAliveTime > 0 {
		opts = append(opts,
			grpc.KeepaliveParams(keepalive.ServerParameters{Time: t.config.KeepAliveTime}),
			grpc.KeepaliveEnforcementPolicy(keepalive.EnforcementPolicy{
				MinTime:             t.config.KeepAliveTime / 2,
				PermitWithoutStream: true,
			}),
		)
	}
	return opts
}

func (t *GRPCTransport) dialOptions() []grpc.DialOption {
	opts := []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithChainStreamInterceptor(streamClientLoggingInterceptor(t.logger)),
	}
	if t.config.MaxMessageSizeMB > 0 {
		bytes := t.config.MaxMessageSizeMB * 1024 * 1024
		opts = append(opts, grpc.WithDefaultCallOptions(grpc.MaxCallRecvMsgSize(bytes), grpc.MaxCallSendMsgSize(bytes)))
	}
	if t.config.KeepAliveTime > 0 {
		opts = append(opts, grpc.WithKeepaliveParams(keepalive.ClientParameters{
			Time:                t.config.KeepAliveTime,
			Timeout:             t.config.KeepAliveTime / 3,
			PermitWithoutStream: true,
		}))
	}
	return opts
}

func (t *GRPCTransport) resolve(ctx context.Context, peerID string) (string, error) {
	if t.resolver == nil {
		return peerID, nil
	}
	return t.resolver.Resolve(ctx, peerID)
}

type Endpoint struct {
	id        string
	transport *GRPCTransport
	sink      ports.EventSink
	listener  net.Listener
	server    *grpc.Server
	ctx       context.Context
	cancel    context.CancelFunc
	logger    *slog.Logger

	mu        sync.Mutex
	channels  map[string]*Channel
	destroyed bool
}

func (e *Endpoint) ID() string {
	return e.id
}

// Addr is the address the endpoint's server listens on.
func (e *Endpoint) Addr() string {
	return e.listener.Addr().String()
}

// Connect returns immediately; the channel reports ChannelOpened or
// ChannelFailed once the stream to the peer is established.
func (e *Endpoint) Connect(peerID string) (ports.Channel, error) {
	if peerID == "" {
		return nil, domain.ErrMissingIdentifier
	}
	if e.isDestroyed() {
		return nil, domain.NewEndpointError(domain.ErrEndpointClosed, "connect", nil)
	}

	ch := newChannel(uuid.New().String(), peerID, e)
	go e.dial(ch)
	return ch, nil
}

func (e *Endpoint) dial(ch *Channel) {
	ctx, cancel := context.WithTimeout(e.ctx, e.transport.config.ConnectionTimeout)
	defer cancel()

	address, err := e.transport.resolve(ctx, ch.peer)
	if err != nil {
		ch.fail(newChannelUnavailable(ch.peer, ch.id, err))
		return
	}

	conn, err := grpc.NewClient(address, e.transport.dialOptions()...)
	if err != nil {
		ch.fail(newChannelUnavailable(ch.peer, ch.id, err))
		return
	}

	streamCtx, streamCancel := context.WithCancel(e.ctx)
	streamCtx = metadata.AppendToOutgoingContext(streamCtx, peerIDHeader, e.id, channelIDHeader, ch.id)

	stream, err := conn.NewStream(streamCtx, &meshServiceDesc.Streams[0], channelMethod)
	if err != nil {
		streamCancel()
		conn.Close()
		ch.fail(newChannelUnavailable(ch.peer, ch.id, err))
		return
	}

	type acceptance struct {
		header metadata.MD
		err    error
	}
	accepted := make(chan acceptance, 1)
	go func() {
		header, err := stream.Header()
		accepted <- acceptance{header: header, err: err}
	}()

	var header metadata.MD
	select {
	case result := <-accepted:
		header, err = result.header, result.err
	case <-ctx.Done():
		err = ctx.Err()
	}
	if err != nil {
		streamCancel()
		conn.Close()
		ch.fail(newChannelUnavailable(ch.peer, ch.id, err))
		return
	}

	if remoteID := firstValue(header, peerIDHeader); remoteID != "" && remoteID != ch.peer {
		e.logger.Warn("dialed peer answers to a different id",
			"remote_peer", ch.peer, "answered_id", remoteID, "address", address)
	}

	ch.bindClient(stream, conn, streamCancel)
	if !e.attach(ch) {
		ch.Close()
		return
	}

	e.logger.Debug("channel dialed", "remote_peer", ch.peer, "address", address, "channel_id", ch.id)
	e.sink(ports.ChannelOpened{Channel: ch})
	go ch.readLoop(stream)
}

// OpenChannel accepts a channel dialed by a remote endpoint.
func (e *Endpoint) OpenChannel(stream grpc.ServerStream) error {
	md, _ := metadata.FromIncomingContext(stream.Context())
	peerID := firstValue(md, peerIDHeader)
	if peerID == "" {
		return status.Error(codes.InvalidArgument, domain.ErrMissingIdentifier.Error())
	}
	channelID := firstValue(md, channelIDHeader)
	if channelID == "" {
		channelID = uuid.New().String()
	}

	ch := newChannel(channelID, peerID, e)
	ch.bindServer(stream)
	if !e.attach(ch) {
		return status.Error(codes.Unavailable, domain.ErrEndpointClosed.Error())
	}

	if err := stream.SendHeader(metadata.Pairs(peerIDHeader, e.id)); err != nil {
		e.detach(ch)
		return err
	}

	e.logger.Debug("channel accepted", "remote_peer", peerID, "channel_id", channelID)
	e.sink(ports.ChannelIncoming{Channel: ch})
	e.sink(ports.ChannelOpened{Channel: ch})

	go ch.readLoop(stream)

	select {
	case <-ch.done:
	case <-e.ctx.Done():
		ch.Close()
	}
	return nil
}

// Reconnect re-announces the endpoint. gRPC has no signalling session, so
// the server itself keeps running.
func (e *Endpoint) Reconnect() error {
	if e.isDestroyed() {
		return domain.NewEndpointError(domain.ErrEndpointClosed, "reconnect", nil)
	}
	if err := e.advertise(); err != nil {
		return domain.NewEndpointError(domain.ErrEndpointDisconnected, "reconnect", err)
	}
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

	var err error
	if e.transport.advertiser != nil {
		err = e.transport.advertiser.Stop()
	}

	e.cancel()
	e.server.Stop()

	e.logger.Info("gRPC endpoint destroyed")
	e.sink(ports.EndpointClosed{})
	return err
}

// serve runs the server until Destroy. A listener that dies underneath it
// is fatal: the failure is reported and the endpoint destroyed, which
// closes every channel and emits EndpointClosed.
func (e *Endpoint) serve() {
	err := e.server.Serve(e.listener)
	if err == nil || e.isDestroyed() {
		return
	}

	e.logger.Error("gRPC server failed", "error", err)
	e.sink(ports.EndpointFailed{Err: domain.NewEndpointError(domain.ErrEndpointDisconnected, "serve", err)})
	if destroyErr := e.Destroy(); destroyErr != nil {
		e.logger.Debug("failed to destroy endpoint after server failure", "error", destroyErr)
	}
}

func (e *Endpoint) advertise() error {
	if e.transport.advertiser == nil {
		return nil
	}

	address := e.transport.config.AdvertiseAddr
	if address == "" {
		address = e.listener.Addr().String()
	}
	host, portText, err := net.SplitHostPort(address)
	if err != nil {
		return err
	}
	port, err := strconv.Atoi(portText)
	if err != nil {
		return err
	}

	return e.transport.advertiser.Advertise(ports.ServiceInfo{
		ID:       e.id,
		Address:  host,
		Port:     port,
		Metadata: map[string]string{"id": e.id},
	})
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
	if e.channels[ch.id] == ch {
		delete(e.channels, ch.id)
	}
}

func (e *Endpoint) isDestroyed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.destroyed
}

func firstValue(md metadata.MD, key string) string {
	values := md.Get(key)
	if len(values) == 0 {
		return ""
	}
	return values[0]
}
