package discovery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/mdns"

	"github.com/eleven-am/peermesh/internal/domain"
	"github.com/eleven-am/peermesh/internal/ports"
)

var (
	mdnsQueryContext = mdns.QueryContext
	mdnsNewServer    = mdns.NewServer
)

// MDNSResolver finds peers on the local network by the id= TXT record
// their advertiser publishes. Answers are cached until a dial needs a peer
// that is not cached yet.
type MDNSResolver struct {
	config MDNSConfig
	logger *slog.Logger

	mu    sync.RWMutex
	peers map[string]string
}

type MDNSConfig = domain.MDNSConfig

func NewMDNSResolver(config MDNSConfig, logger *slog.Logger) *MDNSResolver {
	if logger == nil {
		logger = slog.Default()
	}
	if config.Service == "" {
		config.Service = "_peermesh._tcp"
	}
	if config.Domain == "" {
		config.Domain = "local."
	}
	if config.Timeout <= 0 {
		config.Timeout = 2 * time.Second
	}

	return &MDNSResolver{
		config: config,
		logger: logger.With("component", "discovery", "provider", "mdns"),
		peers:  make(map[string]string),
	}
}

func (m *MDNSResolver) Resolve(ctx context.Context, peerID string) (string, error) {
	if address, ok := m.cached(peerID); ok {
		return address, nil
	}

	if err := m.query(ctx); err != nil {
		return "", err
	}

	if address, ok := m.cached(peerID); ok {
		return address, nil
	}
	return "", fmt.Errorf("mdns: peer %s: %w", peerID, domain.ErrNotFound)
}

func (m *MDNSResolver) Name() string {
	return "mdns"
}

// Forget drops a cached answer, e.g. after a dial to it failed.
func (m *MDNSResolver) Forget(peerID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.peers, peerID)
}

func (m *MDNSResolver) cached(peerID string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	address, ok := m.peers[peerID]
	return address, ok
}

func (m *MDNSResolver) query(ctx context.Context) error {
	entries := make(chan *mdns.ServiceEntry, 32)
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		for entry := range entries {
			m.record(entry)
		}
	}()

	params := &mdns.QueryParam{
		Service:     m.config.Service,
		Domain:      m.config.Domain,
		Timeout:     m.config.Timeout,
		Entries:     entries,
		DisableIPv6: m.config.DisableIPv6,
	}

	err := mdnsQueryContext(ctx, params)
	close(entries)
	wg.Wait()

	if err != nil && !errors.Is(err, context.Canceled) {
		m.logger.Warn("mDNS query failed", "error", err)
		return fmt.Errorf("mdns query: %w", err)
	}
	return ctx.Err()
}

func (m *MDNSResolver) record(entry *mdns.ServiceEntry) {
	if entry == nil {
		return
	}
	peerID := extractPeerID(entry)
	if peerID == "" {
		return
	}

	var host string
	switch {
	case entry.AddrV4 != nil:
		host = entry.AddrV4.String()
	case entry.AddrV6 != nil && !m.config.DisableIPv6:
		host = entry.AddrV6.String()
	default:
		return
	}
	address := net.JoinHostPort(host, strconv.Itoa(entry.Port))

	m.mu.Lock()
	previous, existed := m.peers[peerID]
	m.peers[peerID] = address
	m.mu.Unlock()

	if !existed || previous != address {
		m.logger.Debug("peer discovered", "remote_peer", peerID, "address", address)
	}
}

func extractPeerID(entry *mdns.ServiceEntry) string {
	for _, txt := range entry.InfoFields {
		if value, ok := strings.CutPrefix(txt, "id="); ok {
			return value
		}
	}
	return ""
}

// MDNSAdvertiser publishes the local endpoint as an mDNS service instance
// named after the peer identifier.
type MDNSAdvertiser struct {
	config MDNSConfig
	logger *slog.Logger

	mu     sync.Mutex
	server *mdns.Server
}

func NewMDNSAdvertiser(config MDNSConfig, logger *slog.Logger) *MDNSAdvertiser {
	if logger == nil {
		logger = slog.Default()
	}
	if config.Service == "" {
		config.Service = "_peermesh._tcp"
	}
	if config.Domain == "" {
		config.Domain = "local."
	}

	return &MDNSAdvertiser{
		config: config,
		logger: logger.With("component", "discovery", "provider", "mdns"),
	}
}

// Advertise replaces any previous announcement.
func (a *MDNSAdvertiser) Advertise(info ports.ServiceInfo) error {
	if info.ID == "" {
		return domain.ErrMissingIdentifier
	}

	txtRecords := []string{"id=" + info.ID}
	for key, value := range info.Metadata {
		if key == "id" {
			continue
		}
		txtRecords = append(txtRecords, key+"="+value)
	}

	var ips []net.IP
	if ip := net.ParseIP(info.Address); ip != nil && !ip.IsUnspecified() {
		ips = []net.IP{ip}
	}

	service, err := mdns.NewMDNSService(info.ID, a.config.Service, a.config.Domain, "", info.Port, ips, txtRecords)
	if err != nil {
		return fmt.Errorf("mdns service: %w", err)
	}

	server, err := mdnsNewServer(&mdns.Config{Zone: service})
	if err != nil {
		return fmt.Errorf("mdns server: %w", err)
	}

	a.mu.Lock()
	previous := a.server
	a.server = server
	a.mu.Unlock()

	if previous != nil {
		previous.Shutdown()
	}

	a.logger.Debug("mDNS service announced", "id", info.ID, "port", info.Port)
	return nil
}

func (a *MDNSAdvertiser) Stop() error {
	a.mu.Lock()
	server := a.server
	a.server = nil
	a.mu.Unlock()

	if server == nil {
		return nil
	}
	return server.Shutdown()
}
