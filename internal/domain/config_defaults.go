package domain

import (
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"time"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"
)

const DefaultTeardownGrace = 300 * time.Millisecond

func DefaultConfig() *Config {
	return &Config{
		DataDir:   "./data",
		Mesh:      DefaultMeshConfig(),
		Reconnect: DefaultReconnectConfig(),
		Transport: DefaultTransportConfig(),
		Discovery: []DiscoveryConfig{},
		Session:   DefaultSessionConfig(),
		Metrics:   DefaultMetricsConfig(),
	}
}

func DefaultMeshConfig() MeshConfig {
	return MeshConfig{
		TeardownGrace:  DefaultTeardownGrace,
		StrictMessages: false,
		DisableHealing: false,
	}
}

func DefaultReconnectConfig() ReconnectConfig {
	return ReconnectConfig{
		RatePerSecond: 1,
		Burst:         3,
		MaxAttempts:   0,
	}
}

func DefaultTransportConfig() TransportConfig {
	return TransportConfig{
		Type:              TransportGRPC,
		ListenAddr:        "127.0.0.1:7946",
		ConnectionTimeout: 10 * time.Second,
		MaxMessageSizeMB:  4,
		KeepAliveTime:     30 * time.Second,
	}
}

func DefaultMDNSConfig() *MDNSConfig {
	return &MDNSConfig{
		Service:   "_peermesh._tcp",
		Domain:    "local.",
		Timeout:   2 * time.Second,
		Advertise: true,
	}
}

func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		Type: SessionBadger,
	}
}

func DefaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		Enabled: false,
		Addr:    "127.0.0.1:9464",
	}
}

// LoadConfig reads a YAML file and fills every field left unset from
// DefaultConfig.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return ParseConfig(data)
}

func ParseConfig(data []byte) (*Config, error) {
	config := &Config{}
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, NewConfigError("yaml", err)
	}
	if err := config.applyDefaults(); err != nil {
		return nil, err
	}
	return config, nil
}

func (c *Config) applyDefaults() error {
	if err := mergo.Merge(c, DefaultConfig()); err != nil {
		return NewConfigError("defaults", err)
	}
	for i := range c.Discovery {
		if c.Discovery[i].Type != DiscoveryMDNS {
			continue
		}
		if c.Discovery[i].MDNS == nil {
			c.Discovery[i].MDNS = DefaultMDNSConfig()
			continue
		}
		if err := mergo.Merge(c.Discovery[i].MDNS, DefaultMDNSConfig()); err != nil {
			return NewConfigError("discovery.mdns", err)
		}
	}
	return nil
}

func (c *Config) WithLogger(logger *slog.Logger) *Config {
	c.Logger = logger
	return c
}

func (c *Config) WithPeerID(peerID string) *Config {
	c.PeerID = peerID
	return c
}

func (c *Config) WithProfile(name string) *Config {
	c.Profile = &PeerProfile{Name: name}
	return c
}

func (c *Config) WithMemoryTransport() *Config {
	c.Transport.Type = TransportMemory
	return c
}

func (c *Config) WithGRPC(listenAddr, advertiseAddr string) *Config {
	c.Transport.Type = TransportGRPC
	c.Transport.ListenAddr = listenAddr
	c.Transport.AdvertiseAddr = advertiseAddr
	return c
}

func (c *Config) WithMDNS(service, domain string) *Config {
	mdnsConfig := DefaultMDNSConfig()
	if service != "" {
		mdnsConfig.Service = service
	}
	if domain != "" {
		mdnsConfig.Domain = domain
	}

	c.Discovery = append(c.Discovery, DiscoveryConfig{
		Type: DiscoveryMDNS,
		MDNS: mdnsConfig,
	})
	return c
}

func (c *Config) WithStaticPeers(peers ...StaticPeer) *Config {
	c.Discovery = append(c.Discovery, DiscoveryConfig{
		Type:   DiscoveryStatic,
		Static: peers,
	})
	return c
}

func (c *Config) WithInMemorySession() *Config {
	c.Session.Type = SessionMemory
	return c
}

func (c *Config) WithTeardownGrace(grace time.Duration) *Config {
	c.Mesh.TeardownGrace = grace
	return c
}

// SessionDir resolves where the badger session store lives.
func (c *Config) SessionDir() string {
	if c.Session.Dir == "" {
		return filepath.Join(c.DataDir, "session")
	}
	if filepath.IsAbs(c.Session.Dir) {
		return c.Session.Dir
	}
	return filepath.Join(c.DataDir, c.Session.Dir)
}

// EnsureLogger installs a discarding logger when none was configured.
func (c *Config) EnsureLogger() *slog.Logger {
	if c.Logger == nil {
		c.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return c.Logger
}

func (c *Config) Validate() error {
	if c.Mesh.TeardownGrace < 0 {
		return NewConfigError("mesh.teardown_grace", ErrInvalidInput)
	}
	if c.Reconnect.RatePerSecond <= 0 {
		return NewConfigError("reconnect.rate_per_second", ErrInvalidInput)
	}
	if c.Reconnect.Burst <= 0 {
		return NewConfigError("reconnect.burst", ErrInvalidInput)
	}
	if c.Reconnect.MaxAttempts < 0 {
		return NewConfigError("reconnect.max_attempts", ErrInvalidInput)
	}

	switch c.Transport.Type {
	case TransportMemory:
	case TransportGRPC:
		if c.Transport.ListenAddr == "" {
			return NewConfigError("transport.listen_addr", ErrInvalidInput)
		}
		if c.Transport.MaxMessageSizeMB <= 0 {
			return NewConfigError("transport.max_message_size_mb", ErrInvalidInput)
		}
		if len(c.Discovery) == 0 && !c.hasDialableIdentity() {
			return NewConfigError("transport.advertise_addr", ErrInvalidInput)
		}
	default:
		return NewConfigError("transport.type", ErrInvalidInput)
	}

	for i := range c.Discovery {
		if err := validateDiscoveryConfig(&c.Discovery[i]); err != nil {
			return err
		}
	}

	switch c.Session.Type {
	case SessionMemory:
	case SessionBadger:
		if c.DataDir == "" && c.Session.Dir == "" {
			return NewConfigError("session.dir", ErrInvalidInput)
		}
	default:
		return NewConfigError("session.type", ErrInvalidInput)
	}

	if c.Metrics.Enabled && c.Metrics.Addr == "" {
		return NewConfigError("metrics.addr", ErrInvalidInput)
	}

	return nil
}

// hasDialableIdentity reports whether the gRPC identity doubles as an
// address. Without discovery peers are dialed by id, so the id has to be a
// host:port other nodes can reach: a peer_id of that form, the advertise
// address, or a listen address with a concrete host. A zero listen port is
// fine, the bound port names the endpoint.
func (c *Config) hasDialableIdentity() bool {
	if c.PeerID != "" {
		return IsDialableAddr(c.PeerID)
	}
	if c.Transport.AdvertiseAddr != "" {
		return IsDialableAddr(c.Transport.AdvertiseAddr)
	}
	host, _, err := net.SplitHostPort(c.Transport.ListenAddr)
	return err == nil && isConcreteHost(host)
}

// IsDialableAddr reports whether addr is a host:port with a concrete host
// and a non-zero port.
func IsDialableAddr(addr string) bool {
	host, port, err := net.SplitHostPort(addr)
	if err != nil || port == "" || port == "0" {
		return false
	}
	return isConcreteHost(host)
}

func isConcreteHost(host string) bool {
	if host == "" {
		return false
	}
	ip := net.ParseIP(host)
	return ip == nil || !ip.IsUnspecified()
}

func validateDiscoveryConfig(config *DiscoveryConfig) error {
	switch config.Type {
	case DiscoveryMDNS:
		if config.MDNS == nil {
			return NewConfigError("discovery.mdns", ErrInvalidInput)
		}
		if config.MDNS.Service == "" {
			return NewConfigError("discovery.mdns.service", ErrInvalidInput)
		}
	case DiscoveryStatic:
		if len(config.Static) == 0 {
			return NewConfigError("discovery.static", ErrInvalidInput)
		}
		for _, peer := range config.Static {
			if peer.ID == "" {
				return NewConfigError("discovery.static.id", ErrInvalidInput)
			}
			if peer.Address == "" {
				return NewConfigError("discovery.static.address", ErrInvalidInput)
			}
		}
	default:
		return NewConfigError("discovery.type", ErrInvalidInput)
	}
	return nil
}
