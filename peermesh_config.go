package peermesh

import (
	"time"

	"github.com/eleven-am/peermesh/internal/domain"
)

type Config = domain.Config

type MeshConfig = domain.MeshConfig

type ReconnectConfig = domain.ReconnectConfig

type TransportConfig = domain.TransportConfig

type DiscoveryConfig = domain.DiscoveryConfig

type MDNSConfig = domain.MDNSConfig

type StaticPeer = domain.StaticPeer

type SessionConfig = domain.SessionConfig

type MetricsConfig = domain.MetricsConfig

func DefaultConfig() *Config {
	return domain.DefaultConfig()
}

func DefaultMeshConfig() MeshConfig {
	return domain.DefaultMeshConfig()
}

func DefaultTransportConfig() TransportConfig {
	return domain.DefaultTransportConfig()
}

// LoadConfig reads a YAML file; fields it leaves out keep their defaults.
func LoadConfig(path string) (*Config, error) {
	return domain.LoadConfig(path)
}

type ConfigBuilder struct {
	config *Config
}

func NewConfigBuilder(peerID, listenAddr, dataDir string) *ConfigBuilder {
	config := DefaultConfig()
	config.PeerID = peerID
	config.Transport.ListenAddr = listenAddr
	config.DataDir = dataDir
	return &ConfigBuilder{config: config}
}

func (cb *ConfigBuilder) WithAdvertiseAddr(advertiseAddr string) *ConfigBuilder {
	cb.config.Transport.AdvertiseAddr = advertiseAddr
	return cb
}

func (cb *ConfigBuilder) WithProfile(name string) *ConfigBuilder {
	cb.config.WithProfile(name)
	return cb
}

func (cb *ConfigBuilder) WithTeardownGrace(grace time.Duration) *ConfigBuilder {
	cb.config.WithTeardownGrace(grace)
	return cb
}

func (cb *ConfigBuilder) WithStrictMessages() *ConfigBuilder {
	cb.config.Mesh.StrictMessages = true
	return cb
}

func (cb *ConfigBuilder) WithReconnect(ratePerSecond float64, burst, maxAttempts int) *ConfigBuilder {
	cb.config.Reconnect = ReconnectConfig{
		RatePerSecond: ratePerSecond,
		Burst:         burst,
		MaxAttempts:   maxAttempts,
	}
	return cb
}

func (cb *ConfigBuilder) WithMDNS(service, zone string) *ConfigBuilder {
	cb.config.WithMDNS(service, zone)
	return cb
}

func (cb *ConfigBuilder) WithStaticPeers(peers ...StaticPeer) *ConfigBuilder {
	cb.config.WithStaticPeers(peers...)
	return cb
}

func (cb *ConfigBuilder) WithMemoryTransport() *ConfigBuilder {
	cb.config.WithMemoryTransport()
	return cb
}

func (cb *ConfigBuilder) WithInMemorySession() *ConfigBuilder {
	cb.config.WithInMemorySession()
	return cb
}

func (cb *ConfigBuilder) WithMetrics(addr string) *ConfigBuilder {
	cb.config.Metrics = MetricsConfig{Enabled: true, Addr: addr}
	return cb
}

func (cb *ConfigBuilder) Build() *Config {
	return cb.config
}
