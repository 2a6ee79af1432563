package domain

import (
	"log/slog"
	"time"
)

type Config struct {
	// PeerID is the identity requested from the transport when no session
	// holds one yet.
	PeerID  string       `json:"peer_id,omitempty" yaml:"peer_id,omitempty"`
	DataDir string       `json:"data_dir" yaml:"data_dir"`
	Logger  *slog.Logger `json:"-" yaml:"-"`

	Profile   *PeerProfile      `json:"profile,omitempty" yaml:"profile,omitempty"`
	Mesh      MeshConfig        `json:"mesh" yaml:"mesh"`
	Reconnect ReconnectConfig   `json:"reconnect" yaml:"reconnect"`
	Transport TransportConfig   `json:"transport" yaml:"transport"`
	Discovery []DiscoveryConfig `json:"discovery" yaml:"discovery"`
	Session   SessionConfig     `json:"session" yaml:"session"`
	Metrics   MetricsConfig     `json:"metrics" yaml:"metrics"`
}

type MeshConfig struct {
	// TeardownGrace is the debounce window applied to non-immediate
	// teardown requests.
	TeardownGrace  time.Duration `json:"teardown_grace" yaml:"teardown_grace"`
	StrictMessages bool          `json:"strict_messages" yaml:"strict_messages"`
	// DisableHealing turns a same-target Join on a ready mesh into a no-op
	// instead of re-dialing peers whose channel dropped.
	DisableHealing bool `json:"disable_healing" yaml:"disable_healing"`
}

type ReconnectConfig struct {
	RatePerSecond float64 `json:"rate_per_second" yaml:"rate_per_second"`
	Burst         int     `json:"burst" yaml:"burst"`
	// MaxAttempts caps consecutive reconnects; zero means unlimited.
	MaxAttempts int `json:"max_attempts" yaml:"max_attempts"`
}

type TransportType string

const (
	TransportMemory TransportType = "memory"
	TransportGRPC   TransportType = "grpc"
)

type TransportConfig struct {
	Type              TransportType `json:"type" yaml:"type"`
	ListenAddr        string        `json:"listen_addr" yaml:"listen_addr"`
	AdvertiseAddr     string        `json:"advertise_addr,omitempty" yaml:"advertise_addr,omitempty"`
	ConnectionTimeout time.Duration `json:"connection_timeout" yaml:"connection_timeout"`
	MaxMessageSizeMB  int           `json:"max_message_size_mb" yaml:"max_message_size_mb"`
	KeepAliveTime     time.Duration `json:"keepalive_time" yaml:"keepalive_time"`
}

type DiscoveryType string

const (
	DiscoveryMDNS   DiscoveryType = "mdns"
	DiscoveryStatic DiscoveryType = "static"
)

type DiscoveryConfig struct {
	Type   DiscoveryType `json:"type" yaml:"type"`
	MDNS   *MDNSConfig   `json:"mdns,omitempty" yaml:"mdns,omitempty"`
	Static []StaticPeer  `json:"static,omitempty" yaml:"static,omitempty"`
}

type MDNSConfig struct {
	Service     string        `json:"service" yaml:"service"`
	Domain      string        `json:"domain" yaml:"domain"`
	Timeout     time.Duration `json:"timeout" yaml:"timeout"`
	DisableIPv6 bool          `json:"disable_ipv6" yaml:"disable_ipv6"`
	Advertise   bool          `json:"advertise" yaml:"advertise"`
}

type StaticPeer struct {
	ID      string `json:"id" yaml:"id"`
	Address string `json:"address" yaml:"address"`
}

type SessionType string

const (
	SessionBadger SessionType = "badger"
	SessionMemory SessionType = "memory"
)

type SessionConfig struct {
	Type SessionType `json:"type" yaml:"type"`
	Dir  string      `json:"dir,omitempty" yaml:"dir,omitempty"`
}

type MetricsConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Addr    string `json:"addr" yaml:"addr"`
}
