package domain

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigIsValid(t *testing.T) {
	config := DefaultConfig()

	require.NoError(t, config.Validate())
	assert.Equal(t, 300*time.Millisecond, config.Mesh.TeardownGrace)
	assert.Equal(t, TransportGRPC, config.Transport.Type)
	assert.Equal(t, SessionBadger, config.Session.Type)
}

func TestConfig_Validation(t *testing.T) {
	tests := []struct {
		name          string
		mutate        func(*Config)
		expectedField string
	}{
		{
			name:          "negative_grace",
			mutate:        func(c *Config) { c.Mesh.TeardownGrace = -time.Second },
			expectedField: "mesh.teardown_grace",
		},
		{
			name:          "zero_reconnect_rate",
			mutate:        func(c *Config) { c.Reconnect.RatePerSecond = 0 },
			expectedField: "reconnect.rate_per_second",
		},
		{
			name:          "zero_burst",
			mutate:        func(c *Config) { c.Reconnect.Burst = 0 },
			expectedField: "reconnect.burst",
		},
		{
			name:          "negative_attempts",
			mutate:        func(c *Config) { c.Reconnect.MaxAttempts = -1 },
			expectedField: "reconnect.max_attempts",
		},
		{
			name:          "unknown_transport",
			mutate:        func(c *Config) { c.Transport.Type = "carrier-pigeon" },
			expectedField: "transport.type",
		},
		{
			name:          "grpc_without_listen_addr",
			mutate:        func(c *Config) { c.Transport.ListenAddr = "" },
			expectedField: "transport.listen_addr",
		},
		{
			name:          "grpc_wildcard_listen_without_discovery",
			mutate:        func(c *Config) { c.WithGRPC("0.0.0.0:7946", "") },
			expectedField: "transport.advertise_addr",
		},
		{
			name:          "grpc_named_peer_without_discovery",
			mutate:        func(c *Config) { c.WithPeerID("alpha") },
			expectedField: "transport.advertise_addr",
		},
		{
			name:          "grpc_advertise_without_port",
			mutate:        func(c *Config) { c.WithGRPC("0.0.0.0:7946", "10.0.0.1:0") },
			expectedField: "transport.advertise_addr",
		},
		{
			name:          "static_peer_without_address",
			mutate:        func(c *Config) { c.WithStaticPeers(StaticPeer{ID: "peer-a"}) },
			expectedField: "discovery.static.address",
		},
		{
			name:          "empty_static_list",
			mutate:        func(c *Config) { c.WithStaticPeers() },
			expectedField: "discovery.static",
		},
		{
			name:          "mdns_without_service",
			mutate:        func(c *Config) { c.WithMDNS("", "").Discovery[0].MDNS.Service = "" },
			expectedField: "discovery.mdns.service",
		},
		{
			name: "badger_without_directory",
			mutate: func(c *Config) {
				c.DataDir = ""
				c.Session.Dir = ""
			},
			expectedField: "session.dir",
		},
		{
			name: "metrics_without_addr",
			mutate: func(c *Config) {
				c.Metrics.Enabled = true
				c.Metrics.Addr = ""
			},
			expectedField: "metrics.addr",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := DefaultConfig()
			tt.mutate(config)

			err := config.Validate()
			require.Error(t, err)
			assert.True(t, IsInvalidConfig(err))

			var configErr *ConfigError
			require.ErrorAs(t, err, &configErr)
			assert.Equal(t, tt.expectedField, configErr.Field)
		})
	}
}

func TestConfig_GRPCIdentity(t *testing.T) {
	tests := []struct {
		name   string
		config *Config
	}{
		{name: "advertise_addr", config: DefaultConfig().WithGRPC("0.0.0.0:7946", "10.0.0.1:7946")},
		{name: "ephemeral_loopback_port", config: DefaultConfig().WithGRPC("127.0.0.1:0", "")},
		{name: "address_peer_id", config: DefaultConfig().WithPeerID("10.0.0.1:7946").WithGRPC("0.0.0.0:7946", "")},
		{name: "named_peer_with_mdns", config: DefaultConfig().WithPeerID("alpha").WithGRPC("0.0.0.0:7946", "").WithMDNS("", "")},
		{
			name: "wildcard_with_static_peers",
			config: DefaultConfig().WithGRPC("0.0.0.0:7946", "").
				WithStaticPeers(StaticPeer{ID: "peer-b", Address: "10.0.0.2:7946"}),
		},
		{name: "memory_transport", config: DefaultConfig().WithPeerID("alpha").WithMemoryTransport()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.NoError(t, tt.config.Validate())
		})
	}
}

func TestIsDialableAddr(t *testing.T) {
	assert.True(t, IsDialableAddr("127.0.0.1:7946"))
	assert.True(t, IsDialableAddr("mesh.example.internal:7946"))
	assert.True(t, IsDialableAddr("[fe80::1]:7946"))

	assert.False(t, IsDialableAddr("0.0.0.0:7946"))
	assert.False(t, IsDialableAddr("[::]:7946"))
	assert.False(t, IsDialableAddr(":7946"))
	assert.False(t, IsDialableAddr("127.0.0.1:0"))
	assert.False(t, IsDialableAddr("alpha"))
}

func TestParseConfig_FillsDefaults(t *testing.T) {
	data := []byte(`
data_dir: /var/lib/peermesh
profile:
  name: alice
mesh:
  teardown_grace: 750ms
  strict_messages: true
transport:
  type: memory
discovery:
  - type: mdns
  - type: static
    static:
      - id: peer-b
        address: 10.0.0.2:7946
`)

	config, err := ParseConfig(data)
	require.NoError(t, err)
	require.NoError(t, config.Validate())

	assert.Equal(t, "/var/lib/peermesh", config.DataDir)
	assert.Equal(t, "alice", config.Profile.Name)
	assert.Equal(t, 750*time.Millisecond, config.Mesh.TeardownGrace)
	assert.True(t, config.Mesh.StrictMessages)
	assert.Equal(t, TransportMemory, config.Transport.Type)

	assert.Equal(t, DefaultReconnectConfig(), config.Reconnect)
	assert.Equal(t, 10*time.Second, config.Transport.ConnectionTimeout)
	assert.Equal(t, SessionBadger, config.Session.Type)

	require.Len(t, config.Discovery, 2)
	require.NotNil(t, config.Discovery[0].MDNS)
	assert.Equal(t, "_peermesh._tcp", config.Discovery[0].MDNS.Service)
	assert.Equal(t, "peer-b", config.Discovery[1].Static[0].ID)
}

func TestParseConfig_RejectsMalformedYAML(t *testing.T) {
	_, err := ParseConfig([]byte("mesh: [unterminated"))
	require.Error(t, err)
	assert.True(t, IsInvalidConfig(err))
}

func TestLoadConfig_ReadsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "peermesh.yaml")
	require.NoError(t, os.WriteFile(path, []byte("session:\n  type: memory\n"), 0o600))

	config, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, SessionMemory, config.Session.Type)
	assert.Equal(t, "./data", config.DataDir)

	_, err = LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestConfig_SessionDir(t *testing.T) {
	config := DefaultConfig()
	config.DataDir = "/srv/mesh"
	assert.Equal(t, filepath.Join("/srv/mesh", "session"), config.SessionDir())

	config.Session.Dir = "state"
	assert.Equal(t, filepath.Join("/srv/mesh", "state"), config.SessionDir())

	config.Session.Dir = "/abs/state"
	assert.Equal(t, "/abs/state", config.SessionDir())
}
