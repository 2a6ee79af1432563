package observability

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eleven-am/peermesh/internal/domain"
)

type fakeStatus struct {
	ready atomic.Bool
	view  domain.MeshView
}

func (f *fakeStatus) Snapshot() domain.MeshView { return f.view }
func (f *fakeStatus) Ready() bool               { return f.ready.Load() }

func newTestServer(t *testing.T, status StatusProvider) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(NewServer(Config{}, status, nil).Handler())
	t.Cleanup(server.Close)
	return server
}

func get(t *testing.T, url string) (int, []byte) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, body
}

func TestServer_HealthReportsMeshSize(t *testing.T) {
	status := &fakeStatus{view: domain.MeshView{
		SelfID: "peer-a",
		Connections: []domain.PeerStatus{
			{PeerID: "peer-b", IsConnected: true},
			{PeerID: "peer-c"},
		},
	}}
	status.ready.Store(true)
	server := newTestServer(t, status)

	code, body := get(t, server.URL+"/health")
	assert.Equal(t, http.StatusOK, code)

	var health HealthResponse
	require.NoError(t, json.Unmarshal(body, &health))
	assert.Equal(t, "ok", health.Status)
	assert.Equal(t, "peer-a", health.SelfID)
	assert.Equal(t, 2, health.Peers)
	assert.Equal(t, 1, health.Connected)
}

func TestServer_ReadyFollowsCoordinator(t *testing.T) {
	status := &fakeStatus{}
	server := newTestServer(t, status)

	code, _ := get(t, server.URL+"/ready")
	assert.Equal(t, http.StatusServiceUnavailable, code)

	status.ready.Store(true)
	code, body := get(t, server.URL+"/ready")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ready", string(body))

	code, _ = get(t, server.URL+"/live")
	assert.Equal(t, http.StatusOK, code)
}

func TestServer_MeshView(t *testing.T) {
	status := &fakeStatus{view: domain.MeshView{
		SelfID: "peer-a",
		Connections: []domain.PeerStatus{
			{PeerID: "peer-b", Profile: &domain.PeerProfile{Name: "bob"}, IsConnected: true},
		},
	}}
	server := newTestServer(t, status)

	code, body := get(t, server.URL+"/mesh")
	assert.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `{"selfId":"peer-a","connections":[{"peerId":"peer-b","profile":{"name":"bob","isMain":false},"isConnected":true}]}`, string(body))

	empty := newTestServer(t, nil)
	code, body = get(t, empty.URL+"/mesh")
	assert.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `{"connections":[]}`, string(body))
}

func TestServer_PrometheusMetrics(t *testing.T) {
	server := newTestServer(t, nil)

	code, body := get(t, server.URL+"/metrics")
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, string(body), "peermesh_peers_known")
}

func TestServer_StartStopsOnCancel(t *testing.T) {
	server := NewServer(Config{Addr: "127.0.0.1:0"}, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- server.Start(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
