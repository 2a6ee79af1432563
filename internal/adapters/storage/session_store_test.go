package storage

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eleven-am/peermesh/internal/domain"
	"github.com/eleven-am/peermesh/internal/ports"
)

var _ ports.SessionStore = (*SessionStore)(nil)

func TestSessionStore_EmptyStore(t *testing.T) {
	store, err := NewInMemorySessionStore(slog.Default())
	require.NoError(t, err)
	defer store.Close()

	peerID, err := store.LoadPeerID()
	require.NoError(t, err)
	assert.Empty(t, peerID)

	entries, err := store.LoadConnections()
	require.NoError(t, err)
	assert.Nil(t, entries)
}

func TestSessionStore_RoundTrip(t *testing.T) {
	store, err := NewInMemorySessionStore(nil)
	require.NoError(t, err)
	defer store.Close()

	require.NoError(t, store.SavePeerID("peer-a"))
	entries := []domain.SessionEntry{
		{PeerID: "peer-b", Profile: &domain.PeerProfile{Name: "bob", IsOriginator: true}},
		{PeerID: "peer-c"},
	}
	require.NoError(t, store.SaveConnections(entries))

	peerID, err := store.LoadPeerID()
	require.NoError(t, err)
	assert.Equal(t, "peer-a", peerID)

	loaded, err := store.LoadConnections()
	require.NoError(t, err)
	assert.Equal(t, entries, loaded)

	require.NoError(t, store.SaveConnections(nil))
	loaded, err = store.LoadConnections()
	require.NoError(t, err)
	assert.Empty(t, loaded)
	assert.NotNil(t, loaded)
}

func TestSessionStore_RejectsEmptyPeerID(t *testing.T) {
	store, err := NewInMemorySessionStore(nil)
	require.NoError(t, err)
	defer store.Close()

	assert.ErrorIs(t, store.SavePeerID(""), domain.ErrMissingIdentifier)
}

func TestSessionStore_PersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()

	store, err := NewBadgerSessionStore(dir, slog.Default())
	require.NoError(t, err)
	require.NoError(t, store.SavePeerID("peer-a"))
	require.NoError(t, store.SaveConnections([]domain.SessionEntry{{PeerID: "peer-b"}}))
	require.NoError(t, store.Close())

	reopened, err := NewBadgerSessionStore(dir, slog.Default())
	require.NoError(t, err)
	defer reopened.Close()

	peerID, err := reopened.LoadPeerID()
	require.NoError(t, err)
	assert.Equal(t, "peer-a", peerID)

	entries, err := reopened.LoadConnections()
	require.NoError(t, err)
	assert.Equal(t, []domain.SessionEntry{{PeerID: "peer-b"}}, entries)
}

func TestNewBadgerSessionStore_RequiresDirectory(t *testing.T) {
	_, err := NewBadgerSessionStore("", nil)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}
