package notifier

import (
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/eleven-am/peermesh/internal/domain"
)

type mockSessionStore struct {
	mock.Mock
}

func (m *mockSessionStore) LoadPeerID() (string, error) {
	args := m.Called()
	return args.String(0), args.Error(1)
}

func (m *mockSessionStore) SavePeerID(peerID string) error {
	return m.Called(peerID).Error(0)
}

func (m *mockSessionStore) LoadConnections() ([]domain.SessionEntry, error) {
	args := m.Called()
	entries, _ := args.Get(0).([]domain.SessionEntry)
	return entries, args.Error(1)
}

func (m *mockSessionStore) SaveConnections(entries []domain.SessionEntry) error {
	return m.Called(entries).Error(0)
}

func (m *mockSessionStore) Close() error {
	return m.Called().Error(0)
}

type recordingSubscriber struct {
	views []domain.MeshView
}

func (r *recordingSubscriber) MeshChanged(view domain.MeshView) {
	r.views = append(r.views, view)
}

type valueSubscriber struct{}

func (valueSubscriber) MeshChanged(domain.MeshView) {}

type sliceSubscriber []int

func (sliceSubscriber) MeshChanged(domain.MeshView) {}

func sampleView() domain.MeshView {
	return domain.MeshView{
		SelfID: "A",
		Connections: []domain.PeerStatus{
			{PeerID: "B", Profile: &domain.PeerProfile{Name: "bob"}, IsConnected: true},
		},
	}
}

func TestSubscribe_ReplacesInsteadOfAccumulating(t *testing.T) {
	n := New(nil, slog.Default())
	sub := &recordingSubscriber{}

	require.NoError(t, n.Subscribe(sub))
	require.NoError(t, n.Subscribe(sub))
	require.NoError(t, n.Subscribe(valueSubscriber{}))
	require.NoError(t, n.Subscribe(valueSubscriber{}))
	assert.Equal(t, 2, n.Len())

	n.Publish(sampleView())
	assert.Len(t, sub.views, 1)
}

func TestSubscribe_RejectsInvalidSubscribers(t *testing.T) {
	n := New(nil, slog.Default())

	err := n.Subscribe(nil)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	err = n.Subscribe(sliceSubscriber{1})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	assert.False(t, n.Unsubscribe(sliceSubscriber{1}))
	assert.Equal(t, 0, n.Len())
}

func TestUnsubscribe_ReportsRemoval(t *testing.T) {
	n := New(nil, slog.Default())
	first := &recordingSubscriber{}
	second := &recordingSubscriber{}

	require.NoError(t, n.Subscribe(first))
	require.NoError(t, n.Subscribe(second))

	assert.True(t, n.Unsubscribe(first))
	assert.False(t, n.Unsubscribe(first))

	n.Publish(sampleView())
	assert.Empty(t, first.views)
	assert.Len(t, second.views, 1)
}

func TestSubscribeFunc_Cancel(t *testing.T) {
	n := New(nil, slog.Default())
	calls := 0

	cancel := n.SubscribeFunc(func(domain.MeshView) { calls++ })
	n.Publish(sampleView())
	cancel()
	cancel()
	n.Publish(sampleView())

	assert.Equal(t, 1, calls)
	assert.Equal(t, 0, n.Len())
}

func TestPublish_AllSubscribersSeeSameView(t *testing.T) {
	n := New(nil, slog.Default())
	first := &recordingSubscriber{}
	second := &recordingSubscriber{}
	require.NoError(t, n.Subscribe(first))
	require.NoError(t, n.Subscribe(second))

	view := sampleView()
	n.Publish(view)

	require.Len(t, first.views, 1)
	require.Len(t, second.views, 1)
	assert.Equal(t, view, first.views[0])
	assert.Equal(t, first.views[0], second.views[0])
}

func TestPublish_PersistsSessionSnapshot(t *testing.T) {
	store := &mockSessionStore{}
	store.On("SaveConnections", []domain.SessionEntry{
		{PeerID: "B", Profile: &domain.PeerProfile{Name: "bob"}},
	}).Return(nil).Once()

	n := New(store, slog.Default())
	n.Publish(sampleView())

	store.AssertExpectations(t)
}

func TestPublish_SurvivesStoreFailureAndPanics(t *testing.T) {
	store := &mockSessionStore{}
	store.On("SaveConnections", mock.Anything).Return(errors.New("disk full"))

	n := New(store, slog.Default())
	n.SubscribeFunc(func(domain.MeshView) { panic("boom") })
	after := &recordingSubscriber{}
	require.NoError(t, n.Subscribe(after))

	assert.NotPanics(t, func() { n.Publish(sampleView()) })
	assert.Len(t, after.views, 1, "a panicking subscriber must not starve the rest")
	store.AssertNumberOfCalls(t, "SaveConnections", 1)
}
