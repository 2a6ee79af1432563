package memory

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eleven-am/peermesh/internal/domain"
	"github.com/eleven-am/peermesh/internal/ports"
)

type eventLog struct {
	mu     sync.Mutex
	events []ports.Event
}

func (l *eventLog) sink(event ports.Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, event)
}

func (l *eventLog) all() []ports.Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]ports.Event(nil), l.events...)
}

func (l *eventLog) last() ports.Event {
	events := l.all()
	if len(events) == 0 {
		return nil
	}
	return events[len(events)-1]
}

func TestCreateEndpoint_AssignsOrHonoursID(t *testing.T) {
	network := NewNetwork(nil)
	log := &eventLog{}

	endpoint, err := network.CreateEndpoint("", log.sink)
	require.NoError(t, err)
	assert.NotEmpty(t, endpoint.ID())
	assert.Equal(t, ports.EndpointOpened{ID: endpoint.ID()}, log.last())

	named, err := network.CreateEndpoint("alice", log.sink)
	require.NoError(t, err)
	assert.Equal(t, "alice", named.ID())
	assert.True(t, network.Has("alice"))
}

func TestCreateEndpoint_TakenIDFails(t *testing.T) {
	network := NewNetwork(nil)
	_, err := network.CreateEndpoint("alice", (&eventLog{}).sink)
	require.NoError(t, err)

	log := &eventLog{}
	_, err = network.CreateEndpoint("alice", log.sink)
	require.NoError(t, err)

	failed, ok := log.last().(ports.EndpointFailed)
	require.True(t, ok)
	assert.True(t, domain.IsEndpointCreation(failed.Err))
	assert.ErrorIs(t, failed.Err, ErrIDTaken)
}

func TestCreateEndpoint_FailNextOpen(t *testing.T) {
	network := NewNetwork(nil)
	boom := errors.New("signalling unreachable")
	network.FailNextOpen(boom)

	log := &eventLog{}
	_, err := network.CreateEndpoint("a", log.sink)
	require.NoError(t, err)
	failed, ok := log.last().(ports.EndpointFailed)
	require.True(t, ok)
	assert.ErrorIs(t, failed.Err, boom)
	assert.False(t, network.Has("a"))

	_, err = network.CreateEndpoint("a", log.sink)
	require.NoError(t, err)
	assert.True(t, network.Has("a"), "failure applies to a single open")
}

func TestConnect_DeliversEventsToBothSides(t *testing.T) {
	network := NewNetwork(nil)
	aLog, bLog := &eventLog{}, &eventLog{}
	a, _ := network.CreateEndpoint("a", aLog.sink)
	_, _ = network.CreateEndpoint("b", bLog.sink)

	ch, err := a.Connect("b")
	require.NoError(t, err)
	assert.Equal(t, "b", ch.Peer())
	assert.Equal(t, ports.ChannelOpened{Channel: ch}, aLog.last())

	bEvents := bLog.all()
	require.Len(t, bEvents, 3)
	incoming, ok := bEvents[1].(ports.ChannelIncoming)
	require.True(t, ok)
	assert.Equal(t, "a", incoming.Channel.Peer())
	assert.Equal(t, ch.ID(), incoming.Channel.ID(), "both halves share the connection id")
	assert.IsType(t, ports.ChannelOpened{}, bEvents[2])

	require.NoError(t, ch.Send([]byte("hello")))
	data, ok := bLog.last().(ports.ChannelData)
	require.True(t, ok)
	assert.Equal(t, []byte("hello"), data.Data)
	assert.Equal(t, 1, network.Connections())
}

func TestConnect_UnknownPeerFailsChannel(t *testing.T) {
	network := NewNetwork(nil)
	log := &eventLog{}
	a, _ := network.CreateEndpoint("a", log.sink)

	ch, err := a.Connect("ghost")
	require.NoError(t, err)

	failed, ok := log.last().(ports.ChannelFailed)
	require.True(t, ok)
	assert.Equal(t, ch, failed.Channel)
	assert.True(t, domain.IsChannelError(failed.Err))
	assert.ErrorIs(t, failed.Err, domain.ErrPeerUnavailable)
	assert.Error(t, ch.Send([]byte("x")))

	_, err = a.Connect("")
	assert.ErrorIs(t, err, domain.ErrMissingIdentifier)
}

func TestChannelClose_NotifiesBothSidesOnce(t *testing.T) {
	network := NewNetwork(nil)
	aLog, bLog := &eventLog{}, &eventLog{}
	a, _ := network.CreateEndpoint("a", aLog.sink)
	_, _ = network.CreateEndpoint("b", bLog.sink)

	ch, _ := a.Connect("b")
	require.NoError(t, ch.Close())
	require.NoError(t, ch.Close())

	assert.IsType(t, ports.ChannelClosed{}, aLog.last())
	assert.IsType(t, ports.ChannelClosed{}, bLog.last())
	assert.Len(t, aLog.all(), 3)
	assert.Len(t, bLog.all(), 4)

	err := ch.Send([]byte("late"))
	assert.ErrorIs(t, err, ErrChannelClosed)
}

func TestSever_ClosesOnlyThatPair(t *testing.T) {
	network := NewNetwork(nil)
	sink := (&eventLog{}).sink
	a, _ := network.CreateEndpoint("a", sink)
	_, _ = network.CreateEndpoint("b", sink)
	_, _ = network.CreateEndpoint("c", sink)

	ab, _ := a.Connect("b")
	ac, _ := a.Connect("c")

	assert.Equal(t, 1, network.Sever("a", "b"))
	assert.Equal(t, 0, network.Sever("a", "b"))
	assert.Error(t, ab.Send([]byte("x")))
	assert.NoError(t, ac.Send([]byte("x")))
}

func TestDestroy_ClosesChannelsAndFreesID(t *testing.T) {
	network := NewNetwork(nil)
	aLog, bLog := &eventLog{}, &eventLog{}
	a, _ := network.CreateEndpoint("a", aLog.sink)
	_, _ = network.CreateEndpoint("b", bLog.sink)
	_, _ = a.Connect("b")

	require.NoError(t, a.Destroy())
	require.NoError(t, a.Destroy())

	assert.Equal(t, ports.EndpointClosed{}, aLog.last())
	assert.IsType(t, ports.ChannelClosed{}, bLog.last())
	assert.Equal(t, 1, network.DestroyCount("a"))
	assert.False(t, network.Has("a"))

	_, err := a.Connect("b")
	assert.True(t, domain.IsEndpointClosed(err))
	assert.True(t, domain.IsEndpointClosed(a.Reconnect()))

	_, err = network.CreateEndpoint("a", aLog.sink)
	require.NoError(t, err)
	assert.True(t, network.Has("a"))
}

func TestDisconnectAndReconnect(t *testing.T) {
	network := NewNetwork(nil)
	log := &eventLog{}
	a, _ := network.CreateEndpoint("a", log.sink)

	assert.True(t, network.Disconnect("a"))
	assert.False(t, network.Disconnect("ghost"))
	assert.Equal(t, ports.EndpointDisconnected{}, log.last())

	require.NoError(t, a.Reconnect())
	assert.Equal(t, ports.EndpointOpened{ID: "a"}, log.last())
	assert.Equal(t, 1, network.ReconnectCount("a"))
}
