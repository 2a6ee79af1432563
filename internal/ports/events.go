package ports

// EventSink receives transport events. Implementations must not block.
type EventSink func(Event)

// Event is one transport signal. The set of implementations is closed.
type Event interface {
	transportEvent()
}

type EndpointOpened struct {
	ID string
}

type EndpointFailed struct {
	Err error
}

type EndpointDisconnected struct{}

type EndpointClosed struct{}

type ChannelIncoming struct {
	Channel Channel
}

type ChannelOpened struct {
	Channel Channel
}

type ChannelData struct {
	Channel Channel
	Data    []byte
}

type ChannelClosed struct {
	Channel Channel
}

type ChannelFailed struct {
	Channel Channel
	Err     error
}

func (EndpointOpened) transportEvent()       {}
func (EndpointFailed) transportEvent()       {}
func (EndpointDisconnected) transportEvent() {}
func (EndpointClosed) transportEvent()       {}
func (ChannelIncoming) transportEvent()      {}
func (ChannelOpened) transportEvent()        {}
func (ChannelData) transportEvent()          {}
func (ChannelClosed) transportEvent()        {}
func (ChannelFailed) transportEvent()        {}
