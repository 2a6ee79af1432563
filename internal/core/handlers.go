package core

import (
	"errors"

	"github.com/eleven-am/peermesh/internal/adapters/metrics"
	"github.com/eleven-am/peermesh/internal/domain"
	"github.com/eleven-am/peermesh/internal/ports"
	"github.com/eleven-am/peermesh/internal/protocol"
	"github.com/eleven-am/peermesh/internal/registry"
)

// dispatch routes one transport event. Events from an endpoint that has
// since been torn down or replaced carry an older epoch and are dropped.
func (c *Coordinator) dispatch(epoch uint64, event ports.Event) {
	if epoch != c.epoch {
		c.logger.Debug("dropping event from stale endpoint", "event", eventName(event))
		return
	}

	switch e := event.(type) {
	case ports.ChannelOpened:
		if c.isRetired(e.Channel) {
			return
		}
	case ports.ChannelData:
		if c.isRetired(e.Channel) {
			return
		}
	case ports.ChannelClosed:
		delete(c.retired, e.Channel.ID())
	case ports.ChannelFailed:
		delete(c.retired, e.Channel.ID())
	}

	switch e := event.(type) {
	case ports.EndpointOpened:
		c.onEndpointOpened(e.ID)
	case ports.EndpointFailed:
		c.onEndpointFailed(e.Err)
	case ports.EndpointDisconnected:
		c.onEndpointDisconnected()
	case ports.EndpointClosed:
		c.onEndpointClosed()
	case ports.ChannelIncoming:
		c.logger.Debug("incoming channel", "peer_id", e.Channel.Peer(), "channel_id", e.Channel.ID())
	case ports.ChannelOpened:
		c.onChannelOpened(e.Channel)
	case ports.ChannelData:
		c.onChannelData(e.Channel, e.Data)
	case ports.ChannelClosed:
		c.onChannelGone(e.Channel, nil)
	case ports.ChannelFailed:
		c.onChannelGone(e.Channel, e.Err)
	}
}

func (c *Coordinator) onEndpointFailed(err error) {
	if c.state == StateOpening {
		c.failOpen(err)
		return
	}
	c.logger.Error("local endpoint error", "error", err)
}

func (c *Coordinator) onEndpointClosed() {
	c.logger.Warn("local endpoint closed by transport")
	c.rejectWaiters(domain.NewEndpointError(domain.ErrEndpointClosed, "join", nil))
	if err := c.teardown("endpoint-closed"); err != nil {
		c.logger.Debug("teardown after endpoint close reported errors", "error", err)
	}
}

// onChannelOpened runs the local half of the handshake: register the
// channel, introduce ourselves, then tell every other member about the
// newcomer.
func (c *Coordinator) onChannelOpened(ch ports.Channel) {
	peerID := ch.Peer()
	c.settleDial(ch)

	c.logger.Debug("channel open", "peer_id", peerID, "channel_id", ch.ID())
	c.upsert(peerID, registry.Update{Channel: ch})
	c.sendIntroduction(ch)

	for _, other := range c.registry.OpenChannels() {
		if other.ID() == ch.ID() || other.Peer() == peerID {
			continue
		}
		c.send(other, &protocol.NewParticipant{ID: peerID})
	}
}

func (c *Coordinator) onChannelData(ch ports.Channel, data []byte) {
	msg, err := protocol.Decode(data)
	if err != nil {
		c.onBadMessage(ch, err)
		return
	}
	metrics.RecordMessage("in", string(msg.Type()))

	switch m := msg.(type) {
	case *protocol.Introduction:
		if m.ID != "" && m.ID != ch.Peer() {
			c.logger.Warn("introduction id does not match channel peer",
				"peer_id", ch.Peer(), "claimed_id", m.ID)
		}
		c.upsert(ch.Peer(), registry.Update{Profile: m.User, Channel: ch})

	case *protocol.NewParticipant:
		if m.ID == c.localID || c.registry.IndexOf(m.ID) != -1 {
			return
		}
		c.logger.Debug("learned of new participant", "peer_id", m.ID, "from", ch.Peer())
		c.upsert(m.ID, registry.Update{})
		metrics.GossipDialsTotal.Inc()
		c.dial(m.ID)
	}
}

func (c *Coordinator) onBadMessage(ch ports.Channel, err error) {
	if errors.Is(err, protocol.ErrUnknownMessageType) && !c.mesh.StrictMessages {
		c.logger.Debug("ignoring unknown message", "peer_id", ch.Peer(), "error", err)
		return
	}

	c.logger.Warn("rejected message", "peer_id", ch.Peer(), "channel_id", ch.ID(), "error", err)
	if c.mesh.StrictMessages {
		if closeErr := c.retire(ch); closeErr != nil {
			c.logger.Debug("failed to close channel", "peer_id", ch.Peer(), "error", closeErr)
		}
	}
}

// onChannelGone clears the peer's channel when ch is still the one on
// record. A superseded channel closing leaves the newer one alone.
func (c *Coordinator) onChannelGone(ch ports.Channel, cause error) {
	peerID := ch.Peer()
	c.settleDial(ch)

	if cause != nil {
		c.logger.Warn("channel error", "peer_id", peerID, "channel_id", ch.ID(), "error", cause)
	} else {
		c.logger.Debug("channel closed", "peer_id", peerID, "channel_id", ch.ID())
	}

	record, ok := c.registry.Get(peerID)
	if !ok || record.Channel == nil || record.Channel.ID() != ch.ID() {
		return
	}
	if c.registry.ClearChannel(peerID) {
		c.publish()
	}
}

func (c *Coordinator) settleDial(ch ports.Channel) {
	if pending, ok := c.dialing[ch.Peer()]; ok && pending.ID() == ch.ID() {
		delete(c.dialing, ch.Peer())
	}
}

func (c *Coordinator) isRetired(ch ports.Channel) bool {
	_, retired := c.retired[ch.ID()]
	return retired
}

func (c *Coordinator) sendIntroduction(ch ports.Channel) {
	c.send(ch, &protocol.Introduction{ID: c.localID, User: c.profile.Clone()})
}

func (c *Coordinator) send(ch ports.Channel, msg protocol.Message) {
	data, err := protocol.Encode(msg)
	if err != nil {
		c.logger.Error("failed to encode message", "type", msg.Type(), "error", err)
		return
	}
	if err := ch.Send(data); err != nil {
		c.logger.Warn("failed to send message",
			"type", msg.Type(), "peer_id", ch.Peer(), "error", err)
		return
	}
	metrics.RecordMessage("out", string(msg.Type()))
}

func eventName(event ports.Event) string {
	switch event.(type) {
	case ports.EndpointOpened:
		return "endpoint-opened"
	case ports.EndpointFailed:
		return "endpoint-failed"
	case ports.EndpointDisconnected:
		return "endpoint-disconnected"
	case ports.EndpointClosed:
		return "endpoint-closed"
	case ports.ChannelIncoming:
		return "channel-incoming"
	case ports.ChannelOpened:
		return "channel-opened"
	case ports.ChannelData:
		return "channel-data"
	case ports.ChannelClosed:
		return "channel-closed"
	case ports.ChannelFailed:
		return "channel-failed"
	default:
		return "unknown"
	}
}
