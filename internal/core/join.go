package core

import (
	"go.uber.org/multierr"

	"github.com/eleven-am/peermesh/internal/adapters/metrics"
	"github.com/eleven-am/peermesh/internal/domain"
	"github.com/eleven-am/peermesh/internal/ports"
	"github.com/eleven-am/peermesh/internal/registry"
)

func (c *Coordinator) join(target string, profile *domain.PeerProfile, result chan<- joinResult) {
	revived := c.cancelTeardown()

	if profile != nil {
		p := profile.Clone()
		p.IsOriginator = target == ""
		c.setProfile(p)
	}

	switch c.state {
	case StateReady:
		if target != c.target {
			c.retarget(target)
		} else if !revived && !c.mesh.DisableHealing {
			c.heal()
		}
		result <- joinResult{view: c.view()}

	case StateOpening:
		if target != c.target {
			c.logger.Info("mesh target changed while opening", "from", c.target, "to", target)
			c.registry.Reset()
			c.target = target
			c.publish()
		}
		c.waiters = append(c.waiters, result)

	default:
		c.target = target
		c.waiters = append(c.waiters, result)
		c.open()
	}
}

func (c *Coordinator) open() {
	c.setState(StateOpening)
	c.epoch++
	c.openStarted = c.clock.Now()

	preferred := c.lastID
	if c.store != nil {
		stored, err := c.store.LoadPeerID()
		if err != nil {
			c.logger.Warn("failed to load stored peer id", "error", err)
		} else if stored != "" {
			preferred = stored
		}
	}

	c.logger.Debug("opening local endpoint", "preferred_id", preferred, "target", c.target)
	endpoint, err := c.transport.CreateEndpoint(preferred, c.sinkFor(c.epoch))
	if err != nil {
		c.failOpen(err)
		return
	}
	c.endpoint = endpoint
}

func (c *Coordinator) sinkFor(epoch uint64) ports.EventSink {
	return func(event ports.Event) {
		c.box.post(func() { c.dispatch(epoch, event) })
	}
}

func (c *Coordinator) failOpen(err error) {
	if !domain.IsEndpointCreation(err) {
		err = domain.NewEndpointError(domain.ErrEndpointCreation, "open", err)
	}
	c.logger.Error("failed to open local endpoint", "error", err)

	c.epoch++
	if c.endpoint != nil {
		if destroyErr := c.endpoint.Destroy(); destroyErr != nil {
			c.logger.Debug("failed to destroy endpoint after open failure", "error", destroyErr)
		}
		c.endpoint = nil
	}
	c.rejectWaiters(err)
	c.setState(StateIdle)
}

func (c *Coordinator) onEndpointOpened(id string) {
	switch c.state {
	case StateOpening:
	case StateReady, StateClosing:
		c.attempts = 0
		metrics.RecordReconnect("success")
		c.logger.Info("local endpoint reconnected", "peer_id", id)
		return
	default:
		return
	}

	c.localID = id
	c.lastID = id
	c.attempts = 0
	c.setState(StateReady)
	if c.scheduler.Pending() {
		c.setState(StateClosing)
	}
	metrics.JoinDuration.Observe(c.clock.Since(c.openStarted).Seconds())
	c.logger.Info("local endpoint open", "peer_id", id, "target", c.target)

	if c.store != nil {
		if err := c.store.SavePeerID(id); err != nil {
			c.logger.Warn("failed to persist peer id", "error", err)
		}
	}

	if c.target != "" && c.target != id {
		c.registry.Upsert(c.target, registry.Update{})
	}
	c.publish()
	c.resolveWaiters()

	for _, peerID := range c.registry.Disconnected() {
		c.dial(peerID)
	}
}

// retarget moves a ready mesh to a different bootstrap target. Peers of the
// old mesh are dropped; the local endpoint and identity are kept.
func (c *Coordinator) retarget(target string) {
	c.logger.Info("mesh target changed", "from", c.target, "to", target)

	if err := c.closeChannels(); err != nil {
		c.logger.Warn("failed to close channels of previous mesh", "error", err)
	}
	c.registry.Reset()
	c.target = target

	if target != "" {
		c.registry.Upsert(target, registry.Update{})
	}
	c.publish()

	if target != "" {
		c.dial(target)
	}
}

// heal re-dials every known peer that lost its channel.
func (c *Coordinator) heal() {
	for _, peerID := range c.registry.Disconnected() {
		c.dial(peerID)
	}
}

func (c *Coordinator) dial(peerID string) {
	if c.endpoint == nil || peerID == "" || peerID == c.localID {
		return
	}
	if _, inFlight := c.dialing[peerID]; inFlight {
		return
	}

	ch, err := c.endpoint.Connect(peerID)
	if err != nil {
		c.logger.Warn("failed to dial peer", "peer_id", peerID, "error", err)
		return
	}
	c.dialing[peerID] = ch
	c.logger.Debug("dialing peer", "peer_id", peerID, "channel_id", ch.ID())
}

// closeChannels closes every registered channel and every dial still in
// flight. Their IDs are retired so events already queued for them are
// dropped instead of re-registering the peer.
func (c *Coordinator) closeChannels() error {
	var errs error
	for _, ch := range c.registry.OpenChannels() {
		errs = multierr.Append(errs, c.retire(ch))
	}
	for _, ch := range c.dialing {
		errs = multierr.Append(errs, c.retire(ch))
	}
	c.dialing = make(map[string]ports.Channel)
	c.registry.ClearAll()
	return errs
}

func (c *Coordinator) retire(ch ports.Channel) error {
	c.retired[ch.ID()] = struct{}{}
	return ch.Close()
}

func (c *Coordinator) setProfile(profile *domain.PeerProfile) bool {
	if c.profile.Equal(profile) {
		return false
	}
	c.profile = profile.Clone()
	c.logger.Debug("local profile updated", "profile", c.profile)

	if c.state == StateReady || c.state == StateClosing {
		for _, ch := range c.registry.OpenChannels() {
			c.sendIntroduction(ch)
		}
	}
	return true
}
