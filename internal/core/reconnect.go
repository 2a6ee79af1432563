package core

import (
	"github.com/eleven-am/peermesh/internal/adapters/metrics"
)

// onEndpointDisconnected asks the transport to restore a dropped signalling
// session. Attempts are paced by the limiter and capped by MaxAttempts
// until the endpoint reports open again.
func (c *Coordinator) onEndpointDisconnected() {
	if c.endpoint == nil {
		return
	}
	if c.reconnect.MaxAttempts > 0 && c.attempts >= c.reconnect.MaxAttempts {
		metrics.RecordReconnect("exhausted")
		c.logger.Error("giving up on endpoint reconnect", "attempts", c.attempts)
		return
	}
	c.attempts++

	now := c.clock.Now()
	reservation := c.limiter.ReserveN(now, 1)
	if !reservation.OK() {
		metrics.RecordReconnect("exhausted")
		c.logger.Error("endpoint reconnect not permitted by limiter")
		return
	}

	delay := reservation.DelayFrom(now)
	if delay <= 0 {
		c.reconnectEndpoint()
		return
	}

	c.logger.Info("endpoint disconnected, reconnect delayed", "delay", delay, "attempt", c.attempts)
	epoch := c.epoch
	c.clock.AfterFunc(delay, func() {
		c.box.post(func() {
			if epoch == c.epoch {
				c.reconnectEndpoint()
			}
		})
	})
}

func (c *Coordinator) reconnectEndpoint() {
	if c.endpoint == nil {
		return
	}
	c.logger.Info("reconnecting local endpoint", "attempt", c.attempts)
	if err := c.endpoint.Reconnect(); err != nil {
		metrics.RecordReconnect("failure")
		c.logger.Warn("endpoint reconnect failed", "error", err)
	}
}
