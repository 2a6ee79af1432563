package core

import (
	"go.uber.org/multierr"

	"github.com/eleven-am/peermesh/internal/adapters/metrics"
	"github.com/eleven-am/peermesh/internal/domain"
)

func (c *Coordinator) requestTeardown(immediate bool) {
	if immediate {
		c.scheduler.Cancel()
		if err := c.teardown("immediate"); err != nil {
			c.logger.Warn("teardown finished with errors", "error", err)
		}
		return
	}

	if c.state == StateIdle {
		return
	}
	if c.state == StateReady {
		c.setState(StateClosing)
	}

	c.logger.Debug("teardown scheduled", "grace", c.mesh.TeardownGrace)
	c.scheduler.Schedule(c.mesh.TeardownGrace, func(generation uint64) {
		c.box.post(func() {
			if !c.scheduler.Fire(generation) {
				return
			}
			if err := c.teardown("debounced"); err != nil {
				c.logger.Warn("teardown finished with errors", "error", err)
			}
		})
	})
}

// cancelTeardown revives a mesh that was waiting out its grace window and
// reports whether a teardown was pending.
func (c *Coordinator) cancelTeardown() bool {
	if !c.scheduler.Cancel() {
		return false
	}
	metrics.RecordTeardown("cancelled")
	c.logger.Debug("scheduled teardown cancelled")
	if c.state == StateClosing {
		c.setState(StateReady)
	}
	return true
}

// teardown closes every channel, destroys the endpoint and returns to Idle.
// Registry records survive with their channels cleared so the next Join can
// re-dial them.
func (c *Coordinator) teardown(mode string) error {
	if c.state == StateIdle && c.endpoint == nil {
		return nil
	}

	c.epoch++
	c.setState(StateClosing)
	c.logger.Info("tearing down mesh", "mode", mode, "peer_id", c.localID)

	errs := c.closeChannels()
	c.retired = make(map[string]struct{})

	if c.endpoint != nil {
		errs = multierr.Append(errs, c.endpoint.Destroy())
		c.endpoint = nil
	}

	c.rejectWaiters(domain.NewEndpointError(domain.ErrEndpointClosed, "join", nil))
	c.localID = ""
	c.setState(StateIdle)
	metrics.RecordTeardown(mode)
	c.publish()
	return errs
}
