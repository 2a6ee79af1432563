package core

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"golang.org/x/time/rate"

	"github.com/eleven-am/peermesh/internal/adapters/metrics"
	"github.com/eleven-am/peermesh/internal/domain"
	"github.com/eleven-am/peermesh/internal/lifecycle"
	"github.com/eleven-am/peermesh/internal/notifier"
	"github.com/eleven-am/peermesh/internal/ports"
	"github.com/eleven-am/peermesh/internal/registry"
)

type Options struct {
	Transport ports.Transport
	// Store is optional. Without it the local identifier survives only
	// within this Coordinator and nothing is restored on start.
	Store ports.SessionStore
	// PreferredID is requested from the transport when the store holds no
	// identifier yet.
	PreferredID string
	Mesh        domain.MeshConfig
	Reconnect   domain.ReconnectConfig
	Clock       clock.Clock
	Logger      *slog.Logger
}

type joinResult struct {
	view domain.MeshView
	err  error
}

// Coordinator owns one mesh membership. Every state change runs on a single
// event loop; public methods post work to that loop and wait for the
// result.
type Coordinator struct {
	transport ports.Transport
	store     ports.SessionStore
	registry  *registry.Registry
	notifier  *notifier.Notifier
	scheduler *lifecycle.Scheduler
	limiter   *rate.Limiter
	clock     clock.Clock
	mesh      domain.MeshConfig
	reconnect domain.ReconnectConfig
	logger    *slog.Logger

	box       *mailbox
	stopped   chan struct{}
	closeOnce sync.Once
	current   atomic.Int32
	latest    atomic.Pointer[domain.MeshView]

	// Owned by the event loop.
	state       State
	endpoint    ports.Endpoint
	epoch       uint64
	localID     string
	lastID      string
	target      string
	profile     *domain.PeerProfile
	waiters     []chan<- joinResult
	dialing     map[string]ports.Channel
	retired     map[string]struct{}
	attempts    int
	openStarted time.Time
}

func New(opts Options) (*Coordinator, error) {
	if opts.Transport == nil {
		return nil, fmt.Errorf("coordinator transport: %w", domain.ErrInvalidInput)
	}
	if opts.Mesh.TeardownGrace < 0 {
		return nil, domain.NewConfigError("mesh.teardown_grace", domain.ErrInvalidInput)
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	clk := opts.Clock
	if clk == nil {
		clk = clock.New()
	}

	mesh := opts.Mesh
	if mesh.TeardownGrace == 0 {
		mesh.TeardownGrace = domain.DefaultTeardownGrace
	}
	reconnect := opts.Reconnect
	defaults := domain.DefaultReconnectConfig()
	if reconnect.RatePerSecond <= 0 {
		reconnect.RatePerSecond = defaults.RatePerSecond
	}
	if reconnect.Burst <= 0 {
		reconnect.Burst = defaults.Burst
	}

	c := &Coordinator{
		transport: opts.Transport,
		store:     opts.Store,
		registry:  registry.New(logger),
		notifier:  notifier.New(opts.Store, logger),
		scheduler: lifecycle.NewScheduler(clk),
		limiter:   rate.NewLimiter(rate.Limit(reconnect.RatePerSecond), reconnect.Burst),
		clock:     clk,
		mesh:      mesh,
		reconnect: reconnect,
		logger:    logger.With("component", "coordinator"),
		box:       newMailbox(),
		stopped:   make(chan struct{}),
		lastID:    opts.PreferredID,
		dialing:   make(map[string]ports.Channel),
		retired:   make(map[string]struct{}),
	}

	c.restoreSession()
	initial := c.view()
	c.latest.Store(&initial)

	go c.box.run(c.stopped)
	return c, nil
}

func (c *Coordinator) restoreSession() {
	if c.store == nil {
		return
	}

	entries, err := c.store.LoadConnections()
	if err != nil {
		c.logger.Warn("failed to load session snapshot", "error", err)
		return
	}
	if seeded := c.registry.Seed(entries); seeded > 0 {
		c.logger.Info("restored peers from session", "peers", seeded)
	}
}

// Join makes this process part of the mesh reachable through target. An
// empty target starts a new mesh with this peer as originator. The call
// returns once the local endpoint is open; connections to other peers keep
// settling afterwards and are reported to subscribers.
func (c *Coordinator) Join(ctx context.Context, target string, profile *domain.PeerProfile) (domain.MeshView, error) {
	result := make(chan joinResult, 1)
	if !c.box.post(func() { c.join(target, profile, result) }) {
		return domain.MeshView{}, domain.ErrCoordinatorClosed
	}

	select {
	case r := <-result:
		return r.view, r.err
	case <-ctx.Done():
		return domain.MeshView{}, ctx.Err()
	case <-c.stopped:
		return domain.MeshView{}, domain.ErrCoordinatorClosed
	}
}

// RequestTeardown leaves the mesh. A non-immediate request is debounced by
// the configured grace window and is cancelled by any Join or View within
// it.
func (c *Coordinator) RequestTeardown(immediate bool) error {
	if !c.box.post(func() { c.requestTeardown(immediate) }) {
		return domain.ErrCoordinatorClosed
	}
	return nil
}

// View returns the current mesh view. Like Join, it cancels a pending
// debounced teardown.
func (c *Coordinator) View(ctx context.Context) (domain.MeshView, error) {
	result := make(chan domain.MeshView, 1)
	posted := c.box.post(func() {
		c.cancelTeardown()
		result <- c.view()
	})
	if !posted {
		return domain.MeshView{}, domain.ErrCoordinatorClosed
	}

	select {
	case view := <-result:
		return view, nil
	case <-ctx.Done():
		return domain.MeshView{}, ctx.Err()
	case <-c.stopped:
		return domain.MeshView{}, domain.ErrCoordinatorClosed
	}
}

// UpdateLocalProfile replaces the profile sent in introductions. When it
// differs by value, every open channel receives a fresh introduction.
func (c *Coordinator) UpdateLocalProfile(ctx context.Context, profile *domain.PeerProfile) (bool, error) {
	result := make(chan bool, 1)
	if !c.box.post(func() { result <- c.setProfile(profile) }) {
		return false, domain.ErrCoordinatorClosed
	}

	select {
	case changed := <-result:
		return changed, nil
	case <-ctx.Done():
		return false, ctx.Err()
	case <-c.stopped:
		return false, domain.ErrCoordinatorClosed
	}
}

func (c *Coordinator) Subscribe(sub notifier.Subscriber) error {
	return c.notifier.Subscribe(sub)
}

func (c *Coordinator) Unsubscribe(sub notifier.Subscriber) bool {
	return c.notifier.Unsubscribe(sub)
}

func (c *Coordinator) SubscribeFunc(fn func(domain.MeshView)) (cancel func()) {
	return c.notifier.SubscribeFunc(fn)
}

func (c *Coordinator) State() State {
	return State(c.current.Load())
}

// LocalID is the identity assigned by the transport, empty while the
// endpoint is not open.
func (c *Coordinator) LocalID() string {
	return c.Snapshot().SelfID
}

func (c *Coordinator) Ready() bool {
	return c.State() == StateReady
}

// Snapshot returns the most recently published view without touching the
// event loop, so unlike View it never cancels a pending teardown.
func (c *Coordinator) Snapshot() domain.MeshView {
	return *c.latest.Load()
}

// Close tears the mesh down immediately and stops the event loop. Pending
// Join calls fail with ErrCoordinatorClosed.
func (c *Coordinator) Close() error {
	var err error
	c.closeOnce.Do(func() {
		result := make(chan error, 1)
		posted := c.box.post(func() {
			c.scheduler.Cancel()
			c.rejectWaiters(domain.ErrCoordinatorClosed)
			result <- c.teardown("close")
		})
		if posted {
			err = <-result
		}
		c.box.close()
		<-c.stopped
		c.logger.Debug("coordinator closed")
	})
	return err
}

func (c *Coordinator) setState(state State) {
	if c.state == state {
		return
	}
	c.logger.Debug("state changed", "from", c.state, "to", state)
	c.state = state
	c.current.Store(int32(state))
}

func (c *Coordinator) view() domain.MeshView {
	return domain.MeshView{
		SelfID:      c.localID,
		Connections: c.registry.Snapshot(),
	}
}

func (c *Coordinator) publish() {
	view := c.view()
	c.latest.Store(&view)
	metrics.SetMeshSize(len(view.Connections), view.ConnectedCount())
	c.notifier.Publish(view)
}

func (c *Coordinator) upsert(peerID string, update registry.Update) bool {
	changed := c.registry.Upsert(peerID, update)
	if changed {
		c.publish()
	}
	return changed
}

func (c *Coordinator) resolveWaiters() {
	view := c.view()
	for _, waiter := range c.waiters {
		waiter <- joinResult{view: view}
	}
	c.waiters = nil
}

func (c *Coordinator) rejectWaiters(err error) {
	for _, waiter := range c.waiters {
		waiter <- joinResult{err: err}
	}
	c.waiters = nil
}
