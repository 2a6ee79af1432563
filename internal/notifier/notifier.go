package notifier

import (
	"fmt"
	"log/slog"
	"reflect"
	"sync"

	"github.com/google/uuid"

	"github.com/eleven-am/peermesh/internal/adapters/metrics"
	"github.com/eleven-am/peermesh/internal/domain"
	"github.com/eleven-am/peermesh/internal/ports"
)

// Subscriber observes mesh view changes. MeshChanged runs on the
// coordinator's event loop, so it must return quickly and must not call
// back into blocking coordinator operations.
type Subscriber interface {
	MeshChanged(view domain.MeshView)
}

// SubscriberFunc adapts a plain function. Function values are not
// comparable, so register them with SubscribeFunc rather than Subscribe.
type SubscriberFunc func(view domain.MeshView)

func (f SubscriberFunc) MeshChanged(view domain.MeshView) {
	f(view)
}

type subscription struct {
	key any
	sub Subscriber
}

// Notifier fans a single mesh view out to every subscriber and then mirrors
// the trimmed session snapshot into the session store.
type Notifier struct {
	mu            sync.RWMutex
	subscriptions []subscription
	store         ports.SessionStore
	logger        *slog.Logger
}

func New(store ports.SessionStore, logger *slog.Logger) *Notifier {
	if logger == nil {
		logger = slog.Default()
	}

	return &Notifier{
		store:  store,
		logger: logger.With("component", "notifier"),
	}
}

// Subscribe registers sub. Registering the same subscriber again replaces
// the existing entry instead of adding a second one.
func (n *Notifier) Subscribe(sub Subscriber) error {
	if sub == nil {
		return fmt.Errorf("subscribe: %w", domain.ErrInvalidInput)
	}
	if !reflect.TypeOf(sub).Comparable() {
		return fmt.Errorf("subscribe %T: subscriber is not comparable: %w", sub, domain.ErrInvalidInput)
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	for i := range n.subscriptions {
		if n.subscriptions[i].key == any(sub) {
			n.subscriptions[i].sub = sub
			return nil
		}
	}
	n.subscriptions = append(n.subscriptions, subscription{key: sub, sub: sub})
	n.logger.Debug("subscriber registered", "subscribers", len(n.subscriptions))
	return nil
}

// Unsubscribe removes sub and reports whether it was registered.
func (n *Notifier) Unsubscribe(sub Subscriber) bool {
	if sub == nil || !reflect.TypeOf(sub).Comparable() {
		return false
	}
	return n.remove(sub)
}

// SubscribeFunc registers fn under a fresh handle and returns the function
// that removes it.
func (n *Notifier) SubscribeFunc(fn func(domain.MeshView)) (cancel func()) {
	key := uuid.New().String()

	n.mu.Lock()
	n.subscriptions = append(n.subscriptions, subscription{key: key, sub: SubscriberFunc(fn)})
	n.mu.Unlock()

	return func() {
		n.remove(key)
	}
}

func (n *Notifier) Len() int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return len(n.subscriptions)
}

// Publish hands the same view to every subscriber, then persists its
// session projection. Neither a panicking subscriber nor a failing store
// reaches the caller.
func (n *Notifier) Publish(view domain.MeshView) {
	n.mu.RLock()
	subscribers := make([]Subscriber, 0, len(n.subscriptions))
	for _, s := range n.subscriptions {
		subscribers = append(subscribers, s.sub)
	}
	n.mu.RUnlock()

	for _, sub := range subscribers {
		n.safeCall(sub, view)
	}
	metrics.NotificationsTotal.Inc()

	if n.store == nil {
		return
	}
	if err := n.store.SaveConnections(view.Session()); err != nil {
		n.logger.Warn("failed to persist session snapshot", "error", err)
	}
}

func (n *Notifier) remove(key any) bool {
	n.mu.Lock()
	defer n.mu.Unlock()

	for i := range n.subscriptions {
		if n.subscriptions[i].key == key {
			n.subscriptions = append(n.subscriptions[:i], n.subscriptions[i+1:]...)
			return true
		}
	}
	return false
}

func (n *Notifier) safeCall(sub Subscriber, view domain.MeshView) {
	defer func() {
		if r := recover(); r != nil {
			n.logger.Error("subscriber panicked", "panic", r)
		}
	}()
	sub.MeshChanged(view)
}
