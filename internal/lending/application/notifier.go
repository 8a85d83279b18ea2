package application

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
)

// Handler observes committed changes. A returned error is logged and counted only.
type Handler func(ctx context.Context, change Change) error

// FailureHook is told about every failed or panicking delivery.
type FailureHook func(subscriber string, kind ChangeKind)

type subscription struct {
	id      uint64
	name    string
	kinds   map[ChangeKind]struct{}
	handler Handler
}

func (s subscription) wants(kind ChangeKind) bool {
	if len(s.kinds) == 0 {
		return true
	}
	_, ok := s.kinds[kind]
	return ok
}

// Notifier fans committed changes out to subscribers in registration order.
type Notifier struct {
	mu     sync.RWMutex
	subs   []subscription
	nextID uint64

	logger    logrus.FieldLogger
	onFailure FailureHook
}

// NotifierOption customizes the notifier.
type NotifierOption func(*Notifier)

// WithNotifierLogger assigns a logger.
func WithNotifierLogger(logger logrus.FieldLogger) NotifierOption {
	return func(n *Notifier) {
		if logger != nil {
			n.logger = logger
		}
	}
}

// WithFailureHook assigns a hook called for each failed delivery.
func WithFailureHook(hook FailureHook) NotifierOption {
	return func(n *Notifier) {
		n.onFailure = hook
	}
}

// NewNotifier constructs an empty notifier.
func NewNotifier(opts ...NotifierOption) *Notifier {
	n := &Notifier{logger: logrus.StandardLogger()}
	for _, opt := range opts {
		if opt != nil {
			opt(n)
		}
	}
	return n
}

// Subscribe registers handler for the given kinds, or for every kind when none are given.
// The returned func removes the subscription and is safe to call more than once.
func (n *Notifier) Subscribe(name string, handler Handler, kinds ...ChangeKind) (func(), error) {
	if n == nil {
		return nil, errors.New("notifier: nil notifier")
	}
	if handler == nil {
		return nil, errors.New("notifier: nil handler")
	}
	filter := make(map[ChangeKind]struct{}, len(kinds))
	for _, kind := range kinds {
		if !kind.IsValid() {
			return nil, fmt.Errorf("notifier: unknown change kind %q", kind)
		}
		filter[kind] = struct{}{}
	}

	n.mu.Lock()
	n.nextID++
	id := n.nextID
	n.subs = append(n.subs, subscription{id: id, name: name, kinds: filter, handler: handler})
	n.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { n.unsubscribe(id) })
	}, nil
}

func (n *Notifier) unsubscribe(id uint64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for i, sub := range n.subs {
		if sub.id == id {
			n.subs = append(n.subs[:i:i], n.subs[i+1:]...)
			return
		}
	}
}

// Subscribers returns the number of registered subscriptions.
func (n *Notifier) Subscribers() int {
	if n == nil {
		return 0
	}
	n.mu.RLock()
	defer n.mu.RUnlock()
	return len(n.subs)
}

// Publish delivers changes in order. It must be called without holding coordinator locks:
// handlers may call back into the coordinator. Failed deliveries are logged and skipped,
// and the number of failures is returned.
func (n *Notifier) Publish(ctx context.Context, changes ...Change) int {
	if n == nil || len(changes) == 0 {
		return 0
	}
	n.mu.RLock()
	subs := append([]subscription(nil), n.subs...)
	n.mu.RUnlock()

	failed := 0
	for _, change := range changes {
		if change == nil {
			continue
		}
		for _, sub := range subs {
			if !sub.wants(change.Kind()) {
				continue
			}
			if err := n.deliver(ctx, sub, change); err != nil {
				failed++
				n.logger.WithFields(logrus.Fields{
					"subscriber": sub.name,
					"kind":       change.Kind(),
					"seq":        change.Sequence(),
				}).WithError(err).Warn("change delivery failed")
				if n.onFailure != nil {
					n.onFailure(sub.name, change.Kind())
				}
			}
		}
	}
	return failed
}

func (n *Notifier) deliver(ctx context.Context, sub subscription, change Change) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("subscriber panic: %v", r)
		}
	}()
	return sub.handler(ctx, change)
}
