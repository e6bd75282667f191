package memory

import (
	"context"
	"sync"

	"github.com/mrioja/flowd/internal/domain"
	"github.com/mrioja/flowd/internal/ports"
)

// subscription pairs a handler with an identity so it can be removed when
// its context ends.
type subscription struct {
	handler ports.EventHandler
}

// InMemoryEventBus implements ports.EventBus with in-process handlers.
// Suitable for tests and single-process deployments.
type InMemoryEventBus struct {
	mu          sync.RWMutex
	subscribers map[string][]*subscription
}

// NewInMemoryEventBus creates a new in-memory event bus.
func NewInMemoryEventBus() *InMemoryEventBus {
	return &InMemoryEventBus{
		subscribers: make(map[string][]*subscription),
	}
}

// Publish delivers the event to every subscriber of the topic. Handlers run
// asynchronously; a failing handler never affects the publisher.
func (e *InMemoryEventBus) Publish(ctx context.Context, topic string, event domain.Event) error {
	e.mu.RLock()
	subs := make([]*subscription, len(e.subscribers[topic]))
	copy(subs, e.subscribers[topic])
	e.mu.RUnlock()

	for _, sub := range subs {
		go func(s *subscription) {
			_ = s.handler(ctx, event)
		}(sub)
	}

	return nil
}

// Subscribe registers a handler for a topic until ctx is cancelled.
func (e *InMemoryEventBus) Subscribe(ctx context.Context, topic string, handler ports.EventHandler) error {
	sub := &subscription{handler: handler}

	e.mu.Lock()
	e.subscribers[topic] = append(e.subscribers[topic], sub)
	e.mu.Unlock()

	go func() {
		<-ctx.Done()
		e.unsubscribe(topic, sub)
	}()

	return nil
}

// Close drops all subscriptions.
func (e *InMemoryEventBus) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.subscribers = make(map[string][]*subscription)
	return nil
}

func (e *InMemoryEventBus) unsubscribe(topic string, sub *subscription) {
	e.mu.Lock()
	defer e.mu.Unlock()

	subs := e.subscribers[topic]
	for i := range subs {
		if subs[i] == sub {
			e.subscribers[topic] = append(subs[:i], subs[i+1:]...)
			return
		}
	}
}
