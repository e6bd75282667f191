package memory

import (
	"context"
	"testing"
	"time"

	"github.com/mrioja/flowd/internal/domain"
)

func TestPublishDeliversToSubscribers(t *testing.T) {
	bus := NewInMemoryEventBus()
	ctx := context.Background()

	received := make(chan domain.Event, 1)
	err := bus.Subscribe(ctx, domain.TopicTaskEvents, func(ctx context.Context, event domain.Event) error {
		received <- event
		return nil
	})
	if err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}

	event := domain.Event{ID: "e1", Type: domain.EventTypeTaskStarted, TaskID: "t1", Timestamp: time.Now()}
	if err := bus.Publish(ctx, domain.TopicTaskEvents, event); err != nil {
		t.Fatalf("publish failed: %v", err)
	}

	select {
	case got := <-received:
		if got.ID != "e1" || got.TaskID != "t1" {
			t.Errorf("event = %+v", got)
		}
	case <-time.After(time.Second):
		t.Fatal("event not delivered")
	}
}

func TestPublishIsScopedToTopic(t *testing.T) {
	bus := NewInMemoryEventBus()
	ctx := context.Background()

	received := make(chan domain.Event, 1)
	_ = bus.Subscribe(ctx, domain.TopicStepEvents, func(ctx context.Context, event domain.Event) error {
		received <- event
		return nil
	})

	_ = bus.Publish(ctx, domain.TopicTaskEvents, domain.Event{ID: "e1"})

	select {
	case got := <-received:
		t.Fatalf("received event from another topic: %+v", got)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestSubscribeStopsOnContextCancel(t *testing.T) {
	bus := NewInMemoryEventBus()
	subCtx, cancel := context.WithCancel(context.Background())

	received := make(chan domain.Event, 10)
	_ = bus.Subscribe(subCtx, domain.TopicTaskEvents, func(ctx context.Context, event domain.Event) error {
		received <- event
		return nil
	})

	cancel()
	time.Sleep(50 * time.Millisecond) // let the unsubscribe goroutine run

	_ = bus.Publish(context.Background(), domain.TopicTaskEvents, domain.Event{ID: "late"})

	select {
	case got := <-received:
		t.Fatalf("received event after unsubscribe: %+v", got)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestCloseDropsAllSubscriptions(t *testing.T) {
	bus := NewInMemoryEventBus()
	ctx := context.Background()

	received := make(chan domain.Event, 10)
	_ = bus.Subscribe(ctx, domain.TopicTaskEvents, func(ctx context.Context, event domain.Event) error {
		received <- event
		return nil
	})

	if err := bus.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}
	_ = bus.Publish(ctx, domain.TopicTaskEvents, domain.Event{ID: "late"})

	select {
	case got := <-received:
		t.Fatalf("received event after close: %+v", got)
	case <-time.After(50 * time.Millisecond):
	}
}
