package events

import (
	"context"
	"testing"
	"time"
)

func TestPublishSubscribe(t *testing.T) {
	b := NewBroker[string]()
	defer b.Shutdown()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch := b.Subscribe(ctx)

	b.Publish("greeting", "hello")

	select {
	case ev := <-ch:
		if ev.Type != "greeting" || ev.Payload != "hello" {
			t.Errorf("unexpected event: %+v", ev)
		}
		if ev.ID == "" {
			t.Error("event should carry an id")
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestSubscribeCancelClosesChannel(t *testing.T) {
	b := NewBroker[int]()
	defer b.Shutdown()

	ctx, cancel := context.WithCancel(context.Background())
	ch := b.Subscribe(ctx)
	cancel()

	select {
	case _, ok := <-ch:
		if ok {
			t.Error("expected closed channel after cancel")
		}
	case <-time.After(time.Second):
		t.Fatal("channel not closed after context cancel")
	}
}

func TestShutdownClosesSubscribers(t *testing.T) {
	b := NewBroker[int]()
	ch := b.Subscribe(context.Background())

	b.Shutdown()
	b.Shutdown() // idempotent

	select {
	case _, ok := <-ch:
		if ok {
			t.Error("expected closed channel after shutdown")
		}
	case <-time.After(time.Second):
		t.Fatal("channel not closed after shutdown")
	}

	// Publishing after shutdown is a no-op, not a panic.
	b.Publish("late", 1)
}

func TestFullSubscriberDropsInsteadOfBlocking(t *testing.T) {
	b := NewBroker[int]()
	defer b.Shutdown()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	_ = b.Subscribe(ctx) // never drained

	done := make(chan struct{})
	go func() {
		for i := 0; i < defaultBufferSize*2; i++ {
			b.Publish("tick", i)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Publish blocked on a full subscriber")
	}
}
