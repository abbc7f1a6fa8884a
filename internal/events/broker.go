// Package events provides a small typed publish-subscribe broker used to
// notify the host UI of conversation state changes.
package events

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

const defaultBufferSize = 64

// Type names a category of event.
type Type string

// Event is one published notification.
type Event[T any] struct {
	ID        string
	Type      Type
	Payload   T
	Timestamp time.Time
}

// Broker is a non-blocking fan-out broker. Subscribers that fall behind
// drop events rather than stall the publisher.
type Broker[T any] struct {
	mu         sync.RWMutex
	subs       map[chan Event[T]]struct{}
	done       chan struct{}
	bufferSize int
}

// NewBroker creates a broker with the default subscriber buffer size.
func NewBroker[T any]() *Broker[T] {
	return &Broker[T]{
		subs:       make(map[chan Event[T]]struct{}),
		done:       make(chan struct{}),
		bufferSize: defaultBufferSize,
	}
}

// Publish delivers an event to every subscriber. It never blocks; a full
// subscriber channel drops the event.
func (b *Broker[T]) Publish(eventType Type, payload T) {
	select {
	case <-b.done:
		return
	default:
	}

	event := Event[T]{
		ID:        uuid.New().String(),
		Type:      eventType,
		Payload:   payload,
		Timestamp: time.Now(),
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	for ch := range b.subs {
		select {
		case ch <- event:
		default:
		}
	}
}

// Subscribe registers a new subscriber. The subscription ends when ctx is
// cancelled or the broker shuts down; the returned channel is closed then.
func (b *Broker[T]) Subscribe(ctx context.Context) <-chan Event[T] {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Event[T], b.bufferSize)
	b.subs[ch] = struct{}{}

	go func() {
		select {
		case <-ctx.Done():
		case <-b.done:
		}
		b.unsubscribe(ch)
	}()

	return ch
}

func (b *Broker[T]) unsubscribe(ch chan Event[T]) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.subs[ch]; ok {
		delete(b.subs, ch)
		close(ch)
	}
}

// Shutdown closes the broker and every subscriber channel.
func (b *Broker[T]) Shutdown() {
	select {
	case <-b.done:
		return
	default:
		close(b.done)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	for ch := range b.subs {
		delete(b.subs, ch)
		close(ch)
	}
}
