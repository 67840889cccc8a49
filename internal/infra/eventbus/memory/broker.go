// Package memory provides an in-memory implementation of the event bus.
// It is a lightweight, non-persistent, synchronous broker used to fan job
// events out to in-process subscribers.
package memory

import (
	"context"
	"errors"
	"sync"

	"github.com/ahrav/codejobs/internal/domain/events"
)

var _ events.EventBus = (*Broker)(nil)

// ErrClosed is returned when publishing or subscribing on a closed Broker.
var ErrClosed = errors.New("event bus closed")

type subscription struct {
	id      uint64
	types   map[events.EventType]struct{}
	handler events.HandlerFunc
}

func (s subscription) wants(t events.EventType) bool {
	_, ok := s.types[t]
	return ok
}

// Broker is an in-memory events.EventBus. Handlers run synchronously on the
// publishing goroutine in subscription order, so a publisher observes every
// handler's error.
type Broker struct {
	mu     sync.RWMutex
	nextID uint64
	subs   []subscription
	closed bool
}

// NewBroker creates an empty in-memory broker.
func NewBroker() *Broker {
	return &Broker{subs: make([]subscription, 0)}
}

// Subscribe registers handler for the given event types. The subscription is
// removed once ctx is done.
func (b *Broker) Subscribe(ctx context.Context, eventTypes []events.EventType, handler events.HandlerFunc) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if handler == nil {
		return errors.New("handler cannot be nil")
	}
	if len(eventTypes) == 0 {
		return errors.New("at least one event type is required")
	}

	types := make(map[events.EventType]struct{}, len(eventTypes))
	for _, t := range eventTypes {
		types[t] = struct{}{}
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return ErrClosed
	}
	b.nextID++
	id := b.nextID
	b.subs = append(b.subs, subscription{id: id, types: types, handler: handler})
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.unsubscribe(id)
	}()

	return nil
}

func (b *Broker) unsubscribe(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, s := range b.subs {
		if s.id == id {
			b.subs = append(b.subs[:i], b.subs[i+1:]...)
			return
		}
	}
}

// Publish delivers evt to every subscriber of its type, stopping at the first
// handler error. Handlers are copied before iteration so they may publish or
// subscribe themselves without deadlocking.
func (b *Broker) Publish(ctx context.Context, evt events.EventEnvelope, opts ...events.PublishOption) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if len(opts) > 0 {
		params := events.ApplyOptions(opts...)
		if params.Key != "" {
			evt.Key = params.Key
		}
		if len(params.Headers) > 0 {
			evt.Headers = params.Headers
		}
	}

	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return ErrClosed
	}
	handlers := make([]events.HandlerFunc, 0, len(b.subs))
	for _, s := range b.subs {
		if s.wants(evt.Type) {
			handlers = append(handlers, s.handler)
		}
	}
	b.mu.RUnlock()

	for _, handler := range handlers {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := handler(ctx, evt); err != nil {
			return err
		}
	}
	return nil
}

// Close drops every subscription and rejects further use.
func (b *Broker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	b.subs = nil
	return nil
}
