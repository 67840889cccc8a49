// Package events defines the domain event contract shared by the job
// controllers and the sinks that carry their lifecycle events.
package events

import "context"

// DomainEventPublisher hands a domain event to whatever sink is configured.
// Implementations must be safe for concurrent use.
type DomainEventPublisher interface {
	PublishDomainEvent(ctx context.Context, event DomainEvent, opts ...PublishOption) error
}

// HandlerFunc processes one event delivered by an EventBus.
type HandlerFunc func(ctx context.Context, evt EventEnvelope) error

// EventBus is an in-process publish/subscribe channel for envelopes.
type EventBus interface {
	// Publish delivers event to every subscriber of its type.
	Publish(ctx context.Context, event EventEnvelope, opts ...PublishOption) error

	// Subscribe registers handler for eventTypes until ctx is done.
	Subscribe(ctx context.Context, eventTypes []EventType, handler HandlerFunc) error

	// Close rejects further publishes and drops all subscriptions.
	Close() error
}
