// Package eventbus adapts event buses and sinks to the domain publisher port.
package eventbus

import (
	"context"
	"errors"

	"github.com/ahrav/codejobs/internal/domain/events"
)

var _ events.DomainEventPublisher = (*DomainEventPublisher)(nil)

// DomainEventPublisher implements events.DomainEventPublisher on top of an
// events.EventBus, wrapping each domain event in an envelope.
type DomainEventPublisher struct {
	eventBus events.EventBus
}

// NewDomainEventPublisher creates a publisher that distributes domain events
// through bus.
func NewDomainEventPublisher(bus events.EventBus) *DomainEventPublisher {
	return &DomainEventPublisher{eventBus: bus}
}

// PublishDomainEvent wraps event in an envelope and publishes it on the bus.
func (pub *DomainEventPublisher) PublishDomainEvent(ctx context.Context, event events.DomainEvent, opts ...events.PublishOption) error {
	return pub.eventBus.Publish(ctx, events.NewEnvelope(event, opts...))
}

var _ events.DomainEventPublisher = FanOut(nil)

// FanOut publishes every event to each of its publishers in order. A failing
// publisher does not prevent delivery to the rest; their errors are joined.
type FanOut []events.DomainEventPublisher

// PublishDomainEvent publishes event to every publisher.
func (f FanOut) PublishDomainEvent(ctx context.Context, event events.DomainEvent, opts ...events.PublishOption) error {
	var errs []error
	for _, p := range f {
		if err := p.PublishDomainEvent(ctx, event, opts...); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
