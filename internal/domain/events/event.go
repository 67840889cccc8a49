package events

import "time"

// DomainEvent is implemented by every event a bounded context raises. It
// carries just enough for routing; the concrete type is the payload.
type DomainEvent interface {
	EventType() EventType
	OccurredAt() time.Time
}

// EventEnvelope encapsulates all event data flowing through the system, providing
// a standardized format for event processing and distribution.
type EventEnvelope struct {
	// Type identifies the category of this event for routing and handling.
	Type EventType

	// Key enables consistent event routing, typically containing a business identifier
	// like a run ID that events can be grouped or partitioned by.
	Key string

	// Headers contain metadata key-value pairs attached to the event.
	Headers map[string]string

	// Timestamp records when this event was created, enabling temporal tracking
	// and debugging of event flows.
	Timestamp time.Time

	// Payload contains the actual domain event.
	Payload any
}

// NewEnvelope wraps a domain event, applying any publish options.
func NewEnvelope(event DomainEvent, opts ...PublishOption) EventEnvelope {
	params := ApplyOptions(opts...)
	return EventEnvelope{
		Type:      event.EventType(),
		Key:       params.Key,
		Headers:   params.Headers,
		Timestamp: event.OccurredAt(),
		Payload:   event,
	}
}
