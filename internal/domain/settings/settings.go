// Package settings models user preferences that outlive a job run, such as
// whether inline suggestions are enabled.
package settings

import (
	"context"
	"errors"
	"time"

	"github.com/ahrav/codejobs/internal/domain/events"
)

// KeySuggestionsEnabled stores the suggestion toggle.
const KeySuggestionsEnabled = "suggestions.enabled"

// EventTypeSuggestionsToggled is raised whenever the suggestion toggle is written.
const EventTypeSuggestionsToggled events.EventType = "SuggestionsToggled"

// ErrNotFound is returned by a Store for an absent key.
var ErrNotFound = errors.New("setting not found")

// Store is an opaque key/value store for settings.
type Store interface {
	// Get returns ErrNotFound when key has never been set.
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	// Ping reports whether the store can currently serve reads and writes.
	Ping(ctx context.Context) error
}

// SuggestionsToggledEvent signals a write of the suggestion toggle.
type SuggestionsToggledEvent struct {
	occurredAt time.Time
	Enabled    bool `json:"enabled"`
}

// NewSuggestionsToggledEvent creates a new suggestions toggled event.
func NewSuggestionsToggledEvent(enabled bool) SuggestionsToggledEvent {
	return SuggestionsToggledEvent{occurredAt: time.Now(), Enabled: enabled}
}

func (e SuggestionsToggledEvent) EventType() events.EventType { return EventTypeSuggestionsToggled }
func (e SuggestionsToggledEvent) OccurredAt() time.Time       { return e.occurredAt }
