// Package settings exposes the suggestion toggle backed by a settings store,
// with change notification over the event bus.
package settings

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ahrav/codejobs/internal/domain/events"
	domain "github.com/ahrav/codejobs/internal/domain/settings"
	"github.com/ahrav/codejobs/pkg/common/logger"
)

// defaultSuggestionsEnabled applies while the toggle has never been written.
const defaultSuggestionsEnabled = true

// Suggestions reads and writes the suggestion toggle. Writes are published as
// SuggestionsToggled events; any number of subscribers observe them through
// Subscribe.
type Suggestions struct {
	store domain.Store
	bus   events.EventBus

	logger *logger.Logger
	tracer trace.Tracer
}

// NewSuggestions creates the toggle service.
func NewSuggestions(store domain.Store, bus events.EventBus, logger *logger.Logger, tracer trace.Tracer) *Suggestions {
	return &Suggestions{
		store:  store,
		bus:    bus,
		logger: logger.With("component", "suggestions"),
		tracer: tracer,
	}
}

// Enabled returns the toggle, defaulting to enabled when it was never set.
func (s *Suggestions) Enabled(ctx context.Context) (bool, error) {
	ctx, span := s.tracer.Start(ctx, "suggestions.enabled")
	defer span.End()

	raw, err := s.store.Get(ctx, domain.KeySuggestionsEnabled)
	if errors.Is(err, domain.ErrNotFound) {
		return defaultSuggestionsEnabled, nil
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to read setting")
		return false, fmt.Errorf("reading %s: %w", domain.KeySuggestionsEnabled, err)
	}

	enabled, err := strconv.ParseBool(raw)
	if err != nil {
		s.logger.Warn(ctx, "Ignoring malformed suggestion toggle", "value", raw)
		return defaultSuggestionsEnabled, nil
	}
	return enabled, nil
}

// SetEnabled persists the toggle and notifies subscribers.
func (s *Suggestions) SetEnabled(ctx context.Context, enabled bool) error {
	ctx, span := s.tracer.Start(ctx, "suggestions.set_enabled",
		trace.WithAttributes(attribute.Bool("enabled", enabled)))
	defer span.End()

	if err := s.store.Set(ctx, domain.KeySuggestionsEnabled, strconv.FormatBool(enabled)); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to write setting")
		return fmt.Errorf("writing %s: %w", domain.KeySuggestionsEnabled, err)
	}

	evt := domain.NewSuggestionsToggledEvent(enabled)
	if err := s.bus.Publish(ctx, events.NewEnvelope(evt)); err != nil {
		span.RecordError(err)
		s.logger.Warn(ctx, "Failed to notify suggestion toggle subscribers", "error", err)
	}
	s.logger.Info(ctx, "Suggestion toggle updated", "enabled", enabled)
	return nil
}

// Subscribe calls fn with the new value after every write until ctx is done.
func (s *Suggestions) Subscribe(ctx context.Context, fn func(ctx context.Context, enabled bool)) error {
	return s.bus.Subscribe(ctx, []events.EventType{domain.EventTypeSuggestionsToggled},
		func(ctx context.Context, env events.EventEnvelope) error {
			evt, ok := env.Payload.(domain.SuggestionsToggledEvent)
			if !ok {
				return fmt.Errorf("unexpected payload %T for %s", env.Payload, env.Type)
			}
			fn(ctx, evt.Enabled)
			return nil
		})
}
