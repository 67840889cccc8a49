package scanning

import (
	"context"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/ahrav/codejobs/internal/domain/events"
	domain "github.com/ahrav/codejobs/internal/domain/scanning"
)

// mockDomainEventPublisher implements events.DomainEventPublisher for testing.
type mockDomainEventPublisher struct{ mock.Mock }

func (m *mockDomainEventPublisher) PublishDomainEvent(ctx context.Context, event events.DomainEvent, opts ...events.PublishOption) error {
	args := m.Called(ctx, event, opts)
	return args.Error(0)
}

// recordingPublisher keeps every published event in order.
type recordingPublisher struct {
	mu     sync.Mutex
	events []events.DomainEvent
}

func (p *recordingPublisher) PublishDomainEvent(_ context.Context, event events.DomainEvent, _ ...events.PublishOption) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) statusChanges() []domain.ScanStatusChangedEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]domain.ScanStatusChangedEvent, 0, len(p.events))
	for _, e := range p.events {
		if evt, ok := e.(domain.ScanStatusChangedEvent); ok {
			out = append(out, evt)
		}
	}
	return out
}

// mockJobMetrics implements metrics.JobMetrics for testing.
type mockJobMetrics struct{ mock.Mock }

func (m *mockJobMetrics) IncRunsStarted(ctx context.Context)    { m.Called(ctx) }
func (m *mockJobMetrics) IncStopsRequested(ctx context.Context) { m.Called(ctx) }
func (m *mockJobMetrics) ObserveRunFinished(ctx context.Context, outcome string, d time.Duration) {
	m.Called(ctx, outcome, d)
}
func (m *mockJobMetrics) IncPolls(ctx context.Context)      { m.Called(ctx) }
func (m *mockJobMetrics) IncPollErrors(ctx context.Context) { m.Called(ctx) }

// noopJobMetrics discards all measurements.
type noopJobMetrics struct{}

func (noopJobMetrics) IncRunsStarted(context.Context)                             {}
func (noopJobMetrics) IncStopsRequested(context.Context)                          {}
func (noopJobMetrics) ObserveRunFinished(context.Context, string, time.Duration) {}
func (noopJobMetrics) IncPolls(context.Context)                                   {}
func (noopJobMetrics) IncPollErrors(context.Context)                              {}

// mockScanner implements domain.Scanner for testing.
type mockScanner struct{ mock.Mock }

func (m *mockScanner) Scan(ctx context.Context, req domain.ScanRequest) (domain.ScanSummary, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(domain.ScanSummary), args.Error(1)
}

// stepClock advances by a fixed step on every read.
type stepClock struct {
	mu   sync.Mutex
	now  time.Time
	step time.Duration
}

func newStepClock(step time.Duration) *stepClock {
	return &stepClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), step: step}
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(c.step)
	return c.now
}
