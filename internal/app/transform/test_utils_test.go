package transform

import (
	"context"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/ahrav/codejobs/internal/domain/events"
	domain "github.com/ahrav/codejobs/internal/domain/transform"
)

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

func (p *recordingPublisher) types() []events.EventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]events.EventType, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.EventType())
	}
	return out
}

func (p *recordingPublisher) last() events.DomainEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.events) == 0 {
		return nil
	}
	return p.events[len(p.events)-1]
}

// hookPublisher records every event and hands it to onPublish first.
type hookPublisher struct {
	recordingPublisher
	onPublish func(events.DomainEvent)
}

func (p *hookPublisher) PublishDomainEvent(ctx context.Context, event events.DomainEvent, opts ...events.PublishOption) error {
	if p.onPublish != nil {
		p.onPublish(event)
	}
	return p.recordingPublisher.PublishDomainEvent(ctx, event, opts...)
}

// noopJobMetrics discards all measurements.
type noopJobMetrics struct{}

func (noopJobMetrics) IncRunsStarted(context.Context)                             {}
func (noopJobMetrics) IncStopsRequested(context.Context)                          {}
func (noopJobMetrics) ObserveRunFinished(context.Context, string, time.Duration) {}
func (noopJobMetrics) IncPolls(context.Context)                                   {}
func (noopJobMetrics) IncPollErrors(context.Context)                              {}

// mockRemoteClient implements domain.RemoteClient for testing.
type mockRemoteClient struct{ mock.Mock }

func (m *mockRemoteClient) StartJob(ctx context.Context, req domain.JobRequest) (string, error) {
	args := m.Called(ctx, req)
	return args.String(0), args.Error(1)
}

func (m *mockRemoteClient) GetJob(ctx context.Context, jobID string) (domain.RemoteJob, error) {
	args := m.Called(ctx, jobID)
	return args.Get(0).(domain.RemoteJob), args.Error(1)
}

func (m *mockRemoteClient) StopJob(ctx context.Context, jobID string) error {
	args := m.Called(ctx, jobID)
	return args.Error(0)
}

func (m *mockRemoteClient) DownloadResults(ctx context.Context, jobID string) (domain.ResultArtifacts, error) {
	args := m.Called(ctx, jobID)
	return args.Get(0).(domain.ResultArtifacts), args.Error(1)
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
