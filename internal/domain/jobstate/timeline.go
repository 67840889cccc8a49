package jobstate

import "time"

// TimeProvider is an interface that provides a Now method to get the current time.
type TimeProvider interface {
	Now() time.Time
}

// RealTimeProvider reads the wall clock.
type RealTimeProvider struct{}

func (RealTimeProvider) Now() time.Time { return time.Now() }

// Timeline tracks temporal aspects of a single job run.
type Timeline struct {
	startedAt    time.Time
	completedAt  time.Time
	lastUpdate   time.Time
	timeProvider TimeProvider
}

// NewTimeline creates a new Timeline instance.
func NewTimeline(timeProvider TimeProvider) *Timeline {
	return &Timeline{
		lastUpdate:   timeProvider.Now(),
		timeProvider: timeProvider,
	}
}

// StartedAt returns the time the run started.
func (t *Timeline) StartedAt() time.Time { return t.startedAt }

// CompletedAt returns the time the run completed.
func (t *Timeline) CompletedAt() time.Time { return t.completedAt }

// LastUpdate returns the time the run was last updated.
func (t *Timeline) LastUpdate() time.Time { return t.lastUpdate }

// MarkStarted records the start of a new run and clears any prior completion.
func (t *Timeline) MarkStarted() {
	now := t.timeProvider.Now()
	t.startedAt = now
	t.completedAt = time.Time{}
	t.lastUpdate = now
}

// MarkCompleted records completion time.
func (t *Timeline) MarkCompleted() {
	t.completedAt = t.timeProvider.Now()
	t.lastUpdate = t.completedAt
}

// Touch updates the last update timestamp.
func (t *Timeline) Touch() { t.lastUpdate = t.timeProvider.Now() }

// IsCompleted checks if the timeline has been marked as completed.
func (t *Timeline) IsCompleted() bool { return !t.completedAt.IsZero() }

// Duration is the elapsed run time: start to completion for finished runs,
// start to now for runs still in flight, zero if never started.
func (t *Timeline) Duration() time.Duration {
	if t.startedAt.IsZero() {
		return 0
	}
	if t.IsCompleted() {
		return t.completedAt.Sub(t.startedAt)
	}
	return t.timeProvider.Now().Sub(t.startedAt)
}
