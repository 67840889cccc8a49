package transform

import (
	"time"

	"github.com/ahrav/codejobs/internal/domain/events"
)

// Event types relevant to transformations.
const (
	EventTypeTransformStatusChanged events.EventType = "TransformStatusChanged"
	EventTypeReviewStatusChanged    events.EventType = "TransformReviewStatusChanged"
)

// TransformStatusChangedEvent signals that the transform controller moved
// between job statuses.
type TransformStatusChangedEvent struct {
	occurredAt time.Time
	RunID      string          `json:"run_id"`
	JobID      string          `json:"job_id,omitempty"`
	From       TransformStatus `json:"from"`
	To         TransformStatus `json:"to"`
	Reason     string          `json:"reason,omitempty"`
}

// NewTransformStatusChangedEvent creates a new transform status changed event.
func NewTransformStatusChangedEvent(runID, jobID string, from, to TransformStatus, reason string) TransformStatusChangedEvent {
	return TransformStatusChangedEvent{
		occurredAt: time.Now(),
		RunID:      runID,
		JobID:      jobID,
		From:       from,
		To:         to,
		Reason:     reason,
	}
}

func (e TransformStatusChangedEvent) EventType() events.EventType {
	return EventTypeTransformStatusChanged
}
func (e TransformStatusChangedEvent) OccurredAt() time.Time { return e.occurredAt }

// ReviewStatusChangedEvent signals that the review of a transformation's
// output moved between statuses.
type ReviewStatusChangedEvent struct {
	occurredAt time.Time
	RunID      string       `json:"run_id"`
	From       ReviewStatus `json:"from"`
	To         ReviewStatus `json:"to"`
}

// NewReviewStatusChangedEvent creates a new review status changed event.
func NewReviewStatusChangedEvent(runID string, from, to ReviewStatus) ReviewStatusChangedEvent {
	return ReviewStatusChangedEvent{occurredAt: time.Now(), RunID: runID, From: from, To: to}
}

func (e ReviewStatusChangedEvent) EventType() events.EventType { return EventTypeReviewStatusChanged }
func (e ReviewStatusChangedEvent) OccurredAt() time.Time       { return e.occurredAt }
