package scanning

import (
	"time"

	"github.com/ahrav/codejobs/internal/domain/events"
)

// EventTypeScanStatusChanged is raised on every scan status transition.
const EventTypeScanStatusChanged events.EventType = "ScanStatusChanged"

// ScanOutcome records why a scan returned to NotStarted.
type ScanOutcome string

const (
	ScanOutcomeNone      ScanOutcome = ""
	ScanOutcomeCompleted ScanOutcome = "COMPLETED"
	ScanOutcomeCancelled ScanOutcome = "CANCELLED"
	ScanOutcomeFailed    ScanOutcome = "FAILED"
)

// ScanStatusChangedEvent signals that the scan controller moved between statuses.
type ScanStatusChangedEvent struct {
	occurredAt time.Time
	RunID      string      `json:"run_id"`
	From       ScanStatus  `json:"from"`
	To         ScanStatus  `json:"to"`
	Outcome    ScanOutcome `json:"outcome,omitempty"`
}

// NewScanStatusChangedEvent creates a new scan status changed event.
func NewScanStatusChangedEvent(runID string, from, to ScanStatus, outcome ScanOutcome) ScanStatusChangedEvent {
	return ScanStatusChangedEvent{
		occurredAt: time.Now(),
		RunID:      runID,
		From:       from,
		To:         to,
		Outcome:    outcome,
	}
}

func (e ScanStatusChangedEvent) EventType() events.EventType { return EventTypeScanStatusChanged }
func (e ScanStatusChangedEvent) OccurredAt() time.Time       { return e.occurredAt }
