package transform

import "github.com/ahrav/codejobs/internal/domain/jobstate"

// TransformStatus represents the client-side state of a code-transformation
// job. Running covers every remote sub-phase (upload, analysis, build,
// transformation); the phase itself is only tracked as the polled status
// string in JobMetadata.
type TransformStatus string

const (
	// TransformStatusNotStarted indicates no transformation has run yet.
	TransformStatusNotStarted TransformStatus = "NOT_STARTED"

	// TransformStatusRunning indicates a transformation is in flight.
	TransformStatusRunning TransformStatus = "RUNNING"

	// TransformStatusCancelled indicates the user stopped the transformation.
	TransformStatusCancelled TransformStatus = "CANCELLED"

	// TransformStatusFailed indicates the transformation ended with an error.
	TransformStatusFailed TransformStatus = "FAILED"

	// TransformStatusSucceeded indicates every step of the transformation completed.
	TransformStatusSucceeded TransformStatus = "SUCCEEDED"

	// TransformStatusPartiallySucceeded indicates the transformation produced
	// results but some steps did not complete.
	TransformStatusPartiallySucceeded TransformStatus = "PARTIALLY_SUCCEEDED"
)

func (s TransformStatus) String() string { return string(s) }

// IsTerminal reports whether no further transition is expected in the
// current run.
func (s TransformStatus) IsTerminal() bool {
	switch s {
	case TransformStatusCancelled, TransformStatusFailed,
		TransformStatusSucceeded, TransformStatusPartiallySucceeded:
		return true
	default:
		return false
	}
}

// Presentation derives the transform control's label and icon. The UI only
// distinguishes "can start" from "busy or stoppable", so every status but
// NotStarted shares one rendering.
func (s TransformStatus) Presentation() jobstate.Presentation {
	switch s {
	case TransformStatusNotStarted:
		return jobstate.Presentation{Label: "Run", Icon: "start-icon"}
	case TransformStatusRunning,
		TransformStatusCancelled,
		TransformStatusFailed,
		TransformStatusSucceeded,
		TransformStatusPartiallySucceeded:
		return jobstate.Presentation{Label: "Stop", Icon: "stop-icon"}
	}
	// Unreachable for statuses produced by a Machine.
	panic("transform: presentation of unknown transform status " + string(s))
}

var terminalStatuses = []TransformStatus{
	TransformStatusCancelled,
	TransformStatusFailed,
	TransformStatusSucceeded,
	TransformStatusPartiallySucceeded,
}

// TransformVocabulary is the closed set of transform statuses. A run moves
// NotStarted -> Running -> one terminal status; a terminal status may start a
// new run or be reset to NotStarted.
var TransformVocabulary = jobstate.NewVocabulary("transform",
	TransformStatusNotStarted,
	[]TransformStatus{
		TransformStatusNotStarted,
		TransformStatusRunning,
		TransformStatusCancelled,
		TransformStatusFailed,
		TransformStatusSucceeded,
		TransformStatusPartiallySucceeded,
	},
	map[TransformStatus][]TransformStatus{
		TransformStatusNotStarted:         {TransformStatusRunning},
		TransformStatusRunning:            terminalStatuses,
		TransformStatusCancelled:          {TransformStatusRunning, TransformStatusNotStarted},
		TransformStatusFailed:             {TransformStatusRunning, TransformStatusNotStarted},
		TransformStatusSucceeded:          {TransformStatusRunning, TransformStatusNotStarted},
		TransformStatusPartiallySucceeded: {TransformStatusRunning, TransformStatusNotStarted},
	},
	TransformStatus.Presentation,
)

// ValidateTransition checks if a status transition is valid and returns an error if not.
func (s TransformStatus) ValidateTransition(target TransformStatus) error {
	return TransformVocabulary.ValidateTransition(s, target)
}

// NewTransformMachine returns a state machine positioned at TransformStatusNotStarted.
func NewTransformMachine() *jobstate.Machine[TransformStatus] {
	return jobstate.NewMachine(TransformVocabulary)
}
