package scanning

import "github.com/ahrav/codejobs/internal/domain/jobstate"

// ScanStatus represents the client-side state of the code-security scan job.
// There is no retained success or failure status: a finished scan, whatever
// its outcome, returns to ScanStatusNotStarted.
type ScanStatus string

const (
	// ScanStatusNotStarted indicates no scan is in flight and one may be started.
	ScanStatusNotStarted ScanStatus = "NOT_STARTED"

	// ScanStatusRunning indicates a scan is in flight against the remote service.
	ScanStatusRunning ScanStatus = "RUNNING"

	// ScanStatusCancelling indicates the user asked the running scan to stop
	// and the driver has not yet acknowledged it.
	ScanStatusCancelling ScanStatus = "CANCELLING"
)

func (s ScanStatus) String() string { return string(s) }

// Presentation derives the scan control's label and icon.
func (s ScanStatus) Presentation() jobstate.Presentation {
	switch s {
	case ScanStatusNotStarted:
		return jobstate.Presentation{Label: "Run", Icon: "start"}
	case ScanStatusRunning:
		return jobstate.Presentation{Label: "Stop", Icon: "stop"}
	case ScanStatusCancelling:
		return jobstate.Presentation{Label: "Stopping", Icon: "loading-spinner"}
	}
	// Unreachable for statuses produced by a Machine, which only accepts
	// members of the vocabulary.
	panic("scanning: presentation of unknown scan status " + string(s))
}

// ScanVocabulary is the closed set of scan statuses and the moves allowed
// between them. Cancelling is only reachable from Running, and both Running
// and Cancelling return to NotStarted when the run concludes.
var ScanVocabulary = jobstate.NewVocabulary("scan",
	ScanStatusNotStarted,
	[]ScanStatus{ScanStatusNotStarted, ScanStatusRunning, ScanStatusCancelling},
	map[ScanStatus][]ScanStatus{
		ScanStatusNotStarted: {ScanStatusRunning},
		ScanStatusRunning:    {ScanStatusCancelling, ScanStatusNotStarted},
		ScanStatusCancelling: {ScanStatusNotStarted},
	},
	ScanStatus.Presentation,
)

// ValidateTransition checks if a status transition is valid and returns an error if not.
func (s ScanStatus) ValidateTransition(target ScanStatus) error {
	return ScanVocabulary.ValidateTransition(s, target)
}

// NewScanMachine returns a state machine positioned at ScanStatusNotStarted.
func NewScanMachine() *jobstate.Machine[ScanStatus] {
	return jobstate.NewMachine(ScanVocabulary)
}
