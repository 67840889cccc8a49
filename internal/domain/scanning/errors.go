package scanning

import (
	"errors"

	"github.com/ahrav/codejobs/internal/domain/jobstate"
)

// ErrScanStoppedByUser is the outcome of a scan the user stopped. It is a
// cancellation, not a failure.
var ErrScanStoppedByUser = jobstate.NewCancellationError("code scan stopped by user")

var (
	// ErrScanInProgress is returned when a scan is started while another one
	// is still in flight.
	ErrScanInProgress = errors.New("a code scan is already in progress")

	// ErrNoScanRunning is returned when a stop is requested but no scan is
	// running.
	ErrNoScanRunning = errors.New("no code scan is running")
)
