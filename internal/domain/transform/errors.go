package transform

import (
	"errors"

	"github.com/ahrav/codejobs/internal/domain/jobstate"
)

// ErrTransformStoppedByUser is the outcome of a transformation the user
// stopped. It is a cancellation, not a failure.
var ErrTransformStoppedByUser = jobstate.NewCancellationError("transformation stopped by user")

var (
	// ErrTransformInProgress is returned when a transformation is started
	// while another one is running.
	ErrTransformInProgress = errors.New("a transformation is already in progress")

	// ErrNoTransformRunning is returned when a stop is requested but no
	// transformation is running.
	ErrNoTransformRunning = errors.New("no transformation is running")

	// ErrIncompatibleVersions is returned by the pre-flight check when the
	// source and target platform versions cannot be upgraded between.
	ErrIncompatibleVersions = errors.New("incompatible platform versions")
)
