package transform

import "context"

// JobRequest describes the project a transformation runs over.
type JobRequest struct {
	ProjectName   string
	ProjectPath   string
	SourceVersion PlatformVersion
	TargetVersion PlatformVersion
}

// RemoteOutcome is the remote service's verdict on a job. The empty value
// means the job has not concluded.
type RemoteOutcome string

const (
	RemoteOutcomePending            RemoteOutcome = ""
	RemoteOutcomeCompleted          RemoteOutcome = "COMPLETED"
	RemoteOutcomePartiallyCompleted RemoteOutcome = "PARTIALLY_COMPLETED"
	RemoteOutcomeFailed             RemoteOutcome = "FAILED"
	RemoteOutcomeStopped            RemoteOutcome = "STOPPED"
)

// RemoteJob is one poll of a remote transformation job.
type RemoteJob struct {
	ID string
	// Status is the service's free-form description of the current phase.
	Status  string
	Outcome RemoteOutcome
	// Reason explains a failed outcome.
	Reason string
}

// ResultArtifacts locates the downloaded outputs of a finished job.
type ResultArtifacts struct {
	PlanFilePath    string
	SummaryFilePath string
}

// RemoteClient talks to the remote transformation service. Every method must
// return promptly once ctx is done.
type RemoteClient interface {
	StartJob(ctx context.Context, req JobRequest) (jobID string, err error)
	GetJob(ctx context.Context, jobID string) (RemoteJob, error)
	StopJob(ctx context.Context, jobID string) error
	DownloadResults(ctx context.Context, jobID string) (ResultArtifacts, error)
}
