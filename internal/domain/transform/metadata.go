package transform

// JobMetadata is the auxiliary record describing the current transformation
// run. Every field defaults to its zero value (empty string, lowest platform
// version) and is only changed through the owning controller's setters; no
// setter touches another field.
type JobMetadata struct {
	JobID           string          `json:"job_id"`
	ProjectName     string          `json:"project_name"`
	ProjectPath     string          `json:"project_path"`
	SourceVersion   PlatformVersion `json:"source_version"`
	TargetVersion   PlatformVersion `json:"target_version"`
	PlanFilePath    string          `json:"plan_file_path"`
	SummaryFilePath string          `json:"summary_file_path"`
	// PolledJobStatus is the remote service's free-form phase description. It
	// is for display only and never drives transitions.
	PolledJobStatus string `json:"polled_job_status"`
	// FailureReason is only populated on a transition to Failed.
	FailureReason string `json:"failure_reason"`
}
