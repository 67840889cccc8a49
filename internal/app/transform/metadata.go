package transform

import domain "github.com/ahrav/codejobs/internal/domain/transform"

// Metadata accessors. Each setter writes exactly one field.

func (c *Controller) JobID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.metadata.JobID
}

func (c *Controller) SetJobID(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.metadata.JobID = id
}

func (c *Controller) ProjectName() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.metadata.ProjectName
}

func (c *Controller) SetProjectName(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.metadata.ProjectName = name
}

func (c *Controller) ProjectPath() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.metadata.ProjectPath
}

func (c *Controller) SetProjectPath(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.metadata.ProjectPath = path
}

func (c *Controller) SourceVersion() domain.PlatformVersion {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.metadata.SourceVersion
}

// SetSourceVersion does not check compatibility with the target version;
// that is the pre-flight check's job.
func (c *Controller) SetSourceVersion(v domain.PlatformVersion) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.metadata.SourceVersion = v
}

func (c *Controller) TargetVersion() domain.PlatformVersion {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.metadata.TargetVersion
}

func (c *Controller) SetTargetVersion(v domain.PlatformVersion) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.metadata.TargetVersion = v
}

func (c *Controller) PlanFilePath() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.metadata.PlanFilePath
}

func (c *Controller) SetPlanFilePath(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.metadata.PlanFilePath = path
}

func (c *Controller) SummaryFilePath() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.metadata.SummaryFilePath
}

func (c *Controller) SetSummaryFilePath(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.metadata.SummaryFilePath = path
}

func (c *Controller) PolledJobStatus() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.metadata.PolledJobStatus
}

// SetPolledJobStatus records the remote phase description for display. It
// never changes the job status.
func (c *Controller) SetPolledJobStatus(status string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.metadata.PolledJobStatus = status
}

// FailureReason is set by Fail and is read-only otherwise.
func (c *Controller) FailureReason() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.metadata.FailureReason
}

// Metadata returns a copy of the metadata record.
func (c *Controller) Metadata() domain.JobMetadata {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.metadata
}

// ResetMetadata returns every metadata field to its zero value.
func (c *Controller) ResetMetadata() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.metadata = domain.JobMetadata{}
}
