package transform

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/ahrav/codejobs/internal/domain/events"
	"github.com/ahrav/codejobs/internal/domain/jobstate"
	domain "github.com/ahrav/codejobs/internal/domain/transform"
	"github.com/ahrav/codejobs/pkg/common/logger"
)

func setupController(t *testing.T, publisher events.DomainEventPublisher) *Controller {
	t.Helper()

	tracer := noop.NewTracerProvider().Tracer("test")
	return newController(publisher, noopJobMetrics{}, logger.Noop(), tracer, newStepClock(time.Second))
}

func TestController_FreshDefaults(t *testing.T) {
	c := setupController(t, &recordingPublisher{})

	assert.True(t, c.IsNotStarted())
	assert.Equal(t, jobstate.Presentation{Label: "Run", Icon: "start-icon"}, c.Presentation())
	assert.Equal(t, domain.ReviewStatusNotStarted, c.ReviewStatus())
	assert.False(t, c.IsStopRequested())

	assert.Empty(t, c.JobID())
	assert.Empty(t, c.ProjectName())
	assert.Empty(t, c.ProjectPath())
	assert.Equal(t, domain.PlatformVersionJDK8, c.SourceVersion())
	assert.Equal(t, domain.PlatformVersionJDK8, c.TargetVersion())
	assert.Empty(t, c.PlanFilePath())
	assert.Empty(t, c.SummaryFilePath())
	assert.Empty(t, c.PolledJobStatus())
	assert.Empty(t, c.FailureReason())
	assert.Equal(t, domain.JobMetadata{}, c.Metadata())
}

func TestController_MetadataFieldsAreIndependent(t *testing.T) {
	tests := []struct {
		name string
		set  func(c *Controller)
		want func(m *domain.JobMetadata)
	}{
		{"job id", func(c *Controller) { c.SetJobID("job-1") }, func(m *domain.JobMetadata) { m.JobID = "job-1" }},
		{"project name", func(c *Controller) { c.SetProjectName("demo") }, func(m *domain.JobMetadata) { m.ProjectName = "demo" }},
		{"project path", func(c *Controller) { c.SetProjectPath("/src") }, func(m *domain.JobMetadata) { m.ProjectPath = "/src" }},
		{
			"source version",
			func(c *Controller) { c.SetSourceVersion(domain.PlatformVersionJDK17) },
			func(m *domain.JobMetadata) { m.SourceVersion = domain.PlatformVersionJDK17 },
		},
		{
			"target version",
			func(c *Controller) { c.SetTargetVersion(domain.PlatformVersionJDK11) },
			func(m *domain.JobMetadata) { m.TargetVersion = domain.PlatformVersionJDK11 },
		},
		{"plan file", func(c *Controller) { c.SetPlanFilePath("/p.md") }, func(m *domain.JobMetadata) { m.PlanFilePath = "/p.md" }},
		{"summary file", func(c *Controller) { c.SetSummaryFilePath("/s.md") }, func(m *domain.JobMetadata) { m.SummaryFilePath = "/s.md" }},
		{"polled status", func(c *Controller) { c.SetPolledJobStatus("BUILDING") }, func(m *domain.JobMetadata) { m.PolledJobStatus = "BUILDING" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := setupController(t, &recordingPublisher{})
			tt.set(c)

			var want domain.JobMetadata
			tt.want(&want)
			assert.Equal(t, want, c.Metadata())
			assert.True(t, c.IsNotStarted(), "metadata setters must not touch status")
		})
	}
}

func TestController_SourceAfterTargetIsNotValidated(t *testing.T) {
	c := setupController(t, &recordingPublisher{})
	c.SetTargetVersion(domain.PlatformVersionJDK8)
	c.SetSourceVersion(domain.PlatformVersionJDK17)

	assert.Equal(t, domain.PlatformVersionJDK17, c.SourceVersion())
	assert.Equal(t, domain.PlatformVersionJDK8, c.TargetVersion())
}

func TestController_StartJobThenFail(t *testing.T) {
	pub := &recordingPublisher{}
	c := setupController(t, pub)
	ctx := context.Background()

	_, err := c.Start(ctx)
	require.NoError(t, err)
	c.SetJobID("job-123")
	require.NoError(t, c.Fail(ctx, "upload rejected"))

	assert.True(t, c.IsFailed())
	assert.Equal(t, "upload rejected", c.FailureReason())
	assert.Equal(t, "job-123", c.JobID())
	assert.Equal(t, jobstate.Presentation{Label: "Stop", Icon: "stop-icon"}, c.Presentation())

	evt, ok := pub.last().(domain.TransformStatusChangedEvent)
	require.True(t, ok)
	assert.Equal(t, domain.TransformStatusFailed, evt.To)
	assert.Equal(t, "job-123", evt.JobID)
	assert.Equal(t, "upload rejected", evt.Reason)
}

func TestController_TerminalSetters(t *testing.T) {
	tests := []struct {
		name     string
		conclude func(c *Controller) error
		want     domain.TransformStatus
	}{
		{"succeed", func(c *Controller) error { return c.Succeed(context.Background()) }, domain.TransformStatusSucceeded},
		{"partially succeed", func(c *Controller) error { return c.PartiallySucceed(context.Background()) }, domain.TransformStatusPartiallySucceeded},
		{"fail", func(c *Controller) error { return c.Fail(context.Background(), "boom") }, domain.TransformStatusFailed},
		{"cancelled", func(c *Controller) error { return c.AcknowledgeCancelled(context.Background()) }, domain.TransformStatusCancelled},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := setupController(t, &recordingPublisher{})

			assert.ErrorIs(t, tt.conclude(c), jobstate.ErrInvalidTransition, "conclusion requires a running job")

			_, err := c.Start(context.Background())
			require.NoError(t, err)
			require.NoError(t, tt.conclude(c))
			assert.Equal(t, tt.want, c.Status())
			assert.True(t, c.Status().IsTerminal())
			assert.Equal(t, jobstate.Presentation{Label: "Stop", Icon: "stop-icon"}, c.Presentation())

			assert.ErrorIs(t, tt.conclude(c), jobstate.ErrInvalidTransition, "terminal statuses cannot conclude again")
		})
	}
}

func TestController_FailureReasonOnlyOnFail(t *testing.T) {
	c := setupController(t, &recordingPublisher{})
	ctx := context.Background()

	_, err := c.Start(ctx)
	require.NoError(t, err)
	require.NoError(t, c.Succeed(ctx))
	assert.Empty(t, c.FailureReason())
}

func TestController_StartWhileRunning(t *testing.T) {
	c := setupController(t, &recordingPublisher{})
	ctx := context.Background()

	_, err := c.Start(ctx)
	require.NoError(t, err)

	_, err = c.Start(ctx)
	assert.ErrorIs(t, err, domain.ErrTransformInProgress)
	assert.True(t, c.IsRunning())
}

func TestController_RestartFromTerminal(t *testing.T) {
	c := setupController(t, &recordingPublisher{})
	ctx := context.Background()

	_, err := c.Start(ctx)
	require.NoError(t, err)
	firstRun := c.RunID()
	require.NoError(t, c.Fail(ctx, "boom"))

	_, err = c.Start(ctx)
	require.NoError(t, err)
	assert.True(t, c.IsRunning())
	assert.NotEqual(t, firstRun, c.RunID())
	assert.Empty(t, c.FailureReason(), "a running job carries no failure reason")
}

func TestController_StartWithSeedsMetadataBeforeRunningEvent(t *testing.T) {
	pub := new(hookPublisher)
	c := setupController(t, pub)
	ctx := context.Background()

	_, err := c.StartWith(ctx, domain.JobMetadata{ProjectName: "first", ProjectPath: "/src/first"})
	require.NoError(t, err)
	c.SetJobID("job-1")
	require.NoError(t, c.Fail(ctx, "upload rejected"))

	var (
		running domain.TransformStatusChangedEvent
		seen    Snapshot
	)
	pub.onPublish = func(evt events.DomainEvent) {
		if e, ok := evt.(domain.TransformStatusChangedEvent); ok && e.To == domain.TransformStatusRunning {
			running = e
			seen = c.Snapshot()
		}
	}

	seed := domain.JobMetadata{
		ProjectName:   "second",
		ProjectPath:   "/src/second",
		SourceVersion: domain.PlatformVersionJDK11,
		TargetVersion: domain.PlatformVersionJDK17,
	}
	_, err = c.StartWith(ctx, seed)
	require.NoError(t, err)

	assert.Equal(t, domain.TransformStatusFailed, running.From)
	assert.Empty(t, running.JobID, "the new run has no remote job yet")
	assert.Equal(t, c.RunID(), running.RunID)

	assert.Equal(t, domain.TransformStatusRunning, seen.Status)
	assert.Equal(t, seed, seen.Metadata)
	assert.Empty(t, seen.Metadata.FailureReason)

	_, err = c.StartWith(ctx, domain.JobMetadata{ProjectName: "third"})
	assert.ErrorIs(t, err, domain.ErrTransformInProgress)
	assert.Equal(t, seed, c.Metadata(), "a rejected start leaves metadata untouched")
}

func TestController_ConcurrentStartsOnlyOneWins(t *testing.T) {
	pub := &recordingPublisher{}
	c := setupController(t, pub)

	const workers = 16
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		started int
		winner  string
	)
	for i := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			name := fmt.Sprintf("project-%d", i)
			if _, err := c.StartWith(context.Background(), domain.JobMetadata{ProjectName: name}); err == nil {
				mu.Lock()
				started++
				winner = name
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, started)
	assert.True(t, c.IsRunning())
	assert.Equal(t, winner, c.ProjectName(), "losers must not overwrite the winner's metadata")
	assert.Equal(t, []events.EventType{domain.EventTypeTransformStatusChanged}, pub.types())
}

func TestController_TwoPhaseStop(t *testing.T) {
	c := setupController(t, &recordingPublisher{})
	ctx := context.Background()

	assert.ErrorIs(t, c.RequestStop(ctx), domain.ErrNoTransformRunning)

	runCtx, err := c.Start(ctx)
	require.NoError(t, err)

	require.NoError(t, c.RequestStop(ctx))
	assert.True(t, c.IsStopRequested())
	assert.True(t, c.IsRunning(), "a stop request does not leave Running")
	require.NoError(t, c.RequestStop(ctx), "repeated requests are no-ops")

	<-runCtx.Done()
	cause, ok := jobstate.StopCause(runCtx)
	require.True(t, ok)
	assert.Equal(t, domain.ErrTransformStoppedByUser, cause)

	require.NoError(t, c.AcknowledgeCancelled(ctx))
	assert.True(t, c.IsCancelled())
	assert.False(t, c.IsStopRequested())
}

func TestController_ReviewIsIndependentOfJobStatus(t *testing.T) {
	pub := &recordingPublisher{}
	c := setupController(t, pub)
	ctx := context.Background()

	require.NoError(t, c.SetToPreparingReview(ctx))
	assert.Equal(t, domain.ReviewStatusPreparingReview, c.ReviewStatus())
	assert.True(t, c.IsNotStarted())

	_, err := c.Start(ctx)
	require.NoError(t, err)
	require.NoError(t, c.SetToInReview(ctx))
	require.NoError(t, c.Succeed(ctx))
	assert.Equal(t, domain.ReviewStatusInReview, c.ReviewStatus())

	require.NoError(t, c.CloseReview(ctx))
	assert.Equal(t, domain.ReviewStatusNotStarted, c.ReviewStatus())
	assert.True(t, c.IsSucceeded())

	assert.ErrorIs(t, c.SetToInReview(ctx), jobstate.ErrInvalidTransition)
	assert.Contains(t, pub.types(), domain.EventTypeReviewStatusChanged)
}

func TestController_ResetAndResetMetadata(t *testing.T) {
	c := setupController(t, &recordingPublisher{})
	ctx := context.Background()

	assert.ErrorIs(t, c.Reset(ctx), jobstate.ErrInvalidTransition)

	_, err := c.Start(ctx)
	require.NoError(t, err)
	c.SetJobID("job-9")
	require.NoError(t, c.AcknowledgeCancelled(ctx))
	require.NoError(t, c.Reset(ctx))

	assert.True(t, c.IsNotStarted())
	assert.Equal(t, "job-9", c.JobID())

	c.ResetMetadata()
	assert.Equal(t, domain.JobMetadata{}, c.Metadata())
}

func TestController_Snapshot(t *testing.T) {
	c := setupController(t, &recordingPublisher{})
	ctx := context.Background()

	_, err := c.Start(ctx)
	require.NoError(t, err)
	c.SetProjectName("demo")
	require.NoError(t, c.RequestStop(ctx))

	snap := c.Snapshot()
	assert.Equal(t, domain.TransformStatusRunning, snap.Status)
	assert.True(t, snap.StopRequested)
	assert.False(t, snap.Concluded)
	assert.Equal(t, "demo", snap.Metadata.ProjectName)
	assert.Equal(t, c.RunID(), snap.RunID)
	assert.Equal(t, jobstate.Presentation{Label: "Review", Icon: "diff"}, snap.ReviewPresentation)
}

func TestController_SnapshotSeparatesConcludedFromRunning(t *testing.T) {
	c := setupController(t, &recordingPublisher{})
	ctx := context.Background()

	_, err := c.Start(ctx)
	require.NoError(t, err)
	running := c.Snapshot()

	require.NoError(t, c.Fail(ctx, "boom"))
	failed := c.Snapshot()

	assert.Equal(t, running.Presentation, failed.Presentation)
	assert.False(t, running.Concluded)
	assert.True(t, failed.Concluded)

	require.NoError(t, c.Reset(ctx))
	assert.False(t, c.Snapshot().Concluded)
}
