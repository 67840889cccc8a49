package transform

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/ahrav/codejobs/internal/domain/events"
	"github.com/ahrav/codejobs/internal/domain/jobstate"
	domain "github.com/ahrav/codejobs/internal/domain/transform"
	"github.com/ahrav/codejobs/pkg/common/logger"
)

var validRequest = domain.JobRequest{
	ProjectName:   "demo",
	ProjectPath:   "/src/demo",
	SourceVersion: domain.PlatformVersionJDK8,
	TargetVersion: domain.PlatformVersionJDK17,
}

func setupRunner(t *testing.T, client domain.RemoteClient) (*Runner, *Controller) {
	t.Helper()
	return setupRunnerWithPublisher(t, client, &recordingPublisher{})
}

func setupRunnerWithPublisher(t *testing.T, client domain.RemoteClient, pub events.DomainEventPublisher) (*Runner, *Controller) {
	t.Helper()

	c := setupController(t, pub)
	tracer := noop.NewTracerProvider().Tracer("test")
	cfg := RunnerConfig{PollInterval: time.Millisecond, StopTimeout: time.Second}
	return NewRunner(c, client, cfg, noopJobMetrics{}, logger.Noop(), tracer), c
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(r *domain.JobRequest)
		wantErr error
	}{
		{name: "valid", mutate: func(*domain.JobRequest) {}},
		{name: "missing project name", mutate: func(r *domain.JobRequest) { r.ProjectName = "" }, wantErr: ErrInvalidRequest},
		{name: "missing project path", mutate: func(r *domain.JobRequest) { r.ProjectPath = "" }, wantErr: ErrInvalidRequest},
		{
			name:    "downgrade",
			mutate:  func(r *domain.JobRequest) { r.SourceVersion, r.TargetVersion = domain.PlatformVersionJDK17, domain.PlatformVersionJDK11 },
			wantErr: domain.ErrIncompatibleVersions,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := validRequest
			tt.mutate(&req)
			err := Validate(req)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestRunner_Succeeds(t *testing.T) {
	client := new(mockRemoteClient)
	client.On("StartJob", mock.Anything, validRequest).Return("job-1", nil)
	client.On("GetJob", mock.Anything, "job-1").Return(domain.RemoteJob{ID: "job-1", Status: "BUILDING"}, nil).Once()
	client.On("GetJob", mock.Anything, "job-1").Return(domain.RemoteJob{ID: "job-1", Status: "COMPLETED", Outcome: domain.RemoteOutcomeCompleted}, nil).Once()
	client.On("DownloadResults", mock.Anything, "job-1").Return(domain.ResultArtifacts{PlanFilePath: "/tmp/plan.md", SummaryFilePath: "/tmp/summary.md"}, nil)

	r, c := setupRunner(t, client)

	require.NoError(t, r.Run(context.Background(), validRequest))
	assert.True(t, c.IsSucceeded())

	md := c.Metadata()
	assert.Equal(t, "job-1", md.JobID)
	assert.Equal(t, "demo", md.ProjectName)
	assert.Equal(t, domain.PlatformVersionJDK17, md.TargetVersion)
	assert.Equal(t, "COMPLETED", md.PolledJobStatus)
	assert.Equal(t, "/tmp/plan.md", md.PlanFilePath)
	assert.Equal(t, "/tmp/summary.md", md.SummaryFilePath)
	client.AssertExpectations(t)
}

func TestRunner_PartiallySucceeds(t *testing.T) {
	client := new(mockRemoteClient)
	client.On("StartJob", mock.Anything, validRequest).Return("job-2", nil)
	client.On("GetJob", mock.Anything, "job-2").Return(domain.RemoteJob{ID: "job-2", Status: "PARTIAL", Outcome: domain.RemoteOutcomePartiallyCompleted}, nil)
	client.On("DownloadResults", mock.Anything, "job-2").Return(domain.ResultArtifacts{PlanFilePath: "/tmp/plan.md"}, nil)

	r, c := setupRunner(t, client)

	require.NoError(t, r.Run(context.Background(), validRequest))
	assert.True(t, c.IsPartiallySucceeded())
	assert.Equal(t, "/tmp/plan.md", c.PlanFilePath())
}

func TestRunner_RemoteFailureRecordsReason(t *testing.T) {
	client := new(mockRemoteClient)
	client.On("StartJob", mock.Anything, validRequest).Return("job-123", nil)
	client.On("GetJob", mock.Anything, "job-123").
		Return(domain.RemoteJob{ID: "job-123", Status: "UPLOADING", Outcome: domain.RemoteOutcomeFailed, Reason: "upload rejected"}, nil)

	r, c := setupRunner(t, client)

	err := r.Run(context.Background(), validRequest)
	require.Error(t, err)
	assert.False(t, jobstate.IsCancellation(err))
	assert.True(t, c.IsFailed())
	assert.Equal(t, "upload rejected", c.FailureReason())
	assert.Equal(t, "job-123", c.JobID())
	client.AssertNotCalled(t, "DownloadResults", mock.Anything, mock.Anything)
}

func TestRunner_RestartAfterFailureStartsClean(t *testing.T) {
	second := domain.JobRequest{
		ProjectName:   "other",
		ProjectPath:   "/src/other",
		SourceVersion: domain.PlatformVersionJDK11,
		TargetVersion: domain.PlatformVersionJDK17,
	}

	client := new(mockRemoteClient)
	client.On("StartJob", mock.Anything, validRequest).Return("job-1", nil)
	client.On("GetJob", mock.Anything, "job-1").
		Return(domain.RemoteJob{ID: "job-1", Outcome: domain.RemoteOutcomeFailed, Reason: "upload rejected"}, nil)
	client.On("StartJob", mock.Anything, second).Return("job-2", nil)
	client.On("GetJob", mock.Anything, "job-2").
		Return(domain.RemoteJob{ID: "job-2", Outcome: domain.RemoteOutcomeCompleted}, nil)
	client.On("DownloadResults", mock.Anything, "job-2").Return(domain.ResultArtifacts{}, nil)

	pub := new(hookPublisher)
	r, c := setupRunnerWithPublisher(t, client, pub)

	require.Error(t, r.Run(context.Background(), validRequest))
	require.True(t, c.IsFailed())

	var seen []Snapshot
	pub.onPublish = func(evt events.DomainEvent) {
		if e, ok := evt.(domain.TransformStatusChangedEvent); ok && e.To == domain.TransformStatusRunning {
			assert.Empty(t, e.JobID)
			seen = append(seen, c.Snapshot())
		}
	}

	require.NoError(t, r.Run(context.Background(), second))
	require.Len(t, seen, 1)
	assert.Equal(t, "other", seen[0].Metadata.ProjectName)
	assert.Equal(t, domain.PlatformVersionJDK11, seen[0].Metadata.SourceVersion)
	assert.Empty(t, seen[0].Metadata.JobID)
	assert.Empty(t, seen[0].Metadata.FailureReason)

	assert.True(t, c.IsSucceeded())
	assert.Equal(t, "job-2", c.JobID())
	assert.Empty(t, c.FailureReason())
}

func TestRunner_StartJobError(t *testing.T) {
	client := new(mockRemoteClient)
	client.On("StartJob", mock.Anything, validRequest).Return("", errors.New("quota exceeded"))

	r, c := setupRunner(t, client)

	err := r.Run(context.Background(), validRequest)
	require.Error(t, err)
	assert.True(t, c.IsFailed())
	assert.Contains(t, c.FailureReason(), "quota exceeded")
	assert.Empty(t, c.JobID())
}

func TestRunner_StoppedByUserWhilePolling(t *testing.T) {
	client := new(mockRemoteClient)
	var c *Controller

	client.On("StartJob", mock.Anything, validRequest).Return("job-7", nil)
	client.On("GetJob", mock.Anything, "job-7").
		Run(func(mock.Arguments) { require.NoError(t, c.RequestStop(context.Background())) }).
		Return(domain.RemoteJob{ID: "job-7", Status: "TRANSFORMING"}, nil).Once()
	client.On("StopJob", mock.Anything, "job-7").
		Run(func(args mock.Arguments) {
			ctx := args.Get(0).(context.Context)
			assert.NoError(t, ctx.Err(), "remote stop must not inherit the cancelled run context")
			_, hasDeadline := ctx.Deadline()
			assert.True(t, hasDeadline)
		}).
		Return(nil)

	var r *Runner
	r, c = setupRunner(t, client)

	err := r.Run(context.Background(), validRequest)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrTransformStoppedByUser)
	assert.True(t, jobstate.IsCancellation(err))
	assert.True(t, c.IsCancelled())
	assert.False(t, c.IsStopRequested())
	client.AssertExpectations(t)
}

func TestRunner_RemoteStopFailureStillCancels(t *testing.T) {
	client := new(mockRemoteClient)
	var c *Controller

	client.On("StartJob", mock.Anything, validRequest).
		Run(func(mock.Arguments) { require.NoError(t, c.RequestStop(context.Background())) }).
		Return("job-8", nil)
	client.On("StopJob", mock.Anything, "job-8").Return(errors.New("gateway timeout"))

	var r *Runner
	r, c = setupRunner(t, client)

	err := r.Run(context.Background(), validRequest)
	assert.ErrorIs(t, err, domain.ErrTransformStoppedByUser)
	assert.True(t, c.IsCancelled())
	client.AssertNotCalled(t, "GetJob", mock.Anything, mock.Anything)
}

func TestRunner_RemoteStoppedOutcome(t *testing.T) {
	client := new(mockRemoteClient)
	client.On("StartJob", mock.Anything, validRequest).Return("job-4", nil)
	client.On("GetJob", mock.Anything, "job-4").Return(domain.RemoteJob{ID: "job-4", Status: "STOPPED", Outcome: domain.RemoteOutcomeStopped}, nil)

	r, c := setupRunner(t, client)

	err := r.Run(context.Background(), validRequest)
	assert.ErrorIs(t, err, domain.ErrTransformStoppedByUser)
	assert.True(t, c.IsCancelled())
}

func TestRunner_PreflightRejectsWithoutStarting(t *testing.T) {
	client := new(mockRemoteClient)
	r, c := setupRunner(t, client)

	req := validRequest
	req.TargetVersion = domain.PlatformVersionJDK8

	err := r.Run(context.Background(), req)
	assert.ErrorIs(t, err, domain.ErrIncompatibleVersions)
	assert.True(t, c.IsNotStarted())
	client.AssertNotCalled(t, "StartJob", mock.Anything, mock.Anything)
}

func TestRunner_RejectsOverlappingRun(t *testing.T) {
	client := new(mockRemoteClient)
	r, c := setupRunner(t, client)

	_, err := c.Start(context.Background())
	require.NoError(t, err)
	c.SetJobID("in-flight")

	err = r.Run(context.Background(), validRequest)
	assert.ErrorIs(t, err, domain.ErrTransformInProgress)
	assert.Equal(t, "in-flight", c.JobID(), "a rejected run must not clobber metadata")
	client.AssertNotCalled(t, "StartJob", mock.Anything, mock.Anything)
}

func TestRunner_LaunchStopAndInvalid(t *testing.T) {
	client := new(mockRemoteClient)
	client.On("StartJob", mock.Anything, validRequest).Return("job-9", nil)
	client.On("GetJob", mock.Anything, "job-9").Return(domain.RemoteJob{ID: "job-9", Status: "BUILDING"}, nil)
	client.On("StopJob", mock.Anything, "job-9").Return(nil)

	r, c := setupRunner(t, client)

	bad := validRequest
	bad.ProjectPath = ""
	assert.ErrorIs(t, r.Launch(context.Background(), bad, nil), ErrInvalidRequest)
	assert.True(t, c.IsNotStarted())

	ctx, cancel := context.WithCancel(context.Background())
	results := make(chan error, 1)
	require.NoError(t, r.Launch(ctx, validRequest, func(err error) { results <- err }))
	cancel()

	assert.True(t, c.IsRunning())
	assert.ErrorIs(t, r.Launch(context.Background(), validRequest, nil), domain.ErrTransformInProgress)
	assert.Equal(t, "demo", c.ProjectName(), "a rejected launch leaves metadata intact")

	require.NoError(t, c.RequestStop(context.Background()))
	r.Wait()

	assert.ErrorIs(t, <-results, domain.ErrTransformStoppedByUser)
	assert.True(t, c.IsCancelled())
}
