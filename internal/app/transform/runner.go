package transform

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ahrav/codejobs/internal/app/controller/metrics"
	"github.com/ahrav/codejobs/internal/domain/jobstate"
	domain "github.com/ahrav/codejobs/internal/domain/transform"
	"github.com/ahrav/codejobs/pkg/common"
	"github.com/ahrav/codejobs/pkg/common/logger"
)

// ErrInvalidRequest is returned by the pre-flight check for a request that
// cannot be started.
var ErrInvalidRequest = errors.New("invalid transformation request")

// RunnerConfig tunes the polling driver.
type RunnerConfig struct {
	// PollInterval paces GetJob calls against the remote service.
	PollInterval time.Duration
	// StopTimeout bounds the best-effort remote stop issued after a user stop.
	StopTimeout time.Duration
}

// DefaultRunnerConfig returns the driver defaults.
func DefaultRunnerConfig() RunnerConfig {
	return RunnerConfig{PollInterval: 5 * time.Second, StopTimeout: 10 * time.Second}
}

// Runner drives one transformation end to end against a RemoteClient: it
// claims the controller, starts the remote job, polls it to a conclusion and
// applies exactly one terminal transition.
type Runner struct {
	controller *Controller
	client     domain.RemoteClient
	cfg        RunnerConfig
	wg         sync.WaitGroup

	metrics metrics.JobMetrics
	logger  *logger.Logger
	tracer  trace.Tracer
}

// NewRunner returns a Runner that drives transformations through controller.
func NewRunner(
	controller *Controller,
	client domain.RemoteClient,
	cfg RunnerConfig,
	metrics metrics.JobMetrics,
	logger *logger.Logger,
	tracer trace.Tracer,
) *Runner {
	def := DefaultRunnerConfig()
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = def.PollInterval
	}
	if cfg.StopTimeout <= 0 {
		cfg.StopTimeout = def.StopTimeout
	}
	return &Runner{
		controller: controller,
		client:     client,
		cfg:        cfg,
		metrics:    metrics,
		logger:     logger.With("component", "transform_runner"),
		tracer:     tracer,
	}
}

// Validate is the pre-flight check run before a transformation may start.
func Validate(req domain.JobRequest) error {
	if req.ProjectName == "" {
		return fmt.Errorf("%w: project name is required", ErrInvalidRequest)
	}
	if req.ProjectPath == "" {
		return fmt.Errorf("%w: project path is required", ErrInvalidRequest)
	}
	return domain.ValidateUpgrade(req.SourceVersion, req.TargetVersion)
}

// Run performs a transformation. It returns ErrTransformStoppedByUser when the
// user stopped it, ErrTransformInProgress when another transformation is
// running, and a wrapped error for any failure. A failure is also recorded on
// the controller as Failed with a reason.
func (r *Runner) Run(ctx context.Context, req domain.JobRequest) error {
	ctx, span := r.startSpan(ctx, req)
	defer span.End()

	runCtx, err := r.begin(ctx, span, req)
	if err != nil {
		return err
	}
	return r.execute(ctx, runCtx, span, req)
}

// Launch validates req and claims the controller, then drives the
// transformation in the background. Pre-flight and overlap errors are returned
// synchronously. The run outlives ctx; done, if non-nil, receives its result.
func (r *Runner) Launch(ctx context.Context, req domain.JobRequest, done func(error)) error {
	ctx, span := r.startSpan(context.WithoutCancel(ctx), req)

	runCtx, err := r.begin(ctx, span, req)
	if err != nil {
		span.End()
		return err
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer span.End()

		err := r.execute(ctx, runCtx, span, req)
		if done != nil {
			done(err)
		}
	}()
	return nil
}

// Wait blocks until every launched transformation has concluded.
func (r *Runner) Wait() { r.wg.Wait() }

func (r *Runner) startSpan(ctx context.Context, req domain.JobRequest) (context.Context, trace.Span) {
	return r.tracer.Start(ctx, "transform_runner.run",
		trace.WithAttributes(
			attribute.String("project_name", req.ProjectName),
			attribute.String("source_version", req.SourceVersion.String()),
			attribute.String("target_version", req.TargetVersion.String()),
		))
}

// begin runs the pre-flight check, then claims the controller and seeds the
// job metadata in one step.
func (r *Runner) begin(ctx context.Context, span trace.Span, req domain.JobRequest) (context.Context, error) {
	if err := Validate(req); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "pre-flight check failed")
		return nil, err
	}

	runCtx, err := r.controller.StartWith(ctx, domain.JobMetadata{
		ProjectName:   req.ProjectName,
		ProjectPath:   req.ProjectPath,
		SourceVersion: req.SourceVersion,
		TargetVersion: req.TargetVersion,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to start transformation")
		return nil, err
	}
	return runCtx, nil
}

func (r *Runner) execute(ctx, runCtx context.Context, span trace.Span, req domain.JobRequest) error {
	// Terminal transitions must land even after the caller's context ends.
	finishCtx := context.WithoutCancel(ctx)

	err := r.drive(runCtx, finishCtx, req)
	switch {
	case err == nil:
		span.SetStatus(codes.Ok, "transformation concluded")
	case jobstate.IsCancellation(err):
		span.AddEvent("transformation_stopped_by_user")
	default:
		span.RecordError(err)
		span.SetStatus(codes.Error, "transformation failed")
	}
	return err
}

func (r *Runner) drive(runCtx, finishCtx context.Context, req domain.JobRequest) error {
	jobID, err := r.client.StartJob(runCtx, req)
	if err != nil {
		if r.stopRequested(runCtx) {
			return r.acknowledgeStop(finishCtx, "")
		}
		return r.fail(finishCtx, fmt.Errorf("starting remote job: %w", err))
	}
	r.controller.SetJobID(jobID)
	r.logger.Info(finishCtx, "Remote transformation job created", "job_id", jobID)

	limiter := common.NewIntervalLimiter(r.cfg.PollInterval)
	for {
		if err := limiter.Wait(runCtx); err != nil {
			if r.stopRequested(runCtx) {
				return r.acknowledgeStop(finishCtx, jobID)
			}
			return r.fail(finishCtx, fmt.Errorf("polling interrupted (job_id: %s): %w", jobID, context.Cause(runCtx)))
		}

		job, err := r.client.GetJob(runCtx, jobID)
		// Re-read the controller after every remote call.
		if r.stopRequested(runCtx) {
			return r.acknowledgeStop(finishCtx, jobID)
		}
		if err != nil {
			r.metrics.IncPollErrors(finishCtx)
			return r.fail(finishCtx, fmt.Errorf("polling remote job (job_id: %s): %w", jobID, err))
		}
		r.metrics.IncPolls(finishCtx)
		r.controller.SetPolledJobStatus(job.Status)
		r.logger.Debug(finishCtx, "Polled remote transformation job", "job_id", jobID, "status", job.Status)

		switch job.Outcome {
		case domain.RemoteOutcomePending:
			continue
		case domain.RemoteOutcomeCompleted:
			if err := r.download(runCtx, finishCtx, jobID); err != nil {
				return err
			}
			return r.controller.Succeed(finishCtx)
		case domain.RemoteOutcomePartiallyCompleted:
			if err := r.download(runCtx, finishCtx, jobID); err != nil {
				return err
			}
			return r.controller.PartiallySucceed(finishCtx)
		case domain.RemoteOutcomeFailed:
			reason := job.Reason
			if reason == "" {
				reason = "remote transformation failed"
			}
			if err := r.controller.Fail(finishCtx, reason); err != nil {
				return err
			}
			return fmt.Errorf("transformation failed (job_id: %s): %s", jobID, reason)
		case domain.RemoteOutcomeStopped:
			// Stopped remotely without a local request; still a cancellation.
			if err := r.controller.AcknowledgeCancelled(finishCtx); err != nil {
				return err
			}
			return domain.ErrTransformStoppedByUser
		default:
			return r.fail(finishCtx, fmt.Errorf("unknown remote outcome %q (job_id: %s)", job.Outcome, jobID))
		}
	}
}

func (r *Runner) download(runCtx, finishCtx context.Context, jobID string) error {
	artifacts, err := r.client.DownloadResults(runCtx, jobID)
	if err != nil {
		if r.stopRequested(runCtx) {
			return r.acknowledgeStop(finishCtx, jobID)
		}
		return r.fail(finishCtx, fmt.Errorf("downloading results (job_id: %s): %w", jobID, err))
	}
	r.controller.SetPlanFilePath(artifacts.PlanFilePath)
	r.controller.SetSummaryFilePath(artifacts.SummaryFilePath)
	return nil
}

func (r *Runner) stopRequested(runCtx context.Context) bool {
	if _, ok := jobstate.StopCause(runCtx); ok {
		return true
	}
	return r.controller.IsStopRequested()
}

// acknowledgeStop asks the remote service to stop the job, bounded by
// StopTimeout, then moves the controller to Cancelled. A failed remote stop is
// logged and does not change the outcome.
func (r *Runner) acknowledgeStop(ctx context.Context, jobID string) error {
	if jobID != "" {
		stopCtx, cancel := context.WithTimeout(ctx, r.cfg.StopTimeout)
		if err := r.client.StopJob(stopCtx, jobID); err != nil {
			r.logger.Warn(ctx, "Failed to stop remote transformation job", "job_id", jobID, "error", err)
		}
		cancel()
	}
	if err := r.controller.AcknowledgeCancelled(ctx); err != nil {
		return err
	}
	r.logger.Info(ctx, "Transformation stopped by user", "job_id", jobID)
	return domain.ErrTransformStoppedByUser
}

func (r *Runner) fail(ctx context.Context, cause error) error {
	if err := r.controller.Fail(ctx, cause.Error()); err != nil {
		return errors.Join(cause, err)
	}
	return cause
}
