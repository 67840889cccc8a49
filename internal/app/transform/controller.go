package transform

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ahrav/codejobs/internal/app/controller/metrics"
	"github.com/ahrav/codejobs/internal/domain/events"
	"github.com/ahrav/codejobs/internal/domain/jobstate"
	domain "github.com/ahrav/codejobs/internal/domain/transform"
	"github.com/ahrav/codejobs/pkg/common/logger"
)

var jobKindHeader = events.WithHeaders(map[string]string{"job_kind": "transform"})

// Controller owns the state of the process's single code transformation: the
// job status, the orthogonal review status and the job metadata record.
//
// Transform has no Cancelling status. A stop is requested through RequestStop,
// which flags the request and cancels the run context; the status stays
// Running until the driver acknowledges with AcknowledgeCancelled.
type Controller struct {
	mu            sync.RWMutex
	machine       *jobstate.Machine[domain.TransformStatus]
	review        *jobstate.Machine[domain.ReviewStatus]
	metadata      domain.JobMetadata
	timeline      *jobstate.Timeline
	runID         uuid.UUID
	cancel        context.CancelCauseFunc
	stopRequested bool

	publisher events.DomainEventPublisher
	metrics   metrics.JobMetrics
	logger    *logger.Logger
	tracer    trace.Tracer
}

// NewController returns a Controller in TransformStatusNotStarted with empty
// metadata.
func NewController(
	publisher events.DomainEventPublisher,
	metrics metrics.JobMetrics,
	logger *logger.Logger,
	tracer trace.Tracer,
) *Controller {
	return newController(publisher, metrics, logger, tracer, jobstate.RealTimeProvider{})
}

func newController(
	publisher events.DomainEventPublisher,
	metrics metrics.JobMetrics,
	logger *logger.Logger,
	tracer trace.Tracer,
	clock jobstate.TimeProvider,
) *Controller {
	return &Controller{
		machine:   domain.NewTransformMachine(),
		review:    domain.NewReviewMachine(),
		timeline:  jobstate.NewTimeline(clock),
		publisher: publisher,
		metrics:   metrics,
		logger:    logger.With("component", "transform_controller"),
		tracer:    tracer,
	}
}

// Start moves the transformation to Running and returns the run context the
// driver must thread through every remote call. Start fails with
// ErrTransformInProgress if a transformation is already Running. Start keeps
// the metadata record but clears the failure reason.
func (c *Controller) Start(ctx context.Context) (context.Context, error) {
	return c.start(ctx, nil)
}

// StartWith is Start that also replaces the metadata record with seed in the
// same step, so the Running event and every reader see the new job's fields.
// A rejected start leaves the current metadata untouched.
func (c *Controller) StartWith(ctx context.Context, seed domain.JobMetadata) (context.Context, error) {
	return c.start(ctx, &seed)
}

func (c *Controller) start(ctx context.Context, seed *domain.JobMetadata) (context.Context, error) {
	ctx, span := c.tracer.Start(ctx, "transform_controller.start")
	defer span.End()

	c.mu.Lock()
	from := c.machine.Current()
	if from == domain.TransformStatusRunning {
		c.mu.Unlock()
		span.SetStatus(codes.Error, "transformation already in progress")
		return nil, domain.ErrTransformInProgress
	}
	if err := c.machine.TransitionTo(domain.TransformStatusRunning); err != nil {
		c.mu.Unlock()
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to start transformation")
		return nil, err
	}

	if seed != nil {
		c.metadata = *seed
	}
	c.metadata.FailureReason = ""

	runCtx, cancel := context.WithCancelCause(ctx)
	c.cancel = cancel
	c.stopRequested = false
	c.runID = uuid.New()
	c.timeline.MarkStarted()
	runID, jobID := c.runID.String(), c.metadata.JobID
	c.mu.Unlock()

	span.SetAttributes(attribute.String("run_id", runID))
	c.metrics.IncRunsStarted(ctx)
	c.logger.Info(ctx, "Transformation started", "run_id", runID, "from", from)
	c.publish(ctx, domain.NewTransformStatusChangedEvent(runID, jobID, from, domain.TransformStatusRunning, ""), runID)

	return runCtx, nil
}

// RequestStop is the request phase of a cooperative stop. It cancels the run
// context with ErrTransformStoppedByUser; the driver observes the cancellation
// and calls AcknowledgeCancelled. Repeated requests are no-ops.
func (c *Controller) RequestStop(ctx context.Context) error {
	ctx, span := c.tracer.Start(ctx, "transform_controller.request_stop")
	defer span.End()

	c.mu.Lock()
	if c.machine.Current() != domain.TransformStatusRunning {
		c.mu.Unlock()
		span.SetStatus(codes.Error, "no transformation running")
		return domain.ErrNoTransformRunning
	}
	if c.stopRequested {
		c.mu.Unlock()
		span.AddEvent("stop_already_requested")
		return nil
	}
	c.stopRequested = true
	c.timeline.Touch()
	if c.cancel != nil {
		c.cancel(domain.ErrTransformStoppedByUser)
	}
	runID := c.runID.String()
	c.mu.Unlock()

	span.SetAttributes(attribute.String("run_id", runID))
	c.metrics.IncStopsRequested(ctx)
	c.logger.Info(ctx, "Transformation stop requested", "run_id", runID)

	return nil
}

// IsStopRequested reports whether the user asked the running transformation
// to stop and the driver has not yet acknowledged.
func (c *Controller) IsStopRequested() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.stopRequested
}

// Succeed moves a Running transformation to Succeeded.
func (c *Controller) Succeed(ctx context.Context) error {
	return c.conclude(ctx, domain.TransformStatusSucceeded, "")
}

// PartiallySucceed moves a Running transformation to PartiallySucceeded.
func (c *Controller) PartiallySucceed(ctx context.Context) error {
	return c.conclude(ctx, domain.TransformStatusPartiallySucceeded, "")
}

// Fail moves a Running transformation to Failed and records reason for
// display.
func (c *Controller) Fail(ctx context.Context, reason string) error {
	return c.conclude(ctx, domain.TransformStatusFailed, reason)
}

// AcknowledgeCancelled is the acknowledge phase of a cooperative stop: it
// moves a Running transformation to Cancelled.
func (c *Controller) AcknowledgeCancelled(ctx context.Context) error {
	return c.conclude(ctx, domain.TransformStatusCancelled, "")
}

func (c *Controller) conclude(ctx context.Context, target domain.TransformStatus, reason string) error {
	ctx, span := c.tracer.Start(ctx, "transform_controller.conclude",
		trace.WithAttributes(attribute.String("target", target.String())))
	defer span.End()

	c.mu.Lock()
	if err := c.machine.TransitionTo(target); err != nil {
		c.mu.Unlock()
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to conclude transformation")
		return err
	}
	if target == domain.TransformStatusFailed {
		c.metadata.FailureReason = reason
	}
	if c.cancel != nil {
		c.cancel(nil)
		c.cancel = nil
	}
	c.stopRequested = false
	c.timeline.MarkCompleted()
	duration := c.timeline.Duration()
	runID, jobID := c.runID.String(), c.metadata.JobID
	c.mu.Unlock()

	c.metrics.ObserveRunFinished(ctx, target.String(), duration)
	if target == domain.TransformStatusFailed {
		c.logger.Error(ctx, "Transformation failed", "run_id", runID, "job_id", jobID, "reason", reason)
	} else {
		c.logger.Info(ctx, "Transformation concluded", "run_id", runID, "job_id", jobID, "status", target, "duration", duration)
	}
	c.publish(ctx, domain.NewTransformStatusChangedEvent(runID, jobID, domain.TransformStatusRunning, target, reason), runID)

	return nil
}

// Reset returns a concluded transformation to NotStarted. Metadata is left
// untouched; call ResetMetadata to clear it.
func (c *Controller) Reset(ctx context.Context) error {
	c.mu.Lock()
	from := c.machine.Current()
	if err := c.machine.TransitionTo(domain.TransformStatusNotStarted); err != nil {
		c.mu.Unlock()
		return err
	}
	runID, jobID := c.runID.String(), c.metadata.JobID
	c.mu.Unlock()

	c.logger.Debug(ctx, "Transformation reset", "run_id", runID, "from", from)
	c.publish(ctx, domain.NewTransformStatusChangedEvent(runID, jobID, from, domain.TransformStatusNotStarted, ""), runID)
	return nil
}

// SetToPreparingReview begins preparing the transformation's output for
// review. The review status is independent of the job status.
func (c *Controller) SetToPreparingReview(ctx context.Context) error {
	return c.moveReview(ctx, domain.ReviewStatusPreparingReview)
}

// SetToInReview marks the prepared output as under review.
func (c *Controller) SetToInReview(ctx context.Context) error {
	return c.moveReview(ctx, domain.ReviewStatusInReview)
}

// CloseReview returns the review status to NotStarted.
func (c *Controller) CloseReview(ctx context.Context) error {
	return c.moveReview(ctx, domain.ReviewStatusNotStarted)
}

func (c *Controller) moveReview(ctx context.Context, target domain.ReviewStatus) error {
	c.mu.Lock()
	from := c.review.Current()
	if err := c.review.TransitionTo(target); err != nil {
		c.mu.Unlock()
		return fmt.Errorf("review: %w", err)
	}
	var runID string
	if c.runID != uuid.Nil {
		runID = c.runID.String()
	}
	c.mu.Unlock()

	c.logger.Debug(ctx, "Review status changed", "run_id", runID, "from", from, "to", target)
	c.publish(ctx, domain.NewReviewStatusChangedEvent(runID, from, target), runID)
	return nil
}

func (c *Controller) publish(ctx context.Context, evt events.DomainEvent, runID string) {
	if c.publisher == nil {
		return
	}
	if err := c.publisher.PublishDomainEvent(ctx, evt, events.WithKey(runID), jobKindHeader); err != nil {
		trace.SpanFromContext(ctx).RecordError(err)
		c.logger.Warn(ctx, "Failed to publish transform event", "run_id", runID, "event", evt.EventType(), "error", err)
	}
}

// Status returns the current transformation status.
func (c *Controller) Status() domain.TransformStatus {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.machine.Current()
}

func (c *Controller) IsNotStarted() bool { return c.Status() == domain.TransformStatusNotStarted }
func (c *Controller) IsRunning() bool    { return c.Status() == domain.TransformStatusRunning }
func (c *Controller) IsCancelled() bool  { return c.Status() == domain.TransformStatusCancelled }
func (c *Controller) IsFailed() bool     { return c.Status() == domain.TransformStatusFailed }
func (c *Controller) IsSucceeded() bool  { return c.Status() == domain.TransformStatusSucceeded }
func (c *Controller) IsPartiallySucceeded() bool {
	return c.Status() == domain.TransformStatusPartiallySucceeded
}

// ReviewStatus returns the current review status.
func (c *Controller) ReviewStatus() domain.ReviewStatus {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.review.Current()
}

// Presentation derives the transform control's label and icon.
func (c *Controller) Presentation() jobstate.Presentation {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.machine.Presentation()
}

// RunID identifies the current or most recent run; empty before the first run.
func (c *Controller) RunID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.runID == uuid.Nil {
		return ""
	}
	return c.runID.String()
}

// Snapshot is a consistent read of the controller for rendering. Concluded
// separates a finished run from a live one, which Presentation renders alike.
type Snapshot struct {
	Status             domain.TransformStatus `json:"status"`
	Presentation       jobstate.Presentation  `json:"presentation"`
	Concluded          bool                   `json:"concluded"`
	ReviewStatus       domain.ReviewStatus    `json:"review_status"`
	ReviewPresentation jobstate.Presentation  `json:"review_presentation"`
	StopRequested      bool                   `json:"stop_requested"`
	RunID              string                 `json:"run_id,omitempty"`
	StartedAt          time.Time              `json:"started_at,omitempty"`
	CompletedAt        time.Time              `json:"completed_at,omitempty"`
	Metadata           domain.JobMetadata     `json:"metadata"`
}

// Snapshot returns the controller's state as of one instant.
func (c *Controller) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	status := c.machine.Current()
	s := Snapshot{
		Status:             status,
		Presentation:       c.machine.Presentation(),
		Concluded:          status.IsTerminal(),
		ReviewStatus:       c.review.Current(),
		ReviewPresentation: c.review.Presentation(),
		StopRequested:      c.stopRequested,
		StartedAt:          c.timeline.StartedAt(),
		CompletedAt:        c.timeline.CompletedAt(),
		Metadata:           c.metadata,
	}
	if c.runID != uuid.Nil {
		s.RunID = c.runID.String()
	}
	return s
}
