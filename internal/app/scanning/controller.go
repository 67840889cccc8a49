package scanning

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
	domain "github.com/ahrav/codejobs/internal/domain/scanning"
	"github.com/ahrav/codejobs/pkg/common/logger"
)

var jobKindHeader = events.WithHeaders(map[string]string{"job_kind": "scan"})

// Controller owns the state of the process's single code-security scan. It
// enforces single flight on Start and threads a cancellation cause into the
// run context so the driver can observe a user stop.
//
// Controller is safe for concurrent use. Events are published after the lock
// is released, so subscribers may call back into the controller.
type Controller struct {
	mu          sync.RWMutex
	machine     *jobstate.Machine[domain.ScanStatus]
	timeline    *jobstate.Timeline
	runID       uuid.UUID
	cancel      context.CancelCauseFunc
	lastOutcome domain.ScanOutcome
	lastSummary *domain.ScanSummary

	publisher events.DomainEventPublisher
	metrics   metrics.JobMetrics
	logger    *logger.Logger
	tracer    trace.Tracer
}

// NewController returns a Controller in ScanStatusNotStarted.
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
		machine:   domain.NewScanMachine(),
		timeline:  jobstate.NewTimeline(clock),
		publisher: publisher,
		metrics:   metrics,
		logger:    logger.With("component", "scan_controller"),
		tracer:    tracer,
	}
}

// Start moves a NotStarted scan to Running and returns the run context the
// driver must pass to the remote call. The run context is derived from ctx and
// is cancelled with ErrScanStoppedByUser when RequestStop is called.
func (c *Controller) Start(ctx context.Context) (context.Context, error) {
	ctx, span := c.tracer.Start(ctx, "scan_controller.start")
	defer span.End()

	c.mu.Lock()
	from := c.machine.Current()
	if from != domain.ScanStatusNotStarted {
		c.mu.Unlock()
		span.SetStatus(codes.Error, "scan already in progress")
		return nil, fmt.Errorf("%w (status: %s)", domain.ErrScanInProgress, from)
	}
	if err := c.machine.TransitionTo(domain.ScanStatusRunning); err != nil {
		c.mu.Unlock()
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to start scan")
		return nil, err
	}

	runCtx, cancel := context.WithCancelCause(ctx)
	c.cancel = cancel
	c.runID = uuid.New()
	c.lastOutcome = domain.ScanOutcomeNone
	c.lastSummary = nil
	c.timeline.MarkStarted()
	runID := c.runID.String()
	c.mu.Unlock()

	span.SetAttributes(attribute.String("run_id", runID))
	c.metrics.IncRunsStarted(ctx)
	c.logger.Info(ctx, "Code scan started", "run_id", runID)
	c.publish(ctx, domain.NewScanStatusChangedEvent(runID, from, domain.ScanStatusRunning, domain.ScanOutcomeNone), runID)

	return runCtx, nil
}

// RequestStop is the first phase of a cooperative stop: it moves a Running
// scan to Cancelling and cancels the run context. The scan only returns to
// NotStarted once the driver acknowledges through Finish. Requesting a stop of
// a scan that is already Cancelling is a no-op.
func (c *Controller) RequestStop(ctx context.Context) error {
	ctx, span := c.tracer.Start(ctx, "scan_controller.request_stop")
	defer span.End()

	c.mu.Lock()
	switch c.machine.Current() {
	case domain.ScanStatusCancelling:
		c.mu.Unlock()
		span.AddEvent("stop_already_requested")
		return nil
	case domain.ScanStatusNotStarted:
		c.mu.Unlock()
		span.SetStatus(codes.Error, "no scan running")
		return domain.ErrNoScanRunning
	}

	if err := c.machine.TransitionTo(domain.ScanStatusCancelling); err != nil {
		c.mu.Unlock()
		span.RecordError(err)
		return err
	}
	c.timeline.Touch()
	if c.cancel != nil {
		c.cancel(domain.ErrScanStoppedByUser)
	}
	runID := c.runID.String()
	c.mu.Unlock()

	span.SetAttributes(attribute.String("run_id", runID))
	c.metrics.IncStopsRequested(ctx)
	c.logger.Info(ctx, "Code scan stop requested", "run_id", runID)
	c.publish(ctx, domain.NewScanStatusChangedEvent(runID, domain.ScanStatusRunning, domain.ScanStatusCancelling, domain.ScanOutcomeNone), runID)

	return nil
}

// Finish acknowledges the end of the current run, returning the scan to
// NotStarted from either Running or Cancelling.
func (c *Controller) Finish(ctx context.Context, outcome domain.ScanOutcome) error {
	return c.finish(ctx, outcome, nil)
}

func (c *Controller) finish(ctx context.Context, outcome domain.ScanOutcome, summary *domain.ScanSummary) error {
	ctx, span := c.tracer.Start(ctx, "scan_controller.finish",
		trace.WithAttributes(attribute.String("outcome", string(outcome))))
	defer span.End()

	c.mu.Lock()
	from := c.machine.Current()
	if err := c.machine.TransitionTo(domain.ScanStatusNotStarted); err != nil {
		c.mu.Unlock()
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to finish scan")
		return err
	}
	if c.cancel != nil {
		c.cancel(nil)
		c.cancel = nil
	}
	c.timeline.MarkCompleted()
	c.lastOutcome = outcome
	c.lastSummary = summary
	duration := c.timeline.Duration()
	runID := c.runID.String()
	c.mu.Unlock()

	c.metrics.ObserveRunFinished(ctx, string(outcome), duration)
	c.logger.Info(ctx, "Code scan finished", "run_id", runID, "outcome", outcome, "duration", duration)
	c.publish(ctx, domain.NewScanStatusChangedEvent(runID, from, domain.ScanStatusNotStarted, outcome), runID)

	return nil
}

func (c *Controller) publish(ctx context.Context, evt events.DomainEvent, runID string) {
	if c.publisher == nil {
		return
	}
	if err := c.publisher.PublishDomainEvent(ctx, evt, events.WithKey(runID), jobKindHeader); err != nil {
		trace.SpanFromContext(ctx).RecordError(err)
		c.logger.Warn(ctx, "Failed to publish scan status event", "run_id", runID, "error", err)
	}
}

// Status returns the current scan status.
func (c *Controller) Status() domain.ScanStatus {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.machine.Current()
}

// IsNotStarted reports whether a scan may be started.
func (c *Controller) IsNotStarted() bool { return c.Status() == domain.ScanStatusNotStarted }

// IsRunning reports whether a scan is in flight with no stop requested.
func (c *Controller) IsRunning() bool { return c.Status() == domain.ScanStatusRunning }

// IsCancelling reports whether the user asked the running scan to stop.
func (c *Controller) IsCancelling() bool { return c.Status() == domain.ScanStatusCancelling }

// Presentation derives the scan control's label and icon.
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

// Snapshot is a consistent read of the controller for rendering.
type Snapshot struct {
	Status       domain.ScanStatus     `json:"status"`
	Presentation jobstate.Presentation `json:"presentation"`
	RunID        string                `json:"run_id,omitempty"`
	StartedAt    time.Time             `json:"started_at,omitempty"`
	CompletedAt  time.Time             `json:"completed_at,omitempty"`
	LastOutcome  domain.ScanOutcome    `json:"last_outcome,omitempty"`
	LastSummary  *domain.ScanSummary   `json:"last_summary,omitempty"`
}

// Snapshot returns the controller's state as of one instant.
func (c *Controller) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	s := Snapshot{
		Status:       c.machine.Current(),
		Presentation: c.machine.Presentation(),
		StartedAt:    c.timeline.StartedAt(),
		CompletedAt:  c.timeline.CompletedAt(),
		LastOutcome:  c.lastOutcome,
	}
	if c.runID != uuid.Nil {
		s.RunID = c.runID.String()
	}
	if c.lastSummary != nil {
		summary := *c.lastSummary
		s.LastSummary = &summary
	}
	return s
}
