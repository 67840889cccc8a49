package scanning

import (
	"context"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	domain "github.com/ahrav/codejobs/internal/domain/scanning"
	"github.com/ahrav/codejobs/pkg/common/logger"
)

// Runner drives one scan run end to end: it claims the controller, calls the
// remote scanner with the run context and applies the terminal transition.
type Runner struct {
	controller *Controller
	scanner    domain.Scanner
	wg         sync.WaitGroup

	logger *logger.Logger
	tracer trace.Tracer
}

// NewRunner returns a Runner that drives scans through controller.
func NewRunner(controller *Controller, scanner domain.Scanner, logger *logger.Logger, tracer trace.Tracer) *Runner {
	return &Runner{
		controller: controller,
		scanner:    scanner,
		logger:     logger.With("component", "scan_runner"),
		tracer:     tracer,
	}
}

// Run performs a scan. It returns ErrScanInProgress if a scan is already in
// flight and ErrScanStoppedByUser if the user stopped the scan before it
// concluded. Any other error is a scan failure.
func (r *Runner) Run(ctx context.Context, req domain.ScanRequest) (domain.ScanSummary, error) {
	ctx, span := r.startSpan(ctx, req)
	defer span.End()

	runCtx, err := r.controller.Start(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to start scan")
		return domain.ScanSummary{}, err
	}
	return r.execute(ctx, runCtx, span, req)
}

// Launch claims the controller and performs the scan in the background. The
// claim happens before Launch returns, so ErrScanInProgress is reported to the
// caller; the scan itself outlives ctx and ends only on completion, failure or
// a stop request. done, if non-nil, receives the run's result.
func (r *Runner) Launch(ctx context.Context, req domain.ScanRequest, done func(domain.ScanSummary, error)) error {
	ctx, span := r.startSpan(context.WithoutCancel(ctx), req)

	runCtx, err := r.controller.Start(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to start scan")
		span.End()
		return err
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer span.End()

		summary, err := r.execute(ctx, runCtx, span, req)
		if done != nil {
			done(summary, err)
		}
	}()
	return nil
}

// Wait blocks until every launched scan has concluded.
func (r *Runner) Wait() { r.wg.Wait() }

func (r *Runner) startSpan(ctx context.Context, req domain.ScanRequest) (context.Context, trace.Span) {
	return r.tracer.Start(ctx, "scan_runner.run",
		trace.WithAttributes(attribute.String("project_name", req.ProjectName)))
}

func (r *Runner) execute(
	ctx, runCtx context.Context,
	span trace.Span,
	req domain.ScanRequest,
) (domain.ScanSummary, error) {
	summary, scanErr := r.scanner.Scan(runCtx, req)

	// Re-read the controller after the remote call: a stop may have been
	// requested while it was in flight.
	if r.controller.IsCancelling() {
		r.finish(ctx, domain.ScanOutcomeCancelled, nil)
		span.AddEvent("scan_stopped_by_user")
		r.logger.Info(ctx, "Code scan stopped by user", "project", req.ProjectName)
		return domain.ScanSummary{}, domain.ErrScanStoppedByUser
	}

	if scanErr != nil {
		r.finish(ctx, domain.ScanOutcomeFailed, nil)
		span.RecordError(scanErr)
		span.SetStatus(codes.Error, "scan failed")
		r.logger.Error(ctx, "Code scan failed", "project", req.ProjectName, "error", scanErr)
		return domain.ScanSummary{}, fmt.Errorf("code scan failed (project: %s): %w", req.ProjectName, scanErr)
	}

	r.finish(ctx, domain.ScanOutcomeCompleted, &summary)
	span.SetAttributes(
		attribute.Int("scanned_files", summary.ScannedFiles),
		attribute.Int("total_issues", summary.TotalIssues),
	)
	span.SetStatus(codes.Ok, "scan completed")
	return summary, nil
}

// finish must not fail the run: the run already concluded, so a bookkeeping
// error is logged rather than returned.
func (r *Runner) finish(ctx context.Context, outcome domain.ScanOutcome, summary *domain.ScanSummary) {
	if err := r.controller.finish(context.WithoutCancel(ctx), outcome, summary); err != nil {
		r.logger.Error(ctx, "Failed to finish scan", "outcome", outcome, "error", err)
	}
}
