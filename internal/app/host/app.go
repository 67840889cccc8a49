// Package host assembles the scan and transformation controllers, their
// drivers and the suggestion toggle into the single job host the API serves.
package host

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/trace"

	"github.com/ahrav/codejobs/internal/app/controller/metrics"
	scanapp "github.com/ahrav/codejobs/internal/app/scanning"
	settingsapp "github.com/ahrav/codejobs/internal/app/settings"
	transformapp "github.com/ahrav/codejobs/internal/app/transform"
	"github.com/ahrav/codejobs/internal/domain/events"
	"github.com/ahrav/codejobs/internal/domain/scanning"
	"github.com/ahrav/codejobs/internal/domain/settings"
	"github.com/ahrav/codejobs/internal/domain/transform"
	"github.com/ahrav/codejobs/pkg/common/logger"
)

// Deps are the collaborators the host is built from.
type Deps struct {
	// Publisher receives every job lifecycle event.
	Publisher events.DomainEventPublisher
	// Bus carries settings change notifications.
	Bus events.EventBus

	Scanner       scanning.Scanner
	Remote        transform.RemoteClient
	SettingsStore settings.Store

	ScanMetrics      metrics.JobMetrics
	TransformMetrics metrics.JobMetrics
	Transform        transformapp.RunnerConfig

	// Checks are readiness checks beyond the settings store, such as the
	// remote service and the event sink.
	Checks []Check

	Logger *logger.Logger
	Tracer trace.Tracer
}

// Check pings one dependency for readiness.
type Check struct {
	Name string
	Ping func(ctx context.Context) error
}

// App owns exactly one scan controller and one transformation controller.
type App struct {
	Scans       *scanapp.Controller
	Transforms  *transformapp.Controller
	Suggestions *settingsapp.Suggestions

	scanRunner      *scanapp.Runner
	transformRunner *transformapp.Runner
	checks          []Check

	logger *logger.Logger
}

// New wires an App from deps.
func New(deps Deps) *App {
	scans := scanapp.NewController(deps.Publisher, deps.ScanMetrics, deps.Logger, deps.Tracer)
	transforms := transformapp.NewController(deps.Publisher, deps.TransformMetrics, deps.Logger, deps.Tracer)

	return &App{
		Scans:       scans,
		Transforms:  transforms,
		Suggestions: settingsapp.NewSuggestions(deps.SettingsStore, deps.Bus, deps.Logger, deps.Tracer),
		scanRunner:  scanapp.NewRunner(scans, deps.Scanner, deps.Logger, deps.Tracer),
		transformRunner: transformapp.NewRunner(
			transforms, deps.Remote, deps.Transform, deps.TransformMetrics, deps.Logger, deps.Tracer,
		),
		checks: append([]Check{{Name: "settings", Ping: deps.SettingsStore.Ping}}, deps.Checks...),
		logger: deps.Logger.With("component", "job_host"),
	}
}

// Readiness runs every check and returns each check's error by name; a nil
// entry means the dependency is usable.
func (a *App) Readiness(ctx context.Context) map[string]error {
	results := make(map[string]error, len(a.checks))
	for _, c := range a.checks {
		err := c.Ping(ctx)
		if err != nil {
			a.logger.Warn(ctx, "Readiness check failed", "check", c.Name, "error", err)
		}
		results[c.Name] = err
	}
	return results
}

// LaunchScan starts a scan in the background. It fails with
// scanning.ErrScanInProgress when a scan is already in flight.
func (a *App) LaunchScan(ctx context.Context, req scanning.ScanRequest) error {
	return a.scanRunner.Launch(ctx, req, func(summary scanning.ScanSummary, err error) {
		switch {
		case err == nil:
			a.logger.Info(context.Background(), "Scan completed",
				"project", req.ProjectName, "scanned_files", summary.ScannedFiles, "total_issues", summary.TotalIssues)
		case errors.Is(err, scanning.ErrScanStoppedByUser):
		default:
			a.logger.Warn(context.Background(), "Scan did not complete", "project", req.ProjectName, "error", err)
		}
	})
}

// LaunchTransform validates req and starts a transformation in the
// background. Validation and overlap errors are returned synchronously.
func (a *App) LaunchTransform(ctx context.Context, req transform.JobRequest) error {
	return a.transformRunner.Launch(ctx, req, func(err error) {
		switch {
		case err == nil:
			a.logger.Info(context.Background(), "Transformation concluded",
				"project", req.ProjectName, "status", a.Transforms.Status())
		case errors.Is(err, transform.ErrTransformStoppedByUser):
		default:
			a.logger.Warn(context.Background(), "Transformation did not complete", "project", req.ProjectName, "error", err)
		}
	})
}

// Shutdown stops any running job and waits for the drivers to conclude or
// for ctx to end.
func (a *App) Shutdown(ctx context.Context) error {
	var errs []error
	if a.Scans.IsRunning() {
		if err := a.Scans.RequestStop(ctx); err != nil && !errors.Is(err, scanning.ErrNoScanRunning) {
			errs = append(errs, fmt.Errorf("stopping scan: %w", err))
		}
	}
	if a.Transforms.IsRunning() {
		if err := a.Transforms.RequestStop(ctx); err != nil && !errors.Is(err, transform.ErrNoTransformRunning) {
			errs = append(errs, fmt.Errorf("stopping transformation: %w", err))
		}
	}

	done := make(chan struct{})
	go func() {
		a.scanRunner.Wait()
		a.transformRunner.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		errs = append(errs, fmt.Errorf("waiting for jobs to stop: %w", ctx.Err()))
	}
	return errors.Join(errs...)
}
