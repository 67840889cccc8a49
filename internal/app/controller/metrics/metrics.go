package metrics

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/ahrav/codejobs/internal/infra/eventbus/kafka"
)

// JobMetrics defines metrics operations needed by a job controller.
type JobMetrics interface {
	// Run lifecycle metrics.
	IncRunsStarted(ctx context.Context)
	IncStopsRequested(ctx context.Context)
	ObserveRunFinished(ctx context.Context, outcome string, duration time.Duration)

	// Poll metrics, used by drivers that poll a remote job.
	IncPolls(ctx context.Context)
	IncPollErrors(ctx context.Context)
}

// Job implements JobMetrics for one kind of job. Every instrument carries a
// job_kind attribute so scan and transform runs share metric names.
type Job struct {
	kind attribute.KeyValue

	// Run metrics.
	runsStarted    metric.Int64Counter
	stopsRequested metric.Int64Counter
	runsFinished   metric.Int64Counter
	runDuration    metric.Float64Histogram
	activeRuns     metric.Int64UpDownCounter

	// Poll metrics.
	polls      metric.Int64Counter
	pollErrors metric.Int64Counter
}

var _ JobMetrics = (*Job)(nil)

const namespace = "codejobs"

// NewJobMetrics creates the instruments for jobKind ("scan", "transform").
func NewJobMetrics(mp metric.MeterProvider, jobKind string) (*Job, error) {
	meter := mp.Meter(namespace, metric.WithInstrumentationVersion("v0.1.0"))

	j := &Job{kind: attribute.String("job_kind", jobKind)}
	var err error

	if j.runsStarted, err = meter.Int64Counter(
		"job_runs_started_total",
		metric.WithDescription("Total number of job runs started"),
	); err != nil {
		return nil, err
	}

	if j.stopsRequested, err = meter.Int64Counter(
		"job_stops_requested_total",
		metric.WithDescription("Total number of user stop requests"),
	); err != nil {
		return nil, err
	}

	if j.runsFinished, err = meter.Int64Counter(
		"job_runs_finished_total",
		metric.WithDescription("Total number of job runs that reached a terminal outcome"),
	); err != nil {
		return nil, err
	}

	if j.runDuration, err = meter.Float64Histogram(
		"job_run_duration_seconds",
		metric.WithDescription("Wall time of a job run from start to terminal outcome"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	if j.activeRuns, err = meter.Int64UpDownCounter(
		"job_runs_active",
		metric.WithDescription("Number of job runs currently in flight"),
	); err != nil {
		return nil, err
	}

	if j.polls, err = meter.Int64Counter(
		"job_polls_total",
		metric.WithDescription("Total number of remote job status polls"),
	); err != nil {
		return nil, err
	}

	if j.pollErrors, err = meter.Int64Counter(
		"job_poll_errors_total",
		metric.WithDescription("Total number of failed remote job status polls"),
	); err != nil {
		return nil, err
	}

	return j, nil
}

func (j *Job) IncRunsStarted(ctx context.Context) {
	j.runsStarted.Add(ctx, 1, metric.WithAttributes(j.kind))
	j.activeRuns.Add(ctx, 1, metric.WithAttributes(j.kind))
}

func (j *Job) IncStopsRequested(ctx context.Context) {
	j.stopsRequested.Add(ctx, 1, metric.WithAttributes(j.kind))
}

func (j *Job) ObserveRunFinished(ctx context.Context, outcome string, duration time.Duration) {
	attrs := metric.WithAttributes(j.kind, attribute.String("outcome", outcome))
	j.runsFinished.Add(ctx, 1, attrs)
	j.runDuration.Record(ctx, duration.Seconds(), attrs)
	j.activeRuns.Add(ctx, -1, metric.WithAttributes(j.kind))
}

func (j *Job) IncPolls(ctx context.Context) { j.polls.Add(ctx, 1, metric.WithAttributes(j.kind)) }

func (j *Job) IncPollErrors(ctx context.Context) {
	j.pollErrors.Add(ctx, 1, metric.WithAttributes(j.kind))
}


// EventSink implements kafka.PublisherMetrics for the job-event sink. It is
// shared by every job kind; events are told apart by topic only.
type EventSink struct {
	messagesPublished metric.Int64Counter
	publishErrors     metric.Int64Counter
}

var _ kafka.PublisherMetrics = (*EventSink)(nil)

// NewEventSinkMetrics creates the event sink instruments from mp.
func NewEventSinkMetrics(mp metric.MeterProvider) (*EventSink, error) {
	meter := mp.Meter(namespace, metric.WithInstrumentationVersion("v0.1.0"))

	e := new(EventSink)
	var err error

	if e.messagesPublished, err = meter.Int64Counter(
		"job_events_published_total",
		metric.WithDescription("Total number of job events published to the event sink"),
	); err != nil {
		return nil, err
	}

	if e.publishErrors, err = meter.Int64Counter(
		"job_event_publish_errors_total",
		metric.WithDescription("Total number of job event publish errors"),
	); err != nil {
		return nil, err
	}

	return e, nil
}

func (e *EventSink) IncMessagePublished(ctx context.Context, topic string) {
	e.messagesPublished.Add(ctx, 1, metric.WithAttributes(attribute.String("topic", topic)))
}

func (e *EventSink) IncPublishError(ctx context.Context, topic string) {
	e.publishErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("topic", topic)))
}
