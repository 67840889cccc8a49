package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/ahrav/codejobs/internal/app/controller/metrics"
	"github.com/ahrav/codejobs/internal/app/host"
	transformapp "github.com/ahrav/codejobs/internal/app/transform"
	"github.com/ahrav/codejobs/internal/domain/scanning"
	"github.com/ahrav/codejobs/internal/domain/transform"
	"github.com/ahrav/codejobs/internal/infra/eventbus"
	eventmemory "github.com/ahrav/codejobs/internal/infra/eventbus/memory"
	"github.com/ahrav/codejobs/internal/infra/storage/settings/memory"
	"github.com/ahrav/codejobs/pkg/common/logger"
)

// gatedScanner blocks each scan until the gate is released or the run is
// cancelled.
type gatedScanner struct {
	gate chan struct{}
}

func (s *gatedScanner) Scan(ctx context.Context, _ scanning.ScanRequest) (scanning.ScanSummary, error) {
	select {
	case <-s.gate:
		return scanning.ScanSummary{ScannedFiles: 3, TotalIssues: 1}, nil
	case <-ctx.Done():
		return scanning.ScanSummary{}, ctx.Err()
	}
}

// scriptedRemote concludes every job with outcome on the first poll.
type scriptedRemote struct {
	mu      sync.Mutex
	outcome transform.RemoteOutcome
}

func (r *scriptedRemote) StartJob(context.Context, transform.JobRequest) (string, error) {
	return "job-1", nil
}

func (r *scriptedRemote) GetJob(_ context.Context, id string) (transform.RemoteJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return transform.RemoteJob{ID: id, Status: "COMPLETED", Outcome: r.outcome}, nil
}

func (r *scriptedRemote) StopJob(context.Context, string) error { return nil }

func (r *scriptedRemote) DownloadResults(context.Context, string) (transform.ResultArtifacts, error) {
	return transform.ResultArtifacts{PlanFilePath: "/tmp/plan.md", SummaryFilePath: "/tmp/summary.md"}, nil
}

type testServer struct {
	*httptest.Server
	app     *host.App
	scanner *gatedScanner
}

func newTestServer(t *testing.T, checks ...host.Check) *testServer {
	t.Helper()
	return newTracedTestServer(t, noop.NewTracerProvider().Tracer("test"), checks...)
}

func newTracedTestServer(t *testing.T, tracer trace.Tracer, checks ...host.Check) *testServer {
	t.Helper()

	mp := metricnoop.NewMeterProvider()

	scanMetrics, err := metrics.NewJobMetrics(mp, "scan")
	require.NoError(t, err)
	transformMetrics, err := metrics.NewJobMetrics(mp, "transform")
	require.NoError(t, err)
	apiMetrics, err := NewAPIMetrics(mp)
	require.NoError(t, err)

	bus := eventmemory.NewBroker()
	scanner := &gatedScanner{gate: make(chan struct{})}

	app := host.New(host.Deps{
		Publisher:        eventbus.NewDomainEventPublisher(bus),
		Bus:              bus,
		Scanner:          scanner,
		Remote:           &scriptedRemote{outcome: transform.RemoteOutcomeCompleted},
		SettingsStore:    memory.NewStore(),
		ScanMetrics:      scanMetrics,
		TransformMetrics: transformMetrics,
		Transform:        transformapp.RunnerConfig{PollInterval: time.Millisecond, StopTimeout: time.Second},
		Checks:           checks,
		Logger:           logger.Noop(),
		Tracer:           tracer,
	})

	srv := httptest.NewServer(NewServer(app, apiMetrics, logger.Noop(), tracer).Handler())
	t.Cleanup(func() {
		srv.Close()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = app.Shutdown(ctx)
		_ = bus.Close()
	})

	return &testServer{Server: srv, app: app, scanner: scanner}
}

func (ts *testServer) do(t *testing.T, method, path, body string) (int, map[string]any) {
	t.Helper()

	req, err := http.NewRequest(method, ts.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	out := map[string]any{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp.StatusCode, out
}

func TestServer_Health(t *testing.T) {
	ts := newTestServer(t)

	code, body := ts.do(t, http.MethodGet, "/v1/liveness", "")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", body["status"])

	code, body = ts.do(t, http.MethodGet, "/v1/readiness", "")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ready", body["status"])
	assert.Equal(t, map[string]any{"settings": "ok"}, body["checks"])
}

func TestServer_NotReady(t *testing.T) {
	ts := newTestServer(t,
		host.Check{Name: "remote", Ping: func(context.Context) error { return errors.New("dial tcp: connection refused") }},
		host.Check{Name: "kafka", Ping: func(context.Context) error { return nil }},
	)

	code, body := ts.do(t, http.MethodGet, "/v1/readiness", "")
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "not_ready", body["status"])
	assert.Equal(t, map[string]any{
		"settings": "ok",
		"kafka":    "ok",
		"remote":   "dial tcp: connection refused",
	}, body["checks"])

	code, _ = ts.do(t, http.MethodGet, "/v1/liveness", "")
	assert.Equal(t, http.StatusOK, code, "liveness ignores dependencies")
}

func TestServer_ReadinessSpanRecordsFailedChecks(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	defer func() { _ = tp.Shutdown(context.Background()) }()

	ts := newTracedTestServer(t, tp.Tracer("test"),
		host.Check{Name: "remote", Ping: func(context.Context) error { return errors.New("connection refused") }},
	)

	code, _ := ts.do(t, http.MethodGet, "/v1/readiness", "")
	require.Equal(t, http.StatusServiceUnavailable, code)

	var readiness sdktrace.ReadOnlySpan
	for _, s := range recorder.Ended() {
		if s.Name() == "api.readiness" {
			readiness = s
		}
	}
	require.NotNil(t, readiness, "readiness handler must open its own span")
	assert.Equal(t, codes.Error, readiness.Status().Code)
	require.Len(t, readiness.Events(), 1)
	assert.Equal(t, "check_failed", readiness.Events()[0].Name)
	assert.Contains(t, readiness.Events()[0].Attributes, attribute.String("check", "remote"))
}

func TestServer_ScanLifecycle(t *testing.T) {
	ts := newTestServer(t)

	code, body := ts.do(t, http.MethodGet, "/v1/jobs/scan", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "NOT_STARTED", body["status"])

	code, _ = ts.do(t, http.MethodPost, "/v1/jobs/scan/stop", "")
	assert.Equal(t, http.StatusConflict, code, "stop without a running scan")

	code, body = ts.do(t, http.MethodPost, "/v1/jobs/scan", `{"project_name":"demo","project_path":"/src/demo"}`)
	require.Equal(t, http.StatusAccepted, code)
	assert.Equal(t, "RUNNING", body["status"])
	assert.Equal(t, map[string]any{"label": "Stop", "icon": "stop"}, body["presentation"])

	code, body = ts.do(t, http.MethodPost, "/v1/jobs/scan", `{"project_name":"demo","project_path":"/src/demo"}`)
	assert.Equal(t, http.StatusConflict, code)
	assert.Contains(t, body["error"], "already in progress")

	code, body = ts.do(t, http.MethodPost, "/v1/jobs/scan/stop", "")
	require.Equal(t, http.StatusAccepted, code)
	assert.Contains(t, []any{"CANCELLING", "NOT_STARTED"}, body["status"])

	require.Eventually(t, ts.app.Scans.IsNotStarted, 5*time.Second, 5*time.Millisecond)
	_, body = ts.do(t, http.MethodGet, "/v1/jobs/scan", "")
	assert.Equal(t, "CANCELLED", body["last_outcome"])
}

func TestServer_ScanValidation(t *testing.T) {
	ts := newTestServer(t)

	code, body := ts.do(t, http.MethodPost, "/v1/jobs/scan", `{"project_name":"demo"}`)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Contains(t, body["error"], "ProjectPath")

	code, _ = ts.do(t, http.MethodPost, "/v1/jobs/scan", `{not json`)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestServer_TransformAndReview(t *testing.T) {
	ts := newTestServer(t)

	code, body := ts.do(t, http.MethodPost, "/v1/jobs/transform",
		`{"project_name":"demo","project_path":"/src/demo","source_version":"JDK17","target_version":"JDK8"}`)
	assert.Equal(t, http.StatusBadRequest, code, "downgrade is rejected by the pre-flight check")
	assert.Contains(t, body["error"], "incompatible")

	code, _ = ts.do(t, http.MethodPost, "/v1/jobs/transform",
		`{"project_name":"demo","project_path":"/src/demo","source_version":"JDK5","target_version":"JDK8"}`)
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = ts.do(t, http.MethodPost, "/v1/jobs/transform",
		`{"project_name":"demo","project_path":"/src/demo","source_version":"JDK8","target_version":"JDK17"}`)
	require.Equal(t, http.StatusAccepted, code)

	require.Eventually(t, ts.app.Transforms.IsSucceeded, 5*time.Second, 5*time.Millisecond)

	_, body = ts.do(t, http.MethodGet, "/v1/jobs/transform", "")
	assert.Equal(t, "SUCCEEDED", body["status"])
	md := body["metadata"].(map[string]any)
	assert.Equal(t, "job-1", md["job_id"])
	assert.Equal(t, "JDK17", md["target_version"])
	assert.Equal(t, "/tmp/plan.md", md["plan_file_path"])

	code, _ = ts.do(t, http.MethodPut, "/v1/jobs/transform/review", `{"action":"in_review"}`)
	assert.Equal(t, http.StatusConflict, code, "review must be prepared first")

	for _, action := range []string{"prepare", "in_review"} {
		code, _ = ts.do(t, http.MethodPut, "/v1/jobs/transform/review", `{"action":"`+action+`"}`)
		require.Equal(t, http.StatusOK, code, action)
	}
	_, body = ts.do(t, http.MethodGet, "/v1/jobs/transform", "")
	assert.Equal(t, "IN_REVIEW", body["review_status"])
	assert.Equal(t, "SUCCEEDED", body["status"], "review leaves the job status alone")

	code, _ = ts.do(t, http.MethodPut, "/v1/jobs/transform/review", `{"action":"approve"}`)
	assert.Equal(t, http.StatusBadRequest, code)

	code, body = ts.do(t, http.MethodPost, "/v1/jobs/transform/reset", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "NOT_STARTED", body["status"])
}

func TestServer_StopTransformWhenIdle(t *testing.T) {
	ts := newTestServer(t)

	code, body := ts.do(t, http.MethodPost, "/v1/jobs/transform/stop", "")
	assert.Equal(t, http.StatusConflict, code)
	assert.Contains(t, body["error"], "no transformation is running")
}

func TestServer_Suggestions(t *testing.T) {
	ts := newTestServer(t)

	code, body := ts.do(t, http.MethodGet, "/v1/settings/suggestions", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, body["enabled"])

	code, _ = ts.do(t, http.MethodPut, "/v1/settings/suggestions", `{}`)
	assert.Equal(t, http.StatusBadRequest, code)

	code, body = ts.do(t, http.MethodPut, "/v1/settings/suggestions", `{"enabled":false}`)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, false, body["enabled"])

	_, body = ts.do(t, http.MethodGet, "/v1/settings/suggestions", "")
	assert.Equal(t, false, body["enabled"])
}

func TestServer_ScanCompletes(t *testing.T) {
	ts := newTestServer(t)

	code, _ := ts.do(t, http.MethodPost, "/v1/jobs/scan", `{"project_name":"demo","project_path":"/src/demo"}`)
	require.Equal(t, http.StatusAccepted, code)
	close(ts.scanner.gate)

	require.Eventually(t, ts.app.Scans.IsNotStarted, 5*time.Second, 5*time.Millisecond)
	_, body := ts.do(t, http.MethodGet, "/v1/jobs/scan", "")
	assert.Equal(t, "COMPLETED", body["last_outcome"])
	summary := body["last_summary"].(map[string]any)
	assert.EqualValues(t, 3, summary["scanned_files"])
}
