// Package remote is the HTTP adapter to the code analysis service that
// performs scans and transformations on behalf of the job drivers.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ahrav/codejobs/internal/domain/scanning"
	"github.com/ahrav/codejobs/internal/domain/transform"
	"github.com/ahrav/codejobs/pkg/common/logger"
)

var (
	_ scanning.Scanner       = (*Client)(nil)
	_ transform.RemoteClient = (*Client)(nil)
)

// Config holds the remote service location and limits.
type Config struct {
	BaseURL string
	// Timeout bounds every call except the scan itself, which runs until the
	// service answers or the run context is cancelled.
	Timeout time.Duration
	// ArtifactDir receives downloaded transformation results.
	ArtifactDir string
}

// ErrInvalidJobID is returned when a job ID cannot name a directory under
// the artifact root.
var ErrInvalidJobID = errors.New("invalid job id")

// StatusError is returned for a non-2xx response.
type StatusError struct {
	Op         string
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: HTTP %d: %s", e.Op, e.StatusCode, e.Message)
}

// Client implements scanning.Scanner and transform.RemoteClient over HTTP.
type Client struct {
	baseURL     *url.URL
	httpClient  *http.Client
	timeout     time.Duration
	artifactDir string

	logger *logger.Logger
	tracer trace.Tracer
}

// New creates a Client for cfg. Outgoing requests are traced through an
// otelhttp transport wrapping base; a nil base uses http.DefaultTransport.
func New(cfg Config, base http.RoundTripper, logger *logger.Logger, tracer trace.Tracer) (*Client, error) {
	u, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing remote base url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("remote base url %q must be absolute", cfg.BaseURL)
	}
	if base == nil {
		base = http.DefaultTransport
	}
	if cfg.ArtifactDir == "" {
		cfg.ArtifactDir = filepath.Join(os.TempDir(), "codejobs-artifacts")
	}

	return &Client{
		baseURL:     u,
		httpClient:  &http.Client{Transport: otelhttp.NewTransport(base)},
		timeout:     cfg.Timeout,
		artifactDir: cfg.ArtifactDir,
		logger:      logger.With("component", "remote_client", "base_url", u.String()),
		tracer:      tracer,
	}, nil
}

type scanRequest struct {
	ProjectName string `json:"project_name"`
	ProjectPath string `json:"project_path"`
}

// Scan runs a code-security scan. It blocks until the service responds or
// ctx is done.
func (c *Client) Scan(ctx context.Context, req scanning.ScanRequest) (scanning.ScanSummary, error) {
	ctx, span := c.tracer.Start(ctx, "remote.scan",
		trace.WithAttributes(attribute.String("project_name", req.ProjectName)))
	defer span.End()

	var summary scanning.ScanSummary
	err := c.do(ctx, "scan", http.MethodPost, "/v1/scans",
		scanRequest{ProjectName: req.ProjectName, ProjectPath: req.ProjectPath}, &summary)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "scan failed")
		return scanning.ScanSummary{}, err
	}
	return summary, nil
}

type startJobRequest struct {
	ProjectName   string                    `json:"project_name"`
	ProjectPath   string                    `json:"project_path"`
	SourceVersion transform.PlatformVersion `json:"source_version"`
	TargetVersion transform.PlatformVersion `json:"target_version"`
}

type jobResponse struct {
	JobID   string `json:"job_id"`
	Status  string `json:"status"`
	Outcome string `json:"outcome"`
	Reason  string `json:"reason"`
}

// StartJob creates a remote transformation job and returns its ID.
func (c *Client) StartJob(ctx context.Context, req transform.JobRequest) (string, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	var resp jobResponse
	err := c.do(ctx, "start job", http.MethodPost, "/v1/transformations", startJobRequest{
		ProjectName:   req.ProjectName,
		ProjectPath:   req.ProjectPath,
		SourceVersion: req.SourceVersion,
		TargetVersion: req.TargetVersion,
	}, &resp)
	if err != nil {
		return "", err
	}
	if resp.JobID == "" {
		return "", errors.New("start job: response carried no job id")
	}
	return resp.JobID, nil
}

// GetJob polls a remote transformation job.
func (c *Client) GetJob(ctx context.Context, jobID string) (transform.RemoteJob, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	var resp jobResponse
	if err := c.do(ctx, "get job", http.MethodGet, "/v1/transformations/"+url.PathEscape(jobID), nil, &resp); err != nil {
		return transform.RemoteJob{}, err
	}

	outcome, err := parseOutcome(resp.Outcome)
	if err != nil {
		return transform.RemoteJob{}, fmt.Errorf("get job %s: %w", jobID, err)
	}
	return transform.RemoteJob{ID: jobID, Status: resp.Status, Outcome: outcome, Reason: resp.Reason}, nil
}

func parseOutcome(s string) (transform.RemoteOutcome, error) {
	switch o := transform.RemoteOutcome(strings.ToUpper(s)); o {
	case transform.RemoteOutcomePending,
		transform.RemoteOutcomeCompleted,
		transform.RemoteOutcomePartiallyCompleted,
		transform.RemoteOutcomeFailed,
		transform.RemoteOutcomeStopped:
		return o, nil
	}
	return "", fmt.Errorf("unknown outcome %q", s)
}

// StopJob asks the service to stop a transformation job.
func (c *Client) StopJob(ctx context.Context, jobID string) error {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	return c.do(ctx, "stop job", http.MethodPost, "/v1/transformations/"+url.PathEscape(jobID)+"/stop", nil, nil)
}

type artifactsResponse struct {
	Plan    string `json:"plan"`
	Summary string `json:"summary"`
}

// DownloadResults fetches the job's plan and summary documents and writes
// them under the artifact directory.
func (c *Client) DownloadResults(ctx context.Context, jobID string) (transform.ResultArtifacts, error) {
	dir, err := c.artifactPath(jobID)
	if err != nil {
		return transform.ResultArtifacts{}, fmt.Errorf("download results: %w", err)
	}

	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	var resp artifactsResponse
	if err := c.do(ctx, "download results", http.MethodGet, "/v1/transformations/"+url.PathEscape(jobID)+"/artifacts", nil, &resp); err != nil {
		return transform.ResultArtifacts{}, err
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return transform.ResultArtifacts{}, fmt.Errorf("download results: creating %s: %w", dir, err)
	}

	arts := transform.ResultArtifacts{
		PlanFilePath:    filepath.Join(dir, "plan.md"),
		SummaryFilePath: filepath.Join(dir, "summary.md"),
	}
	if err := os.WriteFile(arts.PlanFilePath, []byte(resp.Plan), 0o644); err != nil {
		return transform.ResultArtifacts{}, fmt.Errorf("download results: writing plan: %w", err)
	}
	if err := os.WriteFile(arts.SummaryFilePath, []byte(resp.Summary), 0o644); err != nil {
		return transform.ResultArtifacts{}, fmt.Errorf("download results: writing summary: %w", err)
	}

	c.logger.Debug(ctx, "Downloaded transformation results", "job_id", jobID, "dir", dir)
	return arts, nil
}

// artifactPath returns the directory holding jobID's results. The ID must be
// a single path element.
func (c *Client) artifactPath(jobID string) (string, error) {
	if jobID == "" || jobID == "." || jobID == ".." || strings.ContainsAny(jobID, `/\`) {
		return "", fmt.Errorf("%w: %q", ErrInvalidJobID, jobID)
	}
	return filepath.Join(c.artifactDir, jobID), nil
}

// Ping checks that the service answers its readiness endpoint.
func (c *Client) Ping(ctx context.Context) error {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	return c.do(ctx, "ping", http.MethodGet, "/v1/readiness", nil, nil)
}

func (c *Client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, c.timeout)
}

// do sends a JSON request and decodes a JSON response into out when out is
// non-nil.
func (c *Client) do(ctx context.Context, op, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("%s: encoding request: %w", op, err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL.JoinPath(path).String(), body)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &StatusError{Op: op, StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(msg))}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s: decoding response: %w", op, err)
	}
	return nil
}
