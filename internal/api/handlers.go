package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/render"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	scanapp "github.com/ahrav/codejobs/internal/app/scanning"
	transformapp "github.com/ahrav/codejobs/internal/app/transform"
	"github.com/ahrav/codejobs/internal/domain/jobstate"
	"github.com/ahrav/codejobs/internal/domain/scanning"
	"github.com/ahrav/codejobs/internal/domain/transform"
)

var errBadRequest = errors.New("bad request")

// readinessTimeout bounds all readiness checks of one request together.
const readinessTimeout = 2 * time.Second

type statusReply struct {
	Status string `json:"status"`
}

func (statusReply) Render(http.ResponseWriter, *http.Request) error { return nil }

type errorReply struct {
	HTTPStatus int    `json:"-"`
	Error      string `json:"error"`
}

func (e errorReply) Render(_ http.ResponseWriter, r *http.Request) error {
	render.Status(r, e.HTTPStatus)
	return nil
}

type readinessReply struct {
	HTTPStatus int               `json:"-"`
	Status     string            `json:"status"`
	Checks     map[string]string `json:"checks"`
}

func (rr readinessReply) Render(_ http.ResponseWriter, r *http.Request) error {
	render.Status(r, rr.HTTPStatus)
	return nil
}

type scanReply struct {
	scanapp.Snapshot
}

func (scanReply) Render(http.ResponseWriter, *http.Request) error { return nil }

type transformReply struct {
	transformapp.Snapshot
}

func (transformReply) Render(http.ResponseWriter, *http.Request) error { return nil }

type suggestionsReply struct {
	Enabled bool `json:"enabled"`
}

func (suggestionsReply) Render(http.ResponseWriter, *http.Request) error { return nil }

type startScanRequest struct {
	ProjectName string `json:"project_name" validate:"required"`
	ProjectPath string `json:"project_path" validate:"required"`
}

type startTransformRequest struct {
	ProjectName   string `json:"project_name" validate:"required"`
	ProjectPath   string `json:"project_path" validate:"required"`
	SourceVersion string `json:"source_version" validate:"required"`
	TargetVersion string `json:"target_version" validate:"required"`
}

// Review actions accepted by PUT /jobs/transform/review.
const (
	reviewActionPrepare  = "prepare"
	reviewActionInReview = "in_review"
	reviewActionClose    = "close"
)

type reviewRequest struct {
	Action string `json:"action" validate:"required,oneof=prepare in_review close"`
}

type suggestionsRequest struct {
	Enabled *bool `json:"enabled" validate:"required"`
}

func (s *Server) handleLiveness(w http.ResponseWriter, r *http.Request) {
	_ = render.Render(w, r, statusReply{Status: "ok"})
}

func (s *Server) handleReadiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
	defer cancel()

	ctx, span := s.tracer.Start(ctx, "api.readiness")
	defer span.End()

	reply := readinessReply{HTTPStatus: http.StatusOK, Status: "ready", Checks: make(map[string]string)}
	for name, err := range s.app.Readiness(ctx) {
		if err == nil {
			reply.Checks[name] = "ok"
			continue
		}
		reply.Checks[name] = err.Error()
		reply.HTTPStatus = http.StatusServiceUnavailable
		reply.Status = "not_ready"
		span.AddEvent("check_failed", trace.WithAttributes(
			attribute.String("check", name),
			attribute.String("error", err.Error()),
		))
	}
	if reply.HTTPStatus != http.StatusOK {
		span.SetStatus(codes.Error, "service not ready")
	}

	_ = render.Render(w, r, reply)
}

func (s *Server) handleGetScan(w http.ResponseWriter, r *http.Request) {
	_ = render.Render(w, r, scanReply{s.app.Scans.Snapshot()})
}

func (s *Server) handleStartScan(w http.ResponseWriter, r *http.Request) {
	var req startScanRequest
	if err := s.decode(r, &req); err != nil {
		s.respondError(w, r, "scan", err)
		return
	}

	err := s.app.LaunchScan(r.Context(), scanning.ScanRequest{
		ProjectName: req.ProjectName,
		ProjectPath: req.ProjectPath,
	})
	if err != nil {
		s.respondError(w, r, "scan", err)
		return
	}

	render.Status(r, http.StatusAccepted)
	_ = render.Render(w, r, scanReply{s.app.Scans.Snapshot()})
}

func (s *Server) handleStopScan(w http.ResponseWriter, r *http.Request) {
	if err := s.app.Scans.RequestStop(r.Context()); err != nil {
		s.respondError(w, r, "scan", err)
		return
	}
	render.Status(r, http.StatusAccepted)
	_ = render.Render(w, r, scanReply{s.app.Scans.Snapshot()})
}

func (s *Server) handleGetTransform(w http.ResponseWriter, r *http.Request) {
	_ = render.Render(w, r, transformReply{s.app.Transforms.Snapshot()})
}

func (s *Server) handleStartTransform(w http.ResponseWriter, r *http.Request) {
	var req startTransformRequest
	if err := s.decode(r, &req); err != nil {
		s.respondError(w, r, "transform", err)
		return
	}

	source, err := transform.ParsePlatformVersion(req.SourceVersion)
	if err != nil {
		s.respondError(w, r, "transform", fmt.Errorf("%w: source_version: %w", errBadRequest, err))
		return
	}
	target, err := transform.ParsePlatformVersion(req.TargetVersion)
	if err != nil {
		s.respondError(w, r, "transform", fmt.Errorf("%w: target_version: %w", errBadRequest, err))
		return
	}

	err = s.app.LaunchTransform(r.Context(), transform.JobRequest{
		ProjectName:   req.ProjectName,
		ProjectPath:   req.ProjectPath,
		SourceVersion: source,
		TargetVersion: target,
	})
	if err != nil {
		s.respondError(w, r, "transform", err)
		return
	}

	render.Status(r, http.StatusAccepted)
	_ = render.Render(w, r, transformReply{s.app.Transforms.Snapshot()})
}

func (s *Server) handleStopTransform(w http.ResponseWriter, r *http.Request) {
	if err := s.app.Transforms.RequestStop(r.Context()); err != nil {
		s.respondError(w, r, "transform", err)
		return
	}
	render.Status(r, http.StatusAccepted)
	_ = render.Render(w, r, transformReply{s.app.Transforms.Snapshot()})
}

func (s *Server) handleResetTransform(w http.ResponseWriter, r *http.Request) {
	if err := s.app.Transforms.Reset(r.Context()); err != nil {
		s.respondError(w, r, "transform", err)
		return
	}
	_ = render.Render(w, r, transformReply{s.app.Transforms.Snapshot()})
}

func (s *Server) handleReview(w http.ResponseWriter, r *http.Request) {
	var req reviewRequest
	if err := s.decode(r, &req); err != nil {
		s.respondError(w, r, "review", err)
		return
	}

	ctx := r.Context()
	var err error
	switch req.Action {
	case reviewActionPrepare:
		err = s.app.Transforms.SetToPreparingReview(ctx)
	case reviewActionInReview:
		err = s.app.Transforms.SetToInReview(ctx)
	case reviewActionClose:
		err = s.app.Transforms.CloseReview(ctx)
	}
	if err != nil {
		s.respondError(w, r, "review", err)
		return
	}
	_ = render.Render(w, r, transformReply{s.app.Transforms.Snapshot()})
}

func (s *Server) handleGetSuggestions(w http.ResponseWriter, r *http.Request) {
	enabled, err := s.app.Suggestions.Enabled(r.Context())
	if err != nil {
		s.respondError(w, r, "settings", err)
		return
	}
	_ = render.Render(w, r, suggestionsReply{Enabled: enabled})
}

func (s *Server) handleSetSuggestions(w http.ResponseWriter, r *http.Request) {
	var req suggestionsRequest
	if err := s.decode(r, &req); err != nil {
		s.respondError(w, r, "settings", err)
		return
	}
	if err := s.app.Suggestions.SetEnabled(r.Context(), *req.Enabled); err != nil {
		s.respondError(w, r, "settings", err)
		return
	}
	_ = render.Render(w, r, suggestionsReply{Enabled: *req.Enabled})
}

// decode reads a JSON body into v and validates it. Every failure wraps
// errBadRequest.
func (s *Server) decode(r *http.Request, v any) error {
	if err := render.DecodeJSON(r.Body, v); err != nil {
		return fmt.Errorf("%w: decoding body: %w", errBadRequest, err)
	}
	if err := s.validate.Struct(v); err != nil {
		return fmt.Errorf("%w: %w", errBadRequest, err)
	}
	return nil
}

func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, errBadRequest),
		errors.Is(err, transformapp.ErrInvalidRequest),
		errors.Is(err, transform.ErrIncompatibleVersions):
		return http.StatusBadRequest, "invalid_request"
	case errors.Is(err, scanning.ErrScanInProgress),
		errors.Is(err, transform.ErrTransformInProgress):
		return http.StatusConflict, "in_progress"
	case errors.Is(err, scanning.ErrNoScanRunning),
		errors.Is(err, transform.ErrNoTransformRunning):
		return http.StatusConflict, "not_running"
	case errors.Is(err, jobstate.ErrInvalidTransition):
		return http.StatusConflict, "invalid_transition"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

func (s *Server) respondError(w http.ResponseWriter, r *http.Request, job string, err error) {
	ctx := r.Context()
	code, reason := statusFor(err)
	s.metrics.IncJobRequestErrors(ctx, job, reason)

	msg := err.Error()
	if code == http.StatusInternalServerError {
		s.logger.Error(ctx, "Job request failed", "job", job, "error", err)
		msg = http.StatusText(code)
	} else {
		s.logger.Debug(ctx, "Job request rejected", "job", job, "reason", reason, "error", err)
	}
	_ = render.Render(w, r, errorReply{HTTPStatus: code, Error: msg})
}
