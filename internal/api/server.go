// Package api serves the job-control HTTP surface: start, stop and inspect
// the scan and transformation jobs, drive the review state and toggle
// suggestions.
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/trace"

	"github.com/ahrav/codejobs/internal/app/host"
	"github.com/ahrav/codejobs/pkg/common/logger"
	"github.com/ahrav/codejobs/pkg/common/otel"
)

// Server routes job-control requests to a host.App.
type Server struct {
	app      *host.App
	router   *chi.Mux
	validate *validator.Validate

	metrics APIMetrics
	logger  *logger.Logger
	tracer  trace.Tracer
}

// NewServer builds the router for app.
func NewServer(app *host.App, metrics APIMetrics, log *logger.Logger, tracer trace.Tracer) *Server {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(loggerMiddleware(log, metrics))
	r.Use(middleware.Recoverer)

	s := &Server{
		app:      app,
		router:   r,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		metrics:  metrics,
		logger:   log.With("component", "api"),
		tracer:   tracer,
	}

	s.routes()
	return s
}

// Handler returns the router wrapped in server-side tracing.
func (s *Server) Handler() http.Handler {
	return otelhttp.NewHandler(s.router, "codejobs.api",
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return r.Method + " " + r.URL.Path
		}),
	)
}

func loggerMiddleware(log *logger.Logger, metrics APIMetrics) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			defer func() {
				ctx := r.Context()
				// Route pattern keeps metric cardinality bounded.
				path := chi.RouteContext(ctx).RoutePattern()
				if path == "" {
					path = r.URL.Path
				}
				duration := time.Since(start)

				metrics.IncRequestsTotal(ctx, r.Method, path, ww.Status())
				metrics.ObserveRequestDuration(ctx, r.Method, path, duration)
				log.Info(ctx, "Request completed",
					"method", r.Method,
					"path", r.URL.Path,
					"status", ww.Status(),
					"duration", duration,
					"request_id", middleware.GetReqID(ctx),
					"trace_id", otel.GetTraceID(ctx),
					"span_id", otel.GetSpanID(ctx),
				)
			}()

			next.ServeHTTP(ww, r)
		})
	}
}

func (s *Server) routes() {
	s.router.Route("/v1", func(r chi.Router) {
		r.Get("/liveness", s.handleLiveness)
		r.Get("/readiness", s.handleReadiness)

		r.Route("/jobs/scan", func(r chi.Router) {
			r.Get("/", s.handleGetScan)
			r.Post("/", s.handleStartScan)
			r.Post("/stop", s.handleStopScan)
		})

		r.Route("/jobs/transform", func(r chi.Router) {
			r.Get("/", s.handleGetTransform)
			r.Post("/", s.handleStartTransform)
			r.Post("/stop", s.handleStopTransform)
			r.Post("/reset", s.handleResetTransform)
			r.Put("/review", s.handleReview)
		})

		r.Get("/settings/suggestions", s.handleGetSuggestions)
		r.Put("/settings/suggestions", s.handleSetSuggestions)
	})
}
