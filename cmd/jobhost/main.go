package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"go.uber.org/automaxprocs/maxprocs"
	"golang.org/x/sync/errgroup"

	"github.com/ahrav/codejobs/internal/api"
	"github.com/ahrav/codejobs/internal/app/controller/metrics"
	"github.com/ahrav/codejobs/internal/app/host"
	transformapp "github.com/ahrav/codejobs/internal/app/transform"
	"github.com/ahrav/codejobs/internal/config"
	"github.com/ahrav/codejobs/internal/domain/events"
	domainsettings "github.com/ahrav/codejobs/internal/domain/settings"
	"github.com/ahrav/codejobs/internal/infra/eventbus"
	"github.com/ahrav/codejobs/internal/infra/eventbus/kafka"
	eventmemory "github.com/ahrav/codejobs/internal/infra/eventbus/memory"
	"github.com/ahrav/codejobs/internal/infra/remote"
	settingsmemory "github.com/ahrav/codejobs/internal/infra/storage/settings/memory"
	"github.com/ahrav/codejobs/internal/infra/storage/settings/yamlfile"
	"github.com/ahrav/codejobs/pkg/common/logger"
	"github.com/ahrav/codejobs/pkg/common/otel"
)

var build = "develop"

const serviceType = "jobhost"

func main() {
	// Set the correct number of threads for the service
	_, _ = maxprocs.Set()

	hostname, err := os.Hostname()
	if err != nil {
		log.Fatalf("failed to get hostname: %v", err)
	}

	configPath := flag.String("config", "", "path to a YAML config file (overrides "+config.EnvConfigFile+")")
	flag.Parse()

	var log *logger.Logger

	logEvents := logger.Events{
		Error: func(ctx context.Context, r logger.Record) {
			errorAttrs := map[string]any{
				"error_message": r.Message,
				"error_time":    r.Time.UTC().Format(time.RFC3339),
				"trace_id":      otel.GetTraceID(ctx),
			}

			for k, v := range r.Attributes {
				errorAttrs[k] = v
			}

			errorAttrsJSON, err := json.Marshal(errorAttrs)
			if err != nil {
				fmt.Fprintf(os.Stderr, "failed to marshal error attributes: %v\n", err)
				return
			}

			fmt.Fprintf(os.Stderr, "Error event: %s, details: %s\n", r.Message, errorAttrsJSON)
		},
	}

	traceIDFn := func(ctx context.Context) string {
		return otel.GetTraceID(ctx)
	}

	svcName := fmt.Sprintf("JOBHOST-%s", hostname)
	metadata := map[string]string{
		"service":  svcName,
		"hostname": hostname,
		"app":      serviceType,
		"build":    build,
	}

	level := logger.ParseLevel(os.Getenv(config.EnvPrefix + "_LOG_LEVEL"))
	log = logger.NewWithMetadata(os.Stdout, level, svcName, traceIDFn, logEvents, metadata)

	ctx := context.Background()

	if err := run(ctx, log, hostname, *configPath); err != nil {
		log.Error(ctx, "startup", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, log *logger.Logger, hostname, configPath string) error {
	// -------------------------------------------------------------------------
	// GOMAXPROCS
	log.Info(ctx, "startup", "GOMAXPROCS", runtime.GOMAXPROCS(0))

	// -------------------------------------------------------------------------
	// Configuration
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info(ctx, "startup", "status", "config loaded", "api_addr", cfg.API.Addr, "remote", cfg.Remote.BaseURL)

	// -------------------------------------------------------------------------
	// Start Tracing Support
	log.Info(ctx, "startup", "status", "initializing telemetry", "enabled", cfg.Telemetry.Enabled)

	providers, err := otel.InitTelemetry(log, otel.Config{
		ServiceName:      cfg.ServiceName,
		ExporterEndpoint: cfg.Telemetry.Endpoint,
		Probability:      cfg.Telemetry.SamplingRatio,
		ResourceAttributes: map[string]string{
			"library.language": "go",
			"host.name":        hostname,
		},
		InsecureExporter: true,
		Disabled:         !cfg.Telemetry.Enabled,
	})
	if err != nil {
		return fmt.Errorf("starting telemetry: %w", err)
	}
	defer providers.Shutdown(ctx)

	tracer := providers.TracerProvider.Tracer(cfg.ServiceName)
	mp := providers.MeterProvider

	scanMetrics, err := metrics.NewJobMetrics(mp, "scan")
	if err != nil {
		return fmt.Errorf("creating scan metrics: %w", err)
	}
	transformMetrics, err := metrics.NewJobMetrics(mp, "transform")
	if err != nil {
		return fmt.Errorf("creating transform metrics: %w", err)
	}
	sinkMetrics, err := metrics.NewEventSinkMetrics(mp)
	if err != nil {
		return fmt.Errorf("creating event sink metrics: %w", err)
	}
	apiMetrics, err := api.NewAPIMetrics(mp)
	if err != nil {
		return fmt.Errorf("creating api metrics: %w", err)
	}

	// -------------------------------------------------------------------------
	// Initialize Event Bus
	log.Info(ctx, "startup", "status", "initializing event bus", "kafka", cfg.Kafka.Enabled)

	bus := eventmemory.NewBroker()
	defer bus.Close()

	var checks []host.Check
	publishers := eventbus.FanOut{eventbus.NewDomainEventPublisher(bus)}
	if cfg.Kafka.Enabled {
		kafkaPub, err := kafka.Connect(&kafka.Config{
			Brokers:  cfg.Kafka.Brokers,
			Topic:    cfg.Kafka.Topic,
			ClientID: cfg.Kafka.ClientID,
		}, log, sinkMetrics, tracer)
		if err != nil {
			return fmt.Errorf("connecting kafka event sink: %w", err)
		}
		defer kafkaPub.Close()
		publishers = append(publishers, kafkaPub)
		checks = append(checks, host.Check{Name: "kafka", Ping: kafkaPub.Ping})
	}
	var publisher events.DomainEventPublisher = publishers

	// -------------------------------------------------------------------------
	// Remote service and settings
	remoteClient, err := remote.New(remote.Config{
		BaseURL:     cfg.Remote.BaseURL,
		Timeout:     cfg.Remote.Timeout,
		ArtifactDir: cfg.Remote.ArtifactDir,
	}, nil, log, tracer)
	if err != nil {
		return fmt.Errorf("creating remote client: %w", err)
	}
	checks = append(checks, host.Check{Name: "remote", Ping: remoteClient.Ping})

	var store domainsettings.Store = settingsmemory.NewStore()
	if cfg.Settings.Path != "" {
		if store, err = yamlfile.Open(cfg.Settings.Path); err != nil {
			return fmt.Errorf("opening settings: %w", err)
		}
	}

	app := host.New(host.Deps{
		Publisher:        publisher,
		Bus:              bus,
		Scanner:          remoteClient,
		Remote:           remoteClient,
		SettingsStore:    store,
		ScanMetrics:      scanMetrics,
		TransformMetrics: transformMetrics,
		Transform: transformapp.RunnerConfig{
			PollInterval: cfg.Transform.PollInterval,
			StopTimeout:  cfg.Transform.StopTimeout,
		},
		Checks: checks,
		Logger: log,
		Tracer: tracer,
	})

	// -------------------------------------------------------------------------
	// Start API Service
	log.Info(ctx, "startup", "status", "initializing API support")

	sigCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := app.Suggestions.Subscribe(sigCtx, func(ctx context.Context, enabled bool) {
		log.Info(ctx, "Suggestions toggled", "enabled", enabled)
	}); err != nil {
		return fmt.Errorf("subscribing to settings changes: %w", err)
	}

	srv := &http.Server{
		Addr:              cfg.API.Addr,
		Handler:           api.NewServer(app, apiMetrics, log, tracer).Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
		ErrorLog:          logger.NewStdLogger(log, logger.LevelError),
	}

	g, gctx := errgroup.WithContext(sigCtx)

	g.Go(func() error {
		log.Info(ctx, "startup", "status", "api router started", "host", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	// -------------------------------------------------------------------------
	// Shutdown
	g.Go(func() error {
		<-gctx.Done()
		log.Info(ctx, "shutdown", "status", "shutdown started")
		defer log.Info(ctx, "shutdown", "status", "shutdown complete")

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.API.ShutdownTimeout)
		defer cancel()

		var errs []error
		if err := srv.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("could not stop server gracefully: %w", err))
		}
		if err := app.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("could not stop jobs gracefully: %w", err))
		}
		return errors.Join(errs...)
	})

	return g.Wait()
}
