// Package main provides the entrypoint for the routenav API server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"

	"github.com/breatheroute/routenav/internal/api"
	"github.com/breatheroute/routenav/internal/api/middleware"
	"github.com/breatheroute/routenav/internal/config"
	"github.com/breatheroute/routenav/internal/directions"
	"github.com/breatheroute/routenav/internal/navigation"
	"github.com/breatheroute/routenav/internal/provider/resilience"
	"github.com/breatheroute/routenav/internal/telemetry"
	"github.com/breatheroute/routenav/internal/worker"
)

// Version and BuildTime are set at compile time via ldflags.
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	const serviceName = "routenav-api"

	configPath := flag.String("config", os.Getenv("ROUTENAV_CONFIG"), "path to a YAML config file")
	flag.Parse()

	// Setup structured logging
	log := zerolog.New(os.Stdout).
		With().
		Timestamp().
		Str("service", serviceName).
		Str("version", Version).
		Logger()

	log.Info().
		Str("build_time", BuildTime).
		Msg("starting routenav API")

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	// Initialize OpenTelemetry
	ctx := context.Background()
	tp, err := telemetry.Init(ctx, cfg.TelemetryConfig(serviceName, Version))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize telemetry")
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if shutdownErr := tp.Shutdown(shutdownCtx); shutdownErr != nil {
			log.Error().Err(shutdownErr).Msg("failed to shutdown telemetry")
		}
	}()

	if cfg.Telemetry.Enabled {
		log.Info().
			Str("otlp_endpoint", cfg.Telemetry.Endpoint).
			Msg("OpenTelemetry initialized")
	}

	// Initialize metrics
	httpMetrics, err := middleware.NewMetrics(tp.Metrics())
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize HTTP metrics")
	}
	navMetrics, err := navigation.NewMetrics(tp.Metrics())
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize navigation metrics")
	}

	// Event backend
	registry := resilience.NewRegistry()
	sink, closeSink, err := newEventSink(ctx, cfg, registry, log)
	if err != nil {
		log.Fatal().Err(err).Str("backend", cfg.Events.Backend).Msg("failed to initialize event backend")
	}
	defer func() {
		if closeErr := closeSink(); closeErr != nil {
			log.Error().Err(closeErr).Msg("failed to close event backend")
		}
	}()
	log.Info().Str("backend", cfg.Events.Backend).Msg("event backend initialized")

	// Session store
	store := navigation.NewStore(navigation.StoreConfig{
		Navigation: cfg.NavigatorConfig(log, navMetrics),
		Sink:       sink,
		Simulator:  cfg.SimulatorConfig(log),
		EventLimit: cfg.Sessions.EventLimit,
		Logger:     log,
	})
	decoder := directions.NewDecoder(cfg.DecoderConfig(log))

	workerCtx, stopWorkers := context.WithCancel(ctx)
	defer stopWorkers()

	sweep := worker.NewSweepJob(worker.SweepJobConfig{
		Config: cfg.SweepConfig(),
		Store:  store,
		Logger: log.With().Str("job", "sweep").Logger(),
	})
	go sweep.Start(workerCtx)

	if cfg.IngestEnabled() {
		ingest, err := worker.NewPubSubHandler(ctx, worker.PubSubConfig{
			ProjectID:        cfg.Events.ProjectID,
			SubscriptionName: cfg.Events.Subscription,
			Store:            store,
			SweepJob:         sweep,
			Logger:           log.With().Str("job", "ingest").Logger(),
		})
		if err != nil {
			log.Fatal().Err(err).Msg("failed to initialize position ingestion")
		}
		defer func() { _ = ingest.Close() }()

		go func() {
			if err := ingest.Start(workerCtx); err != nil {
				log.Error().Err(err).Msg("position ingestion stopped")
			}
		}()
	}

	// Create router with configuration
	router := api.NewRouter(api.RouterConfig{
		Version:           Version,
		BuildTime:         BuildTime,
		Logger:            log,
		ServiceName:       serviceName,
		Metrics:           httpMetrics,
		Store:             store,
		Decoder:           decoder,
		Registry:          registry,
		RequireTLS:        cfg.Server.RequireTLS,
		PositionRateLimit: cfg.Server.RateLimit,
	})

	// Create HTTP server
	server := &http.Server{
		Addr:         ":" + strconv.Itoa(cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start server in goroutine
	go func() {
		log.Info().
			Str("addr", server.Addr).
			Msg("server listening")

		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server")
	stopWorkers()

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	// Stop navigating sessions so their final events reach the backend.
	for _, s := range store.List(shutdownCtx) {
		if err := store.Delete(shutdownCtx, s.ID); err != nil {
			log.Warn().Err(err).Str("session_id", s.ID).Msg("failed to close session")
		}
	}

	log.Info().Msg("server stopped")
}

// newEventSink builds the configured event backend. Remote backends are
// wrapped in a guard registered with registry.
func newEventSink(ctx context.Context, cfg *config.Config, registry *resilience.Registry, log zerolog.Logger) (navigation.Sink, func() error, error) {
	logSink := navigation.NewLogSink(log.With().Str("component", "events").Logger())
	noClose := func() error { return nil }

	var (
		remote navigation.Sink
		closer func() error
	)

	switch cfg.Events.Backend {
	case config.EventsLog:
		return logSink, noClose, nil

	case config.EventsPubSub:
		sink, err := navigation.NewPubSubSink(ctx, navigation.PubSubConfig{
			ProjectID: cfg.Events.ProjectID,
			Topic:     cfg.Events.Topic,
			Logger:    log,
		})
		if err != nil {
			return nil, nil, err
		}
		remote, closer = sink, sink.Close

	case config.EventsNATS:
		sink, err := navigation.NewNATSSink(navigation.NATSConfig{
			URL:           cfg.Events.NATSURL,
			SubjectPrefix: cfg.Events.SubjectPrefix,
			Stream:        cfg.Events.Stream,
			Logger:        log,
		})
		if err != nil {
			return nil, nil, err
		}
		remote, closer = sink, sink.Close

	default:
		return nil, nil, fmt.Errorf("unknown event backend %q", cfg.Events.Backend)
	}

	guardCfg := cfg.GuardConfig()
	guardCfg.Registry = registry
	guardCfg.CircuitBreaker.OnStateChange = func(name string, from, to gobreaker.State) {
		log.Warn().
			Str("backend", name).
			Str("from", from.String()).
			Str("to", to.String()).
			Msg("circuit breaker state changed")
	}
	guard := resilience.NewGuard(guardCfg)

	return navigation.MultiSink{logSink, navigation.NewGuardedSink(remote, guard)}, closer, nil
}
