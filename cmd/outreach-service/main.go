// main package for the outreach-service
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/book-expert/logger"
	"github.com/nats-io/nats.go"

	"github.com/book-expert/voice-outreach/internal/app"
	"github.com/book-expert/voice-outreach/internal/config"
	"github.com/book-expert/voice-outreach/internal/objectstore"
	"github.com/book-expert/voice-outreach/internal/observe"
	"github.com/book-expert/voice-outreach/internal/worker"
)

const (
	serviceName              = "outreach-service"
	metricsShutdownTimeout   = 5 * time.Second
	metricsReadHeaderTimeout = 5 * time.Second
)

// version is set at build time.
var version = "dev"

func setupLogger(logPath string) (*logger.Logger, error) {
	log, err := logger.New(logPath, "outreach-service.log")
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	return log, nil
}

func run() error {
	// 1. Create a temporary logger for the bootstrap process
	bootstrapLog, err := setupLogger(os.TempDir())
	if err != nil {
		// If bootstrap logger fails, we can only print to stderr
		fmt.Fprintf(os.Stderr, "FATAL: Failed to create bootstrap logger: %v\n", err)

		return err
	}
	defer bootstrapLog.Close()

	bootstrapLog.Info("Bootstrap logger created.")

	// 2. Load configuration using the central configurator
	cfg, err := config.Load(bootstrapLog)
	if err != nil {
		bootstrapLog.Error("Failed to load configuration: %v", err)

		return fmt.Errorf("failed to load configuration: %w", err)
	}

	secrets, err := config.LoadSecrets(os.Getenv("OUTREACH_ENV_FILE"))
	if err != nil {
		bootstrapLog.Error("Failed to load secrets: %v", err)

		return err
	}

	cfg.MergeSecrets(secrets)

	err = cfg.Validate()
	if err != nil {
		bootstrapLog.Error("Invalid configuration: %v", err)

		return fmt.Errorf("invalid configuration: %w", err)
	}

	bootstrapLog.Info("Configuration loaded successfully.")

	// 3. Initialize the final logger based on the loaded configuration
	finalLog, err := setupLogger(cfg.Paths.BaseLogsDir)
	if err != nil {
		bootstrapLog.Error("Failed to create final logger: %v", err)

		return fmt.Errorf("failed to create final logger: %w", err)
	}

	defer func() {
		closeErr := finalLog.Close()
		if closeErr != nil {
			fmt.Fprintf(os.Stderr, "error closing final logger: %v\n", closeErr)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 4. Expose metrics when enabled
	deps := app.Deps{Logger: finalLog}

	if cfg.Metrics.Enabled {
		metrics, shutdown, metricsErr := startMetrics(ctx, cfg.Metrics.ListenAddr, finalLog)
		if metricsErr != nil {
			finalLog.Error("Failed to start metrics: %v", metricsErr)

			return metricsErr
		}
		defer shutdown()

		deps.Metrics = metrics
	}

	// 5. Connect to NATS and serve batch requests until interrupted
	return serve(ctx, cfg, secrets, deps)
}

// startMetrics installs the Prometheus-backed meter provider and serves it on
// listenAddr. The returned function stops both.
func startMetrics(
	ctx context.Context,
	listenAddr string,
	log *logger.Logger,
) (*observe.Metrics, func(), error) {
	provider, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    serviceName,
		ServiceVersion: version,
	})
	if err != nil {
		return nil, nil, err
	}

	metrics, err := observe.NewMetrics(provider)
	if err != nil {
		_ = provider.Shutdown(ctx)

		return nil, nil, err
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", observe.Handler())

	server := &http.Server{
		Addr:              listenAddr,
		Handler:           mux,
		ReadHeaderTimeout: metricsReadHeaderTimeout,
	}

	go func() {
		serveErr := server.ListenAndServe()
		if serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			log.Error("Metrics server failed: %v", serveErr)
		}
	}()

	log.System("Serving metrics on %s/metrics", listenAddr)

	shutdown := func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), metricsShutdownTimeout)
		defer cancel()

		_ = server.Shutdown(shutdownCtx)
		_ = provider.Shutdown(shutdownCtx)
	}

	return metrics, shutdown, nil
}

func serve(ctx context.Context, cfg *config.Config, secrets config.Secrets, deps app.Deps) error {
	log := deps.Logger

	natsConnection, err := nats.Connect(cfg.NATS.URL, nats.Name(serviceName))
	if err != nil {
		log.Error("Failed to connect to NATS at %s: %v", cfg.NATS.URL, err)

		return fmt.Errorf("failed to connect to NATS: %w", err)
	}
	defer natsConnection.Close()

	jetstreamContext, err := natsConnection.JetStream()
	if err != nil {
		return fmt.Errorf("failed to create JetStream context: %w", err)
	}

	store, err := objectstore.New(jetstreamContext, cfg.NATS.ObjectStoreBucket)
	if err != nil {
		log.Error("Failed to open object store: %v", err)

		return err
	}

	newSession := func(ctx context.Context, overrides app.Overrides, publish bool) (worker.Runner, error) {
		runCfg := overrides.Apply(*cfg)

		session, sessionErr := app.NewSession(ctx, runCfg, secrets, publish, deps)
		if sessionErr != nil {
			return nil, sessionErr
		}

		return session, nil
	}

	natsWorker, err := worker.NewNatsWorker(
		natsConnection,
		cfg.NATS.BatchRequestedSubject,
		cfg.NATS.AudioChunkCreatedSubject,
		store,
		newSession,
		log,
	)
	if err != nil {
		return fmt.Errorf("failed to create worker: %w", err)
	}

	log.System(
		"Outreach service successfully initialized. Listening for jobs on subject: %s (bucket %s)",
		cfg.NATS.BatchRequestedSubject, store.Bucket(),
	)

	err = natsWorker.Run(ctx)
	if err != nil {
		return fmt.Errorf("worker stopped: %w", err)
	}

	log.System("Outreach service stopped.")

	return nil
}

func main() {
	err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Service exited with error: %v\n", err)
		os.Exit(1)
	}
}
