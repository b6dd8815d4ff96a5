package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/cuongbtq/item-triage/internal/bootstrap"
	"github.com/cuongbtq/item-triage/internal/config"
	"github.com/cuongbtq/item-triage/internal/triage/batch"
	"github.com/cuongbtq/item-triage/internal/triage/progress"
	"github.com/cuongbtq/item-triage/internal/triage/report"
	"github.com/cuongbtq/item-triage/internal/worker"
	"github.com/cuongbtq/item-triage/shared/logger"
	"github.com/cuongbtq/item-triage/shared/rabbitmq"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables or flags")
	}

	defaultConfigPath := os.Getenv("WORKER_SERVICE_CONFIG_PATH")
	if defaultConfigPath == "" {
		defaultConfigPath = "configs/worker-service/config.yaml"
	}
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.ValidateWorkerConfig(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	appLogger, err := logger.New(bootstrap.LoggerConfig(&cfg.Logging, cfg.App.Name))
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer appLogger.Close()

	workerID := cfg.Worker.ID
	if workerID == "" {
		workerID = "worker-" + uuid.New().String()[:8]
	}

	appLogger.Info("Starting worker service",
		slog.String("app", cfg.App.Name),
		slog.String("version", cfg.App.Version),
		slog.String("environment", cfg.App.Environment),
		slog.String("worker_id", workerID),
	)

	dbClient, err := bootstrap.OpenPostgreSQL(&cfg.Database, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer dbClient.Close()

	rabbitClient, err := rabbitmq.NewClient(bootstrap.RabbitMQConfig(&cfg.RabbitMQ), appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize RabbitMQ: %w", err)
	}
	defer rabbitClient.Close()

	lockStore, closeLocks, err := bootstrap.LockStore(cfg, dbClient.GetDB())
	if err != nil {
		return fmt.Errorf("failed to initialize lock store: %w", err)
	}
	defer closeLocks()

	components := bootstrap.NewComponents(cfg, appLogger.Logger, dbClient.GetDB(), rabbitClient, lockStore)

	reports := report.New(&report.Config{
		Logger:       appLogger.Component("report"),
		Outcomes:     components.Outcomes,
		Artifacts:    components.Artifacts,
		Publisher:    components.Queue,
		Institutions: components.Institutions,
		Prefix:       cfg.Triage.ReportsPrefix,
		Workbook:     cfg.Triage.Workbook,
	})

	aggregator := progress.New(&progress.Config{
		Logger:        appLogger.Component("progress"),
		Jobs:          components.Jobs,
		Reports:       reports,
		MaxAttempts:   cfg.Triage.ProgressAttempts,
		RetryInterval: cfg.Triage.ProgressRetryInterval,
	})

	processor := batch.New(&batch.Config{
		Logger:     appLogger.Component("batch"),
		Categories: components.Categories,
		Directory:  components.Directory,
		Staging:    components.Staging,
		Outcomes:   components.Outcomes,
		Progress:   aggregator,
		Locks:      components.Locks,
	})

	workerInstance, err := worker.NewWorker(&worker.Config{
		Logger:       appLogger.Component("worker"),
		Consumer:     rabbitClient,
		Processor:    processor,
		Queue:        cfg.RabbitMQ.Queues.Batch.Name,
		WorkerID:     workerID,
		Concurrency:  cfg.Worker.Concurrency,
		BatchTimeout: cfg.Worker.BatchTimeout,
	})
	if err != nil {
		return fmt.Errorf("failed to create worker: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errChan := make(chan error, 1)
	go func() {
		errChan <- workerInstance.Start(ctx)
	}()

	appLogger.Info("Worker service started successfully")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		appLogger.Info("Received signal, shutting down gracefully",
			slog.String("signal", sig.String()),
		)
	case err := <-errChan:
		if err != nil {
			appLogger.Error("Worker error",
				slog.Any("error", err),
			)
			return err
		}
		appLogger.Warn("Worker stopped consuming, shutting down")
	}

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Worker.ShutdownTimeout)
	defer shutdownCancel()

	done := make(chan struct{})
	go func() {
		workerInstance.Stop()
		close(done)
	}()

	select {
	case <-done:
		appLogger.Info("Worker stopped gracefully")
	case <-shutdownCtx.Done():
		appLogger.Warn("Worker shutdown timeout exceeded, forcing exit")
	}

	appLogger.Info("Worker service shutdown complete")
	return nil
}
