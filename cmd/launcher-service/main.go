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
	"github.com/cuongbtq/item-triage/internal/scheduler"
	"github.com/cuongbtq/item-triage/shared/logger"
	"github.com/cuongbtq/item-triage/shared/rabbitmq"
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

	defaultConfigPath := os.Getenv("LAUNCHER_SERVICE_CONFIG_PATH")
	if defaultConfigPath == "" {
		defaultConfigPath = "configs/launcher-service/config.yaml"
	}
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	once := flag.Bool("once", false, "Run a single sweep of every category and exit")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.ValidateLauncherConfig(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	appLogger, err := logger.New(bootstrap.LoggerConfig(&cfg.Logging, cfg.App.Name))
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer appLogger.Close()

	appLogger.Info("Starting launcher service",
		slog.String("app", cfg.App.Name),
		slog.String("version", cfg.App.Version),
		slog.String("environment", cfg.App.Environment),
		slog.Duration("interval", cfg.Scheduler.Interval),
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

	targets := make([]scheduler.Target, 0, len(cfg.Scheduler.Categories))
	for _, c := range cfg.Scheduler.Categories {
		if !components.Categories.Has(c.Name) {
			return fmt.Errorf("scheduled category %q is not registered", c.Name)
		}
		targets = append(targets, scheduler.Target{
			Category:  c.Name,
			BatchSize: c.BatchSizeOr(cfg.Triage.DefaultBatchSize),
		})
	}

	sched := scheduler.New(&scheduler.Config{
		Logger:     appLogger.Component("scheduler"),
		Launcher:   components.Launcher,
		Interval:   cfg.Scheduler.Interval,
		Targets:    targets,
		RunOnStart: cfg.Scheduler.RunOnStart,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if *once {
		sched.Tick(ctx)
		appLogger.Info("Single sweep complete")
		return nil
	}

	sched.Run(ctx)

	appLogger.Info("Launcher service shutdown complete")
	return nil
}
