// Package bootstrap builds the clients and coordinator components shared by the service binaries.
package bootstrap

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/cuongbtq/item-triage/internal/category"
	"github.com/cuongbtq/item-triage/internal/config"
	"github.com/cuongbtq/item-triage/internal/directory"
	"github.com/cuongbtq/item-triage/internal/queue"
	"github.com/cuongbtq/item-triage/internal/storage"
	"github.com/cuongbtq/item-triage/internal/triage/launcher"
	"github.com/cuongbtq/item-triage/internal/triage/lock"
	"github.com/cuongbtq/item-triage/shared/logger"
	"github.com/cuongbtq/item-triage/shared/postgresql"
	"github.com/cuongbtq/item-triage/shared/rabbitmq"
	"github.com/jmoiron/sqlx"
)

// LoggerConfig maps the logging section onto the logger package
func LoggerConfig(cfg *config.LoggingConfig, service string) *logger.Config {
	return &logger.Config{
		Level:        cfg.Level,
		Format:       cfg.Format,
		Output:       cfg.Output,
		EnableSource: cfg.EnableCaller,
		TimeFormat:   time.RFC3339,
		Service:      service,
	}
}

// PostgreSQLConfig maps the database section onto the postgresql package
func PostgreSQLConfig(cfg *config.DatabaseConfig) *postgresql.Config {
	return &postgresql.Config{
		Host:            cfg.Host,
		Port:            cfg.Port,
		User:            cfg.User,
		Password:        cfg.Password,
		Database:        cfg.Database,
		SSLMode:         cfg.SSLMode,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.ConnMaxIdleTime,
	}
}

// RabbitMQConfig maps the rabbitmq section onto the rabbitmq package, binding
// the batch, update and notification queues to their routing keys
func RabbitMQConfig(cfg *config.RabbitMQConfig) *rabbitmq.Config {
	queues := cfg.Queues
	return &rabbitmq.Config{
		Host:               cfg.Host,
		Port:               cfg.Port,
		User:               cfg.User,
		Password:           cfg.Password,
		VHost:              cfg.VHost,
		ExchangeName:       cfg.Exchange.Name,
		ExchangeType:       cfg.Exchange.Type,
		ExchangeDurable:    cfg.Exchange.Durable,
		ExchangeAutoDelete: cfg.Exchange.AutoDelete,
		Bindings: []rabbitmq.Binding{
			{Queue: queues.Batch.Name, RoutingKey: queues.Batch.RoutingKey},
			{Queue: queues.Update.Name, RoutingKey: queues.Update.RoutingKey},
			{Queue: queues.Notification.Name, RoutingKey: queues.Notification.RoutingKey},
		},
		QueueDurable:       queues.Durable,
		RetryAttempts:      cfg.Connection.RetryAttempts,
		RetryInterval:      cfg.Connection.RetryInterval,
		Heartbeat:          cfg.Connection.Heartbeat,
		PublishRetries:     cfg.Publish.RetryAttempts,
		PublishRetryDelay:  cfg.Publish.RetryInterval,
		PublishBackoffMult: cfg.Publish.BackoffMultiplier,
		PrefetchCount:      cfg.Consumer.PrefetchCount,
	}
}

// RoutingKeys returns the per-message-kind routing keys
func RoutingKeys(cfg *config.RabbitMQConfig) queue.RoutingKeys {
	return queue.RoutingKeys{
		Batch:        cfg.Queues.Batch.RoutingKey,
		Update:       cfg.Queues.Update.RoutingKey,
		Notification: cfg.Queues.Notification.RoutingKey,
	}
}

// OpenPostgreSQL connects to the database and applies pending migrations
func OpenPostgreSQL(cfg *config.DatabaseConfig, logger *slog.Logger) (*postgresql.Client, error) {
	pgConfig := PostgreSQLConfig(cfg)

	if cfg.MigrationsPath != "" {
		if err := storage.RunMigrations(pgConfig.URL(), cfg.MigrationsPath); err != nil {
			return nil, err
		}
		logger.Info("Database migrations applied", slog.String("path", cfg.MigrationsPath))
	}

	return postgresql.NewClient(pgConfig, logger)
}

// LockStore opens the configured lock backend. The returned close function
// releases backend resources and is never nil.
func LockStore(cfg *config.Config, db *sqlx.DB) (lock.Store, func() error, error) {
	switch cfg.Triage.LockBackend {
	case config.LockBackendRedis:
		store, err := lock.NewRedisStore(cfg.Redis.URL, cfg.Redis.KeyPrefix)
		if err != nil {
			return nil, nil, err
		}
		return store, store.Close, nil
	case config.LockBackendPostgres:
		return lock.NewPostgresStore(db), func() error { return nil }, nil
	default:
		return nil, nil, fmt.Errorf("unsupported lock backend: %q", cfg.Triage.LockBackend)
	}
}

// Components are the coordinator pieces every service shares
type Components struct {
	Staging      *storage.StagingStore
	Jobs         *storage.JobStore
	Outcomes     *storage.OutcomeStore
	Artifacts    *storage.ArtifactStore
	Institutions *storage.InstitutionStore
	Queue        *queue.Queue
	Directory    *directory.Client
	Locks        *lock.Manager
	Categories   *category.Registry
	Launcher     *launcher.Launcher
}

// NewComponents wires stores, queue adapter, categories and launcher together
func NewComponents(cfg *config.Config, logger *slog.Logger, db *sqlx.DB, pub *rabbitmq.Client, lockStore lock.Store) *Components {
	c := &Components{
		Staging:      storage.NewStagingStore(db),
		Jobs:         storage.NewJobStore(db),
		Outcomes:     storage.NewOutcomeStore(db),
		Artifacts:    storage.NewArtifactStore(db),
		Institutions: storage.NewInstitutionStore(db),
		Queue:        queue.New(pub, RoutingKeys(&cfg.RabbitMQ)),
	}

	c.Directory = directory.NewClient(&directory.Config{
		Logger:       logger.With(slog.String("component", "directory")),
		BaseURL:      cfg.Directory.BaseURL,
		Timeout:      cfg.Directory.Timeout,
		MaxAttempts:  cfg.Directory.MaxAttempts,
		Backoff:      cfg.Directory.Backoff,
		Institutions: c.Institutions,
	})

	c.Locks = lock.NewManager(lockStore, c.Staging, logger.With(slog.String("component", "lock")))

	c.Categories = category.NewRegistry(
		category.NewSCFNoRowTray(logger, c.Artifacts),
		category.NewIZNoRowTray(&category.IZNoRowTrayConfig{
			Logger:         logger,
			Directory:      c.Directory,
			Institutions:   c.Institutions,
			Artifacts:      c.Artifacts,
			Publisher:      c.Queue,
			SCFInstitution: cfg.Triage.SCFInstitution,
		}),
	)

	c.Launcher = launcher.New(&launcher.Config{
		Logger:     logger.With(slog.String("component", "launcher")),
		Locks:      c.Locks,
		Staging:    c.Staging,
		Jobs:       c.Jobs,
		Queue:      c.Queue,
		StaleAfter: cfg.Triage.StaleAfter,
		Owners:     cfg.Triage.Owners,
	})

	return c
}
