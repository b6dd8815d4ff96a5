package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	tests := []struct {
		name      string
		filePath  string
		wantErr   bool
		errString string
	}{
		{
			name:     "valid config file",
			filePath: "testdata/valid_config.yaml",
			wantErr:  false,
		},
		{
			name:      "non-existent file",
			filePath:  "testdata/nonexistent.yaml",
			wantErr:   true,
			errString: "failed to read config file",
		},
		{
			name:      "malformed yaml",
			filePath:  "testdata/malformed.yaml",
			wantErr:   true,
			errString: "failed to parse config file",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load(tt.filePath)

			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errString)
				assert.Nil(t, cfg)
			} else {
				require.NoError(t, err)
				require.NotNil(t, cfg)

				assert.Equal(t, 8080, cfg.Server.Port)
				assert.Equal(t, "localhost", cfg.Database.Host)
				assert.Equal(t, "triage_db", cfg.Database.Database)
				assert.Equal(t, "triage_exchange", cfg.RabbitMQ.Exchange.Name)
				assert.Equal(t, QueueConfig{Name: "triage.batches", RoutingKey: "triage.batch"}, cfg.RabbitMQ.Queues.Batch)
				assert.Equal(t, "triage.notification", cfg.RabbitMQ.Queues.Notification.RoutingKey)
				assert.Equal(t, 4, cfg.RabbitMQ.Consumer.PrefetchCount)
				assert.Equal(t, "item-triage-api", cfg.App.Name)
				assert.Equal(t, 30*time.Minute, cfg.Triage.StaleAfter)
				assert.Equal(t, "scf", cfg.Triage.Owners["iz_no_row_tray"])
				assert.Equal(t, 15*time.Minute, cfg.Scheduler.Interval)
				require.Len(t, cfg.Scheduler.Categories, 2)
				assert.Equal(t, 100, cfg.Scheduler.Categories[0].BatchSize)
				assert.Equal(t, 90*time.Second, cfg.Directory.Timeout)
			}
		})
	}
}

func TestLoad_ExpandsEnvironment(t *testing.T) {
	t.Setenv("TRIAGE_TEST_DB_PASSWORD", "s3cret")

	cfg, err := Load("testdata/valid_config.yaml")
	require.NoError(t, err)
	assert.Equal(t, "s3cret", cfg.Database.Password)
}

func validConfig() *Config {
	return &Config{
		Server:   ServerConfig{Port: 8080},
		Database: DatabaseConfig{Host: "localhost", Port: 5432, Database: "triage_db"},
		RabbitMQ: RabbitMQConfig{
			Host:     "localhost",
			Port:     5672,
			Exchange: ExchangeConfig{Name: "triage_exchange"},
			Queues: QueuesConfig{
				Batch:        QueueConfig{Name: "triage.batches", RoutingKey: "triage.batch"},
				Update:       QueueConfig{Name: "triage.updates", RoutingKey: "triage.update"},
				Notification: QueueConfig{Name: "triage.notifications", RoutingKey: "triage.notification"},
			},
		},
		Worker:    WorkerConfig{Concurrency: 2, BatchTimeout: time.Minute, ShutdownTimeout: time.Minute},
		Triage:    TriageConfig{LockBackend: LockBackendPostgres, StaleAfter: 30 * time.Minute, DefaultBatchSize: 50},
		Scheduler: SchedulerConfig{Interval: time.Minute, Categories: []CategorySchedule{{Name: "scf_no_row_tray"}}},
		Directory: DirectoryConfig{BaseURL: "http://directory"},
	}
}

func TestConfig_ValidateAPIConfig(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(c *Config)
		errString string
	}{
		{name: "valid config", mutate: func(c *Config) {}},
		{name: "server port too low", mutate: func(c *Config) { c.Server.Port = 0 }, errString: "invalid server port"},
		{name: "server port too high", mutate: func(c *Config) { c.Server.Port = 70000 }, errString: "invalid server port"},
		{name: "empty database host", mutate: func(c *Config) { c.Database.Host = "" }, errString: "database host is required"},
		{name: "empty database name", mutate: func(c *Config) { c.Database.Database = "" }, errString: "database name is required"},
		{name: "invalid database port", mutate: func(c *Config) { c.Database.Port = -1 }, errString: "invalid database port"},
		{name: "empty rabbitmq host", mutate: func(c *Config) { c.RabbitMQ.Host = "" }, errString: "rabbitmq host is required"},
		{name: "empty exchange name", mutate: func(c *Config) { c.RabbitMQ.Exchange.Name = "" }, errString: "rabbitmq exchange name is required"},
		{name: "missing batch routing key", mutate: func(c *Config) { c.RabbitMQ.Queues.Batch.RoutingKey = "" }, errString: "rabbitmq batch queue"},
		{name: "missing notification queue", mutate: func(c *Config) { c.RabbitMQ.Queues.Notification.Name = "" }, errString: "rabbitmq notification queue"},
		{name: "unknown lock backend", mutate: func(c *Config) { c.Triage.LockBackend = "etcd" }, errString: "invalid lock backend"},
		{name: "redis backend without url", mutate: func(c *Config) { c.Triage.LockBackend = LockBackendRedis }, errString: "redis url is required"},
		{
			name: "redis backend with url",
			mutate: func(c *Config) {
				c.Triage.LockBackend = LockBackendRedis
				c.Redis.URL = "redis://localhost:6379/0"
			},
		},
		{name: "zero staleness", mutate: func(c *Config) { c.Triage.StaleAfter = 0 }, errString: "stale_after"},
		{name: "zero default batch size", mutate: func(c *Config) { c.Triage.DefaultBatchSize = 0 }, errString: "default_batch_size"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.ValidateAPIConfig()

			if tt.errString != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errString)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestConfig_ValidateWorkerConfig(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(c *Config)
		errString string
	}{
		{name: "valid config", mutate: func(c *Config) {}},
		{name: "server port is not needed", mutate: func(c *Config) { c.Server.Port = 0 }},
		{name: "zero concurrency", mutate: func(c *Config) { c.Worker.Concurrency = 0 }, errString: "worker concurrency"},
		{name: "zero batch timeout", mutate: func(c *Config) { c.Worker.BatchTimeout = 0 }, errString: "batch_timeout"},
		{name: "zero shutdown timeout", mutate: func(c *Config) { c.Worker.ShutdownTimeout = 0 }, errString: "shutdown_timeout"},
		{name: "missing directory url", mutate: func(c *Config) { c.Directory.BaseURL = "" }, errString: "directory base_url"},
		{name: "missing update queue", mutate: func(c *Config) { c.RabbitMQ.Queues.Update.Name = "" }, errString: "rabbitmq update queue"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.ValidateWorkerConfig()

			if tt.errString != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errString)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestConfig_ValidateLauncherConfig(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(c *Config)
		errString string
	}{
		{name: "valid config", mutate: func(c *Config) {}},
		{name: "zero interval", mutate: func(c *Config) { c.Scheduler.Interval = 0 }, errString: "scheduler interval"},
		{name: "no categories", mutate: func(c *Config) { c.Scheduler.Categories = nil }, errString: "at least one category"},
		{name: "unnamed category", mutate: func(c *Config) { c.Scheduler.Categories[0].Name = "" }, errString: "category name is required"},
		{name: "negative batch size", mutate: func(c *Config) { c.Scheduler.Categories[0].BatchSize = -1 }, errString: "invalid batch size"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.ValidateLauncherConfig()

			if tt.errString != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errString)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestLoad_ValidateIntegration(t *testing.T) {
	t.Run("load and validate valid config", func(t *testing.T) {
		cfg, err := Load("testdata/valid_config.yaml")
		require.NoError(t, err)
		require.NotNil(t, cfg)

		require.NoError(t, cfg.ValidateAPIConfig())
		require.NoError(t, cfg.ValidateWorkerConfig())
		require.NoError(t, cfg.ValidateLauncherConfig())
	})

	t.Run("load config with invalid port", func(t *testing.T) {
		cfg, err := Load("testdata/invalid_port.yaml")
		require.NoError(t, err)
		require.NotNil(t, cfg)

		err = cfg.ValidateAPIConfig()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid server port")
	})

	t.Run("load config with missing database", func(t *testing.T) {
		cfg, err := Load("testdata/missing_database.yaml")
		require.NoError(t, err)
		require.NotNil(t, cfg)

		err = cfg.ValidateWorkerConfig()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "database name is required")
	})
}

func TestCategorySchedule_BatchSizeOr(t *testing.T) {
	assert.Equal(t, 100, CategorySchedule{Name: "a", BatchSize: 100}.BatchSizeOr(50))
	assert.Equal(t, 50, CategorySchedule{Name: "a"}.BatchSizeOr(50))
}

func TestPortConstants(t *testing.T) {
	assert.Equal(t, 1, MinPort)
	assert.Equal(t, 65535, MaxPort)
}
