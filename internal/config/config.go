package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// MinPort is the minimum valid port number
	MinPort = 1
	// MaxPort is the maximum valid port number
	MaxPort = 65535
)

// Lock backends
const (
	LockBackendPostgres = "postgres"
	LockBackendRedis    = "redis"
)

// Config represents the complete application configuration
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	RabbitMQ  RabbitMQConfig  `yaml:"rabbitmq"`
	Redis     RedisConfig     `yaml:"redis"`
	Logging   LoggingConfig   `yaml:"logging"`
	App       AppConfig       `yaml:"app"`
	Worker    WorkerConfig    `yaml:"worker"`
	Triage    TriageConfig    `yaml:"triage"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Directory DirectoryConfig `yaml:"directory"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// DatabaseConfig holds PostgreSQL connection configuration
type DatabaseConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	Database        string        `yaml:"database"`
	SSLMode         string        `yaml:"sslmode"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time"`
	// MigrationsPath is applied on startup when set
	MigrationsPath string `yaml:"migrations_path"`
}

// RabbitMQConfig holds RabbitMQ connection, exchange and queue configuration
type RabbitMQConfig struct {
	Host       string           `yaml:"host"`
	Port       int              `yaml:"port"`
	User       string           `yaml:"user"`
	Password   string           `yaml:"password"`
	VHost      string           `yaml:"vhost"`
	Exchange   ExchangeConfig   `yaml:"exchange"`
	Queues     QueuesConfig     `yaml:"queues"`
	Connection ConnectionConfig `yaml:"connection"`
	Publish    PublishConfig    `yaml:"publish"`
	Consumer   ConsumerConfig   `yaml:"consumer"`
}

// ExchangeConfig holds RabbitMQ exchange configuration
type ExchangeConfig struct {
	Name       string `yaml:"name"`
	Type       string `yaml:"type"`
	Durable    bool   `yaml:"durable"`
	AutoDelete bool   `yaml:"auto_delete"`
}

// QueuesConfig names the three queues the coordinator talks to
type QueuesConfig struct {
	Durable      bool        `yaml:"durable"`
	Batch        QueueConfig `yaml:"batch"`
	Update       QueueConfig `yaml:"update"`
	Notification QueueConfig `yaml:"notification"`
}

// QueueConfig holds one queue and the routing key bound to it
type QueueConfig struct {
	Name       string `yaml:"name"`
	RoutingKey string `yaml:"routing_key"`
}

// ConnectionConfig holds RabbitMQ connection settings
type ConnectionConfig struct {
	RetryAttempts int           `yaml:"retry_attempts"`
	RetryInterval time.Duration `yaml:"retry_interval"`
	Heartbeat     time.Duration `yaml:"heartbeat"`
}

// PublishConfig holds RabbitMQ publish retry settings
type PublishConfig struct {
	RetryAttempts     int           `yaml:"retry_attempts"`
	RetryInterval     time.Duration `yaml:"retry_interval"`
	BackoffMultiplier float64       `yaml:"backoff_multiplier"`
}

// ConsumerConfig holds RabbitMQ consumer settings
type ConsumerConfig struct {
	PrefetchCount int `yaml:"prefetch_count"`
}

// RedisConfig holds Redis configuration for the lock backend
type RedisConfig struct {
	URL       string `yaml:"url"`
	KeyPrefix string `yaml:"key_prefix"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level        string `yaml:"level"`
	Format       string `yaml:"format"`
	Output       string `yaml:"output"`
	EnableCaller bool   `yaml:"enable_caller"`
}

// AppConfig holds application metadata
type AppConfig struct {
	Name        string `yaml:"name"`
	Version     string `yaml:"version"`
	Environment string `yaml:"environment"`
}

// WorkerConfig holds worker service configuration
type WorkerConfig struct {
	ID              string        `yaml:"id"`
	Concurrency     int           `yaml:"concurrency"`
	BatchTimeout    time.Duration `yaml:"batch_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// TriageConfig holds the coordinator settings shared by every service
type TriageConfig struct {
	LockBackend      string        `yaml:"lock_backend"`
	StaleAfter       time.Duration `yaml:"stale_after"`
	DefaultBatchSize int           `yaml:"default_batch_size"`
	// ProgressAttempts bounds compare-and-swap retries per progress update
	ProgressAttempts      int           `yaml:"progress_attempts"`
	ProgressRetryInterval time.Duration `yaml:"progress_retry_interval"`
	ReportsPrefix         string        `yaml:"reports_prefix"`
	Workbook              bool          `yaml:"workbook"`
	SCFInstitution        string        `yaml:"scf_institution"`
	// Owners maps a category to the institution code its reports go to
	Owners map[string]string `yaml:"owners"`
}

// SchedulerConfig holds the launcher service timer
type SchedulerConfig struct {
	Interval   time.Duration      `yaml:"interval"`
	RunOnStart bool               `yaml:"run_on_start"`
	Categories []CategorySchedule `yaml:"categories"`
}

// CategorySchedule is one category swept by the scheduler
type CategorySchedule struct {
	Name      string `yaml:"name"`
	BatchSize int    `yaml:"batch_size"`
}

// DirectoryConfig holds the item directory client settings
type DirectoryConfig struct {
	BaseURL     string        `yaml:"base_url"`
	Timeout     time.Duration `yaml:"timeout"`
	MaxAttempts int           `yaml:"max_attempts"`
	Backoff     time.Duration `yaml:"backoff"`
}

// Load reads and parses the configuration file. ${VAR} references are
// expanded from the environment before parsing.
func Load(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return &config, nil
}

// ValidateAPIConfig checks the settings the API service needs
func (c *Config) ValidateAPIConfig() error {
	if c.Server.Port < MinPort || c.Server.Port > MaxPort {
		return fmt.Errorf("invalid server port: %d (must be between %d and %d)", c.Server.Port, MinPort, MaxPort)
	}

	if err := c.validateDatabase(); err != nil {
		return err
	}

	if err := c.validateRabbitMQ(); err != nil {
		return err
	}

	return c.validateTriage()
}

// ValidateWorkerConfig checks the settings the worker service needs
func (c *Config) ValidateWorkerConfig() error {
	if err := c.validateDatabase(); err != nil {
		return err
	}

	if err := c.validateRabbitMQ(); err != nil {
		return err
	}

	if c.Worker.Concurrency <= 0 {
		return fmt.Errorf("worker concurrency must be greater than 0")
	}

	if c.Worker.BatchTimeout <= 0 {
		return fmt.Errorf("worker batch_timeout must be greater than 0")
	}

	if c.Worker.ShutdownTimeout <= 0 {
		return fmt.Errorf("worker shutdown_timeout must be greater than 0")
	}

	if c.Directory.BaseURL == "" {
		return fmt.Errorf("directory base_url is required")
	}

	return c.validateTriage()
}

// ValidateLauncherConfig checks the settings the launcher service needs
func (c *Config) ValidateLauncherConfig() error {
	if err := c.validateDatabase(); err != nil {
		return err
	}

	if err := c.validateRabbitMQ(); err != nil {
		return err
	}

	if c.Scheduler.Interval <= 0 {
		return fmt.Errorf("scheduler interval must be greater than 0")
	}

	if len(c.Scheduler.Categories) == 0 {
		return fmt.Errorf("scheduler needs at least one category")
	}

	for _, cat := range c.Scheduler.Categories {
		if cat.Name == "" {
			return fmt.Errorf("scheduler category name is required")
		}
		if cat.BatchSize < 0 {
			return fmt.Errorf("invalid batch size for category %s: %d", cat.Name, cat.BatchSize)
		}
	}

	return c.validateTriage()
}

// BatchSizeOr returns the configured batch size for a scheduled category,
// falling back to the triage default
func (s CategorySchedule) BatchSizeOr(fallback int) int {
	if s.BatchSize > 0 {
		return s.BatchSize
	}
	return fallback
}

func (c *Config) validateDatabase() error {
	if c.Database.Host == "" {
		return fmt.Errorf("database host is required")
	}

	if c.Database.Port < MinPort || c.Database.Port > MaxPort {
		return fmt.Errorf("invalid database port: %d (must be between %d and %d)", c.Database.Port, MinPort, MaxPort)
	}

	if c.Database.Database == "" {
		return fmt.Errorf("database name is required")
	}

	return nil
}

func (c *Config) validateRabbitMQ() error {
	if c.RabbitMQ.Host == "" {
		return fmt.Errorf("rabbitmq host is required")
	}

	if c.RabbitMQ.Port < MinPort || c.RabbitMQ.Port > MaxPort {
		return fmt.Errorf("invalid rabbitmq port: %d (must be between %d and %d)", c.RabbitMQ.Port, MinPort, MaxPort)
	}

	if c.RabbitMQ.Exchange.Name == "" {
		return fmt.Errorf("rabbitmq exchange name is required")
	}

	queues := []struct {
		kind  string
		queue QueueConfig
	}{
		{"batch", c.RabbitMQ.Queues.Batch},
		{"update", c.RabbitMQ.Queues.Update},
		{"notification", c.RabbitMQ.Queues.Notification},
	}
	for _, q := range queues {
		if q.queue.Name == "" || q.queue.RoutingKey == "" {
			return fmt.Errorf("rabbitmq %s queue name and routing_key are required", q.kind)
		}
	}

	return nil
}

func (c *Config) validateTriage() error {
	switch c.Triage.LockBackend {
	case LockBackendPostgres:
	case LockBackendRedis:
		if c.Redis.URL == "" {
			return fmt.Errorf("redis url is required for the redis lock backend")
		}
	default:
		return fmt.Errorf("invalid lock backend: %q (must be %s or %s)", c.Triage.LockBackend, LockBackendPostgres, LockBackendRedis)
	}

	if c.Triage.StaleAfter <= 0 {
		return fmt.Errorf("triage stale_after must be greater than 0")
	}

	if c.Triage.DefaultBatchSize <= 0 {
		return fmt.Errorf("triage default_batch_size must be greater than 0")
	}

	return nil
}
