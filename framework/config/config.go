// Package config загружает конфигурацию сервиса через viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/akriventsev/commerce/framework/logging"
)

// EnvPrefix префикс переменных окружения
const EnvPrefix = "COMMERCE"

// Config конфигурация сервиса
type Config struct {
	App        AppConfig        `mapstructure:"app"`
	HTTP       HTTPConfig       `mapstructure:"http"`
	Log        logging.Config   `mapstructure:"log"`
	Storage    StorageConfig    `mapstructure:"storage"`
	Postgres   PostgresConfig   `mapstructure:"postgres"`
	Mongo      MongoConfig      `mapstructure:"mongo"`
	Redis      RedisConfig      `mapstructure:"redis"`
	MessageBus MessageBusConfig `mapstructure:"messagebus"`
	EventStore EventStoreConfig `mapstructure:"event_store"`
	Events     EventsConfig     `mapstructure:"events"`
	Outbox     OutboxConfig     `mapstructure:"outbox"`
	Geocoder   GeocoderConfig   `mapstructure:"geocoder"`
	Metrics    MetricsConfig    `mapstructure:"metrics"`
	Tracing    TracingConfig    `mapstructure:"tracing"`
}

// AppConfig общие параметры приложения
type AppConfig struct {
	Name    string `mapstructure:"name"`
	Version string `mapstructure:"version"`
	Env     string `mapstructure:"env"`
}

// HTTPConfig параметры HTTP сервера
type HTTPConfig struct {
	Addr            string        `mapstructure:"addr"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// StorageConfig выбор драйвера хранилища: memory, postgres, mongo.
// Драйвер общий для агрегатов, представлений и журнала.
type StorageConfig struct {
	Driver string `mapstructure:"driver"`
}

// PostgresConfig параметры PostgreSQL
type PostgresConfig struct {
	DSN      string `mapstructure:"dsn"`
	MaxConns int32  `mapstructure:"max_conns"`
	Schema   string `mapstructure:"schema"`
}

// MongoConfig параметры MongoDB
type MongoConfig struct {
	URI      string        `mapstructure:"uri"`
	Database string        `mapstructure:"database"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// RedisConfig параметры Redis
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// MessageBusConfig внешний брокер: none, inmemory, redis, nats, kafka
type MessageBusConfig struct {
	Type          string   `mapstructure:"type"`
	NATSURL       string   `mapstructure:"nats_url"`
	KafkaBrokers  []string `mapstructure:"kafka_brokers"`
	ConsumerGroup string   `mapstructure:"consumer_group"`
	// PublishEvents дублирует доменные события во внешний брокер
	PublishEvents bool `mapstructure:"publish_events"`
	// CascadeViaBus отправляет каскадные команды через брокер вместо прямого вызова
	CascadeViaBus bool `mapstructure:"cascade_via_bus"`
}

// EventStoreConfig параметры журнала событий
type EventStoreConfig struct {
	// VersionPolicy: revision или constant
	VersionPolicy string `mapstructure:"version_policy"`
}

// EventsConfig параметры асинхронной доставки событий
type EventsConfig struct {
	Workers   int `mapstructure:"workers"`
	QueueSize int `mapstructure:"queue_size"`
}

// OutboxConfig параметры relay исходящих команд
type OutboxConfig struct {
	PollInterval   time.Duration `mapstructure:"poll_interval"`
	BatchSize      int           `mapstructure:"batch_size"`
	MaxRetries     int           `mapstructure:"max_retries"`
	InitialBackoff time.Duration `mapstructure:"initial_backoff"`
	MaxBackoff     time.Duration `mapstructure:"max_backoff"`
	ClaimLease     time.Duration `mapstructure:"claim_lease"`
}

// GeocoderConfig параметры клиента обратного геокодирования
type GeocoderConfig struct {
	BaseURL     string        `mapstructure:"base_url"`
	KeyID       string        `mapstructure:"key_id"`
	Key         string        `mapstructure:"key"`
	Timeout     time.Duration `mapstructure:"timeout"`
	CacheTTL    time.Duration `mapstructure:"cache_ttl"`
	Concurrency int           `mapstructure:"concurrency"`
}

// MetricsConfig параметры метрик
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// TracingConfig параметры трассировки
type TracingConfig struct {
	Enabled      bool    `mapstructure:"enabled"`
	Exporter     string  `mapstructure:"exporter"` // stdout, otlp
	Endpoint     string  `mapstructure:"endpoint"`
	SamplingRate float64 `mapstructure:"sampling_rate"`
}

// Load загружает конфигурацию из файла (опционально) и окружения
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || path != "" {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate проверяет конфигурацию
func (c *Config) Validate() error {
	if err := c.Log.Validate(); err != nil {
		return err
	}

	switch c.Storage.Driver {
	case "memory":
	case "postgres":
		if c.Postgres.DSN == "" {
			return fmt.Errorf("postgres.dsn is required for postgres storage")
		}
	case "mongo":
		if c.Mongo.URI == "" {
			return fmt.Errorf("mongo.uri is required for mongo storage")
		}
	default:
		return fmt.Errorf("unknown storage driver: %s", c.Storage.Driver)
	}

	switch c.MessageBus.Type {
	case "none", "inmemory", "redis":
	case "nats":
		if c.MessageBus.NATSURL == "" {
			return fmt.Errorf("messagebus.nats_url is required for nats")
		}
	case "kafka":
		if len(c.MessageBus.KafkaBrokers) == 0 {
			return fmt.Errorf("messagebus.kafka_brokers is required for kafka")
		}
	default:
		return fmt.Errorf("unknown message bus type: %s", c.MessageBus.Type)
	}
	if c.MessageBus.CascadeViaBus && c.MessageBus.Type == "none" {
		return fmt.Errorf("messagebus.cascade_via_bus requires a message bus")
	}

	switch c.EventStore.VersionPolicy {
	case "revision", "constant":
	default:
		return fmt.Errorf("unknown event_store.version_policy: %s", c.EventStore.VersionPolicy)
	}

	if c.Events.Workers <= 0 {
		return fmt.Errorf("events.workers must be positive")
	}
	if c.Events.QueueSize <= 0 {
		return fmt.Errorf("events.queue_size must be positive")
	}
	if c.Outbox.PollInterval <= 0 {
		return fmt.Errorf("outbox.poll_interval must be positive")
	}
	if c.Outbox.BatchSize <= 0 {
		return fmt.Errorf("outbox.batch_size must be positive")
	}
	if c.Outbox.MaxRetries < 0 {
		return fmt.Errorf("outbox.max_retries cannot be negative")
	}
	if c.Outbox.ClaimLease < 0 {
		return fmt.Errorf("outbox.claim_lease cannot be negative")
	}
	if c.Geocoder.Concurrency <= 0 {
		return fmt.Errorf("geocoder.concurrency must be positive")
	}
	if c.Tracing.Enabled && c.Tracing.Exporter != "stdout" && c.Tracing.Exporter != "otlp" {
		return fmt.Errorf("unknown tracing exporter: %s", c.Tracing.Exporter)
	}
	return nil
}

// IsDevelopment проверяет окружение разработки
func (c *Config) IsDevelopment() bool {
	return c.App.Env == "development"
}

func setDefaults(v *viper.Viper) {
	// App
	v.SetDefault("app.name", "commerce")
	v.SetDefault("app.version", "0.1.0")
	v.SetDefault("app.env", "development")

	// HTTP
	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.read_timeout", "15s")
	v.SetDefault("http.write_timeout", "30s")
	v.SetDefault("http.shutdown_timeout", "10s")

	// Log
	log := logging.DefaultConfig()
	v.SetDefault("log.level", log.Level)
	v.SetDefault("log.format", log.Format)
	v.SetDefault("log.output", log.Output)
	v.SetDefault("log.file_path", log.FilePath)
	v.SetDefault("log.development", false)

	// Storage
	v.SetDefault("storage.driver", "memory")
	v.SetDefault("postgres.dsn", "")
	v.SetDefault("postgres.max_conns", 10)
	v.SetDefault("postgres.schema", "public")
	v.SetDefault("mongo.uri", "")
	v.SetDefault("mongo.database", "commerce")
	v.SetDefault("mongo.timeout", "10s")
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	// Message bus
	v.SetDefault("messagebus.type", "none")
	v.SetDefault("messagebus.nats_url", "")
	v.SetDefault("messagebus.kafka_brokers", []string{})
	v.SetDefault("messagebus.consumer_group", "commerce")
	v.SetDefault("messagebus.publish_events", false)
	v.SetDefault("messagebus.cascade_via_bus", false)

	// Events
	v.SetDefault("event_store.version_policy", "revision")
	v.SetDefault("events.workers", 4)
	v.SetDefault("events.queue_size", 1024)

	// Outbox
	v.SetDefault("outbox.poll_interval", "1s")
	v.SetDefault("outbox.batch_size", 50)
	v.SetDefault("outbox.max_retries", 10)
	v.SetDefault("outbox.initial_backoff", "500ms")
	v.SetDefault("outbox.max_backoff", "1m")
	v.SetDefault("outbox.claim_lease", "5m")

	// Geocoder
	v.SetDefault("geocoder.base_url", "https://naveropenapi.apigw.ntruss.com")
	v.SetDefault("geocoder.key_id", "")
	v.SetDefault("geocoder.key", "")
	v.SetDefault("geocoder.timeout", "3s")
	v.SetDefault("geocoder.cache_ttl", "24h")
	v.SetDefault("geocoder.concurrency", 8)

	// Observability
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")
	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.exporter", "stdout")
	v.SetDefault("tracing.endpoint", "localhost:4318")
	v.SetDefault("tracing.sampling_rate", 1.0)
}
