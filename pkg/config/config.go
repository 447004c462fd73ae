// Package config loads and validates the builder configuration from YAML
// files with environment-variable overrides. It provides typed structs for the
// indexer itself and for the optional build-report sinks (Kafka, Redis,
// Postgres), logging and metrics.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration.
type Config struct {
	Indexer  IndexerConfig  `yaml:"indexer"`
	Postgres PostgresConfig `yaml:"postgres"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	Redis    RedisConfig    `yaml:"redis"`
	Notify   NotifyConfig   `yaml:"notify"`
	Logging  LoggingConfig  `yaml:"logging"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// IndexerConfig controls the build: where output goes, when an in-memory
// index is flushed, and how wide each merge step is.
type IndexerConfig struct {
	OutputDir      string `yaml:"outputDir"`
	SingleThreaded bool   `yaml:"singleThreaded"`
	// LargeThreshold is the accumulated word count above which an
	// in-memory index is flushed to a segment file.
	LargeThreshold int64 `yaml:"largeThreshold"`
	// FanIn is the number of segments combined in one merge step.
	FanIn           int `yaml:"fanIn"`
	QueueCapacity   int `yaml:"queueCapacity"`
	ProgressEvery   int `yaml:"progressEvery"`
	TempMaxAttempts int `yaml:"tempMaxAttempts"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	Enabled         bool          `yaml:"enabled"`
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	Database        string        `yaml:"database"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	SSLMode         string        `yaml:"sslMode"`
	MaxOpenConns    int           `yaml:"maxOpenConns"`
	MaxIdleConns    int           `yaml:"maxIdleConns"`
	ConnMaxLifetime time.Duration `yaml:"connMaxLifetime"`
}

// DSN returns a lib/pq-compatible data source name.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

// KafkaConfig holds Kafka broker and topic settings.
type KafkaConfig struct {
	Enabled bool        `yaml:"enabled"`
	Brokers []string    `yaml:"brokers"`
	Topics  KafkaTopics `yaml:"topics"`
}

// KafkaTopics maps logical topic names to their Kafka topic strings.
type KafkaTopics struct {
	IndexComplete string `yaml:"indexComplete"`
}

// RedisConfig holds Redis connection parameters and the keys touched after a
// build.
type RedisConfig struct {
	Enabled           bool          `yaml:"enabled"`
	Addr              string        `yaml:"addr"`
	Password          string        `yaml:"password"`
	DB                int           `yaml:"db"`
	PoolSize          int           `yaml:"poolSize"`
	LatestReportKey   string        `yaml:"latestReportKey"`
	InvalidatePattern string        `yaml:"invalidatePattern"`
	ReportTTL         time.Duration `yaml:"reportTTL"`
}

// NotifyConfig controls how build reports are delivered to the sinks.
type NotifyConfig struct {
	Timeout     time.Duration `yaml:"timeout"`
	MaxAttempts int           `yaml:"maxAttempts"`
}

// LoggingConfig controls structured logging level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig controls the Prometheus metrics server.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// Load reads a YAML config file (if provided) and applies environment-variable
// overrides. It returns a Config populated with defaults for any missing
// values.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}
	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns a Config with the reference tuning constants.
func Default() *Config {
	return &Config{
		Indexer: IndexerConfig{
			OutputDir:       ".",
			LargeThreshold:  100_000_000,
			FanIn:           8,
			QueueCapacity:   1000,
			ProgressEvery:   100,
			TempMaxAttempts: 999,
		},
		Postgres: PostgresConfig{
			Host:            "localhost",
			Port:            5432,
			Database:        "searchplatform",
			User:            "searchplatform",
			Password:        "localdev",
			SSLMode:         "disable",
			MaxOpenConns:    4,
			MaxIdleConns:    1,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Kafka: KafkaConfig{
			Brokers: []string{"localhost:9092"},
			Topics: KafkaTopics{
				IndexComplete: "index.complete",
			},
		},
		Redis: RedisConfig{
			Addr:              "localhost:6379",
			PoolSize:          4,
			LatestReportKey:   "index:latest",
			InvalidatePattern: "search:*",
			ReportTTL:         0,
		},
		Notify: NotifyConfig{
			Timeout:     10 * time.Second,
			MaxAttempts: 3,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Port:    9090,
		},
	}
}

// Validate rejects values the builder cannot run with.
func (c *Config) Validate() error {
	ic := c.Indexer
	if ic.OutputDir == "" {
		return fmt.Errorf("indexer.outputDir must not be empty")
	}
	if ic.FanIn < 2 {
		return fmt.Errorf("indexer.fanIn must be at least 2, got %d", ic.FanIn)
	}
	if ic.QueueCapacity < 1 {
		return fmt.Errorf("indexer.queueCapacity must be at least 1, got %d", ic.QueueCapacity)
	}
	if ic.LargeThreshold < 0 {
		return fmt.Errorf("indexer.largeThreshold must not be negative, got %d", ic.LargeThreshold)
	}
	if ic.TempMaxAttempts < 1 {
		return fmt.Errorf("indexer.tempMaxAttempts must be at least 1, got %d", ic.TempMaxAttempts)
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers must be set when kafka is enabled")
	}
	return nil
}

// applyEnvOverrides reads SP_* environment variables and overrides the
// corresponding config fields.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SP_INDEXER_OUTPUT_DIR"); v != "" {
		cfg.Indexer.OutputDir = v
	}
	if v := os.Getenv("SP_INDEXER_SINGLE_THREADED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Indexer.SingleThreaded = b
		}
	}
	if v := os.Getenv("SP_INDEXER_LARGE_THRESHOLD"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Indexer.LargeThreshold = n
		}
	}
	if v := os.Getenv("SP_INDEXER_FAN_IN"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Indexer.FanIn = n
		}
	}
	if v := os.Getenv("SP_INDEXER_QUEUE_CAPACITY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Indexer.QueueCapacity = n
		}
	}
	if v := os.Getenv("SP_POSTGRES_HOST"); v != "" {
		cfg.Postgres.Host = v
	}
	if v := os.Getenv("SP_POSTGRES_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Postgres.Port = port
		}
	}
	if v := os.Getenv("SP_POSTGRES_DATABASE"); v != "" {
		cfg.Postgres.Database = v
	}
	if v := os.Getenv("SP_POSTGRES_USER"); v != "" {
		cfg.Postgres.User = v
	}
	if v := os.Getenv("SP_POSTGRES_PASSWORD"); v != "" {
		cfg.Postgres.Password = v
	}
	if v := os.Getenv("SP_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("SP_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("SP_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("SP_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("SP_LOGGING_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
}
