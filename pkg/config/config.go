// Package config loads and validates application configuration from YAML files
// with environment-variable overrides. It provides typed structs for every
// subsystem (Server, Postgres, Kafka, Redis, Index, Search, etc.).
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
	Server   ServerConfig   `yaml:"server"`
	Postgres PostgresConfig `yaml:"postgres"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	Redis    RedisConfig    `yaml:"redis"`
	Index    IndexConfig    `yaml:"index"`
	Search   SearchConfig   `yaml:"search"`
	Logging  LoggingConfig  `yaml:"logging"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
	RequestTimeout  time.Duration `yaml:"requestTimeout"`
	// RebuildPerMinute limits POST /api/v1/index/rebuild.
	RebuildPerMinute int `yaml:"rebuildPerMinute"`
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
	// Table must have path and content text columns and an id ordering column.
	Table string `yaml:"table"`
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
	Enabled       bool        `yaml:"enabled"`
	Brokers       []string    `yaml:"brokers"`
	ConsumerGroup string      `yaml:"consumerGroup"`
	Topics        KafkaTopics `yaml:"topics"`
}

// KafkaTopics maps logical topic names to their Kafka topic strings.
type KafkaTopics struct {
	IndexComplete string `yaml:"indexComplete"`
	IndexProgress string `yaml:"indexProgress"`
	Reindex       string `yaml:"reindex"`
}

// RedisConfig holds Redis connection and caching parameters.
type RedisConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	PoolSize int           `yaml:"poolSize"`
	CacheTTL time.Duration `yaml:"cacheTTL"`
}

// IndexConfig controls how the index is built.
type IndexConfig struct {
	BatchSize                    int     `yaml:"batchSize"`
	ContextWindow                int     `yaml:"contextWindow"`
	SkipListMaxLevel             int     `yaml:"skipListMaxLevel"`
	SkipListPromotionProbability float64 `yaml:"skipListPromotionProbability"`
	// Backend is "skiplist" or "trie".
	Backend string `yaml:"backend"`
	// Workers caps parallel batches; 0 means GOMAXPROCS.
	Workers int `yaml:"workers"`
	// Seed fixes skip list level draws; 0 seeds from the clock.
	Seed int64 `yaml:"seed"`
	// BuildOnStart triggers a rebuild from Postgres when the service starts.
	BuildOnStart bool `yaml:"buildOnStart"`
}

// SearchConfig controls query execution limits.
type SearchConfig struct {
	MaxResults int `yaml:"maxResults"`
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
// values. Load does not validate; call Validate.
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
	return cfg, nil
}

// Default returns a Config with defaults for local development.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:             8080,
			ReadTimeout:      30 * time.Second,
			WriteTimeout:     30 * time.Second,
			ShutdownTimeout:  15 * time.Second,
			RequestTimeout:   10 * time.Second,
			RebuildPerMinute: 6,
		},
		Postgres: PostgresConfig{
			Host:            "localhost",
			Port:            5432,
			Database:        "docsearch",
			User:            "docsearch",
			Password:        "localdev",
			SSLMode:         "disable",
			MaxOpenConns:    10,
			MaxIdleConns:    2,
			ConnMaxLifetime: 5 * time.Minute,
			Table:           "documents",
		},
		Kafka: KafkaConfig{
			Brokers:       []string{"localhost:9092"},
			ConsumerGroup: "docsearch",
			Topics: KafkaTopics{
				IndexComplete: "index.complete",
				IndexProgress: "index.progress",
				Reindex:       "index.reindex",
			},
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			PoolSize: 10,
			CacheTTL: 60 * time.Second,
		},
		Index: IndexConfig{
			BatchSize:                    20,
			ContextWindow:                25,
			SkipListMaxLevel:             16,
			SkipListPromotionProbability: 0.5,
			Backend:                      "skiplist",
		},
		Search: SearchConfig{
			MaxResults: 100,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
		},
	}
}

// applyEnvOverrides reads DS_* environment variables and overrides the
// corresponding config fields.
func applyEnvOverrides(cfg *Config) {
	setInt("DS_SERVER_PORT", &cfg.Server.Port)
	setBool("DS_POSTGRES_ENABLED", &cfg.Postgres.Enabled)
	setString("DS_POSTGRES_HOST", &cfg.Postgres.Host)
	setInt("DS_POSTGRES_PORT", &cfg.Postgres.Port)
	setString("DS_POSTGRES_DATABASE", &cfg.Postgres.Database)
	setString("DS_POSTGRES_USER", &cfg.Postgres.User)
	setString("DS_POSTGRES_PASSWORD", &cfg.Postgres.Password)
	setString("DS_POSTGRES_SSLMODE", &cfg.Postgres.SSLMode)
	setString("DS_POSTGRES_TABLE", &cfg.Postgres.Table)
	setBool("DS_KAFKA_ENABLED", &cfg.Kafka.Enabled)
	if v := os.Getenv("DS_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}
	setBool("DS_REDIS_ENABLED", &cfg.Redis.Enabled)
	setString("DS_REDIS_ADDR", &cfg.Redis.Addr)
	setString("DS_REDIS_PASSWORD", &cfg.Redis.Password)
	setInt("DS_INDEX_BATCH_SIZE", &cfg.Index.BatchSize)
	setInt("DS_INDEX_CONTEXT_WINDOW", &cfg.Index.ContextWindow)
	setInt("DS_INDEX_WORKERS", &cfg.Index.Workers)
	setString("DS_INDEX_BACKEND", &cfg.Index.Backend)
	if v := os.Getenv("DS_INDEX_SEED"); v != "" {
		if seed, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Index.Seed = seed
		}
	}
	setBool("DS_INDEX_BUILD_ON_START", &cfg.Index.BuildOnStart)
	setInt("DS_SEARCH_MAX_RESULTS", &cfg.Search.MaxResults)
	setString("DS_LOGGING_LEVEL", &cfg.Logging.Level)
	setString("DS_LOGGING_FORMAT", &cfg.Logging.Format)
	setBool("DS_METRICS_ENABLED", &cfg.Metrics.Enabled)
	setInt("DS_METRICS_PORT", &cfg.Metrics.Port)
}

func setString(key string, dst *string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(key string, dst *int) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setBool(key string, dst *bool) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}
