// Package config loads and validates application configuration from YAML files
// with environment-variable overrides. It provides typed structs for every
// subsystem (Server, Postgres, Kafka, Redis, Corpus, Trainer, etc.).
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
	Corpus   CorpusConfig   `yaml:"corpus"`
	Analyzer AnalyzerConfig `yaml:"analyzer"`
	Trainer  TrainerConfig  `yaml:"trainer"`
	Admin    AdminConfig    `yaml:"admin"`
	Logging  LoggingConfig  `yaml:"logging"`
	Tracing  TracingConfig  `yaml:"tracing"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
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
	Brokers       []string    `yaml:"brokers"`
	ConsumerGroup string      `yaml:"consumerGroup"`
	Topics        KafkaTopics `yaml:"topics"`
}

// KafkaTopics maps logical topic names to their Kafka topic strings.
type KafkaTopics struct {
	Documents   string `yaml:"documents"`
	Segments    string `yaml:"segments"`
	ModelEvents string `yaml:"modelEvents"`
}

// RedisConfig holds Redis connection and caching parameters.
type RedisConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	PoolSize int           `yaml:"poolSize"`
	CacheTTL time.Duration `yaml:"cacheTTL"`
}

// CorpusConfig controls the corpus builder's buffering and segment flushing.
type CorpusConfig struct {
	DataDir        string        `yaml:"dataDir"`
	SegmentMaxDocs int           `yaml:"segmentMaxDocs"`
	FlushInterval  time.Duration `yaml:"flushInterval"`
}

// AnalyzerConfig controls text normalisation ahead of corpus building.
type AnalyzerConfig struct {
	MinTokenLength   int      `yaml:"minTokenLength"`
	Stemmer          string   `yaml:"stemmer"`
	NGrams           int      `yaml:"ngrams"`
	DisableStopwords bool     `yaml:"disableStopwords"`
	ExtraStopwords   []string `yaml:"extraStopwords"`
}

// TrainerConfig holds the topic model hyperparameters and run limits.
type TrainerConfig struct {
	Topics        int     `yaml:"topics"`
	Alpha         float64 `yaml:"alpha"`
	Beta          float64 `yaml:"beta"`
	MaxIterations int     `yaml:"maxIterations"`
	Convergence   float64 `yaml:"convergence"`
	Seed          int64   `yaml:"seed"`
	OutputDir     string  `yaml:"outputDir"`
	TopTerms      int     `yaml:"topTerms"`
}

// AdminConfig holds the corpus daemon's admin RPC listen address.
type AdminConfig struct {
	Addr           string        `yaml:"addr"`
	RequestTimeout time.Duration `yaml:"requestTimeout"`
}

// LoggingConfig controls structured logging level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// TracingConfig controls span capture (sample rate, export endpoint).
type TracingConfig struct {
	Enabled    bool    `yaml:"enabled"`
	Endpoint   string  `yaml:"endpoint"`
	SampleRate float64 `yaml:"sampleRate"`
}

// MetricsConfig controls the Prometheus metrics server.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// Load reads a YAML config file (if provided) and applies environment-variable
// overrides. It returns a Config populated with sensible defaults for any
// missing values.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}
	applyEnvOverrides(cfg)
	return cfg, nil
}

// defaultConfig returns a Config with production-ready defaults for local
// development.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 15 * time.Second,
		},
		Postgres: PostgresConfig{
			Host:            "localhost",
			Port:            5432,
			Database:        "topicmine",
			User:            "topicmine",
			Password:        "localdev",
			SSLMode:         "disable",
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Kafka: KafkaConfig{
			Brokers:       []string{"localhost:9092"},
			ConsumerGroup: "topicmine-group",
			Topics: KafkaTopics{
				Documents:   "documents",
				Segments:    "corpus.segments",
				ModelEvents: "model.events",
			},
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			Password: "",
			DB:       0,
			PoolSize: 10,
			CacheTTL: 60 * time.Second,
		},
		Corpus: CorpusConfig{
			DataDir:        "./data/corpus",
			SegmentMaxDocs: 10000,
			FlushInterval:  30 * time.Second,
		},
		Analyzer: AnalyzerConfig{
			MinTokenLength: 2,
			Stemmer:        "snowball",
			NGrams:         1,
		},
		Trainer: TrainerConfig{
			Topics:        20,
			Alpha:         0.1,
			Beta:          0.01,
			MaxIterations: 1000,
			Convergence:   1e-6,
			Seed:          0,
			OutputDir:     "./data/models",
			TopTerms:      15,
		},
		Admin: AdminConfig{
			Addr:           "localhost:7090",
			RequestTimeout: 10 * time.Second,
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

// applyEnvOverrides reads TM_* environment variables and overrides the
// corresponding config fields.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("TM_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("TM_POSTGRES_HOST"); v != "" {
		cfg.Postgres.Host = v
	}
	if v := os.Getenv("TM_POSTGRES_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Postgres.Port = port
		}
	}
	if v := os.Getenv("TM_POSTGRES_DATABASE"); v != "" {
		cfg.Postgres.Database = v
	}
	if v := os.Getenv("TM_POSTGRES_USER"); v != "" {
		cfg.Postgres.User = v
	}
	if v := os.Getenv("TM_POSTGRES_PASSWORD"); v != "" {
		cfg.Postgres.Password = v
	}
	if v := os.Getenv("TM_POSTGRES_SSLMODE"); v != "" {
		cfg.Postgres.SSLMode = v
	}
	if v := os.Getenv("TM_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("TM_KAFKA_CONSUMER_GROUP"); v != "" {
		cfg.Kafka.ConsumerGroup = v
	}
	if v := os.Getenv("TM_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("TM_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("TM_CORPUS_DATA_DIR"); v != "" {
		cfg.Corpus.DataDir = v
	}
	if v := os.Getenv("TM_CORPUS_SEGMENT_MAX_DOCS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Corpus.SegmentMaxDocs = n
		}
	}
	if v := os.Getenv("TM_TRAINER_TOPICS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Trainer.Topics = n
		}
	}
	if v := os.Getenv("TM_TRAINER_ALPHA"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Trainer.Alpha = f
		}
	}
	if v := os.Getenv("TM_TRAINER_BETA"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Trainer.Beta = f
		}
	}
	if v := os.Getenv("TM_TRAINER_SEED"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Trainer.Seed = n
		}
	}
	if v := os.Getenv("TM_ADMIN_ADDR"); v != "" {
		cfg.Admin.Addr = v
	}
	if v := os.Getenv("TM_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("TM_LOGGING_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
}
