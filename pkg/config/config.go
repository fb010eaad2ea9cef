// Package config loads and validates application configuration from YAML or
// TOML files with environment-variable overrides. It provides typed structs
// for every subsystem (Server, Indexer, Expansion, DocStore, Postgres, SQLite,
// Bolt, Kafka, Redis, Logging, Metrics).
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server" toml:"server"`
	Indexer   IndexerConfig   `yaml:"indexer" toml:"indexer"`
	Expansion ExpansionConfig `yaml:"expansion" toml:"expansion"`
	DocStore  DocStoreConfig  `yaml:"docStore" toml:"docStore"`
	Postgres  PostgresConfig  `yaml:"postgres" toml:"postgres"`
	SQLite    SQLiteConfig    `yaml:"sqlite" toml:"sqlite"`
	Bolt      BoltConfig      `yaml:"bolt" toml:"bolt"`
	Kafka     KafkaConfig     `yaml:"kafka" toml:"kafka"`
	Redis     RedisConfig     `yaml:"redis" toml:"redis"`
	Logging   LoggingConfig   `yaml:"logging" toml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics" toml:"metrics"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port" toml:"port"`
	ReadTimeout     time.Duration `yaml:"readTimeout" toml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout" toml:"writeTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout" toml:"shutdownTimeout"`
	// RateLimit is the per-client request budget per minute; 0 disables it.
	RateLimit   int      `yaml:"rateLimit" toml:"rateLimit"`
	CORSOrigins []string `yaml:"corsOrigins" toml:"corsOrigins"`
}

// IndexerConfig controls where a built index lives and how terms are
// processed while building it.
type IndexerConfig struct {
	DataDir         string `yaml:"dataDir" toml:"dataDir"`
	BaseName        string `yaml:"baseName" toml:"baseName"`
	TermProcessor   string `yaml:"termProcessor" toml:"termProcessor"`
	CaseInsensitive bool   `yaml:"caseInsensitive" toml:"caseInsensitive"`
	// Terms outside [MinDocFrequency, MaxDocFraction*N] are left out of the
	// scoring transform. MaxDocFraction <= 0 disables the upper bound.
	MinDocFrequency int     `yaml:"minDocFrequency" toml:"minDocFrequency"`
	MaxDocFraction  float64 `yaml:"maxDocFraction" toml:"maxDocFraction"`
}

// ExpansionConfig holds defaults for pseudo-relevance feedback requests.
type ExpansionConfig struct {
	DefaultStrategy        string  `yaml:"defaultStrategy" toml:"defaultStrategy"`
	DefaultMaxTerms        int     `yaml:"defaultMaxTerms" toml:"defaultMaxTerms"`
	MaxTerms               int     `yaml:"maxTerms" toml:"maxTerms"`
	MaxDocuments           int     `yaml:"maxDocuments" toml:"maxDocuments"`
	SignificanceThreshold  float64 `yaml:"significanceThreshold" toml:"significanceThreshold"`
	ConsensusDocsThreshold int     `yaml:"consensusDocsThreshold" toml:"consensusDocsThreshold"`
}

// DocStoreConfig selects where per-document term vectors are read from.
type DocStoreConfig struct {
	Backend string `yaml:"backend" toml:"backend"`
	Export  bool   `yaml:"export" toml:"export"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	Host            string        `yaml:"host" toml:"host"`
	Port            int           `yaml:"port" toml:"port"`
	Database        string        `yaml:"database" toml:"database"`
	User            string        `yaml:"user" toml:"user"`
	Password        string        `yaml:"password" toml:"password"`
	SSLMode         string        `yaml:"sslMode" toml:"sslMode"`
	MaxOpenConns    int           `yaml:"maxOpenConns" toml:"maxOpenConns"`
	MaxIdleConns    int           `yaml:"maxIdleConns" toml:"maxIdleConns"`
	ConnMaxLifetime time.Duration `yaml:"connMaxLifetime" toml:"connMaxLifetime"`
}

// DSN returns a lib/pq-compatible data source name.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

// SQLiteConfig points at the embedded SQLite term-vector database.
type SQLiteConfig struct {
	Path string `yaml:"path" toml:"path"`
}

// BoltConfig points at the embedded bolt term-vector database.
type BoltConfig struct {
	Path    string        `yaml:"path" toml:"path"`
	Timeout time.Duration `yaml:"timeout" toml:"timeout"`
}

// KafkaConfig holds Kafka broker and topic settings.
type KafkaConfig struct {
	Brokers       []string    `yaml:"brokers" toml:"brokers"`
	ConsumerGroup string      `yaml:"consumerGroup" toml:"consumerGroup"`
	Topics        KafkaTopics `yaml:"topics" toml:"topics"`
}

// KafkaTopics maps logical topic names to their Kafka topic strings.
type KafkaTopics struct {
	DocumentIngest  string `yaml:"documentIngest" toml:"documentIngest"`
	IndexComplete   string `yaml:"indexComplete" toml:"indexComplete"`
	ExpansionEvents string `yaml:"expansionEvents" toml:"expansionEvents"`
}

// RedisConfig holds Redis connection and caching parameters.
type RedisConfig struct {
	Addr     string        `yaml:"addr" toml:"addr"`
	Password string        `yaml:"password" toml:"password"`
	DB       int           `yaml:"db" toml:"db"`
	PoolSize int           `yaml:"poolSize" toml:"poolSize"`
	CacheTTL time.Duration `yaml:"cacheTTL" toml:"cacheTTL"`
}

// LoggingConfig controls structured logging level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
}

// MetricsConfig controls the Prometheus metrics server.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled" toml:"enabled"`
	Port    int  `yaml:"port" toml:"port"`
}

// Load reads a YAML or TOML config file (if provided) and applies
// environment-variable overrides. It returns a Config populated with sensible
// defaults for any missing values.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		if strings.HasSuffix(path, ".toml") {
			err = toml.Unmarshal(data, cfg)
		} else {
			err = yaml.Unmarshal(data, cfg)
		}
		if err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}
	applyEnvOverrides(cfg)
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// defaultConfig returns a Config with defaults suitable for local
// development.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 15 * time.Second,
			RateLimit:       600,
			CORSOrigins:     []string{"*"},
		},
		Indexer: IndexerConfig{
			DataDir:         "data/index",
			BaseName:        "corpus",
			TermProcessor:   "short-term-case",
			CaseInsensitive: true,
			MinDocFrequency: 1,
		},
		Expansion: ExpansionConfig{
			DefaultStrategy:       "tfidf",
			DefaultMaxTerms:       10,
			MaxTerms:              100,
			MaxDocuments:          200,
			SignificanceThreshold: 1e-4,
		},
		DocStore: DocStoreConfig{
			Backend: "segment",
		},
		Postgres: PostgresConfig{
			Host:            "localhost",
			Port:            5432,
			Database:        "termexpand",
			User:            "termexpand",
			Password:        "localdev",
			SSLMode:         "disable",
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
		},
		SQLite: SQLiteConfig{
			Path: "data/vectors.db",
		},
		Bolt: BoltConfig{
			Path:    "data/vectors.bolt",
			Timeout: time.Second,
		},
		Kafka: KafkaConfig{
			Brokers:       []string{"localhost:9092"},
			ConsumerGroup: "termexpand-indexer",
			Topics: KafkaTopics{
				DocumentIngest:  "document-ingest",
				IndexComplete:   "index.complete",
				ExpansionEvents: "expansion-events",
			},
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			Password: "",
			DB:       0,
			PoolSize: 10,
			CacheTTL: 5 * time.Minute,
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

func (c *Config) validate() error {
	if c.Indexer.DataDir == "" {
		return fmt.Errorf("indexer.dataDir must not be empty")
	}
	if c.Indexer.BaseName == "" {
		return fmt.Errorf("indexer.baseName must not be empty")
	}
	if c.Indexer.MaxDocFraction > 1 {
		return fmt.Errorf("indexer.maxDocFraction must be at most 1, got %g", c.Indexer.MaxDocFraction)
	}
	if c.Expansion.DefaultMaxTerms < 1 || c.Expansion.DefaultMaxTerms > c.Expansion.MaxTerms {
		return fmt.Errorf("expansion.defaultMaxTerms must be in [1, %d], got %d",
			c.Expansion.MaxTerms, c.Expansion.DefaultMaxTerms)
	}
	if c.Server.RateLimit < 0 {
		return fmt.Errorf("server.rateLimit must not be negative, got %d", c.Server.RateLimit)
	}
	if c.Expansion.MaxDocuments < 1 {
		return fmt.Errorf("expansion.maxDocuments must be positive, got %d", c.Expansion.MaxDocuments)
	}
	return nil
}

// applyEnvOverrides reads TX_* environment variables and overrides the
// corresponding config fields.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("TX_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("TX_INDEXER_DATA_DIR"); v != "" {
		cfg.Indexer.DataDir = v
	}
	if v := os.Getenv("TX_INDEXER_BASE_NAME"); v != "" {
		cfg.Indexer.BaseName = v
	}
	if v := os.Getenv("TX_INDEXER_TERM_PROCESSOR"); v != "" {
		cfg.Indexer.TermProcessor = v
	}
	if v := os.Getenv("TX_EXPANSION_STRATEGY"); v != "" {
		cfg.Expansion.DefaultStrategy = v
	}
	if v := os.Getenv("TX_DOCSTORE_BACKEND"); v != "" {
		cfg.DocStore.Backend = v
	}
	if v := os.Getenv("TX_POSTGRES_HOST"); v != "" {
		cfg.Postgres.Host = v
	}
	if v := os.Getenv("TX_POSTGRES_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Postgres.Port = port
		}
	}
	if v := os.Getenv("TX_POSTGRES_DATABASE"); v != "" {
		cfg.Postgres.Database = v
	}
	if v := os.Getenv("TX_POSTGRES_USER"); v != "" {
		cfg.Postgres.User = v
	}
	if v := os.Getenv("TX_POSTGRES_PASSWORD"); v != "" {
		cfg.Postgres.Password = v
	}
	if v := os.Getenv("TX_SQLITE_PATH"); v != "" {
		cfg.SQLite.Path = v
	}
	if v := os.Getenv("TX_BOLT_PATH"); v != "" {
		cfg.Bolt.Path = v
	}
	if v := os.Getenv("TX_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("TX_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("TX_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("TX_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("TX_LOGGING_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
}
