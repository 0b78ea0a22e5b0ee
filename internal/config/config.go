package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. DOCCHAT_LLM_API_KEY.
const EnvPrefix = "DOCCHAT"

// Config holds all configuration for docchat
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Admin      AdminConfig      `mapstructure:"admin"`
	Log        LogConfig        `mapstructure:"log"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Storage    StorageConfig    `mapstructure:"storage"`
	RAG        RAGConfig        `mapstructure:"rag"`
	LLM        LLMConfig        `mapstructure:"llm"`
	Vector     VectorConfig     `mapstructure:"vector"`
	Retry      RetryConfig      `mapstructure:"retry"`
	RateLimit  RateLimitConfig  `mapstructure:"rate_limit"`
	Delegation DelegationConfig `mapstructure:"delegation"`
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Host         string   `mapstructure:"host"`
	Port         int      `mapstructure:"port"`
	BaseURL      string   `mapstructure:"base_url"`
	AllowOrigins []string `mapstructure:"allow_origins"`
}

// AdminConfig holds API key authentication configuration
type AdminConfig struct {
	APIKey string `mapstructure:"api_key"`
}

// LogConfig selects the zap encoder: "production" or "development".
type LogConfig struct {
	Mode string `mapstructure:"mode"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// StorageConfig holds document storage configuration
type StorageConfig struct {
	Driver          string `mapstructure:"driver"`
	Documents       string `mapstructure:"documents"`
	Bucket          string `mapstructure:"bucket"`
	CredentialsFile string `mapstructure:"credentials_file"`
	EmulatorHost    string `mapstructure:"emulator_host"`
}

// RAGConfig holds chunking, retrieval and ingestion settings
type RAGConfig struct {
	ChunkSize        int           `mapstructure:"chunk_size"`
	TopK             int           `mapstructure:"top_k"`
	ScoreThreshold   float64       `mapstructure:"score_threshold"`
	HistoryLimit     int           `mapstructure:"history_limit"`
	EmbedConcurrency int           `mapstructure:"embed_concurrency"`
	AutoIngest       bool          `mapstructure:"auto_ingest"`
	IngestTimeout    time.Duration `mapstructure:"ingest_timeout"`
	MaxUploadBytes   int64         `mapstructure:"max_upload_bytes"`
}

// LLMConfig holds LLM provider configuration
type LLMConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	APIKey         string        `mapstructure:"api_key"`
	EmbeddingModel string        `mapstructure:"embedding_model"`
	LLMModel       string        `mapstructure:"llm_model"`
	Temperature    float64       `mapstructure:"temperature"`
	MaxTokens      int           `mapstructure:"max_tokens"`
	Timeout        time.Duration `mapstructure:"timeout"`
}

// VectorConfig selects the vector index
type VectorConfig struct {
	Provider        string         `mapstructure:"provider"`
	Namespace       string         `mapstructure:"namespace"`
	UpsertBatchSize int            `mapstructure:"upsert_batch_size"`
	Pinecone        PineconeConfig `mapstructure:"pinecone"`
	PGVector        PGVectorConfig `mapstructure:"pgvector"`
}

// PineconeConfig holds Pinecone settings
type PineconeConfig struct {
	APIKey     string        `mapstructure:"api_key"`
	IndexName  string        `mapstructure:"index_name"`
	IndexHost  string        `mapstructure:"index_host"`
	BaseURL    string        `mapstructure:"base_url"`
	APIVersion string        `mapstructure:"api_version"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

// PGVectorConfig holds PostgreSQL pgvector settings
type PGVectorConfig struct {
	DSN       string `mapstructure:"dsn"`
	Table     string `mapstructure:"table"`
	Dimension int    `mapstructure:"dimension"`
}

// RetryConfig holds per-dependency retry policies
type RetryConfig struct {
	Embedding  RetryPolicy `mapstructure:"embedding"`
	Index      RetryPolicy `mapstructure:"index"`
	Completion RetryPolicy `mapstructure:"completion"`
}

// RetryPolicy mirrors retry.Policy
type RetryPolicy struct {
	MaxAttempts     int           `mapstructure:"max_attempts"`
	InitialInterval time.Duration `mapstructure:"initial_interval"`
	MaxInterval     time.Duration `mapstructure:"max_interval"`
}

// RateLimitConfig holds outbound rate limiting configuration
type RateLimitConfig struct {
	EmbeddingsPerSecond float64 `mapstructure:"embeddings_per_second"`
	EmbeddingsBurst     int     `mapstructure:"embeddings_burst"`
}

// DelegationConfig holds workflow webhook URLs. Empty means local processing.
type DelegationConfig struct {
	ChatURL   string        `mapstructure:"chat_url"`
	IngestURL string        `mapstructure:"ingest_url"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

// Load loads configuration from file and environment
func Load(configPath string) (*Config, *Live, error) {
	v := viper.New()

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	fileLoaded := true
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, nil, fmt.Errorf("failed to read config: %w", err)
		}
		fileLoaded = false
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}

	return &cfg, newLive(v, fileLoaded), nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.base_url", "http://localhost:8080")
	v.SetDefault("server.allow_origins", []string{"*"})

	v.SetDefault("admin.api_key", "")
	v.SetDefault("log.mode", "production")

	v.SetDefault("database.path", "./data/docchat.db")

	v.SetDefault("storage.driver", "local")
	v.SetDefault("storage.documents", "./data/documents")
	v.SetDefault("storage.bucket", "")
	v.SetDefault("storage.credentials_file", "")
	v.SetDefault("storage.emulator_host", "")

	v.SetDefault("rag.chunk_size", 1000)
	v.SetDefault("rag.top_k", 5)
	v.SetDefault("rag.score_threshold", 0.7)
	v.SetDefault("rag.history_limit", 10)
	v.SetDefault("rag.embed_concurrency", 4)
	v.SetDefault("rag.auto_ingest", true)
	v.SetDefault("rag.ingest_timeout", 10*time.Minute)
	v.SetDefault("rag.max_upload_bytes", int64(20<<20))

	v.SetDefault("llm.base_url", "https://api.openai.com/v1")
	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.embedding_model", "text-embedding-3-small")
	v.SetDefault("llm.llm_model", "gpt-4-turbo-preview")
	v.SetDefault("llm.temperature", 0.7)
	v.SetDefault("llm.max_tokens", 1000)
	v.SetDefault("llm.timeout", 60*time.Second)

	v.SetDefault("vector.provider", "pinecone")
	v.SetDefault("vector.namespace", "")
	v.SetDefault("vector.upsert_batch_size", 100)
	v.SetDefault("vector.pinecone.api_key", "")
	v.SetDefault("vector.pinecone.index_name", "")
	v.SetDefault("vector.pinecone.index_host", "")
	v.SetDefault("vector.pinecone.base_url", "https://api.pinecone.io")
	v.SetDefault("vector.pinecone.api_version", "2025-10")
	v.SetDefault("vector.pinecone.timeout", 30*time.Second)
	v.SetDefault("vector.pgvector.dsn", "")
	v.SetDefault("vector.pgvector.table", "vector_entries")
	v.SetDefault("vector.pgvector.dimension", 1536)

	v.SetDefault("retry.embedding.max_attempts", 3)
	v.SetDefault("retry.embedding.initial_interval", 500*time.Millisecond)
	v.SetDefault("retry.embedding.max_interval", 5*time.Second)
	v.SetDefault("retry.index.max_attempts", 3)
	v.SetDefault("retry.index.initial_interval", 500*time.Millisecond)
	v.SetDefault("retry.index.max_interval", 5*time.Second)
	v.SetDefault("retry.completion.max_attempts", 1)
	v.SetDefault("retry.completion.initial_interval", time.Second)
	v.SetDefault("retry.completion.max_interval", 5*time.Second)

	v.SetDefault("rate_limit.embeddings_per_second", 0)
	v.SetDefault("rate_limit.embeddings_burst", 1)

	v.SetDefault("delegation.chat_url", "")
	v.SetDefault("delegation.ingest_url", "")
	v.SetDefault("delegation.timeout", 60*time.Second)
}

// Validate rejects values that would break retrieval semantics.
func (c *Config) Validate() error {
	switch {
	case c.RAG.ChunkSize <= 0:
		return fmt.Errorf("rag.chunk_size must be positive")
	case c.RAG.TopK <= 0:
		return fmt.Errorf("rag.top_k must be positive")
	case c.RAG.ScoreThreshold < -1 || c.RAG.ScoreThreshold > 1:
		return fmt.Errorf("rag.score_threshold must be within [-1, 1]")
	case c.RAG.HistoryLimit < 0:
		return fmt.Errorf("rag.history_limit must not be negative")
	case c.RAG.EmbedConcurrency <= 0:
		return fmt.Errorf("rag.embed_concurrency must be positive")
	case c.LLM.Temperature < 0 || c.LLM.Temperature > 2:
		return fmt.Errorf("llm.temperature must be within [0, 2]")
	}
	return nil
}

// Address returns the server address
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}
