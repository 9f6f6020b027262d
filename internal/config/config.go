package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	LLM           LLMConfig           `mapstructure:"llm"`
	Embedding     EmbeddingConfig     `mapstructure:"embedding"`
	Vector        VectorConfig        `mapstructure:"vector"`
	Pipeline      PipelineConfig      `mapstructure:"pipeline"`
	QA            QAConfig            `mapstructure:"qa"`
	Observability ObservabilityConfig `mapstructure:"observability"`
	Log           LogConfig           `mapstructure:"log"`
}

// DefaultServerAPIKey is the out-of-the-box bearer token. Validate warns
// while it is still in place.
const DefaultServerAPIKey = "default_api_key"

// ServerConfig configures the HTTP listener and its bearer auth.
type ServerConfig struct {
	Host   string `mapstructure:"host"`
	Port   int    `mapstructure:"port"`
	APIKey string `mapstructure:"api_key"`
}

// Addr returns the host:port bind address.
func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// LLMConfig configures the completion provider.
type LLMConfig struct {
	Provider   string        `mapstructure:"provider"`
	Model      string        `mapstructure:"model"`
	APIKey     string        `mapstructure:"api_key"`
	BaseURL    string        `mapstructure:"base_url"`
	MaxRetries int           `mapstructure:"max_retries"`
	RetryDelay time.Duration `mapstructure:"retry_delay"`
	Timeout    time.Duration `mapstructure:"timeout"`
	RateLimit  float64       `mapstructure:"rate_limit"`
	Burst      int           `mapstructure:"burst"`
}

// EmbeddingConfig configures the embedding provider. Stored and query
// vectors must come from the same model, so changing this after documents
// are indexed invalidates the index.
type EmbeddingConfig struct {
	Provider string `mapstructure:"provider"`
	Model    string `mapstructure:"model"`
	APIKey   string `mapstructure:"api_key"`
	BaseURL  string `mapstructure:"base_url"`
}

// VectorConfig configures the vector store connection.
type VectorConfig struct {
	Driver         string `mapstructure:"driver"`
	FallbackDriver string `mapstructure:"fallback_driver"`
	URL            string `mapstructure:"url"`
	APIKey         string `mapstructure:"api_key"`
	Collection     string `mapstructure:"collection"`
	Dimension      int    `mapstructure:"dimension"`
	PostgresDSN    string `mapstructure:"postgres_dsn"`
	ExistsPolicy   string `mapstructure:"exists_policy"`
}

// PipelineConfig tunes document ingestion.
type PipelineConfig struct {
	ChunkSize    int           `mapstructure:"chunk_size"`
	ChunkOverlap int           `mapstructure:"chunk_overlap"`
	TopK         int           `mapstructure:"top_k"`
	BatchSize    int           `mapstructure:"batch_size"`
	FetchTimeout time.Duration `mapstructure:"fetch_timeout"`
}

// QAConfig tunes question answering.
type QAConfig struct {
	Concurrency int `mapstructure:"concurrency"`
}

// ObservabilityConfig configures tracing and audit logging.
type ObservabilityConfig struct {
	TracingEnabled bool    `mapstructure:"tracing_enabled"`
	OTLPEndpoint   string  `mapstructure:"otlp_endpoint"`
	SampleRate     float64 `mapstructure:"sample_rate"`
	AuditLog       string  `mapstructure:"audit_log"`
}

// LogConfig configures structured logging.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Validate checks configuration for issues and returns warnings.
func (c *Config) Validate() []string {
	var warnings []string

	// Check for empty API key with active provider (skip "none" provider)
	if c.LLM.Provider != "" && c.LLM.Provider != "none" && c.LLM.APIKey == "" {
		warnings = append(warnings, fmt.Sprintf("LLM provider '%s' is configured but api_key is empty", c.LLM.Provider))
	}
	if c.Embedding.Provider != "" && c.Embedding.Provider != "none" && c.Embedding.APIKey == "" {
		warnings = append(warnings, fmt.Sprintf("embedding provider '%s' is configured but api_key is empty", c.Embedding.Provider))
	}

	if c.Server.APIKey == DefaultServerAPIKey {
		warnings = append(warnings, "server api_key is the insecure default, set DOCQA_SERVER_API_KEY")
	}

	if c.Vector.Dimension <= 0 {
		warnings = append(warnings, fmt.Sprintf("vector dimension %d is not positive", c.Vector.Dimension))
	}
	if c.Vector.FallbackDriver != "" && c.Vector.FallbackDriver == c.Vector.Driver {
		warnings = append(warnings, fmt.Sprintf("vector fallback_driver '%s' equals the primary driver", c.Vector.FallbackDriver))
	}
	if p := c.Vector.ExistsPolicy; p != "" && p != "proceed" && p != "strict" {
		warnings = append(warnings, fmt.Sprintf("unknown exists_policy '%s', expected proceed or strict", p))
	}

	if c.Pipeline.ChunkOverlap >= c.Pipeline.ChunkSize && c.Pipeline.ChunkSize > 0 {
		warnings = append(warnings, fmt.Sprintf("chunk_overlap %d is not smaller than chunk_size %d", c.Pipeline.ChunkOverlap, c.Pipeline.ChunkSize))
	}
	if c.Pipeline.BatchSize <= 0 {
		warnings = append(warnings, fmt.Sprintf("pipeline batch_size %d is not positive, the store default applies", c.Pipeline.BatchSize))
	}

	return warnings
}

// Load reads configuration from an optional file and the environment. An
// empty path skips the file, leaving defaults plus DOCQA_ env overrides.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("DOCQA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.api_key", DefaultServerAPIKey)

	v.SetDefault("llm.provider", "gemini")
	v.SetDefault("llm.model", "gemini-2.0-flash")
	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.base_url", "")
	v.SetDefault("llm.max_retries", 3)
	v.SetDefault("llm.retry_delay", 2*time.Second)
	v.SetDefault("llm.timeout", 30*time.Second)
	v.SetDefault("llm.rate_limit", 0.0)
	v.SetDefault("llm.burst", 1)

	v.SetDefault("embedding.provider", "openai")
	v.SetDefault("embedding.model", "text-embedding-3-small")
	v.SetDefault("embedding.api_key", "")
	v.SetDefault("embedding.base_url", "")

	v.SetDefault("vector.driver", "qdrant")
	v.SetDefault("vector.fallback_driver", "")
	v.SetDefault("vector.url", "localhost:6334")
	v.SetDefault("vector.api_key", "")
	v.SetDefault("vector.collection", "hackrx-documents")
	v.SetDefault("vector.dimension", 1536)
	v.SetDefault("vector.postgres_dsn", "")
	v.SetDefault("vector.exists_policy", "proceed")

	v.SetDefault("pipeline.chunk_size", 1000)
	v.SetDefault("pipeline.chunk_overlap", 200)
	v.SetDefault("pipeline.top_k", 8)
	v.SetDefault("pipeline.batch_size", 100)
	v.SetDefault("pipeline.fetch_timeout", 30*time.Second)

	v.SetDefault("qa.concurrency", 1)

	v.SetDefault("observability.tracing_enabled", false)
	v.SetDefault("observability.otlp_endpoint", "")
	v.SetDefault("observability.sample_rate", 1.0)
	v.SetDefault("observability.audit_log", "")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}
