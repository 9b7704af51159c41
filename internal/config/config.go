package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// PDFConfig configures layout extraction.
type PDFConfig struct {
	// Preflight runs a relaxed structural validation before extraction.
	Preflight    *bool   `yaml:"preflight"`
	TableMinRows int     `yaml:"table_min_rows"`
	TableMinCols int     `yaml:"table_min_cols"`
	TableMinConf float64 `yaml:"table_min_confidence"`
	// RequireRulings keeps only tables drawn with grid lines. Turning it off
	// also accepts alignment-only tables, which may swallow columned prose.
	RequireRulings *bool `yaml:"require_rulings"`
	TimeoutSecs    int   `yaml:"timeout_secs"`
}

// ChunkerConfig configures token-aware chunking.
type ChunkerConfig struct {
	TokenizerModel string `yaml:"tokenizer_model"`
	ChunkTokens    int    `yaml:"chunk_tokens"`
	OverlapTokens  int    `yaml:"overlap_tokens"`
	TailTokens     *int   `yaml:"tail_tokens"`
}

// OpenAIEmbedderConfig holds configuration for the OpenAI-compatible embedder.
type OpenAIEmbedderConfig struct {
	BaseURL           string  `yaml:"base_url"`
	APIKeyEnv         string  `yaml:"api_key_env"`
	Model             string  `yaml:"model"`
	TimeoutSecs       int     `yaml:"timeout_secs"`
	BatchSize         int     `yaml:"batch_size"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
}

// HashingEmbedderConfig configures the offline feature-hashing embedder.
type HashingEmbedderConfig struct {
	Dimension int `yaml:"dimension"`
}

// EmbedderConfig selects and configures the text embedder implementation.
type EmbedderConfig struct {
	Type    string                 `yaml:"type"`
	OpenAI  *OpenAIEmbedderConfig  `yaml:"openai,omitempty"`
	Hashing *HashingEmbedderConfig `yaml:"hashing,omitempty"`
}

// CacheConfig enables the Redis embedding cache.
type CacheConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Addr        string `yaml:"addr"`
	PasswordEnv string `yaml:"password_env"`
	DB          int    `yaml:"db"`
	TTLHours    int    `yaml:"ttl_hours"`
}

// VectorStoreConfig selects and configures the vector store implementation.
type VectorStoreConfig struct {
	Type       string          `yaml:"type"`
	Collection string          `yaml:"collection"`
	Postgres   *PostgresConfig `yaml:"postgres,omitempty"`
	Qdrant     *QdrantConfig   `yaml:"qdrant,omitempty"`
}

// PostgresConfig contains connection details for the pgvector store.
type PostgresConfig struct {
	DSNEnv      string `yaml:"dsn_env"`
	AutoMigrate bool   `yaml:"auto_migrate"`
	TimeoutSecs int    `yaml:"timeout_secs"`
}

// QdrantConfig contains connection details for a Qdrant vector store.
type QdrantConfig struct {
	URL         string `yaml:"url"`
	APIKeyEnv   string `yaml:"api_key_env"`
	TimeoutSecs int    `yaml:"timeout_secs"`
}

// RetrievalConfig sets the result bound, threshold and distance metric.
type RetrievalConfig struct {
	K         int      `yaml:"k"`
	Threshold *float64 `yaml:"threshold"`
	Metric    string   `yaml:"metric"`
}

// LLMConfig configures the chat model used for answers and evaluation.
type LLMConfig struct {
	BaseURL     string  `yaml:"base_url"`
	APIKeyEnv   string  `yaml:"api_key_env"`
	Model       string  `yaml:"model"`
	Temperature float64 `yaml:"temperature"`
	TimeoutSecs int     `yaml:"timeout_secs"`
}

// LedgerConfig selects where ingestion history lives.
type LedgerConfig struct {
	Type string `yaml:"type"`
	Path string `yaml:"path"`
}

// SummaryConfig controls the per-document extractive summary.
type SummaryConfig struct {
	MaxSentences int `yaml:"max_sentences"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// EvaluationConfig tunes dataset generation and evaluation runs.
type EvaluationConfig struct {
	BlockBudgets []int `yaml:"block_budgets"`
	Concurrency  int   `yaml:"concurrency"`
	Seed         int64 `yaml:"seed"`
}

// LogConfig configures structured logging.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// AppConfig is the root application configuration structure.
type AppConfig struct {
	PDF         PDFConfig         `yaml:"pdf"`
	Chunker     ChunkerConfig     `yaml:"chunker"`
	Embedder    EmbedderConfig    `yaml:"embedder"`
	Cache       CacheConfig       `yaml:"cache"`
	VectorStore VectorStoreConfig `yaml:"vector_store"`
	Retrieval   RetrievalConfig   `yaml:"retrieval"`
	LLM         LLMConfig         `yaml:"llm"`
	Ledger      LedgerConfig      `yaml:"ledger"`
	Summary     SummaryConfig     `yaml:"summary"`
	Server      ServerConfig      `yaml:"server"`
	Evaluation  EvaluationConfig  `yaml:"evaluation"`
	Log         LogConfig         `yaml:"log"`
}

// Load reads a config from a specified path. If the file does not exist, returns defaults.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return defaultConfig(), nil
		}
		return nil, err
	}
	var cfg AppConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	applyConfigDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &cfg, nil
}

// LoadDefault tries ./config.yaml first, then ~/.config/policyrag/config.yaml.
// If neither exists, it writes defaults to the user path and returns them.
func LoadDefault() (*AppConfig, string, error) {
	cwdPath := "config.yaml"
	if _, err := os.Stat(cwdPath); err == nil {
		cfg, err := Load(cwdPath)
		return cfg, cwdPath, err
	}
	userPath, err := defaultUserConfigPath()
	if err != nil {
		return nil, "", err
	}
	if _, err := os.Stat(userPath); err == nil {
		cfg, err := Load(userPath)
		return cfg, userPath, err
	}
	cfg := defaultConfig()
	if err := Save(userPath, cfg); err != nil {
		return nil, "", err
	}
	return cfg, userPath, nil
}

// Save writes the config to the given path, creating directories as needed.
func Save(path string, cfg *AppConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// Validate rejects settings no component can honour.
func (c *AppConfig) Validate() error {
	if c.Chunker.ChunkTokens <= 0 {
		return fmt.Errorf("chunker.chunk_tokens must be positive")
	}
	if c.Chunker.OverlapTokens < 0 || c.Chunker.OverlapTokens >= c.Chunker.ChunkTokens {
		return fmt.Errorf("chunker.overlap_tokens must be in [0, chunk_tokens)")
	}
	if c.Chunker.TailTokens != nil && (*c.Chunker.TailTokens < 0 || *c.Chunker.TailTokens >= c.Chunker.ChunkTokens) {
		return fmt.Errorf("chunker.tail_tokens must be in [0, chunk_tokens)")
	}
	if c.Retrieval.K <= 0 {
		return fmt.Errorf("retrieval.k must be positive")
	}
	if c.Retrieval.Threshold != nil && (*c.Retrieval.Threshold < 0 || *c.Retrieval.Threshold > 1) {
		return fmt.Errorf("retrieval.threshold must be in [0,1]")
	}
	switch c.Retrieval.Metric {
	case "cosine", "l2":
	default:
		return fmt.Errorf("unknown retrieval.metric: %s", c.Retrieval.Metric)
	}
	switch c.Embedder.Type {
	case "openai", "hashing":
	default:
		return fmt.Errorf("unknown embedder: %s", c.Embedder.Type)
	}
	switch c.VectorStore.Type {
	case "memory", "pgvector", "qdrant":
	default:
		return fmt.Errorf("unknown vector store: %s", c.VectorStore.Type)
	}
	switch c.Ledger.Type {
	case "memory", "sqlite":
	default:
		return fmt.Errorf("unknown ledger: %s", c.Ledger.Type)
	}
	return nil
}

func defaultUserConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "policyrag", "config.yaml"), nil
}

func defaultConfig() *AppConfig {
	cfg := &AppConfig{
		Embedder:    EmbedderConfig{Type: "openai", OpenAI: &OpenAIEmbedderConfig{}},
		VectorStore: VectorStoreConfig{Type: "memory"},
		Ledger:      LedgerConfig{Type: "sqlite"},
	}
	applyConfigDefaults(cfg)
	return cfg
}

func ptr[T any](v T) *T { return &v }

// applyConfigDefaults fills unset fields. Pointer fields tell an explicit
// zero or false apart from a missing key.
func applyConfigDefaults(cfg *AppConfig) {
	if cfg.PDF.Preflight == nil {
		cfg.PDF.Preflight = ptr(true)
	}
	if cfg.PDF.RequireRulings == nil {
		cfg.PDF.RequireRulings = ptr(true)
	}
	if cfg.PDF.TableMinRows == 0 {
		cfg.PDF.TableMinRows = 2
	}
	if cfg.PDF.TableMinCols == 0 {
		cfg.PDF.TableMinCols = 2
	}
	if cfg.PDF.TableMinConf == 0 {
		cfg.PDF.TableMinConf = 0.5
	}
	if cfg.PDF.TimeoutSecs == 0 {
		cfg.PDF.TimeoutSecs = 120
	}
	if cfg.Chunker.TokenizerModel == "" {
		cfg.Chunker.TokenizerModel = "text-embedding-3-small"
	}
	if cfg.Chunker.ChunkTokens == 0 {
		cfg.Chunker.ChunkTokens = 1000
	}
	if cfg.Chunker.OverlapTokens == 0 {
		cfg.Chunker.OverlapTokens = 200
	}
	if cfg.Chunker.TailTokens == nil {
		cfg.Chunker.TailTokens = ptr(100)
	}
	if cfg.Embedder.Type == "" {
		cfg.Embedder.Type = "openai"
	}
	if cfg.Embedder.Type == "openai" {
		if cfg.Embedder.OpenAI == nil {
			cfg.Embedder.OpenAI = &OpenAIEmbedderConfig{}
		}
		o := cfg.Embedder.OpenAI
		if o.BaseURL == "" {
			o.BaseURL = "https://api.openai.com/v1"
		}
		if o.APIKeyEnv == "" {
			o.APIKeyEnv = "OPENAI_API_KEY"
		}
		if o.Model == "" {
			o.Model = "text-embedding-3-small"
		}
		if o.TimeoutSecs == 0 {
			o.TimeoutSecs = 30
		}
		if o.BatchSize == 0 {
			o.BatchSize = 64
		}
		if o.RequestsPerSecond == 0 {
			o.RequestsPerSecond = 5
		}
	}
	if cfg.Embedder.Type == "hashing" {
		if cfg.Embedder.Hashing == nil {
			cfg.Embedder.Hashing = &HashingEmbedderConfig{}
		}
		if cfg.Embedder.Hashing.Dimension == 0 {
			cfg.Embedder.Hashing.Dimension = 512
		}
	}
	if cfg.Cache.Addr == "" {
		cfg.Cache.Addr = "localhost:6379"
	}
	if cfg.Cache.TTLHours == 0 {
		cfg.Cache.TTLHours = 24 * 30
	}
	if cfg.VectorStore.Type == "" {
		cfg.VectorStore.Type = "memory"
	}
	if cfg.VectorStore.Collection == "" {
		cfg.VectorStore.Collection = "policy_documents"
	}
	if cfg.VectorStore.Type == "pgvector" {
		if cfg.VectorStore.Postgres == nil {
			cfg.VectorStore.Postgres = &PostgresConfig{AutoMigrate: true}
		}
		if cfg.VectorStore.Postgres.DSNEnv == "" {
			cfg.VectorStore.Postgres.DSNEnv = "PGVECTOR_URL"
		}
		if cfg.VectorStore.Postgres.TimeoutSecs == 0 {
			cfg.VectorStore.Postgres.TimeoutSecs = 15
		}
	}
	if cfg.VectorStore.Type == "qdrant" {
		if cfg.VectorStore.Qdrant == nil {
			cfg.VectorStore.Qdrant = &QdrantConfig{}
		}
		if cfg.VectorStore.Qdrant.URL == "" {
			cfg.VectorStore.Qdrant.URL = "http://localhost:6333"
		}
		if cfg.VectorStore.Qdrant.TimeoutSecs == 0 {
			cfg.VectorStore.Qdrant.TimeoutSecs = 15
		}
	}
	if cfg.Retrieval.K == 0 {
		cfg.Retrieval.K = 8
	}
	if cfg.Retrieval.Threshold == nil {
		cfg.Retrieval.Threshold = ptr(0.40)
	}
	if cfg.Retrieval.Metric == "" {
		cfg.Retrieval.Metric = "cosine"
	}
	if cfg.LLM.BaseURL == "" {
		cfg.LLM.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.LLM.APIKeyEnv == "" {
		cfg.LLM.APIKeyEnv = "OPENAI_API_KEY"
	}
	if cfg.LLM.Model == "" {
		cfg.LLM.Model = "gpt-4o-mini"
	}
	if cfg.LLM.TimeoutSecs == 0 {
		cfg.LLM.TimeoutSecs = 120
	}
	if cfg.Ledger.Type == "" {
		cfg.Ledger.Type = "sqlite"
	}
	if cfg.Ledger.Type == "sqlite" && cfg.Ledger.Path == "" {
		if home, err := os.UserHomeDir(); err == nil {
			cfg.Ledger.Path = filepath.Join(home, ".local", "share", "policyrag", "ledger.db")
		} else {
			cfg.Ledger.Path = "ledger.db"
		}
	}
	if cfg.Summary.MaxSentences == 0 {
		cfg.Summary.MaxSentences = 3
	}
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":8000"
	}
	if len(cfg.Evaluation.BlockBudgets) == 0 {
		cfg.Evaluation.BlockBudgets = []int{15, 10}
	}
	if cfg.Evaluation.Concurrency == 0 {
		cfg.Evaluation.Concurrency = 4
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
}
