package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// OpenAIConfig holds connection settings for an OpenAI-compatible endpoint.
// Ollama is reached by pointing BaseURL at its /v1 path.
type OpenAIConfig struct {
	BaseURL     string  `yaml:"base_url"`
	APIKeyEnv   string  `yaml:"api_key_env"`
	Model       string  `yaml:"model"`
	TimeoutSecs int     `yaml:"timeout_secs"`
	BatchSize   int     `yaml:"batch_size,omitempty"`
	Dimensions  int     `yaml:"dimensions,omitempty"`
	MaxRetries  int     `yaml:"max_retries,omitempty"`
	Temperature float32 `yaml:"temperature,omitempty"`
}

// APIKey resolves the key from the configured environment variable.
func (c *OpenAIConfig) APIKey() string {
	if c == nil || c.APIKeyEnv == "" {
		return ""
	}
	return os.Getenv(c.APIKeyEnv)
}

// EmbedderConfig selects and configures the text embedder implementation.
type EmbedderConfig struct {
	Type      string        `yaml:"type"`
	Dimension int           `yaml:"dimension,omitempty"`
	OpenAI    *OpenAIConfig `yaml:"openai,omitempty"`
}

// GeneratorConfig selects and configures the answer generator.
type GeneratorConfig struct {
	Type         string        `yaml:"type"`
	MaxSentences int           `yaml:"max_sentences,omitempty"`
	OpenAI       *OpenAIConfig `yaml:"openai,omitempty"`
}

// ChunkerConfig configures how documents are split into chunks.
type ChunkerConfig struct {
	Type              string `yaml:"type"`
	ChunkSize         int    `yaml:"chunk_size"`
	Overlap           int    `yaml:"overlap"`
	SentencesPerChunk int    `yaml:"sentences_per_chunk,omitempty"`
	OverlapSentences  int    `yaml:"overlap_sentences,omitempty"`
}

// IndexConfig locates tenant index snapshots.
type IndexConfig struct {
	Dir string `yaml:"dir"`
}

// RetrievalConfig holds the retrieval cascade parameters.
type RetrievalConfig struct {
	TopK                int               `yaml:"top_k"`
	SimilarityThreshold float64           `yaml:"similarity_threshold"`
	ConfidenceThreshold float64           `yaml:"confidence_threshold"`
	NormalizePhrases    map[string]string `yaml:"normalize_phrases,omitempty"`
}

// AnswerConfig configures refusal detection.
type AnswerConfig struct {
	RefusalPolicy  string   `yaml:"refusal_policy"`
	RefusalPhrases []string `yaml:"refusal_phrases,omitempty"`
}

// IngestConfig configures the background ingestion queue.
type IngestConfig struct {
	Workers   int      `yaml:"workers"`
	QueueSize int      `yaml:"queue_size"`
	Patterns  []string `yaml:"patterns,omitempty"`
}

// EvalConfig configures the evaluation harness.
type EvalConfig struct {
	Concurrency int    `yaml:"concurrency"`
	Dataset     string `yaml:"dataset,omitempty"`
}

// LoggingConfig configures the slog handler.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// AppConfig is the root application configuration structure.
type AppConfig struct {
	Tenant    string          `yaml:"tenant"`
	Embedder  EmbedderConfig  `yaml:"embedder"`
	Generator GeneratorConfig `yaml:"generator"`
	Chunker   ChunkerConfig   `yaml:"chunker"`
	Index     IndexConfig     `yaml:"index"`
	Retrieval RetrievalConfig `yaml:"retrieval"`
	Answer    AnswerConfig    `yaml:"answer"`
	Ingest    IngestConfig    `yaml:"ingest"`
	Eval      EvalConfig      `yaml:"eval"`
	Logging   LoggingConfig   `yaml:"logging"`
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
	// keys absent from the file keep their defaults; an explicit zero is kept
	cfg := defaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	applyConfigDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// LoadDefault tries ./config.yaml first, then ~/.config/docrag/config.yaml.
// If neither exists, it writes defaults to ~/.config/docrag/config.yaml and returns them.
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

// Validate rejects settings the pipelines cannot run with.
func (c *AppConfig) Validate() error {
	switch c.Embedder.Type {
	case "hashing", "openai":
	default:
		return fmt.Errorf("unknown embedder type %q", c.Embedder.Type)
	}
	switch c.Generator.Type {
	case "extractive", "openai":
	default:
		return fmt.Errorf("unknown generator type %q", c.Generator.Type)
	}
	switch c.Chunker.Type {
	case "window":
		if c.Chunker.ChunkSize <= 0 || c.Chunker.Overlap < 0 || c.Chunker.Overlap >= c.Chunker.ChunkSize {
			return fmt.Errorf("chunker: overlap %d must be in [0, chunk_size %d)", c.Chunker.Overlap, c.Chunker.ChunkSize)
		}
	case "sentence":
	default:
		return fmt.Errorf("unknown chunker type %q", c.Chunker.Type)
	}
	switch c.Answer.RefusalPolicy {
	case "prefix", "contains":
	default:
		return fmt.Errorf("unknown refusal policy %q", c.Answer.RefusalPolicy)
	}
	return nil
}

func defaultUserConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "docrag", "config.yaml"), nil
}

func defaultIndexDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join("data", "indexes")
	}
	return filepath.Join(home, ".local", "share", "docrag", "indexes")
}

func defaultConfig() *AppConfig {
	cfg := &AppConfig{
		Tenant:    "default",
		Embedder:  EmbedderConfig{Type: "hashing", Dimension: 512},
		Generator: GeneratorConfig{Type: "extractive", MaxSentences: 3},
		Chunker:   ChunkerConfig{Type: "window", ChunkSize: 500, Overlap: 100, SentencesPerChunk: 5, OverlapSentences: 1},
		Index:     IndexConfig{Dir: defaultIndexDir()},
		Retrieval: RetrievalConfig{TopK: 5, SimilarityThreshold: 0.15, ConfidenceThreshold: 0.3},
		Answer:    AnswerConfig{RefusalPolicy: "prefix"},
		Ingest:    IngestConfig{Workers: 2, QueueSize: 64},
		Eval:      EvalConfig{Concurrency: 4},
		Logging:   LoggingConfig{Level: "info", Format: "text"},
	}
	return cfg
}

func applyConfigDefaults(cfg *AppConfig) {
	def := defaultConfig()
	if cfg.Tenant == "" {
		cfg.Tenant = def.Tenant
	}
	if cfg.Embedder.Type == "" {
		cfg.Embedder.Type = def.Embedder.Type
	}
	if cfg.Embedder.Dimension == 0 && cfg.Embedder.Type == "hashing" {
		cfg.Embedder.Dimension = def.Embedder.Dimension
	}
	if cfg.Embedder.Type == "openai" {
		if cfg.Embedder.OpenAI == nil {
			cfg.Embedder.OpenAI = &OpenAIConfig{}
		}
		applyOpenAIDefaults(cfg.Embedder.OpenAI, "text-embedding-3-small")
		if cfg.Embedder.OpenAI.BatchSize == 0 {
			cfg.Embedder.OpenAI.BatchSize = 32
		}
	}
	if cfg.Generator.Type == "" {
		cfg.Generator.Type = def.Generator.Type
	}
	if cfg.Generator.MaxSentences == 0 {
		cfg.Generator.MaxSentences = def.Generator.MaxSentences
	}
	if cfg.Generator.Type == "openai" {
		if cfg.Generator.OpenAI == nil {
			cfg.Generator.OpenAI = &OpenAIConfig{}
		}
		applyOpenAIDefaults(cfg.Generator.OpenAI, "gpt-4o-mini")
	}
	if cfg.Chunker.Type == "" {
		cfg.Chunker.Type = def.Chunker.Type
	}
	if cfg.Chunker.ChunkSize == 0 {
		cfg.Chunker.ChunkSize = def.Chunker.ChunkSize
		if cfg.Chunker.Overlap == 0 {
			cfg.Chunker.Overlap = def.Chunker.Overlap
		}
	}
	if cfg.Chunker.SentencesPerChunk == 0 {
		cfg.Chunker.SentencesPerChunk = 5
	}
	if cfg.Index.Dir == "" {
		cfg.Index.Dir = def.Index.Dir
	}
	if cfg.Retrieval.TopK == 0 {
		cfg.Retrieval.TopK = def.Retrieval.TopK
	}
	if cfg.Answer.RefusalPolicy == "" {
		cfg.Answer.RefusalPolicy = def.Answer.RefusalPolicy
	}
	if cfg.Ingest.Workers == 0 {
		cfg.Ingest.Workers = def.Ingest.Workers
	}
	if cfg.Ingest.QueueSize == 0 {
		cfg.Ingest.QueueSize = def.Ingest.QueueSize
	}
	if cfg.Eval.Concurrency == 0 {
		cfg.Eval.Concurrency = def.Eval.Concurrency
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = def.Logging.Level
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = def.Logging.Format
	}
}

func applyOpenAIDefaults(c *OpenAIConfig, model string) {
	if c.BaseURL == "" {
		c.BaseURL = "https://api.openai.com/v1"
	}
	if c.APIKeyEnv == "" {
		c.APIKeyEnv = "OPENAI_API_KEY"
	}
	if c.Model == "" {
		c.Model = model
	}
	if c.TimeoutSecs == 0 {
		c.TimeoutSecs = 30
	}
}
