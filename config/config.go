package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the question answering service.
type Config struct {
	Documents  DocumentsConfig  `yaml:"documents"`
	Chunking   ChunkingConfig   `yaml:"chunking"`
	Embedding  EmbeddingConfig  `yaml:"embedding"`
	Generation GenerationConfig `yaml:"generation"`
	Retrieve   RetrieveConfig   `yaml:"retrieve"`
	Server     ServerConfig     `yaml:"server"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// DocumentsConfig describes where the current document set lives.
type DocumentsConfig struct {
	Dir      string   `yaml:"dir"`
	Includes []string `yaml:"includes"`
	Excludes []string `yaml:"excludes"`
}

// ChunkingConfig holds the sliding window parameters, measured in characters.
type ChunkingConfig struct {
	Size    int `yaml:"size"`
	Overlap int `yaml:"overlap"`
}

// EmbeddingConfig holds embedding configuration.
type EmbeddingConfig struct {
	Provider          string        `yaml:"provider"`    // "gemini", "openai", "mock"
	Model             string        `yaml:"model"`       // e.g., "text-embedding-004"
	APIKeyEnv         string        `yaml:"api_key_env"` // Environment variable for API key
	BaseURL           string        `yaml:"base_url"`    // OpenAI-compatible endpoints only
	Dimension         int           `yaml:"dimension"`   // mock provider only
	BatchSize         int           `yaml:"batch_size"`
	Concurrency       int           `yaml:"concurrency"`
	RequestsPerMinute int           `yaml:"requests_per_minute"`
	Timeout           time.Duration `yaml:"timeout"`
	Cache             bool          `yaml:"cache"`
}

// GenerationConfig holds answer generation configuration.
type GenerationConfig struct {
	Provider           string        `yaml:"provider"` // "gemini", "openai", "stub"
	Model              string        `yaml:"model"`
	APIKeyEnv          string        `yaml:"api_key_env"`
	BaseURL            string        `yaml:"base_url"`
	Timeout            time.Duration `yaml:"timeout"`
	ContextTokenBudget int           `yaml:"context_token_budget"`
}

// RetrieveConfig holds retrieval configuration.
type RetrieveConfig struct {
	TopK      int           `yaml:"top_k"`
	CacheSize int           `yaml:"cache_size"` // 0 disables the retrieval cache
	CacheTTL  time.Duration `yaml:"cache_ttl"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	CORSOrigins     []string      `yaml:"cors_origins"`
	MaxUploadMB     int           `yaml:"max_upload_mb"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "json" or "text"
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Documents: DocumentsConfig{
			Dir:      "docs",
			Includes: []string{"**/*.txt", "**/*.md", "**/*.pdf", "**/*.docx"},
			Excludes: []string{"**/.*", "**/.*/**", "**/~$*"},
		},
		Chunking: ChunkingConfig{
			Size:    1000,
			Overlap: 200,
		},
		Embedding: EmbeddingConfig{
			Provider:          "gemini",
			Model:             "text-embedding-004",
			APIKeyEnv:         "GOOGLE_API_KEY",
			Dimension:         768,
			BatchSize:         100,
			Concurrency:       4,
			RequestsPerMinute: 1500,
			Timeout:           30 * time.Second,
			Cache:             true,
		},
		Generation: GenerationConfig{
			Provider:           "gemini",
			Model:              "gemini-2.0-flash",
			APIKeyEnv:          "GOOGLE_API_KEY",
			Timeout:            60 * time.Second,
			ContextTokenBudget: 4000,
		},
		Retrieve: RetrieveConfig{
			TopK:      3,
			CacheSize: 0,
			CacheTTL:  5 * time.Minute,
		},
		Server: ServerConfig{
			Addr:            ":8000",
			CORSOrigins:     []string{"http://localhost:5173"},
			MaxUploadMB:     32,
			ShutdownTimeout: 10 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load loads configuration from a YAML file and applies environment overrides.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnv()
			return cfg, nil // Return defaults if no config file
		}
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	cfg.applyEnv()
	return cfg, nil
}

// LoadFromDir loads configuration from a directory (looks for ragqa.yaml).
// A .env file in the directory is loaded into the environment first.
func LoadFromDir(dir string) (*Config, error) {
	LoadDotEnv(dir)

	path := filepath.Join(dir, "ragqa.yaml")
	if _, err := os.Stat(path); err == nil {
		return Load(path)
	}

	path = filepath.Join(dir, ".ragqa", "config.yaml")
	if _, err := os.Stat(path); err == nil {
		return Load(path)
	}

	cfg := DefaultConfig()
	cfg.applyEnv()
	return cfg, nil
}

// LoadDotEnv loads dir/.env without overriding variables already set.
// A missing file is not an error.
func LoadDotEnv(dir string) {
	_ = godotenv.Load(filepath.Join(dir, ".env"))
}

func (c *Config) applyEnv() {
	if v := os.Getenv("RAGQA_DOCS_DIR"); v != "" {
		c.Documents.Dir = v
	}
	if v := os.Getenv("RAGQA_ADDR"); v != "" {
		c.Server.Addr = v
	}
	if v := os.Getenv("RAGQA_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
}

// Validate checks values that would otherwise break the pipeline at runtime.
func (c *Config) Validate() error {
	var errs []error
	if c.Chunking.Size <= 0 {
		errs = append(errs, fmt.Errorf("chunking.size must be positive, got %d", c.Chunking.Size))
	}
	if c.Chunking.Overlap < 0 || c.Chunking.Overlap >= c.Chunking.Size {
		errs = append(errs, fmt.Errorf("chunking.overlap must be in [0, size), got %d", c.Chunking.Overlap))
	}
	if c.Retrieve.TopK <= 0 {
		errs = append(errs, fmt.Errorf("retrieve.top_k must be positive, got %d", c.Retrieve.TopK))
	}
	if c.Embedding.Concurrency < 0 || c.Embedding.BatchSize < 0 {
		errs = append(errs, errors.New("embedding.concurrency and embedding.batch_size must not be negative"))
	}
	return errors.Join(errs...)
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// DocsDir resolves the documents directory against root.
func (c *Config) DocsDir(root string) string {
	if filepath.IsAbs(c.Documents.Dir) {
		return c.Documents.Dir
	}
	return filepath.Join(root, c.Documents.Dir)
}

// CachePath returns the path to the embedding cache database.
func CachePath(dir string) string {
	return filepath.Join(dir, ".ragqa", "embeddings.db")
}

// EnsureStateDir ensures the .ragqa directory exists.
func EnsureStateDir(dir string) error {
	return os.MkdirAll(filepath.Join(dir, ".ragqa"), 0755)
}
