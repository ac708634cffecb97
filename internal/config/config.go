// Package config resolves scriptrag settings from the data-dir config
// file, a project-root scriptrag.yaml override, and SCRIPTRAG_*
// environment variables. The resolved Config is handed to components at
// construction; nothing reads configuration from ambient state after that.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

const (
	// DefaultDataDir is the default directory name for scriptrag data.
	DefaultDataDir = ".scriptrag"
	// DefaultConfigFile is the config filename inside the data directory.
	DefaultConfigFile = "config.yaml"
)

// Config holds the application configuration.
type Config struct {
	// DataDir is the directory where scriptrag stores the persisted index.
	DataDir string `mapstructure:"data_dir" yaml:"data_dir,omitempty"`

	// Embedding configuration
	Embedding EmbeddingConfig `mapstructure:"embedding" yaml:"embedding,omitempty"`

	// Chunking configuration for the index windows
	Chunking ChunkingConfig `mapstructure:"chunking" yaml:"chunking,omitempty"`

	// Retrieval configuration
	Retrieval RetrievalConfig `mapstructure:"retrieval" yaml:"retrieval,omitempty"`

	// LLM configuration for the generation commands
	LLM LLMConfig `mapstructure:"llm" yaml:"llm,omitempty"`

	// Server configuration
	Server ServerConfig `mapstructure:"server" yaml:"server,omitempty"`
}

// EmbeddingConfig holds embedding provider settings.
type EmbeddingConfig struct {
	// Provider is the embedding provider: "ollama" or "openai"
	Provider string `mapstructure:"provider" yaml:"provider,omitempty"`
	// Model is the embedding model name
	Model string `mapstructure:"model" yaml:"model,omitempty"`
	// OllamaURL is the Ollama API URL
	OllamaURL string `mapstructure:"ollama_url" yaml:"ollama_url,omitempty"`
	// Dimensions is the embedding vector dimensions
	Dimensions int `mapstructure:"dimensions" yaml:"dimensions,omitempty"`
	// OpenAIAPIKey is the API key for OpenAI (can also be set via OPENAI_API_KEY or SCRIPTRAG_OPENAI_API_KEY env)
	OpenAIAPIKey string `mapstructure:"openai_api_key" yaml:"openai_api_key,omitempty"`
	// OpenAIBaseURL is the base URL for OpenAI API (can also be set via OPENAI_BASE_URL or SCRIPTRAG_OPENAI_BASE_URL env)
	OpenAIBaseURL string `mapstructure:"openai_base_url" yaml:"openai_base_url,omitempty"`
	// CacheSize enables an in-memory embedding cache when positive
	CacheSize int `mapstructure:"cache_size" yaml:"cache_size,omitempty"`
}

// ChunkingConfig holds the index chunking parameters.
type ChunkingConfig struct {
	// WindowSize is the chunk window in words (or runes in char mode)
	WindowSize int `mapstructure:"window_size" yaml:"window_size,omitempty"`
	// Overlap is how many units consecutive chunks share
	Overlap int `mapstructure:"overlap" yaml:"overlap,omitempty"`
	// Mode is "word" or "char"
	Mode string `mapstructure:"mode" yaml:"mode,omitempty"`
}

// RetrievalConfig holds query-time settings.
type RetrievalConfig struct {
	// TopK is the default number of results per query
	TopK int `mapstructure:"top_k" yaml:"top_k,omitempty"`
	// MaxContextLength bounds the context command's output in characters
	MaxContextLength int `mapstructure:"max_context_length" yaml:"max_context_length,omitempty"`
}

// LLMConfig holds settings for the completion client used by the
// generation commands.
type LLMConfig struct {
	// BaseURL is any OpenAI-compatible chat completion endpoint
	BaseURL string `mapstructure:"base_url" yaml:"base_url,omitempty"`
	// APIKey is the completion API key (can also be set via OPENROUTER_API_KEY env)
	APIKey string `mapstructure:"api_key" yaml:"api_key,omitempty"`
	// Model is the chat model name
	Model string `mapstructure:"model" yaml:"model,omitempty"`
	// Temperature is the sampling temperature
	Temperature float64 `mapstructure:"temperature" yaml:"temperature,omitempty"`
	// MaxTokens caps the completion length
	MaxTokens int `mapstructure:"max_tokens" yaml:"max_tokens,omitempty"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the server bind address
	Host string `mapstructure:"host" yaml:"host,omitempty"`
	// Port is the server port
	Port int `mapstructure:"port" yaml:"port,omitempty"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		DataDir: DefaultDataDir,
		Embedding: EmbeddingConfig{
			Provider:   "ollama",
			Model:      "nomic-embed-text",
			OllamaURL:  "http://localhost:11434",
			Dimensions: 768,
			CacheSize:  1024,
		},
		Chunking: ChunkingConfig{
			WindowSize: 512,
			Overlap:    50,
			Mode:       "word",
		},
		Retrieval: RetrievalConfig{
			TopK:             5,
			MaxContextLength: 2000,
		},
		LLM: LLMConfig{
			BaseURL:     "https://openrouter.ai/api/v1",
			Model:       "x-ai/grok-code-fast-1",
			Temperature: 0.7,
			MaxTokens:   4096,
		},
		Server: ServerConfig{
			Host: "localhost",
			Port: 8080,
		},
	}
}

// Load resolves configuration for a project directory. Resolution order
// (highest to lowest priority):
//  1. Environment variables (SCRIPTRAG_*)
//  2. Project root scriptrag.yaml or scriptrag.yml
//  3. <projectDir>/.scriptrag/config.yaml
//  4. Built-in defaults
func Load(projectDir string) (*Config, error) {
	cfg := DefaultConfig()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(filepath.Join(projectDir, DefaultDataDir))

	v.SetEnvPrefix("SCRIPTRAG")
	v.AutomaticEnv()
	_ = v.BindEnv("embedding.provider", "SCRIPTRAG_EMBEDDING_PROVIDER")
	_ = v.BindEnv("embedding.model", "SCRIPTRAG_EMBEDDING_MODEL")
	_ = v.BindEnv("embedding.ollama_url", "SCRIPTRAG_OLLAMA_URL")
	_ = v.BindEnv("embedding.openai_api_key", "SCRIPTRAG_OPENAI_API_KEY")
	_ = v.BindEnv("embedding.openai_base_url", "SCRIPTRAG_OPENAI_BASE_URL")
	_ = v.BindEnv("llm.base_url", "SCRIPTRAG_LLM_BASE_URL")
	_ = v.BindEnv("llm.api_key", "SCRIPTRAG_LLM_API_KEY")
	_ = v.BindEnv("llm.model", "SCRIPTRAG_LLM_MODEL")
	_ = v.BindEnv("server.host", "SCRIPTRAG_HOST")
	_ = v.BindEnv("server.port", "SCRIPTRAG_PORT")

	// A missing config file is fine; the defaults stand.
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config: %w", err)
		}
	}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("error parsing config: %w", err)
	}

	// Project-root override wins over the data-dir file.
	if overlay := loadProjectFile(projectDir); overlay != nil {
		mergeConfig(cfg, overlay)
	}

	// Environment wins over every file.
	applyEnvironment(cfg)

	cfg.DataDir = ExpandPath(cfg.DataDir)
	if !filepath.IsAbs(cfg.DataDir) && projectDir != "" {
		cfg.DataDir = filepath.Join(projectDir, cfg.DataDir)
	}

	return cfg, nil
}

// EnsureDataDir creates the data directory if it doesn't exist.
func (c *Config) EnsureDataDir() error {
	return os.MkdirAll(c.DataDir, 0755)
}

// WriteDefaultConfig writes the current settings to the data directory's
// config file. An existing file is left untouched.
func (c *Config) WriteDefaultConfig() error {
	configPath := filepath.Join(c.DataDir, DefaultConfigFile)

	// Don't overwrite existing config
	if _, err := os.Stat(configPath); err == nil {
		return nil
	}

	v := viper.New()
	v.Set("embedding.provider", c.Embedding.Provider)
	v.Set("embedding.model", c.Embedding.Model)
	v.Set("embedding.ollama_url", c.Embedding.OllamaURL)
	v.Set("embedding.dimensions", c.Embedding.Dimensions)
	v.Set("embedding.cache_size", c.Embedding.CacheSize)
	v.Set("chunking.window_size", c.Chunking.WindowSize)
	v.Set("chunking.overlap", c.Chunking.Overlap)
	v.Set("chunking.mode", c.Chunking.Mode)
	v.Set("retrieval.top_k", c.Retrieval.TopK)
	v.Set("retrieval.max_context_length", c.Retrieval.MaxContextLength)
	v.Set("llm.base_url", c.LLM.BaseURL)
	v.Set("llm.model", c.LLM.Model)
	v.Set("llm.temperature", c.LLM.Temperature)
	v.Set("llm.max_tokens", c.LLM.MaxTokens)
	v.Set("server.host", c.Server.Host)
	v.Set("server.port", c.Server.Port)

	return v.WriteConfigAs(configPath)
}
