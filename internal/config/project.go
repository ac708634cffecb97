package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Project-root override file names, checked in this order.
const (
	ProjectConfigFile    = "scriptrag.yaml"
	ProjectConfigFileAlt = "scriptrag.yml"
)

// loadProjectFile reads the project-root override file if one exists.
// A file that exists but does not parse is reported on stderr and skipped
// rather than failing the whole load.
func loadProjectFile(projectDir string) *Config {
	if projectDir == "" {
		return nil
	}

	yamlPath := filepath.Join(projectDir, ProjectConfigFile)
	ymlPath := filepath.Join(projectDir, ProjectConfigFileAlt)

	path := yamlPath
	if !fileExists(yamlPath) {
		if !fileExists(ymlPath) {
			return nil
		}
		path = ymlPath
	} else if fileExists(ymlPath) {
		fmt.Fprintf(os.Stderr, "Warning: both %s and %s exist; using %s\n",
			ProjectConfigFile, ProjectConfigFileAlt, ProjectConfigFile)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: ignoring %s: %v\n", path, err)
		return nil
	}
	return &cfg
}

// mergeConfig merges src into dst; non-zero values in src win.
func mergeConfig(dst, src *Config) {
	if src.DataDir != "" {
		dst.DataDir = src.DataDir
	}
	mergeEmbeddingConfig(&dst.Embedding, &src.Embedding)
	mergeChunkingConfig(&dst.Chunking, &src.Chunking)
	mergeRetrievalConfig(&dst.Retrieval, &src.Retrieval)
	mergeLLMConfig(&dst.LLM, &src.LLM)
	mergeServerConfig(&dst.Server, &src.Server)
}

func mergeEmbeddingConfig(dst, src *EmbeddingConfig) {
	if src.Provider != "" {
		dst.Provider = src.Provider
	}
	if src.Model != "" {
		dst.Model = src.Model
	}
	if src.OllamaURL != "" {
		dst.OllamaURL = src.OllamaURL
	}
	if src.Dimensions != 0 {
		dst.Dimensions = src.Dimensions
	}
	if src.OpenAIAPIKey != "" {
		dst.OpenAIAPIKey = src.OpenAIAPIKey
	}
	if src.OpenAIBaseURL != "" {
		dst.OpenAIBaseURL = src.OpenAIBaseURL
	}
	if src.CacheSize != 0 {
		dst.CacheSize = src.CacheSize
	}
}

func mergeChunkingConfig(dst, src *ChunkingConfig) {
	if src.WindowSize != 0 {
		dst.WindowSize = src.WindowSize
	}
	if src.Overlap != 0 {
		dst.Overlap = src.Overlap
	}
	if src.Mode != "" {
		dst.Mode = src.Mode
	}
}

func mergeRetrievalConfig(dst, src *RetrievalConfig) {
	if src.TopK != 0 {
		dst.TopK = src.TopK
	}
	if src.MaxContextLength != 0 {
		dst.MaxContextLength = src.MaxContextLength
	}
}

func mergeLLMConfig(dst, src *LLMConfig) {
	if src.BaseURL != "" {
		dst.BaseURL = src.BaseURL
	}
	if src.APIKey != "" {
		dst.APIKey = src.APIKey
	}
	if src.Model != "" {
		dst.Model = src.Model
	}
	if src.Temperature != 0 {
		dst.Temperature = src.Temperature
	}
	if src.MaxTokens != 0 {
		dst.MaxTokens = src.MaxTokens
	}
}

func mergeServerConfig(dst, src *ServerConfig) {
	if src.Host != "" {
		dst.Host = src.Host
	}
	if src.Port != 0 {
		dst.Port = src.Port
	}
}

// applyEnvironment applies SCRIPTRAG_* environment variables, plus the
// standard OPENAI_*/OPENROUTER_* keys as fallbacks for credentials.
func applyEnvironment(cfg *Config) {
	if val := os.Getenv("SCRIPTRAG_DATA_DIR"); val != "" {
		cfg.DataDir = val
	}

	if val := os.Getenv("SCRIPTRAG_EMBEDDING_PROVIDER"); val != "" {
		cfg.Embedding.Provider = val
	}
	if val := os.Getenv("SCRIPTRAG_EMBEDDING_MODEL"); val != "" {
		cfg.Embedding.Model = val
	}
	if val := os.Getenv("SCRIPTRAG_OLLAMA_URL"); val != "" {
		cfg.Embedding.OllamaURL = val
	}
	if val := os.Getenv("SCRIPTRAG_EMBEDDING_DIMENSIONS"); val != "" {
		if dim, err := strconv.Atoi(val); err == nil {
			cfg.Embedding.Dimensions = dim
		}
	}
	if val := os.Getenv("SCRIPTRAG_OPENAI_API_KEY"); val != "" {
		cfg.Embedding.OpenAIAPIKey = val
	} else if val := os.Getenv("OPENAI_API_KEY"); val != "" {
		cfg.Embedding.OpenAIAPIKey = val
	}
	if val := os.Getenv("SCRIPTRAG_OPENAI_BASE_URL"); val != "" {
		cfg.Embedding.OpenAIBaseURL = val
	} else if val := os.Getenv("OPENAI_BASE_URL"); val != "" {
		cfg.Embedding.OpenAIBaseURL = val
	}

	if val := os.Getenv("SCRIPTRAG_CHUNK_SIZE"); val != "" {
		if size, err := strconv.Atoi(val); err == nil {
			cfg.Chunking.WindowSize = size
		}
	}
	if val := os.Getenv("SCRIPTRAG_CHUNK_OVERLAP"); val != "" {
		if overlap, err := strconv.Atoi(val); err == nil {
			cfg.Chunking.Overlap = overlap
		}
	}

	if val := os.Getenv("SCRIPTRAG_LLM_BASE_URL"); val != "" {
		cfg.LLM.BaseURL = val
	}
	if val := os.Getenv("SCRIPTRAG_LLM_MODEL"); val != "" {
		cfg.LLM.Model = val
	}
	if val := os.Getenv("SCRIPTRAG_LLM_API_KEY"); val != "" {
		cfg.LLM.APIKey = val
	} else if val := os.Getenv("OPENROUTER_API_KEY"); val != "" {
		cfg.LLM.APIKey = val
	}

	if val := os.Getenv("SCRIPTRAG_HOST"); val != "" {
		cfg.Server.Host = val
	}
	if val := os.Getenv("SCRIPTRAG_PORT"); val != "" {
		if port, err := strconv.Atoi(val); err == nil {
			cfg.Server.Port = port
		}
	}
}

// ExpandPath expands a leading ~ to the user's home directory.
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	if path == "~" {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return home
	}
	return path
}

// FindProjectRoot walks up from the working directory looking for a
// scriptrag marker: scriptrag.yaml, scriptrag.yml, or a .scriptrag data
// directory. When no marker exists the working directory itself is the
// root, so commands work without an init step.
func FindProjectRoot() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}
	return FindProjectRootFrom(dir), nil
}

// FindProjectRootFrom walks up from startDir; see FindProjectRoot.
func FindProjectRootFrom(startDir string) string {
	dir := startDir

	for {
		if fileExists(filepath.Join(dir, ProjectConfigFile)) ||
			fileExists(filepath.Join(dir, ProjectConfigFileAlt)) {
			return dir
		}
		if info, err := os.Stat(filepath.Join(dir, DefaultDataDir)); err == nil && info.IsDir() {
			return dir
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return startDir
		}
		dir = parent
	}
}

// fileExists reports whether path is an existing regular file.
func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}
