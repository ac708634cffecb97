package embed

import (
	"fmt"
	"strings"
	"time"
)

// Settings selects and configures an embedding provider.
type Settings struct {
	// Provider is "ollama" or "openai". Empty defaults to ollama.
	Provider string
	// Model is the embedding model name. Empty uses the provider default.
	Model string
	// Dimensions overrides the model's embedding dimension when non-zero.
	Dimensions int
	// BaseURL overrides the provider endpoint when non-empty.
	BaseURL string
	// APIKey is used by providers that require authentication.
	APIKey string
	// CacheSize enables an in-memory embedding cache when positive.
	CacheSize int
	// CacheTTL bounds cache entry lifetime; zero means no expiration.
	CacheTTL time.Duration
}

// NewProvider constructs the provider described by s.
func NewProvider(s Settings) (Provider, error) {
	var provider Provider

	switch ProviderType(strings.ToLower(s.Provider)) {
	case "", ProviderOllama:
		provider = NewOllamaProvider(OllamaConfig{
			URL:        s.BaseURL,
			Model:      s.Model,
			Dimensions: s.Dimensions,
		})
	case ProviderOpenAI:
		provider = NewOpenAIProvider(OpenAIConfig{
			APIKey:     s.APIKey,
			BaseURL:    s.BaseURL,
			Model:      s.Model,
			Dimensions: s.Dimensions,
		})
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", s.Provider)
	}

	if s.CacheSize > 0 {
		provider = WithCacheAndTTL(provider, s.CacheSize, s.CacheTTL)
	}
	return provider, nil
}
