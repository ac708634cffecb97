package embed

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"
)

// ProviderType represents the type of embedding provider.
type ProviderType string

const (
	// ProviderOllama is the Ollama embedding provider.
	ProviderOllama ProviderType = "ollama"
	// ProviderOpenAI is the OpenAI embedding provider.
	ProviderOpenAI ProviderType = "openai"
)

// DetectedProvider contains information about a detected embedding provider.
type DetectedProvider struct {
	Type        ProviderType
	Available   bool
	URL         string
	Model       string
	Dimensions  int
	Description string
}

// DetectConfig configures provider detection behavior.
type DetectConfig struct {
	// OllamaURL is the URL to check for Ollama.
	OllamaURL string
	// PreferredModel is the preferred embedding model.
	PreferredModel string
	// Timeout is the timeout for provider detection requests.
	Timeout time.Duration
}

// DefaultDetectConfig returns sensible defaults for provider detection.
func DefaultDetectConfig() DetectConfig {
	return DetectConfig{
		OllamaURL:      defaultOllamaURL,
		PreferredModel: defaultOllamaModel,
		Timeout:        5 * time.Second,
	}
}

// DetectProviders scans for available embedding providers.
func DetectProviders(ctx context.Context, cfg DetectConfig) []DetectedProvider {
	var providers []DetectedProvider

	if ollama := detectOllama(ctx, cfg); ollama != nil {
		providers = append(providers, *ollama)
	}
	if openai := detectOpenAI(); openai != nil {
		providers = append(providers, *openai)
	}

	return providers
}

// detectOllama checks if an Ollama server is reachable.
func detectOllama(ctx context.Context, cfg DetectConfig) *DetectedProvider {
	provider := &DetectedProvider{
		Type:        ProviderOllama,
		URL:         cfg.OllamaURL,
		Model:       cfg.PreferredModel,
		Dimensions:  ModelDimensions(cfg.PreferredModel),
		Description: "Local embedding provider using Ollama",
	}
	if provider.Dimensions == 0 {
		provider.Dimensions = defaultOllamaDims
	}
	if host := os.Getenv("OLLAMA_HOST"); host != "" {
		provider.URL = host
	}

	client := &http.Client{Timeout: cfg.Timeout}
	req, err := http.NewRequestWithContext(ctx, "GET", provider.URL+"/api/tags", nil)
	if err != nil {
		return provider
	}
	resp, err := client.Do(req)
	if err != nil {
		return provider
	}
	defer resp.Body.Close()

	provider.Available = resp.StatusCode == http.StatusOK
	return provider
}

// detectOpenAI checks if OpenAI API credentials are configured.
func detectOpenAI() *DetectedProvider {
	cfg := DefaultOpenAIConfig()
	return &DetectedProvider{
		Type:        ProviderOpenAI,
		Available:   cfg.APIKey != "",
		URL:         cfg.BaseURL,
		Model:       cfg.Model,
		Dimensions:  cfg.Dimensions,
		Description: "OpenAI-compatible embedding API",
	}
}

// AutoDetect finds the best available provider, preferring local Ollama
// over cloud providers.
func AutoDetect(ctx context.Context) (Provider, error) {
	return AutoDetectWithConfig(ctx, DefaultDetectConfig())
}

// AutoDetectWithConfig finds the best available provider with custom config.
func AutoDetectWithConfig(ctx context.Context, cfg DetectConfig) (Provider, error) {
	providers := DetectProviders(ctx, cfg)

	for _, p := range providers {
		if p.Type == ProviderOllama && p.Available {
			return NewOllamaProvider(OllamaConfig{
				URL:        p.URL,
				Model:      p.Model,
				Dimensions: p.Dimensions,
			}), nil
		}
	}
	for _, p := range providers {
		if p.Type == ProviderOpenAI && p.Available {
			return NewOpenAIProvider(OpenAIConfig{
				Model:      p.Model,
				Dimensions: p.Dimensions,
			}), nil
		}
	}

	return nil, ErrProviderUnavailable
}

// GetProviderInfo returns human-readable information about detected providers.
func GetProviderInfo(ctx context.Context) string {
	providers := DetectProviders(ctx, DefaultDetectConfig())

	var sb strings.Builder
	sb.WriteString("Detected embedding providers:\n")

	if len(providers) == 0 {
		sb.WriteString("  none\n")
		return sb.String()
	}

	for _, p := range providers {
		status := "unavailable"
		if p.Available {
			status = "available"
		}
		sb.WriteString(fmt.Sprintf("  - %s (%s)\n", p.Type, status))
		sb.WriteString(fmt.Sprintf("    URL: %s\n", p.URL))
		sb.WriteString(fmt.Sprintf("    Model: %s (%d dimensions)\n", p.Model, p.Dimensions))
	}

	return sb.String()
}
