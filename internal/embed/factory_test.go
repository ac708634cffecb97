package embed

import (
	"testing"
	"time"
)

func TestNewProvider_DefaultsToOllama(t *testing.T) {
	provider, err := NewProvider(Settings{})
	if err != nil {
		t.Fatalf("NewProvider failed: %v", err)
	}
	if _, ok := provider.(*OllamaProvider); !ok {
		t.Errorf("Expected *OllamaProvider, got %T", provider)
	}
	if provider.Identity() != "ollama/nomic-embed-text" {
		t.Errorf("Expected default identity ollama/nomic-embed-text, got %s", provider.Identity())
	}
}

func TestNewProvider_OpenAI(t *testing.T) {
	provider, err := NewProvider(Settings{
		Provider: "openai",
		Model:    "text-embedding-3-small",
		APIKey:   "test-key",
	})
	if err != nil {
		t.Fatalf("NewProvider failed: %v", err)
	}
	if _, ok := provider.(*OpenAIProvider); !ok {
		t.Errorf("Expected *OpenAIProvider, got %T", provider)
	}
}

func TestNewProvider_Unknown(t *testing.T) {
	if _, err := NewProvider(Settings{Provider: "huggingface"}); err == nil {
		t.Error("Expected error for unknown provider")
	}
}

func TestNewProvider_WithCache(t *testing.T) {
	provider, err := NewProvider(Settings{CacheSize: 10, CacheTTL: time.Minute})
	if err != nil {
		t.Fatalf("NewProvider failed: %v", err)
	}
	if _, ok := provider.(*CachedProvider); !ok {
		t.Errorf("Expected *CachedProvider, got %T", provider)
	}
}
