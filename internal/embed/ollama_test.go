package embed

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestNewOllamaProvider_Defaults(t *testing.T) {
	provider := NewOllamaProvider(OllamaConfig{})

	if provider.config.URL != defaultOllamaURL {
		t.Errorf("Expected URL %s, got %s", defaultOllamaURL, provider.config.URL)
	}
	if provider.config.Model != defaultOllamaModel {
		t.Errorf("Expected model %s, got %s", defaultOllamaModel, provider.config.Model)
	}
	if provider.config.Dimensions != defaultOllamaDims {
		t.Errorf("Expected dimensions %d, got %d", defaultOllamaDims, provider.config.Dimensions)
	}
}

func TestOllamaProvider_EmbedBatch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/embed" {
			t.Errorf("Expected /api/embed, got %s", r.URL.Path)
		}

		var req ollamaEmbedRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("Failed to decode request: %v", err)
		}
		if req.Model != "nomic-embed-text" {
			t.Errorf("Expected model nomic-embed-text, got %s", req.Model)
		}

		embeddings := make([][]float32, len(req.Input))
		for i := range embeddings {
			embeddings[i] = make([]float32, 4)
			embeddings[i][0] = float32(i)
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(ollamaEmbedResponse{Model: req.Model, Embeddings: embeddings})
	}))
	defer server.Close()

	provider := NewOllamaProvider(OllamaConfig{URL: server.URL, Dimensions: 4})

	embeddings, err := provider.EmbedBatch(context.Background(), []string{"alpha", "beta", "gamma"})
	if err != nil {
		t.Fatalf("EmbedBatch failed: %v", err)
	}
	if len(embeddings) != 3 {
		t.Fatalf("Expected 3 embeddings, got %d", len(embeddings))
	}
	for i, emb := range embeddings {
		if emb[0] != float32(i) {
			t.Errorf("Embedding %d out of order: got leading value %f", i, emb[0])
		}
	}
}

func TestOllamaProvider_EmbedEmptyText(t *testing.T) {
	provider := NewOllamaProvider(OllamaConfig{})

	if _, err := provider.Embed(context.Background(), ""); !errors.Is(err, ErrEmptyText) {
		t.Errorf("Expected ErrEmptyText, got %v", err)
	}
	if _, err := provider.EmbedBatch(context.Background(), []string{"ok", ""}); !errors.Is(err, ErrEmptyText) {
		t.Errorf("Expected ErrEmptyText for batch with empty entry, got %v", err)
	}
}

func TestOllamaProvider_DimensionMismatch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(ollamaEmbedResponse{
			Model:      "nomic-embed-text",
			Embeddings: [][]float32{{1, 2}},
		})
	}))
	defer server.Close()

	provider := NewOllamaProvider(OllamaConfig{
		URL:           server.URL,
		Dimensions:    4,
		RetryInterval: time.Millisecond,
	})

	_, err := provider.Embed(context.Background(), "text")
	if !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("Expected ErrDimensionMismatch, got %v", err)
	}
}

func TestOllamaProvider_ModelNotFoundDoesNotRetry(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error":"model 'missing-model' not found"}`))
	}))
	defer server.Close()

	provider := NewOllamaProvider(OllamaConfig{
		URL:           server.URL,
		Model:         "missing-model",
		RetryInterval: time.Millisecond,
	})

	_, err := provider.Embed(context.Background(), "text")
	if !errors.Is(err, ErrModelNotFound) {
		t.Errorf("Expected ErrModelNotFound, got %v", err)
	}
	if attempts != 1 {
		t.Errorf("Expected 1 attempt for missing model, got %d", attempts)
	}
}

func TestOllamaProvider_RetriesTransientFailure(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(ollamaEmbedResponse{
			Model:      "nomic-embed-text",
			Embeddings: [][]float32{{1, 2, 3, 4}},
		})
	}))
	defer server.Close()

	provider := NewOllamaProvider(OllamaConfig{
		URL:           server.URL,
		Dimensions:    4,
		RetryInterval: time.Millisecond,
	})

	embedding, err := provider.Embed(context.Background(), "text")
	if err != nil {
		t.Fatalf("Embed failed after retries: %v", err)
	}
	if attempts != 3 {
		t.Errorf("Expected 3 attempts, got %d", attempts)
	}
	if len(embedding) != 4 {
		t.Errorf("Expected 4 dimensions, got %d", len(embedding))
	}
}

func TestOllamaProvider_Ping(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/tags":
			w.Write([]byte(`{"models":[]}`))
		case "/api/show":
			w.Write([]byte(`{"modelfile":""}`))
		default:
			t.Errorf("Unexpected path %s", r.URL.Path)
		}
	}))
	defer server.Close()

	provider := NewOllamaProvider(OllamaConfig{URL: server.URL})
	if err := provider.Ping(context.Background()); err != nil {
		t.Errorf("Ping failed: %v", err)
	}
}

func TestOllamaProvider_PingUnavailable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close()

	provider := NewOllamaProvider(OllamaConfig{URL: server.URL})
	err := provider.Ping(context.Background())
	if !errors.Is(err, ErrProviderUnavailable) {
		t.Errorf("Expected ErrProviderUnavailable, got %v", err)
	}
}

func TestOllamaProvider_Identity(t *testing.T) {
	provider := NewOllamaProvider(OllamaConfig{Model: "mxbai-embed-large"})

	if provider.Identity() != "ollama/mxbai-embed-large" {
		t.Errorf("Expected identity ollama/mxbai-embed-large, got %s", provider.Identity())
	}
}
