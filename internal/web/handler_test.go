package web

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sakuga-labs/scriptrag/internal/ingest"
	"github.com/sakuga-labs/scriptrag/internal/store"
)

// mockProvider is a deterministic in-memory Provider for handler tests.
type mockProvider struct {
	dims       int
	batchCalls int
}

func (m *mockProvider) vector(text string) []float32 {
	v := make([]float32, m.dims)
	for i := range v {
		v[i] = float32((len(text) + i) % 7)
	}
	return v
}

func (m *mockProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	return m.vector(text), nil
}

func (m *mockProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	m.batchCalls++
	results := make([][]float32, len(texts))
	for i, text := range texts {
		results[i] = m.vector(text)
	}
	return results, nil
}

func (m *mockProvider) Model() string                { return "test-model" }
func (m *mockProvider) Dimensions() int              { return m.dims }
func (m *mockProvider) Identity() string             { return "mock/test-model" }
func (m *mockProvider) Ping(_ context.Context) error { return nil }

func newTestServer(t *testing.T) (*Server, *mockProvider) {
	t.Helper()

	provider := &mockProvider{dims: 4}
	corpus, err := store.Open(store.Options{
		DataDir:          t.TempDir(),
		EmbedderIdentity: provider.Identity(),
		Dimensions:       provider.Dimensions(),
		ChunkWindowSize:  10,
		ChunkOverlap:     2,
	})
	if err != nil {
		t.Fatalf("Open corpus failed: %v", err)
	}

	chunker, err := ingest.NewChunker(ingest.ChunkerConfig{WindowSize: 10, Overlap: 2})
	if err != nil {
		t.Fatalf("NewChunker failed: %v", err)
	}
	ingestor, err := ingest.New(ingest.Options{
		Corpus:   corpus,
		Provider: provider,
		Chunker:  chunker,
	})
	if err != nil {
		t.Fatalf("New ingestor failed: %v", err)
	}

	server := NewServer(ServerConfig{
		Host:     "localhost",
		Port:     0,
		Corpus:   corpus,
		Provider: provider,
		Ingestor: ingestor,
	})
	return server, provider
}

func writeScript(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write script: %v", err)
	}
	return path
}

func doJSON(t *testing.T, server *Server, method, path, body string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()

	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	server.Router().ServeHTTP(rec, req)

	var decoded map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &decoded); err != nil {
		t.Fatalf("Failed to decode response %q: %v", rec.Body.String(), err)
	}
	return rec, decoded
}

func TestHealth(t *testing.T) {
	server, _ := newTestServer(t)

	rec, resp := doJSON(t, server, http.MethodGet, "/api/health", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	if resp["status"] != "ok" {
		t.Errorf("Expected status ok, got %v", resp["status"])
	}
	if _, ok := resp["version"]; !ok {
		t.Error("Expected version in health response")
	}
}

func TestInfo(t *testing.T) {
	server, _ := newTestServer(t)

	rec, resp := doJSON(t, server, http.MethodGet, "/api/info", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	if resp["num_vectors"] != float64(0) {
		t.Errorf("Expected 0 vectors, got %v", resp["num_vectors"])
	}
	if resp["embedding_model"] != "test-model" {
		t.Errorf("Expected embedding_model test-model, got %v", resp["embedding_model"])
	}
}

func TestQuery_EmptyIndex(t *testing.T) {
	server, provider := newTestServer(t)

	rec, resp := doJSON(t, server, http.MethodPost, "/api/query", `{"query": "ghost in the rain"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	if resp["count"] != float64(0) {
		t.Errorf("Expected 0 results, got %v", resp["count"])
	}
	if provider.batchCalls != 0 {
		t.Errorf("Expected no embed calls on empty index, got %d", provider.batchCalls)
	}
}

func TestQuery_MissingQuery(t *testing.T) {
	server, _ := newTestServer(t)

	rec, resp := doJSON(t, server, http.MethodPost, "/api/query", `{"top_k": 3}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("Expected 400, got %d", rec.Code)
	}
	if resp["error"] == "" {
		t.Error("Expected error message in response")
	}
}

func TestQuery_SeededIndex(t *testing.T) {
	server, _ := newTestServer(t)
	path := writeScript(t, "ep01.txt", "The hero stands on the rooftop watching the rain fall over the neon city below at night")

	rec, resp := doJSON(t, server, http.MethodPost, "/api/ingest", `{"path": `+jsonString(path)+`, "name": "ep01"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("Ingest expected 200, got %d: %v", rec.Code, resp)
	}

	rec, resp = doJSON(t, server, http.MethodPost, "/api/query", `{"query": "rooftop rain", "top_k": 2, "format": "simple"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	count, _ := resp["count"].(float64)
	if count == 0 {
		t.Fatal("Expected results from seeded index")
	}
	formatted, _ := resp["formatted"].(string)
	if formatted == "" {
		t.Error("Expected formatted output when format is given")
	}
	results, ok := resp["results"].([]interface{})
	if !ok || len(results) != int(count) {
		t.Errorf("Expected %d results, got %v", int(count), resp["results"])
	}
}

func TestContext(t *testing.T) {
	server, _ := newTestServer(t)
	path := writeScript(t, "ep02.txt", "Interior of the studio where the animator reviews key frames on the light table")

	rec, _ := doJSON(t, server, http.MethodPost, "/api/ingest", `{"path": `+jsonString(path)+`}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("Ingest expected 200, got %d", rec.Code)
	}

	rec, resp := doJSON(t, server, http.MethodPost, "/api/context", `{"prompt": "animator at the light table"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	contextText, _ := resp["context"].(string)
	if !strings.Contains(contextText, "=== RELEVANT SCRIPT CONTEXT ===") {
		t.Errorf("Expected context envelope, got %q", contextText)
	}
}

func TestContext_MissingPrompt(t *testing.T) {
	server, _ := newTestServer(t)

	rec, _ := doJSON(t, server, http.MethodPost, "/api/context", `{"max_length": 500}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("Expected 400, got %d", rec.Code)
	}
}

func TestIngest_File(t *testing.T) {
	server, _ := newTestServer(t)
	path := writeScript(t, "ep03.txt", "Two characters argue in the train car as the landscape slides past the windows outside")

	rec, resp := doJSON(t, server, http.MethodPost, "/api/ingest", `{"path": `+jsonString(path)+`, "name": "ep03"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %v", rec.Code, resp)
	}
	if resp["source"] != "ep03" {
		t.Errorf("Expected source ep03, got %v", resp["source"])
	}
	chunks, _ := resp["chunks_added"].(float64)
	if chunks == 0 {
		t.Error("Expected chunks to be added")
	}

	_, info := doJSON(t, server, http.MethodGet, "/api/info", "")
	if info["num_vectors"] == float64(0) {
		t.Error("Expected index to grow after ingest")
	}
}

func TestIngest_PathNotFound(t *testing.T) {
	server, _ := newTestServer(t)

	rec, _ := doJSON(t, server, http.MethodPost, "/api/ingest", `{"path": "/does/not/exist.txt"}`)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("Expected 404, got %d", rec.Code)
	}
}

func TestIngest_MissingPath(t *testing.T) {
	server, _ := newTestServer(t)

	rec, _ := doJSON(t, server, http.MethodPost, "/api/ingest", `{"name": "nameless"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("Expected 400, got %d", rec.Code)
	}
}

// jsonString encodes s as a JSON string literal for request bodies.
func jsonString(s string) string {
	data, _ := json.Marshal(s)
	return string(data)
}
