package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/sakuga-labs/scriptrag/internal/extract"
	"github.com/sakuga-labs/scriptrag/internal/ingest"
	"github.com/sakuga-labs/scriptrag/internal/search"
	"github.com/sakuga-labs/scriptrag/internal/version"
)

// Handler handles HTTP requests for the JSON API.
type Handler struct {
	retriever *search.Retriever
	ingestor  *ingest.Ingestor

	// ingestMu serializes mutations; queries stay lock-free because the
	// corpus only grows and reads never observe a partial append.
	ingestMu sync.Mutex
}

// NewHandler creates a new Handler.
func NewHandler(retriever *search.Retriever, ingestor *ingest.Ingestor) *Handler {
	return &Handler{
		retriever: retriever,
		ingestor:  ingestor,
	}
}

// Health returns a simple health check response.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	h.jsonResponse(w, map[string]interface{}{
		"status":  "ok",
		"version": version.Version,
	})
}

// Info returns the index summary as JSON.
func (h *Handler) Info(w http.ResponseWriter, r *http.Request) {
	h.jsonResponse(w, h.retriever.Info())
}

type queryRequest struct {
	Query  string `json:"query"`
	TopK   int    `json:"top_k"`
	Format string `json:"format"`
}

// Query runs a similarity query and returns ranked results.
func (h *Handler) Query(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.jsonError(w, "invalid JSON body", http.StatusBadRequest)
		return
	}
	if req.Query == "" {
		h.jsonError(w, "query is required", http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	results, err := h.retriever.RetrieveStrict(ctx, req.Query, req.TopK)
	if err != nil {
		h.jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if results == nil {
		results = []search.RankedResult{}
	}

	resp := map[string]interface{}{
		"query":   req.Query,
		"count":   len(results),
		"results": results,
	}
	if req.Format != "" {
		resp["formatted"] = search.FormatResults(results, search.OutputFormat(req.Format))
	}
	h.jsonResponse(w, resp)
}

type contextRequest struct {
	Prompt    string `json:"prompt"`
	MaxLength int    `json:"max_length"`
}

// Context returns formatted script context for a prompt.
func (h *Handler) Context(w http.ResponseWriter, r *http.Request) {
	var req contextRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.jsonError(w, "invalid JSON body", http.StatusBadRequest)
		return
	}
	if req.Prompt == "" {
		h.jsonError(w, "prompt is required", http.StatusBadRequest)
		return
	}
	if req.MaxLength <= 0 {
		req.MaxLength = search.DefaultMaxContextLength
	}

	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	formatted := h.retriever.FormatForPrompt(ctx, req.Prompt, req.MaxLength)
	h.jsonResponse(w, map[string]interface{}{
		"context": formatted,
		"length":  len(formatted),
	})
}

type ingestRequest struct {
	Path string `json:"path"`
	Name string `json:"name"`
}

// Ingest adds a document (or a directory of documents) to the index.
func (h *Handler) Ingest(w http.ResponseWriter, r *http.Request) {
	if h.ingestor == nil {
		h.jsonError(w, "ingestion is not enabled on this server", http.StatusForbidden)
		return
	}

	var req ingestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.jsonError(w, "invalid JSON body", http.StatusBadRequest)
		return
	}
	if req.Path == "" {
		h.jsonError(w, "path is required", http.StatusBadRequest)
		return
	}

	info, err := os.Stat(req.Path)
	if err != nil {
		h.jsonError(w, "path not found: "+req.Path, http.StatusNotFound)
		return
	}

	h.ingestMu.Lock()
	defer h.ingestMu.Unlock()

	if info.IsDir() {
		dirResult, err := h.ingestor.IngestDir(r.Context(), req.Path)
		if err != nil {
			h.jsonError(w, err.Error(), http.StatusInternalServerError)
			return
		}
		failures := make([]string, 0, len(dirResult.Failures))
		for _, f := range dirResult.Failures {
			failures = append(failures, f.Error())
		}
		h.jsonResponse(w, map[string]interface{}{
			"files_ingested": dirResult.FilesIngested,
			"files_skipped":  dirResult.FilesSkipped,
			"chunks_added":   dirResult.ChunksAdded,
			"failures":       failures,
		})
		return
	}

	result, err := h.ingestor.IngestFile(r.Context(), req.Path, req.Name)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, extract.ErrSourceNotFound) {
			status = http.StatusNotFound
		} else if errors.Is(err, extract.ErrUnsupportedFormat) {
			status = http.StatusBadRequest
		}
		h.jsonError(w, err.Error(), status)
		return
	}

	h.jsonResponse(w, map[string]interface{}{
		"source":       result.Source.Name,
		"chunks_added": result.ChunksAdded,
	})
}

// jsonResponse writes a JSON response.
func (h *Handler) jsonResponse(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

// jsonError writes a JSON error response.
func (h *Handler) jsonError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{
		"error": message,
	})
}
