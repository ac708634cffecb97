// Package mcp exposes the retrieval core to MCP clients over stdio using
// the official SDK.
package mcp

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/sakuga-labs/scriptrag/internal/embed"
	"github.com/sakuga-labs/scriptrag/internal/ingest"
	"github.com/sakuga-labs/scriptrag/internal/search"
	"github.com/sakuga-labs/scriptrag/internal/store"
	"github.com/sakuga-labs/scriptrag/internal/version"
)

// Input types for tools

// QueryInput is the input for script_query.
type QueryInput struct {
	Query string `json:"query" jsonschema:"Natural language description of the scene, dialogue, or action to find in the indexed scripts."`
	TopK  int    `json:"top_k,omitempty" jsonschema:"Maximum number of chunks to return. Defaults to 5."`
}

// ContextInput is the input for script_context.
type ContextInput struct {
	Prompt    string `json:"prompt" jsonschema:"The prompt or question that needs supporting script context."`
	MaxLength int    `json:"max_length,omitempty" jsonschema:"Character budget for the context block. Defaults to 2000."`
}

// InfoInput is the input for script_info (empty).
type InfoInput struct{}

// IngestInput is the input for script_ingest.
type IngestInput struct {
	Path string `json:"path" jsonschema:"REQUIRED - Full path to a script document (PDF, txt, md) or a directory of documents."`
	Name string `json:"name,omitempty" jsonschema:"Display name recorded for the document. Defaults to the file name."`
}

// Server wraps the official MCP SDK server around the retrieval core.
type Server struct {
	server    *sdkmcp.Server
	retriever *search.Retriever
	provider  embed.Provider
	ingestor  *ingest.Ingestor

	// ingestMu serializes script_ingest; queries are read-only.
	ingestMu sync.Mutex
}

// ServerConfig contains dependencies for the MCP server.
type ServerConfig struct {
	Corpus   *store.IndexedCorpus
	Provider embed.Provider
	// Ingestor serves script_ingest. Nil disables that tool.
	Ingestor *ingest.Ingestor
}

// NewServer creates a new MCP server over the given corpus.
func NewServer(cfg ServerConfig) *Server {
	s := &Server{
		retriever: search.NewRetriever(cfg.Corpus, cfg.Provider),
		provider:  cfg.Provider,
		ingestor:  cfg.Ingestor,
	}

	s.server = sdkmcp.NewServer(&sdkmcp.Implementation{
		Name:    version.AppName,
		Version: version.Version,
	}, &sdkmcp.ServerOptions{
		Instructions: "scriptrag provides semantic retrieval over indexed anime production scripts. " +
			"Use script_query to find scenes, dialogue, and action matching a description; " +
			"script_context to build a ready-to-inject context block for a prompt; " +
			"script_info for index statistics; and script_ingest to add new script documents.",
	})

	sdkmcp.AddTool(s.server, &sdkmcp.Tool{
		Name:        "script_query",
		Description: "Semantic search across the indexed scripts. Returns the chunks most similar to the query, with similarity scores and source names.",
	}, s.handleQuery)

	sdkmcp.AddTool(s.server, &sdkmcp.Tool{
		Name:        "script_context",
		Description: "Build a length-budgeted context block of relevant script excerpts for a prompt. The block is framed with context markers and ready for prompt injection.",
	}, s.handleContext)

	sdkmcp.AddTool(s.server, &sdkmcp.Tool{
		Name:        "script_info",
		Description: "Get statistics about the script index: vector count, embedding model, chunking parameters, and indexed sources.",
	}, s.handleInfo)

	sdkmcp.AddTool(s.server, &sdkmcp.Tool{
		Name:        "script_ingest",
		Description: "Ingest a script document (or a directory of documents) into the index so it becomes searchable.",
	}, s.handleIngest)

	return s
}

// Run starts the MCP server on stdio.
func (s *Server) Run(ctx context.Context) error {
	return s.server.Run(ctx, &sdkmcp.StdioTransport{})
}

// textResult wraps plain text in a tool result.
func textResult(text string) *sdkmcp.CallToolResult {
	return &sdkmcp.CallToolResult{
		Content: []sdkmcp.Content{&sdkmcp.TextContent{Text: text}},
	}
}

// errorResult wraps plain text in a failed tool result.
func errorResult(text string) *sdkmcp.CallToolResult {
	return &sdkmcp.CallToolResult{
		Content: []sdkmcp.Content{&sdkmcp.TextContent{Text: text}},
		IsError: true,
	}
}

// checkProvider verifies the embedding provider is reachable.
func (s *Server) checkProvider(ctx context.Context) *sdkmcp.CallToolResult {
	if err := s.provider.Ping(ctx); err != nil {
		return errorResult(fmt.Sprintf(
			"Embedding provider %s is not reachable. Queries need the provider the index was built with.\n\nError: %v",
			s.provider.Identity(), err))
	}
	return nil
}

// handleQuery handles the script_query tool.
func (s *Server) handleQuery(ctx context.Context, req *sdkmcp.CallToolRequest, input QueryInput) (*sdkmcp.CallToolResult, any, error) {
	if input.Query == "" {
		return errorResult("query parameter is required"), nil, nil
	}
	if errResult := s.checkProvider(ctx); errResult != nil {
		return errResult, nil, nil
	}

	results, err := s.retriever.RetrieveStrict(ctx, input.Query, input.TopK)
	if err != nil {
		return errorResult(fmt.Sprintf("Query error: %v", err)), nil, nil
	}
	if len(results) == 0 {
		return textResult(search.NoResultsMessage), nil, nil
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Found %d results:\n\n", len(results)))
	for _, r := range results {
		sb.WriteString(fmt.Sprintf("### Result %d (similarity: %.3f)\n", r.Rank, r.Similarity))
		sb.WriteString(fmt.Sprintf("**Source:** %s (chunk %d)\n\n", r.Metadata.Source.Name, r.Metadata.Chunk.SequenceID))
		sb.WriteString(r.Metadata.Chunk.Text)
		sb.WriteString("\n\n")
	}
	return textResult(sb.String()), nil, nil
}

// handleContext handles the script_context tool.
func (s *Server) handleContext(ctx context.Context, req *sdkmcp.CallToolRequest, input ContextInput) (*sdkmcp.CallToolResult, any, error) {
	if input.Prompt == "" {
		return errorResult("prompt parameter is required"), nil, nil
	}
	if errResult := s.checkProvider(ctx); errResult != nil {
		return errResult, nil, nil
	}

	return textResult(s.retriever.FormatForPrompt(ctx, input.Prompt, input.MaxLength)), nil, nil
}

// handleInfo handles the script_info tool.
func (s *Server) handleInfo(ctx context.Context, req *sdkmcp.CallToolRequest, input InfoInput) (*sdkmcp.CallToolResult, any, error) {
	info := s.retriever.Info()

	var sb strings.Builder
	sb.WriteString("Script Index:\n\n")
	sb.WriteString(fmt.Sprintf("- Status: %v\n", info["status"]))
	sb.WriteString(fmt.Sprintf("- Vectors: %v\n", info["num_vectors"]))
	sb.WriteString(fmt.Sprintf("- Embedding model: %v (%v dimensions)\n", info["embedding_model"], info["embedding_dim"]))
	sb.WriteString(fmt.Sprintf("- Chunking: %v units per window, %v overlap\n", info["chunk_size"], info["chunk_overlap"]))

	if sources, ok := info["sources"].([]string); ok && len(sources) > 0 {
		sorted := append([]string(nil), sources...)
		sort.Strings(sorted)
		sb.WriteString(fmt.Sprintf("\nSources (%d):\n", len(sorted)))
		for _, name := range sorted {
			sb.WriteString(fmt.Sprintf("  - %s\n", name))
		}
	} else {
		sb.WriteString("\nNo documents indexed yet. Use script_ingest to add scripts.\n")
	}

	return textResult(sb.String()), nil, nil
}

// handleIngest handles the script_ingest tool.
func (s *Server) handleIngest(ctx context.Context, req *sdkmcp.CallToolRequest, input IngestInput) (*sdkmcp.CallToolResult, any, error) {
	if s.ingestor == nil {
		return errorResult("ingestion is not enabled on this server"), nil, nil
	}
	if input.Path == "" {
		return errorResult("path parameter is required"), nil, nil
	}
	if errResult := s.checkProvider(ctx); errResult != nil {
		return errResult, nil, nil
	}

	path := input.Path
	if strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			path = filepath.Join(home, path[2:])
		}
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return errorResult(fmt.Sprintf("Failed to resolve path: %v", err)), nil, nil
	}
	path = absPath

	info, err := os.Stat(path)
	if err != nil {
		return errorResult(fmt.Sprintf("Path does not exist: %s", path)), nil, nil
	}

	s.ingestMu.Lock()
	defer s.ingestMu.Unlock()

	if info.IsDir() {
		dirResult, err := s.ingestor.IngestDir(ctx, path)
		if err != nil {
			return errorResult(fmt.Sprintf("Ingestion error: %v", err)), nil, nil
		}

		var sb strings.Builder
		sb.WriteString("Ingestion complete:\n")
		sb.WriteString(fmt.Sprintf("- Files ingested: %d\n", dirResult.FilesIngested))
		sb.WriteString(fmt.Sprintf("- Files skipped: %d\n", dirResult.FilesSkipped))
		sb.WriteString(fmt.Sprintf("- Chunks added: %d\n", dirResult.ChunksAdded))
		if len(dirResult.Failures) > 0 {
			sb.WriteString(fmt.Sprintf("\nFailures: %d\n", len(dirResult.Failures)))
			for _, f := range dirResult.Failures {
				sb.WriteString(fmt.Sprintf("  - %v\n", f))
			}
		}
		return textResult(sb.String()), nil, nil
	}

	result, err := s.ingestor.IngestFile(ctx, path, input.Name)
	if err != nil {
		return errorResult(fmt.Sprintf("Ingestion error: %v", err)), nil, nil
	}
	return textResult(fmt.Sprintf("Ingested %q: %d chunks added.", result.Source.Name, result.ChunksAdded)), nil, nil
}
