// Package search answers similarity queries against the indexed corpus and
// renders the results for terminals, JSON consumers, and prompt injection.
package search

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/sakuga-labs/scriptrag/internal/embed"
	"github.com/sakuga-labs/scriptrag/internal/store"
)

// DefaultTopK is how many results a query returns unless overridden.
const DefaultTopK = 5

// RankedResult is one retrieved chunk scored against a query. Similarity is
// 1/(1+distance), so identical vectors score 1 and the score stays in (0, 1].
type RankedResult struct {
	Rank       int                 `json:"rank"`
	Similarity float64             `json:"similarity"`
	Distance   float32             `json:"distance"`
	Position   int                 `json:"position"`
	Metadata   store.ChunkMetadata `json:"metadata"`
}

// Retriever runs similarity queries over an indexed corpus using the
// embedding provider the corpus was built with.
type Retriever struct {
	corpus   *store.IndexedCorpus
	provider embed.Provider
}

// NewRetriever creates a Retriever over the given corpus and provider.
func NewRetriever(corpus *store.IndexedCorpus, provider embed.Provider) *Retriever {
	return &Retriever{
		corpus:   corpus,
		provider: provider,
	}
}

// Retrieve returns up to k chunks ranked by similarity to the query.
// Failures degrade to an empty result set so batch workflows such as
// storyboard enhancement keep going; use RetrieveStrict where the error
// matters.
func (r *Retriever) Retrieve(ctx context.Context, query string, k int) []RankedResult {
	results, err := r.RetrieveStrict(ctx, query, k)
	if err != nil {
		return nil
	}
	return results
}

// RetrieveStrict is Retrieve with the failure surfaced.
func (r *Retriever) RetrieveStrict(ctx context.Context, query string, k int) ([]RankedResult, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("query cannot be empty")
	}
	if k <= 0 {
		k = DefaultTopK
	}

	// An empty index cannot match anything; skip the embedding round-trip.
	if r.corpus.Size() == 0 {
		return nil, nil
	}

	embeddings, err := r.provider.EmbedBatch(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	hits, err := r.corpus.Search(embeddings[0], k)
	if err != nil {
		return nil, fmt.Errorf("search index: %w", err)
	}

	results := make([]RankedResult, 0, len(hits))
	for _, hit := range hits {
		meta, err := r.corpus.Get(hit.Position)
		if err != nil {
			continue
		}
		results = append(results, RankedResult{
			Rank:       len(results) + 1,
			Similarity: similarityFromDistance(hit.Distance),
			Distance:   hit.Distance,
			Position:   hit.Position,
			Metadata:   meta,
		})
	}
	return results, nil
}

// Info summarizes the index for status surfaces: the info command,
// /api/info, and the script_info MCP tool.
func (r *Retriever) Info() map[string]interface{} {
	cfg := r.corpus.Config()
	return map[string]interface{}{
		"status":          r.corpus.Status().String(),
		"num_vectors":     r.corpus.Size(),
		"embedding_dim":   r.corpus.Dimensions(),
		"embedding_model": r.provider.Model(),
		"chunk_size":      cfg.ChunkWindowSize,
		"chunk_overlap":   cfg.ChunkOverlap,
		"sources":         r.corpus.Sources(),
	}
}

// similarityFromDistance maps a squared L2 distance in [0, inf) onto (0, 1].
func similarityFromDistance(distance float32) float64 {
	return 1.0 / (1.0 + float64(distance))
}

// OutputFormat selects how query results are rendered.
type OutputFormat string

const (
	FormatSimple   OutputFormat = "simple"
	FormatDetailed OutputFormat = "detailed"
	FormatJSON     OutputFormat = "json"
)

// NoResultsMessage is printed when a query matches nothing.
const NoResultsMessage = "No relevant results found."

// FormatResults renders ranked results in the requested format. Unknown
// formats fall back to simple.
func FormatResults(results []RankedResult, format OutputFormat) string {
	switch format {
	case FormatJSON:
		return formatJSON(results)
	case FormatDetailed:
		return formatDetailed(results)
	default:
		return formatSimple(results)
	}
}

// formatSimple produces one line per result with a truncated preview.
func formatSimple(results []RankedResult) string {
	if len(results) == 0 {
		return NoResultsMessage
	}

	var sb strings.Builder
	for _, r := range results {
		sb.WriteString(fmt.Sprintf("%d. [%.3f] %s...\n",
			r.Rank, r.Similarity, truncateRunes(r.Metadata.Chunk.Text, 100)))
	}
	return sb.String()
}

// formatDetailed produces a block per result with source and chunk identity.
func formatDetailed(results []RankedResult) string {
	if len(results) == 0 {
		return NoResultsMessage
	}

	blocks := make([]string, 0, len(results))
	for _, r := range results {
		blocks = append(blocks, fmt.Sprintf(
			"--- Result %d ---\nSimilarity Score: %.3f\nSource: %s\nChunk ID: %d\nContent: %s...",
			r.Rank, r.Similarity, r.Metadata.Source.Name,
			r.Metadata.Chunk.SequenceID, truncateRunes(r.Metadata.Chunk.Text, 200)))
	}
	return strings.Join(blocks, "\n\n") + "\n"
}

// formatJSON produces indented JSON output.
func formatJSON(results []RankedResult) string {
	if results == nil {
		results = []RankedResult{}
	}
	data, err := json.MarshalIndent(results, "", "  ")
	if err != nil {
		return fmt.Sprintf(`{"error": %q}`, err.Error())
	}
	return string(data)
}

// truncateRunes shortens text to at most n runes. Script text is routinely
// Japanese, so byte slicing could split a character.
func truncateRunes(text string, n int) string {
	runes := []rune(text)
	if len(runes) <= n {
		return text
	}
	return string(runes[:n])
}
