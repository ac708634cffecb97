package search

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"
)

// Envelope markers for prompt context. Downstream prompts key off these,
// so they are part of the output contract.
const (
	contextHeader = "=== RELEVANT SCRIPT CONTEXT ==="
	contextFooter = "\n=== END CONTEXT ===\n"
)

// NoContextMessage is returned when nothing relevant fits the budget.
const NoContextMessage = "No relevant context found in the script database."

// DefaultMaxContextLength bounds context output when callers pass 0.
const DefaultMaxContextLength = 2000

// FormatForPrompt retrieves the chunks most relevant to prompt and renders
// them as a length-budgeted context block for prompt injection.
func (r *Retriever) FormatForPrompt(ctx context.Context, prompt string, maxLength int) string {
	return FormatContext(r.Retrieve(ctx, prompt, DefaultTopK), maxLength)
}

// FormatContext renders ranked results as a context block of at most
// maxLength characters. Blocks are appended in rank order; the first block
// that would cross the budget is dropped whole and appending stops, so a
// low-ranked short block never displaces a higher-ranked long one.
func FormatContext(results []RankedResult, maxLength int) string {
	if maxLength <= 0 {
		maxLength = DefaultMaxContextLength
	}
	if len(results) == 0 {
		return NoContextMessage
	}

	parts := []string{contextHeader}
	length := utf8.RuneCountInString(contextHeader)

	for _, result := range results {
		block := fmt.Sprintf("\n--- Context %d (Similarity: %.3f) ---\nSource: %s\nContent: %s\n",
			result.Rank, result.Similarity,
			result.Metadata.Source.Name, result.Metadata.Chunk.Text)
		size := utf8.RuneCountInString(block)
		if length+size > maxLength {
			break
		}
		parts = append(parts, block)
		length += size
	}

	// Header alone means not even the best match fit.
	if len(parts) == 1 {
		return NoContextMessage
	}

	parts = append(parts, contextFooter)
	return strings.Join(parts, "\n")
}
