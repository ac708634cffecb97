package search

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"
)

func contextBlock(rank int, similarity float64, source, text string) string {
	return fmt.Sprintf("\n--- Context %d (Similarity: %.3f) ---\nSource: %s\nContent: %s\n",
		rank, similarity, source, text)
}

func TestFormatContext_Empty(t *testing.T) {
	if got := FormatContext(nil, 2000); got != NoContextMessage {
		t.Errorf("Expected %q, got %q", NoContextMessage, got)
	}
}

func TestFormatContext_Envelope(t *testing.T) {
	results := []RankedResult{
		rankedResult(1, 1.0, "ep01.txt", "the hero draws her blade", 0),
	}
	out := FormatContext(results, 2000)

	if !strings.HasPrefix(out, contextHeader) {
		t.Errorf("Expected output to start with header, got %q", out)
	}
	if !strings.Contains(out, "--- Context 1 (Similarity: 1.000) ---") {
		t.Errorf("Missing context block marker:\n%s", out)
	}
	if !strings.Contains(out, "Source: ep01.txt") {
		t.Errorf("Missing source line:\n%s", out)
	}
	if !strings.Contains(out, "Content: the hero draws her blade") {
		t.Errorf("Missing content line:\n%s", out)
	}
	if !strings.Contains(out, "=== END CONTEXT ===") {
		t.Errorf("Missing footer:\n%s", out)
	}
}

func TestFormatContext_BudgetDropsWholeBlocks(t *testing.T) {
	first := rankedResult(1, 0.9, "ep01.txt", "short match", 0)
	second := rankedResult(2, 0.8, "ep02.txt", strings.Repeat("long tail ", 100), 1)

	firstBlock := contextBlock(1, 0.9, "ep01.txt", "short match")
	budget := utf8.RuneCountInString(contextHeader) + utf8.RuneCountInString(firstBlock)

	out := FormatContext([]RankedResult{first, second}, budget)
	if !strings.Contains(out, "Context 1") {
		t.Errorf("Expected first block to fit:\n%s", out)
	}
	if strings.Contains(out, "Context 2") {
		t.Errorf("Expected second block dropped whole:\n%s", out)
	}
	if !strings.Contains(out, "=== END CONTEXT ===") {
		t.Errorf("Expected footer even when later blocks are dropped:\n%s", out)
	}
}

func TestFormatContext_FirstBlockTooLarge(t *testing.T) {
	results := []RankedResult{
		rankedResult(1, 0.9, "ep01.txt", strings.Repeat("word ", 200), 0),
	}
	if got := FormatContext(results, 50); got != NoContextMessage {
		t.Errorf("Expected sentinel when nothing fits, got %q", got)
	}
}

func TestFormatContext_StopsAtFirstOverflow(t *testing.T) {
	// The third block would fit the remaining budget, but appending stops
	// at the second so a low-ranked block never displaces a higher rank.
	first := rankedResult(1, 0.9, "ep01.txt", "alpha", 0)
	second := rankedResult(2, 0.8, "ep02.txt", strings.Repeat("overflow ", 200), 1)
	third := rankedResult(3, 0.7, "ep03.txt", "tiny", 2)

	firstBlock := contextBlock(1, 0.9, "ep01.txt", "alpha")
	budget := utf8.RuneCountInString(contextHeader) + utf8.RuneCountInString(firstBlock) + 100

	out := FormatContext([]RankedResult{first, second, third}, budget)
	if !strings.Contains(out, "Context 1") {
		t.Errorf("Expected first block present:\n%s", out)
	}
	if strings.Contains(out, "Context 2") || strings.Contains(out, "Context 3") {
		t.Errorf("Expected appending to stop at the first overflow:\n%s", out)
	}
}

func TestFormatContext_BudgetCountsRunes(t *testing.T) {
	text := "主人公が刀を抜く"
	results := []RankedResult{rankedResult(1, 1.0, "ep01.txt", text, 0)}

	block := contextBlock(1, 1.0, "ep01.txt", text)
	exact := utf8.RuneCountInString(contextHeader) + utf8.RuneCountInString(block)

	if out := FormatContext(results, exact); !strings.Contains(out, text) {
		t.Errorf("Expected block to fit an exact rune budget:\n%s", out)
	}
	if out := FormatContext(results, exact-1); out != NoContextMessage {
		t.Errorf("Expected sentinel one rune under budget, got %q", out)
	}
}

func TestFormatContext_DefaultBudget(t *testing.T) {
	results := []RankedResult{
		rankedResult(1, 0.9, "ep01.txt", "fits the default budget", 0),
	}
	if out := FormatContext(results, 0); !strings.Contains(out, "Context 1") {
		t.Errorf("Expected zero maxLength to use the default budget:\n%s", out)
	}
}

func TestFormatForPrompt_EmptyIndex(t *testing.T) {
	retriever, _, provider := newTestRetriever(t)

	out := retriever.FormatForPrompt(context.Background(), "what happens next", 2000)
	if out != NoContextMessage {
		t.Errorf("Expected %q for empty index, got %q", NoContextMessage, out)
	}
	if provider.batchCalls != 0 {
		t.Errorf("Expected no embedding calls for empty index, got %d", provider.batchCalls)
	}
}

func TestFormatForPrompt_IncludesIndexedChunk(t *testing.T) {
	retriever, corpus, _ := newTestRetriever(t)
	seedChunk(t, corpus, []float32{1, 0, 0}, "the hero draws her blade", "ep01.txt", 0)

	out := retriever.FormatForPrompt(context.Background(), "hero", 2000)
	if !strings.Contains(out, "the hero draws her blade") {
		t.Errorf("Expected indexed chunk in context:\n%s", out)
	}
	if !strings.Contains(out, "Source: ep01.txt") {
		t.Errorf("Expected source attribution:\n%s", out)
	}
}
