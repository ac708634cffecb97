package storyboard

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sakuga-labs/scriptrag/internal/search"
)

// Context budgets for the two enhancement surfaces. A storyboard block gets
// more room than a bare prompt because it carries its own panels too.
const (
	DefaultStoryboardContext = 1500
	DefaultPromptContext     = 1000
)

// Section markers separating retrieved context from the caller's content.
const (
	storyboardSection = "=== STORYBOARD CONTENT ==="
	promptSection     = "=== VIDEO GENERATION PROMPT ==="
)

// Enhancer prepends retrieved script context to storyboards and prompts.
type Enhancer struct {
	retriever *search.Retriever
}

// NewEnhancer creates an Enhancer over the given retriever.
func NewEnhancer(retriever *search.Retriever) *Enhancer {
	return &Enhancer{retriever: retriever}
}

// EnhanceStoryboard prepends retrieved context to a storyboard block. When
// no context fits or retrieval fails, the storyboard is returned unchanged
// so batch pipelines never regress their input.
func (e *Enhancer) EnhanceStoryboard(ctx context.Context, storyboard string, maxContext int) string {
	if maxContext <= 0 {
		maxContext = DefaultStoryboardContext
	}
	query := QueryFromStoryboard(storyboard)
	retrieved := e.retriever.FormatForPrompt(ctx, query, maxContext)
	if retrieved == search.NoContextMessage {
		return storyboard
	}
	return fmt.Sprintf("%s\n\n%s\n%s", retrieved, storyboardSection, storyboard)
}

// EnhancePrompt prepends retrieved context to a bare video generation
// prompt, degrading to the unchanged prompt like EnhanceStoryboard.
func (e *Enhancer) EnhancePrompt(ctx context.Context, prompt string, maxContext int) string {
	if maxContext <= 0 {
		maxContext = DefaultPromptContext
	}
	retrieved := e.retriever.FormatForPrompt(ctx, prompt, maxContext)
	if retrieved == search.NoContextMessage {
		return prompt
	}
	return fmt.Sprintf("%s\n\n%s\n%s", retrieved, promptSection, prompt)
}

// EnhanceFile enhances a storyboard file on disk. An empty outputPath
// defaults to <stem>_enhanced<ext> next to the input. Returns the written
// path.
func (e *Enhancer) EnhanceFile(ctx context.Context, path, outputPath string, maxContext int) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading storyboard: %w", err)
	}

	enhanced := e.EnhanceStoryboard(ctx, string(data), maxContext)

	if outputPath == "" {
		ext := filepath.Ext(path)
		stem := strings.TrimSuffix(filepath.Base(path), ext)
		outputPath = filepath.Join(filepath.Dir(path), stem+"_enhanced"+ext)
	}
	if err := os.WriteFile(outputPath, []byte(enhanced), 0644); err != nil {
		return "", fmt.Errorf("writing enhanced storyboard: %w", err)
	}
	return outputPath, nil
}

// QueryFromStoryboard derives a retrieval query from a storyboard block:
// the first two ACTION_DESCRIPTION / DIALOGUE values in line order, falling
// back to the block's first 100 characters.
func QueryFromStoryboard(storyboard string) string {
	var parts []string
	for _, line := range strings.Split(storyboard, "\n") {
		if len(parts) == 2 {
			break
		}
		line = strings.TrimSpace(line)
		for _, prefix := range []string{"ACTION_DESCRIPTION:", "DIALOGUE:"} {
			if !strings.HasPrefix(line, prefix) {
				continue
			}
			if value := strings.TrimSpace(strings.TrimPrefix(line, prefix)); value != "" {
				parts = append(parts, value)
			}
			break
		}
	}
	if len(parts) > 0 {
		return strings.Join(parts, " ")
	}

	runes := []rune(storyboard)
	if len(runes) > 100 {
		runes = runes[:100]
	}
	return strings.TrimSpace(string(runes))
}
