package extract

import (
	"fmt"
	"os"
)

// TextExtractor reads plain text and Markdown documents as-is.
type TextExtractor struct{}

// NewTextExtractor creates a plain-text extractor.
func NewTextExtractor() *TextExtractor {
	return &TextExtractor{}
}

// Extensions returns the extensions handled by this extractor.
func (e *TextExtractor) Extensions() []string {
	return []string{".txt", ".md"}
}

// Extract returns the file content unchanged.
func (e *TextExtractor) Extract(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", path, err)
	}
	return string(data), nil
}
