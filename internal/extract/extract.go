// Package extract converts source documents into plain text for chunking.
// Extractors are registered per file extension; the registry routes a path
// to the right one.
package extract

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

var (
	// ErrSourceNotFound indicates the document path does not exist or is
	// not a regular file.
	ErrSourceNotFound = errors.New("source file not found")

	// ErrUnsupportedFormat indicates no extractor is registered for the
	// file's extension.
	ErrUnsupportedFormat = errors.New("unsupported document format")
)

// Extractor pulls plain text out of one document format.
type Extractor interface {
	// Extensions returns the extensions this extractor handles,
	// lowercase with a leading dot.
	Extensions() []string

	// Extract returns the document's text content.
	Extract(path string) (string, error)
}

// Registry maps file extensions to extractors.
type Registry struct {
	byExt map[string]Extractor
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{byExt: make(map[string]Extractor)}
}

// DefaultRegistry returns a registry with the built-in extractors:
// PDF, plain text, and Markdown.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(NewPDFExtractor())
	r.Register(NewTextExtractor())
	return r
}

// Register adds an extractor for each extension it reports.
// Later registrations win on conflict.
func (r *Registry) Register(e Extractor) {
	for _, ext := range e.Extensions() {
		r.byExt[strings.ToLower(ext)] = e
	}
}

// Lookup returns the extractor for the path's extension.
func (r *Registry) Lookup(path string) (Extractor, bool) {
	e, ok := r.byExt[strings.ToLower(filepath.Ext(path))]
	return e, ok
}

// Supports reports whether the path's extension has a registered extractor.
func (r *Registry) Supports(path string) bool {
	_, ok := r.Lookup(path)
	return ok
}

// Supported returns the registered extensions in sorted order.
func (r *Registry) Supported() []string {
	exts := make([]string, 0, len(r.byExt))
	for ext := range r.byExt {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return exts
}

// Extract reads the document at path and returns its text content.
func (r *Registry) Extract(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("%w: %s", ErrSourceNotFound, path)
		}
		return "", fmt.Errorf("stat %s: %w", path, err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("%w: %s is a directory", ErrSourceNotFound, path)
	}

	extractor, ok := r.Lookup(path)
	if !ok {
		return "", fmt.Errorf("%w: %q (supported: %s)",
			ErrUnsupportedFormat, filepath.Ext(path), strings.Join(r.Supported(), ", "))
	}
	return extractor.Extract(path)
}

// NormalizeWhitespace collapses every whitespace run to a single space and
// trims the ends. PDF extraction scatters hard breaks through sentences;
// this flattens them so chunk boundaries fall on words.
func NormalizeWhitespace(text string) string {
	return strings.Join(strings.Fields(text), " ")
}
