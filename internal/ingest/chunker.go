// Package ingest turns source documents into indexed, embedded chunks.
// It owns the chunking policy, the file ingestion pipeline, and the
// directory watcher.
package ingest

import (
	"errors"
	"fmt"
	"strings"

	"github.com/sakuga-labs/scriptrag/internal/store"
)

// ErrInvalidConfiguration indicates chunking parameters that violate the
// chunker's preconditions.
var ErrInvalidConfiguration = errors.New("invalid chunker configuration")

// Mode selects the unit the chunker measures windows in.
type Mode string

const (
	// ModeWord windows over whitespace-separated words. The default.
	ModeWord Mode = "word"
	// ModeChar windows over runes. Used for raw script exports.
	ModeChar Mode = "char"
)

// Default chunking parameters for word mode.
const (
	DefaultWindowSize = 512
	DefaultOverlap    = 50
)

// ChunkerConfig holds the chunking parameters.
type ChunkerConfig struct {
	// WindowSize is the chunk length in the mode's unit. Must be positive.
	WindowSize int
	// Overlap is how many units consecutive chunks share.
	// Must satisfy 0 <= Overlap < WindowSize.
	Overlap int
	// Mode selects word or char windowing. Empty defaults to word.
	Mode Mode
}

// DefaultChunkerConfig returns the standard word-mode configuration.
func DefaultChunkerConfig() ChunkerConfig {
	return ChunkerConfig{
		WindowSize: DefaultWindowSize,
		Overlap:    DefaultOverlap,
		Mode:       ModeWord,
	}
}

// Chunker splits document text into overlapping windows. Every unit of the
// input lands in at least one chunk; consecutive chunks share exactly
// Overlap units except possibly the final, shorter one.
type Chunker struct {
	config ChunkerConfig
}

// NewChunker validates the configuration and returns a Chunker.
func NewChunker(cfg ChunkerConfig) (*Chunker, error) {
	if cfg.Mode == "" {
		cfg.Mode = ModeWord
	}
	if cfg.Mode != ModeWord && cfg.Mode != ModeChar {
		return nil, fmt.Errorf("%w: unknown mode %q", ErrInvalidConfiguration, cfg.Mode)
	}
	if cfg.WindowSize <= 0 {
		return nil, fmt.Errorf("%w: window size %d", ErrInvalidConfiguration, cfg.WindowSize)
	}
	if cfg.Overlap < 0 || cfg.Overlap >= cfg.WindowSize {
		return nil, fmt.Errorf("%w: overlap %d with window size %d",
			ErrInvalidConfiguration, cfg.Overlap, cfg.WindowSize)
	}
	return &Chunker{config: cfg}, nil
}

// Config returns the validated configuration.
func (c *Chunker) Config() ChunkerConfig {
	return c.config
}

// Chunk splits text into windows in document order. Empty or
// whitespace-only input yields no chunks.
func (c *Chunker) Chunk(text string) []store.Chunk {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	if c.config.Mode == ModeChar {
		return c.chunkRunes(text)
	}
	return c.chunkWords(text)
}

// chunkWords windows over whitespace-separated words. Offsets are word
// indices and chunk text is the window joined with single spaces.
func (c *Chunker) chunkWords(text string) []store.Chunk {
	words := strings.Fields(text)
	return c.window(len(words), func(start, end int) string {
		return strings.Join(words[start:end], " ")
	})
}

// chunkRunes windows over runes. Offsets are rune indices and chunk text
// is the raw slice of the input.
func (c *Chunker) chunkRunes(text string) []store.Chunk {
	runes := []rune(text)
	return c.window(len(runes), func(start, end int) string {
		return string(runes[start:end])
	})
}

// window emits [start, end) slices of a length-n sequence. The stride is
// WindowSize - Overlap; emission stops once a window reaches the end, so
// a final fragment shorter than the overlap never becomes its own chunk.
func (c *Chunker) window(n int, slice func(start, end int) string) []store.Chunk {
	if n == 0 {
		return nil
	}

	stride := c.config.WindowSize - c.config.Overlap
	var chunks []store.Chunk
	for start, seq := 0, 0; ; start, seq = start+stride, seq+1 {
		end := start + c.config.WindowSize
		if end > n {
			end = n
		}
		chunks = append(chunks, store.Chunk{
			Text:        slice(start, end),
			StartOffset: start,
			EndOffset:   end,
			SequenceID:  seq,
		})
		if end >= n {
			return chunks
		}
	}
}
