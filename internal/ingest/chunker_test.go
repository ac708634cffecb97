package ingest

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestNewChunker_InvalidConfiguration(t *testing.T) {
	tests := []struct {
		name string
		cfg  ChunkerConfig
	}{
		{"zero window", ChunkerConfig{WindowSize: 0, Overlap: 0}},
		{"negative window", ChunkerConfig{WindowSize: -5, Overlap: 0}},
		{"negative overlap", ChunkerConfig{WindowSize: 10, Overlap: -1}},
		{"overlap equals window", ChunkerConfig{WindowSize: 10, Overlap: 10}},
		{"overlap exceeds window", ChunkerConfig{WindowSize: 10, Overlap: 15}},
		{"unknown mode", ChunkerConfig{WindowSize: 10, Overlap: 2, Mode: "sentence"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewChunker(tt.cfg)
			if !errors.Is(err, ErrInvalidConfiguration) {
				t.Errorf("Expected ErrInvalidConfiguration, got %v", err)
			}
		})
	}
}

func TestNewChunker_DefaultsMode(t *testing.T) {
	chunker, err := NewChunker(ChunkerConfig{WindowSize: 10, Overlap: 2})
	if err != nil {
		t.Fatalf("NewChunker failed: %v", err)
	}
	if chunker.Config().Mode != ModeWord {
		t.Errorf("Expected default mode %q, got %q", ModeWord, chunker.Config().Mode)
	}
}

func TestChunk_WordWindows(t *testing.T) {
	words := make([]string, 25)
	for i := range words {
		words[i] = fmt.Sprintf("w%02d", i)
	}
	text := strings.Join(words, " ")

	chunker, err := NewChunker(ChunkerConfig{WindowSize: 10, Overlap: 2})
	if err != nil {
		t.Fatalf("NewChunker failed: %v", err)
	}
	chunks := chunker.Chunk(text)

	if len(chunks) != 3 {
		t.Fatalf("Expected 3 chunks for 25 words with window 10 overlap 2, got %d", len(chunks))
	}

	wantOffsets := [][2]int{{0, 10}, {8, 18}, {16, 25}}
	for i, chunk := range chunks {
		if chunk.StartOffset != wantOffsets[i][0] || chunk.EndOffset != wantOffsets[i][1] {
			t.Errorf("Chunk %d: expected offsets [%d,%d), got [%d,%d)",
				i, wantOffsets[i][0], wantOffsets[i][1], chunk.StartOffset, chunk.EndOffset)
		}
		if chunk.SequenceID != i {
			t.Errorf("Chunk %d: expected sequence %d, got %d", i, i, chunk.SequenceID)
		}
		wantText := strings.Join(words[chunk.StartOffset:chunk.EndOffset], " ")
		if chunk.Text != wantText {
			t.Errorf("Chunk %d: expected text %q, got %q", i, wantText, chunk.Text)
		}
	}

	// Consecutive chunks share exactly the overlap
	for i := 0; i < len(chunks)-1; i++ {
		tail := strings.Fields(chunks[i].Text)
		head := strings.Fields(chunks[i+1].Text)
		for j := 0; j < 2; j++ {
			if tail[len(tail)-2+j] != head[j] {
				t.Errorf("Chunks %d and %d do not share overlap words", i, i+1)
			}
		}
	}
}

func TestChunk_EveryWordCovered(t *testing.T) {
	tests := []struct {
		numWords int
		window   int
		overlap  int
	}{
		{1, 10, 2},
		{10, 10, 2},
		{11, 10, 2},
		{18, 10, 2},
		{100, 7, 3},
		{512, 512, 50},
		{513, 512, 50},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%dwords_w%d_o%d", tt.numWords, tt.window, tt.overlap), func(t *testing.T) {
			words := make([]string, tt.numWords)
			for i := range words {
				words[i] = fmt.Sprintf("w%d", i)
			}

			chunker, err := NewChunker(ChunkerConfig{WindowSize: tt.window, Overlap: tt.overlap})
			if err != nil {
				t.Fatalf("NewChunker failed: %v", err)
			}
			chunks := chunker.Chunk(strings.Join(words, " "))

			covered := make([]bool, tt.numWords)
			for i, chunk := range chunks {
				if chunk.SequenceID != i {
					t.Errorf("Chunk %d has sequence %d", i, chunk.SequenceID)
				}
				for w := chunk.StartOffset; w < chunk.EndOffset; w++ {
					covered[w] = true
				}
			}
			for w, ok := range covered {
				if !ok {
					t.Errorf("Word %d not covered by any chunk", w)
				}
			}

			last := chunks[len(chunks)-1]
			if last.EndOffset != tt.numWords {
				t.Errorf("Last chunk ends at %d, want %d", last.EndOffset, tt.numWords)
			}
		})
	}
}

func TestChunk_EmptyInput(t *testing.T) {
	chunker, err := NewChunker(DefaultChunkerConfig())
	if err != nil {
		t.Fatalf("NewChunker failed: %v", err)
	}

	for _, text := range []string{"", "   ", "\n\t\n"} {
		if chunks := chunker.Chunk(text); len(chunks) != 0 {
			t.Errorf("Expected no chunks for %q, got %d", text, len(chunks))
		}
	}
}

func TestChunk_SingleWindow(t *testing.T) {
	chunker, err := NewChunker(ChunkerConfig{WindowSize: 512, Overlap: 50})
	if err != nil {
		t.Fatalf("NewChunker failed: %v", err)
	}

	chunks := chunker.Chunk("a short script line")
	if len(chunks) != 1 {
		t.Fatalf("Expected 1 chunk, got %d", len(chunks))
	}
	if chunks[0].Text != "a short script line" {
		t.Errorf("Expected full text in single chunk, got %q", chunks[0].Text)
	}
	if chunks[0].StartOffset != 0 || chunks[0].EndOffset != 4 {
		t.Errorf("Expected offsets [0,4), got [%d,%d)", chunks[0].StartOffset, chunks[0].EndOffset)
	}
}

func TestChunk_NormalizesInternalWhitespace(t *testing.T) {
	chunker, err := NewChunker(ChunkerConfig{WindowSize: 10, Overlap: 0})
	if err != nil {
		t.Fatalf("NewChunker failed: %v", err)
	}

	chunks := chunker.Chunk("one\n\ntwo\t three")
	if len(chunks) != 1 {
		t.Fatalf("Expected 1 chunk, got %d", len(chunks))
	}
	if chunks[0].Text != "one two three" {
		t.Errorf("Expected words joined with single spaces, got %q", chunks[0].Text)
	}
}

func TestChunk_CharMode(t *testing.T) {
	chunker, err := NewChunker(ChunkerConfig{WindowSize: 5, Overlap: 2, Mode: ModeChar})
	if err != nil {
		t.Fatalf("NewChunker failed: %v", err)
	}

	chunks := chunker.Chunk("abcdefgh")
	if len(chunks) != 2 {
		t.Fatalf("Expected 2 chunks, got %d", len(chunks))
	}
	if chunks[0].Text != "abcde" || chunks[1].Text != "defgh" {
		t.Errorf("Expected chunks [abcde defgh], got [%s %s]", chunks[0].Text, chunks[1].Text)
	}
	if chunks[1].StartOffset != 3 || chunks[1].EndOffset != 8 {
		t.Errorf("Expected second chunk offsets [3,8), got [%d,%d)",
			chunks[1].StartOffset, chunks[1].EndOffset)
	}
}

func TestChunk_CharModeRuneOffsets(t *testing.T) {
	chunker, err := NewChunker(ChunkerConfig{WindowSize: 4, Overlap: 1, Mode: ModeChar})
	if err != nil {
		t.Fatalf("NewChunker failed: %v", err)
	}

	// Multibyte runes must count as one unit each
	chunks := chunker.Chunk("主人公が走る")
	if len(chunks) != 2 {
		t.Fatalf("Expected 2 chunks, got %d", len(chunks))
	}
	if chunks[0].Text != "主人公が" {
		t.Errorf("Expected first chunk 主人公が, got %q", chunks[0].Text)
	}
	if chunks[1].Text != "が走る" {
		t.Errorf("Expected second chunk が走る, got %q", chunks[1].Text)
	}
	if chunks[1].StartOffset != 3 || chunks[1].EndOffset != 6 {
		t.Errorf("Expected rune offsets [3,6), got [%d,%d)",
			chunks[1].StartOffset, chunks[1].EndOffset)
	}
}

func TestDefaultChunkerConfig(t *testing.T) {
	cfg := DefaultChunkerConfig()

	if cfg.WindowSize != 512 {
		t.Errorf("Expected window size 512, got %d", cfg.WindowSize)
	}
	if cfg.Overlap != 50 {
		t.Errorf("Expected overlap 50, got %d", cfg.Overlap)
	}
	if cfg.Mode != ModeWord {
		t.Errorf("Expected word mode, got %q", cfg.Mode)
	}
}
