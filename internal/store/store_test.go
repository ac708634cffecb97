package store

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func testOptions(dir string) Options {
	return Options{
		DataDir:          dir,
		EmbedderIdentity: "ollama/nomic-embed-text",
		Dimensions:       3,
		ChunkWindowSize:  512,
		ChunkOverlap:     50,
	}
}

func testMetadata(name string, seq int) ChunkMetadata {
	return ChunkMetadata{
		Chunk:  Chunk{Text: "chunk text", StartOffset: seq * 10, EndOffset: seq*10 + 10, SequenceID: seq},
		Source: NewSourceRecord(name, "/scripts/"+name),
	}
}

func openTestCorpus(t *testing.T, dir string) *IndexedCorpus {
	t.Helper()
	corpus, err := Open(testOptions(dir))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	return corpus
}

func TestOpen_FreshDirectory(t *testing.T) {
	corpus := openTestCorpus(t, t.TempDir())

	if corpus.Status() != LoadStatusFresh {
		t.Errorf("Expected status %v, got %v", LoadStatusFresh, corpus.Status())
	}
	if corpus.Size() != 0 {
		t.Errorf("Expected empty corpus, got size %d", corpus.Size())
	}
	if corpus.LoadError() != nil {
		t.Errorf("Expected nil load error, got %v", corpus.LoadError())
	}
	if corpus.Dimensions() != 3 {
		t.Errorf("Expected dimension 3, got %d", corpus.Dimensions())
	}
}

func TestOpen_InvalidOptions(t *testing.T) {
	if _, err := Open(Options{DataDir: "", Dimensions: 3}); err == nil {
		t.Error("Expected error for missing data directory")
	}
	if _, err := Open(Options{DataDir: t.TempDir(), Dimensions: 0}); err == nil {
		t.Error("Expected error for zero dimension")
	}
}

func TestAppend_AlignsPositionsWithMetadata(t *testing.T) {
	corpus := openTestCorpus(t, t.TempDir())

	positions, err := corpus.Append(
		[][]float32{{1, 0, 0}, {0, 1, 0}},
		[]ChunkMetadata{testMetadata("ep01.txt", 0), testMetadata("ep01.txt", 1)},
	)
	if err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	if len(positions) != 2 || positions[0] != 0 || positions[1] != 1 {
		t.Errorf("Expected positions [0 1], got %v", positions)
	}

	meta, err := corpus.Get(1)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if meta.Chunk.SequenceID != 1 {
		t.Errorf("Expected sequence 1 at position 1, got %d", meta.Chunk.SequenceID)
	}
	if corpus.Size() != 2 {
		t.Errorf("Expected size 2, got %d", corpus.Size())
	}
}

func TestAppend_CountMismatch(t *testing.T) {
	corpus := openTestCorpus(t, t.TempDir())

	_, err := corpus.Append(
		[][]float32{{1, 0, 0}, {0, 1, 0}},
		[]ChunkMetadata{testMetadata("ep01.txt", 0)},
	)
	if err == nil {
		t.Fatal("Expected error for mismatched batch lengths")
	}
	if corpus.Size() != 0 {
		t.Errorf("Expected corpus unchanged after failed append, got size %d", corpus.Size())
	}
}

func TestAppend_DimensionMismatchLeavesCorpusUnchanged(t *testing.T) {
	corpus := openTestCorpus(t, t.TempDir())

	_, err := corpus.Append(
		[][]float32{{1, 0, 0}, {0, 1}},
		[]ChunkMetadata{testMetadata("ep01.txt", 0), testMetadata("ep01.txt", 1)},
	)
	if err == nil {
		t.Fatal("Expected dimension mismatch error")
	}
	if corpus.Size() != 0 {
		t.Errorf("Expected corpus unchanged after failed append, got size %d", corpus.Size())
	}
}

func TestAppend_EmptyBatch(t *testing.T) {
	corpus := openTestCorpus(t, t.TempDir())

	positions, err := corpus.Append(nil, nil)
	if err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	if positions != nil {
		t.Errorf("Expected no positions, got %v", positions)
	}
}

func TestGet_OutOfRange(t *testing.T) {
	corpus := openTestCorpus(t, t.TempDir())
	if _, err := corpus.Append([][]float32{{1, 0, 0}}, []ChunkMetadata{testMetadata("ep01.txt", 0)}); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	for _, position := range []int{-1, 1, 99} {
		if _, err := corpus.Get(position); !errors.Is(err, ErrOutOfRange) {
			t.Errorf("Expected ErrOutOfRange for position %d, got %v", position, err)
		}
	}
}

func TestSources_FirstIngestedOrder(t *testing.T) {
	corpus := openTestCorpus(t, t.TempDir())

	_, err := corpus.Append(
		[][]float32{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}, {1, 1, 0}},
		[]ChunkMetadata{
			testMetadata("ep02.txt", 0),
			testMetadata("ep02.txt", 1),
			testMetadata("ep01.txt", 0),
			testMetadata("ep02.txt", 2),
		},
	)
	if err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	sources := corpus.Sources()
	if len(sources) != 2 {
		t.Fatalf("Expected 2 sources, got %d: %v", len(sources), sources)
	}
	if sources[0] != "ep02.txt" || sources[1] != "ep01.txt" {
		t.Errorf("Expected sources in first-ingested order [ep02.txt ep01.txt], got %v", sources)
	}
}

func TestSaveOpen_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	corpus := openTestCorpus(t, dir)

	_, err := corpus.Append(
		[][]float32{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}},
		[]ChunkMetadata{
			testMetadata("ep01.txt", 0),
			testMetadata("ep01.txt", 1),
			testMetadata("ep02.txt", 0),
		},
	)
	if err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	if err := corpus.Save(); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	reopened := openTestCorpus(t, dir)
	if reopened.Status() != LoadStatusLoaded {
		t.Fatalf("Expected status %v, got %v (load error: %v)",
			LoadStatusLoaded, reopened.Status(), reopened.LoadError())
	}
	if reopened.Size() != 3 {
		t.Errorf("Expected size 3 after reload, got %d", reopened.Size())
	}

	meta, err := reopened.Get(2)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if meta.Source.Name != "ep02.txt" {
		t.Errorf("Expected source ep02.txt at position 2, got %s", meta.Source.Name)
	}

	hits, err := reopened.Search([]float32{0, 1, 0}, 1)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(hits) != 1 || hits[0].Position != 1 {
		t.Errorf("Expected nearest position 1, got %v", hits)
	}

	cfg := reopened.Config()
	if cfg.VectorCount != 3 {
		t.Errorf("Expected config vector count 3, got %d", cfg.VectorCount)
	}
	if cfg.EmbedderIdentity != "ollama/nomic-embed-text" {
		t.Errorf("Expected persisted embedder identity, got %q", cfg.EmbedderIdentity)
	}
}

func TestOpen_CorruptConfigResetsEmpty(t *testing.T) {
	dir := t.TempDir()
	corpus := openTestCorpus(t, dir)
	if _, err := corpus.Append([][]float32{{1, 0, 0}}, []ChunkMetadata{testMetadata("ep01.txt", 0)}); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	if err := corpus.Save(); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	if err := os.WriteFile(filepath.Join(dir, configFileName), []byte("{not json"), 0644); err != nil {
		t.Fatalf("Failed to corrupt config: %v", err)
	}

	reopened := openTestCorpus(t, dir)
	if reopened.Status() != LoadStatusCorruptReset {
		t.Fatalf("Expected status %v, got %v", LoadStatusCorruptReset, reopened.Status())
	}
	if !errors.Is(reopened.LoadError(), ErrCorruptIndex) {
		t.Errorf("Expected load error wrapping ErrCorruptIndex, got %v", reopened.LoadError())
	}
	if reopened.Size() != 0 {
		t.Errorf("Expected empty corpus after reset, got size %d", reopened.Size())
	}
}

func TestOpen_EmbedderIdentityMismatch(t *testing.T) {
	dir := t.TempDir()
	corpus := openTestCorpus(t, dir)
	if _, err := corpus.Append([][]float32{{1, 0, 0}}, []ChunkMetadata{testMetadata("ep01.txt", 0)}); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	if err := corpus.Save(); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	opts := testOptions(dir)
	opts.EmbedderIdentity = "openai/text-embedding-3-small"
	reopened, err := Open(opts)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if reopened.Status() != LoadStatusCorruptReset {
		t.Errorf("Expected status %v for embedder mismatch, got %v", LoadStatusCorruptReset, reopened.Status())
	}
	if !errors.Is(reopened.LoadError(), ErrCorruptIndex) {
		t.Errorf("Expected load error wrapping ErrCorruptIndex, got %v", reopened.LoadError())
	}
}

func TestOpen_DimensionMismatch(t *testing.T) {
	dir := t.TempDir()
	corpus := openTestCorpus(t, dir)
	if _, err := corpus.Append([][]float32{{1, 0, 0}}, []ChunkMetadata{testMetadata("ep01.txt", 0)}); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	if err := corpus.Save(); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	opts := testOptions(dir)
	opts.Dimensions = 4
	reopened, err := Open(opts)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if reopened.Status() != LoadStatusCorruptReset {
		t.Errorf("Expected status %v for dimension mismatch, got %v", LoadStatusCorruptReset, reopened.Status())
	}
}

func TestOpen_VectorCountMismatch(t *testing.T) {
	dir := t.TempDir()
	corpus := openTestCorpus(t, dir)
	if _, err := corpus.Append([][]float32{{1, 0, 0}}, []ChunkMetadata{testMetadata("ep01.txt", 0)}); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	if err := corpus.Save(); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	cfgPath := filepath.Join(dir, configFileName)
	data, err := os.ReadFile(cfgPath)
	if err != nil {
		t.Fatalf("Failed to read config: %v", err)
	}
	var cfg IndexConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		t.Fatalf("Failed to parse config: %v", err)
	}
	cfg.VectorCount = 7
	tampered, err := json.Marshal(cfg)
	if err != nil {
		t.Fatalf("Failed to encode config: %v", err)
	}
	if err := os.WriteFile(cfgPath, tampered, 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}

	reopened := openTestCorpus(t, dir)
	if reopened.Status() != LoadStatusCorruptReset {
		t.Errorf("Expected status %v for count mismatch, got %v", LoadStatusCorruptReset, reopened.Status())
	}
}

func TestOpen_MissingArtifact(t *testing.T) {
	dir := t.TempDir()
	corpus := openTestCorpus(t, dir)
	if _, err := corpus.Append([][]float32{{1, 0, 0}}, []ChunkMetadata{testMetadata("ep01.txt", 0)}); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	if err := corpus.Save(); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if err := os.Remove(filepath.Join(dir, corpusFileName)); err != nil {
		t.Fatalf("Failed to remove artifact: %v", err)
	}

	reopened := openTestCorpus(t, dir)
	if reopened.Status() != LoadStatusCorruptReset {
		t.Errorf("Expected status %v for missing artifact, got %v", LoadStatusCorruptReset, reopened.Status())
	}
	if reopened.Size() != 0 {
		t.Errorf("Expected empty corpus after reset, got size %d", reopened.Size())
	}
}

func TestClear_RemovesArtifactsAndState(t *testing.T) {
	dir := t.TempDir()
	corpus := openTestCorpus(t, dir)
	if _, err := corpus.Append([][]float32{{1, 0, 0}}, []ChunkMetadata{testMetadata("ep01.txt", 0)}); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	if err := corpus.Save(); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	if err := corpus.Clear(); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}
	if corpus.Size() != 0 {
		t.Errorf("Expected size 0 after clear, got %d", corpus.Size())
	}
	if corpus.Status() != LoadStatusFresh {
		t.Errorf("Expected status %v after clear, got %v", LoadStatusFresh, corpus.Status())
	}
	for _, name := range []string{configFileName, indexFileName, corpusFileName} {
		if _, err := os.Stat(filepath.Join(dir, name)); !os.IsNotExist(err) {
			t.Errorf("Expected %s removed after clear", name)
		}
	}

	reopened := openTestCorpus(t, dir)
	if reopened.Status() != LoadStatusFresh {
		t.Errorf("Expected fresh corpus after clear and reopen, got %v", reopened.Status())
	}
}

func TestClear_FreshCorpus(t *testing.T) {
	corpus := openTestCorpus(t, t.TempDir())
	if err := corpus.Clear(); err != nil {
		t.Errorf("Clear on fresh corpus failed: %v", err)
	}
}
