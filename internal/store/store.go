package store

import (
	"encoding/gob"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/sakuga-labs/scriptrag/internal/vector"
)

var (
	// ErrCorruptIndex indicates the persisted artifacts are missing in part,
	// unreadable, or inconsistent with each other or the active embedder.
	ErrCorruptIndex = errors.New("corrupt index")

	// ErrOutOfRange indicates a position outside the corpus.
	ErrOutOfRange = errors.New("position out of range")
)

// Artifact file names inside the data directory.
const (
	configFileName = "config.json"
	indexFileName  = "index.bin"
	corpusFileName = "corpus.bin"
)

// LoadStatus reports how a corpus came up on Open.
type LoadStatus int

const (
	// LoadStatusFresh means no prior artifacts existed.
	LoadStatusFresh LoadStatus = iota
	// LoadStatusLoaded means the persisted pair was loaded and validated.
	LoadStatusLoaded
	// LoadStatusCorruptReset means prior artifacts were unusable and the
	// corpus was reset to empty. LoadError holds the cause.
	LoadStatusCorruptReset
)

func (s LoadStatus) String() string {
	switch s {
	case LoadStatusFresh:
		return "fresh"
	case LoadStatusLoaded:
		return "loaded"
	case LoadStatusCorruptReset:
		return "corrupt_reset"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// IndexConfig is the configuration record persisted alongside the index.
// It pins the corpus to the embedder and chunking parameters it was built
// with, so mismatched loads are rejected instead of silently mixing spaces.
type IndexConfig struct {
	EmbedderIdentity   string    `json:"embedder_identity"`
	EmbeddingDimension int       `json:"embedding_dimension"`
	ChunkWindowSize    int       `json:"chunk_window_size"`
	ChunkOverlap       int       `json:"chunk_overlap"`
	VectorCount        int       `json:"vector_count"`
	CreatedAt          time.Time `json:"created_at"`
}

// Options configures Open.
type Options struct {
	// DataDir is the directory holding the persisted artifacts.
	DataDir string
	// EmbedderIdentity names the active embedder as "provider/model".
	// A persisted corpus built with a different identity is rejected.
	EmbedderIdentity string
	// Dimensions is the embedding dimension of the active embedder.
	Dimensions int
	// ChunkWindowSize and ChunkOverlap are recorded in the config record
	// when a fresh corpus is created.
	ChunkWindowSize int
	ChunkOverlap    int
}

// IndexedCorpus pairs a flat vector index with position-aligned chunk
// metadata. Position i in the index corresponds to metadata[i] at all
// times; every mutation grows or clears both sides together.
//
// IndexedCorpus is not safe for concurrent mutation. Callers that share
// one across goroutines must serialize access.
type IndexedCorpus struct {
	dir      string
	index    *vector.Flat
	metadata []ChunkMetadata
	config   IndexConfig
	status   LoadStatus
	loadErr  error
}

// Open loads the corpus persisted under opts.DataDir, or creates an empty
// one when no artifacts exist. Corrupt or mismatched artifacts do not fail
// Open: the corpus comes up empty with LoadStatusCorruptReset and the cause
// available from LoadError.
func Open(opts Options) (*IndexedCorpus, error) {
	if opts.DataDir == "" {
		return nil, fmt.Errorf("data directory is required")
	}
	if opts.Dimensions <= 0 {
		return nil, fmt.Errorf("invalid embedding dimension %d", opts.Dimensions)
	}
	if err := os.MkdirAll(opts.DataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	c := &IndexedCorpus{dir: opts.DataDir}

	if !c.artifactsPresent() {
		c.reset(opts)
		c.status = LoadStatusFresh
		return c, nil
	}

	if err := c.load(opts); err != nil {
		c.reset(opts)
		c.status = LoadStatusCorruptReset
		c.loadErr = err
		return c, nil
	}

	c.status = LoadStatusLoaded
	return c, nil
}

// artifactsPresent reports whether any persisted artifact exists. A partial
// set counts as present so load can classify it as corrupt.
func (c *IndexedCorpus) artifactsPresent() bool {
	for _, name := range []string{configFileName, indexFileName, corpusFileName} {
		if _, err := os.Stat(filepath.Join(c.dir, name)); err == nil {
			return true
		}
	}
	return false
}

// reset discards in-memory state and starts an empty corpus for opts.
func (c *IndexedCorpus) reset(opts Options) {
	c.index, _ = vector.NewFlat(opts.Dimensions)
	c.metadata = nil
	c.config = IndexConfig{
		EmbedderIdentity:   opts.EmbedderIdentity,
		EmbeddingDimension: opts.Dimensions,
		ChunkWindowSize:    opts.ChunkWindowSize,
		ChunkOverlap:       opts.ChunkOverlap,
		VectorCount:        0,
		CreatedAt:          time.Now().UTC(),
	}
}

// load reads and validates the persisted pair. Any failure wraps
// ErrCorruptIndex.
func (c *IndexedCorpus) load(opts Options) error {
	cfgPath := filepath.Join(c.dir, configFileName)
	data, err := os.ReadFile(cfgPath)
	if err != nil {
		return fmt.Errorf("%w: reading config record: %v", ErrCorruptIndex, err)
	}
	var cfg IndexConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return fmt.Errorf("%w: parsing config record: %v", ErrCorruptIndex, err)
	}
	if cfg.EmbeddingDimension <= 0 {
		return fmt.Errorf("%w: config records dimension %d", ErrCorruptIndex, cfg.EmbeddingDimension)
	}
	if cfg.EmbeddingDimension != opts.Dimensions {
		return fmt.Errorf("%w: index built with dimension %d, active embedder has %d",
			ErrCorruptIndex, cfg.EmbeddingDimension, opts.Dimensions)
	}
	if opts.EmbedderIdentity != "" && cfg.EmbedderIdentity != opts.EmbedderIdentity {
		return fmt.Errorf("%w: index built with embedder %q, active embedder is %q",
			ErrCorruptIndex, cfg.EmbedderIdentity, opts.EmbedderIdentity)
	}

	idx, err := vector.Load(filepath.Join(c.dir, indexFileName))
	if err != nil {
		return fmt.Errorf("%w: loading vector index: %v", ErrCorruptIndex, err)
	}
	if idx.Dimensions() != cfg.EmbeddingDimension {
		return fmt.Errorf("%w: vector index has dimension %d, config records %d",
			ErrCorruptIndex, idx.Dimensions(), cfg.EmbeddingDimension)
	}

	meta, err := loadMetadata(filepath.Join(c.dir, corpusFileName))
	if err != nil {
		return fmt.Errorf("%w: loading chunk metadata: %v", ErrCorruptIndex, err)
	}

	if idx.Size() != len(meta) {
		return fmt.Errorf("%w: vector index has %d entries, metadata has %d",
			ErrCorruptIndex, idx.Size(), len(meta))
	}
	if cfg.VectorCount != idx.Size() {
		return fmt.Errorf("%w: config records %d vectors, index has %d",
			ErrCorruptIndex, cfg.VectorCount, idx.Size())
	}

	c.index = idx
	c.metadata = meta
	c.config = cfg
	return nil
}

// Append adds a batch of embeddings with their metadata. The batch is
// all-or-nothing: on any error neither the index nor the metadata grows.
// Returned positions are the assigned index positions in batch order.
func (c *IndexedCorpus) Append(embeddings [][]float32, metadata []ChunkMetadata) ([]int, error) {
	if len(embeddings) != len(metadata) {
		return nil, fmt.Errorf("embedding count %d does not match metadata count %d",
			len(embeddings), len(metadata))
	}
	if len(embeddings) == 0 {
		return nil, nil
	}
	positions, err := c.index.Insert(embeddings)
	if err != nil {
		return nil, err
	}
	c.metadata = append(c.metadata, metadata...)
	return positions, nil
}

// Get returns the metadata stored at position.
func (c *IndexedCorpus) Get(position int) (ChunkMetadata, error) {
	if position < 0 || position >= len(c.metadata) {
		return ChunkMetadata{}, fmt.Errorf("%w: position %d, size %d", ErrOutOfRange, position, len(c.metadata))
	}
	return c.metadata[position], nil
}

// Search returns up to k nearest neighbors of query.
func (c *IndexedCorpus) Search(query []float32, k int) ([]vector.Hit, error) {
	return c.index.Search(query, k)
}

// Size returns the number of indexed chunks.
func (c *IndexedCorpus) Size() int {
	return len(c.metadata)
}

// Dimensions returns the embedding dimension of the corpus.
func (c *IndexedCorpus) Dimensions() int {
	return c.index.Dimensions()
}

// Sources returns the distinct source names in first-ingested order.
func (c *IndexedCorpus) Sources() []string {
	seen := make(map[string]bool, len(c.metadata))
	var names []string
	for _, m := range c.metadata {
		if !seen[m.Source.Name] {
			seen[m.Source.Name] = true
			names = append(names, m.Source.Name)
		}
	}
	return names
}

// Status reports how the corpus came up on Open.
func (c *IndexedCorpus) Status() LoadStatus {
	return c.status
}

// LoadError returns the cause when Status is LoadStatusCorruptReset,
// nil otherwise.
func (c *IndexedCorpus) LoadError() error {
	return c.loadErr
}

// Config returns the configuration record with the current vector count.
func (c *IndexedCorpus) Config() IndexConfig {
	cfg := c.config
	cfg.VectorCount = len(c.metadata)
	return cfg
}

// DataDir returns the directory holding the persisted artifacts.
func (c *IndexedCorpus) DataDir() string {
	return c.dir
}

// Save persists the config record, the vector index, and the chunk metadata.
// Each artifact is written to a temporary file and renamed into place.
func (c *IndexedCorpus) Save() error {
	cfg := c.Config()
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode config record: %w", err)
	}
	if err := writeFileAtomic(filepath.Join(c.dir, configFileName), data); err != nil {
		return fmt.Errorf("failed to write config record: %w", err)
	}
	if err := c.index.Save(filepath.Join(c.dir, indexFileName)); err != nil {
		return fmt.Errorf("failed to write vector index: %w", err)
	}
	if err := saveMetadata(filepath.Join(c.dir, corpusFileName), c.metadata); err != nil {
		return fmt.Errorf("failed to write chunk metadata: %w", err)
	}
	return nil
}

// Clear removes the persisted artifacts and resets the corpus to empty.
// The embedder identity and chunking parameters carry over.
func (c *IndexedCorpus) Clear() error {
	for _, name := range []string{configFileName, indexFileName, corpusFileName} {
		path := filepath.Join(c.dir, name)
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to remove %s: %w", name, err)
		}
	}
	c.reset(Options{
		DataDir:          c.dir,
		EmbedderIdentity: c.config.EmbedderIdentity,
		Dimensions:       c.config.EmbeddingDimension,
		ChunkWindowSize:  c.config.ChunkWindowSize,
		ChunkOverlap:     c.config.ChunkOverlap,
	})
	c.status = LoadStatusFresh
	c.loadErr = nil
	return nil
}

func saveMetadata(path string, metadata []ChunkMetadata) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".corpus-*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if err := gob.NewEncoder(tmp).Encode(metadata); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

func loadMetadata(path string) ([]ChunkMetadata, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var metadata []ChunkMetadata
	if err := gob.NewDecoder(f).Decode(&metadata); err != nil {
		return nil, err
	}
	return metadata, nil
}

func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".config-*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
