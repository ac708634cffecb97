package ingest

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	gitignore "github.com/sabhiram/go-gitignore"

	"github.com/sakuga-labs/scriptrag/internal/embed"
	"github.com/sakuga-labs/scriptrag/internal/extract"
	"github.com/sakuga-labs/scriptrag/internal/store"
)

const defaultMaxFileSize = 32 * 1024 * 1024 // generous cap, scanned script PDFs get large

// defaultIgnores are always excluded from directory ingestion.
var defaultIgnores = []string{".git/", ".scriptrag/"}

// ProgressFunc is called after each file during directory ingestion.
type ProgressFunc func(processed, total int, path string)

// Options configures an Ingestor.
type Options struct {
	Corpus   *store.IndexedCorpus
	Provider embed.Provider
	// Registry routes files to extractors. Nil uses the default registry.
	Registry *extract.Registry
	// Chunker splits extracted text. Nil uses the default word chunker.
	Chunker *Chunker
	// IgnorePatterns are gitignore-style patterns excluded from directory
	// walks, in addition to .gitignore and .scriptragignore files.
	IgnorePatterns []string
	// MaxFileSize caps files considered during directory walks.
	MaxFileSize int64
	// Progress, when set, is invoked per file during directory ingestion.
	Progress ProgressFunc
}

// Result summarizes one ingested document.
type Result struct {
	Source      store.SourceRecord
	ChunksAdded int
}

// FileError records a per-file failure during directory ingestion.
type FileError struct {
	Path string
	Err  error
}

func (e FileError) Error() string {
	return fmt.Sprintf("%s: %v", e.Path, e.Err)
}

// DirResult summarizes a directory ingestion run. Failures hold per-file
// errors; the run continues past them.
type DirResult struct {
	FilesIngested int
	FilesSkipped  int
	ChunksAdded   int
	Failures      []FileError
}

// Ingestor runs the extract, chunk, embed, append pipeline. Each document
// is committed whole or not at all: every chunk is embedded before anything
// is appended to the corpus.
type Ingestor struct {
	corpus      *store.IndexedCorpus
	provider    embed.Provider
	registry    *extract.Registry
	chunker     *Chunker
	ignores     []string
	maxFileSize int64
	progress    ProgressFunc
}

// New validates the options and returns an Ingestor.
func New(opts Options) (*Ingestor, error) {
	if opts.Corpus == nil {
		return nil, fmt.Errorf("%w: corpus is required", ErrInvalidConfiguration)
	}
	if opts.Provider == nil {
		return nil, fmt.Errorf("%w: embedding provider is required", ErrInvalidConfiguration)
	}
	if opts.Provider.Dimensions() != opts.Corpus.Dimensions() {
		return nil, fmt.Errorf("%w: provider dimension %d does not match corpus dimension %d",
			ErrInvalidConfiguration, opts.Provider.Dimensions(), opts.Corpus.Dimensions())
	}

	registry := opts.Registry
	if registry == nil {
		registry = extract.DefaultRegistry()
	}
	chunker := opts.Chunker
	if chunker == nil {
		var err error
		if chunker, err = NewChunker(DefaultChunkerConfig()); err != nil {
			return nil, err
		}
	}
	maxFileSize := opts.MaxFileSize
	if maxFileSize == 0 {
		maxFileSize = defaultMaxFileSize
	}

	return &Ingestor{
		corpus:      opts.Corpus,
		provider:    opts.Provider,
		registry:    registry,
		chunker:     chunker,
		ignores:     opts.IgnorePatterns,
		maxFileSize: maxFileSize,
		progress:    opts.Progress,
	}, nil
}

// IngestFile extracts, chunks, embeds, and appends one document. An empty
// name defaults to the file's base name. Documents that yield no chunks
// return a zero-chunk Result without error and leave the corpus untouched,
// as does any embedding failure.
func (ing *Ingestor) IngestFile(ctx context.Context, path, name string) (Result, error) {
	if name == "" {
		name = filepath.Base(path)
	}

	text, err := ing.registry.Extract(path)
	if err != nil {
		return Result{}, err
	}

	chunks := ing.chunker.Chunk(text)

	originPath := path
	if abs, err := filepath.Abs(path); err == nil {
		originPath = abs
	}
	source := store.NewSourceRecord(name, originPath)
	result := Result{Source: source}
	if len(chunks) == 0 {
		return result, nil
	}

	texts := make([]string, len(chunks))
	for i, chunk := range chunks {
		texts[i] = chunk.Text
	}
	embeddings, err := ing.provider.EmbedBatch(ctx, texts)
	if err != nil {
		return Result{}, fmt.Errorf("embedding %s: %w", name, err)
	}

	metadata := make([]store.ChunkMetadata, len(chunks))
	for i, chunk := range chunks {
		metadata[i] = store.ChunkMetadata{Chunk: chunk, Source: source}
	}
	if _, err := ing.corpus.Append(embeddings, metadata); err != nil {
		return Result{}, fmt.Errorf("indexing %s: %w", name, err)
	}
	if err := ing.corpus.Save(); err != nil {
		return Result{}, fmt.Errorf("saving index after %s: %w", name, err)
	}

	result.ChunksAdded = len(chunks)
	return result, nil
}

// IngestDir ingests every supported file under dir in sorted order.
// Per-file failures are collected in the result; the walk itself failing
// returns an error.
func (ing *Ingestor) IngestDir(ctx context.Context, dir string) (DirResult, error) {
	files, err := ing.collectFiles(dir)
	if err != nil {
		return DirResult{}, err
	}
	return ing.ingestPaths(ctx, files, false), nil
}

// IngestNew ingests only the supported files under dir whose names are not
// yet in the corpus. The index is append-only, so changed files with known
// names are skipped rather than duplicated; rebuilding requires clear + add.
func (ing *Ingestor) IngestNew(ctx context.Context, dir string) (DirResult, error) {
	files, err := ing.collectFiles(dir)
	if err != nil {
		return DirResult{}, err
	}
	return ing.ingestPaths(ctx, files, true), nil
}

// ingestNewPaths is the watcher entry point: ingest the given files,
// skipping names already indexed.
func (ing *Ingestor) ingestNewPaths(ctx context.Context, paths []string) DirResult {
	sort.Strings(paths)
	return ing.ingestPaths(ctx, paths, true)
}

func (ing *Ingestor) ingestPaths(ctx context.Context, paths []string, onlyNew bool) DirResult {
	var known map[string]bool
	if onlyNew {
		known = make(map[string]bool)
		for _, name := range ing.corpus.Sources() {
			known[name] = true
		}
	}

	var result DirResult
	for i, path := range paths {
		if ing.progress != nil {
			ing.progress(i+1, len(paths), path)
		}
		if ctx.Err() != nil {
			result.Failures = append(result.Failures, FileError{Path: path, Err: ctx.Err()})
			return result
		}
		if onlyNew && known[filepath.Base(path)] {
			result.FilesSkipped++
			continue
		}

		fileResult, err := ing.IngestFile(ctx, path, "")
		if err != nil {
			result.Failures = append(result.Failures, FileError{Path: path, Err: err})
			continue
		}
		if fileResult.ChunksAdded == 0 {
			result.FilesSkipped++
			continue
		}
		result.FilesIngested++
		result.ChunksAdded += fileResult.ChunksAdded
		if onlyNew {
			known[fileResult.Source.Name] = true
		}
	}
	return result
}

// collectFiles walks root and returns the supported, non-ignored files in
// sorted order.
func (ing *Ingestor) collectFiles(root string) ([]string, error) {
	info, err := os.Stat(root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", extract.ErrSourceNotFound, root)
		}
		return nil, err
	}
	if !info.IsDir() {
		return []string{root}, nil
	}

	matcher := buildIgnoreMatcher(root, ing.ignores)

	var files []string
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, relErr := filepath.Rel(root, path)
		if relErr != nil || rel == "." {
			return nil
		}
		rel = filepath.ToSlash(rel)

		if d.IsDir() {
			if matcher.MatchesPath(rel + "/") {
				return filepath.SkipDir
			}
			return nil
		}
		if matcher.MatchesPath(rel) {
			return nil
		}
		if !ing.registry.Supports(path) {
			return nil
		}
		if fi, err := d.Info(); err != nil || fi.Size() > ing.maxFileSize {
			return nil
		}

		files = append(files, path)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking %s: %w", root, err)
	}

	sort.Strings(files)
	return files, nil
}

// buildIgnoreMatcher compiles the ignore rules for root: built-in defaults,
// then .gitignore and .scriptragignore if present, then extra patterns.
func buildIgnoreMatcher(root string, extra []string) *gitignore.GitIgnore {
	lines := append([]string{}, defaultIgnores...)

	for _, name := range []string{".gitignore", ".scriptragignore"} {
		data, err := os.ReadFile(filepath.Join(root, name))
		if err != nil {
			continue
		}
		lines = append(lines, strings.Split(string(data), "\n")...)
	}

	lines = append(lines, extra...)
	return gitignore.CompileIgnoreLines(lines...)
}
