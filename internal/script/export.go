package script

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/sakuga-labs/scriptrag/internal/extract"
	"github.com/sakuga-labs/scriptrag/internal/ingest"
)

// Character-window defaults for offline chunk export. These are far larger
// than the index windows: each file is meant to fill one LLM call.
const (
	DefaultExportChunkSize = 4000
	DefaultExportOverlap   = 400
)

// ManifestName is the chunk-order manifest written next to the chunk files.
const ManifestName = "chunks_manifest.txt"

// manifestEntry matches one chunk-order line, e.g. "Chunk 001: chunk_001.txt".
var manifestEntry = regexp.MustCompile(`^Chunk \d+:\s*(chunk_\d+\.txt)`)

// ExportOptions configures a chunk export run.
type ExportOptions struct {
	// ChunkSize and Overlap are in characters. Zero uses the defaults.
	ChunkSize int
	Overlap   int
	// OutputDir is the parent for the timestamped export directory.
	// Empty uses "output/chunked_scripts".
	OutputDir string
}

// ExportResult describes a completed export.
type ExportResult struct {
	// Dir is the created export directory.
	Dir string
	// ChunkFiles holds the chunk file names in document order.
	ChunkFiles []string
	// ManifestPath is the written manifest.
	ManifestPath string
}

// Exporter writes a script out as overlapping character-window chunk files.
type Exporter struct {
	registry *extract.Registry
}

// NewExporter creates an Exporter. A nil registry uses the default extractors.
func NewExporter(registry *extract.Registry) *Exporter {
	if registry == nil {
		registry = extract.DefaultRegistry()
	}
	return &Exporter{registry: registry}
}

// ExportChunks extracts path, splits it into character windows, and writes
// chunk_001.txt ... plus a manifest into a timestamped directory.
func (e *Exporter) ExportChunks(path string, opts ExportOptions) (ExportResult, error) {
	if opts.ChunkSize == 0 {
		opts.ChunkSize = DefaultExportChunkSize
	}
	if opts.Overlap == 0 {
		opts.Overlap = DefaultExportOverlap
	}
	if opts.OutputDir == "" {
		opts.OutputDir = filepath.Join("output", "chunked_scripts")
	}

	text, err := e.registry.Extract(path)
	if err != nil {
		return ExportResult{}, err
	}
	if strings.TrimSpace(text) == "" {
		return ExportResult{}, fmt.Errorf("no text extracted from %s", path)
	}

	chunker, err := ingest.NewChunker(ingest.ChunkerConfig{
		Mode:       ingest.ModeChar,
		WindowSize: opts.ChunkSize,
		Overlap:    opts.Overlap,
	})
	if err != nil {
		return ExportResult{}, err
	}
	chunks := chunker.Chunk(text)
	if len(chunks) == 0 {
		return ExportResult{}, fmt.Errorf("no chunks produced from %s", path)
	}

	stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	timestamp := time.Now().Format("20060102_150405")
	dir := filepath.Join(opts.OutputDir, fmt.Sprintf("%s_chunks_%s", stem, timestamp))
	if err := os.MkdirAll(dir, 0755); err != nil {
		return ExportResult{}, fmt.Errorf("creating export directory: %w", err)
	}

	names := make([]string, 0, len(chunks))
	for i, chunk := range chunks {
		name := fmt.Sprintf("chunk_%03d.txt", i+1)
		if err := os.WriteFile(filepath.Join(dir, name), []byte(chunk.Text), 0644); err != nil {
			return ExportResult{}, fmt.Errorf("writing %s: %w", name, err)
		}
		names = append(names, name)
	}

	manifestPath := filepath.Join(dir, ManifestName)
	if err := writeManifest(manifestPath, path, timestamp, opts, names); err != nil {
		return ExportResult{}, err
	}

	return ExportResult{
		Dir:          dir,
		ChunkFiles:   names,
		ManifestPath: manifestPath,
	}, nil
}

func writeManifest(manifestPath, source, timestamp string, opts ExportOptions, names []string) error {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Source: %s\n", source)
	fmt.Fprintf(&sb, "Timestamp: %s\n", timestamp)
	fmt.Fprintf(&sb, "Chunk Size (chars): %d\n", opts.ChunkSize)
	fmt.Fprintf(&sb, "Overlap Size (chars): %d\n", opts.Overlap)
	fmt.Fprintf(&sb, "Total Chunks: %d\n\n", len(names))
	sb.WriteString("--- Chunk Order ---\n")
	for i, name := range names {
		fmt.Fprintf(&sb, "Chunk %03d: %s\n", i+1, name)
	}

	if err := os.WriteFile(manifestPath, []byte(sb.String()), 0644); err != nil {
		return fmt.Errorf("writing manifest: %w", err)
	}
	return nil
}

// ReadManifest returns the chunk file names listed in dir's manifest, in
// manifest order.
func ReadManifest(dir string) ([]string, error) {
	f, err := os.Open(filepath.Join(dir, ManifestName))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s in %s", extract.ErrSourceNotFound, ManifestName, dir)
		}
		return nil, fmt.Errorf("opening manifest: %w", err)
	}
	defer f.Close()

	var names []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		if m := manifestEntry.FindStringSubmatch(strings.TrimSpace(scanner.Text())); m != nil {
			names = append(names, m[1])
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading manifest: %w", err)
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("no chunk files listed in %s", ManifestName)
	}
	return names, nil
}
