// Package storyboard turns exported script chunks into storyboard panels
// and per-scene video generation prompts, and enhances both with retrieved
// script context.
package storyboard

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sakuga-labs/scriptrag/internal/llm"
	"github.com/sakuga-labs/scriptrag/internal/script"
)

// PanelBreak separates storyboard panels. The panel templates instruct the
// model to emit it, and de-duplication splits on it.
const PanelBreak = "--- PANEL BREAK ---"

// DefaultStoryboardTemplate is the built-in panel generation prompt.
const DefaultStoryboardTemplate = `You are a storyboard artist for an anime production. Turn the script
excerpt below into storyboard panels. For each panel output exactly:

PANEL <number, 001-based within the scene>
ACTION_DESCRIPTION: <one sentence describing the on-screen action>
DIALOGUE: <spoken line, or NONE>
CAMERA: <shot type and movement>
MOOD: <lighting and tone>

Separate panels with a line containing only:
` + PanelBreak + `

Restart panel numbering at PANEL 001 whenever a new scene begins. Cover
every story beat in the excerpt and invent nothing beyond it.`

// GenerateOptions configures a storyboard run.
type GenerateOptions struct {
	// TemplatePath overrides the built-in storyboard template.
	TemplatePath string
	// Progress, when set, is invoked before each chunk is sent.
	Progress func(current, total int, name string)
}

// Generator drives the per-chunk storyboard pipeline.
type Generator struct {
	completer llm.Completer
}

// NewGenerator creates a Generator over the given completion client.
func NewGenerator(completer llm.Completer) *Generator {
	return &Generator{completer: completer}
}

// Generate walks chunksDir in manifest order, prompts the model per chunk,
// and returns the combined, de-duplicated storyboard. A chunk that fails is
// replaced by an error marker so the rest of the board still renders.
func (g *Generator) Generate(ctx context.Context, chunksDir string, opts GenerateOptions) (string, error) {
	names, err := script.ReadManifest(chunksDir)
	if err != nil {
		return "", err
	}

	template := DefaultStoryboardTemplate
	if opts.TemplatePath != "" {
		data, err := os.ReadFile(opts.TemplatePath)
		if err != nil {
			return "", fmt.Errorf("reading storyboard template: %w", err)
		}
		template = string(data)
	}

	var sections []string
	for i, name := range names {
		if opts.Progress != nil {
			opts.Progress(i+1, len(names), name)
		}
		if err := ctx.Err(); err != nil {
			return "", err
		}

		chunk, err := os.ReadFile(filepath.Join(chunksDir, name))
		if err != nil {
			// A manifest entry whose file vanished is skipped, not fatal.
			continue
		}

		section, err := g.completer.Complete(ctx, template, string(chunk))
		if err != nil {
			sections = append(sections, fmt.Sprintf("--- ERROR PROCESSING CHUNK %d ---", i+1))
			continue
		}
		sections = append(sections, section)
	}
	if len(sections) == 0 {
		return "", fmt.Errorf("no chunks could be processed in %s", chunksDir)
	}

	return DedupPanels(strings.Join(sections, "\n")), nil
}

// GenerateFile runs Generate and writes the board as Markdown. An empty
// outputPath defaults to output/<dir-name>_storyboard.md.
func (g *Generator) GenerateFile(ctx context.Context, chunksDir string, opts GenerateOptions, outputPath string) (string, error) {
	board, err := g.Generate(ctx, chunksDir, opts)
	if err != nil {
		return "", err
	}

	base := filepath.Base(filepath.Clean(chunksDir))
	if outputPath == "" {
		outputPath = filepath.Join("output", base+"_storyboard.md")
	}
	if err := os.MkdirAll(filepath.Dir(outputPath), 0755); err != nil {
		return "", fmt.Errorf("creating output directory: %w", err)
	}

	content := fmt.Sprintf("# Storyboard for %s\n\n%s", base, board)
	if err := os.WriteFile(outputPath, []byte(content), 0644); err != nil {
		return "", fmt.Errorf("writing storyboard: %w", err)
	}
	return outputPath, nil
}

// DedupPanels removes panels that repeat an earlier ACTION_DESCRIPTION line.
// Overlapping chunks make the model re-render boundary panels; the action
// line is stable enough across renders to identify them. Panels without an
// action line are kept as-is.
func DedupPanels(raw string) string {
	blocks := strings.Split(raw, PanelBreak)
	seen := make(map[string]bool)
	var kept []string

	for _, block := range blocks {
		block = strings.TrimSpace(block)
		if block == "" {
			continue
		}
		action := actionLine(block)
		if action == "" {
			kept = append(kept, block)
			continue
		}
		if seen[action] {
			continue
		}
		seen[action] = true
		kept = append(kept, block)
	}

	return strings.Join(kept, "\n\n"+PanelBreak+"\n\n")
}

// actionLine returns the first ACTION_DESCRIPTION line of a panel block.
func actionLine(block string) string {
	for _, line := range strings.Split(block, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(strings.ToUpper(line), "ACTION_DESCRIPTION:") {
			return line
		}
	}
	return ""
}
