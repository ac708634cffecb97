// Package script holds the offline script operations: LLM-backed parsing of
// raw PDFs into structured scripts, and character-window chunk export for
// manual storyboard workflows.
package script

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sakuga-labs/scriptrag/internal/extract"
	"github.com/sakuga-labs/scriptrag/internal/llm"
)

// ScriptTextPlaceholder marks where a parse template wants the extracted
// script substituted. Templates without it are sent as the system prompt
// with the script as the user message.
const ScriptTextPlaceholder = "{SCRIPT_TEXT}"

// DefaultParseTemplate is the built-in master parsing prompt.
const DefaultParseTemplate = `You are a professional anime script editor. Restructure the raw script
text below into a clean production script. Keep every scene in its
original order and format each as:

SCENE <number>: <location / time of day>
CHARACTER: <name>
DIALOGUE: <spoken line>
ACTION: <stage direction>

Preserve the original language of dialogue lines. Do not invent scenes,
characters, or dialogue that are not present in the source.

---

SCRIPT CONTENT:

` + ScriptTextPlaceholder

// ParseOptions configures a parse run.
type ParseOptions struct {
	// TemplatePath overrides the built-in parse template.
	TemplatePath string
	// OutputDir receives <stem>_parsed.txt. Empty uses "output".
	OutputDir string
}

// Parser turns raw script documents into structured scripts via an LLM.
type Parser struct {
	completer llm.Completer
	registry  *extract.Registry
}

// NewParser creates a Parser. A nil registry uses the default extractors.
func NewParser(completer llm.Completer, registry *extract.Registry) *Parser {
	if registry == nil {
		registry = extract.DefaultRegistry()
	}
	return &Parser{
		completer: completer,
		registry:  registry,
	}
}

// Parse extracts path, runs the parse template through the LLM, and writes
// the structured script to <stem>_parsed.txt. Returns the output path.
func (p *Parser) Parse(ctx context.Context, path string, opts ParseOptions) (string, error) {
	text, err := p.registry.Extract(path)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("no text extracted from %s", path)
	}

	template := DefaultParseTemplate
	if opts.TemplatePath != "" {
		data, err := os.ReadFile(opts.TemplatePath)
		if err != nil {
			return "", fmt.Errorf("reading parse template: %w", err)
		}
		template = string(data)
	}

	var system, user string
	if strings.Contains(template, ScriptTextPlaceholder) {
		user = strings.ReplaceAll(template, ScriptTextPlaceholder, text)
	} else {
		system = template
		user = text
	}

	parsed, err := p.completer.Complete(ctx, system, user)
	if err != nil {
		return "", fmt.Errorf("parsing %s: %w", filepath.Base(path), err)
	}

	outputDir := opts.OutputDir
	if outputDir == "" {
		outputDir = "output"
	}
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return "", fmt.Errorf("creating output directory: %w", err)
	}

	stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	outputPath := filepath.Join(outputDir, stem+"_parsed.txt")
	if err := os.WriteFile(outputPath, []byte(parsed), 0644); err != nil {
		return "", fmt.Errorf("writing parsed script: %w", err)
	}
	return outputPath, nil
}
