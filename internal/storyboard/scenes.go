package storyboard

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// sceneMarker is where panel numbering restarts, which is how the panel
// template marks a new scene.
const sceneMarker = "PANEL 001"

// DefaultPromptTemplate is the built-in meta-prompt for per-scene video
// generation prompts.
const DefaultPromptTemplate = `You are a prompt engineer for an anime video generation model. For the
storyboard scene below, write one video generation prompt per panel. Each
prompt must name the subject, the action, the camera work, and the visual
style, in a single paragraph of no more than 80 words. Output them as a
numbered list matching the panel numbers.`

// SplitScenes splits a storyboard at each point where panel numbering
// restarts. Segments that contain no panels (headers, front matter) are
// dropped.
func SplitScenes(storyboard string) []string {
	var starts []int
	for i := 0; ; {
		j := strings.Index(storyboard[i:], sceneMarker)
		if j < 0 {
			break
		}
		starts = append(starts, i+j)
		i += j + len(sceneMarker)
	}

	bounds := append([]int{0}, starts...)
	var scenes []string
	for idx, start := range bounds {
		end := len(storyboard)
		if idx+1 < len(bounds) {
			end = bounds[idx+1]
		}
		scene := strings.TrimSpace(storyboard[start:end])
		if scene == "" || !strings.Contains(scene, "PANEL") {
			continue
		}
		scenes = append(scenes, scene)
	}
	return scenes
}

// GeneratePrompts runs the meta-prompt over every scene of a storyboard and
// returns the combined prompt blocks. A scene that fails is replaced by an
// error marker so the remaining scenes still render.
func (g *Generator) GeneratePrompts(ctx context.Context, storyboard string, templatePath string) (string, error) {
	template := DefaultPromptTemplate
	if templatePath != "" {
		data, err := os.ReadFile(templatePath)
		if err != nil {
			return "", fmt.Errorf("reading prompt template: %w", err)
		}
		template = string(data)
	}

	scenes := SplitScenes(storyboard)
	if len(scenes) == 0 {
		return "", fmt.Errorf("no scenes found in storyboard")
	}

	var blocks []string
	for _, scene := range scenes {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		block, err := g.completer.Complete(ctx, template, "--- STORYBOARD CONTENT ---\n\n"+scene)
		if err != nil {
			blocks = append(blocks, fmt.Sprintf("--- ERROR PROCESSING SCENE ---\n%v\n", err))
			continue
		}
		blocks = append(blocks, block)
	}
	return strings.Join(blocks, "\n\n"), nil
}

// GeneratePromptsFile reads a storyboard file, generates per-scene prompts,
// and writes them as Markdown. An empty outputPath defaults to
// output/<stem>_prompts_by_scene.md.
func (g *Generator) GeneratePromptsFile(ctx context.Context, storyboardPath, templatePath, outputPath string) (string, error) {
	data, err := os.ReadFile(storyboardPath)
	if err != nil {
		return "", fmt.Errorf("reading storyboard: %w", err)
	}

	prompts, err := g.GeneratePrompts(ctx, string(data), templatePath)
	if err != nil {
		return "", err
	}

	if outputPath == "" {
		stem := strings.TrimSuffix(filepath.Base(storyboardPath), filepath.Ext(storyboardPath))
		outputPath = filepath.Join("output", stem+"_prompts_by_scene.md")
	}
	if err := os.MkdirAll(filepath.Dir(outputPath), 0755); err != nil {
		return "", fmt.Errorf("creating output directory: %w", err)
	}
	if err := os.WriteFile(outputPath, []byte(prompts), 0644); err != nil {
		return "", fmt.Errorf("writing prompts: %w", err)
	}
	return outputPath, nil
}
