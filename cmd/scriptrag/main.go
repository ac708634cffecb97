package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/sakuga-labs/scriptrag/internal/config"
	"github.com/sakuga-labs/scriptrag/internal/embed"
	"github.com/sakuga-labs/scriptrag/internal/ingest"
	"github.com/sakuga-labs/scriptrag/internal/llm"
	"github.com/sakuga-labs/scriptrag/internal/mcp"
	"github.com/sakuga-labs/scriptrag/internal/script"
	"github.com/sakuga-labs/scriptrag/internal/search"
	"github.com/sakuga-labs/scriptrag/internal/store"
	"github.com/sakuga-labs/scriptrag/internal/storyboard"
	"github.com/sakuga-labs/scriptrag/internal/version"
	"github.com/sakuga-labs/scriptrag/internal/web"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "scriptrag",
	Short:   "Retrieval-augmented search over anime production scripts",
	Version: version.Full(),
	Long: `scriptrag indexes anime script documents into a local vector index
and retrieves the passages most relevant to a query, a prompt, or a
storyboard under construction.

Embeddings come from Ollama by default, so scripts never leave your
machine; OpenAI-compatible providers are supported for hosted setups.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		// Best effort; a missing .env is fine.
		_ = godotenv.Load()
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("scriptrag %s\n", version.Version)
		fmt.Printf("  commit:  %s\n", version.Commit)
		fmt.Printf("  built:   %s\n", version.Date)
	},
}

var addCmd = &cobra.Command{
	Use:   "add <path>...",
	Short: "Ingest script documents into the index",
	Long: `Ingest one or more script documents (PDF, txt, md) into the index.
Directories are walked recursively; .gitignore and .scriptragignore
rules apply.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAdd,
}

var queryCmd = &cobra.Command{
	Use:   "query <text>",
	Short: "Search the indexed scripts semantically",
	Long: `Search the indexed scripts with a natural language query. Returns
the most relevant chunks ranked by similarity.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runQuery,
}

var contextCmd = &cobra.Command{
	Use:   "context <prompt>",
	Short: "Build a context block for a prompt",
	Long: `Retrieve the script passages most relevant to a prompt and print
them as a length-budgeted context block ready for prompt injection.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runContext,
}

var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show index status and statistics",
	RunE:  runInfo,
}

var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete the persisted index",
	Long: `Delete the persisted index artifacts. This cannot be undone.
Without --confirm the command only reports what would be removed.`,
	RunE: runClear,
}

var parseCmd = &cobra.Command{
	Use:   "parse <script>",
	Short: "Restructure a raw script through the completion model",
	Long: `Extract a raw script document and restructure it into clean scene,
action, and dialogue blocks via the completion model. The structured
script is written to <stem>_parsed.txt.`,
	Args: cobra.ExactArgs(1),
	RunE: runParse,
}

var exportCmd = &cobra.Command{
	Use:   "export <script>",
	Short: "Export a script as character-window chunk files",
	Long: `Split a script document into large character windows and write them
as chunk_001.txt, chunk_002.txt, ... plus a manifest, into a timestamped
directory. Each file is sized to fill one completion call.`,
	Args: cobra.ExactArgs(1),
	RunE: runExport,
}

var storyboardCmd = &cobra.Command{
	Use:   "storyboard <chunks-dir>",
	Short: "Generate a storyboard from exported chunks",
	Long: `Walk an exported chunk directory in manifest order, prompt the
completion model per chunk, and write the combined storyboard as
Markdown.`,
	Args: cobra.ExactArgs(1),
	RunE: runStoryboard,
}

var promptsCmd = &cobra.Command{
	Use:   "prompts <storyboard-file>",
	Short: "Generate per-scene video prompts from a storyboard",
	Long: `Split a storyboard into scenes and generate one video generation
prompt per scene via the completion model.`,
	Args: cobra.ExactArgs(1),
	RunE: runPrompts,
}

var enhanceCmd = &cobra.Command{
	Use:   "enhance <file>",
	Short: "Prepend retrieved script context to a storyboard or prompt",
	Long: `Enhance a storyboard file (or, with --prompt, a video generation
prompt) by prepending the most relevant script context from the index.`,
	Args: cobra.ExactArgs(1),
	RunE: runEnhance,
}

var watchCmd = &cobra.Command{
	Use:   "watch <dir>",
	Short: "Watch a directory and ingest new scripts",
	Long: `Watch a directory for new or changed script documents and ingest
them as they appear. Runs until interrupted.`,
	Args: cobra.ExactArgs(1),
	RunE: runWatch,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	Long:  `Serve the JSON API (query, context, ingest, info) over HTTP.`,
	RunE:  runServe,
}

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start the MCP server on stdio",
	Long: `Expose the script index to MCP clients over stdio. Provides the
script_query, script_context, script_info, and script_ingest tools.`,
	RunE: runMCP,
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or initialize the configuration",
	Long: `Show the resolved configuration, or with --init write the default
config file into the data directory.

Configuration is resolved in the following order (highest to lowest priority):
1. Environment variables (SCRIPTRAG_*)
2. Project root scriptrag.yaml or scriptrag.yml
3. .scriptrag/config.yaml
4. Built-in defaults`,
	RunE: runConfig,
}

func init() {
	rootCmd.SetVersionTemplate("scriptrag version {{.Version}}\n")

	// Add command flags
	addCmd.Flags().String("name", "", "display name for the document (single file only)")
	addCmd.Flags().Int("chunk-size", 0, "chunk window size (overrides config)")
	addCmd.Flags().Int("chunk-overlap", 0, "chunk overlap (overrides config)")
	addCmd.Flags().String("mode", "", "chunking mode: word or char (overrides config)")

	// Query command flags
	queryCmd.Flags().IntP("top-k", "k", 0, "number of results (overrides config)")
	queryCmd.Flags().StringP("format", "f", "simple", "output format (simple, detailed, json)")

	// Context command flags
	contextCmd.Flags().Int("max-length", 0, "context budget in characters (overrides config)")

	// Info command flags
	infoCmd.Flags().StringP("format", "f", "default", "output format (default, json)")

	// Clear command flags
	clearCmd.Flags().Bool("confirm", false, "actually delete the index")

	// Parse command flags
	parseCmd.Flags().String("template", "", "parse template file")
	parseCmd.Flags().String("output-dir", "", `output directory (default "output")`)

	// Export command flags
	exportCmd.Flags().Int("chunk-size", 0, "chunk size in characters (default 4000)")
	exportCmd.Flags().Int("chunk-overlap", 0, "chunk overlap in characters (default 400)")
	exportCmd.Flags().String("output-dir", "", `parent directory for the export (default "output/chunked_scripts")`)

	// Storyboard command flags
	storyboardCmd.Flags().String("template", "", "storyboard template file")
	storyboardCmd.Flags().StringP("output", "o", "", "output path (default output/<dir>_storyboard.md)")

	// Prompts command flags
	promptsCmd.Flags().String("template", "", "prompt template file")
	promptsCmd.Flags().StringP("output", "o", "", "output path (default output/<stem>_prompts_by_scene.md)")

	// Enhance command flags
	enhanceCmd.Flags().Bool("prompt", false, "treat the file as a video generation prompt")
	enhanceCmd.Flags().Int("max-context", 0, "context budget in characters (default 1500, 1000 with --prompt)")
	enhanceCmd.Flags().StringP("output", "o", "", "output path (default <stem>_enhanced<ext>)")

	// Serve command flags
	serveCmd.Flags().String("host", "", "server host (overrides config)")
	serveCmd.Flags().IntP("port", "p", 0, "server port (overrides config)")

	// Config command flags
	configCmd.Flags().Bool("init", false, "write the default config file")
	configCmd.Flags().Bool("show", false, "show the resolved configuration (default)")

	// Add commands
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(addCmd)
	rootCmd.AddCommand(queryCmd)
	rootCmd.AddCommand(contextCmd)
	rootCmd.AddCommand(infoCmd)
	rootCmd.AddCommand(clearCmd)
	rootCmd.AddCommand(parseCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(storyboardCmd)
	rootCmd.AddCommand(promptsCmd)
	rootCmd.AddCommand(enhanceCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(mcpCmd)
	rootCmd.AddCommand(configCmd)
}

// project bundles what a command needs to touch the index.
type project struct {
	cfg      *config.Config
	corpus   *store.IndexedCorpus
	provider embed.Provider
}

// loadConfig resolves configuration for the working project.
func loadConfig() (*config.Config, error) {
	root, err := config.FindProjectRoot()
	if err != nil {
		return nil, err
	}
	cfg, err := config.Load(root)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

// openProjectWith builds the embedding provider and opens the indexed
// corpus for an already-resolved configuration.
func openProjectWith(cfg *config.Config) (*project, error) {
	baseURL := cfg.Embedding.OllamaURL
	if cfg.Embedding.Provider == "openai" {
		baseURL = cfg.Embedding.OpenAIBaseURL
	}
	provider, err := embed.NewProvider(embed.Settings{
		Provider:   cfg.Embedding.Provider,
		Model:      cfg.Embedding.Model,
		Dimensions: cfg.Embedding.Dimensions,
		BaseURL:    baseURL,
		APIKey:     cfg.Embedding.OpenAIAPIKey,
		CacheSize:  cfg.Embedding.CacheSize,
	})
	if err != nil {
		return nil, err
	}

	corpus, err := store.Open(store.Options{
		DataDir:          cfg.DataDir,
		EmbedderIdentity: provider.Identity(),
		Dimensions:       provider.Dimensions(),
		ChunkWindowSize:  cfg.Chunking.WindowSize,
		ChunkOverlap:     cfg.Chunking.Overlap,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open index: %w", err)
	}
	if corpus.Status() == store.LoadStatusCorruptReset {
		color.New(color.FgYellow).Fprintf(color.Error,
			"Warning: persisted index was unusable and has been reset (%v)\n", corpus.LoadError())
	}

	return &project{cfg: cfg, corpus: corpus, provider: provider}, nil
}

// openProject resolves configuration and opens the indexed corpus.
func openProject() (*project, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return openProjectWith(cfg)
}

// newIngestor wires the ingestion pipeline for a project.
func newIngestor(proj *project, progress ingest.ProgressFunc) (*ingest.Ingestor, error) {
	chunker, err := ingest.NewChunker(ingest.ChunkerConfig{
		WindowSize: proj.cfg.Chunking.WindowSize,
		Overlap:    proj.cfg.Chunking.Overlap,
		Mode:       ingest.Mode(proj.cfg.Chunking.Mode),
	})
	if err != nil {
		return nil, err
	}
	return ingest.New(ingest.Options{
		Corpus:   proj.corpus,
		Provider: proj.provider,
		Chunker:  chunker,
		Progress: progress,
	})
}

// newCompleter builds the completion client from config.
func newCompleter(cfg *config.Config) (llm.Completer, error) {
	return llm.NewClient(llm.Config{
		BaseURL:     cfg.LLM.BaseURL,
		APIKey:      cfg.LLM.APIKey,
		Model:       cfg.LLM.Model,
		Temperature: float32(cfg.LLM.Temperature),
		MaxTokens:   cfg.LLM.MaxTokens,
	})
}

// signalContext returns a context canceled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		fmt.Fprintln(os.Stderr, "\nShutting down...")
		cancel()
	}()
	return ctx, cancel
}

// printBlock prints s with a guaranteed trailing newline.
func printBlock(s string) {
	fmt.Print(s)
	if !strings.HasSuffix(s, "\n") {
		fmt.Println()
	}
}

func isDirectory(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

func runAdd(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("chunk-size") {
		cfg.Chunking.WindowSize, _ = cmd.Flags().GetInt("chunk-size")
	}
	if cmd.Flags().Changed("chunk-overlap") {
		cfg.Chunking.Overlap, _ = cmd.Flags().GetInt("chunk-overlap")
	}
	if cmd.Flags().Changed("mode") {
		cfg.Chunking.Mode, _ = cmd.Flags().GetString("mode")
	}
	name, _ := cmd.Flags().GetString("name")

	proj, err := openProjectWith(cfg)
	if err != nil {
		return err
	}

	ctx := context.Background()
	if err := proj.provider.Ping(ctx); err != nil {
		return fmt.Errorf("embedding provider unavailable: %w\nMake sure the provider is running and the model %q is available", err, cfg.Embedding.Model)
	}

	ingestor, err := newIngestor(proj, func(processed, total int, path string) {
		fmt.Printf("\r  %s (%d/%d)", path, processed, total)
	})
	if err != nil {
		return err
	}

	if name != "" && (len(args) > 1 || isDirectory(args[0])) {
		color.Yellow("Warning: --name applies to a single file, ignoring it")
		name = ""
	}

	for _, path := range args {
		info, err := os.Stat(path)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}

		if info.IsDir() {
			result, err := ingestor.IngestDir(ctx, path)
			if err != nil {
				return err
			}
			fmt.Println()
			color.Green("Ingested %d file(s) from %s: %d chunks", result.FilesIngested, path, result.ChunksAdded)
			if result.FilesSkipped > 0 {
				fmt.Printf("  Skipped: %d file(s)\n", result.FilesSkipped)
			}
			for _, failure := range result.Failures {
				color.Red("  Failed: %v", failure)
			}
			continue
		}

		result, err := ingestor.IngestFile(ctx, path, name)
		if err != nil {
			return err
		}
		if result.ChunksAdded == 0 {
			color.Yellow("No text extracted from %s, nothing added", path)
			continue
		}
		color.Green("Added %q: %d chunks", result.Source.Name, result.ChunksAdded)
	}

	fmt.Printf("\nIndex now holds %d vectors.\n", proj.corpus.Size())
	return nil
}

func runQuery(cmd *cobra.Command, args []string) error {
	proj, err := openProject()
	if err != nil {
		return err
	}

	query := strings.Join(args, " ")
	topK, _ := cmd.Flags().GetInt("top-k")
	if topK <= 0 {
		topK = proj.cfg.Retrieval.TopK
	}
	format, _ := cmd.Flags().GetString("format")

	retriever := search.NewRetriever(proj.corpus, proj.provider)
	results, err := retriever.RetrieveStrict(context.Background(), query, topK)
	if err != nil {
		return fmt.Errorf("query failed: %w", err)
	}

	printBlock(search.FormatResults(results, search.OutputFormat(format)))
	return nil
}

func runContext(cmd *cobra.Command, args []string) error {
	proj, err := openProject()
	if err != nil {
		return err
	}

	prompt := strings.Join(args, " ")
	maxLength, _ := cmd.Flags().GetInt("max-length")
	if maxLength <= 0 {
		maxLength = proj.cfg.Retrieval.MaxContextLength
	}

	retriever := search.NewRetriever(proj.corpus, proj.provider)
	printBlock(retriever.FormatForPrompt(context.Background(), prompt, maxLength))
	return nil
}

func runInfo(cmd *cobra.Command, args []string) error {
	proj, err := openProject()
	if err != nil {
		return err
	}
	format, _ := cmd.Flags().GetString("format")

	retriever := search.NewRetriever(proj.corpus, proj.provider)
	info := retriever.Info()

	if format == "json" {
		data, err := json.MarshalIndent(info, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(data))
		return nil
	}

	fmt.Println("Script index")
	fmt.Printf("  Data dir: %s\n", proj.corpus.DataDir())
	if proj.corpus.Status() == store.LoadStatusCorruptReset {
		color.Red("  Status: %s (%v)", proj.corpus.Status(), proj.corpus.LoadError())
	} else {
		color.Green("  Status: %s", proj.corpus.Status())
	}
	fmt.Printf("  Vectors: %d\n", info["num_vectors"])
	fmt.Printf("  Embedding: %s, %d dimensions (%s)\n",
		info["embedding_model"], info["embedding_dim"], proj.cfg.Embedding.Provider)
	fmt.Printf("  Chunking: %d units per window, %d overlap\n",
		info["chunk_size"], info["chunk_overlap"])

	sources, _ := info["sources"].([]string)
	if len(sources) == 0 {
		fmt.Println("\nNo documents indexed. Run 'scriptrag add <path>' to get started.")
		return nil
	}
	fmt.Printf("\nSources (%d):\n", len(sources))
	for _, name := range sources {
		fmt.Printf("  - %s\n", name)
	}
	return nil
}

func runClear(cmd *cobra.Command, args []string) error {
	confirm, _ := cmd.Flags().GetBool("confirm")

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if !confirm {
		color.Yellow("This would delete all indexed data under %s.", cfg.DataDir)
		fmt.Println("Re-run with --confirm to proceed.")
		return nil
	}

	proj, err := openProjectWith(cfg)
	if err != nil {
		return err
	}
	if err := proj.corpus.Clear(); err != nil {
		return fmt.Errorf("failed to clear index: %w", err)
	}

	color.Green("Index cleared: removed persisted artifacts under %s.", cfg.DataDir)
	return nil
}

func runParse(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	template, _ := cmd.Flags().GetString("template")
	outputDir, _ := cmd.Flags().GetString("output-dir")

	completer, err := newCompleter(cfg)
	if err != nil {
		return err
	}

	parser := script.NewParser(completer, nil)
	fmt.Printf("Parsing %s with %s...\n", args[0], completer.Model())
	outPath, err := parser.Parse(context.Background(), args[0], script.ParseOptions{
		TemplatePath: template,
		OutputDir:    outputDir,
	})
	if err != nil {
		return fmt.Errorf("parse failed: %w", err)
	}

	color.Green("Structured script written to %s", outPath)
	return nil
}

func runExport(cmd *cobra.Command, args []string) error {
	chunkSize, _ := cmd.Flags().GetInt("chunk-size")
	overlap, _ := cmd.Flags().GetInt("chunk-overlap")
	outputDir, _ := cmd.Flags().GetString("output-dir")

	exporter := script.NewExporter(nil)
	result, err := exporter.ExportChunks(args[0], script.ExportOptions{
		ChunkSize: chunkSize,
		Overlap:   overlap,
		OutputDir: outputDir,
	})
	if err != nil {
		return fmt.Errorf("export failed: %w", err)
	}

	color.Green("Exported %d chunk(s) to %s", len(result.ChunkFiles), result.Dir)
	fmt.Printf("  Manifest: %s\n", result.ManifestPath)
	return nil
}

func runStoryboard(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	template, _ := cmd.Flags().GetString("template")
	output, _ := cmd.Flags().GetString("output")

	completer, err := newCompleter(cfg)
	if err != nil {
		return err
	}

	generator := storyboard.NewGenerator(completer)
	outPath, err := generator.GenerateFile(context.Background(), args[0], storyboard.GenerateOptions{
		TemplatePath: template,
		Progress: func(current, total int, name string) {
			fmt.Printf("\r  Generating %d/%d (%s)", current, total, name)
		},
	}, output)
	fmt.Println()
	if err != nil {
		return fmt.Errorf("storyboard generation failed: %w", err)
	}

	color.Green("Storyboard written to %s", outPath)
	return nil
}

func runPrompts(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	template, _ := cmd.Flags().GetString("template")
	output, _ := cmd.Flags().GetString("output")

	completer, err := newCompleter(cfg)
	if err != nil {
		return err
	}

	generator := storyboard.NewGenerator(completer)
	outPath, err := generator.GeneratePromptsFile(context.Background(), args[0], template, output)
	if err != nil {
		return fmt.Errorf("prompt generation failed: %w", err)
	}

	color.Green("Scene prompts written to %s", outPath)
	return nil
}

func runEnhance(cmd *cobra.Command, args []string) error {
	proj, err := openProject()
	if err != nil {
		return err
	}
	promptMode, _ := cmd.Flags().GetBool("prompt")
	maxContext, _ := cmd.Flags().GetInt("max-context")
	output, _ := cmd.Flags().GetString("output")

	retriever := search.NewRetriever(proj.corpus, proj.provider)
	enhancer := storyboard.NewEnhancer(retriever)
	ctx := context.Background()

	if promptMode {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("reading prompt: %w", err)
		}
		enhanced := enhancer.EnhancePrompt(ctx, string(data), maxContext)
		if output == "" {
			printBlock(enhanced)
			return nil
		}
		if err := os.WriteFile(output, []byte(enhanced), 0644); err != nil {
			return fmt.Errorf("writing enhanced prompt: %w", err)
		}
		color.Green("Enhanced prompt written to %s", output)
		return nil
	}

	outPath, err := enhancer.EnhanceFile(ctx, args[0], output, maxContext)
	if err != nil {
		return err
	}

	color.Green("Enhanced storyboard written to %s", outPath)
	return nil
}

func runWatch(cmd *cobra.Command, args []string) error {
	proj, err := openProject()
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	if err := proj.provider.Ping(ctx); err != nil {
		return fmt.Errorf("embedding provider unavailable: %w", err)
	}

	ingestor, err := newIngestor(proj, nil)
	if err != nil {
		return err
	}

	// Catch up on documents that appeared while not watching.
	result, err := ingestor.IngestNew(ctx, args[0])
	if err != nil {
		return err
	}
	if result.FilesIngested > 0 {
		color.Green("Caught up: %d file(s), %d chunks", result.FilesIngested, result.ChunksAdded)
	}
	for _, failure := range result.Failures {
		color.Red("  Failed: %v", failure)
	}

	watcher, err := ingest.WatchAndIngest(ctx, ingestor, args[0], ingest.DefaultWatcherConfig())
	if err != nil {
		return fmt.Errorf("failed to start watcher: %w", err)
	}
	defer watcher.Stop()

	fmt.Printf("Watching %s for new scripts. Press Ctrl-C to stop.\n", args[0])
	<-ctx.Done()
	return nil
}

func runServe(cmd *cobra.Command, args []string) error {
	proj, err := openProject()
	if err != nil {
		return err
	}

	host := proj.cfg.Server.Host
	if cmd.Flags().Changed("host") {
		host, _ = cmd.Flags().GetString("host")
	}
	port := proj.cfg.Server.Port
	if cmd.Flags().Changed("port") {
		port, _ = cmd.Flags().GetInt("port")
	}

	ingestor, err := newIngestor(proj, nil)
	if err != nil {
		return err
	}

	server := web.NewServer(web.ServerConfig{
		Host:     host,
		Port:     port,
		Corpus:   proj.corpus,
		Provider: proj.provider,
		Ingestor: ingestor,
	})

	ctx, cancel := signalContext()
	defer cancel()

	// Fill the embedding cache so the first query skips a provider round-trip.
	retriever := search.NewRetriever(proj.corpus, proj.provider)
	go retriever.Warmup(ctx)

	fmt.Printf("Serving the script index on http://%s:%d\n", host, port)
	fmt.Printf("  Index: %d vectors in %s\n", proj.corpus.Size(), proj.corpus.DataDir())

	errChan := make(chan error, 1)
	go func() {
		errChan <- server.ListenAndServe()
	}()

	select {
	case err := <-errChan:
		return err
	case <-ctx.Done():
		return nil
	}
}

func runMCP(cmd *cobra.Command, args []string) error {
	proj, err := openProject()
	if err != nil {
		return err
	}

	ingestor, err := newIngestor(proj, nil)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	go search.NewRetriever(proj.corpus, proj.provider).Warmup(ctx)

	server := mcp.NewServer(mcp.ServerConfig{
		Corpus:   proj.corpus,
		Provider: proj.provider,
		Ingestor: ingestor,
	})
	return server.Run(ctx)
}

func runConfig(cmd *cobra.Command, args []string) error {
	initMode, _ := cmd.Flags().GetBool("init")

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if initMode {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		detected := embed.DetectProviders(ctx, embed.DefaultDetectConfig())
		if len(detected) == 0 {
			color.Yellow("No embedding providers detected; keeping configured defaults.")
		}
		for _, p := range detected {
			status := "unavailable"
			if p.Available {
				status = "available"
			}
			fmt.Printf("  - %s (%s): %s, %d dimensions\n", p.Type, status, p.Model, p.Dimensions)
		}
		for _, p := range detected {
			if p.Available {
				cfg.Embedding.Provider = string(p.Type)
				cfg.Embedding.Model = p.Model
				cfg.Embedding.Dimensions = p.Dimensions
				break
			}
		}

		if err := cfg.EnsureDataDir(); err != nil {
			return fmt.Errorf("failed to create data directory: %w", err)
		}
		if err := cfg.WriteDefaultConfig(); err != nil {
			return fmt.Errorf("failed to write config: %w", err)
		}
		color.Green("Configuration written to %s", filepath.Join(cfg.DataDir, config.DefaultConfigFile))
		return nil
	}

	// Mask credentials before showing the resolved settings.
	shown := *cfg
	if shown.Embedding.OpenAIAPIKey != "" {
		shown.Embedding.OpenAIAPIKey = "***"
	}
	if shown.LLM.APIKey != "" {
		shown.LLM.APIKey = "***"
	}

	data, err := yaml.Marshal(&shown)
	if err != nil {
		return err
	}
	fmt.Printf("# resolved configuration (data dir: %s)\n%s", cfg.DataDir, data)
	return nil
}
