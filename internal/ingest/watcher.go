package ingest

import (
	"context"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	gitignore "github.com/sabhiram/go-gitignore"
)

// WatcherConfig configures the directory watcher.
type WatcherConfig struct {
	// Debounce is how long to batch change events before flushing.
	Debounce time.Duration

	// IgnorePatterns are gitignore-style patterns excluded from watching,
	// in addition to the defaults and the root's ignore files.
	IgnorePatterns []string

	// MaxFileSize caps files considered for ingestion.
	MaxFileSize int64
}

// DefaultWatcherConfig returns sensible defaults for the watcher.
func DefaultWatcherConfig() WatcherConfig {
	return WatcherConfig{
		Debounce:       500 * time.Millisecond,
		IgnorePatterns: []string{"*.tmp", "*~", ".#*"},
		MaxFileSize:    defaultMaxFileSize,
	}
}

// WatchEvent represents a file system change event.
type WatchEvent struct {
	Path      string
	Op        WatchOp
	Timestamp time.Time
}

// WatchOp represents the type of file system operation.
type WatchOp int

const (
	// OpCreate indicates a file was created.
	OpCreate WatchOp = iota
	// OpWrite indicates a file was modified.
	OpWrite
	// OpRemove indicates a file was removed.
	OpRemove
	// OpRename indicates a file was renamed.
	OpRename
)

func (op WatchOp) String() string {
	switch op {
	case OpCreate:
		return "create"
	case OpWrite:
		return "write"
	case OpRemove:
		return "remove"
	case OpRename:
		return "rename"
	default:
		return "unknown"
	}
}

// WatchCallback receives all changed files accumulated since the last flush.
type WatchCallback func(events []WatchEvent)

// Watcher monitors a script directory and batches change events through a
// debounce window.
type Watcher struct {
	config   WatcherConfig
	watcher  *fsnotify.Watcher
	matcher  *gitignore.GitIgnore
	callback WatchCallback
	rootPath string

	pendingMu sync.Mutex
	pending   map[string]WatchEvent

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewWatcher creates a watcher for the given root directory.
func NewWatcher(rootPath string, cfg WatcherConfig) (*Watcher, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	return &Watcher{
		config:   cfg,
		watcher:  fsWatcher,
		matcher:  buildIgnoreMatcher(rootPath, cfg.IgnorePatterns),
		rootPath: rootPath,
		pending:  make(map[string]WatchEvent),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}, nil
}

// SetCallback sets the callback for batched change events.
func (w *Watcher) SetCallback(cb WatchCallback) {
	w.callback = cb
}

// Start begins watching the root and all non-ignored subdirectories.
func (w *Watcher) Start(ctx context.Context) error {
	if err := w.watcher.Add(w.rootPath); err != nil {
		return err
	}
	if err := w.addRecursive(w.rootPath); err != nil {
		return err
	}

	go w.processEvents(ctx)
	return nil
}

// Stop stops the watcher and releases resources.
func (w *Watcher) Stop() error {
	close(w.stopCh)
	<-w.doneCh
	return w.watcher.Close()
}

// addRecursive adds all non-ignored subdirectories under path.
func (w *Watcher) addRecursive(path string) error {
	return filepath.Walk(path, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return nil // skip paths we cannot access
		}
		if !info.IsDir() || p == w.rootPath {
			return nil
		}
		if w.shouldIgnore(p, true) {
			return filepath.SkipDir
		}
		return w.watcher.Add(p)
	})
}

// shouldIgnore checks a path against the compiled ignore rules.
func (w *Watcher) shouldIgnore(path string, isDir bool) bool {
	rel, err := filepath.Rel(w.rootPath, path)
	if err != nil {
		return false
	}
	rel = filepath.ToSlash(rel)
	if isDir {
		rel += "/"
	}
	return w.matcher.MatchesPath(rel)
}

// processEvents drains fsnotify events into the pending set and flushes it
// on the debounce tick.
func (w *Watcher) processEvents(ctx context.Context) {
	defer close(w.doneCh)

	ticker := time.NewTicker(w.config.Debounce)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Printf("watcher error: %v", err)

		case <-ticker.C:
			w.flushPending()
		}
	}
}

// handleEvent records a single fsnotify event in the pending set.
func (w *Watcher) handleEvent(event fsnotify.Event) {
	if event.Op&(fsnotify.Remove|fsnotify.Rename) == 0 {
		info, err := os.Stat(event.Name)
		if err == nil {
			if info.IsDir() {
				if event.Op&fsnotify.Create != 0 && !w.shouldIgnore(event.Name, true) {
					if err := w.addRecursive(event.Name); err != nil {
						log.Printf("failed to watch new directory %s: %v", event.Name, err)
					}
					if err := w.watcher.Add(event.Name); err != nil {
						log.Printf("failed to watch new directory %s: %v", event.Name, err)
					}
				}
				return
			}
			if w.config.MaxFileSize > 0 && info.Size() > w.config.MaxFileSize {
				return
			}
		}
	}
	if w.shouldIgnore(event.Name, false) {
		return
	}

	var op WatchOp
	switch {
	case event.Op&fsnotify.Create != 0:
		op = OpCreate
	case event.Op&fsnotify.Write != 0:
		op = OpWrite
	case event.Op&fsnotify.Remove != 0:
		op = OpRemove
	case event.Op&fsnotify.Rename != 0:
		op = OpRename
	default:
		return
	}

	w.pendingMu.Lock()
	w.pending[event.Name] = WatchEvent{
		Path:      event.Name,
		Op:        op,
		Timestamp: time.Now(),
	}
	w.pendingMu.Unlock()
}

// flushPending sends all pending events to the callback.
func (w *Watcher) flushPending() {
	w.pendingMu.Lock()
	if len(w.pending) == 0 {
		w.pendingMu.Unlock()
		return
	}
	events := make([]WatchEvent, 0, len(w.pending))
	for _, e := range w.pending {
		events = append(events, e)
	}
	w.pending = make(map[string]WatchEvent)
	w.pendingMu.Unlock()

	if w.callback != nil {
		w.callback(events)
	}
}

// WatchAndIngest starts a watcher that ingests newly created supported
// files. Writes to already-indexed names are skipped because the index is
// append-only; removals are logged and left in place.
func WatchAndIngest(ctx context.Context, ingestor *Ingestor, rootPath string, cfg WatcherConfig) (*Watcher, error) {
	watcher, err := NewWatcher(rootPath, cfg)
	if err != nil {
		return nil, err
	}

	watcher.SetCallback(func(events []WatchEvent) {
		var toIngest []string
		for _, e := range events {
			switch e.Op {
			case OpCreate, OpWrite:
				if ingestor.registry.Supports(e.Path) {
					toIngest = append(toIngest, e.Path)
				}
			case OpRemove, OpRename:
				log.Printf("%s %s: index keeps existing chunks (rebuild with clear + add)", e.Op, e.Path)
			}
		}
		if len(toIngest) == 0 {
			return
		}

		result := ingestor.ingestNewPaths(ctx, toIngest)
		if result.FilesIngested > 0 {
			log.Printf("ingested %d new file(s), %d chunk(s)", result.FilesIngested, result.ChunksAdded)
		}
		for _, failure := range result.Failures {
			log.Printf("ingest failed: %v", failure)
		}
	})

	if err := watcher.Start(ctx); err != nil {
		return nil, err
	}
	return watcher, nil
}
