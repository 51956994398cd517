package analyzer

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"codewarden/internal/apperr"
	"codewarden/internal/logging"
)

// debounceWindow batches rapid editor write bursts into one re-analysis.
const debounceWindow = 500 * time.Millisecond

// Watcher re-analyzes changed files incrementally.
type Watcher struct {
	analyzer  *Analyzer
	root      string
	projectID string
	onChange  func(*Result)
}

// NewWatcher creates a watcher for one analyzed project. onChange may be nil.
func NewWatcher(a *Analyzer, root, projectID string, onChange func(*Result)) *Watcher {
	return &Watcher{analyzer: a, root: root, projectID: projectID, onChange: onChange}
}

// Run watches the tree until the context is cancelled. Changed recognized
// files are re-analyzed after a debounce window; new directories are added to
// the watch set as they appear.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return apperr.Wrap(apperr.KindFilesystem, err, "create file watcher")
	}
	defer fw.Close()

	if err := w.addRecursive(fw, w.root); err != nil {
		return err
	}
	logging.Analyzer("Watching %s for changes", w.root)

	pending := make(map[string]bool)
	var timer *time.Timer
	var timerC <-chan time.Time

	flush := func() {
		files := make([]string, 0, len(pending))
		for f := range pending {
			files = append(files, f)
		}
		pending = make(map[string]bool)
		timerC = nil

		res, err := w.analyzer.AnalyzeFiles(ctx, w.root, w.projectID, files)
		if err != nil {
			logging.Get(logging.CategoryAnalyzer).Error("Incremental analysis failed: %v", err)
			return
		}
		logging.Analyzer("Re-analyzed %d files: %d entities", len(files), res.EntityCount)
		if w.onChange != nil {
			w.onChange(res)
		}
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if event.Op&fsnotify.Create != 0 {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if !w.skipped(event.Name) {
						_ = w.addRecursive(fw, event.Name)
					}
					continue
				}
			}
			rel, err := filepath.Rel(w.root, event.Name)
			if err != nil || languageOf(rel) == "" || w.skipped(event.Name) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			pending[filepath.ToSlash(rel)] = true
			if timer == nil {
				timer = time.NewTimer(debounceWindow)
			} else {
				timer.Reset(debounceWindow)
			}
			timerC = timer.C
		case <-timerC:
			flush()
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			logging.Get(logging.CategoryAnalyzer).Warn("Watcher error: %v", err)
		}
	}
}

func (w *Watcher) addRecursive(fw *fsnotify.Watcher, dir string) error {
	return filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil || !d.IsDir() {
			return nil
		}
		name := d.Name()
		if path != dir && (skipDirs[name] || strings.HasPrefix(name, ".")) {
			return filepath.SkipDir
		}
		return fw.Add(path)
	})
}

// skipped reports whether a path crosses an ignored directory.
func (w *Watcher) skipped(path string) bool {
	rel, err := filepath.Rel(w.root, path)
	if err != nil {
		return true
	}
	for _, part := range strings.Split(filepath.ToSlash(rel), "/") {
		if skipDirs[part] || (strings.HasPrefix(part, ".") && part != ".") {
			return true
		}
	}
	return false
}
