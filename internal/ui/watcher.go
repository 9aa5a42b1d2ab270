package ui

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

const debounceDelay = 100 * time.Millisecond

// fileWatcher reports changes to active files. Editors often replace a
// file rather than write it, so the parent directory is watched and
// events are matched by name.
type fileWatcher struct {
	logger *slog.Logger

	mu      sync.Mutex
	files   map[string]struct{}
	dirs    map[string]struct{}
	watcher *fsnotify.Watcher // nil until Run
	timers  map[string]*time.Timer
}

func newFileWatcher(logger *slog.Logger) *fileWatcher {
	return &fileWatcher{
		logger: logger,
		files:  make(map[string]struct{}),
		dirs:   make(map[string]struct{}),
		timers: make(map[string]*time.Timer),
	}
}

// Add starts watching path. Safe to call before and during Run.
func (fw *fileWatcher) Add(path string) {
	path = filepath.Clean(path)

	fw.mu.Lock()
	defer fw.mu.Unlock()

	fw.files[path] = struct{}{}
	if fw.watcher != nil {
		fw.addDirLocked(filepath.Dir(path))
	}
}

func (fw *fileWatcher) addDirLocked(dir string) {
	if _, ok := fw.dirs[dir]; ok {
		return
	}
	if err := fw.watcher.Add(dir); err != nil {
		fw.logger.Warn("failed to watch directory", "dir", dir, "error", err)
		return
	}
	fw.dirs[dir] = struct{}{}
}

func (fw *fileWatcher) watched(path string) bool {
	fw.mu.Lock()
	defer fw.mu.Unlock()
	_, ok := fw.files[path]
	return ok
}

// Run watches until ctx is done, calling onChange once per burst of
// events on a watched file.
func (fw *fileWatcher) Run(ctx context.Context, onChange func(path string)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer func() { _ = watcher.Close() }()

	fw.mu.Lock()
	fw.watcher = watcher
	for path := range fw.files {
		fw.addDirLocked(filepath.Dir(path))
	}
	fw.mu.Unlock()

	defer func() {
		fw.mu.Lock()
		fw.watcher = nil
		clear(fw.dirs)
		for _, t := range fw.timers {
			t.Stop()
		}
		clear(fw.timers)
		fw.mu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			path := filepath.Clean(event.Name)
			if !fw.watched(path) {
				continue
			}
			fw.debounce(path, onChange)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			fw.logger.Error("watcher error", "error", err)
		}
	}
}

func (fw *fileWatcher) debounce(path string, onChange func(string)) {
	fw.mu.Lock()
	defer fw.mu.Unlock()

	if t, ok := fw.timers[path]; ok {
		t.Stop()
	}
	fw.timers[path] = time.AfterFunc(debounceDelay, func() {
		fw.mu.Lock()
		delete(fw.timers, path)
		fw.mu.Unlock()

		fw.logger.Debug("file changed", "file", path)
		onChange(path)
	})
}
