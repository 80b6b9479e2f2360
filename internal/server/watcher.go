package server

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Watcher watches for document changes and triggers reload.
type Watcher struct {
	watcher  *fsnotify.Watcher
	rootDir  string
	onReload func(filePath string) error
	done     chan struct{}
	logger   *zap.Logger
}

// NewWatcher creates a new file watcher for the given directory.
func NewWatcher(rootDir string, onReload func(string) error, logger *zap.Logger) (*Watcher, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		watcher:  fsWatcher,
		rootDir:  rootDir,
		onReload: onReload,
		done:     make(chan struct{}),
		logger:   logger,
	}

	if err := w.addDirectoryRecursive(rootDir); err != nil {
		fsWatcher.Close()
		return nil, err
	}

	return w, nil
}

// addDirectoryRecursive adds a directory and all its subdirectories to the watcher.
func (w *Watcher) addDirectoryRecursive(dir string) error {
	return filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			return nil
		}

		// Skip hidden directories like .git
		if path != w.rootDir && strings.HasPrefix(info.Name(), ".") {
			return filepath.SkipDir
		}

		if err := w.watcher.Add(path); err != nil {
			return err
		}
		w.logger.Debug("[Watch] Added directory", zap.String("dir", path))
		return nil
	})
}

// Start begins watching for file changes.
func (w *Watcher) Start() {
	go func() {
		for {
			select {
			case event, ok := <-w.watcher.Events:
				if !ok {
					return
				}
				w.handle(event)

			case err, ok := <-w.watcher.Errors:
				if !ok {
					return
				}
				w.logger.Warn("[Watch] Error", zap.Error(err))

			case <-w.done:
				return
			}
		}
	}()
}

func (w *Watcher) handle(event fsnotify.Event) {
	// New folders need watching too
	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := w.addDirectoryRecursive(event.Name); err != nil {
				w.logger.Warn("[Watch] Failed to watch new directory", zap.String("dir", event.Name), zap.Error(err))
			}
			return
		}
	}

	if filepath.Ext(event.Name) != ".md" {
		return
	}
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) &&
		!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
		return
	}

	relPath, err := filepath.Rel(w.rootDir, event.Name)
	if err != nil {
		relPath = event.Name
	}
	w.logger.Debug("[Watch] File changed", zap.String("file", relPath), zap.Stringer("op", event.Op))

	if err := w.onReload(relPath); err != nil {
		w.logger.Warn("[Watch] Reload failed", zap.String("file", relPath), zap.Error(err))
	}
}

// Stop stops the watcher.
func (w *Watcher) Stop() error {
	close(w.done)
	return w.watcher.Close()
}
