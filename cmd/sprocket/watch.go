package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/ormasoftchile/sprocket/pkg/schema"
)

// watchDebounce collapses the burst of events an editor save produces.
const watchDebounce = 300 * time.Millisecond

// watch runs once, then again after every change to a definition file under
// path, until ctx is cancelled. Failing runs do not stop the loop.
func watch(ctx context.Context, path string, run func() error) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer w.Close()

	dir := path
	if info, err := os.Stat(path); err == nil && !info.IsDir() {
		dir = filepath.Dir(path)
	}
	if err := w.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}

	report := func() {
		if err := run(); err != nil {
			logger.Info("watched run finished", zap.Error(err))
		}
		fmt.Fprintf(os.Stderr, "%s  watching %s for changes (Ctrl+C to stop)\n", time.Now().Format("15:04:05"), path)
	}
	report()

	var timer *time.Timer
	var fire <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-w.Events:
			if !ok {
				return nil
			}
			if !relevant(path, event) {
				continue
			}
			logger.Debug("definition changed", zap.String("path", event.Name), zap.String("op", event.Op.String()))
			if timer == nil {
				timer = time.NewTimer(watchDebounce)
			} else {
				timer.Reset(watchDebounce)
			}
			fire = timer.C

		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Warn("watch error", zap.Error(err))

		case <-fire:
			fire = nil
			report()
		}
	}
}

// relevant reports whether event touches a definition that a run of path
// would load, or a file it may reference from the same folder.
func relevant(path string, event fsnotify.Event) bool {
	if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
		return false
	}
	if info, err := os.Stat(path); err == nil && !info.IsDir() {
		if filepath.Clean(event.Name) == filepath.Clean(path) {
			return true
		}
	} else if schema.IsDefinitionFile(event.Name) {
		return true
	}
	ext := filepath.Ext(event.Name)
	return ext == ".sql" || ext == ".csv" || ext == ".txt"
}
