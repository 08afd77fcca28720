package assets

import (
	"context"
	"io/fs"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// watchDebounce batches the flurry of events a frontend build emits into a
// single reload.
const watchDebounce = 500 * time.Millisecond

// Watch reloads the store and shell whenever the dist directory changes.
// It blocks until ctx is cancelled. A missing dist directory is tolerated:
// the watcher simply has nothing to watch until the next restart or manual
// refresh.
func (s *Store) Watch(ctx context.Context, shell *Shell) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer func() {
		_ = watcher.Close()
	}()

	addTree := func() {
		_ = filepath.WalkDir(s.dir, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return nil
			}
			if d.IsDir() {
				_ = watcher.Add(path)
			}
			return nil
		})
	}
	addTree()

	var debounce *time.Timer
	reload := func() {
		if err := s.Refresh(); err != nil {
			s.logger.Error("Asset reload failed", "error", err)
		}
		if err := shell.Reload(); err != nil {
			s.logger.Error("Shell reload failed", "error", err)
		}
		// New build output may contain new subdirectories.
		addTree()
	}

	for {
		select {
		case <-ctx.Done():
			if debounce != nil {
				debounce.Stop()
			}
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(watchDebounce, reload)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			s.logger.Warn("Asset watcher error", "error", err)
		}
	}
}
