package htmlpatch

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// DefaultDebounce is how long the watcher waits after the last HTML change
// before patching.
const DefaultDebounce = 200 * time.Millisecond

// minTick bounds how often pending changes are checked.
const minTick = time.Millisecond

// Watch re-runs PatchDir whenever an HTML file in dir is written or created,
// until ctx is done. Bursts of events are collapsed into one pass after
// debounce has elapsed since the last of them. Our own rewrites trigger one
// further pass that finds nothing to change.
func Watch(ctx context.Context, dir string, debounce time.Duration, logger *zap.Logger, out io.Writer) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create fsnotify watcher: %w", err)
	}
	defer fsw.Close()
	if err := fsw.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}
	logger.Info("watching for html changes", zap.String("dir", dir))

	ticker := time.NewTicker(max(debounce/2, minTick))
	defer ticker.Stop()

	var lastEvent time.Time
	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if !strings.EqualFold(filepath.Ext(event.Name), ".html") {
				continue
			}
			logger.Debug("html change", zap.String("file", event.Name), zap.String("op", event.Op.String()))
			lastEvent = time.Now()

		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			logger.Error("html watcher error", zap.Error(err))

		case <-ticker.C:
			if lastEvent.IsZero() || time.Since(lastEvent) < debounce {
				continue
			}
			lastEvent = time.Time{}
			modified, err := PatchDir(dir, out)
			if err != nil {
				logger.Error("failed to patch html files", zap.Error(err))
				continue
			}
			if len(modified) > 0 {
				logger.Info("html files patched", zap.Strings("files", modified))
			}
		}
	}
}
