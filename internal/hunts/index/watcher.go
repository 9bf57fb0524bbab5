package index

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// debounceWindow batches bursts of filesystem events (editors write
// multiple times per save) into a single rebuild.
const debounceWindow = 500 * time.Millisecond

// Watcher re-runs the builder whenever a hunt markdown file changes.
type Watcher struct {
	builder *Builder
	logger  *slog.Logger
}

// NewWatcher wraps a builder for continuous rebuilds.
func NewWatcher(builder *Builder) *Watcher {
	return &Watcher{builder: builder, logger: builder.Logger}
}

// Watch blocks until ctx is done, rebuilding the index after each batch
// of changes to the category directories. An initial rebuild runs before
// watching starts so the index is never staler than the watch.
func (w *Watcher) Watch(ctx context.Context) error {
	if _, err := w.builder.Rebuild(ctx, false); err != nil {
		return err
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer func() { _ = fsw.Close() }()

	for _, dir := range w.builder.Dirs {
		if err := fsw.Add(dir); err != nil {
			w.logger.Warn("cannot watch hunt directory", "dir", dir, "error", err)
		}
	}

	var timer *time.Timer
	var pending <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if !strings.HasSuffix(event.Name, ".md") {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			w.logger.Debug("hunt file changed", "path", event.Name, "op", event.Op.String())
			if timer == nil {
				timer = time.NewTimer(debounceWindow)
			} else {
				timer.Reset(debounceWindow)
			}
			pending = timer.C
		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watch error", "error", err)
		case <-pending:
			pending = nil
			if _, err := w.builder.Rebuild(ctx, false); err != nil {
				w.logger.Error("rebuild failed", "error", err)
			}
		}
	}
}
