package session

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Watcher invalidates a Manager's cache when its token file changes on disk,
// so a login or logout performed by another process takes effect here.
type Watcher struct {
	path     string
	sessions *Manager
	logger   *slog.Logger
	// changed is signaled after each invalidation; used by tests.
	changed chan struct{}
}

// NewWatcher returns a watcher for the FileStore token file at path.
func NewWatcher(path string, sessions *Manager, logger *slog.Logger) *Watcher {
	if logger == nil {
		logger = slog.Default()
	}

	return &Watcher{
		path:     filepath.Clean(path),
		sessions: sessions,
		logger:   logger,
		changed:  make(chan struct{}, 1),
	}
}

// Run watches until ctx is canceled. The token directory is watched rather
// than the file because saves replace the file by rename.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("session: creating watcher: %w", err)
	}
	defer fw.Close()

	dir := filepath.Dir(w.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("session: creating %s: %w", dir, err)
	}

	if err := fw.Add(dir); err != nil {
		return fmt.Errorf("session: watching %s: %w", dir, err)
	}

	w.logger.Debug("watching token file", slog.String("path", w.path))

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}

			if filepath.Clean(ev.Name) != w.path {
				continue
			}

			if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) &&
				!ev.Has(fsnotify.Remove) && !ev.Has(fsnotify.Rename) {
				continue
			}

			w.logger.Info("token file changed externally, reloading session",
				slog.String("path", w.path),
				slog.String("op", ev.Op.String()),
			)

			w.sessions.Invalidate()

			select {
			case w.changed <- struct{}{}:
			default:
			}
		case werr, ok := <-fw.Errors:
			if !ok {
				return nil
			}

			w.logger.Warn("token watcher error", slog.String("error", werr.Error()))
		}
	}
}
