package moderation

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watch reloads f from path whenever the file is written, created or
// replaced, until ctx is cancelled. The parent directory is watched so
// editors that save via rename are picked up. onReload, if non-nil, is
// called after each successful reload.
func Watch(ctx context.Context, f *Filter, path string, logger *slog.Logger, onReload func()) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	if err := w.Add(filepath.Dir(abs)); err != nil {
		return err
	}

	logger.Info("moderation: watching word list", slog.String("path", abs))

	var debounce *time.Timer
	var debounceCh <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			if debounce != nil {
				debounce.Stop()
			}
			logger.Info("moderation: watcher stopped")
			return nil

		case <-debounceCh:
			if err := f.LoadFile(abs); err != nil {
				logger.Warn("moderation: reload failed, keeping previous list",
					slog.String("path", abs),
					slog.String("error", err.Error()))
				continue
			}
			logger.Info("moderation: word list reloaded", slog.Int("words", len(f.Words())))
			if onReload != nil {
				onReload()
			}

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != abs {
				continue
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
				continue
			}
			if debounce == nil {
				debounce = time.NewTimer(100 * time.Millisecond)
				debounceCh = debounce.C
			} else {
				debounce.Reset(100 * time.Millisecond)
			}

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("moderation: watcher error", slog.String("error", watchErr.Error()))
		}
	}
}
