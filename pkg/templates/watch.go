package templates

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

const reloadDebounce = 300 * time.Millisecond

// Watch reloads the registry whenever its YAML file changes, until ctx is
// cancelled. The parent directory is watched so editors that replace the file
// on save are picked up.
func (r *Registry) Watch(ctx context.Context) error {
	if r.path == "" {
		return nil
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := w.Add(filepath.Dir(r.path)); err != nil {
		w.Close()
		return err
	}

	target := filepath.Clean(r.path)
	go func() {
		defer w.Close()

		var timer *time.Timer
		var fire <-chan time.Time
		for {
			select {
			case <-ctx.Done():
				if timer != nil {
					timer.Stop()
				}
				return
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != target {
					continue
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
					continue
				}
				if timer == nil {
					timer = time.NewTimer(reloadDebounce)
				} else {
					timer.Reset(reloadDebounce)
				}
				fire = timer.C
			case <-fire:
				fire = nil
				if err := r.Reload(); err != nil {
					r.logger.Error("Failed to reload templates, keeping previous set", zap.Error(err))
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				r.logger.Warn("Template watcher error", zap.Error(err))
			}
		}
	}()

	r.logger.Info("Watching templates file", zap.String("path", r.path))
	return nil
}
