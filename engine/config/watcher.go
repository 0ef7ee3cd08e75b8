package config

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/spaghettifunk/framecore/engine/core"
)

// Watch reloads the file at path whenever it is written or recreated and
// hands every configuration that validates to onChange. A file that fails to
// load is logged and skipped, the previous configuration stays in effect.
// Watch blocks until ctx is done.
//
// The parent directory is watched rather than the file itself so editors
// that save by rename keep being followed.
func Watch(ctx context.Context, path string, onChange func(*Config)) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("config watcher: %w", err)
	}
	defer w.Close()

	if err := w.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("config watcher on %s: %w", filepath.Dir(abs), err)
	}
	core.LogDebug("watching %s for changes", abs)

	for {
		select {
		case e, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(e.Name) != abs {
				continue
			}
			if e.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			cfg, err := Load(abs)
			if err != nil {
				core.LogError("config reload skipped: %s", err)
				continue
			}
			core.LogInfo("config %s reloaded", abs)
			onChange(cfg)

		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			core.LogError(err.Error())

		case <-ctx.Done():
			return nil
		}
	}
}
