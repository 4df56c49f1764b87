package config

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/platinummonkey/docket/pkg/observability"
)

// Watch reloads the file at path whenever it is written or replaced and
// passes the new configuration to onChange. A file that fails to load is
// logged and the previous configuration stays in effect. The directory is
// watched rather than the file so editors that rename over it are seen.
// Watching stops when ctx is done.
func Watch(ctx context.Context, path string, logger *observability.Logger, onChange func(*Config)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create config watcher: %w", err)
	}

	target := filepath.Clean(path)
	if err := watcher.Add(filepath.Dir(target)); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch config directory: %w", err)
	}

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return

			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != target || event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				cfg, err := LoadConfig(path)
				if err != nil {
					logger.WithError(err).WithField("path", path).Warn("Ignoring invalid config reload")
					continue
				}
				logger.WithField("path", path).Info("Configuration reloaded")
				onChange(cfg)

			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.WithError(err).Warn("Config watcher error")
			}
		}
	}()

	return nil
}

// ApplyLogLevel returns an onChange callback that moves logger to the
// reloaded level
func ApplyLogLevel(logger *observability.Logger) func(*Config) {
	return func(cfg *Config) {
		logger.SetLevel(cfg.Observability.Level())
	}
}
