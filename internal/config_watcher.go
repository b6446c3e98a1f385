package internal

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	pkgconfig "github.com/starford/basket/pkg/config"
)

const configReloadDelay = 200 * time.Millisecond

// WatchLogLevel reloads the config file whenever it changes and applies its
// log level to level. Other settings need a restart. It returns when ctx is done.
//
// The parent directory is watched rather than the file so that editors which
// replace the file by rename are still picked up.
func WatchLogLevel(ctx context.Context, path string, level *slog.LevelVar, logger *slog.Logger) error {
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
	logger.Info("config watcher: started", slog.String("path", abs))

	var reloadTimer *time.Timer
	var reloadCh <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			if reloadTimer != nil {
				reloadTimer.Stop()
			}
			logger.Info("config watcher: stopped")
			return nil

		case <-reloadCh:
			reloadCh = nil
			reloadLogLevel(abs, level, logger)

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != abs || ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if reloadTimer == nil {
				reloadTimer = time.NewTimer(configReloadDelay)
			} else {
				reloadTimer.Reset(configReloadDelay)
			}
			reloadCh = reloadTimer.C

		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Warn("config watcher: error", slog.String("error", err.Error()))
		}
	}
}

func reloadLogLevel(path string, level *slog.LevelVar, logger *slog.Logger) {
	cfg := NewDefaultConfig()
	if err := pkgconfig.Load(path, cfg); err != nil {
		logger.Warn("config watcher: reload failed, keeping current settings", slog.String("error", err.Error()))
		return
	}
	if cfg.App.LogLevel == level.Level() {
		return
	}
	logger.Info("config watcher: log level changed",
		slog.String("from", level.Level().String()),
		slog.String("to", cfg.App.LogLevel.String()))
	level.Set(cfg.App.LogLevel)
}
