package main

import (
	"context"
	"path/filepath"
	"time"

	"github.com/danmuck/hostkernel/internal/config"
	"github.com/danmuck/hostkernel/internal/plugins"
	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

const reloadDebounce = 250 * time.Millisecond

// watchConfig reconfigures mgr whenever the file at path changes. The
// parent directory is watched so editors that replace the file by rename
// are seen too.
func watchConfig(ctx context.Context, path string, mgr *plugins.Manager, logger zerolog.Logger) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		return err
	}
	logger.Info().Str("path", abs).Msg("watching config")

	var debounce <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != abs {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			debounce = time.After(reloadDebounce)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn().Err(err).Msg("config watch error")
		case <-debounce:
			debounce = nil
			reload(ctx, abs, mgr, logger)
		}
	}
}

func reload(ctx context.Context, path string, mgr *plugins.Manager, logger zerolog.Logger) {
	values, err := config.LoadFile(path)
	if err != nil {
		logger.Error().Err(err).Msg("config reload failed")
		return
	}
	res, err := mgr.Reconfigure(ctx, values)
	if err != nil {
		logger.Error().Err(err).Msg("config reload rejected")
		return
	}
	event := logger.Info()
	if res.RestartRequired {
		event = logger.Warn()
	}
	event.
		Strs("reconfigured", res.Reconfigured).
		Strs("pending", res.Pending).
		Bool("restart_required", res.RestartRequired).
		Msg("config reloaded")
}
