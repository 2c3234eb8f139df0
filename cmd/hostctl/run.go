package main

import (
	"context"
	"fmt"
	"sync"

	"github.com/danmuck/hostkernel/internal/config"
	"github.com/danmuck/hostkernel/internal/host"
	"github.com/danmuck/hostkernel/internal/plugins"
	"github.com/rs/zerolog"
)

type runOptions struct {
	configPath string
	watch      bool
}

// runHost loads the config file, installs the enabled plugins and blocks in
// the supervisor until ctx is cancelled.
func runHost(ctx context.Context, opts runOptions, logger zerolog.Logger) error {
	hostCfg := defaultHostConfig()
	values := config.Values{}
	if opts.configPath != "" {
		var err error
		if hostCfg, err = loadHostConfig(opts.configPath); err != nil {
			return err
		}
		if values, err = config.LoadFile(opts.configPath); err != nil {
			return err
		}
	}

	app := host.New(
		host.WithID(hostCfg.ID),
		host.WithLogger(logger),
		host.WithContext(ctx),
		host.WithConfig(values),
		host.WithRestartDelay(hostCfg.RestartDelay),
		host.WithStopTimeout(hostCfg.StopTimeout),
	)
	defer app.Close()

	mgr := plugins.NewManager(app)
	batch, err := selectPlugins(mgr, hostCfg.Plugins)
	if err != nil {
		return err
	}
	if err := mgr.Install(app.Context(), batch...); err != nil {
		return fmt.Errorf("install plugins: %w", err)
	}

	var wg sync.WaitGroup
	if opts.watch && opts.configPath != "" {
		wg.Go(func() {
			if err := watchConfig(app.Context(), opts.configPath, mgr, app.Logger()); err != nil {
				app.Logger().Error().Err(err).Msg("config watch stopped")
			}
		})
	}

	app.Logger().Info().Strs("plugins", hostCfg.Plugins).Msg("hostctl starting")
	err = app.Run()
	app.Shutdown()
	wg.Wait()
	return err
}
