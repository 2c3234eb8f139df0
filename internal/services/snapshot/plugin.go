// Package snapshot persists the state store to a TOML file across restarts.
package snapshot

import (
	"context"
	"time"

	"github.com/danmuck/hostkernel/internal/config"
	"github.com/danmuck/hostkernel/internal/host"
	"github.com/danmuck/hostkernel/internal/plugins"
)

type Config struct {
	Path     string        `toml:"path" validate:"required"`
	Interval time.Duration `toml:"interval" validate:"gte=0"`
	// Exclude lists slice names that are neither saved nor restored.
	Exclude []string `toml:"exclude"`
}

func DefaultConfig() Config {
	return Config{
		Path:    "hostkernel-state.toml",
		Exclude: []string{"host.services"},
	}
}

type Plugin struct{}

func (Plugin) Metadata() plugins.Metadata {
	return plugins.Metadata{
		Name:        ServiceName,
		Version:     "0.1.0",
		Description: "state store snapshot file, restored on start and saved on stop",
	}
}

func (Plugin) ConfigSchema() config.Schema {
	return config.Struct(config.WithDefaults(DefaultConfig()), config.Strict[Config]())
}

func (Plugin) Install(app *host.App, cfg any) error {
	c, err := config.As[Config](cfg)
	if err != nil {
		return err
	}
	app.RegisterService(NewService(app, c))
	return nil
}

func (Plugin) Reconfigure(ctx context.Context, app *host.App, cfg any) error {
	c, err := config.As[Config](cfg)
	if err != nil {
		return err
	}
	svc, err := host.Require[*Service](app)
	if err != nil {
		return err
	}
	svc.Apply(c)
	return nil
}
