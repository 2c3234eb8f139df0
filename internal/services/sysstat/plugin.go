package sysstat

import (
	"context"
	"time"

	"github.com/danmuck/hostkernel/internal/config"
	"github.com/danmuck/hostkernel/internal/host"
	"github.com/danmuck/hostkernel/internal/plugins"
	"github.com/danmuck/hostkernel/internal/state"
)

type Config struct {
	Interval time.Duration `toml:"interval" validate:"gte=100ms"`
	DiskPath string        `toml:"disk_path" validate:"required"`
}

// Plugin installs the sysstat sampler. Sampler defaults to Collect.
type Plugin struct {
	Sampler Sampler
}

func (Plugin) Metadata() plugins.Metadata {
	return plugins.Metadata{
		Name:        ServiceName,
		Version:     "0.1.0",
		Description: "host cpu, memory, load and disk samples in host.sysstat",
	}
}

func (Plugin) ConfigSchema() config.Schema {
	return config.Struct(config.WithDefaults(Config{Interval: 15 * time.Second, DiskPath: "/"}), config.Strict[Config]())
}

func (p Plugin) Install(app *host.App, cfg any) error {
	c, err := config.As[Config](cfg)
	if err != nil {
		return err
	}
	state.Initialize(app.Store(), Kind, Sample{})
	app.RegisterService(NewService(app, c, p.Sampler))
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
