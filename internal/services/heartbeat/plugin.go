package heartbeat

import (
	"context"
	"time"

	"github.com/danmuck/hostkernel/internal/config"
	"github.com/danmuck/hostkernel/internal/host"
	"github.com/danmuck/hostkernel/internal/plugins"
	"github.com/danmuck/hostkernel/internal/state"
)

type Config struct {
	Interval time.Duration `toml:"interval" validate:"gt=0"`
}

type Plugin struct{}

var _ plugins.Reconfigurer = Plugin{}

func (Plugin) Metadata() plugins.Metadata {
	return plugins.Metadata{
		Name:        ServiceName,
		Version:     "0.1.0",
		Description: "periodic liveness record in host.heartbeat",
	}
}

func (Plugin) ConfigSchema() config.Schema {
	return config.Struct(config.WithDefaults(Config{Interval: 30 * time.Second}), config.Strict[Config]())
}

func (Plugin) Install(app *host.App, cfg any) error {
	c, err := config.As[Config](cfg)
	if err != nil {
		return err
	}
	state.Initialize(app.Store(), Kind, Beat{})
	app.RegisterService(NewService(app, c.Interval))
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
	svc.SetInterval(c.Interval)
	return nil
}
