package admin

import (
	"github.com/danmuck/hostkernel/internal/config"
	"github.com/danmuck/hostkernel/internal/host"
	"github.com/danmuck/hostkernel/internal/plugins"
)

// Config is the [admin] configuration slice.
type Config struct {
	Addr          string   `toml:"addr" validate:"required"`
	CORSOrigins   []string `toml:"cors_origins" validate:"dive,url"`
	MaxGoroutines int      `toml:"max_goroutines" validate:"gt=0"`
	// Token guards mutating endpoints. Empty disables them.
	Token string `toml:"token"`
}

func DefaultConfig() Config {
	return Config{
		Addr:          "127.0.0.1:9400",
		MaxGoroutines: 10000,
	}
}

// Plugin installs the admin HTTP service.
type Plugin struct {
	catalog Catalog
}

var (
	_ plugins.Configurable = Plugin{}
	_ plugins.Installer    = Plugin{}
)

func NewPlugin(catalog Catalog) Plugin {
	return Plugin{catalog: catalog}
}

func (Plugin) Metadata() plugins.Metadata {
	return plugins.Metadata{
		Name:        ServiceName,
		Version:     version,
		Description: "HTTP API for health, metrics, services, plugins and state",
	}
}

func (Plugin) ConfigSchema() config.Schema {
	return config.Struct(config.WithDefaults(DefaultConfig()), config.Strict[Config]())
}

func (p Plugin) Install(app *host.App, cfg any) error {
	c, err := config.As[Config](cfg)
	if err != nil {
		return err
	}
	app.RegisterService(NewService(app, c, p.catalog))
	return nil
}
