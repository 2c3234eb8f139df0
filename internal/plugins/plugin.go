package plugins

import (
	"context"

	"github.com/danmuck/hostkernel/internal/config"
	"github.com/danmuck/hostkernel/internal/host"
)

// Metadata is the identity and display data of a plugin. Name doubles as
// the plugin's configuration key.
type Metadata struct {
	Name        string `json:"name"`
	Version     string `json:"version"`
	Description string `json:"description"`
}

// Plugin is a one-shot extension unit activated by Manager.Install.
type Plugin interface {
	Metadata() Metadata
}

// Configurable plugins receive the configuration slice parsed by their
// schema. Other plugins receive an empty map.
type Configurable interface {
	ConfigSchema() config.Schema
}

// Installer wires a plugin into the application. Install must not block;
// long-running work belongs in Start.
type Installer interface {
	Install(app *host.App, cfg any) error
}

// Starter runs after every plugin in the batch has been installed.
type Starter interface {
	Start(ctx context.Context, app *host.App, cfg any) error
}

// Reconfigurer applies a changed configuration slice to a live plugin.
type Reconfigurer interface {
	Reconfigure(ctx context.Context, app *host.App, cfg any) error
}
