package exec

import (
	"fmt"
	"time"

	"github.com/danmuck/hostkernel/internal/config"
	"github.com/danmuck/hostkernel/internal/host"
	"github.com/danmuck/hostkernel/internal/plugins"
	"github.com/danmuck/hostkernel/internal/state"
	"github.com/danmuck/hostkernel/internal/tools"
)

// Remote routes a command over SSH instead of the local host.
type Remote struct {
	Host                  string        `toml:"host" validate:"required"`
	Port                  string        `toml:"port"`
	User                  string        `toml:"user" validate:"required"`
	KeyPath               string        `toml:"key_path" validate:"required"`
	KnownHostsPath        string        `toml:"known_hosts_path"`
	InsecureSkipHostCheck bool          `toml:"insecure_skip_host_check"`
	Timeout               time.Duration `toml:"timeout"`
}

type Command struct {
	Name   string   `toml:"name" validate:"required"`
	Path   string   `toml:"path" validate:"required"`
	Args   []string `toml:"args"`
	Dir    string   `toml:"dir"`
	Env    []string `toml:"env"`
	Remote *Remote  `toml:"remote"`
}

type Config struct {
	Commands []Command `toml:"commands" validate:"dive"`
}

type Plugin struct{}

func (Plugin) Metadata() plugins.Metadata {
	return plugins.Metadata{
		Name:        "exec",
		Version:     "0.1.0",
		Description: "supervised external commands, local or over ssh",
	}
}

func (Plugin) ConfigSchema() config.Schema {
	return config.Struct[Config]()
}

func (Plugin) Install(app *host.App, cfg any) error {
	c, err := config.As[Config](cfg)
	if err != nil {
		return err
	}
	seen := make(map[string]bool, len(c.Commands))
	for _, cmd := range c.Commands {
		if seen[cmd.Name] {
			return fmt.Errorf("exec: duplicate command name %q", cmd.Name)
		}
		seen[cmd.Name] = true
	}

	state.Initialize(app.Store(), Kind, Table{Commands: map[string]CommandStatus{}})
	for _, cmd := range c.Commands {
		app.RegisterService(NewService(app, cmd, RunnerFor(cmd)))
	}
	return nil
}

// RunnerFor picks the runner a command is executed with.
func RunnerFor(cmd Command) tools.Runner {
	if cmd.Remote == nil {
		return tools.LocalRunner{Dir: cmd.Dir, Env: cmd.Env}
	}
	r := cmd.Remote
	return tools.SSHRunner{
		Host:                        r.Host,
		Port:                        r.Port,
		User:                        r.User,
		KeyPath:                     r.KeyPath,
		KnownHostsPath:              r.KnownHostsPath,
		InsecureSkipHostKeyChecking: r.InsecureSkipHostCheck,
		Timeout:                     r.Timeout,
	}
}
