package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/danmuck/hostkernel/internal/host"
)

type hostConfig struct {
	ID           string
	RestartDelay time.Duration
	StopTimeout  time.Duration
	Plugins      []string
}

func defaultHostConfig() hostConfig {
	return hostConfig{
		RestartDelay: host.DefaultRestartDelay,
		StopTimeout:  host.DefaultStopTimeout,
		Plugins:      builtinNames(),
	}
}

type fileConfig struct {
	Host struct {
		ID           string   `toml:"id"`
		RestartDelay string   `toml:"restart_delay"`
		StopTimeout  string   `toml:"stop_timeout"`
		Plugins      []string `toml:"plugins"`
	} `toml:"host"`
}

// loadHostConfig reads the [host] section of path. Plugin sections are
// decoded separately into the application configuration.
func loadHostConfig(path string) (hostConfig, error) {
	cfg := defaultHostConfig()

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return hostConfig{}, fmt.Errorf("load host config: %w", err)
	}

	if meta.IsDefined("host", "id") {
		cfg.ID = strings.TrimSpace(raw.Host.ID)
	}

	if meta.IsDefined("host", "restart_delay") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.Host.RestartDelay))
		if err != nil {
			return hostConfig{}, fmt.Errorf("parse restart_delay: %w", err)
		}
		if d <= 0 {
			return hostConfig{}, fmt.Errorf("restart_delay must be positive, got %s", d)
		}
		cfg.RestartDelay = d
	}

	if meta.IsDefined("host", "stop_timeout") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.Host.StopTimeout))
		if err != nil {
			return hostConfig{}, fmt.Errorf("parse stop_timeout: %w", err)
		}
		if d <= 0 {
			return hostConfig{}, fmt.Errorf("stop_timeout must be positive, got %s", d)
		}
		cfg.StopTimeout = d
	}

	if meta.IsDefined("host", "plugins") {
		cfg.Plugins = normalizePlugins(raw.Host.Plugins)
	}

	return cfg, nil
}

func normalizePlugins(in []string) []string {
	if len(in) == 0 {
		return []string{}
	}
	out := make([]string, 0, len(in))
	for _, name := range in {
		v := strings.TrimSpace(name)
		if v == "" {
			continue
		}
		out = append(out, v)
	}
	return out
}
