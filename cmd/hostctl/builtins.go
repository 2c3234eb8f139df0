package main

import (
	"fmt"

	"github.com/danmuck/hostkernel/internal/plugins"
	"github.com/danmuck/hostkernel/internal/services/admin"
	"github.com/danmuck/hostkernel/internal/services/exec"
	"github.com/danmuck/hostkernel/internal/services/heartbeat"
	"github.com/danmuck/hostkernel/internal/services/snapshot"
	"github.com/danmuck/hostkernel/internal/services/sysstat"
)

type builtin struct {
	name string
	new  func(mgr *plugins.Manager) plugins.Plugin
}

var builtins = []builtin{
	{name: "admin", new: func(mgr *plugins.Manager) plugins.Plugin { return admin.NewPlugin(mgr) }},
	{name: "heartbeat", new: func(*plugins.Manager) plugins.Plugin { return heartbeat.Plugin{} }},
	{name: "sysstat", new: func(*plugins.Manager) plugins.Plugin { return sysstat.Plugin{} }},
	{name: "exec", new: func(*plugins.Manager) plugins.Plugin { return exec.Plugin{} }},
	{name: "snapshot", new: func(*plugins.Manager) plugins.Plugin { return snapshot.Plugin{} }},
}

func builtinNames() []string {
	names := make([]string, 0, len(builtins))
	for _, b := range builtins {
		names = append(names, b.name)
	}
	return names
}

// selectPlugins builds the enabled plugins in the order they are listed.
func selectPlugins(mgr *plugins.Manager, enabled []string) ([]plugins.Plugin, error) {
	out := make([]plugins.Plugin, 0, len(enabled))
	seen := make(map[string]bool, len(enabled))
	for _, name := range enabled {
		if seen[name] {
			continue
		}
		seen[name] = true
		b, ok := lookupBuiltin(name)
		if !ok {
			return nil, fmt.Errorf("unknown plugin %q", name)
		}
		out = append(out, b.new(mgr))
	}
	return out, nil
}

func lookupBuiltin(name string) (builtin, bool) {
	for _, b := range builtins {
		if b.name == name {
			return b, true
		}
	}
	return builtin{}, false
}
