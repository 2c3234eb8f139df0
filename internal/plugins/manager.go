package plugins

import (
	"context"
	"sync"

	"github.com/danmuck/hostkernel/internal/config"
	"github.com/danmuck/hostkernel/internal/host"
	"github.com/danmuck/hostkernel/internal/registry"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/rs/zerolog"
)

type installed struct {
	plugin Plugin
	meta   Metadata
	cfg    any
}

// ReconfigureResult summarizes one Reconfigure pass.
type ReconfigureResult struct {
	// RestartRequired is set when a changed plugin cannot reconfigure live.
	RestartRequired bool     `json:"restart_required"`
	Reconfigured    []string `json:"reconfigured,omitempty"`
	Pending         []string `json:"pending,omitempty"`
}

// Manager installs plugin batches into one App and tracks the plugins that
// survived installation.
type Manager struct {
	app    *host.App
	logger zerolog.Logger

	// mu serializes Install and Reconfigure.
	mu      sync.Mutex
	plugins *registry.Registry[*installed]
}

func NewManager(app *host.App) *Manager {
	return &Manager{
		app:    app,
		logger: app.Logger().With().Str("component", "plugins").Logger(),
		plugins: registry.New(func(p *installed) string {
			return p.meta.Name
		}),
	}
}

// Install activates batch in two phases. Every plugin is installed and
// registered in order; the first install failure aborts the batch. Only once
// the whole batch is installed are the registered plugins started, in order;
// a start failure is returned but leaves the plugin registered.
func (m *Manager) Install(ctx context.Context, batch ...Plugin) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	ready := make([]*installed, 0, len(batch))
	for _, p := range batch {
		entry, err := m.install(p)
		if err != nil {
			return err
		}
		ready = append(ready, entry)
	}

	for _, entry := range ready {
		if err := m.start(ctx, entry); err != nil {
			return err
		}
	}
	return nil
}

func (m *Manager) install(p Plugin) (*installed, error) {
	if p == nil {
		m.logger.Error().Err(ErrPluginNil).Msg(`Error installing plugin ""`)
		return nil, &LifecycleError{Phase: PhaseInstall, Err: ErrPluginNil}
	}
	meta := p.Metadata()
	fail := func(err error) (*installed, error) {
		m.logger.Error().Err(err).Str("plugin", meta.Name).Msgf("Error installing plugin %q", meta.Name)
		m.app.Metrics().RecordPlugin(meta.Name, string(PhaseInstall), err)
		return nil, &LifecycleError{Plugin: meta.Name, Phase: PhaseInstall, Err: err}
	}

	if err := ValidateMetadata(meta); err != nil {
		return fail(err)
	}
	cfg, err := m.app.ConfigSlice(meta.Name, schemaOf(p))
	if err != nil {
		return fail(err)
	}
	if in, ok := p.(Installer); ok {
		if err := in.Install(m.app, cfg); err != nil {
			return fail(err)
		}
	}

	entry := &installed{plugin: p, meta: meta, cfg: cfg}
	m.plugins.Register(entry)
	m.app.Metrics().RecordPlugin(meta.Name, string(PhaseInstall), nil)
	m.logger.Info().Str("plugin", meta.Name).Str("version", meta.Version).Msg("plugins.Manager.install")
	return entry, nil
}

func (m *Manager) start(ctx context.Context, entry *installed) error {
	starter, ok := entry.plugin.(Starter)
	if !ok {
		return nil
	}
	err := starter.Start(ctx, m.app, entry.cfg)
	m.app.Metrics().RecordPlugin(entry.meta.Name, string(PhaseStart), err)
	if err != nil {
		m.logger.Error().Err(err).Str("plugin", entry.meta.Name).Msgf("Error starting plugin %q", entry.meta.Name)
		return &LifecycleError{Plugin: entry.meta.Name, Phase: PhaseStart, Err: err}
	}
	m.logger.Debug().Str("plugin", entry.meta.Name).Msg("plugins.Manager.start")
	return nil
}

type change struct {
	entry *installed
	next  any
}

// Reconfigure diffs every registered plugin's configuration slice between
// the App's current configuration and next. Changed plugins are
// reconfigured live when they support it; otherwise the result asks for a
// restart. All slices are parsed before any hook runs, so a validation
// failure leaves every plugin untouched. On success next becomes the App's
// configuration. When a hook fails, the slices of plugins reconfigured
// before it are kept and the rest of the App's configuration is unchanged.
func (m *Manager) Reconfigure(ctx context.Context, next config.Values) (ReconfigureResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var (
		result  ReconfigureResult
		changes []change
	)
	for _, entry := range m.plugins.All() {
		schema := schemaOf(entry.plugin)
		if schema == nil {
			continue
		}
		prev, err := m.app.ConfigSlice(entry.meta.Name, schema)
		if err != nil {
			return result, err
		}
		parsed, err := config.Slice(next, entry.meta.Name, schema)
		if err != nil {
			return result, err
		}
		if configEqual(prev, parsed) {
			continue
		}
		changes = append(changes, change{entry: entry, next: parsed})
	}

	for _, c := range changes {
		name := c.entry.meta.Name
		r, ok := c.entry.plugin.(Reconfigurer)
		if !ok {
			m.logger.Warn().Str("plugin", name).Msg("Plugin does not support reconfiguration")
			result.RestartRequired = true
			result.Pending = append(result.Pending, name)
			continue
		}
		err := r.Reconfigure(ctx, m.app, c.next)
		m.app.Metrics().RecordPlugin(name, string(PhaseReconfigure), err)
		if err != nil {
			m.logger.Error().Err(err).Str("plugin", name).Msgf("Error reconfiguring plugin %q", name)
			m.keepApplied(next, result.Reconfigured)
			return result, &LifecycleError{Plugin: name, Phase: PhaseReconfigure, Err: err}
		}
		c.entry.cfg = c.next
		result.Reconfigured = append(result.Reconfigured, name)
		m.logger.Info().Str("plugin", name).Msg("Reconfigured plugin")
	}

	m.app.SetConfig(next)
	return result, nil
}

// keepApplied copies the slices of plugins that already took their new
// configuration into the App's configuration, so the next pass diffs them
// against what they run with.
func (m *Manager) keepApplied(next config.Values, names []string) {
	if len(names) == 0 {
		return
	}
	merged := m.app.Config()
	fresh := config.Clone(next)
	for _, name := range names {
		if v, ok := fresh[name]; ok {
			merged[name] = v
		} else {
			delete(merged, name)
		}
	}
	m.app.SetConfig(merged)
}

// Plugins returns the registered plugins in installation order.
func (m *Manager) Plugins() []Plugin {
	all := m.plugins.All()
	out := make([]Plugin, 0, len(all))
	for _, entry := range all {
		out = append(out, entry.plugin)
	}
	return out
}

func (m *Manager) Get(name string) (Plugin, bool) {
	entry, ok := m.plugins.Get(name)
	if !ok {
		return nil, false
	}
	return entry.plugin, true
}

// Metadata lists registered plugin metadata in installation order.
func (m *Manager) Metadata() []Metadata {
	all := m.plugins.All()
	out := make([]Metadata, 0, len(all))
	for _, entry := range all {
		out = append(out, entry.meta)
	}
	return out
}

func schemaOf(p Plugin) config.Schema {
	c, ok := p.(Configurable)
	if !ok {
		return nil
	}
	return c.ConfigSchema()
}

// configEqual reports deep equality of two parsed slices. Values cmp cannot
// inspect (unexported fields) count as changed.
func configEqual(a, b any) (equal bool) {
	defer func() {
		if recover() != nil {
			equal = false
		}
	}()
	return cmp.Equal(a, b, cmpopts.EquateEmpty())
}
