package host

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/danmuck/hostkernel/internal/config"
	"github.com/danmuck/hostkernel/internal/observability"
	"github.com/danmuck/hostkernel/internal/registry"
	"github.com/danmuck/hostkernel/internal/state"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	DefaultRestartDelay = 5 * time.Second
	DefaultStopTimeout  = 10 * time.Second
)

type options struct {
	id             string
	logger         zerolog.Logger
	parent         context.Context
	config         config.Values
	restartBackoff func() backoff.BackOff
	stopTimeout    time.Duration
	metrics        *observability.Metrics
}

type Option func(*options)

func WithID(id string) Option {
	return func(o *options) {
		o.id = id
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithContext derives the application's cancellation context from parent.
func WithContext(parent context.Context) Option {
	return func(o *options) {
		o.parent = parent
	}
}

func WithConfig(values config.Values) Option {
	return func(o *options) {
		o.config = values
	}
}

// WithRestartDelay sets a constant delay between run-loop restarts.
func WithRestartDelay(d time.Duration) Option {
	return func(o *options) {
		o.restartBackoff = func() backoff.BackOff {
			return backoff.NewConstantBackOff(d)
		}
	}
}

// WithRestartBackoff sets the restart policy factory; one policy is built
// per supervised service.
func WithRestartBackoff(fn func() backoff.BackOff) Option {
	return func(o *options) {
		o.restartBackoff = fn
	}
}

func WithStopTimeout(d time.Duration) Option {
	return func(o *options) {
		o.stopTimeout = d
	}
}

func WithMetrics(m *observability.Metrics) Option {
	return func(o *options) {
		o.metrics = m
	}
}

// App is the composition root: it owns the service registry, the state
// store, the configuration and the cancellation context.
type App struct {
	id      string
	logger  zerolog.Logger
	ctx     context.Context
	cancel  context.CancelFunc
	opts    options
	metrics *observability.Metrics

	services *registry.Registry[Service]
	store    *state.Store

	cfgMu sync.RWMutex
	cfg   config.Values

	phase   atomic.Value
	started atomic.Bool
}

// New builds an application. It is idle until Run.
func New(opts ...Option) *App {
	o := options{
		logger:      zerolog.Nop(),
		parent:      context.Background(),
		stopTimeout: DefaultStopTimeout,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.id == "" {
		o.id = uuid.NewString()
	}
	if o.restartBackoff == nil {
		WithRestartDelay(DefaultRestartDelay)(&o)
	}
	if o.metrics == nil {
		o.metrics = observability.NewMetrics(o.id)
	}

	logger := o.logger.With().Str("app_id", o.id).Logger()
	ctx, cancel := context.WithCancel(o.parent)
	a := &App{
		id:      o.id,
		logger:  logger,
		ctx:     ctx,
		cancel:  cancel,
		opts:    o,
		metrics: o.metrics,
		services: registry.New(func(s Service) string {
			return s.Name()
		}),
		store: state.NewStore(
			state.WithLogger(logger.With().Str("component", "state").Logger()),
			state.WithMutationHook(o.metrics.RecordMutation),
			state.WithSubscriptionHook(o.metrics.AddSubscribers),
		),
		cfg: config.Clone(o.config),
	}
	a.phase.Store(PhaseIdle)
	state.Initialize(a.store, ServicesKind, ServiceTable{Services: map[string]ServiceStatus{}})
	return a
}

func (a *App) ID() string {
	return a.id
}

func (a *App) Logger() zerolog.Logger {
	return a.logger
}

func (a *App) Store() *state.Store {
	return a.store
}

func (a *App) Metrics() *observability.Metrics {
	return a.metrics
}

// Context is cancelled once Shutdown is called or the parent context ends.
func (a *App) Context() context.Context {
	return a.ctx
}

// Shutdown signals cancellation. It is irreversible and idempotent.
func (a *App) Shutdown() {
	a.cancel()
}

func (a *App) Done() <-chan struct{} {
	return a.ctx.Done()
}

func (a *App) Phase() Phase {
	return a.phase.Load().(Phase)
}

func (a *App) setPhase(p Phase) {
	a.phase.Store(p)
	a.logger.Info().Str("phase", string(p)).Msg("host.App phase")
}

// Close cancels the application and releases the state store.
func (a *App) Close() {
	a.cancel()
	a.store.Close()
}

// RegisterService adds svc to the registry. Services registered after Run
// has started are reachable by lookup but not supervised.
func (a *App) RegisterService(svc Service) {
	a.services.Register(svc)
	if a.started.Load() {
		a.logger.Warn().Str("service", svc.Name()).Msg("host.App.RegisterService after start; not supervised")
		return
	}
	a.setServiceState(svc.Name(), StateIdle, nil)
	a.logger.Debug().Str("service", svc.Name()).Msg("host.App.RegisterService")
}

// Services returns the registered services in registration order.
func (a *App) Services() []Service {
	return a.services.All()
}

func (a *App) Service(name string) (Service, bool) {
	return a.services.Get(name)
}

func (a *App) RequireService(name string) (Service, error) {
	svc, err := a.services.Require(name)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrServiceNotFound, err)
	}
	return svc, nil
}

// WaitForService blocks until a service named name is registered.
func (a *App) WaitForService(ctx context.Context, name string) (Service, error) {
	return a.services.Wait(ctx, name)
}

// Lookup returns the first registered service assignable to S.
func Lookup[S any](a *App) (S, bool) {
	return registry.Find[S](a.services)
}

// Require returns the first registered service assignable to S.
func Require[S any](a *App) (S, error) {
	svc, err := registry.RequireType[S](a.services)
	if err != nil {
		return svc, fmt.Errorf("%w: %w", ErrServiceNotFound, err)
	}
	return svc, nil
}

// WaitFor blocks until a service assignable to S is registered.
func WaitFor[S any](ctx context.Context, a *App) (S, error) {
	return registry.WaitType[S](ctx, a.services)
}

// Config returns a copy of the application configuration.
func (a *App) Config() config.Values {
	a.cfgMu.RLock()
	defer a.cfgMu.RUnlock()
	return config.Clone(a.cfg)
}

// SetConfig replaces the application configuration.
func (a *App) SetConfig(values config.Values) {
	a.cfgMu.Lock()
	defer a.cfgMu.Unlock()
	a.cfg = config.Clone(values)
}

// ConfigSlice parses the configuration under key with schema.
func (a *App) ConfigSlice(key string, schema config.Schema) (any, error) {
	a.cfgMu.RLock()
	defer a.cfgMu.RUnlock()
	return config.Slice(a.cfg, key, schema)
}

// AttachAgent exposes every Attacher service to agent.
func (a *App) AttachAgent(agent Agent) error {
	var errs []error
	for _, svc := range a.services.All() {
		at, ok := svc.(Attacher)
		if !ok {
			continue
		}
		if err := at.Attach(agent); err != nil {
			errs = append(errs, fmt.Errorf("host: attach %q to %q: %w", agent.Name(), svc.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// DetachAgent withdraws agent from every Attacher service.
func (a *App) DetachAgent(agent Agent) error {
	var errs []error
	for _, svc := range a.services.All() {
		at, ok := svc.(Attacher)
		if !ok {
			continue
		}
		if err := at.Detach(agent); err != nil {
			errs = append(errs, fmt.Errorf("host: detach %q from %q: %w", agent.Name(), svc.Name(), err))
		}
	}
	return errors.Join(errs...)
}
