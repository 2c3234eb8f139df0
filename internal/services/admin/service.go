package admin

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/danmuck/hostkernel/internal/host"
	"github.com/danmuck/hostkernel/internal/observability"
	"github.com/danmuck/hostkernel/internal/plugins"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/heptiolabs/healthcheck"
	"github.com/rs/zerolog"
)

const (
	ServiceName = "admin"
	version     = "0.1.0"
)

// Catalog lists installed plugins.
type Catalog interface {
	Metadata() []plugins.Metadata
}

// Service serves the admin HTTP API for one App.
type Service struct {
	app      *host.App
	cfg      Config
	catalog  Catalog
	logger   zerolog.Logger
	router   *gin.Engine
	health   healthcheck.Handler
	appeared time.Time

	mu     sync.Mutex
	addr   net.Addr
	server *http.Server
	agents map[string]host.Agent
}

var (
	_ host.Runner   = (*Service)(nil)
	_ host.Stopper  = (*Service)(nil)
	_ host.Attacher = (*Service)(nil)
)

func NewService(app *host.App, cfg Config, catalog Catalog) *Service {
	logger := app.Logger().With().Str("service", ServiceName).Logger()

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(observability.RequestLogger(logger))
	r.Use(observability.RequestMetricsMiddleware(app.Metrics()))
	r.Use(cors.New(cors.Config{
		AllowOrigins: normalizeOrigins(cfg.CORSOrigins),
		AllowMethods: []string{"GET", "POST"},
		AllowHeaders: []string{"Origin", "Content-Type", "Authorization", observability.RequestIDHeader},
		MaxAge:       12 * time.Hour,
	}))
	_ = r.SetTrustedProxies([]string{"127.0.0.1", "::1"})

	s := &Service{
		app:      app,
		cfg:      cfg,
		catalog:  catalog,
		logger:   logger,
		router:   r,
		health:   healthcheck.NewHandler(),
		appeared: time.Now(),
		agents:   make(map[string]host.Agent),
	}
	s.health.AddLivenessCheck("goroutines", healthcheck.GoroutineCountCheck(cfg.MaxGoroutines))
	s.health.AddReadinessCheck("phase", s.checkRunning)
	s.registerRoutes()
	return s
}

func (s *Service) Name() string {
	return ServiceName
}

// Handler exposes the router for in-process use.
func (s *Service) Handler() http.Handler {
	return s.router
}

// Addr returns the bound listener address once Run is serving.
func (s *Service) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

// Run listens on the configured address and serves until ctx is cancelled.
func (s *Service) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return err
	}
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
	}

	s.mu.Lock()
	s.addr = ln.Addr()
	s.server = srv
	s.mu.Unlock()
	s.logger.Info().Str("addr", ln.Addr().String()).Msg("admin.Service.Run listening")

	stop := context.AfterFunc(ctx, func() {
		_ = srv.Close()
	})
	defer stop()

	err = srv.Serve(ln)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Stop closes any server that outlived Run.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	srv := s.server
	s.server = nil
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	err := srv.Shutdown(ctx)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Service) Attach(agent host.Agent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.agents[agent.Name()] = agent
	s.logger.Debug().Str("agent", agent.Name()).Msg("admin.Service.Attach")
	return nil
}

func (s *Service) Detach(agent host.Agent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.agents, agent.Name())
	return nil
}

func (s *Service) agentNames() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.agents))
	for name := range s.agents {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (s *Service) checkRunning() error {
	if phase := s.app.Phase(); phase != host.PhaseRunning {
		return errors.New("app phase is " + string(phase))
	}
	return nil
}

func normalizeOrigins(origins []string) []string {
	if len(origins) == 0 {
		return []string{"http://localhost:3000"}
	}
	return origins
}
