package snapshot

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/danmuck/hostkernel/internal/host"
	"github.com/pelletier/go-toml/v2"
	"github.com/rs/zerolog"
)

const ServiceName = "snapshot"

// Service restores the state store from a TOML file on start and writes it
// back on stop, and optionally on an interval while running.
type Service struct {
	app    *host.App
	logger zerolog.Logger

	mu      sync.Mutex
	cfg     Config
	changed chan struct{}
}

func NewService(app *host.App, cfg Config) *Service {
	return &Service{
		app:     app,
		logger:  app.Logger().With().Str("service", ServiceName).Logger(),
		cfg:     cfg,
		changed: make(chan struct{}, 1),
	}
}

func (s *Service) Name() string {
	return ServiceName
}

func (s *Service) config() Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg
}

// Apply swaps the configuration; the next save uses the new path.
func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	s.cfg = cfg
	s.mu.Unlock()
	select {
	case s.changed <- struct{}{}:
	default:
	}
}

// Start loads the snapshot file if one exists. Names without a live slice
// are skipped.
func (s *Service) Start(ctx context.Context) error {
	cfg := s.config()
	data, err := os.ReadFile(cfg.Path)
	if errors.Is(err, fs.ErrNotExist) {
		s.logger.Info().Str("path", cfg.Path).Msg("no snapshot to restore")
		return nil
	}
	if err != nil {
		return fmt.Errorf("snapshot load failed (%s): %w", cfg.Path, err)
	}

	snap := map[string]any{}
	if err := toml.Unmarshal(data, &snap); err != nil {
		return fmt.Errorf("snapshot parse failed (%s): %w", cfg.Path, err)
	}
	for _, name := range cfg.Exclude {
		delete(snap, name)
	}

	var skipped []string
	err = s.app.Store().Deserialize(snap, func(name string) {
		skipped = append(skipped, name)
	})
	if len(skipped) > 0 {
		s.logger.Warn().Strs("slices", skipped).Msg("snapshot slices without a live slice skipped")
	}
	if err != nil {
		return err
	}
	s.logger.Info().Str("path", cfg.Path).Int("slices", len(snap)-len(skipped)).Msg("snapshot restored")
	return nil
}

func (s *Service) Run(ctx context.Context) error {
	cfg := s.config()
	var tick <-chan time.Time
	var ticker *time.Ticker
	reset := func() {
		if ticker != nil {
			ticker.Stop()
			ticker = nil
			tick = nil
		}
		if cfg.Interval > 0 {
			ticker = time.NewTicker(cfg.Interval)
			tick = ticker.C
		}
	}
	reset()
	defer func() {
		if ticker != nil {
			ticker.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-s.changed:
			cfg = s.config()
			reset()
		case <-tick:
			if err := s.Save(); err != nil {
				s.logger.Error().Err(err).Msg("snapshot save failed")
			}
		}
	}
}

func (s *Service) Stop(ctx context.Context) error {
	return s.Save()
}

// Save writes every non-excluded slice to the configured path. The file is
// replaced atomically.
func (s *Service) Save() error {
	cfg := s.config()
	snap := s.app.Store().Serialize()
	for _, name := range cfg.Exclude {
		delete(snap, name)
	}
	data, err := toml.Marshal(snap)
	if err != nil {
		return fmt.Errorf("snapshot encode failed: %w", err)
	}

	dir := filepath.Dir(cfg.Path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".snapshot-*.toml")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp.Name(), cfg.Path); err != nil {
		return err
	}

	names := make([]string, 0, len(snap))
	for name := range snap {
		names = append(names, name)
	}
	slices.Sort(names)
	s.logger.Debug().Str("path", cfg.Path).Strs("slices", names).Msg("snapshot.Service.Save")
	return nil
}
