package sysstat

import (
	"context"
	"sync"
	"time"

	"github.com/danmuck/hostkernel/internal/host"
	"github.com/danmuck/hostkernel/internal/state"
	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	gohost "github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/load"
	"github.com/shirou/gopsutil/v3/mem"
)

const ServiceName = "sysstat"

// Sample is the payload of the "host.sysstat" slice.
type Sample struct {
	CPUPercent      float64 `toml:"cpu_percent" json:"cpu_percent"`
	MemUsedPercent  float64 `toml:"mem_used_percent" json:"mem_used_percent"`
	MemTotal        uint64  `toml:"mem_total" json:"mem_total"`
	Load1           float64 `toml:"load1" json:"load1"`
	Load5           float64 `toml:"load5" json:"load5"`
	Load15          float64 `toml:"load15" json:"load15"`
	DiskPath        string  `toml:"disk_path" json:"disk_path"`
	DiskUsedPercent float64 `toml:"disk_used_percent" json:"disk_used_percent"`
	Uptime          uint64  `toml:"uptime" json:"uptime"`
	SampledAt       string  `toml:"sampled_at" json:"sampled_at"`
}

var Kind = state.ValueKind[Sample]("host.sysstat")

// Sampler collects one Sample for diskPath.
type Sampler func(ctx context.Context, diskPath string) (Sample, error)

// Collect samples the local host with gopsutil. Load averages are not
// available on every platform; their absence is not an error.
func Collect(ctx context.Context, diskPath string) (Sample, error) {
	var s Sample
	percents, err := cpu.PercentWithContext(ctx, 0, false)
	if err != nil {
		return s, err
	}
	if len(percents) > 0 {
		s.CPUPercent = percents[0]
	}

	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return s, err
	}
	s.MemUsedPercent = vm.UsedPercent
	s.MemTotal = vm.Total

	if avg, err := load.AvgWithContext(ctx); err == nil {
		s.Load1, s.Load5, s.Load15 = avg.Load1, avg.Load5, avg.Load15
	}

	usage, err := disk.UsageWithContext(ctx, diskPath)
	if err != nil {
		return s, err
	}
	s.DiskPath = diskPath
	s.DiskUsedPercent = usage.UsedPercent

	if up, err := gohost.UptimeWithContext(ctx); err == nil {
		s.Uptime = up
	}
	s.SampledAt = time.Now().UTC().Format(time.RFC3339)
	return s, nil
}

// Service samples host statistics into the store.
type Service struct {
	app     *host.App
	logger  zerolog.Logger
	sampler Sampler

	mu       sync.Mutex
	cfg      Config
	changed  chan struct{}
	failures int
}

func NewService(app *host.App, cfg Config, sampler Sampler) *Service {
	if sampler == nil {
		sampler = Collect
	}
	return &Service{
		app:     app,
		logger:  app.Logger().With().Str("service", ServiceName).Logger(),
		sampler: sampler,
		cfg:     cfg,
		changed: make(chan struct{}, 1),
	}
}

func (s *Service) Name() string {
	return ServiceName
}

// Apply swaps the sampling configuration of a running service.
func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	s.cfg = cfg
	s.mu.Unlock()
	select {
	case s.changed <- struct{}{}:
	default:
	}
}

func (s *Service) config() Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg
}

func (s *Service) Run(ctx context.Context) error {
	cfg := s.config()
	ticker := time.NewTicker(cfg.Interval)
	defer ticker.Stop()

	s.sample(ctx, cfg)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-s.changed:
			cfg = s.config()
			ticker.Reset(cfg.Interval)
			s.logger.Info().Dur("interval", cfg.Interval).Str("disk_path", cfg.DiskPath).Msg("sysstat.Service reconfigured")
		case <-ticker.C:
			s.sample(ctx, cfg)
		}
	}
}

// sample failures are logged; the previous sample stays published.
func (s *Service) sample(ctx context.Context, cfg Config) {
	sampleCtx, cancel := context.WithTimeout(ctx, cfg.Interval)
	defer cancel()
	sample, err := s.sampler(sampleCtx, cfg.DiskPath)
	if err != nil {
		s.failures++
		s.logger.Warn().Err(err).Int("failures", s.failures).Msg("sysstat sample failed")
		return
	}
	s.failures = 0
	err = state.Update(s.app.Store(), Kind, func(v *state.Value[Sample]) {
		v.V = sample
	})
	if err != nil {
		s.logger.Error().Err(err).Msg("sysstat.Service.sample publish")
	}
}
