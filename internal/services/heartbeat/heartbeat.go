// Package heartbeat publishes a periodic liveness record into the store.
package heartbeat

import (
	"context"
	"time"

	"github.com/danmuck/hostkernel/internal/host"
	"github.com/danmuck/hostkernel/internal/state"
	"github.com/rs/zerolog"
)

const ServiceName = "heartbeat"

// Beat is the payload of the "host.heartbeat" slice.
type Beat struct {
	Count    int64  `toml:"count" json:"count"`
	Last     string `toml:"last" json:"last"`
	Phase    string `toml:"phase" json:"phase"`
	Services int    `toml:"services" json:"services"`
}

var Kind = state.ValueKind[Beat]("host.heartbeat")

// Service ticks at a configurable interval and records each beat.
type Service struct {
	app    *host.App
	logger zerolog.Logger
	now    func() time.Time

	interval chan time.Duration
	current  time.Duration
}

func NewService(app *host.App, interval time.Duration) *Service {
	return &Service{
		app:      app,
		logger:   app.Logger().With().Str("service", ServiceName).Logger(),
		now:      time.Now,
		interval: make(chan time.Duration, 1),
		current:  interval,
	}
}

func (s *Service) Name() string {
	return ServiceName
}

// SetInterval changes the tick interval of a running service. The latest
// call wins when several arrive between ticks.
func (s *Service) SetInterval(d time.Duration) {
	for {
		select {
		case s.interval <- d:
			return
		default:
		}
		select {
		case <-s.interval:
		default:
		}
	}
}

func (s *Service) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.current)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case d := <-s.interval:
			s.current = d
			ticker.Reset(d)
			s.logger.Info().Dur("interval", d).Msg("heartbeat.Service interval changed")
		case <-ticker.C:
			if err := s.beat(); err != nil {
				return err
			}
		}
	}
}

func (s *Service) beat() error {
	services := len(s.app.Services())
	phase := string(s.app.Phase())
	beat, err := state.Mutate(s.app.Store(), Kind, func(v *state.Value[Beat]) Beat {
		v.V.Count++
		v.V.Last = s.now().UTC().Format(time.RFC3339)
		v.V.Phase = phase
		v.V.Services = services
		return v.V
	})
	if err != nil {
		return err
	}
	s.logger.Debug().Int64("count", beat.Count).Str("phase", beat.Phase).Msg("heartbeat")
	return nil
}
