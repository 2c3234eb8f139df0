package host

import (
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/sync/errgroup"
)

// Run starts every service, supervises their run loops until the
// application is shut down, then stops every service. A start failure is
// returned without entering the run phase. Run blocks until Shutdown (or
// parent context cancellation) and may be called once.
func (a *App) Run() error {
	if !a.started.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	services := a.services.All()

	a.setPhase(PhaseStarting)
	if err := a.startAll(services); err != nil {
		a.setPhase(PhaseFailed)
		return err
	}

	a.setPhase(PhaseRunning)
	a.runAll(services)

	a.setPhase(PhaseStopping)
	a.stopAll(services)
	a.setPhase(PhaseStopped)
	return nil
}

func (a *App) startAll(services []Service) error {
	var g errgroup.Group
	for _, svc := range services {
		starter, ok := svc.(Starter)
		if !ok {
			continue
		}
		name := svc.Name()
		g.Go(func() error {
			a.setServiceState(name, StateStarting, nil)
			err := guard(func() error {
				return starter.Start(a.ctx)
			})
			if err != nil {
				a.setServiceState(name, StateFailed, err)
				a.logger.Error().Err(err).Str("service", name).Msg("service failed to start")
				return &StartError{Service: name, Err: err}
			}
			return nil
		})
	}
	return g.Wait()
}

func (a *App) runAll(services []Service) {
	var wg sync.WaitGroup
	for _, svc := range services {
		name := svc.Name()
		runner, ok := svc.(Runner)
		if !ok {
			a.setServiceState(name, StateQuiescent, nil)
			continue
		}
		wg.Go(func() {
			a.supervise(name, runner)
		})
	}
	<-a.ctx.Done()
	wg.Wait()
}

// supervise restarts runner after every exit until cancellation.
func (a *App) supervise(name string, runner Runner) {
	logger := a.logger.With().Str("service", name).Logger()
	policy := a.opts.restartBackoff()

	for a.ctx.Err() == nil {
		a.setServiceState(name, StateRunning, nil)
		err := guard(func() error {
			return runner.Run(a.ctx)
		})
		if a.ctx.Err() != nil {
			return
		}

		reason := "exit"
		if err != nil {
			reason = "error"
			a.setServiceState(name, StateFailed, err)
			logger.Error().Err(err).Msg("service exited with error")
		} else {
			a.setServiceState(name, StateExited, nil)
			logger.Warn().Msg("service exited unexpectedly")
		}
		a.metrics.RecordRestart(name, reason)

		delay := policy.NextBackOff()
		if delay == backoff.Stop {
			delay = DefaultRestartDelay
		}
		a.setServiceState(name, StateBackoff, nil)
		if !a.waitRestart(delay) {
			return
		}
		a.setServiceState(name, StateRestarting, nil)
		logger.Info().Dur("delay", delay).Msg("service restarting")
	}
}

// waitRestart sleeps for delay unless the application is cancelled first.
func (a *App) waitRestart(delay time.Duration) bool {
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-a.ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func (a *App) stopAll(services []Service) {
	var wg sync.WaitGroup
	for _, svc := range services {
		name := svc.Name()
		stopper, ok := svc.(Stopper)
		if !ok {
			a.setServiceState(name, StateStopped, nil)
			continue
		}
		wg.Go(func() {
			a.setServiceState(name, StateStopping, nil)
			ctx, cancel := context.WithTimeout(context.WithoutCancel(a.ctx), a.opts.stopTimeout)
			defer cancel()
			err := guard(func() error {
				return stopper.Stop(ctx)
			})
			if err != nil {
				a.logger.Error().Err(err).Str("service", name).Msg("service failed to stop")
			}
			a.setServiceState(name, StateStopped, err)
		})
	}
	wg.Wait()
}
