package host

import (
	"github.com/danmuck/hostkernel/internal/state"
)

// Phase is the application-wide supervisor phase.
type Phase string

const (
	PhaseIdle     Phase = "idle"
	PhaseStarting Phase = "starting"
	PhaseRunning  Phase = "running"
	PhaseStopping Phase = "stopping"
	PhaseStopped  Phase = "stopped"
	PhaseFailed   Phase = "failed"
)

// ServiceState is the supervision state of one service.
type ServiceState string

const (
	StateIdle       ServiceState = "idle"
	StateStarting   ServiceState = "starting"
	StateRunning    ServiceState = "running"
	StateQuiescent  ServiceState = "quiescent"
	StateExited     ServiceState = "exited"
	StateFailed     ServiceState = "failed"
	StateBackoff    ServiceState = "backoff"
	StateRestarting ServiceState = "restarting"
	StateStopping   ServiceState = "stopping"
	StateStopped    ServiceState = "stopped"
)

var serviceStates = []string{
	string(StateIdle),
	string(StateStarting),
	string(StateRunning),
	string(StateQuiescent),
	string(StateExited),
	string(StateFailed),
	string(StateBackoff),
	string(StateRestarting),
	string(StateStopping),
	string(StateStopped),
}

// ServiceStatus is the published supervision record of one service.
type ServiceStatus struct {
	State     string `toml:"state" json:"state"`
	Restarts  int    `toml:"restarts" json:"restarts"`
	LastError string `toml:"last_error" json:"last_error,omitempty"`
}

// ServiceTable is the payload of the "host.services" slice.
type ServiceTable struct {
	Services map[string]ServiceStatus `toml:"services" json:"services"`
}

// ServicesKind is the state slice the supervisor publishes into.
var ServicesKind = state.ValueKind[ServiceTable]("host.services")

func (a *App) setServiceState(name string, next ServiceState, cause error) {
	a.metrics.SetServiceState(name, string(next), serviceStates)
	err := state.Update(a.store, ServicesKind, func(v *state.Value[ServiceTable]) {
		if v.V.Services == nil {
			v.V.Services = make(map[string]ServiceStatus)
		}
		status := v.V.Services[name]
		status.State = string(next)
		if cause != nil {
			status.LastError = cause.Error()
		}
		if next == StateRestarting {
			status.Restarts++
		}
		v.V.Services[name] = status
	})
	if err != nil {
		a.logger.Debug().Err(err).Str("service", name).Msg("host.App.setServiceState")
	}
}

// ServiceStatuses returns a copy of the published supervision records.
func (a *App) ServiceStatuses() map[string]ServiceStatus {
	out, err := state.View(a.store, ServicesKind, func(v *state.Value[ServiceTable]) map[string]ServiceStatus {
		cp := make(map[string]ServiceStatus, len(v.V.Services))
		for k, s := range v.V.Services {
			cp[k] = s
		}
		return cp
	})
	if err != nil {
		return map[string]ServiceStatus{}
	}
	return out
}
