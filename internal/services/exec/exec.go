// Package exec supervises external commands as host services.
//
// Each configured command becomes one service named "exec.<name>". A command
// that exits is restarted by the supervisor like any other crashed service.
package exec

import (
	"context"
	"errors"
	"time"

	"github.com/danmuck/hostkernel/internal/host"
	"github.com/danmuck/hostkernel/internal/state"
	"github.com/danmuck/hostkernel/internal/tools"
	"github.com/rs/zerolog"
)

// CommandStatus is the published record of one supervised command.
type CommandStatus struct {
	Runs      int    `toml:"runs" json:"runs"`
	Running   bool   `toml:"running" json:"running"`
	LastExit  int32  `toml:"last_exit" json:"last_exit"`
	LastError string `toml:"last_error" json:"last_error,omitempty"`
	StartedAt string `toml:"started_at" json:"started_at,omitempty"`
}

// Table is the payload of the "host.exec" slice.
type Table struct {
	Commands map[string]CommandStatus `toml:"commands" json:"commands"`
}

var Kind = state.ValueKind[Table]("host.exec")

// Service runs one command through a tools.Runner.
type Service struct {
	app     *host.App
	command Command
	runner  tools.Runner
	logger  zerolog.Logger
}

func NewService(app *host.App, command Command, runner tools.Runner) *Service {
	return &Service{
		app:     app,
		command: command,
		runner:  runner,
		logger: app.Logger().With().
			Str("service", "exec."+command.Name).
			Str("command", command.Path).
			Logger(),
	}
}

func (s *Service) Name() string {
	return "exec." + s.command.Name
}

// Run streams the command's output into the log until it exits or ctx is
// cancelled.
func (s *Service) Run(ctx context.Context) error {
	s.publish(func(st *CommandStatus) {
		st.Runs++
		st.Running = true
		st.StartedAt = time.Now().UTC().Format(time.RFC3339)
	})

	stdout := s.logger.With().Str("stream", "stdout").Logger()
	stderr := s.logger.With().Str("stream", "stderr").Logger()
	err := s.runner.Stream(ctx, s.command.Path, s.command.Args, stdout, stderr)

	code := tools.ExitCode(err)
	s.publish(func(st *CommandStatus) {
		st.Running = false
		st.LastExit = code
		st.LastError = ""
		if err != nil {
			st.LastError = err.Error()
		}
	})
	if ctx.Err() != nil {
		return nil
	}
	if err != nil {
		return err
	}
	if code == 0 {
		s.logger.Info().Msg("exec command completed")
	}
	return nil
}

func (s *Service) publish(fn func(*CommandStatus)) {
	err := state.Update(s.app.Store(), Kind, func(v *state.Value[Table]) {
		if v.V.Commands == nil {
			v.V.Commands = make(map[string]CommandStatus)
		}
		st := v.V.Commands[s.command.Name]
		fn(&st)
		v.V.Commands[s.command.Name] = st
	})
	if err != nil && !errors.Is(err, state.ErrSliceNotFound) {
		s.logger.Error().Err(err).Msg("exec.Service.publish")
	}
}
