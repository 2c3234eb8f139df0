package plugins

import (
	"errors"
	"fmt"
)

var (
	ErrPluginNil       = errors.New("plugin is nil")
	ErrInvalidMetadata = errors.New("invalid plugin metadata")
)

// Phase names the lifecycle hook a LifecycleError came from.
type Phase string

const (
	PhaseInstall     Phase = "install"
	PhaseStart       Phase = "start"
	PhaseReconfigure Phase = "reconfigure"
)

// LifecycleError reports a failed plugin hook.
type LifecycleError struct {
	Plugin string
	Phase  Phase
	Err    error
}

func (e *LifecycleError) Error() string {
	return fmt.Sprintf("plugin %q %s failed: %v", e.Plugin, e.Phase, e.Err)
}

func (e *LifecycleError) Unwrap() error {
	return e.Err
}
